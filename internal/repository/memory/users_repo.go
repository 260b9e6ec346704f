// Package memory is an in-process users store for tests and STORE=memory runs.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/baharkarakas/user-accounts/internal/models"
	"github.com/baharkarakas/user-accounts/internal/repository"
)

type usersRepo struct {
	mu     sync.RWMutex
	nextID int64
	byID   map[int64]models.User
}

func NewUsers() repository.Users {
	return &usersRepo{byID: map[int64]models.User{}}
}

func (r *usersRepo) FindByID(_ context.Context, id int64) (models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.byID[id]
	if !ok {
		return models.User{}, repository.ErrNotFound
	}
	return u, nil
}

// FindByEmail returns the oldest user with the email; updates may leave
// more than one.
func (r *usersRepo) FindByEmail(_ context.Context, email string) (models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var (
		found models.User
		ok    bool
	)
	for _, u := range r.byID {
		if u.Email == email && (!ok || u.ID < found.ID) {
			found, ok = u, true
		}
	}
	if !ok {
		return models.User{}, repository.ErrNotFound
	}
	return found, nil
}

func (r *usersRepo) FindPage(_ context.Context, limit, offset int) ([]models.User, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]int64, 0, len(r.byID))
	for id := range r.byID {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	total := len(ids)
	out := []models.User{}
	if offset < 0 || offset >= total {
		return out, total, nil
	}
	for i := offset; i < total && len(out) < limit; i++ {
		out = append(out, r.byID[ids[i]])
	}
	return out, total, nil
}

func (r *usersRepo) Save(_ context.Context, u *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if u.ID == 0 {
		r.nextID++
		u.ID = r.nextID
	} else if _, ok := r.byID[u.ID]; !ok {
		return repository.ErrNotFound
	}
	r.byID[u.ID] = *u
	return nil
}
