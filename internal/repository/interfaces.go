package repository

import (
	"context"
	"errors"

	"github.com/baharkarakas/user-accounts/internal/models"
)

var (
	ErrNotFound = errors.New("user not found")
	// ErrValueTooLong means a column rejected a value as too long.
	ErrValueTooLong = errors.New("value too long")
)

type Users interface {
	FindByID(ctx context.Context, id int64) (models.User, error)
	FindByEmail(ctx context.Context, email string) (models.User, error)
	// FindPage returns users ordered by id plus the total number of users.
	FindPage(ctx context.Context, limit, offset int) ([]models.User, int, error)
	// Save inserts when u.ID is zero (assigning the new id) and updates otherwise.
	Save(ctx context.Context, u *models.User) error
}
