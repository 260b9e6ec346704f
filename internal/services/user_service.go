package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/baharkarakas/user-accounts/internal/api/validate"
	"github.com/baharkarakas/user-accounts/internal/auth"
	"github.com/baharkarakas/user-accounts/internal/config"
	"github.com/baharkarakas/user-accounts/internal/metrics"
	"github.com/baharkarakas/user-accounts/internal/models"
	repo "github.com/baharkarakas/user-accounts/internal/repository"
	"github.com/baharkarakas/user-accounts/internal/storage"
)

// UserInput is a submitted user payload; nil fields were not submitted.
type UserInput = validate.UserFields

// UserView is the public projection of a user.
type UserView struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Avatar    string `json:"avatar"`
}

type ListResult struct {
	Page       int        `json:"page"`
	PerPage    int        `json:"per_page"`
	Total      int        `json:"total"`
	TotalPages int        `json:"total_pages"`
	Data       []UserView `json:"data"`
}

// UserResult carries the user when the lookup found one.
type UserResult struct {
	Result
	User *UserView
}

type UserCache interface {
	Get(ctx context.Context, id int64) (models.User, bool, error)
	Set(ctx context.Context, u models.User) error
	Invalidate(ctx context.Context, id int64) error
}

type UserService struct {
	r       repo.Users
	avatars storage.Avatars
	hasher  auth.Hasher
	pager   Pager
	c       config.Config

	cache UserCache
	sf    singleflight.Group
	now   func() time.Time
}

func NewUserService(r repo.Users, avatars storage.Avatars, c config.Config) *UserService {
	return &UserService{
		r:       r,
		avatars: avatars,
		hasher:  auth.NewHasher(c.BcryptCost),
		pager:   Pager{DefaultLimit: c.DefaultPerPage, MaxLimit: c.MaxPerPage},
		c:       c,
		now:     time.Now,
	}
}

// WithCache puts a read-through cache in front of single-user lookups.
func (s *UserService) WithCache(c UserCache) *UserService {
	s.cache = c
	return s
}

func (s *UserService) view(u models.User) UserView {
	return UserView{
		ID:        u.ID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Email:     u.Email,
		Avatar:    u.AvatarURL(s.c.AvatarPath),
	}
}

// ----------------- List -----------------

func (s *UserService) List(ctx context.Context, page, perPage int) (ListResult, error) {
	page = s.pager.Page(page)
	perPage = s.pager.Limit(perPage)

	users, total, err := s.r.FindPage(ctx, perPage, Offset(page, perPage))
	if err != nil {
		return ListResult{}, fmt.Errorf("list users: %w", err)
	}

	data := make([]UserView, 0, len(users))
	for _, u := range users {
		data = append(data, s.view(u))
	}
	return ListResult{
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		TotalPages: TotalPages(total, perPage),
		Data:       data,
	}, nil
}

// ----------------- Register -----------------

func (s *UserService) Register(ctx context.Context, in UserInput, file *storage.Upload) error {
	in = normalize(in)

	if in.Email != nil && *in.Email != "" {
		if err := s.checkEmailExist(ctx, *in.Email); err != nil {
			return err
		}
	}
	if err := validate.User(in, false); err != nil {
		return badRequest(err.Error())
	}

	u := models.NewUser(s.now())
	u.FirstName, u.LastName, u.Email = *in.FirstName, *in.LastName, *in.Email

	hash, err := s.hash(*in.Password)
	if err != nil {
		return err
	}
	u.PasswordHash = hash

	staged, err := s.attach(ctx, &u, file)
	if err != nil {
		return err
	}

	if err := s.r.Save(ctx, &u); err != nil {
		s.discard(ctx, staged)
		if errors.Is(err, repo.ErrValueTooLong) {
			return badRequest(MsgValueTooLong)
		}
		return fmt.Errorf("save user: %w", err)
	}

	metrics.UsersRegistered.Inc()
	slog.InfoContext(ctx, "user registered", "user_id", u.ID, "avatar", u.Avatar != "")
	return nil
}

func (s *UserService) checkEmailExist(ctx context.Context, email string) error {
	_, err := s.r.FindByEmail(ctx, email)
	switch {
	case err == nil:
		return badRequest(MsgEmailRegistered)
	case errors.Is(err, repo.ErrNotFound):
		return nil
	default:
		return fmt.Errorf("find user by email: %w", err)
	}
}

// ----------------- Edit / Update -----------------

func (s *UserService) EditUser(ctx context.Context, userID string) (UserResult, error) {
	u, res, err := s.resolve(ctx, userID, s.findByID)
	if err != nil || u == nil {
		return UserResult{Result: res}, err
	}
	v := s.view(*u)
	return UserResult{Result: ok(MsgSuccess), User: &v}, nil
}

func (s *UserService) UpdateUser(ctx context.Context, id string, in UserInput, file *storage.Upload) (Result, error) {
	// writes start from the stored row, never a cached copy
	u, res, err := s.resolve(ctx, id, s.r.FindByID)
	if err != nil || u == nil {
		return res, err
	}

	in = normalize(in)
	if err := validate.User(in, true); err != nil {
		return Result{}, badRequest(err.Error())
	}

	if in.FirstName != nil {
		u.FirstName = *in.FirstName
	}
	if in.LastName != nil {
		u.LastName = *in.LastName
	}
	if in.Email != nil {
		u.Email = *in.Email
	}
	if in.Password != nil {
		hash, err := s.hash(*in.Password)
		if err != nil {
			return Result{}, err
		}
		u.PasswordHash = hash
	}

	previous := u.Avatar
	u.DateUpdated = s.now()
	staged, err := s.attach(ctx, u, file)
	if err != nil {
		return Result{}, err
	}

	if err := s.r.Save(ctx, u); err != nil {
		s.discard(ctx, staged)
		switch {
		case errors.Is(err, repo.ErrNotFound):
			return Result{Status: http.StatusOK, Message: MsgUserNotFound}, nil
		case errors.Is(err, repo.ErrValueTooLong):
			return Result{}, badRequest(MsgValueTooLong)
		}
		return Result{}, fmt.Errorf("save user: %w", err)
	}

	s.invalidate(ctx, u.ID)
	if staged != "" && previous != "" && previous != staged {
		s.discard(ctx, previous)
	}

	metrics.UsersUpdated.Inc()
	slog.InfoContext(ctx, "user updated", "user_id", u.ID, "avatar", staged != "")
	return ok(MsgUpdated), nil
}

// resolve turns a raw id into a user. A nil user with a nil error means res
// already holds the answer for the client.
func (s *UserService) resolve(ctx context.Context, rawID string, find func(context.Context, int64) (models.User, error)) (*models.User, Result, error) {
	rawID = strings.TrimSpace(rawID)
	if rawID == "" || rawID == "0" {
		return nil, Result{Status: http.StatusBadRequest, Message: MsgUserIDRequired}, nil
	}
	notFound := Result{Status: http.StatusOK, Message: MsgUserNotFound}

	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || id < 1 {
		return nil, notFound, nil
	}
	u, err := find(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, notFound, nil
	}
	if err != nil {
		return nil, Result{}, fmt.Errorf("find user %d: %w", id, err)
	}
	return &u, Result{}, nil
}

// ----------------- Password -----------------

// VerifyPassword checks password against the authenticated user's hash.
// sessionUser is nil when the request carried no valid token.
func (s *UserService) VerifyPassword(ctx context.Context, sessionUser *models.User, password string) (Result, error) {
	if sessionUser == nil {
		return Result{}, badRequest(MsgTokenNotFound)
	}
	if password == "" {
		return Result{}, badRequest(MsgPasswordRequired)
	}

	err := s.hasher.Verify(password, sessionUser.PasswordHash)
	if errors.Is(err, auth.ErrPasswordMismatch) {
		metrics.PasswordVerifications.WithLabelValues("mismatch").Inc()
		return Result{Status: http.StatusUnauthorized, Message: MsgWrongPassword}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("verify password: %w", err)
	}
	metrics.PasswordVerifications.WithLabelValues("match").Inc()
	return ok(MsgSuccess), nil
}

// Login returns the user owning email when password matches.
func (s *UserService) Login(ctx context.Context, email, password string) (models.User, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return models.User{}, ErrInvalidCredentials
	}
	u, err := s.r.FindByEmail(ctx, email)
	if errors.Is(err, repo.ErrNotFound) {
		return models.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return models.User{}, fmt.Errorf("find user by email: %w", err)
	}
	if err := s.hasher.Verify(password, u.PasswordHash); err != nil {
		return models.User{}, ErrInvalidCredentials
	}
	return u, nil
}

// SessionUser loads the user behind an authenticated token subject, or nil
// when it no longer resolves. It reads the store directly since the cache
// does not hold password hashes.
func (s *UserService) SessionUser(ctx context.Context, userID string) (*models.User, error) {
	id, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		return nil, nil
	}
	u, err := s.r.FindByID(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// ----------------- Helpers -----------------

func (s *UserService) hash(password string) (string, error) {
	hash, err := s.hasher.Hash(password)
	if errors.Is(err, auth.ErrPasswordTooLong) {
		return "", badRequest(MsgPasswordTooLong)
	}
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return hash, nil
}

// findByID is the cached read path. Cached users carry no password hash.
func (s *UserService) findByID(ctx context.Context, id int64) (models.User, error) {
	if s.cache == nil {
		return s.r.FindByID(ctx, id)
	}
	if u, hit, err := s.cache.Get(ctx, id); err != nil {
		slog.WarnContext(ctx, "user cache get", "user_id", id, "err", err)
	} else if hit {
		return u, nil
	}

	// the shared lookup must not die with whichever caller started it
	shared := context.WithoutCancel(ctx)
	v, err, _ := s.sf.Do(strconv.FormatInt(id, 10), func() (any, error) {
		u, err := s.r.FindByID(shared, id)
		if err != nil {
			return models.User{}, err
		}
		u.PasswordHash = ""
		if err := s.cache.Set(shared, u); err != nil {
			slog.WarnContext(ctx, "user cache set", "user_id", id, "err", err)
		}
		return u, nil
	})
	return v.(models.User), err
}

// invalidate drops the cached user after a write. With a positive
// CacheInvalidateDelay it deletes again after the delay, evicting a stale
// copy that a read racing the write put back.
func (s *UserService) invalidate(ctx context.Context, id int64) {
	if s.cache == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	drop := func() {
		if err := s.cache.Invalidate(ctx, id); err != nil {
			slog.WarnContext(ctx, "user cache invalidate", "user_id", id, "err", err)
		}
	}
	drop()
	if d := s.c.CacheInvalidateDelay; d > 0 {
		time.AfterFunc(d, drop)
	}
}

// attach stores file (if any) as the user's avatar and returns the stored name.
func (s *UserService) attach(ctx context.Context, u *models.User, file *storage.Upload) (string, error) {
	if file == nil {
		return "", nil
	}
	name, err := s.avatars.Save(ctx, *file)
	switch {
	case errors.Is(err, storage.ErrTooLarge):
		metrics.AvatarUploads.WithLabelValues("rejected").Inc()
		return "", badRequest(fmt.Sprintf(MsgTooLargeFmt, humanBytes(s.c.MaxUploadBytes)))
	case errors.Is(err, storage.ErrNotImage):
		metrics.AvatarUploads.WithLabelValues("rejected").Inc()
		return "", badRequest(MsgInvalidImage)
	case err != nil:
		metrics.AvatarUploads.WithLabelValues("failed").Inc()
		return "", fmt.Errorf("store avatar: %w", err)
	}
	metrics.AvatarUploads.WithLabelValues("stored").Inc()
	u.AttachAvatar(name, s.now())
	return name, nil
}

func (s *UserService) discard(ctx context.Context, name string) {
	if name == "" {
		return
	}
	if err := s.avatars.Remove(ctx, name); err != nil {
		slog.WarnContext(ctx, "remove avatar", "file", name, "err", err)
	}
}

func normalize(in UserInput) UserInput {
	trim := func(p *string) *string {
		if p == nil {
			return nil
		}
		t := strings.TrimSpace(*p)
		return &t
	}
	in.FirstName = trim(in.FirstName)
	in.LastName = trim(in.LastName)
	in.Email = trim(in.Email)
	return in
}

func humanBytes(n int64) string {
	switch {
	case n >= 1<<20 && n%(1<<20) == 0:
		return strconv.FormatInt(n>>20, 10) + " MB"
	case n >= 1<<10 && n%(1<<10) == 0:
		return strconv.FormatInt(n>>10, 10) + " kB"
	}
	return strconv.FormatInt(n, 10) + " bytes"
}
