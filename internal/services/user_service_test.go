package services

import (
	"bytes"
	"context"
	"errors"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/baharkarakas/user-accounts/internal/config"
	"github.com/baharkarakas/user-accounts/internal/models"
	repo "github.com/baharkarakas/user-accounts/internal/repository"
	"github.com/baharkarakas/user-accounts/internal/repository/memory"
	"github.com/baharkarakas/user-accounts/internal/storage"
)

var pngBytes = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a,
	0x00, 0x00, 0x00, 0x0d, 0x49, 0x48, 0x44, 0x52,
	0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4, 0x89,
}

func str(s string) *string { return &s }

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }
func (c *clock) tick()          { c.t = c.t.Add(time.Minute) }

type fixture struct {
	svc   *UserService
	users repo.Users
	dir   string
	clk   *clock
}

func testConfig() config.Config {
	return config.Config{
		BcryptCost:     bcrypt.MinCost,
		AvatarPath:     "public/uploads/users/",
		MaxUploadBytes: 1024,
		DefaultPerPage: 10,
		MaxPerPage:     100,
	}
}

func newFixture(t *testing.T, users repo.Users) fixture {
	t.Helper()
	if users == nil {
		users = memory.NewUsers()
	}
	dir := t.TempDir()
	cfg := testConfig()
	avatars, err := storage.NewLocalAvatars(dir, cfg.MaxUploadBytes)
	require.NoError(t, err)

	clk := &clock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	svc := NewUserService(users, avatars, cfg)
	svc.now = clk.now
	return fixture{svc: svc, users: users, dir: dir, clk: clk}
}

func validInput(email string) UserInput {
	return UserInput{
		FirstName: str("Ada"),
		LastName:  str("Lovelace"),
		Email:     str(email),
		Password:  str("secret"),
	}
}

func png() *storage.Upload {
	return &storage.Upload{Filename: "me.png", Content: bytes.NewReader(pngBytes)}
}

func requireHTTPError(t *testing.T, err error, status int, msg string) {
	t.Helper()
	var he *HTTPError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, status, he.Status)
	assert.Equal(t, msg, he.Message)
}

func countUsers(t *testing.T, users repo.Users) int {
	t.Helper()
	_, total, err := users.FindPage(context.Background(), 1, 0)
	require.NoError(t, err)
	return total
}

func files(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

// failingSave wraps a store and rejects every Save.
type failingSave struct {
	repo.Users
	err error
}

func (f failingSave) Save(context.Context, *models.User) error { return f.err }

func TestRegister_HashesPassword(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	require.NoError(t, f.svc.Register(ctx, validInput("ada@example.com"), nil))

	u, err := f.users.FindByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.NotEqual(t, "secret", u.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("secret")))
	assert.Equal(t, f.clk.t, u.DateCreated)
	assert.Empty(t, u.Avatar)
}

func TestRegister_DuplicateEmail(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	require.NoError(t, f.svc.Register(ctx, validInput("ada@example.com"), nil))

	err := f.svc.Register(ctx, validInput("ada@example.com"), png())
	requireHTTPError(t, err, http.StatusBadRequest, MsgEmailRegistered)
	assert.Equal(t, 1, countUsers(t, f.users))
	assert.Empty(t, files(t, f.dir))
}

func TestRegister_PasswordLength(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	in := validInput("short@example.com")
	in.Password = str("abc")
	err := f.svc.Register(ctx, in, nil)
	requireHTTPError(t, err, http.StatusBadRequest, "Password must be at least 4 characters long")
	assert.Equal(t, 0, countUsers(t, f.users))

	in.Password = str("abcd")
	require.NoError(t, f.svc.Register(ctx, in, nil))
	assert.Equal(t, 1, countUsers(t, f.users))
}

func TestRegister_CombinedValidationMessage(t *testing.T) {
	f := newFixture(t, nil)

	err := f.svc.Register(context.Background(), UserInput{FirstName: str("Al"), Email: str("nope")}, nil)
	requireHTTPError(t, err, http.StatusBadRequest,
		"First name must be at least 3 characters long, Last name can not be blank, "+
			"Email is not a valid email address, Password can not be blank")
}

func TestRegister_Avatar(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	require.NoError(t, f.svc.Register(ctx, validInput("ada@example.com"), png()))

	u, err := f.users.FindByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	require.NotEmpty(t, u.Avatar)
	assert.Equal(t, []string{u.Avatar}, files(t, f.dir))
}

func TestRegister_RejectsBadUploads(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	err := f.svc.Register(ctx, validInput("a@example.com"), &storage.Upload{Content: bytes.NewReader([]byte("plain text"))})
	requireHTTPError(t, err, http.StatusBadRequest, MsgInvalidImage)

	big := append(append([]byte{}, pngBytes...), make([]byte, 2048)...)
	err = f.svc.Register(ctx, validInput("a@example.com"), &storage.Upload{Content: bytes.NewReader(big)})
	requireHTTPError(t, err, http.StatusBadRequest, "The file is too large. Allowed maximum size is 1 kB.")

	assert.Equal(t, 0, countUsers(t, f.users))
	assert.Empty(t, files(t, f.dir))
}

func TestRegister_StagedAvatarRemovedWhenSaveFails(t *testing.T) {
	f := newFixture(t, failingSave{Users: memory.NewUsers(), err: errors.New("db down")})

	err := f.svc.Register(context.Background(), validInput("ada@example.com"), png())
	require.Error(t, err)
	assert.Empty(t, files(t, f.dir))
}

func TestList_Paginates(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	for _, e := range []string{"a@x.io", "b@x.io", "c@x.io"} {
		require.NoError(t, f.svc.Register(ctx, validInput(e), nil))
	}

	res, err := f.svc.List(ctx, 2, 2)
	require.NoError(t, err)

	want := ListResult{
		Page:       2,
		PerPage:    2,
		Total:      3,
		TotalPages: 2,
		Data:       []UserView{{ID: 3, FirstName: "Ada", LastName: "Lovelace", Email: "c@x.io"}},
	}
	if diff := cmp.Diff(want, res); diff != "" {
		t.Fatalf("list mismatch (-want +got):\n%s", diff)
	}

	res, err = f.svc.List(ctx, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Page)
	assert.Equal(t, 10, res.PerPage)
	assert.Len(t, res.Data, 3)
}

func TestList_HugePage(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	require.NoError(t, f.svc.Register(ctx, validInput("ada@example.com"), nil))

	for _, page := range []int{math.MaxInt64/10 + 2, math.MaxInt64} {
		res, err := f.svc.List(ctx, page, 10)
		require.NoError(t, err)
		assert.Equal(t, page, res.Page)
		assert.Equal(t, 1, res.Total)
		assert.Equal(t, 1, res.TotalPages)
		assert.NotNil(t, res.Data)
		assert.Empty(t, res.Data)
	}
}

func TestList_EmptyStore(t *testing.T) {
	f := newFixture(t, nil)

	res, err := f.svc.List(context.Background(), 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, res.TotalPages)
	assert.NotNil(t, res.Data)
	assert.Empty(t, res.Data)
}

func TestEditUser(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	require.NoError(t, f.svc.Register(ctx, validInput("ada@example.com"), nil))

	res, err := f.svc.EditUser(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, Result{Status: http.StatusBadRequest, Message: MsgUserIDRequired}, res.Result)
	assert.Nil(t, res.User)

	for _, id := range []string{"42", "abc"} {
		res, err = f.svc.EditUser(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, Result{Status: http.StatusOK, Message: MsgUserNotFound}, res.Result, id)
		assert.Nil(t, res.User)
	}

	res, err = f.svc.EditUser(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, ok(MsgSuccess), res.Result)
	require.NotNil(t, res.User)
	assert.Equal(t, UserView{ID: 1, FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com"}, *res.User)
}

func TestUpdateUser_MissingAndUnknown(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	res, err := f.svc.UpdateUser(ctx, "", UserInput{}, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, res.Status)
	assert.Equal(t, MsgUserIDRequired, res.Message)

	res, err = f.svc.UpdateUser(ctx, "7", UserInput{FirstName: str("x")}, nil)
	require.NoError(t, err)
	assert.Equal(t, Result{Status: http.StatusOK, Message: MsgUserNotFound}, res)
}

func TestUpdateUser_PartialLeavesOmittedFields(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	require.NoError(t, f.svc.Register(ctx, validInput("ada@example.com"), nil))
	before, err := f.users.FindByID(ctx, 1)
	require.NoError(t, err)

	f.clk.tick()
	res, err := f.svc.UpdateUser(ctx, "1", UserInput{FirstName: str("Augusta")}, nil)
	require.NoError(t, err)
	assert.Equal(t, ok(MsgUpdated), res)

	after, err := f.users.FindByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Augusta", after.FirstName)
	assert.Equal(t, before.LastName, after.LastName)
	assert.Equal(t, before.Email, after.Email)
	assert.Equal(t, before.PasswordHash, after.PasswordHash)
	assert.Equal(t, before.DateCreated, after.DateCreated)
}

func TestUpdateUser_ValidatesSubmittedFields(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	require.NoError(t, f.svc.Register(ctx, validInput("ada@example.com"), nil))

	_, err := f.svc.UpdateUser(ctx, "1", UserInput{LastName: str("Lo"), Password: str("abc")}, nil)
	requireHTTPError(t, err, http.StatusBadRequest,
		"Last name must be at least 3 characters long, Password must be at least 4 characters long")
}

func TestUpdateUser_AvatarOnlyRefreshesDateUpdated(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	require.NoError(t, f.svc.Register(ctx, validInput("ada@example.com"), nil))
	before, err := f.users.FindByID(ctx, 1)
	require.NoError(t, err)

	f.clk.tick()
	res, err := f.svc.UpdateUser(ctx, "1", UserInput{}, png())
	require.NoError(t, err)
	assert.Equal(t, ok(MsgUpdated), res)

	after, err := f.users.FindByID(ctx, 1)
	require.NoError(t, err)
	assert.True(t, after.DateUpdated.After(before.DateUpdated))
	assert.NotEmpty(t, after.Avatar)
}

func TestUpdateUser_ReplacesAvatar(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	require.NoError(t, f.svc.Register(ctx, validInput("ada@example.com"), png()))
	first, err := f.users.FindByID(ctx, 1)
	require.NoError(t, err)

	_, err = f.svc.UpdateUser(ctx, "1", UserInput{}, png())
	require.NoError(t, err)

	second, err := f.users.FindByID(ctx, 1)
	require.NoError(t, err)
	assert.NotEqual(t, first.Avatar, second.Avatar)
	assert.Equal(t, []string{second.Avatar}, files(t, f.dir))
}

func TestUpdateUser_StagedAvatarRemovedWhenSaveFails(t *testing.T) {
	users := memory.NewUsers()
	u := models.NewUser(time.Now())
	u.FirstName, u.LastName, u.Email = "Ada", "Lovelace", "ada@example.com"
	require.NoError(t, users.Save(context.Background(), &u))

	f := newFixture(t, failingSave{Users: users, err: errors.New("db down")})
	_, err := f.svc.UpdateUser(context.Background(), "1", UserInput{}, png())
	require.Error(t, err)
	assert.Empty(t, files(t, f.dir))
}

func TestUpdateUser_EmailNotCheckedForUniqueness(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	require.NoError(t, f.svc.Register(ctx, validInput("a@x.io"), nil))
	require.NoError(t, f.svc.Register(ctx, validInput("b@x.io"), nil))

	res, err := f.svc.UpdateUser(ctx, "2", UserInput{Email: str("a@x.io")}, nil)
	require.NoError(t, err)
	assert.Equal(t, ok(MsgUpdated), res)

	second, err := f.users.FindByID(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "a@x.io", second.Email)

	// register still refuses the address
	err = f.svc.Register(ctx, validInput("a@x.io"), nil)
	requireHTTPError(t, err, http.StatusBadRequest, MsgEmailRegistered)
}

func TestSave_ValueTooLongIsClientError(t *testing.T) {
	users := memory.NewUsers()
	u := models.NewUser(time.Now())
	u.FirstName, u.LastName, u.Email = "Ada", "Lovelace", "ada@example.com"
	require.NoError(t, users.Save(context.Background(), &u))

	f := newFixture(t, failingSave{Users: users, err: repo.ErrValueTooLong})
	ctx := context.Background()

	err := f.svc.Register(ctx, validInput("new@example.com"), png())
	requireHTTPError(t, err, http.StatusBadRequest, MsgValueTooLong)

	_, err = f.svc.UpdateUser(ctx, "1", UserInput{FirstName: str("Augusta")}, png())
	requireHTTPError(t, err, http.StatusBadRequest, MsgValueTooLong)
	assert.Empty(t, files(t, f.dir))
}

func TestPasswordOverBcryptLimit(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	// 30 characters, 90 bytes
	long := strings.Repeat("密", 30)
	in := validInput("cjk@example.com")
	in.Password = str(long)
	err := f.svc.Register(ctx, in, nil)
	requireHTTPError(t, err, http.StatusBadRequest, "Password cannot be longer than 72 bytes")
	assert.Equal(t, 0, countUsers(t, f.users))

	require.NoError(t, f.svc.Register(ctx, validInput("cjk@example.com"), nil))
	_, err = f.svc.UpdateUser(ctx, "1", UserInput{Password: str(long)}, nil)
	requireHTTPError(t, err, http.StatusBadRequest, "Password cannot be longer than 72 bytes")

	in.Password = str(strings.Repeat("密", 24))
	_, err = f.svc.UpdateUser(ctx, "1", in, nil)
	require.NoError(t, err)
}

func TestHash_TooLongBypassingValidation(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.svc.hash(strings.Repeat("a", 73))
	requireHTTPError(t, err, http.StatusBadRequest, MsgPasswordTooLong)
}

func TestAvatarPrefixedOnce(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	require.NoError(t, f.svc.Register(ctx, validInput("ada@example.com"), png()))

	for i := 0; i < 3; i++ {
		res, err := f.svc.EditUser(ctx, "1")
		require.NoError(t, err)
		_, err = f.svc.UpdateUser(ctx, "1", UserInput{FirstName: str("Augusta")}, nil)
		require.NoError(t, err)

		stored, err := f.users.FindByID(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, filepath.Base(stored.Avatar), stored.Avatar)
		assert.Equal(t, "public/uploads/users/"+stored.Avatar, res.User.Avatar)
	}

	list, err := f.svc.List(ctx, 1, 10)
	require.NoError(t, err)
	stored, _ := f.users.FindByID(ctx, 1)
	assert.Equal(t, "public/uploads/users/"+stored.Avatar, list.Data[0].Avatar)
}

func TestVerifyPassword(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	require.NoError(t, f.svc.Register(ctx, validInput("ada@example.com"), nil))
	u, err := f.users.FindByID(ctx, 1)
	require.NoError(t, err)

	for _, pw := range []string{"", "secret", "anything"} {
		_, err := f.svc.VerifyPassword(ctx, nil, pw)
		requireHTTPError(t, err, http.StatusBadRequest, MsgTokenNotFound)
	}

	_, err = f.svc.VerifyPassword(ctx, &u, "")
	requireHTTPError(t, err, http.StatusBadRequest, MsgPasswordRequired)

	res, err := f.svc.VerifyPassword(ctx, &u, "wrong")
	require.NoError(t, err)
	assert.Equal(t, Result{Status: http.StatusUnauthorized, Message: MsgWrongPassword}, res)

	res, err = f.svc.VerifyPassword(ctx, &u, "secret")
	require.NoError(t, err)
	assert.Equal(t, ok(MsgSuccess), res)
}

func TestLoginAndSessionUser(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	require.NoError(t, f.svc.Register(ctx, validInput("ada@example.com"), nil))

	u, err := f.svc.Login(ctx, " ada@example.com ", "secret")
	require.NoError(t, err)
	assert.Equal(t, int64(1), u.ID)

	_, err = f.svc.Login(ctx, "ada@example.com", "nope")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = f.svc.Login(ctx, "who@example.com", "secret")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	su, err := f.svc.SessionUser(ctx, "1")
	require.NoError(t, err)
	require.NotNil(t, su)
	assert.Equal(t, "ada@example.com", su.Email)

	for _, id := range []string{"", "2", "x"} {
		su, err = f.svc.SessionUser(ctx, id)
		require.NoError(t, err)
		assert.Nil(t, su, id)
	}
}

type fakeCache struct {
	mu          sync.Mutex
	m           map[int64]models.User
	gets, fills int
	invalidated []int64
}

func (c *fakeCache) Get(_ context.Context, id int64) (models.User, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	u, ok := c.m[id]
	return u, ok, nil
}

func (c *fakeCache) Set(_ context.Context, u models.User) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fills++
	c.m[u.ID] = u
	return nil
}

func (c *fakeCache) Invalidate(_ context.Context, id int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, id)
	delete(c.m, id)
	return nil
}

func (c *fakeCache) cached(id int64) (models.User, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	u, ok := c.m[id]
	return u, ok
}

func (c *fakeCache) invalidations() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.invalidated)
}

// ctxRepo fails lookups once the caller's context is done.
type ctxRepo struct{ repo.Users }

func (r ctxRepo) FindByID(ctx context.Context, id int64) (models.User, error) {
	if err := ctx.Err(); err != nil {
		return models.User{}, err
	}
	return r.Users.FindByID(ctx, id)
}

func TestCache_ReadThroughAndInvalidate(t *testing.T) {
	f := newFixture(t, nil)
	cache := &fakeCache{m: map[int64]models.User{}}
	f.svc.WithCache(cache)
	ctx := context.Background()
	require.NoError(t, f.svc.Register(ctx, validInput("ada@example.com"), nil))

	_, err := f.svc.EditUser(ctx, "1")
	require.NoError(t, err)
	_, err = f.svc.EditUser(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, 2, cache.gets)
	assert.Equal(t, 1, cache.fills)

	_, err = f.svc.UpdateUser(ctx, "1", UserInput{FirstName: str("Augusta")}, nil)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, cache.invalidated)

	res, err := f.svc.EditUser(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "Augusta", res.User.FirstName)
}

func TestCache_HoldsNoPasswordHash(t *testing.T) {
	f := newFixture(t, nil)
	cache := &fakeCache{m: map[int64]models.User{}}
	f.svc.WithCache(cache)
	ctx := context.Background()
	require.NoError(t, f.svc.Register(ctx, validInput("ada@example.com"), nil))

	_, err := f.svc.EditUser(ctx, "1")
	require.NoError(t, err)
	cached, hit := cache.cached(1)
	require.True(t, hit)
	assert.Empty(t, cached.PasswordHash)

	// the session user comes from the store, so verification still works
	su, err := f.svc.SessionUser(ctx, "1")
	require.NoError(t, err)
	require.NotNil(t, su)
	res, err := f.svc.VerifyPassword(ctx, su, "secret")
	require.NoError(t, err)
	assert.Equal(t, ok(MsgSuccess), res)
}

func TestCache_UpdateReadsStoreNotCache(t *testing.T) {
	f := newFixture(t, nil)
	cache := &fakeCache{m: map[int64]models.User{}}
	f.svc.WithCache(cache)
	ctx := context.Background()
	require.NoError(t, f.svc.Register(ctx, validInput("ada@example.com"), nil))
	stored, err := f.users.FindByID(ctx, 1)
	require.NoError(t, err)

	stale := stored
	stale.LastName, stale.PasswordHash = "Stale", ""
	require.NoError(t, cache.Set(ctx, stale))

	_, err = f.svc.UpdateUser(ctx, "1", UserInput{FirstName: str("Augusta")}, nil)
	require.NoError(t, err)

	after, err := f.users.FindByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Lovelace", after.LastName)
	assert.Equal(t, stored.PasswordHash, after.PasswordHash)
}

func TestCache_DelayedInvalidateEvictsStaleWriteBack(t *testing.T) {
	f := newFixture(t, nil)
	f.svc.c.CacheInvalidateDelay = 50 * time.Millisecond
	cache := &fakeCache{m: map[int64]models.User{}}
	f.svc.WithCache(cache)
	ctx := context.Background()
	require.NoError(t, f.svc.Register(ctx, validInput("ada@example.com"), nil))
	stored, err := f.users.FindByID(ctx, 1)
	require.NoError(t, err)

	_, err = f.svc.UpdateUser(ctx, "1", UserInput{FirstName: str("Augusta")}, nil)
	require.NoError(t, err)

	// a read that loaded the old row before the update lands afterwards
	require.NoError(t, cache.Set(ctx, stored))

	require.Eventually(t, func() bool {
		_, hit := cache.cached(1)
		return !hit && cache.invalidations() == 2
	}, time.Second, 5*time.Millisecond)

	res, err := f.svc.EditUser(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "Augusta", res.User.FirstName)
}

func TestCache_SharedLookupSurvivesCancelledCaller(t *testing.T) {
	f := newFixture(t, ctxRepo{Users: memory.NewUsers()})
	f.svc.WithCache(&fakeCache{m: map[int64]models.User{}})
	require.NoError(t, f.svc.Register(context.Background(), validInput("ada@example.com"), nil))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := f.svc.EditUser(ctx, "1")
	require.NoError(t, err)
	require.NotNil(t, res.User)
	assert.Equal(t, "ada@example.com", res.User.Email)
}

func TestHumanBytes(t *testing.T) {
	assert.Equal(t, "2 MB", humanBytes(2<<20))
	assert.Equal(t, "512 kB", humanBytes(512<<10))
	assert.Equal(t, "1000 bytes", humanBytes(1000))
}

type mockAvatars struct{ mock.Mock }

func (m *mockAvatars) Save(ctx context.Context, up storage.Upload) (string, error) {
	args := m.Called(ctx, up)
	return args.String(0), args.Error(1)
}

func (m *mockAvatars) Remove(ctx context.Context, name string) error {
	return m.Called(ctx, name).Error(0)
}

func TestUpdateUser_RemovesPreviousAvatarOnlyAfterCommit(t *testing.T) {
	ctx := context.Background()
	users := memory.NewUsers()
	u := models.NewUser(time.Now())
	u.FirstName, u.LastName, u.Email, u.Avatar = "Ada", "Lovelace", "ada@example.com", "old.png"
	require.NoError(t, users.Save(ctx, &u))

	avatars := &mockAvatars{}
	avatars.On("Save", mock.Anything, mock.Anything).Return("new.png", nil).Once()
	avatars.On("Remove", mock.Anything, "old.png").Return(nil).Once()

	svc := NewUserService(users, avatars, testConfig())
	res, err := svc.UpdateUser(ctx, "1", UserInput{}, png())
	require.NoError(t, err)
	assert.Equal(t, ok(MsgUpdated), res)
	avatars.AssertExpectations(t)

	stored, err := users.FindByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "new.png", stored.Avatar)
}

func TestUpdateUser_StorageFailureIsInternal(t *testing.T) {
	ctx := context.Background()
	users := memory.NewUsers()
	u := models.NewUser(time.Now())
	u.FirstName, u.LastName, u.Email = "Ada", "Lovelace", "ada@example.com"
	require.NoError(t, users.Save(ctx, &u))

	avatars := &mockAvatars{}
	avatars.On("Save", mock.Anything, mock.Anything).Return("", errors.New("disk full"))

	svc := NewUserService(users, avatars, testConfig())
	_, err := svc.UpdateUser(ctx, "1", UserInput{}, png())
	require.Error(t, err)
	var he *HTTPError
	assert.False(t, errors.As(err, &he))
	avatars.AssertNotCalled(t, "Remove", mock.Anything, mock.Anything)
}
