package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/cafezao-da-computacao/cafezao/internal/model"
	"github.com/cafezao-da-computacao/cafezao/internal/repository"
)

type fakeUsers struct {
	byID    map[string]*model.User
	byEmail map[string]*model.User
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{
		byID:    make(map[string]*model.User),
		byEmail: make(map[string]*model.User),
	}
}

func (f *fakeUsers) Create(_ context.Context, name, email, passwordHash string) (*model.User, error) {
	if _, ok := f.byEmail[email]; ok {
		return nil, repository.ErrDuplicateEmail
	}
	u := &model.User{
		ID:           uuid.New().String(),
		Name:         name,
		Email:        email,
		PasswordHash: passwordHash,
		Role:         model.RoleUser,
	}
	f.byID[u.ID] = u
	f.byEmail[email] = u
	return u, nil
}

func (f *fakeUsers) GetByID(_ context.Context, id string) (*model.User, error) {
	u, ok := f.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return u, nil
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*model.User, error) {
	u, ok := f.byEmail[email]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return u, nil
}

type fakeSessions struct {
	tokens  map[string]string
	expired map[string]bool
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{tokens: make(map[string]string), expired: make(map[string]bool)}
}

func (f *fakeSessions) Create(_ context.Context, token, userID string, _ time.Duration) error {
	f.tokens[token] = userID
	return nil
}

func (f *fakeSessions) Resolve(_ context.Context, token string) (string, error) {
	if f.expired[token] {
		return "", repository.ErrSessionExpired
	}
	userID, ok := f.tokens[token]
	if !ok {
		return "", repository.ErrNotFound
	}
	return userID, nil
}

func (f *fakeSessions) Delete(_ context.Context, token string) error {
	delete(f.tokens, token)
	return nil
}

func newTestAuth() (*Auth, *fakeUsers, *fakeSessions) {
	users := newFakeUsers()
	sessions := newFakeSessions()
	return New(users, sessions, bcrypt.MinCost, time.Hour), users, sessions
}

func TestRegisterAndLogin(t *testing.T) {
	a, _, _ := newTestAuth()
	ctx := context.Background()

	user, err := a.Register(ctx, model.RegisterRequest{
		Name:     "Ana",
		Email:    "Ana@Example.com",
		Password: "café-forte-123",
	})
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", user.Email)
	assert.NotEqual(t, "café-forte-123", user.PasswordHash)

	// Login is case-insensitive on the email.
	loggedIn, token, err := a.Login(ctx, model.LoginRequest{
		Email:    "ANA@example.com",
		Password: "café-forte-123",
	})
	require.NoError(t, err)
	assert.Equal(t, user.ID, loggedIn.ID)
	assert.NotEmpty(t, token)

	resolved, err := a.Authenticate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, resolved.ID)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	a, _, _ := newTestAuth()
	ctx := context.Background()

	_, err := a.Register(ctx, model.RegisterRequest{
		Name: "Ana", Email: "ana@example.com", Password: "café-forte-123",
	})
	require.NoError(t, err)

	_, _, err = a.Login(ctx, model.LoginRequest{Email: "ana@example.com", Password: "wrong"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, _, err = a.Login(ctx, model.LoginRequest{Email: "nobody@example.com", Password: "x"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthenticateExpiredSession(t *testing.T) {
	a, _, sessions := newTestAuth()
	sessions.tokens["tok"] = "u1"
	sessions.expired["tok"] = true

	_, err := a.Authenticate(context.Background(), "tok")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestLogoutInvalidatesToken(t *testing.T) {
	a, _, _ := newTestAuth()
	ctx := context.Background()

	_, err := a.Register(ctx, model.RegisterRequest{
		Name: "Ana", Email: "ana@example.com", Password: "café-forte-123",
	})
	require.NoError(t, err)
	_, token, err := a.Login(ctx, model.LoginRequest{Email: "ana@example.com", Password: "café-forte-123"})
	require.NoError(t, err)

	require.NoError(t, a.Logout(ctx, token))
	_, err = a.Authenticate(ctx, token)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestMiddlewareAttachesUser(t *testing.T) {
	a, users, sessions := newTestAuth()
	u := &model.User{ID: "u1", Name: "Ana", Role: model.RoleUser}
	users.byID["u1"] = u
	sessions.tokens["tok"] = "u1"

	var seen *model.User
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = UserFrom(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer tok")
	a.Middleware(next).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, seen)
	assert.Equal(t, "u1", seen.ID)
}

func TestMiddlewareRejectsMissingOrBadToken(t *testing.T) {
	a, _, _ := newTestAuth()
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	})

	for _, header := range []string{"", "Bearer unknown", "Basic abc"} {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		a.Middleware(next).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}
}

func TestRequireRole(t *testing.T) {
	gate := RequireRole(model.RoleAdmin)
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	cases := []struct {
		role model.Role
		want int
	}{
		{model.RoleUser, http.StatusForbidden},
		{model.RoleAdmin, http.StatusOK},
		{model.RoleSuperAdmin, http.StatusOK},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		ctx := context.WithValue(req.Context(), userKey, &model.User{ID: "u", Role: tc.role})
		gate(next).ServeHTTP(rec, req.WithContext(ctx))
		assert.Equal(t, tc.want, rec.Code, "role %s", tc.role)
	}
}
