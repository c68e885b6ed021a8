package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/akinalp/chatsync/models"
	"github.com/akinalp/chatsync/pkg"
)

type fakeAuthAPI struct {
	token  string
	err    error
	user   *models.User
	meErr  error
	logins int
}

func (a *fakeAuthAPI) Login(ctx context.Context, username, password string) (string, error) {
	a.logins++
	return a.token, a.err
}

func (a *fakeAuthAPI) Me(ctx context.Context) (*models.User, error) {
	return a.user, a.meErr
}

// memSessionRepo, SessionRepository'nin bellek içi sahte implementasyonu.
type memSessionRepo struct {
	mu     sync.Mutex
	saved  *models.StoredSession
	scopes map[string]string
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{scopes: make(map[string]string)}
}

func (r *memSessionRepo) Save(ctx context.Context, s *models.StoredSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.saved = &cp
	return nil
}

func (r *memSessionRepo) Load(ctx context.Context) (*models.StoredSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saved == nil {
		return nil, pkg.ErrNotFound
	}
	cp := *r.saved
	return &cp, nil
}

func (r *memSessionRepo) UpdateToken(ctx context.Context, token string, exp time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saved == nil {
		return pkg.ErrNotFound
	}
	r.saved.Token, r.saved.ExpiresAt = token, exp
	return nil
}

func (r *memSessionRepo) Delete(ctx context.Context) error {
	r.mu.Lock()
	r.saved = nil
	r.mu.Unlock()
	return nil
}

func (r *memSessionRepo) SaveLastScope(ctx context.Context, username, scope string) error {
	r.mu.Lock()
	r.scopes[username] = scope
	r.mu.Unlock()
	return nil
}

func (r *memSessionRepo) LoadLastScope(ctx context.Context, username string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	scope, ok := r.scopes[username]
	if !ok {
		return "", pkg.ErrNotFound
	}
	return scope, nil
}

func newTestAuth(api *fakeAuthAPI, refresher Refresher, repo *memSessionRepo) (*AuthService, *SessionGuard) {
	guard := newTestGuard(refresher)
	auth := NewAuthService(api, guard, repo, zap.NewNop())
	guard.OnRefresh(auth.PersistRefreshed)
	return auth, guard
}

func TestAuth_LoginInstallsAndPersists(t *testing.T) {
	token := makeToken(t, "amy", time.Now().Add(time.Hour))
	api := &fakeAuthAPI{token: token, user: &models.User{ID: 2, Username: "amy"}}
	repo := newMemSessionRepo()
	auth, guard := newTestAuth(api, &blockingRefresher{}, repo)

	user, err := auth.Login(context.Background(), "amy", "pw")
	require.NoError(t, err)
	assert.Equal(t, "amy", user.Username)

	cred, ok := guard.Credential()
	require.True(t, ok)
	assert.Equal(t, token, cred.Token)

	saved, err := repo.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, token, saved.Token)
	assert.Equal(t, "amy", saved.Username)
}

func TestAuth_LoginRejectsExpiredToken(t *testing.T) {
	api := &fakeAuthAPI{token: makeToken(t, "amy", time.Now().Add(-time.Minute)), user: &models.User{ID: 2}}
	repo := newMemSessionRepo()
	auth, guard := newTestAuth(api, &blockingRefresher{}, repo)

	_, err := auth.Login(context.Background(), "amy", "pw")
	assert.ErrorIs(t, err, pkg.ErrUnauthenticated)
	_, ok := guard.Credential()
	assert.False(t, ok)
	assert.Nil(t, repo.saved)
}

func TestAuth_LoginProfileFailureClearsCredential(t *testing.T) {
	api := &fakeAuthAPI{
		token: makeToken(t, "amy", time.Now().Add(time.Hour)),
		meErr: fmt.Errorf("%w: status 500", pkg.ErrRequestFailed),
	}
	auth, guard := newTestAuth(api, &blockingRefresher{}, newMemSessionRepo())

	_, err := auth.Login(context.Background(), "amy", "pw")
	assert.ErrorIs(t, err, pkg.ErrRequestFailed)
	_, ok := guard.Credential()
	assert.False(t, ok)
}

func TestAuth_RestoreRefreshesNearExpiry(t *testing.T) {
	fresh := makeToken(t, "amy", time.Now().Add(2*time.Hour))
	repo := newMemSessionRepo()
	repo.saved = &models.StoredSession{Username: "amy", Token: makeToken(t, "amy", time.Now().Add(time.Minute))}

	api := &fakeAuthAPI{user: &models.User{ID: 2, Username: "amy"}}
	auth, guard := newTestAuth(api, &blockingRefresher{token: fresh}, repo)

	user, err := auth.Restore(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), user.ID)

	cred, _ := guard.Credential()
	assert.Equal(t, fresh, cred.Token)
	assert.Equal(t, fresh, repo.saved.Token, "refreshed token is written back")
}

func TestAuth_RestoreWithoutSavedSession(t *testing.T) {
	auth, _ := newTestAuth(&fakeAuthAPI{}, &blockingRefresher{}, newMemSessionRepo())
	_, err := auth.Restore(context.Background())
	assert.ErrorIs(t, err, pkg.ErrUnauthenticated)
}

func TestAuth_RestoreExpiredForgetsSession(t *testing.T) {
	repo := newMemSessionRepo()
	repo.saved = &models.StoredSession{Username: "amy", Token: makeToken(t, "amy", time.Now().Add(-time.Hour))}
	auth, _ := newTestAuth(&fakeAuthAPI{}, &blockingRefresher{}, repo)

	_, err := auth.Restore(context.Background())
	assert.ErrorIs(t, err, pkg.ErrUnauthenticated)
	assert.Nil(t, repo.saved)
}

func TestAuth_RestoreRejectedByServer(t *testing.T) {
	repo := newMemSessionRepo()
	repo.saved = &models.StoredSession{Username: "amy", Token: makeToken(t, "amy", time.Now().Add(time.Hour))}
	api := &fakeAuthAPI{meErr: fmt.Errorf("%w: status 401", pkg.ErrUnauthenticated)}
	auth, guard := newTestAuth(api, &blockingRefresher{}, repo)

	_, err := auth.Restore(context.Background())
	assert.ErrorIs(t, err, pkg.ErrUnauthenticated)
	assert.Nil(t, repo.saved)
	_, ok := guard.Credential()
	assert.False(t, ok)
}

func TestAuth_LogoutKeepsLastScope(t *testing.T) {
	repo := newMemSessionRepo()
	api := &fakeAuthAPI{token: makeToken(t, "amy", time.Now().Add(time.Hour)), user: &models.User{ID: 2, Username: "amy"}}
	auth, guard := newTestAuth(api, &blockingRefresher{}, repo)
	ctx := context.Background()

	_, err := auth.Login(ctx, "amy", "pw")
	require.NoError(t, err)
	auth.RememberScope(ctx, "amy", models.DirectMessageScope(9))

	require.NoError(t, auth.Logout(ctx))
	_, ok := guard.Credential()
	assert.False(t, ok)
	assert.Nil(t, repo.saved)

	scope, ok := auth.LastScope(ctx, "amy")
	assert.True(t, ok)
	assert.Equal(t, models.DirectMessageScope(9), scope)

	repo.scopes["bob"] = "garbage"
	_, ok = auth.LastScope(ctx, "bob")
	assert.False(t, ok)
}
