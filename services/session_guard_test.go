package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/akinalp/chatsync/models"
	"github.com/akinalp/chatsync/pkg"
	"github.com/akinalp/chatsync/pkg/metrics"
)

func makeToken(t *testing.T, sub string, exp time.Time) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": sub,
		"exp": exp.Unix(),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

// blockingRefresher, release kapanana kadar bekler ve çağrı sayısını tutar.
type blockingRefresher struct {
	calls   atomic.Int32
	entered chan struct{}
	release chan struct{}
	token   string
	err     error
}

func (r *blockingRefresher) Refresh(ctx context.Context, token string) (string, error) {
	r.calls.Add(1)
	if r.entered != nil {
		select {
		case r.entered <- struct{}{}:
		default:
		}
	}
	if r.release != nil {
		<-r.release
	}
	return r.token, r.err
}

func newTestGuard(r Refresher) *SessionGuard {
	return NewSessionGuard(r, 5*time.Minute, zap.NewNop(), metrics.New())
}

func TestEnsureValid_NoCredential(t *testing.T) {
	g := newTestGuard(&blockingRefresher{})
	_, err := g.EnsureValid(context.Background())
	assert.ErrorIs(t, err, pkg.ErrUnauthenticated)
}

func TestEnsureValid_FreshCredentialSkipsRefresh(t *testing.T) {
	r := &blockingRefresher{}
	g := newTestGuard(r)

	_, err := g.Install(makeToken(t, "alice", time.Now().Add(time.Hour)))
	require.NoError(t, err)

	cred, err := g.EnsureValid(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "alice", cred.Subject)
	assert.Zero(t, r.calls.Load())
}

func TestEnsureValid_ConcurrentCallersShareOneRefresh(t *testing.T) {
	fresh := makeToken(t, "alice", time.Now().Add(time.Hour))
	r := &blockingRefresher{
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
		token:   fresh,
	}
	g := newTestGuard(r)

	var refreshed atomic.Int32
	g.OnRefresh(func(models.SessionCredential) { refreshed.Add(1) })

	_, err := g.Install(makeToken(t, "alice", time.Now().Add(4*time.Minute)))
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]models.SessionCredential, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = g.EnsureValid(context.Background())
		}(i)
	}

	<-r.entered
	time.Sleep(20 * time.Millisecond)
	close(r.release)
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, int32(1), r.calls.Load(), "exactly one network refresh")
	assert.Equal(t, int32(1), refreshed.Load())
	assert.Equal(t, fresh, results[0].Token)
	assert.Equal(t, fresh, results[1].Token)

	cred, ok := g.Credential()
	require.True(t, ok)
	assert.Equal(t, fresh, cred.Token)
}

func TestEnsureValid_RefreshFailureKeepsOldCredential(t *testing.T) {
	old := makeToken(t, "alice", time.Now().Add(2*time.Minute))
	r := &blockingRefresher{err: errors.New("connection refused")}
	g := newTestGuard(r)

	_, err := g.Install(old)
	require.NoError(t, err)

	_, err = g.EnsureValid(context.Background())
	assert.ErrorIs(t, err, pkg.ErrUnauthenticated)

	cred, ok := g.Credential()
	require.True(t, ok)
	assert.Equal(t, old, cred.Token)
}

func TestEnsureValid_RejectsExpiredRefreshResult(t *testing.T) {
	old := makeToken(t, "alice", time.Now().Add(time.Minute))
	r := &blockingRefresher{token: makeToken(t, "alice", time.Now().Add(-time.Minute))}
	g := newTestGuard(r)

	_, err := g.Install(old)
	require.NoError(t, err)

	_, err = g.EnsureValid(context.Background())
	assert.ErrorIs(t, err, pkg.ErrUnauthenticated)

	cred, _ := g.Credential()
	assert.Equal(t, old, cred.Token)
}

func TestEnsureValid_LogoutDuringRefreshDiscardsResult(t *testing.T) {
	r := &blockingRefresher{
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
		token:   makeToken(t, "alice", time.Now().Add(time.Hour)),
	}
	g := newTestGuard(r)
	_, err := g.Install(makeToken(t, "alice", time.Now().Add(time.Minute)))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := g.EnsureValid(context.Background())
		done <- err
	}()

	<-r.entered
	g.Clear()
	close(r.release)

	assert.ErrorIs(t, <-done, pkg.ErrUnauthenticated)
	_, ok := g.Credential()
	assert.False(t, ok)
}

func TestParseCredential(t *testing.T) {
	now := time.Now()

	cred, err := ParseCredential(makeToken(t, "bob", now.Add(time.Hour)), now)
	require.NoError(t, err)
	assert.Equal(t, "bob", cred.Subject)
	assert.WithinDuration(t, now.Add(time.Hour), cred.ExpiresAt, time.Second)

	_, err = ParseCredential(makeToken(t, "bob", now.Add(-time.Second)), now)
	assert.ErrorIs(t, err, pkg.ErrUnauthenticated)

	_, err = ParseCredential("not-a-jwt", now)
	assert.ErrorIs(t, err, pkg.ErrUnauthenticated)

	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "bob"}).SignedString([]byte("k"))
	require.NoError(t, err)
	_, err = ParseCredential(noExp, now)
	assert.ErrorIs(t, err, pkg.ErrUnauthenticated)
}

func TestInstall_RejectsExpiredLogin(t *testing.T) {
	g := newTestGuard(&blockingRefresher{})
	_, err := g.Install(makeToken(t, "alice", time.Now().Add(-time.Hour)))
	assert.ErrorIs(t, err, pkg.ErrUnauthenticated)

	_, ok := g.Token()
	assert.False(t, ok)
}

func TestEnsureValid_CallerCancelDoesNotFailOthers(t *testing.T) {
	fresh := makeToken(t, "alice", time.Now().Add(time.Hour))
	r := &blockingRefresher{
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
		token:   fresh,
	}
	g := newTestGuard(r)
	_, err := g.Install(makeToken(t, "alice", time.Now().Add(time.Minute)))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := g.EnsureValid(ctx)
		first <- err
	}()
	<-r.entered

	second := make(chan models.SessionCredential, 1)
	go func() {
		cred, err := g.EnsureValid(context.Background())
		assert.NoError(t, err)
		second <- cred
	}()

	cancel()
	err = <-first
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, pkg.ErrUnauthenticated, "own cancellation must not force a login")

	close(r.release)
	assert.Equal(t, fresh, (<-second).Token)
	assert.Equal(t, int32(1), r.calls.Load())
}

func TestEnsureValid_RefreshTimeoutIsTransport(t *testing.T) {
	r := &blockingRefresher{err: context.DeadlineExceeded}
	g := newTestGuard(r)
	_, err := g.Install(makeToken(t, "alice", time.Now().Add(time.Minute)))
	require.NoError(t, err)

	_, err = g.EnsureValid(context.Background())
	assert.ErrorIs(t, err, pkg.ErrTransport)
	assert.NotErrorIs(t, err, pkg.ErrUnauthenticated)
}
