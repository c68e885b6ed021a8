package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/akinalp/chatsync/models"
	"github.com/akinalp/chatsync/pkg"
	"github.com/akinalp/chatsync/pkg/metrics"
)

// DefaultRefreshMargin, token'ın bu süreden az ömrü kaldıysa yenilenir.
const DefaultRefreshMargin = 5 * time.Minute

// refreshTimeout, paylaşılan refresh çağrısının üst sınırı. Flight hiçbir
// çağıranın context'ine bağlı değildir; bu yüzden kendi süresi vardır.
const refreshTimeout = 15 * time.Second

// Refresher, mevcut token ile yeni token alan network çağrısı.
type Refresher interface {
	Refresh(ctx context.Context, token string) (string, error)
}

// SessionGuard, canlı credential'ın tek sahibidir.
//
// Kurallar:
//   - Credential yoksa EnsureValid ErrUnauthenticated döner.
//   - Kalan ömür < margin ise refresh yapılır. Eşzamanlı çağıranlar aynı
//     refresh'i bekler (singleflight), ağa tek istek çıkar.
//   - Yeni token parse edilip doğrulanmadan eskisinin yerine geçmez.
//   - Refresh başarısızsa eski credential yerinde kalır, ama bu çağrı için
//     geçersiz sayılır: çağıran korunan işlemi yapmamalıdır.
//   - Bir çağıranın iptali sadece onu etkiler; paylaşılan refresh sürer ve
//     bekleyen diğer çağıranlar sonucunu alır.
type SessionGuard struct {
	mu   sync.RWMutex
	cred *models.SessionCredential

	refresher Refresher
	margin    time.Duration
	now       func() time.Time
	group     singleflight.Group

	onRefresh func(models.SessionCredential)

	log     *zap.Logger
	metrics *metrics.Metrics
}

// NewSessionGuard, guard oluşturur. margin <= 0 → DefaultRefreshMargin.
func NewSessionGuard(refresher Refresher, margin time.Duration, log *zap.Logger, m *metrics.Metrics) *SessionGuard {
	if margin <= 0 {
		margin = DefaultRefreshMargin
	}
	return &SessionGuard{
		refresher: refresher,
		margin:    margin,
		now:       time.Now,
		log:       log,
		metrics:   m,
	}
}

// OnRefresh, başarılı refresh sonrası çağrılacak callback (ör. token'ı diske yazmak).
func (g *SessionGuard) OnRefresh(fn func(models.SessionCredential)) {
	g.onRefresh = fn
}

// ParseCredential, token'ın claim'lerini imza doğrulamadan okur.
//
// İmza sunucunun işidir; client sadece "exp" ve "sub"'a bakar. exp yoksa,
// token parse edilemiyorsa veya exp geçmişse login/refresh akışı reddedilir.
func ParseCredential(token string, now time.Time) (models.SessionCredential, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return models.SessionCredential{}, fmt.Errorf("%w: malformed token: %v", pkg.ErrUnauthenticated, err)
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return models.SessionCredential{}, fmt.Errorf("%w: invalid exp claim: %v", pkg.ErrUnauthenticated, err)
	}
	if exp == nil {
		return models.SessionCredential{}, fmt.Errorf("%w: token has no expiry", pkg.ErrUnauthenticated)
	}
	if !exp.After(now) {
		return models.SessionCredential{}, fmt.Errorf("%w: token already expired at %s", pkg.ErrUnauthenticated, exp.Format(time.RFC3339))
	}

	sub, _ := claims.GetSubject()
	return models.SessionCredential{Token: token, ExpiresAt: exp.Time, Subject: sub}, nil
}

// Install, login veya diskten geri yüklemede gelen token'ı doğrulayıp canlı credential yapar.
func (g *SessionGuard) Install(token string) (models.SessionCredential, error) {
	cred, err := ParseCredential(token, g.now())
	if err != nil {
		return models.SessionCredential{}, err
	}

	g.mu.Lock()
	g.cred = &cred
	g.mu.Unlock()
	return cred, nil
}

// Clear, credential'ı siler (logout).
func (g *SessionGuard) Clear() {
	g.mu.Lock()
	g.cred = nil
	g.mu.Unlock()
}

// Credential, canlı credential'ın kopyası.
func (g *SessionGuard) Credential() (models.SessionCredential, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.cred == nil {
		return models.SessionCredential{}, false
	}
	return *g.cred, true
}

// Token, api.TokenSource için, refresh yapmaz.
func (g *SessionGuard) Token() (string, bool) {
	cred, ok := g.Credential()
	return cred.Token, ok
}

// EnsureValid, korunan bir işlemden önce çağrılır; geçerli credential'ı döner.
func (g *SessionGuard) EnsureValid(ctx context.Context) (models.SessionCredential, error) {
	cred, ok := g.Credential()
	if !ok {
		return models.SessionCredential{}, fmt.Errorf("%w: not logged in", pkg.ErrUnauthenticated)
	}
	if !cred.ExpiresWithin(g.now(), g.margin) {
		return cred, nil
	}

	// Aynı anda gelen çağrılar tek refresh'i paylaşır.
	ch := g.group.DoChan("refresh", func() (any, error) {
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()
		return g.refresh(flightCtx)
	})

	select {
	case <-ctx.Done():
		return models.SessionCredential{}, ctx.Err()
	case res := <-ch:
		if res.Shared {
			g.log.Debug("joined in-flight refresh")
		}
		if res.Err != nil {
			return models.SessionCredential{}, res.Err
		}
		return res.Val.(models.SessionCredential), nil
	}
}

// refresh, singleflight içinde çalışır.
func (g *SessionGuard) refresh(ctx context.Context) (models.SessionCredential, error) {
	// Önceki bir flight az önce yenilemiş olabilir.
	current, ok := g.Credential()
	if !ok {
		return models.SessionCredential{}, fmt.Errorf("%w: logged out during refresh", pkg.ErrUnauthenticated)
	}
	if !current.ExpiresWithin(g.now(), g.margin) {
		return current, nil
	}

	g.log.Info("refreshing credential", zap.Time("expires_at", current.ExpiresAt))

	token, err := g.refresher.Refresh(ctx, current.Token)
	if err != nil {
		g.count("failed")
		g.log.Warn("credential refresh failed", zap.Error(err))
		if errors.Is(err, pkg.ErrUnauthenticated) {
			return models.SessionCredential{}, err
		}
		// Zaman aşımı oturumun geçersiz olduğunu göstermez; login istenmez.
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return models.SessionCredential{}, fmt.Errorf("%w: refresh: %w", pkg.ErrTransport, err)
		}
		return models.SessionCredential{}, fmt.Errorf("%w: refresh failed: %w", pkg.ErrUnauthenticated, err)
	}

	next, err := ParseCredential(token, g.now())
	if err != nil {
		g.count("rejected")
		g.log.Warn("refreshed token rejected", zap.Error(err))
		return models.SessionCredential{}, err
	}

	g.mu.Lock()
	if g.cred == nil || g.cred.Token != current.Token {
		// Refresh sürerken logout veya yeni login oldu; sonucu uygulama.
		g.mu.Unlock()
		g.count("discarded")
		return models.SessionCredential{}, fmt.Errorf("%w: credential changed during refresh", pkg.ErrUnauthenticated)
	}
	g.cred = &next
	g.mu.Unlock()

	g.count("ok")
	if g.onRefresh != nil {
		g.onRefresh(next)
	}
	return next, nil
}

func (g *SessionGuard) count(result string) {
	if g.metrics != nil {
		g.metrics.Refreshes.WithLabelValues(result).Inc()
	}
}
