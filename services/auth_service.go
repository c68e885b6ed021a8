// Package services, client'ın iş kurallarını barındırır.
//
// Network (api, ws) ile rendering (CLI) arasında oturur:
//   - Login, token doğrulama ve refresh
//   - Aktif konuşmanın mesaj cache'i ve push bağlantısı
//   - Reaksiyon ve typing state'i
//
// Service ASLA HTTP veya STOMP detayı bilmez; collaborator'ları interface olarak alır.
package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/akinalp/chatsync/models"
	"github.com/akinalp/chatsync/pkg"
	"github.com/akinalp/chatsync/repository"
)

// AuthAPI, login akışının network tarafı. api.Client karşılar.
type AuthAPI interface {
	Login(ctx context.Context, username, password string) (string, error)
	Me(ctx context.Context) (*models.User, error)
}

// AuthService, login/logout ve kayıtlı oturumu geri yükleme akışı.
//
// Token önce SessionGuard'a kurulur (exp doğrulanır), sonra profil çekilir,
// en son diske yazılır. Diske yazılamaması login'i bozmaz, sadece loglanır.
type AuthService struct {
	api   AuthAPI
	guard *SessionGuard
	repo  repository.SessionRepository
	log   *zap.Logger
}

// NewAuthService, constructor. repo nil olabilir (kayıtsız oturum).
func NewAuthService(api AuthAPI, guard *SessionGuard, repo repository.SessionRepository, log *zap.Logger) *AuthService {
	return &AuthService{api: api, guard: guard, repo: repo, log: log}
}

// Login, kullanıcı adı/şifre ile oturum açar ve profili döner.
func (s *AuthService) Login(ctx context.Context, username, password string) (*models.User, error) {
	token, err := s.api.Login(ctx, username, password)
	if err != nil {
		return nil, err
	}

	cred, err := s.guard.Install(token)
	if err != nil {
		return nil, err
	}

	user, err := s.api.Me(ctx)
	if err != nil {
		s.guard.Clear()
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}

	if s.repo != nil {
		saved := &models.StoredSession{Username: user.Username, Token: cred.Token, ExpiresAt: cred.ExpiresAt}
		if err := s.repo.Save(ctx, saved); err != nil {
			s.log.Warn("failed to persist session", zap.Error(err))
		}
	}

	s.log.Info("logged in", zap.String("username", user.Username), zap.Time("expires_at", cred.ExpiresAt))
	return user, nil
}

// Restore, diskteki oturumu geri yükler.
//
// Kayıt yoksa, token süresi dolmuşsa veya sunucu artık kabul etmiyorsa
// ErrUnauthenticated döner ve kayıt silinir.
func (s *AuthService) Restore(ctx context.Context) (*models.User, error) {
	if s.repo == nil {
		return nil, fmt.Errorf("%w: no saved session", pkg.ErrUnauthenticated)
	}

	saved, err := s.repo.Load(ctx)
	if errors.Is(err, pkg.ErrNotFound) {
		return nil, fmt.Errorf("%w: no saved session", pkg.ErrUnauthenticated)
	}
	if err != nil {
		return nil, err
	}

	if _, err := s.guard.Install(saved.Token); err != nil {
		s.forget(ctx)
		return nil, err
	}

	// Margin içindeyse burada yenilenir; OnRefresh yeni token'ı diske yazar.
	if _, err := s.guard.EnsureValid(ctx); err != nil {
		if errors.Is(err, pkg.ErrUnauthenticated) {
			s.guard.Clear()
			s.forget(ctx)
		}
		return nil, err
	}

	user, err := s.api.Me(ctx)
	if err != nil {
		if errors.Is(err, pkg.ErrUnauthenticated) {
			s.guard.Clear()
			s.forget(ctx)
		}
		return nil, err
	}
	return user, nil
}

// Logout, credential'ı ve kayıtlı oturumu siler. Son scope korunur.
func (s *AuthService) Logout(ctx context.Context) error {
	s.guard.Clear()
	if s.repo == nil {
		return nil
	}
	if err := s.repo.Delete(ctx); err != nil {
		return err
	}
	s.log.Info("logged out")
	return nil
}

// PersistRefreshed, SessionGuard.OnRefresh'e bağlanır: yeni token diske yazılır.
func (s *AuthService) PersistRefreshed(cred models.SessionCredential) {
	if s.repo == nil {
		return
	}
	// Guard callback'i request ctx'i taşımaz; yazma kısa bir yerel işlem.
	if err := s.repo.UpdateToken(context.Background(), cred.Token, cred.ExpiresAt); err != nil && !errors.Is(err, pkg.ErrNotFound) {
		s.log.Warn("failed to persist refreshed token", zap.Error(err))
	}
}

// RememberScope, kullanıcının son seçtiği scope'u kaydeder.
func (s *AuthService) RememberScope(ctx context.Context, username string, scope models.ChatScope) {
	if s.repo == nil || scope.IsZero() {
		return
	}
	if err := s.repo.SaveLastScope(ctx, username, scope.String()); err != nil {
		s.log.Warn("failed to save last scope", zap.Error(err))
	}
}

// LastScope, kullanıcının kayıtlı son scope'u; yoksa ok=false.
func (s *AuthService) LastScope(ctx context.Context, username string) (models.ChatScope, bool) {
	if s.repo == nil {
		return models.ChatScope{}, false
	}
	raw, err := s.repo.LoadLastScope(ctx, username)
	if err != nil {
		return models.ChatScope{}, false
	}
	scope, err := models.ParseScope(raw)
	if err != nil {
		s.log.Warn("ignoring invalid saved scope", zap.String("scope", raw))
		return models.ChatScope{}, false
	}
	return scope, true
}

func (s *AuthService) forget(ctx context.Context) {
	if err := s.repo.Delete(ctx); err != nil {
		s.log.Warn("failed to delete saved session", zap.Error(err))
	}
}
