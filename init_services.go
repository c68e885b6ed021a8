package main

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/akinalp/chatsync/api"
	"github.com/akinalp/chatsync/config"
	"github.com/akinalp/chatsync/pkg/metrics"
	"github.com/akinalp/chatsync/services"
	"github.com/akinalp/chatsync/ws"
)

// Services, service instance'larını tutan container struct.
type Services struct {
	API    *api.Client
	Guard  *services.SessionGuard
	Auth   *services.AuthService
	Dialer *ws.StompDialer
}

// initServices, network client'larını ve oturum service'lerini oluşturur.
//
// Sıralama: API client → Guard (refresher olarak API'yi alır) → API'ye
// token kaynağı olarak Guard bağlanır → AuthService.
func initServices(cfg *config.Config, repos *Repositories, log *zap.Logger, m *metrics.Metrics) (*Services, error) {
	client, err := api.NewClient(cfg.API.URL, cfg.API.RequestTimeout, log.Named("api"))
	if err != nil {
		return nil, fmt.Errorf("failed to create api client: %w", err)
	}

	guard := services.NewSessionGuard(client, cfg.Session.RefreshMargin, log.Named("guard"), m)
	client.SetTokenSource(guard)

	return &Services{
		API:    client,
		Guard:  guard,
		Auth:   services.NewAuthService(client, guard, repos.Session, log.Named("auth")),
		Dialer: ws.NewStompDialer(cfg.API.WSURL, log.Named("ws")),
	}, nil
}

// sessionConfig, config değerlerini session ayarlarına çevirir.
func sessionConfig(cfg *config.Config) services.SessionConfig {
	return services.SessionConfig{
		HistoryPageSize: cfg.Session.HistoryPageSize,
		TypingWindow:    cfg.Session.TypingWindow,
		TypingSweep:     cfg.Session.TypingSweep,
		TypingDebounce:  cfg.Session.TypingDebounce,
		MaxAttachments:  cfg.Session.MaxAttachments,
	}
}
