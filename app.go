package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/akinalp/chatsync/config"
	"github.com/akinalp/chatsync/database"
	"github.com/akinalp/chatsync/models"
	"github.com/akinalp/chatsync/pkg/logger"
	"github.com/akinalp/chatsync/pkg/metrics"
	"github.com/akinalp/chatsync/services"
)

// app, bir komut çalışırken yaşayan tüm bağımlılıklar.
type app struct {
	cfg     *config.Config
	log     *zap.Logger
	metrics *metrics.Metrics
	db      *database.DB
	repos   *Repositories
	svcs    *Services
	srv     *http.Server
}

// bootstrap, wire-up'ı yapar. Çağıran Close'u defer etmeli.
func bootstrap(cmd *cobra.Command) (*app, error) {
	configPath, _ := cmd.Flags().GetString("config")

	// ─── 1. Config ───
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// ─── 2. Logger ───
	log, err := logger.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return nil, err
	}

	// ─── 3. Database ───
	migrations, err := fs.Sub(database.EmbeddedMigrations, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	db, err := database.New(cfg.Database.Path, migrations, log.Named("database"))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// ─── 4-6. Repository, Service, Callback ───
	m := metrics.New()
	repos := initRepositories(db.Conn)
	svcs, err := initServices(cfg, repos, log, m)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	initCallbacks(svcs)

	a := &app{cfg: cfg, log: log, metrics: m, db: db, repos: repos, svcs: svcs}

	// ─── 7. Metrics ───
	if cfg.Metrics.Addr != "" {
		a.srv = &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           initRoutes(m),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.Info("metrics listening", zap.String("addr", cfg.Metrics.Addr))
			if err := a.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server error", zap.Error(err))
			}
		}()
	}

	return a, nil
}

// Close, kaynakları ters sırada kapatır.
func (a *app) Close() {
	if a.srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = a.srv.Shutdown(ctx)
		cancel()
	}
	if err := a.db.Close(); err != nil {
		a.log.Warn("failed to close database", zap.Error(err))
	}
	_ = a.log.Sync()
}

// newSession, giriş yapmış kullanıcı için session kurar ve Run'ı başlatır.
// Dönen done kanalı Run bitince kapanır.
func (a *app) newSession(ctx context.Context, user models.User) (*services.Session, <-chan struct{}) {
	session := services.NewSession(user, services.SessionDeps{
		Guard:    a.svcs.Guard,
		History:  a.svcs.API,
		Uploader: a.svcs.API,
		Dialer:   a.svcs.Dialer,
		Log:      a.log.Named("session"),
		Metrics:  a.metrics,
	}, sessionConfig(a.cfg))
	initSessionCallbacks(a.svcs, session, user)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := session.Run(ctx); err != nil {
			a.log.Error("session stopped", zap.Error(err))
		}
	}()
	return session, done
}
