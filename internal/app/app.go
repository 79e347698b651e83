// Package app assembles the configured server: registry load, session store,
// ephemeral database, services, HTTP router and the expiry sweeper.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/legalsandbox/research-backend/internal/config"
	"github.com/legalsandbox/research-backend/internal/domain"
	"github.com/legalsandbox/research-backend/internal/http/handler"
	"github.com/legalsandbox/research-backend/internal/http/middleware"
	"github.com/legalsandbox/research-backend/internal/http/router"
	"github.com/legalsandbox/research-backend/internal/llm"
	"github.com/legalsandbox/research-backend/internal/observability"
	"github.com/legalsandbox/research-backend/internal/registry"
	"github.com/legalsandbox/research-backend/internal/repository"
	"github.com/legalsandbox/research-backend/internal/security"
	"github.com/legalsandbox/research-backend/internal/service"
	"github.com/legalsandbox/research-backend/internal/store"
)

type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	Server        *http.Server
	Sweeper       *store.Sweeper
	Observability *observability.Runtime

	redis *redis.Client
}

// Build wires the whole application from configuration. The session registry
// is read exactly once here; a missing or unreadable registry is fatal in the
// container profile and an empty store otherwise.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger, runtime *observability.Runtime) (*App, error) {
	sessions, err := loadRegistry(cfg, logger)
	if err != nil {
		return nil, err
	}
	sessionStore := store.NewSessionStore(sessions)
	logger.Info("session registry loaded",
		"path", cfg.SessionRegistryPath,
		"sessions", sessionStore.Len(),
	)

	db, err := repository.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open ephemeral database: %w", err)
	}
	repo := repository.NewEphemeralRepository(db)

	tokens := security.NewTokenManager(cfg.TokenIssuer, cfg.TokenAudience, cfg.SigningSecret)
	authService := service.NewAuthService(sessionStore, tokens, repo, cfg.SessionTTLHours(), logger)
	documentService := service.NewDocumentService(repo, cfg.UploadDir, cfg.MaxUploadBytes, cfg.AllowedFileTypes)
	chatService := service.NewChatService(repo, llm.NewOllamaClient(cfg))
	exportService := service.NewExportService(sessionStore, repo)

	app := &App{
		Config:        cfg,
		Logger:        logger,
		Observability: runtime,
		Sweeper:       store.NewSweeper(sessionStore, repo, cfg.SweepInterval, logger),
	}

	var limiter middleware.Limiter
	if cfg.RedisAddr != "" {
		app.redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		limiter = middleware.NewRedisLimiter(app.redis, "sandbox:ratelimit")
	} else {
		limiter = middleware.NewLocalLimiter()
	}

	mux := router.NewRouter(router.Dependencies{
		AuthHandler:      handler.NewAuthHandler(authService),
		DocumentHandler:  handler.NewDocumentHandler(documentService),
		ChatHandler:      handler.NewChatHandler(chatService),
		ExportHandler:    handler.NewExportHandler(exportService),
		TokenManager:     tokens,
		SessionStore:     sessionStore,
		Logger:           logger,
		CORSOrigins:      cfg.CORSOrigins,
		MaxUploadBytes:   cfg.MaxUploadBytes,
		APIRateLimitRPM:  cfg.APIRateLimitRPM,
		AuthRateLimitRPM: cfg.AuthRateLimitRPM,
		RateLimiter:      limiter,
		EnableOTelHTTP:   cfg.EnableOTelHTTP,
	})

	app.Server = &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return app, nil
}

func loadRegistry(cfg *config.Config, logger *slog.Logger) ([]domain.Session, error) {
	sessions, err := registry.Load(cfg.SessionRegistryPath)
	if err == nil {
		return sessions, nil
	}
	// A malformed registry is a provisioning bug in any profile. Only a
	// missing file is tolerated, and only outside the container profile.
	if cfg.Profile == config.ProfileContainer || !errors.Is(err, registry.ErrNotFound) {
		return nil, fmt.Errorf("load session registry: %w", err)
	}
	logger.Warn("session registry missing, starting with no sessions",
		"path", cfg.SessionRegistryPath,
		"error", err,
	)
	return nil, nil
}

// Run serves HTTP and runs the expiry sweeper until ctx is cancelled, then
// drains in-flight requests and shuts the observability pipeline down.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.Info("http server listening", "addr", a.Server.Addr, "profile", a.Config.Profile)
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		a.Sweeper.Run(gctx)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		drainCtx, cancel := context.WithTimeout(context.Background(), a.Config.ShutdownHTTPDrainTimeout)
		defer cancel()
		if err := a.Server.Shutdown(drainCtx); err != nil {
			a.Logger.Warn("http drain incomplete", "error", err)
			_ = a.Server.Close()
		}
		return nil
	})

	err := g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.ShutdownTimeout)
	defer cancel()
	if a.redis != nil {
		if cerr := a.redis.Close(); cerr != nil {
			a.Logger.Warn("close redis client", "error", cerr)
		}
	}
	if a.Observability != nil {
		if oerr := a.Observability.Shutdown(shutdownCtx); oerr != nil {
			a.Logger.Warn("observability shutdown incomplete", "error", oerr)
		}
	}
	return err
}
