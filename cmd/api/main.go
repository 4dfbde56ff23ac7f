package main

import (
	"context"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/forensicnotes/server/internal/account"
	"github.com/forensicnotes/server/internal/auth"
	"github.com/forensicnotes/server/internal/config"
	"github.com/forensicnotes/server/internal/db"
	"github.com/forensicnotes/server/internal/events"
	httphandler "github.com/forensicnotes/server/internal/http"
	"github.com/forensicnotes/server/internal/http/handlers"
	"github.com/forensicnotes/server/internal/logging"
	"github.com/forensicnotes/server/internal/middleware"
	"github.com/forensicnotes/server/internal/repo"
	"github.com/forensicnotes/server/internal/repo/memstore"
	"github.com/forensicnotes/server/internal/repo/mongostore"
	"github.com/forensicnotes/server/internal/report"
)

// stores is the repository set selected by STORE_BACKEND
type stores struct {
	users    repo.UserRepo
	sessions repo.SessionRepo
	reports  repo.ReportRepo
	closers  []func()
}

func main() {
	// Load .env from CWD (env vars override)
	_ = godotenv.Load(".env")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger := logging.New(cfg.LogLevel, cfg.LogPretty)

	ctx := context.Background()

	st, err := openStores(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Str("backend", cfg.StoreBackend).Msg("failed to open store")
	}
	defer st.close()

	publisher := newPublisher(cfg, logger)
	defer publisher.Close()

	limiter, stopLimiter := newLimiter(cfg, logger)
	defer stopLimiter()

	// Initialize auth services
	hasher := auth.NewHasher(cfg.BcryptCost, cfg.SessionHashCost)
	jwtService := auth.NewJWTService(cfg.JWTSecret, cfg.JWTRefreshSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	credentials := auth.NewCredentials(st.users, hasher)
	sessions := auth.NewSessions(st.sessions, hasher)
	authService := auth.NewAuthService(jwtService, credentials, sessions, publisher, logger)

	purgeCtx, stopPurger := context.WithCancel(ctx)
	defer stopPurger()
	go auth.RunPurger(purgeCtx, sessions, cfg.SessionPurgeInterval, logger)

	router := httphandler.NewRouter(httphandler.RouterDeps{
		Env:        cfg.Env,
		Logger:     logger,
		Tokens:     jwtService,
		Users:      credentials,
		Limiter:    limiter,
		TrustProxy: cfg.TrustProxy,
		Auth:       handlers.NewAuthHandler(authService),
		Accounts:   handlers.NewUserHandler(account.NewService(credentials, sessions, publisher, logger)),
		Reports:    handlers.NewReportHandler(report.NewService(st.reports, publisher, logger)),
	})

	// Create HTTP server with timeouts
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info().Str("port", cfg.Port).Str("env", cfg.Env).Str("backend", cfg.StoreBackend).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	stopPurger()

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server exited")
}

func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	switch cfg.StoreBackend {
	case config.BackendMongo:
		client, database, err := mongostore.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		ms, err := mongostore.NewStores(ctx, database)
		if err != nil {
			_ = client.Disconnect(context.Background())
			return nil, err
		}
		return &stores{
			users:    ms.Users,
			sessions: ms.Sessions,
			reports:  ms.Reports,
			closers:  []func(){func() { _ = client.Disconnect(context.Background()) }},
		}, nil

	case config.BackendMemory:
		sessions := memstore.NewSessionRepo()
		return &stores{
			users:    memstore.NewUserRepo(),
			sessions: sessions,
			reports:  memstore.NewReportRepo(),
			closers:  []func(){func() { _ = sessions.Close() }},
		}, nil

	default:
		database, err := db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := db.RunMigrations(database); err != nil {
			_ = database.Close()
			return nil, err
		}
		return &stores{
			users:    repo.NewUserRepo(database),
			sessions: repo.NewSessionRepo(database),
			reports:  repo.NewReportRepo(database),
			closers:  []func(){func() { _ = database.Close() }},
		}, nil
	}
}

func (s *stores) close() {
	for _, c := range s.closers {
		c()
	}
}

type closingPublisher interface {
	events.Publisher
	io.Closer
}

type nopCloser struct{ events.Nop }

func (nopCloser) Close() error { return nil }

// newPublisher publishes audit events to RabbitMQ when AMQP_URL is set
func newPublisher(cfg *config.Config, logger zerolog.Logger) closingPublisher {
	if cfg.AMQPURL == "" {
		return nopCloser{}
	}
	p, err := events.NewAMQPPublisher(cfg.AMQPURL, cfg.AuditQueue)
	if err != nil {
		logger.Warn().Err(err).Msg("audit broker unavailable, events disabled")
		return nopCloser{}
	}
	logger.Info().Str("queue", cfg.AuditQueue).Msg("audit events enabled")
	return p
}

// newLimiter prefers the shared Redis bucket and falls back to the in-process window
func newLimiter(cfg *config.Config, logger zerolog.Logger) (middleware.Limiter, func()) {
	if cfg.RedisAddr != "" {
		if rdb := middleware.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB); rdb != nil {
			logger.Info().Str("addr", cfg.RedisAddr).Msg("using redis rate limiter")
			return middleware.NewRedisLimiter(rdb, "ratelimit:auth", cfg.RateLimitWindow, cfg.RateLimitMax),
				func() { _ = rdb.Close() }
		}
	}
	rl := middleware.NewRateLimiter(cfg.RateLimitWindow, cfg.RateLimitMax)
	return rl, rl.Stop
}
