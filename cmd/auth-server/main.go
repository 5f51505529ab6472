// Command auth-server starts the authentication and user management HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/sukryu/auth-service/internal/audit"
	"github.com/sukryu/auth-service/internal/cache"
	"github.com/sukryu/auth-service/internal/config"
	pkgcrypto "github.com/sukryu/auth-service/internal/crypto"
	"github.com/sukryu/auth-service/internal/errs"
	"github.com/sukryu/auth-service/internal/limiter"
	"github.com/sukryu/auth-service/internal/logger"
	"github.com/sukryu/auth-service/internal/migrate"
	"github.com/sukryu/auth-service/internal/repository/postgres"
	httpserver "github.com/sukryu/auth-service/internal/server/http"
	"github.com/sukryu/auth-service/internal/service"
	"github.com/sukryu/auth-service/internal/token"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// main loads configuration, runs migrations, and serves the API until SIGINT/SIGTERM.
func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogDev)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()
	log.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.HTTPAddr),
	)

	// Context with OS signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server error", zap.Error(err))
		os.Exit(1)
	}
	log.Info("shutdown complete")
}

func run(ctx context.Context, cfg config.Config, log *zap.Logger) error {
	if err := migrate.Up(ctx, cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migrate up: %w", err)
	}

	db, err := postgres.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	rdb, err := cache.Dial(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return err
	}
	defer rdb.Close()

	var pub audit.Publisher = audit.Nop{}
	if cfg.AMQPURL != "" {
		a, err := audit.DialAMQP(cfg.AMQPURL, audit.DefaultQueue)
		if err != nil {
			return err
		}
		defer a.Close()
		pub = a
	} else {
		log.Info("audit publishing disabled")
	}

	var lim limiter.Limiter = limiter.Nop{}
	if cfg.LoginMaxFails > 0 {
		lim = limiter.NewPG(db.Pool, cfg.LoginWindow, cfg.LoginMaxFails, cfg.LoginBlockFor)
	}

	hasher, err := pkgcrypto.NewPasswordHasher(cfg.BcryptCost)
	if err != nil {
		return err
	}

	// Repositories
	userRepo := postgres.NewUserRepo(db)
	roleRepo := postgres.NewRoleRepo(db)
	revokedRepo := postgres.NewRevokedTokenRepo(db)

	tokens, err := token.New(token.Config{
		AccessSecret:  []byte(cfg.AccessSecret),
		RefreshSecret: []byte(cfg.RefreshSecret),
		AccessTTL:     cfg.AccessTTL,
		RefreshTTL:    cfg.RefreshTTL,
	}, revokedRepo)
	if err != nil {
		return err
	}

	// Services
	users := service.NewUserService(userRepo, cache.NewRedis(rdb), hasher, cfg.UserCacheTTL, log)
	roles := service.NewRoleService(roleRepo, users, pub, log)
	if email := cfg.BootstrapSuperAdmin; email != "" {
		u, err := roles.BootstrapSuperAdmin(ctx, email)
		switch {
		case errors.Is(err, errs.ErrNotFound):
			log.Warn("bootstrap superadmin: no active user with that email; register it first", zap.String("email", email))
		case err != nil:
			return fmt.Errorf("bootstrap superadmin: %w", err)
		default:
			log.Info("bootstrap superadmin granted", zap.String("user_id", u.ID.String()))
		}
	}
	auth := service.NewAuthService(users, tokens, hasher, lim, pub,
		service.AuthOptions{RotationRevokesRefresh: cfg.RotationRevokesRefresh}, log)

	api := httpserver.New(auth, users, roles, httpserver.Options{
		AccessTTL:    tokens.AccessTTL(),
		RefreshTTL:   tokens.RefreshTTL(),
		CookieSecure: cfg.CookieSecure,
	}, log)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", cfg.HTTPAddr))
		errCh <- srv.ListenAndServe()
	}()

	// Wait for stop
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			_ = srv.Close()
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
