// Package server initializes and runs the SafePass API server.
// It opens the database, applies migrations, builds the services, and
// serves HTTP until a shutdown signal arrives.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/safepass/internal/logging"
	"github.com/dmitrijs2005/safepass/internal/server/config"
	"github.com/dmitrijs2005/safepass/internal/server/httpapi"
	"github.com/dmitrijs2005/safepass/internal/server/repositories/repomanager"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	rdb "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

// openDB is a seam for tests.
var openDB = repomanager.OpenPostgres

type App struct {
	config *config.Config
	logger logging.Logger
	db     *sql.DB
	redis  *rdb.Client
	server *httpapi.Server
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	logger := logging.New(c.LogLevel, c.LogFormat)

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	db, err := openDB(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if c.MigrateOnStart {
		if err := rm.RunMigrations(ctx, db); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migrations: %w", err)
		}
	}

	svc, err := NewServices(db, rm, c, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if c.SMTPHost == "" {
		logger.Warn(ctx, "SMTP host not set, verification codes and reset links cannot be delivered")
	}

	limiter, redisClient := newLimiter(c)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewDBStatsCollector(db, "safepass"))

	srv := httpapi.NewServer(c.HTTPAddr, logger, httpapi.Deps{
		Identities: svc.Identities,
		Recovery:   svc.Recovery,
		Vault:      svc.Vault,
		Avatars:    svc.Avatars,
		Limiter:    limiter,
		DB:         db,
		Registry:   reg,
	}, httpapi.Options{
		AllowedOrigins:  c.AllowedOrigins,
		FederationKey:   c.FederationKey,
		SessionTTL:      c.SessionTTL,
		CookieDomain:    c.CookieDomain,
		CookieSameSite:  c.CookieSameSite,
		CookieSecure:    c.CookieSecure,
		ShutdownTimeout: c.ShutdownTimeout,

		TrustProxyHeaders: c.TrustProxyHeaders,
		MetricsAddr:       c.MetricsAddr,
	})

	return &App{config: c, logger: logger, db: db, redis: redisClient, server: srv}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Run serves until ctx is cancelled or a signal arrives, then releases the
// database and Redis connections.
func (app *App) Run(ctx context.Context) error {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return app.server.Run(gctx)
	})

	err := g.Wait()
	app.logger.Info(context.Background(), "App stopped")

	return errors.Join(err, app.close())
}

func (app *App) close() error {
	var errs []error
	if app.redis != nil {
		errs = append(errs, app.redis.Close())
	}
	if app.db != nil {
		errs = append(errs, app.db.Close())
	}
	return errors.Join(errs...)
}
