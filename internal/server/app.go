// Package server initializes and runs the creditkeeper server: it opens the
// database and runs migrations, wires the services, serves HTTP and runs the
// handle sync sweep until a shutdown signal arrives.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/creditkeeper/internal/logging"
	"github.com/dmitrijs2005/creditkeeper/internal/server/config"
	"github.com/dmitrijs2005/creditkeeper/internal/server/httpapi"
	"github.com/dmitrijs2005/creditkeeper/internal/server/identityprovider"
	"github.com/dmitrijs2005/creditkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/creditkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/creditkeeper/internal/server/review"
	"github.com/dmitrijs2005/creditkeeper/internal/server/services"
	"github.com/dmitrijs2005/creditkeeper/internal/server/webhooks/stripesig"
	"github.com/dmitrijs2005/creditkeeper/internal/server/webhooks/svixsig"
)

type App struct {
	config          *config.Config
	logger          logging.Logger
	db              *sql.DB
	closers         []io.Closer
	metrics         *metrics.Metrics
	review          review.Queue
	ledgerService   *services.LedgerService
	identityService *services.IdentityService
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSONLogger(c.LogLevel)

	db, err := repomanager.OpenPostgres(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	queue, closers, err := review.FromConfig(ctx, c, logger)
	if err != nil {
		closeAll(closers)
		_ = db.Close()
		return nil, fmt.Errorf("review queue init error: %w", err)
	}

	m, err := metrics.New(nil)
	if err != nil {
		closeAll(closers)
		_ = db.Close()
		return nil, err
	}

	var provider services.IdentityProvider
	if c.IdentityAPIKey != "" {
		provider = identityprovider.NewClient(c.IdentityAPIURL, c.IdentityAPIKey, c.RequestTimeout)
	} else {
		logger.Warn(ctx, "identity provider API key not set, handles will not be pushed")
	}

	return &App{
		config:          c,
		logger:          logger,
		db:              db,
		closers:         closers,
		metrics:         m,
		review:          queue,
		ledgerService:   services.NewLedgerService(db, rm, queue, logger, c.RequestTimeout),
		identityService: services.NewIdentityService(db, rm, provider, queue, logger, c.RequestTimeout),
	}, nil
}

func closeAll(closers []io.Closer) {
	for _, c := range closers {
		_ = c.Close()
	}
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

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := httpapi.NewServer(httpapi.Options{
		Address:          app.config.EndpointAddrHTTP,
		SessionSecret:    app.config.SessionSecret,
		RequestTimeout:   app.config.RequestTimeout,
		PaymentVerifier:  stripesig.NewVerifier(app.config.PaymentWebhookSecret, app.config.WebhookTolerance),
		IdentityVerifier: svixsig.NewVerifier(app.config.IdentityWebhookSecret),
		Ledger:           app.ledgerService,
		Identity:         app.identityService,
		Review:           app.review,
		Metrics:          app.metrics,
		MetricsHandler:   metrics.Handler(nil),
	}, app.logger)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		runHandleSync(ctx, app.identityService, app.config.ReconcileInterval, app.logger, app.metrics)
	}()

	wg.Wait()

	closeAll(app.closers)
	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close error", "error", err)
	}
	app.logger.Info(ctx, "App stopped")
}
