// Package server wires the credential store, signing keys, services and the
// HTTP API into a runnable application.
package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/tors/internal/cryptox"
	"github.com/dmitrijs2005/tors/internal/logging"
	"github.com/dmitrijs2005/tors/internal/metrics"
	"github.com/dmitrijs2005/tors/internal/server/auth"
	"github.com/dmitrijs2005/tors/internal/server/config"
	"github.com/dmitrijs2005/tors/internal/server/httpapi"
	"github.com/dmitrijs2005/tors/internal/server/services"
	"github.com/dmitrijs2005/tors/internal/server/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
)

type App struct {
	config   *config.Config
	logger   logging.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	store    *store.Store
	keys     *auth.KeyManager
	accounts *services.AccountService
	tokens   *services.TokenService
}

// NewApp opens storage, applies migrations and loads the signing key. Any
// failure here is fatal: the server has no useful mode without them.
func NewApp(ctx context.Context, c *config.Config, logger logging.Logger) (*App, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	st, err := store.Open(ctx, c.DatabasePath, logger, store.WithMetrics(m))
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	if err := st.EnsureSchema(ctx); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("schema error: %w", err)
	}

	keys := auth.NewKeyManager(st, []byte(c.KeyEncryptionSecret), logger)
	if err := keys.Initialize(ctx); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("signing key error: %w", err)
	}

	hasher := cryptox.NewPasswordHasher(cryptox.Argon2Params{
		MemoryKiB:   c.HashMemoryKiB,
		Iterations:  c.HashIterations,
		Parallelism: c.HashParallelism,
	})

	return &App{
		config:   c,
		logger:   logger,
		registry: registry,
		metrics:  m,
		store:    st,
		keys:     keys,
		accounts: services.NewAccountService(st, hasher, logger, m),
		tokens:   services.NewTokenService(keys, c.TokenIssuer, c.AccessTokenValidityDuration, logger, m),
	}, nil
}

func (app *App) initSignalHandler(ctx context.Context, cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		defer signal.Stop(sigs)
		select {
		case sig := <-sigs:
			app.logger.Info(ctx, "Signal received", "signal", sig.String())
			cancelFunc()
		case <-ctx.Done():
		}
	}()
}

// Run serves until ctx is canceled or a termination signal arrives, then
// closes the store.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(ctx, cancelFunc)

	srv := httpapi.NewServer(app.config.EndpointAddrHTTP, app.logger,
		app.accounts, app.tokens, app.keys, app.metrics, app.registry)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})

	err := g.Wait()
	if err != nil {
		app.logger.Error(ctx, err.Error())
	}

	app.logger.Info(ctx, "Stopping app...")
	return errors.Join(err, app.store.Close())
}
