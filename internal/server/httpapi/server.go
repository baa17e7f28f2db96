// Package httpapi exposes registration, login and token checks over HTTP.
package httpapi

import (
	"context"
	"crypto/ed25519"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/dmitrijs2005/tors/internal/logging"
	"github.com/dmitrijs2005/tors/internal/metrics"
	"github.com/dmitrijs2005/tors/internal/server/models"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 10 * time.Second

type Accounts interface {
	Register(ctx context.Context, userName, password string) (*models.Account, error)
	Authenticate(ctx context.Context, userName, password string) (*models.Account, error)
}

type Tokens interface {
	Issue(ctx context.Context, accountID string) (*models.AuthToken, error)
	Validate(ctx context.Context, token string) (string, error)
}

type PublicKeys interface {
	PublicKey() (ed25519.PublicKey, error)
}

type Server struct {
	address  string
	accounts Accounts
	tokens   Tokens
	keys     PublicKeys
	logger   logging.Logger
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
	router   chi.Router
}

// NewServer builds the router. A nil gatherer leaves /metrics unmounted.
func NewServer(address string, l logging.Logger, accounts Accounts, tokens Tokens, keys PublicKeys,
	m *metrics.Metrics, gatherer prometheus.Gatherer) *Server {
	s := &Server{
		address:  address,
		accounts: accounts,
		tokens:   tokens,
		keys:     keys,
		logger:   l.With("module", "http_server"),
		metrics:  m,
		gatherer: gatherer,
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.instrument)

	r.Route("/api", func(r chi.Router) {
		r.Post("/register", s.handleRegister)
		r.Post("/login", s.handleLogin)
		r.Get("/keys/public", s.handlePublicKey)

		r.Group(func(r chi.Router) {
			r.Use(s.requireToken)
			r.Get("/whoami", s.handleWhoAmI)
		})
	})

	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	return r
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

func (s *Server) Serve(ctx context.Context, listen net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	stopped := make(chan error, 1)
	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		stopped <- srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", listen.Addr().String())

	if err := srv.Serve(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return <-stopped
}
