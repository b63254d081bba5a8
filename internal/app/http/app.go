package httpapp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"oauthsrv/internal/app/interceptors"
	authhttp "oauthsrv/internal/http/auth"
	resourcehttp "oauthsrv/internal/http/resource"
	"oauthsrv/internal/http/respond"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type App struct {
	log     *slog.Logger
	server  *http.Server
	handler http.Handler
	port    int
}

// New creates new HTTP server app
func New(
	env string,
	log *slog.Logger,
	authService authhttp.Auth,
	sessionService authhttp.Session,
	resourceService resourcehttp.Resource,
	gatherer prometheus.Gatherer,
	health []Pinger,
	opts authhttp.Options,
	port int,
	timeout time.Duration,
) *App {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.Recoverer,
		interceptors.EnvMiddleware(env),
		interceptors.RequestLogger(log),
	)

	r.Get("/healthz", healthHandler(health))
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		if timeout > 0 {
			r.Use(middleware.Timeout(timeout))
		}
		authhttp.Register(r, log, authService, sessionService, opts)
		resourcehttp.Register(r, log, resourceService)
	})

	return &App{
		log:     log,
		handler: r,
		port:    port,
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           r,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Handler exposes the router, used by in-process tests.
func (a *App) Handler() http.Handler {
	return a.handler
}

// MustRun runs HTTP server and panic if any occurs
func (a *App) MustRun() {
	if err := a.Run(); err != nil {
		panic(err)
	}
}

// Run http server
func (a *App) Run() error {
	const op = "httpapp.Run"

	log := a.log.With(slog.String("op", op),
		slog.Int("port", a.port),
	)

	l, err := net.Listen("tcp", a.server.Addr)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("starting HTTP server", slog.String("addr", l.Addr().String()))

	if err := a.server.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Stop http server, waiting for in-flight requests until ctx is done
func (a *App) Stop(ctx context.Context) error {
	const op = "httpapp.Stop"

	a.log.With(slog.String("op", op)).Info("stopping HTTP server")
	if err := a.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func healthHandler(checks []Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		for _, c := range checks {
			if err := c.Ping(r.Context()); err != nil {
				respond.WriteError(w, http.StatusServiceUnavailable, "unavailable", "storage is unreachable")
				return
			}
		}
		_ = respond.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
