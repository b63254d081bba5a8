package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	httpapp "oauthsrv/internal/app/http"
	"oauthsrv/internal/config"
	"oauthsrv/internal/domain/models"
	authhttp "oauthsrv/internal/http/auth"
	"oauthsrv/internal/lib/jwt"
	"oauthsrv/internal/lib/metrics"
	"oauthsrv/internal/lib/password"
	"oauthsrv/internal/services/auth"
	authinterfaces "oauthsrv/internal/services/auth/interfaces"
	"oauthsrv/internal/services/resource"
	"oauthsrv/internal/services/session"
	"oauthsrv/internal/storage/memory"
	"oauthsrv/internal/storage/postgres"
	"oauthsrv/internal/storage/protected"
	"oauthsrv/internal/storage/redis"
	"oauthsrv/internal/storage/sweeper"
)

const shutdownTimeout = 10 * time.Second

// credentialStore is what both the memory and postgres storages provide.
type credentialStore interface {
	authinterfaces.UserStorage
	authinterfaces.ClientStorage
	authinterfaces.AuthCodeStorage
	authinterfaces.TokenStorage
	httpapp.Pinger
	sweeper.ExpiredRemover
	User(ctx context.Context, username string) (*models.User, error)
	UserByID(ctx context.Context, id string) (*models.User, error)
}

// ephemeralStore holds codes and refresh tokens when they live apart from users.
type ephemeralStore interface {
	authinterfaces.AuthCodeStorage
	authinterfaces.TokenStorage
	httpapp.Pinger
}

// Option customizes New.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock replaces time.Now for token issuance and expiry checks.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

type App struct {
	HTTPSrv *httpapp.App
	Sweeper *sweeper.Sweeper
	log     *slog.Logger
	closers []func()
}

// New wires storages, services and the HTTP server from cfg.
func New(ctx context.Context, log *slog.Logger, cfg *config.Config, opts ...Option) (*App, error) {
	const op = "app.New"

	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	a := &App{log: log}

	var store credentialStore
	if cfg.StoragePath == "" {
		log.Warn("storage_path is empty, using in-memory storage")
		store = memory.New()
	} else {
		pg, err := postgres.New(ctx, cfg.StoragePath)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		a.closers = append(a.closers, pg.CloseStorage)
		store = pg
	}

	var ephemeral ephemeralStore = store
	health := []httpapp.Pinger{store}
	if cfg.UseCache {
		cache := redis.NewCache(&cfg.Redis)
		a.closers = append(a.closers, func() { _ = cache.Close() })
		ephemeral = cache
		health = append(health, cache)
	}

	secret, err := signingKey(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	codec, err := jwt.NewCodec(secret, cfg.Issuer, jwt.WithClock(o.now))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)
	hasher := password.NewHasher(0)

	sessionService := session.New(log, store, hasher, codec, m, cfg.SessionTTL)
	authService := auth.New(
		log,
		store,
		store,
		ephemeral,
		ephemeral,
		hasher,
		codec,
		m,
		auth.TTLs{
			AuthorizationCode: cfg.AuthorizationCodeTTL,
			AccessToken:       cfg.AccessTokenTTL,
			RefreshToken:      cfg.RefreshTokenTTL,
		},
	).WithClock(o.now)
	resourceService := resource.New(log, store, codec)

	if err := authService.SeedClients(ctx, clientsFromConfig(cfg.Clients)); err != nil {
		a.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	a.HTTPSrv = httpapp.New(
		cfg.Env,
		log,
		authService,
		sessionService,
		resourceService,
		registry,
		health,
		authhttp.Options{
			CookieSecure:   cfg.HTTP.CookieSecure,
			SessionTTL:     cfg.SessionTTL,
			DefaultLanding: cfg.HTTP.DefaultLanding,
		},
		cfg.HTTP.Port,
		cfg.HTTP.Timeout,
	)
	a.Sweeper = sweeper.New(log, store, cfg.SweepInterval)

	return a, nil
}

// Run serves HTTP and sweeps expired credentials until ctx is done or either fails.
func (a *App) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(a.HTTPSrv.Run)
	g.Go(func() error {
		return a.Sweeper.Run(gCtx)
	})
	g.Go(func() error {
		<-gCtx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return a.HTTPSrv.Stop(stopCtx)
	})

	return g.Wait()
}

// Close releases storage connections.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func signingKey(ctx context.Context, cfg *config.Config) ([]byte, error) {
	if !cfg.Vault.Enabled {
		return []byte(cfg.SecretKey), nil
	}
	v, err := protected.NewVaultClient(cfg.Vault)
	if err != nil {
		return nil, err
	}
	return v.SigningKey(ctx)
}

func clientsFromConfig(in []config.ClientConfig) []models.Client {
	out := make([]models.Client, 0, len(in))
	for _, c := range in {
		out = append(out, models.Client{
			ID:          c.ClientID,
			RedirectURI: c.RedirectURI,
			Secret:      c.Secret,
		})
	}
	return out
}
