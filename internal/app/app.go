// app собирает клиент WorkConnect из конфигурации: хранилище учётных данных,
// Vault, два конвейера запросов (public и authed), REST-клиент и менеджер сессии.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pribylovaa/go-workconnect/internal/api"
	"github.com/pribylovaa/go-workconnect/internal/config"
	"github.com/pribylovaa/go-workconnect/internal/credentials"
	credpg "github.com/pribylovaa/go-workconnect/internal/credentials/postgres"
	credredis "github.com/pribylovaa/go-workconnect/internal/credentials/redis"
	"github.com/pribylovaa/go-workconnect/internal/metrics"
	"github.com/pribylovaa/go-workconnect/internal/session"
	"github.com/pribylovaa/go-workconnect/internal/transport"
)

// Options — зависимости, которые удобно подменять в тестах.
type Options struct {
	// HTTPClient — базовый клиент; nil -> &http.Client{}.
	HTTPClient *http.Client
	// Registerer для счётчиков клиента; nil -> отдельный prometheus.Registry.
	Registerer prometheus.Registerer
	// Store, если задан, используется вместо хранилища из cfg.Store.
	Store credentials.Store
}

// App — собранный клиент.
type App struct {
	Session *session.Manager
	API     *api.Client
	Vault   *credentials.Vault
	Metrics *metrics.Client

	closers []func() error
}

// New собирает клиент. Сеть на этом шаге не трогается, кроме проверки
// соединения с Redis/PostgreSQL, если хранилище удалённое.
func New(ctx context.Context, cfg config.Config, log *slog.Logger, opts Options) (*App, error) {
	const op = "app.New"

	if log == nil {
		log = slog.Default()
	}

	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m, err := metrics.New(reg)
	if err != nil {
		return nil, fmt.Errorf("%s: metrics: %w", op, err)
	}

	a := &App{Metrics: m}

	store := opts.Store
	if store == nil {
		var closer func() error
		store, closer, err = OpenStore(ctx, cfg.Store)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if closer != nil {
			a.closers = append(a.closers, closer)
		}
	}

	a.Vault = credentials.NewVault(store, log)

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	// Цепочка: metadata -> logging -> timeout. В authed Authenticator снаружи
	// logging/timeout: повтор после refresh — отдельная попытка со своим deadline.
	wire := transport.HTTP(httpClient)
	base := transport.Chain(wire,
		transport.WithMetadata(cfg.API.UserAgent),
		transport.Logging(log, m),
		transport.WithTimeout(cfg.Timeouts.Request),
	)

	refresher := api.NewRefresher(cfg.API.BaseURL, base)
	auth := transport.NewAuthenticator(a.Vault, refresher, transport.AuthOptions{
		Logger:         log,
		Metrics:        m,
		RefreshTimeout: cfg.Timeouts.Refresh,
	})

	authed := transport.Chain(wire,
		transport.WithMetadata(cfg.API.UserAgent),
		auth.Middleware(),
		transport.Logging(log, m),
		transport.WithTimeout(cfg.Timeouts.Request),
	)

	a.API = api.New(cfg.API.BaseURL, base, authed)
	a.Session = session.New(a.API, a.Vault, session.Options{
		Logger:        log,
		LogoutTimeout: cfg.Timeouts.Logout,
	})

	auth.SetExpiredHook(a.Session.HandleExpired)

	return a, nil
}

// OpenStore открывает хранилище набора по cfg.Kind.
// Второе значение закрывает соединение удалённого хранилища (для memory/file — nil).
func OpenStore(ctx context.Context, cfg config.StoreConfig) (credentials.Store, func() error, error) {
	const op = "app.OpenStore"

	switch cfg.Kind {
	case config.StoreMemory:
		return credentials.NewMemory(), nil, nil

	case config.StoreFile:
		return credentials.NewFile(cfg.Path), nil, nil

	case config.StoreRedis:
		st, err := credredis.New(ctx, cfg.RedisURL, cfg.RedisPrefix, cfg.DeviceID)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", op, err)
		}
		return st, st.Close, nil

	case config.StorePostgres:
		st, err := credpg.New(ctx, cfg.PostgresURL, cfg.DeviceID)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", op, err)
		}
		return st, func() error { st.Close(); return nil }, nil

	default:
		return nil, nil, fmt.Errorf("%s: unknown store kind %q", op, cfg.Kind)
	}
}

// Close освобождает соединения хранилища.
func (a *App) Close() error {
	var firstErr error
	for _, c := range a.closers {
		if err := c(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}
