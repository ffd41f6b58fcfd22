package devserver

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pribylovaa/go-workconnect/internal/metrics"
)

// RouterOptions — параметры сборки HTTP-роутера.
type RouterOptions struct {
	Logger   *slog.Logger
	Metrics  *metrics.Server
	Timeout  time.Duration
	BasePath string // например, "/api"; если пустой — роуты регистрируются на корне.
}

// NewRouter собирает http.Handler с chi и подключёнными middleware/роутами.
func NewRouter(svc *Service, opts RouterOptions) http.Handler {
	root := chi.NewRouter()

	// Middleware (внешний -> внутренний).
	root.Use(
		Recover(),
		RequestID(), // до логирования
		Logging(opts.Logger),
		Metrics(opts.Metrics),
		AuthBearer(),
		Timeout(opts.Timeout),
	)

	h := NewHandlers(svc)

	if opts.BasePath != "" {
		sub := chi.NewRouter()
		registerRoutes(sub, h)
		root.Mount(opts.BasePath, sub)
		return root
	}

	registerRoutes(root, h)
	return root
}

func registerRoutes(r chi.Router, h *Handlers) {
	r.Post("/auth/register/", h.Register)
	r.Post("/auth/login/", h.Login)
	r.Post("/auth/refresh/", h.Refresh)
	r.Post("/auth/logout/", h.Logout)
	r.Get("/auth/profile/", h.Profile)
}
