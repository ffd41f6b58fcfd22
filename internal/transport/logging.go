package transport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/pribylovaa/go-workconnect/internal/metrics"
	logctx "github.com/pribylovaa/go-workconnect/internal/pkg/log"
)

// Logging — одна запись "http_client" на вызов: method, path, status, dur
// и request_id; request-scoped логгер прокладывается в контекст, чтобы
// внутренние слои (Authenticator) писали с теми же полями.
// Тела запросов и заголовок Authorization не логируются.
func Logging(base *slog.Logger, m *metrics.Client) Middleware {
	return func(next Doer) Doer {
		return DoerFunc(func(req *http.Request) (*http.Response, error) {
			ctx := logctx.Into(req.Context(), logctx.From(req.Context(), base))
			ctx, l := logctx.With(ctx,
				slog.String("method", req.Method),
				slog.String("path", req.URL.Path),
			)
			if rid := req.Header.Get(HeaderRequestID); rid != "" {
				ctx, l = logctx.With(ctx, slog.String("request_id", rid))
			}

			req = req.WithContext(ctx)

			start := time.Now()
			resp, err := next.Do(req)
			dur := time.Since(start)

			status := 0
			if resp != nil {
				status = resp.StatusCode
			}
			m.Request(status)

			attrs := []slog.Attr{
				slog.Int("status", status),
				slog.Duration("dur", dur),
			}

			lvl := slog.LevelInfo
			if err != nil {
				lvl = slog.LevelWarn
				attrs = append(attrs, slog.String("err", err.Error()))
			}

			l.LogAttrs(req.Context(), lvl, "http_client", attrs...)

			return resp, err
		})
	}
}
