package transport

import (
	"net/http"

	"github.com/google/uuid"
)

const HeaderRequestID = "X-Request-Id"

// WithMetadata дополняет исходящий запрос:
//   - X-Request-Id: из контекста, из заголовка или новый UUID (и кладёт его в контекст);
//   - User-Agent: ua, если он не пустой и заголовок не задан;
//   - Accept: application/json, если не задан.
func WithMetadata(ua string) Middleware {
	return func(next Doer) Doer {
		return DoerFunc(func(req *http.Request) (*http.Response, error) {
			ctx := req.Context()

			rid := RequestIDFrom(ctx)
			if rid == "" {
				rid = req.Header.Get(HeaderRequestID)
			}
			if rid == "" {
				rid = uuid.NewString()
			}

			req = req.Clone(WithRequestID(ctx, rid))
			req.Header.Set(HeaderRequestID, rid)

			if ua != "" && req.Header.Get("User-Agent") == "" {
				req.Header.Set("User-Agent", ua)
			}
			if req.Header.Get("Accept") == "" {
				req.Header.Set("Accept", "application/json")
			}

			return next.Do(req)
		})
	}
}
