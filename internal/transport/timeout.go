package transport

import (
	"context"
	"io"
	"net/http"
	"time"
)

// WithTimeout навешивает deadline на запрос, если его ещё нет.
// Значение <=0 делает мидлвар no-op. Контекст отменяется при закрытии
// тела ответа, поэтому тело можно дочитать после возврата из Do.
func WithTimeout(d time.Duration) Middleware {
	return func(next Doer) Doer {
		if d <= 0 {
			return next
		}

		return DoerFunc(func(req *http.Request) (*http.Response, error) {
			if _, ok := req.Context().Deadline(); ok {
				return next.Do(req) // уважаем существующий deadline.
			}

			ctx, cancel := context.WithTimeout(req.Context(), d)
			resp, err := next.Do(req.WithContext(ctx))
			if err != nil || resp == nil || resp.Body == nil {
				cancel()
				return resp, err
			}

			resp.Body = &cancelBody{ReadCloser: resp.Body, cancel: cancel}
			return resp, nil
		})
	}
}

type cancelBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelBody) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}
