// transport — конвейер исходящих HTTP-запросов клиента.
//
// Конвейер собирается из декораторов над Doer (как net/http-мидлвары,
// только на клиентской стороне): метаданные запроса, логирование,
// таймаут и Authenticator (bearer-токен + однократный refresh-and-retry).
package transport

import (
	"context"
	"net/http"

	"github.com/pribylovaa/go-workconnect/internal/apierr"
)

// Doer отправляет HTTP-запрос; *http.Client удовлетворяет интерфейсу.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// DoerFunc — адаптер функции к Doer.
type DoerFunc func(req *http.Request) (*http.Response, error)

func (f DoerFunc) Do(req *http.Request) (*http.Response, error) { return f(req) }

// Middleware — декоратор Doer.
type Middleware func(Doer) Doer

// Chain применяет мидлвары к Doer в порядке их перечисления:
// первый в списке — самый внешний.
func Chain(d Doer, mws ...Middleware) Doer {
	for i := len(mws) - 1; i >= 0; i-- {
		d = mws[i](d)
	}
	return d
}

// HTTP — базовый Doer поверх *http.Client. Ошибки отправки (ответ не получен)
// превращаются в *apierr.Error вида Network.
func HTTP(c *http.Client) Doer {
	if c == nil {
		c = http.DefaultClient
	}

	return DoerFunc(func(req *http.Request) (*http.Response, error) {
		resp, err := c.Do(req)
		if err != nil {
			return nil, apierr.Network(err)
		}
		return resp, nil
	})
}

type ctxKey int

const ctxRequestID ctxKey = iota

// WithRequestID кладёт request id в контекст; WithMetadata отправит его в X-Request-Id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxRequestID, id)
}

// RequestIDFrom достаёт request id из контекста.
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(ctxRequestID).(string)
	return id
}
