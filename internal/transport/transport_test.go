package transport

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/pribylovaa/go-workconnect/internal/apierr"
	"github.com/pribylovaa/go-workconnect/internal/metrics"
	logctx "github.com/pribylovaa/go-workconnect/internal/pkg/log"
)

// capHandler — тестовый slog.Handler:
//   - аккумулирует базовые attrs из Logger.With(...);
//   - собирает attrs каждой записи в map[string]any;
//   - считает записи по сообщению.
type capHandler struct {
	mu      sync.Mutex
	base    []slog.Attr
	lastMsg string
	lastLvl slog.Level
	attrs   map[string]any
	count   map[string]int
}

func (h *capHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *capHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make(map[string]any, len(h.base)+8)
	for _, a := range h.base {
		out[a.Key] = a.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		out[a.Key] = a.Value.Any()
		return true
	})

	if h.count == nil {
		h.count = make(map[string]int)
	}
	h.count[r.Message]++
	h.lastMsg = r.Message
	h.lastLvl = r.Level
	h.attrs = out

	return nil
}

func (h *capHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.base = append(h.base, attrs...)
	return h
}

func (h *capHandler) WithGroup(string) slog.Handler { return h }

func (h *capHandler) seen(msg string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count[msg]
}

func okResponse(req *http.Request, code int, body string) *http.Response {
	return &http.Response{
		StatusCode: code,
		Header:     http.Header{},
		Body:       io.NopCloser(strings.NewReader(body)),
		Request:    req,
	}
}

func newReq(t *testing.T, method, body string) *http.Request {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, "http://api.test/api/jobs/", rd)
	require.NoError(t, err)
	return req
}

func TestChain_Order(t *testing.T) {
	t.Parallel()

	var order []string
	mw := func(name string) Middleware {
		return func(next Doer) Doer {
			return DoerFunc(func(req *http.Request) (*http.Response, error) {
				order = append(order, name+"-begin")
				resp, err := next.Do(req)
				order = append(order, name+"-end")
				return resp, err
			})
		}
	}

	final := DoerFunc(func(req *http.Request) (*http.Response, error) {
		order = append(order, "doer")
		return okResponse(req, http.StatusTeapot, ""), nil
	})

	resp, err := Chain(final, mw("m1"), mw("m2")).Do(newReq(t, http.MethodGet, ""))
	require.NoError(t, err)
	require.Equal(t, http.StatusTeapot, resp.StatusCode)
	require.Equal(t, []string{"m1-begin", "m2-begin", "doer", "m2-end", "m1-end"}, order)
}

func TestHTTP_WrapsTransportErrorAsNetwork(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)

	_, err = HTTP(srv.Client()).Do(req)
	require.ErrorIs(t, err, apierr.ErrNetwork)
	require.Equal(t, apierr.KindNetwork, apierr.KindOf(err))
}

func TestWithMetadata_SetsHeaders(t *testing.T) {
	t.Parallel()

	var seen *http.Request
	d := Chain(DoerFunc(func(req *http.Request) (*http.Response, error) {
		seen = req
		return okResponse(req, http.StatusOK, ""), nil
	}), WithMetadata("wc-test/1"))

	ctx := WithRequestID(context.Background(), "rid-123")
	_, err := d.Do(newReq(t, http.MethodGet, "").WithContext(ctx))
	require.NoError(t, err)

	require.Equal(t, "rid-123", seen.Header.Get(HeaderRequestID))
	require.Equal(t, "wc-test/1", seen.Header.Get("User-Agent"))
	require.Equal(t, "application/json", seen.Header.Get("Accept"))
	require.Equal(t, "rid-123", RequestIDFrom(seen.Context()))
}

func TestWithMetadata_GeneratesRequestID_KeepsExplicitUA(t *testing.T) {
	t.Parallel()

	var seen *http.Request
	d := Chain(DoerFunc(func(req *http.Request) (*http.Response, error) {
		seen = req
		return okResponse(req, http.StatusOK, ""), nil
	}), WithMetadata("wc-test/1"))

	req := newReq(t, http.MethodGet, "")
	req.Header.Set("User-Agent", "custom")

	_, err := d.Do(req)
	require.NoError(t, err)

	rid := seen.Header.Get(HeaderRequestID)
	_, err = uuid.Parse(rid)
	require.NoError(t, err)
	require.Equal(t, rid, RequestIDFrom(seen.Context()))
	require.Equal(t, "custom", seen.Header.Get("User-Agent"))

	// Исходный запрос не мутирован.
	require.Empty(t, req.Header.Get(HeaderRequestID))
}

func TestWithTimeout_SetsDeadline_CancelsOnBodyClose(t *testing.T) {
	t.Parallel()

	var reqCtx context.Context
	d := Chain(DoerFunc(func(req *http.Request) (*http.Response, error) {
		reqCtx = req.Context()
		return okResponse(req, http.StatusOK, "payload"), nil
	}), WithTimeout(time.Minute))

	resp, err := d.Do(newReq(t, http.MethodGet, ""))
	require.NoError(t, err)

	_, ok := reqCtx.Deadline()
	require.True(t, ok)

	// Тело читается после возврата из Do: контекст ещё жив.
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, "payload", string(b))
	require.NoError(t, reqCtx.Err())

	require.NoError(t, resp.Body.Close())
	require.ErrorIs(t, reqCtx.Err(), context.Canceled)
}

func TestWithTimeout_DoesNotOverrideExistingDeadline(t *testing.T) {
	t.Parallel()

	parent, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	var childDL time.Time
	d := Chain(DoerFunc(func(req *http.Request) (*http.Response, error) {
		childDL, _ = req.Context().Deadline()
		return okResponse(req, http.StatusOK, ""), nil
	}), WithTimeout(time.Second))

	_, err := d.Do(newReq(t, http.MethodGet, "").WithContext(parent))
	require.NoError(t, err)

	parentDL, _ := parent.Deadline()
	require.WithinDuration(t, parentDL, childDL, time.Millisecond)
}

func TestWithTimeout_ExpiresAsNetworkError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	t.Cleanup(srv.Close)

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	_, err = Chain(HTTP(srv.Client()), WithTimeout(30*time.Millisecond)).Do(req)
	require.ErrorIs(t, err, apierr.ErrNetwork)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWithTimeout_ZeroDuration_PassThrough(t *testing.T) {
	t.Parallel()

	var hasDL bool
	d := Chain(DoerFunc(func(req *http.Request) (*http.Response, error) {
		_, hasDL = req.Context().Deadline()
		return okResponse(req, http.StatusOK, ""), nil
	}), WithTimeout(0))

	_, err := d.Do(newReq(t, http.MethodGet, ""))
	require.NoError(t, err)
	require.False(t, hasDL)
}

func TestLogging_WritesRecordAndPutsLoggerIntoContext(t *testing.T) {
	t.Parallel()

	h := &capHandler{}
	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)

	d := Chain(DoerFunc(func(req *http.Request) (*http.Response, error) {
		logctx.From(req.Context()).Info("probe")
		return okResponse(req, http.StatusCreated, ""), nil
	}), WithMetadata(""), Logging(slog.New(h), m))

	ctx := WithRequestID(context.Background(), "rid-456")
	_, err = d.Do(newReq(t, http.MethodPost, `{"a":1}`).WithContext(ctx))
	require.NoError(t, err)

	require.Equal(t, 1, h.seen("probe"))
	require.Equal(t, "http_client", h.lastMsg)
	require.Equal(t, slog.LevelInfo, h.lastLvl)
	require.Equal(t, http.MethodPost, h.attrs["method"])
	require.Equal(t, "/api/jobs/", h.attrs["path"])
	require.Equal(t, "rid-456", h.attrs["request_id"])
	require.EqualValues(t, http.StatusCreated, h.attrs["status"])
	_, hasDur := h.attrs["dur"]
	require.True(t, hasDur)

	n, err := testutil.GatherAndCount(reg, "workconnect_client_requests_total")
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestLogging_ErrorLoggedAsWarn(t *testing.T) {
	t.Parallel()

	h := &capHandler{}
	d := Chain(DoerFunc(func(req *http.Request) (*http.Response, error) {
		return nil, apierr.Network(errors.New("connection refused"))
	}), Logging(slog.New(h), nil))

	_, err := d.Do(newReq(t, http.MethodGet, ""))
	require.Error(t, err)

	require.Equal(t, "http_client", h.lastMsg)
	require.Equal(t, slog.LevelWarn, h.lastLvl)
	require.EqualValues(t, 0, h.attrs["status"])
	require.Contains(t, h.attrs["err"], "connection refused")
}
