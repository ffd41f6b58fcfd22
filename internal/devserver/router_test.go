package devserver

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/pribylovaa/go-workconnect/internal/metrics"
	"github.com/pribylovaa/go-workconnect/internal/models"
)

// capHandler — простой slog.Handler, собирающий записи в память.
type capHandler struct {
	mu      sync.Mutex
	records []slog.Record
}

func (h *capHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *capHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, r.Clone())
	return nil
}

func (h *capHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *capHandler) WithGroup(string) slog.Handler      { return h }

func (h *capHandler) find(msg string) (slog.Record, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, r := range h.records {
		if r.Message == msg {
			return r, true
		}
	}
	return slog.Record{}, false
}

func attrs(r slog.Record) map[string]slog.Value {
	out := map[string]slog.Value{}
	r.Attrs(func(a slog.Attr) bool {
		out[a.Key] = a.Value
		return true
	})
	return out
}

type testServer struct {
	srv   *httptest.Server
	reg   *prometheus.Registry
	clock *fakeClock
	logs  *capHandler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	clock := newClock()
	reg := prometheus.NewRegistry()
	m, err := metrics.NewServer(reg)
	require.NoError(t, err)

	logs := &capHandler{}
	svc := NewService(NewMemoryStorage(), testOptions(clock))
	h := NewRouter(svc, RouterOptions{
		Logger:   slog.New(logs),
		Metrics:  m,
		Timeout:  time.Second,
		BasePath: "/api",
	})

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	return &testServer{srv: srv, reg: reg, clock: clock, logs: logs}
}

func (ts *testServer) do(t *testing.T, method, path, bearer string, body any) (*http.Response, map[string]any) {
	t.Helper()

	var rd *bytes.Reader
	switch b := body.(type) {
	case nil:
		rd = bytes.NewReader(nil)
	case string:
		rd = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, ts.srv.URL+path, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := ts.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	if resp.ContentLength != 0 {
		_ = json.NewDecoder(resp.Body).Decode(&out)
	}
	return resp, out
}

func (ts *testServer) register(t *testing.T, email string) models.AuthResponse {
	t.Helper()

	raw, err := json.Marshal(registerReq(email))
	require.NoError(t, err)

	resp, err := ts.srv.Client().Post(ts.srv.URL+"/api/auth/register/", "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var out models.AuthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestRouter_RegisterLoginProfile(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	reg := ts.register(t, "ada@lovelace.dev")
	require.Equal(t, "ada@lovelace.dev", reg.User.Email)

	resp, body := ts.do(t, http.MethodPost, "/api/auth/login/", "", models.LoginRequest{
		Email: "ada@lovelace.dev", Password: "correct-horse",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	tokens, ok := body["tokens"].(map[string]any)
	require.True(t, ok)
	access, _ := tokens["access"].(string)
	require.NotEmpty(t, access)

	resp, body = ts.do(t, http.MethodGet, "/api/auth/profile/", access, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "Ada Lovelace", body["full_name"])
	require.Equal(t, "worker", body["role"])
}

func TestRouter_DRFErrorBodies(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	ts.register(t, "ada@lovelace.dev")

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		bearer string
		status int
		check  func(t *testing.T, body map[string]any)
	}{
		{
			name:   "duplicate_email",
			method: http.MethodPost,
			path:   "/api/auth/register/",
			body:   registerReq("ada@lovelace.dev"),
			status: http.StatusBadRequest,
			check: func(t *testing.T, body map[string]any) {
				require.Equal(t, []any{"user with this email already exists."}, body["email"])
			},
		},
		{
			name:   "bad_credentials",
			method: http.MethodPost,
			path:   "/api/auth/login/",
			body:   models.LoginRequest{Email: "ada@lovelace.dev", Password: "nope-nope"},
			status: http.StatusBadRequest,
			check: func(t *testing.T, body map[string]any) {
				require.Equal(t, []any{"Invalid credentials"}, body["non_field_errors"])
			},
		},
		{
			name:   "short_password",
			method: http.MethodPost,
			path:   "/api/auth/register/",
			body: models.RegisterRequest{
				Email: "bob@example.com", Password: "short", ConfirmPassword: "short",
				FirstName: "Bob", Role: models.RoleClient,
			},
			status: http.StatusBadRequest,
			check: func(t *testing.T, body map[string]any) {
				require.Len(t, body["password"], 1)
			},
		},
		{
			name:   "bad_json",
			method: http.MethodPost,
			path:   "/api/auth/login/",
			body:   "{not json",
			status: http.StatusBadRequest,
			check: func(t *testing.T, body map[string]any) {
				require.Equal(t, "JSON parse error", body["detail"])
			},
		},
		{
			name:   "unknown_refresh",
			method: http.MethodPost,
			path:   "/api/auth/refresh/",
			body:   models.RefreshRequest{Refresh: "unknown"},
			status: http.StatusUnauthorized,
			check: func(t *testing.T, body map[string]any) {
				require.Equal(t, "Token is invalid", body["detail"])
				require.Equal(t, "token_not_valid", body["code"])
			},
		},
		{
			name:   "profile_without_bearer",
			method: http.MethodGet,
			path:   "/api/auth/profile/",
			status: http.StatusUnauthorized,
			check: func(t *testing.T, body map[string]any) {
				require.Equal(t, "Authentication credentials were not provided.", body["detail"])
			},
		},
		{
			name:   "profile_bad_bearer",
			method: http.MethodGet,
			path:   "/api/auth/profile/",
			bearer: "garbage",
			status: http.StatusUnauthorized,
			check: func(t *testing.T, body map[string]any) {
				require.Equal(t, "Token is invalid", body["detail"])
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := ts.do(t, tt.method, tt.path, tt.bearer, tt.body)
			require.Equal(t, tt.status, resp.StatusCode)
			tt.check(t, body)
		})
	}
}

func TestRouter_ExpiredAccessThenRefresh(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	reg := ts.register(t, "ada@lovelace.dev")

	ts.clock.Advance(2 * time.Minute)

	resp, body := ts.do(t, http.MethodGet, "/api/auth/profile/", reg.Tokens.Access, nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, "Token is expired", body["detail"])

	resp, body = ts.do(t, http.MethodPost, "/api/auth/refresh/", "", models.RefreshRequest{Refresh: reg.Tokens.Refresh})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	access, _ := body["access"].(string)
	require.NotEmpty(t, access)
	_, rotated := body["refresh"]
	require.False(t, rotated)

	resp, _ = ts.do(t, http.MethodGet, "/api/auth/profile/", access, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRouter_LogoutRevokes(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	reg := ts.register(t, "ada@lovelace.dev")

	resp, body := ts.do(t, http.MethodPost, "/api/auth/logout/", reg.Tokens.Access, models.LogoutRequest{Refresh: reg.Tokens.Refresh})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "Logout successful", body["message"])

	resp, body = ts.do(t, http.MethodPost, "/api/auth/refresh/", "", models.RefreshRequest{Refresh: reg.Tokens.Refresh})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, "Token is blacklisted", body["detail"])
}

func TestRouter_RequestIDAndLogging(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)

	req, err := http.NewRequest(http.MethodGet, ts.srv.URL+"/api/auth/profile/", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-Id", "rid-42")

	resp, err := ts.srv.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, "rid-42", resp.Header.Get("X-Request-Id"))

	rec, ok := ts.logs.find("http")
	require.True(t, ok)
	a := attrs(rec)
	require.Equal(t, "/api/auth/profile/", a["path"].String())
	require.Equal(t, int64(http.StatusUnauthorized), a["status"].Int64())

	// Без заголовка id генерируется.
	resp, _ = ts.do(t, http.MethodGet, "/api/auth/profile/", "", nil)
	require.NotEmpty(t, resp.Header.Get("X-Request-Id"))
}

func TestRouter_MetricsByRoute(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	ts.register(t, "ada@lovelace.dev")
	ts.do(t, http.MethodGet, "/nowhere", "", nil)

	n, err := testutil.GatherAndCount(ts.reg, "workconnect_devserver_requests_total")
	require.NoError(t, err)
	require.Equal(t, 2, n)

	expected := `
# HELP workconnect_devserver_requests_total Handled HTTP requests by route and status code.
# TYPE workconnect_devserver_requests_total counter
workconnect_devserver_requests_total{code="201",route="/api/auth/register/"} 1
workconnect_devserver_requests_total{code="404",route="unmatched"} 1
`
	require.NoError(t, testutil.GatherAndCompare(ts.reg, strings.NewReader(expected), "workconnect_devserver_requests_total"))
}

func TestRecover_Returns500(t *testing.T) {
	t.Parallel()

	logs := &capHandler{}
	h := Logging(slog.New(logs))(Recover()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/x", nil))

	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.JSONEq(t, `{"detail":"A server error occurred."}`, rr.Body.String())

	_, ok := logs.find("panic")
	require.True(t, ok)
}

func TestTimeout_SetsDeadline(t *testing.T) {
	t.Parallel()

	var has bool
	h := Timeout(50 * time.Millisecond)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		_, has = r.Context().Deadline()
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.True(t, has)

	has = false
	Timeout(0)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		_, has = r.Context().Deadline()
	})).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.False(t, has)
}

func TestAuthBearer_Table(t *testing.T) {
	t.Parallel()

	tests := []struct {
		header string
		want   string
	}{
		{"Bearer abc", "abc"},
		{"Bearer   abc  ", "abc"},
		{"Bearer ", ""},
		{"Basic abc", ""},
		{"", ""},
	}

	for _, tt := range tests {
		var got string
		h := AuthBearer()(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
			got = bearerFrom(r.Context())
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tt.header != "" {
			req.Header.Set("Authorization", tt.header)
		}
		h.ServeHTTP(httptest.NewRecorder(), req)
		require.Equal(t, tt.want, got, "header=%q", tt.header)
	}
}

func TestRequestIDFrom(t *testing.T) {
	t.Parallel()

	var got string
	RequestID()(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got = RequestIDFrom(r.Context())
	})).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	require.NotEmpty(t, got)
}
