// api — типизированный REST-клиент эндпойнтов /auth/* бэкенда WorkConnect.
//
// Клиент держит два конвейера:
//   - public — без Authenticator: login, register, refresh, logout;
//   - authed — с Authenticator: profile и произвольные вызовы (Call).
//
// Любой не-2xx ответ превращается в *apierr.Error (см. apierr.FromResponse).
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/pribylovaa/go-workconnect/internal/apierr"
	"github.com/pribylovaa/go-workconnect/internal/models"
	"github.com/pribylovaa/go-workconnect/internal/transport"
)

const (
	pathLogin    = "/auth/login/"
	pathRegister = "/auth/register/"
	pathRefresh  = "/auth/refresh/"
	pathLogout   = "/auth/logout/"
	pathProfile  = "/auth/profile/"
)

type Client struct {
	base   string
	public transport.Doer
	authed transport.Doer
}

// New создаёт клиент. baseURL — префикс API, например http://localhost:8001/api.
func New(baseURL string, public, authed transport.Doer) *Client {
	return &Client{
		base:   strings.TrimRight(baseURL, "/"),
		public: public,
		authed: authed,
	}
}

// Login — POST /auth/login/.
func (c *Client) Login(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error) {
	const op = "api.Login"

	var out models.AuthResponse
	if err := send(ctx, c.public, http.MethodPost, c.url(pathLogin), req, &out, nil); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &out, nil
}

// Register — POST /auth/register/.
func (c *Client) Register(ctx context.Context, req models.RegisterRequest) (*models.AuthResponse, error) {
	const op = "api.Register"

	var out models.AuthResponse
	if err := send(ctx, c.public, http.MethodPost, c.url(pathRegister), req, &out, nil); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &out, nil
}

// Logout — POST /auth/logout/ {refresh}. access, если не пустой, уходит
// bearer-заголовком; повтора после 401 нет.
func (c *Client) Logout(ctx context.Context, access, refresh string) error {
	const op = "api.Logout"

	var hdr http.Header
	if access != "" {
		hdr = http.Header{"Authorization": {"Bearer " + access}}
	}

	if err := send(ctx, c.public, http.MethodPost, c.url(pathLogout), models.LogoutRequest{Refresh: refresh}, nil, hdr); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// Profile — GET /auth/profile/ через Authenticator.
func (c *Client) Profile(ctx context.Context) (*models.User, error) {
	const op = "api.Profile"

	var out models.User
	if err := send(ctx, c.authed, http.MethodGet, c.url(pathProfile), nil, &out, nil); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &out, nil
}

// Call выполняет произвольный аутентифицированный запрос к path
// (например, GET /jobs/?status=open). in кодируется в JSON, если не nil;
// out заполняется из тела ответа, если не nil.
func (c *Client) Call(ctx context.Context, method, path string, in, out any) error {
	const op = "api.Call"

	if err := send(ctx, c.authed, method, c.url(path), in, out, nil); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (c *Client) url(path string) string {
	return joinURL(c.base, path)
}

func joinURL(base, path string) string {
	return base + "/" + strings.TrimLeft(path, "/")
}

// send кодирует in, отправляет запрос через d и декодирует 2xx-ответ в out.
func send(ctx context.Context, d transport.Doer, method, url string, in, out any, hdr http.Header) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	for k, vs := range hdr {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := d.Do(req)
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apierr.FromResponse(resp)
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if raw, ok := out.(*json.RawMessage); ok {
		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return apierr.Network(err)
		}
		*raw = b
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}
