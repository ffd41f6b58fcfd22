package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/pribylovaa/go-workconnect/internal/models"
	"github.com/pribylovaa/go-workconnect/internal/transport"
)

// TokenRefresher обменивает refresh-токен через POST /auth/refresh/.
// Ходит в обход Authenticator, поэтому его 401 не запускает новый refresh.
type TokenRefresher struct {
	base   string
	public transport.Doer
}

func NewRefresher(baseURL string, public transport.Doer) *TokenRefresher {
	return &TokenRefresher{base: strings.TrimRight(baseURL, "/"), public: public}
}

func (r *TokenRefresher) Refresh(ctx context.Context, refreshToken string) (*models.RefreshResponse, error) {
	const op = "api.Refresh"

	var out models.RefreshResponse
	err := send(ctx, r.public, http.MethodPost, joinURL(r.base, pathRefresh), models.RefreshRequest{Refresh: refreshToken}, &out, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &out, nil
}

var _ transport.Refresher = (*TokenRefresher)(nil)
