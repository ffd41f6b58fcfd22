package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/pribylovaa/go-workconnect/internal/apierr"
	"github.com/pribylovaa/go-workconnect/internal/credentials"
	"github.com/pribylovaa/go-workconnect/internal/metrics"
	"github.com/pribylovaa/go-workconnect/internal/models"
	logctx "github.com/pribylovaa/go-workconnect/internal/pkg/log"
	"github.com/pribylovaa/go-workconnect/internal/pkg/redact"
)

// Credentials — доступ Authenticator к набору учётных данных
// (реализуется *credentials.Vault).
type Credentials interface {
	Current(ctx context.Context) (*models.CredentialSet, uint64, error)
	UpdateTokens(ctx context.Context, gen uint64, access, refresh string) (uint64, error)
	ClearIf(ctx context.Context, gen uint64) (bool, error)
}

// Refresher обменивает refresh-токен на новый access-токен (POST /auth/refresh/).
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*models.RefreshResponse, error)
}

// ExpiredHook вызывается один раз, когда refresh-токен отвергнут и набор очищен.
type ExpiredHook func(ctx context.Context, err error)

type AuthOptions struct {
	Logger         *slog.Logger
	Metrics        *metrics.Client
	RefreshTimeout time.Duration
}

// errNoCredentials — refresh невозможен: набора нет (или он сменился на пустой).
var errNoCredentials = errors.New("no credentials to refresh")

// Authenticator подставляет bearer-токен и восстанавливается после 401:
//
//  1. запрос уходит с текущим access-токеном (или без него, если набора нет);
//  2. на 401 без набора ответ возвращается как есть;
//  3. если в хранилище уже другой access-токен (его обновил соседний запрос),
//     запрос повторяется с ним без вызова refresh;
//  4. иначе выполняется ровно один refresh; конкурентные refresh с тем же
//     refresh-токеном объединяются;
//  5. успех — новые токены сохраняются, запрос повторяется один раз, и его
//     результат (любой) возвращается вызывающему;
//  6. refresh отвергнут (4xx) или новые токены не удалось сохранить — набор
//     очищается, вызывается ExpiredHook, возвращается ошибка RefreshFailed;
//  7. refresh не дошёл до сервера или получил 5xx — набор сохраняется,
//     возвращается ошибка Network/Server, повтора нет.
//
// Пункт 7 — осознанная политика: сессию завершает только явный отказ
// сервера в refresh, а недоступность бэкенда пользователя не разлогинивает.
// Следующий запрос снова получит 401 и повторит refresh.
type Authenticator struct {
	creds     Credentials
	refresher Refresher
	opts      AuthOptions

	group singleflight.Group

	mu        sync.RWMutex
	onExpired ExpiredHook
}

func NewAuthenticator(creds Credentials, refresher Refresher, opts AuthOptions) *Authenticator {
	if opts.RefreshTimeout <= 0 {
		opts.RefreshTimeout = 10 * time.Second
	}

	return &Authenticator{creds: creds, refresher: refresher, opts: opts}
}

// SetExpiredHook задаёт обработчик завершения сессии (обычно session.Manager).
func (a *Authenticator) SetExpiredHook(fn ExpiredHook) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onExpired = fn
}

func (a *Authenticator) expired(ctx context.Context, err error) {
	a.mu.RLock()
	fn := a.onExpired
	a.mu.RUnlock()

	a.opts.Metrics.SessionExpired()
	if fn != nil {
		fn(ctx, err)
	}
}

// Middleware возвращает декоратор конвейера.
func (a *Authenticator) Middleware() Middleware {
	return func(next Doer) Doer {
		return DoerFunc(func(req *http.Request) (*http.Response, error) {
			return a.do(next, req)
		})
	}
}

func (a *Authenticator) do(next Doer, req *http.Request) (*http.Response, error) {
	const op = "transport.Authenticator"

	ctx := req.Context()
	log := logctx.From(ctx, a.opts.Logger)

	cs, _, err := a.creds.Current(ctx)
	if err != nil && !errors.Is(err, credentials.ErrNotFound) {
		log.Warn("credentials_read_failed", slog.String("err", err.Error()))
	}

	body, err := replayable(req)
	if err != nil {
		return nil, fmt.Errorf("%s: buffer body: %w", op, err)
	}

	var sent string
	if cs != nil {
		sent = cs.AccessToken
	}

	resp, err := next.Do(withToken(req, sent, body))
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}

	if sent == "" {
		return resp, nil
	}

	token, err := a.renew(ctx, sent)
	switch {
	case errors.Is(err, errNoCredentials):
		return resp, nil
	case err != nil:
		drain(resp)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	drain(resp)

	a.opts.Metrics.Retry()
	log.Debug("request_retry", slog.String("token", redact.Token(token)))

	return next.Do(withToken(req, token, body))
}

// renew возвращает access-токен для повтора запроса, отвергнутого с токеном sent.
func (a *Authenticator) renew(ctx context.Context, sent string) (string, error) {
	log := logctx.From(ctx, a.opts.Logger)

	cs, _, err := a.creds.Current(ctx)
	if err != nil {
		return "", errNoCredentials
	}

	if cs.AccessToken != sent {
		a.opts.Metrics.Refresh(metrics.RefreshSkipped)
		log.Debug("refresh_skipped_token_changed")
		return cs.AccessToken, nil
	}

	v, err, shared := a.group.Do(cs.RefreshToken, func() (any, error) {
		return a.refresh(ctx, sent)
	})
	if shared {
		log.Debug("refresh_shared")
	}
	if err != nil {
		return "", err
	}

	return v.(string), nil
}

// refresh выполняет обмен refresh-токена. Контекст отвязан от отмены
// вызывающего: результат разделяют все ожидающие запросы.
func (a *Authenticator) refresh(parent context.Context, sent string) (string, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), a.opts.RefreshTimeout)
	defer cancel()

	log := logctx.From(ctx, a.opts.Logger)

	// Предыдущий refresh мог завершиться между чтением набора и входом сюда.
	cs, gen, err := a.creds.Current(ctx)
	if err != nil {
		return "", errNoCredentials
	}
	if cs.AccessToken != sent {
		a.opts.Metrics.Refresh(metrics.RefreshSkipped)
		return cs.AccessToken, nil
	}

	log.Info("refresh_started", slog.String("refresh", redact.Token(cs.RefreshToken)))

	res, err := a.refresher.Refresh(ctx, cs.RefreshToken)
	if err != nil {
		switch apierr.KindOf(err) {
		case apierr.KindUnauthorized, apierr.KindValidation, apierr.KindRefreshFailed:
			a.opts.Metrics.Refresh(metrics.RefreshRejected)
			log.Warn("refresh_rejected", slog.String("err", err.Error()))
			return "", a.terminate(ctx, gen, err)
		default:
			a.opts.Metrics.Refresh(metrics.RefreshError)
			log.Warn("refresh_failed", slog.String("err", err.Error()))
			return "", err
		}
	}

	if res == nil || res.Access == "" {
		a.opts.Metrics.Refresh(metrics.RefreshError)
		return "", &apierr.Error{Kind: apierr.KindServer, Status: http.StatusOK, Detail: "refresh response without access token"}
	}

	if _, err := a.creds.UpdateTokens(ctx, gen, res.Access, res.Refresh); err != nil {
		if errors.Is(err, credentials.ErrStale) {
			// Набор сменился (logout или новый login) пока шёл refresh.
			a.opts.Metrics.Refresh(metrics.RefreshSkipped)
			log.Info("refresh_discarded_stale")

			cur, _, cerr := a.creds.Current(ctx)
			if cerr != nil {
				return "", errNoCredentials
			}
			return cur.AccessToken, nil
		}

		// Vault уже свёл набор к "отсутствует".
		a.opts.Metrics.Refresh(metrics.RefreshError)
		log.Error("refresh_persist_failed", slog.String("err", err.Error()))
		rf := apierr.RefreshFailed(err)
		a.expired(ctx, rf)
		return "", rf
	}

	a.opts.Metrics.Refresh(metrics.RefreshOK)
	log.Info("refresh_ok", slog.Bool("rotated", res.Refresh != ""))

	return res.Access, nil
}

func (a *Authenticator) terminate(ctx context.Context, gen uint64, cause error) error {
	log := logctx.From(ctx, a.opts.Logger)
	rf := apierr.RefreshFailed(cause)

	cleared, err := a.creds.ClearIf(ctx, gen)
	if err != nil {
		log.Error("credentials_clear_failed", slog.String("err", err.Error()))
	}

	if cleared {
		log.Warn("session_expired")
		a.expired(ctx, rf)
	}

	return rf
}

// replayable возвращает фабрику тела запроса, чтобы повтор отправил те же байты.
func replayable(req *http.Request) (func() (io.ReadCloser, error), error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}

	if req.GetBody != nil {
		_ = req.Body.Close()
		return req.GetBody, nil
	}

	b, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return nil, err
	}

	return func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(b)), nil
	}, nil
}

func withToken(req *http.Request, token string, body func() (io.ReadCloser, error)) *http.Request {
	out := req.Clone(req.Context())

	if body != nil {
		// Ошибка GetBody у bytes/strings-читателей невозможна.
		rc, err := body()
		if err == nil {
			out.Body = rc
			out.GetBody = body
		}
	}

	if token != "" {
		out.Header.Set("Authorization", "Bearer "+token)
	} else {
		out.Header.Del("Authorization")
	}

	return out
}

func drain(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}
