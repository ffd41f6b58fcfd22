package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pribylovaa/go-workconnect/internal/apierr"
	"github.com/pribylovaa/go-workconnect/internal/credentials"
	"github.com/pribylovaa/go-workconnect/internal/models"
	logctx "github.com/pribylovaa/go-workconnect/internal/pkg/log"
	"github.com/pribylovaa/go-workconnect/internal/pkg/redact"
)

var errIncompleteAuth = errors.New("auth response without tokens or user")

// Initialize восстанавливает сессию из Vault. Выполняется один раз;
// повторные вызовы возвращают результат первого.
//
// Сохранённый набор сразу даёт Authenticated(cachedUser) с Loading=true,
// затем профиль проверяется на сервере:
//   - успех — снимок профиля обновляется в Vault и в состоянии;
//   - сетевая или серверная ошибка — остаётся кэшированный пользователь;
//   - 401 — завершение сессии выполняет Authenticator (через HandleExpired);
//     если набор уже удалён, состояние сводится к Anonymous.
//
// Ошибка чтения хранилища не фатальна: состояние Anonymous, ошибка возвращается.
func (m *Manager) Initialize(ctx context.Context) error {
	m.initOnce.Do(func() {
		m.initErr = m.initialize(ctx)
	})

	return m.initErr
}

func (m *Manager) initialize(ctx context.Context) error {
	const op = "session.Initialize"

	log := logctx.From(ctx, m.log)

	cs, _, err := m.vault.Load(ctx)
	switch {
	case errors.Is(err, credentials.ErrNotFound):
		m.anonymous()
		log.Debug("session_anonymous")
		return nil
	case err != nil:
		log.Error("credentials_load_failed", slog.String("err", err.Error()))
		m.anonymous()
		return fmt.Errorf("%s: %w", op, err)
	}

	epoch := m.restore(cs.User)
	log.Info("session_restored", slog.String("user_id", cs.User.ID))

	user, err := m.api.Profile(ctx)
	if err != nil {
		m.verifyFailed(ctx, epoch, err)
		return nil
	}

	if err := m.verified(ctx, epoch, user); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// restore — оптимистичный переход в Authenticated(cached) на время проверки.
func (m *Manager) restore(user *models.User) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.epoch++
	m.setLocked(Snapshot{State: StateAuthenticated, User: user.Clone(), Loading: true})

	return m.epoch
}

// verified применяет профиль с сервера, если сессия не сменилась с epoch.
func (m *Manager) verified(ctx context.Context, epoch uint64, user *models.User) error {
	log := logctx.From(ctx, m.log)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.epoch != epoch {
		log.Debug("profile_discarded_session_changed")
		return nil
	}

	_, gen, err := m.vault.Current(ctx)
	if err != nil {
		// Набор удалён, пока шла проверка.
		m.epoch++
		m.setLocked(Snapshot{State: StateAnonymous})
		return nil
	}

	if _, err := m.vault.UpdateUser(ctx, gen, user); err != nil {
		if errors.Is(err, credentials.ErrStale) {
			m.setLocked(Snapshot{State: StateAuthenticated, User: m.snap.User})
			return nil
		}

		// Vault свёл набор к "отсутствует".
		log.Error("user_cache_update_failed", slog.String("err", err.Error()))
		m.epoch++
		m.setLocked(Snapshot{State: StateAnonymous})
		return err
	}

	m.setLocked(Snapshot{State: StateAuthenticated, User: user.Clone()})
	log.Debug("profile_verified")

	return nil
}

func (m *Manager) verifyFailed(ctx context.Context, epoch uint64, err error) {
	log := logctx.From(ctx, m.log)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.epoch != epoch {
		return
	}

	if errors.Is(err, apierr.ErrUnauthorized) {
		if _, _, cerr := m.vault.Current(ctx); cerr != nil {
			log.Warn("profile_verify_unauthorized", slog.String("err", err.Error()))
			m.epoch++
			m.setLocked(Snapshot{State: StateAnonymous})
			return
		}
	}

	log.Warn("profile_verify_failed", slog.String("err", err.Error()))
	m.setLocked(Snapshot{State: StateAuthenticated, User: m.snap.User})
}

// Login входит по email и паролю. При ошибке состояние не меняется,
// текст для пользователя — apierr.UserMessage(err).
func (m *Manager) Login(ctx context.Context, email, password string) (*models.User, error) {
	const op = "session.Login"

	log := logctx.From(ctx, m.log)
	email = strings.TrimSpace(email)

	if err := validateForm(email, password, nil, nil); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	m.setLoading(true)

	res, err := m.api.Login(ctx, models.LoginRequest{Email: email, Password: password})
	if err != nil {
		m.setLoading(false)
		log.Warn("login_failed",
			slog.String("email", redact.Email(email)),
			slog.Any("fields", failedFields(err)),
			slog.String("err", err.Error()),
		)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	user, err := m.establish(ctx, res)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("login_ok", slog.String("user_id", user.ID))

	return user, nil
}

// Signup регистрирует пользователя и входит. Name делится через SplitName;
// пустая роль означает client.
func (m *Manager) Signup(ctx context.Context, in SignupRequest) (*models.User, error) {
	const op = "session.Signup"

	log := logctx.From(ctx, m.log)

	email := strings.TrimSpace(in.Email)
	role := in.Role
	if role == "" {
		role = models.RoleClient
	}

	if err := validateForm(email, in.Password, &in.Name, &role); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	first, last := SplitName(in.Name)

	m.setLoading(true)

	res, err := m.api.Register(ctx, models.RegisterRequest{
		Email:           email,
		Password:        in.Password,
		ConfirmPassword: in.Password,
		FirstName:       first,
		LastName:        last,
		Role:            role,
		PhoneNumber:     in.PhoneNumber,
	})
	if err != nil {
		m.setLoading(false)
		log.Warn("signup_failed",
			slog.String("email", redact.Email(email)),
			slog.Any("fields", failedFields(err)),
			slog.String("err", err.Error()),
		)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	user, err := m.establish(ctx, res)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("signup_ok", slog.String("user_id", user.ID), slog.String("role", string(user.Role)))

	return user, nil
}

// establish сохраняет набор из ответа login/register и переводит сессию
// в Authenticated. Если набор не удалось сохранить, Vault уже очищен.
func (m *Manager) establish(ctx context.Context, res *models.AuthResponse) (*models.User, error) {
	log := logctx.From(ctx, m.log)

	cs := res.CredentialSet()
	if !cs.Complete() {
		m.setLoading(false)
		return nil, &apierr.Error{Kind: apierr.KindServer, Err: errIncompleteAuth}
	}

	if _, err := m.vault.Save(ctx, &cs); err != nil {
		log.Error("credentials_save_failed", slog.String("err", err.Error()))
		m.anonymous()
		return nil, err
	}

	m.authenticated(cs.User)

	return cs.User.Clone(), nil
}

// Logout уведомляет сервер (ошибка только логируется) и всегда очищает
// набор локально. Возвращается лишь ошибка локального хранилища;
// состояние Anonymous в любом случае.
func (m *Manager) Logout(ctx context.Context) error {
	const op = "session.Logout"

	log := logctx.From(ctx, m.log)

	cs, _, err := m.vault.Current(ctx)
	switch {
	case err == nil:
		nctx, cancel := context.WithTimeout(ctx, m.logoutTimeout)
		if err := m.api.Logout(nctx, cs.AccessToken, cs.RefreshToken); err != nil {
			log.Warn("logout_notify_failed", slog.String("err", err.Error()))
		}
		cancel()
	case !errors.Is(err, credentials.ErrNotFound):
		log.Warn("credentials_read_failed", slog.String("err", err.Error()))
	}

	cerr := m.vault.Clear(context.WithoutCancel(ctx))
	m.anonymous()

	if cerr != nil {
		log.Error("credentials_clear_failed", slog.String("err", cerr.Error()))
		return fmt.Errorf("%s: %w", op, cerr)
	}

	log.Info("logout_ok")

	return nil
}

// HandleExpired — обработчик завершения сессии для Authenticator:
// refresh-токен отвергнут, набор уже удалён.
func (m *Manager) HandleExpired(ctx context.Context, err error) {
	log := logctx.From(ctx, m.log)
	if err != nil {
		log.Warn("session_terminated", slog.String("err", err.Error()))
	} else {
		log.Warn("session_terminated")
	}

	m.anonymous()
}

// failedFields — имена полей из ответа сервера с ошибкой.
func failedFields(err error) []string {
	var e *apierr.Error
	if !errors.As(err, &e) {
		return nil
	}

	return e.FieldNames()
}
