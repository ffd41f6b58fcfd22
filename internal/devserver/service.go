// devserver — локальный бэкенд эндпойнтов /auth/* WorkConnect.
//
// Повторяет контракт REST-бэкенда, с которым работает клиент:
//   - register/login выдают {message, user, tokens:{access, refresh}};
//   - access — HS256 JWT с коротким TTL;
//   - refresh — случайный секрет, на сервере хранится только его sha256-хэш;
//   - refresh по умолчанию не ротируется (RotateRefresh включает ротацию);
//   - logout отзывает refresh-токен;
//   - ошибки в формате DRF: {"detail": "..."} или {"email": ["..."]}.
//
// Используется в интеграционных тестах клиента и бинарником
// cmd/workconnect-devserver.
package devserver

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/pribylovaa/go-workconnect/internal/config"
	"github.com/pribylovaa/go-workconnect/internal/models"
	logctx "github.com/pribylovaa/go-workconnect/internal/pkg/log"
)

const minPasswordLen = 8

var (
	// ErrInvalidCredentials — пара email/пароль неверна или пользователь не найден (400).
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidToken — токен некорректен по формату/подписи или неизвестен (401).
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired — срок действия токена истёк (401).
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenRevoked — refresh-токен отозван (401).
	ErrTokenRevoked = errors.New("token revoked")
	// ErrNoCredentials — запрос без bearer-токена на защищённый эндпойнт (401).
	ErrNoCredentials = errors.New("authentication credentials were not provided")
	// ErrEmailTaken — e-mail уже зарегистрирован (400, поле email).
	ErrEmailTaken = errors.New("email already taken")
	// ErrRefreshTokenCollision — не удалось сгенерировать уникальный refresh (500).
	ErrRefreshTokenCollision = errors.New("refresh token collision")
)

// FieldErrors — ошибки проверки полей запроса: {"email": ["..."]}.
type FieldErrors map[string][]string

func (e FieldErrors) Error() string {
	parts := make([]string, 0, len(e))
	for k, msgs := range e {
		parts = append(parts, k+": "+strings.Join(msgs, "; "))
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

type Options struct {
	JWTSecret       string
	Issuer          string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	RotateRefresh   bool
	// Now — источник времени; nil означает time.Now.
	Now func() time.Time
}

// OptionsFromConfig переносит секцию devserver конфигурации в Options.
func OptionsFromConfig(cfg config.DevServerConfig) Options {
	return Options{
		JWTSecret:       cfg.JWTSecret,
		Issuer:          "workconnect-devserver",
		AccessTokenTTL:  cfg.AccessTokenTTL,
		RefreshTokenTTL: cfg.RefreshTokenTTL,
		RotateRefresh:   cfg.RotateRefresh,
	}
}

// Service — бизнес-логика dev-бэкенда. Безопасен для конкурентного
// использования при потокобезопасном Storage.
type Service struct {
	storage Storage
	opts    Options
}

func NewService(st Storage, opts Options) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.AccessTokenTTL <= 0 {
		opts.AccessTokenTTL = 5 * time.Minute
	}
	if opts.RefreshTokenTTL <= 0 {
		opts.RefreshTokenTTL = 24 * time.Hour
	}
	if opts.Issuer == "" {
		opts.Issuer = "workconnect-devserver"
	}

	return &Service{storage: st, opts: opts}
}

func (s *Service) now() time.Time { return s.opts.Now().UTC() }

// Register регистрирует пользователя и выдаёт пару токенов.
func (s *Service) Register(ctx context.Context, in models.RegisterRequest) (*models.AuthResponse, error) {
	const op = "devserver.Register"

	email, fe := validateRegister(in)
	if fe != nil {
		return nil, fmt.Errorf("%s: %w", op, fe)
	}

	if _, err := s.storage.AccountByEmail(ctx, email); err == nil {
		return nil, fmt.Errorf("%s: %w", op, ErrEmailTaken)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	now := s.now()
	acc := &Account{
		Profile: models.User{
			ID:          uuid.NewString(),
			Email:       email,
			FirstName:   strings.TrimSpace(in.FirstName),
			LastName:    strings.TrimSpace(in.LastName),
			Role:        in.Role,
			PhoneNumber: in.PhoneNumber,
			Skills:      []string{},
			Languages:   []string{},
			CreatedAt:   now,
			UpdatedAt:   now,
		},
		PasswordHash: string(hash),
	}
	acc.Profile.FullName = strings.TrimSpace(acc.Profile.FirstName + " " + acc.Profile.LastName)

	if err := s.storage.SaveAccount(ctx, acc); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			return nil, fmt.Errorf("%s: %w", op, ErrEmailTaken)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	logctx.From(ctx).Info("user_registered", slog.String("user_id", acc.Profile.ID))

	return s.authResponse(ctx, "Registration successful", acc)
}

// Login проверяет email+пароль и выдаёт пару токенов.
func (s *Service) Login(ctx context.Context, in models.LoginRequest) (*models.AuthResponse, error) {
	const op = "devserver.Login"

	fe := FieldErrors{}
	if strings.TrimSpace(in.Email) == "" {
		fe["email"] = []string{"This field may not be blank."}
	}
	if in.Password == "" {
		fe["password"] = []string{"This field may not be blank."}
	}
	if len(fe) > 0 {
		return nil, fmt.Errorf("%s: %w", op, fe)
	}

	acc, err := s.storage.AccountByEmail(ctx, strings.TrimSpace(in.Email))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(in.Password)) != nil {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	return s.authResponse(ctx, "Login successful", acc)
}

// Refresh выдаёт новый access-токен по refresh-токену. При RotateRefresh
// старый refresh отзывается и в ответе приходит новый.
func (s *Service) Refresh(ctx context.Context, refresh string) (*models.RefreshResponse, error) {
	const op = "devserver.Refresh"

	if refresh == "" {
		return nil, fmt.Errorf("%s: %w", op, FieldErrors{"refresh": {"This field may not be blank."}})
	}

	token, err := s.validateRefreshToken(ctx, refresh)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	acc, err := s.storage.AccountByID(ctx, token.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	access, err := s.generateAccessToken(acc.Profile.ID, acc.Profile.Email)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	out := &models.RefreshResponse{Access: access}

	if s.opts.RotateRefresh {
		revoked, err := s.storage.RevokeRefreshToken(ctx, token.Hash)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if !revoked {
			// Параллельный refresh уже ротировал этот токен.
			return nil, fmt.Errorf("%s: %w", op, ErrTokenRevoked)
		}

		next, err := s.generateRefreshToken(ctx, acc.Profile.ID)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		out.Refresh = next
	}

	return out, nil
}

// Logout отзывает refresh-токен.
func (s *Service) Logout(ctx context.Context, refresh string) error {
	const op = "devserver.Logout"

	if refresh == "" {
		return fmt.Errorf("%s: %w", op, FieldErrors{"refresh": {"This field may not be blank."}})
	}

	revoked, err := s.storage.RevokeRefreshToken(ctx, hashToken(refresh))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("%s: %w", op, ErrInvalidToken)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	if !revoked {
		return fmt.Errorf("%s: %w", op, ErrTokenRevoked)
	}

	return nil
}

// Authenticate проверяет access-токен и возвращает id пользователя.
func (s *Service) Authenticate(access string) (string, error) {
	const op = "devserver.Authenticate"

	if access == "" {
		return "", fmt.Errorf("%s: %w", op, ErrNoCredentials)
	}

	uid, err := s.validateAccessToken(access)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return uid, nil
}

// Profile возвращает профиль пользователя.
func (s *Service) Profile(ctx context.Context, userID string) (*models.User, error) {
	const op = "devserver.Profile"

	acc, err := s.storage.AccountByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &acc.Profile, nil
}

// PurgeExpired удаляет просроченные refresh-токены.
func (s *Service) PurgeExpired(ctx context.Context) (int, error) {
	const op = "devserver.PurgeExpired"

	n, err := s.storage.DeleteExpiredTokens(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return n, nil
}

func (s *Service) authResponse(ctx context.Context, msg string, acc *Account) (*models.AuthResponse, error) {
	access, err := s.generateAccessToken(acc.Profile.ID, acc.Profile.Email)
	if err != nil {
		return nil, err
	}

	refresh, err := s.generateRefreshToken(ctx, acc.Profile.ID)
	if err != nil {
		return nil, err
	}

	return &models.AuthResponse{
		Message: msg,
		User:    *acc.Profile.Clone(),
		Tokens:  models.TokenPair{Access: access, Refresh: refresh},
	}, nil
}

type accessClaims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

func (s *Service) generateAccessToken(userID, email string) (string, error) {
	const op = "devserver.generateAccessToken"

	now := s.now()
	claims := accessClaims{
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.opts.AccessTokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.opts.Issuer,
			Subject:   userID,
			// jti: токены, выданные в одну секунду, различаются.
			ID: uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.opts.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return signed, nil
}

func (s *Service) validateAccessToken(tokenStr string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &accessClaims{},
		func(*jwt.Token) (interface{}, error) {
			return []byte(s.opts.JWTSecret), nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.opts.Issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(*accessClaims)
	if !ok || !token.Valid || claims.UserID == "" {
		return "", ErrInvalidToken
	}

	return claims.UserID, nil
}

func (s *Service) generateRefreshToken(ctx context.Context, userID string) (string, error) {
	const (
		op          = "devserver.generateRefreshToken"
		maxAttempts = 5
	)

	for attempt := 0; attempt < maxAttempts; attempt++ {
		b := make([]byte, 32)
		if _, err := rand.Read(b); err != nil {
			return "", fmt.Errorf("%s: %w", op, err)
		}
		plain := base64.RawURLEncoding.EncodeToString(b)

		now := s.now()
		err := s.storage.SaveRefreshToken(ctx, &RefreshToken{
			Hash:      hashToken(plain),
			UserID:    userID,
			CreatedAt: now,
			ExpiresAt: now.Add(s.opts.RefreshTokenTTL),
		})
		if errors.Is(err, ErrAlreadyExists) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("%s: %w", op, err)
		}

		return plain, nil
	}

	return "", fmt.Errorf("%s: %w", op, ErrRefreshTokenCollision)
}

func (s *Service) validateRefreshToken(ctx context.Context, plain string) (*RefreshToken, error) {
	lg := logctx.From(ctx)

	token, err := s.storage.RefreshTokenByHash(ctx, hashToken(plain))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			lg.Warn("refresh_lookup_not_found")
			return nil, ErrInvalidToken
		}
		return nil, err
	}

	if token.Revoked {
		lg.Warn("refresh_revoked", slog.String("user_id", token.UserID))
		return nil, ErrTokenRevoked
	}

	if s.now().After(token.ExpiresAt) {
		lg.Warn("refresh_expired", slog.String("user_id", token.UserID))
		return nil, ErrTokenExpired
	}

	return token, nil
}

func hashToken(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// validateRegister проверяет поля регистрации и нормализует email.
func validateRegister(in models.RegisterRequest) (string, FieldErrors) {
	fe := FieldErrors{}

	email := strings.ToLower(strings.TrimSpace(in.Email))
	switch {
	case email == "":
		fe["email"] = []string{"This field may not be blank."}
	default:
		if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
			fe["email"] = []string{"Enter a valid email address."}
		}
	}

	switch {
	case in.Password == "":
		fe["password"] = []string{"This field may not be blank."}
	case utf8.RuneCountInString(in.Password) < minPasswordLen:
		fe["password"] = []string{fmt.Sprintf("This password is too short. It must contain at least %d characters.", minPasswordLen)}
	case in.Password != in.ConfirmPassword:
		fe["confirm_password"] = []string{"Passwords don't match."}
	}

	if strings.TrimSpace(in.FirstName) == "" {
		fe["first_name"] = []string{"This field may not be blank."}
	}

	if !in.Role.Valid() {
		fe["role"] = []string{fmt.Sprintf("%q is not a valid choice.", string(in.Role))}
	}

	if len(fe) > 0 {
		return "", fe
	}

	return email, nil
}
