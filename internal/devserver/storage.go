package devserver

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/pribylovaa/go-workconnect/internal/models"
)

var (
	// ErrNotFound — запись не найдена (пользователь/токен).
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists — нарушение уникальности (email/refresh-token).
	ErrAlreadyExists = errors.New("already exists")
)

// Account — пользователь бэкенда: публичный профиль и bcrypt-хэш пароля.
type Account struct {
	Profile      models.User
	PasswordHash string
}

// RefreshToken — серверная запись refresh-токена. Сам токен не хранится,
// только sha256-хэш.
type RefreshToken struct {
	Hash      string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
	Revoked   bool
}

// Storage — контракт хранилища dev-бэкенда.
type Storage interface {
	SaveAccount(ctx context.Context, acc *Account) error
	AccountByEmail(ctx context.Context, email string) (*Account, error)
	AccountByID(ctx context.Context, id string) (*Account, error)

	SaveRefreshToken(ctx context.Context, token *RefreshToken) error
	RefreshTokenByHash(ctx context.Context, hash string) (*RefreshToken, error)
	// RevokeRefreshToken возвращает false, если токен уже был отозван.
	RevokeRefreshToken(ctx context.Context, hash string) (bool, error)
	// DeleteExpiredTokens удаляет токены с ExpiresAt <= now и возвращает их число.
	DeleteExpiredTokens(ctx context.Context, now time.Time) (int, error)
}

// MemoryStorage — потокобезопасная реализация Storage в памяти процесса.
type MemoryStorage struct {
	mu      sync.RWMutex
	byID    map[string]*Account
	byEmail map[string]string
	tokens  map[string]*RefreshToken
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		byID:    make(map[string]*Account),
		byEmail: make(map[string]string),
		tokens:  make(map[string]*RefreshToken),
	}
}

func (s *MemoryStorage) SaveAccount(_ context.Context, acc *Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(acc.Profile.Email)
	if _, ok := s.byEmail[email]; ok {
		return ErrAlreadyExists
	}
	if _, ok := s.byID[acc.Profile.ID]; ok {
		return ErrAlreadyExists
	}

	cp := *acc
	cp.Profile = *acc.Profile.Clone()
	s.byID[acc.Profile.ID] = &cp
	s.byEmail[email] = acc.Profile.ID

	return nil
}

func (s *MemoryStorage) AccountByEmail(_ context.Context, email string) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, ErrNotFound
	}

	return s.copyLocked(id)
}

func (s *MemoryStorage) AccountByID(_ context.Context, id string) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.copyLocked(id)
}

func (s *MemoryStorage) copyLocked(id string) (*Account, error) {
	acc, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}

	cp := *acc
	cp.Profile = *acc.Profile.Clone()

	return &cp, nil
}

func (s *MemoryStorage) SaveRefreshToken(_ context.Context, token *RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tokens[token.Hash]; ok {
		return ErrAlreadyExists
	}

	cp := *token
	s.tokens[token.Hash] = &cp

	return nil
}

func (s *MemoryStorage) RefreshTokenByHash(_ context.Context, hash string) (*RefreshToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tokens[hash]
	if !ok {
		return nil, ErrNotFound
	}

	cp := *t
	return &cp, nil
}

func (s *MemoryStorage) RevokeRefreshToken(_ context.Context, hash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tokens[hash]
	if !ok {
		return false, ErrNotFound
	}
	if t.Revoked {
		return false, nil
	}

	t.Revoked = true
	return true, nil
}

func (s *MemoryStorage) DeleteExpiredTokens(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for hash, t := range s.tokens {
		if !t.ExpiresAt.After(now) {
			delete(s.tokens, hash)
			n++
		}
	}

	return n, nil
}

var _ Storage = (*MemoryStorage)(nil)
