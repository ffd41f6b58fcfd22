// session — единственный источник истины о том, кто вошёл в систему.
//
// Состояния: Initializing -> {Authenticated(user), Anonymous}.
// Manager владеет снимком сессии; снимок всегда выводится из набора
// учётных данных в Vault и никогда не хранится отдельно.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pribylovaa/go-workconnect/internal/models"
)

type State uint8

const (
	StateInitializing State = iota
	StateAuthenticated
	StateAnonymous
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateAuthenticated:
		return "authenticated"
	case StateAnonymous:
		return "anonymous"
	default:
		return "unknown"
	}
}

// Snapshot — состояние сессии для потребителей (UI, CLI).
// Loading выставлен, пока идёт проверка профиля, login или signup.
type Snapshot struct {
	State   State
	User    *models.User
	Loading bool
}

// AuthAPI — эндпойнты /auth/*, нужные менеджеру (реализуется *api.Client).
//
//go:generate mockgen -destination=../mocks/mock_auth_api.go -package=mocks github.com/pribylovaa/go-workconnect/internal/session AuthAPI
type AuthAPI interface {
	Login(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error)
	Register(ctx context.Context, req models.RegisterRequest) (*models.AuthResponse, error)
	Logout(ctx context.Context, access, refresh string) error
	Profile(ctx context.Context) (*models.User, error)
}

// Vault — хранилище набора учётных данных (реализуется *credentials.Vault).
type Vault interface {
	Load(ctx context.Context) (*models.CredentialSet, uint64, error)
	Current(ctx context.Context) (*models.CredentialSet, uint64, error)
	Save(ctx context.Context, cs *models.CredentialSet) (uint64, error)
	UpdateUser(ctx context.Context, gen uint64, user *models.User) (uint64, error)
	Clear(ctx context.Context) error
}

type Options struct {
	Logger *slog.Logger
	// LogoutTimeout ограничивает уведомление сервера при logout.
	LogoutTimeout time.Duration
}

type Manager struct {
	api   AuthAPI
	vault Vault
	log   *slog.Logger

	logoutTimeout time.Duration

	initOnce sync.Once
	initErr  error

	mu    sync.Mutex
	snap  Snapshot
	epoch uint64
	subs  map[chan Snapshot]struct{}
}

func New(api AuthAPI, vault Vault, opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.LogoutTimeout <= 0 {
		opts.LogoutTimeout = 5 * time.Second
	}

	return &Manager{
		api:           api,
		vault:         vault,
		log:           opts.Logger,
		logoutTimeout: opts.LogoutTimeout,
		snap:          Snapshot{State: StateInitializing},
		subs:          make(map[chan Snapshot]struct{}),
	}
}

// Snapshot возвращает копию текущего состояния.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.copyLocked()
}

// User возвращает текущего пользователя или nil.
func (m *Manager) User() *models.User {
	return m.Snapshot().User
}

// Subscribe возвращает канал изменений состояния. Канал сразу получает
// текущий снимок; медленный читатель видит только последний.
// cancel закрывает канал.
func (m *Manager) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	m.mu.Lock()
	m.subs[ch] = struct{}{}
	ch <- m.copyLocked()
	m.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, ch)
			close(ch)
			m.mu.Unlock()
		})
	}

	return ch, cancel
}

func (m *Manager) copyLocked() Snapshot {
	s := m.snap
	s.User = s.User.Clone()
	return s
}

// setLocked меняет состояние и оповещает подписчиков.
// Вызывающий держит m.mu.
func (m *Manager) setLocked(next Snapshot) {
	if next.State == StateAnonymous {
		next.User = nil
	}
	m.snap = next

	s := m.copyLocked()
	for ch := range m.subs {
		select {
		case <-ch:
		default:
		}
		// Единственный писатель держит m.mu: после вычитывания буфер свободен.
		ch <- s
	}
}

// authenticated переводит сессию в Authenticated(user) и начинает новую эпоху.
func (m *Manager) authenticated(user *models.User) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.epoch++
	m.setLocked(Snapshot{State: StateAuthenticated, User: user.Clone()})
}

// anonymous переводит сессию в Anonymous и начинает новую эпоху.
func (m *Manager) anonymous() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.epoch++
	m.setLocked(Snapshot{State: StateAnonymous})
}

// setLoading выставляет флаг загрузки, не меняя состояние.
func (m *Manager) setLoading(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := m.snap
	next.Loading = v
	m.setLocked(next)
}
