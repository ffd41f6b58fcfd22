package credentials

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pribylovaa/go-workconnect/internal/models"
	logctx "github.com/pribylovaa/go-workconnect/internal/pkg/log"
)

// Vault — единственный писатель набора поверх Store.
//
// Все изменения сериализуются мьютексом и увеличивают поколение (gen).
// Обновления, вычисленные из устаревшего поколения (refresh, завершившийся
// после logout или повторного login), отвергаются с ErrStale.
// Кэш в памяти синхронизирован со Store: после неуспешной записи набор
// считается отсутствующим.
type Vault struct {
	store Store
	log   *slog.Logger

	mu     sync.Mutex
	loaded bool
	cur    *models.CredentialSet
	gen    uint64
}

func NewVault(store Store, log *slog.Logger) *Vault {
	return &Vault{store: store, log: log}
}

// Load перечитывает набор из Store. Неполный набор удаляется.
// Отсутствие набора -> ErrNotFound; ошибка чтения хранилища возвращается
// обёрнутой, при этом набор в памяти считается отсутствующим.
func (v *Vault) Load(ctx context.Context) (*models.CredentialSet, uint64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.loaded = false
	if err := v.loadLocked(ctx); err != nil {
		return nil, v.gen, err
	}

	if v.cur == nil {
		return nil, v.gen, ErrNotFound
	}

	return v.cur.Clone(), v.gen, nil
}

// Current возвращает набор из памяти (при первом обращении читает Store).
func (v *Vault) Current(ctx context.Context) (*models.CredentialSet, uint64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.loaded {
		if err := v.loadLocked(ctx); err != nil {
			return nil, v.gen, err
		}
	}

	if v.cur == nil {
		return nil, v.gen, ErrNotFound
	}

	return v.cur.Clone(), v.gen, nil
}

// Save записывает новый набор целиком (login/signup).
func (v *Vault) Save(ctx context.Context, cs *models.CredentialSet) (uint64, error) {
	const op = "credentials.Vault.Save"

	if !cs.Complete() {
		return 0, fmt.Errorf("%s: %w", op, ErrIncomplete)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.writeLocked(ctx, cs.Clone()); err != nil {
		return v.gen, fmt.Errorf("%s: %w", op, err)
	}

	return v.gen, nil
}

// UpdateTokens заменяет access-токен (и refresh, если он ротирован)
// при условии, что набор не менялся с поколения gen.
func (v *Vault) UpdateTokens(ctx context.Context, gen uint64, access, refresh string) (uint64, error) {
	const op = "credentials.Vault.UpdateTokens"

	if access == "" {
		return 0, fmt.Errorf("%s: %w", op, ErrIncomplete)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.cur == nil || gen != v.gen {
		return v.gen, fmt.Errorf("%s: %w", op, ErrStale)
	}

	next := v.cur.Clone()
	next.AccessToken = access
	if refresh != "" {
		next.RefreshToken = refresh
	}

	if err := v.writeLocked(ctx, next); err != nil {
		return v.gen, fmt.Errorf("%s: %w", op, err)
	}

	return v.gen, nil
}

// UpdateUser заменяет снимок профиля при условии, что набор не менялся с gen.
func (v *Vault) UpdateUser(ctx context.Context, gen uint64, user *models.User) (uint64, error) {
	const op = "credentials.Vault.UpdateUser"

	if user == nil {
		return 0, fmt.Errorf("%s: %w", op, ErrIncomplete)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.cur == nil || gen != v.gen {
		return v.gen, fmt.Errorf("%s: %w", op, ErrStale)
	}

	next := v.cur.Clone()
	next.User = user.Clone()

	if err := v.writeLocked(ctx, next); err != nil {
		return v.gen, fmt.Errorf("%s: %w", op, err)
	}

	return v.gen, nil
}

// Clear удаляет набор. Набор в памяти очищается даже при ошибке Store.
func (v *Vault) Clear(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	return v.clearLocked(ctx)
}

// ClearIf удаляет набор, только если он не менялся с поколения gen.
// Возвращает true, если набор был удалён этим вызовом.
func (v *Vault) ClearIf(ctx context.Context, gen uint64) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.cur == nil || gen != v.gen {
		return false, nil
	}

	return true, v.clearLocked(ctx)
}

func (v *Vault) loadLocked(ctx context.Context) error {
	const op = "credentials.Vault.Load"

	log := logctx.From(ctx, v.log)

	cs, err := v.store.Load(ctx)
	v.loaded = true

	switch {
	case err == nil:
		v.cur = cs
		return nil

	case errors.Is(err, ErrNotFound):
		v.cur = nil
		return nil

	case errors.Is(err, ErrIncomplete):
		log.Warn("credentials_incomplete_cleared", slog.String("err", err.Error()))
		v.cur = nil
		v.gen++
		if cerr := v.store.Clear(ctx); cerr != nil {
			log.Error("credentials_clear_failed", slog.String("err", cerr.Error()))
		}
		return nil

	default:
		v.cur = nil
		return fmt.Errorf("%s: %w", op, err)
	}
}

func (v *Vault) writeLocked(ctx context.Context, next *models.CredentialSet) error {
	v.gen++
	v.loaded = true

	if err := v.store.Save(ctx, next); err != nil {
		// Состояние хранилища неизвестно: сводим его к "набора нет".
		v.cur = nil
		if cerr := v.store.Clear(ctx); cerr != nil {
			logctx.From(ctx, v.log).Error("credentials_clear_failed", slog.String("err", cerr.Error()))
		}
		return err
	}

	v.cur = next
	return nil
}

func (v *Vault) clearLocked(ctx context.Context) error {
	const op = "credentials.Vault.Clear"

	v.gen++
	v.loaded = true
	v.cur = nil

	if err := v.store.Clear(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
