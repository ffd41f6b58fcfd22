// credentials хранит набор учётных данных {access, refresh, user}.
//
// Store — устойчивое хранилище (память, файл, Redis, PostgreSQL):
// набор пишется и очищается целиком, частичный набор никогда
// не возвращается из Load. Vault — единственный писатель поверх Store.
package credentials

import (
	"context"
	"errors"

	"github.com/pribylovaa/go-workconnect/internal/models"
)

// Логические ключи набора.
const (
	KeyAccessToken  = "auth_token"
	KeyRefreshToken = "refresh_token"
	KeyUserData     = "user_data"
)

// WriteOrder — порядок записи для хранилищ без транзакций:
// access-токен не появляется раньше refresh-токена.
var WriteOrder = []string{KeyRefreshToken, KeyAccessToken, KeyUserData}

var (
	// ErrNotFound — набор отсутствует.
	ErrNotFound = errors.New("credentials not found")
	// ErrIncomplete — набор неполон (или повреждён) и считается отсутствующим.
	ErrIncomplete = errors.New("credential set is incomplete")
	// ErrStale — набор сменился (logout/login/refresh) после того, как его прочитали.
	ErrStale = errors.New("credential set changed")
)

// Store задаёт контракт устойчивого хранилища набора.
type Store interface {
	// Save записывает все три части; неполный набор отвергается с ErrIncomplete.
	Save(ctx context.Context, cs *models.CredentialSet) error
	// Load возвращает полный набор, ErrNotFound или ErrIncomplete.
	Load(ctx context.Context) (*models.CredentialSet, error)
	// Clear удаляет все три части; отсутствие набора не ошибка.
	Clear(ctx context.Context) error
}
