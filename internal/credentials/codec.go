package credentials

import (
	"encoding/json"
	"fmt"

	"github.com/pribylovaa/go-workconnect/internal/models"
)

// Encode раскладывает набор по логическим ключам.
func Encode(cs *models.CredentialSet) (map[string]string, error) {
	const op = "credentials.Encode"

	if !cs.Complete() {
		return nil, fmt.Errorf("%s: %w", op, ErrIncomplete)
	}

	user, err := json.Marshal(cs.User)
	if err != nil {
		return nil, fmt.Errorf("%s: marshal user: %w", op, err)
	}

	return map[string]string{
		KeyAccessToken:  cs.AccessToken,
		KeyRefreshToken: cs.RefreshToken,
		KeyUserData:     string(user),
	}, nil
}

// Decode собирает набор из логических ключей.
// Пустая карта -> ErrNotFound; любая отсутствующая или битая часть -> ErrIncomplete.
// user_data без id (в том числе null и {}) считается отсутствующим.
func Decode(kv map[string]string) (*models.CredentialSet, error) {
	const op = "credentials.Decode"

	access, refresh, user := kv[KeyAccessToken], kv[KeyRefreshToken], kv[KeyUserData]
	if access == "" && refresh == "" && user == "" {
		return nil, ErrNotFound
	}

	if access == "" || refresh == "" || user == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrIncomplete)
	}

	var u models.User
	if err := json.Unmarshal([]byte(user), &u); err != nil {
		return nil, fmt.Errorf("%s: user_data: %w: %v", op, ErrIncomplete, err)
	}
	if u.ID == "" {
		return nil, fmt.Errorf("%s: user_data without id: %w", op, ErrIncomplete)
	}

	return &models.CredentialSet{
		AccessToken:  access,
		RefreshToken: refresh,
		User:         &u,
	}, nil
}
