// postgres — хранилище набора учётных данных в PostgreSQL.
// Одна строка device_credentials на устройство; запись — один UPSERT.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pribylovaa/go-workconnect/internal/credentials"
	"github.com/pribylovaa/go-workconnect/internal/models"
)

type Store struct {
	db       *pgxpool.Pool
	deviceID string
}

// New создает новое подключение к PostgreSQL.
func New(ctx context.Context, dbURL, deviceID string) (*Store, error) {
	const op = "credentials.postgres.New"

	config, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	db, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Store{db: db, deviceID: deviceID}, nil
}

// Close закрывает пул соединений.
func (s *Store) Close() {
	s.db.Close()
}

// Save перезаписывает строку устройства целиком.
// Пустые токены отвергает сама схема (CHECK), что даёт ErrIncomplete.
func (s *Store) Save(ctx context.Context, cs *models.CredentialSet) error {
	const op = "credentials.postgres.Save"

	if cs == nil || cs.User == nil {
		return fmt.Errorf("%s: %w", op, credentials.ErrIncomplete)
	}

	user, err := json.Marshal(cs.User)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	query := `
        INSERT INTO device_credentials(device_id, access_token, refresh_token, user_data, updated_at)
        VALUES ($1, $2, $3, $4, now())
        ON CONFLICT (device_id) DO UPDATE
        SET access_token  = EXCLUDED.access_token,
            refresh_token = EXCLUDED.refresh_token,
            user_data     = EXCLUDED.user_data,
            updated_at    = EXCLUDED.updated_at
    `

	_, err = s.db.Exec(ctx, query, s.deviceID, cs.AccessToken, cs.RefreshToken, user)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case pgerrcode.NotNullViolation, pgerrcode.CheckViolation:
				return fmt.Errorf("%s: %w", op, credentials.ErrIncomplete)
			}
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Store) Load(ctx context.Context) (*models.CredentialSet, error) {
	const op = "credentials.postgres.Load"

	query := `
        SELECT access_token, refresh_token, user_data
        FROM device_credentials
        WHERE device_id = $1
    `

	var (
		cs   models.CredentialSet
		user []byte
	)
	err := s.db.QueryRow(ctx, query, s.deviceID).Scan(&cs.AccessToken, &cs.RefreshToken, &user)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, credentials.ErrNotFound
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var u models.User
	if err := json.Unmarshal(user, &u); err != nil {
		return nil, fmt.Errorf("%s: user_data: %w: %v", op, credentials.ErrIncomplete, err)
	}
	cs.User = &u

	if !cs.Complete() {
		return nil, fmt.Errorf("%s: %w", op, credentials.ErrIncomplete)
	}

	return &cs, nil
}

func (s *Store) Clear(ctx context.Context) error {
	const op = "credentials.postgres.Clear"

	if _, err := s.db.Exec(ctx, `DELETE FROM device_credentials WHERE device_id = $1`, s.deviceID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// Проверка на соответствие интерфейсу Store.
var _ credentials.Store = (*Store)(nil)
