// redis — хранилище набора учётных данных в Redis.
//
// Набор устройства лежит в одном хэше <prefix><device_id> с полями
// auth_token, refresh_token, user_data. Save выполняет DEL+HSET внутри
// MULTI/EXEC, поэтому читатель не видит смесь старого и нового наборов.
package redis

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pribylovaa/go-workconnect/internal/credentials"
	"github.com/pribylovaa/go-workconnect/internal/models"
)

const defaultPrefix = "workconnect:credentials:"

type Store struct {
	rdb    *goredis.Client
	key    string
	closer bool
}

// New создаёт клиент Redis из URL (например, redis://:pass@host:6379/0)
// и проверяет соединение. Если prefix пустой — используется "workconnect:credentials:".
func New(ctx context.Context, redisURL, prefix, deviceID string) (*Store, error) {
	const op = "credentials.redis.New"

	opt, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	rdb := goredis.NewClient(opt)

	// Fail-fast на старте.
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s := NewWithClient(rdb, prefix, deviceID)
	s.closer = true

	return s, nil
}

// NewWithClient использует готовый клиент; Close его не закрывает.
func NewWithClient(rdb *goredis.Client, prefix, deviceID string) *Store {
	if prefix == "" {
		prefix = defaultPrefix
	}

	return &Store{rdb: rdb, key: prefix + deviceID}
}

func (s *Store) Save(ctx context.Context, cs *models.CredentialSet) error {
	const op = "credentials.redis.Save"

	kv, err := credentials.Encode(cs)
	if err != nil {
		return err
	}

	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, s.key)
	pipe.HSet(ctx, s.key, kv)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Store) Load(ctx context.Context) (*models.CredentialSet, error) {
	const op = "credentials.redis.Load"

	m, err := s.rdb.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return credentials.Decode(m)
}

func (s *Store) Clear(ctx context.Context) error {
	const op = "credentials.redis.Clear"

	if err := s.rdb.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Store) Close() error {
	if !s.closer {
		return nil
	}

	return s.rdb.Close()
}
