package redis

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/pribylovaa/go-workconnect/internal/credentials"
	"github.com/pribylovaa/go-workconnect/internal/models"

	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T, device string) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return NewWithClient(rdb, "wc:test:", device), mr
}

func sampleSet(access string) *models.CredentialSet {
	return &models.CredentialSet{
		AccessToken:  access,
		RefreshToken: "refresh-" + access,
		User: &models.User{
			ID:        "u-1",
			Email:     "ada@lovelace.dev",
			FirstName: "Ada",
			Role:      models.RoleClient,
			Skills:    []string{},
			Languages: []string{},
		},
	}
}

func TestStore_SaveLoadClear(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, mr := setupStore(t, "phone")

	_, err := s.Load(ctx)
	require.ErrorIs(t, err, credentials.ErrNotFound)

	require.NoError(t, s.Save(ctx, sampleSet("a1")))
	require.Equal(t, "a1", mr.HGet("wc:test:phone", credentials.KeyAccessToken))
	require.Equal(t, "refresh-a1", mr.HGet("wc:test:phone", credentials.KeyRefreshToken))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, "a1", got.AccessToken)
	require.Equal(t, "ada@lovelace.dev", got.User.Email)

	require.NoError(t, s.Clear(ctx))
	require.False(t, mr.Exists("wc:test:phone"))

	_, err = s.Load(ctx)
	require.ErrorIs(t, err, credentials.ErrNotFound)
	require.NoError(t, s.Clear(ctx))
}

func TestStore_SaveReplacesWholeHash(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, mr := setupStore(t, "phone")

	mr.HSet("wc:test:phone", "stale_field", "x")
	require.NoError(t, s.Save(ctx, sampleSet("a2")))

	require.Empty(t, mr.HGet("wc:test:phone", "stale_field"))

	keys, err := mr.HKeys("wc:test:phone")
	require.NoError(t, err)
	require.ElementsMatch(t,
		[]string{credentials.KeyAccessToken, credentials.KeyRefreshToken, credentials.KeyUserData},
		keys)
}

func TestStore_PartialHashIsIncomplete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, mr := setupStore(t, "phone")

	mr.HSet("wc:test:phone", credentials.KeyAccessToken, "orphan")

	_, err := s.Load(ctx)
	require.ErrorIs(t, err, credentials.ErrIncomplete)
}

func TestStore_NullUserDataIsIncomplete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, mr := setupStore(t, "phone")

	mr.HSet("wc:test:phone",
		credentials.KeyAccessToken, "a",
		credentials.KeyRefreshToken, "r",
		credentials.KeyUserData, "null",
	)

	_, err := s.Load(ctx)
	require.ErrorIs(t, err, credentials.ErrIncomplete)
}

func TestStore_RejectsIncomplete(t *testing.T) {
	t.Parallel()
	s, mr := setupStore(t, "phone")

	cs := sampleSet("a1")
	cs.RefreshToken = ""
	require.ErrorIs(t, s.Save(context.Background(), cs), credentials.ErrIncomplete)
	require.False(t, mr.Exists("wc:test:phone"))
}

func TestStore_DevicesAreIsolated(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	a := NewWithClient(rdb, "", "a")
	b := NewWithClient(rdb, "", "b")

	require.NoError(t, a.Save(ctx, sampleSet("a1")))
	_, err := b.Load(ctx)
	require.ErrorIs(t, err, credentials.ErrNotFound)
	require.True(t, mr.Exists(defaultPrefix+"a"))
}

func TestStore_WorksUnderVault(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, _ := setupStore(t, "phone")

	v := credentials.NewVault(s, nil)
	gen, err := v.Save(ctx, sampleSet("a1"))
	require.NoError(t, err)

	_, err = v.UpdateTokens(ctx, gen, "a2", "r2")
	require.NoError(t, err)

	got, err := s.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, "a2", got.AccessToken)
	require.Equal(t, "r2", got.RefreshToken)
}

func TestNew_BadURL(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), "://nope", "", "d")
	require.Error(t, err)
}

func TestNew_PingAndClose(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	s, err := New(context.Background(), "redis://"+mr.Addr()+"/0", "", "d")
	require.NoError(t, err)
	require.NoError(t, s.Close())
}
