package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sio4242/Godsaeng-project/internal/domain/shared"
)

func TestConfig_PoolConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.URL = "postgres://app:pw@localhost:5432/godsaeng?sslmode=disable"
	cfg.MaxConns = 7

	pc, err := cfg.PoolConfig()
	require.NoError(t, err)
	assert.Equal(t, int32(7), pc.MaxConns)
	assert.Equal(t, int32(2), pc.MinConns)
	assert.Equal(t, time.Hour, pc.MaxConnLifetime)
	assert.Equal(t, "godsaeng", pc.ConnConfig.Database)

	cfg.URL = "postgres://localhost:notaport/godsaeng"
	_, err = cfg.PoolConfig()
	assert.Error(t, err)
}

func TestErrorHelpers(t *testing.T) {
	wrap := func(code string) error {
		return fmt.Errorf("exec: %w", &pgconn.PgError{Code: code})
	}

	assert.True(t, IsUniqueViolation(wrap("23505")))
	assert.True(t, IsCheckViolation(wrap("23514")))
	assert.True(t, IsLockTimeout(wrap("55P03")))
	assert.True(t, IsSerializationFailure(wrap("40001")))
	assert.True(t, IsDeadlock(wrap("40P01")))

	for _, code := range []string{"55P03", "40001", "40P01"} {
		assert.True(t, IsContention(wrap(code)), code)
	}
	assert.False(t, IsContention(wrap("23505")))
	assert.False(t, IsContention(errors.New("plain")))

	assert.True(t, IsNoRows(fmt.Errorf("scan: %w", pgx.ErrNoRows)))
}

func TestTxFailure(t *testing.T) {
	lock := txFailure("study", "FindOpenSession", &pgconn.PgError{Code: "55P03"})
	assert.True(t, shared.IsStorageFailure(lock))
	assert.Contains(t, lock.Error(), "contention")

	cancelled := txFailure("study", "FindOpenSession", context.Canceled)
	assert.True(t, shared.IsStorageFailure(cancelled))
	assert.ErrorIs(t, cancelled, context.Canceled)

	assert.ErrorIs(t, txFailure("study", "CloseSession", shared.ErrSessionNotFound), shared.ErrSessionNotFound)
}

func TestMigrations_OrderedAndReversible(t *testing.T) {
	migrations := GetMigrations()
	require.NotEmpty(t, migrations)

	for i, m := range migrations {
		assert.Equal(t, i+1, m.Version, "versions are contiguous")
		assert.NotEmpty(t, m.UpSQL, m.Name)
		assert.NotEmpty(t, m.DownSQL, m.Name)
	}

	m := NewMigratorWithMigrations(nil, []Migration{{Version: 3}, {Version: 1}, {Version: 2}})
	assert.Equal(t, []int{1, 2, 3}, []int{m.migrations[0].Version, m.migrations[1].Version, m.migrations[2].Version})
}
