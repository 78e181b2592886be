package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func TestTranslateLockErrorContentionCodes(t *testing.T) {
	// 40001 matters: two first-time writers racing the same upsert under
	// repeatable read fail with serialization_failure, not a lock timeout.
	for _, code := range []string{"55P03", "40P01", "40001"} {
		err := TranslateLockError(&pgconn.PgError{Code: code, Message: "busy"})
		require.ErrorIs(t, err, ErrLockContention, "code %s", code)
	}
}

func TestTranslateLockErrorPassThrough(t *testing.T) {
	unique := &pgconn.PgError{Code: "23505", Message: "duplicate key"}
	require.Equal(t, error(unique), TranslateLockError(unique))

	plain := errors.New("broken pipe")
	require.Equal(t, plain, TranslateLockError(plain))

	wrapped := fmt.Errorf("query: %w", &pgconn.PgError{Code: "40001"})
	require.ErrorIs(t, TranslateLockError(wrapped), ErrLockContention)
}
