package shared

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vantage-erp/vantage-erp/internal/platform/httpx"
)

func TestTenantFromContext(t *testing.T) {
	ctx := ContextWithTenant(context.Background(), 7)
	id, err := TenantFromContext(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 7, id)
}

func TestTenantFromContextMissingIsUnauthorized(t *testing.T) {
	_, err := TenantFromContext(context.Background())
	require.ErrorIs(t, err, ErrNoTenant)
	require.ErrorIs(t, err, httpx.ErrUnauthorized)

	_, err = TenantFromContext(ContextWithTenant(context.Background(), 0))
	require.ErrorIs(t, err, httpx.ErrUnauthorized)
}
