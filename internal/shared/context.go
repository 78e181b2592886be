package shared

import (
	"context"
	"fmt"

	"github.com/vantage-erp/vantage-erp/internal/platform/httpx"
)

type tenantContextKey struct{}

// ErrNoTenant indicates the request context carries no tenant.
var ErrNoTenant = fmt.Errorf("%w: tenant not resolved", httpx.ErrUnauthorized)

// ContextWithTenant stores the tenant id in context. Tenant scoping is always
// explicit; services additionally take the tenant id as a parameter so the
// context value only feeds the HTTP boundary.
func ContextWithTenant(ctx context.Context, tenantID int64) context.Context {
	return context.WithValue(ctx, tenantContextKey{}, tenantID)
}

// TenantFromContext extracts the tenant id from context.
func TenantFromContext(ctx context.Context) (int64, error) {
	id, ok := ctx.Value(tenantContextKey{}).(int64)
	if !ok || id == 0 {
		return 0, ErrNoTenant
	}
	return id, nil
}
