package ledger

import (
	"context"
	"errors"
	"strings"
)

// AccountMapping links integration keys to ledger accounts, e.g.
// (INVENTORY, item:42) or (INVENTORY, DEFAULT).
type AccountMapping struct {
	TenantID  int64
	Module    string
	Key       string
	AccountID int64
}

// DefaultMappingKey is the tenant-level fallback key of a module.
const DefaultMappingKey = "DEFAULT"

// ResolveMappedAccount walks the fallback chain of mapping keys and returns
// the first account that resolves: callers pass keys most-specific first
// (explicit override, entity-level, tenant default). ErrMappingNotFound when
// the whole chain is exhausted.
func (s *Service) ResolveMappedAccount(ctx context.Context, tenantID int64, module string, keys ...string) (int64, error) {
	if module == "" {
		return 0, ErrMappingNotFound
	}
	module = strings.ToUpper(module)
	var accountID int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := resolveMappingTx(ctx, tx, tenantID, module, keys)
		if err != nil {
			return err
		}
		accountID = id
		return nil
	})
	if err != nil {
		return 0, err
	}
	return accountID, nil
}

func resolveMappingTx(ctx context.Context, tx TxRepository, tenantID int64, module string, keys []string) (int64, error) {
	for _, key := range append(keys, DefaultMappingKey) {
		if key == "" {
			continue
		}
		id, err := tx.LookupMapping(ctx, tenantID, module, key)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, ErrMappingNotFound) {
			return 0, err
		}
	}
	return 0, ErrMappingNotFound
}
