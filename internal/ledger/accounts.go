package ledger

import (
	"context"
	"fmt"
)

// CreateAccountInput groups fields for a new chart of accounts node.
type CreateAccountInput struct {
	TenantID int64
	Code     string
	Name     string
	Class    AccountClass
	ParentID *int64
	IsSystem bool
}

// CreateAccount registers a new account. A parent, when given, must carry the
// same classification.
func (s *Service) CreateAccount(ctx context.Context, input CreateAccountInput) (Account, error) {
	if input.TenantID == 0 || input.Code == "" || input.Name == "" {
		return Account{}, fmt.Errorf("%w: tenant, code and name required", ErrValidation)
	}
	if !input.Class.Valid() {
		return Account{}, fmt.Errorf("%w: unknown account class %q", ErrValidation, input.Class)
	}
	var account Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if input.ParentID != nil {
			parent, err := tx.GetAccount(ctx, input.TenantID, *input.ParentID)
			if err != nil {
				return err
			}
			if parent.Class != input.Class {
				return fmt.Errorf("%w: parent class %s does not match %s", ErrValidation, parent.Class, input.Class)
			}
		}
		now := s.now().UTC()
		inserted, err := tx.InsertAccount(ctx, Account{
			TenantID:  input.TenantID,
			Code:      input.Code,
			Name:      input.Name,
			Class:     input.Class,
			ParentID:  input.ParentID,
			IsActive:  true,
			IsSystem:  input.IsSystem,
			CreatedAt: now,
			UpdatedAt: now,
		})
		if err != nil {
			return err
		}
		account = inserted
		return nil
	})
	if err != nil {
		return Account{}, err
	}
	return account, nil
}

// UpdateAccountInput carries admin edits to an account.
type UpdateAccountInput struct {
	TenantID  int64
	AccountID int64
	Name      string
}

// UpdateAccount renames an account.
func (s *Service) UpdateAccount(ctx context.Context, input UpdateAccountInput) (Account, error) {
	if input.Name == "" {
		return Account{}, fmt.Errorf("%w: name required", ErrValidation)
	}
	var account Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetAccount(ctx, input.TenantID, input.AccountID)
		if err != nil {
			return err
		}
		current.Name = input.Name
		current.UpdatedAt = s.now().UTC()
		if err := tx.UpdateAccount(ctx, current); err != nil {
			return err
		}
		account = current
		return nil
	})
	if err != nil {
		return Account{}, err
	}
	return account, nil
}

// DeactivateAccount marks an account inactive so further postings against it
// fail. System accounts are protected; accounts are never hard-deleted.
func (s *Service) DeactivateAccount(ctx context.Context, tenantID, accountID int64) (Account, error) {
	var account Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetAccount(ctx, tenantID, accountID)
		if err != nil {
			return err
		}
		if current.IsSystem {
			return ErrSystemAccount
		}
		current.IsActive = false
		current.UpdatedAt = s.now().UTC()
		if err := tx.UpdateAccount(ctx, current); err != nil {
			return err
		}
		account = current
		return nil
	})
	if err != nil {
		return Account{}, err
	}
	return account, nil
}

// DeleteAccount removes an account outright. Only accounts that are not
// system-protected and appear on no journal line may go; everything else is
// deactivated instead, keeping every posted line resolvable.
func (s *Service) DeleteAccount(ctx context.Context, tenantID, accountID int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetAccount(ctx, tenantID, accountID)
		if err != nil {
			return err
		}
		if current.IsSystem {
			return ErrSystemAccount
		}
		referenced, err := tx.AccountHasLines(ctx, accountID)
		if err != nil {
			return err
		}
		if referenced {
			return ErrAccountReferenced
		}
		return tx.DeleteAccount(ctx, tenantID, accountID)
	})
}

// ListAccounts retrieves the chart of accounts for a tenant.
func (s *Service) ListAccounts(ctx context.Context, tenantID int64, activeOnly bool) ([]Account, error) {
	var accounts []Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		accounts, err = tx.ListAccounts(ctx, tenantID, activeOnly)
		return err
	})
	return accounts, err
}

// defaultChart is the seed chart of accounts for a new tenant.
var defaultChart = []CreateAccountInput{
	{Code: "1000", Name: "Cash", Class: ClassCurrentAsset, IsSystem: true},
	{Code: "1100", Name: "Accounts Receivable", Class: ClassCurrentAsset, IsSystem: true},
	{Code: "1200", Name: "Inventory", Class: ClassCurrentAsset, IsSystem: true},
	{Code: "1500", Name: "Fixed Assets", Class: ClassFixedAsset},
	{Code: "2000", Name: "Accounts Payable", Class: ClassCurrentLiability, IsSystem: true},
	{Code: "2500", Name: "Long Term Debt", Class: ClassLongTermLiability},
	{Code: "3000", Name: "Owner Equity", Class: ClassEquity, IsSystem: true},
	{Code: "3900", Name: "Retained Earnings", Class: ClassEquity, IsSystem: true},
	{Code: "4000", Name: "Sales Revenue", Class: ClassRevenue, IsSystem: true},
	{Code: "4900", Name: "Sales Returns", Class: ClassContraRevenue},
	{Code: "5000", Name: "Cost of Goods Sold", Class: ClassCOGSExpense, IsSystem: true},
	{Code: "6000", Name: "Operating Expenses", Class: ClassOperatingExpense},
}

// SeedChart creates the default chart of accounts for a tenant.
func (s *Service) SeedChart(ctx context.Context, tenantID int64) ([]Account, error) {
	accounts := make([]Account, 0, len(defaultChart))
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		now := s.now().UTC()
		for _, seed := range defaultChart {
			inserted, err := tx.InsertAccount(ctx, Account{
				TenantID:  tenantID,
				Code:      seed.Code,
				Name:      seed.Name,
				Class:     seed.Class,
				IsActive:  true,
				IsSystem:  seed.IsSystem,
				CreatedAt: now,
				UpdatedAt: now,
			})
			if err != nil {
				return err
			}
			accounts = append(accounts, inserted)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return accounts, nil
}
