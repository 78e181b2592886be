package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// PeriodStatus enumerates fiscal period states.
type PeriodStatus string

const (
	PeriodStatusOpen      PeriodStatus = "OPEN"
	PeriodStatusSoftClose PeriodStatus = "SOFT_CLOSE"
	PeriodStatusClosed    PeriodStatus = "CLOSED"
)

// FiscalPeriod represents a calendar window postings are scoped to.
type FiscalPeriod struct {
	ID        int64
	TenantID  int64
	Name      string
	StartDate time.Time
	EndDate   time.Time
	Status    PeriodStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Contains reports whether the date falls inside [StartDate, EndDate].
func (p FiscalPeriod) Contains(date time.Time) bool {
	return !date.Before(p.StartDate) && !date.After(p.EndDate)
}

// BlocksPosting reports whether entries may no longer be posted into the
// period. Only a hard close blocks posting; soft close still accepts
// adjusting work.
func (p FiscalPeriod) BlocksPosting() bool {
	return p.Status == PeriodStatusClosed
}

// ErrInvalidPeriodTransition indicates a status change not allowed by policy.
var ErrInvalidPeriodTransition = errors.New("ledger: period transition invalid")

// ValidatePeriodTransition checks period lifecycle transitions.
// open -> soft_close -> closed, soft_close -> open, closed -> soft_close.
func ValidatePeriodTransition(current, target PeriodStatus) error {
	if current == target {
		return nil
	}
	switch current {
	case PeriodStatusOpen:
		if target == PeriodStatusSoftClose || target == PeriodStatusClosed {
			return nil
		}
	case PeriodStatusSoftClose:
		if target == PeriodStatusOpen || target == PeriodStatusClosed {
			return nil
		}
	case PeriodStatusClosed:
		if target == PeriodStatusSoftClose {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidPeriodTransition, current, target)
}

// ValidatePeriodWindow checks the period boundary dates.
func ValidatePeriodWindow(start, end time.Time) error {
	if start.IsZero() || end.IsZero() {
		return fmt.Errorf("%w: period dates required", ErrValidation)
	}
	if end.Before(start) {
		return fmt.Errorf("%w: period end before start", ErrValidation)
	}
	return nil
}

// CreatePeriodInput carries a new fiscal period definition.
type CreatePeriodInput struct {
	TenantID  int64
	Name      string
	StartDate time.Time
	EndDate   time.Time
}

// CreatePeriod opens a new fiscal period.
func (s *Service) CreatePeriod(ctx context.Context, input CreatePeriodInput) (FiscalPeriod, error) {
	if input.TenantID == 0 || input.Name == "" {
		return FiscalPeriod{}, fmt.Errorf("%w: tenant and name required", ErrValidation)
	}
	if err := ValidatePeriodWindow(input.StartDate, input.EndDate); err != nil {
		return FiscalPeriod{}, err
	}
	var period FiscalPeriod
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		period, err = tx.InsertPeriod(ctx, FiscalPeriod{
			TenantID:  input.TenantID,
			Name:      input.Name,
			StartDate: input.StartDate,
			EndDate:   input.EndDate,
			Status:    PeriodStatusOpen,
			CreatedAt: s.now().UTC(),
			UpdatedAt: s.now().UTC(),
		})
		return err
	})
	if err != nil {
		return FiscalPeriod{}, err
	}
	return period, nil
}

// TransitionPeriod moves a period through its lifecycle. The period row is
// locked so a concurrent close and post serialize.
func (s *Service) TransitionPeriod(ctx context.Context, tenantID, periodID int64, target PeriodStatus) (FiscalPeriod, error) {
	var period FiscalPeriod
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetPeriodForUpdate(ctx, tenantID, periodID)
		if err != nil {
			return err
		}
		if err := ValidatePeriodTransition(current.Status, target); err != nil {
			return err
		}
		if err := tx.UpdatePeriodStatus(ctx, tenantID, periodID, target); err != nil {
			return err
		}
		current.Status = target
		current.UpdatedAt = s.now().UTC()
		period = current
		return nil
	})
	if err != nil {
		return FiscalPeriod{}, err
	}
	return period, nil
}

// ListPeriods retrieves every fiscal period for a tenant.
func (s *Service) ListPeriods(ctx context.Context, tenantID int64) ([]FiscalPeriod, error) {
	var periods []FiscalPeriod
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		periods, err = tx.ListPeriods(ctx, tenantID)
		return err
	})
	return periods, err
}
