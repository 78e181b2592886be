package ledger

import (
	"context"
	"time"
)

// RecurringTemplate is a stored line set posted on a schedule by the
// background worker through the same CreateEntry contract as any caller.
type RecurringTemplate struct {
	ID        int64
	TenantID  int64
	Memo      string
	Lines     []LineInput
	AutoPost  bool
	Interval  RecurrenceInterval
	NextRunAt time.Time
	CreatedBy int64
}

// RecurrenceInterval enumerates supported schedules.
type RecurrenceInterval string

const (
	RecurMonthly   RecurrenceInterval = "MONTHLY"
	RecurQuarterly RecurrenceInterval = "QUARTERLY"
	RecurAnnually  RecurrenceInterval = "ANNUALLY"
)

// NextAfter advances a run time by one interval.
func (r RecurrenceInterval) NextAfter(t time.Time) time.Time {
	switch r {
	case RecurQuarterly:
		return t.AddDate(0, 3, 0)
	case RecurAnnually:
		return t.AddDate(1, 0, 0)
	default:
		return t.AddDate(0, 1, 0)
	}
}

// RunRecurring creates entries for every template due at now and advances
// their schedules. Each template runs in its own transaction so one bad
// template does not block the rest; the first error is returned after all
// templates were attempted.
func (s *Service) RunRecurring(ctx context.Context, now time.Time) (int, error) {
	var due []RecurringTemplate
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		due, err = tx.ListDueRecurring(ctx, now)
		return err
	})
	if err != nil {
		return 0, err
	}

	ran := 0
	var firstErr error
	for _, tpl := range due {
		err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			input := CreateEntryInput{
				TenantID:  tpl.TenantID,
				Date:      now,
				Memo:      tpl.Memo,
				Type:      EntryTypeRecurring,
				Lines:     tpl.Lines,
				CreatedBy: tpl.CreatedBy,
			}
			created, err := s.createEntryTx(ctx, tx, input)
			if err != nil {
				return err
			}
			if tpl.AutoPost {
				if _, err := s.postEntryTx(ctx, tx, tpl.TenantID, created.ID, tpl.CreatedBy); err != nil {
					return err
				}
			}
			return tx.MarkRecurringRun(ctx, tpl.ID, now, tpl.Interval.NextAfter(tpl.NextRunAt))
		})
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		ran++
	}
	return ran, firstErr
}
