package report

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tavernapos/cashcore/internal/ledger"
	"github.com/tavernapos/cashcore/internal/payment"
)

// Service is a read-only consumer of the entry journal and the payment
// records. It performs no writes and holds no state of its own.
type Service struct {
	ledgers  *ledger.Service
	payments *payment.Service
}

func NewService(ledgers *ledger.Service, payments *payment.Service) *Service {
	return &Service{ledgers: ledgers, payments: payments}
}

// Entries returns journal entries in range, paginated, ordered by createdAt.
func (s *Service) Entries(ctx context.Context, ledgerID uuid.UUID, filter ledger.RangeFilter) ([]*ledger.Entry, error) {
	return s.ledgers.EntriesInRange(ctx, ledgerID, filter)
}

// Payments returns payment records in range, paginated, ordered by createdAt.
func (s *Service) Payments(ctx context.Context, restaurantID string, filter payment.RangeFilter) ([]*payment.Record, error) {
	return s.payments.RecordsInRange(ctx, restaurantID, filter)
}

// Summary is the per-ledger aggregate over a time range. PaymentIncomes is
// the share of Incomes that was posted from approved payment records;
// ManualIncomes is the remainder. Splitting them keeps payment totals and
// journal totals cross-referenceable without counting a payment and its
// linked entry as two separate movements.
type Summary struct {
	LedgerID       uuid.UUID
	Incomes        decimal.Decimal
	Withdrawals    decimal.Decimal
	PaymentIncomes decimal.Decimal
	ManualIncomes  decimal.Decimal
	EntryCount     int
}

// ShiftSummary aggregates one ledger's journal over [from, to), attributing
// income between payment postings and manual entries.
func (s *Service) ShiftSummary(ctx context.Context, restaurantID string, ledgerID uuid.UUID, from, to *time.Time) (*Summary, error) {
	entries, err := s.ledgers.EntriesInRange(ctx, ledgerID, ledger.RangeFilter{From: from, To: to})
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		LedgerID:       ledgerID,
		Incomes:        decimal.Zero,
		Withdrawals:    decimal.Zero,
		PaymentIncomes: decimal.Zero,
		ManualIncomes:  decimal.Zero,
		EntryCount:     len(entries),
	}

	linked := make(map[uuid.UUID]struct{})

	records, err := s.payments.RecordsInRange(ctx, restaurantID, payment.RangeFilter{From: from, To: to})
	if err != nil {
		return nil, err
	}

	for _, rec := range records {
		if rec.LedgerID == ledgerID && rec.Linked() {
			linked[*rec.LinkedEntryID] = struct{}{}
		}
	}

	for _, e := range entries {
		switch e.Type {
		case ledger.TypeIncome:
			summary.Incomes = summary.Incomes.Add(e.Amount)

			if _, ok := linked[e.ID]; ok {
				summary.PaymentIncomes = summary.PaymentIncomes.Add(e.Amount)
			} else {
				summary.ManualIncomes = summary.ManualIncomes.Add(e.Amount)
			}
		case ledger.TypeWithdrawal:
			summary.Withdrawals = summary.Withdrawals.Add(e.Amount)
		}
	}

	return summary, nil
}
