package settlement

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/tavernapos/cashcore/internal/payment"
)

type Service struct {
	parser   *Parser
	payments *payment.Service
}

func NewService(payments *payment.Service) *Service {
	return &Service{
		parser:   NewParser(),
		payments: payments,
	}
}

type ImportParams struct {
	RestaurantID string
	// WalletID is the virtual ledger gateway money posts into. Settlement
	// files only carry non-cash payments.
	WalletID uuid.UUID
}

// Import feeds every row of a settlement export through the reconciler as a
// gateway sighting. Idempotency keys are derived from the file's own
// references, so re-importing the same file (or a file overlapping earlier
// webhook deliveries) acknowledges existing records instead of double
// posting. Conflicting rows are collected for manual review and do not stop
// the import.
func (s *Service) Import(ctx context.Context, params ImportParams, r io.Reader) (*ImportResult, error) {
	rows, err := s.parser.Parse(r)
	if err != nil {
		return nil, err
	}

	result := &ImportResult{Rows: len(rows)}

	for _, row := range rows {
		key := payment.GatewayKey(params.RestaurantID, row.OrderRef, row.TransactionID)

		_, err := s.payments.HandleNotification(ctx, payment.Notification{
			IdempotencyKey: key,
			RestaurantID:   params.RestaurantID,
			LedgerID:       params.WalletID,
			Amount:         row.Amount,
			Currency:       payment.CurrencyVirtual,
			Status:         row.Status,
		})
		if err != nil {
			var conflict *payment.StateConflictError
			if errors.As(err, &conflict) {
				result.Conflicts = append(result.Conflicts, conflict.Key)
				continue
			}

			if errors.Is(err, payment.ErrInvalidAmount) || errors.Is(err, payment.ErrMissingLedger) {
				result.Invalid = append(result.Invalid, key)
				continue
			}

			return nil, fmt.Errorf("applying settlement row %s: %w", key, err)
		}

		result.Applied++
	}

	return result, nil
}
