package report

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tavernapos/cashcore/internal/ledger"
	"github.com/tavernapos/cashcore/internal/payment"
	"github.com/tavernapos/cashcore/internal/report"
)

type entryResponse struct {
	ID        uuid.UUID        `json:"id"`
	LedgerID  uuid.UUID        `json:"ledger_id"`
	Type      ledger.EntryType `json:"type"`
	Amount    decimal.Decimal  `json:"amount"`
	Note      string           `json:"note,omitempty"`
	Author    string           `json:"author"`
	CreatedAt time.Time        `json:"created_at"`
}

func toEntryResponse(e *ledger.Entry) entryResponse {
	return entryResponse{
		ID:        e.ID,
		LedgerID:  e.LedgerID,
		Type:      e.Type,
		Amount:    e.Amount,
		Note:      e.Note,
		Author:    e.Author,
		CreatedAt: e.CreatedAt,
	}
}

type summaryResponse struct {
	LedgerID       uuid.UUID       `json:"ledger_id"`
	Incomes        decimal.Decimal `json:"incomes"`
	Withdrawals    decimal.Decimal `json:"withdrawals"`
	PaymentIncomes decimal.Decimal `json:"payment_incomes"`
	ManualIncomes  decimal.Decimal `json:"manual_incomes"`
	EntryCount     int             `json:"entry_count"`
}

func toSummaryResponse(s *report.Summary) summaryResponse {
	return summaryResponse{
		LedgerID:       s.LedgerID,
		Incomes:        s.Incomes,
		Withdrawals:    s.Withdrawals,
		PaymentIncomes: s.PaymentIncomes,
		ManualIncomes:  s.ManualIncomes,
		EntryCount:     s.EntryCount,
	}
}

type recordResponse struct {
	IdempotencyKey string           `json:"idempotency_key"`
	RestaurantID   string           `json:"restaurant_id"`
	LedgerID       uuid.UUID        `json:"ledger_id"`
	Amount         decimal.Decimal  `json:"amount"`
	Currency       payment.Currency `json:"currency"`
	Status         payment.Status   `json:"status"`
	Source         payment.Source   `json:"source"`
	LinkedEntryID  *uuid.UUID       `json:"linked_entry_id,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

func toRecordResponse(rec *payment.Record) recordResponse {
	return recordResponse{
		IdempotencyKey: rec.IdempotencyKey,
		RestaurantID:   rec.RestaurantID,
		LedgerID:       rec.LedgerID,
		Amount:         rec.Amount,
		Currency:       rec.Currency,
		Status:         rec.Status,
		Source:         rec.Source,
		LinkedEntryID:  rec.LinkedEntryID,
		CreatedAt:      rec.CreatedAt,
		UpdatedAt:      rec.UpdatedAt,
	}
}
