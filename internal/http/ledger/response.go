package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tavernapos/cashcore/internal/ledger"
)

type ledgerResponse struct {
	ID            uuid.UUID        `json:"id"`
	RestaurantID  string           `json:"restaurant_id"`
	Kind          ledger.Kind      `json:"kind"`
	Period        string           `json:"period"`
	OpeningAmount decimal.Decimal  `json:"opening_amount"`
	ClosingAmount *decimal.Decimal `json:"closing_amount,omitempty"`
	Closed        bool             `json:"closed"`
	OpenedAt      time.Time        `json:"opened_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

func toLedgerResponse(l *ledger.Ledger) ledgerResponse {
	return ledgerResponse{
		ID:            l.ID,
		RestaurantID:  l.RestaurantID,
		Kind:          l.Kind,
		Period:        l.Period,
		OpeningAmount: l.OpeningAmount,
		ClosingAmount: l.ClosingAmount,
		Closed:        l.Closed(),
		OpenedAt:      l.OpenedAt,
		UpdatedAt:     l.UpdatedAt,
	}
}

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
