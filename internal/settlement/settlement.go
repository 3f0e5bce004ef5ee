package settlement

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/tavernapos/cashcore/internal/payment"
)

// Row is one payment attempt as reported by the gateway's end-of-day
// settlement export.
type Row struct {
	OrderRef      string
	TransactionID string
	Amount        decimal.Decimal
	Status        payment.Status
	SettledAt     time.Time
}

// ImportResult summarizes one file import. Conflicts lists idempotency keys
// whose stored state contradicted the file; Invalid lists keys of rows the
// reconciler refused outright (e.g. refund lines with non-positive amounts).
// Both require manual review and never block the rest of the file.
type ImportResult struct {
	Rows      int
	Applied   int
	Conflicts []string
	Invalid   []string
}
