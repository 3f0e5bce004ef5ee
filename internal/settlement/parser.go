package settlement

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tavernapos/cashcore/internal/charset"
	"github.com/tavernapos/cashcore/internal/payment"
)

// Settlement exports carry a preamble (merchant name, export date, batch
// totals) before the actual header row, so the parser scans for the header
// by its column names instead of assuming a fixed position.
const (
	colOrderRef  = "Order Ref"
	colTxID      = "Transaction ID"
	colAmount    = "Amount"
	colStatus    = "Status"
	colSettledAt = "Settled At"
)

// Parser reads a gateway settlement CSV export into settlement rows.
type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

func (p *Parser) Parse(r io.Reader) ([]Row, error) {
	utf8r, err := charset.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("detect charset: %w", err)
	}

	reader := csv.NewReader(utf8r)
	reader.Comma = ';'
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}

	cols, headerIdx := findHeader(records)
	if cols == nil {
		return nil, fmt.Errorf("no settlement header found: expected columns %q, %q, %q, %q",
			colOrderRef, colTxID, colAmount, colStatus)
	}

	var rows []Row

	for i, record := range records[headerIdx+1:] {
		lineNum := headerIdx + 2 + i

		row, err := parseRow(cols, record)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}

		rows = append(rows, row)
	}

	return rows, nil
}

// findHeader scans for the first row containing every required column and
// returns the column index map plus the header's row index.
func findHeader(records [][]string) (map[string]int, int) {
	required := []string{colOrderRef, colTxID, colAmount, colStatus, colSettledAt}

	for idx, record := range records {
		cols := make(map[string]int)

		for i, cell := range record {
			if name := strings.TrimSpace(cell); name != "" {
				cols[name] = i
			}
		}

		found := 0

		for _, name := range required {
			if _, ok := cols[name]; ok {
				found++
			}
		}

		if found == len(required) {
			return cols, idx
		}
	}

	return nil, 0
}

func parseRow(cols map[string]int, record []string) (Row, error) {
	maxIdx := 0
	for _, i := range cols {
		if i > maxIdx {
			maxIdx = i
		}
	}

	if len(record) <= maxIdx {
		return Row{}, fmt.Errorf("expected at least %d columns, got %d", maxIdx+1, len(record))
	}

	amount, err := parseAmount(record[cols[colAmount]])
	if err != nil {
		return Row{}, fmt.Errorf("amount %q: %w", record[cols[colAmount]], err)
	}

	status, err := parseStatus(record[cols[colStatus]])
	if err != nil {
		return Row{}, err
	}

	settledAt, err := parseSettledAt(record[cols[colSettledAt]])
	if err != nil {
		return Row{}, fmt.Errorf("settled at %q: %w", record[cols[colSettledAt]], err)
	}

	return Row{
		OrderRef:      strings.TrimSpace(record[cols[colOrderRef]]),
		TransactionID: strings.TrimSpace(record[cols[colTxID]]),
		Amount:        amount,
		Status:        status,
		SettledAt:     settledAt,
	}, nil
}

// parseAmount accepts both plain decimal amounts ("1234.56") and the
// European format some gateways export ("1.234,56").
func parseAmount(s string) (decimal.Decimal, error) {
	clean := strings.TrimSpace(s)

	if strings.Contains(clean, ",") {
		clean = strings.ReplaceAll(clean, ".", "")
		clean = strings.ReplaceAll(clean, ",", ".")
	}

	return decimal.NewFromString(clean)
}

// parseStatus maps the gateway's settlement vocabulary onto payment states.
func parseStatus(s string) (payment.Status, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "settled", "paid", "approved", "captured":
		return payment.StatusApproved, nil
	case "refused", "cancelled", "failed", "expired":
		return payment.StatusRejected, nil
	case "pending", "authorised", "authorized":
		return payment.StatusPending, nil
	default:
		return "", fmt.Errorf("unknown settlement status %q", s)
	}
}

func parseSettledAt(s string) (time.Time, error) {
	clean := strings.TrimSpace(s)

	for _, layout := range []string{"2006-01-02 15:04:05", time.DateOnly, "02-01-2006"} {
		if t, err := time.Parse(layout, clean); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognized date format")
}
