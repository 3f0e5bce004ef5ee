package settlement_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tavernapos/cashcore/internal/payment"
	"github.com/tavernapos/cashcore/internal/settlement"
)

func TestParser_SkipsPreamble(t *testing.T) {
	csv := `Settlement Report - 2026-08-29;Merchant 00412
Merchant Name;Taverna do Porto
Batch;B-20260829-01
Gross Total;1.245,50

Order Ref;Transaction ID;Amount;Status;Settled At
table-4/188;ext_123;500,00;Settled;2026-08-29 14:02:11
table-7/189;ext_124;120,50;Refused;2026-08-29 14:05:40
table-2/190;ext_125;625,00;Pending;2026-08-29
`

	p := settlement.NewParser()
	rows, err := p.Parse(strings.NewReader(csv))
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, "table-4/188", rows[0].OrderRef)
	assert.Equal(t, "ext_123", rows[0].TransactionID)
	assert.Equal(t, "500", rows[0].Amount.String())
	assert.Equal(t, payment.StatusApproved, rows[0].Status)
	assert.Equal(t, time.Date(2026, 8, 29, 14, 2, 11, 0, time.UTC), rows[0].SettledAt)

	assert.Equal(t, payment.StatusRejected, rows[1].Status)
	assert.Equal(t, "120.5", rows[1].Amount.String())

	assert.Equal(t, payment.StatusPending, rows[2].Status)
	assert.Equal(t, time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC), rows[2].SettledAt)
}

func TestParser_PlainDecimalAmounts(t *testing.T) {
	csv := `Order Ref;Transaction ID;Amount;Status;Settled At
table-1/1;ext_1;1234.56;Paid;2026-08-29
`

	p := settlement.NewParser()
	rows, err := p.Parse(strings.NewReader(csv))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "1234.56", rows[0].Amount.String())
}

func TestParser_EuropeanThousands(t *testing.T) {
	csv := `Order Ref;Transaction ID;Amount;Status;Settled At
table-1/1;ext_1;1.234,56;Captured;2026-08-29
`

	p := settlement.NewParser()
	rows, err := p.Parse(strings.NewReader(csv))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "1234.56", rows[0].Amount.String())
	assert.Equal(t, payment.StatusApproved, rows[0].Status)
}

func TestParser_NoHeader(t *testing.T) {
	csv := `just;some;unrelated;cells
1;2;3;4
`

	p := settlement.NewParser()
	_, err := p.Parse(strings.NewReader(csv))
	assert.ErrorContains(t, err, "no settlement header")
}

func TestParser_UnknownStatus(t *testing.T) {
	csv := `Order Ref;Transaction ID;Amount;Status;Settled At
table-1/1;ext_1;10,00;Exploded;2026-08-29
`

	p := settlement.NewParser()
	_, err := p.Parse(strings.NewReader(csv))
	assert.ErrorContains(t, err, "line 2")
	assert.ErrorContains(t, err, "unknown settlement status")
}
