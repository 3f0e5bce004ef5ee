package settlement_test

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/tavernapos/cashcore/internal/payment"
	"github.com/tavernapos/cashcore/internal/settlement"
)

func TestService_Import(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	walletID := uuid.New()

	csv := `Order Ref;Transaction ID;Amount;Status;Settled At
table-4/188;ext_123;500,00;Settled;2026-08-29 14:02:11
table-7/189;ext_124;120,50;Refused;2026-08-29 14:05:40
`

	repo := payment.NewMockRepository(ctrl)

	// ext_123: unseen, settles, posts.
	key123 := payment.GatewayKey("rest-1", "table-4/188", "ext_123")
	repo.EXPECT().GetRecord(gomock.Any(), key123).Return(nil, payment.ErrNotFound)
	repo.EXPECT().
		CreateRecord(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, r *payment.Record) (bool, error) {
			assert.Equal(t, key123, r.IdempotencyKey)
			assert.Equal(t, walletID, r.LedgerID)
			assert.Equal(t, payment.CurrencyVirtual, r.Currency)
			assert.Equal(t, payment.SourceGateway, r.Source)
			return true, nil
		})
	repo.EXPECT().PostLinkedEntry(gomock.Any(), key123).Return(uuid.New(), nil)

	// ext_124: already rejected via webhook; the file agrees, no-op.
	key124 := payment.GatewayKey("rest-1", "table-7/189", "ext_124")
	repo.EXPECT().
		GetRecord(gomock.Any(), key124).
		Return(&payment.Record{IdempotencyKey: key124, Status: payment.StatusRejected}, nil)

	svc := settlement.NewService(payment.NewService(repo))

	result, err := svc.Import(context.Background(), settlement.ImportParams{
		RestaurantID: "rest-1",
		WalletID:     walletID,
	}, strings.NewReader(csv))
	require.NoError(t, err)

	assert.Equal(t, 2, result.Rows)
	assert.Equal(t, 2, result.Applied)
	assert.Empty(t, result.Conflicts)
}

func TestService_ImportCollectsConflicts(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	csv := `Order Ref;Transaction ID;Amount;Status;Settled At
table-4/188;ext_123;500,00;Refused;2026-08-29 14:02:11
`

	key := payment.GatewayKey("rest-1", "table-4/188", "ext_123")
	linked := uuid.New()

	repo := payment.NewMockRepository(ctrl)
	repo.EXPECT().
		GetRecord(gomock.Any(), key).
		Return(&payment.Record{
			IdempotencyKey: key,
			Status:         payment.StatusApproved,
			LinkedEntryID:  &linked,
		}, nil)

	svc := settlement.NewService(payment.NewService(repo))

	result, err := svc.Import(context.Background(), settlement.ImportParams{
		RestaurantID: "rest-1",
		WalletID:     uuid.New(),
	}, strings.NewReader(csv))
	require.NoError(t, err)

	assert.Equal(t, 1, result.Rows)
	assert.Equal(t, 0, result.Applied)
	assert.Equal(t, []string{key}, result.Conflicts)
}

func TestService_ImportCollectsInvalidRows(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	// A zero-amount correction line must not abort the file or create a
	// record the reconciler could never post.
	csv := `Order Ref;Transaction ID;Amount;Status;Settled At
table-4/188;ext_123;0,00;Settled;2026-08-29 14:02:11
table-7/189;ext_124;120,50;Settled;2026-08-29 14:05:40
`

	keyZero := payment.GatewayKey("rest-1", "table-4/188", "ext_123")
	keyOK := payment.GatewayKey("rest-1", "table-7/189", "ext_124")

	repo := payment.NewMockRepository(ctrl)
	repo.EXPECT().GetRecord(gomock.Any(), keyZero).Return(nil, payment.ErrNotFound)
	repo.EXPECT().GetRecord(gomock.Any(), keyOK).Return(nil, payment.ErrNotFound)
	repo.EXPECT().
		CreateRecord(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, r *payment.Record) (bool, error) {
			assert.Equal(t, keyOK, r.IdempotencyKey)
			return true, nil
		})
	repo.EXPECT().PostLinkedEntry(gomock.Any(), keyOK).Return(uuid.New(), nil)

	svc := settlement.NewService(payment.NewService(repo))

	result, err := svc.Import(context.Background(), settlement.ImportParams{
		RestaurantID: "rest-1",
		WalletID:     uuid.New(),
	}, strings.NewReader(csv))
	require.NoError(t, err)

	assert.Equal(t, 2, result.Rows)
	assert.Equal(t, 1, result.Applied)
	assert.Equal(t, []string{keyZero}, result.Invalid)
	assert.Empty(t, result.Conflicts)
}
