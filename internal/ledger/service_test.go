package ledger_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/tavernapos/cashcore/internal/ledger"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}

	return d
}

func TestService_Append(t *testing.T) {
	ledgerID := uuid.New()

	type args struct {
		params ledger.AppendParams
	}

	type testCase struct {
		name      string
		args      args
		setupMock func(m *ledger.MockRepository)
		wantErr   error
	}

	tests := []testCase{
		{
			name: "Success",
			args: args{
				params: ledger.AppendParams{
					Type:   ledger.TypeWithdrawal,
					Amount: dec("200"),
					Note:   "supplier cash payment",
					Author: "user-1",
				},
			},
			setupMock: func(m *ledger.MockRepository) {
				m.EXPECT().
					GetLedger(gomock.Any(), ledgerID).
					Return(&ledger.Ledger{ID: ledgerID, Version: 3, OpeningAmount: dec("1000")}, nil)
				m.EXPECT().
					AppendEntry(gomock.Any(), ledgerID, int64(3), gomock.Any()).
					DoAndReturn(func(_ context.Context, _ uuid.UUID, _ int64, e *ledger.Entry) error {
						e.ID = uuid.New()
						e.CreatedAt = time.Now()
						return nil
					})
			},
		},
		{
			name: "ClosedLedger",
			args: args{
				params: ledger.AppendParams{Type: ledger.TypeIncome, Amount: dec("50")},
			},
			setupMock: func(m *ledger.MockRepository) {
				closing := dec("900")
				m.EXPECT().
					GetLedger(gomock.Any(), ledgerID).
					Return(&ledger.Ledger{ID: ledgerID, ClosingAmount: &closing}, nil)
			},
			wantErr: ledger.ErrClosed,
		},
		{
			name: "UnknownLedger",
			args: args{
				params: ledger.AppendParams{Type: ledger.TypeIncome, Amount: dec("50")},
			},
			setupMock: func(m *ledger.MockRepository) {
				m.EXPECT().
					GetLedger(gomock.Any(), ledgerID).
					Return(nil, ledger.ErrNotFound)
			},
			wantErr: ledger.ErrNotFound,
		},
		{
			name: "NonPositiveAmount",
			args: args{
				params: ledger.AppendParams{Type: ledger.TypeIncome, Amount: dec("0")},
			},
			wantErr: ledger.ErrInvalidAmount,
		},
		{
			name: "RetriesOnWriteConflict",
			args: args{
				params: ledger.AppendParams{Type: ledger.TypeWithdrawal, Amount: dec("150")},
			},
			setupMock: func(m *ledger.MockRepository) {
				first := m.EXPECT().
					GetLedger(gomock.Any(), ledgerID).
					Return(&ledger.Ledger{ID: ledgerID, Version: 1}, nil)
				m.EXPECT().
					AppendEntry(gomock.Any(), ledgerID, int64(1), gomock.Any()).
					Return(ledger.ErrWriteConflict)
				m.EXPECT().
					GetLedger(gomock.Any(), ledgerID).
					Return(&ledger.Ledger{ID: ledgerID, Version: 2}, nil).
					After(first)
				m.EXPECT().
					AppendEntry(gomock.Any(), ledgerID, int64(2), gomock.Any()).
					DoAndReturn(func(_ context.Context, _ uuid.UUID, _ int64, e *ledger.Entry) error {
						e.ID = uuid.New()
						return nil
					})
			},
		},
		{
			name: "SurfacesExhaustedConflict",
			args: args{
				params: ledger.AppendParams{Type: ledger.TypeWithdrawal, Amount: dec("150")},
			},
			setupMock: func(m *ledger.MockRepository) {
				m.EXPECT().
					GetLedger(gomock.Any(), ledgerID).
					Return(&ledger.Ledger{ID: ledgerID, Version: 1}, nil).
					Times(3)
				m.EXPECT().
					AppendEntry(gomock.Any(), ledgerID, int64(1), gomock.Any()).
					Return(ledger.ErrWriteConflict).
					Times(3)
			},
			wantErr: ledger.ErrWriteConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			repo := ledger.NewMockRepository(ctrl)
			if tt.setupMock != nil {
				tt.setupMock(repo)
			}

			svc := ledger.NewService(repo)
			got, err := svc.Append(context.Background(), ledgerID, tt.args.params)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, got)

				return
			}

			assert.NoError(t, err)
			require.NotNil(t, got)
			assert.NotEmpty(t, got.ID)
			assert.Equal(t, tt.args.params.Type, got.Type)
		})
	}
}

func TestService_Balance(t *testing.T) {
	ledgerID := uuid.New()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := ledger.NewMockRepository(ctrl)
	repo.EXPECT().
		GetLedger(gomock.Any(), ledgerID).
		Return(&ledger.Ledger{ID: ledgerID, OpeningAmount: dec("1000")}, nil)
	repo.EXPECT().
		SumEntries(gomock.Any(), ledgerID).
		Return(dec("300"), dec("450"), nil)

	svc := ledger.NewService(repo)

	balance, err := svc.Balance(context.Background(), ledgerID)
	require.NoError(t, err)
	assert.True(t, dec("850").Equal(balance), "got %s", balance)
}

func TestService_CloseShift(t *testing.T) {
	ledgerID := uuid.New()

	t.Run("FirstCloseReportsVariance", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		declared := dec("900")

		repo := ledger.NewMockRepository(ctrl)
		repo.EXPECT().
			CloseLedger(gomock.Any(), ledgerID, declared).
			Return(nil)
		repo.EXPECT().
			GetLedger(gomock.Any(), ledgerID).
			Return(&ledger.Ledger{ID: ledgerID, OpeningAmount: dec("500"), ClosingAmount: &declared}, nil)
		repo.EXPECT().
			SumEntries(gomock.Any(), ledgerID).
			Return(dec("400"), dec("50"), nil)

		svc := ledger.NewService(repo)

		res, err := svc.CloseShift(context.Background(), ledgerID, declared)
		require.NoError(t, err)
		assert.False(t, res.AlreadyClosed)
		assert.True(t, dec("850").Equal(res.Computed))
		assert.True(t, dec("50").Equal(res.Variance), "got %s", res.Variance)
	})

	t.Run("SecondCloseIsNoOp", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		stored := dec("900")

		repo := ledger.NewMockRepository(ctrl)
		repo.EXPECT().
			CloseLedger(gomock.Any(), ledgerID, dec("123")).
			Return(ledger.ErrClosed)
		repo.EXPECT().
			GetLedger(gomock.Any(), ledgerID).
			Return(&ledger.Ledger{ID: ledgerID, OpeningAmount: dec("500"), ClosingAmount: &stored}, nil)
		repo.EXPECT().
			SumEntries(gomock.Any(), ledgerID).
			Return(dec("400"), dec("50"), nil)

		svc := ledger.NewService(repo)

		// The amount passed on the second close is ignored: the stored
		// declared amount and its variance come back unchanged.
		res, err := svc.CloseShift(context.Background(), ledgerID, dec("123"))
		require.NoError(t, err)
		assert.True(t, res.AlreadyClosed)
		assert.True(t, dec("900").Equal(res.Declared))
		assert.True(t, dec("50").Equal(res.Variance))
	})

	t.Run("UnknownLedger", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		repo := ledger.NewMockRepository(ctrl)
		repo.EXPECT().
			CloseLedger(gomock.Any(), ledgerID, gomock.Any()).
			Return(ledger.ErrNotFound)

		svc := ledger.NewService(repo)

		_, err := svc.CloseShift(context.Background(), ledgerID, dec("100"))
		assert.ErrorIs(t, err, ledger.ErrNotFound)
	})
}

// memRepo is an in-memory Repository with the same compare-and-set
// semantics as the SQL store, for exercising real interleavings.
type memRepo struct {
	mu      sync.Mutex
	ledgers map[uuid.UUID]*ledger.Ledger
	entries map[uuid.UUID][]*ledger.Entry
}

func newMemRepo() *memRepo {
	return &memRepo{
		ledgers: make(map[uuid.UUID]*ledger.Ledger),
		entries: make(map[uuid.UUID][]*ledger.Entry),
	}
}

func (r *memRepo) CreateLedger(_ context.Context, l *ledger.Ledger) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	l.ID = uuid.New()
	l.OpenedAt = time.Now()
	l.UpdatedAt = l.OpenedAt
	cp := *l
	r.ledgers[l.ID] = &cp

	return nil
}

func (r *memRepo) GetLedger(_ context.Context, id uuid.UUID) (*ledger.Ledger, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.ledgers[id]
	if !ok {
		return nil, ledger.ErrNotFound
	}

	cp := *l

	return &cp, nil
}

func (r *memRepo) AppendEntry(_ context.Context, ledgerID uuid.UUID, version int64, e *ledger.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.ledgers[ledgerID]
	if !ok {
		return ledger.ErrNotFound
	}

	if l.Closed() {
		return ledger.ErrClosed
	}

	if l.Version != version {
		return ledger.ErrWriteConflict
	}

	l.Version++
	e.ID = uuid.New()
	e.CreatedAt = time.Now()
	cp := *e
	r.entries[ledgerID] = append(r.entries[ledgerID], &cp)

	return nil
}

func (r *memRepo) ListEntries(_ context.Context, ledgerID uuid.UUID, _ *time.Time) ([]*ledger.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]*ledger.Entry(nil), r.entries[ledgerID]...), nil
}

func (r *memRepo) ListEntriesInRange(ctx context.Context, ledgerID uuid.UUID, _ ledger.RangeFilter) ([]*ledger.Entry, error) {
	return r.ListEntries(ctx, ledgerID, nil)
}

func (r *memRepo) SumEntries(_ context.Context, ledgerID uuid.UUID) (decimal.Decimal, decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	incomes := decimal.Zero
	withdrawals := decimal.Zero

	for _, e := range r.entries[ledgerID] {
		switch e.Type {
		case ledger.TypeIncome:
			incomes = incomes.Add(e.Amount)
		case ledger.TypeWithdrawal:
			withdrawals = withdrawals.Add(e.Amount)
		}
	}

	return incomes, withdrawals, nil
}

func (r *memRepo) CloseLedger(_ context.Context, ledgerID uuid.UUID, declared decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.ledgers[ledgerID]
	if !ok {
		return ledger.ErrNotFound
	}

	if l.Closed() {
		return ledger.ErrClosed
	}

	l.ClosingAmount = &declared
	l.Version++

	return nil
}

func TestService_ConcurrentWithdrawals(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	svc := ledger.NewService(repo)

	l, err := svc.Open(ctx, ledger.OpenParams{
		RestaurantID:  "rest-1",
		Kind:          ledger.KindDrawer,
		Period:        "2026-08-29",
		OpeningAmount: dec("1000"),
	})
	require.NoError(t, err)

	amounts := []string{"200", "150"}

	var wg sync.WaitGroup

	errs := make([]error, len(amounts))

	for i, a := range amounts {
		wg.Add(1)

		go func(i int, a string) {
			defer wg.Done()

			_, errs[i] = svc.Append(ctx, l.ID, ledger.AppendParams{
				Type:   ledger.TypeWithdrawal,
				Amount: dec(a),
				Author: "user-1",
			})
		}(i, a)
	}

	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "withdrawal %d", i)
	}

	balance, err := svc.Balance(ctx, l.ID)
	require.NoError(t, err)
	assert.True(t, dec("650").Equal(balance), "got %s", balance)

	entries, err := svc.Entries(ctx, l.ID, nil)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestService_NoAppendAfterClose(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	svc := ledger.NewService(repo)

	l, err := svc.Open(ctx, ledger.OpenParams{
		RestaurantID:  "rest-1",
		Kind:          ledger.KindWallet,
		Period:        "2026-08-29",
		OpeningAmount: dec("0"),
	})
	require.NoError(t, err)

	_, err = svc.Append(ctx, l.ID, ledger.AppendParams{Type: ledger.TypeIncome, Amount: dec("75")})
	require.NoError(t, err)

	res, err := svc.CloseShift(ctx, l.ID, dec("75"))
	require.NoError(t, err)
	assert.True(t, res.Variance.IsZero())

	_, err = svc.Append(ctx, l.ID, ledger.AppendParams{Type: ledger.TypeIncome, Amount: dec("10")})
	assert.ErrorIs(t, err, ledger.ErrClosed)

	entries, err := svc.Entries(ctx, l.ID, nil)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestService_BalanceOrderIndependence(t *testing.T) {
	ctx := context.Background()

	// Same multiset of entries appended in different orders must produce
	// the same balance.
	orders := [][]struct {
		t ledger.EntryType
		a string
	}{
		{{ledger.TypeIncome, "120.50"}, {ledger.TypeWithdrawal, "30.25"}, {ledger.TypeIncome, "9.75"}},
		{{ledger.TypeWithdrawal, "30.25"}, {ledger.TypeIncome, "9.75"}, {ledger.TypeIncome, "120.50"}},
		{{ledger.TypeIncome, "9.75"}, {ledger.TypeIncome, "120.50"}, {ledger.TypeWithdrawal, "30.25"}},
	}

	for i, order := range orders {
		repo := newMemRepo()
		svc := ledger.NewService(repo)

		l, err := svc.Open(ctx, ledger.OpenParams{
			RestaurantID:  "rest-1",
			Kind:          ledger.KindDrawer,
			OpeningAmount: dec("100"),
		})
		require.NoError(t, err)

		for _, op := range order {
			_, err := svc.Append(ctx, l.ID, ledger.AppendParams{Type: op.t, Amount: dec(op.a)})
			require.NoError(t, err)
		}

		balance, err := svc.Balance(ctx, l.ID)
		require.NoError(t, err)
		assert.True(t, dec("200").Equal(balance), "order %d: got %s", i, balance)
	}
}
