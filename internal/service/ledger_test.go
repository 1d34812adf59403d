package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"miturn/internal/domain"
	"miturn/internal/models"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

// memTxStore is an in-memory TransactionStore with the same guarded
// transition semantics as the SQL implementation.
type memTxStore struct {
	mu     sync.Mutex
	nextID uint
	rows   map[uint]*models.Transaction
}

func newMemTxStore() *memTxStore {
	return &memTxStore{nextID: 1, rows: make(map[uint]*models.Transaction)}
}

func (s *memTxStore) Create(tx *models.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx.ID = s.nextID
	s.nextID++
	cp := *tx
	s.rows[tx.ID] = &cp
	return nil
}

func (s *memTxStore) GetByID(id uint) (*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *row
	return &cp, nil
}

func (s *memTxStore) GetByProviderRef(ref string) (*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range s.rows {
		if row.ProviderRef == ref {
			cp := *row
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *memTxStore) TransitionStatus(id uint, from, to string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok || row.Status != from {
		return false, nil
	}
	row.Status = to
	if to == domain.TxStatusCompleted {
		t := at
		row.CompletedAt = &t
	}
	return true, nil
}

func (s *memTxStore) SumCompletedByCircle(circleID uint) (int64, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var contributions, payouts int64
	for _, row := range s.rows {
		if row.CircleID == nil || *row.CircleID != circleID || row.Status != domain.TxStatusCompleted {
			continue
		}
		switch row.Type {
		case domain.TxTypeContribution:
			contributions += row.AmountCents
		case domain.TxTypePayout:
			payouts += row.AmountCents
		}
	}
	return contributions, payouts, nil
}

func (s *memTxStore) setProviderRef(id uint, ref string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[id].ProviderRef = ref
}

func newTestLedger(t *testing.T) (*LedgerService, *memTxStore) {
	store := newMemTxStore()
	return NewLedgerService(store, zaptest.NewLogger(t)), store
}

func uintp(v uint) *uint { return &v }

func TestRecordValidation(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	_, err := ledger.Record(ctx, TransactionDraft{UserID: 1, AmountCents: 0, Type: domain.TxTypeContribution})
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, err = ledger.Record(ctx, TransactionDraft{UserID: 1, AmountCents: -500, Type: domain.TxTypeContribution})
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, err = ledger.Record(ctx, TransactionDraft{UserID: 1, AmountCents: 500, Type: "refund"})
	require.ErrorIs(t, err, ErrInvalidTxType)

	tx, err := ledger.Record(ctx, TransactionDraft{UserID: 1, AmountCents: 500, Type: domain.TxTypeContribution})
	require.NoError(t, err)
	require.Equal(t, domain.TxStatusPending, tx.Status)
	require.Equal(t, "USD", tx.Currency)
	require.False(t, tx.TransactionDate.IsZero())
}

func TestTransitionIsMonotonic(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	tx, err := ledger.Record(ctx, TransactionDraft{UserID: 1, AmountCents: 1000, Type: domain.TxTypeContribution})
	require.NoError(t, err)

	got, err := ledger.Transition(ctx, tx.ID, domain.TxStatusCompleted)
	require.NoError(t, err)
	require.Equal(t, domain.TxStatusCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)

	// Any further transition is rejected, including back to pending-like flows.
	for _, to := range []string{domain.TxStatusFailed, domain.TxStatusCancelled, domain.TxStatusCompleted} {
		_, err = ledger.Transition(ctx, tx.ID, to)
		require.ErrorIs(t, err, ErrTransactionFinal)
	}
}

func TestTransitionRejectsNonTerminalTarget(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	tx, err := ledger.Record(ctx, TransactionDraft{UserID: 1, AmountCents: 1000, Type: domain.TxTypeContribution})
	require.NoError(t, err)

	_, err = ledger.Transition(ctx, tx.ID, domain.TxStatusPending)
	require.ErrorIs(t, err, ErrInvalidStatus)
	_, err = ledger.Transition(ctx, tx.ID, "refunded")
	require.ErrorIs(t, err, ErrInvalidStatus)
}

func TestConcurrentTransitionsOneWinner(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	tx, err := ledger.Record(ctx, TransactionDraft{UserID: 1, AmountCents: 1000, Type: domain.TxTypeContribution})
	require.NoError(t, err)

	const n = 8
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			to := domain.TxStatusCompleted
			if i%2 == 1 {
				to = domain.TxStatusFailed
			}
			_, errs[i] = ledger.Transition(ctx, tx.ID, to)
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else {
			require.ErrorIs(t, err, ErrTransactionFinal)
		}
	}
	require.Equal(t, 1, winners)
}

func TestListenersFireAfterTransition(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	var events []LedgerEvent
	ledger.Subscribe(func(ctx context.Context, ev LedgerEvent) {
		events = append(events, ev)
	})

	tx, err := ledger.Record(ctx, TransactionDraft{UserID: 1, AmountCents: 1000, Type: domain.TxTypeContribution})
	require.NoError(t, err)
	require.Empty(t, events, "recording must not emit")

	_, err = ledger.Transition(ctx, tx.ID, domain.TxStatusFailed)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, domain.TxStatusPending, events[0].From)
	require.Equal(t, domain.TxStatusFailed, events[0].To)
	require.Equal(t, tx.ID, events[0].Transaction.ID)
}

func TestBalanceFoldsCompletedRowsOnly(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()
	circleID := uint(7)

	record := func(amount int64, txType string, settle string) {
		tx, err := ledger.Record(ctx, TransactionDraft{
			CircleID: uintp(circleID), UserID: 1, AmountCents: amount, Type: txType,
		})
		require.NoError(t, err)
		if settle != "" {
			_, err = ledger.Transition(ctx, tx.ID, settle)
			require.NoError(t, err)
		}
	}

	record(2000, domain.TxTypeContribution, domain.TxStatusCompleted)
	record(3000, domain.TxTypeContribution, domain.TxStatusCompleted)
	record(9999, domain.TxTypeContribution, "") // pending, must not count
	record(1500, domain.TxTypeContribution, domain.TxStatusFailed)
	record(1000, domain.TxTypePayout, domain.TxStatusCompleted)

	balance, err := ledger.BalanceOf(circleID)
	require.NoError(t, err)
	require.Equal(t, int64(4000), balance)
}

func TestTransitionByProviderRef(t *testing.T) {
	ledger, store := newTestLedger(t)
	ctx := context.Background()

	tx, err := ledger.Record(ctx, TransactionDraft{UserID: 1, AmountCents: 1000, Type: domain.TxTypeContribution})
	require.NoError(t, err)
	store.setProviderRef(tx.ID, "transfer-abc")

	got, err := ledger.TransitionByProviderRef(ctx, "transfer-abc", domain.TxStatusCompleted)
	require.NoError(t, err)
	require.Equal(t, tx.ID, got.ID)

	// Replay is rejected as final, which the webhook treats as a no-op ack.
	_, err = ledger.TransitionByProviderRef(ctx, "transfer-abc", domain.TxStatusCompleted)
	require.ErrorIs(t, err, ErrTransactionFinal)

	_, err = ledger.TransitionByProviderRef(ctx, "transfer-unknown", domain.TxStatusCompleted)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
