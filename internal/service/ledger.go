package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"miturn/internal/domain"
	"miturn/internal/models"

	"go.uber.org/zap"
)

var (
	ErrInvalidAmount    = errors.New("transaction amount must be positive")
	ErrInvalidTxType    = errors.New("unknown transaction type")
	ErrInvalidStatus    = errors.New("unknown transaction status")
	ErrTransactionFinal = errors.New("transaction already in a terminal status")
)

// TransactionStore is the persistence the ledger needs. Implemented by
// repository.TransactionRepository; tests substitute an in-memory fake.
type TransactionStore interface {
	Create(tx *models.Transaction) error
	GetByID(id uint) (*models.Transaction, error)
	GetByProviderRef(ref string) (*models.Transaction, error)
	TransitionStatus(id uint, from, to string, at time.Time) (bool, error)
	SumCompletedByCircle(circleID uint) (contributions, payouts int64, err error)
}

// LedgerEvent is emitted after every successful status transition.
type LedgerEvent struct {
	Transaction models.Transaction
	From        string
	To          string
}

type LedgerListener func(ctx context.Context, ev LedgerEvent)

// TransactionDraft is the input to Record.
type TransactionDraft struct {
	CircleID       *uint
	GoalID         *uint
	UserID         uint
	AmountCents    int64
	Currency       string
	Type           string
	Description    string
	IdempotencyKey string
	Date           time.Time
}

// LedgerService owns the append-only transaction ledger. Transactions are
// recorded as pending and move forward exactly once; the circle balance is
// always a fold over completed rows, never stored.
type LedgerService struct {
	store  TransactionStore
	logger *zap.Logger

	mu        sync.RWMutex
	listeners []LedgerListener
}

func NewLedgerService(store TransactionStore, logger *zap.Logger) *LedgerService {
	return &LedgerService{store: store, logger: logger}
}

// Subscribe registers a listener for ledger events. Listeners run
// synchronously after the transition is durable, in registration order.
func (s *LedgerService) Subscribe(l LedgerListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// Record validates the draft and creates a pending transaction.
func (s *LedgerService) Record(ctx context.Context, draft TransactionDraft) (*models.Transaction, error) {
	if draft.AmountCents <= 0 {
		return nil, ErrInvalidAmount
	}
	if draft.Type != domain.TxTypeContribution && draft.Type != domain.TxTypePayout {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTxType, draft.Type)
	}
	date := draft.Date
	if date.IsZero() {
		date = time.Now().UTC()
	}
	currency := draft.Currency
	if currency == "" {
		currency = "USD"
	}
	tx := &models.Transaction{
		CircleID:        draft.CircleID,
		GoalID:          draft.GoalID,
		UserID:          draft.UserID,
		AmountCents:     draft.AmountCents,
		Currency:        currency,
		Type:            draft.Type,
		Status:          domain.TxStatusPending,
		Description:     draft.Description,
		IdempotencyKey:  draft.IdempotencyKey,
		TransactionDate: date,
	}
	if err := s.store.Create(tx); err != nil {
		return nil, fmt.Errorf("record transaction: %w", err)
	}
	return tx, nil
}

// Transition moves a pending transaction to a terminal status. A transition
// out of a terminal status is rejected with ErrTransactionFinal; of two
// concurrent transitions on the same row, exactly one wins and the loser is
// rejected the same way.
func (s *LedgerService) Transition(ctx context.Context, id uint, to string) (*models.Transaction, error) {
	if !domain.IsTerminalTxStatus(to) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, to)
	}
	tx, err := s.store.GetByID(id)
	if err != nil {
		return nil, err
	}
	if domain.IsTerminalTxStatus(tx.Status) {
		return nil, fmt.Errorf("%w: %s is %s", ErrTransactionFinal, describeTx(tx), tx.Status)
	}
	now := time.Now().UTC()
	ok, err := s.store.TransitionStatus(id, domain.TxStatusPending, to, now)
	if err != nil {
		return nil, fmt.Errorf("transition transaction %d: %w", id, err)
	}
	if !ok {
		// Lost the race: someone else already finalized the row.
		return nil, fmt.Errorf("%w: concurrent transition on %s", ErrTransactionFinal, describeTx(tx))
	}
	from := tx.Status
	tx.Status = to
	if to == domain.TxStatusCompleted {
		tx.CompletedAt = &now
	}
	s.logger.Info("ledger transition",
		zap.Uint("tx_id", tx.ID),
		zap.String("type", tx.Type),
		zap.String("from", from),
		zap.String("to", to))
	s.emit(ctx, LedgerEvent{Transaction: *tx, From: from, To: to})
	return tx, nil
}

// TransitionByProviderRef resolves the provider's reference and transitions
// the matching transaction; used by the transfer webhook.
func (s *LedgerService) TransitionByProviderRef(ctx context.Context, ref, to string) (*models.Transaction, error) {
	tx, err := s.store.GetByProviderRef(ref)
	if err != nil {
		return nil, err
	}
	return s.Transition(ctx, tx.ID, to)
}

// BalanceOf folds the ledger for a circle: completed contributions minus
// completed payouts.
func (s *LedgerService) BalanceOf(circleID uint) (int64, error) {
	contributions, payouts, err := s.store.SumCompletedByCircle(circleID)
	if err != nil {
		return 0, fmt.Errorf("balance of circle %d: %w", circleID, err)
	}
	return contributions - payouts, nil
}

func (s *LedgerService) emit(ctx context.Context, ev LedgerEvent) {
	s.mu.RLock()
	listeners := make([]LedgerListener, len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.RUnlock()
	for _, l := range listeners {
		l(ctx, ev)
	}
}

func describeTx(tx *models.Transaction) string {
	return fmt.Sprintf("transaction %d (%s)", tx.ID, tx.Type)
}
