package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"miturn/internal/domain"
	"miturn/internal/models"
	"miturn/internal/schedule"
	"miturn/pkg/bank"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrNoFundingAccount is returned when a user has no linked account to pull
// a contribution from.
var ErrNoFundingAccount = errors.New("no linked funding account")

// RecurringStore is the schedule-entry persistence the contribution service
// needs for the recurring pass.
type RecurringStore interface {
	ListDue(now time.Time) ([]models.RecurringContribution, error)
	Update(rc *models.RecurringContribution) error
}

// CircleReader resolves circle attributes for recurring entries.
type CircleReader interface {
	GetByID(id uint) (*models.Circle, error)
}

type providerRefStore interface {
	SetProviderRef(id uint, ref string) error
}

// ContributionService initiates contribution transfers, both user-triggered
// and from recurring schedule entries. The ledger row is always recorded
// before the provider is called; settlement arrives via the webhook (or
// synchronously from the stub provider).
type ContributionService struct {
	ledger    *LedgerService
	txs       providerRefStore
	accounts  FundingStore
	transfer  bank.Provider
	recurring RecurringStore
	circles   CircleReader
	logger    *zap.Logger
}

func NewContributionService(
	ledger *LedgerService,
	txs providerRefStore,
	accounts FundingStore,
	transfer bank.Provider,
	recurring RecurringStore,
	circles CircleReader,
	logger *zap.Logger,
) *ContributionService {
	return &ContributionService{
		ledger:    ledger,
		txs:       txs,
		accounts:  accounts,
		transfer:  transfer,
		recurring: recurring,
		circles:   circles,
		logger:    logger,
	}
}

// Initiate records a pending contribution and starts the transfer. Exactly
// one of circleID/goalID must be set (the caller validates membership and
// ownership).
func (s *ContributionService) Initiate(ctx context.Context, userID uint, circleID, goalID *uint, amountCents int64, currency, description string) (*models.Transaction, error) {
	account, err := s.accounts.GetDefault(userID)
	if err != nil {
		return nil, fmt.Errorf("%w: user %d", ErrNoFundingAccount, userID)
	}
	tx, err := s.ledger.Record(ctx, TransactionDraft{
		CircleID:       circleID,
		GoalID:         goalID,
		UserID:         userID,
		AmountCents:    amountCents,
		Currency:       currency,
		Type:           domain.TxTypeContribution,
		Description:    description,
		IdempotencyKey: "contrib-" + uuid.New().String(),
	})
	if err != nil {
		return nil, err
	}

	resp, err := s.transfer.InitiateTransfer(ctx, bank.TransferRequest{
		UserID:      userID,
		AmountCents: amountCents,
		Currency:    currency,
		AccessToken: account.AccessToken,
		AccountID:   account.AccountID,
		Direction:   "debit",
		Description: description,
		OrderID:     tx.IdempotencyKey,
	})
	if err != nil {
		_, _ = s.ledger.Transition(ctx, tx.ID, domain.TxStatusCancelled)
		return nil, fmt.Errorf("initiate contribution transfer: %w", err)
	}
	if err := s.txs.SetProviderRef(tx.ID, resp.Reference); err != nil {
		s.logger.Warn("store contribution provider ref", zap.Uint("tx_id", tx.ID), zap.Error(err))
	}
	tx.ProviderRef = resp.Reference
	if resp.Status == "completed" {
		return s.ledger.Transition(ctx, tx.ID, domain.TxStatusCompleted)
	}
	return tx, nil
}

// RunRecurringPass initiates contributions for every active schedule entry
// that is due, then rolls its next contribution date forward. Entries whose
// transfer fails stay due and are retried on the next pass.
func (s *ContributionService) RunRecurringPass(ctx context.Context, now time.Time) (int, error) {
	entries, err := s.recurring.ListDue(now)
	if err != nil {
		return 0, fmt.Errorf("list due schedule entries: %w", err)
	}
	processed := 0
	var errs []error
	for i := range entries {
		entry := &entries[i]
		cadence, err := schedule.New(entry.Frequency, entry.DayOfWeek, entry.DayOfMonth)
		if err != nil {
			errs = append(errs, fmt.Errorf("schedule entry %d: %w", entry.ID, err))
			continue
		}
		circle, err := s.circles.GetByID(entry.CircleID)
		if err != nil {
			errs = append(errs, fmt.Errorf("resolve circle %d for schedule entry %d: %w", entry.CircleID, entry.ID, err))
			continue
		}
		circleID := entry.CircleID
		// The row carries the circle's currency, not a caller default.
		_, err = s.Initiate(ctx, entry.UserID, &circleID, nil, entry.AmountCents, circle.Currency, "recurring contribution")
		if err != nil {
			s.logger.Error("recurring contribution failed",
				zap.Uint("entry_id", entry.ID), zap.Uint("user_id", entry.UserID), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		entry.NextContributionDate = cadence.NextAfter(entry.NextContributionDate)
		if err := s.recurring.Update(entry); err != nil {
			errs = append(errs, fmt.Errorf("roll schedule entry %d forward: %w", entry.ID, err))
			continue
		}
		processed++
	}
	s.logger.Info("recurring pass complete",
		zap.Int("due", len(entries)), zap.Int("processed", processed), zap.Int("errors", len(errs)))
	return processed, errors.Join(errs...)
}
