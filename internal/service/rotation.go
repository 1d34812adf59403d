package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"miturn/internal/domain"
	"miturn/internal/models"
	"miturn/internal/schedule"
	"miturn/pkg/analytics"
	"miturn/pkg/bank"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrPayoutDeferred signals a business-rule deferral (missing contributions
// inside the grace period, or insufficient completed funds). The pointer is
// left unchanged and the next pass retries.
var ErrPayoutDeferred = errors.New("payout deferred")

// CircleStore is the circle persistence the rotation engine needs.
type CircleStore interface {
	GetByID(id uint) (*models.Circle, error)
	ListActive() ([]models.Circle, error)
	ActiveMembers(circleID uint) ([]models.CircleMember, error)
	AdvancePointer(circleID uint, oldPos, newPos int) (bool, error)
}

// PayoutTxStore is the slice of the transaction store the engine reads
// directly (writes always go through the ledger).
type PayoutTxStore interface {
	ListByCircleWindow(circleID uint, txType, status string, from, to time.Time) ([]models.Transaction, error)
	LatestPayoutInWindow(circleID uint, from, to time.Time) (*models.Transaction, error)
	CountCompletedPayouts(circleID uint) (int64, error)
	SetProviderRef(id uint, ref string) error
}

// FundingStore resolves a member's funding account for payouts.
type FundingStore interface {
	GetDefault(userID uint) (*models.LinkedAccount, error)
}

// RotationNotifier receives user-facing rotation outcomes.
type RotationNotifier interface {
	PayoutSent(userID, circleID uint, amountCents int64)
	PayoutDeferred(circleID, recipientID uint, reason string)
}

// MemberStatus is one member's state for the current cycle.
type MemberStatus struct {
	Member      models.CircleMember
	State       string // due, paid, overdue
	DaysOverdue int
}

// CircleStatus is the fully derived per-cycle state of a circle. It is
// recomputed from the ledger and the circle row on every pass; nothing here
// survives between passes.
type CircleStatus struct {
	Circle       models.Circle
	Cycle        schedule.Cycle
	State        string // collecting, ready, paid, deferred
	Members      []MemberStatus
	PaidCount    int
	BalanceCents int64
	// PendingPayout is set when a payout for this cycle is awaiting
	// settlement from the transfer provider.
	PendingPayout *models.Transaction
}

// RotationService advances each circle's payout rotation. It is the single
// authoritative mutator of the rotation pointer; worker passes additionally
// hold a per-circle lease so at most one pass runs per circle at a time.
type RotationService struct {
	circles  CircleStore
	txs      PayoutTxStore
	ledger   *LedgerService
	accounts FundingStore
	transfer bank.Provider
	notifier RotationNotifier
	tracker  analytics.Tracker
	logger   *zap.Logger
}

func NewRotationService(
	circles CircleStore,
	txs PayoutTxStore,
	ledger *LedgerService,
	accounts FundingStore,
	transfer bank.Provider,
	notifier RotationNotifier,
	tracker analytics.Tracker,
	logger *zap.Logger,
) *RotationService {
	s := &RotationService{
		circles:  circles,
		txs:      txs,
		ledger:   ledger,
		accounts: accounts,
		transfer: transfer,
		notifier: notifier,
		tracker:  tracker,
		logger:   logger,
	}
	ledger.Subscribe(s.onLedgerEvent)
	return s
}

// Status derives the circle's current cycle state without mutating anything.
func (s *RotationService) Status(ctx context.Context, circleID uint, now time.Time) (*CircleStatus, error) {
	circle, err := s.circles.GetByID(circleID)
	if err != nil {
		return nil, err
	}
	return s.derive(ctx, circle, now)
}

func (s *RotationService) derive(ctx context.Context, circle *models.Circle, now time.Time) (*CircleStatus, error) {
	// The engine works on the earliest unpaid cycle, not the calendar window
	// containing now: one settled payout closes one cycle, so the count of
	// settled payouts is the index of the cycle still owed. Capped at the
	// calendar cycle so a fully caught-up circle works on the current window.
	calendar, err := schedule.CycleAt(circle.CycleStart, circle.Frequency, now)
	if err != nil {
		return nil, err
	}
	settled, err := s.txs.CountCompletedPayouts(circle.ID)
	if err != nil {
		return nil, err
	}
	cycle := calendar
	if int(settled) < calendar.Index {
		cycle, err = schedule.CycleByIndex(circle.CycleStart, circle.Frequency, int(settled))
		if err != nil {
			return nil, err
		}
	}
	// For a past-due cycle, contributions and payout attempts made after the
	// window closed (during grace, or a late catch-up) still count toward it.
	horizon := cycle.End
	if !now.Before(horizon) {
		horizon = now.Add(time.Second)
	}

	members, err := s.circles.ActiveMembers(circle.ID)
	if err != nil {
		return nil, err
	}
	completed, err := s.txs.ListByCircleWindow(
		circle.ID, domain.TxTypeContribution, domain.TxStatusCompleted, cycle.Start, horizon)
	if err != nil {
		return nil, err
	}
	paidUsers := make(map[uint]bool, len(completed))
	for _, tx := range completed {
		paidUsers[tx.UserID] = true
	}

	st := &CircleStatus{Circle: *circle, Cycle: cycle, Members: make([]MemberStatus, 0, len(members))}
	for _, m := range members {
		ms := MemberStatus{Member: m, State: domain.MemberCycleDue}
		if paidUsers[m.UserID] {
			ms.State = domain.MemberCyclePaid
			st.PaidCount++
		} else if now.After(cycle.End) || now.Equal(cycle.End) {
			ms.State = domain.MemberCycleOverdue
			ms.DaysOverdue = int(now.Sub(cycle.End).Hours()/24) + 1
		}
		st.Members = append(st.Members, ms)
	}

	st.BalanceCents, err = s.ledger.BalanceOf(circle.ID)
	if err != nil {
		return nil, err
	}

	payout, err := s.txs.LatestPayoutInWindow(circle.ID, cycle.Start, horizon)
	if err != nil {
		return nil, err
	}
	switch {
	case payout != nil && payout.Status == domain.TxStatusCompleted:
		st.State = domain.CircleCyclePaid
		return st, nil
	case payout != nil && payout.Status == domain.TxStatusPending:
		st.State = domain.CircleCycleReady
		st.PendingPayout = payout
		return st, nil
	}

	allPaid := st.PaidCount == len(members) && len(members) > 0
	graceEnd := cycle.End.AddDate(0, 0, circle.GraceDays)
	switch {
	case allPaid:
		st.State = domain.CircleCycleReady
	case now.Before(cycle.End):
		st.State = domain.CircleCycleCollecting
	case circle.SkipOverdue && !now.Before(graceEnd):
		// Grace elapsed: overdue members stay overdue but no longer block.
		st.State = domain.CircleCycleReady
	default:
		st.State = domain.CircleCycleDeferred
	}
	return st, nil
}

// RunPass executes one rotation pass for a circle. It is safe to re-run at
// any point: the decision is re-derived from persisted state and the payout
// for a cycle is only ever created once.
func (s *RotationService) RunPass(ctx context.Context, circleID uint, now time.Time) (*CircleStatus, error) {
	circle, err := s.circles.GetByID(circleID)
	if err != nil {
		return nil, err
	}
	if !circle.RotationStarted {
		return nil, nil
	}
	st, err := s.derive(ctx, circle, now)
	if err != nil {
		return nil, err
	}
	switch st.State {
	case domain.CircleCyclePaid:
		// Settled earlier; make sure the pointer moved (recovers a pass
		// interrupted between settlement and advance).
		end := st.Cycle.End
		if !now.Before(end) {
			end = now.Add(time.Second)
		}
		payout, err := s.txs.LatestPayoutInWindow(circle.ID, st.Cycle.Start, end)
		if err == nil && payout != nil && payout.Status == domain.TxStatusCompleted {
			s.advanceAfter(ctx, circle.ID, payout.UserID)
		}
		return st, nil
	case domain.CircleCycleCollecting:
		return st, nil
	case domain.CircleCycleDeferred:
		recipient, ok := s.recipientOf(st)
		if ok {
			s.notifier.PayoutDeferred(circle.ID, recipient.UserID, "waiting for contributions")
			s.tracker.Track(domain.EventPayoutDeferred, recipient.UserID, map[string]interface{}{
				"circle_id": circle.ID, "cycle": st.Cycle.Index, "reason": "contributions_missing",
			})
		}
		return st, fmt.Errorf("%w: circle %d cycle %d waiting for contributions", ErrPayoutDeferred, circle.ID, st.Cycle.Index)
	}
	if st.PendingPayout != nil {
		// Awaiting provider settlement; the webhook finishes the job.
		return st, nil
	}
	return s.finalize(ctx, st, now)
}

// finalize funds and initiates the payout for the member at the pointer.
func (s *RotationService) finalize(ctx context.Context, st *CircleStatus, now time.Time) (*CircleStatus, error) {
	circle := &st.Circle
	recipient, ok := s.recipientOf(st)
	if !ok {
		return st, fmt.Errorf("circle %d has no active member at position %d", circle.ID, circle.RotationPosition)
	}
	payoutCents := circle.ContributionCents * int64(st.PaidCount)
	if payoutCents <= 0 || st.BalanceCents < payoutCents {
		st.State = domain.CircleCycleDeferred
		s.notifier.PayoutDeferred(circle.ID, recipient.UserID, "insufficient funds")
		s.tracker.Track(domain.EventPayoutDeferred, recipient.UserID, map[string]interface{}{
			"circle_id": circle.ID, "cycle": st.Cycle.Index, "reason": "insufficient_funds",
		})
		return st, fmt.Errorf("%w: circle %d balance %d < payout %d",
			ErrPayoutDeferred, circle.ID, st.BalanceCents, payoutCents)
	}

	circleID := circle.ID
	tx, err := s.ledger.Record(ctx, TransactionDraft{
		CircleID:       &circleID,
		UserID:         recipient.UserID,
		AmountCents:    payoutCents,
		Currency:       circle.Currency,
		Type:           domain.TxTypePayout,
		Description:    fmt.Sprintf("payout cycle %d", st.Cycle.Index),
		IdempotencyKey: fmt.Sprintf("payout-%d-%d-%s", circle.ID, st.Cycle.Index, uuid.New().String()[:8]),
		Date:           now,
	})
	if err != nil {
		return st, err
	}

	// External side effects strictly after the authoritative record.
	account, err := s.accounts.GetDefault(recipient.UserID)
	if err != nil {
		_, _ = s.ledger.Transition(ctx, tx.ID, domain.TxStatusCancelled)
		return st, fmt.Errorf("payout funding account for user %d: %w", recipient.UserID, err)
	}
	resp, err := s.transfer.InitiateTransfer(ctx, bank.TransferRequest{
		UserID:      recipient.UserID,
		AmountCents: payoutCents,
		Currency:    circle.Currency,
		AccessToken: account.AccessToken,
		AccountID:   account.AccountID,
		Direction:   "credit",
		Description: fmt.Sprintf("MiTurn payout, circle %s", circle.Name),
		OrderID:     tx.IdempotencyKey,
	})
	if err != nil {
		// Collaborator failure: close this attempt, next pass starts fresh.
		_, _ = s.ledger.Transition(ctx, tx.ID, domain.TxStatusCancelled)
		return st, fmt.Errorf("initiate payout transfer: %w", err)
	}
	if err := s.txs.SetProviderRef(tx.ID, resp.Reference); err != nil {
		s.logger.Warn("store payout provider ref", zap.Uint("tx_id", tx.ID), zap.Error(err))
	}
	s.logger.Info("payout initiated",
		zap.Uint("circle_id", circle.ID),
		zap.Int("cycle", st.Cycle.Index),
		zap.Uint("recipient", recipient.UserID),
		zap.Int64("amount_cents", payoutCents),
		zap.String("provider_ref", resp.Reference))

	if resp.Status == "completed" {
		if _, err := s.ledger.Transition(ctx, tx.ID, domain.TxStatusCompleted); err != nil {
			return st, err
		}
		st.State = domain.CircleCyclePaid
	} else {
		tx.ProviderRef = resp.Reference
		st.PendingPayout = tx
	}
	return st, nil
}

// recipientOf finds the active member the pointer designates.
func (s *RotationService) recipientOf(st *CircleStatus) (models.CircleMember, bool) {
	for _, ms := range st.Members {
		if ms.Member.PayoutPosition == st.Circle.RotationPosition {
			return ms.Member, true
		}
	}
	return models.CircleMember{}, false
}

// onLedgerEvent advances the pointer when a payout settles. Runs for both
// synchronous (stub provider) and webhook-driven settlements.
func (s *RotationService) onLedgerEvent(ctx context.Context, ev LedgerEvent) {
	tx := ev.Transaction
	if tx.Type != domain.TxTypePayout || tx.CircleID == nil {
		return
	}
	if ev.To == domain.TxStatusCompleted {
		s.advanceAfter(ctx, *tx.CircleID, tx.UserID)
		s.notifier.PayoutSent(tx.UserID, *tx.CircleID, tx.AmountCents)
		s.tracker.Track(domain.EventPayoutSent, tx.UserID, map[string]interface{}{
			"circle_id": *tx.CircleID, "amount_cents": tx.AmountCents,
		})
	}
}

// advanceAfter moves the pointer past the recipient to the next active
// position, wrapping around. The conditional update makes it idempotent.
func (s *RotationService) advanceAfter(ctx context.Context, circleID, recipientID uint) {
	members, err := s.circles.ActiveMembers(circleID)
	if err != nil || len(members) == 0 {
		return
	}
	recipientIdx := -1
	for i, m := range members {
		if m.UserID == recipientID {
			recipientIdx = i
			break
		}
	}
	if recipientIdx == -1 {
		return
	}
	oldPos := members[recipientIdx].PayoutPosition
	newPos := members[(recipientIdx+1)%len(members)].PayoutPosition
	moved, err := s.circles.AdvancePointer(circleID, oldPos, newPos)
	if err != nil {
		s.logger.Error("advance rotation pointer", zap.Uint("circle_id", circleID), zap.Error(err))
		return
	}
	if moved {
		s.logger.Info("rotation pointer advanced",
			zap.Uint("circle_id", circleID), zap.Int("from", oldPos), zap.Int("to", newPos))
	}
}

// RunAll executes a pass over every active circle, skipping circles whose
// lease is held elsewhere. Deferred payouts are expected outcomes and are
// not treated as pass failures.
func (s *RotationService) RunAll(ctx context.Context, now time.Time, acquire func(circleID uint) bool, release func(circleID uint)) (int, error) {
	circles, err := s.circles.ListActive()
	if err != nil {
		return 0, err
	}
	processed := 0
	var errs []error
	for _, c := range circles {
		if acquire != nil && !acquire(c.ID) {
			continue
		}
		_, err := s.RunPass(ctx, c.ID, now)
		if release != nil {
			release(c.ID)
		}
		if err != nil && !errors.Is(err, ErrPayoutDeferred) {
			s.logger.Error("rotation pass failed", zap.Uint("circle_id", c.ID), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		processed++
	}
	return processed, errors.Join(errs...)
}
