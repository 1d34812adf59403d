package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"miturn/internal/domain"
	"miturn/internal/models"
	"miturn/pkg/analytics"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrGoalPastDeadline signals a goal whose deadline elapsed while incomplete.
// The allocation row is recorded as failed; the suggester never emits a
// negative or unbounded amount instead.
var ErrGoalPastDeadline = errors.New("goal deadline has passed")

// GoalStore is the goal persistence the suggester needs.
type GoalStore interface {
	GetByID(id uint) (*models.Goal, error)
	ListActive() ([]models.Goal, error)
	AddSaved(id uint, amountCents int64) error
	MarkAchieved(id uint, at time.Time) error
}

// AllocationStore persists daily allocation rows keyed by (goal, date).
type AllocationStore interface {
	Upsert(a *models.DailyAllocation) error
	MarkLatestPending(goalID uint, status string) error
}

// GoalAchiever is told when a goal first reaches its target.
type GoalAchiever interface {
	GoalAchieved(userID uint)
}

// AllocationConfig carries the clamp bounds and the multi-goal policy. The
// bounds are product configuration, not constants.
type AllocationConfig struct {
	MinCents int64 // suggestions below this (but above zero) are raised to it
	MaxCents int64 // per-goal ceiling; 0 disables
	// SplitAcrossGoals scales a user's suggestions down proportionally when
	// their sum exceeds MaxDailyCents (goals then compete for one budget).
	SplitAcrossGoals bool
	MaxDailyCents    int64
}

// AllocationService produces one DailyAllocation per active goal per day,
// suggesting the flat daily amount that reaches the target by the deadline.
type AllocationService struct {
	goals    GoalStore
	allocs   AllocationStore
	cfg      AllocationConfig
	tracker  analytics.Tracker
	achiever GoalAchiever
	logger   *zap.Logger
}

// OnGoalAchieved registers the hook fired when a goal reaches its target.
func (s *AllocationService) OnGoalAchieved(a GoalAchiever) {
	s.achiever = a
}

func NewAllocationService(goals GoalStore, allocs AllocationStore, cfg AllocationConfig, tracker analytics.Tracker, logger *zap.Logger) *AllocationService {
	return &AllocationService{goals: goals, allocs: allocs, cfg: cfg, tracker: tracker, logger: logger}
}

// SuggestForGoal computes the suggested daily amount in cents:
// max(0, (target - saved) / max(1, days_remaining)), before clamping.
func (s *AllocationService) SuggestForGoal(g *models.Goal, today time.Time) (int64, error) {
	remaining := g.TargetCents - g.SavedCents
	if remaining <= 0 {
		return 0, nil
	}
	days := daysUntil(today, g.Deadline)
	if days < 0 {
		return 0, fmt.Errorf("%w: goal %d", ErrGoalPastDeadline, g.ID)
	}
	if days == 0 {
		days = 1 // deadline is today: one last full-remainder suggestion
	}
	suggested := decimal.NewFromInt(remaining).
		DivRound(decimal.NewFromInt(days), 0).
		IntPart()
	return s.clamp(suggested, remaining), nil
}

func (s *AllocationService) clamp(suggested, remaining int64) int64 {
	if s.cfg.MinCents > 0 && suggested < s.cfg.MinCents {
		suggested = s.cfg.MinCents
	}
	if s.cfg.MaxCents > 0 && suggested > s.cfg.MaxCents {
		suggested = s.cfg.MaxCents
	}
	if suggested > remaining {
		suggested = remaining
	}
	return suggested
}

// RunDailyPass upserts today's allocation for every active goal. Re-running
// the pass for the same day updates rows in place; with unchanged inputs the
// amounts are unchanged.
func (s *AllocationService) RunDailyPass(ctx context.Context, now time.Time) (int, error) {
	goals, err := s.goals.ListActive()
	if err != nil {
		return 0, fmt.Errorf("list active goals: %w", err)
	}
	today := dateOf(now)

	// Raw per-goal suggestions first; the split policy then scales each
	// user's set against the shared daily budget.
	suggestions := make([]int64, len(goals))
	failed := make([]bool, len(goals))
	for i := range goals {
		suggestions[i], err = s.SuggestForGoal(&goals[i], today)
		if err != nil {
			failed[i] = true
		}
	}
	if s.cfg.SplitAcrossGoals && s.cfg.MaxDailyCents > 0 {
		s.applyDailyBudget(goals, suggestions, failed)
	}

	processed := 0
	var errs []error
	for i, g := range goals {
		if failed[i] {
			if err := s.allocs.Upsert(&models.DailyAllocation{
				UserID: g.UserID, GoalID: g.ID, Date: today,
				SuggestedCents: 0, Status: domain.AllocationFailed,
			}); err != nil {
				errs = append(errs, err)
				continue
			}
			s.tracker.Track(domain.EventAllocationFailed, g.UserID, map[string]interface{}{
				"goal_id": g.ID, "reason": "past_deadline",
			})
			errs = append(errs, fmt.Errorf("%w: goal %d", ErrGoalPastDeadline, g.ID))
			continue
		}
		if suggestions[i] == 0 {
			// Goal met: clamp to zero and stop producing allocations.
			continue
		}
		pct := percentOfTarget(suggestions[i], g.TargetCents)
		if err := s.allocs.Upsert(&models.DailyAllocation{
			UserID: g.UserID, GoalID: g.ID, Date: today,
			SuggestedCents: suggestions[i], SuggestedPct: &pct,
			Status: domain.AllocationPending,
		}); err != nil {
			errs = append(errs, fmt.Errorf("upsert allocation for goal %d: %w", g.ID, err))
			continue
		}
		processed++
	}
	s.logger.Info("allocation pass complete",
		zap.Int("goals", len(goals)), zap.Int("processed", processed), zap.Int("errors", len(errs)))
	return processed, errors.Join(errs...)
}

// applyDailyBudget scales each user's suggestions proportionally so their sum
// stays within MaxDailyCents.
func (s *AllocationService) applyDailyBudget(goals []models.Goal, suggestions []int64, failed []bool) {
	totals := make(map[uint]int64)
	for i, g := range goals {
		if !failed[i] {
			totals[g.UserID] += suggestions[i]
		}
	}
	for i, g := range goals {
		total := totals[g.UserID]
		if failed[i] || total <= s.cfg.MaxDailyCents || total == 0 {
			continue
		}
		scaled := decimal.NewFromInt(suggestions[i]).
			Mul(decimal.NewFromInt(s.cfg.MaxDailyCents)).
			DivRound(decimal.NewFromInt(total), 0).
			IntPart()
		suggestions[i] = scaled
	}
}

// onLedgerEvent settles allocation rows and goal progress when a goal
// contribution reaches a terminal status. A contribution can settle after
// its suggestion's day, so the newest pending row is settled rather than
// the row matching the transaction date.
func (s *AllocationService) onLedgerEvent(ctx context.Context, ev LedgerEvent) {
	tx := ev.Transaction
	if tx.GoalID == nil || tx.Type != domain.TxTypeContribution {
		return
	}
	switch ev.To {
	case domain.TxStatusCompleted:
		if err := s.goals.AddSaved(*tx.GoalID, tx.AmountCents); err != nil {
			s.logger.Error("update goal progress", zap.Uint("goal_id", *tx.GoalID), zap.Error(err))
			return
		}
		if err := s.allocs.MarkLatestPending(*tx.GoalID, domain.AllocationProcessed); err != nil {
			s.logger.Warn("mark allocation processed", zap.Uint("goal_id", *tx.GoalID), zap.Error(err))
		}
		g, err := s.goals.GetByID(*tx.GoalID)
		if err == nil && g.SavedCents >= g.TargetCents && g.AchievedAt == nil {
			if err := s.goals.MarkAchieved(g.ID, time.Now().UTC()); err == nil && s.achiever != nil {
				s.achiever.GoalAchieved(g.UserID)
			}
			s.tracker.Track(domain.EventGoalAchieved, g.UserID, map[string]interface{}{"goal_id": g.ID})
		}
	case domain.TxStatusFailed:
		if err := s.allocs.MarkLatestPending(*tx.GoalID, domain.AllocationFailed); err != nil {
			s.logger.Warn("mark allocation failed", zap.Uint("goal_id", *tx.GoalID), zap.Error(err))
		}
	}
}

// SubscribeTo wires the service to ledger events.
func (s *AllocationService) SubscribeTo(ledger *LedgerService) {
	ledger.Subscribe(s.onLedgerEvent)
}

func daysUntil(today, deadline time.Time) int64 {
	d := dateOf(deadline).Sub(dateOf(today))
	return int64(d.Hours() / 24)
}

func dateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func percentOfTarget(cents, target int64) float64 {
	if target == 0 {
		return 0
	}
	pct, _ := decimal.NewFromInt(cents).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(target)).
		Round(2).Float64()
	return pct
}
