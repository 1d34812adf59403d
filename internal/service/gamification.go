package service

import (
	"context"
	"time"

	"miturn/internal/domain"
	"miturn/internal/models"
	"miturn/pkg/analytics"

	"go.uber.org/zap"
)

// Streak tier thresholds (consecutive completed contributions).
const (
	tierSilverAt   = 4
	tierGoldAt     = 12
	tierPlatinumAt = 26
)

// maxStreakGap is the longest pause between completed contributions that
// keeps a streak alive; a little over a monthly cadence.
const maxStreakGap = 35 * 24 * time.Hour

// GamificationStore persists streaks and badges.
type GamificationStore interface {
	GetStreak(userID uint) (*models.UserStreak, error)
	SaveStreak(s *models.UserStreak) error
	AwardBadge(userID uint, code string, at time.Time) (bool, error)
	ListBadges(userID uint) ([]models.Badge, error)
}

// BadgeNotifier surfaces newly awarded badges to the user.
type BadgeNotifier interface {
	BadgeAwarded(userID uint, code string)
}

// GamificationService maintains streaks, tiers and badges from ledger
// events. Engagement state never feeds back into money movement.
type GamificationService struct {
	store    GamificationStore
	notifier BadgeNotifier
	tracker  analytics.Tracker
	logger   *zap.Logger
}

func NewGamificationService(store GamificationStore, notifier BadgeNotifier, tracker analytics.Tracker, logger *zap.Logger) *GamificationService {
	return &GamificationService{store: store, notifier: notifier, tracker: tracker, logger: logger}
}

// SubscribeTo wires the service to ledger events.
func (s *GamificationService) SubscribeTo(ledger *LedgerService) {
	ledger.Subscribe(s.onLedgerEvent)
}

func (s *GamificationService) onLedgerEvent(ctx context.Context, ev LedgerEvent) {
	tx := ev.Transaction
	switch {
	case tx.Type == domain.TxTypeContribution && ev.To == domain.TxStatusCompleted:
		s.recordContribution(tx.UserID, tx.TransactionDate)
	case tx.Type == domain.TxTypeContribution && ev.To == domain.TxStatusFailed:
		s.breakStreak(tx.UserID)
	case tx.Type == domain.TxTypePayout && ev.To == domain.TxStatusCompleted:
		s.award(tx.UserID, domain.BadgeFirstPayout)
	}
}

func (s *GamificationService) recordContribution(userID uint, at time.Time) {
	streak, err := s.store.GetStreak(userID)
	if err != nil {
		s.logger.Error("load streak", zap.Uint("user_id", userID), zap.Error(err))
		return
	}
	if streak.LastContribution != nil && at.Sub(*streak.LastContribution) > maxStreakGap {
		streak.Current = 0
	}
	streak.Current++
	if streak.Current > streak.Longest {
		streak.Longest = streak.Current
	}
	streak.Tier = tierFor(streak.Current)
	t := at
	streak.LastContribution = &t
	if err := s.store.SaveStreak(streak); err != nil {
		s.logger.Error("save streak", zap.Uint("user_id", userID), zap.Error(err))
		return
	}

	s.award(userID, domain.BadgeFirstContribution)
	if streak.Current >= 7 {
		s.award(userID, domain.BadgeStreak7)
	}
	if streak.Current >= 30 {
		s.award(userID, domain.BadgeStreak30)
	}
}

func (s *GamificationService) breakStreak(userID uint) {
	streak, err := s.store.GetStreak(userID)
	if err != nil || streak.Current == 0 {
		return
	}
	streak.Current = 0
	streak.Tier = tierFor(0)
	if err := s.store.SaveStreak(streak); err != nil {
		s.logger.Error("reset streak", zap.Uint("user_id", userID), zap.Error(err))
	}
}

// award grants a badge once; repeats are silent no-ops.
func (s *GamificationService) award(userID uint, code string) {
	fresh, err := s.store.AwardBadge(userID, code, time.Now().UTC())
	if err != nil {
		s.logger.Error("award badge", zap.Uint("user_id", userID), zap.String("code", code), zap.Error(err))
		return
	}
	if !fresh {
		return
	}
	s.notifier.BadgeAwarded(userID, code)
	s.tracker.Track(domain.EventBadgeAwarded, userID, map[string]interface{}{"badge": code})
}

// AwardCircleFounder is called when a user creates a circle.
func (s *GamificationService) AwardCircleFounder(userID uint) {
	s.award(userID, domain.BadgeCircleFounder)
}

// GoalAchieved grants the goal badge; the allocation service calls it when a
// goal first reaches its target.
func (s *GamificationService) GoalAchieved(userID uint) {
	s.award(userID, domain.BadgeGoalAchieved)
}

// Profile returns the user's streak and badges for the profile endpoint.
func (s *GamificationService) Profile(userID uint) (*models.UserStreak, []models.Badge, error) {
	streak, err := s.store.GetStreak(userID)
	if err != nil {
		return nil, nil, err
	}
	badges, err := s.store.ListBadges(userID)
	if err != nil {
		return nil, nil, err
	}
	return streak, badges, nil
}

func tierFor(streak int) string {
	switch {
	case streak >= tierPlatinumAt:
		return domain.TierPlatinum
	case streak >= tierGoldAt:
		return domain.TierGold
	case streak >= tierSilverAt:
		return domain.TierSilver
	default:
		return domain.TierBronze
	}
}
