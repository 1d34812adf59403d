package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"miturn/internal/domain"
	"miturn/internal/models"
	"miturn/internal/repository"
	"miturn/pkg/analytics"
	"miturn/pkg/messaging"

	"go.uber.org/zap"
)

// ReminderStore persists dispatched reminders; the claim must be unique per
// (circle, member, cycle, tier).
type ReminderStore interface {
	Claim(rem *models.Reminder) error
	Update(rem *models.Reminder) error
}

// ReminderUserStore resolves recipients.
type ReminderUserStore interface {
	GetByID(id uint) (*models.User, error)
}

// ReminderNotifier writes the in-app counterpart of an emailed reminder.
type ReminderNotifier interface {
	ContributionDue(userID, circleID uint, tier string)
}

// ReminderConfig sets the escalation thresholds in days overdue.
type ReminderConfig struct {
	UrgentAfterDays  int // below this: gentle
	OverdueAfterDays int // at or above this: overdue
}

// DispatchResult reports a single dispatch attempt.
type DispatchResult struct {
	Success   bool
	Recipient string
}

// ReminderService notifies members with due or overdue contributions, at
// most once per escalation tier per member-cycle. Delivery failures are
// recorded and reported, never retried in-line.
type ReminderService struct {
	reminders ReminderStore
	users     ReminderUserStore
	circles   CircleStore
	rotation  *RotationService
	sender    messaging.Sender
	notifier  ReminderNotifier
	tracker   analytics.Tracker
	cfg       ReminderConfig
	logger    *zap.Logger
}

func NewReminderService(
	reminders ReminderStore,
	users ReminderUserStore,
	circles CircleStore,
	rotation *RotationService,
	sender messaging.Sender,
	notifier ReminderNotifier,
	tracker analytics.Tracker,
	cfg ReminderConfig,
	logger *zap.Logger,
) *ReminderService {
	return &ReminderService{
		reminders: reminders,
		users:     users,
		circles:   circles,
		rotation:  rotation,
		sender:    sender,
		notifier:  notifier,
		tracker:   tracker,
		cfg:       cfg,
		logger:    logger,
	}
}

// TierFor maps days overdue to an escalation tier.
func (s *ReminderService) TierFor(daysOverdue int) string {
	switch {
	case daysOverdue >= s.cfg.OverdueAfterDays:
		return domain.ReminderTierOverdue
	case daysOverdue >= s.cfg.UrgentAfterDays:
		return domain.ReminderTierUrgent
	default:
		return domain.ReminderTierGentle
	}
}

// Dispatch sends one reminder for a member-cycle at the given tier. When the
// tier was already dispatched for this member-cycle the call is a no-op with
// Success=false and no error.
func (s *ReminderService) Dispatch(ctx context.Context, circleID, userID uint, cycleIndex int, tier string) (DispatchResult, error) {
	rem := &models.Reminder{
		CircleID:   circleID,
		UserID:     userID,
		CycleIndex: cycleIndex,
		Tier:       tier,
	}
	if err := s.reminders.Claim(rem); err != nil {
		if errors.Is(err, repository.ErrReminderExists) {
			return DispatchResult{Success: false}, nil
		}
		return DispatchResult{}, fmt.Errorf("claim reminder slot: %w", err)
	}

	user, err := s.users.GetByID(userID)
	if err != nil {
		return DispatchResult{}, fmt.Errorf("resolve reminder recipient %d: %w", userID, err)
	}
	result := DispatchResult{Recipient: user.Email}

	err = s.sender.Send(ctx, messaging.Message{
		Recipient: user.Email,
		Template:  "reminder_" + tier,
		Data: map[string]interface{}{
			"name":      user.FullName,
			"circle_id": circleID,
			"tier":      tier,
		},
	})
	now := time.Now().UTC()
	if err != nil {
		rem.Delivered = false
		rem.DeliveryError = err.Error()
		rem.SentAt = now
		_ = s.reminders.Update(rem)
		s.tracker.Track(domain.EventReminderFailed, userID, map[string]interface{}{
			"circle_id": circleID, "cycle": cycleIndex, "tier": tier, "error": err.Error(),
		})
		return result, fmt.Errorf("deliver %s reminder to user %d: %w", tier, userID, err)
	}

	rem.Delivered = true
	rem.SentAt = now
	if err := s.reminders.Update(rem); err != nil {
		s.logger.Warn("mark reminder delivered", zap.Uint("user_id", userID), zap.Error(err))
	}
	s.notifier.ContributionDue(userID, circleID, tier)
	s.tracker.Track(domain.EventReminderSent, userID, map[string]interface{}{
		"circle_id": circleID, "cycle": cycleIndex, "tier": tier,
	})
	result.Success = true
	return result, nil
}

// RunPass derives overdue members for every active circle and dispatches the
// tier their lateness has reached. Like all worker passes it is idempotent:
// already-claimed tiers are skipped.
func (s *ReminderService) RunPass(ctx context.Context, now time.Time) (int, error) {
	circles, err := s.circles.ListActive()
	if err != nil {
		return 0, fmt.Errorf("list circles for reminders: %w", err)
	}
	sent := 0
	var errs []error
	for _, c := range circles {
		st, err := s.rotation.Status(ctx, c.ID, now)
		if err != nil {
			errs = append(errs, fmt.Errorf("derive circle %d status: %w", c.ID, err))
			continue
		}
		for _, ms := range st.Members {
			if ms.State != domain.MemberCycleOverdue {
				continue
			}
			tier := s.TierFor(ms.DaysOverdue)
			res, err := s.Dispatch(ctx, c.ID, ms.Member.UserID, st.Cycle.Index, tier)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if res.Success {
				sent++
			}
		}
	}
	s.logger.Info("reminder pass complete", zap.Int("sent", sent), zap.Int("errors", len(errs)))
	return sent, errors.Join(errs...)
}
