package service

import (
	"context"
	"encoding/json"
	"fmt"

	"miturn/internal/domain"
	"miturn/internal/models"
	"miturn/internal/ws"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// NotificationStore persists in-app notifications.
type NotificationStore interface {
	Create(n *models.Notification) error
}

// NotificationService writes in-app notifications and pushes circle
// activity over the WebSocket feed. It implements the notifier interfaces
// the rotation, reminder and gamification services depend on.
type NotificationService struct {
	store  NotificationStore
	hub    *ws.CircleHub
	logger *zap.Logger
}

func NewNotificationService(store NotificationStore, hub *ws.CircleHub, logger *zap.Logger) *NotificationService {
	return &NotificationService{store: store, hub: hub, logger: logger}
}

// Notify persists a notification and pushes it to the user's connections.
func (s *NotificationService) Notify(userID uint, notifType, title, body string, data map[string]interface{}) {
	var dataJSON string
	if data != nil {
		b, _ := json.Marshal(data)
		dataJSON = string(b)
	}
	n := &models.Notification{
		UserID: userID,
		Type:   notifType,
		Title:  title,
		Body:   body,
		Data:   dataJSON,
	}
	if err := s.store.Create(n); err != nil {
		s.logger.Error("persist notification",
			zap.Uint("user_id", userID), zap.String("type", notifType), zap.Error(err))
		return
	}
	if s.hub != nil {
		s.hub.BroadcastToUser(userID, n)
	}
}

func (s *NotificationService) PayoutSent(userID, circleID uint, amountCents int64) {
	s.Notify(userID, domain.NotifPayoutSent, "Payout sent",
		fmt.Sprintf("Your payout of %s is on its way.", formatCents(amountCents)),
		map[string]interface{}{"circle_id": circleID, "amount_cents": amountCents})
	if s.hub != nil {
		s.hub.Publish(ws.CircleEvent{
			Type: "payout_sent", CircleID: circleID, UserID: userID, AmountCents: amountCents,
		})
	}
}

func (s *NotificationService) PayoutDeferred(circleID, recipientID uint, reason string) {
	s.Notify(recipientID, domain.NotifPayoutDeferred, "Payout deferred",
		"Your payout is waiting on the circle: "+reason+".",
		map[string]interface{}{"circle_id": circleID, "reason": reason})
	if s.hub != nil {
		s.hub.Publish(ws.CircleEvent{Type: "payout_deferred", CircleID: circleID, UserID: recipientID})
	}
}

func (s *NotificationService) ContributionDue(userID, circleID uint, tier string) {
	title := "Contribution due"
	body := "Your circle contribution is due."
	switch tier {
	case domain.ReminderTierUrgent:
		title = "Contribution due soon"
		body = "Your circle is waiting on your contribution."
	case domain.ReminderTierOverdue:
		title = "Contribution overdue"
		body = "Your contribution is overdue and is holding up the payout."
	}
	s.Notify(userID, domain.NotifContributionDue, title, body,
		map[string]interface{}{"circle_id": circleID, "tier": tier})
}

func (s *NotificationService) BadgeAwarded(userID uint, code string) {
	s.Notify(userID, domain.NotifBadgeAwarded, "Badge earned",
		"You earned the "+code+" badge.",
		map[string]interface{}{"badge": code})
	if s.hub != nil {
		s.hub.Publish(ws.CircleEvent{Type: "badge_awarded", UserID: userID, Badge: code})
	}
}

// SubscribeTo feeds completed circle contributions into the activity
// stream so members see the circle filling up.
func (s *NotificationService) SubscribeTo(ledger *LedgerService) {
	ledger.Subscribe(s.onLedgerEvent)
}

func (s *NotificationService) onLedgerEvent(ctx context.Context, ev LedgerEvent) {
	tx := ev.Transaction
	if tx.Type != domain.TxTypeContribution || tx.CircleID == nil {
		return
	}
	switch ev.To {
	case domain.TxStatusCompleted:
		s.Notify(tx.UserID, domain.NotifContributionDone, "Contribution received",
			fmt.Sprintf("Your contribution of %s was received.", formatCents(tx.AmountCents)),
			map[string]interface{}{"circle_id": *tx.CircleID, "amount_cents": tx.AmountCents})
		if s.hub != nil {
			s.hub.Publish(ws.CircleEvent{
				Type: "contribution_completed", CircleID: *tx.CircleID,
				UserID: tx.UserID, AmountCents: tx.AmountCents,
			})
		}
	case domain.TxStatusFailed:
		s.Notify(tx.UserID, domain.NotifContributionDue, "Contribution failed",
			"Your contribution could not be collected. Please try again.",
			map[string]interface{}{"circle_id": *tx.CircleID})
	}
}

func formatCents(cents int64) string {
	return decimal.NewFromInt(cents).Div(decimal.NewFromInt(100)).StringFixed(2)
}
