package ws

import "time"

// CircleEvent is pushed to circle members when activity happens: a
// contribution settles, a payout is sent or deferred.
type CircleEvent struct {
	Type        string `json:"type"`
	CircleID    uint   `json:"circle_id"`
	UserID      uint   `json:"user_id,omitempty"`
	AmountCents int64  `json:"amount_cents,omitempty"`
	Tier        string `json:"tier,omitempty"`
	Badge       string `json:"badge,omitempty"`
	At          int64  `json:"at"`
}

// CircleHub streams circle activity to connected members.
type CircleHub struct {
	*Hub
}

func NewCircleHub() *CircleHub {
	return &CircleHub{Hub: NewHub()}
}

// Publish broadcasts an event to the circle's subscribers and, when it
// targets a specific user, to that user's other connections too.
func (h *CircleHub) Publish(ev CircleEvent) {
	ev.At = time.Now().Unix()
	if ev.CircleID != 0 {
		h.BroadcastToCircle(ev.CircleID, ev)
	}
	if ev.UserID != 0 {
		h.BroadcastToUser(ev.UserID, ev)
	}
}
