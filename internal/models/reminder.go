package models

import (
	"time"

	"gorm.io/gorm"
)

// Reminder records one dispatched reminder for a member-cycle at a given
// escalation tier. The unique index is what guarantees at most one reminder
// per (circle, member, cycle, tier).
type Reminder struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	CircleID      uint           `gorm:"not null;uniqueIndex:idx_reminder_member_cycle_tier" json:"circle_id"`
	UserID        uint           `gorm:"not null;uniqueIndex:idx_reminder_member_cycle_tier" json:"user_id"`
	CycleIndex    int            `gorm:"not null;uniqueIndex:idx_reminder_member_cycle_tier" json:"cycle_index"`
	Tier          string         `gorm:"size:10;not null;uniqueIndex:idx_reminder_member_cycle_tier" json:"tier"`
	Delivered     bool           `gorm:"not null;default:false" json:"delivered"`
	DeliveryError string         `gorm:"size:255" json:"delivery_error,omitempty"`
	SentAt        time.Time      `json:"sent_at"`
	CreatedAt     time.Time      `json:"created_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Reminder) TableName() string {
	return "reminders"
}
