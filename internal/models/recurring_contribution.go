package models

import (
	"time"

	"gorm.io/gorm"
)

// RecurringContribution is a user's schedule entry for a circle. Exactly one
// of DayOfWeek / DayOfMonth is set, consistent with Frequency (enforced by
// schedule.Cadence before persistence). Entries are never hard-deleted;
// pausing sets IsActive=false and immediately stops future transactions.
type RecurringContribution struct {
	ID                   uint           `gorm:"primaryKey" json:"id"`
	UserID               uint           `gorm:"not null;index:idx_recurring_user_circle,unique" json:"user_id"`
	CircleID             uint           `gorm:"not null;index:idx_recurring_user_circle,unique" json:"circle_id"`
	AmountCents          int64          `gorm:"not null" json:"amount_cents"`
	Frequency            string         `gorm:"size:10;not null" json:"frequency"`
	DayOfWeek            *int           `json:"day_of_week,omitempty"`  // 0-6, weekly/biweekly only
	DayOfMonth           *int           `json:"day_of_month,omitempty"` // 1-31, monthly only
	IsActive             bool           `gorm:"not null;default:true;index" json:"is_active"`
	NextContributionDate time.Time      `gorm:"not null;index" json:"next_contribution_date"`
	CreatedAt            time.Time      `json:"created_at"`
	UpdatedAt            time.Time      `json:"updated_at"`
	DeletedAt            gorm.DeletedAt `gorm:"index" json:"-"`

	User User `gorm:"foreignKey:UserID" json:"-"`
}

func (RecurringContribution) TableName() string {
	return "recurring_contributions"
}
