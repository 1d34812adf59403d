package models

import (
	"time"

	"gorm.io/gorm"
)

// Transaction is an append-only ledger row. Status moves forward only
// (pending -> completed | failed | cancelled); rows are never mutated after
// reaching a terminal status. CircleID is nil for solo-goal contributions,
// GoalID is nil for circle activity.
type Transaction struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	CircleID        *uint          `gorm:"index" json:"circle_id,omitempty"`
	GoalID          *uint          `gorm:"index" json:"goal_id,omitempty"`
	UserID          uint           `gorm:"not null;index" json:"user_id"`
	AmountCents     int64          `gorm:"not null" json:"amount_cents"`
	Currency        string         `gorm:"size:3;default:'USD'" json:"currency"`
	Type            string         `gorm:"size:20;not null;index" json:"type"`   // contribution, payout
	Status          string         `gorm:"size:20;not null;index" json:"status"` // pending, completed, failed, cancelled
	Description     string         `gorm:"size:255" json:"description"`
	ProviderRef     string         `gorm:"size:128;index" json:"provider_ref"`
	IdempotencyKey  string         `gorm:"size:128;uniqueIndex" json:"-"`
	TransactionDate time.Time      `gorm:"not null;index" json:"transaction_date"`
	CompletedAt     *time.Time     `json:"completed_at"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`

	User User `gorm:"foreignKey:UserID" json:"-"`
}

func (Transaction) TableName() string {
	return "transactions"
}
