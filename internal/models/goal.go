package models

import (
	"time"

	"gorm.io/gorm"
)

// Goal is a solo savings target independent of any circle.
type Goal struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	UserID      uint           `gorm:"not null;index" json:"user_id"`
	Name        string         `gorm:"size:128;not null" json:"name"`
	TargetCents int64          `gorm:"not null" json:"target_cents"`
	SavedCents  int64          `gorm:"not null;default:0" json:"saved_cents"`
	Deadline    time.Time      `gorm:"not null" json:"deadline"`
	IsActive    bool           `gorm:"not null;default:true;index" json:"is_active"`
	AchievedAt  *time.Time     `json:"achieved_at"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`

	User User `gorm:"foreignKey:UserID" json:"-"`
}

func (Goal) TableName() string {
	return "goals"
}

// DailyAllocation is the suggested contribution for one goal on one calendar
// day. One row per (goal, date); re-running the suggester updates in place.
type DailyAllocation struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	UserID         uint           `gorm:"not null;index" json:"user_id"`
	GoalID         uint           `gorm:"not null;uniqueIndex:idx_allocation_goal_date" json:"goal_id"`
	Date           time.Time      `gorm:"type:date;not null;uniqueIndex:idx_allocation_goal_date" json:"date"`
	SuggestedCents int64          `gorm:"not null" json:"suggested_cents"`
	SuggestedPct   *float64       `json:"suggested_percentage,omitempty"`
	Status         string         `gorm:"size:20;not null;index" json:"status"` // pending, processed, failed
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`
}

func (DailyAllocation) TableName() string {
	return "daily_allocations"
}
