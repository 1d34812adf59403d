package models

import (
	"time"

	"gorm.io/gorm"
)

// UserStreak tracks consecutive completed contributions and the derived
// engagement tier.
type UserStreak struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	UserID           uint       `gorm:"uniqueIndex;not null" json:"user_id"`
	Current          int        `gorm:"not null;default:0" json:"current"`
	Longest          int        `gorm:"not null;default:0" json:"longest"`
	Tier             string     `gorm:"size:10;not null;default:'bronze'" json:"tier"`
	LastContribution *time.Time `json:"last_contribution"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func (UserStreak) TableName() string {
	return "user_streaks"
}

// Badge is a one-time award; (user, code) is unique.
type Badge struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	UserID    uint           `gorm:"not null;uniqueIndex:idx_badge_user_code" json:"user_id"`
	Code      string         `gorm:"size:40;not null;uniqueIndex:idx_badge_user_code" json:"code"`
	AwardedAt time.Time      `json:"awarded_at"`
	CreatedAt time.Time      `json:"created_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Badge) TableName() string {
	return "badges"
}
