package models

import (
	"time"

	"gorm.io/gorm"
)

// Circle is a rotating savings group. RotationPosition is the payout pointer:
// the payout_position of the member due to receive the next payout. It is
// mutated only by the rotation engine.
type Circle struct {
	ID                uint           `gorm:"primaryKey" json:"id"`
	Name              string         `gorm:"size:128;not null" json:"name"`
	OwnerID           uint           `gorm:"not null;index" json:"owner_id"`
	ContributionCents int64          `gorm:"not null" json:"contribution_cents"`
	Currency          string         `gorm:"size:3;default:'USD'" json:"currency"`
	Frequency         string         `gorm:"size:10;not null" json:"frequency"` // weekly, biweekly, monthly
	CycleStart        time.Time      `gorm:"not null" json:"cycle_start"`
	GraceDays         int            `gorm:"not null;default:3" json:"grace_days"`
	SkipOverdue       bool           `gorm:"not null;default:true" json:"skip_overdue"` // past grace, overdue members do not block the payout
	RotationPosition  int            `gorm:"not null;default:1" json:"rotation_position"`
	RotationStarted   bool           `gorm:"not null;default:false" json:"rotation_started"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
	DeletedAt         gorm.DeletedAt `gorm:"index" json:"-"`

	Members []CircleMember `gorm:"foreignKey:CircleID" json:"members,omitempty"`
}

func (Circle) TableName() string {
	return "circles"
}

// CircleMember ties a user to a circle with a fixed rank in the payout
// rotation. PayoutPosition is unique per circle and immutable once the
// rotation has started.
type CircleMember struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	CircleID       uint           `gorm:"not null;uniqueIndex:idx_circle_position;index:idx_circle_user,unique" json:"circle_id"`
	UserID         uint           `gorm:"not null;index:idx_circle_user,unique" json:"user_id"`
	PayoutPosition int            `gorm:"not null;uniqueIndex:idx_circle_position" json:"payout_position"`
	IsActive       bool           `gorm:"not null;default:true" json:"is_active"`
	JoinedAt       time.Time      `json:"joined_at"`
	CreatedAt      time.Time      `json:"created_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`

	User User `gorm:"foreignKey:UserID" json:"-"`
}

func (CircleMember) TableName() string {
	return "circle_members"
}
