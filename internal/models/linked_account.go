package models

import (
	"time"

	"gorm.io/gorm"
)

// LinkedAccount is a funding source linked through the bank aggregator.
// AccessToken is the aggregator's item token, never exposed over the API.
type LinkedAccount struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	UserID      uint           `gorm:"not null;index" json:"user_id"`
	Institution string         `gorm:"size:128" json:"institution"`
	AccountID   string         `gorm:"size:128;not null" json:"account_id"`
	Mask        string         `gorm:"size:8" json:"mask"`
	AccessToken string         `gorm:"size:255;not null" json:"-"`
	IsDefault   bool           `gorm:"not null;default:false" json:"is_default"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`

	User User `gorm:"foreignKey:UserID" json:"-"`
}

func (LinkedAccount) TableName() string {
	return "linked_accounts"
}
