package repository

import (
	"errors"

	"miturn/internal/models"

	"gorm.io/gorm"
)

// ErrReminderExists signals the (circle, member, cycle, tier) slot is taken.
var ErrReminderExists = errors.New("reminder already sent for this member-cycle tier")

type ReminderRepository struct {
	db *gorm.DB
}

func NewReminderRepository(db *gorm.DB) *ReminderRepository {
	return &ReminderRepository{db: db}
}

// Claim inserts the reminder row before any delivery is attempted. A
// duplicate-key failure means another pass already claimed the slot.
func (r *ReminderRepository) Claim(rem *models.Reminder) error {
	err := r.db.Create(rem).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrReminderExists
	}
	return err
}

func (r *ReminderRepository) Update(rem *models.Reminder) error {
	return r.db.Save(rem).Error
}

func (r *ReminderRepository) ListByCircleCycle(circleID uint, cycleIndex int) ([]models.Reminder, error) {
	var rows []models.Reminder
	err := r.db.Where("circle_id = ? AND cycle_index = ?", circleID, cycleIndex).Find(&rows).Error
	return rows, err
}
