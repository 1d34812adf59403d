package repository

import (
	"time"

	"miturn/internal/models"

	"gorm.io/gorm"
)

type RecurringRepository struct {
	db *gorm.DB
}

func NewRecurringRepository(db *gorm.DB) *RecurringRepository {
	return &RecurringRepository{db: db}
}

func (r *RecurringRepository) Create(rc *models.RecurringContribution) error {
	return r.db.Create(rc).Error
}

func (r *RecurringRepository) GetByID(id uint) (*models.RecurringContribution, error) {
	var rc models.RecurringContribution
	err := r.db.First(&rc, id).Error
	if err != nil {
		return nil, err
	}
	return &rc, nil
}

func (r *RecurringRepository) Update(rc *models.RecurringContribution) error {
	return r.db.Save(rc).Error
}

func (r *RecurringRepository) ListByUser(userID uint) ([]models.RecurringContribution, error) {
	var entries []models.RecurringContribution
	err := r.db.Where("user_id = ?", userID).Find(&entries).Error
	return entries, err
}

// ListDue returns active entries whose next contribution date is on or
// before now. Paused entries never show up here, so pausing stops future
// transactions immediately.
func (r *RecurringRepository) ListDue(now time.Time) ([]models.RecurringContribution, error) {
	var entries []models.RecurringContribution
	err := r.db.Where("is_active = ? AND next_contribution_date <= ?", true, now).
		Find(&entries).Error
	return entries, err
}

// Deactivate pauses a schedule entry. Entries are never hard-deleted.
func (r *RecurringRepository) Deactivate(id uint) error {
	return r.db.Model(&models.RecurringContribution{}).Where("id = ?", id).
		Update("is_active", false).Error
}
