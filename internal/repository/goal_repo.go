package repository

import (
	"time"

	"miturn/internal/models"

	"gorm.io/gorm"
)

type GoalRepository struct {
	db *gorm.DB
}

func NewGoalRepository(db *gorm.DB) *GoalRepository {
	return &GoalRepository{db: db}
}

func (r *GoalRepository) Create(g *models.Goal) error {
	return r.db.Create(g).Error
}

func (r *GoalRepository) GetByID(id uint) (*models.Goal, error) {
	var g models.Goal
	err := r.db.First(&g, id).Error
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (r *GoalRepository) Update(g *models.Goal) error {
	return r.db.Save(g).Error
}

func (r *GoalRepository) ListByUser(userID uint) ([]models.Goal, error) {
	var goals []models.Goal
	err := r.db.Where("user_id = ?", userID).Find(&goals).Error
	return goals, err
}

// ListActive returns all active goals across users, for the daily pass.
func (r *GoalRepository) ListActive() ([]models.Goal, error) {
	var goals []models.Goal
	err := r.db.Where("is_active = ?", true).Order("user_id ASC").Find(&goals).Error
	return goals, err
}

// AddSaved increments the saved amount after a completed goal contribution.
func (r *GoalRepository) AddSaved(id uint, amountCents int64) error {
	return r.db.Model(&models.Goal{}).Where("id = ?", id).
		Update("saved_cents", gorm.Expr("saved_cents + ?", amountCents)).Error
}

func (r *GoalRepository) Deactivate(id uint) error {
	return r.db.Model(&models.Goal{}).Where("id = ?", id).
		Update("is_active", false).Error
}

func (r *GoalRepository) MarkAchieved(id uint, at time.Time) error {
	return r.db.Model(&models.Goal{}).Where("id = ? AND achieved_at IS NULL", id).
		Updates(map[string]interface{}{"achieved_at": at, "is_active": false}).Error
}
