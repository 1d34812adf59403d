package repository

import (
	"errors"
	"time"

	"miturn/internal/domain"
	"miturn/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AllocationRepository struct {
	db *gorm.DB
}

func NewAllocationRepository(db *gorm.DB) *AllocationRepository {
	return &AllocationRepository{db: db}
}

// Upsert writes the allocation for (goal, date), updating amount and status
// in place when a row already exists. The unique index on (goal_id, date)
// makes the daily pass idempotent.
func (r *AllocationRepository) Upsert(a *models.DailyAllocation) error {
	a.Date = dateOnly(a.Date)
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "goal_id"}, {Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{"suggested_cents", "suggested_pct", "status", "updated_at"}),
	}).Create(a).Error
}

func (r *AllocationRepository) GetForDate(goalID uint, date time.Time) (*models.DailyAllocation, error) {
	var a models.DailyAllocation
	err := r.db.Where("goal_id = ? AND date = ?", goalID, dateOnly(date)).First(&a).Error
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *AllocationRepository) ListByGoal(goalID uint, limit int) ([]models.DailyAllocation, error) {
	var rows []models.DailyAllocation
	err := r.db.Where("goal_id = ?", goalID).Order("date DESC").Limit(limit).Find(&rows).Error
	return rows, err
}

// MarkLatestPending settles the newest pending allocation row for a goal. A
// contribution may settle a day or more after its suggestion was produced, so
// the match is by recency, not by the transaction date.
func (r *AllocationRepository) MarkLatestPending(goalID uint, status string) error {
	var row models.DailyAllocation
	err := r.db.Where("goal_id = ? AND status = ?", goalID, domain.AllocationPending).
		Order("date DESC").First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Nothing pending (manual contribution outside the daily pass).
			return nil
		}
		return err
	}
	return r.db.Model(&models.DailyAllocation{}).
		Where("id = ?", row.ID).
		Update("status", status).Error
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
