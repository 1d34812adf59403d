package repository

import (
	"time"

	"miturn/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type GamificationRepository struct {
	db *gorm.DB
}

func NewGamificationRepository(db *gorm.DB) *GamificationRepository {
	return &GamificationRepository{db: db}
}

func (r *GamificationRepository) GetStreak(userID uint) (*models.UserStreak, error) {
	var s models.UserStreak
	err := r.db.Where("user_id = ?", userID).First(&s).Error
	if err == gorm.ErrRecordNotFound {
		return &models.UserStreak{UserID: userID, Tier: "bronze"}, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *GamificationRepository) SaveStreak(s *models.UserStreak) error {
	return r.db.Save(s).Error
}

// AwardBadge inserts a badge once; re-awarding the same code is a no-op.
// Returns true when the badge was newly awarded.
func (r *GamificationRepository) AwardBadge(userID uint, code string, at time.Time) (bool, error) {
	b := models.Badge{UserID: userID, Code: code, AwardedAt: at}
	res := r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&b)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *GamificationRepository) ListBadges(userID uint) ([]models.Badge, error) {
	var rows []models.Badge
	err := r.db.Where("user_id = ?", userID).Order("awarded_at ASC").Find(&rows).Error
	return rows, err
}
