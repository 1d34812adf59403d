package repository

import (
	"miturn/internal/models"

	"gorm.io/gorm"
)

type LinkedAccountRepository struct {
	db *gorm.DB
}

func NewLinkedAccountRepository(db *gorm.DB) *LinkedAccountRepository {
	return &LinkedAccountRepository{db: db}
}

func (r *LinkedAccountRepository) Create(a *models.LinkedAccount) error {
	return r.db.Create(a).Error
}

func (r *LinkedAccountRepository) ListByUser(userID uint) ([]models.LinkedAccount, error) {
	var rows []models.LinkedAccount
	err := r.db.Where("user_id = ?", userID).Find(&rows).Error
	return rows, err
}

// GetDefault returns the user's default funding account, falling back to the
// most recently linked one.
func (r *LinkedAccountRepository) GetDefault(userID uint) (*models.LinkedAccount, error) {
	var a models.LinkedAccount
	err := r.db.Where("user_id = ? AND is_default = ?", userID, true).First(&a).Error
	if err == gorm.ErrRecordNotFound {
		err = r.db.Where("user_id = ?", userID).Order("id DESC").First(&a).Error
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}
