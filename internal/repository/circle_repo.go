package repository

import (
	"errors"

	"miturn/internal/models"

	"gorm.io/gorm"
)

var ErrPositionTaken = errors.New("payout position already taken")

type CircleRepository struct {
	db *gorm.DB
}

func NewCircleRepository(db *gorm.DB) *CircleRepository {
	return &CircleRepository{db: db}
}

func (r *CircleRepository) Create(c *models.Circle) error {
	return r.db.Create(c).Error
}

func (r *CircleRepository) GetByID(id uint) (*models.Circle, error) {
	var c models.Circle
	err := r.db.First(&c, id).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *CircleRepository) Update(c *models.Circle) error {
	return r.db.Save(c).Error
}

// ListActive returns all circles whose rotation has started, for the worker pass.
func (r *CircleRepository) ListActive() ([]models.Circle, error) {
	var circles []models.Circle
	err := r.db.Where("rotation_started = ?", true).Find(&circles).Error
	return circles, err
}

// ListByUser returns circles the user is an active member of.
func (r *CircleRepository) ListByUser(userID uint) ([]models.Circle, error) {
	var circles []models.Circle
	err := r.db.
		Joins("JOIN circle_members ON circle_members.circle_id = circles.id").
		Where("circle_members.user_id = ? AND circle_members.is_active = ? AND circle_members.deleted_at IS NULL", userID, true).
		Find(&circles).Error
	return circles, err
}

// ListUserCircleIDs returns the ids of circles the user belongs to, for
// activity feed subscriptions.
func (r *CircleRepository) ListUserCircleIDs(userID uint) ([]uint, error) {
	var ids []uint
	err := r.db.Model(&models.CircleMember{}).
		Where("user_id = ? AND is_active = ?", userID, true).
		Pluck("circle_id", &ids).Error
	return ids, err
}

// AddMember appends a member at the next free payout position inside a
// transaction, so two concurrent joins cannot claim the same rank.
func (r *CircleRepository) AddMember(circleID, userID uint) (*models.CircleMember, error) {
	var m *models.CircleMember
	err := r.db.Transaction(func(tx *gorm.DB) error {
		var maxPos int
		if err := tx.Model(&models.CircleMember{}).
			Where("circle_id = ?", circleID).
			Select("COALESCE(MAX(payout_position), 0)").Scan(&maxPos).Error; err != nil {
			return err
		}
		m = &models.CircleMember{
			CircleID:       circleID,
			UserID:         userID,
			PayoutPosition: maxPos + 1,
			IsActive:       true,
		}
		if err := tx.Create(m).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrPositionTaken
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// ActiveMembers returns active members ordered by payout position.
func (r *CircleRepository) ActiveMembers(circleID uint) ([]models.CircleMember, error) {
	var members []models.CircleMember
	err := r.db.Where("circle_id = ? AND is_active = ?", circleID, true).
		Order("payout_position ASC").Find(&members).Error
	return members, err
}

func (r *CircleRepository) GetMember(circleID, userID uint) (*models.CircleMember, error) {
	var m models.CircleMember
	err := r.db.Where("circle_id = ? AND user_id = ?", circleID, userID).First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// AdvancePointer moves the rotation pointer from oldPos to newPos. The
// conditional WHERE makes concurrent advances serialize: the second writer
// matches zero rows and reports false.
func (r *CircleRepository) AdvancePointer(circleID uint, oldPos, newPos int) (bool, error) {
	res := r.db.Model(&models.Circle{}).
		Where("id = ? AND rotation_position = ?", circleID, oldPos).
		Update("rotation_position", newPos)
	return res.RowsAffected == 1, res.Error
}
