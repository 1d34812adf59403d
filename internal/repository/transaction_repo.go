package repository

import (
	"time"

	"miturn/internal/domain"
	"miturn/internal/models"

	"gorm.io/gorm"
)

type TransactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) Create(tx *models.Transaction) error {
	return r.db.Create(tx).Error
}

func (r *TransactionRepository) GetByID(id uint) (*models.Transaction, error) {
	var tx models.Transaction
	err := r.db.First(&tx, id).Error
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

func (r *TransactionRepository) GetByProviderRef(ref string) (*models.Transaction, error) {
	var tx models.Transaction
	err := r.db.Where("provider_ref = ?", ref).First(&tx).Error
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

// SetProviderRef stores the external reference returned by the transfer
// provider after the row already exists.
func (r *TransactionRepository) SetProviderRef(id uint, ref string) error {
	return r.db.Model(&models.Transaction{}).Where("id = ?", id).
		Update("provider_ref", ref).Error
}

// TransitionStatus conditionally moves a transaction from one status to
// another. The guarded UPDATE is the serialization point: of two concurrent
// transitions only one matches the row, the other sees affected == false.
func (r *TransactionRepository) TransitionStatus(id uint, from, to string, at time.Time) (bool, error) {
	updates := map[string]interface{}{"status": to, "updated_at": at}
	if to == domain.TxStatusCompleted {
		updates["completed_at"] = at
	}
	res := r.db.Model(&models.Transaction{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	return res.RowsAffected == 1, res.Error
}

// SumCompletedByCircle returns completed contribution and payout totals for
// a circle, for deriving the circle balance from the ledger alone.
func (r *TransactionRepository) SumCompletedByCircle(circleID uint) (contributions, payouts int64, err error) {
	type row struct {
		Type  string
		Total int64
	}
	var rows []row
	err = r.db.Model(&models.Transaction{}).
		Select("type, COALESCE(SUM(amount_cents), 0) AS total").
		Where("circle_id = ? AND status = ?", circleID, domain.TxStatusCompleted).
		Group("type").Scan(&rows).Error
	if err != nil {
		return 0, 0, err
	}
	for _, r := range rows {
		switch r.Type {
		case domain.TxTypeContribution:
			contributions = r.Total
		case domain.TxTypePayout:
			payouts = r.Total
		}
	}
	return contributions, payouts, nil
}

// CountCompletedPayouts returns how many payouts have settled for a circle.
// The rotation engine uses the count to find the earliest unpaid cycle.
func (r *TransactionRepository) CountCompletedPayouts(circleID uint) (int64, error) {
	var n int64
	err := r.db.Model(&models.Transaction{}).
		Where("circle_id = ? AND type = ? AND status = ?",
			circleID, domain.TxTypePayout, domain.TxStatusCompleted).
		Count(&n).Error
	return n, err
}

// ListByCircleWindow returns transactions of a type/status for a circle whose
// transaction date falls in [from, to).
func (r *TransactionRepository) ListByCircleWindow(circleID uint, txType, status string, from, to time.Time) ([]models.Transaction, error) {
	var txs []models.Transaction
	err := r.db.Where(
		"circle_id = ? AND type = ? AND status = ? AND transaction_date >= ? AND transaction_date < ?",
		circleID, txType, status, from, to,
	).Order("transaction_date ASC").Find(&txs).Error
	return txs, err
}

// LatestPayoutInWindow returns the most recent payout attempt for the cycle
// window, regardless of status, or nil when none exists.
func (r *TransactionRepository) LatestPayoutInWindow(circleID uint, from, to time.Time) (*models.Transaction, error) {
	var tx models.Transaction
	err := r.db.Where(
		"circle_id = ? AND type = ? AND transaction_date >= ? AND transaction_date < ?",
		circleID, domain.TxTypePayout, from, to,
	).Order("id DESC").First(&tx).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &tx, nil
}

func (r *TransactionRepository) ListByCircle(circleID uint, limit int) ([]models.Transaction, error) {
	var txs []models.Transaction
	err := r.db.Where("circle_id = ?", circleID).
		Order("transaction_date DESC").Limit(limit).Find(&txs).Error
	return txs, err
}

func (r *TransactionRepository) ListByUser(userID uint, limit int) ([]models.Transaction, error) {
	var txs []models.Transaction
	err := r.db.Where("user_id = ?", userID).
		Order("transaction_date DESC").Limit(limit).Find(&txs).Error
	return txs, err
}
