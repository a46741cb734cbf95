package repository

import (
	"context"
	"errors"

	"inventory/internal/domain/model"
	repo "inventory/internal/repository"

	"gorm.io/gorm"
)

type TransactionGormRepository struct {
	db *gorm.DB
}

func NewTransactionGormRepository(db *gorm.DB) *TransactionGormRepository {
	return &TransactionGormRepository{db: db}
}

func (r *TransactionGormRepository) Create(ctx context.Context, tx model.StockTransaction) (int64, error) {
	if err := r.db.WithContext(ctx).Create(&tx).Error; err != nil {
		return 0, err
	}
	return tx.ID, nil
}

func (r *TransactionGormRepository) FindByID(ctx context.Context, id int64, companyID int64) (model.StockTransaction, error) {
	var tx model.StockTransaction
	err := r.db.WithContext(ctx).
		Where("id = ? AND company_id = ?", id, companyID).
		First(&tx).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.StockTransaction{}, repo.ErrNotFound
	}
	if err != nil {
		return model.StockTransaction{}, err
	}
	return tx, nil
}

func (r *TransactionGormRepository) List(ctx context.Context, filter repo.TransactionFilter) ([]model.StockTransaction, error) {
	q := r.db.WithContext(ctx).
		Where("company_id = ?", filter.CompanyID)

	if filter.ItemID != nil {
		q = q.Where("item_id = ?", *filter.ItemID)
	}
	if filter.Type != nil {
		q = q.Where("type = ?", *filter.Type)
	}
	if filter.StartDate != nil {
		q = q.Where("date >= ?", *filter.StartDate)
	}
	if filter.EndDate != nil {
		q = q.Where("date <= ?", *filter.EndDate)
	}

	var txs []model.StockTransaction
	if err := q.Order("date DESC").Find(&txs).Error; err != nil {
		return nil, err
	}
	return txs, nil
}

// ソフトデリート（DeletedAtが入るだけで行は残る）
func (r *TransactionGormRepository) SoftDeleteByID(ctx context.Context, id int64) error {
	res := r.db.WithContext(ctx).Delete(&model.StockTransaction{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}
