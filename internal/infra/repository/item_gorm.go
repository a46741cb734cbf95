package repository

import (
	"context"
	"errors"

	"inventory/internal/domain/model"
	repo "inventory/internal/repository"

	"gorm.io/gorm"
)

type ItemGormRepository struct {
	db *gorm.DB
}

func NewItemGormRepository(db *gorm.DB) *ItemGormRepository {
	return &ItemGormRepository{db: db}
}

func (r *ItemGormRepository) FindByID(ctx context.Context, itemID int64, companyID int64) (model.Item, error) {
	var item model.Item
	err := r.db.WithContext(ctx).
		Where("item_id = ? AND company_id = ?", itemID, companyID).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Item{}, repo.ErrNotFound
	}
	if err != nil {
		return model.Item{}, err
	}
	return item, nil
}

func (r *ItemGormRepository) FindByName(ctx context.Context, name string, companyID int64) (model.Item, error) {
	var item model.Item
	err := r.db.WithContext(ctx).
		Where("name = ? AND company_id = ?", name, companyID).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Item{}, repo.ErrNotFound
	}
	if err != nil {
		return model.Item{}, err
	}
	return item, nil
}

func (r *ItemGormRepository) ListByCompanyID(ctx context.Context, companyID int64) ([]model.Item, error) {
	var items []model.Item
	err := r.db.WithContext(ctx).
		Where("company_id = ?", companyID).
		Order("item_id ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *ItemGormRepository) Create(ctx context.Context, item model.Item) (int64, error) {
	if err := r.db.WithContext(ctx).Create(&item).Error; err != nil {
		return 0, err
	}
	return item.ItemID, nil
}

// 在庫が足りるときだけ減らす
func (r *ItemGormRepository) DecreaseAmountIfEnough(ctx context.Context, itemID int64, companyID int64, qty int64) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&model.Item{}).
		Where("item_id = ? AND company_id = ? AND amount >= ?", itemID, companyID, qty).
		Update("amount", gorm.Expr("amount - ?", qty))

	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	return true, nil
}

// 在庫戻し（取り消し・入庫）
func (r *ItemGormRepository) IncreaseAmount(ctx context.Context, itemID int64, companyID int64, qty int64) error {
	res := r.db.WithContext(ctx).
		Model(&model.Item{}).
		Where("item_id = ? AND company_id = ?", itemID, companyID).
		Update("amount", gorm.Expr("amount + ?", qty))

	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}
