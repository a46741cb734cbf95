package model

import (
	"time"

	"gorm.io/gorm"
)

// 在庫品目。amountはledgerトランザクション内でのみ更新する。
type Item struct {
	ItemID    int64  `gorm:"primaryKey;autoIncrement" json:"item_id"`
	CompanyID int64  `gorm:"not null;index" json:"company_id"`
	Name      string `gorm:"type:varchar(255);not null" json:"name"`

	//品目の説明（任意）
	Description string `gorm:"type:text" json:"description"`

	//現在の在庫数。コミット済みの状態で負になってはいけない。
	Amount int64 `gorm:"not null;default:0" json:"amount"`

	//単価
	Price float64 `gorm:"not null" json:"price"`

	CreatedAt time.Time      `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}
