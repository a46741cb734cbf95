package model

import (
	"time"

	"gorm.io/gorm"
)

// 入庫か出庫か
type TransactionType string

const (
	//入庫（在庫が増える）
	TransactionTypeInbound TransactionType = "INBOUND"

	//出庫（在庫が減る）
	TransactionTypeOutbound TransactionType = "OUTBOUND"
)

// 在庫台帳のエントリ。追記とソフトデリートのみ。
// 削除（取り消し）は必ず対象Itemのamount復元とセットで行う。
type StockTransaction struct {
	ID        int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	ItemID    int64           `gorm:"not null;index" json:"item_id"`
	CompanyID int64           `gorm:"not null;index" json:"company_id"`
	Type      TransactionType `gorm:"type:varchar(20);not null" json:"type"`

	//動いた数量
	Amount int64 `gorm:"not null" json:"amount"`

	//数量 × 記録時点の単価
	Cost float64 `gorm:"not null" json:"cost"`

	Date time.Time `gorm:"not null;index" json:"date"`

	//サービスオーダー経由の場合のみ入る
	ClientID     *int64 `json:"client_id,omitempty"`
	TechnicianID *int64 `json:"technician_id,omitempty"`

	CreatedAt time.Time      `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}
