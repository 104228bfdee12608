package models

import (
	"time"

	"github.com/luxeledger/inventory-backend/pkg/enums"
)

// Block is one immutable ledger record. Rows are only ever inserted.
type Block struct {
	UID           uint64           `gorm:"column:uid;primaryKey;autoIncrement:false"`
	Position      int64            `gorm:"column:position;not null;uniqueIndex"`
	Brand         string           `gorm:"column:brand;not null;index"`
	ItemName      string           `gorm:"column:item_name;not null"`
	PriceCents    int64            `gorm:"column:price_cents;not null"`
	Status        enums.ItemStatus `gorm:"column:status;type:text;not null"`
	NextUID       *uint64          `gorm:"column:next_uid"`
	Supersedes    *uint64          `gorm:"column:supersedes;index"`
	CustomerEmail *string          `gorm:"column:customer_email"`
	ReservedUntil *time.Time       `gorm:"column:reserved_until"`
	PrevHash      string           `gorm:"column:prev_hash;not null;default:''"`
	Hash          string           `gorm:"column:hash;not null"`
	CreatedAt     time.Time        `gorm:"column:created_at;not null"`
}

func (Block) TableName() string {
	return "blocks"
}
