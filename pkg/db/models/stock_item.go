package models

import (
	"time"

	"github.com/google/uuid"
)

// StockItem tracks the sellable on-hand count per product. Reservation and
// release both act on available_qty directly; there is no separate hold bucket.
type StockItem struct {
	ProductID    uuid.UUID `gorm:"column:product_id;type:uuid;primaryKey"`
	AvailableQty int       `gorm:"column:available_qty;not null;default:0"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
