package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/j1myx/kiwishaproject/pkg/enums"
)

// PaymentIntent caches the gateway checkout created for an order. One intent
// per order; re-requesting payment returns the stored preference.
type PaymentIntent struct {
	ID                 uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID            uuid.UUID           `gorm:"column:order_id;type:uuid;uniqueIndex:idx_payment_intents_order;not null"`
	ExternalReference  string              `gorm:"column:external_reference;not null"`
	PreferenceID       string              `gorm:"column:preference_id;not null"`
	CheckoutURL        string              `gorm:"column:checkout_url;not null"`
	SandboxCheckoutURL string              `gorm:"column:sandbox_checkout_url"`
	Amount             decimal.Decimal     `gorm:"column:amount;type:numeric(12,2);not null"`
	LastKnownStatus    enums.PaymentStatus `gorm:"column:last_known_status;not null;default:'pending'"`
	LastCheckedAt      *time.Time          `gorm:"column:last_checked_at"`
	CreatedAt          time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
