package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/j1myx/kiwishaproject/pkg/enums"
)

// Order is a placed purchase with a customer snapshot. Contact and address
// fields are copied at creation so later profile edits never rewrite history.
type Order struct {
	ID                uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Code              string            `gorm:"column:code;uniqueIndex:idx_orders_code;not null"`
	CustomerFirstName string            `gorm:"column:customer_first_name;not null"`
	CustomerLastName  string            `gorm:"column:customer_last_name;not null"`
	CustomerEmail     string            `gorm:"column:customer_email;not null"`
	CustomerPhone     *string           `gorm:"column:customer_phone"`
	CustomerDocument  *string           `gorm:"column:customer_document"`
	AddressLine       string            `gorm:"column:address_line;not null"`
	AddressCity       string            `gorm:"column:address_city;not null"`
	AddressRegion     *string           `gorm:"column:address_region"`
	AddressPostalCode *string           `gorm:"column:address_postal_code"`
	AddressCountry    *string           `gorm:"column:address_country"`
	AddressReference  *string           `gorm:"column:address_reference"`
	ShippingMethodID  uuid.UUID         `gorm:"column:shipping_method_id;type:uuid;not null"`
	ShippingMethod    *ShippingMethod   `gorm:"foreignKey:ShippingMethodID"`
	Subtotal          decimal.Decimal   `gorm:"column:subtotal;type:numeric(12,2);not null"`
	ShippingCost      decimal.Decimal   `gorm:"column:shipping_cost;type:numeric(12,2);not null"`
	Total             decimal.Decimal   `gorm:"column:total;type:numeric(12,2);not null"`
	Status            enums.OrderStatus `gorm:"column:status;not null;default:'pending'"`
	Notes             *string           `gorm:"column:notes"`
	CreatedBy         *string           `gorm:"column:created_by"`
	Lines             []OrderLine       `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt         time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}
