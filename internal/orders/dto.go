package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/j1myx/kiwishaproject/pkg/db/models"
	"github.com/j1myx/kiwishaproject/pkg/enums"
)

// CustomerInput is the buyer snapshot captured at order creation.
type CustomerInput struct {
	FirstName string
	LastName  string
	Email     string
	Phone     *string
	Document  *string
}

// AddressInput is the delivery address captured at order creation.
type AddressInput struct {
	Line       string
	City       string
	Region     *string
	PostalCode *string
	Country    *string
	Reference  *string
}

// CreateInput carries everything needed to turn a cart into an order.
type CreateInput struct {
	SessionToken     string
	Customer         CustomerInput
	Address          AddressInput
	ShippingMethodID uuid.UUID
	Notes            *string
	CreatedBy        *string
}

// Filters narrows order listings.
type Filters struct {
	Status        *enums.OrderStatus
	CustomerEmail *string
	Since         *time.Time
}

// List is one page of orders plus the cursor for the next page.
type List struct {
	Orders     []models.Order
	NextCursor string
}

// StockShortage describes one line that could not be reserved.
type StockShortage struct {
	ProductID   uuid.UUID `json:"product_id"`
	ProductName string    `json:"product_name"`
	Requested   int       `json:"requested"`
	Available   int       `json:"available"`
}
