package inventory

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	pkgerrors "github.com/j1myx/kiwishaproject/pkg/errors"
)

// ReservationRequest asks for qty units of a product.
type ReservationRequest struct {
	ProductID uuid.UUID
	Quantity  int
}

// ReservationResult reports the outcome of one conditional decrement.
// Available is populated only when the reservation failed.
type ReservationResult struct {
	ProductID uuid.UUID
	Requested int
	Available int
	OK        bool
}

// Ledger performs conditional stock adjustments inside a caller-owned
// transaction. It tracks counts only; order state never feeds back into it.
type Ledger interface {
	Reserve(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) (ReservationResult, error)
	ReserveAll(ctx context.Context, tx *gorm.DB, requests []ReservationRequest) ([]ReservationResult, error)
	Release(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error
}

type ledger struct{}

// NewLedger exposes the default stock ledger implementation.
func NewLedger() Ledger {
	return ledger{}
}

// Reserve decrements available stock only when enough units remain. A failed
// condition is reported through the result, not an error, so callers can
// collect every shortage before aborting.
func (ledger) Reserve(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) (ReservationResult, error) {
	result := ReservationResult{ProductID: productID, Requested: qty}
	if qty <= 0 {
		return result, pkgerrors.New(pkgerrors.CodeValidation, "reservation quantity must be positive")
	}
	if tx == nil {
		return result, pkgerrors.New(pkgerrors.CodeDependency, "transaction required for stock reservation")
	}

	res := tx.WithContext(ctx).Exec(`
		UPDATE stock_items
		SET available_qty = available_qty - ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE product_id = ? AND available_qty >= ?
	`, qty, productID, qty)
	if res.Error != nil {
		return result, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "reserve stock")
	}

	if res.RowsAffected == 0 {
		available, err := currentAvailable(ctx, tx, productID)
		if err != nil {
			return result, err
		}
		result.Available = available
		return result, nil
	}

	result.OK = true
	return result, nil
}

// ReserveAll attempts every request and reports per-product outcomes. The
// caller rolls back the surrounding transaction when any reservation failed,
// which undoes the decrements that did succeed.
func (l ledger) ReserveAll(ctx context.Context, tx *gorm.DB, requests []ReservationRequest) ([]ReservationResult, error) {
	results := make([]ReservationResult, 0, len(requests))
	for _, req := range requests {
		result, err := l.Reserve(ctx, tx, req.ProductID, req.Quantity)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, nil
}

// Release returns units to the pool unconditionally.
func (ledger) Release(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error {
	if qty <= 0 {
		return nil
	}
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "transaction required for stock release")
	}

	res := tx.WithContext(ctx).Exec(`
		UPDATE stock_items
		SET available_qty = available_qty + ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE product_id = ?
	`, qty, productID)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "release stock")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "stock item not found for release")
	}
	return nil
}

func currentAvailable(ctx context.Context, tx *gorm.DB, productID uuid.UUID) (int, error) {
	var available int
	err := tx.WithContext(ctx).
		Raw(`SELECT available_qty FROM stock_items WHERE product_id = ?`, productID).
		Scan(&available).Error
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load stock item")
	}
	return available, nil
}
