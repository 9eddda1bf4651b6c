package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/j1myx/kiwishaproject/internal/cart"
	"github.com/j1myx/kiwishaproject/internal/catalog"
	"github.com/j1myx/kiwishaproject/internal/inventory"
	"github.com/j1myx/kiwishaproject/pkg/db"
	"github.com/j1myx/kiwishaproject/pkg/db/models"
	"github.com/j1myx/kiwishaproject/pkg/enums"
	pkgerrors "github.com/j1myx/kiwishaproject/pkg/errors"
	"github.com/j1myx/kiwishaproject/pkg/logger"
	"github.com/j1myx/kiwishaproject/pkg/pagination"
)

const codeRetryAttempts = 3

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service defines order lifecycle operations.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.Order, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Order, error)
	GetByCode(ctx context.Context, code string) (*models.Order, error)
	List(ctx context.Context, params pagination.Params, filters Filters) (*List, error)
	Confirm(ctx context.Context, id uuid.UUID) (*models.Order, error)
	Ship(ctx context.Context, id uuid.UUID) (*models.Order, error)
	Deliver(ctx context.Context, id uuid.UUID) (*models.Order, error)
	Cancel(ctx context.Context, id uuid.UUID, reason string) (*models.Order, error)
	CancelStalePending(ctx context.Context, pendingTTL time.Duration, reason string) (int, error)
}

type service struct {
	repo     Repository
	cartRepo cart.Repository
	catalog  catalog.Repository
	ledger   inventory.Ledger
	tx       txRunner
	logger   *logger.Logger
}

// NewService builds an order service with the required dependencies.
func NewService(repo Repository, cartRepo cart.Repository, catalogRepo catalog.Repository, ledger inventory.Ledger, tx txRunner, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if cartRepo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if catalogRepo == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("stock ledger required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{
		repo:     repo,
		cartRepo: cartRepo,
		catalog:  catalogRepo,
		ledger:   ledger,
		tx:       tx,
		logger:   logg,
	}, nil
}

// Create turns the session cart into a pending order inside one transaction:
// stock is reserved per line, totals are frozen, the cart is cleared. Any
// failure rolls the whole thing back, including the reservations.
func (s *service) Create(ctx context.Context, input CreateInput) (*models.Order, error) {
	if err := validateCreateInput(input); err != nil {
		return nil, err
	}

	var orderID uuid.UUID
	backoff := retry.WithMaxRetries(codeRetryAttempts, retry.NewConstant(time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		txErr := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			id, err := s.createInTx(ctx, tx, input)
			if err != nil {
				return err
			}
			orderID = id
			return nil
		})
		// another order grabbed the same code; roll forward with a fresh one
		if db.IsUniqueViolation(txErr, "idx_orders_code") {
			return retry.RetryableError(txErr)
		}
		return txErr
	})
	if err != nil {
		return nil, err
	}

	order, loadErr := s.Get(ctx, orderID)
	if loadErr != nil {
		return nil, loadErr
	}
	if s.logger != nil {
		s.logger.Info(s.logger.WithOrderID(ctx, order.Code), "order created")
	}
	return order, nil
}

func (s *service) createInTx(ctx context.Context, tx *gorm.DB, input CreateInput) (uuid.UUID, error) {
	items, err := s.cartRepo.WithTx(tx).FindItems(ctx, input.SessionToken)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading cart")
	}
	if len(items) == 0 {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}

	method, err := s.catalog.WithTx(tx).FindShippingMethodByID(ctx, input.ShippingMethodID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return uuid.Nil, pkgerrors.New(pkgerrors.CodeNotFound, "shipping method not found")
		}
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading shipping method")
	}
	if !method.IsActive {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "shipping method is not available")
	}

	requests := make([]inventory.ReservationRequest, 0, len(items))
	for _, item := range items {
		requests = append(requests, inventory.ReservationRequest{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
		})
	}
	results, err := s.ledger.ReserveAll(ctx, tx, requests)
	if err != nil {
		return uuid.Nil, err
	}

	var shortages []StockShortage
	for i, result := range results {
		if result.OK {
			continue
		}
		name := ""
		if items[i].Product != nil {
			name = items[i].Product.Name
		}
		shortages = append(shortages, StockShortage{
			ProductID:   result.ProductID,
			ProductName: name,
			Requested:   result.Requested,
			Available:   result.Available,
		})
	}
	if len(shortages) > 0 {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeConflict, "insufficient stock").WithDetails(shortages)
	}

	code, err := GenerateCode()
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generating order code")
	}

	subtotal := decimal.Zero
	lines := make([]models.OrderLine, 0, len(items))
	orderID := uuid.New()
	for _, item := range items {
		name := ""
		if item.Product != nil {
			name = item.Product.Name
		}
		lineTotal := item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
		subtotal = subtotal.Add(lineTotal)
		lines = append(lines, models.OrderLine{
			ID:          uuid.New(),
			OrderID:     orderID,
			ProductID:   item.ProductID,
			ProductName: name,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			LineTotal:   lineTotal,
		})
	}

	order := &models.Order{
		ID:                orderID,
		Code:              code,
		CustomerFirstName: strings.TrimSpace(input.Customer.FirstName),
		CustomerLastName:  strings.TrimSpace(input.Customer.LastName),
		CustomerEmail:     strings.TrimSpace(input.Customer.Email),
		CustomerPhone:     input.Customer.Phone,
		CustomerDocument:  input.Customer.Document,
		AddressLine:       strings.TrimSpace(input.Address.Line),
		AddressCity:       strings.TrimSpace(input.Address.City),
		AddressRegion:     input.Address.Region,
		AddressPostalCode: input.Address.PostalCode,
		AddressCountry:    input.Address.Country,
		AddressReference:  input.Address.Reference,
		ShippingMethodID:  method.ID,
		Subtotal:          subtotal,
		ShippingCost:      method.Cost,
		Total:             subtotal.Add(method.Cost),
		Status:            enums.OrderStatusPending,
		Notes:             input.Notes,
		CreatedBy:         input.CreatedBy,
		Lines:             lines,
	}
	if err := s.repo.WithTx(tx).Create(ctx, order); err != nil {
		return uuid.Nil, err
	}

	if err := s.cartRepo.WithTx(tx).DeleteAll(ctx, input.SessionToken); err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clearing cart")
	}
	return orderID, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading order")
	}
	return order, nil
}

func (s *service) GetByCode(ctx context.Context, code string) (*models.Order, error) {
	if strings.TrimSpace(code) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order code required")
	}
	order, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading order")
	}
	return order, nil
}

func (s *service) List(ctx context.Context, params pagination.Params, filters Filters) (*List, error) {
	list, err := s.repo.List(ctx, params, filters)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "listing orders")
	}
	return list, nil
}

// Confirm is idempotent: confirming an already confirmed order is a no-op so
// repeated payment polls cannot fail on a transition they already made.
func (s *service) Confirm(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	order, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.Status == enums.OrderStatusConfirmed {
		return order, nil
	}
	return s.transition(ctx, order, enums.OrderStatusConfirmed)
}

func (s *service) Ship(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	order, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, order, enums.OrderStatusShipped)
}

func (s *service) Deliver(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	order, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, order, enums.OrderStatusDelivered)
}

// transition flips the status with a predicate on the status the caller saw,
// so two actors racing on the same order cannot both apply their move.
func (s *service) transition(ctx context.Context, order *models.Order, to enums.OrderStatus) (*models.Order, error) {
	if !CanTransition(order.Status, to) {
		return nil, pkgerrors.New(
			pkgerrors.CodeStateConflict,
			fmt.Sprintf("cannot move order from %s to %s", order.Status, to),
		)
	}
	rows, err := s.repo.UpdateStatusFrom(ctx, order.ID, order.Status, to)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "updating order status")
	}
	if rows == 0 {
		// lost the race; report what the order actually became
		current, err := s.Get(ctx, order.ID)
		if err != nil {
			return nil, err
		}
		if current.Status == to {
			return current, nil
		}
		return nil, pkgerrors.New(
			pkgerrors.CodeStateConflict,
			fmt.Sprintf("cannot move order from %s to %s", current.Status, to),
		)
	}
	order.Status = to
	if s.logger != nil {
		ctx = s.logger.WithFields(ctx, map[string]any{"order_code": order.Code, "status": to})
		s.logger.Info(ctx, "order status changed")
	}
	return order, nil
}

// Cancel restores each line's reserved quantity and appends the reason to the
// order notes, all inside one transaction. The status flip carries a predicate
// on the cancellable states; whichever concurrent canceller loses the race
// sees zero rows changed and never touches stock, so each cancellation
// releases the reserved units exactly once. Cancelling a terminal or shipped
// order fails loudly.
func (s *service) Cancel(ctx context.Context, id uuid.UUID, reason string) (*models.Order, error) {
	order, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !IsCancellable(order.Status) {
		return nil, pkgerrors.New(
			pkgerrors.CodeStateConflict,
			fmt.Sprintf("cannot cancel order in state %s", order.Status),
		)
	}

	notes := appendNote(order.Notes, "Cancelado: "+strings.TrimSpace(reason))
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := s.repo.WithTx(tx).MarkCancelled(ctx, order.ID, CancellableStatuses(), notes)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancelling order")
		}
		if rows == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order is no longer cancellable")
		}

		var releaseErr error
		for _, line := range order.Lines {
			if err := s.ledger.Release(ctx, tx, line.ProductID, line.Quantity); err != nil {
				releaseErr = multierr.Append(releaseErr, err)
			}
		}
		if releaseErr != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, releaseErr, "releasing stock")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.logger != nil {
		s.logger.Info(s.logger.WithOrderID(ctx, order.Code), "order cancelled")
	}
	return s.Get(ctx, order.ID)
}

// CancelStalePending cancels every order left pending longer than pendingTTL.
// Failures on individual orders do not stop the sweep.
func (s *service) CancelStalePending(ctx context.Context, pendingTTL time.Duration, reason string) (int, error) {
	cutoff := time.Now().Add(-pendingTTL)
	stale, err := s.repo.FindPendingBefore(ctx, cutoff)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "finding stale orders")
	}

	cancelled := 0
	var sweepErr error
	for _, order := range stale {
		if _, err := s.Cancel(ctx, order.ID, reason); err != nil {
			sweepErr = multierr.Append(sweepErr, fmt.Errorf("order %s: %w", order.Code, err))
			continue
		}
		cancelled++
	}
	return cancelled, sweepErr
}

func validateCreateInput(input CreateInput) error {
	var problems []string
	if strings.TrimSpace(input.SessionToken) == "" {
		problems = append(problems, "cart session token required")
	}
	if strings.TrimSpace(input.Customer.FirstName) == "" {
		problems = append(problems, "customer first name required")
	}
	if strings.TrimSpace(input.Customer.LastName) == "" {
		problems = append(problems, "customer last name required")
	}
	if strings.TrimSpace(input.Customer.Email) == "" {
		problems = append(problems, "customer email required")
	}
	if strings.TrimSpace(input.Address.Line) == "" {
		problems = append(problems, "address line required")
	}
	if strings.TrimSpace(input.Address.City) == "" {
		problems = append(problems, "address city required")
	}
	if input.ShippingMethodID == uuid.Nil {
		problems = append(problems, "shipping method required")
	}
	if len(problems) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid order input").WithDetails(problems)
	}
	return nil
}

func appendNote(existing *string, note string) string {
	if existing == nil || strings.TrimSpace(*existing) == "" {
		return note
	}
	return *existing + "\n" + note
}
