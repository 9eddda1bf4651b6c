package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/j1myx/kiwishaproject/internal/catalog"
	"github.com/j1myx/kiwishaproject/pkg/db/models"
	pkgerrors "github.com/j1myx/kiwishaproject/pkg/errors"
	"github.com/j1myx/kiwishaproject/pkg/logger"
)

// Line is a priced cart row ready for display or checkout.
type Line struct {
	ProductID   uuid.UUID
	ProductName string
	Quantity    int
	UnitPrice   decimal.Decimal
	LineTotal   decimal.Decimal
}

// Snapshot is the full cart with its computed subtotal.
type Snapshot struct {
	SessionToken string
	Lines        []Line
	Subtotal     decimal.Decimal
}

// AvailabilityIssue flags a cart line that can no longer be fulfilled.
type AvailabilityIssue struct {
	ProductID   uuid.UUID
	ProductName string
	Requested   int
	Available   int
	Reason      string
}

// Service defines the session cart operations.
type Service interface {
	AddItem(ctx context.Context, sessionToken string, productID uuid.UUID, quantity int) (*Snapshot, error)
	SetQuantity(ctx context.Context, sessionToken string, productID uuid.UUID, quantity int) (*Snapshot, error)
	RemoveItem(ctx context.Context, sessionToken string, productID uuid.UUID) (*Snapshot, error)
	Clear(ctx context.Context, sessionToken string) error
	GetSnapshot(ctx context.Context, sessionToken string) (*Snapshot, error)
	ValidateAvailability(ctx context.Context, sessionToken string) ([]AvailabilityIssue, error)
}

type service struct {
	repo    Repository
	catalog catalog.Repository
	logger  *logger.Logger
}

// NewService builds a cart service with the required dependencies.
func NewService(repo Repository, catalogRepo catalog.Repository, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if catalogRepo == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	return &service{repo: repo, catalog: catalogRepo, logger: logg}, nil
}

// AddItem merges quantity into an existing line for the same product instead
// of creating duplicates. The unit price snapshots the catalog price at first
// add and stays fixed afterwards.
func (s *service) AddItem(ctx context.Context, sessionToken string, productID uuid.UUID, quantity int) (*Snapshot, error) {
	if err := validateSession(sessionToken); err != nil {
		return nil, err
	}
	if quantity < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}

	existing, err := s.repo.FindItem(ctx, sessionToken, productID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading cart line")
	}

	if existing != nil {
		if err := s.repo.UpdateQuantity(ctx, existing.ID, existing.Quantity+quantity); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "updating cart line")
		}
		return s.GetSnapshot(ctx, sessionToken)
	}

	product, err := s.catalog.FindProductByID(ctx, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading product")
	}
	if !product.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product is not available for sale")
	}

	item := &models.CartItem{
		ID:           uuid.New(),
		SessionToken: sessionToken,
		ProductID:    productID,
		Quantity:     quantity,
		UnitPrice:    product.Price,
	}
	if err := s.repo.CreateItem(ctx, item); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "creating cart line")
	}

	if s.logger != nil {
		s.logger.Info(s.logger.WithSession(ctx, sessionToken), "cart line added")
	}
	return s.GetSnapshot(ctx, sessionToken)
}

// SetQuantity replaces the line quantity. Removing a line is an explicit
// operation; a quantity below one is rejected rather than treated as delete.
func (s *service) SetQuantity(ctx context.Context, sessionToken string, productID uuid.UUID, quantity int) (*Snapshot, error) {
	if err := validateSession(sessionToken); err != nil {
		return nil, err
	}
	if quantity < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}

	existing, err := s.repo.FindItem(ctx, sessionToken, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart line not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading cart line")
	}

	if err := s.repo.UpdateQuantity(ctx, existing.ID, quantity); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "updating cart line")
	}
	return s.GetSnapshot(ctx, sessionToken)
}

func (s *service) RemoveItem(ctx context.Context, sessionToken string, productID uuid.UUID) (*Snapshot, error) {
	if err := validateSession(sessionToken); err != nil {
		return nil, err
	}

	removed, err := s.repo.DeleteItem(ctx, sessionToken, productID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "removing cart line")
	}
	if removed == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart line not found")
	}
	return s.GetSnapshot(ctx, sessionToken)
}

func (s *service) Clear(ctx context.Context, sessionToken string) error {
	if err := validateSession(sessionToken); err != nil {
		return err
	}
	if err := s.repo.DeleteAll(ctx, sessionToken); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clearing cart")
	}
	return nil
}

func (s *service) GetSnapshot(ctx context.Context, sessionToken string) (*Snapshot, error) {
	if err := validateSession(sessionToken); err != nil {
		return nil, err
	}

	items, err := s.repo.FindItems(ctx, sessionToken)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading cart")
	}

	snapshot := &Snapshot{
		SessionToken: sessionToken,
		Lines:        make([]Line, 0, len(items)),
		Subtotal:     decimal.Zero,
	}
	for _, item := range items {
		name := ""
		if item.Product != nil {
			name = item.Product.Name
		}
		lineTotal := item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
		snapshot.Lines = append(snapshot.Lines, Line{
			ProductID:   item.ProductID,
			ProductName: name,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			LineTotal:   lineTotal,
		})
		snapshot.Subtotal = snapshot.Subtotal.Add(lineTotal)
	}
	return snapshot, nil
}

// ValidateAvailability reports each line whose product went inactive or whose
// requested quantity exceeds current stock. It never mutates the cart.
func (s *service) ValidateAvailability(ctx context.Context, sessionToken string) ([]AvailabilityIssue, error) {
	if err := validateSession(sessionToken); err != nil {
		return nil, err
	}

	items, err := s.repo.FindItems(ctx, sessionToken)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading cart")
	}

	var issues []AvailabilityIssue
	for _, item := range items {
		name := ""
		available := 0
		active := false
		if item.Product != nil {
			name = item.Product.Name
			active = item.Product.IsActive
			if item.Product.Stock != nil {
				available = item.Product.Stock.AvailableQty
			}
		}

		switch {
		case item.Product == nil || !active:
			issues = append(issues, AvailabilityIssue{
				ProductID:   item.ProductID,
				ProductName: name,
				Requested:   item.Quantity,
				Available:   available,
				Reason:      "product unavailable",
			})
		case available < item.Quantity:
			issues = append(issues, AvailabilityIssue{
				ProductID:   item.ProductID,
				ProductName: name,
				Requested:   item.Quantity,
				Available:   available,
				Reason:      "insufficient stock",
			})
		}
	}
	return issues, nil
}

func validateSession(sessionToken string) error {
	if strings.TrimSpace(sessionToken) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "cart session token required")
	}
	return nil
}
