package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/j1myx/kiwishaproject/internal/orders"
	"github.com/j1myx/kiwishaproject/pkg/config"
	"github.com/j1myx/kiwishaproject/pkg/db"
	"github.com/j1myx/kiwishaproject/pkg/db/models"
	"github.com/j1myx/kiwishaproject/pkg/enums"
	pkgerrors "github.com/j1myx/kiwishaproject/pkg/errors"
	"github.com/j1myx/kiwishaproject/pkg/logger"
	"github.com/j1myx/kiwishaproject/pkg/mercadopago"
	"github.com/j1myx/kiwishaproject/pkg/metrics"
)

// Gateway is the slice of the MercadoPago client the payment flow needs.
type Gateway interface {
	CreatePreference(ctx context.Context, req mercadopago.PreferenceRequest) (*mercadopago.Preference, error)
	SearchPaymentsByReference(ctx context.Context, externalReference string) ([]mercadopago.Payment, error)
	UseSandbox() bool
}

// CheckoutHandle is what the storefront needs to redirect the buyer.
type CheckoutHandle struct {
	OrderCode    string
	PreferenceID string
	CheckoutURL  string
}

// Service drives payment intents and gateway reconciliation.
type Service interface {
	CreateIntent(ctx context.Context, orderID uuid.UUID) (*CheckoutHandle, error)
	Reconcile(ctx context.Context, orderID uuid.UUID) (enums.OrderStatus, error)
	ReconcilePending(ctx context.Context, limit int) (int, error)
}

type service struct {
	repo     Repository
	orders   orders.Service
	gateway  Gateway
	checkout config.CheckoutConfig
	metrics  *metrics.PaymentMetrics
	logger   *logger.Logger
}

// NewService builds a payments service with the required dependencies.
func NewService(repo Repository, orderSvc orders.Service, gateway Gateway, checkout config.CheckoutConfig, paymentMetrics *metrics.PaymentMetrics, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("payments repository required")
	}
	if orderSvc == nil {
		return nil, fmt.Errorf("orders service required")
	}
	if gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	return &service{
		repo:     repo,
		orders:   orderSvc,
		gateway:  gateway,
		checkout: checkout,
		metrics:  paymentMetrics,
		logger:   logg,
	}, nil
}

// CreateIntent opens a gateway checkout for a pending order. The intent is
// cached: asking again for the same order returns the stored preference
// instead of opening a second checkout.
func (s *service) CreateIntent(ctx context.Context, orderID uuid.UUID) (*CheckoutHandle, error) {
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != enums.OrderStatusPending {
		return nil, pkgerrors.New(
			pkgerrors.CodeStateConflict,
			fmt.Sprintf("payment can only be requested for pending orders, order is %s", order.Status),
		)
	}

	existing, err := s.repo.FindByOrderID(ctx, orderID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading payment intent")
	}
	if existing != nil {
		return s.handleFromIntent(order.Code, existing), nil
	}

	pref, err := s.gateway.CreatePreference(ctx, s.buildPreferenceRequest(order))
	if err != nil {
		s.metrics.IncGatewayError()
		return nil, err
	}

	intent := &models.PaymentIntent{
		ID:                 uuid.New(),
		OrderID:            order.ID,
		ExternalReference:  order.Code,
		PreferenceID:       pref.ID,
		CheckoutURL:        pref.InitPoint,
		SandboxCheckoutURL: pref.SandboxInitPoint,
		Amount:             order.Total,
		LastKnownStatus:    enums.PaymentStatusPending,
	}
	if err := s.repo.Create(ctx, intent); err != nil {
		// a concurrent request inserted the intent first; hand out its checkout
		if db.IsUniqueViolation(err, "idx_payment_intents_order") {
			winner, findErr := s.repo.FindByOrderID(ctx, orderID)
			if findErr != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, findErr, "loading payment intent")
			}
			return s.handleFromIntent(order.Code, winner), nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persisting payment intent")
	}

	s.metrics.IncIntentOpened()
	if s.logger != nil {
		s.logger.Info(s.logger.WithOrderID(ctx, order.Code), "payment intent created")
	}
	return s.handleFromIntent(order.Code, intent), nil
}

// buildPreferenceRequest turns order lines into gateway items. Lines with a
// non-positive price are skipped; if nothing remains, a single item covering
// the order total keeps checkout possible.
func (s *service) buildPreferenceRequest(order *models.Order) mercadopago.PreferenceRequest {
	items := make([]mercadopago.PreferenceItem, 0, len(order.Lines))
	for _, line := range order.Lines {
		if !line.UnitPrice.IsPositive() {
			continue
		}
		items = append(items, mercadopago.PreferenceItem{
			Title:     line.ProductName,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
		})
	}
	if order.ShippingCost.IsPositive() {
		items = append(items, mercadopago.PreferenceItem{
			Title:     "Envio",
			Quantity:  1,
			UnitPrice: order.ShippingCost,
		})
	}
	if len(items) == 0 {
		items = append(items, mercadopago.PreferenceItem{
			Title:     "Pedido " + order.Code,
			Quantity:  1,
			UnitPrice: order.Total,
		})
	}

	base := strings.TrimRight(s.checkout.BaseURL, "/")
	return mercadopago.PreferenceRequest{
		Items:             items,
		ExternalReference: order.Code,
		BackURLs: mercadopago.BackURLs{
			Success: base + "/checkout/mercadopago/success",
			Failure: base + "/checkout/mercadopago/failure",
			Pending: base + "/checkout/mercadopago/pending",
		},
		AutoReturn: true,
	}
}

func (s *service) handleFromIntent(orderCode string, intent *models.PaymentIntent) *CheckoutHandle {
	url := intent.CheckoutURL
	if s.gateway.UseSandbox() && intent.SandboxCheckoutURL != "" {
		url = intent.SandboxCheckoutURL
	}
	return &CheckoutHandle{
		OrderCode:    orderCode,
		PreferenceID: intent.PreferenceID,
		CheckoutURL:  url,
	}
}

// Reconcile asks the gateway for the latest payment attempt and drives the
// order state machine accordingly. It is safe to call any number of times:
// terminal orders short-circuit, Confirm is idempotent, and gateway failures
// degrade to "status unknown for now" instead of an error.
func (s *service) Reconcile(ctx context.Context, orderID uuid.UUID) (enums.OrderStatus, error) {
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return "", err
	}
	if order.Status.IsTerminal() {
		return order.Status, nil
	}

	intent, err := s.repo.FindByOrderID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return order.Status, nil
		}
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading payment intent")
	}

	attempts, err := s.gateway.SearchPaymentsByReference(ctx, intent.ExternalReference)
	if err != nil {
		s.metrics.IncGatewayError()
		if s.logger != nil {
			s.logger.Warn(s.logger.WithOrderID(ctx, order.Code), "payment gateway unreachable, keeping local state")
		}
		return order.Status, nil
	}

	now := time.Now()
	if len(attempts) == 0 {
		s.touchIntent(ctx, intent.ID, enums.PaymentStatusPending, now)
		return order.Status, nil
	}

	// attempts come back newest first
	status := enums.NormalizePaymentStatus(attempts[0].Status)
	s.touchIntent(ctx, intent.ID, status, now)

	switch status {
	case enums.PaymentStatusApproved:
		updated, err := s.orders.Confirm(ctx, orderID)
		if err != nil {
			return order.Status, err
		}
		s.metrics.IncReconciled(string(updated.Status))
		return updated.Status, nil
	case enums.PaymentStatusRejected, enums.PaymentStatusCancelled:
		updated, err := s.orders.Cancel(ctx, orderID, cancelReason(status))
		if err != nil {
			// a confirmed order cannot be auto-cancelled by a late rejection
			if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeStateConflict {
				if s.logger != nil {
					s.logger.Warn(s.logger.WithOrderID(ctx, order.Code), "ignoring gateway rejection for non-cancellable order")
				}
				return order.Status, nil
			}
			return order.Status, err
		}
		s.metrics.IncReconciled(string(updated.Status))
		return updated.Status, nil
	default:
		s.metrics.IncReconciled("unchanged")
		return order.Status, nil
	}
}

func cancelReason(status enums.PaymentStatus) string {
	if status == enums.PaymentStatusCancelled {
		return "pago cancelado"
	}
	return "pago rechazado"
}

func (s *service) touchIntent(ctx context.Context, intentID uuid.UUID, status enums.PaymentStatus, at time.Time) {
	err := s.repo.Update(ctx, intentID, map[string]any{
		"last_known_status": status,
		"last_checked_at":   at,
	})
	if err != nil && s.logger != nil {
		s.logger.Warn(ctx, "failed to record payment check")
	}
}

// ReconcilePending sweeps intents whose orders still await payment. Individual
// failures do not stop the sweep.
func (s *service) ReconcilePending(ctx context.Context, limit int) (int, error) {
	intents, err := s.repo.FindIntentsForPendingOrders(ctx, limit)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "listing intents to reconcile")
	}

	reconciled := 0
	var sweepErr error
	for _, intent := range intents {
		if _, err := s.Reconcile(ctx, intent.OrderID); err != nil {
			sweepErr = multierr.Append(sweepErr, fmt.Errorf("order %s: %w", intent.ExternalReference, err))
			continue
		}
		reconciled++
	}
	return reconciled, sweepErr
}
