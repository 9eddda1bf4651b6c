package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/j1myx/kiwishaproject/api/responses"
	paymentsvc "github.com/j1myx/kiwishaproject/internal/payments"
	"github.com/j1myx/kiwishaproject/pkg/enums"
	pkgerrors "github.com/j1myx/kiwishaproject/pkg/errors"
	"github.com/j1myx/kiwishaproject/pkg/logger"
)

type checkoutHandleResponse struct {
	OrderCode    string `json:"order_code"`
	PreferenceID string `json:"preference_id"`
	CheckoutURL  string `json:"checkout_url"`
}

// PaymentCheckout opens (or returns the already opened) gateway checkout for
// a pending order.
func PaymentCheckout(svc paymentsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		handle, err := svc.CreateIntent(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, checkoutHandleResponse{
			OrderCode:    handle.OrderCode,
			PreferenceID: handle.PreferenceID,
			CheckoutURL:  handle.CheckoutURL,
		})
	}
}

type paymentStatusResponse struct {
	OrderID uuid.UUID         `json:"order_id"`
	Status  enums.OrderStatus `json:"status"`
}

// PaymentStatus polls the gateway and returns the resulting order status.
func PaymentStatus(svc paymentsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status, err := svc.Reconcile(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, paymentStatusResponse{OrderID: orderID, Status: status})
	}
}

type checkoutReturnResponse struct {
	Outcome string            `json:"outcome"`
	OrderID uuid.UUID         `json:"order_id"`
	Status  enums.OrderStatus `json:"status"`
}

// CheckoutReturn handles the gateway redirect back to the storefront. The
// outcome segment is informational; the order status always comes from a
// fresh reconciliation, never from the redirect itself.
func CheckoutReturn(svc paymentsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		outcome := chi.URLParam(r, "outcome")

		raw := strings.TrimSpace(r.URL.Query().Get("orderId"))
		if raw == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "orderId query parameter required"))
			return
		}
		orderID, err := uuid.Parse(raw)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order id"))
			return
		}

		status, err := svc.Reconcile(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, checkoutReturnResponse{
			Outcome: outcome,
			OrderID: orderID,
			Status:  status,
		})
	}
}
