package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/j1myx/kiwishaproject/api/middleware"
	"github.com/j1myx/kiwishaproject/api/responses"
	"github.com/j1myx/kiwishaproject/api/validators"
	cartsvc "github.com/j1myx/kiwishaproject/internal/cart"
	pkgerrors "github.com/j1myx/kiwishaproject/pkg/errors"
	"github.com/j1myx/kiwishaproject/pkg/logger"
)

type cartLineResponse struct {
	ProductID   uuid.UUID       `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

type cartResponse struct {
	SessionToken string             `json:"session_token"`
	Lines        []cartLineResponse `json:"lines"`
	Subtotal     decimal.Decimal    `json:"subtotal"`
}

type availabilityIssueResponse struct {
	ProductID   uuid.UUID `json:"product_id"`
	ProductName string    `json:"product_name"`
	Requested   int       `json:"requested"`
	Available   int       `json:"available"`
	Reason      string    `json:"reason"`
}

func newCartResponse(snapshot *cartsvc.Snapshot) cartResponse {
	lines := make([]cartLineResponse, len(snapshot.Lines))
	for i, line := range snapshot.Lines {
		lines[i] = cartLineResponse{
			ProductID:   line.ProductID,
			ProductName: line.ProductName,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice,
			LineTotal:   line.LineTotal,
		}
	}
	return cartResponse{
		SessionToken: snapshot.SessionToken,
		Lines:        lines,
		Subtotal:     snapshot.Subtotal,
	}
}

// CartGet returns the session cart with computed totals.
func CartGet(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session := middleware.SessionFromContext(r.Context())
		snapshot, err := svc.GetSnapshot(r.Context(), session)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCartResponse(snapshot))
	}
}

type addCartItemRequest struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Quantity  int       `json:"quantity" validate:"required,min=1"`
}

// CartAddItem adds a product to the cart, merging quantities on repeat adds.
func CartAddItem(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload addCartItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		session := middleware.SessionFromContext(r.Context())
		snapshot, err := svc.AddItem(r.Context(), session, payload.ProductID, payload.Quantity)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newCartResponse(snapshot))
	}
}

type setCartQuantityRequest struct {
	Quantity int `json:"quantity" validate:"required,min=1"`
}

// CartSetQuantity replaces the quantity of an existing cart line.
func CartSetQuantity(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := parseProductID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload setCartQuantityRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		session := middleware.SessionFromContext(r.Context())
		snapshot, err := svc.SetQuantity(r.Context(), session, productID, payload.Quantity)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCartResponse(snapshot))
	}
}

// CartRemoveItem drops one product line from the cart.
func CartRemoveItem(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := parseProductID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		session := middleware.SessionFromContext(r.Context())
		snapshot, err := svc.RemoveItem(r.Context(), session, productID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCartResponse(snapshot))
	}
}

// CartClear empties the session cart.
func CartClear(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session := middleware.SessionFromContext(r.Context())
		if err := svc.Clear(r.Context(), session); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "cleared"})
	}
}

// CartValidate reports cart lines that can no longer be fulfilled.
func CartValidate(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session := middleware.SessionFromContext(r.Context())
		issues, err := svc.ValidateAvailability(r.Context(), session)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out := make([]availabilityIssueResponse, len(issues))
		for i, issue := range issues {
			out[i] = availabilityIssueResponse{
				ProductID:   issue.ProductID,
				ProductName: issue.ProductName,
				Requested:   issue.Requested,
				Available:   issue.Available,
				Reason:      issue.Reason,
			}
		}
		responses.WriteSuccess(w, map[string]any{
			"valid":  len(out) == 0,
			"issues": out,
		})
	}
}

func parseProductID(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "productId")
	productID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid product id")
	}
	return productID, nil
}
