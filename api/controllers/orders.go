package controllers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/j1myx/kiwishaproject/api/middleware"
	"github.com/j1myx/kiwishaproject/api/responses"
	"github.com/j1myx/kiwishaproject/api/validators"
	ordersvc "github.com/j1myx/kiwishaproject/internal/orders"
	"github.com/j1myx/kiwishaproject/pkg/db/models"
	"github.com/j1myx/kiwishaproject/pkg/enums"
	pkgerrors "github.com/j1myx/kiwishaproject/pkg/errors"
	"github.com/j1myx/kiwishaproject/pkg/logger"
	"github.com/j1myx/kiwishaproject/pkg/pagination"
)

type orderLineResponse struct {
	ProductID   uuid.UUID       `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

type orderResponse struct {
	ID                uuid.UUID           `json:"id"`
	Code              string              `json:"code"`
	Status            enums.OrderStatus   `json:"status"`
	CustomerFirstName string              `json:"customer_first_name"`
	CustomerLastName  string              `json:"customer_last_name"`
	CustomerEmail     string              `json:"customer_email"`
	CustomerPhone     *string             `json:"customer_phone,omitempty"`
	AddressLine       string              `json:"address_line"`
	AddressCity       string              `json:"address_city"`
	AddressRegion     *string             `json:"address_region,omitempty"`
	AddressPostalCode *string             `json:"address_postal_code,omitempty"`
	AddressCountry    *string             `json:"address_country,omitempty"`
	AddressReference  *string             `json:"address_reference,omitempty"`
	ShippingMethod    string              `json:"shipping_method,omitempty"`
	Subtotal          decimal.Decimal     `json:"subtotal"`
	ShippingCost      decimal.Decimal     `json:"shipping_cost"`
	Total             decimal.Decimal     `json:"total"`
	Notes             *string             `json:"notes,omitempty"`
	Lines             []orderLineResponse `json:"lines"`
	CreatedAt         time.Time           `json:"created_at"`
}

type orderListResponse struct {
	Orders     []orderResponse `json:"orders"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

func newOrderResponse(order *models.Order) orderResponse {
	lines := make([]orderLineResponse, len(order.Lines))
	for i, line := range order.Lines {
		lines[i] = orderLineResponse{
			ProductID:   line.ProductID,
			ProductName: line.ProductName,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice,
			LineTotal:   line.LineTotal,
		}
	}
	out := orderResponse{
		ID:                order.ID,
		Code:              order.Code,
		Status:            order.Status,
		CustomerFirstName: order.CustomerFirstName,
		CustomerLastName:  order.CustomerLastName,
		CustomerEmail:     order.CustomerEmail,
		CustomerPhone:     order.CustomerPhone,
		AddressLine:       order.AddressLine,
		AddressCity:       order.AddressCity,
		AddressRegion:     order.AddressRegion,
		AddressPostalCode: order.AddressPostalCode,
		AddressCountry:    order.AddressCountry,
		AddressReference:  order.AddressReference,
		Subtotal:          order.Subtotal,
		ShippingCost:      order.ShippingCost,
		Total:             order.Total,
		Notes:             order.Notes,
		Lines:             lines,
		CreatedAt:         order.CreatedAt,
	}
	if order.ShippingMethod != nil {
		out.ShippingMethod = order.ShippingMethod.Name
	}
	return out
}

type createOrderRequest struct {
	CustomerFirstName string    `json:"customer_first_name" validate:"required,max=120"`
	CustomerLastName  string    `json:"customer_last_name" validate:"required,max=120"`
	CustomerEmail     string    `json:"customer_email" validate:"required,email"`
	CustomerPhone     *string   `json:"customer_phone"`
	CustomerDocument  *string   `json:"customer_document"`
	AddressLine       string    `json:"address_line" validate:"required,max=300"`
	AddressCity       string    `json:"address_city" validate:"required,max=120"`
	AddressRegion     *string   `json:"address_region"`
	AddressPostalCode *string   `json:"address_postal_code" validate:"omitempty,max=20"`
	AddressCountry    *string   `json:"address_country" validate:"omitempty,max=80"`
	AddressReference  *string   `json:"address_reference"`
	ShippingMethodID  uuid.UUID `json:"shipping_method_id" validate:"required"`
	Notes             *string   `json:"notes"`
}

// OrderCreate turns the session cart into a pending order.
func OrderCreate(svc ordersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload createOrderRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.Create(r.Context(), ordersvc.CreateInput{
			SessionToken: middleware.SessionFromContext(r.Context()),
			Customer: ordersvc.CustomerInput{
				FirstName: validators.SanitizeString(payload.CustomerFirstName, 120),
				LastName:  validators.SanitizeString(payload.CustomerLastName, 120),
				Email:     validators.SanitizeString(payload.CustomerEmail, 200),
				Phone:     payload.CustomerPhone,
				Document:  payload.CustomerDocument,
			},
			Address: ordersvc.AddressInput{
				Line:       validators.SanitizeString(payload.AddressLine, 300),
				City:       validators.SanitizeString(payload.AddressCity, 120),
				Region:     payload.AddressRegion,
				PostalCode: payload.AddressPostalCode,
				Country:    payload.AddressCountry,
				Reference:  payload.AddressReference,
			},
			ShippingMethodID: payload.ShippingMethodID,
			Notes:            payload.Notes,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newOrderResponse(order))
	}
}

// OrderDetail returns one order by id.
func OrderDetail(svc ordersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.Get(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderResponse(order))
	}
}

// OrderByCode returns one order by its public code.
func OrderByCode(svc ordersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := strings.TrimSpace(chi.URLParam(r, "code"))
		if code == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "order code is required"))
			return
		}
		order, err := svc.GetByCode(r.Context(), code)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderResponse(order))
	}
}

// OrderList returns a cursor page of orders, newest first.
func OrderList(svc ordersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params := pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		}

		filters, err := buildOrderFilters(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.List(r.Context(), params, filters)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out := orderListResponse{
			Orders:     make([]orderResponse, len(list.Orders)),
			NextCursor: list.NextCursor,
		}
		for i := range list.Orders {
			out.Orders[i] = newOrderResponse(&list.Orders[i])
		}
		responses.WriteSuccess(w, out)
	}
}

type cancelOrderRequest struct {
	Reason string `json:"reason" validate:"required,max=300"`
}

// OrderCancel cancels a cancellable order and restores its stock.
func OrderCancel(svc ordersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload cancelOrderRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.Cancel(r.Context(), orderID, validators.SanitizeString(payload.Reason, 300))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderResponse(order))
	}
}

// OrderShip marks a confirmed order as shipped.
func OrderShip(svc ordersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return transitionHandler(svc.Ship, logg)
}

// OrderDeliver marks a shipped order as delivered.
func OrderDeliver(svc ordersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return transitionHandler(svc.Deliver, logg)
}

func transitionHandler(apply func(ctx context.Context, id uuid.UUID) (*models.Order, error), logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := apply(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderResponse(order))
	}
}

func buildOrderFilters(r *http.Request) (ordersvc.Filters, error) {
	filters := ordersvc.Filters{}

	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status, err := enums.ParseOrderStatus(raw)
		if err != nil {
			return filters, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter")
		}
		filters.Status = &status
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("email")); raw != "" {
		filters.CustomerEmail = &raw
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("since")); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filters, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "since must be RFC3339")
		}
		filters.Since = &since
	}
	return filters, nil
}

func parseOrderID(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "orderId")
	orderID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order id")
	}
	return orderID, nil
}
