package controllers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/j1myx/kiwishaproject/api/responses"
	"github.com/j1myx/kiwishaproject/internal/catalog"
	pkgerrors "github.com/j1myx/kiwishaproject/pkg/errors"
	"github.com/j1myx/kiwishaproject/pkg/logger"
)

type shippingMethodResponse struct {
	ID          uuid.UUID       `json:"id"`
	Name        string          `json:"name"`
	Description *string         `json:"description,omitempty"`
	Cost        decimal.Decimal `json:"cost"`
}

// ShippingMethods lists the active delivery options, cheapest first.
func ShippingMethods(repo catalog.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		methods, err := repo.ListActiveShippingMethods(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list shipping methods"))
			return
		}

		out := make([]shippingMethodResponse, len(methods))
		for i, method := range methods {
			out[i] = shippingMethodResponse{
				ID:          method.ID,
				Name:        method.Name,
				Description: method.Description,
				Cost:        method.Cost,
			}
		}
		responses.WriteSuccess(w, out)
	}
}
