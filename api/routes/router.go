package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/j1myx/kiwishaproject/api/controllers"
	"github.com/j1myx/kiwishaproject/api/middleware"
	"github.com/j1myx/kiwishaproject/internal/cart"
	"github.com/j1myx/kiwishaproject/internal/catalog"
	"github.com/j1myx/kiwishaproject/internal/orders"
	"github.com/j1myx/kiwishaproject/internal/payments"
	"github.com/j1myx/kiwishaproject/pkg/config"
	"github.com/j1myx/kiwishaproject/pkg/db"
	"github.com/j1myx/kiwishaproject/pkg/logger"
	"github.com/j1myx/kiwishaproject/pkg/redis"
)

// RouterParams bundle everything the HTTP surface needs.
type RouterParams struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       db.Pinger
	Redis    *redis.Client
	Registry *prometheus.Registry
	Catalog  catalog.Repository
	Cart     cart.Service
	Orders   orders.Service
	Payments payments.Service
}

// NewRouter wires middleware and controllers into the public HTTP handler.
func NewRouter(p RouterParams) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(p.Logger),
		middleware.RequestID(p.Logger),
		middleware.Logging(p.Logger),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(p.Config))
		r.Get("/ready", controllers.HealthReady(p.Config, p.Logger, p.DB, p.Redis))
	})

	if p.Registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(p.Registry, promhttp.HandlerOpts{}))
	}

	r.Route("/checkout/mercadopago", func(r chi.Router) {
		r.Get("/{outcome}", controllers.CheckoutReturn(p.Payments, p.Logger))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.CartSession())
		r.Use(middleware.Idempotency(p.Redis, p.Logger))

		r.Get("/shipping-methods", controllers.ShippingMethods(p.Catalog, p.Logger))

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", controllers.CartGet(p.Cart, p.Logger))
			r.Get("/validate", controllers.CartValidate(p.Cart, p.Logger))
			r.Post("/items", controllers.CartAddItem(p.Cart, p.Logger))
			r.Put("/items/{productId}", controllers.CartSetQuantity(p.Cart, p.Logger))
			r.Delete("/items/{productId}", controllers.CartRemoveItem(p.Cart, p.Logger))
			r.Delete("/", controllers.CartClear(p.Cart, p.Logger))
		})

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", controllers.OrderCreate(p.Orders, p.Logger))
			r.Get("/", controllers.OrderList(p.Orders, p.Logger))
			r.Get("/code/{code}", controllers.OrderByCode(p.Orders, p.Logger))
			r.Route("/{orderId}", func(r chi.Router) {
				r.Get("/", controllers.OrderDetail(p.Orders, p.Logger))
				r.Post("/cancel", controllers.OrderCancel(p.Orders, p.Logger))
				r.Post("/ship", controllers.OrderShip(p.Orders, p.Logger))
				r.Post("/deliver", controllers.OrderDeliver(p.Orders, p.Logger))
				r.Get("/payment", controllers.PaymentCheckout(p.Payments, p.Logger))
				r.Get("/status", controllers.PaymentStatus(p.Payments, p.Logger))
			})
		})
	})

	return r
}
