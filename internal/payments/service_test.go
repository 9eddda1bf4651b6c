package payments

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/j1myx/kiwishaproject/internal/cart"
	"github.com/j1myx/kiwishaproject/internal/catalog"
	"github.com/j1myx/kiwishaproject/internal/inventory"
	"github.com/j1myx/kiwishaproject/internal/orders"
	"github.com/j1myx/kiwishaproject/pkg/config"
	"github.com/j1myx/kiwishaproject/pkg/db"
	"github.com/j1myx/kiwishaproject/pkg/db/models"
	"github.com/j1myx/kiwishaproject/pkg/enums"
	pkgerrors "github.com/j1myx/kiwishaproject/pkg/errors"
	"github.com/j1myx/kiwishaproject/pkg/mercadopago"
)

func setupPaymentsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:payments_%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	statements := []string{
		`CREATE TABLE IF NOT EXISTS products (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  slug TEXT NOT NULL,
  description TEXT,
  price NUMERIC NOT NULL,
  image_url TEXT,
  is_active INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS stock_items (
  product_id TEXT PRIMARY KEY,
  available_qty INTEGER NOT NULL DEFAULT 0,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS cart_items (
  id TEXT PRIMARY KEY,
  session_token TEXT NOT NULL,
  product_id TEXT NOT NULL,
  quantity INTEGER NOT NULL,
  unit_price NUMERIC NOT NULL,
  created_at DATETIME,
  updated_at DATETIME,
  UNIQUE (session_token, product_id)
);`,
		`CREATE TABLE IF NOT EXISTS shipping_methods (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  description TEXT,
  cost NUMERIC NOT NULL,
  is_active INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS orders (
  id TEXT PRIMARY KEY,
  code TEXT NOT NULL UNIQUE,
  customer_first_name TEXT NOT NULL,
  customer_last_name TEXT NOT NULL,
  customer_email TEXT NOT NULL,
  customer_phone TEXT,
  customer_document TEXT,
  address_line TEXT NOT NULL,
  address_city TEXT NOT NULL,
  address_region TEXT,
  address_postal_code TEXT,
  address_country TEXT,
  address_reference TEXT,
  shipping_method_id TEXT NOT NULL,
  subtotal NUMERIC NOT NULL,
  shipping_cost NUMERIC NOT NULL,
  total NUMERIC NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  notes TEXT,
  created_by TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS order_lines (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  product_id TEXT NOT NULL,
  product_name TEXT NOT NULL,
  quantity INTEGER NOT NULL,
  unit_price NUMERIC NOT NULL,
  line_total NUMERIC NOT NULL,
  created_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS payment_intents (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL UNIQUE,
  external_reference TEXT NOT NULL,
  preference_id TEXT NOT NULL,
  checkout_url TEXT NOT NULL,
  sandbox_checkout_url TEXT,
  amount NUMERIC NOT NULL,
  last_known_status TEXT NOT NULL DEFAULT 'pending',
  last_checked_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
	}
	for _, stmt := range statements {
		require.NoError(t, conn.Exec(stmt).Error)
	}
	return conn
}

type stubGateway struct {
	preference  *mercadopago.Preference
	prefErr     error
	payments    []mercadopago.Payment
	searchErr   error
	sandbox     bool
	createCalls int
	searchCalls int
	lastRequest mercadopago.PreferenceRequest
}

func (g *stubGateway) CreatePreference(ctx context.Context, req mercadopago.PreferenceRequest) (*mercadopago.Preference, error) {
	g.createCalls++
	g.lastRequest = req
	if g.prefErr != nil {
		return nil, g.prefErr
	}
	if g.preference != nil {
		return g.preference, nil
	}
	return &mercadopago.Preference{
		ID:                "pref-" + uuid.NewString()[:8],
		InitPoint:         "https://pay.example/init",
		SandboxInitPoint:  "https://pay.example/sandbox",
		ExternalReference: req.ExternalReference,
	}, nil
}

func (g *stubGateway) SearchPaymentsByReference(ctx context.Context, ref string) ([]mercadopago.Payment, error) {
	g.searchCalls++
	if g.searchErr != nil {
		return nil, g.searchErr
	}
	return g.payments, nil
}

func (g *stubGateway) UseSandbox() bool { return g.sandbox }

type paymentsFixture struct {
	conn    *gorm.DB
	orders  orders.Service
	service Service
	gateway *stubGateway
}

func newPaymentsFixture(t *testing.T) *paymentsFixture {
	t.Helper()
	conn := setupPaymentsTestDB(t)
	client := db.NewWithConn(conn)

	orderSvc, err := orders.NewService(
		orders.NewRepository(conn),
		cart.NewRepository(conn),
		catalog.NewRepository(conn),
		inventory.NewLedger(),
		client,
		nil,
	)
	require.NoError(t, err)

	gateway := &stubGateway{}
	svc, err := NewService(
		NewRepository(conn),
		orderSvc,
		gateway,
		config.CheckoutConfig{BaseURL: "https://shop.example.test/"},
		nil,
		nil,
	)
	require.NoError(t, err)

	return &paymentsFixture{conn: conn, orders: orderSvc, service: svc, gateway: gateway}
}

func (f *paymentsFixture) createOrder(t *testing.T, price string, qty, stock int) *models.Order {
	t.Helper()
	productID := uuid.New()
	require.NoError(t, f.conn.Create(&models.Product{
		ID:       productID,
		Name:     "Producto " + productID.String()[:8],
		Slug:     "producto-" + productID.String()[:8],
		Price:    decimal.RequireFromString(price),
		IsActive: true,
	}).Error)
	require.NoError(t, f.conn.Create(&models.StockItem{ProductID: productID, AvailableQty: stock}).Error)

	methodID := uuid.New()
	require.NoError(t, f.conn.Create(&models.ShippingMethod{
		ID:       methodID,
		Name:     "Delivery",
		Cost:     decimal.RequireFromString("8.00"),
		IsActive: true,
	}).Error)

	session := "session-" + uuid.NewString()[:8]
	require.NoError(t, f.conn.Create(&models.CartItem{
		ID:           uuid.New(),
		SessionToken: session,
		ProductID:    productID,
		Quantity:     qty,
		UnitPrice:    decimal.RequireFromString(price),
	}).Error)

	order, err := f.orders.Create(context.Background(), orders.CreateInput{
		SessionToken:     session,
		Customer:         orders.CustomerInput{FirstName: "Jose", LastName: "Mamani", Email: "jose@example.test"},
		Address:          orders.AddressInput{Line: "Jr. Union 456", City: "Cusco"},
		ShippingMethodID: methodID,
	})
	require.NoError(t, err)
	return order
}

func (f *paymentsFixture) stockOf(t *testing.T, order *models.Order) int {
	t.Helper()
	var item models.StockItem
	require.NoError(t, f.conn.Where("product_id = ?", order.Lines[0].ProductID).First(&item).Error)
	return item.AvailableQty
}

func TestCreateIntentOpensAndCachesCheckout(t *testing.T) {
	f := newPaymentsFixture(t)
	order := f.createOrder(t, "20.00", 2, 10)

	handle, err := f.service.CreateIntent(context.Background(), order.ID)
	require.NoError(t, err)
	require.Equal(t, order.Code, handle.OrderCode)
	require.Equal(t, "https://pay.example/init", handle.CheckoutURL)
	require.Equal(t, 1, f.gateway.createCalls)

	// second request must reuse the stored preference
	again, err := f.service.CreateIntent(context.Background(), order.ID)
	require.NoError(t, err)
	require.Equal(t, handle.PreferenceID, again.PreferenceID)
	require.Equal(t, 1, f.gateway.createCalls)
}

func TestCreateIntentUsesSandboxURL(t *testing.T) {
	f := newPaymentsFixture(t)
	f.gateway.sandbox = true
	order := f.createOrder(t, "20.00", 1, 10)

	handle, err := f.service.CreateIntent(context.Background(), order.ID)
	require.NoError(t, err)
	require.Equal(t, "https://pay.example/sandbox", handle.CheckoutURL)
}

func TestCreateIntentBuildsGatewayRequest(t *testing.T) {
	f := newPaymentsFixture(t)
	order := f.createOrder(t, "20.00", 2, 10)

	_, err := f.service.CreateIntent(context.Background(), order.ID)
	require.NoError(t, err)

	req := f.gateway.lastRequest
	require.Equal(t, order.Code, req.ExternalReference)
	require.Len(t, req.Items, 2) // product line + shipping
	require.Equal(t, "Envio", req.Items[1].Title)
	require.Equal(t, "https://shop.example.test/checkout/mercadopago/success", req.BackURLs.Success)
	require.Equal(t, "https://shop.example.test/checkout/mercadopago/failure", req.BackURLs.Failure)
	require.Equal(t, "https://shop.example.test/checkout/mercadopago/pending", req.BackURLs.Pending)
	require.True(t, req.AutoReturn)
}

func TestCreateIntentFallsBackToTotalForZeroPricedLines(t *testing.T) {
	f := newPaymentsFixture(t)
	order := f.createOrder(t, "0.00", 1, 10)

	// zero the shipping so no item survives the price filter
	require.NoError(t, f.conn.Exec(
		`UPDATE orders SET shipping_cost = 0, total = 0 WHERE id = ?`, order.ID).Error)

	_, err := f.service.CreateIntent(context.Background(), order.ID)
	require.NoError(t, err)

	req := f.gateway.lastRequest
	require.Len(t, req.Items, 1)
	require.Equal(t, "Pedido "+order.Code, req.Items[0].Title)
}

func TestCreateIntentRejectsNonPendingOrder(t *testing.T) {
	f := newPaymentsFixture(t)
	order := f.createOrder(t, "20.00", 1, 10)
	_, err := f.orders.Confirm(context.Background(), order.ID)
	require.NoError(t, err)

	_, err = f.service.CreateIntent(context.Background(), order.ID)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeStateConflict, typed.Code())
}

func TestReconcileApprovedConfirmsOnce(t *testing.T) {
	f := newPaymentsFixture(t)
	order := f.createOrder(t, "20.00", 1, 10)
	_, err := f.service.CreateIntent(context.Background(), order.ID)
	require.NoError(t, err)

	f.gateway.payments = []mercadopago.Payment{{ID: 1, Status: "approved"}}

	status, err := f.service.Reconcile(context.Background(), order.ID)
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusConfirmed, status)

	// repeated polling must stay confirmed with no side effects
	f.gateway.payments = []mercadopago.Payment{{ID: 1, Status: "pending"}}
	for i := 0; i < 50; i++ {
		status, err = f.service.Reconcile(context.Background(), order.ID)
		require.NoError(t, err)
		require.Equal(t, enums.OrderStatusConfirmed, status)
	}
}

// racingIntentRepo inserts a competing intent right before the delegated
// insert, so the caller always loses the unique order_id race.
type racingIntentRepo struct {
	Repository
	winner *models.PaymentIntent
}

func (r *racingIntentRepo) Create(ctx context.Context, intent *models.PaymentIntent) error {
	if r.winner != nil {
		if err := r.Repository.Create(ctx, r.winner); err != nil {
			return err
		}
		r.winner = nil
	}
	return r.Repository.Create(ctx, intent)
}

func TestCreateIntentLosingInsertRaceReturnsWinner(t *testing.T) {
	f := newPaymentsFixture(t)
	order := f.createOrder(t, "20.00", 1, 10)

	winner := &models.PaymentIntent{
		ID:                uuid.New(),
		OrderID:           order.ID,
		ExternalReference: order.Code,
		PreferenceID:      "pref-winner",
		CheckoutURL:       "https://pay.example/winner",
		Amount:            order.Total,
		LastKnownStatus:   enums.PaymentStatusPending,
	}
	svc, err := NewService(
		&racingIntentRepo{Repository: NewRepository(f.conn), winner: winner},
		f.orders,
		f.gateway,
		config.CheckoutConfig{BaseURL: "https://shop.example.test/"},
		nil,
		nil,
	)
	require.NoError(t, err)

	handle, err := svc.CreateIntent(context.Background(), order.ID)
	require.NoError(t, err)
	require.Equal(t, "pref-winner", handle.PreferenceID)
	require.Equal(t, "https://pay.example/winner", handle.CheckoutURL)

	var count int64
	require.NoError(t, f.conn.Model(&models.PaymentIntent{}).
		Where("order_id = ?", order.ID).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestReconcileRejectedCancelsAndRestoresStock(t *testing.T) {
	f := newPaymentsFixture(t)
	order := f.createOrder(t, "20.00", 2, 10)
	_, err := f.service.CreateIntent(context.Background(), order.ID)
	require.NoError(t, err)
	require.Equal(t, 8, f.stockOf(t, order))

	f.gateway.payments = []mercadopago.Payment{{ID: 1, Status: "rejected"}}

	status, err := f.service.Reconcile(context.Background(), order.ID)
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusCancelled, status)
	require.Equal(t, 10, f.stockOf(t, order))

	reloaded, err := f.orders.Get(context.Background(), order.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded.Notes)
	require.Contains(t, *reloaded.Notes, "Cancelado: pago rechazado")

	// terminal short-circuit: no further gateway calls
	callsBefore := f.gateway.searchCalls
	status, err = f.service.Reconcile(context.Background(), order.ID)
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusCancelled, status)
	require.Equal(t, callsBefore, f.gateway.searchCalls)
}

func TestReconcileGatewayFailureKeepsLocalState(t *testing.T) {
	f := newPaymentsFixture(t)
	order := f.createOrder(t, "20.00", 1, 10)
	_, err := f.service.CreateIntent(context.Background(), order.ID)
	require.NoError(t, err)

	f.gateway.searchErr = pkgerrors.New(pkgerrors.CodeDependency, "gateway down")

	status, err := f.service.Reconcile(context.Background(), order.ID)
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusPending, status)
}

func TestReconcileWithoutIntentIsNoop(t *testing.T) {
	f := newPaymentsFixture(t)
	order := f.createOrder(t, "20.00", 1, 10)

	status, err := f.service.Reconcile(context.Background(), order.ID)
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusPending, status)
	require.Equal(t, 0, f.gateway.searchCalls)
}

func TestReconcileUnknownStatusLeavesOrderAlone(t *testing.T) {
	f := newPaymentsFixture(t)
	order := f.createOrder(t, "20.00", 1, 10)
	_, err := f.service.CreateIntent(context.Background(), order.ID)
	require.NoError(t, err)

	f.gateway.payments = []mercadopago.Payment{{ID: 1, Status: "something_new"}}

	status, err := f.service.Reconcile(context.Background(), order.ID)
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusPending, status)
}

func TestReconcilePendingSweepsOpenIntents(t *testing.T) {
	f := newPaymentsFixture(t)
	first := f.createOrder(t, "20.00", 1, 10)
	second := f.createOrder(t, "15.00", 1, 10)

	_, err := f.service.CreateIntent(context.Background(), first.ID)
	require.NoError(t, err)
	_, err = f.service.CreateIntent(context.Background(), second.ID)
	require.NoError(t, err)

	f.gateway.payments = []mercadopago.Payment{{ID: 1, Status: "approved"}}

	count, err := f.service.ReconcilePending(context.Background(), 0)
	require.NoError(t, err)
	require.Equal(t, 2, count)

	for _, order := range []*models.Order{first, second} {
		reloaded, err := f.orders.Get(context.Background(), order.ID)
		require.NoError(t, err)
		require.Equal(t, enums.OrderStatusConfirmed, reloaded.Status)
	}
}
