package orders

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/j1myx/kiwishaproject/internal/cart"
	"github.com/j1myx/kiwishaproject/internal/catalog"
	"github.com/j1myx/kiwishaproject/internal/inventory"
	"github.com/j1myx/kiwishaproject/pkg/db"
	"github.com/j1myx/kiwishaproject/pkg/db/models"
	"github.com/j1myx/kiwishaproject/pkg/enums"
	pkgerrors "github.com/j1myx/kiwishaproject/pkg/errors"
)

func setupOrdersTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:orders_%s?mode=memory&cache=shared", uuid.NewString())
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
  code TEXT NOT NULL,
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
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_orders_code ON orders (code);`,
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
	}
	for _, stmt := range statements {
		require.NoError(t, conn.Exec(stmt).Error)
	}
	return conn
}

type orderFixture struct {
	conn    *gorm.DB
	service Service
}

func newOrderFixture(t *testing.T) *orderFixture {
	t.Helper()
	conn := setupOrdersTestDB(t)
	client := db.NewWithConn(conn)
	svc, err := NewService(
		NewRepository(conn),
		cart.NewRepository(conn),
		catalog.NewRepository(conn),
		inventory.NewLedger(),
		client,
		nil,
	)
	require.NoError(t, err)
	return &orderFixture{conn: conn, service: svc}
}

func (f *orderFixture) seedProduct(t *testing.T, price string, stock int) uuid.UUID {
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
	return productID
}

func (f *orderFixture) seedShippingMethod(t *testing.T, cost string, active bool) uuid.UUID {
	t.Helper()
	methodID := uuid.New()
	require.NoError(t, f.conn.Create(&models.ShippingMethod{
		ID:       methodID,
		Name:     "Delivery",
		Cost:     decimal.RequireFromString(cost),
		IsActive: active,
	}).Error)
	return methodID
}

func (f *orderFixture) addToCart(t *testing.T, session string, productID uuid.UUID, qty int, unitPrice string) {
	t.Helper()
	require.NoError(t, f.conn.Create(&models.CartItem{
		ID:           uuid.New(),
		SessionToken: session,
		ProductID:    productID,
		Quantity:     qty,
		UnitPrice:    decimal.RequireFromString(unitPrice),
	}).Error)
}

func (f *orderFixture) stockOf(t *testing.T, productID uuid.UUID) int {
	t.Helper()
	var item models.StockItem
	require.NoError(t, f.conn.Where("product_id = ?", productID).First(&item).Error)
	return item.AvailableQty
}

func (f *orderFixture) cartSize(t *testing.T, session string) int {
	t.Helper()
	var count int64
	require.NoError(t, f.conn.Model(&models.CartItem{}).
		Where("session_token = ?", session).Count(&count).Error)
	return int(count)
}

func validInput(session string, methodID uuid.UUID) CreateInput {
	return CreateInput{
		SessionToken:     session,
		Customer:         CustomerInput{FirstName: "Maria", LastName: "Quispe", Email: "maria@example.test"},
		Address:          AddressInput{Line: "Av. Los Incas 123", City: "Lima"},
		ShippingMethodID: methodID,
	}
}

func TestCreateOrderHappyPath(t *testing.T) {
	f := newOrderFixture(t)
	first := f.seedProduct(t, "10.00", 5)
	second := f.seedProduct(t, "4.50", 8)
	method := f.seedShippingMethod(t, "7.00", true)
	f.addToCart(t, "session-a", first, 2, "10.00")
	f.addToCart(t, "session-a", second, 4, "4.50")

	order, err := f.service.Create(context.Background(), validInput("session-a", method))
	require.NoError(t, err)

	require.True(t, strings.HasPrefix(order.Code, "PED-"))
	require.Len(t, order.Code, 16)
	require.Equal(t, enums.OrderStatusPending, order.Status)
	require.Len(t, order.Lines, 2)
	require.True(t, order.Subtotal.Equal(decimal.RequireFromString("38.00")))
	require.True(t, order.ShippingCost.Equal(decimal.RequireFromString("7.00")))
	require.True(t, order.Total.Equal(decimal.RequireFromString("45.00")))

	// stock reserved at creation
	require.Equal(t, 3, f.stockOf(t, first))
	require.Equal(t, 4, f.stockOf(t, second))
	// cart cleared
	require.Equal(t, 0, f.cartSize(t, "session-a"))
}

func TestCreateOrderEmptyCart(t *testing.T) {
	f := newOrderFixture(t)
	method := f.seedShippingMethod(t, "5.00", true)

	_, err := f.service.Create(context.Background(), validInput("session-a", method))
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeValidation, typed.Code())
}

func TestCreateOrderInsufficientStockRollsBack(t *testing.T) {
	f := newOrderFixture(t)
	plenty := f.seedProduct(t, "10.00", 5)
	scarce := f.seedProduct(t, "4.50", 1)
	method := f.seedShippingMethod(t, "5.00", true)
	f.addToCart(t, "session-a", plenty, 2, "10.00")
	f.addToCart(t, "session-a", scarce, 3, "4.50")

	_, err := f.service.Create(context.Background(), validInput("session-a", method))
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeConflict, typed.Code())

	shortages, ok := typed.Details().([]StockShortage)
	require.True(t, ok)
	require.Len(t, shortages, 1)
	require.Equal(t, scarce, shortages[0].ProductID)
	require.Equal(t, 1, shortages[0].Available)

	// the successful reservation on the first line must have been rolled back
	require.Equal(t, 5, f.stockOf(t, plenty))
	require.Equal(t, 1, f.stockOf(t, scarce))
	require.Equal(t, 2, f.cartSize(t, "session-a"))
}

func TestCreateOrderUnknownShippingMethod(t *testing.T) {
	f := newOrderFixture(t)
	productID := f.seedProduct(t, "10.00", 5)
	f.addToCart(t, "session-a", productID, 1, "10.00")

	_, err := f.service.Create(context.Background(), validInput("session-a", uuid.New()))
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeNotFound, typed.Code())
}

func TestCreateOrderInactiveShippingMethod(t *testing.T) {
	f := newOrderFixture(t)
	productID := f.seedProduct(t, "10.00", 5)
	method := f.seedShippingMethod(t, "5.00", false)
	f.addToCart(t, "session-a", productID, 1, "10.00")

	_, err := f.service.Create(context.Background(), validInput("session-a", method))
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeValidation, typed.Code())
}

func TestCreateOrderValidatesInput(t *testing.T) {
	f := newOrderFixture(t)

	_, err := f.service.Create(context.Background(), CreateInput{})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeValidation, typed.Code())
}

func (f *orderFixture) createOrder(t *testing.T) *models.Order {
	t.Helper()
	productID := f.seedProduct(t, "10.00", 5)
	method := f.seedShippingMethod(t, "5.00", true)
	session := "session-" + uuid.NewString()[:8]
	f.addToCart(t, session, productID, 2, "10.00")
	order, err := f.service.Create(context.Background(), validInput(session, method))
	require.NoError(t, err)
	return order
}

func TestLifecycleHappyPath(t *testing.T) {
	f := newOrderFixture(t)
	order := f.createOrder(t)

	confirmed, err := f.service.Confirm(context.Background(), order.ID)
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusConfirmed, confirmed.Status)

	shipped, err := f.service.Ship(context.Background(), order.ID)
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusShipped, shipped.Status)

	delivered, err := f.service.Deliver(context.Background(), order.ID)
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusDelivered, delivered.Status)
}

func TestConfirmIsIdempotent(t *testing.T) {
	f := newOrderFixture(t)
	order := f.createOrder(t)

	_, err := f.service.Confirm(context.Background(), order.ID)
	require.NoError(t, err)
	again, err := f.service.Confirm(context.Background(), order.ID)
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusConfirmed, again.Status)
}

func TestShipFromPendingRejected(t *testing.T) {
	f := newOrderFixture(t)
	order := f.createOrder(t)

	_, err := f.service.Ship(context.Background(), order.ID)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeStateConflict, typed.Code())

	reloaded, err := f.service.Get(context.Background(), order.ID)
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusPending, reloaded.Status)
}

func TestCancelRestoresStockExactly(t *testing.T) {
	f := newOrderFixture(t)
	productID := f.seedProduct(t, "10.00", 5)
	method := f.seedShippingMethod(t, "5.00", true)
	f.addToCart(t, "session-a", productID, 3, "10.00")

	order, err := f.service.Create(context.Background(), validInput("session-a", method))
	require.NoError(t, err)
	require.Equal(t, 2, f.stockOf(t, productID))

	// unrelated stock movement in the meantime must be preserved
	require.NoError(t, f.conn.Exec(
		`UPDATE stock_items SET available_qty = available_qty + 10 WHERE product_id = ?`, productID).Error)

	cancelled, err := f.service.Cancel(context.Background(), order.ID, "cliente desistio")
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusCancelled, cancelled.Status)
	require.Equal(t, 15, f.stockOf(t, productID))
	require.NotNil(t, cancelled.Notes)
	require.Contains(t, *cancelled.Notes, "Cancelado: cliente desistio")
}

func TestCancelTerminalOrderFailsLoudly(t *testing.T) {
	f := newOrderFixture(t)
	order := f.createOrder(t)

	_, err := f.service.Cancel(context.Background(), order.ID, "primera vez")
	require.NoError(t, err)

	_, err = f.service.Cancel(context.Background(), order.ID, "segunda vez")
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeStateConflict, typed.Code())
}

func TestCancelShippedOrderRejected(t *testing.T) {
	f := newOrderFixture(t)
	order := f.createOrder(t)

	_, err := f.service.Confirm(context.Background(), order.ID)
	require.NoError(t, err)
	_, err = f.service.Ship(context.Background(), order.ID)
	require.NoError(t, err)

	_, err = f.service.Cancel(context.Background(), order.ID, "demasiado tarde")
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeStateConflict, typed.Code())
}

func TestCancelAppendsToExistingNotes(t *testing.T) {
	f := newOrderFixture(t)
	productID := f.seedProduct(t, "10.00", 5)
	method := f.seedShippingMethod(t, "5.00", true)
	f.addToCart(t, "session-a", productID, 1, "10.00")

	input := validInput("session-a", method)
	notes := "Entregar en porteria"
	input.Notes = &notes

	order, err := f.service.Create(context.Background(), input)
	require.NoError(t, err)

	cancelled, err := f.service.Cancel(context.Background(), order.ID, "sin pago")
	require.NoError(t, err)
	require.Equal(t, "Entregar en porteria\nCancelado: sin pago", *cancelled.Notes)
}

// staleReadRepo replays a captured row for FindByID so tests can model an
// actor whose guard check ran against a row another actor has since moved.
type staleReadRepo struct {
	Repository
	stale *models.Order
}

func (r *staleReadRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	if r.stale != nil && r.stale.ID == id {
		copied := *r.stale
		return &copied, nil
	}
	return r.Repository.FindByID(ctx, id)
}

func (f *orderFixture) serviceWithStaleRead(t *testing.T, stale *models.Order) Service {
	t.Helper()
	svc, err := NewService(
		&staleReadRepo{Repository: NewRepository(f.conn), stale: stale},
		cart.NewRepository(f.conn),
		catalog.NewRepository(f.conn),
		inventory.NewLedger(),
		db.NewWithConn(f.conn),
		nil,
	)
	require.NoError(t, err)
	return svc
}

func TestConcurrentCancelReleasesStockOnce(t *testing.T) {
	f := newOrderFixture(t)
	productID := f.seedProduct(t, "10.00", 5)
	method := f.seedShippingMethod(t, "5.00", true)
	f.addToCart(t, "session-a", productID, 2, "10.00")

	order, err := f.service.Create(context.Background(), validInput("session-a", method))
	require.NoError(t, err)
	require.Equal(t, 3, f.stockOf(t, productID))

	stale, err := f.service.Get(context.Background(), order.ID)
	require.NoError(t, err)

	_, err = f.service.Cancel(context.Background(), order.ID, "cliente desistio")
	require.NoError(t, err)
	require.Equal(t, 5, f.stockOf(t, productID))

	// the second canceller read the order as pending before the first committed
	racer := f.serviceWithStaleRead(t, stale)
	_, err = racer.Cancel(context.Background(), order.ID, "pago expirado")
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeStateConflict, typed.Code())
	require.Equal(t, 5, f.stockOf(t, productID))
}

func TestConfirmAfterConcurrentCancelRejected(t *testing.T) {
	f := newOrderFixture(t)
	productID := f.seedProduct(t, "10.00", 5)
	method := f.seedShippingMethod(t, "5.00", true)
	f.addToCart(t, "session-a", productID, 2, "10.00")

	order, err := f.service.Create(context.Background(), validInput("session-a", method))
	require.NoError(t, err)

	stale, err := f.service.Get(context.Background(), order.ID)
	require.NoError(t, err)

	_, err = f.service.Cancel(context.Background(), order.ID, "cliente desistio")
	require.NoError(t, err)

	racer := f.serviceWithStaleRead(t, stale)
	_, err = racer.Confirm(context.Background(), order.ID)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeStateConflict, typed.Code())

	var status string
	require.NoError(t, f.conn.Raw(`SELECT status FROM orders WHERE id = ?`, order.ID).Scan(&status).Error)
	require.Equal(t, "cancelled", status)
	require.Equal(t, 5, f.stockOf(t, productID))
}

func TestCreateOrderCapturesCustomerSnapshot(t *testing.T) {
	f := newOrderFixture(t)
	productID := f.seedProduct(t, "10.00", 5)
	method := f.seedShippingMethod(t, "5.00", true)
	f.addToCart(t, "session-a", productID, 1, "10.00")

	postal := "15001"
	country := "Peru"
	input := validInput("session-a", method)
	input.Address.PostalCode = &postal
	input.Address.Country = &country

	order, err := f.service.Create(context.Background(), input)
	require.NoError(t, err)
	require.Equal(t, "Maria", order.CustomerFirstName)
	require.Equal(t, "Quispe", order.CustomerLastName)
	require.NotNil(t, order.AddressPostalCode)
	require.Equal(t, "15001", *order.AddressPostalCode)
	require.NotNil(t, order.AddressCountry)
	require.Equal(t, "Peru", *order.AddressCountry)
}

func TestCancelStalePending(t *testing.T) {
	f := newOrderFixture(t)
	stale := f.createOrder(t)
	fresh := f.createOrder(t)

	require.NoError(t, f.conn.Exec(
		`UPDATE orders SET created_at = ? WHERE id = ?`,
		time.Now().Add(-100*time.Hour), stale.ID).Error)

	count, err := f.service.CancelStalePending(context.Background(), 72*time.Hour, "pago expirado")
	require.NoError(t, err)
	require.Equal(t, 1, count)

	reloaded, err := f.service.Get(context.Background(), stale.ID)
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusCancelled, reloaded.Status)

	untouched, err := f.service.Get(context.Background(), fresh.ID)
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusPending, untouched.Status)
}

func TestGetByCode(t *testing.T) {
	f := newOrderFixture(t)
	order := f.createOrder(t)

	found, err := f.service.GetByCode(context.Background(), order.Code)
	require.NoError(t, err)
	require.Equal(t, order.ID, found.ID)

	_, err = f.service.GetByCode(context.Background(), "PED-DOESNOTEXIST")
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeNotFound, typed.Code())
}

func TestGenerateCodeShape(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		code, err := GenerateCode()
		require.NoError(t, err)
		require.True(t, strings.HasPrefix(code, "PED-"))
		require.Len(t, code, 16)
		require.Equal(t, strings.ToUpper(code), code)
		seen[code] = true
	}
	require.Len(t, seen, 50)
}
