package inventory

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/j1myx/kiwishaproject/pkg/db/models"
	pkgerrors "github.com/j1myx/kiwishaproject/pkg/errors"
)

func setupLedgerTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:inventory_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.StockItem{}))
	return db
}

func seedStock(t *testing.T, db *gorm.DB, qty int) uuid.UUID {
	t.Helper()
	productID := uuid.New()
	require.NoError(t, db.Create(&models.StockItem{ProductID: productID, AvailableQty: qty}).Error)
	return productID
}

func availableQty(t *testing.T, db *gorm.DB, productID uuid.UUID) int {
	t.Helper()
	var item models.StockItem
	require.NoError(t, db.Where("product_id = ?", productID).First(&item).Error)
	return item.AvailableQty
}

func TestReserveDecrementsWhenEnoughStock(t *testing.T) {
	db := setupLedgerTestDB(t)
	productID := seedStock(t, db, 10)
	ledger := NewLedger()

	result, err := ledger.Reserve(context.Background(), db, productID, 4)
	require.NoError(t, err)
	require.True(t, result.OK)
	require.Equal(t, 6, availableQty(t, db, productID))
}

func TestReserveFailsWithoutMutatingStock(t *testing.T) {
	db := setupLedgerTestDB(t)
	productID := seedStock(t, db, 3)
	ledger := NewLedger()

	result, err := ledger.Reserve(context.Background(), db, productID, 5)
	require.NoError(t, err)
	require.False(t, result.OK)
	require.Equal(t, 3, result.Available)
	require.Equal(t, 3, availableQty(t, db, productID))
}

func TestReserveExactRemainingStock(t *testing.T) {
	db := setupLedgerTestDB(t)
	productID := seedStock(t, db, 5)
	ledger := NewLedger()

	result, err := ledger.Reserve(context.Background(), db, productID, 5)
	require.NoError(t, err)
	require.True(t, result.OK)
	require.Equal(t, 0, availableQty(t, db, productID))
}

func TestReserveRejectsNonPositiveQuantity(t *testing.T) {
	db := setupLedgerTestDB(t)
	productID := seedStock(t, db, 5)
	ledger := NewLedger()

	_, err := ledger.Reserve(context.Background(), db, productID, 0)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeValidation, typed.Code())
}

func TestReserveConcurrentNeverOversells(t *testing.T) {
	db := setupLedgerTestDB(t)
	productID := seedStock(t, db, 3)
	ledger := NewLedger()

	// one connection in the pool keeps sqlite writes serial while the
	// callers still race for the conditional decrement
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	const attempts = 8
	var successes int32
	errs := make(chan error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := ledger.Reserve(context.Background(), db, productID, 1)
			if err != nil {
				errs <- err
				return
			}
			if result.OK {
				atomic.AddInt32(&successes, 1)
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	require.EqualValues(t, 3, successes)
	require.Equal(t, 0, availableQty(t, db, productID))
}

func TestReserveAllReportsEveryShortage(t *testing.T) {
	db := setupLedgerTestDB(t)
	plenty := seedStock(t, db, 10)
	scarce := seedStock(t, db, 1)
	ledger := NewLedger()

	results, err := ledger.ReserveAll(context.Background(), db, []ReservationRequest{
		{ProductID: plenty, Quantity: 2},
		{ProductID: scarce, Quantity: 3},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.True(t, results[0].OK)
	require.False(t, results[1].OK)
	require.Equal(t, 1, results[1].Available)
}

func TestReleaseAddsBack(t *testing.T) {
	db := setupLedgerTestDB(t)
	productID := seedStock(t, db, 2)
	ledger := NewLedger()

	require.NoError(t, ledger.Release(context.Background(), db, productID, 3))
	require.Equal(t, 5, availableQty(t, db, productID))
}

func TestReleaseUnknownProductFails(t *testing.T) {
	db := setupLedgerTestDB(t)
	ledger := NewLedger()

	err := ledger.Release(context.Background(), db, uuid.New(), 1)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeNotFound, typed.Code())
}

func TestReleaseZeroIsNoop(t *testing.T) {
	db := setupLedgerTestDB(t)
	productID := seedStock(t, db, 2)
	ledger := NewLedger()

	require.NoError(t, ledger.Release(context.Background(), db, productID, 0))
	require.Equal(t, 2, availableQty(t, db, productID))
}
