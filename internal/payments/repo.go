package payments

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/j1myx/kiwishaproject/pkg/db/models"
	"github.com/j1myx/kiwishaproject/pkg/enums"
)

// Repository defines persistence operations for payment intents.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, intent *models.PaymentIntent) error
	FindByOrderID(ctx context.Context, orderID uuid.UUID) (*models.PaymentIntent, error)
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
	FindIntentsForPendingOrders(ctx context.Context, limit int) ([]models.PaymentIntent, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a payments repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, intent *models.PaymentIntent) error {
	return r.db.WithContext(ctx).Create(intent).Error
}

func (r *repository) FindByOrderID(ctx context.Context, orderID uuid.UUID) (*models.PaymentIntent, error) {
	var intent models.PaymentIntent
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		First(&intent).Error
	if err != nil {
		return nil, err
	}
	return &intent, nil
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&models.PaymentIntent{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// FindIntentsForPendingOrders returns intents whose orders still await payment,
// oldest checks first so every intent eventually gets polled.
func (r *repository) FindIntentsForPendingOrders(ctx context.Context, limit int) ([]models.PaymentIntent, error) {
	var intents []models.PaymentIntent
	query := r.db.WithContext(ctx).
		Joins("JOIN orders ON orders.id = payment_intents.order_id").
		Where("orders.status = ?", enums.OrderStatusPending).
		Order("payment_intents.last_checked_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&intents).Error; err != nil {
		return nil, err
	}
	return intents, nil
}
