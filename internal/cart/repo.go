package cart

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/j1myx/kiwishaproject/pkg/db/models"
)

// Repository defines persistence operations for session cart lines.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindItem(ctx context.Context, sessionToken string, productID uuid.UUID) (*models.CartItem, error)
	FindItems(ctx context.Context, sessionToken string) ([]models.CartItem, error)
	CreateItem(ctx context.Context, item *models.CartItem) error
	UpdateQuantity(ctx context.Context, itemID uuid.UUID, quantity int) error
	DeleteItem(ctx context.Context, sessionToken string, productID uuid.UUID) (int64, error)
	DeleteAll(ctx context.Context, sessionToken string) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a cart repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindItem(ctx context.Context, sessionToken string, productID uuid.UUID) (*models.CartItem, error) {
	var item models.CartItem
	err := r.db.WithContext(ctx).
		Where("session_token = ? AND product_id = ?", sessionToken, productID).
		First(&item).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repository) FindItems(ctx context.Context, sessionToken string) ([]models.CartItem, error) {
	var items []models.CartItem
	err := r.db.WithContext(ctx).
		Preload("Product").
		Preload("Product.Stock").
		Where("session_token = ?", sessionToken).
		Order("created_at ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) CreateItem(ctx context.Context, item *models.CartItem) error {
	return r.db.WithContext(ctx).Create(item).Error
}

func (r *repository) UpdateQuantity(ctx context.Context, itemID uuid.UUID, quantity int) error {
	return r.db.WithContext(ctx).
		Model(&models.CartItem{}).
		Where("id = ?", itemID).
		Update("quantity", quantity).Error
}

func (r *repository) DeleteItem(ctx context.Context, sessionToken string, productID uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("session_token = ? AND product_id = ?", sessionToken, productID).
		Delete(&models.CartItem{})
	return res.RowsAffected, res.Error
}

func (r *repository) DeleteAll(ctx context.Context, sessionToken string) error {
	return r.db.WithContext(ctx).
		Where("session_token = ?", sessionToken).
		Delete(&models.CartItem{}).Error
}
