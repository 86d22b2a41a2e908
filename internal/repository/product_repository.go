package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/fitbridge/pt-booking-api/internal/models"
)

// ProductRepository provides persistence for PT products.
type ProductRepository struct {
	db *sqlx.DB
}

// NewProductRepository creates a new product repository.
func NewProductRepository(db *sqlx.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

const productColumns = "id, name, total_sessions, duration_hours, price, active, created_at, updated_at"

// ListActive returns purchasable products.
func (r *ProductRepository) ListActive(ctx context.Context) ([]models.PtProduct, error) {
	query := fmt.Sprintf("SELECT %s FROM pt_products WHERE active = TRUE ORDER BY total_sessions ASC", productColumns)
	var products []models.PtProduct
	if err := r.db.SelectContext(ctx, &products, query); err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return products, nil
}

// GetByID loads a product by id.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*models.PtProduct, error) {
	query := fmt.Sprintf("SELECT %s FROM pt_products WHERE id = $1", productColumns)
	var product models.PtProduct
	if err := r.db.GetContext(ctx, &product, query, id); err != nil {
		return nil, err
	}
	return &product, nil
}

// Create stores a new product.
func (r *ProductRepository) Create(ctx context.Context, product *models.PtProduct) error {
	if product.ID == "" {
		product.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	product.CreatedAt = now
	product.UpdatedAt = now

	const query = `INSERT INTO pt_products (id, name, total_sessions, duration_hours, price, active, created_at, updated_at)
		VALUES (:id, :name, :total_sessions, :duration_hours, :price, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, product); err != nil {
		return fmt.Errorf("create product: %w", err)
	}
	return nil
}
