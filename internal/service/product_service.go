package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/fitbridge/pt-booking-api/internal/models"
	appErrors "github.com/fitbridge/pt-booking-api/pkg/errors"
)

type productStore interface {
	ListActive(ctx context.Context) ([]models.PtProduct, error)
	GetByID(ctx context.Context, id string) (*models.PtProduct, error)
	Create(ctx context.Context, product *models.PtProduct) error
}

// ProductService manages the coaching package catalogue.
type ProductService struct {
	repo      productStore
	validator *validator.Validate
	logger    *zap.Logger
}

// NewProductService constructs the service.
func NewProductService(repo productStore, validate *validator.Validate, logger *zap.Logger) *ProductService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &ProductService{repo: repo, validator: validate, logger: logger}
}

// ListActive returns purchasable products.
func (s *ProductService) ListActive(ctx context.Context) ([]models.PtProduct, error) {
	products, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list products")
	}
	return products, nil
}

// Get returns one product.
func (s *ProductService) Get(ctx context.Context, id string) (*models.PtProduct, error) {
	product, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "product not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load product")
	}
	return product, nil
}

// CreateProductInput is the admin payload for a new package.
type CreateProductInput struct {
	Name          string          `json:"name" validate:"required"`
	TotalSessions int             `json:"total_sessions" validate:"required,min=1,max=200"`
	DurationHours int             `json:"duration_hours" validate:"required,min=1,max=4"`
	Price         decimal.Decimal `json:"price"`
}

// Create adds a new purchasable package.
func (s *ProductService) Create(ctx context.Context, input CreateProductInput) (*models.PtProduct, error) {
	if err := s.validator.Struct(input); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid product payload")
	}
	if input.Price.IsNegative() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "price must not be negative")
	}

	product := &models.PtProduct{
		ID:            uuid.NewString(),
		Name:          input.Name,
		TotalSessions: input.TotalSessions,
		DurationHours: input.DurationHours,
		Price:         input.Price,
		Active:        true,
	}
	if err := s.repo.Create(ctx, product); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create product")
	}
	s.logger.Info("product created", zap.String("product_id", product.ID), zap.String("name", product.Name))
	return product, nil
}
