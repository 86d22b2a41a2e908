package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fitbridge/pt-booking-api/internal/service"
	appErrors "github.com/fitbridge/pt-booking-api/pkg/errors"
	"github.com/fitbridge/pt-booking-api/pkg/response"
)

// ProductHandler exposes the purchasable session packages.
type ProductHandler struct {
	products *service.ProductService
}

// NewProductHandler creates a new handler.
func NewProductHandler(products *service.ProductService) *ProductHandler {
	return &ProductHandler{products: products}
}

// List godoc
// @Summary Active session packages
// @Tags Products
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /products [get]
func (h *ProductHandler) List(c *gin.Context) {
	products, err := h.products.ListActive(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, products, nil)
}

// Get godoc
// @Summary Package detail
// @Tags Products
// @Produce json
// @Param id path string true "Product ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /products/{id} [get]
func (h *ProductHandler) Get(c *gin.Context) {
	product, err := h.products.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, product, nil)
}

// Create godoc
// @Summary Create a session package
// @Tags Products
// @Accept json
// @Produce json
// @Param payload body service.CreateProductInput true "Package definition"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /products [post]
func (h *ProductHandler) Create(c *gin.Context) {
	var input service.CreateProductInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid product payload"))
		return
	}

	created, err := h.products.Create(c.Request.Context(), input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, created)
}
