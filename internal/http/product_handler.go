package http

import (
	"context"
	"net/http"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/service"
	"go.uber.org/zap"
)

type CatalogService interface {
	ListProducts(ctx context.Context, limit, offset int) (*service.ProductPage, error)
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
	CreateProduct(ctx context.Context, in service.CreateProductInput) (*domain.Product, error)
}

type ProductHandler struct {
	catalog CatalogService
	timeout time.Duration
	logger  *zap.Logger
}

func NewProductHandler(catalog CatalogService, timeout time.Duration, logger *zap.Logger) *ProductHandler {
	return &ProductHandler{
		catalog: catalog,
		timeout: timeout,
		logger:  logger,
	}
}

type CreateProductRequestDTO struct {
	Name        string  `json:"name" validate:"required,max=200"`
	Description string  `json:"description" validate:"max=2000"`
	Price       float64 `json:"price" validate:"gte=0"`
	Stock       int     `json:"stock" validate:"gte=0"`
	ImageURL    string  `json:"image_url" validate:"omitempty,url"`
}

// GET /api/v1/products?limit=&offset=
func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	page, err := h.catalog.ListProducts(ctx, queryInt(r, "limit", 0), queryInt(r, "offset", 0))
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, page)
}

// GET /api/v1/products/{product_id}
func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	productID, ok := pathID(w, r, "product_id")
	if !ok {
		return
	}

	product, err := h.catalog.GetProduct(ctx, productID)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, product)
}

// POST /api/v1/products
func (h *ProductHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req CreateProductRequestDTO
	if !decodeAndValidate(w, r, &req) {
		return
	}

	product, err := h.catalog.CreateProduct(ctx, service.CreateProductInput{
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Stock:       req.Stock,
		ImageURL:    req.ImageURL,
	})
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	respondJSON(w, http.StatusCreated, product)
}
