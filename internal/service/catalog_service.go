package service

import (
	"context"
	"strings"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/repository"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

type CatalogService struct {
	repo repository.CatalogQueries
}

func NewCatalogService(repo repository.CatalogQueries) *CatalogService {
	return &CatalogService{repo: repo}
}

type ProductPage struct {
	Products []*domain.Product `json:"products"`
	Total    int               `json:"total"`
	Limit    int               `json:"limit"`
	Offset   int               `json:"offset"`
}

func (s *CatalogService) ListProducts(ctx context.Context, limit, offset int) (*ProductPage, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}

	products, total, err := s.repo.ListProducts(ctx, limit, offset)
	if err != nil {
		return nil, translate("list products", err)
	}
	if products == nil {
		products = []*domain.Product{}
	}

	return &ProductPage{Products: products, Total: total, Limit: limit, Offset: offset}, nil
}

func (s *CatalogService) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	p, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return nil, translate("get product", err)
	}
	return p, nil
}

type CreateProductInput struct {
	Name        string
	Description string
	Price       float64
	Stock       int
	ImageURL    string
}

func (s *CatalogService) CreateProduct(ctx context.Context, in CreateProductInput) (*domain.Product, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" || in.Price < 0 || in.Stock < 0 {
		return nil, domain.ErrInvalidProduct
	}

	p := &domain.Product{
		Name:        name,
		Description: in.Description,
		Price:       in.Price,
		Stock:       in.Stock,
		ImageURL:    in.ImageURL,
	}
	if err := s.repo.CreateProduct(ctx, p); err != nil {
		return nil, translate("create product", err)
	}
	return p, nil
}
