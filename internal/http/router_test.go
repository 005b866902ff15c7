package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/orders"
	"github.com/fjod/go_cart/storefront/internal/repository"
	"github.com/fjod/go_cart/storefront/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testServer struct {
	router chi.Router
	repo   *repository.MemoryStore
	orders *orders.MemoryRepository
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	repo := repository.NewMemoryStore()
	orderRepo := orders.NewMemoryRepository()
	l := zap.NewNop()

	router := NewRouter(RouterConfig{
		Catalog:        service.NewCatalogService(repo),
		Carts:          service.NewCartService(repo, nil, l),
		Checkout:       service.NewCheckoutService(repo, nil, l, "USD"),
		Orders:         orderRepo,
		RequestTimeout: 5 * time.Second,
		Logger:         l,
	})
	return &testServer{router: router, repo: repo, orders: orderRepo}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) product(t *testing.T, name string, price float64, stock int) *domain.Product {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/v1/products", CreateProductRequestDTO{Name: name, Price: price, Stock: stock})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var p domain.Product
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&p))
	return &p
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestRouter_Health(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestRouter_CartFlow(t *testing.T) {
	s := newTestServer(t)
	a := s.product(t, "Kopi Susu", 2.5, 5)

	rec := s.do(t, http.MethodPost, "/api/v1/cart", AddItemRequestDTO{ProductID: a.ID, Quantity: 3})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var item domain.CartItem
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&item))
	assert.Equal(t, 3, item.Quantity)

	rec = s.do(t, http.MethodPost, "/api/v1/cart", AddItemRequestDTO{ProductID: a.ID, Quantity: 3})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	errResp := decodeError(t, rec)
	assert.Equal(t, "stock_not_enough", errResp.Code)
	assert.Contains(t, errResp.Details, "requested 6, available 5")

	rec = s.do(t, http.MethodGet, "/api/v1/cart", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var cart CartResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&cart))
	require.Len(t, cart.Items, 1)
	assert.Equal(t, 3, cart.TotalQuantity)
	assert.Equal(t, 7.5, cart.TotalAmount)

	rec = s.do(t, http.MethodPut, fmt.Sprintf("/api/v1/cart/%d", item.ID), UpdateQuantityRequestDTO{Quantity: 2})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/api/v1/cart/checkout", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var order domain.Order
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&order))
	assert.Equal(t, 5.0, order.TotalAmount)
	assert.Equal(t, domain.OrderStatusConfirmed, order.Status)

	rec = s.do(t, http.MethodGet, fmt.Sprintf("/api/v1/products/%d", a.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var after domain.Product
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&after))
	assert.Equal(t, 3, after.Stock)

	rec = s.do(t, http.MethodPost, "/api/v1/cart/checkout", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "cart_empty", decodeError(t, rec).Code)
}

func TestRouter_CartErrors(t *testing.T) {
	s := newTestServer(t)
	a := s.product(t, "Espresso", 3, 5)

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
		status int
		code   string
	}{
		{"unknown product", http.MethodPost, "/api/v1/cart", AddItemRequestDTO{ProductID: 999, Quantity: 1}, http.StatusNotFound, "product_not_found"},
		{"zero quantity", http.MethodPost, "/api/v1/cart", AddItemRequestDTO{ProductID: a.ID, Quantity: 0}, http.StatusBadRequest, "invalid_argument"},
		{"missing product id", http.MethodPost, "/api/v1/cart", map[string]int{"quantity": 1}, http.StatusBadRequest, "invalid_argument"},
		{"unknown item update", http.MethodPut, "/api/v1/cart/42", UpdateQuantityRequestDTO{Quantity: 1}, http.StatusNotFound, "cart_item_not_found"},
		{"unknown item delete", http.MethodDelete, "/api/v1/cart/42", nil, http.StatusNotFound, "cart_item_not_found"},
		{"bad item id", http.MethodDelete, "/api/v1/cart/abc", nil, http.StatusBadRequest, "invalid_cart_item_id"},
		{"unknown product get", http.MethodGet, "/api/v1/products/999", nil, http.StatusNotFound, "product_not_found"},
		{"invalid product", http.MethodPost, "/api/v1/products", CreateProductRequestDTO{Name: "", Price: 1}, http.StatusBadRequest, "invalid_argument"},
		{"unknown order", http.MethodGet, "/api/v1/orders/7f1b7d1e-8d1c-4c55-9a43-0f7a8c3a6a11", nil, http.StatusNotFound, "order_not_found"},
		{"bad order id", http.MethodGet, "/api/v1/orders/nope", nil, http.StatusBadRequest, "invalid_order_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, decodeError(t, rec).Code)
		})
	}
}

func TestRouter_InvalidJSON(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/cart", bytes.NewBufferString("{"))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", decodeError(t, rec).Code)
}

func TestRouter_DeleteItem(t *testing.T) {
	s := newTestServer(t)
	a := s.product(t, "Espresso", 3, 5)
	rec := s.do(t, http.MethodPost, "/api/v1/cart", AddItemRequestDTO{ProductID: a.ID, Quantity: 1})
	require.Equal(t, http.StatusCreated, rec.Code)
	var item domain.CartItem
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&item))

	rec = s.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/cart/%d", item.ID), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/cart/%d", item.ID), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_ListProducts(t *testing.T) {
	s := newTestServer(t)
	for i := 0; i < 3; i++ {
		s.product(t, fmt.Sprintf("p%d", i), 1, 1)
	}

	rec := s.do(t, http.MethodGet, "/api/v1/products?limit=2&offset=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var page service.ProductPage
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&page))
	assert.Equal(t, 3, page.Total)
	require.Len(t, page.Products, 2)
	assert.Equal(t, "p1", page.Products[0].Name)
}

func TestRouter_Orders(t *testing.T) {
	s := newTestServer(t)
	order := domain.NewOrder(1, "USD", []domain.OrderLine{{ProductID: 1, ProductName: "x", Quantity: 1, UnitPrice: 2}}, time.Now().UTC())
	require.NoError(t, s.orders.SaveOrder(context.Background(), order))

	rec := s.do(t, http.MethodGet, "/api/v1/orders", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Orders []domain.Order `json:"orders"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	require.Len(t, list.Orders, 1)
	assert.Equal(t, order.ID, list.Orders[0].ID)

	rec = s.do(t, http.MethodGet, "/api/v1/orders/"+order.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/"+order.ID.String(), nil)
	req.Header.Set("X-User-ID", "2")
	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code, "another user's order is hidden")
}

func TestRouter_OrdersNotMountedWithoutRepository(t *testing.T) {
	repo := repository.NewMemoryStore()
	router := NewRouter(RouterConfig{
		Catalog:  service.NewCatalogService(repo),
		Carts:    service.NewCartService(repo, nil, nil),
		Checkout: service.NewCheckoutService(repo, nil, nil, ""),
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
