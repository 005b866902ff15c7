package http

import (
	"net/http"
	"time"

	"github.com/fjod/go_cart/storefront/internal/orders"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

type RouterConfig struct {
	Catalog  CatalogService
	Carts    CartService
	Checkout CheckoutService
	// Orders is optional; the order history routes are only mounted when set.
	Orders         orders.OrderRepository
	RequestTimeout time.Duration
	Logger         *zap.Logger
}

func NewRouter(cfg RouterConfig) chi.Router {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 5 * time.Second
	}

	productHandler := NewProductHandler(cfg.Catalog, cfg.RequestTimeout, cfg.Logger)
	cartHandler := NewCartHandler(cfg.Carts, cfg.RequestTimeout, cfg.Logger)
	checkoutHandler := NewCheckoutHandler(cfg.Checkout, cfg.RequestTimeout, cfg.Logger)

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(RequestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(middleware.Compress(5))
	r.Use(MockAuthMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/products", func(r chi.Router) {
			r.Get("/", productHandler.List)
			r.Post("/", productHandler.Create)
			r.Get("/{product_id}", productHandler.Get)
		})

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", cartHandler.GetCart)
			r.Post("/", cartHandler.AddItem)
			r.Post("/checkout", checkoutHandler.Checkout)
			r.Put("/{cart_item_id}", cartHandler.UpdateQuantity)
			r.Delete("/{cart_item_id}", cartHandler.RemoveItem)
		})

		if cfg.Orders != nil {
			ordersHandler := NewOrdersHandler(cfg.Orders, cfg.RequestTimeout, cfg.Logger)
			r.Route("/orders", func(r chi.Router) {
				r.Get("/", ordersHandler.ListOrders)
				r.Get("/{order_id}", ordersHandler.GetOrder)
			})
		}
	})

	return r
}
