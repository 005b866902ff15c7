package repository

import (
	"context"
	"errors"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/google/uuid"
)

var (
	ErrProductNotFound   = errors.New("product not found")
	ErrCartItemNotFound  = errors.New("cart item not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrEventNotFound     = errors.New("outbox event not found")
)

type Credentials struct {
	Host              string
	Port              int
	User              string
	Password          string
	DBName            string
	MigrationsDirPath string
}

type CatalogQueries interface {
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
	// ListProducts returns one page ordered by id and the total number of products.
	ListProducts(ctx context.Context, limit, offset int) ([]*domain.Product, int, error)
	CreateProduct(ctx context.Context, p *domain.Product) error
	// DecrementStock takes amount units from the product only if that many
	// are available. Returns ErrProductNotFound or ErrInsufficientStock.
	DecrementStock(ctx context.Context, id int64, amount int) error
}

type CartQueries interface {
	// LockCart serialises transactions touching userID's cart until the
	// surrounding transaction ends. Outside a transaction it is a no-op.
	LockCart(ctx context.Context, userID int64) error
	ListCartItems(ctx context.Context, userID int64) ([]*domain.CartItem, error)
	ListCartLines(ctx context.Context, userID int64) ([]*domain.CartLine, error)
	GetCartItem(ctx context.Context, userID, itemID int64) (*domain.CartItem, error)
	FindCartItem(ctx context.Context, userID, productID int64) (*domain.CartItem, error)
	// UpsertCartItem creates the (user, product) line or adds delta to it.
	UpsertCartItem(ctx context.Context, userID, productID int64, delta int) (*domain.CartItem, error)
	// UpdateCartItemQuantity overwrites the quantity. A quantity <= 0 deletes the item.
	UpdateCartItemQuantity(ctx context.Context, userID, itemID int64, quantity int) (*domain.CartItem, error)
	DeleteCartItem(ctx context.Context, userID, itemID int64) error
	DeleteAllCartItems(ctx context.Context, userID int64) (int, error)
}

type OutboxQueries interface {
	InsertOutboxEvent(ctx context.Context, event *domain.OutboxEvent) error
	GetUnpublishedEvents(ctx context.Context, limit int) ([]*domain.OutboxEvent, error)
	MarkEventPublished(ctx context.Context, id uuid.UUID) error
}

type Queries interface {
	CatalogQueries
	CartQueries
	OutboxQueries
}

// Repository is a store backend. WithinTx runs fn against a transactional
// view: either everything fn did is committed or nothing is.
type Repository interface {
	Queries
	WithinTx(ctx context.Context, fn func(q Queries) error) error
	Close() error
}
