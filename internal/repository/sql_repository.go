package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/google/uuid"
)

var _ Repository = (*SQLRepository)(nil)

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLRepository serves SQLite and Postgres. Both dialects accept the same
// numbered placeholders, so only connection setup and migrations differ.
type SQLRepository struct {
	*queries
	db     *sql.DB
	driver string
}

func newSQLRepository(db *sql.DB, driver string) *SQLRepository {
	return &SQLRepository{queries: &queries{db: db, driver: driver}, db: db, driver: driver}
}

func (r *SQLRepository) WithinTx(ctx context.Context, fn func(q Queries) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(&queries{db: tx, driver: r.driver}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("tx err: %w; rollback err: %v", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (r *SQLRepository) Close() error {
	return r.db.Close()
}

type queries struct {
	db     dbtx
	driver string
}

// cartLockSpace is the first key of the two-key advisory lock, keeping cart
// locks apart from the single-key lock golang-migrate takes.
const cartLockSpace = 7301

func (q *queries) LockCart(ctx context.Context, userID int64) error {
	// SQLite transactions already hold the database write lock from BEGIN.
	if q.driver != DriverPostgres {
		return nil
	}
	if _, err := q.db.ExecContext(ctx,
		`SELECT pg_advisory_xact_lock($1, ($2 % 2147483647)::int)`, cartLockSpace, userID); err != nil {
		return fmt.Errorf("lock cart: %w", err)
	}
	return nil
}

func (q *queries) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	query := `
		SELECT id, name, description, price, stock, image_url, created_at, updated_at
		FROM products
		WHERE id = $1
	`

	p := &domain.Product{}
	err := q.db.QueryRowContext(ctx, query, id).Scan(
		&p.ID,
		&p.Name,
		&p.Description,
		&p.Price,
		&p.Stock,
		&p.ImageURL,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query product: %w", err)
	}
	return p, nil
}

func (q *queries) ListProducts(ctx context.Context, limit, offset int) ([]*domain.Product, int, error) {
	var total int
	if err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM products`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count products: %w", err)
	}

	query := `
		SELECT id, name, description, price, stock, image_url, created_at, updated_at
		FROM products
		ORDER BY id
		LIMIT $1 OFFSET $2
	`

	rows, err := q.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	products := make([]*domain.Product, 0, limit)
	for rows.Next() {
		p := &domain.Product{}
		if err := rows.Scan(
			&p.ID,
			&p.Name,
			&p.Description,
			&p.Price,
			&p.Stock,
			&p.ImageURL,
			&p.CreatedAt,
			&p.UpdatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("row iteration error: %w", err)
	}

	return products, total, nil
}

func (q *queries) CreateProduct(ctx context.Context, p *domain.Product) error {
	now := time.Now().UTC()
	query := `
		INSERT INTO products (name, description, price, stock, image_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`

	err := q.db.QueryRowContext(ctx, query,
		p.Name,
		p.Description,
		p.Price,
		p.Stock,
		p.ImageURL,
		now,
		now,
	).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("insert product: %w", err)
	}

	p.CreatedAt = now
	p.UpdatedAt = now
	return nil
}

func (q *queries) DecrementStock(ctx context.Context, id int64, amount int) error {
	query := `
		UPDATE products
		SET stock = stock - $1, updated_at = $2
		WHERE id = $3 AND stock >= $4
	`

	res, err := q.db.ExecContext(ctx, query, amount, time.Now().UTC(), id, amount)
	if err != nil {
		return fmt.Errorf("decrement stock: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("decrement stock rows affected: %w", err)
	}
	if affected == 1 {
		return nil
	}

	var stock int
	err = q.db.QueryRowContext(ctx, `SELECT stock FROM products WHERE id = $1`, id).Scan(&stock)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrProductNotFound
	}
	if err != nil {
		return fmt.Errorf("query stock: %w", err)
	}
	return ErrInsufficientStock
}

const cartItemColumns = `id, user_id, product_id, quantity, created_at, updated_at`

func scanCartItem(row interface{ Scan(dest ...any) error }) (*domain.CartItem, error) {
	item := &domain.CartItem{}
	err := row.Scan(
		&item.ID,
		&item.UserID,
		&item.ProductID,
		&item.Quantity,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	return item, err
}

func (q *queries) ListCartItems(ctx context.Context, userID int64) ([]*domain.CartItem, error) {
	query := `SELECT ` + cartItemColumns + ` FROM cart_items WHERE user_id = $1 ORDER BY id`

	rows, err := q.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query cart items: %w", err)
	}
	defer rows.Close()

	var items []*domain.CartItem
	for rows.Next() {
		item, err := scanCartItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return items, nil
}

func (q *queries) ListCartLines(ctx context.Context, userID int64) ([]*domain.CartLine, error) {
	query := `
		SELECT c.id, c.user_id, c.product_id, c.quantity, c.created_at, c.updated_at,
		       p.name, p.price, p.stock
		FROM cart_items c
		LEFT JOIN products p ON p.id = c.product_id
		WHERE c.user_id = $1
		ORDER BY c.id
	`

	rows, err := q.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query cart lines: %w", err)
	}
	defer rows.Close()

	lines := make([]*domain.CartLine, 0)
	for rows.Next() {
		var (
			line  domain.CartLine
			name  sql.NullString
			price sql.NullFloat64
			stock sql.NullInt64
		)
		if err := rows.Scan(
			&line.ID,
			&line.UserID,
			&line.ProductID,
			&line.Quantity,
			&line.CreatedAt,
			&line.UpdatedAt,
			&name,
			&price,
			&stock,
		); err != nil {
			return nil, fmt.Errorf("scan cart line: %w", err)
		}
		if name.Valid {
			line.Product = &domain.ProductSnapshot{
				Name:  name.String,
				Price: price.Float64,
				Stock: int(stock.Int64),
			}
		}
		lines = append(lines, &line)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return lines, nil
}

func (q *queries) GetCartItem(ctx context.Context, userID, itemID int64) (*domain.CartItem, error) {
	query := `SELECT ` + cartItemColumns + ` FROM cart_items WHERE id = $1 AND user_id = $2`

	item, err := scanCartItem(q.db.QueryRowContext(ctx, query, itemID, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCartItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query cart item: %w", err)
	}
	return item, nil
}

func (q *queries) FindCartItem(ctx context.Context, userID, productID int64) (*domain.CartItem, error) {
	query := `SELECT ` + cartItemColumns + ` FROM cart_items WHERE user_id = $1 AND product_id = $2`

	item, err := scanCartItem(q.db.QueryRowContext(ctx, query, userID, productID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCartItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query cart item by product: %w", err)
	}
	return item, nil
}

func (q *queries) UpsertCartItem(ctx context.Context, userID, productID int64, delta int) (*domain.CartItem, error) {
	now := time.Now().UTC()
	query := `
		INSERT INTO cart_items (user_id, product_id, quantity, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, product_id)
		DO UPDATE SET quantity = cart_items.quantity + excluded.quantity, updated_at = excluded.updated_at
		RETURNING ` + cartItemColumns

	item, err := scanCartItem(q.db.QueryRowContext(ctx, query, userID, productID, delta, now, now))
	if err != nil {
		return nil, fmt.Errorf("upsert cart item: %w", err)
	}
	return item, nil
}

func (q *queries) UpdateCartItemQuantity(ctx context.Context, userID, itemID int64, quantity int) (*domain.CartItem, error) {
	if quantity <= 0 {
		return nil, q.DeleteCartItem(ctx, userID, itemID)
	}

	query := `
		UPDATE cart_items
		SET quantity = $1, updated_at = $2
		WHERE id = $3 AND user_id = $4
		RETURNING ` + cartItemColumns

	item, err := scanCartItem(q.db.QueryRowContext(ctx, query, quantity, time.Now().UTC(), itemID, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCartItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update cart item quantity: %w", err)
	}
	return item, nil
}

func (q *queries) DeleteCartItem(ctx context.Context, userID, itemID int64) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM cart_items WHERE id = $1 AND user_id = $2`, itemID, userID)
	if err != nil {
		return fmt.Errorf("delete cart item: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete cart item rows affected: %w", err)
	}
	if affected == 0 {
		return ErrCartItemNotFound
	}
	return nil
}

func (q *queries) DeleteAllCartItems(ctx context.Context, userID int64) (int, error) {
	res, err := q.db.ExecContext(ctx, `DELETE FROM cart_items WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("delete cart items: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete cart items rows affected: %w", err)
	}
	return int(affected), nil
}

func (q *queries) InsertOutboxEvent(ctx context.Context, event *domain.OutboxEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO outbox_events (id, aggregate_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := q.db.ExecContext(ctx, query,
		event.ID,
		event.AggregateID,
		event.EventType,
		string(event.Payload),
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}

func (q *queries) GetUnpublishedEvents(ctx context.Context, limit int) ([]*domain.OutboxEvent, error) {
	query := `
		SELECT id, aggregate_id, event_type, payload, created_at
		FROM outbox_events
		WHERE published_at IS NULL
		ORDER BY created_at
		LIMIT $1
	`

	rows, err := q.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query outbox events: %w", err)
	}
	defer rows.Close()

	var events []*domain.OutboxEvent
	for rows.Next() {
		e := &domain.OutboxEvent{}
		if err := rows.Scan(&e.ID, &e.AggregateID, &e.EventType, &e.Payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return events, nil
}

func (q *queries) MarkEventPublished(ctx context.Context, id uuid.UUID) error {
	res, err := q.db.ExecContext(ctx,
		`UPDATE outbox_events SET published_at = $1 WHERE id = $2 AND published_at IS NULL`,
		time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("mark outbox event published: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark outbox event rows affected: %w", err)
	}
	if affected == 0 {
		return ErrEventNotFound
	}
	return nil
}
