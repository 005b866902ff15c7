package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/google/uuid"
)

var _ Repository = (*MemoryStore)(nil)

// MemoryStore implements Repository with in-memory storage.
// Transactions run on a copy of the state that replaces the live state on commit.
type MemoryStore struct {
	mu    sync.RWMutex
	state *memoryState
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: newMemoryState()}
}

type memoryState struct {
	products      map[int64]*domain.Product
	items         map[int64]*domain.CartItem
	nextProductID int64
	nextItemID    int64

	// outbox is shared by every copy; outbox writes made through a copy are
	// staged and only reach it on commit.
	outbox    *memoryOutbox
	staged    []*domain.OutboxEvent
	published []uuid.UUID
}

// memoryOutbox keeps unpublished events only. Published events are dropped.
type memoryOutbox struct {
	events map[uuid.UUID]*domain.OutboxEvent
}

func newMemoryState() *memoryState {
	return &memoryState{
		products: make(map[int64]*domain.Product),
		items:    make(map[int64]*domain.CartItem),
		outbox:   &memoryOutbox{events: make(map[uuid.UUID]*domain.OutboxEvent)},
	}
}

func (s *memoryState) clone() *memoryState {
	c := &memoryState{
		products:      make(map[int64]*domain.Product, len(s.products)),
		items:         make(map[int64]*domain.CartItem, len(s.items)),
		nextProductID: s.nextProductID,
		nextItemID:    s.nextItemID,
		outbox:        s.outbox,
	}
	for id, p := range s.products {
		cp := *p
		c.products[id] = &cp
	}
	for id, item := range s.items {
		cp := *item
		c.items[id] = &cp
	}
	return c
}

// commit applies staged outbox writes.
func (s *memoryState) commit() {
	for _, e := range s.staged {
		s.outbox.events[e.ID] = e
	}
	for _, id := range s.published {
		delete(s.outbox.events, id)
	}
	s.staged = nil
	s.published = nil
}

func (s *MemoryStore) WithinTx(ctx context.Context, fn func(q Queries) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	work := s.state.clone()
	if err := fn(work); err != nil {
		return err
	}

	// a transaction interrupted before commit leaves the live state untouched
	if err := ctx.Err(); err != nil {
		return err
	}

	work.commit()
	s.state = work
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}

// DeleteProduct removes a product from the catalog without touching carts
// that reference it.
func (s *MemoryStore) DeleteProduct(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.state.products, id)
}

func (s *MemoryStore) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.GetProduct(ctx, id)
}

func (s *MemoryStore) ListProducts(ctx context.Context, limit, offset int) ([]*domain.Product, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.ListProducts(ctx, limit, offset)
}

func (s *MemoryStore) CreateProduct(ctx context.Context, p *domain.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.CreateProduct(ctx, p)
}

func (s *MemoryStore) DecrementStock(ctx context.Context, id int64, amount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.DecrementStock(ctx, id, amount)
}

// LockCart is a no-op: every transaction already holds the store lock.
func (s *MemoryStore) LockCart(ctx context.Context, userID int64) error {
	return ctx.Err()
}

func (s *MemoryStore) ListCartItems(ctx context.Context, userID int64) ([]*domain.CartItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.ListCartItems(ctx, userID)
}

func (s *MemoryStore) ListCartLines(ctx context.Context, userID int64) ([]*domain.CartLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.ListCartLines(ctx, userID)
}

func (s *MemoryStore) GetCartItem(ctx context.Context, userID, itemID int64) (*domain.CartItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.GetCartItem(ctx, userID, itemID)
}

func (s *MemoryStore) FindCartItem(ctx context.Context, userID, productID int64) (*domain.CartItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.FindCartItem(ctx, userID, productID)
}

func (s *MemoryStore) UpsertCartItem(ctx context.Context, userID, productID int64, delta int) (*domain.CartItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.UpsertCartItem(ctx, userID, productID, delta)
}

func (s *MemoryStore) UpdateCartItemQuantity(ctx context.Context, userID, itemID int64, quantity int) (*domain.CartItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.UpdateCartItemQuantity(ctx, userID, itemID, quantity)
}

func (s *MemoryStore) DeleteCartItem(ctx context.Context, userID, itemID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.DeleteCartItem(ctx, userID, itemID)
}

func (s *MemoryStore) DeleteAllCartItems(ctx context.Context, userID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.DeleteAllCartItems(ctx, userID)
}

func (s *MemoryStore) InsertOutboxEvent(ctx context.Context, event *domain.OutboxEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.state.InsertOutboxEvent(ctx, event); err != nil {
		return err
	}
	s.state.commit()
	return nil
}

func (s *MemoryStore) GetUnpublishedEvents(ctx context.Context, limit int) ([]*domain.OutboxEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.GetUnpublishedEvents(ctx, limit)
}

func (s *MemoryStore) MarkEventPublished(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.state.MarkEventPublished(ctx, id); err != nil {
		return err
	}
	s.state.commit()
	return nil
}

// memoryState methods assume the caller holds the store lock.

func (s *memoryState) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, ok := s.products[id]
	if !ok {
		return nil, ErrProductNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *memoryState) ListProducts(ctx context.Context, limit, offset int) ([]*domain.Product, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	ids := make([]int64, 0, len(s.products))
	for id := range s.products {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	products := make([]*domain.Product, 0, limit)
	for i := offset; i < len(ids) && len(products) < limit; i++ {
		cp := *s.products[ids[i]]
		products = append(products, &cp)
	}
	return products, len(ids), nil
}

func (s *memoryState) CreateProduct(ctx context.Context, p *domain.Product) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.nextProductID++
	now := time.Now().UTC()
	p.ID = s.nextProductID
	p.CreatedAt = now
	p.UpdatedAt = now
	cp := *p
	s.products[p.ID] = &cp
	return nil
}

func (s *memoryState) DecrementStock(ctx context.Context, id int64, amount int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, ok := s.products[id]
	if !ok {
		return ErrProductNotFound
	}
	if p.Stock < amount {
		return ErrInsufficientStock
	}
	p.Stock -= amount
	p.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *memoryState) userItems(userID int64) []*domain.CartItem {
	items := make([]*domain.CartItem, 0)
	for _, item := range s.items {
		if item.UserID == userID {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items
}

func (s *memoryState) LockCart(ctx context.Context, userID int64) error {
	return ctx.Err()
}

func (s *memoryState) ListCartItems(ctx context.Context, userID int64) ([]*domain.CartItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var items []*domain.CartItem
	for _, item := range s.userItems(userID) {
		cp := *item
		items = append(items, &cp)
	}
	return items, nil
}

func (s *memoryState) ListCartLines(ctx context.Context, userID int64) ([]*domain.CartLine, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	lines := make([]*domain.CartLine, 0)
	for _, item := range s.userItems(userID) {
		line := &domain.CartLine{CartItem: *item}
		if p, ok := s.products[item.ProductID]; ok {
			line.Product = &domain.ProductSnapshot{Name: p.Name, Price: p.Price, Stock: p.Stock}
		}
		lines = append(lines, line)
	}
	return lines, nil
}

func (s *memoryState) GetCartItem(ctx context.Context, userID, itemID int64) (*domain.CartItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	item, ok := s.items[itemID]
	if !ok || item.UserID != userID {
		return nil, ErrCartItemNotFound
	}
	cp := *item
	return &cp, nil
}

func (s *memoryState) FindCartItem(ctx context.Context, userID, productID int64) (*domain.CartItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, item := range s.items {
		if item.UserID == userID && item.ProductID == productID {
			cp := *item
			return &cp, nil
		}
	}
	return nil, ErrCartItemNotFound
}

func (s *memoryState) UpsertCartItem(ctx context.Context, userID, productID int64, delta int) (*domain.CartItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	for _, item := range s.items {
		if item.UserID == userID && item.ProductID == productID {
			item.Quantity += delta
			item.UpdatedAt = now
			cp := *item
			return &cp, nil
		}
	}

	s.nextItemID++
	item := &domain.CartItem{
		ID:        s.nextItemID,
		UserID:    userID,
		ProductID: productID,
		Quantity:  delta,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.items[item.ID] = item
	cp := *item
	return &cp, nil
}

func (s *memoryState) UpdateCartItemQuantity(ctx context.Context, userID, itemID int64, quantity int) (*domain.CartItem, error) {
	if quantity <= 0 {
		return nil, s.DeleteCartItem(ctx, userID, itemID)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	item, ok := s.items[itemID]
	if !ok || item.UserID != userID {
		return nil, ErrCartItemNotFound
	}
	item.Quantity = quantity
	item.UpdatedAt = time.Now().UTC()
	cp := *item
	return &cp, nil
}

func (s *memoryState) DeleteCartItem(ctx context.Context, userID, itemID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	item, ok := s.items[itemID]
	if !ok || item.UserID != userID {
		return ErrCartItemNotFound
	}
	delete(s.items, itemID)
	return nil
}

func (s *memoryState) DeleteAllCartItems(ctx context.Context, userID int64) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	deleted := 0
	for id, item := range s.items {
		if item.UserID == userID {
			delete(s.items, id)
			deleted++
		}
	}
	return deleted, nil
}

func (s *memoryState) InsertOutboxEvent(ctx context.Context, event *domain.OutboxEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	cp := *event
	s.staged = append(s.staged, &cp)
	return nil
}

func (s *memoryState) isMarked(id uuid.UUID) bool {
	for _, marked := range s.published {
		if marked == id {
			return true
		}
	}
	return false
}

func (s *memoryState) GetUnpublishedEvents(ctx context.Context, limit int) ([]*domain.OutboxEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var events []*domain.OutboxEvent
	for _, e := range s.outbox.events {
		if !s.isMarked(e.ID) {
			cp := *e
			events = append(events, &cp)
		}
	}
	for _, e := range s.staged {
		if !s.isMarked(e.ID) {
			cp := *e
			events = append(events, &cp)
		}
	}
	sort.Slice(events, func(i, j int) bool { return events[i].CreatedAt.Before(events[j].CreatedAt) })
	if len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

func (s *memoryState) MarkEventPublished(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.isMarked(id) {
		return ErrEventNotFound
	}
	_, ok := s.outbox.events[id]
	for _, e := range s.staged {
		if e.ID == id {
			ok = true
		}
	}
	if !ok {
		return ErrEventNotFound
	}
	s.published = append(s.published, id)
	return nil
}
