package repository

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/fjod/go_cart/storefront/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_ConcurrentTransactions(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	p := createProduct(t, store, "Single Origin", 10, 100)

	// 10 goroutines each try to take 20 units of 100; exactly 5 can succeed
	var wg sync.WaitGroup
	results := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- store.WithinTx(ctx, func(q Queries) error {
				got, err := q.GetProduct(ctx, p.ID)
				if err != nil {
					return err
				}
				if got.Stock < 20 {
					return ErrInsufficientStock
				}
				return q.DecrementStock(ctx, p.ID, 20)
			})
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, ErrInsufficientStock)
		}
	}
	assert.Equal(t, 5, succeeded)

	got, err := store.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Stock)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	p := createProduct(t, store, "Decaf", 2, 3)

	got, err := store.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	got.Stock = 100

	again, err := store.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, again.Stock)
}

func TestMemoryStore_DeleteProductLeavesCartItems(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	p := createProduct(t, store, "Seasonal", 4, 3)

	_, err := store.UpsertCartItem(ctx, 1, p.ID, 1)
	require.NoError(t, err)

	store.DeleteProduct(p.ID)

	_, err = store.GetProduct(ctx, p.ID)
	assert.ErrorIs(t, err, ErrProductNotFound)

	lines, err := store.ListCartLines(ctx, 1)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Nil(t, lines[0].Product)
}

func orderPlaced(aggregateID string) *domain.OutboxEvent {
	return &domain.OutboxEvent{
		AggregateID: aggregateID,
		EventType:   domain.EventTypeOrderPlaced,
		Payload:     []byte(`{}`),
	}
}

func TestMemoryStore_OutboxIsNotCopiedPerTransaction(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	published := orderPlaced("order-1")
	require.NoError(t, store.InsertOutboxEvent(ctx, published))
	require.NoError(t, store.MarkEventPublished(ctx, published.ID))
	assert.Empty(t, store.state.outbox.events, "published events are dropped")

	boom := errors.New("boom")
	err := store.WithinTx(ctx, func(q Queries) error {
		require.NoError(t, q.InsertOutboxEvent(ctx, orderPlaced("order-2")))
		events, err := q.GetUnpublishedEvents(ctx, 10)
		require.NoError(t, err)
		assert.Len(t, events, 1, "staged events are visible inside the transaction")
		return boom
	})
	require.ErrorIs(t, err, boom)

	events, err := store.GetUnpublishedEvents(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, events, "rolled back event must not be published")

	require.NoError(t, store.WithinTx(ctx, func(q Queries) error {
		return q.InsertOutboxEvent(ctx, orderPlaced("order-3"))
	}))
	events, err = store.GetUnpublishedEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "order-3", events[0].AggregateID)

	err = store.WithinTx(ctx, func(q Queries) error {
		require.NoError(t, q.MarkEventPublished(ctx, events[0].ID))
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Len(t, store.state.outbox.events, 1, "rolled back mark keeps the event pending")

	assert.Same(t, store.state.outbox, store.state.clone().outbox)
}
