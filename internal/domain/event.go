package domain

import (
	"time"

	"github.com/google/uuid"
)

const EventTypeOrderPlaced = "OrderPlaced"

type OutboxEvent struct {
	ID          uuid.UUID
	AggregateID string
	EventType   string
	Payload     []byte
	CreatedAt   time.Time
	PublishedAt *time.Time
}
