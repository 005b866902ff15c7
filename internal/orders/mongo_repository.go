package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const collectionName = "orders"

func ConnectMongoDB(ctx context.Context, uri, database string) (*mongo.Database, error) {
	clientOpts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(10 * time.Second).
		SetServerSelectionTimeout(5 * time.Second).
		SetMaxPoolSize(100).
		SetMinPoolSize(10)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return client.Database(database), nil
}

// orderDocument stores the order id in its string form; a raw uuid.UUID would
// be encoded as a byte array and break the unique index on order_id.
type orderDocument struct {
	OrderID     string             `bson:"order_id"`
	UserID      int64              `bson:"user_id"`
	Lines       []domain.OrderLine `bson:"lines"`
	TotalAmount float64            `bson:"total_amount"`
	Currency    string             `bson:"currency"`
	Status      domain.OrderStatus `bson:"status"`
	CreatedAt   time.Time          `bson:"created_at"`
}

func toDocument(o *domain.Order) orderDocument {
	return orderDocument{
		OrderID:     o.ID.String(),
		UserID:      o.UserID,
		Lines:       o.Lines,
		TotalAmount: o.TotalAmount,
		Currency:    o.Currency,
		Status:      o.Status,
		CreatedAt:   o.CreatedAt,
	}
}

func (d orderDocument) toOrder() (*domain.Order, error) {
	id, err := uuid.Parse(d.OrderID)
	if err != nil {
		return nil, fmt.Errorf("invalid order_id %q: %w", d.OrderID, err)
	}
	return &domain.Order{
		ID:          id,
		UserID:      d.UserID,
		Lines:       d.Lines,
		TotalAmount: d.TotalAmount,
		Currency:    d.Currency,
		Status:      d.Status,
		CreatedAt:   d.CreatedAt,
	}, nil
}

type MongoRepository struct {
	collection *mongo.Collection
}

var _ OrderRepository = (*MongoRepository)(nil)

func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{collection: db.Collection(collectionName)}
}

func (m *MongoRepository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "order_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}},
		},
	}

	_, err := m.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	return nil
}

func (m *MongoRepository) SaveOrder(ctx context.Context, order *domain.Order) error {
	_, err := m.collection.InsertOne(ctx, toDocument(order))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateOrder
		}
		return fmt.Errorf("failed to insert order: %w", err)
	}
	return nil
}

func (m *MongoRepository) GetOrder(ctx context.Context, userID int64, id uuid.UUID) (*domain.Order, error) {
	var doc orderDocument

	filter := bson.M{"order_id": id.String(), "user_id": userID}
	err := m.collection.FindOne(ctx, filter).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	return doc.toOrder()
}

func (m *MongoRepository) ListOrdersByUser(ctx context.Context, userID int64) ([]*domain.Order, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})

	cursor, err := m.collection.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find orders: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []orderDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode orders: %w", err)
	}

	orders := make([]*domain.Order, 0, len(docs))
	for _, d := range docs {
		order, err := d.toOrder()
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}

	return orders, nil
}
