// Package mongodb реализует хранилище агрегатов заказов поверх MongoDB.
package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	// DefaultCollection — коллекция агрегатов заказов.
	DefaultCollection = "tb_orders"

	defaultConnTimeout = 5 * time.Second
	defaultMaxPoolSize = 100
	defaultMinPoolSize = 5
)

// Store оборачивает клиент MongoDB и коллекцию заказов.
type Store struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// Open подключается к MongoDB, проверяет доступность и создаёт индекс по customerId.
func Open(ctx context.Context, uri, database string) (*Store, error) {
	if uri == "" {
		return nil, fmt.Errorf("mongodb uri cannot be empty")
	}
	if database == "" {
		return nil, fmt.Errorf("mongodb database cannot be empty")
	}

	opts := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(defaultMaxPoolSize).
		SetMinPoolSize(defaultMinPoolSize).
		SetConnectTimeout(defaultConnTimeout)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}

	store := &Store{
		client:     client,
		collection: client.Database(database).Collection(DefaultCollection),
	}

	if err := store.Ping(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}
	if err := store.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	return store, nil
}

// Collection возвращает коллекцию заказов.
func (s *Store) Collection() *mongo.Collection {
	return s.collection
}

// Ping проверяет доступность сервера.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("mongodb store is not initialized")
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultConnTimeout)
	defer cancel()
	return s.client.Ping(pingCtx, nil)
}

// EnsureIndexes создаёт индекс для выборки и агрегации по клиенту.
// Индекс составной, чтобы сортировка по _id внутри клиента не требовала сортировки в памяти.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	indexCtx, cancel := context.WithTimeout(ctx, defaultConnTimeout)
	defer cancel()

	_, err := s.collection.Indexes().CreateOne(indexCtx, mongo.IndexModel{
		Keys:    bson.D{{Key: fieldCustomerID, Value: 1}, {Key: fieldID, Value: 1}},
		Options: options.Index().SetName("customer_id_record_id"),
	})
	if err != nil {
		return fmt.Errorf("create customerId index: %w", err)
	}
	return nil
}

// Close закрывает подключение.
func (s *Store) Close(ctx context.Context) error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}
