package mongodb

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/vladislavdragonenkov/orderms/internal/domain"
)

const (
	opTimeout = 5 * time.Second
)

type orderRepository struct {
	collection *mongo.Collection
	now        func() time.Time
}

// NewOrderRepository создаёт MongoDB-реализацию OrderRepository.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return newOrderRepository(store.Collection())
}

func newOrderRepository(collection *mongo.Collection) *orderRepository {
	return &orderRepository{
		collection: collection,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Save вставляет новый документ с собственным _id; уникальность orderId не проверяется.
func (r *orderRepository) Save(ctx context.Context, order domain.Order) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	// Ошибка отображения детерминирована: повтор записи её не исправит.
	doc, err := toDocument(primitive.NewObjectID(), order, r.now())
	if err != nil {
		return fmt.Errorf("map order document: %w: %w", domain.ErrAmountOutOfRange, err)
	}

	if _, err := r.collection.InsertOne(ctx, doc); err != nil {
		return domain.StorageError("insert order", err)
	}
	return nil
}

// FindByCustomer возвращает страницу заказов клиента, отсортированных по _id.
func (r *orderRepository) FindByCustomer(ctx context.Context, customerID int64, page domain.PageRequest) (domain.Page[domain.Order], error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	filter := customerFilter(customerID)

	total, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return domain.Page[domain.Order]{}, domain.StorageError("count orders", err)
	}
	if int64(page.Offset()) >= total {
		return domain.EmptyPage[domain.Order](page, total), nil
	}

	cursor, err := r.collection.Find(ctx, filter, pageOptions(page))
	if err != nil {
		return domain.Page[domain.Order]{}, domain.StorageError("find orders", err)
	}
	defer func() {
		_ = cursor.Close(ctx)
	}()

	var docs []orderDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return domain.Page[domain.Order]{}, domain.StorageError("decode orders", err)
	}

	items := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		order, err := fromDocument(doc)
		if err != nil {
			return domain.Page[domain.Order]{}, domain.StorageError("map order document", err)
		}
		items = append(items, order)
	}

	return domain.Page[domain.Order]{
		Items:         items,
		Number:        page.Number,
		Size:          page.Size,
		TotalElements: total,
	}, nil
}

// SumTotalsByCustomer выполняет на сервере $match по клиенту и $group с $sum по total.
// Пустой результат агрегации означает отсутствие заказов и даёт ноль.
func (r *orderRepository) SumTotalsByCustomer(ctx context.Context, customerID int64) (decimal.Decimal, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	cursor, err := r.collection.Aggregate(ctx, totalsPipeline(customerID))
	if err != nil {
		return decimal.Zero, domain.StorageError("aggregate totals", err)
	}
	defer func() {
		_ = cursor.Close(ctx)
	}()

	if !cursor.Next(ctx) {
		if err := cursor.Err(); err != nil {
			return decimal.Zero, domain.StorageError("aggregate totals", err)
		}
		return decimal.Zero, nil
	}

	var result struct {
		Total primitive.Decimal128 `bson:"total"`
	}
	if err := cursor.Decode(&result); err != nil {
		return decimal.Zero, domain.StorageError("decode totals", err)
	}

	sum, err := fromDecimal128(result.Total)
	if err != nil {
		return decimal.Zero, domain.StorageError("decode totals", err)
	}
	return sum, nil
}

func customerFilter(customerID int64) bson.D {
	return bson.D{{Key: fieldCustomerID, Value: customerID}}
}

func pageOptions(page domain.PageRequest) *options.FindOptions {
	return options.Find().
		SetSort(bson.D{{Key: fieldID, Value: 1}}).
		SetSkip(int64(page.Offset())).
		SetLimit(int64(page.Size))
}

func totalsPipeline(customerID int64) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$match", Value: customerFilter(customerID)}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: nil},
			{Key: fieldTotal, Value: bson.D{{Key: "$sum", Value: "$" + fieldTotal}}},
		}}},
	}
}

var _ domain.OrderRepository = (*orderRepository)(nil)
