package mongodb

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/vladislavdragonenkov/orderms/internal/domain"
)

const (
	fieldID         = "_id"
	fieldCustomerID = "customerId"
	fieldTotal      = "total"
)

// orderDocument — форма записи в коллекции tb_orders.
type orderDocument struct {
	ID         primitive.ObjectID   `bson:"_id"`
	OrderID    string               `bson:"orderId"`
	CustomerID int64                `bson:"customerId"`
	Items      []itemDocument       `bson:"itens"`
	Total      primitive.Decimal128 `bson:"total"`
	CreatedAt  time.Time            `bson:"createdAt"`
}

type itemDocument struct {
	Product  string               `bson:"produto"`
	Quantity int64                `bson:"quantidade"`
	Price    primitive.Decimal128 `bson:"preco"`
}

// toDocument отображает агрегат в документ. Деньги хранятся как Decimal128,
// чтобы $sum на стороне сервера считал точно.
func toDocument(id primitive.ObjectID, order domain.Order, createdAt time.Time) (orderDocument, error) {
	total, err := toDecimal128(order.Total)
	if err != nil {
		return orderDocument{}, fmt.Errorf("convert total: %w", err)
	}

	items := make([]itemDocument, 0, len(order.Items))
	for idx, item := range order.Items {
		price, err := toDecimal128(item.Price)
		if err != nil {
			return orderDocument{}, fmt.Errorf("convert item[%d] price: %w", idx, err)
		}
		items = append(items, itemDocument{
			Product:  item.Product,
			Quantity: item.Quantity,
			Price:    price,
		})
	}

	return orderDocument{
		ID:         id,
		OrderID:    order.OrderID,
		CustomerID: order.CustomerID,
		Items:      items,
		Total:      total,
		CreatedAt:  createdAt,
	}, nil
}

// fromDocument восстанавливает агрегат из документа без пересчёта total.
func fromDocument(doc orderDocument) (domain.Order, error) {
	total, err := fromDecimal128(doc.Total)
	if err != nil {
		return domain.Order{}, fmt.Errorf("decode total of %s: %w", doc.ID.Hex(), err)
	}

	items := make([]domain.OrderItem, 0, len(doc.Items))
	for idx, item := range doc.Items {
		price, err := fromDecimal128(item.Price)
		if err != nil {
			return domain.Order{}, fmt.Errorf("decode item[%d] price of %s: %w", idx, doc.ID.Hex(), err)
		}
		items = append(items, domain.OrderItem{
			Product:  item.Product,
			Quantity: item.Quantity,
			Price:    price,
		})
	}

	return domain.Order{
		RecordID:   doc.ID.Hex(),
		OrderID:    doc.OrderID,
		CustomerID: doc.CustomerID,
		Items:      items,
		Total:      total,
		CreatedAt:  doc.CreatedAt.UTC(),
	}, nil
}

func toDecimal128(d decimal.Decimal) (primitive.Decimal128, error) {
	return primitive.ParseDecimal128(d.String())
}

func fromDecimal128(d primitive.Decimal128) (decimal.Decimal, error) {
	return decimal.NewFromString(d.String())
}
