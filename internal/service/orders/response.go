package orders

import (
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/orderms/internal/domain"
)

// OrderItemResponse — внешнее представление позиции заказа.
type OrderItemResponse struct {
	Product  string          `json:"produto"`
	Quantity int64           `json:"quantidade"`
	Price    decimal.Decimal `json:"preco"`
}

// OrderResponse — внешнее представление заказа; отличается от агрегата только именами полей.
type OrderResponse struct {
	OrderID    string              `json:"orderId"`
	CustomerID int64               `json:"customerId"`
	Total      decimal.Decimal     `json:"total"`
	Items      []OrderItemResponse `json:"itens"`
}

// ToResponse отображает агрегат во внешнее представление.
func ToResponse(order domain.Order) OrderResponse {
	items := make([]OrderItemResponse, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, OrderItemResponse{
			Product:  item.Product,
			Quantity: item.Quantity,
			Price:    item.Price,
		})
	}
	return OrderResponse{
		OrderID:    order.OrderID,
		CustomerID: order.CustomerID,
		Total:      order.Total,
		Items:      items,
	}
}
