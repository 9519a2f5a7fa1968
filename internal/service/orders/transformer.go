package orders

import (
	"fmt"
	"strings"

	"github.com/vladislavdragonenkov/orderms/internal/domain"
)

// Transform превращает событие создания заказа в агрегат и вычисляет total.
//
// Функция чистая: не обращается к часам, генераторам идентификаторов и I/O,
// поэтому для одного и того же события возвращает структурно равные агрегаты.
// RecordID и CreatedAt назначает хранилище при записи.
func Transform(event domain.OrderCreatedEvent) (domain.Order, error) {
	if strings.TrimSpace(event.OrderID) == "" {
		return domain.Order{}, domain.ErrOrderIDRequired
	}
	if event.CustomerID <= 0 {
		return domain.Order{}, domain.ErrCustomerRequired
	}

	items := make([]domain.OrderItem, 0, len(event.Items))
	for idx, item := range event.Items {
		if strings.TrimSpace(item.Product) == "" {
			return domain.Order{}, fmt.Errorf("item[%d]: %w", idx, domain.ErrItemProductRequired)
		}
		if item.Quantity < 0 {
			return domain.Order{}, fmt.Errorf("item[%d]: %w", idx, domain.ErrItemQtyNegative)
		}
		if item.Price.IsNegative() {
			return domain.Order{}, fmt.Errorf("item[%d]: %w", idx, domain.ErrItemPriceNegative)
		}
		if err := domain.ValidateAmount(item.Price); err != nil {
			return domain.Order{}, fmt.Errorf("item[%d] preco: %w", idx, err)
		}

		items = append(items, domain.OrderItem{
			Product:  item.Product,
			Quantity: item.Quantity,
			Price:    item.Price,
		})
	}

	total := domain.SumItems(items)
	if err := domain.ValidateAmount(total); err != nil {
		return domain.Order{}, fmt.Errorf("total: %w", err)
	}

	return domain.Order{
		OrderID:    event.OrderID,
		CustomerID: event.CustomerID,
		Items:      items,
		Total:      total,
	}, nil
}
