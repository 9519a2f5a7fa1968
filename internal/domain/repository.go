package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// OrderStore описывает требования к хранилищу агрегатов заказов.
type OrderStore interface {
	// Save вставляет новую запись. Повторный вызов с тем же OrderID создаёт ещё одну запись.
	Save(ctx context.Context, order Order) error
	// FindByCustomer возвращает страницу заказов клиента в порядке вставки.
	// Если заказов нет, возвращается пустая страница без ошибки.
	FindByCustomer(ctx context.Context, customerID int64, page PageRequest) (Page[Order], error)
}

// TotalsAggregator суммирует сохранённые total заказов клиента.
type TotalsAggregator interface {
	// SumTotalsByCustomer возвращает ноль, если у клиента нет заказов.
	SumTotalsByCustomer(ctx context.Context, customerID int64) (decimal.Decimal, error)
}

// OrderRepository объединяет запись, постраничное чтение и агрегацию:
// так устроены все поддерживаемые бэкенды.
type OrderRepository interface {
	OrderStore
	TotalsAggregator
}
