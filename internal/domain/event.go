package domain

import "github.com/shopspring/decimal"

// OrderItemEvent — позиция во входящем событии создания заказа.
type OrderItemEvent struct {
	Product  string          `json:"produto"`
	Quantity int64           `json:"quantidade"`
	Price    decimal.Decimal `json:"preco"`
}

// OrderCreatedEvent — событие создания заказа от внешнего брокера.
// Обрабатывается ровно один раз за вызов приёма.
type OrderCreatedEvent struct {
	OrderID    string           `json:"codigoPedido"`
	CustomerID int64            `json:"codigoCliente"`
	Items      []OrderItemEvent `json:"itens"`
}
