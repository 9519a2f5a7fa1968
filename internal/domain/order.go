package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Пределы денежных значений. Они совпадают с Decimal128, в котором суммы хранит MongoDB.
const (
	MaxAmountDigits   = 34
	minAmountExponent = -6176
	maxAmountExponent = 6111
)

// OrderItem представляет одну позицию сохранённого заказа. После записи не изменяется.
type OrderItem struct {
	// Product — внешний идентификатор товара.
	Product string
	// Quantity — количество единиц товара.
	Quantity int64
	// Price — цена за единицу.
	Price decimal.Decimal
}

// Subtotal возвращает quantity * price позиции.
func (i OrderItem) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(i.Quantity))
}

// Order — денормализованный агрегат заказа, сгруппированный по клиенту.
//
// Total вычисляется один раз при приёме события и при чтении из позиций
// не пересчитывается.
type Order struct {
	// RecordID назначается хранилищем и задаёт стабильный порядок вставки.
	RecordID   string
	OrderID    string
	CustomerID int64
	Items      []OrderItem
	Total      decimal.Decimal
	CreatedAt  time.Time
}

// SumItems возвращает сумму quantity * price по всем позициям; для пустого списка — ноль.
func SumItems(items []OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Subtotal())
	}
	return total
}

// ValidateAmount проверяет, что сумма помещается в MaxAmountDigits значащих цифр
// и допустимый диапазон порядка. Хвостовые нули целой части не считаются.
func ValidateAmount(amount decimal.Decimal) error {
	coefficient := strings.TrimPrefix(amount.Coefficient().String(), "-")
	significant := strings.TrimRight(coefficient, "0")
	if significant == "" {
		return nil
	}

	exponent := int(amount.Exponent()) + len(coefficient) - len(significant)
	if len(significant) > MaxAmountDigits || exponent < minAmountExponent || exponent > maxAmountExponent {
		return ErrAmountOutOfRange
	}
	return nil
}
