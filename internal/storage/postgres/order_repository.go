package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/orderms/internal/domain"
)

const (
	opTimeout = 5 * time.Second
)

type orderRepository struct {
	db  *sql.DB
	now func() time.Time
	// beforeItems вызывается между выборкой заказов и их позиций; используется в тестах.
	beforeItems func()
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{
		db:  store.DB(),
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Save вставляет заказ и его позиции одной транзакцией.
// Каждая запись получает новый UUID, поэтому повторная доставка создаёт дубликат.
func (r *orderRepository) Save(ctx context.Context, order domain.Order) (err error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.StorageError("begin tx", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	recordID := uuid.NewString()
	if _, err = tx.ExecContext(ctx, `
		INSERT INTO tb_orders (id, order_id, customer_id, total, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`,
		recordID, order.OrderID, order.CustomerID, order.Total.String(), r.now(),
	); err != nil {
		return domain.StorageError("insert order", err)
	}

	for i, item := range order.Items {
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO tb_order_items (record_id, position, product, quantity, price)
			VALUES ($1,$2,$3,$4,$5)
		`,
			recordID, i, item.Product, item.Quantity, item.Price.String(),
		); err != nil {
			return domain.StorageError("insert order item", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return domain.StorageError("commit save order", err)
	}

	return nil
}

// FindByCustomer возвращает страницу заказов клиента в порядке seq.
// Подсчёт, заказы и позиции читаются из одного снимка REPEATABLE READ,
// поэтому параллельная запись не сдвигает окно LIMIT/OFFSET между запросами.
func (r *orderRepository) FindByCustomer(ctx context.Context, customerID int64, page domain.PageRequest) (domain.Page[domain.Order], error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return domain.Page[domain.Order]{}, domain.StorageError("begin read tx", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var total int64
	if err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM tb_orders WHERE customer_id = $1
	`, customerID).Scan(&total); err != nil {
		return domain.Page[domain.Order]{}, domain.StorageError("count orders", err)
	}
	if int64(page.Offset()) >= total {
		return domain.EmptyPage[domain.Order](page, total), nil
	}

	orders, err := loadOrders(ctx, tx, customerID, page)
	if err != nil {
		return domain.Page[domain.Order]{}, err
	}
	if r.beforeItems != nil {
		r.beforeItems()
	}
	if err := attachItems(ctx, tx, customerID, page, orders); err != nil {
		return domain.Page[domain.Order]{}, err
	}

	if err := tx.Commit(); err != nil {
		return domain.Page[domain.Order]{}, domain.StorageError("commit read tx", err)
	}

	return domain.Page[domain.Order]{
		Items:         orders,
		Number:        page.Number,
		Size:          page.Size,
		TotalElements: total,
	}, nil
}

// SumTotalsByCustomer считает сумму на стороне базы.
// NUMERIC читается как текст, чтобы не терять точность.
func (r *orderRepository) SumTotalsByCustomer(ctx context.Context, customerID int64) (decimal.Decimal, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var raw string
	if err := r.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(total), 0)::text FROM tb_orders WHERE customer_id = $1
	`, customerID).Scan(&raw); err != nil {
		return decimal.Zero, domain.StorageError("sum totals", err)
	}

	sum, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, domain.StorageError("parse totals", err)
	}
	return sum, nil
}

func loadOrders(ctx context.Context, tx *sql.Tx, customerID int64, page domain.PageRequest) ([]domain.Order, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, order_id, customer_id, total::text, created_at
		FROM tb_orders
		WHERE customer_id = $1
		ORDER BY seq ASC
		LIMIT $2 OFFSET $3
	`, customerID, page.Size, page.Offset())
	if err != nil {
		return nil, domain.StorageError("list orders", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0, page.Size)
	for rows.Next() {
		var (
			order    domain.Order
			rawTotal string
		)
		if err := rows.Scan(&order.RecordID, &order.OrderID, &order.CustomerID, &rawTotal, &order.CreatedAt); err != nil {
			return nil, domain.StorageError("scan order row", err)
		}
		if order.Total, err = decimal.NewFromString(rawTotal); err != nil {
			return nil, domain.StorageError("parse order total", err)
		}
		order.Items = make([]domain.OrderItem, 0)
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.StorageError("iterate order rows", err)
	}

	return orders, nil
}

// attachItems загружает позиции всех заказов страницы одним запросом.
func attachItems(ctx context.Context, tx *sql.Tx, customerID int64, page domain.PageRequest, orders []domain.Order) error {
	if len(orders) == 0 {
		return nil
	}

	index := make(map[string]int, len(orders))
	for i, order := range orders {
		index[order.RecordID] = i
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT i.record_id, i.product, i.quantity, i.price::text
		FROM tb_order_items i
		JOIN (
			SELECT id, seq
			FROM tb_orders
			WHERE customer_id = $1
			ORDER BY seq ASC
			LIMIT $2 OFFSET $3
		) p ON p.id = i.record_id
		ORDER BY p.seq ASC, i.position ASC
	`, customerID, page.Size, page.Offset())
	if err != nil {
		return domain.StorageError("load order items", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			recordID string
			item     domain.OrderItem
			rawPrice string
		)
		if err := rows.Scan(&recordID, &item.Product, &item.Quantity, &rawPrice); err != nil {
			return domain.StorageError("scan order item", err)
		}
		if item.Price, err = decimal.NewFromString(rawPrice); err != nil {
			return domain.StorageError("parse item price", err)
		}
		pos, ok := index[recordID]
		if !ok {
			return domain.StorageError("load order items", fmt.Errorf("item for unknown record %s", recordID))
		}
		orders[pos].Items = append(orders[pos].Items, item)
	}
	if err := rows.Err(); err != nil {
		return domain.StorageError("iterate order items", err)
	}

	return nil
}

var _ domain.OrderRepository = (*orderRepository)(nil)
