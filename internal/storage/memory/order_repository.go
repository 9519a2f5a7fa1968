package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/orderms/internal/domain"
)

// orderRepositoryInMemory — in-memory реализация OrderRepository.
// Записи хранятся в порядке вставки, RecordID — монотонный номер.
type orderRepositoryInMemory struct {
	mu      sync.RWMutex
	seq     uint64
	records []domain.Order
	now     func() time.Time
}

// NewOrderRepository возвращает in-memory репозиторий для локальной разработки и тестов.
func NewOrderRepository() domain.OrderRepository {
	return &orderRepositoryInMemory{
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Save добавляет новую запись. Дубликаты OrderID не отклоняются.
func (r *orderRepositoryInMemory) Save(ctx context.Context, order domain.Order) error {
	if err := ctx.Err(); err != nil {
		return domain.StorageError("save order", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	order.RecordID = fmt.Sprintf("%020d", r.seq)
	order.CreatedAt = r.now()
	// Храним копию позиций, чтобы вызывающий код не мог изменить запись после вставки.
	order.Items = cloneItems(order.Items)
	r.records = append(r.records, order)
	return nil
}

// FindByCustomer возвращает страницу заказов клиента в порядке вставки.
func (r *orderRepositoryInMemory) FindByCustomer(ctx context.Context, customerID int64, page domain.PageRequest) (domain.Page[domain.Order], error) {
	if err := ctx.Err(); err != nil {
		return domain.Page[domain.Order]{}, domain.StorageError("find orders", err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]domain.Order, 0)
	for _, order := range r.records {
		if order.CustomerID == customerID {
			matched = append(matched, order)
		}
	}

	total := int64(len(matched))
	offset := page.Offset()
	if offset >= len(matched) {
		return domain.EmptyPage[domain.Order](page, total), nil
	}

	end := offset + page.Size
	if end > len(matched) {
		end = len(matched)
	}

	items := make([]domain.Order, 0, end-offset)
	for _, order := range matched[offset:end] {
		order.Items = cloneItems(order.Items)
		items = append(items, order)
	}

	return domain.Page[domain.Order]{
		Items:         items,
		Number:        page.Number,
		Size:          page.Size,
		TotalElements: total,
	}, nil
}

// SumTotalsByCustomer складывает сохранённые total заказов клиента.
func (r *orderRepositoryInMemory) SumTotalsByCustomer(ctx context.Context, customerID int64) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, domain.StorageError("sum totals", err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	sum := decimal.Zero
	for _, order := range r.records {
		if order.CustomerID == customerID {
			sum = sum.Add(order.Total)
		}
	}
	return sum, nil
}

func cloneItems(items []domain.OrderItem) []domain.OrderItem {
	out := make([]domain.OrderItem, len(items))
	copy(out, items)
	return out
}

var _ domain.OrderRepository = (*orderRepositoryInMemory)(nil)
