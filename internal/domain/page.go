package domain

import "math"

const (
	// DefaultPageSize используется, когда размер страницы не задан.
	DefaultPageSize = 10
	// MaxPageSize ограничивает размер одной страницы.
	MaxPageSize = 500
)

// PageRequest задаёт страницу выборки. Number начинается с 1.
type PageRequest struct {
	Number int
	Size   int
}

// Validate проверяет номер и размер страницы.
func (p PageRequest) Validate() error {
	if p.Number < 1 {
		return ErrPageInvalid
	}
	if p.Size < 1 || p.Size > MaxPageSize {
		return ErrPageSizeInvalid
	}
	return nil
}

// Offset возвращает количество записей, пропускаемых до начала страницы.
// При переполнении int возвращает math.MaxInt: такая страница всегда за концом выборки.
func (p PageRequest) Offset() int {
	if p.Number < 1 || p.Size < 1 {
		return 0
	}
	if p.Number-1 > math.MaxInt/p.Size {
		return math.MaxInt
	}
	return (p.Number - 1) * p.Size
}

// Page — ограниченный срез выборки и метаданные для расчёта числа страниц.
type Page[T any] struct {
	Items         []T
	Number        int
	Size          int
	TotalElements int64
}

// TotalPages возвращает общее число страниц при текущем размере.
func (p Page[T]) TotalPages() int {
	if p.Size <= 0 || p.TotalElements <= 0 {
		return 0
	}
	size := int64(p.Size)
	return int((p.TotalElements + size - 1) / size)
}

// MapPage преобразует элементы страницы, сохраняя метаданные.
func MapPage[T, R any](page Page[T], fn func(T) R) Page[R] {
	items := make([]R, 0, len(page.Items))
	for _, item := range page.Items {
		items = append(items, fn(item))
	}
	return Page[R]{
		Items:         items,
		Number:        page.Number,
		Size:          page.Size,
		TotalElements: page.TotalElements,
	}
}

// EmptyPage возвращает пустую страницу для запроса.
func EmptyPage[T any](req PageRequest, total int64) Page[T] {
	return Page[T]{
		Items:         []T{},
		Number:        req.Number,
		Size:          req.Size,
		TotalElements: total,
	}
}
