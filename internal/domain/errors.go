package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation — базовая ошибка некорректного события или запроса.
	ErrValidation = errors.New("validation failed")
	// ErrStorage — базовая ошибка недоступности хранилища или неудачной записи/чтения.
	ErrStorage = errors.New("storage error")
)

var (
	// Ошибка отсутствующего кода заказа.
	ErrOrderIDRequired = fmt.Errorf("%w: codigoPedido is required", ErrValidation)
	// Ошибка отсутствующего или некорректного кода клиента.
	ErrCustomerRequired = fmt.Errorf("%w: codigoCliente must be positive", ErrValidation)
	// Ошибка отсутствующего идентификатора товара в позиции.
	ErrItemProductRequired = fmt.Errorf("%w: item produto is required", ErrValidation)
	// Ошибка отрицательного количества товара.
	ErrItemQtyNegative = fmt.Errorf("%w: item quantidade must be non-negative", ErrValidation)
	// Ошибка отрицательной цены позиции. Отсутствующая цена разбирается как ноль и допустима.
	ErrItemPriceNegative = fmt.Errorf("%w: item preco must be non-negative", ErrValidation)
	// ErrAmountOutOfRange — цена или total не помещается в MaxAmountDigits значащих цифр.
	ErrAmountOutOfRange = fmt.Errorf("%w: amount exceeds %d significant digits", ErrValidation, MaxAmountDigits)
	// ErrPageInvalid возвращается при номере страницы меньше 1.
	ErrPageInvalid = fmt.Errorf("%w: page must be greater than zero", ErrValidation)
	// ErrPageSizeInvalid возвращается при размере страницы вне допустимого диапазона.
	ErrPageSizeInvalid = fmt.Errorf("%w: page size must be between 1 and %d", ErrValidation, MaxPageSize)
	// ErrMalformedEvent — тело сообщения не удалось разобрать как OrderCreatedEvent.
	ErrMalformedEvent = fmt.Errorf("%w: malformed order created event", ErrValidation)
)

// IsValidation проверяет, относится ли ошибка к ошибкам валидации.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsStorage проверяет, является ли ошибка ошибкой хранилища.
func IsStorage(err error) bool {
	return errors.Is(err, ErrStorage)
}

// StorageError оборачивает ошибку драйвера хранилища в ErrStorage с указанием операции.
func StorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}
