package orders

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/orderms/internal/domain"
)

func sampleEvent() domain.OrderCreatedEvent {
	return domain.OrderCreatedEvent{
		OrderID:    "1001",
		CustomerID: 1,
		Items: []domain.OrderItemEvent{
			{Product: "lapis", Quantity: 3, Price: decimal.RequireFromString("10.55")},
			{Product: "caderno", Quantity: 2, Price: decimal.RequireFromString("3.10")},
		},
	}
}

func TestTransform_ExactFractionalTotal(t *testing.T) {
	order, err := Transform(sampleEvent())
	require.NoError(t, err)

	require.Equal(t, "1001", order.OrderID)
	require.EqualValues(t, 1, order.CustomerID)
	require.Len(t, order.Items, 2)
	require.True(t, order.Total.Equal(decimal.RequireFromString("37.85")), "got %s", order.Total)
}

func TestTransform_PreservesItemOrder(t *testing.T) {
	order, err := Transform(sampleEvent())
	require.NoError(t, err)

	require.Equal(t, "lapis", order.Items[0].Product)
	require.EqualValues(t, 3, order.Items[0].Quantity)
	require.True(t, order.Items[0].Price.Equal(decimal.RequireFromString("10.55")))
	require.Equal(t, "caderno", order.Items[1].Product)
}

func TestTransform_EmptyItemsGiveZeroTotal(t *testing.T) {
	event := sampleEvent()
	event.Items = nil

	order, err := Transform(event)
	require.NoError(t, err)
	require.True(t, order.Total.IsZero())
	require.NotNil(t, order.Items)
	require.Empty(t, order.Items)
}

func TestTransform_IsDeterministic(t *testing.T) {
	event := sampleEvent()

	first, err := Transform(event)
	require.NoError(t, err)
	second, err := Transform(event)
	require.NoError(t, err)

	require.Equal(t, first, second)
}

func TestTransform_ManyItemsNoDrift(t *testing.T) {
	event := domain.OrderCreatedEvent{OrderID: "bulk", CustomerID: 2}
	for i := 0; i < 1000; i++ {
		event.Items = append(event.Items, domain.OrderItemEvent{
			Product:  "p",
			Quantity: 1,
			Price:    decimal.RequireFromString("0.10"),
		})
	}

	order, err := Transform(event)
	require.NoError(t, err)
	require.True(t, order.Total.Equal(decimal.NewFromInt(100)), "got %s", order.Total)
}

func TestTransform_ValidationErrors(t *testing.T) {
	cases := []struct {
		name string
		mut  func(e *domain.OrderCreatedEvent)
		want error
	}{
		{
			name: "missing order id",
			mut:  func(e *domain.OrderCreatedEvent) { e.OrderID = "  " },
			want: domain.ErrOrderIDRequired,
		},
		{
			name: "missing customer id",
			mut:  func(e *domain.OrderCreatedEvent) { e.CustomerID = 0 },
			want: domain.ErrCustomerRequired,
		},
		{
			name: "negative customer id",
			mut:  func(e *domain.OrderCreatedEvent) { e.CustomerID = -5 },
			want: domain.ErrCustomerRequired,
		},
		{
			name: "missing product",
			mut:  func(e *domain.OrderCreatedEvent) { e.Items[1].Product = "" },
			want: domain.ErrItemProductRequired,
		},
		{
			name: "negative quantity",
			mut:  func(e *domain.OrderCreatedEvent) { e.Items[0].Quantity = -1 },
			want: domain.ErrItemQtyNegative,
		},
		{
			name: "negative price",
			mut:  func(e *domain.OrderCreatedEvent) { e.Items[0].Price = decimal.RequireFromString("-0.01") },
			want: domain.ErrItemPriceNegative,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			event := sampleEvent()
			tc.mut(&event)

			_, err := Transform(event)
			require.Error(t, err)
			require.True(t, errors.Is(err, tc.want), "unexpected error: %v", err)
			require.True(t, domain.IsValidation(err))
		})
	}
}

func TestTransform_ZeroQuantityAndPriceAllowed(t *testing.T) {
	event := sampleEvent()
	event.Items[0].Quantity = 0
	event.Items[1].Price = decimal.Zero

	order, err := Transform(event)
	require.NoError(t, err)
	require.True(t, order.Total.IsZero(), "got %s", order.Total)
}

func TestTransform_RejectsAmountsBeyondDecimal128(t *testing.T) {
	wide := sampleEvent()
	wide.Items[0].Price = decimal.RequireFromString("0.12345678901234567890123456789012345678")

	_, err := Transform(wide)
	require.True(t, errors.Is(err, domain.ErrAmountOutOfRange), "unexpected error: %v", err)
	require.True(t, domain.IsValidation(err))

	mixed := sampleEvent()
	mixed.Items[0].Quantity = 1
	mixed.Items[0].Price = decimal.RequireFromString("1234567890123456789012345678901234")
	mixed.Items[1].Quantity = 1
	mixed.Items[1].Price = decimal.RequireFromString("0.5")

	_, err = Transform(mixed)
	require.True(t, errors.Is(err, domain.ErrAmountOutOfRange), "total must be checked too: %v", err)
	require.Contains(t, err.Error(), "total")
}
