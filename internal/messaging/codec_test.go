package messaging

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/orderms/internal/domain"
)

func TestDecodeOrderCreated(t *testing.T) {
	body := []byte(`{
		"codigoPedido": "1001",
		"codigoCliente": 1,
		"itens": [
			{"produto": "lapis", "quantidade": 3, "preco": 10.55},
			{"produto": "caderno", "quantidade": 2, "preco": "3.10"}
		]
	}`)

	event, err := DecodeOrderCreated(body)
	require.NoError(t, err)
	require.Equal(t, "1001", event.OrderID)
	require.EqualValues(t, 1, event.CustomerID)
	require.Len(t, event.Items, 2)
	require.Equal(t, "lapis", event.Items[0].Product)
	require.EqualValues(t, 3, event.Items[0].Quantity)
	require.True(t, event.Items[0].Price.Equal(decimal.RequireFromString("10.55")))
	require.True(t, event.Items[1].Price.Equal(decimal.RequireFromString("3.10")))
}

func TestDecodeOrderCreated_Malformed(t *testing.T) {
	cases := map[string]string{
		"empty":          "",
		"whitespace":     "   ",
		"truncated":      `{"codigoPedido": "1"`,
		"array":          `[1,2]`,
		"null":           `null`,
		"wrong type":     `{"codigoCliente": "abc"}`,
		"bad price":      `{"itens": [{"preco": "ten"}]}`,
		"fractional qty": `{"itens": [{"quantidade": 1.5}]}`,
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeOrderCreated([]byte(body))
			require.ErrorIs(t, err, domain.ErrMalformedEvent)
			require.True(t, domain.IsValidation(err))
		})
	}
}

func TestEncodeDecodeOrderCreated(t *testing.T) {
	event := domain.OrderCreatedEvent{
		OrderID:    "42",
		CustomerID: 7,
		Items: []domain.OrderItemEvent{
			{Product: "p", Quantity: 1, Price: decimal.RequireFromString("0.10")},
		},
	}

	body, err := EncodeOrderCreated(event)
	require.NoError(t, err)
	require.Contains(t, string(body), `"codigoPedido":"42"`)

	decoded, err := DecodeOrderCreated(body)
	require.NoError(t, err)
	require.Equal(t, event.OrderID, decoded.OrderID)
	require.True(t, decoded.Items[0].Price.Equal(event.Items[0].Price))
}

func TestHandle(t *testing.T) {
	var got domain.OrderCreatedEvent
	ingestor := IngestorFunc(func(_ context.Context, event domain.OrderCreatedEvent) error {
		got = event
		return nil
	})

	require.NoError(t, Handle(context.Background(), ingestor, []byte(`{"codigoPedido":"1","codigoCliente":2,"itens":[]}`)))
	require.Equal(t, "1", got.OrderID)

	called := false
	failing := IngestorFunc(func(context.Context, domain.OrderCreatedEvent) error {
		called = true
		return errors.New("boom")
	})
	err := Handle(context.Background(), failing, []byte("not json"))
	require.ErrorIs(t, err, domain.ErrMalformedEvent)
	require.False(t, called, "malformed body must not reach the ingestor")
}

func TestDecodeOrderCreated_MissingPriceIsZero(t *testing.T) {
	event, err := DecodeOrderCreated([]byte(`{"codigoPedido":"7","codigoCliente":2,"itens":[{"produto":"brinde","quantidade":1}]}`))
	require.NoError(t, err)
	require.Len(t, event.Items, 1)
	require.True(t, event.Items[0].Price.IsZero())
}
