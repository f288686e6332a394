package service

import (
	"context"
	"fmt"

	"option_bot/internal/models"
)

const (
	OrderTypeLimit  = "limit"
	OrderTypeMarket = "market"
)

type orderPayload struct {
	OrderID        string  `json:"order_id"`
	InstrumentName string  `json:"instrument_name"`
	Direction      string  `json:"direction"`
	Price          float64 `json:"price"`
	Amount         float64 `json:"amount"`
	FilledAmount   float64 `json:"filled_amount"`
	AveragePrice   float64 `json:"average_price"`
	OrderState     string  `json:"order_state"`
	Label          string  `json:"label"`
}

func (p orderPayload) toModel() models.OrderHandle {
	return models.OrderHandle{
		OrderID:      p.OrderID,
		Instrument:   p.InstrumentName,
		Direction:    models.Direction(p.Direction),
		Price:        p.Price,
		Amount:       p.Amount,
		FilledAmount: p.FilledAmount,
		AveragePrice: p.AveragePrice,
		State:        p.OrderState,
		Label:        p.Label,
	}
}

// PlaceOrder submits private/buy or private/sell. Price is ignored for
// market orders.
func (c *Client) PlaceOrder(
	ctx context.Context,
	token string,
	instrument string,
	direction models.Direction,
	amount float64,
	orderType string,
	price float64,
	label string,
) (models.OrderHandle, error) {
	if amount <= 0 {
		return models.OrderHandle{}, fmt.Errorf("Client.PlaceOrder %s: amount <= 0", instrument)
	}

	params := map[string]any{
		"instrument_name": instrument,
		"amount":          amount,
		"type":            orderType,
	}
	if orderType == OrderTypeLimit {
		if price <= 0 {
			return models.OrderHandle{}, fmt.Errorf("Client.PlaceOrder %s: limit price <= 0", instrument)
		}
		params["price"] = price
	}
	if label != "" {
		params["label"] = label
	}

	method := "private/buy"
	if direction == models.Sell {
		method = "private/sell"
	}

	var result struct {
		Order orderPayload `json:"order"`
	}
	if err := c.postPrivate(ctx, token, method, params, &result); err != nil {
		return models.OrderHandle{}, fmt.Errorf("Client.PlaceOrder %s %s: %w", method, instrument, err)
	}
	if result.Order.OrderID == "" {
		return models.OrderHandle{}, fmt.Errorf("Client.PlaceOrder %s: empty order_id", instrument)
	}
	return result.Order.toModel(), nil
}

// EditOrder re-prices a resting order in place (amount unchanged semantics
// are the caller's responsibility; the venue requires both fields).
func (c *Client) EditOrder(ctx context.Context, token, orderID string, amount, price float64) (models.OrderHandle, error) {
	var result struct {
		Order orderPayload `json:"order"`
	}
	err := c.postPrivate(ctx, token, "private/edit", map[string]any{
		"order_id": orderID,
		"amount":   amount,
		"price":    price,
	}, &result)
	if err != nil {
		return models.OrderHandle{}, fmt.Errorf("Client.EditOrder %s: %w", orderID, err)
	}
	return result.Order.toModel(), nil
}

// OrderState fetches the current state of one order.
func (c *Client) OrderState(ctx context.Context, token, orderID string) (models.OrderHandle, error) {
	var payload orderPayload
	err := c.postPrivate(ctx, token, "private/get_order_state", map[string]any{
		"order_id": orderID,
	}, &payload)
	if err != nil {
		return models.OrderHandle{}, fmt.Errorf("Client.OrderState %s: %w", orderID, err)
	}
	return payload.toModel(), nil
}

// OpenOrders lists resting orders for one instrument.
func (c *Client) OpenOrders(ctx context.Context, token, instrument string) ([]models.OrderHandle, error) {
	var payload []orderPayload
	err := c.postPrivate(ctx, token, "private/get_open_orders_by_instrument", map[string]any{
		"instrument_name": instrument,
	}, &payload)
	if err != nil {
		return nil, fmt.Errorf("Client.OpenOrders %s: %w", instrument, err)
	}

	out := make([]models.OrderHandle, 0, len(payload))
	for _, p := range payload {
		out = append(out, p.toModel())
	}
	return out, nil
}
