package service

import (
	"context"
	"fmt"
	"math"

	"option_bot/internal/models"
)

// Positions lists live positions for a currency/kind. Size comes back
// signed from the venue; we normalize to magnitude + direction.
func (c *Client) Positions(ctx context.Context, token, currency, kind string) ([]models.Position, error) {
	var payload []struct {
		InstrumentName     string  `json:"instrument_name"`
		Size               float64 `json:"size"`
		Direction          string  `json:"direction"`
		AveragePrice       float64 `json:"average_price"`
		MarkPrice          float64 `json:"mark_price"`
		IndexPrice         float64 `json:"index_price"`
		Delta              float64 `json:"delta"`
		TotalProfitLoss    float64 `json:"total_profit_loss"`
		RealizedProfitLoss float64 `json:"realized_profit_loss"`
	}
	err := c.postPrivate(ctx, token, "private/get_positions", map[string]any{
		"currency": currency,
		"kind":     kind,
	}, &payload)
	if err != nil {
		return nil, fmt.Errorf("Client.Positions %s/%s: %w", currency, kind, err)
	}

	out := make([]models.Position, 0, len(payload))
	for _, p := range payload {
		if p.Size == 0 {
			continue
		}
		dir := models.Direction(p.Direction)
		if dir != models.Buy && dir != models.Sell {
			if p.Size > 0 {
				dir = models.Buy
			} else {
				dir = models.Sell
			}
		}
		out = append(out, models.Position{
			Instrument:   p.InstrumentName,
			Size:         math.Abs(p.Size),
			Direction:    dir,
			AveragePrice: p.AveragePrice,
			MarkPrice:    p.MarkPrice,
			IndexPrice:   p.IndexPrice,
			Delta:        p.Delta,
			TotalPnL:     p.TotalProfitLoss,
			RealizedPnL:  p.RealizedProfitLoss,
		})
	}
	return out, nil
}
