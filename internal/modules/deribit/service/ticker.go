package service

import (
	"context"
	"fmt"
	"net/url"

	"option_bot/internal/models"
)

// Ticker fetches the live book top for one instrument.
func (c *Client) Ticker(ctx context.Context, instrument string) (models.Quote, error) {
	q := url.Values{}
	q.Set("instrument_name", instrument)

	var payload struct {
		InstrumentName string  `json:"instrument_name"`
		BestBidPrice   float64 `json:"best_bid_price"`
		BestAskPrice   float64 `json:"best_ask_price"`
		BestBidAmount  float64 `json:"best_bid_amount"`
		BestAskAmount  float64 `json:"best_ask_amount"`
		MarkPrice      float64 `json:"mark_price"`
		IndexPrice     float64 `json:"index_price"`
		LastPrice      float64 `json:"last_price"`
		Greeks         struct {
			Delta float64 `json:"delta"`
		} `json:"greeks"`
	}
	if err := c.getPublic(ctx, "public/ticker", q, &payload); err != nil {
		return models.Quote{}, fmt.Errorf("Client.Ticker %s: %w", instrument, err)
	}

	return models.Quote{
		Instrument:    payload.InstrumentName,
		BestBid:       payload.BestBidPrice,
		BestAsk:       payload.BestAskPrice,
		BestBidAmount: payload.BestBidAmount,
		BestAskAmount: payload.BestAskAmount,
		MarkPrice:     payload.MarkPrice,
		IndexPrice:    payload.IndexPrice,
		LastPrice:     payload.LastPrice,
		Delta:         payload.Greeks.Delta,
	}, nil
}
