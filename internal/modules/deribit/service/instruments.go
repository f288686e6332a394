package service

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"option_bot/internal/models"
)

type instrumentPayload struct {
	InstrumentName      string  `json:"instrument_name"`
	BaseCurrency        string  `json:"base_currency"`
	QuoteCurrency       string  `json:"quote_currency"`
	SettlementCurrency  string  `json:"settlement_currency"`
	OptionType          string  `json:"option_type"`
	Strike              float64 `json:"strike"`
	ExpirationTimestamp int64   `json:"expiration_timestamp"` // ms
	TickSize            float64 `json:"tick_size"`
	TickSizeSteps       []struct {
		AbovePrice float64 `json:"above_price"`
		TickSize   float64 `json:"tick_size"`
	} `json:"tick_size_steps"`
	MinTradeAmount float64 `json:"min_trade_amount"`
	ContractSize   float64 `json:"contract_size"`
	IsActive       bool    `json:"is_active"`
}

func (p instrumentPayload) toModel() models.Instrument {
	inst := models.Instrument{
		Name:               p.InstrumentName,
		BaseCurrency:       p.BaseCurrency,
		QuoteCurrency:      p.QuoteCurrency,
		SettlementCurrency: p.SettlementCurrency,
		OptionType:         p.OptionType,
		Strike:             p.Strike,
		Expiry:             time.UnixMilli(p.ExpirationTimestamp).UTC(),
		TickSize:           p.TickSize,
		MinTradeAmount:     p.MinTradeAmount,
		ContractSize:       p.ContractSize,
	}
	for _, s := range p.TickSizeSteps {
		inst.TickSteps = append(inst.TickSteps, models.TickStep{
			AbovePrice: s.AbovePrice,
			Tick:       s.TickSize,
		})
	}
	return inst
}

// Instruments lists live instruments for a currency and kind.
func (c *Client) Instruments(ctx context.Context, currency, kind string) ([]models.Instrument, error) {
	q := url.Values{}
	q.Set("currency", currency)
	q.Set("kind", kind)
	q.Set("expired", "false")

	var payload []instrumentPayload
	if err := c.getPublic(ctx, "public/get_instruments", q, &payload); err != nil {
		return nil, fmt.Errorf("Client.Instruments %s/%s: %w", currency, kind, err)
	}

	out := make([]models.Instrument, 0, len(payload))
	for _, p := range payload {
		if !p.IsActive {
			continue
		}
		out = append(out, p.toModel())
	}
	return out, nil
}

// Instrument fetches metadata for a single instrument by name.
func (c *Client) Instrument(ctx context.Context, name string) (models.Instrument, error) {
	q := url.Values{}
	q.Set("instrument_name", name)

	var payload instrumentPayload
	if err := c.getPublic(ctx, "public/get_instrument", q, &payload); err != nil {
		return models.Instrument{}, fmt.Errorf("Client.Instrument %s: %w", name, err)
	}
	if payload.InstrumentName == "" {
		return models.Instrument{}, fmt.Errorf("Client.Instrument %s: %w", name, models.ErrNotFound)
	}
	return payload.toModel(), nil
}
