package service

import (
	"context"
	"encoding/json"
	"strings"

	"option_bot/internal/models"
	"option_bot/pkg/logger"

	"github.com/gorilla/websocket"
)

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn, out chan<- models.Quote) {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			logger.Error("[WS] read error: %v", err)
			return
		}

		var frame struct {
			Method string `json:"method"`
			Params struct {
				Channel string `json:"channel"`
				Data    struct {
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
				} `json:"data"`
			} `json:"params"`
		}
		if err := json.Unmarshal(msg, &frame); err != nil {
			continue
		}
		if frame.Method != "subscription" || !strings.HasPrefix(frame.Params.Channel, "ticker.") {
			continue
		}

		data := frame.Params.Data
		if data.InstrumentName == "" {
			continue
		}

		quote := models.Quote{
			Instrument:    data.InstrumentName,
			BestBid:       data.BestBidPrice,
			BestAsk:       data.BestAskPrice,
			BestBidAmount: data.BestBidAmount,
			BestAskAmount: data.BestAskAmount,
			MarkPrice:     data.MarkPrice,
			IndexPrice:    data.IndexPrice,
			LastPrice:     data.LastPrice,
			Delta:         data.Greeks.Delta,
		}

		c.mu.Lock()
		c.latest[quote.Instrument] = quote
		c.mu.Unlock()

		select {
		case out <- quote:
		case <-ctx.Done():
			return
		default:
			// slow consumer: keep latest in the cache, drop the push
		}
	}
}
