package service

import (
	"context"
	"sync"
	"time"

	"option_bot/internal/models"
	"option_bot/internal/modules/config"
	"option_bot/pkg/logger"

	"github.com/gorilla/websocket"
)

// Client streams public ticker updates over one websocket connection.
// Used by the watcher to observe live delta without polling REST; the
// REST ticker stays the source of truth at decision points.
type Client struct {
	cfg      *config.Config
	wsDialer *websocket.Dialer

	mu     sync.RWMutex
	latest map[string]models.Quote // instrument -> last seen quote
}

func NewClient(cfg *config.Config) *Client {
	return &Client{
		cfg:      cfg,
		wsDialer: &websocket.Dialer{},
		latest:   make(map[string]models.Quote),
	}
}

// Latest returns the most recent streamed quote for an instrument, if any.
func (c *Client) Latest(instrument string) (models.Quote, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	q, ok := c.latest[instrument]
	return q, ok
}

// Forget drops cached quotes for instruments no longer watched.
func (c *Client) Forget(instruments ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, name := range instruments {
		delete(c.latest, name)
	}
}

// Stream subscribes to ticker channels for the given instruments and
// pushes quotes until ctx is done. Reconnects with a short backoff.
func (c *Client) Stream(ctx context.Context, instruments []string, out chan<- models.Quote) {
	defer close(out)

	if len(instruments) == 0 {
		return
	}

	channels := make([]string, 0, len(instruments))
	for _, name := range instruments {
		channels = append(channels, "ticker."+name+".100ms")
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		logger.Info("[WS] connect %s, %d channels", c.cfg.Deribit.WsURL, len(channels))
		conn, _, err := c.wsDialer.DialContext(ctx, c.cfg.Deribit.WsURL, nil)
		if err != nil {
			logger.Error("[WS] dial error: %v", err)
			time.Sleep(time.Second)
			continue
		}

		sub := map[string]any{
			"jsonrpc": "2.0",
			"method":  "public/subscribe",
			"params":  map[string]any{"channels": channels},
		}
		if err := conn.WriteJSON(sub); err != nil {
			logger.Error("[WS] subscribe error: %v", err)
			_ = conn.Close()
			continue
		}

		// keepalive, otherwise the venue drops idle connections
		stop := make(chan struct{})
		go func() {
			t := time.NewTicker(20 * time.Second)
			defer t.Stop()
			for {
				select {
				case <-stop:
					return
				case <-t.C:
					_ = conn.WriteJSON(map[string]any{
						"jsonrpc": "2.0",
						"method":  "public/test",
					})
				}
			}
		}()

		// an idle read blocks past cancellation unless the conn is closed
		go func() {
			select {
			case <-ctx.Done():
				_ = conn.Close()
			case <-stop:
			}
		}()

		c.readLoop(ctx, conn, out)
		close(stop)
		_ = conn.Close()

		select {
		case <-ctx.Done():
			return
		default:
			time.Sleep(time.Second)
		}
	}
}
