package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"option_bot/internal/models"
	"option_bot/internal/modules/config"

	"github.com/bytedance/sonic"
)

// Client talks to the Deribit v2 REST API. Public endpoints go over plain
// GET, private ones over JSON-RPC POST with a bearer token.
type Client struct {
	cfg  *config.Config
	http *http.Client
	base string

	mu     sync.Mutex
	tokens map[string]cachedToken // account name -> token
	rpcID  int64
}

type cachedToken struct {
	token     string
	expiresAt time.Time
}

func NewClient(cfg *config.Config) *Client {
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: 10 * time.Second},
		base:   strings.TrimRight(cfg.Deribit.RestURL, "/"),
		tokens: make(map[string]cachedToken),
	}
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcEnvelope struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// getPublic performs GET /api/v2/<method>?<query> and unmarshals result.
func (c *Client) getPublic(ctx context.Context, method string, query url.Values, out any) error {
	u := c.base + "/api/v2/" + method
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	return decodeEnvelope(resp, method, out)
}

// postPrivate performs a JSON-RPC POST with the account's bearer token.
func (c *Client) postPrivate(ctx context.Context, token, method string, params map[string]any, out any) error {
	c.mu.Lock()
	c.rpcID++
	id := c.rpcID
	c.mu.Unlock()

	payload, err := sonic.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"method":  method,
		"params":  params,
	})
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/api/v2", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	return decodeEnvelope(resp, method, out)
}

func decodeEnvelope(resp *http.Response, method string, out any) error {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}

	var env rpcEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		if resp.StatusCode/100 != 2 {
			return fmt.Errorf("http %d: %s", resp.StatusCode, string(data))
		}
		return fmt.Errorf("decode %s: %w", method, err)
	}

	if env.Error != nil {
		apiErr := &models.APIError{Code: env.Error.Code, Message: env.Error.Message}
		if strings.Contains(env.Error.Message, "not_found") {
			return fmt.Errorf("%s: %w: %w", method, models.ErrNotFound, apiErr)
		}
		return fmt.Errorf("%s: %w", method, apiErr)
	}
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("http %d: %s", resp.StatusCode, string(data))
	}

	if out == nil {
		return nil
	}
	if err := sonic.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("decode %s result: %w; body=%s", method, err, string(data))
	}
	return nil
}
