package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"option_bot/internal/models"
	"option_bot/internal/modules/config"
	"option_bot/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	_ = logger.Init()
	os.Exit(m.Run())
}

func TestLatestAndForget(t *testing.T) {
	c := NewClient(&config.Config{})
	c.latest["BTC-26DEC25-50000-C"] = models.Quote{Instrument: "BTC-26DEC25-50000-C", Delta: 0.4}

	q, ok := c.Latest("BTC-26DEC25-50000-C")
	require.True(t, ok)
	assert.Equal(t, 0.4, q.Delta)

	c.Forget("BTC-26DEC25-50000-C")
	_, ok = c.Latest("BTC-26DEC25-50000-C")
	assert.False(t, ok)
}

func TestStreamStopsOnCancelWhileIdle(t *testing.T) {
	upgrader := websocket.Upgrader{}
	subscribed := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		close(subscribed)
		// stay silent: no ticker frames until the client goes away
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	cfg := &config.Config{}
	cfg.Deribit.WsURL = "ws" + strings.TrimPrefix(srv.URL, "http")

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan models.Quote, 1)
	done := make(chan struct{})
	go func() {
		NewClient(cfg).Stream(ctx, []string{"BTC-26DEC25-50000-C"}, out)
		close(done)
	}()

	select {
	case <-subscribed:
	case <-time.After(2 * time.Second):
		t.Fatal("server never saw the subscription")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream kept running on an idle connection after cancel")
	}
}
