package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/TiggieF/tokenised-lse-sub000/pkg/model"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	h := NewHub(nil)
	go h.Run(ctx)
	return h
}

func dial(t *testing.T, h *Hub, query string) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWS(h, w, r)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	return conn
}

func readMsg(t *testing.T, conn *websocket.Conn, v any) string {
	t.Helper()
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var head struct {
		Type string `json:"type"`
	}
	require.NoError(t, json.Unmarshal(raw, &head))
	if v != nil {
		require.NoError(t, json.Unmarshal(raw, v))
	}
	return head.Type
}

func TestPublishTradeToSubscribers(t *testing.T) {
	h := startHub(t)
	conn := dial(t, h, "/?symbols=ACME")
	require.Equal(t, "subscribed", readMsg(t, conn, nil))

	tr := model.Trade{
		Side:      model.ASK,
		Price:     10_000,
		Quantity:  model.Units(2),
		Notional:  model.Units(200),
		Timestamp: time.UnixMilli(1_700_000_000_000),
	}
	h.PublishTrade(FromTrade("VOD", tr))
	h.PublishTrade(FromTrade("ACME", tr))

	var msg struct {
		Trade Trade `json:"trade"`
	}
	require.Equal(t, "trade", readMsg(t, conn, &msg))
	assert.Equal(t, "ACME", msg.Trade.Symbol)
	assert.Equal(t, "sell", msg.Trade.Side)
	assert.Equal(t, "2", msg.Trade.Qty)
	assert.Equal(t, "200", msg.Trade.Notional)
	assert.EqualValues(t, 1, msg.Trade.Seq)

	clients, _ := h.Stats()
	assert.Equal(t, 1, clients)
}

func TestSubscribeCommand(t *testing.T) {
	h := startHub(t)
	conn := dial(t, h, "/")
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "subscribe", "symbol": "ACME"}))

	var ackMsg struct {
		Symbol string `json:"symbol"`
	}
	require.Equal(t, "subscribed", readMsg(t, conn, &ackMsg))
	assert.Equal(t, "ACME", ackMsg.Symbol)

	h.PublishOracleBuy(FromOracleBuy(model.OracleQuoteBuy{
		Symbol:         "ACME",
		QtyBought:      model.Units(1),
		QuoteSpent:     model.Units(100),
		OraclePrice:    10_000,
		OracleMaxPrice: 10_100,
		Timestamp:      time.UnixMilli(1),
	}))

	var msg struct {
		Buy OracleBuy `json:"oracleBuy"`
	}
	require.Equal(t, "oracleBuy", readMsg(t, conn, &msg))
	assert.Equal(t, "100", msg.Buy.Spent)
	assert.Equal(t, model.Price(10_100), msg.Buy.OracleMaxPrice)
}

func TestSequencerPerTopic(t *testing.T) {
	s := newSequencer()
	assert.EqualValues(t, 1, s.nextSeq("ACME"))
	assert.EqualValues(t, 2, s.nextSeq("ACME"))
	assert.EqualValues(t, 1, s.nextSeq("VOD"))
}
