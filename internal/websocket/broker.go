package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/TiggieF/tokenised-lse-sub000/pkg/model"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait           = 10 * time.Second
	pongWait            = 60 * time.Second
	pingPeriod          = (pongWait * 9) / 10
	maxMessageSize      = 512 * 1024 // 512 KB
	defaultSendBuf      = 256
	defaultPublishBuf   = 4096
	maxConsecutiveDrops = 50
)

// Trade is the message payload for a running trade. Amounts are decimal
// strings.
type Trade struct {
	Symbol   string      `json:"symbol"`
	Price    model.Price `json:"price"` // cents
	Qty      string      `json:"qty"`
	Notional string      `json:"notional"`
	Side     string      `json:"side"` // taker side, "buy" / "sell"
	Ts       int64       `json:"ts"`   // unix ms
	Seq      uint64      `json:"seq,omitempty"`
}

func FromTrade(symbol string, t model.Trade) Trade {
	side := "buy"
	if t.Side == model.ASK {
		side = "sell"
	}
	return Trade{
		Symbol:   symbol,
		Price:    t.Price,
		Qty:      model.FormatUnits(t.Quantity),
		Notional: model.FormatUnits(t.Notional),
		Side:     side,
		Ts:       t.Timestamp.UnixMilli(),
	}
}

// OracleBuy is the message payload for an oracle-bounded market buy.
type OracleBuy struct {
	Symbol         string      `json:"symbol"`
	Qty            string      `json:"qty"`
	Spent          string      `json:"spent"`
	OraclePrice    model.Price `json:"oraclePrice"`
	OracleMaxPrice model.Price `json:"oracleMaxPrice"`
	Ts             int64       `json:"ts"`
	Seq            uint64      `json:"seq,omitempty"`
}

func FromOracleBuy(ev model.OracleQuoteBuy) OracleBuy {
	return OracleBuy{
		Symbol:         ev.Symbol,
		Qty:            model.FormatUnits(ev.QtyBought),
		Spent:          model.FormatUnits(ev.QuoteSpent),
		OraclePrice:    ev.OraclePrice,
		OracleMaxPrice: ev.OracleMaxPrice,
		Ts:             ev.Timestamp.UnixMilli(),
	}
}

func ack(typ, topic string) []byte {
	b, _ := json.Marshal(struct {
		Type   string `json:"type"`
		Symbol string `json:"symbol"`
	}{typ, topic})
	return b
}

type publishMsg struct {
	Topic string
	Data  []byte
}

type subscription struct {
	client *Client
	topic  string
}

// Hub manages clients, subscriptions and publishes.
type Hub struct {
	register    chan *Client
	unregister  chan *Client
	subscribe   chan subscription
	unsubscribe chan subscription
	publish     chan publishMsg

	clients map[*Client]struct{}
	topics  map[string]map[*Client]struct{}
	seq     *sequencer

	// Configuration
	sendBuf int

	// simple metrics
	clientCount  int64
	publishDrops uint64

	logger *zap.SugaredLogger
}

type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	subscribed map[string]struct{}

	// consecutive drops counter: if it grows too large we evict the client
	drops int
}

// NewHub creates a Hub with reasonable defaults. Provide a logger or nil.
func NewHub(logger *zap.SugaredLogger) *Hub {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Hub{
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		subscribe:   make(chan subscription),
		unsubscribe: make(chan subscription),
		publish:     make(chan publishMsg, defaultPublishBuf),
		clients:     make(map[*Client]struct{}),
		topics:      make(map[string]map[*Client]struct{}),
		seq:         newSequencer(),
		sendBuf:     defaultSendBuf,
		logger:      logger,
	}
}

// remove drops c from every topic and closes its send channel.
func (h *Hub) remove(c *Client) {
	delete(h.clients, c)
	atomic.StoreInt64(&h.clientCount, int64(len(h.clients)))
	for t := range c.subscribed {
		if subs := h.topics[t]; subs != nil {
			delete(subs, c)
			if len(subs) == 0 {
				delete(h.topics, t)
			}
		}
	}
	close(c.send)
}

func (h *Hub) deliver(c *Client, data []byte) {
	select {
	case c.send <- data:
		c.drops = 0
	default:
		atomic.AddUint64(&h.publishDrops, 1)
		c.drops++
		if c.drops > maxConsecutiveDrops {
			h.logger.Warnw("evicting slow client", "drops", c.drops)
			h.remove(c)
			_ = c.conn.Close()
		}
	}
}

// Run runs the hub event loop. Call as: go hub.Run(ctx).
// The hub stops when ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("ws hub started")
	for {
		select {
		case c := <-h.register:
			h.clients[c] = struct{}{}
			atomic.StoreInt64(&h.clientCount, int64(len(h.clients)))

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				h.remove(c)
			}

		case sub := <-h.subscribe:
			if _, ok := h.clients[sub.client]; !ok {
				continue
			}
			subs := h.topics[sub.topic]
			if subs == nil {
				subs = make(map[*Client]struct{})
				h.topics[sub.topic] = subs
			}
			subs[sub.client] = struct{}{}
			sub.client.subscribed[sub.topic] = struct{}{}
			h.deliver(sub.client, ack("subscribed", sub.topic))

		case sub := <-h.unsubscribe:
			if subs := h.topics[sub.topic]; subs != nil {
				delete(subs, sub.client)
				if len(subs) == 0 {
					delete(h.topics, sub.topic)
				}
			}
			delete(sub.client.subscribed, sub.topic)

		case p := <-h.publish:
			if p.Topic == "" {
				// broadcast to all clients
				for c := range h.clients {
					h.deliver(c, p.Data)
				}
			} else {
				// publish to a topic (symbol)
				for c := range h.topics[p.Topic] {
					h.deliver(c, p.Data)
				}
			}

		case <-ctx.Done():
			h.logger.Info("ws hub shutting down")
			// clean up clients
			for c := range h.clients {
				close(c.send)
				_ = c.conn.Close()
				delete(h.clients, c)
			}
			atomic.StoreInt64(&h.clientCount, 0)
			return
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// In prod, check origin and require auth.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWS upgrades the request and registers a client.
// You can pass initial symbols via ?symbols=ACME,VOD
func ServeWS(h *Hub, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warnw("websocket upgrade failed", "error", err)
		return
	}

	client := &Client{
		hub:        h,
		conn:       conn,
		send:       make(chan []byte, h.sendBuf),
		subscribed: make(map[string]struct{}),
	}

	var initial []string
	if s := r.URL.Query().Get("symbols"); s != "" {
		for _, sym := range strings.Split(s, ",") {
			sym = strings.TrimSpace(sym)
			if sym == "" {
				continue
			}
			initial = append(initial, sym)
		}
	}

	// register then register subscriptions
	h.register <- client
	for _, sym := range initial {
		h.subscribe <- subscription{client: client, topic: sym}
	}

	// start reader and writer
	go client.writePump()
	go client.readPump()
}

// readPump reads control/command messages from the client
// and turns them into subscribe/unsubscribe requests.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			) {
				c.hub.logger.Warnw("websocket read error", "error", err)
			}
			return
		}

		var cmd struct {
			Type   string `json:"type"`   // "subscribe" | "unsubscribe"
			Symbol string `json:"symbol"` // e.g. "ACME"
		}
		if err := json.Unmarshal(message, &cmd); err != nil {
			c.hub.logger.Debugw("invalid client msg", "error", err)
			continue
		}

		switch cmd.Type {
		case "subscribe":
			if cmd.Symbol != "" {
				c.hub.subscribe <- subscription{client: c, topic: cmd.Symbol}
			}
		case "unsubscribe":
			if cmd.Symbol != "" {
				c.hub.unsubscribe <- subscription{client: c, topic: cmd.Symbol}
			}
		}
	}
}

// writePump serializes all writes to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// hub closed the channel
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				)
				return
			}

			// one message per frame so clients can decode each as JSON
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) enqueue(topic string, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		h.logger.Errorw("marshal ws message", "error", err)
		return
	}
	select {
	case h.publish <- publishMsg{Topic: topic, Data: b}:
	default:
		// avoid blocking producers; track drops
		atomic.AddUint64(&h.publishDrops, 1)
		h.logger.Warnw("publish channel full, dropping message", "topic", topic)
	}
}

// PublishTrade publishes a trade to subscribers of t.Symbol.
// Non-blocking: if the hub publish buffer is full, the trade is dropped.
func (h *Hub) PublishTrade(t Trade) {
	t.Seq = h.seq.nextSeq(t.Symbol)
	h.enqueue(t.Symbol, struct {
		Type  string `json:"type"`
		Trade Trade  `json:"trade"`
	}{"trade", t})
}

// PublishOracleBuy publishes an oracle buy to subscribers of its symbol.
func (h *Hub) PublishOracleBuy(b OracleBuy) {
	b.Seq = h.seq.nextSeq(b.Symbol)
	h.enqueue(b.Symbol, struct {
		Type string    `json:"type"`
		Buy  OracleBuy `json:"oracleBuy"`
	}{"oracleBuy", b})
}

// Stats returns simple metrics (clients count and publish drops).
func (h *Hub) Stats() (clients int, drops uint64) {
	clients = int(atomic.LoadInt64(&h.clientCount))
	drops = atomic.LoadUint64(&h.publishDrops)
	return
}
