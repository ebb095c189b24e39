// Package feed exports trades and oracle buys to an event bus. Events are
// keyed by symbol so one symbol's events stay on one partition in order.
package feed

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/TiggieF/tokenised-lse-sub000/internal/registry"
	ucorder "github.com/TiggieF/tokenised-lse-sub000/internal/usecase/order"
	"github.com/TiggieF/tokenised-lse-sub000/pkg/model"
	"go.uber.org/zap"
)

const (
	defaultBuffer = 1024
	sendTimeout   = 5 * time.Second
)

type Sender interface {
	Send(ctx context.Context, key []byte, value []byte) error
	Close() error
}

// Event is the message body.
type Event struct {
	Type      string           `json:"type"` // "trade" | "oracleBuy"
	Symbol    string           `json:"symbol"`
	Trade     *model.TradeView `json:"trade,omitempty"`
	OracleBuy *OracleBuyView   `json:"oracleBuy,omitempty"`
}

type OracleBuyView struct {
	Trader         model.AccountID `json:"trader"`
	TakerOrderID   model.OrderId   `json:"takerOrderId"`
	QtyBought      string          `json:"qtyBought"`
	QuoteSpent     string          `json:"quoteSpent"`
	OraclePrice    model.Price     `json:"oraclePrice"`
	OracleMaxPrice model.Price     `json:"oracleMaxPrice"`
	Timestamp      time.Time       `json:"timestamp"`
}

type Opts struct {
	Sender   Sender
	Registry registry.Registry
	Logger   *zap.SugaredLogger
	Buffer   int
}

// Publisher queues events from exchange handlers and sends them from one
// goroutine. When the queue is full events are dropped and counted.
type Publisher struct {
	sender   Sender
	registry registry.Registry
	logger   *zap.SugaredLogger

	mu      sync.RWMutex
	closed  bool
	dropped uint64
	queue   chan Event
	done    chan struct{}
}

func NewPublisher(opts Opts) *Publisher {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	if opts.Buffer <= 0 {
		opts.Buffer = defaultBuffer
	}
	return &Publisher{
		sender:   opts.Sender,
		registry: opts.Registry,
		logger:   opts.Logger,
		queue:    make(chan Event, opts.Buffer),
		done:     make(chan struct{}),
	}
}

func (p *Publisher) Attach(ex ucorder.OrderUseCase) {
	ex.RegisterTradeHandler(p.OnTrade)
	ex.RegisterOracleBuyHandler(p.OnOracleBuy)
}

func (p *Publisher) OnTrade(t model.Trade) {
	symbol, ok := p.registry.SymbolOf(t.Asset)
	if !ok {
		p.logger.Warnw("trade for unlisted asset", "asset", t.Asset, "tradeId", t.ID)
		return
	}
	view := t.View()
	p.enqueue(Event{Type: "trade", Symbol: symbol, Trade: &view})
}

func (p *Publisher) OnOracleBuy(ev model.OracleQuoteBuy) {
	p.enqueue(Event{Type: "oracleBuy", Symbol: ev.Symbol, OracleBuy: &OracleBuyView{
		Trader:         ev.Trader,
		TakerOrderID:   ev.TakerID,
		QtyBought:      model.FormatUnits(ev.QtyBought),
		QuoteSpent:     model.FormatUnits(ev.QuoteSpent),
		OraclePrice:    ev.OraclePrice,
		OracleMaxPrice: ev.OracleMaxPrice,
		Timestamp:      ev.Timestamp,
	}})
}

func (p *Publisher) enqueue(ev Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	select {
	case p.queue <- ev:
	default:
		p.dropped++
		p.logger.Warnw("feed queue full, dropping event", "type", ev.Type, "symbol", ev.Symbol)
	}
}

// Dropped is the number of events lost to a full queue.
func (p *Publisher) Dropped() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.dropped
}

// Run sends queued events until Close. Call as: go p.Run(ctx).
func (p *Publisher) Run(ctx context.Context) {
	defer close(p.done)
	for ev := range p.queue {
		value, err := json.Marshal(ev)
		if err != nil {
			p.logger.Errorw("marshal feed event", "error", err)
			continue
		}
		sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
		err = p.sender.Send(sendCtx, []byte(ev.Symbol), value)
		cancel()
		if err != nil {
			p.logger.Errorw("feed send failed", "type", ev.Type, "symbol", ev.Symbol, "error", err)
		}
	}
}

// Close drains the queue and closes the sender.
func (p *Publisher) Close() error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()
	<-p.done
	return p.sender.Close()
}
