package router

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/TiggieF/tokenised-lse-sub000/internal/registry"
	"github.com/TiggieF/tokenised-lse-sub000/internal/usecase/order"
	"github.com/TiggieF/tokenised-lse-sub000/pkg/model"
)

type OrderRouter interface {
	Add(w http.ResponseWriter, r *http.Request)
	Cancel(w http.ResponseWriter, r *http.Request)
	BuyExactQuote(w http.ResponseWriter, r *http.Request)
	BuyAtOracle(w http.ResponseWriter, r *http.Request)
	Get(w http.ResponseWriter, r *http.Request)
	Depth(w http.ResponseWriter, r *http.Request)
	OpenOrders(w http.ResponseWriter, r *http.Request)
	Tickers(w http.ResponseWriter, r *http.Request)
}

// Lister is the registry surface the ticker endpoints need.
type Lister interface {
	registry.Registry
	Listings() []registry.Listing
}

type orderRouterImpl struct {
	usecase  order.OrderUseCase
	registry Lister
}

func NewOrderRouter(usecase order.OrderUseCase, reg Lister) OrderRouter {
	return &orderRouterImpl{
		usecase:  usecase,
		registry: reg,
	}
}

func (or *orderRouterImpl) resolve(symbol string) (model.AssetID, error) {
	asset, ok := or.registry.ResolveAsset(symbol)
	if !ok {
		return "", fmt.Errorf("%w: %s", order.ErrUnknownToken, symbol)
	}
	return asset, nil
}

func tradeViews(trades []*model.Trade) []model.TradeView {
	out := make([]model.TradeView, 0, len(trades))
	for _, t := range trades {
		out = append(out, t.View())
	}
	return out
}

func (or *orderRouterImpl) Add(w http.ResponseWriter, r *http.Request) {
	type AddOrderRequest struct {
		Side     string      `json:"side"` // "BUY" or "SELL"
		Price    model.Price `json:"price"`
		Quantity string      `json:"quantity"` // decimal, e.g. "1.5"
		Ticker   string      `json:"ticker"`
	}
	type AddOrderResponse struct {
		OrderID model.OrderId     `json:"orderId"`
		Trades  []model.TradeView `json:"trades"`
		Status  string            `json:"status"`
	}
	who, ok := trader(w, r)
	if !ok {
		return
	}
	req, err := decodeJSON[AddOrderRequest](w, r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	side, err := model.ParseSide(req.Side)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	qty, err := model.ParseUnits(req.Quantity)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	asset, err := or.resolve(req.Ticker)
	if err != nil {
		writeError(w, err)
		return
	}

	orderID, trades, err := or.usecase.PlaceLimitOrder(r.Context(), who, asset, side, req.Price, qty)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, AddOrderResponse{
		OrderID: orderID,
		Trades:  tradeViews(trades),
		Status:  "accepted",
	})
}

func (or *orderRouterImpl) Cancel(w http.ResponseWriter, r *http.Request) {
	type CancelOrderRequest struct {
		ID model.OrderId `json:"id"`
	}
	type CancelOrderResponse struct {
		OrderID model.OrderId `json:"orderId"`
		Status  string        `json:"status"`
	}
	who, ok := trader(w, r)
	if !ok {
		return
	}
	req, err := decodeJSON[CancelOrderRequest](w, r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	if req.ID == 0 {
		writeJSONError(w, http.StatusBadRequest, errors.New("id is required"))
		return
	}

	if err := or.usecase.CancelOrder(r.Context(), who, req.ID); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, CancelOrderResponse{
		OrderID: req.ID,
		Status:  "cancelled",
	})
}

type marketBuyResponse struct {
	OrderID        model.OrderId     `json:"orderId"`
	Quantity       string            `json:"quantity"`
	Spent          string            `json:"spent"`
	Trades         []model.TradeView `json:"trades"`
	OraclePrice    model.Price       `json:"oraclePrice,omitempty"`
	OracleMaxPrice model.Price       `json:"oracleMaxPrice,omitempty"`
}

func marketBuyView(res *order.MarketBuy) marketBuyResponse {
	return marketBuyResponse{
		OrderID:  res.OrderID,
		Quantity: model.FormatUnits(res.Quantity),
		Spent:    model.FormatUnits(res.Spent),
		Trades:   tradeViews(res.Trades),
	}
}

func (or *orderRouterImpl) BuyExactQuote(w http.ResponseWriter, r *http.Request) {
	type BuyRequest struct {
		Ticker   string      `json:"ticker"`
		Budget   string      `json:"budget"` // quote currency, decimal
		MaxPrice model.Price `json:"maxPrice"`
	}
	who, ok := trader(w, r)
	if !ok {
		return
	}
	req, err := decodeJSON[BuyRequest](w, r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	budget, err := model.ParseUnits(req.Budget)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	asset, err := or.resolve(req.Ticker)
	if err != nil {
		writeError(w, err)
		return
	}

	res, err := or.usecase.BuyExactQuote(r.Context(), who, asset, budget, req.MaxPrice)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, marketBuyView(res))
}

func (or *orderRouterImpl) BuyAtOracle(w http.ResponseWriter, r *http.Request) {
	type BuyRequest struct {
		Ticker         string `json:"ticker"`
		Budget         string `json:"budget"`
		MaxSlippageBps uint32 `json:"maxSlippageBps"`
	}
	who, ok := trader(w, r)
	if !ok {
		return
	}
	req, err := decodeJSON[BuyRequest](w, r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	budget, err := model.ParseUnits(req.Budget)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	asset, err := or.resolve(req.Ticker)
	if err != nil {
		writeError(w, err)
		return
	}

	res, err := or.usecase.BuyExactQuoteAtOracle(r.Context(), who, asset, budget, req.MaxSlippageBps)
	if err != nil {
		writeError(w, err)
		return
	}
	view := marketBuyView(&res.MarketBuy)
	view.OraclePrice = res.OraclePrice
	view.OracleMaxPrice = res.OracleMaxPrice
	writeJSON(w, http.StatusOK, view)
}

func (or *orderRouterImpl) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathUint(r, "id")
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	o, err := or.usecase.GetOrder(r.Context(), model.OrderId(id))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o.View())
}

// Depth is the aggregated book: GET /api/v1/ticker/{ticker}/order-list?levels=10
func (or *orderRouterImpl) Depth(w http.ResponseWriter, r *http.Request) {
	asset, err := or.resolve(r.PathValue("ticker"))
	if err != nil {
		writeError(w, err)
		return
	}
	levels := 10
	if v := r.URL.Query().Get("levels"); v != "" {
		if levels, err = strconv.Atoi(v); err != nil || levels <= 0 {
			writeJSONError(w, http.StatusBadRequest, errors.New("levels must be a positive integer"))
			return
		}
	}
	depth, err := or.usecase.GetMarketDepth(r.Context(), asset, levels)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, depth)
}

// OpenOrders lists one side in match priority: GET /api/v1/ticker/{ticker}/orders?side=SELL
func (or *orderRouterImpl) OpenOrders(w http.ResponseWriter, r *http.Request) {
	asset, err := or.resolve(r.PathValue("ticker"))
	if err != nil {
		writeError(w, err)
		return
	}
	side, err := model.ParseSide(r.URL.Query().Get("side"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	orders, err := or.usecase.GetOpenOrders(r.Context(), asset, side)
	if err != nil {
		writeError(w, err)
		return
	}
	views := make([]model.OrderView, 0, len(orders))
	for i := range orders {
		views = append(views, orders[i].View())
	}
	writeJSON(w, http.StatusOK, views)
}

func (or *orderRouterImpl) Tickers(w http.ResponseWriter, r *http.Request) {
	type TickerResponse struct {
		registry.Listing
		Top *model.TopOfBook `json:"top"`
	}
	out := make([]TickerResponse, 0)
	for _, l := range or.registry.Listings() {
		top, err := or.usecase.GetTopOfBook(r.Context(), l.Asset)
		if err != nil {
			writeError(w, err)
			return
		}
		out = append(out, TickerResponse{Listing: l, Top: top})
	}
	writeJSON(w, http.StatusOK, out)
}
