package router

import (
	"context"
	"net/http"
	"time"

	"github.com/TiggieF/tokenised-lse-sub000/internal/pricefeed"
	"github.com/TiggieF/tokenised-lse-sub000/pkg/model"
)

// PriceSetter is a writable oracle.
type PriceSetter interface {
	pricefeed.Oracle
	SetPrice(ctx context.Context, symbol string, price model.Price) error
}

type priceRouter struct {
	feed  PriceSetter
	admin model.AccountID
}

func (pr *priceRouter) Get(w http.ResponseWriter, r *http.Request) {
	symbol := r.PathValue("ticker")
	price, updated, err := pr.feed.GetPrice(r.Context(), symbol)
	if err != nil {
		writeError(w, err)
		return
	}
	fresh, err := pr.feed.IsFresh(r.Context(), symbol)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"symbol":    symbol,
		"price":     price,
		"updatedAt": updated.UTC().Format(time.RFC3339),
		"fresh":     fresh,
	})
}

// Set is admin only: POST /api/v1/price/{ticker} {"price": 10000}
func (pr *priceRouter) Set(w http.ResponseWriter, r *http.Request) {
	type SetPriceRequest struct {
		Price model.Price `json:"price"`
	}
	who, ok := trader(w, r)
	if !ok {
		return
	}
	if who != pr.admin {
		writeError(w, errAdminOnly)
		return
	}
	req, err := decodeJSON[SetPriceRequest](w, r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	symbol := r.PathValue("ticker")
	if err := pr.feed.SetPrice(r.Context(), symbol, req.Price); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"symbol": symbol, "price": req.Price})
}
