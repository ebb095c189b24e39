package router

import (
	"context"
	"net/http"

	"github.com/TiggieF/tokenised-lse-sub000/internal/award"
	"github.com/TiggieF/tokenised-lse-sub000/pkg/model"
)

// Awards is the reward surface exposed over HTTP.
type Awards interface {
	CurrentEpoch() uint64
	Summary(epochID uint64) award.EpochView
	IsWinner(epochID uint64, trader model.AccountID) bool
	HasClaimed(epochID uint64, trader model.AccountID) bool
	ClaimAward(ctx context.Context, epochID uint64, trader model.AccountID) error
	FinalizeEpoch(ctx context.Context, epochID uint64) error
}

type awardRouter struct {
	awards Awards
}

func (ar *awardRouter) Epoch(w http.ResponseWriter, r *http.Request) {
	current := ar.awards.CurrentEpoch()
	writeJSON(w, http.StatusOK, map[string]any{
		"epoch":    current,
		"duration": award.EpochDuration,
		"reward":   model.FormatUnits(award.RewardAmount),
		"current":  ar.awards.Summary(current),
	})
}

// Winner reports the epoch summary and whether the caller may claim.
func (ar *awardRouter) Winner(w http.ResponseWriter, r *http.Request) {
	who, ok := trader(w, r)
	if !ok {
		return
	}
	epoch, err := pathUint(r, "epoch")
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		award.EpochView
		IsWinner bool `json:"isWinner"`
		Claimed  bool `json:"claimed"`
	}{ar.awards.Summary(epoch), ar.awards.IsWinner(epoch, who), ar.awards.HasClaimed(epoch, who)})
}

func (ar *awardRouter) Claim(w http.ResponseWriter, r *http.Request) {
	who, ok := trader(w, r)
	if !ok {
		return
	}
	epoch, err := pathUint(r, "epoch")
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	if err := ar.awards.ClaimAward(r.Context(), epoch, who); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"epoch": epoch, "status": "claimed"})
}

func (ar *awardRouter) Finalize(w http.ResponseWriter, r *http.Request) {
	epoch, err := pathUint(r, "epoch")
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	if err := ar.awards.FinalizeEpoch(r.Context(), epoch); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ar.awards.Summary(epoch))
}
