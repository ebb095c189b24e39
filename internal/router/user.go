package router

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/TiggieF/tokenised-lse-sub000/internal/router/middleware"
	"github.com/TiggieF/tokenised-lse-sub000/internal/usecase/journal"
	"github.com/TiggieF/tokenised-lse-sub000/internal/usecase/user"
	"github.com/TiggieF/tokenised-lse-sub000/pkg/model"
)

const tokenTTL = 24 * time.Hour

type UserRouter interface {
	GetUser(w http.ResponseWriter, r *http.Request)
	GetUserHistory(w http.ResponseWriter, r *http.Request)
	AddUserMoney(w http.ResponseWriter, r *http.Request)
	RegisterUser(w http.ResponseWriter, r *http.Request)
	LoginUser(w http.ResponseWriter, r *http.Request)
}

// History reads persisted orders and trades. Optional.
type History interface {
	HistoryOf(ctx context.Context, trader model.AccountID, limit int) (*journal.History, error)
}

type userRouterImpl struct {
	usecase    user.UserUseCase
	history    History
	tokenMaker *middleware.JWTMaker
}

func NewUserRouter(usecase user.UserUseCase, history History, tokenMaker *middleware.JWTMaker) UserRouter {
	return &userRouterImpl{
		usecase:    usecase,
		history:    history,
		tokenMaker: tokenMaker,
	}
}

func (ur *userRouterImpl) GetUser(w http.ResponseWriter, r *http.Request) {
	who, ok := trader(w, r)
	if !ok {
		return
	}
	profile, err := ur.usecase.GetProfile(r.Context(), int64(who))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (ur *userRouterImpl) GetUserHistory(w http.ResponseWriter, r *http.Request) {
	who, ok := trader(w, r)
	if !ok {
		return
	}
	if ur.history == nil {
		writeJSONError(w, http.StatusNotImplemented, errors.New("history is not recorded"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	h, err := ur.history.HistoryOf(r.Context(), who, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h)
}

func (ur *userRouterImpl) AddUserMoney(w http.ResponseWriter, r *http.Request) {
	type TopupRequest struct {
		Amount string `json:"amount"`
	}
	who, ok := trader(w, r)
	if !ok {
		return
	}
	req, err := decodeJSON[TopupRequest](w, r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	amount, err := model.ParseUnits(req.Amount)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	if err := ur.usecase.TopupMoney(r.Context(), int64(who), amount); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "credited", "amount": model.FormatUnits(amount)})
}

func (ur *userRouterImpl) RegisterUser(w http.ResponseWriter, r *http.Request) {
	type RegisterRequest struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	type UserResponse struct {
		Id       string `json:"id"`
		Username string `json:"username"`
	}
	req, err := decodeJSON[RegisterRequest](w, r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}

	userId, err := ur.usecase.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, UserResponse{
		Id:       strconv.FormatInt(userId, 10),
		Username: req.Username,
	})
}

func (ur *userRouterImpl) LoginUser(w http.ResponseWriter, r *http.Request) {
	type LoginReq struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	type LoginRes struct {
		Token     string    `json:"token"`
		Id        string    `json:"id"`
		Username  string    `json:"username"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	req, err := decodeJSON[LoginReq](w, r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}

	u, err := ur.usecase.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	newToken, newClaim, err := ur.tokenMaker.CreateToken(u.ID, u.Username, tokenTTL)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, LoginRes{
		Token:     newToken,
		Id:        strconv.FormatInt(u.ID, 10),
		Username:  u.Username,
		ExpiresAt: newClaim.ExpiresAt.Time,
	})
}
