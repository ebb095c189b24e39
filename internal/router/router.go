package router

import (
	"net/http"
	"time"

	"github.com/TiggieF/tokenised-lse-sub000/internal/router/middleware"
	"github.com/TiggieF/tokenised-lse-sub000/internal/usecase/order"
	"github.com/TiggieF/tokenised-lse-sub000/internal/usecase/user"
	"github.com/TiggieF/tokenised-lse-sub000/internal/websocket"
	"github.com/TiggieF/tokenised-lse-sub000/pkg/model"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const requestIDHeader = "X-Request-Id"

type statusWriter struct {
	http.ResponseWriter
	status int
	n      int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.n += n
	return n, err
}

// logging tags each request with an id and logs it once served.
func logging(logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := r.Header.Get(requestIDHeader)
			if reqID == "" {
				reqID = uuid.NewString()
			}
			w.Header().Set(requestIDHeader, reqID)

			sw := &statusWriter{ResponseWriter: w}
			start := time.Now()
			next.ServeHTTP(sw, r)
			logger.Infow("http request",
				"requestId", reqID, "method", r.Method, "path", r.URL.Path,
				"status", sw.status, "bytes", sw.n, "duration", time.Since(start))
		})
	}
}

// wrap your mux with cors(mux) when starting the server
// http.ListenAndServe(":8080", cors(mux))

func Cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")

			// Reflect requested headers/method for preflight robustness
			reqHdrs := r.Header.Get("Access-Control-Request-Headers")
			if reqHdrs == "" {
				reqHdrs = "Content-Type, Authorization"
			}
			w.Header().Set("Access-Control-Allow-Headers", reqHdrs)

			reqMethod := r.Header.Get("Access-Control-Request-Method")
			if reqMethod == "" {
				reqMethod = "GET, POST, PUT, DELETE, OPTIONS"
			}
			w.Header().Set("Access-Control-Allow-Methods", reqMethod)
			w.Header().Set("Access-Control-Max-Age", "86400")
		}

		// Short-circuit preflight so it never hits your route table
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent) // 204
			return
		}

		next.ServeHTTP(w, r)
	})
}

type binder struct {
	mux  *http.ServeMux
	log  func(http.Handler) http.Handler
	auth func(http.Handler) http.Handler
}

func (b *binder) public(pattern string, h http.HandlerFunc) {
	b.mux.Handle(pattern, b.log(h))
}

func (b *binder) private(pattern string, h http.HandlerFunc) {
	b.mux.Handle(pattern, b.log(b.auth(h)))
}

func bindTicker(b *binder, orderRouter OrderRouter) {
	b.private("GET /api/v1/ticker", orderRouter.Tickers)
	b.private("GET /api/v1/ticker/{ticker}/order-list", orderRouter.Depth)
	b.private("GET /api/v1/ticker/{ticker}/orders", orderRouter.OpenOrders)
}

func bindOrder(b *binder, orderRouter OrderRouter) {
	b.private("POST /api/v1/order/add", orderRouter.Add)
	b.private("DELETE /api/v1/order/cancel", orderRouter.Cancel)
	b.private("POST /api/v1/order/buy-exact-quote", orderRouter.BuyExactQuote)
	b.private("POST /api/v1/order/buy-at-oracle", orderRouter.BuyAtOracle)
	b.private("GET /api/v1/order/{id}", orderRouter.Get)
}

func bindUser(b *binder, userRouter UserRouter) {
	b.private("GET /api/v1/user/", userRouter.GetUser)
	b.private("GET /api/v1/user/history", userRouter.GetUserHistory)
	b.private("POST /api/v1/user/money", userRouter.AddUserMoney)
	b.public("POST /api/v1/user/register", userRouter.RegisterUser)
	b.public("POST /api/v1/user/login", userRouter.LoginUser)
}

func bindAward(b *binder, ar *awardRouter) {
	b.private("GET /api/v1/award/epoch", ar.Epoch)
	b.private("GET /api/v1/award/{epoch}/winner", ar.Winner)
	b.private("POST /api/v1/award/{epoch}/claim", ar.Claim)
	b.private("POST /api/v1/award/{epoch}/finalize", ar.Finalize)
}

func bindPrice(b *binder, pr *priceRouter) {
	b.private("GET /api/v1/price/{ticker}", pr.Get)
	b.private("POST /api/v1/price/{ticker}", pr.Set)
}

type BindRouterOpts struct {
	ServerRouter *http.ServeMux
	OrderUseCase order.OrderUseCase
	UserUseCase  user.UserUseCase
	Registry     Lister
	Awards       Awards
	Prices       PriceSetter     // optional
	History      History         // optional
	Hub          *websocket.Hub  // optional
	Admin        model.AccountID // may set prices
	TokenMaker   *middleware.JWTMaker
	Logger       *zap.SugaredLogger
}

func BindRouter(opts BindRouterOpts) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	b := &binder{
		mux:  opts.ServerRouter,
		log:  logging(opts.Logger),
		auth: middleware.AuthMiddleware(opts.TokenMaker),
	}

	orderRouter := NewOrderRouter(opts.OrderUseCase, opts.Registry)
	bindOrder(b, orderRouter)
	bindTicker(b, orderRouter)
	bindUser(b, NewUserRouter(opts.UserUseCase, opts.History, opts.TokenMaker))
	bindAward(b, &awardRouter{awards: opts.Awards})
	if opts.Prices != nil {
		bindPrice(b, &priceRouter{feed: opts.Prices, admin: opts.Admin})
	}
	if opts.Hub != nil {
		hub := opts.Hub
		opts.ServerRouter.HandleFunc("GET /ws", func(w http.ResponseWriter, r *http.Request) {
			websocket.ServeWS(hub, w, r)
		})
	}

	//healthcheck
	b.public("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status": 200,
			"health": "healthy",
		})
	})
}
