package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/TiggieF/tokenised-lse-sub000/internal/award"
	"github.com/TiggieF/tokenised-lse-sub000/internal/config"
	"github.com/TiggieF/tokenised-lse-sub000/internal/feed"
	"github.com/TiggieF/tokenised-lse-sub000/internal/ledger"
	"github.com/TiggieF/tokenised-lse-sub000/internal/logging"
	"github.com/TiggieF/tokenised-lse-sub000/internal/pricefeed"
	"github.com/TiggieF/tokenised-lse-sub000/internal/registry"
	"github.com/TiggieF/tokenised-lse-sub000/internal/repository"
	ledgerRepository "github.com/TiggieF/tokenised-lse-sub000/internal/repository/ledger"
	userRepository "github.com/TiggieF/tokenised-lse-sub000/internal/repository/user"
	"github.com/TiggieF/tokenised-lse-sub000/internal/router"
	"github.com/TiggieF/tokenised-lse-sub000/internal/router/middleware"
	"github.com/TiggieF/tokenised-lse-sub000/internal/usecase/journal"
	"github.com/TiggieF/tokenised-lse-sub000/internal/usecase/order"
	"github.com/TiggieF/tokenised-lse-sub000/internal/usecase/user"
	"github.com/TiggieF/tokenised-lse-sub000/internal/websocket"
	"github.com/TiggieF/tokenised-lse-sub000/pkg/model"
	"github.com/jmoiron/sqlx"
	tb "github.com/tigerbeetle/tigerbeetle-go"
	tbTypes "github.com/tigerbeetle/tigerbeetle-go/pkg/types"
	"go.uber.org/zap"

	_ "github.com/lib/pq"
)

func main() {
	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.Dev())
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	if err := run(rootCtx, cfg, logger); err != nil {
		logger.Fatalw("server exited", "error", err)
	}
	logger.Info("server stopped")
}

// openLedger returns the configured balance store with every listed asset
// and the quote currency bound to it.
func openLedger(cfg *config.Config, listings []registry.Listing, logger *zap.SugaredLogger) (ledger.AssetLedger, func(), error) {
	if cfg.LedgerBackend != config.LedgerTigerBeetle {
		return ledger.NewMemory(), func() {}, nil
	}
	client, err := tb.NewClient(tbTypes.ToUint128(cfg.TBClusterID), []string{cfg.TBAddress})
	if err != nil {
		return nil, nil, err
	}
	tbl := ledger.NewTigerBeetle(client, logger.Named("tigerbeetle"))
	tbl.RegisterAsset(model.AssetIDFor(model.CASH_TICKER), model.CASH_LEDGER)
	for _, l := range listings {
		tbl.RegisterAsset(l.Asset, l.LedgerID)
	}
	return tbl, client.Close, nil
}

func openOracle(cfg *config.Config) (router.PriceSetter, func()) {
	if cfg.RedisAddr == "" {
		mem := pricefeed.NewMemory(nil)
		_ = mem.SetFreshnessWindow(cfg.PriceFreshness)
		return mem, func() {}
	}
	r := pricefeed.NewRedis(pricefeed.NewRedisClient(cfg.RedisAddr), cfg.PriceFreshness, nil)
	return r, func() { _ = r.Close() }
}

func run(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger) error {
	db, err := sqlx.Connect("postgres", cfg.DSN())
	if err != nil {
		return err
	}
	defer db.Close()
	if err := repository.Migrate(ctx, db); err != nil {
		return err
	}

	reg, err := registry.Load(ctx, db, ledgerRepository.NewLedgerRepository(db))
	if err != nil {
		return err
	}
	listings := reg.Listings()
	logger.Infow("loaded listings", "count", len(listings))

	balances, closeLedger, err := openLedger(cfg, listings, logger)
	if err != nil {
		return err
	}
	defer closeLedger()

	assets := []model.AssetID{model.AssetIDFor(model.CASH_TICKER)}
	for _, l := range listings {
		assets = append(assets, l.Asset)
	}
	exchange := model.AccountID(cfg.ExchangeAccount)
	for _, acc := range []model.AccountID{ledger.Issuer, exchange} {
		if err := balances.OpenAccounts(ctx, acc, assets); err != nil {
			return err
		}
	}

	oracle, closeOracle := openOracle(cfg)
	defer closeOracle()

	tracker := award.NewTracker(award.Opts{
		Ledger:      balances,
		RewardAsset: model.AssetIDFor(model.CASH_TICKER),
		Admin:       model.AccountID(cfg.AdminAccount),
		Dex:         exchange,
		Logger:      logger.Named("award"),
	})

	jr := journal.New(journal.Opts{DB: db, Logger: logger.Named("journal")})
	lastOrder, lastTrade, err := jr.LastIDs(ctx)
	if err != nil {
		return err
	}
	// workers drain after shutdown begins
	drainCtx := context.WithoutCancel(ctx)
	go jr.Run(drainCtx)
	defer jr.Close()

	orderUseCase := order.NewOrderUseCase(order.OrderUseCaseOpts{
		Ledger:      balances,
		Registry:    reg,
		Oracle:      oracle,
		Reporter:    tracker,
		Account:     exchange,
		Logger:      logger.Named("exchange"),
		LastOrderID: lastOrder,
		LastTradeID: lastTrade,
	})
	resting, err := jr.RestingOrders(ctx)
	if err != nil {
		return err
	}
	if err := orderUseCase.Restore(resting); err != nil {
		return err
	}
	jr.Attach(orderUseCase)

	hub := websocket.NewHub(logger.Named("ws"))
	go hub.Run(ctx)
	orderUseCase.RegisterTradeHandler(func(tr model.Trade) {
		symbol, ok := reg.SymbolOf(tr.Asset)
		if !ok {
			return
		}
		hub.PublishTrade(websocket.FromTrade(symbol, tr))
	})
	orderUseCase.RegisterOracleBuyHandler(func(ev model.OracleQuoteBuy) {
		hub.PublishOracleBuy(websocket.FromOracleBuy(ev))
	})

	if len(cfg.KafkaBrokers) > 0 {
		pub := feed.NewPublisher(feed.Opts{
			Sender:   feed.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic),
			Registry: reg,
			Logger:   logger.Named("feed"),
		})
		pub.Attach(orderUseCase)
		go pub.Run(drainCtx)
		defer func() {
			if err := pub.Close(); err != nil {
				logger.Warnw("closing feed", "error", err)
			}
		}()
	}

	userUseCase := user.NewUserUseCase(user.UserUseCaseOpts{
		UserRepo:    userRepository.NewUserRepository(db),
		Ledger:      balances,
		Listings:    reg,
		AllowFaucet: cfg.AllowFaucet,
		Db:          db,
		Logger:      logger.Named("user"),
	})
	tokenMaker, err := middleware.NewJWTMaker(cfg.JWTSecret)
	if err != nil {
		return err
	}

	serveMux := http.NewServeMux()
	router.BindRouter(router.BindRouterOpts{
		ServerRouter: serveMux,
		OrderUseCase: orderUseCase,
		UserUseCase:  userUseCase,
		Registry:     reg,
		Awards:       tracker,
		Prices:       oracle,
		History:      jr,
		Hub:          hub,
		Admin:        model.AccountID(cfg.AdminAccount),
		TokenMaker:   tokenMaker,
		Logger:       logger.Named("http"),
	})
	logger.Info("finished binding router")

	server := http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: router.Cors(serveMux),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infow("HTTP server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		return err
	}

	// Give in-flight requests up to 10s to finish.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warnw("graceful shutdown failed; forcing close", "error", err)
		_ = server.Close()
	}
	return nil
}
