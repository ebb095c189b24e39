package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/TiggieF/tokenised-lse-sub000/internal/config"
	"github.com/TiggieF/tokenised-lse-sub000/internal/ledger"
	"github.com/TiggieF/tokenised-lse-sub000/internal/logging"
	"github.com/TiggieF/tokenised-lse-sub000/internal/repository"
	ledgerRepository "github.com/TiggieF/tokenised-lse-sub000/internal/repository/ledger"
	"github.com/TiggieF/tokenised-lse-sub000/pkg/model"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	tb "github.com/tigerbeetle/tigerbeetle-go"
	tbTypes "github.com/tigerbeetle/tigerbeetle-go/pkg/types"
)

type tickerSeed struct {
	Ticker   string
	Name     string
	LedgerId uint32
}

var seeds = []tickerSeed{
	{Ticker: model.CASH_TICKER, Name: "Tokenised GBP", LedgerId: model.CASH_LEDGER},
	{Ticker: "VOD", Name: "Vodafone Group", LedgerId: 20},
	{Ticker: "BARC", Name: "Barclays", LedgerId: 30},
	{Ticker: "HSBA", Name: "HSBC Holdings", LedgerId: 40},
}

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

	db, err := sqlx.Connect("postgres", cfg.DSN())
	if err != nil {
		logger.Fatalw("error connecting postgres", "error", err)
	}
	defer db.Close()
	if err := repository.Migrate(rootCtx, db); err != nil {
		logger.Fatalw("migrate", "error", err)
	}

	tickerRepo := ledgerRepository.NewLedgerRepository(db)
	rootTx := db.MustBeginTx(rootCtx, nil)
	defer rootTx.Rollback()

	for _, s := range seeds {
		_, err := tickerRepo.GetLedgerByTicker(rootCtx, rootTx, s.Ticker)
		if err == nil {
			logger.Infow("ticker exists", "ticker", s.Ticker)
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			logger.Fatalw("error reading ticker", "ticker", s.Ticker, "error", err)
		}
		if _, err := tickerRepo.CreateLedger(rootCtx, rootTx, s.Ticker, s.Name, model.AssetIDFor(s.Ticker), int64(s.LedgerId)); err != nil {
			logger.Fatalw("error creating ticker", "ticker", s.Ticker, "error", err)
		}
		logger.Infow("ticker created", "ticker", s.Ticker, "ledger", s.LedgerId)
	}

	tickers, err := tickerRepo.ListLedgers(rootCtx, rootTx)
	if err != nil {
		logger.Fatalw("error getting ticker list", "error", err)
	}
	if err := rootTx.Commit(); err != nil {
		logger.Fatalw("commit", "error", err)
	}
	logger.Infow("tickers in db", "tickers", tickers)

	if cfg.LedgerBackend != config.LedgerTigerBeetle {
		return
	}

	client, err := tb.NewClient(tbTypes.ToUint128(cfg.TBClusterID), []string{cfg.TBAddress})
	if err != nil {
		logger.Fatalw("error connecting tigerbeetle", "error", err)
	}
	defer client.Close()

	balances := ledger.NewTigerBeetle(client, logger.Named("tigerbeetle"))
	assets := make([]model.AssetID, 0, len(tickers))
	for _, t := range tickers {
		balances.RegisterAsset(t.AssetID, uint32(t.TBLedgerID))
		assets = append(assets, t.AssetID)
	}
	for _, acc := range []model.AccountID{ledger.Issuer, model.AccountID(cfg.ExchangeAccount)} {
		if err := balances.OpenAccounts(rootCtx, acc, assets); err != nil {
			logger.Fatalw("error creating accounts", "account", acc, "error", err)
		}
	}
	logger.Infow("system accounts ready", "exchange", cfg.ExchangeAccount, "assets", len(assets))
}
