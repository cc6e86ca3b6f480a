// Command server runs the lobx exchange: one TCP trading session, one
// read-only TCP quote session, a WebSocket market-data sink, and a
// Prometheus metrics endpoint, wired from internal/config and shut down
// gracefully on INT/TERM/QUIT, per spec.md §6.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/saiputra/lobx/internal/broadcast"
	"github.com/saiputra/lobx/internal/common"
	"github.com/saiputra/lobx/internal/config"
	"github.com/saiputra/lobx/internal/metrics"
	"github.com/saiputra/lobx/internal/persistence"
	"github.com/saiputra/lobx/internal/product"
	"github.com/saiputra/lobx/internal/session"
	"github.com/saiputra/lobx/internal/transport"
	"github.com/saiputra/lobx/internal/user"
)

var (
	flagLoad       bool
	flagConfigFile string
)

func main() {
	root := &cobra.Command{
		Use:   "lobx-server",
		Short: "Run the lobx continuous limit-order-book exchange",
		RunE:  run,
	}
	root.Flags().BoolVar(&flagLoad, "load", false, "rebuild state from the newest persisted snapshot before accepting connections")
	root.Flags().StringVar(&flagConfigFile, "config", "", "path to a YAML/JSON config file (env vars always override)")

	if err := root.Execute(); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}

func run(cmd *cobra.Command, args []string) error {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Timestamp().Logger()

	cfg, err := config.Load(flagConfigFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	products := make([]common.Product, len(cfg.Products))
	for i, p := range cfg.Products {
		products[i] = common.Product(p)
	}

	store, err := persistence.New(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open persistence store: %w", err)
	}

	productMgr := product.New(products)
	users := user.New()

	broadcasters := make(map[common.Product]*broadcast.Broadcaster, len(products))
	reg := prometheus.NewRegistry()
	mtr := metrics.NewCollector(reg)
	for _, p := range products {
		bc := broadcast.New(logger.With().Str("product", string(p)).Logger())
		product := string(p)
		bc.SetDropHook(func() { mtr.RecordBroadcastDrop(product) })
		broadcasters[p] = bc
	}

	var startOrderID int64
	if flagLoad {
		loaded, ok, err := store.LoadLatest()
		if err != nil {
			logger.Warn().Err(err).Msg("failed to load persisted state, starting empty")
		} else if !ok {
			logger.Warn().Msg("--load requested but no persisted snapshot found, starting empty")
		} else {
			for p, b := range loaded.Books {
				if err := productMgr.RestoreFromSnapshot(p, loaded.History[p], b); err != nil {
					logger.Warn().Err(err).Str("product", string(p)).Msg("failed to restore product, leaving it empty")
				}
			}
			for id, rec := range loaded.Users {
				users.Register(rec.Name, id, rec.Budget)
				_ = users.SetPostBuyBudget(id, rec.PostBuyBudget)
				for i := uint64(0); i < rec.NumOrders; i++ {
					_ = users.IncrementOrders(id)
				}
			}
			startOrderID = persistence.MaxOrderID(loaded.Books) + 1
			logger.Info().Str("file", loaded.Path).Msg("restored persisted state")
		}
	}

	clock := func() int64 { return time.Now().UnixNano() }
	dispatcher := session.New(productMgr, users, broadcasters, cfg.FixedFeeDecimal(), cfg.PercentageFeeDecimal(), clock, logger, mtr)
	dispatcher.SetNextOrderID(startOrderID)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	tradingSrv := transport.NewServer(cfg.TradingSession, transport.Trading, dispatcher, logger.With().Str("session", "trading").Logger())
	quoteSrv := transport.NewServer(cfg.QuoteSession, transport.Quote, dispatcher, logger.With().Str("session", "quote").Logger())

	errCh := make(chan error, 4)
	go func() { errCh <- tradingSrv.Run(ctx) }()
	go func() { errCh <- quoteSrv.Run(ctx) }()

	hub := transport.NewMarketDataHub(broadcasters, logger.With().Str("session", "marketdata").Logger())
	mux := http.NewServeMux()
	mux.Handle("/marketdata", hub)
	httpSrv := &http.Server{Addr: cfg.MarketDataAddr, Handler: mux}
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", metrics.Handler(reg))
	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	logger.Info().Strs("products", cfg.Products).Str("trading", cfg.TradingSession).Str("quote", cfg.QuoteSession).Msg("lobx server started")

	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Error().Err(err).Msg("a listener failed, shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	_ = metricsSrv.Shutdown(shutdownCtx)

	histories := make(persistence.Histories, len(products))
	userIDs := []string{user.MarketMaker, user.LiquidityGenerator}
	for _, p := range products {
		hist, err := productMgr.History(p, -1)
		if err != nil {
			continue
		}
		histories[p] = hist
		for _, snap := range hist {
			for id := range snap.UserBalance {
				userIDs = append(userIDs, id)
			}
		}
	}

	path, err := store.Save(time.Now(), histories, users, dedupe(userIDs))
	if err != nil {
		logger.Error().Err(err).Msg("failed to persist state on shutdown")
		return err
	}
	logger.Info().Str("file", path).Msg("persisted state, shutting down")
	return nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
