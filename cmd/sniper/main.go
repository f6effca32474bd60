package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sancholibre/kalshi-bot/api"
	"github.com/sancholibre/kalshi-bot/internal/config"
	"github.com/sancholibre/kalshi-bot/pkg/kalshi"
	"github.com/sancholibre/kalshi-bot/pkg/models"
	"github.com/sancholibre/kalshi-bot/pkg/notify"
	"github.com/sancholibre/kalshi-bot/pkg/scanner"
	"github.com/sancholibre/kalshi-bot/pkg/trader"
)

const (
	// seenResetThreshold bounds the in-memory dedup set.
	seenResetThreshold = 500
	// maxTradesPerCycle bounds per-cycle capital exposure and API load.
	maxTradesPerCycle = 5
	// tradePause spaces order submissions inside one cycle.
	tradePause = 1 * time.Second
)

var (
	cfgFile string
	logger  *logrus.Logger
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "sniper",
		Short: "Kalshi settlement sniper",
		Long:  `Buys near-certain binary contracts on events that have already ended but not yet settled`,
		Run:   runSniper,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func runSniper(cmd *cobra.Command, args []string) {
	// Local development reads credentials from .env; absence is fine.
	_ = godotenv.Load()

	logger = logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load(cfgFile)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		logger.WithError(err).Error("Invalid log level, using INFO")
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	if cfg.Logging.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{})
	}

	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("Invalid configuration")
	}

	signer, err := kalshi.LoadSigner(cfg.Kalshi.PrivateKeyBase64, cfg.Kalshi.PrivateKeyPath)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load private key")
	}

	client := kalshi.NewClient(cfg.Kalshi.BaseURL, cfg.Kalshi.APIKeyID, signer, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connectivity probe before entering the loop; an unreachable exchange
	// at startup is a configuration problem, not a steady-state error.
	probeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	status, err := client.GetExchangeStatus(probeCtx)
	cancel()
	if err != nil {
		logger.WithError(err).Fatal("Exchange connectivity check failed")
	}
	logger.WithFields(logrus.Fields{
		"exchange_active": status.ExchangeActive,
		"trading_active":  status.TradingActive,
	}).Info("Connected to exchange")

	notifier := notify.NewDiscord(cfg.Notify.DiscordWebhook, logger)
	session := trader.NewSession()

	if cfg.Server.Port > 0 {
		apiServer := api.NewServer(session, logger, fmt.Sprintf("%d", cfg.Server.Port))
		go func() {
			if err := apiServer.Start(); err != nil {
				logger.WithError(err).Error("Status API stopped")
			}
		}()
	}

	scan := scanner.New(client, scanner.Config{
		MinPrice:  cfg.Trading.MinPrice,
		MaxPrice:  cfg.Trading.MaxPrice,
		Lookahead: time.Duration(cfg.Trading.LookaheadDays) * 24 * time.Hour,
	}, logger)

	executor := trader.NewExecutor(client, notifier, session, cfg.Trading.MaxPositionCents, cfg.Trading.DryRun, logger)

	watcher := newSettlementWatch(cfg, signer, logger)

	logger.WithFields(logrus.Fields{
		"min_price":          cfg.Trading.MinPrice,
		"max_price":          cfg.Trading.MaxPrice,
		"max_position_cents": cfg.Trading.MaxPositionCents,
		"scan_interval_s":    cfg.Trading.ScanIntervalSeconds,
		"lookahead_days":     cfg.Trading.LookaheadDays,
		"dry_run":            cfg.Trading.DryRun,
		"discord":            notifier.Enabled(),
	}).Info("Settlement sniper starting")

	notifier.Alert(ctx, fmt.Sprintf(
		"Bot started!\nPrice range: %d-%d¢\nMax position: $%d\nDry run: %v",
		cfg.Trading.MinPrice, cfg.Trading.MaxPrice, cfg.Trading.MaxPositionCents/100, cfg.Trading.DryRun))

	seen := models.NewSeenTrades(seenResetThreshold)
	interval := time.Duration(cfg.Trading.ScanIntervalSeconds) * time.Second

	for ctx.Err() == nil {
		runCycle(ctx, scan, executor, session, seen, watcher, cfg.Trading.DryRun)

		select {
		case <-ctx.Done():
		case <-time.After(interval):
		}
	}

	logger.Info("Received shutdown signal")
	watcher.Close()
	notifier.Alert(context.Background(), "Bot stopped")
	logger.Info("Settlement sniper stopped")
}

func runCycle(ctx context.Context, scan *scanner.Scanner, executor *trader.Executor, session *trader.Session, seen *models.SeenTrades, watcher *settlementWatch, dryRun bool) {
	now := time.Now().UTC()
	logger.Info("Scanning for opportunities")

	result, err := scan.Scan(ctx, now)
	if err != nil {
		logger.WithError(err).Error("Scan failed, waiting for next cycle")
		return
	}
	session.RecordCycle(now, result.MarketsScanned, result.BookErrors, result.Opportunities)

	var fresh []models.Opportunity
	for _, opp := range result.Opportunities {
		if seen.Observe(opp) {
			fresh = append(fresh, opp)
		}
	}

	logger.WithFields(logrus.Fields{
		"markets_scanned": result.MarketsScanned,
		"book_errors":     result.BookErrors,
		"opportunities":   len(result.Opportunities),
		"new":             len(fresh),
	}).Info("Scan complete")

	if len(fresh) > 0 {
		sort.Slice(fresh, func(i, j int) bool {
			return fresh[i].ProfitPct > fresh[j].ProfitPct
		})

		limit := len(fresh)
		if limit > maxTradesPerCycle {
			limit = maxTradesPerCycle
		}
		for _, opp := range fresh[:limit] {
			if ctx.Err() != nil {
				return
			}
			if executor.Execute(ctx, opp) && !dryRun {
				watcher.Watch(ctx, opp.Ticker)
			}

			select {
			case <-ctx.Done():
				return
			case <-time.After(tradePause):
			}
		}
	}

	seen.Sweep()
}

// settlementWatch lazily connects the websocket watcher and subscribes to
// tickers the bot has bought, so settlement shows up in the logs.
// Best-effort only.
type settlementWatch struct {
	cfg       *config.Config
	accessKey string
	signer    kalshi.Signer
	logger    *logrus.Logger
	watcher   *kalshi.MarketWatcher
}

func newSettlementWatch(cfg *config.Config, signer kalshi.Signer, logger *logrus.Logger) *settlementWatch {
	return &settlementWatch{
		cfg:       cfg,
		accessKey: cfg.Kalshi.APIKeyID,
		signer:    signer,
		logger:    logger,
	}
}

func (s *settlementWatch) Watch(ctx context.Context, ticker string) {
	if s.watcher == nil {
		w := kalshi.NewMarketWatcher(s.cfg.Kalshi.WebsocketURL, s.accessKey, s.signer, s.logger)
		if err := w.Connect(ctx); err != nil {
			s.logger.WithError(err).Warn("Settlement watcher connect failed")
			return
		}
		w.RegisterHandler("ticker", func(msg json.RawMessage) error {
			s.logger.WithField("update", string(msg)).Debug("Market update")
			return nil
		})
		s.watcher = w
	}

	if err := s.watcher.Subscribe([]string{"ticker"}, []string{ticker}); err != nil {
		s.logger.WithError(err).WithField("ticker", ticker).Warn("Settlement watch subscribe failed")
	}
}

func (s *settlementWatch) Close() {
	if s.watcher != nil {
		s.watcher.Close()
	}
}
