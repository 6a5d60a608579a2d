package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"studiodesk/internal/api"
	"studiodesk/internal/config"
	"studiodesk/internal/database"
	"studiodesk/internal/domain"
	"studiodesk/internal/events"
	"studiodesk/internal/export"
	"studiodesk/internal/google"
	"studiodesk/internal/logging"
	"studiodesk/internal/metrics"
	"studiodesk/internal/models"
	"studiodesk/internal/repository"
	"studiodesk/internal/service"
	"studiodesk/internal/worker"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var (
	ledgerFrom = flag.String("ledger-from", "", "write the ledger workbook starting at this date (YYYY-MM-DD) and exit")
	ledgerTo   = flag.String("ledger-to", "", "last day of the ledger workbook, inclusive (YYYY-MM-DD)")
)

func main() {
	flag.Parse()
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	db, err := initDatabase(cfg, &logger)
	if err != nil {
		return err
	}
	defer db.Close()

	studio := service.NewStudio(cfg.Studio)
	bus := events.NewEventBus()

	bookings := service.NewBookingService(db, bus, studio, logging.Component(&logger, "bookings"))
	settlements := service.NewSettlementService(db, bus, studio.Billing, logging.Component(&logger, "settlements"))
	commissions := service.NewCommissionService(db, logging.Component(&logger, "commissions"))

	if *ledgerFrom != "" {
		return exportLedger(context.Background(), cfg, settlements, commissions, &logger)
	}

	if !cfg.API.Enabled {
		logger.Warn().Msg("API is disabled in config, but starting API application. Check your config.")
	}

	redisClient := initRedis(cfg, &logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	outbox, err := initOutbox(ctx, cfg, db, bus, redisClient, &logger)
	if err != nil {
		return err
	}

	drafts := service.NewDraftService(initDrafts(cfg, redisClient, &logger), bookings, logging.Component(&logger, "drafts"))

	httpServer := api.NewHTTPServer(cfg.API, api.Services{
		Bookings:    bookings,
		Settlements: settlements,
		Commissions: commissions,
		Drafts:      drafts,
		Outbox:      outbox,
	}, logging.Component(&logger, "http"))

	go database.NewBackupService(cfg.Database.Path, cfg.Backup, logging.Component(&logger, "backup")).Start(ctx)

	startMetrics(ctx, cfg, &logger)

	return startServer(ctx, httpServer, cfg, &logger)
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "api-main").Logger()

	return cfg, logger, closer, nil
}

func initDatabase(cfg *config.Config, logger *zerolog.Logger) (*database.DB, error) {
	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return nil, err
	}
	return db, nil
}

func initRedis(cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	client := repository.NewRedisClient(cfg.Redis)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := repository.Ping(ctx, client); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = client.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return client
}

// initDrafts prefers redis and falls back to process memory while redis is down.
func initDrafts(cfg *config.Config, client *redis.Client, logger *zerolog.Logger) domain.DraftRepository {
	ttl := time.Duration(cfg.Redis.DraftTTL) * time.Second
	memory := repository.NewMemoryDraftRepository(ttl)
	if client == nil {
		return memory
	}
	return repository.NewFailoverDraftRepository(
		repository.NewRedisDraftRepository(client, ttl),
		memory,
		logging.Component(logger, "drafts-store"),
	)
}

func initOutbox(
	ctx context.Context,
	cfg *config.Config,
	db *database.DB,
	bus *events.EventBus,
	client *redis.Client,
	logger *zerolog.Logger,
) (*worker.OutboxWorker, error) {
	intervals, err := cfg.Outbox.Intervals()
	if err != nil {
		return nil, err
	}

	outboxLogger := logging.Component(logger, "outbox")
	var notifier domain.Notifier = worker.NewLogNotifier(outboxLogger)
	if client != nil {
		notifier = worker.NewRedisNotifier(client, cfg.Outbox.QueueKey)
	}
	sinks := []domain.Notifier{notifier}
	if bot := initTelegram(cfg, logger); bot != nil {
		sinks = append(sinks, worker.NewTelegramNotifier(bot, cfg.Telegram.ChatID))
	}
	if board := initBoard(ctx, cfg, logger); board != nil {
		sinks = append(sinks, board)
	}
	if len(sinks) > 1 {
		notifier = worker.NewFanOutNotifier(sinks...)
	}

	outbox := worker.NewOutboxWorker(db, notifier, worker.Options{
		PollInterval: intervals.Poll,
		BatchSize:    cfg.Outbox.BatchSize,
		Retry: worker.RetryPolicy{
			MaxRetries:    cfg.Outbox.MaxRetries,
			InitialDelay:  intervals.Initial,
			MaxDelay:      intervals.Max,
			BackoffFactor: cfg.Outbox.BackoffFactor,
		},
	}, outboxLogger)

	if !cfg.Outbox.Enabled {
		logger.Info().Msg("outbox disabled, studio events are not persisted")
		return outbox, nil
	}

	outbox.Subscribe(bus)
	go outbox.Start(ctx)
	return outbox, nil
}

func initTelegram(cfg *config.Config, logger *zerolog.Logger) *tgbotapi.BotAPI {
	if cfg.Telegram.BotToken == "" {
		return nil
	}

	bot, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
	if err != nil {
		logger.Warn().Err(err).Msg("telegram init failed, continuing without staff chat")
		return nil
	}
	bot.Debug = cfg.Telegram.Debug

	logger.Info().Str("bot", bot.Self.UserName).Int64("chat_id", cfg.Telegram.ChatID).Msg("telegram connected")
	return bot
}

func initBoard(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *google.BookingBoard {
	if cfg.Google.CredentialsFile == "" || cfg.Google.SpreadsheetID == "" {
		return nil
	}

	board, err := google.NewBookingBoard(ctx, cfg.Google.CredentialsFile, cfg.Google.SpreadsheetID)
	if err != nil {
		logger.Warn().Err(err).Msg("google sheets init failed, continuing without booking board")
		return nil
	}
	warmCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := board.WarmUpCache(warmCtx); err != nil {
		logger.Warn().Err(err).Msg("booking board cache warm-up failed")
	}

	logger.Info().Msg("google sheets connected")
	return board
}

func exportLedger(
	ctx context.Context,
	cfg *config.Config,
	settlements *service.SettlementService,
	commissions *service.CommissionService,
	logger *zerolog.Logger,
) error {
	from, err := time.Parse(models.DateLayout, *ledgerFrom)
	if err != nil {
		return fmt.Errorf("ledger-from: %w", err)
	}
	to := from
	if *ledgerTo != "" {
		if to, err = time.Parse(models.DateLayout, *ledgerTo); err != nil {
			return fmt.Errorf("ledger-to: %w", err)
		}
	}
	if to.Before(from) {
		return fmt.Errorf("ledger-to %s is before ledger-from %s", *ledgerTo, *ledgerFrom)
	}
	end := to.AddDate(0, 0, 1)

	txs, err := settlements.Transactions(ctx, from, end)
	if err != nil {
		return err
	}
	records, err := commissions.EstimateAll(ctx)
	if err != nil {
		return err
	}

	f, err := export.LedgerWorkbook(txs, records)
	if err != nil {
		return err
	}
	defer f.Close()

	path, err := export.Save(f, cfg.Exports.Path, export.LedgerFileName(from, end))
	if err != nil {
		return err
	}
	logger.Info().Str("path", path).Int("transactions", len(txs)).Msg("ledger exported")
	return nil
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
}

func startServer(ctx context.Context, httpServer *api.HTTPServer, cfg *config.Config, logger *zerolog.Logger) error {
	go func() {
		if !cfg.API.HTTP.Enabled {
			return
		}
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	logger.Info().Int("http_port", cfg.API.HTTP.Port).Msg("API server started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("API server stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
