package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"glowdesk/internal/config"
	"glowdesk/internal/events"
	"glowdesk/internal/export"
	"glowdesk/internal/metrics"
	"glowdesk/internal/models"
	"glowdesk/internal/notify"
	"glowdesk/internal/salonapi"
	"glowdesk/internal/server"
	"glowdesk/internal/session"
	"glowdesk/internal/storage"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	cfg, err := config.Load(os.Getenv("GLOWDESK_CONFIG_PATH"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil && cfg.LogLevel != "" {
		zerolog.SetGlobalLevel(level)
	}

	if cfg.API.BaseURL == "" {
		logger.Fatal().Msg("set api.base_url in config")
	}

	db, err := storage.NewDB(cfg.Database.Path)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db error")
	}
	defer db.Close()

	client := salonapi.NewClient(cfg.API.BaseURL, cfg.APITimeout(), logger)

	var rdb *redis.Client
	if cfg.Redis.Enabled && cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		client.UseRedisCache(rdb, cfg.APICacheTTL())
	}

	// Session state: Redis primary with SQLite failover when Redis is
	// configured, SQLite alone otherwise.
	sqlRepo := session.NewSQLiteStateRepository(db)
	var stateRepo session.StateRepository = sqlRepo
	if rdb != nil {
		primary := session.NewRedisStateRepository(rdb, cfg.SessionTTL())
		stateRepo = session.NewFailoverStateRepository(primary, stateRepo, &logger)
	}

	sessions := session.NewManager(client, client, stateRepo, cfg.SessionIdle(), logger)
	// Redis expires its keys on its own; the SQLite rows need the sweeper.
	sessions.UsePurger(sqlRepo, cfg.SessionTTL())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sessions.StartSweeper(ctx, cfg.SessionSweep())

	backups := storage.NewBackupService(cfg.Database.Path, storage.BackupOptions{
		Enabled:       cfg.Backup.Enabled,
		StoragePath:   cfg.Backup.Path,
		Interval:      cfg.BackupInterval(),
		RetentionDays: cfg.Backup.RetentionDays,
	}, logger)
	go backups.Start(ctx)

	notifier := buildNotifier(cfg, logger)
	bus := events.NewBus(logger)
	sheets := buildSheets(ctx, cfg, logger)
	subscribeSideEffects(ctx, bus, db, notifier, sheets, &logger)

	srv := server.New(client, sessions, bus, notifier, db, server.Options{
		OTPPerMinute:     cfg.OTPRate(),
		OTPBurst:         cfg.OTPBurst(),
		DefaultRangeDays: cfg.DefaultRangeDays(),
	}, logger)
	if sheets != nil {
		srv.UseSheets(sheets)
	}

	if cfg.Monitoring.HealthCheckPort == 0 {
		cfg.Monitoring.HealthCheckPort = 8091
	}
	go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, db, rdb, client, &logger)

	if cfg.Monitoring.PrometheusEnabled {
		if cfg.Monitoring.PrometheusPort == 0 {
			cfg.Monitoring.PrometheusPort = 9090
		}
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	httpSrv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      srv.Handler(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSec) * time.Second,
	}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(ctxShutdown)
	}()

	logger.Info().Int("port", cfg.Server.Port).Msg("glowdesk frontend started")
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal().Err(err).Msg("http server error")
	}
}

func buildNotifier(cfg *config.Config, logger zerolog.Logger) notify.Notifier {
	notifiers := notify.Multi{notify.NewLogNotifier(logger)}
	if cfg.Telegram.Enabled && cfg.Telegram.BotToken != "" {
		bot, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
		if err != nil {
			logger.Error().Err(err).Msg("telegram init failed, notifications go to log only")
		} else {
			bot.Debug = cfg.Telegram.Debug
			notifiers = append(notifiers, notify.NewTelegramNotifier(bot, cfg.Telegram.ChatID, logger))
		}
	}
	return notifiers
}

func buildSheets(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *export.SheetsService {
	if !cfg.Sheets.Enabled {
		return nil
	}
	sheets, err := export.NewSheetsService(ctx, cfg.Sheets.CredentialsPath, cfg.Sheets.SpreadsheetID, cfg.Sheets.SheetName, logger)
	if err != nil {
		logger.Error().Err(err).Msg("sheets init failed, mirror disabled")
		return nil
	}
	return sheets
}

// subscribeSideEffects binds the audit trail, staff notifications and the
// Sheets mirror to booking events.
func subscribeSideEffects(ctx context.Context, bus *events.Bus, db *storage.DB, notifier notify.Notifier, sheets *export.SheetsService, logger *zerolog.Logger) {
	bus.Subscribe(events.TypeBookingCreated, func(e events.Event) error {
		booking, ok := e.Payload.(models.Booking)
		if !ok {
			return fmt.Errorf("unexpected payload type %T", e.Payload)
		}

		notifier.BookingCreated(booking)

		if err := db.InsertBookingAudit(ctx, &storage.AuditEntry{
			BookingID:    booking.ID,
			ClientName:   booking.Name,
			ClientEmail:  booking.Email,
			Service:      booking.Service,
			BookedDate:   booking.Date,
			BookedTime:   booking.Time,
			HairArtistID: booking.HairArtistID,
			Status:       booking.Status,
		}); err != nil {
			logger.Error().Err(err).Int64("booking_id", booking.ID).Msg("audit write failed")
		}

		if sheets != nil {
			if err := sheets.UpsertBooking(ctx, &booking); err != nil {
				logger.Error().Err(err).Int64("booking_id", booking.ID).Msg("sheets mirror failed")
			}
		}
		return nil
	})

	bus.Subscribe(events.TypeOTPRequested, func(e events.Event) error {
		if contact, ok := e.Payload.(string); ok {
			logger.Debug().Str("contact", contact).Msg("one-time code requested")
		}
		return nil
	})
}

func startHealthServer(ctx context.Context, port int, db *storage.DB, rdb *redis.Client, client *salonapi.Client, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if err := db.PingContext(ctxPing); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		if rdb != nil {
			if err := rdb.Ping(ctxPing).Err(); err != nil {
				http.Error(w, "redis not ready", http.StatusServiceUnavailable)
				return
			}
		}
		if err := client.HealthCheck(ctxPing); err != nil {
			http.Error(w, "booking api not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("health server error")
	}
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
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
