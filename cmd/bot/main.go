// cmd/bot/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"subgate/internal/backup"
	commonaws "subgate/internal/common/aws"
	"subgate/internal/common/config"
	"subgate/internal/common/database"
	"subgate/internal/common/logger"
	"subgate/internal/common/observability"
	"subgate/internal/bot"
	"subgate/internal/gate"
	"subgate/internal/membership"
	"subgate/internal/notify"
	"subgate/internal/observe"
	"subgate/internal/session"
	"subgate/internal/store"
	"subgate/internal/telegram"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting subscription gate bot...",
		zap.String("env", cfg.App.Environment),
		zap.String("version", cfg.App.Version),
	)

	obs := observability.New(cfg.App.Name)
	defer obs.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Redis with retry ---
	var rdb *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		rdb, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return rdb.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")
	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer rdb.Close()
	zapLog.Info("Redis connected successfully")

	// --- Init Elasticsearch (optional verdict index) ---
	var esClient *database.ElasticsearchClient
	if cfg.Database.Elasticsearch.Enabled {
		err = retryWithBackoff(func() error {
			var err error
			esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return esClient.Ping()
		}, 10, 2*time.Second, zapLog, "Elasticsearch connection")
		if err != nil {
			zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
		}
		zapLog.Info("Elasticsearch connected successfully")
	}

	st := store.New(pg.DB, log)
	if err := st.EnsureSchema(ctx); err != nil {
		zapLog.Fatal("schema migration failed", zap.Error(err))
	}

	api := telegram.NewClient(
		cfg.Telegram.APIBaseURL,
		cfg.Telegram.Token,
		time.Duration(cfg.Telegram.RequestTimeout)*time.Millisecond,
	)

	oracle := membership.NewOracle(api, log, time.Duration(cfg.Gate.OracleTimeout)*time.Millisecond)

	var me *telegram.User
	err = retryWithBackoff(func() error {
		var err error
		me, err = api.GetMe(ctx)
		return err
	}, 5, 2*time.Second, zapLog, "Bot API handshake")
	if err != nil {
		zapLog.Fatal("bot api unreachable", zap.Error(err))
	}
	validator := membership.NewValidator(api, log, me.ID)

	var sink *observe.Sink
	if esClient != nil {
		sink = observe.New(rdb.Client, esClient.Client, cfg.Database.Elasticsearch.VerdictIdx,
			st, time.Duration(cfg.Observe.CacheTTL)*time.Second, log)
	} else {
		sink = observe.New(rdb.Client, nil, "",
			st, time.Duration(cfg.Observe.CacheTTL)*time.Second, log)
	}

	// --- Operator alerting (optional) ---
	var notifier *notify.Notifier
	if cfg.Alerts.Email.Enabled || cfg.Alerts.SMS.Enabled {
		var sesSvc notify.SESService
		var snsSvc notify.SNSService
		if cfg.Alerts.Email.Enabled {
			client, err := commonaws.NewSESClient(ctx, cfg.Alerts.AWS.Region)
			if err != nil {
				zapLog.Fatal("ses client failed", zap.Error(err))
			}
			sesSvc = client
		}
		if cfg.Alerts.SMS.Enabled {
			client, err := commonaws.NewSNSClient(ctx, cfg.Alerts.AWS.Region)
			if err != nil {
				zapLog.Fatal("sns client failed", zap.Error(err))
			}
			snsSvc = client
		}
		notifier = notify.New(cfg.Alerts, sesSvc, snsSvc, log)
	}

	var faultNotifier gate.FaultNotifier
	if notifier != nil {
		faultNotifier = notifier
	}
	protocol := gate.NewProtocol(st, oracle, sink, faultNotifier, obs, log, cfg.Gate.GlobalChannel)
	resume := gate.NewResume(protocol, time.Duration(cfg.Gate.RecheckDelay)*time.Second)

	sessions := session.NewManager(rdb.Client, log, time.Hour)

	// --- Backup job (optional) ---
	if cfg.Backup.Enabled {
		s3Client, err := commonaws.NewS3Client(ctx,
			cfg.Backup.Region, cfg.Backup.EndpointURL, cfg.Backup.KeyID, cfg.Backup.AppKey)
		if err != nil {
			zapLog.Fatal("backup storage client failed", zap.Error(err))
		}
		job := backup.NewJob(cfg.Backup, cfg.Database.Postgres, s3Client, log)
		go func() {
			if err := job.Run(ctx); err != nil && ctx.Err() == nil {
				zapLog.Error("backup job stopped", zap.Error(err))
			}
		}()
		zapLog.Info("Backup job scheduled", zap.Int("intervalMinutes", cfg.Backup.Interval))
	}

	// --- Health/Metrics server ---
	go func() {
		http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{
				"status": "healthy",
				"time":   time.Now().Format(time.RFC3339),
			})
		})
		http.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			if err := pg.Ping(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				json.NewEncoder(w).Encode(map[string]string{"status": "degraded", "error": err.Error()})
				return
			}
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{
				"status": "ready",
				"time":   time.Now().Format(time.RFC3339),
			})
		})
		http.Handle("/metrics", promhttp.Handler())
		zapLog.Info("Health/Metrics server listening", zap.String("address", cfg.Health.Address))
		if err := http.ListenAndServe(cfg.Health.Address, nil); err != nil {
			zapLog.Error("health server stopped", zap.Error(err))
		}
	}()

	b := bot.New(api, st, sessions, protocol, resume, validator, cfg, log)
	zapLog.Info("Bot is running. Press Ctrl+C to exit.")
	if err := b.Run(ctx); err != nil && ctx.Err() == nil {
		zapLog.Fatal("bot stopped", zap.Error(err))
	}
	zapLog.Info("Shutting down gracefully...")
}
