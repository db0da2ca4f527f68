// cmd/tools/backup/main.go
//
// One-shot database snapshot: dump, gzip, upload. Useful before
// migrations and from cron on hosts that do not run the bot.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"subgate/internal/backup"
	commonaws "subgate/internal/common/aws"
	"subgate/internal/common/config"
	"subgate/internal/common/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	if cfg.Backup.Bucket == "" {
		zapLog.Fatal("backup bucket is not configured")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	s3Client, err := commonaws.NewS3Client(ctx,
		cfg.Backup.Region, cfg.Backup.EndpointURL, cfg.Backup.KeyID, cfg.Backup.AppKey)
	if err != nil {
		zapLog.Fatal("backup storage client failed", zap.Error(err))
	}

	job := backup.NewJob(cfg.Backup, cfg.Database.Postgres, s3Client, log)
	if err := job.Snapshot(ctx); err != nil {
		zapLog.Fatal("snapshot failed", zap.Error(err))
	}
	zapLog.Info("Snapshot uploaded")
}
