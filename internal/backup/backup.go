package backup

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"os/exec"
	"sort"
	"time"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"subgate/internal/common/config"
	"subgate/internal/common/logger"
)

// ObjectStore is the slice of the S3 API the job uses. Backblaze B2
// speaks the same protocol through its S3-compatible endpoint.
type ObjectStore interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput) (*s3.PutObjectOutput, error)
	ListObjects(ctx context.Context, input *s3.ListObjectsV2Input) (*s3.ListObjectsV2Output, error)
	DeleteObject(ctx context.Context, input *s3.DeleteObjectInput) (*s3.DeleteObjectOutput, error)
}

// Job periodically dumps the database, compresses the dump and ships
// it to the object store, keeping only the most recent snapshots.
type Job struct {
	cfg    config.BackupConfig
	pg     config.PostgresConfig
	store  ObjectStore
	logger logger.Logger
	keep   int

	// dump is swapped out in tests; the default shells out to pg_dump.
	dump func(ctx context.Context) ([]byte, error)
	now  func() time.Time
}

func NewJob(cfg config.BackupConfig, pg config.PostgresConfig, store ObjectStore, log logger.Logger) *Job {
	job := &Job{
		cfg:    cfg,
		pg:     pg,
		store:  store,
		logger: log,
		keep:   24,
		now:    time.Now,
	}
	job.dump = job.pgDump
	return job
}

// Run blocks, taking a snapshot every interval until ctx is cancelled.
func (j *Job) Run(ctx context.Context) error {
	interval := time.Duration(j.cfg.Interval) * time.Minute
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := j.Snapshot(ctx); err != nil {
				j.logger.Error("backup failed", map[string]interface{}{"error": err.Error()})
			}
		}
	}
}

// Snapshot takes one backup: dump, gzip, upload, prune.
func (j *Job) Snapshot(ctx context.Context) error {
	raw, err := j.dump(ctx)
	if err != nil {
		return fmt.Errorf("dump database: %w", err)
	}

	var compressed bytes.Buffer
	gz := gzip.NewWriter(&compressed)
	if _, err := gz.Write(raw); err != nil {
		return fmt.Errorf("compress dump: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("compress dump: %w", err)
	}

	key := fmt.Sprintf("backups/%s_%s.sql.gz", j.pg.Database, j.now().UTC().Format("20060102T150405"))
	_, err = j.store.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      awssdk.String(j.cfg.Bucket),
		Key:         awssdk.String(key),
		Body:        bytes.NewReader(compressed.Bytes()),
		ContentType: awssdk.String("application/gzip"),
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}

	j.logger.Info("backup uploaded", map[string]interface{}{
		"key":        key,
		"raw_bytes":  len(raw),
		"gzip_bytes": compressed.Len(),
	})
	return j.prune(ctx)
}

// prune deletes everything beyond the newest keep snapshots.
func (j *Job) prune(ctx context.Context) error {
	out, err := j.store.ListObjects(ctx, &s3.ListObjectsV2Input{
		Bucket: awssdk.String(j.cfg.Bucket),
		Prefix: awssdk.String("backups/"),
	})
	if err != nil {
		return fmt.Errorf("list backups: %w", err)
	}
	if len(out.Contents) <= j.keep {
		return nil
	}

	keys := make([]string, 0, len(out.Contents))
	for _, obj := range out.Contents {
		keys = append(keys, awssdk.ToString(obj.Key))
	}
	// Keys embed the timestamp, so lexical order is age order.
	sort.Strings(keys)

	for _, key := range keys[:len(keys)-j.keep] {
		_, err := j.store.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: awssdk.String(j.cfg.Bucket),
			Key:    awssdk.String(key),
		})
		if err != nil {
			j.logger.Warn("prune failed", map[string]interface{}{"key": key, "error": err.Error()})
			continue
		}
		j.logger.Debug("old backup removed", map[string]interface{}{"key": key})
	}
	return nil
}

func (j *Job) pgDump(ctx context.Context) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "pg_dump",
		"--host", j.pg.Host,
		"--port", fmt.Sprint(j.pg.Port),
		"--username", j.pg.User,
		"--dbname", j.pg.Database,
		"--no-password",
	)
	cmd.Env = append(cmd.Environ(), "PGPASSWORD="+j.pg.Password)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("pg_dump: %w: %s", err, stderr.String())
	}
	return stdout.Bytes(), nil
}
