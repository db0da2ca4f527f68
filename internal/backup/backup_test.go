package backup

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subgate/internal/common/config"
	"subgate/internal/common/logger"
)

type fakeObjectStore struct {
	objects map[string][]byte
	deleted []string
	putErr  error
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{objects: map[string][]byte{}}
}

func (f *fakeObjectStore) PutObject(ctx context.Context, input *s3.PutObjectInput) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	body, err := io.ReadAll(input.Body)
	if err != nil {
		return nil, err
	}
	f.objects[awssdk.ToString(input.Key)] = body
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeObjectStore) ListObjects(ctx context.Context, input *s3.ListObjectsV2Input) (*s3.ListObjectsV2Output, error) {
	out := &s3.ListObjectsV2Output{}
	for key := range f.objects {
		out.Contents = append(out.Contents, s3types.Object{Key: awssdk.String(key)})
	}
	return out, nil
}

func (f *fakeObjectStore) DeleteObject(ctx context.Context, input *s3.DeleteObjectInput) (*s3.DeleteObjectOutput, error) {
	key := awssdk.ToString(input.Key)
	delete(f.objects, key)
	f.deleted = append(f.deleted, key)
	return &s3.DeleteObjectOutput{}, nil
}

func newTestJob(t *testing.T, store ObjectStore) *Job {
	t.Helper()
	cfg := config.BackupConfig{Enabled: true, Bucket: "backups", Interval: 60}
	pg := config.PostgresConfig{Host: "localhost", Port: 5432, Database: "subgate", User: "app"}
	job := NewJob(cfg, pg, store, logger.NewTestLogger(t))
	job.dump = func(ctx context.Context) ([]byte, error) {
		return []byte("-- dump\nCREATE TABLE users ();\n"), nil
	}
	return job
}

func TestSnapshotUploadsGzippedDump(t *testing.T) {
	store := newFakeObjectStore()
	job := newTestJob(t, store)
	job.now = func() time.Time {
		return time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	}

	require.NoError(t, job.Snapshot(context.Background()))

	key := "backups/subgate_20260829T120000.sql.gz"
	raw, ok := store.objects[key]
	require.True(t, ok, "expected %s, got %v", key, store.objects)

	gz, err := gzip.NewReader(bytes.NewReader(raw))
	require.NoError(t, err)
	dump, err := io.ReadAll(gz)
	require.NoError(t, err)
	assert.Contains(t, string(dump), "CREATE TABLE users")
}

func TestSnapshotPrunesOldBackups(t *testing.T) {
	store := newFakeObjectStore()
	job := newTestJob(t, store)
	job.keep = 3

	base := time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		hour := base.Add(time.Duration(i) * time.Hour)
		job.now = func() time.Time { return hour }
		require.NoError(t, job.Snapshot(context.Background()))
	}

	assert.Len(t, store.objects, 3)
	assert.NotContains(t, store.objects, "backups/subgate_20260829T000000.sql.gz")
	assert.Contains(t, store.objects, "backups/subgate_20260829T040000.sql.gz")
}

func TestSnapshotUploadFailure(t *testing.T) {
	store := newFakeObjectStore()
	store.putErr = fmt.Errorf("bucket gone")
	job := newTestJob(t, store)

	err := job.Snapshot(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket gone")
}
