//go:build integration

package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"testing"
	"time"

	"github.com/reportq/reportq/internal/storage"
)

func TestMinIOArchiveObjects(t *testing.T) {
	store := openIntegrationStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	delivery := fmt.Sprintf("it-%d", time.Now().UnixNano())
	key, err := storage.BuildReportPath(delivery, "csv", time.Now())
	if err != nil {
		t.Fatalf("BuildReportPath() error = %v", err)
	}
	body := []byte("1. Query all tracks\nTrackId,Name\n1,For Those About To Rock\n")

	t.Run("put returns relative key", func(t *testing.T) {
		info, err := store.Put(ctx, key, bytes.NewReader(body), int64(len(body)), storage.PutOptions{
			ContentType: "text/csv",
			Metadata:    map[string]string{"Delivery-Id": delivery},
		})
		if err != nil {
			t.Fatalf("Put() error = %v", err)
		}
		if info.Key != key {
			t.Fatalf("Put().Key = %q, want %q", info.Key, key)
		}
	})

	t.Run("stat reads back metadata", func(t *testing.T) {
		info, err := store.Stat(ctx, key)
		if err != nil {
			t.Fatalf("Stat() error = %v", err)
		}
		if info.Size != int64(len(body)) || info.ContentType != "text/csv" {
			t.Fatalf("Stat() = %+v", info)
		}
		if info.Metadata["Delivery-Id"] != delivery {
			t.Fatalf("Stat().Metadata = %v", info.Metadata)
		}
	})

	t.Run("get streams body", func(t *testing.T) {
		rc, err := store.Get(ctx, key)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		defer func() { _ = rc.Close() }()
		got, err := io.ReadAll(rc)
		if err != nil {
			t.Fatalf("io.ReadAll() error = %v", err)
		}
		if !bytes.Equal(got, body) {
			t.Fatalf("Get() = %q", got)
		}
	})

	t.Run("missing key", func(t *testing.T) {
		if _, err := store.Get(ctx, "reports/date=1970-01-01/report-none.csv"); !errors.Is(err, storage.ErrObjectNotFound) {
			t.Fatalf("Get(missing) error = %v, want ErrObjectNotFound", err)
		}
	})
}

func openIntegrationStore(t *testing.T) *Store {
	t.Helper()
	endpoint := os.Getenv("REPORTQ_TEST_S3_ENDPOINT")
	if endpoint == "" {
		t.Skip("REPORTQ_TEST_S3_ENDPOINT is not set")
	}
	get := func(key, fallback string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		return fallback
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	store, err := New(ctx, Config{
		Endpoint:         endpoint,
		Region:           get("REPORTQ_TEST_S3_REGION", "us-east-1"),
		Bucket:           get("REPORTQ_TEST_S3_BUCKET", "reportq-it"),
		AccessKeyID:      get("REPORTQ_TEST_S3_ACCESS_KEY", "minio"),
		SecretAccessKey:  get("REPORTQ_TEST_S3_SECRET_KEY", "miniostorage"),
		Prefix:           "integration",
		AutoCreateBucket: true,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return store
}
