package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"

	"github.com/reportq/reportq/internal/config"
	"github.com/reportq/reportq/internal/storage"
)

func TestPutStoresUnderPrefixAndReturnsRelativeKey(t *testing.T) {
	fake := &fakeAPI{}
	store, err := newWithAPI("bucket-a", "reportq/prod/", fake)
	if err != nil {
		t.Fatalf("newWithAPI() error = %v", err)
	}

	info, err := store.Put(context.Background(), "/reports/date=2026-01-01/report-41.csv", bytes.NewBufferString("abc"), 3, storage.PutOptions{
		ContentType: "text/csv",
		Metadata:    map[string]string{"Delivery-Id": "41"},
	})
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if fake.putBucket != "bucket-a" {
		t.Fatalf("bucket = %q", fake.putBucket)
	}
	if fake.putKey != "reportq/prod/reports/date=2026-01-01/report-41.csv" {
		t.Fatalf("bucket key = %q", fake.putKey)
	}
	if fake.putOpts.ContentType != "text/csv" || fake.putOpts.UserMetadata["Delivery-Id"] != "41" {
		t.Fatalf("put options = %+v", fake.putOpts)
	}
	if info.Key != "reports/date=2026-01-01/report-41.csv" {
		t.Fatalf("Put().Key = %q, want key relative to prefix", info.Key)
	}
	if info.Size != 3 || info.ETag != "etag-1" {
		t.Fatalf("Put() = %+v", info)
	}
}

func TestPutRejectsPathTraversal(t *testing.T) {
	store, err := newWithAPI("bucket-a", "", &fakeAPI{})
	if err != nil {
		t.Fatalf("newWithAPI() error = %v", err)
	}
	for _, key := range []string{"../secrets.txt", "reports/../../x", "  ", "/"} {
		if _, err := store.Put(context.Background(), key, bytes.NewBufferString("x"), 1, storage.PutOptions{}); err == nil {
			t.Fatalf("Put(%q) expected key validation error", key)
		}
	}
}

func TestGetMapsMissingObject(t *testing.T) {
	fake := &fakeAPI{statErr: minio.ErrorResponse{Code: "NoSuchKey"}}
	store, err := newWithAPI("bucket-a", "", fake)
	if err != nil {
		t.Fatalf("newWithAPI() error = %v", err)
	}
	if _, err := store.Get(context.Background(), "reports/missing.csv"); !errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("Get() error = %v, want ErrObjectNotFound", err)
	}
	if fake.getCalled {
		t.Fatal("GetObject should not be called for a missing report")
	}
}

func TestStatWrapsTransportError(t *testing.T) {
	boom := errors.New("connection reset")
	store, err := newWithAPI("bucket-a", "", &fakeAPI{statErr: boom})
	if err != nil {
		t.Fatalf("newWithAPI() error = %v", err)
	}
	if _, err := store.Stat(context.Background(), "reports/r.json"); !errors.Is(err, boom) {
		t.Fatalf("Stat() error = %v, want %v", err, boom)
	}
}

func TestStatReturnsRelativeKeyAndMetadata(t *testing.T) {
	modified := time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC)
	fake := &fakeAPI{statInfo: minio.ObjectInfo{
		Size:         10,
		ETag:         "etag-2",
		ContentType:  "application/json",
		LastModified: modified,
		UserMetadata: minio.StringMap{"Report-Format": "JSON"},
	}}
	store, err := newWithAPI("bucket-a", "/archive/", fake)
	if err != nil {
		t.Fatalf("newWithAPI() error = %v", err)
	}

	info, err := store.Stat(context.Background(), "reports/r.json")
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if fake.statKey != "archive/reports/r.json" {
		t.Fatalf("bucket key = %q", fake.statKey)
	}
	if info.Key != "reports/r.json" || info.Size != 10 || info.ContentType != "application/json" {
		t.Fatalf("Stat() = %+v", info)
	}
	if !info.LastModified.Equal(modified) || info.Metadata["Report-Format"] != "JSON" {
		t.Fatalf("Stat() = %+v", info)
	}
}

func TestEnsureBucketCreatesWhenMissing(t *testing.T) {
	fake := &fakeAPI{}
	store, err := newWithAPI("bucket-a", "", fake)
	if err != nil {
		t.Fatalf("newWithAPI() error = %v", err)
	}

	if err := store.ensureBucket(context.Background(), "us-east-1"); err != nil {
		t.Fatalf("ensureBucket() error = %v", err)
	}
	if fake.madeBucket != "bucket-a" || fake.madeRegion != "us-east-1" {
		t.Fatalf("MakeBucket(%q, %q)", fake.madeBucket, fake.madeRegion)
	}
}

func TestEnsureBucketToleratesConcurrentCreate(t *testing.T) {
	fake := &fakeAPI{makeErr: minio.ErrorResponse{Code: "BucketAlreadyOwnedByYou"}}
	store, err := newWithAPI("bucket-a", "", fake)
	if err != nil {
		t.Fatalf("newWithAPI() error = %v", err)
	}
	if err := store.ensureBucket(context.Background(), ""); err != nil {
		t.Fatalf("ensureBucket() error = %v", err)
	}
}

func TestNewValidatesConfig(t *testing.T) {
	if _, err := New(context.Background(), Config{Bucket: "b"}); err == nil {
		t.Fatal("expected error for empty endpoint")
	}
	if _, err := New(context.Background(), Config{Endpoint: "localhost:9000"}); err == nil {
		t.Fatal("expected error for empty bucket")
	}
	if _, err := newWithAPI("b", "", nil); err == nil {
		t.Fatal("expected error for nil api")
	}
}

func TestConfigFromObjectStore(t *testing.T) {
	cfg := ConfigFromObjectStore(config.ObjectStoreConfig{
		Endpoint: "minio:9000",
		Bucket:   "reports",
		Prefix:   "nightly",
		UseSSL:   true,
	})
	if cfg.Endpoint != "minio:9000" || cfg.Bucket != "reports" || cfg.Prefix != "nightly" || !cfg.UseSSL {
		t.Fatalf("ConfigFromObjectStore() = %+v", cfg)
	}
}

func TestParseEndpoint(t *testing.T) {
	endpoint, secure, err := parseEndpoint("https://minio.example.com", false)
	if err != nil {
		t.Fatalf("parseEndpoint() error = %v", err)
	}
	if endpoint != "minio.example.com" || !secure {
		t.Fatalf("endpoint/secure = %q/%v", endpoint, secure)
	}

	endpoint, secure, err = parseEndpoint("localhost:9000", false)
	if err != nil {
		t.Fatalf("parseEndpoint() error = %v", err)
	}
	if endpoint != "localhost:9000" || secure {
		t.Fatalf("endpoint/secure = %q/%v", endpoint, secure)
	}

	if _, _, err := parseEndpoint("ftp://minio:21", false); err == nil {
		t.Fatal("expected error for unsupported scheme")
	}
}

type fakeAPI struct {
	putBucket string
	putKey    string
	putOpts   minio.PutObjectOptions

	statKey  string
	statInfo minio.ObjectInfo
	statErr  error

	getCalled bool

	bucketExists bool
	madeBucket   string
	madeRegion   string
	makeErr      error
}

func (f *fakeAPI) PutObject(_ context.Context, bucket, key string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	f.putBucket = bucket
	f.putKey = key
	f.putOpts = opts
	_, _ = io.Copy(io.Discard, reader)
	return minio.UploadInfo{Bucket: bucket, Key: key, Size: size, ETag: "etag-1"}, nil
}

func (f *fakeAPI) GetObject(context.Context, string, string, minio.GetObjectOptions) (*minio.Object, error) {
	f.getCalled = true
	return nil, errors.New("GetObject is not faked")
}

func (f *fakeAPI) StatObject(_ context.Context, _, key string, _ minio.StatObjectOptions) (minio.ObjectInfo, error) {
	f.statKey = key
	if f.statErr != nil {
		return minio.ObjectInfo{}, f.statErr
	}
	info := f.statInfo
	info.Key = key
	return info, nil
}

func (f *fakeAPI) BucketExists(context.Context, string) (bool, error) {
	return f.bucketExists, nil
}

func (f *fakeAPI) MakeBucket(_ context.Context, bucket string, opts minio.MakeBucketOptions) error {
	f.madeBucket = bucket
	f.madeRegion = opts.Region
	return f.makeErr
}
