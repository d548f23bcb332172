// Package archive copies a finished job's rendered output to object storage.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/reportq/reportq/internal/report"
	"github.com/reportq/reportq/internal/storage"
)

type Archiver struct {
	Store storage.ObjectStore
	Clock func() time.Time
}

func New(store storage.ObjectStore) *Archiver {
	return &Archiver{Store: store, Clock: time.Now}
}

// Archive stores body under reports/date=YYYY-MM-DD/report-<delivery>.<ext>
// and returns the stored object.
func (a *Archiver) Archive(ctx context.Context, deliveryID string, format report.Format, body []byte) (storage.ObjectInfo, error) {
	if a.Store == nil {
		return storage.ObjectInfo{}, fmt.Errorf("object store is required")
	}
	clock := a.Clock
	if clock == nil {
		clock = time.Now
	}

	key, err := storage.BuildReportPath(deliveryID, format.Extension(), clock())
	if err != nil {
		return storage.ObjectInfo{}, fmt.Errorf("build archive key: %w", err)
	}
	info, err := a.Store.Put(ctx, key, bytes.NewReader(body), int64(len(body)), storage.PutOptions{
		ContentType: format.ContentType(),
		Metadata: map[string]string{
			"Delivery-Id":   deliveryID,
			"Report-Format": string(format),
		},
	})
	if err != nil {
		return storage.ObjectInfo{}, fmt.Errorf("archive report %s: %w", deliveryID, err)
	}
	if info.Key == "" {
		info.Key = key
	}
	return info, nil
}

// Fetch copies an archived report to w.
func (a *Archiver) Fetch(ctx context.Context, key string, w io.Writer) (int64, error) {
	if a.Store == nil {
		return 0, fmt.Errorf("object store is required")
	}
	reader, err := a.Store.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	defer func() { _ = reader.Close() }()

	n, err := io.Copy(w, reader)
	if err != nil {
		return n, fmt.Errorf("read archived report %q: %w", key, err)
	}
	return n, nil
}

// Stat reports the size and modification time of an archived report.
func (a *Archiver) Stat(ctx context.Context, key string) (storage.ObjectInfo, error) {
	if a.Store == nil {
		return storage.ObjectInfo{}, fmt.Errorf("object store is required")
	}
	return a.Store.Stat(ctx, key)
}
