package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/reportq/reportq/internal/bus"
)

const (
	publishQuery = `
INSERT INTO report_job (queue_name, payload, state)
VALUES ($1, $2, 'accepted')
RETURNING job_id`

	claimSelectQuery = `
SELECT job_id, payload, published_at
FROM report_job
WHERE queue_name = $1 AND state = 'accepted'
ORDER BY job_id ASC
FOR UPDATE SKIP LOCKED
LIMIT $2`

	claimUpdateQuery = `
UPDATE report_job
SET state = 'claimed', consumer_id = $1, claimed_at = $2
WHERE job_id = $3`

	ackQuery = `
UPDATE report_job
SET state = 'done', finished_at = $2
WHERE job_id = $1 AND state = 'claimed'`

	nackQuery = `
UPDATE report_job
SET state = 'failed', finished_at = $2, last_error = $3
WHERE job_id = $1 AND state = 'claimed'`
)

// maxErrorLength caps the stored last_error text.
const maxErrorLength = 4096

// JobBus stores jobs in the report_job table. Claims use FOR UPDATE SKIP
// LOCKED so several consumers can share one queue. It owns db and closes it.
type JobBus struct {
	db    *sql.DB
	clock func() time.Time
}

func NewJobBus(db *sql.DB) *JobBus {
	return &JobBus{db: db, clock: time.Now}
}

func (b *JobBus) Publish(ctx context.Context, queue string, payload []byte) (bus.PublishResult, error) {
	queue = strings.TrimSpace(queue)
	if queue == "" {
		return bus.PublishResult{}, fmt.Errorf("queue name is required")
	}
	if len(payload) == 0 {
		return bus.PublishResult{}, fmt.Errorf("payload is required")
	}

	var jobID int64
	if err := b.db.QueryRowContext(ctx, publishQuery, queue, payload).Scan(&jobID); err != nil {
		return bus.PublishResult{}, fmt.Errorf("publish job to %q: %w", queue, err)
	}
	return bus.PublishResult{DeliveryID: strconv.FormatInt(jobID, 10), Queue: queue}, nil
}

func (b *JobBus) Claim(ctx context.Context, queue string, consumerID string, limit int) ([]bus.Delivery, error) {
	if limit <= 0 {
		limit = 1
	}

	tx, err := b.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("begin claim tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, claimSelectQuery, queue, limit)
	if err != nil {
		return nil, fmt.Errorf("select claim candidates: %w", err)
	}

	type selectedJob struct {
		jobID       int64
		payload     []byte
		publishedAt time.Time
	}
	selected := make([]selectedJob, 0, limit)
	for rows.Next() {
		var job selectedJob
		if err := rows.Scan(&job.jobID, &job.payload, &job.publishedAt); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan claim candidate: %w", err)
		}
		selected = append(selected, job)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("iterate claim candidates: %w", err)
	}
	_ = rows.Close()

	if len(selected) == 0 {
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("commit empty claim tx: %w", err)
		}
		return nil, nil
	}

	claimedAt := b.clock().UTC()
	deliveries := make([]bus.Delivery, 0, len(selected))
	for _, job := range selected {
		if _, err := tx.ExecContext(ctx, claimUpdateQuery, consumerID, claimedAt, job.jobID); err != nil {
			return nil, fmt.Errorf("mark job %d claimed: %w", job.jobID, err)
		}
		deliveries = append(deliveries, bus.Delivery{
			ID:          strconv.FormatInt(job.jobID, 10),
			Queue:       queue,
			Payload:     job.payload,
			PublishedAt: job.publishedAt,
		})
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim tx: %w", err)
	}
	return deliveries, nil
}

func (b *JobBus) Ack(ctx context.Context, deliveryID string) error {
	jobID, err := parseJobID(deliveryID)
	if err != nil {
		return err
	}
	return b.settle(ctx, "ack", jobID, ackQuery, jobID, b.clock().UTC())
}

func (b *JobBus) Nack(ctx context.Context, deliveryID string, reason string) error {
	jobID, err := parseJobID(deliveryID)
	if err != nil {
		return err
	}
	if len(reason) > maxErrorLength {
		reason = reason[:maxErrorLength]
	}
	return b.settle(ctx, "nack", jobID, nackQuery, jobID, b.clock().UTC(), reason)
}

func (b *JobBus) settle(ctx context.Context, action string, jobID int64, query string, args ...any) error {
	result, err := b.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s job %d: %w", action, jobID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("read %s rows affected: %w", action, err)
	}
	if affected == 0 {
		return fmt.Errorf("%s job %d: job not found or not claimed", action, jobID)
	}
	return nil
}

func (b *JobBus) Ping(ctx context.Context) error {
	return b.db.PingContext(ctx)
}

func (b *JobBus) Close() error {
	return b.db.Close()
}

func parseJobID(raw string) (int64, error) {
	value, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid delivery id %q: %w", raw, err)
	}
	return value, nil
}

var _ bus.JobBus = (*JobBus)(nil)
