package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

func TestPublishInsertsAcceptedJob(t *testing.T) {
	db, mock := newSQLMock(t)
	jobBus := NewJobBus(db)

	payload := []byte(`{"database":"/data/chinook.db","type":"CSV"}`)
	mock.ExpectQuery(regexp.QuoteMeta(publishQuery)).
		WithArgs("q1", payload).
		WillReturnRows(sqlmock.NewRows([]string{"job_id"}).AddRow(int64(41)))

	result, err := jobBus.Publish(context.Background(), " q1 ", payload)
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if result.DeliveryID != "41" || result.Queue != "q1" {
		t.Fatalf("Publish() = %+v", result)
	}
	assertSQLMock(t, mock)
}

func TestPublishValidatesInput(t *testing.T) {
	db, mock := newSQLMock(t)
	jobBus := NewJobBus(db)

	if _, err := jobBus.Publish(context.Background(), "", []byte("{}")); err == nil {
		t.Fatal("expected error for empty queue")
	}
	if _, err := jobBus.Publish(context.Background(), "q1", nil); err == nil {
		t.Fatal("expected error for empty payload")
	}
	assertSQLMock(t, mock)
}

func TestClaimMarksSelectedJobsClaimed(t *testing.T) {
	db, mock := newSQLMock(t)
	jobBus := NewJobBus(db)
	now := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	jobBus.clock = func() time.Time { return now }
	publishedAt := now.Add(-time.Minute)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(claimSelectQuery)).
		WithArgs("q1", 1).
		WillReturnRows(sqlmock.NewRows([]string{"job_id", "payload", "published_at"}).
			AddRow(int64(7), []byte(`{"database":"a.db"}`), publishedAt))
	mock.ExpectExec(regexp.QuoteMeta(claimUpdateQuery)).
		WithArgs("worker-1", now, int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	deliveries, err := jobBus.Claim(context.Background(), "q1", "worker-1", 0)
	if err != nil {
		t.Fatalf("Claim() error = %v", err)
	}
	if len(deliveries) != 1 {
		t.Fatalf("len(Claim()) = %d, want 1", len(deliveries))
	}
	got := deliveries[0]
	if got.ID != "7" || got.Queue != "q1" || string(got.Payload) != `{"database":"a.db"}` {
		t.Fatalf("delivery = %+v", got)
	}
	if !got.PublishedAt.Equal(publishedAt) {
		t.Fatalf("PublishedAt = %s", got.PublishedAt)
	}
	assertSQLMock(t, mock)
}

func TestClaimReturnsNothingWhenQueueIsEmpty(t *testing.T) {
	db, mock := newSQLMock(t)
	jobBus := NewJobBus(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(claimSelectQuery)).
		WithArgs("q1", 1).
		WillReturnRows(sqlmock.NewRows([]string{"job_id", "payload", "published_at"}))
	mock.ExpectCommit()

	deliveries, err := jobBus.Claim(context.Background(), "q1", "worker-1", 1)
	if err != nil {
		t.Fatalf("Claim() error = %v", err)
	}
	if len(deliveries) != 0 {
		t.Fatalf("len(Claim()) = %d, want 0", len(deliveries))
	}
	assertSQLMock(t, mock)
}

func TestClaimRollsBackOnUpdateFailure(t *testing.T) {
	db, mock := newSQLMock(t)
	jobBus := NewJobBus(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(claimSelectQuery)).
		WithArgs("q1", 1).
		WillReturnRows(sqlmock.NewRows([]string{"job_id", "payload", "published_at"}).
			AddRow(int64(7), []byte(`{}`), time.Now()))
	mock.ExpectExec(regexp.QuoteMeta(claimUpdateQuery)).
		WillReturnError(errors.New("deadlock detected"))
	mock.ExpectRollback()

	if _, err := jobBus.Claim(context.Background(), "q1", "worker-1", 1); err == nil {
		t.Fatal("expected claim error")
	}
	assertSQLMock(t, mock)
}

func TestAckMarksJobDone(t *testing.T) {
	db, mock := newSQLMock(t)
	jobBus := NewJobBus(db)
	now := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	jobBus.clock = func() time.Time { return now }

	mock.ExpectExec(regexp.QuoteMeta(ackQuery)).
		WithArgs(int64(7), now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := jobBus.Ack(context.Background(), "7"); err != nil {
		t.Fatalf("Ack() error = %v", err)
	}
	assertSQLMock(t, mock)
}

func TestAckFailsForUnclaimedJob(t *testing.T) {
	db, mock := newSQLMock(t)
	jobBus := NewJobBus(db)

	mock.ExpectExec(regexp.QuoteMeta(ackQuery)).
		WithArgs(int64(8), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := jobBus.Ack(context.Background(), "8")
	if err == nil || !strings.Contains(err.Error(), "not claimed") {
		t.Fatalf("Ack() error = %v", err)
	}
	assertSQLMock(t, mock)
}

func TestNackStoresTruncatedReason(t *testing.T) {
	db, mock := newSQLMock(t)
	jobBus := NewJobBus(db)

	reason := strings.Repeat("x", maxErrorLength+10)
	mock.ExpectExec(regexp.QuoteMeta(nackQuery)).
		WithArgs(int64(9), sqlmock.AnyArg(), reason[:maxErrorLength]).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := jobBus.Nack(context.Background(), "9", reason); err != nil {
		t.Fatalf("Nack() error = %v", err)
	}
	assertSQLMock(t, mock)
}

func TestSettleRejectsInvalidDeliveryID(t *testing.T) {
	db, mock := newSQLMock(t)
	jobBus := NewJobBus(db)

	if err := jobBus.Ack(context.Background(), "nats-uuid"); err == nil {
		t.Fatal("expected error for non-numeric delivery id")
	}
	if err := jobBus.Nack(context.Background(), "", "boom"); err == nil {
		t.Fatal("expected error for empty delivery id")
	}
	assertSQLMock(t, mock)
}

func TestCloseClosesDatabase(t *testing.T) {
	db, mock := newSQLMock(t)
	mock.ExpectClose()

	if err := NewJobBus(db).Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	assertSQLMock(t, mock)
}

func newSQLMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func assertSQLMock(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}
