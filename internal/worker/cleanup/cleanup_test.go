package cleanup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

type mockDeleter struct {
	calls   atomic.Int32
	deleted int64
	err     error
}

func (m *mockDeleter) DeleteExpired(ctx context.Context) (int64, error) {
	m.calls.Add(1)
	return m.deleted, m.err
}

type countRecorder struct {
	total int64
}

func (r *countRecorder) RecordSessionsExpired(count int64) { r.total += count }

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

func TestRun_RecordsDeletedCount(t *testing.T) {
	var buf bytes.Buffer
	deleter := &mockDeleter{deleted: 7}
	rec := &countRecorder{}

	job := NewSessionCleanupJob(deleter, rec, newTestLogger(&buf))
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if rec.total != 7 {
		t.Errorf("recorded = %d, want 7", rec.total)
	}

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log: %v\nraw: %s", err, buf.String())
	}
	if entry["deleted_count"] != float64(7) {
		t.Errorf("deleted_count = %v, want 7", entry["deleted_count"])
	}
}

func TestRun_NothingToDelete_IsNotAnError(t *testing.T) {
	job := NewSessionCleanupJob(&mockDeleter{}, nil, newTestLogger(&bytes.Buffer{}))

	if err := job.Run(context.Background()); err != nil {
		t.Errorf("Run() error = %v, want nil", err)
	}
}

func TestRun_DeleteFailure_ReturnsErrorAndLogs(t *testing.T) {
	var buf bytes.Buffer
	boom := errors.New("connection refused")
	rec := &countRecorder{}

	job := NewSessionCleanupJob(&mockDeleter{err: boom}, rec, newTestLogger(&buf))
	err := job.Run(context.Background())

	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped %v", err, boom)
	}
	if !strings.Contains(buf.String(), `"level":"ERROR"`) {
		t.Errorf("expected error log, got %s", buf.String())
	}
	if rec.total != 0 {
		t.Errorf("recorded = %d, want 0 on failure", rec.total)
	}
}

func TestLoop_RunsImmediatelyAndStopsOnCancel(t *testing.T) {
	deleter := &mockDeleter{}
	job := NewSessionCleanupJob(deleter, nil, newTestLogger(&bytes.Buffer{}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		job.Loop(ctx, time.Hour)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for deleter.calls.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("first run did not happen")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Loop did not stop after cancel")
	}
	if got := deleter.calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}
}

func TestLoop_RepeatsOnInterval(t *testing.T) {
	deleter := &mockDeleter{}
	job := NewSessionCleanupJob(deleter, nil, newTestLogger(&bytes.Buffer{}))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	done := make(chan struct{})
	go func() {
		job.Loop(ctx, 10*time.Millisecond)
		close(done)
	}()

	for deleter.calls.Load() < 3 {
		select {
		case <-ctx.Done():
			t.Fatalf("calls = %d, want at least 3", deleter.calls.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done
}
