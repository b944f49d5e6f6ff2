package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"tamaco/internal/domain/model"
	"tamaco/internal/platform/metrics"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type fakeStore struct {
	mu      sync.Mutex
	entries []model.AuditEntry
	failN   int
}

func (f *fakeStore) Store(_ context.Context, e model.AuditEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failN > 0 {
		f.failN--
		return errors.New("db down")
	}
	f.entries = append(f.entries, e)
	return nil
}

func (f *fakeStore) stored() []model.AuditEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.AuditEntry(nil), f.entries...)
}

func newTestWorker(t *testing.T, store AuditStore) (*AuditWorker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	w := NewAuditWorker(rdb, "audit", store, slog.New(slog.NewTextHandler(io.Discard, nil)), metrics.New())
	w.popTimeout = 100 * time.Millisecond
	w.retryDelay = 10 * time.Millisecond
	return w, mr
}

func runWorker(t *testing.T, w *AuditWorker) (stop func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()
	return func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("worker did not stop")
		}
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestAuditWorkerStoresEntriesInOrder(t *testing.T) {
	store := &fakeStore{}
	w, mr := newTestWorker(t, store)

	mr.Lpush("audit", `{"id":"a","action":"create","entity":"task"}`)
	mr.Lpush("audit", `{"id":"b","action":"delete","entity":"task"}`)

	stop := runWorker(t, w)
	waitFor(t, func() bool { return len(store.stored()) == 2 })
	stop()

	got := store.stored()
	if got[0].ID != "a" || got[1].ID != "b" {
		t.Errorf("order = %s, %s", got[0].ID, got[1].ID)
	}
}

func TestAuditWorkerDropsMalformed(t *testing.T) {
	store := &fakeStore{}
	w, mr := newTestWorker(t, store)

	mr.Lpush("audit", `not json`)
	mr.Lpush("audit", `{"action":"create"}`)
	mr.Lpush("audit", `{"id":"ok","action":"login","entity":"user"}`)

	stop := runWorker(t, w)
	waitFor(t, func() bool { return len(store.stored()) == 1 })
	stop()

	if store.stored()[0].ID != "ok" {
		t.Errorf("stored = %+v", store.stored())
	}
}

func TestAuditWorkerRequeuesOnStoreFailure(t *testing.T) {
	store := &fakeStore{failN: 2}
	w, mr := newTestWorker(t, store)

	mr.Lpush("audit", `{"id":"retry","action":"update","entity":"tag"}`)

	stop := runWorker(t, w)
	waitFor(t, func() bool { return len(store.stored()) == 1 })
	stop()

	if mr.Exists("audit") {
		t.Error("queue should be empty after successful retry")
	}
}

func TestAuditWorkerStopsOnCancel(t *testing.T) {
	w, _ := newTestWorker(t, &fakeStore{})
	stop := runWorker(t, w)
	time.Sleep(50 * time.Millisecond)
	stop()
}
