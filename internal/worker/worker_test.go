package worker

import (
	"context"
	"errors"
	"io"
	"log"
	"path/filepath"
	"testing"
	"time"

	"tripline/internal/models"
	"tripline/internal/repository"
	"tripline/internal/store"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func TestRetryPolicyNextDelay(t *testing.T) {
	policy := RetryPolicy{InitialDelay: time.Second, BackoffFactor: 2, MaxDelay: 5 * time.Second}
	d1 := policy.NextDelay(1)
	d2 := policy.NextDelay(2)
	d3 := policy.NextDelay(5)

	if d1 != time.Second {
		t.Fatalf("attempt1 expected 1s, got %s", d1)
	}
	if d2 != 2*time.Second {
		t.Fatalf("attempt2 expected 2s, got %s", d2)
	}
	if d3 != 5*time.Second {
		t.Fatalf("attempt5 expected capped 5s, got %s", d3)
	}
}

func TestRetryPolicyDefaults(t *testing.T) {
	policy := RetryPolicy{}.normalized()
	if policy.MaxRetries != 5 {
		t.Fatalf("expected default MaxRetries=5, got %d", policy.MaxRetries)
	}
	if policy.NextDelay(1) != 2*time.Second {
		t.Fatalf("expected default first delay 2s, got %s", policy.NextDelay(1))
	}
}

func TestExportWorkerProcessSuccess(t *testing.T) {
	st := newTestStore(t)
	pub := &fakePublisher{}
	worker := NewExportWorker(st, []TripPublisher{pub}, nil, RetryPolicy{}, testLogger())

	ctx := context.Background()
	trip := newTestTrip("alice")
	if err := st.CreateTrip(ctx, trip); err != nil {
		t.Fatalf("create trip: %v", err)
	}

	worker.Enqueue(ctx, trip.ID)
	task, ok := worker.tryLocalQueue()
	if !ok {
		t.Fatalf("expected task in local queue")
	}
	worker.processTask(ctx, task)

	if pub.calls != 1 {
		t.Fatalf("expected 1 publish call, got %d", pub.calls)
	}
	if pub.lastTrip.ID != trip.ID {
		t.Fatalf("published wrong trip: %s", pub.lastTrip.ID)
	}
}

func TestExportWorkerDeletedTripSkipped(t *testing.T) {
	st := newTestStore(t)
	pub := &fakePublisher{}
	worker := NewExportWorker(st, []TripPublisher{pub}, nil, RetryPolicy{}, testLogger())

	worker.processTask(context.Background(), ExportTask{TripID: "gone"})
	if pub.calls != 0 {
		t.Fatalf("expected no publish for missing trip, got %d", pub.calls)
	}
}

func TestExportWorkerRetriesThroughQueue(t *testing.T) {
	st := newTestStore(t)
	pub := &fakePublisher{err: errors.New("boom")}
	worker := NewExportWorker(st, []TripPublisher{pub}, nil, RetryPolicy{MaxRetries: 3, InitialDelay: 5 * time.Millisecond}, testLogger())

	ctx := context.Background()
	trip := newTestTrip("alice")
	if err := st.CreateTrip(ctx, trip); err != nil {
		t.Fatalf("create trip: %v", err)
	}

	worker.processTask(ctx, ExportTask{TripID: trip.ID, CreatedAt: time.Now()})

	deadline := time.After(time.Second)
	select {
	case task := <-worker.queue:
		if task.Attempts != 1 {
			t.Fatalf("expected attempts=1 on requeued task, got %d", task.Attempts)
		}
		if task.LastError == "" {
			t.Fatalf("expected last error recorded")
		}
	case <-deadline:
		t.Fatalf("expected failed task requeued after backoff")
	}
}

func TestExportWorkerDeadLetter(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	st := newTestStore(t)
	pub := &fakePublisher{err: errors.New("fatal")}
	worker := NewExportWorker(st, []TripPublisher{pub}, client, RetryPolicy{MaxRetries: 1}, testLogger())

	ctx := context.Background()
	trip := newTestTrip("alice")
	if err := st.CreateTrip(ctx, trip); err != nil {
		t.Fatalf("create trip: %v", err)
	}

	worker.processTask(ctx, ExportTask{TripID: trip.ID})

	n, err := client.LLen(ctx, worker.deadLetterKey).Result()
	if err != nil {
		t.Fatalf("llen: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 dead-lettered task, got %d", n)
	}
}

func TestExportWorkerEnqueuePrefersRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	st := newTestStore(t)
	worker := NewExportWorker(st, nil, client, RetryPolicy{}, testLogger())

	ctx := context.Background()
	worker.Enqueue(ctx, "trip-1")

	n, err := client.LLen(ctx, worker.redisQueueKey).Result()
	if err != nil {
		t.Fatalf("llen: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 queued task in redis, got %d", n)
	}
	if _, ok := worker.tryLocalQueue(); ok {
		t.Fatalf("task should not be in local queue when redis accepted it")
	}

	task, ok := worker.tryRedis(ctx)
	if !ok {
		t.Fatalf("expected task from redis")
	}
	if task.TripID != "trip-1" {
		t.Fatalf("unexpected task: %+v", task)
	}
}

func TestLockKeeperBeat(t *testing.T) {
	locks := repository.NewMemoryLockRepository()
	keeper := NewLockKeeper(locks, 50*time.Millisecond, testLogger())

	ctx := context.Background()
	if err := locks.Lock(ctx, "trip-1", "m1", "alice", 50*time.Millisecond); err != nil {
		t.Fatalf("lock: %v", err)
	}

	source := &fakeLockSource{held: map[string]string{"trip-1/m1": "alice"}}
	keeper.Track("session-1", source)

	// Beat past the original TTL a few times; the lock must survive.
	for i := 0; i < 4; i++ {
		time.Sleep(20 * time.Millisecond)
		keeper.beat(ctx)
	}

	held, err := locks.Locks(ctx, "trip-1")
	if err != nil {
		t.Fatalf("locks: %v", err)
	}
	if held["m1"] != "alice" {
		t.Fatalf("expected lock kept alive, got %v", held)
	}
}

func TestLockKeeperDropsExpiredLock(t *testing.T) {
	locks := repository.NewMemoryLockRepository()
	keeper := NewLockKeeper(locks, time.Minute, testLogger())

	source := &fakeLockSource{held: map[string]string{"trip-1/m1": "alice"}}
	keeper.Track("session-1", source)

	// Lock was never taken (or already expired): the beat must tell the
	// session to forget it.
	keeper.beat(context.Background())

	if len(source.dropped) != 1 || source.dropped[0] != "trip-1/m1" {
		t.Fatalf("expected expired lock dropped, got %v", source.dropped)
	}
}

func TestLockKeeperUntrack(t *testing.T) {
	locks := repository.NewMemoryLockRepository()
	keeper := NewLockKeeper(locks, time.Minute, testLogger())

	source := &fakeLockSource{held: map[string]string{"trip-1/m1": "alice"}}
	keeper.Track("session-1", source)
	keeper.Untrack("session-1")

	keeper.beat(context.Background())
	if len(source.dropped) != 0 {
		t.Fatalf("untracked session must not be touched, got %v", source.dropped)
	}
}

// Helpers

type fakePublisher struct {
	err      error
	calls    int
	lastTrip *models.Trip
}

func (f *fakePublisher) PublishTrip(ctx context.Context, trip *models.Trip) error {
	f.calls++
	f.lastTrip = trip
	return f.err
}

type fakeLockSource struct {
	held    map[string]string
	dropped []string
}

func (f *fakeLockSource) HeldLocks() map[string]string {
	out := make(map[string]string, len(f.held))
	for k, v := range f.held {
		out[k] = v
	}
	return out
}

func (f *fakeLockSource) DropHeldLock(tripID, moduleID string) {
	key := tripID + "/" + moduleID
	delete(f.held, key)
	f.dropped = append(f.dropped, key)
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	logger := zerolog.New(io.Discard)
	st, err := store.New(filepath.Join(t.TempDir(), "worker.db"), nil, &logger)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func newTestTrip(owner string) *models.Trip {
	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	return models.NewTrip("Paris Trip", "spring break", start, end, owner)
}

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}
