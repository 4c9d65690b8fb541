package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"tripline/internal/domain"
	"tripline/internal/events"
	"tripline/internal/models"

	"github.com/redis/go-redis/v9"
)

// TripPublisher pushes one trip's itinerary to an external surface (a Google
// Sheet, an xlsx file on disk).
type TripPublisher interface {
	PublishTrip(ctx context.Context, trip *models.Trip) error
}

// ExportTask is one pending publish. Attempts counts failed tries so far.
type ExportTask struct {
	TripID    string    `json:"trip_id"`
	Attempts  int       `json:"attempts"`
	LastError string    `json:"last_error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ExportWorker republishes trips after every write. Tasks queue through redis
// when available (surviving a restart mid-backoff) and fall back to an
// in-memory channel otherwise. Tasks that exhaust their retries land on a
// dead-letter list for manual inspection.
type ExportWorker struct {
	store         domain.TripStore
	publishers    []TripPublisher
	redis         *redis.Client
	retryPolicy   RetryPolicy
	queue         chan ExportTask
	redisQueueKey string
	deadLetterKey string
	pollInterval  time.Duration
	logger        *log.Logger

	unsubscribe func()
}

func NewExportWorker(store domain.TripStore, publishers []TripPublisher, redisClient *redis.Client, retry RetryPolicy, logger *log.Logger) *ExportWorker {
	if logger == nil {
		logger = log.Default()
	}
	return &ExportWorker{
		store:         store,
		publishers:    publishers,
		redis:         redisClient,
		retryPolicy:   retry.normalized(),
		queue:         make(chan ExportTask, 128),
		redisQueueKey: "exports:queue",
		deadLetterKey: "exports:deadletter",
		pollInterval:  2 * time.Second,
		logger:        logger,
	}
}

// SubscribeToTripEvents queues a republish for every trip write on the bus.
func (w *ExportWorker) SubscribeToTripEvents(bus *events.EventBus) {
	onWrite := func(event *events.Event) error {
		var payload events.TripEventPayload
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return err
		}
		w.Enqueue(context.Background(), payload.TripID)
		return nil
	}
	created := bus.Subscribe(events.EventTripCreated, onWrite)
	updated := bus.Subscribe(events.EventTripUpdated, onWrite)
	w.unsubscribe = func() {
		created()
		updated()
	}
}

// Enqueue schedules a publish for the trip. Redis first; the in-memory
// channel is the fallback, and a full channel drops the task with a log line
// rather than blocking a write path.
func (w *ExportWorker) Enqueue(ctx context.Context, tripID string) {
	task := ExportTask{TripID: tripID, CreatedAt: time.Now()}

	if w.redis != nil {
		if err := w.pushRedis(ctx, task); err != nil {
			w.logger.Printf("export_worker: redis push failed, fallback to memory queue: %v", err)
		} else {
			return
		}
	}

	select {
	case w.queue <- task:
	default:
		w.logger.Printf("export_worker: queue full, export of trip %s dropped", tripID)
	}
}

// Start launches the main loop; stops when ctx is done.
func (w *ExportWorker) Start(ctx context.Context) {
	w.logger.Printf("export_worker: started")
	defer w.logger.Printf("export_worker: stopped")
	if w.unsubscribe != nil {
		defer w.unsubscribe()
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if t, ok := w.tryLocalQueue(); ok {
			w.processTask(ctx, t)
			continue
		}

		if t, ok := w.tryRedis(ctx); ok {
			w.processTask(ctx, t)
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.pollInterval):
		}
	}
}

func (w *ExportWorker) tryLocalQueue() (ExportTask, bool) {
	select {
	case t := <-w.queue:
		return t, true
	default:
		return ExportTask{}, false
	}
}

func (w *ExportWorker) tryRedis(ctx context.Context) (ExportTask, bool) {
	if w.redis == nil {
		return ExportTask{}, false
	}
	res, err := w.redis.BRPop(ctx, time.Second, w.redisQueueKey).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && !errors.Is(err, context.Canceled) {
			w.logger.Printf("export_worker: redis BRPOP error: %v", err)
		}
		return ExportTask{}, false
	}
	if len(res) != 2 {
		return ExportTask{}, false
	}
	var task ExportTask
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		w.logger.Printf("export_worker: decode redis task: %v", err)
		return ExportTask{}, false
	}
	return task, true
}

func (w *ExportWorker) processTask(ctx context.Context, task ExportTask) {
	trip, err := w.store.GetTrip(ctx, task.TripID)
	if err != nil {
		// A deleted trip has nothing left to export.
		w.logger.Printf("export_worker: trip %s not exportable: %v", task.TripID, err)
		return
	}

	var firstErr error
	for _, p := range w.publishers {
		if err := p.PublishTrip(ctx, trip); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr == nil {
		return
	}

	w.retryOrFail(ctx, task, firstErr)
}

func (w *ExportWorker) retryOrFail(ctx context.Context, task ExportTask, cause error) {
	task.Attempts++
	task.LastError = cause.Error()

	if task.Attempts >= w.retryPolicy.MaxRetries {
		w.logger.Printf("export_worker: trip %s failed after %d attempts: %v", task.TripID, task.Attempts, cause)
		w.pushDeadLetter(ctx, task)
		return
	}

	delay := w.retryPolicy.NextDelay(task.Attempts)
	w.logger.Printf("export_worker: trip %s attempt %d failed, retry in %s: %v", task.TripID, task.Attempts, delay, cause)

	go func() {
		select {
		case <-ctx.Done():
		case <-time.After(delay):
			select {
			case w.queue <- task:
			default:
				w.logger.Printf("export_worker: queue full, retry of trip %s dropped", task.TripID)
			}
		}
	}()
}

func (w *ExportWorker) pushRedis(ctx context.Context, task ExportTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return w.redis.LPush(ctx, w.redisQueueKey, data).Err()
}

func (w *ExportWorker) pushDeadLetter(ctx context.Context, task ExportTask) {
	if w.redis == nil {
		return
	}
	data, err := json.Marshal(task)
	if err != nil {
		return
	}
	if err := w.redis.LPush(ctx, w.deadLetterKey, data).Err(); err != nil {
		w.logger.Printf("export_worker: deadletter push %s: %v", task.TripID, err)
	}
}
