package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrUnavailable wraps Redis transport failures during enqueue.
var ErrUnavailable = errors.New("task queue unavailable")

const (
	defaultKey         = "identity:tasks"
	defaultMaxAttempts = 3
	defaultPollTimeout = time.Second
)

// Config configures a [Queue].
type Config struct {
	// Key is the Redis list holding pending tasks. Defaults to
	// "identity:tasks".
	Key string

	// MaxAttempts is the total number of delivery attempts per task
	// before it is dropped. Defaults to 3.
	MaxAttempts int

	// PollTimeout bounds each BRPOP wait so workers notice shutdown.
	// Defaults to 1s.
	PollTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.Key == "" {
		c.Key = defaultKey
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = defaultPollTimeout
	}
}

type envelope struct {
	Name    string          `json:"name"`
	Payload json.RawMessage `json:"payload"`
	Attempt int             `json:"attempt"`
}

// Queue is the producer side. Safe for concurrent use.
type Queue struct {
	redis  *redis.Client
	config Config
}

// New returns a Queue over client.
func New(client *redis.Client, cfg Config) *Queue {
	cfg.applyDefaults()
	return &Queue{redis: client, config: cfg}
}

// Enqueue serializes payload and pushes a task named name onto the list.
func (q *Queue) Enqueue(ctx context.Context, name string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode task %q: %w", name, err)
	}

	env, err := json.Marshal(envelope{Name: name, Payload: raw, Attempt: 1})
	if err != nil {
		return fmt.Errorf("encode task %q: %w", name, err)
	}

	if err := q.redis.LPush(ctx, q.config.Key, env).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return nil
}

func (q *Queue) requeue(ctx context.Context, env envelope) error {
	raw, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return q.redis.LPush(ctx, q.config.Key, raw).Err()
}

// Handler processes one task payload. Returning an error requeues the task
// until its attempts are exhausted.
type Handler func(ctx context.Context, payload []byte) error

// Worker is the consumer side: a single goroutine popping tasks and
// dispatching to handlers. Construct with [NewWorker], stop with
// [Worker.Close].
type Worker struct {
	queue    *Queue
	handlers map[string]Handler

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	dropped   atomic.Uint64
	closeOnce sync.Once
}

// NewWorker starts a worker goroutine consuming q with the given handlers.
// Tasks with no registered handler are dropped immediately.
func NewWorker(q *Queue, handlers map[string]Handler) *Worker {
	ctx, cancel := context.WithCancel(context.Background())

	w := &Worker{
		queue:    q,
		handlers: handlers,
		ctx:      ctx,
		cancel:   cancel,
	}

	w.wg.Add(1)
	go w.run()

	return w
}

func (w *Worker) run() {
	defer w.wg.Done()

	for {
		if w.ctx.Err() != nil {
			return
		}

		res, err := w.queue.redis.BRPop(w.ctx, w.queue.config.PollTimeout, w.queue.config.Key).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || w.ctx.Err() != nil {
				continue
			}
			log.Printf("queue: pop failed: %v", err)
			continue
		}
		if len(res) != 2 {
			continue
		}

		var env envelope
		if err := json.Unmarshal([]byte(res[1]), &env); err != nil {
			w.dropped.Add(1)
			log.Printf("queue: dropping malformed task: %v", err)
			continue
		}

		w.dispatch(env)
	}
}

func (w *Worker) dispatch(env envelope) {
	handler, ok := w.handlers[env.Name]
	if !ok {
		w.dropped.Add(1)
		log.Printf("queue: dropping task %q: no handler", env.Name)
		return
	}

	if err := handler(w.ctx, env.Payload); err != nil {
		if env.Attempt >= w.queue.config.MaxAttempts {
			w.dropped.Add(1)
			log.Printf("queue: dropping task %q after %d attempts: %v", env.Name, env.Attempt, err)
			return
		}

		env.Attempt++
		if reqErr := w.queue.requeue(w.ctx, env); reqErr != nil {
			w.dropped.Add(1)
			log.Printf("queue: dropping task %q: requeue failed: %v", env.Name, reqErr)
		}
	}
}

// Dropped returns the number of tasks abandoned after exhausting attempts,
// failing to decode, or lacking a handler.
func (w *Worker) Dropped() uint64 {
	return w.dropped.Load()
}

// Close stops the worker and waits for the in-flight task to finish.
// Idempotent.
func (w *Worker) Close() {
	w.closeOnce.Do(func() {
		w.cancel()
		w.wg.Wait()
	})
}
