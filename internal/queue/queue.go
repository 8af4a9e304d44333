package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/slok/devagent/internal/log"
	"github.com/slok/devagent/internal/model"
	"github.com/slok/devagent/internal/storage"
)

// Handler executes a single task. Returning an error marks the task as failed.
type Handler interface {
	Handle(ctx context.Context, task model.Task) error
}

// HandlerFunc is a helper to use functions as handlers.
type HandlerFunc func(ctx context.Context, task model.Task) error

// Handle satisfies Handler interface.
func (h HandlerFunc) Handle(ctx context.Context, task model.Task) error { return h(ctx, task) }

// Config is the configuration for the task queue.
type Config struct {
	Repository storage.TaskQueueRepository
	Handler    Handler
	Logger     log.Logger
	// IDGenerator returns new task IDs, defaults to ULIDs.
	IDGenerator func() string
	Clock       func() time.Time
}

func (c *Config) defaults() error {
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}

	if c.Handler == nil {
		return fmt.Errorf("handler is required")
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "queue.Queue"})

	if c.IDGenerator == nil {
		c.IDGenerator = func() string { return ulid.Make().String() }
	}

	if c.Clock == nil {
		c.Clock = func() time.Time { return time.Now().UTC() }
	}

	return nil
}

// Status is a snapshot of the queue state.
type Status struct {
	// Busy is true while a task is being processed.
	Busy      bool
	QueueSize int
	// ActiveTask is the head of the queue, processing or next to be processed.
	ActiveTask *model.Task
}

// Queue is a persisted FIFO task queue with a single consumer.
//
// Producers only append and wake the consumer, the consumer (Run) is the only
// one executing tasks, so at most one task is processing at any time. The full
// queue is persisted after every mutation.
type Queue struct {
	repo    storage.TaskQueueRepository
	handler Handler
	logger  log.Logger
	newID   func() string
	now     func() time.Time

	mu     sync.Mutex
	tasks  []model.Task
	active *model.Task
	wake   chan struct{}
}

// New creates a new queue and rehydrates it from the repository. Tasks persisted
// as processing were interrupted by a crash and are set back to queued.
func New(ctx context.Context, cfg Config) (*Queue, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	q := &Queue{
		repo:    cfg.Repository,
		handler: cfg.Handler,
		logger:  cfg.Logger,
		newID:   cfg.IDGenerator,
		now:     cfg.Clock,
		wake:    make(chan struct{}, 1),
	}

	if err := q.rehydrate(ctx); err != nil {
		return nil, err
	}

	return q, nil
}

func (q *Queue) rehydrate(ctx context.Context) error {
	tasks, err := q.repo.LoadQueue(ctx)
	if err != nil {
		return fmt.Errorf("could not load task queue: %w", err)
	}

	requeued := 0
	for i := range tasks {
		if tasks[i].Status == model.TaskStatusProcessing {
			tasks[i].Status = model.TaskStatusQueued
			tasks[i].StartedAt = nil
			requeued++
		}
	}

	if requeued > 0 {
		if err := q.repo.SaveQueue(ctx, tasks); err != nil {
			return fmt.Errorf("could not save task queue: %w", err)
		}
		q.logger.Warningf("%d interrupted tasks requeued", requeued)
	}

	q.tasks = tasks
	q.logger.Infof("Loaded %d tasks from task queue", len(tasks))

	return nil
}

// AddTask enqueues a task and returns its ID. It never waits for the task to be
// processed.
func (q *Queue) AddTask(ctx context.Context, task model.Task) (string, error) {
	if err := task.Validate(); err != nil {
		return "", err
	}
	if !task.Type.Valid() {
		q.logger.Warningf("Unknown task type %q for service %s, the task will fail when processed", task.Type, task.ServiceName)
	}

	task.ID = q.newID()
	task.Status = model.TaskStatusQueued
	task.CreatedAt = q.now()
	task.StartedAt = nil
	task.CompletedAt = nil
	task.Error = ""

	q.mu.Lock()
	q.tasks = append(q.tasks, task)
	err := q.repo.SaveQueue(ctx, q.snapshot())
	if err != nil {
		q.tasks = q.tasks[:len(q.tasks)-1]
	}
	q.mu.Unlock()

	if err != nil {
		return "", fmt.Errorf("could not persist task queue: %w", err)
	}

	q.logger.Infof("Added task %s to queue: %s - %s", task.ID, task.Type, task.ServiceName)
	q.signal()

	return task.ID, nil
}

// Run consumes the queue until ctx is cancelled. Only one Run must be active per queue.
func (q *Queue) Run(ctx context.Context) error {
	q.logger.Infof("Task queue consumer started")

	// Pending work from a previous run.
	q.signal()

	for {
		select {
		case <-ctx.Done():
			q.logger.Infof("Task queue consumer stopped")
			return nil
		case <-q.wake:
		}

		for ctx.Err() == nil {
			task, ok := q.next(ctx)
			if !ok {
				q.logger.Debugf("Task queue is empty, waiting for new tasks")
				break
			}

			err := q.execute(ctx, task)
			if err != nil && ctx.Err() != nil {
				// Left as processing so the next start requeues it.
				q.logger.Warningf("Task %s interrupted: %s", task.ID, err)
				q.mu.Lock()
				q.active = nil
				q.mu.Unlock()
				break
			}

			q.finish(ctx, task, err)
		}
	}
}

// next marks the queue head as processing and returns it.
func (q *Queue) next(ctx context.Context) (model.Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.tasks) == 0 {
		return model.Task{}, false
	}

	started := q.now()
	q.tasks[0].Status = model.TaskStatusProcessing
	q.tasks[0].StartedAt = &started
	task := q.tasks[0]
	q.active = &task

	if err := q.repo.SaveQueue(ctx, q.snapshot()); err != nil {
		q.logger.Errorf("Could not persist task queue: %s", err)
	}

	q.logger.Infof("Starting to process task %s: %s - %s", task.ID, task.Type, task.ServiceName)

	return task, true
}

func (q *Queue) execute(ctx context.Context, task model.Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task handler panicked: %v", r)
		}
	}()

	ctx = q.logger.SetValuesOnCtx(ctx, log.Kv{"task-id": task.ID})

	return q.handler.Handle(ctx, task)
}

// finish sets the terminal state of a task, logs it and removes it from the queue.
func (q *Queue) finish(ctx context.Context, task model.Task, err error) {
	completed := q.now()
	task.CompletedAt = &completed
	if err != nil {
		task.Status = model.TaskStatusFailed
		task.Error = err.Error()
		q.logger.Errorf("Failed to process task %s: %s", task.ID, task.Error)
	} else {
		task.Status = model.TaskStatusCompleted
		q.logger.Infof("Successfully completed task %s in %s", task.ID, completed.Sub(*task.StartedAt))
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	q.active = nil
	for i := range q.tasks {
		if q.tasks[i].ID == task.ID {
			q.tasks = append(q.tasks[:i], q.tasks[i+1:]...)
			break
		}
	}

	// Saved without the terminal task, from here the task only lives in the logs.
	if err := q.repo.SaveQueue(context.WithoutCancel(ctx), q.snapshot()); err != nil {
		q.logger.Errorf("Could not persist task queue: %s", err)
	}
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Tasks returns a copy of the active queue in order.
func (q *Queue) Tasks() []model.Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.snapshot()
}

// Status returns the current queue status.
func (q *Queue) Status() Status {
	q.mu.Lock()
	defer q.mu.Unlock()

	s := Status{
		Busy:      q.active != nil,
		QueueSize: len(q.tasks),
	}
	if len(q.tasks) > 0 {
		head := q.tasks[0]
		s.ActiveTask = &head
	}

	return s
}

// snapshot must be called with the lock held.
func (q *Queue) snapshot() []model.Task {
	tasks := make([]model.Task, len(q.tasks))
	copy(tasks, q.tasks)
	return tasks
}
