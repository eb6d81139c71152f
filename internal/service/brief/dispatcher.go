package brief

import (
	"context"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/kolson/planner/backend/internal/logger"
)

// Task is a unit of background work. Its error is logged and discarded.
type Task func(ctx context.Context) error

type job struct {
	key  string
	task Task
}

// Dispatcher runs best-effort tasks on a fixed worker pool after the request has been answered.
// A key that is already queued is not queued twice; once a worker picks it up it may be queued again.
type Dispatcher struct {
	queue  chan job
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	log    *log.Logger

	mu      sync.Mutex
	pending map[string]struct{}
	closed  bool
}

// NewDispatcher starts workers goroutines draining a queue of queueSize.
func NewDispatcher(workers, queueSize int) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		queue:   make(chan job, queueSize),
		ctx:     ctx,
		cancel:  cancel,
		log:     logger.For("dispatcher"),
		pending: make(map[string]struct{}),
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

// Submit queues task without blocking. It returns false when the key is already pending,
// the queue is full or the dispatcher is closed.
func (d *Dispatcher) Submit(key string, task Task) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return false
	}
	if _, dup := d.pending[key]; dup {
		return false
	}
	select {
	case d.queue <- job{key: key, task: task}:
		d.pending[key] = struct{}{}
		return true
	default:
		d.log.Warn("queue full, dropping task", "key", key)
		return false
	}
}

// Pending reports how many tasks are queued but not yet started.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Close stops intake and waits for queued tasks. If ctx ends first, running tasks are cancelled.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return ctx.Err()
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for j := range d.queue {
		d.mu.Lock()
		delete(d.pending, j.key)
		d.mu.Unlock()

		if err := d.run(j); err != nil {
			d.log.Warn("background task failed", "key", j.key, "err", err)
		}
	}
}

func (d *Dispatcher) run(j job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return j.task(d.ctx)
}
