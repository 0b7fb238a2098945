package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/siegecorps/siegebot/internal/models"
)

// ErrQueueFull is set on an admitted message whose sender already has a full queue
var ErrQueueFull = errors.New("user queue is full")

type job struct {
	msg models.InboundMessage
	out *Outcome
}

type worker struct {
	queue chan job
}

// Dispatcher serializes processing per user while running different users in
// parallel. Admission happens on the caller's goroutine so rate windows see
// messages in receive order.
type Dispatcher struct {
	orch      *Orchestrator
	ctx       context.Context
	queueSize int
	idle      time.Duration

	mu      sync.Mutex
	workers map[int64]*worker
	closed  bool
	wg      sync.WaitGroup
}

// NewDispatcher creates a dispatcher whose workers process under ctx
func NewDispatcher(ctx context.Context, orch *Orchestrator, queueSize int, idle time.Duration) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 8
	}
	if idle <= 0 {
		idle = time.Minute
	}
	return &Dispatcher{
		orch:      orch,
		ctx:       ctx,
		queueSize: queueSize,
		idle:      idle,
		workers:   make(map[int64]*worker),
	}
}

// Submit admits msg and queues it on its sender's worker. Returns false when
// the message ends at admission or cannot be queued.
func (d *Dispatcher) Submit(msg models.InboundMessage) bool {
	out, ok := d.orch.Admit(msg)
	if !ok {
		return false
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		out.Err = context.Canceled
		d.orch.finish(msg, out, StateFailed)
		return false
	}
	w, exists := d.workers[msg.SenderID]
	if !exists {
		w = &worker{queue: make(chan job, d.queueSize)}
		d.workers[msg.SenderID] = w
		d.wg.Add(1)
		go d.run(msg.SenderID, w)
		d.gauge()
	}
	select {
	case w.queue <- job{msg: msg, out: out}:
		d.mu.Unlock()
		return true
	default:
		d.mu.Unlock()
	}

	d.orch.Logger.WithField("user_id", msg.SenderID).Warn("Dropping message, user queue is full")
	out.Err = ErrQueueFull
	d.orch.finish(msg, out, StateFailed)
	return false
}

func (d *Dispatcher) run(userID int64, w *worker) {
	defer d.wg.Done()
	timer := time.NewTimer(d.idle)
	defer timer.Stop()

	for {
		select {
		case j, ok := <-w.queue:
			if !ok {
				return
			}
			timer.Stop()
			d.orch.Process(d.ctx, j.msg, j.out)
			timer.Reset(d.idle)
		case <-timer.C:
			d.mu.Lock()
			if len(w.queue) == 0 && !d.closed {
				delete(d.workers, userID)
				d.gauge()
				d.mu.Unlock()
				return
			}
			d.mu.Unlock()
			timer.Reset(d.idle)
		}
	}
}

// gauge requires d.mu
func (d *Dispatcher) gauge() {
	if d.orch.Metrics != nil {
		d.orch.Metrics.SetActiveWorkers(len(d.workers))
	}
}

// Active is the number of live workers
func (d *Dispatcher) Active() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.workers)
}

// Close stops accepting messages, drains queued work and waits for every
// worker and background write to finish
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for id, w := range d.workers {
		close(w.queue)
		delete(d.workers, id)
	}
	d.gauge()
	d.mu.Unlock()

	d.wg.Wait()
	d.orch.Wait()
}
