// Package sched provides the cooperative run loop of the node: registered
// tasks flagged by bit, posted closures and single-shot timers that fire into
// the same queue. Everything submitted here runs on the goroutine that calls
// Run (or RunPending), one item at a time.
package sched

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// TaskID identifies a registered task. Lower ids run first.
type TaskID uint8

// MaxTasks is the number of registrable task ids.
const MaxTasks = 32

// Stopper cancels a pending timer callback.
type Stopper interface {
	Stop() bool
}

// AfterFunc schedules f after d on some other goroutine.
type AfterFunc func(d time.Duration, f func()) Stopper

func realAfterFunc(d time.Duration, f func()) Stopper {
	return time.AfterFunc(d, f)
}

// Scheduler is a single-consumer cooperative task queue.
// SetTask, Post and Timer.Start are safe to call from any goroutine.
type Scheduler struct {
	mu      sync.Mutex
	tasks   [MaxTasks]func()
	pending uint32
	queue   []func()
	wake    chan struct{}

	after AfterFunc
	log   zerolog.Logger
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithAfterFunc replaces the timer source. Tests use a Manual source.
func WithAfterFunc(f AfterFunc) Option {
	return func(s *Scheduler) { s.after = f }
}

// WithLogger sets the logger used for task diagnostics.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Scheduler) { s.log = l }
}

// New creates a Scheduler backed by time.AfterFunc.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		wake:  make(chan struct{}, 1),
		after: realAfterFunc,
		log:   zerolog.Nop(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Register binds fn to id. Registering twice replaces the task.
func (s *Scheduler) Register(id TaskID, fn func()) {
	if int(id) >= MaxTasks {
		panic(fmt.Sprintf("sched: task id %d out of range", id))
	}
	s.mu.Lock()
	s.tasks[id] = fn
	s.mu.Unlock()
}

// SetTask marks id as pending. Setting an already pending task is a no-op.
func (s *Scheduler) SetTask(id TaskID) {
	s.mu.Lock()
	s.pending |= 1 << id
	s.mu.Unlock()
	s.signal()
}

// Post queues fn to run once on the scheduler goroutine.
func (s *Scheduler) Post(fn func()) {
	s.mu.Lock()
	s.queue = append(s.queue, fn)
	s.mu.Unlock()
	s.signal()
}

func (s *Scheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// next pops the next runnable item: pending tasks first, lowest id first,
// then posted closures in FIFO order.
func (s *Scheduler) next() func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id := 0; id < MaxTasks && s.pending != 0; id++ {
		bit := uint32(1) << id
		if s.pending&bit == 0 {
			continue
		}
		s.pending &^= bit
		if fn := s.tasks[id]; fn != nil {
			return fn
		}
		s.log.Warn().Int("task", id).Msg("task set but not registered")
	}

	if len(s.queue) == 0 {
		return nil
	}
	fn := s.queue[0]
	s.queue[0] = nil
	s.queue = s.queue[1:]
	return fn
}

// RunPending runs everything that is runnable, including items submitted by
// the items it runs, and returns how many ran.
func (s *Scheduler) RunPending() int {
	n := 0
	for fn := s.next(); fn != nil; fn = s.next() {
		fn()
		n++
	}
	return n
}

// Run drains the queue until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		s.RunPending()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.wake:
		}
	}
}

// Timer is a single-shot timer whose callback runs on the scheduler.
type Timer struct {
	s      *Scheduler
	fn     func()
	mu     sync.Mutex
	period time.Duration
	gen    uint64
	stop   Stopper
}

// NewTimer creates a stopped timer.
func (s *Scheduler) NewTimer(period time.Duration, fn func()) *Timer {
	return &Timer{s: s, fn: fn, period: period}
}

// SetPeriod changes the period used by the next Start.
func (t *Timer) SetPeriod(d time.Duration) {
	t.mu.Lock()
	t.period = d
	t.mu.Unlock()
}

// Period returns the configured period.
func (t *Timer) Period() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.period
}

// Start (re)arms the timer. A pending expiry from a previous Start is dropped.
func (t *Timer) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stop != nil {
		t.stop.Stop()
	}
	t.gen++
	gen := t.gen
	t.stop = t.s.after(t.period, func() {
		t.s.Post(func() { t.fire(gen) })
	})
}

// Stop disarms the timer.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stop != nil {
		t.stop.Stop()
		t.stop = nil
	}
	t.gen++
}

// Running reports whether an expiry is outstanding.
func (t *Timer) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stop != nil
}

func (t *Timer) fire(gen uint64) {
	t.mu.Lock()
	if gen != t.gen {
		t.mu.Unlock()
		return
	}
	t.stop = nil
	t.mu.Unlock()
	t.fn()
}
