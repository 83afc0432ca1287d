// Package alert delivers security alerts to an external notifier without
// blocking the authentication path.
package alert

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Alert describes an attempt pattern that looks like a distributed
// credential-guessing attack against one identity.
type Alert struct {
	Identity        string
	Reason          string
	AttemptCount    int
	UniqueAddresses int
	Window          time.Duration
	ObservedAt      time.Time
	Context         map[string]string
}

// ReasonDistributedFailures is the reason attached to alerts raised by the
// lockout engine's trailing-window scan.
const ReasonDistributedFailures = "distributed_login_failures"

// Notifier receives alerts. Delivery is fire-and-forget: returned errors are
// logged by the dispatcher and never reach the authentication caller. The
// notifier is expected to tolerate duplicates; alerts are not deduplicated
// across qualifying attempts.
type Notifier interface {
	Notify(ctx context.Context, a Alert) error
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, a Alert) error

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, a Alert) error { return f(ctx, a) }

// Config controls dispatcher buffering behavior.
type Config struct {
	BufferSize int
	DropIfFull bool
}

// Dispatcher forwards alerts to a notifier from a single background worker.
type Dispatcher struct {
	cfg       Config
	notifier  Notifier
	warnf     func(format string, args ...any)
	ch        chan Alert
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

// NewDispatcher starts the delivery worker. A nil notifier yields a nil
// dispatcher, on which all methods are no-ops.
func NewDispatcher(cfg Config, notifier Notifier, warnf func(format string, args ...any)) *Dispatcher {
	if notifier == nil {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if warnf == nil {
		warnf = func(string, ...any) {}
	}

	d := &Dispatcher{
		cfg:      cfg,
		notifier: notifier,
		warnf:    warnf,
		ch:       make(chan Alert, cfg.BufferSize),
		done:     make(chan struct{}),
	}

	d.wg.Add(1)
	go d.run()

	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case a := <-d.ch:
			d.deliver(a)
		case <-d.done:
			for {
				select {
				case a := <-d.ch:
					d.deliver(a)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(a Alert) {
	if err := d.notifier.Notify(context.Background(), a); err != nil {
		d.warnf("alert delivery failed for %s: %v", a.Identity, err)
	}
}

// Dispatch enqueues an alert. When the buffer is full it either drops the
// alert (DropIfFull) or blocks until there is room or ctx is done.
func (d *Dispatcher) Dispatch(ctx context.Context, a Alert) {
	if d == nil || d.closed.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if d.cfg.DropIfFull {
		select {
		case d.ch <- a:
		default:
			d.dropped.Add(1)
		}
		return
	}

	select {
	case d.ch <- a:
	case <-ctx.Done():
		d.dropped.Add(1)
	case <-d.done:
	}
}

// Dropped reports how many alerts were discarded because the buffer was full.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// Close drains buffered alerts and stops the worker. Safe to call twice.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()
	})
}
