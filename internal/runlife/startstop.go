package runlife

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// StartStop runs a blocking function on Start and waits for it to unwind on
// Stop, tracking uptime and any errors the function or its counterpart
// produced along the way.
type StartStop interface {
	// Start launches the start function in its own goroutine. If already
	// running, the previous instance is stopped first. Start always
	// returns nil: failures surface through ErrorsLast/ErrorsList once the
	// goroutine observes them.
	Start(ctx context.Context) error
	// Stop cancels the running instance, waits for it to return, then
	// invokes the stop function.
	Stop(ctx context.Context) error
	IsRunning() bool
	// Uptime is the duration since the current instance started, or zero
	// when not running.
	Uptime() time.Duration
	ErrorsLast() error
	ErrorsList() []error
}

// Runner is an alias for StartStop: the name every long-lived task in this
// repository (watchdog, ctrlmon, rotator) embeds for its lifecycle surface.
type Runner = StartStop

type startStop struct {
	start func(context.Context) error
	stop  func(context.Context) error

	mu        sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
	running   atomic.Bool
	startedAt atomic.Int64

	errMu sync.Mutex
	errs  []error
}

// New returns a StartStop wrapping the given start/stop functions. Either
// may be nil: calling Start/Stop on a nil function records an error instead
// of panicking.
func New(start, stop func(context.Context) error) StartStop {
	return &startStop{start: start, stop: stop}
}

func (r *startStop) addErr(err error) {
	if err == nil {
		return
	}
	r.errMu.Lock()
	r.errs = append(r.errs, err)
	r.errMu.Unlock()
}

func (r *startStop) Start(ctx context.Context) error {
	if r.running.Load() {
		_ = r.Stop(ctx)
	}

	r.mu.Lock()
	child, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	done := make(chan struct{})
	r.done = done
	r.mu.Unlock()

	r.startedAt.Store(time.Now().UnixNano())
	r.running.Store(true)

	go func() {
		defer close(done)
		defer r.running.Store(false)
		defer r.startedAt.Store(0)

		if r.start == nil {
			r.addErr(errors.New("runlife: invalid start function"))
			return
		}
		if err := r.start(child); err != nil {
			r.addErr(err)
		}
	}()

	return nil
}

func (r *startStop) Stop(ctx context.Context) error {
	r.mu.Lock()
	cancel := r.cancel
	done := r.done
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
		}
	}

	if r.stop == nil {
		r.addErr(errors.New("runlife: invalid stop function"))
		return nil
	}
	if err := r.stop(ctx); err != nil {
		r.addErr(err)
	}
	return nil
}

func (r *startStop) IsRunning() bool {
	return r.running.Load()
}

func (r *startStop) Uptime() time.Duration {
	started := r.startedAt.Load()
	if started == 0 {
		return 0
	}
	return time.Duration(time.Now().UnixNano() - started)
}

func (r *startStop) ErrorsLast() error {
	r.errMu.Lock()
	defer r.errMu.Unlock()
	if len(r.errs) == 0 {
		return nil
	}
	return r.errs[len(r.errs)-1]
}

func (r *startStop) ErrorsList() []error {
	r.errMu.Lock()
	defer r.errMu.Unlock()
	out := make([]error, len(r.errs))
	copy(out, r.errs)
	return out
}
