/*
 * MIT License
 *
 * Copyright (c) 2026 The Tor Project
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 */

package watchdog

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"regexp"
	"sync"
	"time"

	"github.com/torproject/oniperf-go/internal/runlife"
)

// BreakerPolicy bounds how many times the child may die within Window
// before the watchdog gives up and propagates an error, per spec.md §9.
type BreakerPolicy struct {
	MaxDeaths int
	Window    time.Duration
}

// DefaultBreakerPolicy matches the >10-deaths-per-hour threshold observed
// in the original watchdog loop.
var DefaultBreakerPolicy = BreakerPolicy{MaxDeaths: 10, Window: time.Hour}

// Config describes the child process a Watchdog supervises.
type Config struct {
	Command string
	Args    []string
	Dir     string

	// Sink receives every line of the child's combined stdout/stderr.
	Sink io.Writer

	// ReadyPattern, if non-nil, gates the Ready channel: it closes the
	// first time a line matches. A nil pattern closes Ready immediately.
	ReadyPattern *regexp.Regexp

	// NoRelaunch stops the watchdog (without error) the first time the
	// child exits on its own, instead of relaunching it.
	NoRelaunch bool

	Breaker BreakerPolicy
	// PauseAfterFailure is the backoff before relaunching; defaults to 30s.
	PauseAfterFailure time.Duration
}

// Watchdog embeds a runlife.Runner so it exposes the same
// Start/Stop/IsRunning/Uptime/ErrorsLast/ErrorsList surface as every other
// long-lived task in this repository.
type Watchdog struct {
	runlife.Runner

	cfg Config

	readyOnce sync.Once
	readyCh   chan struct{}

	mu       sync.Mutex
	failures []time.Time
}

// New builds a Watchdog for cfg. Call Start to launch the child.
func New(cfg Config) *Watchdog {
	if cfg.Breaker.MaxDeaths == 0 {
		cfg.Breaker = DefaultBreakerPolicy
	}
	if cfg.PauseAfterFailure == 0 {
		cfg.PauseAfterFailure = 30 * time.Second
	}
	w := &Watchdog{cfg: cfg, readyCh: make(chan struct{})}
	w.Runner = runlife.New(w.run, func(context.Context) error { return nil })
	return w
}

// Ready closes once the child has signalled readiness (or immediately, if
// no ReadyPattern was configured).
func (w *Watchdog) Ready() <-chan struct{} {
	return w.readyCh
}

func (w *Watchdog) signalReady() {
	w.readyOnce.Do(func() { close(w.readyCh) })
}

func (w *Watchdog) run(ctx context.Context) error {
	var pause time.Duration

	for {
		if ctx.Err() != nil {
			return nil
		}
		if pause > 0 {
			select {
			case <-time.After(pause):
			case <-ctx.Done():
				return nil
			}
		}

		exitErr, spawnErr := w.runOnce(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if w.cfg.NoRelaunch {
			return nil
		}

		lastErr := exitErr
		if spawnErr != nil {
			lastErr = spawnErr
		}

		count := w.recordFailure()
		if count > w.cfg.Breaker.MaxDeaths {
			if lastErr != nil {
				return fmt.Errorf("watchdog: %s died %d times within %s, giving up: %w", w.cfg.Command, count, w.cfg.Breaker.Window, lastErr)
			}
			return fmt.Errorf("watchdog: %s died %d times within %s, giving up", w.cfg.Command, count, w.cfg.Breaker.Window)
		}
		pause = w.cfg.PauseAfterFailure
	}
}

// runOnce spawns and waits for one instance of the child. exitErr is the
// process's own exit error (nil on clean exit); spawnErr is returned only
// when the process could not be started at all.
func (w *Watchdog) runOnce(ctx context.Context) (exitErr, spawnErr error) {
	cmd := exec.CommandContext(ctx, w.cfg.Command, w.cfg.Args...)
	cmd.Dir = w.cfg.Dir

	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("watchdog: starting %s: %w", w.cfg.Command, err)
	}

	waitCh := make(chan error, 1)
	go func() {
		err := cmd.Wait()
		_ = pw.Close()
		waitCh <- err
	}()

	ready := w.cfg.ReadyPattern == nil
	if ready {
		w.signalReady()
	}

	scanner := bufio.NewScanner(pr)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		_, _ = fmt.Fprintf(w.cfg.Sink, "%s\n", line)
		if !ready && w.cfg.ReadyPattern.MatchString(line) {
			ready = true
			w.signalReady()
		}
	}

	return <-waitCh, nil
}

func (w *Watchdog) recordFailure() int {
	now := time.Now()
	w.mu.Lock()
	defer w.mu.Unlock()

	w.failures = append(w.failures, now)
	cutoff := now.Add(-w.cfg.Breaker.Window)
	i := 0
	for i < len(w.failures) && w.failures[i].Before(cutoff) {
		i++
	}
	w.failures = w.failures[i:]
	return len(w.failures)
}
