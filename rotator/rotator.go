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

package rotator

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/torproject/oniperf-go/analysis"
	"github.com/torproject/oniperf-go/internal/runlife"
	"github.com/torproject/oniperf-go/linesink"
)

// Config names the sinks a Rotator watches and where it publishes the
// nightly analysis document.
type Config struct {
	// Sinks are rotated every midnight with no further processing.
	Sinks []linesink.Sink

	// TGenSink and TorCtlSink, when non-nil, are rotated and their
	// archives fed into an analysis.Analysis for the night, in addition
	// to the plain rotation every Sink receives.
	TGenSink   linesink.Sink
	TorCtlSink linesink.Sink

	Nickname      string
	MeasurementIP string
	DocRoot       string

	Log *logrus.Logger
}

// Rotator runs the 1-second midnight-detection tick loop described by the
// measurement runtime's nightly rotation contract.
type Rotator struct {
	runlife.Ticker

	cfg          Config
	nextMidnight *time.Time
}

// New builds a Rotator for cfg. Call Start to begin ticking.
func New(cfg Config) *Rotator {
	if cfg.Log == nil {
		cfg.Log = logrus.StandardLogger()
	}
	r := &Rotator{cfg: cfg}
	r.Ticker = runlife.NewTicker(time.Second, r.tick)
	return r
}

func (r *Rotator) tick(ctx context.Context, _ *time.Ticker) error {
	now := time.Now().UTC()

	if r.nextMidnight == nil {
		midnight := time.Date(now.Year(), now.Month(), now.Day(), 23, 59, 59, 0, time.UTC)
		if midnight.Before(now) {
			midnight = midnight.AddDate(0, 0, -1)
		}
		r.nextMidnight = &midnight
	}

	if now.Before(*r.nextMidnight) {
		return nil
	}

	at := *r.nextMidnight
	r.RotateNow(at)
	r.nextMidnight = nil
	return nil
}

// RotateNow runs one full rotation pass as if midnight were at, rotating
// every configured sink and, when tgen/torctl sinks are present, producing
// and publishing the night's analysis document. Exposed directly so
// callers (and tests) can force an out-of-band rotation.
func (r *Rotator) RotateNow(at time.Time) {
	for _, s := range r.cfg.Sinks {
		if _, err := s.Rotate(at); err != nil {
			r.cfg.Log.WithError(err).Warn("rotator: failed to rotate sink")
		}
	}

	if r.cfg.TGenSink == nil && r.cfg.TorCtlSink == nil {
		return
	}

	cfg := analysis.Config{Nickname: r.cfg.Nickname, MeasurementIP: r.cfg.MeasurementIP, Log: r.cfg.Log}

	if r.cfg.TGenSink != nil {
		path, err := r.cfg.TGenSink.Rotate(at)
		if err != nil {
			r.cfg.Log.WithError(err).Warn("rotator: failed to rotate tgen sink")
		} else if path != "" {
			cfg.TGenLogPaths = []string{path}
		}
	}
	if r.cfg.TorCtlSink != nil {
		path, err := r.cfg.TorCtlSink.Rotate(at)
		if err != nil {
			r.cfg.Log.WithError(err).Warn("rotator: failed to rotate torctl sink")
		} else if path != "" {
			cfg.TorCtlLogPaths = []string{path}
		}
	}

	a := analysis.New(cfg)
	if err := a.Analyze(false, &at); err != nil {
		r.cfg.Log.WithError(err).Warn("rotator: analysis failed, skipping tonight's document")
		return
	}
	name := fmt.Sprintf("%s.onionperf.analysis.json.xz", at.Format("2006-01-02"))
	if err := a.Save(filepath.Join(r.cfg.DocRoot, name), true, nil); err != nil {
		r.cfg.Log.WithError(err).Warn("rotator: saving analysis document failed")
		return
	}
	if err := GenerateIndex(r.cfg.DocRoot); err != nil {
		r.cfg.Log.WithError(err).Warn("rotator: regenerating index.xml failed")
	}
}
