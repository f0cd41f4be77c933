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

package analysis

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Job is one (tgen_log, ctrl_log, date) unit of offline reprocessing.
type Job struct {
	Nickname      string
	MeasurementIP string
	TGenLogPath   string
	TorCtlLogPath string
	DateFilter    *time.Time
}

// RunOffline analyzes each Job concurrently, bounded to one goroutine per
// CPU, and merges the results into a single Analysis. Unlike the Rotator's
// online path (always do_complete=false, one worker), offline reprocessing
// parses with do_complete=true to recover full per-transfer/per-circuit
// records.
func RunOffline(ctx context.Context, jobs []Job, log *logrus.Logger) (*Analysis, error) {
	results := make([]*Analysis, len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())

	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}

			a := New(Config{
				Nickname:       job.Nickname,
				MeasurementIP:  job.MeasurementIP,
				TGenLogPaths:   nonEmpty(job.TGenLogPath),
				TorCtlLogPaths: nonEmpty(job.TorCtlLogPath),
				Log:            log,
			})
			if err := a.Analyze(true, job.DateFilter); err != nil {
				return fmt.Errorf("analysis: job %d: %w", i, err)
			}
			results[i] = a
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := New(Config{Log: log})
	merged.analyzed = true
	for _, a := range results {
		if err := merged.Merge(a); err != nil {
			return nil, err
		}
	}
	return merged, nil
}

func nonEmpty(path string) []string {
	if path == "" {
		return nil
	}
	return []string{path}
}
