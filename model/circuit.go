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

package model

// CircuitState is the lifecycle state of a Circuit.
type CircuitState string

const (
	CircuitPending CircuitState = "pending"
	CircuitBuilt   CircuitState = "built"
	CircuitClosed  CircuitState = "closed"
	CircuitFailed  CircuitState = "failed"
)

// Hop is one path element of a built or building Circuit.
type Hop struct {
	Fingerprint string  `json:"fingerprint"`
	Nickname    string  `json:"nickname"`
	ArrivedAt   float64 `json:"arrived_at"`
}

// Event is a timestamped tag appended to a Circuit's or Stream's transition
// list, e.g. "general:LAUNCHED" or "measurement:CLOSED".
type Event struct {
	Tag       string  `json:"tag"`
	Timestamp float64 `json:"timestamp"`
}

// Circuit is one routing-daemon multi-hop path, identified by an integer id
// scoped to a single control session.
type Circuit struct {
	ID                int          `json:"-"`
	State             CircuitState `json:"-"`
	UnixTSStart       float64      `json:"unix_ts_start"`
	UnixTSEnd         float64      `json:"unix_ts_end"`
	BuildCompletedAt  float64      `json:"-"`
	HasBuildCompleted bool         `json:"-"`
	// BuildtimeSeconds is the cached build-completed minus launched
	// duration, precomputed at finalization time.
	BuildtimeSeconds   *float64 `json:"buildtime_seconds,omitempty"`
	BuildTimeout       *float64 `json:"build_timeout,omitempty"`
	BuildQuantile      *float64 `json:"build_quantile,omitempty"`
	Path               []Hop    `json:"path,omitempty"`
	Events             []Event  `json:"events,omitempty"`
	FailureReasonLocal  string  `json:"failure_reason_local,omitempty"`
	FailureReasonRemote string  `json:"failure_reason_remote,omitempty"`
}

// IsThreeHop reports whether this circuit's recorded path has exactly three
// hops, the only shape that contributes to the build-time histogram.
func (c *Circuit) IsThreeHop() bool {
	return len(c.Path) == 3
}
