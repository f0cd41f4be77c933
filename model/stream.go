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

// Stream is one application stream mapped onto a Circuit, identified by an
// integer id scoped to a single control session.
type Stream struct {
	ID          int     `json:"-"`
	CircuitID   *int    `json:"circuit_id,omitempty"`
	UnixTSStart float64 `json:"unix_ts_start"`
	UnixTSEnd   float64 `json:"unix_ts_end"`
	Source      string  `json:"source,omitempty"`
	Target      string  `json:"target,omitempty"`
	// Purpose is the last-observed purpose reported for this stream.
	Purpose             string  `json:"-"`
	Events              []Event `json:"events,omitempty"`
	FailureReasonLocal  string  `json:"failure_reason_local,omitempty"`
	FailureReasonRemote string  `json:"failure_reason_remote,omitempty"`
}
