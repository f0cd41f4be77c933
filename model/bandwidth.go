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

// BandwidthSummary accumulates one bytes-read/bytes-written sample per
// wall-clock second, keyed by integer unix second. A later report for the
// same second intentionally overwrites an earlier one.
type BandwidthSummary struct {
	BytesRead    map[int64]int64 `json:"bytes_read"`
	BytesWritten map[int64]int64 `json:"bytes_written"`
}

// NewBandwidthSummary returns an empty, ready-to-use BandwidthSummary.
func NewBandwidthSummary() BandwidthSummary {
	return BandwidthSummary{
		BytesRead:    make(map[int64]int64),
		BytesWritten: make(map[int64]int64),
	}
}
