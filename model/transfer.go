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

import "fmt"

// TransferMethod is the traffic-generator transfer direction.
type TransferMethod string

const (
	MethodGet TransferMethod = "GET"
	MethodPut TransferMethod = "PUT"
)

// Unreached is the sentinel value for a milestone that was never reached.
const Unreached = -1.0

// MilestoneSeconds holds the per-milestone elapsed seconds of one transfer,
// in the fixed order the traffic generator reports them on the wire. Each
// milestone is filled at most once; Unreached means the milestone never
// fired for this transfer.
type MilestoneSeconds struct {
	SocketCreate  float64 `json:"socket_create"`
	SocketConnect float64 `json:"socket_connect"`
	ProxyInit     float64 `json:"proxy_init"`
	ProxyChoice   float64 `json:"proxy_choice"`
	ProxyRequest  float64 `json:"proxy_request"`
	ProxyResponse float64 `json:"proxy_response"`
	Command       float64 `json:"command"`
	Response      float64 `json:"response"`
	FirstByte     float64 `json:"first_byte"`
	LastByte      float64 `json:"last_byte"`
	Checksum      float64 `json:"checksum"`
}

// LastReached returns the highest elapsed-seconds value among reached
// milestones, and whether any milestone was reached at all.
func (m MilestoneSeconds) LastReached() (float64, bool) {
	var (
		best  float64
		found bool
	)
	for _, v := range []float64{
		m.SocketCreate, m.SocketConnect, m.ProxyInit, m.ProxyChoice,
		m.ProxyRequest, m.ProxyResponse, m.Command, m.Response,
		m.FirstByte, m.LastByte, m.Checksum,
	} {
		if v < 0 {
			continue
		}
		if !found || v > best {
			best = v
			found = true
		}
	}
	return best, found
}

// Endpoints is the raw local/proxy/remote transport tuple parsed off the
// wire for one transfer.
type Endpoints struct {
	Local  string `json:"local"`
	Proxy  string `json:"proxy"`
	Remote string `json:"remote"`
}

// Transfer is one traffic-generator bulk transfer, identified by
// (EndpointID, SequenceNumber) for the lifetime of a generator instance.
type Transfer struct {
	EndpointID     string           `json:"-"`
	SequenceNumber int              `json:"-"`
	Method         TransferMethod   `json:"method"`
	FilesizeBytes  int64            `json:"filesize_bytes"`
	Endpoints      Endpoints        `json:"endpoints"`
	ErrorCode      string           `json:"error_code,omitempty"`
	TotalBytesRead int64            `json:"total_bytes_read"`
	TotalBytesWrite int64           `json:"total_bytes_write"`
	IsCommander    bool             `json:"is_commander"`
	IsSuccess      bool             `json:"is_success"`
	IsError        bool             `json:"is_error"`
	UnixTSStart    float64          `json:"unix_ts_start"`
	UnixTSEnd      float64          `json:"unix_ts_end"`
	ElapsedSeconds MilestoneSeconds `json:"elapsed_seconds"`
	// PayloadProgress maps a decile string ("0.0".."1.0") to the first
	// wall-clock timestamp at which cumulative progress crossed it.
	PayloadProgress map[string]float64 `json:"payload_progress,omitempty"`
	// PayloadBytes maps a byte threshold string to the first wall-clock
	// timestamp at which cumulative bytes crossed it.
	PayloadBytes map[string]float64 `json:"payload_bytes,omitempty"`
}

// ID returns the canonical "<endpoint_id>:<sequence_number>" transfer
// identity used as the completed-transfers map key.
func (t *Transfer) ID() string {
	return fmt.Sprintf("%s:%d", t.EndpointID, t.SequenceNumber)
}

// DecileThresholds are the payload-progress fractions tracked per transfer.
var DecileThresholds = []float64{0.0, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0}

// ByteThresholds are the cumulative byte counts tracked per transfer.
var ByteThresholds = []int64{10240, 20480, 51200, 102400, 204800, 512000, 1048576, 2097152, 5242880}
