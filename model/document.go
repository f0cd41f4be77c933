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

import (
	"errors"
	"strings"
)

// DocumentType is the required "type" field of every AnalysisDocument.
const DocumentType = "onionperf"

// Version strings of the document format. Load accepts only versions that
// sort below "3.", so a VersionFiltered document is rejected on load.
const (
	VersionUnfiltered = "2.0"
	VersionFiltered   = "4.0"
)

var (
	// ErrUnsupportedType is returned when a loaded document's "type" field
	// is not "onionperf".
	ErrUnsupportedType = errors.New("model: unsupported document type")
	// ErrUnsupportedVersion is returned when a loaded document's version
	// is "3." or greater, per the canonical format's deprecation rule.
	ErrUnsupportedVersion = errors.New("model: unsupported document version")
)

// TransferSummary accumulates histograms over completed Transfers.
type TransferSummary struct {
	// TimeToFirstByte/TimeToLastByte map a file size (as a decimal string)
	// to the integer completion second, to the list of elapsed-seconds
	// values recorded at that second.
	TimeToFirstByte map[string]map[int64][]float64 `json:"time_to_first_byte"`
	TimeToLastByte  map[string]map[int64][]float64 `json:"time_to_last_byte"`
	// Errors maps an error code to the integer completion second, to the
	// list of file sizes that failed with that code at that second.
	Errors map[string]map[int64][]int64 `json:"errors"`
}

// NewTransferSummary returns an empty, ready-to-use TransferSummary.
func NewTransferSummary() TransferSummary {
	return TransferSummary{
		TimeToFirstByte: make(map[string]map[int64][]float64),
		TimeToLastByte:  make(map[string]map[int64][]float64),
		Errors:          make(map[string]map[int64][]int64),
	}
}

// CircuitSummary accumulates histograms over completed Circuits.
type CircuitSummary struct {
	// Buildtimes holds one entry per completed three-hop circuit.
	Buildtimes []float64 `json:"buildtimes"`
	// Lifetimes holds one entry per completed circuit, regardless of hop count.
	Lifetimes []float64 `json:"lifetimes"`
}

// StreamSummary accumulates lifetime histograms over completed Streams.
type StreamSummary struct {
	Lifetimes map[string][]float64 `json:"lifetimes"`
}

// NewStreamSummary returns an empty, ready-to-use StreamSummary.
func NewStreamSummary() StreamSummary {
	return StreamSummary{Lifetimes: make(map[string][]float64)}
}

// TGenData is the traffic-generator parser's contribution to one node's
// entry in an AnalysisDocument.
type TGenData struct {
	Transfers        map[string]*Transfer `json:"transfers"`
	TransfersSummary TransferSummary      `json:"transfers_summary"`
}

// TorData is the control-protocol parser's contribution to one node's entry
// in an AnalysisDocument.
type TorData struct {
	Circuits          map[string]*Circuit  `json:"circuits"`
	CircuitsSummary   CircuitSummary        `json:"circuits_summary"`
	Streams           map[string]*Stream    `json:"streams"`
	StreamsSummary    StreamSummary         `json:"streams_summary"`
	BandwidthSummary  BandwidthSummary      `json:"bandwidth_summary"`
}

// NodeData is one measured node's entry in an AnalysisDocument.
type NodeData struct {
	MeasurementIP string    `json:"measurement_ip"`
	TGen          *TGenData `json:"tgen,omitempty"`
	Tor           *TorData  `json:"tor,omitempty"`
}

// AnalysisDocument is the canonical JSON result document produced by the
// Analysis component and published to the document root.
type AnalysisDocument struct {
	Type    string              `json:"type"`
	Version string              `json:"version"`
	Data    map[string]NodeData `json:"data"`
	// Filters is present only on a filtered (version 4.0) document.
	Filters map[string]interface{} `json:"filters,omitempty"`
}

// NewAnalysisDocument returns an empty, unfiltered AnalysisDocument ready
// for nodes to be added to its Data map.
func NewAnalysisDocument() *AnalysisDocument {
	return &AnalysisDocument{
		Type:    DocumentType,
		Version: VersionUnfiltered,
		Data:    make(map[string]NodeData),
	}
}

// ValidateLoadable checks the type/version fields of a document that was
// just deserialized from disk, per spec.md's load refusal rule: any version
// string that sorts at "3." or higher is rejected.
func ValidateLoadable(doc *AnalysisDocument) error {
	if doc.Type != DocumentType {
		return ErrUnsupportedType
	}
	if strings.Compare(doc.Version, "3.") >= 0 {
		return ErrUnsupportedVersion
	}
	return nil
}
