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
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/torproject/oniperf-go/archive/compress"
	"github.com/torproject/oniperf-go/ctrlparse"
	"github.com/torproject/oniperf-go/model"
	"github.com/torproject/oniperf-go/tgenparse"
)

// Config names the log files one Analysis run should parse, and the
// fallback identity to use if the parsers themselves report none.
type Config struct {
	Nickname       string
	MeasurementIP  string
	Hostname       string
	TGenLogPaths   []string
	TorCtlLogPaths []string
	Log            *logrus.Logger
}

// Analysis collects one node's parsed tgen/tor data into an
// model.AnalysisDocument. It is single-owner: built by one Analyze call,
// then read-only.
type Analysis struct {
	cfg      Config
	doc      *model.AnalysisDocument
	analyzed bool
}

// New returns a ready-to-use Analysis.
func New(cfg Config) *Analysis {
	if cfg.Log == nil {
		cfg.Log = logrus.StandardLogger()
	}
	return &Analysis{cfg: cfg, doc: model.NewAnalysisDocument()}
}

// Document returns the accumulated AnalysisDocument. Safe to call before
// Analyze; it returns an empty document in that case.
func (a *Analysis) Document() *model.AnalysisDocument { return a.doc }

// Analyze parses every configured log file and stashes the result under the
// inferred node nickname. It is idempotent: a second call is a no-op.
func (a *Analysis) Analyze(doComplete bool, dateFilter *time.Time) error {
	if a.analyzed {
		return nil
	}

	nickname := a.cfg.Nickname
	var tgenData *model.TGenData
	var torData *model.TorData

	if len(a.cfg.TGenLogPaths) > 0 {
		p := tgenparse.New(tgenparse.Config{DoComplete: doComplete, DateFilter: dateFilter, Log: a.cfg.Log})
		for _, path := range a.cfg.TGenLogPaths {
			if err := parseFile(path, p.ParseReader); err != nil {
				return err
			}
		}
		if nickname == "" && p.Hostname() != "" {
			nickname = p.Hostname()
		}
		tgenData = &model.TGenData{Transfers: p.Completed(), TransfersSummary: p.Summary()}
	}

	if len(a.cfg.TorCtlLogPaths) > 0 {
		p := ctrlparse.New(ctrlparse.Config{DoComplete: doComplete, DateFilter: dateFilter, Log: a.cfg.Log})
		for _, path := range a.cfg.TorCtlLogPaths {
			if err := parseFile(path, p.ParseReader); err != nil {
				return err
			}
		}
		if nickname == "" && p.Hostname() != "" {
			nickname = p.Hostname()
		}
		torData = &model.TorData{
			Circuits:         p.Circuits(),
			CircuitsSummary:  p.CircuitsSummary(),
			Streams:          p.Streams(),
			StreamsSummary:   p.StreamsSummary(),
			BandwidthSummary: p.Bandwidth(),
		}
	}

	if nickname == "" {
		nickname = a.cfg.Hostname
	}
	if nickname == "" {
		nickname = "unknown"
	}
	measurementIP := a.cfg.MeasurementIP
	if measurementIP == "" {
		measurementIP = "unknown"
	}

	a.doc.Data[nickname] = model.NodeData{
		MeasurementIP: measurementIP,
		TGen:          tgenData,
		Tor:           torData,
	}
	a.analyzed = true
	return nil
}

// parseFile opens path and transparently decompresses it (rotated archives
// arrive gzip-compressed off disk; unrotated live logs are plain text)
// before handing it to parse.
func parseFile(path string, parse func(io.Reader) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("analysis: opening %s: %w", path, err)
	}
	defer f.Close()

	_, rdr, err := compress.Detect(f)
	if err != nil {
		return fmt.Errorf("analysis: detecting compression on %s: %w", path, err)
	}
	defer rdr.Close()

	return parse(rdr)
}

// Merge unions other's nodes into this document, keyed by nickname. It
// fails if any nickname already present in this document also appears in
// other: an operator must pre-aggregate same-node files before merging.
func (a *Analysis) Merge(other *Analysis) error {
	for nickname, node := range other.doc.Data {
		if _, exists := a.doc.Data[nickname]; exists {
			return fmt.Errorf("analysis: nickname %q already present in merge target", nickname)
		}
		a.doc.Data[nickname] = node
	}
	return nil
}
