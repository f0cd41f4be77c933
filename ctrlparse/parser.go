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

package ctrlparse

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/torproject/oniperf-go/atomic"
	"github.com/torproject/oniperf-go/internal/ctlproto"
	"github.com/torproject/oniperf-go/model"
)

// Config controls how a Parser interprets the lines it is fed.
type Config struct {
	// DoComplete, when false, restricts parsing to bandwidth events: the
	// circuit and stream maps stay empty and only BandwidthSummary fills in.
	DoComplete bool
	// DateFilter, when set, skips any line whose UTC date does not match.
	DateFilter *time.Time
	Log        *logrus.Logger
}

// Parser accumulates Circuit and Stream data and their summary histograms
// from a sequence of onionperf.torctl.log lines.
type Parser struct {
	cfg      Config
	hostname string
	bootOK   bool

	bandwidth model.BandwidthSummary

	circuitsState   map[int]*model.Circuit
	circuits        map[string]*model.Circuit
	circuitsSummary model.CircuitSummary

	streamsState   map[int]*model.Stream
	streams        map[string]*model.Stream
	streamsSummary model.StreamSummary

	// buildTimeoutLast/buildQuantileLast cache the most recent
	// BUILDTIMEOUT_SET fields for the next circuit LAUNCHED event to pick
	// up; zero means "not yet observed".
	buildTimeoutLast  atomic.Value[float64]
	buildQuantileLast atomic.Value[float64]
}

// New returns a ready-to-use Parser.
func New(cfg Config) *Parser {
	if cfg.Log == nil {
		cfg.Log = logrus.StandardLogger()
	}
	return &Parser{
		cfg:               cfg,
		bandwidth:         model.NewBandwidthSummary(),
		circuitsState:     make(map[int]*model.Circuit),
		circuits:          make(map[string]*model.Circuit),
		streamsState:      make(map[int]*model.Stream),
		streams:           make(map[string]*model.Stream),
		streamsSummary:    model.NewStreamSummary(),
		buildTimeoutLast:  atomic.NewValue[float64](),
		buildQuantileLast: atomic.NewValue[float64](),
	}
}

// Hostname returns the host name captured from the torctl startup banner,
// or "" if no banner line has been seen yet.
func (p *Parser) Hostname() string { return p.hostname }

// Circuits returns the completed circuits keyed by their id, as strings.
// Empty unless Config.DoComplete is true.
func (p *Parser) Circuits() map[string]*model.Circuit { return p.circuits }

// CircuitsSummary returns the accumulated buildtime/lifetime histograms.
func (p *Parser) CircuitsSummary() model.CircuitSummary { return p.circuitsSummary }

// Streams returns the completed streams keyed by their id, as strings.
// Empty unless Config.DoComplete is true.
func (p *Parser) Streams() map[string]*model.Stream { return p.streams }

// StreamsSummary returns the accumulated lifetime histogram, by purpose.
func (p *Parser) StreamsSummary() model.StreamSummary { return p.streamsSummary }

// Bandwidth returns the accumulated per-second bandwidth samples.
func (p *Parser) Bandwidth() model.BandwidthSummary { return p.bandwidth }

// ParseReader feeds every line of r through ParseLine, logging and skipping
// lines that fail to parse rather than aborting the whole log.
func (p *Parser) ParseReader(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if err := p.ParseLine(scanner.Text()); err != nil {
			p.cfg.Log.WithError(err).Warn("ctrlparse: skipping unparsable line")
		}
	}
	return scanner.Err()
}

// ParseLine parses one onionperf.torctl.log line in ctlproto's
// "<date> <unix_ts> <raw>" framing.
func (p *Parser) ParseLine(line string) error {
	if line == "" {
		return nil
	}

	unixTS, raw, err := ctlproto.SplitLogLine(line)
	if err != nil {
		return err
	}

	if p.cfg.DateFilter != nil {
		lineDate := time.Unix(int64(unixTS), 0).UTC().Format("2006-01-02")
		filterDate := p.cfg.DateFilter.UTC().Format("2006-01-02")
		if lineDate != filterDate {
			return nil
		}
	}

	if !p.bootOK {
		p.inspectBanner(raw)
		return nil
	}

	if !p.cfg.DoComplete && !strings.Contains(raw, "650 BW") {
		return nil
	}

	kind, body, ok := ctlproto.ParseEventLine(line)
	if !ok {
		return nil
	}

	switch kind {
	case "CIRC":
		return p.handleCircuit(body, unixTS)
	case "CIRC_MINOR":
		if p.cfg.DoComplete {
			return p.handleCircuitMinor(body, unixTS)
		}
		return nil
	case "STREAM":
		if p.cfg.DoComplete {
			return p.handleStream(body, unixTS)
		}
		return nil
	case "BW":
		return p.handleBandwidth(body, unixTS)
	case "BUILDTIMEOUT_SET":
		return p.handleBuildTimeout(body)
	}
	return nil
}

// inspectBanner captures the torctl startup host name and watches for
// bootstrap completion. It is only consulted before bootOK is set, per
// spec.md §4.5: no event is dispatched until the daemon reports readiness.
func (p *Parser) inspectBanner(raw string) {
	if strings.Contains(raw, "Starting torctl program on host") {
		fields := strings.Fields(raw)
		for i, f := range fields {
			if f == "host" && i+1 < len(fields) {
				p.hostname = fields[i+1]
				break
			}
		}
	}
	if strings.Contains(raw, "Bootstrapped 100") ||
		(strings.Contains(raw, "BOOTSTRAP") && strings.Contains(raw, "PROGRESS=100")) {
		p.bootOK = true
	}
}

func parseKV(tokens []string) map[string]string {
	kv := make(map[string]string, len(tokens))
	for _, t := range tokens {
		if idx := strings.Index(t, "="); idx >= 0 {
			kv[t[:idx]] = t[idx+1:]
		}
	}
	return kv
}

func parsePath(token string, at float64) []model.Hop {
	parts := strings.Split(token, ",")
	hops := make([]model.Hop, 0, len(parts))
	for _, part := range parts {
		fp, nick := part, ""
		if idx := strings.Index(part, "~"); idx >= 0 {
			fp, nick = part[:idx], part[idx+1:]
		}
		hops = append(hops, model.Hop{
			Fingerprint: strings.TrimPrefix(fp, "$"),
			Nickname:    nick,
			ArrivedAt:   at,
		})
	}
	return hops
}

// splitCircuitBody splits a CIRC/CIRC_MINOR body into its id, status/event
// token, optional path token, and trailing KEY=VALUE pairs. The path token
// is only present on some status lines (e.g. LAUNCHED has none), so its
// presence is detected by the absence of an "=".
func splitCircuitBody(body string) (id int, status string, path []model.Hop, kv map[string]string, err error) {
	tokens := ctlproto.SplitQuoted(body)
	if len(tokens) < 2 {
		return 0, "", nil, nil, fmt.Errorf("ctrlparse: malformed circuit body %q", body)
	}
	id, err = strconv.Atoi(tokens[0])
	if err != nil {
		return 0, "", nil, nil, fmt.Errorf("ctrlparse: invalid circuit id %q: %w", tokens[0], err)
	}
	status = tokens[1]
	rest := tokens[2:]
	if len(rest) > 0 && !strings.Contains(rest[0], "=") {
		path = parsePath(rest[0], 0)
		rest = rest[1:]
	}
	kv = parseKV(rest)
	return id, status, path, kv, nil
}

func (p *Parser) handleCircuit(body string, unixTS float64) error {
	id, status, path, kv, err := splitCircuitBody(body)
	if err != nil {
		return err
	}
	for i := range path {
		path[i].ArrivedAt = unixTS
	}

	circ := p.circuitsState[id]
	if circ == nil {
		circ = &model.Circuit{ID: id, State: model.CircuitPending}
		p.circuitsState[id] = circ
	}
	purpose := kv["PURPOSE"]

	if status == "LAUNCHED" {
		if circ.UnixTSStart == 0 {
			circ.UnixTSStart = unixTS
		}
		if v := p.buildTimeoutLast.Load(); v != 0 {
			circ.BuildTimeout = &v
		}
		if v := p.buildQuantileLast.Load(); v != 0 {
			circ.BuildQuantile = &v
		}
	}

	circ.Events = append(circ.Events, model.Event{Tag: purpose + ":" + status, Timestamp: unixTS})

	switch status {
	case "EXTENDED":
		if len(path) > 0 {
			circ.Path = append(circ.Path, path[len(path)-1])
		}
	case "FAILED":
		circ.State = model.CircuitFailed
		circ.FailureReasonLocal = kv["REASON"]
		if rr := kv["REMOTE_REASON"]; rr != "" {
			circ.FailureReasonRemote = rr
		}
	case "BUILT":
		circ.State = model.CircuitBuilt
		if !circ.HasBuildCompleted {
			circ.BuildCompletedAt = unixTS
			circ.HasBuildCompleted = true
		}
		appendHiddenServiceEvent(circ, purpose, kv, unixTS)
	case "CLOSED":
		circ.State = model.CircuitClosed
	}

	if status == "CLOSED" || status == "FAILED" {
		p.finalizeCircuit(id, circ, unixTS)
	}
	return nil
}

func appendHiddenServiceEvent(circ *model.Circuit, purpose string, kv map[string]string, at float64) {
	if !strings.HasPrefix(purpose, "HS_") {
		return
	}
	tag := kv["HS_STATE"]
	if tag == "" {
		return
	}
	if rq := kv["REND_QUERY"]; rq != "" {
		tag += ":" + rq
	}
	circ.Events = append(circ.Events, model.Event{Tag: tag, Timestamp: at})
}

func (p *Parser) finalizeCircuit(id int, circ *model.Circuit, unixTS float64) {
	circ.UnixTSEnd = unixTS
	if circ.IsThreeHop() && circ.HasBuildCompleted {
		bt := circ.BuildCompletedAt - circ.UnixTSStart
		circ.BuildtimeSeconds = &bt
		p.circuitsSummary.Buildtimes = append(p.circuitsSummary.Buildtimes, bt)
	}
	p.circuitsSummary.Lifetimes = append(p.circuitsSummary.Lifetimes, circ.UnixTSEnd-circ.UnixTSStart)
	if p.cfg.DoComplete {
		p.circuits[strconv.Itoa(id)] = circ
	}
	delete(p.circuitsState, id)
}

func (p *Parser) handleCircuitMinor(body string, unixTS float64) error {
	id, event, _, kv, err := splitCircuitBody(body)
	if err != nil {
		return err
	}
	circ := p.circuitsState[id]
	if circ == nil {
		circ = &model.Circuit{ID: id, State: model.CircuitPending}
		p.circuitsState[id] = circ
	}
	purpose, oldPurpose := kv["PURPOSE"], kv["OLD_PURPOSE"]
	if event != "PURPOSE_CHANGED" || purpose != oldPurpose {
		circ.Events = append(circ.Events, model.Event{Tag: event + ":" + purpose, Timestamp: unixTS})
	}
	appendHiddenServiceEvent(circ, purpose, kv, unixTS)
	return nil
}

func (p *Parser) handleStream(body string, unixTS float64) error {
	tokens := ctlproto.SplitQuoted(body)
	if len(tokens) < 4 {
		return fmt.Errorf("ctrlparse: malformed STREAM body %q", body)
	}
	id, err := strconv.Atoi(tokens[0])
	if err != nil {
		return fmt.Errorf("ctrlparse: invalid stream id %q: %w", tokens[0], err)
	}
	status := tokens[1]
	circID, circErr := strconv.Atoi(tokens[2])
	target := tokens[3]
	kv := parseKV(tokens[4:])

	strm := p.streamsState[id]
	if strm == nil {
		strm = &model.Stream{ID: id}
		p.streamsState[id] = strm
	}
	if circErr == nil && circID != 0 {
		cid := circID
		strm.CircuitID = &cid
	}
	if purpose := kv["PURPOSE"]; purpose != "" {
		strm.Purpose = purpose
	}
	strm.Target = target
	strm.Events = append(strm.Events, model.Event{Tag: strm.Purpose + ":" + status, Timestamp: unixTS})

	switch status {
	case "NEW", "NEWRESOLVE":
		if strm.UnixTSStart == 0 {
			strm.UnixTSStart = unixTS
		}
		strm.Source = kv["SOURCE_ADDR"]
	case "FAILED":
		strm.FailureReasonLocal = kv["REASON"]
		if rr := kv["REMOTE_REASON"]; rr != "" {
			strm.FailureReasonRemote = rr
		}
	}

	if status == "CLOSED" || status == "FAILED" {
		strm.UnixTSEnd = unixTS
		key := strm.Purpose
		p.streamsSummary.Lifetimes[key] = append(p.streamsSummary.Lifetimes[key], strm.UnixTSEnd-strm.UnixTSStart)
		if p.cfg.DoComplete {
			p.streams[strconv.Itoa(id)] = strm
		}
		delete(p.streamsState, id)
	}
	return nil
}

func (p *Parser) handleBandwidth(body string, unixTS float64) error {
	tokens := strings.Fields(body)
	if len(tokens) < 2 {
		return fmt.Errorf("ctrlparse: malformed BW body %q", body)
	}
	read, err := strconv.ParseInt(tokens[0], 10, 64)
	if err != nil {
		return fmt.Errorf("ctrlparse: invalid bytes_read %q: %w", tokens[0], err)
	}
	written, err := strconv.ParseInt(tokens[1], 10, 64)
	if err != nil {
		return fmt.Errorf("ctrlparse: invalid bytes_written %q: %w", tokens[1], err)
	}
	second := int64(unixTS)
	p.bandwidth.BytesRead[second] = read
	p.bandwidth.BytesWritten[second] = written
	return nil
}

// handleBuildTimeout caches TIMEOUT_MS/CUTOFF_QUANTILE for the next circuit
// LAUNCHED event to pick up; it contributes no record of its own.
func (p *Parser) handleBuildTimeout(body string) error {
	tokens := ctlproto.SplitQuoted(body)
	if len(tokens) < 1 {
		return fmt.Errorf("ctrlparse: malformed BUILDTIMEOUT_SET body %q", body)
	}
	kv := parseKV(tokens[1:])
	if v, ok := kv["TIMEOUT_MS"]; ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			p.buildTimeoutLast.Store(f)
		}
	}
	if v, ok := kv["CUTOFF_QUANTILE"]; ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			p.buildQuantileLast.Store(f)
		}
	}
	return nil
}
