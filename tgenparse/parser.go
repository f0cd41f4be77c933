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

package tgenparse

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/torproject/oniperf-go/model"
)

// 1-based field positions on a traffic-generator log line, per the external
// interface: whitespace-delimited, positional, never name-matched.
const (
	fieldTimestamp     = 3
	fieldEventTag      = 5
	fieldTransport     = 9
	fieldTransferTuple = 11
	fieldBytesRead     = 12
	fieldBytesWrite    = 13
	fieldProgress      = 14
	fieldMilestones    = 16
	milestoneCount     = 11
)

const initHostPrefix = "Initializing traffic generator on host "

// Config controls one Parser's behavior.
type Config struct {
	// DoComplete publishes individual transfers to the completed map; when
	// false only the summary histograms are produced.
	DoComplete bool
	// DateFilter, if non-nil, restricts parsing to lines whose timestamp
	// falls on this UTC calendar date; all other lines are silently
	// skipped.
	DateFilter *time.Time
	Log        *logrus.Logger
}

// Parser accumulates traffic-generator Transfers and their summary
// histograms across repeated ParseLine/ParseReader calls.
type Parser struct {
	cfg Config

	hostname  string
	inflight  map[string]*model.Transfer
	completed map[string]*model.Transfer
	summary   model.TransferSummary
}

// New returns a ready-to-use Parser.
func New(cfg Config) *Parser {
	if cfg.Log == nil {
		cfg.Log = logrus.StandardLogger()
	}
	return &Parser{
		cfg:       cfg,
		inflight:  make(map[string]*model.Transfer),
		completed: make(map[string]*model.Transfer),
		summary:   model.NewTransferSummary(),
	}
}

// Hostname returns the node name captured from an "Initializing traffic
// generator on host <name>" line, if one has been seen.
func (p *Parser) Hostname() string { return p.hostname }

// Completed returns the published transfers, keyed by "<id>:<count>". Empty
// unless Config.DoComplete is true.
func (p *Parser) Completed() map[string]*model.Transfer { return p.completed }

// Summary returns the accumulated histograms.
func (p *Parser) Summary() model.TransferSummary { return p.summary }

// ParseReader feeds every line of r to ParseLine. A line that fails to
// parse is logged and skipped; ParseReader itself only fails on an
// underlying read error.
func (p *Parser) ParseReader(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	for scanner.Scan() {
		if err := p.ParseLine(scanner.Text()); err != nil {
			p.cfg.Log.WithError(err).Warn("tgenparse: skipping unparseable line")
		}
	}
	return scanner.Err()
}

// ParseLine parses one log line, updating in-flight and completed state.
func (p *Parser) ParseLine(line string) error {
	if line == "" {
		return nil
	}
	if idx := strings.Index(line, initHostPrefix); idx >= 0 {
		rest := line[idx+len(initHostPrefix):]
		p.hostname = strings.Fields(rest)[0]
		return nil
	}

	fields := strings.Fields(line)
	if len(fields) < fieldEventTag {
		return fmt.Errorf("tgenparse: line has only %d fields, need at least %d", len(fields), fieldEventTag)
	}

	unixTS, err := strconv.ParseFloat(fields[fieldTimestamp-1], 64)
	if err != nil {
		return fmt.Errorf("tgenparse: invalid timestamp %q: %w", fields[fieldTimestamp-1], err)
	}
	if p.cfg.DateFilter != nil {
		line := time.Unix(int64(unixTS), 0).UTC().Format("2006-01-02")
		filter := p.cfg.DateFilter.UTC().Format("2006-01-02")
		if line != filter {
			return nil
		}
	}

	tag := strings.Trim(fields[fieldEventTag-1], "[]")

	if strings.Contains(line, "state RESPONSE to state PAYLOAD") {
		return p.handleRestart(fields)
	}

	switch tag {
	case "transfer-status":
		if !p.cfg.DoComplete {
			return nil
		}
		return p.handleStatus(fields, unixTS)
	case "transfer-complete", "transfer-error":
		return p.handleTerminal(fields, unixTS, tag == "transfer-error")
	default:
		return fmt.Errorf("tgenparse: unrecognized event tag %q", tag)
	}
}

func (p *Parser) handleRestart(fields []string) error {
	if len(fields) < fieldTransferTuple {
		return nil
	}
	id, count, err := transferIdentity(fields[fieldTransferTuple-1])
	if err != nil {
		return nil
	}
	delete(p.inflight, fmt.Sprintf("%s:%d", id, count))
	return nil
}

func transferIdentity(tuple string) (id string, count int, err error) {
	parts := strings.Split(tuple, ",")
	if len(parts) < 2 {
		return "", 0, fmt.Errorf("tgenparse: malformed transfer tuple %q", tuple)
	}
	count, err = strconv.Atoi(parts[1])
	if err != nil {
		return "", 0, fmt.Errorf("tgenparse: invalid sequence number in %q: %w", tuple, err)
	}
	return parts[0], count, nil
}

func (p *Parser) handleStatus(fields []string, unixTS float64) error {
	if len(fields) < fieldProgress {
		return fmt.Errorf("tgenparse: transfer-status line has only %d fields, need %d", len(fields), fieldProgress)
	}
	id, count, err := transferIdentity(fields[fieldTransferTuple-1])
	if err != nil {
		return err
	}
	key := fmt.Sprintf("%s:%d", id, count)

	tr := p.inflight[key]
	if tr == nil {
		tr = &model.Transfer{EndpointID: id, SequenceNumber: count}
		p.inflight[key] = tr
	}
	applyProgress(tr, fields[fieldProgress-1], unixTS)
	return nil
}

// applyProgress records the first wall-clock time a transfer's cumulative
// byte count crosses each configured decile or byte threshold.
func applyProgress(tr *model.Transfer, progressField string, at float64) {
	done, total, isRead, err := parseProgress(progressField)
	if err != nil || total <= 0 {
		return
	}
	tr.IsCommander = isRead

	if tr.PayloadProgress == nil {
		tr.PayloadProgress = make(map[string]float64)
	}
	if tr.PayloadBytes == nil {
		tr.PayloadBytes = make(map[string]float64)
	}

	ratio := float64(done) / float64(total)
	for _, d := range model.DecileThresholds {
		key := fmt.Sprintf("%.1f", d)
		if _, seen := tr.PayloadProgress[key]; !seen && ratio >= d {
			tr.PayloadProgress[key] = at
		}
	}
	for _, b := range model.ByteThresholds {
		key := strconv.FormatInt(b, 10)
		if _, seen := tr.PayloadBytes[key]; !seen && done >= b {
			tr.PayloadBytes[key] = at
		}
	}
}

// parseProgress splits a "<read|write>-bytes=<done>/<total>" field.
func parseProgress(field string) (done, total int64, isRead bool, err error) {
	switch {
	case strings.HasPrefix(field, "read-bytes="):
		isRead = true
		field = strings.TrimPrefix(field, "read-bytes=")
	case strings.HasPrefix(field, "write-bytes="):
		field = strings.TrimPrefix(field, "write-bytes=")
	default:
		return 0, 0, false, fmt.Errorf("tgenparse: unrecognized progress field %q", field)
	}
	parts := strings.SplitN(field, "/", 2)
	if len(parts) != 2 {
		return 0, 0, false, fmt.Errorf("tgenparse: malformed progress field %q", field)
	}
	done, err = strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, 0, false, err
	}
	total, err = strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, 0, false, err
	}
	return done, total, isRead, nil
}

func (p *Parser) handleTerminal(fields []string, unixTS float64, isError bool) error {
	if len(fields) < fieldMilestones+milestoneCount-1 {
		return fmt.Errorf("tgenparse: terminal line has only %d fields, need %d", len(fields), fieldMilestones+milestoneCount-1)
	}

	transport := strings.Split(fields[fieldTransport-1], ",")
	if len(transport) < 5 {
		return fmt.Errorf("tgenparse: malformed transport tuple %q", fields[fieldTransport-1])
	}

	xfer := strings.Split(fields[fieldTransferTuple-1], ",")
	if len(xfer) < 9 {
		return fmt.Errorf("tgenparse: malformed transfer tuple %q", fields[fieldTransferTuple-1])
	}
	id, count := xfer[0], xfer[1]
	n, err := strconv.Atoi(count)
	if err != nil {
		return fmt.Errorf("tgenparse: invalid sequence number %q: %w", count, err)
	}
	key := fmt.Sprintf("%s:%s", id, count)

	tr := p.inflight[key]
	if tr == nil {
		tr = &model.Transfer{}
	}
	delete(p.inflight, key)

	tr.EndpointID = id
	tr.SequenceNumber = n
	tr.Method = model.TransferMethod(xfer[3])
	filesize, err := strconv.ParseInt(xfer[4], 10, 64)
	if err != nil {
		return fmt.Errorf("tgenparse: invalid filesize %q: %w", xfer[4], err)
	}
	tr.FilesizeBytes = filesize
	tr.Endpoints = model.Endpoints{Local: transport[2], Proxy: transport[3], Remote: transport[4]}
	tr.UnixTSEnd = unixTS

	for _, part := range xfer[7:] {
		if strings.HasPrefix(part, "error=") && part != "error=NONE" {
			tr.ErrorCode = strings.TrimPrefix(part, "error=")
		}
	}

	if totalRead, ok := amountField(fields[fieldBytesRead-1], "total-bytes-read="); ok {
		tr.TotalBytesRead = totalRead
	}
	if totalWrite, ok := amountField(fields[fieldBytesWrite-1], "total-bytes-write="); ok {
		tr.TotalBytesWrite = totalWrite
	}
	if done, _, isRead, perr := parseProgress(fields[fieldProgress-1]); perr == nil {
		tr.IsCommander = isRead
		_ = done
	}

	var milestones model.MilestoneSeconds
	slots := []*float64{
		&milestones.SocketCreate, &milestones.SocketConnect, &milestones.ProxyInit,
		&milestones.ProxyChoice, &milestones.ProxyRequest, &milestones.ProxyResponse,
		&milestones.Command, &milestones.Response, &milestones.FirstByte,
		&milestones.LastByte, &milestones.Checksum,
	}
	for i, slot := range slots {
		field := fields[fieldMilestones-1+i]
		eq := strings.LastIndex(field, "=")
		if eq < 0 {
			return fmt.Errorf("tgenparse: malformed milestone field %q", field)
		}
		usec, err := strconv.ParseFloat(field[eq+1:], 64)
		if err != nil {
			return fmt.Errorf("tgenparse: invalid milestone value in %q: %w", field, err)
		}
		if usec < 0 {
			*slot = model.Unreached
		} else {
			*slot = usec / 1e6
		}
	}
	tr.ElapsedSeconds = milestones

	last, found := milestones.LastReached()
	if found {
		tr.UnixTSStart = tr.UnixTSEnd - last
	} else {
		tr.UnixTSStart = tr.UnixTSEnd
	}

	tr.IsError = isError
	tr.IsSuccess = !isError

	p.recordSummary(tr, found)

	if p.cfg.DoComplete {
		p.completed[key] = tr
	}
	return nil
}

func amountField(field, prefix string) (int64, bool) {
	if !strings.HasPrefix(field, prefix) {
		return 0, false
	}
	n, err := strconv.ParseInt(strings.TrimPrefix(field, prefix), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// recordSummary folds one finalized Transfer into the running histograms,
// keyed by the integer completion second.
func (p *Parser) recordSummary(tr *model.Transfer, found bool) {
	second := int64(tr.UnixTSEnd)
	sizeKey := strconv.FormatInt(tr.FilesizeBytes, 10)

	if tr.IsError {
		code := tr.ErrorCode
		if code == "" {
			code = "UNKNOWN"
		}
		if p.summary.Errors[code] == nil {
			p.summary.Errors[code] = make(map[int64][]int64)
		}
		p.summary.Errors[code][second] = append(p.summary.Errors[code][second], tr.FilesizeBytes)
		return
	}
	if !found {
		return
	}

	commandElapsed := tr.ElapsedSeconds.Command
	if commandElapsed < 0 {
		return
	}
	if tr.ElapsedSeconds.FirstByte >= 0 {
		ttfb := tr.ElapsedSeconds.FirstByte - commandElapsed
		if p.summary.TimeToFirstByte[sizeKey] == nil {
			p.summary.TimeToFirstByte[sizeKey] = make(map[int64][]float64)
		}
		p.summary.TimeToFirstByte[sizeKey][second] = append(p.summary.TimeToFirstByte[sizeKey][second], ttfb)
	}
	if tr.ElapsedSeconds.LastByte >= 0 {
		ttlb := tr.ElapsedSeconds.LastByte - commandElapsed
		if p.summary.TimeToLastByte[sizeKey] == nil {
			p.summary.TimeToLastByte[sizeKey] = make(map[int64][]float64)
		}
		p.summary.TimeToLastByte[sizeKey][second] = append(p.summary.TimeToLastByte[sizeKey][second], ttlb)
	}
}
