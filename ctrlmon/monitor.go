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

package ctrlmon

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/torproject/oniperf-go/internal/ctlproto"
	"github.com/torproject/oniperf-go/internal/runlife"
	"github.com/torproject/oniperf-go/internal/settings"
)

// Config describes one control-protocol session to maintain.
type Config struct {
	// Address is the "host:port" of the daemon's control listener.
	Address string

	Auth       settings.ControlAuth
	CookiePath string

	// Sink receives every banner and event line, already formatted by
	// ctlproto.FormatLogLine.
	Sink io.Writer

	// Events is the list of control-protocol event names to subscribe to,
	// e.g. "CIRC", "STREAM", "BW", "ORCONN".
	Events []string

	// NewnymEveryTicks issues SIGNAL NEWNYM every N one-second ticks, when
	// positive.
	NewnymEveryTicks int
	// DropGuardsEveryTicks issues DROPGUARDS (and DROPTIMEOUTS) every N
	// one-second ticks, when positive.
	DropGuardsEveryTicks int

	// StatePath is the daemon's on-disk state file. When DropGuardsEveryTicks
	// is positive, each drop-guards tick snapshots it into StateArchiveDir.
	StatePath string
	// StateArchiveDir receives one timestamped copy of StatePath per
	// drop-guards tick. Defaults to StatePath's directory plus
	// "state_archive".
	StateArchiveDir string

	Hostname string

	Log *logrus.Logger

	dialTimeout time.Duration
}

// Monitor holds one authenticated control-protocol session: its banner,
// its event subscriptions, and its periodic NEWNYM/DROPGUARDS signal loop.
type Monitor struct {
	runlife.Runner

	cfg       Config
	sessionID uuid.UUID

	version string
}

// New builds a Monitor for cfg. Call Start to dial and authenticate.
func New(cfg Config) *Monitor {
	if cfg.dialTimeout == 0 {
		cfg.dialTimeout = 10 * time.Second
	}
	if cfg.Log == nil {
		cfg.Log = logrus.StandardLogger()
	}
	if cfg.StateArchiveDir == "" && cfg.StatePath != "" {
		cfg.StateArchiveDir = filepath.Join(filepath.Dir(cfg.StatePath), "state_archive")
	}
	m := &Monitor{cfg: cfg, sessionID: uuid.New()}
	m.Runner = runlife.New(m.run, func(context.Context) error { return nil })
	return m
}

// SessionID uniquely tags this Monitor's run, for correlating its log lines
// across a nightly rotation.
func (m *Monitor) SessionID() uuid.UUID { return m.sessionID }

// Version is the daemon's self-reported version string, populated once the
// session banner has been logged.
func (m *Monitor) Version() string { return m.version }

func (m *Monitor) run(ctx context.Context) error {
	dialer := net.Dialer{Timeout: m.cfg.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", m.cfg.Address)
	if err != nil {
		return fmt.Errorf("ctrlmon: dialing %s: %w", m.cfg.Address, err)
	}
	defer conn.Close()

	rw := bufio.NewReadWriter(bufio.NewReader(conn), bufio.NewWriter(conn))
	if err := authenticate(rw, m.cfg.Auth, m.cfg.CookiePath); err != nil {
		return err
	}

	if err := m.logBanner(rw); err != nil {
		return err
	}

	if err := m.subscribeEvents(rw); err != nil {
		return err
	}

	eventErrCh := make(chan error, 1)
	go func() { eventErrCh <- m.readEvents(rw.Reader) }()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	var tick, nextNewnym, nextDropGuards int
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-eventErrCh:
			return err
		case <-ticker.C:
			tick++
			if m.cfg.DropGuardsEveryTicks > 0 && tick >= nextDropGuards {
				nextDropGuards = tick + m.cfg.DropGuardsEveryTicks
				if err := m.dropGuards(rw); err != nil {
					m.cfg.Log.WithError(err).Warn("ctrlmon: DROPGUARDS failed")
				}
			}
			if m.cfg.NewnymEveryTicks > 0 && tick >= nextNewnym {
				nextNewnym = tick + m.cfg.NewnymEveryTicks
				if err := sendAuthCommand(rw, "SIGNAL NEWNYM"); err != nil {
					m.cfg.Log.WithError(err).Warn("ctrlmon: SIGNAL NEWNYM failed")
				}
			}
		}
	}
}

// logBanner writes the session's opening lines (daemon version, bootstrap
// phase) to Sink, mirroring the banner TorMonitor.run logs before it starts
// handling events.
func (m *Monitor) logBanner(rw *bufio.ReadWriter) error {
	version, err := m.getInfo(rw, "version")
	if err != nil {
		return err
	}
	m.version = version

	status, err := m.getInfo(rw, "status/version/current")
	if err != nil {
		return err
	}
	bootstrap, err := m.getInfo(rw, "status/bootstrap-phase")
	if err != nil {
		return err
	}

	now := time.Now()
	unix := float64(now.UnixNano()) / 1e9
	fmt.Fprintln(m.cfg.Sink, ctlproto.FormatLogLine(now, unix,
		fmt.Sprintf("Starting torctl program on host %s using Tor version %s status=%s", m.cfg.Hostname, version, status)))
	fmt.Fprintln(m.cfg.Sink, ctlproto.FormatLogLine(now, unix, bootstrap))
	return nil
}

func (m *Monitor) getInfo(rw *bufio.ReadWriter, key string) (string, error) {
	if err := writeCommand(rw, "GETINFO "+key); err != nil {
		return "", err
	}
	rep, err := ctlproto.ReadReply(rw.Reader)
	if err != nil {
		return "", fmt.Errorf("ctrlmon: GETINFO %s: %w", key, err)
	}
	if rep.Code != 250 || len(rep.Lines) == 0 {
		return "", fmt.Errorf("ctrlmon: GETINFO %s rejected: %v", key, rep.Lines)
	}
	return strings.TrimPrefix(rep.Lines[0], key+"="), nil
}

// subscribeEvents issues SETEVENTS for every configured event individually,
// so that one event unsupported by the connected daemon only costs a
// warning, not the whole subscription.
func (m *Monitor) subscribeEvents(rw *bufio.ReadWriter) error {
	var accepted []string
	for _, ev := range m.cfg.Events {
		if err := sendAuthCommand(rw, "SETEVENTS "+strings.Join(append(accepted, ev), " ")); err != nil {
			m.cfg.Log.Warnf("ctrlmon: event %s is not recognized by the connected daemon: %v", ev, err)
			continue
		}
		accepted = append(accepted, ev)
	}
	return nil
}

func (m *Monitor) dropGuards(rw *bufio.ReadWriter) error {
	if err := sendAuthCommand(rw, "DROPGUARDS"); err != nil {
		return err
	}
	if err := writeCommand(rw, "DROPTIMEOUTS"); err != nil {
		return err
	}
	if _, err := ctlproto.ReadReply(rw.Reader); err != nil {
		return fmt.Errorf("ctrlmon: DROPTIMEOUTS: %w", err)
	}
	if m.cfg.StatePath != "" {
		if err := m.snapshotState(); err != nil {
			m.cfg.Log.WithError(err).Warn("ctrlmon: snapshotting state file failed")
		}
	}
	return nil
}

// snapshotState copies the daemon's on-disk state file into a timestamped
// file under StateArchiveDir, so a drop-guards cycle never clobbers the
// previous snapshot.
func (m *Monitor) snapshotState() error {
	src, err := os.Open(m.cfg.StatePath)
	if err != nil {
		return fmt.Errorf("opening state file: %w", err)
	}
	defer src.Close()

	if err := os.MkdirAll(m.cfg.StateArchiveDir, 0o755); err != nil {
		return fmt.Errorf("creating state archive dir: %w", err)
	}

	dstPath := filepath.Join(m.cfg.StateArchiveDir, fmt.Sprintf("state_%s", time.Now().Format("20060102_150405")))
	dst, err := os.OpenFile(dstPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("creating state snapshot: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("copying state snapshot: %w", err)
	}
	return nil
}

// readEvents tails asynchronous "650" lines off r until the connection
// closes, writing each one to Sink through ctlproto.FormatLogLine.
func (m *Monitor) readEvents(r *bufio.Reader) error {
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("ctrlmon: reading event stream: %w", err)
		}
		line = strings.TrimRight(line, "\r\n")
		if !strings.HasPrefix(line, "650") {
			continue
		}
		now := time.Now()
		unix := float64(now.UnixNano()) / 1e9
		fmt.Fprintln(m.cfg.Sink, ctlproto.FormatLogLine(now, unix, line))
	}
}
