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

package supervisor

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/shirou/gopsutil/process"
	"github.com/sirupsen/logrus"

	"github.com/torproject/oniperf-go/ctrlmon"
	"github.com/torproject/oniperf-go/internal/runlife"
	"github.com/torproject/oniperf-go/internal/settings"
	"github.com/torproject/oniperf-go/linesink"
	"github.com/torproject/oniperf-go/rotator"
	"github.com/torproject/oniperf-go/torrc"
	"github.com/torproject/oniperf-go/watchdog"
)

var torBootstrappedPattern = regexp.MustCompile(`Bootstrapped 100`)

// managedTask names one long-lived goroutine the heartbeat loop reports on.
type managedTask struct {
	name string
	task runlife.Runner
}

// Supervisor is the top-level orchestrator for one measurement run: it owns
// every child process watchdog, control monitor, and the rotator, and
// coordinates their startup order, heartbeat, and shutdown.
type Supervisor struct {
	cfg settings.Config
	log *logrus.Logger

	tasks     []managedTask
	onionAddr string
	onionID   string
	keyPath   string
}

// New builds a Supervisor for cfg.
func New(cfg settings.Config, log *logrus.Logger) *Supervisor {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Supervisor{cfg: cfg, log: log}
}

// Run validates the daemon version, spawns every component in the fixed
// order described by the measurement runtime's orchestration contract, then
// blocks in the hourly heartbeat loop until ctx is cancelled (SIGINT) or a
// one-shot traffic-generator client watchdog returns on its own.
func (s *Supervisor) Run(ctx context.Context) error {
	if err := checkDaemonVersion(s.cfg.TorBinary, s.cfg.MinTorVersion); err != nil {
		return err
	}

	if err := os.MkdirAll(s.cfg.PrivateDir, 0700); err != nil {
		return fmt.Errorf("supervisor: creating private dir: %w", err)
	}
	if err := os.MkdirAll(s.cfg.DocRoot, 0755); err != nil {
		return fmt.Errorf("supervisor: creating docroot: %w", err)
	}

	var sinks []linesink.Sink
	var tgenSink, torctlSink linesink.Sink

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	startTask := func(name string, r runlife.Runner) error {
		if err := r.Start(runCtx); err != nil {
			return fmt.Errorf("supervisor: starting %s: %w", name, err)
		}
		s.tasks = append(s.tasks, managedTask{name: name, task: r})
		return nil
	}

	// Server-side routing daemon, carrying the ephemeral hidden service.
	serverDataDir := filepath.Join(s.cfg.DataDir, "tor-server")
	serverSocks := s.cfg.SocksPortServer
	if s.cfg.SingleHopMode {
		serverSocks = 0
	}
	serverConf := torrc.Build(torrc.Params{
		Role:              torrc.RoleServer,
		Base:              s.cfg.BaseTorrc,
		ControlPort:       s.cfg.ControlPortServer,
		SocksPort:         serverSocks,
		DataDir:           serverDataDir,
		DropGuardsEnabled: s.cfg.DropGuards,
		SingleHopMode:     s.cfg.SingleHopMode,
	})
	serverCookie := filepath.Join(serverDataDir, "control_auth_cookie")
	serverWd, serverLog, err := s.spawnTorDaemon("tor_server", serverDataDir, serverConf)
	if err != nil {
		return err
	}
	sinks = append(sinks, serverLog)
	if err := startTask("tor_server_watchdog", serverWd); err != nil {
		return err
	}
	select {
	case <-serverWd.Ready():
	case <-runCtx.Done():
		return runCtx.Err()
	}

	torctlServerSink, err := linesink.New(filepath.Join(serverDataDir, "onionperf.torctl.log"))
	if err != nil {
		return fmt.Errorf("supervisor: opening server torctl log: %w", err)
	}
	sinks = append(sinks, torctlServerSink)
	serverMon := s.newMonitor(fmt.Sprintf("127.0.0.1:%d", s.cfg.ControlPortServer), serverCookie, torctlServerSink, s.cfg.ServerNickname)
	if err := startTask("ctrlmon_server", serverMon); err != nil {
		return err
	}

	s.onionAddr = fmt.Sprintf("127.0.0.1:%d", s.cfg.ControlPortServer)
	s.keyPath = filepath.Join(s.cfg.PrivateDir, "hs_ed25519_key_v3")
	onionID, err := createEphemeralOnion(runCtx, s.onionAddr, s.cfg.ControlAuth, serverCookie, s.keyPath,
		fmt.Sprintf("%d,%d", s.cfg.TGenPortClient, s.cfg.TGenPortServer))
	if err != nil {
		return fmt.Errorf("supervisor: creating ephemeral hidden service: %w", err)
	}
	s.onionID = onionID

	// Traffic-generator server.
	tgenServerSink, err := linesink.New(filepath.Join(s.cfg.DataDir, "onionperf.tgen.server.log"))
	if err != nil {
		return fmt.Errorf("supervisor: opening tgen server log: %w", err)
	}
	sinks = append(sinks, tgenServerSink)
	if err := startTask("tgen_server_watchdog", watchdog.New(watchdog.Config{
		Command: s.cfg.TGenBinary,
		Sink:    tgenServerSink,
		Breaker: watchdog.BreakerPolicy{MaxDeaths: s.cfg.Breaker.MaxDeaths, Window: s.cfg.Breaker.Window},
	})); err != nil {
		return err
	}

	// Client-side routing daemon.
	clientDataDir := filepath.Join(s.cfg.DataDir, "tor-client")
	clientConf := torrc.Build(torrc.Params{
		Role:              torrc.RoleClient,
		Base:              s.cfg.BaseTorrc,
		ControlPort:       s.cfg.ControlPortClient,
		SocksPort:         s.cfg.SocksPortClient,
		DataDir:           clientDataDir,
		DropGuardsEnabled: s.cfg.DropGuards,
	})
	clientCookie := filepath.Join(clientDataDir, "control_auth_cookie")
	clientWd, clientLog, err := s.spawnTorDaemon("tor_client", clientDataDir, clientConf)
	if err != nil {
		return err
	}
	sinks = append(sinks, clientLog)
	if err := startTask("tor_client_watchdog", clientWd); err != nil {
		return err
	}
	select {
	case <-clientWd.Ready():
	case <-runCtx.Done():
		return runCtx.Err()
	}

	torctlClientSink, err := linesink.New(filepath.Join(clientDataDir, "onionperf.torctl.log"))
	if err != nil {
		return fmt.Errorf("supervisor: opening client torctl log: %w", err)
	}
	torctlSink = torctlClientSink
	clientMon := s.newMonitor(fmt.Sprintf("127.0.0.1:%d", s.cfg.ControlPortClient), clientCookie, torctlClientSink, s.cfg.ClientNickname)
	if err := startTask("ctrlmon_client", clientMon); err != nil {
		return err
	}

	// Traffic-generator client, pointed at the onion address and/or the
	// public IP per spec.md §4.8.
	tgenClientSink, err := linesink.New(filepath.Join(s.cfg.DataDir, "onionperf.tgen.client.log"))
	if err != nil {
		return fmt.Errorf("supervisor: opening tgen client log: %w", err)
	}
	tgenSink = tgenClientSink
	tgenClientWd := watchdog.New(watchdog.Config{
		Command:    s.cfg.TGenBinary,
		Sink:       tgenClientSink,
		NoRelaunch: true,
		Breaker:    watchdog.BreakerPolicy{MaxDeaths: s.cfg.Breaker.MaxDeaths, Window: s.cfg.Breaker.Window},
	})
	if err := startTask("tgen_client_watchdog", tgenClientWd); err != nil {
		return err
	}

	// Rotator.
	rot := rotator.New(rotator.Config{
		Sinks:      sinks,
		TGenSink:   tgenSink,
		TorCtlSink: torctlSink,
		Nickname:   s.cfg.ClientNickname,
		DocRoot:    s.cfg.DocRoot,
		Log:        s.log,
	})
	if err := startTask("rotator", rot); err != nil {
		return err
	}

	err = s.heartbeatLoop(runCtx, tgenClientWd)

	s.shutdown(runCtx)
	return err
}

// spawnTorDaemon writes torConf to <dataDir>/torrc and returns a watchdog
// configured to run the routing daemon against it, plus the FileSink its
// stdout/stderr are tailed into.
func (s *Supervisor) spawnTorDaemon(name, dataDir, torConf string) (*watchdog.Watchdog, *linesink.FileSink, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, nil, fmt.Errorf("supervisor: creating %s: %w", dataDir, err)
	}
	confPath := filepath.Join(dataDir, "torrc")
	if err := os.WriteFile(confPath, []byte(torConf), 0600); err != nil {
		return nil, nil, fmt.Errorf("supervisor: writing %s: %w", confPath, err)
	}

	logSink, err := linesink.New(filepath.Join(dataDir, "onionperf.tor.log"))
	if err != nil {
		return nil, nil, fmt.Errorf("supervisor: opening %s log: %w", name, err)
	}

	wd := watchdog.New(watchdog.Config{
		Command:      s.cfg.TorBinary,
		Args:         []string{"-f", confPath},
		Dir:          dataDir,
		Sink:         logSink,
		ReadyPattern: torBootstrappedPattern,
		Breaker:      watchdog.BreakerPolicy{MaxDeaths: s.cfg.Breaker.MaxDeaths, Window: s.cfg.Breaker.Window},
	})
	return wd, logSink, nil
}

func (s *Supervisor) newMonitor(address, cookiePath string, sink io.Writer, hostname string) runlife.Runner {
	dropGuardsTicks := 0
	if s.cfg.DropGuards {
		dropGuardsTicks = 3600
	}
	dataDir := filepath.Dir(cookiePath)
	return ctrlmon.New(ctrlmon.Config{
		Address:              address,
		Auth:                 s.cfg.ControlAuth,
		CookiePath:           cookiePath,
		Sink:                 sink,
		Events:               []string{"CIRC", "STREAM", "BW", "ORCONN"},
		NewnymEveryTicks:     600,
		DropGuardsEveryTicks: dropGuardsTicks,
		StatePath:            filepath.Join(dataDir, "state"),
		Hostname:             hostname,
		Log:                  s.log,
	})
}

// heartbeatLoop logs the liveness and self-process RSS/CPU once per
// HeartbeatInterval, and polls the one-shot tgen client once per second so
// that its completion is noticed well before the next heartbeat, per
// spec.md §4.8.
func (s *Supervisor) heartbeatLoop(ctx context.Context, tgenClient *watchdog.Watchdog) error {
	interval := s.cfg.HeartbeatInterval
	if interval <= 0 {
		interval = time.Hour
	}
	heartbeat := time.NewTicker(interval)
	defer heartbeat.Stop()

	poll := time.NewTicker(time.Second)
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-heartbeat.C:
			s.logHeartbeat()
		case <-poll.C:
			if !tgenClient.IsRunning() {
				return nil
			}
		}
	}
}

func (s *Supervisor) logHeartbeat() {
	for _, t := range s.tasks {
		if t.task.IsRunning() {
			s.log.Infof("supervisor: %s is alive, uptime %s", t.name, t.task.Uptime())
		} else {
			s.log.Warnf("supervisor: %s is dead", t.name)
		}
	}

	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		s.log.WithError(err).Warn("supervisor: reading self process handle failed")
		return
	}
	mem, err := proc.MemoryInfo()
	if err != nil {
		s.log.WithError(err).Warn("supervisor: reading self memory info failed")
		return
	}
	cpuPercent, err := proc.CPUPercent()
	if err != nil {
		s.log.WithError(err).Warn("supervisor: reading self CPU percent failed")
		return
	}
	s.log.Infof("supervisor: self RSS=%d bytes CPU=%.2f%%", mem.RSS, cpuPercent)
}

// shutdown removes the ephemeral hidden service and stops every managed
// task, best-effort.
func (s *Supervisor) shutdown(ctx context.Context) {
	if s.onionID != "" {
		removeEphemeralOnion(s.onionAddr, s.cfg.ControlAuth, filepath.Join(s.cfg.DataDir, "tor-server", "control_auth_cookie"), s.onionID)
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for i := len(s.tasks) - 1; i >= 0; i-- {
		t := s.tasks[i]
		if err := t.task.Stop(stopCtx); err != nil {
			s.log.WithError(err).Warnf("supervisor: stopping %s failed", t.name)
		}
	}
}
