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

package ctrlmon_test

import (
	"bufio"
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/torproject/oniperf-go/ctrlmon"
	"github.com/torproject/oniperf-go/internal/settings"
)

// fakeControlServer speaks just enough of the control protocol's wire
// format to drive a Monitor through authentication, banner retrieval,
// event subscription and one asynchronous event line.
type fakeControlServer struct {
	ln net.Listener
}

func newFakeControlServer() *fakeControlServer {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	Expect(err).ToNot(HaveOccurred())
	s := &fakeControlServer{ln: ln}
	go s.serve()
	return s
}

func (s *fakeControlServer) addr() string { return s.ln.Addr().String() }

func (s *fakeControlServer) close() { s.ln.Close() }

func (s *fakeControlServer) serve() {
	conn, err := s.ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()

	r := bufio.NewReader(conn)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")

		switch {
		case line == "AUTHENTICATE":
			conn.Write([]byte("250 OK\r\n"))
		case line == "GETINFO version":
			conn.Write([]byte("250-version=0.4.7.13\r\n250 OK\r\n"))
		case line == "GETINFO status/version/current":
			conn.Write([]byte("250-status/version/current=recommended\r\n250 OK\r\n"))
		case line == "GETINFO status/bootstrap-phase":
			conn.Write([]byte("250-status/bootstrap-phase=NOTICE BOOTSTRAP PROGRESS=100 TAG=done SUMMARY=\"Done\"\r\n250 OK\r\n"))
			go func() {
				time.Sleep(20 * time.Millisecond)
				conn.Write([]byte("650 BW 512 1024\r\n"))
			}()
		case strings.HasPrefix(line, "SETEVENTS"):
			if strings.Contains(line, "NOTREAL") {
				conn.Write([]byte("552 Unrecognized event\r\n"))
			} else {
				conn.Write([]byte("250 OK\r\n"))
			}
		case line == "DROPGUARDS":
			conn.Write([]byte("250 OK\r\n"))
		case line == "DROPTIMEOUTS":
			conn.Write([]byte("250 OK\r\n"))
		case line == "SIGNAL NEWNYM":
			conn.Write([]byte("250 OK\r\n"))
		default:
			conn.Write([]byte("510 Unrecognized command\r\n"))
		}
	}
}

type safeSink struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *safeSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *safeSink) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

var _ = Describe("Monitor", func() {
	var (
		server *fakeControlServer
		ctx    context.Context
		cancel context.CancelFunc
	)

	BeforeEach(func() {
		server = newFakeControlServer()
		ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
	})

	AfterEach(func() {
		cancel()
		server.close()
	})

	It("authenticates, logs the banner, and tails async events", func() {
		sink := &safeSink{}
		m := ctrlmon.New(ctrlmon.Config{
			Address:  server.addr(),
			Auth:     settings.AuthNull,
			Sink:     sink,
			Events:   []string{"BW", "CIRC"},
			Hostname: "test-host",
		})

		Expect(m.Start(ctx)).ToNot(HaveOccurred())
		Eventually(sink.String, 2*time.Second).Should(ContainSubstring("650 BW 512 1024"))
		Expect(sink.String()).To(ContainSubstring("using Tor version 0.4.7.13"))
		Expect(m.Version()).To(Equal("0.4.7.13"))
		Expect(m.SessionID().String()).ToNot(BeEmpty())

		Expect(m.Stop(ctx)).ToNot(HaveOccurred())
	})

	It("skips an event the daemon does not recognize without failing the session", func() {
		sink := &safeSink{}
		m := ctrlmon.New(ctrlmon.Config{
			Address: server.addr(),
			Auth:    settings.AuthNull,
			Sink:    sink,
			Events:  []string{"BW", "NOTREAL", "CIRC"},
		})

		Expect(m.Start(ctx)).ToNot(HaveOccurred())
		Eventually(sink.String, 2*time.Second).Should(ContainSubstring("650 BW"))
		Expect(m.ErrorsLast()).ToNot(HaveOccurred())

		Expect(m.Stop(ctx)).ToNot(HaveOccurred())
	})

	It("snapshots the daemon's state file on each drop-guards tick", func() {
		dir := GinkgoT().TempDir()
		statePath := filepath.Join(dir, "state")
		Expect(os.WriteFile(statePath, []byte("TorVersion 0.4.7.13\n"), 0o644)).To(Succeed())

		sink := &safeSink{}
		m := ctrlmon.New(ctrlmon.Config{
			Address:              server.addr(),
			Auth:                 settings.AuthNull,
			Sink:                 sink,
			Events:               []string{"BW"},
			DropGuardsEveryTicks: 1,
			StatePath:            statePath,
		})

		Expect(m.Start(ctx)).ToNot(HaveOccurred())
		archiveDir := filepath.Join(dir, "state_archive")
		Eventually(func() ([]os.DirEntry, error) {
			return os.ReadDir(archiveDir)
		}, 3*time.Second).ShouldNot(BeEmpty())

		Expect(m.Stop(ctx)).ToNot(HaveOccurred())
	})
})
