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
	"net"
	"time"

	"github.com/torproject/oniperf-go/internal/ctlproto"
	"github.com/torproject/oniperf-go/internal/settings"
)

// Session is a short-lived authenticated control-protocol connection, for
// one-off commands (e.g. ephemeral hidden service create/remove) that don't
// warrant a full long-running Monitor.
type Session struct {
	Conn net.Conn
	RW   *bufio.ReadWriter
}

// Dial opens and authenticates a Session against address.
func Dial(ctx context.Context, address string, auth settings.ControlAuth, cookiePath string) (*Session, error) {
	dialer := net.Dialer{Timeout: 10 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("ctrlmon: dialing %s: %w", address, err)
	}

	rw := bufio.NewReadWriter(bufio.NewReader(conn), bufio.NewWriter(conn))
	if err := authenticate(rw, auth, cookiePath); err != nil {
		conn.Close()
		return nil, err
	}
	return &Session{Conn: conn, RW: rw}, nil
}

// Command writes cmd and returns its reply.
func (s *Session) Command(cmd string) (*ctlproto.Reply, error) {
	if err := writeCommand(s.RW, cmd); err != nil {
		return nil, err
	}
	return ctlproto.ReadReply(s.RW.Reader)
}

// Close closes the underlying connection.
func (s *Session) Close() error {
	return s.Conn.Close()
}
