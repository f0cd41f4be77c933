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

package ctlproto

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
)

// Reply is one framed control-protocol reply: a three-digit status code and
// the text lines that belong to it, with the "250+" data-block escaping
// already undone.
type Reply struct {
	Code  int
	Lines []string
}

// ReadReply reads one complete reply from r, following the "250-" (more to
// come), "250+" (data block terminated by a lone "."), and "250 " (final
// line) continuation markers.
func ReadReply(r *bufio.Reader) (*Reply, error) {
	rep := &Reply{}

	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("ctlproto: reading reply line: %w", err)
		}
		line = strings.TrimRight(line, "\r\n")
		if len(line) < 4 {
			return nil, fmt.Errorf("ctlproto: malformed reply line %q", line)
		}

		code, err := strconv.Atoi(line[:3])
		if err != nil {
			return nil, fmt.Errorf("ctlproto: invalid status code in %q: %w", line, err)
		}
		rep.Code = code
		sep, text := line[3], line[4:]

		switch sep {
		case '-':
			rep.Lines = append(rep.Lines, text)
		case ' ':
			rep.Lines = append(rep.Lines, text)
			return rep, nil
		case '+':
			rep.Lines = append(rep.Lines, text)
			block, err := readDataBlock(r)
			if err != nil {
				return nil, err
			}
			rep.Lines = append(rep.Lines, block...)
		default:
			return nil, fmt.Errorf("ctlproto: unexpected separator %q in line %q", sep, line)
		}
	}
}

func readDataBlock(r *bufio.Reader) ([]string, error) {
	var out []string
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("ctlproto: reading data block: %w", err)
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "." {
			return out, nil
		}
		out = append(out, strings.TrimPrefix(line, "."))
	}
}

// SplitQuoted splits s on unquoted spaces, treating double-quoted
// substrings as a single field (quote characters are stripped).
func SplitQuoted(s string) []string {
	var (
		out      []string
		buf      strings.Builder
		inQuotes bool
	)

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"':
			inQuotes = !inQuotes
		case c == ' ' && !inQuotes:
			if buf.Len() > 0 {
				out = append(out, buf.String())
				buf.Reset()
			}
		default:
			buf.WriteByte(c)
		}
	}
	if buf.Len() > 0 {
		out = append(out, buf.String())
	}
	return out
}

// eventMarker is the literal substring that distinguishes an asynchronous
// "650" event line from a banner or routine log line, per spec.md §6.
const eventMarker = " 650 "

// ParseEventLine splits a raw control-protocol log line into its event kind
// (e.g. "CIRC", "STREAM", "BW") and the remainder of the line. ok is false
// when the line does not contain the 650-event marker at all.
func ParseEventLine(line string) (kind, body string, ok bool) {
	idx := strings.Index(line, eventMarker)
	if idx < 0 {
		return "", "", false
	}
	rest := strings.TrimSpace(line[idx+len(eventMarker):])
	parts := strings.SplitN(rest, " ", 2)
	kind = parts[0]
	if len(parts) > 1 {
		body = parts[1]
	}
	return kind, body, true
}
