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
	"fmt"
	"strconv"
	"strings"
	"time"
)

const logTimeFormat = "2006-01-02 15:04:05"

// FormatLogLine renders one line exactly as ctrlmon writes it to
// onionperf.torctl.log: "<local YYYY-MM-DD HH:MM:SS> <unix_ts %.02f> <raw>".
func FormatLogLine(at time.Time, unixTS float64, raw string) string {
	return fmt.Sprintf("%s %.02f %s", at.Format(logTimeFormat), unixTS, raw)
}

// SplitLogLine reverses FormatLogLine: it separates the date/time and unix
// timestamp prefix from the raw control-protocol text that follows, for
// ctrlparse to re-tokenize with ParseEventLine.
func SplitLogLine(line string) (unixTS float64, raw string, err error) {
	fields := strings.SplitN(line, " ", 4)
	if len(fields) < 4 {
		return 0, "", fmt.Errorf("ctlproto: malformed log line %q", line)
	}
	unixTS, err = strconv.ParseFloat(fields[2], 64)
	if err != nil {
		return 0, "", fmt.Errorf("ctlproto: invalid unix timestamp in %q: %w", line, err)
	}
	return unixTS, fields[3], nil
}
