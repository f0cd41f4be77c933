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

package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// Options configures New. FilePath may be empty, in which case only Stderr
// (if enabled) receives log entries.
type Options struct {
	Level    string
	FilePath string
	FileMode os.FileMode
	PathMode os.FileMode
	Stderr   bool
}

// ParseLevel maps a case-insensitive level name to a logrus.Level, falling
// back to logrus.InfoLevel for anything it does not recognize.
func ParseLevel(s string) logrus.Level {
	lvl, err := logrus.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

type noopCloser struct{}

func (noopCloser) Close() error { return nil }

// New builds the supervisor's logger plus the io.Closer that must be closed
// on shutdown to flush and release the backing file.
func New(opt Options) (*logrus.Logger, io.Closer, error) {
	var (
		out io.Writer
		clo io.Closer = noopCloser{}
	)

	if opt.FileMode == 0 {
		opt.FileMode = 0644
	}
	if opt.PathMode == 0 {
		opt.PathMode = 0755
	}

	switch {
	case opt.FilePath != "" && opt.Stderr:
		f, err := openLogFile(opt)
		if err != nil {
			return nil, nil, err
		}
		out = io.MultiWriter(f, os.Stderr)
		clo = f
	case opt.FilePath != "":
		f, err := openLogFile(opt)
		if err != nil {
			return nil, nil, err
		}
		out = f
		clo = f
	case opt.Stderr:
		out = os.Stderr
	default:
		out = io.Discard
	}

	log := logrus.New()
	log.SetOutput(out)
	log.SetLevel(ParseLevel(opt.Level))
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})

	return log, clo, nil
}

func openLogFile(opt Options) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(opt.FilePath), opt.PathMode); err != nil {
		return nil, fmt.Errorf("logging: cannot create log directory: %w", err)
	}
	f, err := os.OpenFile(opt.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, opt.FileMode)
	if err != nil {
		return nil, fmt.Errorf("logging: cannot open log file: %w", err)
	}
	return f, nil
}
