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

package linesink

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/torproject/oniperf-go/archive/compress"
)

// ErrClosed is returned by Write/Rotate once the sink has been Closed.
var ErrClosed = errors.New("linesink: sink is closed")

// Sink is the append-writer a ProcessWatchdog tails a child's stdout into
// and a Rotator swaps out at midnight.
type Sink interface {
	io.Writer
	Close() error
	// Rotate moves the sink's current content into a gzip archive file and
	// truncates the live file; it is a no-op returning "" for the stdout
	// ("-") sink.
	Rotate(at time.Time) (archivePath string, err error)
}

// FileSink is the default Sink: one append-mode *os.File guarded by a
// mutex, shared safely between the writer goroutine and the rotator.
type FileSink struct {
	path       string
	stdout     bool
	compressed bool

	mu     sync.Mutex
	file   *os.File
	writer io.WriteCloser
	closed bool
}

// New opens (creating if necessary) the file at path for append writes. The
// path "-" selects os.Stdout, for which Rotate is a no-op.
func New(path string) (*FileSink, error) {
	s := &FileSink{path: path, stdout: path == "-"}
	if s.stdout {
		s.file = os.Stdout
		s.writer = os.Stdout
		return s, nil
	}
	if err := s.openLocked(); err != nil {
		return nil, err
	}
	return s, nil
}

// NewCompressed opens path+".xz" and LZMA-wraps every write through
// archive/compress's XZ writer, for sinks whose content is never tailed
// back out before analysis (e.g. the merged AnalysisDocument). Rotate is a
// no-op: the file is already in its final compressed form.
func NewCompressed(path string) (*FileSink, error) {
	s := &FileSink{path: path + ".xz", compressed: true}
	if err := s.openLocked(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileSink) openLocked() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("linesink: creating directory for %s: %w", s.path, err)
	}
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("linesink: opening %s: %w", s.path, err)
	}
	s.file = f
	if !s.compressed {
		s.writer = f
		return nil
	}
	w, err := compress.XZ.Writer(f)
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("linesink: building xz writer for %s: %w", s.path, err)
	}
	s.writer = w
	return nil
}

func (s *FileSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrClosed
	}
	if s.writer == nil {
		if err := s.openLocked(); err != nil {
			return 0, err
		}
	}
	return s.writer.Write(p)
}

func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stdout {
		s.closed = true
		return nil
	}
	s.closed = true
	return s.closeLocked()
}

func (s *FileSink) closeLocked() error {
	if s.writer == nil {
		return nil
	}
	var err error
	if s.compressed {
		err = s.writer.Close()
	}
	if cerr := s.file.Close(); err == nil {
		err = cerr
	}
	s.writer = nil
	s.file = nil
	return err
}

// Rotate implements the close -> copy+gzip -> truncate -> reopen sequence,
// archiving to "<dir>/log_archive/<base>_<YYYY-MM-DD_HH:MM:SS>.gz" beside
// the live file.
func (s *FileSink) Rotate(at time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stdout || s.compressed {
		return "", nil
	}
	if s.closed {
		return "", ErrClosed
	}
	if err := s.closeLocked(); err != nil {
		return "", err
	}

	dir := filepath.Dir(s.path)
	base := filepath.Base(s.path)
	archiveDir := filepath.Join(dir, "log_archive")
	if err := os.MkdirAll(archiveDir, 0755); err != nil {
		return "", fmt.Errorf("linesink: creating archive directory: %w", err)
	}
	archivePath := filepath.Join(archiveDir, fmt.Sprintf("%s_%s.gz", base, at.Format("2006-01-02_15:04:05")))

	if err := gzipCopy(s.path, archivePath); err != nil {
		return "", err
	}
	if err := os.Truncate(s.path, 0); err != nil {
		return "", fmt.Errorf("linesink: truncating %s: %w", s.path, err)
	}
	if err := s.openLocked(); err != nil {
		return "", err
	}
	return archivePath, nil
}

func gzipCopy(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("linesink: opening %s for archive: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("linesink: creating archive %s: %w", dst, err)
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
	}()

	gz, gerr := compress.Gzip.Writer(out)
	if gerr != nil {
		return fmt.Errorf("linesink: building gzip writer: %w", gerr)
	}
	if _, err = io.Copy(gz, in); err != nil {
		_ = gz.Close()
		return fmt.Errorf("linesink: copying %s to archive: %w", src, err)
	}
	if err = gz.Close(); err != nil {
		return fmt.Errorf("linesink: finalizing archive %s: %w", dst, err)
	}
	return nil
}
