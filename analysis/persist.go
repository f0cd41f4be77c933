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

package analysis

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/torproject/oniperf-go/archive/compress"
	"github.com/torproject/oniperf-go/model"
)

const baseFilename = "onionperf.analysis.json"

// encodeDocument writes doc as 2-space-indented JSON. encoding/json already
// marshals map keys in sorted order, satisfying the "sorted keys" contract.
func encodeDocument(w io.Writer, doc *model.AnalysisDocument) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("analysis: encoding document: %w", err)
	}
	return nil
}

// Save writes the document as sorted-key indented JSON. If path is "", the
// filename is derived from datePrefix (or, failing that, left unprefixed)
// with a ".xz" suffix whenever doCompress is true.
func (a *Analysis) Save(path string, doCompress bool, datePrefix *time.Time) error {
	if path == "" {
		name := baseFilename
		if doCompress {
			name += ".xz"
		}
		if datePrefix != nil {
			name = datePrefix.UTC().Format("2006-01-02") + "." + name
		}
		path = name
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("analysis: creating %s: %w", dir, err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("analysis: creating %s: %w", path, err)
	}
	defer f.Close()

	if doCompress {
		w, werr := compress.XZ.Writer(f)
		if werr != nil {
			return fmt.Errorf("analysis: building xz writer: %w", werr)
		}
		if err := encodeDocument(w, a.doc); err != nil {
			_ = w.Close()
			return err
		}
		return w.Close()
	}
	return encodeDocument(f, a.doc)
}

// Load reads and validates an AnalysisDocument from path, auto-detecting
// whether it is xz-compressed.
func Load(path string) (*Analysis, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("analysis: opening %s: %w", path, err)
	}
	defer f.Close()

	_, rdr, err := compress.Detect(f)
	if err != nil {
		return nil, fmt.Errorf("analysis: detecting compression on %s: %w", path, err)
	}
	defer rdr.Close()

	doc := &model.AnalysisDocument{}
	if err := json.NewDecoder(rdr).Decode(doc); err != nil {
		return nil, fmt.Errorf("analysis: decoding %s: %w", path, err)
	}
	if err := model.ValidateLoadable(doc); err != nil {
		return nil, err
	}
	return &Analysis{doc: doc, analyzed: true}, nil
}
