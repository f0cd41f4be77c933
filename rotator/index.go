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

package rotator

import (
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"time"

	libsha256 "github.com/torproject/oniperf-go/encoding/sha256"
)

const indexFilename = "index.xml"

type indexFile struct {
	Name         string `xml:"name,attr"`
	Size         int64  `xml:"size,attr"`
	LastModified string `xml:"last_modified,attr"`
	SHA256       string `xml:"sha256,attr"`
}

type indexRoot struct {
	XMLName xml.Name    `xml:"files"`
	Files   []indexFile `xml:"file"`
}

// GenerateIndex (re)writes docroot/index.xml, listing every other file in
// docroot with its size, last-modified timestamp, and base64 sha256 digest.
func GenerateIndex(docroot string) error {
	entries, err := os.ReadDir(docroot)
	if err != nil {
		return fmt.Errorf("rotator: reading %s: %w", docroot, err)
	}

	root := indexRoot{}
	for _, entry := range entries {
		if entry.IsDir() || entry.Name() == indexFilename {
			continue
		}

		path := filepath.Join(docroot, entry.Name())
		info, err := entry.Info()
		if err != nil {
			return fmt.Errorf("rotator: stat %s: %w", path, err)
		}

		digest, err := sha256Digest(path)
		if err != nil {
			return err
		}

		root.Files = append(root.Files, indexFile{
			Name:         entry.Name(),
			Size:         info.Size(),
			LastModified: info.ModTime().UTC().Truncate(time.Second).Format("2006-01-02 15:04:05"),
			SHA256:       digest,
		})
	}

	out, err := xml.MarshalIndent(root, "", "  ")
	if err != nil {
		return fmt.Errorf("rotator: marshaling index.xml: %w", err)
	}

	f, err := os.Create(filepath.Join(docroot, indexFilename))
	if err != nil {
		return fmt.Errorf("rotator: creating index.xml: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(xml.Header); err != nil {
		return fmt.Errorf("rotator: writing index.xml header: %w", err)
	}
	if _, err := f.Write(out); err != nil {
		return fmt.Errorf("rotator: writing index.xml: %w", err)
	}
	return nil
}

func sha256Digest(path string) (string, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("rotator: reading %s: %w", path, err)
	}
	digest := libsha256.New().Encode(contents)
	return base64.StdEncoding.EncodeToString(digest), nil
}
