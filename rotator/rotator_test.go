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

package rotator_test

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/torproject/oniperf-go/linesink"
	"github.com/torproject/oniperf-go/rotator"
)

const tgenLine = "2019-04-22 14:41:20 1555940480.647663 [message] [transfer-complete] [tgen-transfer.c:1618] " +
	"[_tgentransfer_log] transport tcp,12,localhost:127.0.0.1:46878,localhost:127.0.0.1:43735,host:0.0.0.0:8080,state=SUCCESS,error=NONE " +
	"transfer transfer5m,4,cyan,GET,5242880,(null),0,state=SUCCESS,error=NONE total-bytes-read=5242880 total-bytes-write=0 " +
	"read-bytes=5242880/5242880 times usecs-to-socket-create=11 usecs-to-socket-connect=210 usecs-to-proxy-init=283 " +
	"usecs-to-proxy-choice=348 usecs-to-proxy-request=412 usecs-to-proxy-response=500 usecs-to-command=600 usecs-to-response=700 " +
	"usecs-to-first-byte=800 usecs-to-last-byte=1000000 usecs-to-checksum=1000100"

var _ = Describe("Rotator", func() {
	It("rotates sinks and publishes a compressed analysis document plus index.xml", func() {
		dir, err := os.MkdirTemp("", "rotator-")
		Expect(err).ToNot(HaveOccurred())
		defer os.RemoveAll(dir)

		docroot := filepath.Join(dir, "htdocs")
		Expect(os.Mkdir(docroot, 0755)).To(Succeed())

		tgenPath := filepath.Join(dir, "onionperf.tgen.log")
		Expect(os.WriteFile(tgenPath, []byte(tgenLine+"\n"), 0644)).To(Succeed())
		tgenSink, err := linesink.New(tgenPath)
		Expect(err).ToNot(HaveOccurred())

		r := rotator.New(rotator.Config{
			TGenSink:      tgenSink,
			Nickname:      "relay1",
			MeasurementIP: "203.0.113.9",
			DocRoot:       docroot,
		})

		at := time.Date(2026, 7, 30, 23, 59, 59, 0, time.UTC)
		r.RotateNow(at)

		entries, err := os.ReadDir(docroot)
		Expect(err).ToNot(HaveOccurred())
		var names []string
		for _, e := range entries {
			names = append(names, e.Name())
		}
		Expect(names).To(ContainElement("2026-07-30.onionperf.analysis.json.xz"))
		Expect(names).To(ContainElement("index.xml"))
	})
})
