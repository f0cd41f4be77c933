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

package tgenparse_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/torproject/oniperf-go/tgenparse"
)

const completeLine = "2019-04-22 14:41:20 1555940480.647663 [message] [transfer-complete] [tgen-transfer.c:1618] " +
	"[_tgentransfer_log] transport tcp,12,localhost:127.0.0.1:46878,localhost:127.0.0.1:43735,host:0.0.0.0:8080,state=SUCCESS,error=NONE " +
	"transfer transfer5m,4,cyan,GET,5242880,(null),0,state=SUCCESS,error=NONE total-bytes-read=5242880 total-bytes-write=0 " +
	"read-bytes=5242880/5242880 times usecs-to-socket-create=11 usecs-to-socket-connect=210 usecs-to-proxy-init=283 " +
	"usecs-to-proxy-choice=348 usecs-to-proxy-request=412 usecs-to-proxy-response=500 usecs-to-command=600 usecs-to-response=700 " +
	"usecs-to-first-byte=800 usecs-to-last-byte=1000000 usecs-to-checksum=1000100"

const errorLine = "2019-04-22 14:41:40 1555940500.0 [message] [transfer-error] [tgen-transfer.c:1618] " +
	"[_tgentransfer_log] transport tcp,12,localhost:127.0.0.1:46878,localhost:127.0.0.1:43735,host:0.0.0.0:8080,state=ERROR,error=PROXY " +
	"transfer transfer5m,5,cyan,GET,5242880,(null),0,state=ERROR,error=PROXY total-bytes-read=0 total-bytes-write=0 " +
	"read-bytes=0/5242880 times usecs-to-socket-create=11 usecs-to-socket-connect=210 usecs-to-proxy-init=283 " +
	"usecs-to-proxy-choice=348 usecs-to-proxy-request=412 usecs-to-proxy-response=-1 usecs-to-command=-1 usecs-to-response=-1 " +
	"usecs-to-first-byte=-1 usecs-to-last-byte=-1 usecs-to-checksum=-1"

var _ = Describe("Parser", func() {
	It("parses a happy-path completed transfer", func() {
		p := tgenparse.New(tgenparse.Config{DoComplete: true})
		Expect(p.ParseLine(completeLine)).ToNot(HaveOccurred())

		tr := p.Completed()["transfer5m:4"]
		Expect(tr).ToNot(BeNil())
		Expect(tr.ElapsedSeconds.LastByte).To(Equal(1.0))
		Expect(tr.IsSuccess).To(BeTrue())
		Expect(tr.IsError).To(BeFalse())

		sizeKey := "5242880"
		second := int64(1555940480)
		Expect(p.Summary().TimeToLastByte[sizeKey][second]).To(ConsistOf(BeNumerically("~", 0.9994, 1e-9)))
	})

	It("parses a transfer-error with only early milestones reached", func() {
		p := tgenparse.New(tgenparse.Config{DoComplete: true})
		Expect(p.ParseLine(errorLine)).ToNot(HaveOccurred())

		tr := p.Completed()["transfer5m:5"]
		Expect(tr).ToNot(BeNil())
		Expect(tr.IsError).To(BeTrue())
		Expect(tr.IsSuccess).To(BeFalse())
		Expect(tr.UnixTSStart).To(BeNumerically("~", tr.UnixTSEnd-0.000412, 1e-9))

		Expect(p.Summary().Errors["PROXY"][int64(tr.UnixTSEnd)]).To(Equal([]int64{5242880}))
	})

	It("skips lines outside the configured date filter", func() {
		filterDate := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
		p := tgenparse.New(tgenparse.Config{DoComplete: true, DateFilter: &filterDate})
		Expect(p.ParseLine(completeLine)).ToNot(HaveOccurred())
		Expect(p.Completed()).To(BeEmpty())
	})

	It("captures the traffic generator hostname", func() {
		p := tgenparse.New(tgenparse.Config{})
		Expect(p.ParseLine("2019-04-22 14:41:00 1555940460.0 Initializing traffic generator on host relay1 pid=123")).ToNot(HaveOccurred())
		Expect(p.Hostname()).To(Equal("relay1"))
	})

	It("skips transfer-status updates when DoComplete is false", func() {
		p := tgenparse.New(tgenparse.Config{DoComplete: false})
		statusLine := "2019-04-22 14:41:10 1555940470.0 [message] [transfer-status] [tgen-transfer.c:1] " +
			"[_tgentransfer_log] transport tcp,12,localhost:127.0.0.1:46878,localhost:127.0.0.1:43735,host:0.0.0.0:8080,state=INPROGRESS,error=NONE " +
			"transfer transfer5m,4,cyan,GET,5242880,(null),0,state=INPROGRESS,error=NONE total-bytes-read=100 total-bytes-write=0 " +
			"read-bytes=100/5242880"
		Expect(p.ParseLine(statusLine)).ToNot(HaveOccurred())
		Expect(p.Completed()).To(BeEmpty())
	})
})
