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

package ctrlparse_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/torproject/oniperf-go/ctrlparse"
)

const bannerLine = "2019-04-22 14:40:00 1555940400.00 Starting torctl program on host test-host using Tor version 0.4.7.13"
const bootstrapLine = "2019-04-22 14:40:01 1555940401.00 Bootstrapped 100% (done): Done"

var circuitLifecycleLines = []string{
	bannerLine,
	bootstrapLine,
	"2019-04-22 14:40:02 1555940402.00 650 BUILDTIMEOUT_SET COMPUTED TOTAL_TIMES=100 TIMEOUT_MS=1500 XM=320 ALPHA=2.300000 " +
		"CUTOFF_QUANTILE=0.800000 TIMEOUT_RATE=0.010000 CLOSE_MS=1500 CLOSE_RATE=0.010000",
	"2019-04-22 14:40:03 1555940403.00 650 CIRC 14 LAUNCHED PURPOSE=GENERAL",
	"2019-04-22 14:40:03 1555940403.50 650 CIRC 14 EXTENDED $AAAA000000000000000000000000000000000001~relay1 PURPOSE=GENERAL",
	"2019-04-22 14:40:04 1555940404.00 650 CIRC 14 EXTENDED " +
		"$AAAA000000000000000000000000000000000001~relay1,$BBBB000000000000000000000000000000000002~relay2 PURPOSE=GENERAL",
	"2019-04-22 14:40:04 1555940404.50 650 CIRC 14 EXTENDED " +
		"$AAAA000000000000000000000000000000000001~relay1,$BBBB000000000000000000000000000000000002~relay2," +
		"$CCCC000000000000000000000000000000000003~relay3 PURPOSE=GENERAL",
	"2019-04-22 14:40:05 1555940405.00 650 CIRC 14 BUILT " +
		"$AAAA000000000000000000000000000000000001~relay1,$BBBB000000000000000000000000000000000002~relay2," +
		"$CCCC000000000000000000000000000000000003~relay3 PURPOSE=GENERAL",
	"2019-04-22 14:40:10 1555940410.00 650 CIRC 14 CLOSED " +
		"$AAAA000000000000000000000000000000000001~relay1,$BBBB000000000000000000000000000000000002~relay2," +
		"$CCCC000000000000000000000000000000000003~relay3 PURPOSE=GENERAL",
}

var _ = Describe("Parser", func() {
	It("tracks a full three-hop circuit lifecycle", func() {
		p := ctrlparse.New(ctrlparse.Config{DoComplete: true})
		for _, line := range circuitLifecycleLines {
			Expect(p.ParseLine(line)).ToNot(HaveOccurred())
		}

		Expect(p.Hostname()).To(Equal("test-host"))

		circ := p.Circuits()["14"]
		Expect(circ).ToNot(BeNil())
		Expect(circ.Path).To(HaveLen(3))
		Expect(circ.IsThreeHop()).To(BeTrue())
		Expect(*circ.BuildTimeout).To(Equal(1500.0))
		Expect(*circ.BuildQuantile).To(Equal(0.8))
		Expect(*circ.BuildtimeSeconds).To(BeNumerically("~", 2.0, 1e-9))

		summary := p.CircuitsSummary()
		Expect(summary.Buildtimes).To(ConsistOf(BeNumerically("~", 2.0, 1e-9)))
		Expect(summary.Lifetimes).To(ConsistOf(BeNumerically("~", 7.0, 1e-9)))
	})

	It("skips lines outside the configured date filter", func() {
		filterDate := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
		p := ctrlparse.New(ctrlparse.Config{DoComplete: true, DateFilter: &filterDate})
		for _, line := range circuitLifecycleLines {
			Expect(p.ParseLine(line)).ToNot(HaveOccurred())
		}
		Expect(p.Circuits()).To(BeEmpty())
		Expect(p.Hostname()).To(BeEmpty())
	})

	It("only parses BW lines when DoComplete is false", func() {
		p := ctrlparse.New(ctrlparse.Config{DoComplete: false})
		lines := append(append([]string{}, circuitLifecycleLines...),
			"2019-04-22 14:40:11 1555940411.00 650 BW 512 1024")
		for _, line := range lines {
			Expect(p.ParseLine(line)).ToNot(HaveOccurred())
		}
		Expect(p.Circuits()).To(BeEmpty())
		Expect(p.Bandwidth().BytesRead[1555940411]).To(Equal(int64(512)))
		Expect(p.Bandwidth().BytesWritten[1555940411]).To(Equal(int64(1024)))
	})
})
