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

package torrc_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/torproject/oniperf-go/torrc"
)

var _ = Describe("Build", func() {
	It("assembles a client config with the entry-guard backstop", func() {
		out := torrc.Build(torrc.Params{
			Role:        torrc.RoleClient,
			ControlPort: 9051,
			SocksPort:   9050,
			DataDir:     "/tmp/tor-client",
		})
		Expect(out).To(ContainSubstring("ControlPort 9051"))
		Expect(out).To(ContainSubstring("SocksPort 9050"))
		Expect(out).To(ContainSubstring("UseEntryGuards 0"))
		Expect(out).ToNot(ContainSubstring("HiddenServiceSingleHopMode"))
	})

	It("appends additional client conf before the backstop", func() {
		out := torrc.Build(torrc.Params{
			Role:                 torrc.RoleClient,
			DataDir:              "/tmp/tor-client",
			AdditionalClientConf: "Log NOTICE file /tmp/extra.log\n",
		})
		Expect(out).To(ContainSubstring("Log NOTICE file /tmp/extra.log"))
	})

	It("omits the entry-guard backstop when UseBridges is already set", func() {
		out := torrc.Build(torrc.Params{
			Role:         torrc.RoleClient,
			DataDir:      "/tmp/tor-client",
			RoleConfFile: "UseBridges 1\nBridge 1.2.3.4:443\n",
		})
		Expect(out).ToNot(ContainSubstring("UseEntryGuards 0"))
	})

	It("appends single-hop flags only for the server role", func() {
		out := torrc.Build(torrc.Params{
			Role:          torrc.RoleServer,
			DataDir:       "/tmp/tor-server",
			SingleHopMode: true,
		})
		Expect(out).To(ContainSubstring("HiddenServiceSingleHopMode 1"))
		Expect(out).To(ContainSubstring("HiddenServiceNonAnonymousMode 1"))
	})

	It("keeps entry guards when drop-guards cycling is enabled", func() {
		out := torrc.Build(torrc.Params{
			Role:              torrc.RoleClient,
			DataDir:           "/tmp/tor-client",
			DropGuardsEnabled: true,
		})
		Expect(out).ToNot(ContainSubstring("UseEntryGuards 0"))
	})
})
