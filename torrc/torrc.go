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

package torrc

import (
	"fmt"
	"strings"
)

// Role names which side of the measurement pair a daemon instance plays.
type Role string

const (
	RoleClient Role = "client"
	RoleServer Role = "server"
)

// Params describes one daemon instance's configuration inputs. Build
// assembles them in a fixed order: base snippet, fixed measurement
// template, role-specific config file contents, inline client extra conf,
// an entry-guard backstop (unless guards or bridges are already mentioned),
// then single-hop hidden service flags.
type Params struct {
	Role Role

	// Base is the BASETORRC-equivalent snippet prepended ahead of
	// everything else.
	Base string

	ControlPort int
	SocksPort   int
	DataDir     string

	// RoleConfFile is the contents of torclient_conf_file/torserver_conf_file,
	// appended verbatim for the matching Role.
	RoleConfFile string

	// AdditionalClientConf is appended only when Role is RoleClient.
	AdditionalClientConf string

	// DropGuardsEnabled suppresses the "UseEntryGuards 0" backstop: an
	// operator who wants periodic DROPGUARDS cycling needs real guards to
	// drop.
	DropGuardsEnabled bool

	// SingleHopMode appends HiddenServiceSingleHopMode/NonAnonymousMode;
	// only meaningful for RoleServer.
	SingleHopMode bool
}

// Build renders the full configuration text for one daemon instance.
func Build(p Params) string {
	var b strings.Builder

	b.WriteString(p.Base)
	fmt.Fprintf(&b, "RunAsDaemon 0\nORPort 0\nDirPort 0\nControlPort %d\nSocksPort %d\n", p.ControlPort, p.SocksPort)
	b.WriteString("SocksListenAddress 127.0.0.1\nClientOnly 1\nWarnUnsafeSocks 0\nSafeLogging 0\nMaxCircuitDirtiness 60 seconds\n")
	fmt.Fprintf(&b, "DataDirectory %s\nDataDirectoryGroupReadable 1\nLog INFO stdout\n", p.DataDir)

	if p.RoleConfFile != "" {
		b.WriteString(p.RoleConfFile)
	}
	if p.Role == RoleClient && p.AdditionalClientConf != "" {
		b.WriteString(p.AdditionalClientConf)
	}

	config := b.String()
	if !p.DropGuardsEnabled && !strings.Contains(config, "UseEntryGuards") && !strings.Contains(config, "UseBridges") {
		b.WriteString("UseEntryGuards 0\n")
	}
	if p.Role == RoleServer && p.SingleHopMode {
		b.WriteString("HiddenServiceSingleHopMode 1\nHiddenServiceNonAnonymousMode 1\n")
	}

	return b.String()
}
