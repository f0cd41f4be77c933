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

package supervisor

import (
	"fmt"
	"os/exec"
	"strings"

	hcversion "github.com/hashicorp/go-version"
)

// checkDaemonVersion runs "<binary> --version", extracts the first
// dotted-number token from its output, and verifies it satisfies
// constraintStr. Ephemeral hidden services require a modern daemon; this
// mirrors the preflight get_system_tor_version/Requirement.ADD_ONION check
// the measurement loop performs before spawning anything.
func checkDaemonVersion(binary, constraintStr string) error {
	out, err := exec.Command(binary, "--version").CombinedOutput()
	if err != nil {
		return fmt.Errorf("supervisor: running %s --version: %w", binary, err)
	}

	raw := extractVersionToken(string(out))
	if raw == "" {
		return fmt.Errorf("supervisor: could not parse a version out of %q", strings.TrimSpace(string(out)))
	}

	v, err := hcversion.NewVersion(raw)
	if err != nil {
		return fmt.Errorf("supervisor: parsing daemon version %q: %w", raw, err)
	}

	constraint, err := hcversion.NewConstraint(constraintStr)
	if err != nil {
		return fmt.Errorf("supervisor: parsing version constraint %q: %w", constraintStr, err)
	}
	if !constraint.Check(v) {
		return fmt.Errorf("supervisor: daemon version %s does not satisfy %s, aborting", v, constraintStr)
	}
	return nil
}

// extractVersionToken pulls the first "N.N.N..." run out of s, e.g. turning
// "Tor version 0.4.7.13." into "0.4.7.13".
func extractVersionToken(s string) string {
	fields := strings.Fields(s)
	for _, f := range fields {
		f = strings.TrimSuffix(f, ".")
		if len(f) == 0 || !(f[0] >= '0' && f[0] <= '9') {
			continue
		}
		if strings.Count(f, ".") >= 1 {
			return f
		}
	}
	return ""
}
