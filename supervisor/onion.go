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
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/torproject/oniperf-go/ctrlmon"
	"github.com/torproject/oniperf-go/internal/settings"
)

// createEphemeralOnion opens a short-lived control session against address,
// reuses a persisted ED25519-V3 key from keyPath if one exists, and issues
// ADD_ONION for the given "remotePort,localPort" mapping. The bare service
// ID is returned, without the ".onion" suffix; the service is left registered (detached)
// until removeEphemeralOnion is called at shutdown.
func createEphemeralOnion(ctx context.Context, address string, auth settings.ControlAuth, cookiePath, keyPath, portMapping string) (serviceID string, err error) {
	sess, err := ctrlmon.Dial(ctx, address, auth, cookiePath)
	if err != nil {
		return "", err
	}
	defer sess.Close()

	keyArg := "NEW:ED25519-V3"
	if existing, rerr := os.ReadFile(keyPath); rerr == nil {
		keyArg = strings.TrimSpace(string(existing))
	}

	cmd := fmt.Sprintf("ADD_ONION %s Flags=Detach Port=%s", keyArg, portMapping)
	rep, err := sess.Command(cmd)
	if err != nil {
		return "", fmt.Errorf("supervisor: ADD_ONION: %w", err)
	}
	if rep.Code != 250 {
		return "", fmt.Errorf("supervisor: ADD_ONION rejected: %v", rep.Lines)
	}

	var serviceIDField, privKeyField string
	for _, line := range rep.Lines {
		switch {
		case strings.HasPrefix(line, "ServiceID="):
			serviceIDField = strings.TrimPrefix(line, "ServiceID=")
		case strings.HasPrefix(line, "PrivateKey="):
			privKeyField = strings.TrimPrefix(line, "PrivateKey=")
		}
	}
	if serviceIDField == "" {
		return "", fmt.Errorf("supervisor: ADD_ONION reply missing ServiceID: %v", rep.Lines)
	}
	if privKeyField != "" {
		if err := os.WriteFile(keyPath, []byte(privKeyField), 0600); err != nil {
			return "", fmt.Errorf("supervisor: persisting hidden service key: %w", err)
		}
	}
	return serviceIDField, nil
}

// removeEphemeralOnion best-effort tears down the hidden service over a
// fresh control session; authentication failures (the daemon may already be
// dead) are swallowed, mirroring the supervisor's shutdown path.
func removeEphemeralOnion(address string, auth settings.ControlAuth, cookiePath, serviceID string) {
	sess, err := ctrlmon.Dial(context.Background(), address, auth, cookiePath)
	if err != nil {
		return
	}
	defer sess.Close()
	_, _ = sess.Command("DEL_ONION " + serviceID)
}
