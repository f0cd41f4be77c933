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

package ctrlmon

import (
	"bufio"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/torproject/oniperf-go/internal/ctlproto"
	"github.com/torproject/oniperf-go/internal/settings"
)

// The SAFECOOKIE HMAC keys are fixed strings defined by the control
// protocol specification, not secrets.
var (
	safeCookieServerKey = []byte("Tor safe cookie authentication server-to-controller hash")
	safeCookieClientKey = []byte("Tor safe cookie authentication controller-to-server hash")
)

func authenticate(rw *bufio.ReadWriter, method settings.ControlAuth, cookiePath string) error {
	switch method {
	case settings.AuthNull:
		return sendAuthCommand(rw, "AUTHENTICATE")
	case settings.AuthSafeCookie:
		return authSafeCookie(rw, cookiePath)
	default:
		return fmt.Errorf("ctrlmon: unsupported control auth method %q", method)
	}
}

func authSafeCookie(rw *bufio.ReadWriter, cookiePath string) error {
	cookie, err := os.ReadFile(cookiePath)
	if err != nil {
		return fmt.Errorf("ctrlmon: reading cookie file %s: %w", cookiePath, err)
	}

	clientNonce := make([]byte, 32)
	if _, err := rand.Read(clientNonce); err != nil {
		return fmt.Errorf("ctrlmon: generating client nonce: %w", err)
	}

	if err := writeCommand(rw, "AUTHCHALLENGE SAFECOOKIE "+hex.EncodeToString(clientNonce)); err != nil {
		return err
	}
	rep, err := ctlproto.ReadReply(rw.Reader)
	if err != nil {
		return fmt.Errorf("ctrlmon: reading AUTHCHALLENGE reply: %w", err)
	}
	if rep.Code != 250 || len(rep.Lines) == 0 {
		return fmt.Errorf("ctrlmon: AUTHCHALLENGE rejected: %v", rep.Lines)
	}

	var serverHash, serverNonce []byte
	for _, field := range ctlproto.SplitQuoted(rep.Lines[0]) {
		switch {
		case strings.HasPrefix(field, "SERVERHASH="):
			serverHash, err = hex.DecodeString(strings.TrimPrefix(field, "SERVERHASH="))
		case strings.HasPrefix(field, "SERVERNONCE="):
			serverNonce, err = hex.DecodeString(strings.TrimPrefix(field, "SERVERNONCE="))
		}
		if err != nil {
			return fmt.Errorf("ctrlmon: decoding AUTHCHALLENGE reply: %w", err)
		}
	}
	if serverHash == nil || serverNonce == nil {
		return errors.New("ctrlmon: AUTHCHALLENGE reply missing SERVERHASH/SERVERNONCE")
	}

	msg := append(append(append([]byte{}, cookie...), clientNonce...), serverNonce...)
	if !hmac.Equal(hmacSHA256(safeCookieServerKey, msg), serverHash) {
		return errors.New("ctrlmon: AUTHCHALLENGE server hash does not match shared cookie")
	}

	clientHash := hmacSHA256(safeCookieClientKey, msg)
	return sendAuthCommand(rw, "AUTHENTICATE "+hex.EncodeToString(clientHash))
}

func hmacSHA256(key, msg []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(msg)
	return mac.Sum(nil)
}

func sendAuthCommand(rw *bufio.ReadWriter, cmd string) error {
	if err := writeCommand(rw, cmd); err != nil {
		return err
	}
	rep, err := ctlproto.ReadReply(rw.Reader)
	if err != nil {
		return fmt.Errorf("ctrlmon: reading authentication reply: %w", err)
	}
	if rep.Code != 250 {
		return fmt.Errorf("ctrlmon: authentication failed: %v", rep.Lines)
	}
	return nil
}

func writeCommand(rw *bufio.ReadWriter, cmd string) error {
	if _, err := rw.Writer.WriteString(cmd + "\r\n"); err != nil {
		return fmt.Errorf("ctrlmon: writing command %q: %w", cmd, err)
	}
	return rw.Writer.Flush()
}
