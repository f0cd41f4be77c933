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

package settings

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// ControlAuth names the supported control-protocol authentication methods.
type ControlAuth string

const (
	AuthNull       ControlAuth = "null"
	AuthSafeCookie ControlAuth = "safecookie"
)

// BreakerPolicy is the circuit breaker's death-rate threshold, per spec.md
// §9: "policy, not mechanism — expose as configuration."
type BreakerPolicy struct {
	MaxDeaths int
	Window    time.Duration
}

// Config is the complete, validated configuration for one supervisor run.
type Config struct {
	DataDir    string
	PrivateDir string
	DocRoot    string

	ClientNickname string
	ServerNickname string

	TorBinary  string
	TGenBinary string

	ControlPortClient int
	ControlPortServer int
	SocksPortClient   int
	SocksPortServer   int
	TGenPortClient    int
	TGenPortServer    int

	ControlAuth ControlAuth

	// MinTorVersion is a github.com/hashicorp/go-version constraint string,
	// e.g. ">= 0.3.5.1".
	MinTorVersion string

	Breaker BreakerPolicy

	LogLevel string
	LogFile  string

	HeartbeatInterval time.Duration

	// SingleHopMode appends HiddenServiceSingleHopMode/NonAnonymousMode to
	// the server torrc, per spec.md §6.
	SingleHopMode bool
	DropGuards    bool
	BaseTorrc     string
}

// Defaults returns a Config populated with this runtime's built-in defaults.
func Defaults() Config {
	return Config{
		DataDir:           "./oniperf-data",
		PrivateDir:        "./oniperf-data/private",
		DocRoot:           "./oniperf-data/htdocs",
		ClientNickname:    "client",
		ServerNickname:    "server",
		TorBinary:         "tor",
		TGenBinary:        "tgen",
		ControlPortClient: 9051,
		ControlPortServer: 9052,
		SocksPortClient:   9050,
		SocksPortServer:   9053,
		TGenPortClient:    58000,
		TGenPortServer:    58001,
		ControlAuth:       AuthSafeCookie,
		MinTorVersion:     ">= 0.3.5.1",
		Breaker:           BreakerPolicy{MaxDeaths: 10, Window: time.Hour},
		LogLevel:          "info",
		LogFile:           "./oniperf-data/oniperf.log",
		HeartbeatInterval: time.Hour,
	}
}

// RegisterFlags binds one flag per Config field onto fs, seeded from
// Defaults(), for cmd/oniperf's cobra command to attach at construction
// time.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Defaults()

	fs.String("data-dir", d.DataDir, "directory holding per-process logs")
	fs.String("private-dir", d.PrivateDir, "directory holding the ephemeral hidden service key")
	fs.String("docroot", d.DocRoot, "directory published with the daily analysis document and index.xml")
	fs.String("client-nickname", d.ClientNickname, "nickname of the client-side daemon")
	fs.String("server-nickname", d.ServerNickname, "nickname of the server-side daemon")
	fs.String("tor-binary", d.TorBinary, "path to the routing daemon binary")
	fs.String("tgen-binary", d.TGenBinary, "path to the traffic generator binary")
	fs.Int("control-port-client", d.ControlPortClient, "client daemon control port")
	fs.Int("control-port-server", d.ControlPortServer, "server daemon control port")
	fs.Int("socks-port-client", d.SocksPortClient, "client daemon SOCKS port")
	fs.Int("socks-port-server", d.SocksPortServer, "server daemon SOCKS port (unused in single-hop mode)")
	fs.Int("tgen-port-client", d.TGenPortClient, "client traffic generator listen port")
	fs.Int("tgen-port-server", d.TGenPortServer, "server traffic generator listen port")
	fs.String("control-auth", string(d.ControlAuth), "control port auth method: null or safecookie")
	fs.String("min-tor-version", d.MinTorVersion, "minimum accepted daemon version constraint")
	fs.Int("breaker-max-deaths", d.Breaker.MaxDeaths, "deaths tolerated within breaker-window before giving up")
	fs.Duration("breaker-window", d.Breaker.Window, "trailing window the circuit breaker counts deaths over")
	fs.String("log-level", d.LogLevel, "supervisor log level")
	fs.String("log-file", d.LogFile, "supervisor log file path")
	fs.Duration("heartbeat-interval", d.HeartbeatInterval, "interval between self-observation heartbeat samples")
	fs.Bool("single-hop-mode", d.SingleHopMode, "run the server-side hidden service in single-hop mode")
	fs.Bool("drop-guards", d.DropGuards, "periodically issue DROPGUARDS over the control port")
	fs.String("base-torrc", d.BaseTorrc, "base torrc content prepended to the generated configuration")
}

// Load reads bound flags, ONIONPERF_-prefixed environment variables, and an
// optional config file (if v was given one via SetConfigFile/AddConfigPath)
// into a Config, then validates it.
func Load(v *viper.Viper) (Config, error) {
	v.SetEnvPrefix("onionperf")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if !errors.As(err, &nf) {
			return Config{}, fmt.Errorf("settings: reading config file: %w", err)
		}
	}

	cfg := Config{
		DataDir:           v.GetString("data-dir"),
		PrivateDir:        v.GetString("private-dir"),
		DocRoot:           v.GetString("docroot"),
		ClientNickname:    v.GetString("client-nickname"),
		ServerNickname:    v.GetString("server-nickname"),
		TorBinary:         v.GetString("tor-binary"),
		TGenBinary:        v.GetString("tgen-binary"),
		ControlPortClient: v.GetInt("control-port-client"),
		ControlPortServer: v.GetInt("control-port-server"),
		SocksPortClient:   v.GetInt("socks-port-client"),
		SocksPortServer:   v.GetInt("socks-port-server"),
		TGenPortClient:    v.GetInt("tgen-port-client"),
		TGenPortServer:    v.GetInt("tgen-port-server"),
		ControlAuth:       ControlAuth(v.GetString("control-auth")),
		MinTorVersion:     v.GetString("min-tor-version"),
		Breaker: BreakerPolicy{
			MaxDeaths: v.GetInt("breaker-max-deaths"),
			Window:    v.GetDuration("breaker-window"),
		},
		LogLevel:          v.GetString("log-level"),
		LogFile:           v.GetString("log-file"),
		HeartbeatInterval: v.GetDuration("heartbeat-interval"),
		SingleHopMode:     v.GetBool("single-hop-mode"),
		DropGuards:        v.GetBool("drop-guards"),
		BaseTorrc:         v.GetString("base-torrc"),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects a Config that would produce an unrunnable supervisor.
func (c Config) Validate() error {
	if c.DataDir == "" {
		return errors.New("settings: data-dir must not be empty")
	}
	if c.DocRoot == "" {
		return errors.New("settings: docroot must not be empty")
	}
	if c.ControlAuth != AuthNull && c.ControlAuth != AuthSafeCookie {
		return fmt.Errorf("settings: control-auth must be %q or %q, got %q", AuthNull, AuthSafeCookie, c.ControlAuth)
	}
	if c.ControlPortClient == c.ControlPortServer {
		return errors.New("settings: control-port-client and control-port-server must differ")
	}
	if c.Breaker.MaxDeaths <= 0 {
		return errors.New("settings: breaker-max-deaths must be positive")
	}
	if c.Breaker.Window <= 0 {
		return errors.New("settings: breaker-window must be positive")
	}
	return nil
}
