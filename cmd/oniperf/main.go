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

// Command oniperf runs one measurement endpoint: a traffic-generator and
// routing-daemon pair, their control monitors, and the nightly log
// rotator, until interrupted.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/torproject/oniperf-go/internal/logging"
	"github.com/torproject/oniperf-go/internal/settings"
	"github.com/torproject/oniperf-go/supervisor"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "oniperf",
		Short: "Run a routing-daemon/traffic-generator measurement endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := v.BindPFlags(cmd.Flags()); err != nil {
				return fmt.Errorf("oniperf: binding flags: %w", err)
			}
			if cfgFile, _ := cmd.Flags().GetString("config"); cfgFile != "" {
				v.SetConfigFile(cfgFile)
			}

			cfg, err := settings.Load(v)
			if err != nil {
				return err
			}

			log, closer, err := logging.New(logging.Options{
				Level:    cfg.LogLevel,
				FilePath: cfg.LogFile,
				Stderr:   true,
			})
			if err != nil {
				return err
			}
			defer closer.Close()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			return supervisor.New(cfg, log).Run(ctx)
		},
	}

	settings.RegisterFlags(cmd.Flags())
	cmd.Flags().String("config", "", "path to a config file (TOML/YAML/JSON)")

	return cmd
}
