/*
 * MIT License
 *
 * Copyright (c) 2024 Nicolas JUHEL
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
 *
 *
 */

// Command statsexport ingests statsd lines over UDP or a unix datagram
// socket, re-exposes them as Prometheus series on an HTTP /metrics
// endpoint, and optionally fans every accepted line out to a NATS subject
// for a second consumer.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	liblog "github.com/nabbar/golib/logger"
	loglvl "github.com/nabbar/golib/logger/level"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	spfcbr "github.com/spf13/cobra"

	"github.com/sabouaram/netproxy/cmd/internal/buildinfo"
	"github.com/sabouaram/netproxy/cmd/internal/daemonflags"
	libcbr "github.com/sabouaram/netproxy/cobra"
	"github.com/sabouaram/netproxy/stats"
)

func main() {
	app := libcbr.New()
	app.SetVersion(buildinfo.New("statsexport", "statsd-to-Prometheus metrics bridge"))

	var log liblog.Logger
	var cm *daemonflags.Common
	app.SetFuncInit(func() {
		log = liblog.New(context.Background())
		log.SetLevel(cm.LogLevel())
	})
	app.SetLogger(func() liblog.Logger { return log })
	app.Init()

	cm = daemonflags.Register(app)

	app.Cobra().RunE = func(_ *spfcbr.Command, _ []string) error {
		return run(cm, log)
	}

	if err := app.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "statsexport:", err)
		os.Exit(1)
	}
}

func run(cm *daemonflags.Common, log liblog.Logger) error {
	cfg, err := loadConfig(cm.ConfigFile)
	if err != nil {
		return err
	}
	if cm.TestConfig {
		fmt.Println("statsexport: configuration OK")
		return nil
	}

	var nc *nats.Conn
	if cfg.NATS != nil && cfg.NATS.URL != "" {
		nc, err = nats.Connect(cfg.NATS.URL)
		if err != nil {
			return fmt.Errorf("connecting to nats: %w", err)
		}
		defer nc.Close()
	}

	pc, err := net.ListenPacket(cfg.StatsdNetwork, cfg.StatsdAddr)
	if err != nil {
		return fmt.Errorf("listening on %s %q: %w", cfg.StatsdNetwork, cfg.StatsdAddr, err)
	}
	defer pc.Close()

	bridge := stats.NewPrometheusBridge()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(bridge.Registry(), promhttp.HandlerOpts{}))
	httpSrv := &http.Server{Addr: cfg.MetricsListen, Handler: mux}

	go func() {
		if serr := httpSrv.ListenAndServe(); serr != nil && serr != http.ErrServerClosed {
			log.Entry(loglvl.ErrorLevel, "statsexport: metrics server stopped").ErrorAdd(true, serr).Log()
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		cancel()
		_ = pc.Close()
		_ = httpSrv.Close()
	}()

	log.Entry(loglvl.InfoLevel, "statsexport: ingesting").
		FieldAdd("statsd_addr", cfg.StatsdAddr).
		FieldAdd("metrics_listen", cfg.MetricsListen).
		Log()

	buf := make([]byte, 65535)
	for {
		n, _, rerr := pc.ReadFrom(buf)
		if rerr != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("reading datagram: %w", rerr)
		}
		ingest(buf[:n], bridge, nc, cfg, log)
	}
}

func ingest(datagram []byte, bridge *stats.PrometheusBridge, nc *nats.Conn, cfg Config, log liblog.Logger) {
	lines := splitLines(datagram)
	for _, line := range lines {
		if len(line) == 0 {
			continue
		}
		sample, perr := stats.ParseStatsdLine(string(line))
		if perr != nil {
			log.Entry(loglvl.WarnLevel, "statsexport: dropping malformed line").ErrorAdd(true, perr).Log()
			continue
		}
		bridge.Observe(sample)

		if nc != nil {
			_ = nc.Publish(cfg.NATS.Subject, line)
		}
	}
}

func splitLines(b []byte) [][]byte {
	var lines [][]byte
	start := 0
	for i, c := range b {
		if c == '\n' {
			lines = append(lines, b[start:i])
			start = i + 1
		}
	}
	if start < len(b) {
		lines = append(lines, b[start:])
	}
	return lines
}
