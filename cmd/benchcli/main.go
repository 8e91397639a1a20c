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

// Command benchcli drives load against a running proxyd front door: it
// opens a configurable number of concurrent SOCKS5 sessions against
// --target, round-trips a fixed payload through each, and prints latency
// and throughput once --requests sessions have completed.
package main

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	spfcbr "github.com/spf13/cobra"

	"github.com/sabouaram/netproxy/cmd/internal/buildinfo"
	libcbr "github.com/sabouaram/netproxy/cobra"
	"github.com/sabouaram/netproxy/stats"
)

func main() {
	app := libcbr.New()
	app.SetVersion(buildinfo.New("benchcli", "SOCKS5 load/benchmark client"))
	app.Init()

	var (
		proxyAddr   string
		upstream    string
		concurrency int
		requests    int
		payloadSize int
		timeout     time.Duration
	)

	app.AddFlagString(false, &proxyAddr, "target", "t", "127.0.0.1:1080", "SOCKS5 proxy address to drive load against")
	app.AddFlagString(false, &upstream, "upstream", "u", "127.0.0.1:7", "upstream host:port requested through the proxy (default: echo)")
	app.AddFlagInt(false, &concurrency, "concurrency", "c", 8, "number of concurrent sessions")
	app.AddFlagInt(false, &requests, "requests", "n", 100, "total number of sessions to run")
	app.AddFlagInt(false, &payloadSize, "payload-size", "s", 64, "bytes written and echoed per session")
	app.AddFlagDuration(false, &timeout, "timeout", "", 10*time.Second, "per-session deadline")

	app.Cobra().RunE = func(_ *spfcbr.Command, _ []string) error {
		return run(proxyAddr, upstream, concurrency, requests, payloadSize, timeout)
	}

	if err := app.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "benchcli:", err)
		os.Exit(1)
	}
}

func run(proxyAddr, upstream string, concurrency, requests, payloadSize int, timeout time.Duration) error {
	if concurrency <= 0 {
		concurrency = 1
	}
	if requests <= 0 {
		return fmt.Errorf("--requests must be positive")
	}

	conn := stats.NewConn()
	var failures int64

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for i := 0; i < requests; i++ {
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			if err := runOne(ctx, proxyAddr, upstream, payloadSize, conn); err != nil {
				atomic.AddInt64(&failures, 1)
			}
		}()
	}
	wg.Wait()

	fmt.Printf("requests: %d  failures: %d\n", requests, failures)
	fmt.Printf("connect attempts: %d  successes: %d\n", conn.Attempts(), conn.Successes())
	fmt.Printf("bytes out: %d  bytes in: %d\n", conn.BytesOut(), conn.BytesIn())
	fmt.Printf("dial latency p50=%dus p99=%dus\n", conn.DialLatencyPercentile(50), conn.DialLatencyPercentile(99))
	return nil
}
