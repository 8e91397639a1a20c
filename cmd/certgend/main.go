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

// Command certgend answers cert-agent datagrams with mimicked leaf
// certificates signed by a locally held CA, so an inspecting escaper can
// terminate TLS under a certificate that looks like the real one.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	liblog "github.com/nabbar/golib/logger"
	loglvl "github.com/nabbar/golib/logger/level"
	spfcbr "github.com/spf13/cobra"

	"github.com/sabouaram/netproxy/certagent"
	"github.com/sabouaram/netproxy/cmd/internal/buildinfo"
	"github.com/sabouaram/netproxy/cmd/internal/daemonflags"
	libcbr "github.com/sabouaram/netproxy/cobra"
)

func main() {
	app := libcbr.New()
	app.SetVersion(buildinfo.New("certgend", "cert-agent mimicking leaf-certificate daemon"))

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
		fmt.Fprintln(os.Stderr, "certgend:", err)
		os.Exit(1)
	}
}

func run(cm *daemonflags.Common, log liblog.Logger) error {
	cfg, err := loadConfig(cm.ConfigFile)
	if err != nil {
		return err
	}
	if cm.TestConfig {
		fmt.Println("certgend: configuration OK")
		return nil
	}

	ca := mustLoadCA(cfg.CACertFile, cfg.CAKeyFile)

	udpAddr, err := net.ResolveUDPAddr("udp", cfg.Listen)
	if err != nil {
		return fmt.Errorf("resolving listen address %q: %w", cfg.Listen, err)
	}

	getLog := func() liblog.Logger { return log }

	agent, aerr := certagent.NewAgent(udpAddr, func(ctx context.Context, req certagent.GenerateRequest) (certagent.GenerateResult, error) {
		return ca.mint(ctx, req, cfg.LeafTTL)
	}, getLog)
	if aerr != nil {
		return fmt.Errorf("starting cert agent: %w", aerr)
	}
	defer agent.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		cancel()
	}()

	log.Entry(loglvl.InfoLevel, "certgend: listening").FieldAdd("addr", agent.LocalAddr().String()).Log()

	if serr := agent.Serve(ctx); serr != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("serving: %w", serr)
	}
	return nil
}
