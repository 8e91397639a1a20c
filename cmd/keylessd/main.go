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

// Command keylessd answers Cloudflare-style keyless-signing requests: each
// accepted connection is handed to a keyless.Handler backed by a key store
// loaded from the configured certificate/key pairs.
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

	"github.com/sabouaram/netproxy/cmd/internal/buildinfo"
	"github.com/sabouaram/netproxy/cmd/internal/daemonflags"
	libcbr "github.com/sabouaram/netproxy/cobra"
	"github.com/sabouaram/netproxy/keyless"
)

func main() {
	app := libcbr.New()
	app.SetVersion(buildinfo.New("keylessd", "keyless RSA/ECDSA signing daemon"))

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
		fmt.Fprintln(os.Stderr, "keylessd:", err)
		os.Exit(1)
	}
}

func run(cm *daemonflags.Common, log liblog.Logger) error {
	cfg, err := loadConfig(cm.ConfigFile)
	if err != nil {
		return err
	}
	if cm.TestConfig {
		fmt.Println("keylessd: configuration OK")
		return nil
	}

	store, err := buildStore(cfg.Keys)
	if err != nil {
		return fmt.Errorf("loading keys: %w", err)
	}

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return fmt.Errorf("listening on %q: %w", cfg.Listen, err)
	}
	defer ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		cancel()
		_ = ln.Close()
	}()

	getLog := func() liblog.Logger { return log }

	log.Entry(loglvl.InfoLevel, "keylessd: listening").FieldAdd("addr", cfg.Listen).Log()

	for {
		conn, aerr := ln.Accept()
		if aerr != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", aerr)
		}
		go serve(conn, store, getLog)
	}
}

func serve(conn net.Conn, store *keyless.KeyStore, getLog func() liblog.Logger) {
	defer conn.Close()

	h := &keyless.Handler{Store: store, Log: getLog}
	if herr := h.Serve(conn); herr != nil {
		getLog().Entry(loglvl.WarnLevel, "keylessd: connection closed").ErrorAdd(true, herr).Log()
	}
}
