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

// Command proxyd is the forward-proxy daemon: it accepts SOCKS5 clients,
// evaluates them against the ACL, dials out through a direct egress escaper
// and relays bytes until either side closes, all while exposing a UNIX
// control socket for operational commands.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"

	liblog "github.com/nabbar/golib/logger"
	loglvl "github.com/nabbar/golib/logger/level"
	spfcbr "github.com/spf13/cobra"

	"github.com/sabouaram/netproxy/addr"
	"github.com/sabouaram/netproxy/cmd/internal/buildinfo"
	"github.com/sabouaram/netproxy/cmd/internal/daemonflags"
	libcbr "github.com/sabouaram/netproxy/cobra"
	"github.com/sabouaram/netproxy/control"
	"github.com/sabouaram/netproxy/escaper"
	"github.com/sabouaram/netproxy/escaper/direct"
	"github.com/sabouaram/netproxy/idlewheel"
	"github.com/sabouaram/netproxy/permit"
	"github.com/sabouaram/netproxy/pool"
	"github.com/sabouaram/netproxy/ratelimit"
	"github.com/sabouaram/netproxy/resolver"
	"github.com/sabouaram/netproxy/socks5"
	"github.com/sabouaram/netproxy/stats"
	"github.com/sabouaram/netproxy/task"
)

func main() {
	app := libcbr.New()
	app.SetVersion(buildinfo.New("proxyd", "SOCKS5 forward-proxy daemon"))

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
		fmt.Fprintln(os.Stderr, "proxyd:", err)
		os.Exit(1)
	}
}

func run(cm *daemonflags.Common, log liblog.Logger) error {
	cfg, err := loadConfig(cm.ConfigFile)
	if err != nil {
		return err
	}
	if cm.TestConfig {
		fmt.Println("proxyd: configuration OK")
		return nil
	}

	resolv := resolver.New(context.Background(), resolver.Config{
		QueryTimeout:   cfg.Resolver.QueryTimeout,
		NegativeMinTTL: cfg.Resolver.NegativeMinTTL,
		PositiveTTL:    cfg.Resolver.PositiveTTL,
		PreferIPv6:     cfg.Resolver.PreferIPv6,
	})

	connPool := pool.New[string, net.Conn](pool.Config{
		IdleExpire:    cfg.Pool.IdleExpire,
		MaxIdlePerKey: cfg.Pool.MaxIdlePerKey,
		ReuseLimit:    cfg.Pool.ReuseLimit,
	})

	egressStats := stats.NewEscaper(cfg.Egress.Name)

	esc := direct.NewFixed(direct.FixedConfig{
		Name:        cfg.Egress.Name,
		Resolver:    resolv,
		Pool:        connPool,
		Stats:       egressStats,
		BindIPv4:    net.ParseIP(cfg.Egress.BindIPv4),
		BindIPv6:    net.ParseIP(cfg.Egress.BindIPv6),
		PreferIPv6:  cfg.Egress.PreferIPv6,
		DialTimeout: cfg.Egress.DialTimeout,
	})

	aclEngine, err := buildACL(cfg.ACL)
	if err != nil {
		return fmt.Errorf("building acl: %w", err)
	}

	wheel := idlewheel.New(cfg.IdleTickInterval)
	defer wheel.Stop()

	var limitUpstream, limitClient *ratelimit.Limiter
	if cfg.RateLimit.UpstreamMaxBytes > 0 {
		limitUpstream = ratelimit.New(cfg.RateLimit.UpstreamShiftMillis, cfg.RateLimit.UpstreamMaxBytes)
	}
	if cfg.RateLimit.ClientMaxBytes > 0 {
		limitClient = ratelimit.New(cfg.RateLimit.ClientShiftMillis, cfg.RateLimit.ClientMaxBytes)
	}

	getLog := func() liblog.Logger { return log }

	runner := task.New(task.Config{
		ACL:            aclEngine,
		Escaper:        esc,
		Stats:          egressStats,
		Wheel:          wheel,
		MaxIdleTicks:   cfg.MaxIdleTicks,
		ConnectTimeout: cfg.ConnectTimeout,
		LimitUpstream:  limitUpstream,
		LimitClient:    limitClient,
		Log:            getLog,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	limiter := permit.NewLimiter(ctx, cfg.MaxConcurrentTasks, false)
	defer limiter.Close()

	var auth socks5.Authenticator
	if cfg.Auth != nil {
		auth = authenticator(cfg.Auth.Users)
	}

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return fmt.Errorf("listening on %q: %w", cfg.Listen, err)
	}
	defer ln.Close()

	var offline atomic.Bool
	ctl, cerr := startControl(cm, log, &offline)
	if cerr != nil {
		return cerr
	}
	if ctl != nil {
		defer ctl.Close()
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		cancel()
		_ = ln.Close()
	}()

	log.Entry(loglvl.InfoLevel, "proxyd: listening").FieldAdd("addr", cfg.Listen).Log()

	var workerID int
	for {
		conn, aerr := ln.Accept()
		if aerr != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", aerr)
		}
		if offline.Load() {
			_ = conn.Close()
			continue
		}

		workerID++
		go handleConn(ctx, conn, workerID, runner, limiter, auth)
	}
}

func handleConn(ctx context.Context, conn net.Conn, workerID int, runner *task.Runner, limiter *permit.Limiter, auth socks5.Authenticator) {
	permitSlot, perr := limiter.Acquire(ctx)
	if perr != nil {
		_ = conn.Close()
		return
	}
	defer permitSlot.Release()

	req, herr := socks5.Handshake(conn, auth)
	if herr != nil {
		_ = socks5.WriteFailureReply(conn, socks5.ReplyGeneralFailure)
		_ = conn.Close()
		return
	}

	userCtx := &task.UserContext{AlivePermit: permitSlot}
	notes := task.NewNotes(conn.RemoteAddr(), conn.LocalAddr(), workerID, userCtx, 0)

	escReq := escaper.Request{
		Upstream:   req.Target,
		ClientAddr: conn.RemoteAddr(),
	}

	bindAddr, _ := addr.Parse(conn.LocalAddr().String())
	_ = runner.Run(ctx, conn, notes, escReq, socks5.NewReply(bindAddr))
}

func startControl(cm *daemonflags.Common, log liblog.Logger, offline *atomic.Bool) (*control.Server, error) {
	if cm.ControlDir == "" {
		return nil, nil
	}

	name := cm.GroupName
	if name == "" {
		name = "proxyd"
	}
	path := filepath.Join(cm.ControlDir, name+".sock")

	srv, err := control.New(path, 0600, -1, control.Handlers{
		Version: func() string { return "proxyd" },
		Offline: func() error {
			offline.Store(true)
			return nil
		},
		ReleaseController: func() error {
			offline.Store(false)
			return nil
		},
		CancelShutdown: func() error {
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("starting control socket: %w", err)
	}

	go func() {
		if lerr := srv.Listen(context.Background()); lerr != nil && log != nil {
			log.Entry(loglvl.WarnLevel, "proxyd: control socket stopped").ErrorAdd(true, lerr).Log()
		}
	}()

	return srv, nil
}

func authenticator(users map[string]string) socks5.Authenticator {
	return socks5.AuthenticatorFunc(func(user, pass string) bool {
		want, ok := users[user]
		return ok && want == pass
	})
}
