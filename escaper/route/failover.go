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

package route

import (
	"context"
	"crypto/tls"
	"net"
	"time"

	liberr "github.com/sabouaram/netproxy/errors"
	"github.com/sabouaram/netproxy/escaper"
)

// FailoverConfig configures a route-failover escaper.
type FailoverConfig struct {
	Name          string
	Primary       escaper.Escaper
	Secondary     escaper.Escaper
	FallbackDelay time.Duration
}

// Failover races the primary escaper against a delayed attempt on the
// secondary: tries the primary escaper first, and on error or timeout
// falls back to the secondary, which starts after fallback_delay. Unlike
// the other route variants, Failover does not just pick a name to
// delegate to: the race is per-operation, so it implements the connect
// methods itself and reports itself as the terminal escaper.
type Failover struct {
	escaper.Base
	cfg FailoverConfig
}

func NewFailover(cfg FailoverConfig) *Failover {
	if cfg.FallbackDelay <= 0 {
		cfg.FallbackDelay = 200 * time.Millisecond
	}
	return &Failover{cfg: cfg}
}

func (f *Failover) Name() string { return f.cfg.Name }

func (f *Failover) Capabilities() escaper.Capability {
	return f.cfg.Primary.Capabilities() | f.cfg.Secondary.Capabilities()
}

func (f *Failover) CheckOutNextEscaper(_ context.Context, _ escaper.Request, _ *escaper.AuditContext) (escaper.Escaper, liberr.Error) {
	return f, nil
}

type raceResult[T any] struct {
	val T
	err liberr.Error
}

// race runs primary immediately and, if it has not produced a result
// within cfg.FallbackDelay, also starts secondary; the first success wins
// and the loser's result (if it arrives later) is discarded. If both fail,
// the primary's error is reported alongside ErrorBothFailed.
func race[T any](ctx context.Context, delay time.Duration, primary, secondary func() (T, liberr.Error)) (T, liberr.Error) {
	primaryCh := make(chan raceResult[T], 1)
	secondaryCh := make(chan raceResult[T], 1)

	go func() {
		v, e := primary()
		primaryCh <- raceResult[T]{val: v, err: e}
	}()

	timer := time.NewTimer(delay)
	defer timer.Stop()

	var primaryDone, secondaryStarted bool
	var primaryErr liberr.Error

	for {
		select {
		case r := <-primaryCh:
			if r.err == nil {
				return r.val, nil
			}
			primaryDone = true
			primaryErr = r.err
			if !secondaryStarted {
				secondaryStarted = true
				go func() {
					v, e := secondary()
					secondaryCh <- raceResult[T]{val: v, err: e}
				}()
			}
		case <-timer.C:
			if !secondaryStarted {
				secondaryStarted = true
				go func() {
					v, e := secondary()
					secondaryCh <- raceResult[T]{val: v, err: e}
				}()
			}
		case r := <-secondaryCh:
			if r.err == nil {
				return r.val, nil
			}
			if primaryDone {
				var zero T
				return zero, ErrorBothFailed.Error(primaryErr)
			}
			// secondary failed before primary finished: keep waiting on primary.
		case <-ctx.Done():
			var zero T
			return zero, ErrorBothFailed.Error(ctx.Err())
		}
	}
}

func (f *Failover) TCPSetupConnection(ctx context.Context, req escaper.Request, audit *escaper.AuditContext) (net.Conn, liberr.Error) {
	return race(ctx, f.cfg.FallbackDelay,
		func() (net.Conn, liberr.Error) { return f.cfg.Primary.TCPSetupConnection(ctx, req, audit) },
		func() (net.Conn, liberr.Error) { return f.cfg.Secondary.TCPSetupConnection(ctx, req, audit) },
	)
}

func (f *Failover) TLSSetupConnection(ctx context.Context, req escaper.Request, audit *escaper.AuditContext, cfg *tls.Config) (net.Conn, liberr.Error) {
	return race(ctx, f.cfg.FallbackDelay,
		func() (net.Conn, liberr.Error) { return f.cfg.Primary.TLSSetupConnection(ctx, req, audit, cfg) },
		func() (net.Conn, liberr.Error) { return f.cfg.Secondary.TLSSetupConnection(ctx, req, audit, cfg) },
	)
}

func (f *Failover) HTTPForwardNewConnection(ctx context.Context, req escaper.Request, audit *escaper.AuditContext) (net.Conn, liberr.Error) {
	return race(ctx, f.cfg.FallbackDelay,
		func() (net.Conn, liberr.Error) { return f.cfg.Primary.HTTPForwardNewConnection(ctx, req, audit) },
		func() (net.Conn, liberr.Error) { return f.cfg.Secondary.HTTPForwardNewConnection(ctx, req, audit) },
	)
}

func (f *Failover) HTTPSForwardNewConnection(ctx context.Context, req escaper.Request, audit *escaper.AuditContext, cfg *tls.Config) (net.Conn, liberr.Error) {
	return race(ctx, f.cfg.FallbackDelay,
		func() (net.Conn, liberr.Error) { return f.cfg.Primary.HTTPSForwardNewConnection(ctx, req, audit, cfg) },
		func() (net.Conn, liberr.Error) { return f.cfg.Secondary.HTTPSForwardNewConnection(ctx, req, audit, cfg) },
	)
}

func (f *Failover) FTPNewConnection(ctx context.Context, req escaper.Request, audit *escaper.AuditContext) (net.Conn, liberr.Error) {
	return race(ctx, f.cfg.FallbackDelay,
		func() (net.Conn, liberr.Error) { return f.cfg.Primary.FTPNewConnection(ctx, req, audit) },
		func() (net.Conn, liberr.Error) { return f.cfg.Secondary.FTPNewConnection(ctx, req, audit) },
	)
}
