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

package task

import (
	"context"
	"io"
	"net"

	"golang.org/x/sync/errgroup"

	"github.com/sabouaram/netproxy/copier"
	"github.com/sabouaram/netproxy/idlewheel"
	"github.com/sabouaram/netproxy/ratelimit"
)

const relayBufferSize = 32 * 1024

// LimitedCopy moves bytes from src to dst through a rate limiter, marking
// the idle-wheel handle active on every non-empty read. A nil limiter or
// nil handle simply disables the corresponding behavior.
func LimitedCopy(dst io.Writer, src io.Reader, limiter *ratelimit.Limiter, idle *idlewheel.Handle) (int64, error) {
	lw := &copier.LimitedWriter{Dst: dst, Limiter: limiter}
	buf := make([]byte, relayBufferSize)
	var total int64

	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			if idle != nil {
				idle.ResetActive()
			}
			w, werr := lw.Write(buf[:n])
			total += int64(w)
			if werr != nil {
				return total, werr
			}
		}
		if rerr == io.EOF {
			return total, nil
		}
		if rerr != nil {
			return total, rerr
		}
	}
}

// RelayResult carries the byte counts from one Relay call.
type RelayResult struct {
	BytesToUpstream   int64
	BytesFromUpstream int64
}

// Relay drives StageRelaying: two LimitedCopy futures sharing one
// idle-wheel handle, racing to first error or to both sides reaching a
// graceful EOF. Either side returning first tears down both halves of
// the connection pair so the other copy observes EOF or a
// connection-reset read error rather than hanging.
func Relay(ctx context.Context, client, upstream net.Conn, toUpstream, toClient *ratelimit.Limiter, idle *idlewheel.Handle) (RelayResult, error) {
	g, _ := errgroup.WithContext(ctx)
	var result RelayResult

	g.Go(func() error {
		defer closeWrite(upstream)
		n, err := LimitedCopy(upstream, client, toUpstream, idle)
		result.BytesToUpstream = n
		return err
	})

	g.Go(func() error {
		defer closeWrite(client)
		n, err := LimitedCopy(client, upstream, toClient, idle)
		result.BytesFromUpstream = n
		return err
	})

	err := g.Wait()
	return result, err
}

// closeWrite half-closes the write side of conn if it supports it,
// signalling EOF to the peer without tearing down the read side the
// other relay goroutine may still be using.
func closeWrite(conn net.Conn) {
	type writeCloser interface {
		CloseWrite() error
	}
	if wc, ok := conn.(writeCloser); ok {
		_ = wc.CloseWrite()
		return
	}
	_ = conn.Close()
}
