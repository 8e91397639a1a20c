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

package pool

import (
	"net"
	"sync/atomic"
	"time"
)

// Conn is the minimal capability a pooled value must offer: a pool only
// ever needs to read (to watch for EOF) and close a member.
type Conn interface {
	net.Conn
}

// eofWatcher spawns a single goroutine per idle Connection that blocks on a
// 1-byte Read: the reference implementation's "EofWatcher" detects a peer
// closing or half-closing an idle keep-alive before it is ever handed back
// out for reuse.
type eofWatcher struct {
	fired int32
	done  chan struct{}
}

func startEOFWatcher(c Conn) *eofWatcher {
	w := &eofWatcher{done: make(chan struct{})}

	go func() {
		defer close(w.done)

		buf := make([]byte, 1)
		n, err := c.Read(buf)
		if n > 0 {
			// Peer sent data while the connection sat idle in the pool: the
			// protocol invariant is broken, the connection can't be trusted.
			w.mark()
			return
		}
		if err == nil {
			return
		}
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			// Our own reclaim forced the deadline; not a real fire.
			return
		}
		w.mark()
	}()

	return w
}

func (w *eofWatcher) mark() {
	atomic.StoreInt32(&w.fired, 1)
}

// Fired reports whether the watched connection produced unexpected data or
// an error (including EOF) while idle, meaning it must never be reused.
func (w *eofWatcher) Fired() bool {
	return atomic.LoadInt32(&w.fired) == 1
}

// reclaim forces the watcher's blocked Read to return by setting a deadline
// in the past, then waits for the watcher goroutine to actually observe it
// and exit, so the pool never hands a connection to a new caller while the
// watcher might still be mid-Read on it.
func reclaim(c Conn, w *eofWatcher) {
	_ = c.SetReadDeadline(time.Now())
	<-w.done
	_ = c.SetReadDeadline(time.Time{})
}

type entry[V Conn] struct {
	conn       V
	watcher    *eofWatcher
	enqueuedAt time.Time
	reuseCount uint32
}
