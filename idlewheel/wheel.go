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

// Package idlewheel implements the coarse-grained ticking wheel from spec
// §4.2: every active transfer registers a handle, and on each tick the
// wheel advances idle accounting, aborting transfers that stay idle for
// max_idle_count consecutive ticks.
package idlewheel

import (
	"sync"
	"sync/atomic"
	"time"

	liberr "github.com/sabouaram/netproxy/errors"
)

// Wheel is shared across every transfer running on one worker.
type Wheel struct {
	interval    time.Duration
	maxIdle     uint32
	mu          sync.Mutex
	handles     map[*Handle]struct{}
	closeCh     chan struct{}
	closeOnce   sync.Once
	tickCounter uint64
}

// New starts a Wheel ticking at the given interval (spec default ~1s).
func New(interval time.Duration) *Wheel {
	if interval <= 0 {
		interval = time.Second
	}
	w := &Wheel{
		interval: interval,
		handles:  make(map[*Handle]struct{}),
		closeCh:  make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *Wheel) run() {
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-w.closeCh:
			return
		case <-t.C:
			w.tick()
		}
	}
}

func (w *Wheel) tick() {
	atomic.AddUint64(&w.tickCounter, 1)

	w.mu.Lock()
	handles := make([]*Handle, 0, len(w.handles))
	for h := range w.handles {
		handles = append(handles, h)
	}
	w.mu.Unlock()

	for _, h := range handles {
		h.onTick()
	}
}

// Stop tears down the ticker goroutine; already-registered handles are
// unregistered and their abort channel is left unsignaled (caller-owned
// transfers are expected to be finishing independently by then).
func (w *Wheel) Stop() {
	w.closeOnce.Do(func() { close(w.closeCh) })
}

// Register returns a cheap handle tracking one transfer's idle state.
// maxIdleCount must be > 0.
func (w *Wheel) Register(maxIdleCount uint32) (*Handle, liberr.Error) {
	if maxIdleCount == 0 {
		return nil, ErrorMaxIdleZero.Error(nil)
	}

	h := &Handle{
		wheel:   w,
		maxIdle: maxIdleCount,
		abortCh: make(chan struct{}),
	}

	w.mu.Lock()
	w.handles[h] = struct{}{}
	w.mu.Unlock()

	return h, nil
}

func (w *Wheel) unregister(h *Handle) {
	w.mu.Lock()
	delete(w.handles, h)
	w.mu.Unlock()
}

// Handle is the cheap per-transfer registration token.
type Handle struct {
	wheel   *Wheel
	maxIdle uint32
	active  int32 // 0 = idle since last tick, 1 = touched since last tick
	idleCnt uint32
	aborted int32
	abortCh chan struct{}
}

// ResetActive marks the transfer as having done useful work since the last
// tick; its idle accumulator resets to zero.
func (h *Handle) ResetActive() {
	atomic.StoreInt32(&h.active, 1)
}

func (h *Handle) onTick() {
	if atomic.CompareAndSwapInt32(&h.active, 1, 0) {
		atomic.StoreUint32(&h.idleCnt, 0)
		return
	}

	n := atomic.AddUint32(&h.idleCnt, 1)
	if n > h.maxIdle {
		if atomic.CompareAndSwapInt32(&h.aborted, 0, 1) {
			close(h.abortCh)
		}
	}
}

// Aborted reports whether this transfer was abandoned by the wheel. The
// returned channel closes exactly once, at the tick where the deadline was
// crossed.
func (h *Handle) Aborted() <-chan struct{} {
	return h.abortCh
}

// IsAborted is a non-blocking check equivalent to reading from Aborted().
func (h *Handle) IsAborted() bool {
	return atomic.LoadInt32(&h.aborted) == 1
}

// Unregister drops this handle from the wheel; call when the transfer
// finishes on its own.
func (h *Handle) Unregister() {
	h.wheel.unregister(h)
}
