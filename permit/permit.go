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

// Package permit bounds the number of in-flight tasks a single user (or
// the process as a whole) may hold open at once, surfacing the result as
// a task.AlivePermit. It is a thin adapter over
// github.com/nabbar/golib/semaphore's weighted worker slots: this
// package owns no concurrency primitive of its own, only the mapping
// from "acquire a slot for this request" to the Release-once contract
// task.Notes expects.
package permit

import (
	"context"

	libsem "github.com/nabbar/golib/semaphore"

	"github.com/sabouaram/netproxy/task"
)

// Limiter bounds concurrent tasks to at most n at a time. A zero or
// negative n means unlimited: Acquire always succeeds immediately and
// returns a no-op permit.
type Limiter struct {
	sem libsem.Semaphore
}

// NewLimiter builds a Limiter allowing at most n concurrent permits.
// withProgress forwards to libsem.New and enables its optional MPB
// progress bar, useful for a cmd/*d foreground/debug run.
func NewLimiter(ctx context.Context, n int64, withProgress bool) *Limiter {
	if n <= 0 {
		return &Limiter{}
	}
	return &Limiter{sem: libsem.New(ctx, n, withProgress)}
}

// Acquire blocks until a slot is free or ctx is done, returning a
// task.AlivePermit whose Release gives the slot back. Safe to call on a
// nil *Limiter or an unlimited one: both return an always-succeeding
// no-op permit.
//
// The underlying Semaphore binds its own context at construction and
// has no per-call cancellation, so a caller that gives up waits in a
// background goroutine for the slot it will never use; once granted,
// that goroutine releases it immediately rather than leaking it for
// the life of the process.
func (l *Limiter) Acquire(ctx context.Context) (task.AlivePermit, error) {
	if l == nil || l.sem == nil {
		return noopPermit{}, nil
	}

	done := make(chan error, 1)
	go func() { done <- l.sem.NewWorker() }()

	select {
	case err := <-done:
		if err != nil {
			return nil, err
		}
		return &workerPermit{sem: l.sem}, nil
	case <-ctx.Done():
		go func() {
			if err := <-done; err == nil {
				l.sem.DeferWorker()
			}
		}()
		return nil, ctx.Err()
	}
}

// TryAcquire is the non-blocking counterpart to Acquire: it returns
// (nil, false) immediately instead of waiting when every slot is held.
func (l *Limiter) TryAcquire() (task.AlivePermit, bool) {
	if l == nil || l.sem == nil {
		return noopPermit{}, true
	}
	if !l.sem.NewWorkerTry() {
		return nil, false
	}
	return &workerPermit{sem: l.sem}, true
}

// Close releases every outstanding slot, for use at process shutdown.
func (l *Limiter) Close() {
	if l != nil && l.sem != nil {
		l.sem.DeferMain()
	}
}

// Capacity reports the configured concurrency bound, or -1 when
// unlimited.
func (l *Limiter) Capacity() int64 {
	if l == nil || l.sem == nil {
		return -1
	}
	return l.sem.Weighted()
}

type workerPermit struct {
	sem libsem.Semaphore
}

func (p *workerPermit) Release() {
	p.sem.DeferWorker()
}

type noopPermit struct{}

func (noopPermit) Release() {}
