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

// Package stats implements the atomic-counter + HDR-histogram statistics
// for escapers and connections: shared by reference count, hot-swappable
// extra tags, process lifetime.
package stats

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// ForbiddenReason enumerates the ACL/task rejection subcounters from §3.
type ForbiddenReason uint8

const (
	ForbiddenAuthFailed ForbiddenReason = iota
	ForbiddenUserExpired
	ForbiddenRateLimited
	ForbiddenProtoBanned
	ForbiddenDestDenied
	ForbiddenIPBlocked
	ForbiddenUABlocked
	ForbiddenLogSkipped

	forbiddenReasonCount
)

// Escaper holds the atomic counters and latency histograms for one escaper
// node. Lifetime is the process lifetime of the escaper; it is shared via
// reference count (Retain/Release) and its ExtraTags can be hot-swapped.
type Escaper struct {
	name string

	tasksTotal int64
	tasksAlive int64
	passed     int64
	failed     int64

	connAttempt int64
	connSuccess int64

	tcpIn  int64
	tcpOut int64
	udpIn  int64
	udpOut int64

	forbidden [forbiddenReasonCount]int64

	refcount int64

	mu      sync.RWMutex
	extra   map[string]string
	latency *hdrhistogram.Histogram
}

// NewEscaper builds a fresh stats block. lowest/highest/sigFigs follow the
// usual HdrHistogram construction triple (in microseconds of latency).
func NewEscaper(name string) *Escaper {
	return &Escaper{
		name:    name,
		extra:   map[string]string{},
		latency: hdrhistogram.New(1, 60_000_000, 3),
	}
}

func (e *Escaper) Retain()  { atomic.AddInt64(&e.refcount, 1) }
func (e *Escaper) Release() int64 {
	return atomic.AddInt64(&e.refcount, -1)
}

func (e *Escaper) TaskStart() {
	atomic.AddInt64(&e.tasksTotal, 1)
	atomic.AddInt64(&e.tasksAlive, 1)
}

func (e *Escaper) TaskEnd(ok bool) {
	atomic.AddInt64(&e.tasksAlive, -1)
	if ok {
		atomic.AddInt64(&e.passed, 1)
	} else {
		atomic.AddInt64(&e.failed, 1)
	}
}

func (e *Escaper) ConnAttempt() { atomic.AddInt64(&e.connAttempt, 1) }
func (e *Escaper) ConnSuccess() { atomic.AddInt64(&e.connSuccess, 1) }

func (e *Escaper) AddTCPIn(n int64)  { atomic.AddInt64(&e.tcpIn, n) }
func (e *Escaper) AddTCPOut(n int64) { atomic.AddInt64(&e.tcpOut, n) }
func (e *Escaper) AddUDPIn(n int64)  { atomic.AddInt64(&e.udpIn, n) }
func (e *Escaper) AddUDPOut(n int64) { atomic.AddInt64(&e.udpOut, n) }

func (e *Escaper) Forbidden(reason ForbiddenReason) {
	if reason < forbiddenReasonCount {
		atomic.AddInt64(&e.forbidden[reason], 1)
	}
}

// RecordLatency records a request's end-to-end latency, in whole
// microseconds. A value beyond the configured histogram range is dropped
// (see ErrorHistogramRecord).
func (e *Escaper) RecordLatency(d time.Duration) {
	_ = e.latency.RecordValue(d.Microseconds())
}

// LatencyPercentile returns the latency at the given percentile (0..100),
// in microseconds.
func (e *Escaper) LatencyPercentile(p float64) int64 {
	return e.latency.ValueAtPercentile(p)
}

// SetExtraTag hot-swaps one extra tag without disturbing counters.
func (e *Escaper) SetExtraTag(k, v string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.extra[k] = v
}

func (e *Escaper) ExtraTags() map[string]string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]string, len(e.extra))
	for k, v := range e.extra {
		out[k] = v
	}
	return out
}

// Snapshot is a point-in-time, allocation-only view suitable for exporting
// to Prometheus or StatsD.
type Snapshot struct {
	Name              string
	TasksTotal        int64
	TasksAlive        int64
	Passed            int64
	Failed            int64
	ConnAttempt       int64
	ConnSuccess       int64
	TCPIn, TCPOut     int64
	UDPIn, UDPOut     int64
	Forbidden         [forbiddenReasonCount]int64
	LatencyP50        int64
	LatencyP99        int64
}

func (e *Escaper) Snapshot() Snapshot {
	s := Snapshot{
		Name:        e.name,
		TasksTotal:  atomic.LoadInt64(&e.tasksTotal),
		TasksAlive:  atomic.LoadInt64(&e.tasksAlive),
		Passed:      atomic.LoadInt64(&e.passed),
		Failed:      atomic.LoadInt64(&e.failed),
		ConnAttempt: atomic.LoadInt64(&e.connAttempt),
		ConnSuccess: atomic.LoadInt64(&e.connSuccess),
		TCPIn:       atomic.LoadInt64(&e.tcpIn),
		TCPOut:      atomic.LoadInt64(&e.tcpOut),
		UDPIn:       atomic.LoadInt64(&e.udpIn),
		UDPOut:      atomic.LoadInt64(&e.udpOut),
		LatencyP50:  e.LatencyPercentile(50),
		LatencyP99:  e.LatencyPercentile(99),
	}
	for i := range e.forbidden {
		s.Forbidden[i] = atomic.LoadInt64(&e.forbidden[i])
	}
	return s
}
