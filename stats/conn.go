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

package stats

import (
	"sync/atomic"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Conn tracks per-pool-key byte counts, connection attempts and reuse
// counts, plus a dial-latency histogram.
type Conn struct {
	bytesIn     int64
	bytesOut    int64
	attempts    int64
	successes   int64
	reuseTotal  int64
	dialLatency *hdrhistogram.Histogram
}

func NewConn() *Conn {
	return &Conn{dialLatency: hdrhistogram.New(1, 60_000_000, 3)}
}

func (c *Conn) AddBytesIn(n int64)  { atomic.AddInt64(&c.bytesIn, n) }
func (c *Conn) AddBytesOut(n int64) { atomic.AddInt64(&c.bytesOut, n) }
func (c *Conn) Attempt()            { atomic.AddInt64(&c.attempts, 1) }
func (c *Conn) Success()            { atomic.AddInt64(&c.successes, 1) }
func (c *Conn) RecordReuse(count int64) {
	atomic.AddInt64(&c.reuseTotal, count)
}
func (c *Conn) RecordDialMicros(us int64) { _ = c.dialLatency.RecordValue(us) }

// DialLatencyPercentile returns the dial latency at the given percentile
// (0..100), in microseconds.
func (c *Conn) DialLatencyPercentile(p float64) int64 {
	return c.dialLatency.ValueAtPercentile(p)
}

func (c *Conn) BytesIn() int64    { return atomic.LoadInt64(&c.bytesIn) }
func (c *Conn) BytesOut() int64   { return atomic.LoadInt64(&c.bytesOut) }
func (c *Conn) Attempts() int64   { return atomic.LoadInt64(&c.attempts) }
func (c *Conn) Successes() int64  { return atomic.LoadInt64(&c.successes) }
func (c *Conn) ReuseTotal() int64 { return atomic.LoadInt64(&c.reuseTotal) }
