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

// Package copier implements the byte-copy engines: an HTTP/1.1
// chunked-transfer encoder and decoder, and an HTTP/2 body pump,
// both wired to the rate limiter and idle wheel shared by the rest of the
// relay path.
package copier

import (
	"io"
	"time"

	"github.com/sabouaram/netproxy/ratelimit"
)

// LimitedWriter wraps an io.Writer, consulting a ratelimit.Limiter before
// every write so a single connection leg cannot exceed its configured
// throughput bound. A nil Limiter (or one built with shift 0) disables
// limiting entirely.
type LimitedWriter struct {
	Dst     io.Writer
	Limiter *ratelimit.Limiter
	Sleep   func(time.Duration)
}

func (lw *LimitedWriter) sleep(d time.Duration) {
	if lw.Sleep != nil {
		lw.Sleep(d)
		return
	}
	time.Sleep(d)
}

// Write moves p to Dst in limiter-sized slices, blocking between slices
// whenever the limiter reports a delay.
func (lw *LimitedWriter) Write(p []byte) (int, error) {
	if lw.Limiter == nil || lw.Limiter.Disabled() {
		return lw.Dst.Write(p)
	}

	total := 0
	for total < len(p) {
		now := time.Now().UnixMilli()
		decision := lw.Limiter.Check(now, int64(len(p)-total))
		if decision.Delay > 0 {
			lw.sleep(decision.Delay)
			continue
		}
		if decision.Advance <= 0 {
			continue
		}
		n, err := lw.Dst.Write(p[total : total+int(decision.Advance)])
		lw.Limiter.SetAdvance(int64(n))
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
