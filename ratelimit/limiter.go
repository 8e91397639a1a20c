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

// Package ratelimit implements the scheduled byte limiter: a single-owner
// token-bucket-like limiter bounding throughput so that within
// any window of 2^shift milliseconds, at most max_bytes pass.
package ratelimit

import (
	"sync/atomic"
	"time"
)

// Decision is the result of a Check call.
type Decision struct {
	// Advance is the number of bytes the caller may move right now (may be
	// less than requested, never more).
	Advance int64
	// Delay is non-zero when the caller must wait before moving any bytes
	// this slot; Advance is always 0 when Delay is non-zero.
	Delay time.Duration
}

// Limiter bounds throughput to at most MaxBytes within any window of
// 2^Shift milliseconds. A Limiter has a single owner (one reader or one
// writer half of a connection) and is not safe for concurrent use from
// multiple goroutines without external synchronization.
type Limiter struct {
	shift    uint8
	maxBytes int64

	slotStart  int64 // ms boundary of the current slot
	usedInSlot int64
}

// New builds a Limiter. shiftMillis of 0 disables limiting (Check always
// returns the full wanted amount).
func New(shiftMillis uint8, maxBytes int64) *Limiter {
	return &Limiter{shift: shiftMillis, maxBytes: maxBytes}
}

func (l *Limiter) slotMillis() int64 {
	return int64(1) << l.shift
}

// Disabled reports whether this limiter passes everything unconditionally.
func (l *Limiter) Disabled() bool {
	return l.shift == 0 || l.maxBytes <= 0
}

// Check evaluates the limiter at nowMs for a caller wanting to move wanted
// bytes. On a slot boundary crossing the accumulator resets before the
// bound is applied, so bursts within one slot are permitted and windows
// never overlap by more than one slot.
func (l *Limiter) Check(nowMs int64, wanted int64) Decision {
	if l.Disabled() {
		return Decision{Advance: wanted}
	}

	slot := l.slotMillis()
	boundary := (nowMs / slot) * slot

	if boundary != l.slotStart {
		l.slotStart = boundary
		l.usedInSlot = 0
	}

	remaining := l.maxBytes - l.usedInSlot
	if remaining <= 0 {
		next := l.slotStart + slot
		return Decision{Delay: time.Duration(next-nowMs) * time.Millisecond}
	}

	advance := wanted
	if advance > remaining {
		advance = remaining
	}

	return Decision{Advance: advance}
}

// SetAdvance records that the caller actually moved n bytes after a Check
// that granted AdvanceBy; it must be called with n <= the last Advance.
func (l *Limiter) SetAdvance(n int64) {
	if l.Disabled() {
		return
	}
	atomic.AddInt64(&l.usedInSlot, n)
}

// Reconfigure changes the limiter's parameters; the next Check recomputes
// the slot boundary from scratch.
func (l *Limiter) Reconfigure(shiftMillis uint8, maxBytes int64) {
	l.shift = shiftMillis
	l.maxBytes = maxBytes
	l.slotStart = 0
	l.usedInSlot = 0
}
