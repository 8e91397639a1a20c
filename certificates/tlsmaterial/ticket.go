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

// Package tlsmaterial builds the ready-to-use pieces a TLS interceptor or
// terminator needs beyond a bare crypto/tls.Config: rolling session-ticket
// encryption keys and a sharded session-resumption cache.
package tlsmaterial

import (
	"crypto/rand"
	"sync"
	"time"
)

// TicketKey is one session-ticket encryption key: a 16-byte name
// identifying it on the wire plus the 32-byte AES key backing it, good for
// Lifetime before it should no longer be used to issue new tickets.
type TicketKey struct {
	Name     [16]byte
	Key      [32]byte
	Lifetime time.Duration
}

// NewTicketKey draws a fresh random name and key.
func NewTicketKey(lifetime time.Duration) (TicketKey, error) {
	var k TicketKey
	k.Lifetime = lifetime
	if _, e := rand.Read(k.Name[:]); e != nil {
		return TicketKey{}, e
	}
	if _, e := rand.Read(k.Key[:]); e != nil {
		return TicketKey{}, e
	}
	return k, nil
}

// RollingTicketKeys is a rolling container of at most two session-ticket
// keys: the current key, used to both encrypt new tickets and decrypt
// incoming ones, and the previous key, kept only to decrypt tickets issued
// before the last rotation. Encryption always uses current; decryption
// tries current then previous, matching how crypto/tls.Config's own
// SetSessionTicketKeys orders its slice (first entry encrypts).
type RollingTicketKeys struct {
	mu       sync.RWMutex
	current  TicketKey
	previous *TicketKey
}

// NewRollingTicketKeys seeds the container with a single fresh key.
func NewRollingTicketKeys(lifetime time.Duration) (*RollingTicketKeys, error) {
	k, e := NewTicketKey(lifetime)
	if e != nil {
		return nil, e
	}
	return &RollingTicketKeys{current: k}, nil
}

// Rotate draws a fresh key, demoting the current one to previous.
func (r *RollingTicketKeys) Rotate() error {
	next, e := NewTicketKey(r.current.Lifetime)
	if e != nil {
		return e
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.current
	r.previous = &prev
	r.current = next
	return nil
}

// Expired reports whether the current key has outlived its Lifetime since
// rotatedAt, signalling the caller should Rotate.
func (r *RollingTicketKeys) Expired(rotatedAt time.Time) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current.Lifetime > 0 && time.Since(rotatedAt) > r.current.Lifetime
}

// Keys returns the keys in crypto/tls.Config.SetSessionTicketKeys order:
// current first (so it both encrypts and decrypts), previous second (so it
// can still decrypt, never encrypt).
func (r *RollingTicketKeys) Keys() [][32]byte {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.previous == nil {
		return [][32]byte{r.current.Key}
	}
	return [][32]byte{r.current.Key, r.previous.Key}
}

// RotateEvery starts a goroutine that rotates the key set on every tick of
// interval, stopping when stop is closed.
func (r *RollingTicketKeys) RotateEvery(interval time.Duration, stop <-chan struct{}) {
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				_ = r.Rotate()
			case <-stop:
				return
			}
		}
	}()
}
