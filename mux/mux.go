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

// Package mux multiplexes request/response pairs over a single duplex
// stream for protocols that frame their own messages (keyless, ICAP over
// a persistent connection): one sender task, one receiver
// task, correlated by a monotonic non-zero id.
package mux

import (
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	liberr "github.com/sabouaram/netproxy/errors"
)

// Framer knows how to serialize a request with its correlation id onto a
// stream, and how to parse the next framed response off a stream,
// returning the id it carries. Implementations live in the protocol
// packages that use this mux (keyless, icap).
type Framer interface {
	WriteRequest(w io.Writer, id uint32, payload []byte) error
	ReadResponse(r io.Reader) (id uint32, payload []byte, err error)
}

type pendingCall struct {
	respCh chan callResult
}

type callResult struct {
	payload []byte
	err     liberr.Error
}

type sendJob struct {
	id      uint32
	payload []byte
}

// Mux multiplexes requests over one net.Conn. Safe for concurrent Request
// calls from multiple goroutines.
type Mux struct {
	conn   net.Conn
	framer Framer

	nextID uint32

	mu      sync.Mutex
	pending map[uint32]*pendingCall
	closed  bool
	closeErr liberr.Error

	sendCh chan sendJob
	doneCh chan struct{}

	idleTimeout time.Duration
}

// New wraps conn with a Mux, spawning its sender and receiver goroutines.
// idleTimeout of 0 disables the idle-close behavior.
func New(conn net.Conn, framer Framer, idleTimeout time.Duration) *Mux {
	m := &Mux{
		conn:        conn,
		framer:      framer,
		pending:     make(map[uint32]*pendingCall),
		sendCh:      make(chan sendJob, 64),
		doneCh:      make(chan struct{}),
		idleTimeout: idleTimeout,
	}

	go m.senderLoop()
	go m.receiverLoop()

	return m
}

// Request allocates a monotonic non-zero request id, sends payload framed
// by the configured Framer, and blocks until the matching response
// arrives, the mux closes, or ctx-less callers can wrap this with their
// own timeout externally via the idle timeout / connection deadline.
func (m *Mux) Request(payload []byte) ([]byte, liberr.Error) {
	id := m.allocID()

	call := &pendingCall{respCh: make(chan callResult, 1)}

	m.mu.Lock()
	if m.closed {
		e := m.closeErr
		m.mu.Unlock()
		if e == nil {
			e = ErrorConnectionClosed.Error(nil)
		}
		return nil, e
	}
	m.pending[id] = call
	m.mu.Unlock()

	select {
	case m.sendCh <- sendJob{id: id, payload: payload}:
	case <-m.doneCh:
		m.dropPending(id)
		return nil, ErrorConnectionClosed.Error(nil)
	}

	select {
	case res := <-call.respCh:
		return res.payload, res.err
	case <-m.doneCh:
		m.dropPending(id)
		return nil, ErrorConnectionClosed.Error(nil)
	}
}

func (m *Mux) dropPending(id uint32) {
	m.mu.Lock()
	delete(m.pending, id)
	m.mu.Unlock()
}

// allocID returns the next monotonic request id, wrapping past zero
// (reserved to mean "no id") back to 1.
func (m *Mux) allocID() uint32 {
	for {
		id := atomic.AddUint32(&m.nextID, 1)
		if id != 0 {
			return id
		}
	}
}

func (m *Mux) senderLoop() {
	for {
		select {
		case job := <-m.sendCh:
			if err := m.framer.WriteRequest(m.conn, job.id, job.payload); err != nil {
				m.closeWith(ErrorConnectionClosed.Error(err))
				return
			}
		case <-m.doneCh:
			return
		}
	}
}

func (m *Mux) receiverLoop() {
	for {
		if m.idleTimeout > 0 {
			_ = m.conn.SetReadDeadline(time.Now().Add(m.idleTimeout))
		}

		id, payload, err := m.framer.ReadResponse(m.conn)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				m.closeWith(ErrorIdleTimeout.Error(err))
			} else {
				m.closeWith(ErrorConnectionClosed.Error(err))
			}
			return
		}

		m.mu.Lock()
		call, ok := m.pending[id]
		if ok {
			delete(m.pending, id)
		}
		m.mu.Unlock()

		if ok {
			call.respCh <- callResult{payload: payload}
		}
		// An id with no matching pending call (late arrival after timeout,
		// or a protocol bug on the peer's side) is silently dropped.
	}
}

// closeWith tears the Mux down, completing every outstanding Request with
// err: on parse error or EOF all outstanding entries complete with
// ConnectionClosed.
func (m *Mux) closeWith(err liberr.Error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.closeErr = err
	pending := m.pending
	m.pending = nil
	m.mu.Unlock()

	close(m.doneCh)
	_ = m.conn.Close()

	for _, call := range pending {
		call.respCh <- callResult{err: err}
	}
}

// Close closes the underlying connection and fails every outstanding
// Request with ErrorConnectionClosed.
func (m *Mux) Close() {
	m.closeWith(ErrorConnectionClosed.Error(nil))
}
