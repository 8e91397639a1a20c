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

package copier

import (
	"context"
	"net/http"

	"github.com/sabouaram/netproxy/idlewheel"
)

// RecvStream is the receive half of one HTTP/2 stream: DATA frames plus an
// eventual end-of-stream signal (trailers or a plain end), with explicit
// flow-control release so the pump never buffers unboundedly ahead of the
// send side's capacity.
type RecvStream interface {
	// ReadChunk returns the next DATA frame's payload, io.EOF-equivalent
	// (ok=false, err=nil) once the stream ends with no trailers, or an
	// error. Implementations must not block past ctx's deadline.
	ReadChunk(ctx context.Context) (chunk []byte, ok bool, err error)
	// Trailers returns the stream's trailers if the peer sent any instead
	// of a plain end-of-stream; (nil, nil) means no trailers.
	Trailers(ctx context.Context) (http.Header, error)
	// ReleaseCapacity returns n bytes of consumed data to the stream's
	// receive flow-control window.
	ReleaseCapacity(n int) error
}

// SendStream is the send half of one HTTP/2 stream: flow-control-aware
// DATA writes plus trailers.
type SendStream interface {
	// Capacity blocks until at least 1 byte of send window is available
	// (or ctx is done), returning the number of bytes the caller may send.
	Capacity(ctx context.Context) (int, error)
	SendData(data []byte, endStream bool) error
	SendTrailers(h http.Header) error
}

// BodyTransfer pumps one HTTP/2 stream's body from a RecvStream to a
// SendStream: request send-capacity from the remote, split
// the current chunk to the granted window, release receive flow-control
// for consumed bytes, and at end-of-data either forward trailers or send
// an empty end-of-stream DATA frame.
type BodyTransfer struct {
	Idle *idlewheel.Handle

	active bool
}

func (bt *BodyTransfer) markActive() {
	bt.active = true
	if bt.Idle != nil {
		bt.Idle.ResetActive()
	}
}

// IsActive reports whether any byte was moved since the last ResetActive.
func (bt *BodyTransfer) IsActive() bool { return bt.active }

// ResetActive clears the activity flag for the next idle-wheel tick.
func (bt *BodyTransfer) ResetActive() { bt.active = false }

// Run pumps recv to send until the stream ends or ctx is cancelled.
func (bt *BodyTransfer) Run(ctx context.Context, recv RecvStream, send SendStream) error {
	for {
		chunk, ok, err := recv.ReadChunk(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return bt.finish(ctx, recv, send)
		}
		bt.markActive()
		if len(chunk) == 0 {
			continue
		}
		if err := bt.sendAll(ctx, send, chunk); err != nil {
			return err
		}
		if err := recv.ReleaseCapacity(len(chunk)); err != nil {
			return ErrorReleaseRecvCapacityFailed.Error(err)
		}
	}
}

func (bt *BodyTransfer) sendAll(ctx context.Context, send SendStream, chunk []byte) error {
	for len(chunk) > 0 {
		n, err := send.Capacity(ctx)
		if err != nil {
			return err
		}
		if n <= 0 {
			return ErrorSenderNotInSendState.Error(nil)
		}
		bt.markActive()
		if n > len(chunk) {
			n = len(chunk)
		}
		if err := send.SendData(chunk[:n], false); err != nil {
			return err
		}
		chunk = chunk[n:]
	}
	return nil
}

func (bt *BodyTransfer) finish(ctx context.Context, recv RecvStream, send SendStream) error {
	trailers, err := recv.Trailers(ctx)
	if err != nil {
		return err
	}
	if trailers != nil {
		if err := send.SendTrailers(trailers); err != nil {
			return ErrorSendTrailersFailed.Error(err)
		}
		return nil
	}
	return send.SendData(nil, true)
}
