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

// Package inspect implements the protocol sniffer: given a
// buffer of initial client bytes, it narrows a "still possible" set of
// protocol recognisers down to a single match, a request for more data, or
// exhaustion of every candidate.
package inspect

import "bytes"

// Protocol identifies a sniffable wire protocol.
type Protocol uint8

const (
	ProtocolUnknown Protocol = iota
	ProtocolSSH
	ProtocolTLS
	ProtocolHTTP1
	ProtocolQUIC
)

func (p Protocol) String() string {
	switch p {
	case ProtocolSSH:
		return "ssh"
	case ProtocolTLS:
		return "tls"
	case ProtocolHTTP1:
		return "http1"
	case ProtocolQUIC:
		return "quic"
	default:
		return "unknown"
	}
}

// ResultKind distinguishes the three outcomes a Feed call can report.
type ResultKind uint8

const (
	ResultDetected ResultKind = iota
	ResultNeedMoreData
	ResultExclude
)

// Result is the outcome of examining a buffer against the current
// candidate set: a confident match, a request for more bytes, or the
// exhaustion of every remaining candidate.
type Result struct {
	Kind       ResultKind
	Protocol   Protocol
	Confidence float64
	MinExtra   int
}

// verdict is what a single Recognizer reports about a buffer: whether it
// still matches (possibly needing more bytes to be sure) or is ruled out.
type verdict struct {
	matched  bool
	excluded bool
	needMore int
}

// Recognizer decides whether a buffer of leading bytes is, could still be,
// or cannot be, the protocol it looks for.
type Recognizer interface {
	Protocol() Protocol
	examine(buf []byte) verdict
}

// Inspector holds the working "still possible" set of recognisers and
// narrows it as more bytes arrive.
type Inspector struct {
	recognizers []Recognizer
	excluded    map[Protocol]bool
}

// New builds an Inspector over the given recognisers. DefaultRecognizers
// returns the standard SSH/TLS/HTTP1/QUIC set.
func New(recognizers ...Recognizer) *Inspector {
	return &Inspector{recognizers: recognizers, excluded: make(map[Protocol]bool)}
}

// DefaultRecognizers returns the recognisers for the protocols handled
// explicitly: SSH banner regex, TLS record header, HTTP method
// token, QUIC long header form.
func DefaultRecognizers() []Recognizer {
	return []Recognizer{
		newPrefixSetRecognizer(ProtocolSSH, [][]byte{[]byte("SSH-2.0-"), []byte("SSH-1.99-"), []byte("SSH-1.5-")}),
		tlsRecordRecognizer{},
		newPrefixSetRecognizer(ProtocolHTTP1,
			[][]byte{
				[]byte("GET "), []byte("HEAD "), []byte("POST "), []byte("PUT "),
				[]byte("DELETE "), []byte("OPTIONS "), []byte("CONNECT "),
				[]byte("PATCH "), []byte("TRACE "),
			}),
		quicLongHeaderRecognizer{},
	}
}

// Feed examines buf (the full set of bytes read so far, not just the new
// increment) against every still-viable recognizer. A recognizer that
// reports itself excluded is removed from the working set for good, so a
// later call never re-considers it even if its examine result would now
// look ambiguous.
func (ins *Inspector) Feed(buf []byte) Result {
	if len(ins.recognizers) == 0 {
		return Result{Kind: ResultExclude, Protocol: ProtocolUnknown}
	}

	maxNeed := 0
	liveCount := 0

	for _, r := range ins.recognizers {
		if ins.excluded[r.Protocol()] {
			continue
		}
		v := r.examine(buf)
		if v.excluded {
			ins.excluded[r.Protocol()] = true
			continue
		}
		liveCount++
		if v.matched {
			return Result{Kind: ResultDetected, Protocol: r.Protocol(), Confidence: 1}
		}
		if v.needMore > maxNeed {
			maxNeed = v.needMore
		}
	}

	if liveCount == 0 {
		return Result{Kind: ResultExclude, Protocol: ProtocolUnknown}
	}
	if maxNeed <= 0 {
		maxNeed = 1
	}
	return Result{Kind: ResultNeedMoreData, MinExtra: maxNeed}
}

// prefixSetRecognizer matches when buf is, or could still become, an
// exact byte-for-byte prefix of one of its candidate prefixes (used for
// the SSH banner and HTTP method-token recognisers).
type prefixSetRecognizer struct {
	proto    Protocol
	prefixes [][]byte
}

func newPrefixSetRecognizer(p Protocol, prefixes [][]byte) prefixSetRecognizer {
	return prefixSetRecognizer{proto: p, prefixes: prefixes}
}

func (r prefixSetRecognizer) Protocol() Protocol { return r.proto }

func (r prefixSetRecognizer) examine(buf []byte) verdict {
	maxNeed := 0
	anyViable := false

	for _, p := range r.prefixes {
		n := len(buf)
		if n > len(p) {
			n = len(p)
		}
		if !bytes.Equal(buf[:n], p[:n]) {
			continue
		}
		if len(buf) >= len(p) {
			return verdict{matched: true}
		}
		anyViable = true
		if need := len(p) - len(buf); need > maxNeed {
			maxNeed = need
		}
	}

	if !anyViable {
		return verdict{excluded: true}
	}
	return verdict{needMore: maxNeed}
}

// tlsRecordRecognizer matches a TLS record header: content type 0x16
// (handshake) followed by a {3, x} version tuple (a TLS record header).
type tlsRecordRecognizer struct{}

func (tlsRecordRecognizer) Protocol() Protocol { return ProtocolTLS }

func (tlsRecordRecognizer) examine(buf []byte) verdict {
	if len(buf) == 0 {
		return verdict{needMore: 3}
	}
	if buf[0] != 0x16 {
		return verdict{excluded: true}
	}
	if len(buf) < 2 {
		return verdict{needMore: 2}
	}
	if buf[1] != 0x03 {
		return verdict{excluded: true}
	}
	if len(buf) < 3 {
		return verdict{needMore: 1}
	}
	return verdict{matched: true}
}

// quicLongHeaderRecognizer matches the QUIC long-header form: the high
// bit of the first byte set, with bit 0x40 (the fixed bit) also set per
// RFC 9000 §17.2.
type quicLongHeaderRecognizer struct{}

func (quicLongHeaderRecognizer) Protocol() Protocol { return ProtocolQUIC }

func (quicLongHeaderRecognizer) examine(buf []byte) verdict {
	if len(buf) == 0 {
		return verdict{needMore: 1}
	}
	if buf[0]&0xc0 != 0xc0 {
		return verdict{excluded: true}
	}
	return verdict{matched: true}
}
