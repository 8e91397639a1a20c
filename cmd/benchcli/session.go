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

package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/sabouaram/netproxy/addr"
	"github.com/sabouaram/netproxy/stats"
)

// runOne drives a single SOCKS5 CONNECT session: dial the proxy, complete
// the client half of the handshake this repo's socks5 package implements
// server-side, request upstream, then round-trip a payload and verify the
// echo. Every outcome is folded into conn so run() can print an aggregate
// report once all sessions finish.
func runOne(ctx context.Context, proxyAddr, upstream string, payloadSize int, conn *stats.Conn) error {
	conn.Attempt()

	dialer := net.Dialer{}
	start := time.Now()
	c, err := dialer.DialContext(ctx, "tcp", proxyAddr)
	if err != nil {
		return fmt.Errorf("dialing proxy: %w", err)
	}
	defer c.Close()

	if dl, ok := ctx.Deadline(); ok {
		_ = c.SetDeadline(dl)
	}

	if err := clientGreeting(c); err != nil {
		return err
	}
	if err := clientConnect(c, upstream); err != nil {
		return err
	}
	conn.RecordDialMicros(time.Since(start).Microseconds())
	conn.Success()

	payload := make([]byte, payloadSize)
	if _, err := rand.Read(payload); err != nil {
		return err
	}
	if _, err := c.Write(payload); err != nil {
		return fmt.Errorf("writing payload: %w", err)
	}
	conn.AddBytesOut(int64(len(payload)))

	echoed := make([]byte, payloadSize)
	if _, err := io.ReadFull(c, echoed); err != nil {
		return fmt.Errorf("reading echo: %w", err)
	}
	conn.AddBytesIn(int64(len(echoed)))

	return nil
}

// clientGreeting sends the no-auth method offer and expects the server to
// pick it, mirroring the one branch of socks5.Handshake this client drives.
func clientGreeting(c net.Conn) error {
	if _, err := c.Write([]byte{0x05, 0x01, 0x00}); err != nil {
		return fmt.Errorf("writing greeting: %w", err)
	}
	resp := make([]byte, 2)
	if _, err := io.ReadFull(c, resp); err != nil {
		return fmt.Errorf("reading method selection: %w", err)
	}
	if resp[0] != 0x05 || resp[1] != 0x00 {
		return fmt.Errorf("proxy rejected no-auth method selection: %x", resp)
	}
	return nil
}

func clientConnect(c net.Conn, upstream string) error {
	target, perr := addr.Parse(upstream)
	if perr != nil {
		return fmt.Errorf("parsing upstream %q: %w", upstream, perr)
	}

	req, err := encodeConnectRequest(target)
	if err != nil {
		return err
	}
	if _, err := c.Write(req); err != nil {
		return fmt.Errorf("writing connect request: %w", err)
	}

	header := make([]byte, 4)
	if _, err := io.ReadFull(c, header); err != nil {
		return fmt.Errorf("reading reply header: %w", err)
	}
	if header[1] != 0x00 {
		return fmt.Errorf("proxy refused connect: reply code 0x%02x", header[1])
	}

	if err := discardBoundAddress(c, header[3]); err != nil {
		return err
	}
	return nil
}

func encodeConnectRequest(target addr.UpstreamAddr) ([]byte, error) {
	host := target.Host()
	port := target.Port()

	var buf []byte
	switch {
	case host.IsIP() && host.IP().To4() != nil:
		buf = append([]byte{0x05, 0x01, 0x00, 0x01}, host.IP().To4()...)
	case host.IsIP():
		buf = append([]byte{0x05, 0x01, 0x00, 0x04}, host.IP().To16()...)
	default:
		name := host.String()
		if len(name) > 255 {
			return nil, fmt.Errorf("domain name too long: %s", name)
		}
		buf = append([]byte{0x05, 0x01, 0x00, 0x03, byte(len(name))}, []byte(name)...)
	}
	return append(buf, byte(port>>8), byte(port)), nil
}

func discardBoundAddress(c net.Conn, atyp byte) error {
	var n int
	switch atyp {
	case 0x01:
		n = 4
	case 0x04:
		n = 16
	case 0x03:
		lenByte := make([]byte, 1)
		if _, err := io.ReadFull(c, lenByte); err != nil {
			return fmt.Errorf("reading bound domain length: %w", err)
		}
		n = int(lenByte[0])
	default:
		return fmt.Errorf("unknown bound address type 0x%02x", atyp)
	}
	buf := make([]byte, n+2)
	if _, err := io.ReadFull(c, buf); err != nil {
		return fmt.Errorf("reading bound address: %w", err)
	}
	return nil
}
