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

package imap

import "strings"

// IsStartTLSCommand reports whether a client command line, tagged per
// RFC 3501 (e.g. "a1 STARTTLS"), requests the STARTTLS extension.
func IsStartTLSCommand(line []byte) bool {
	fields := strings.Fields(string(line))
	if len(fields) != 2 {
		return false
	}
	return strings.EqualFold(fields[1], "STARTTLS")
}

// StartTLSOK renders the tagged "OK" completion response that tells the
// client it may now begin the TLS handshake, echoing the tag from the
// client's STARTTLS command.
func StartTLSOK(tag string) []byte {
	return []byte(tag + " OK Begin TLS negotiation now\r\n")
}

// StartTLSRejected renders the tagged "NO" response used when STARTTLS is
// requested but this session already negotiated TLS, per RFC 3501's
// prohibition on re-negotiating STARTTLS.
func StartTLSRejected(tag string) []byte {
	return []byte(tag + " NO STARTTLS already active\r\n")
}
