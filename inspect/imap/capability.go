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

// Package imap implements the IMAP STARTTLS interception helpers of spec
// §4.9: capability-list filtering so a client behind the interceptor never
// sees a capability the proxy cannot itself support once it takes over the
// plaintext-to-TLS transition, and a line-based CAPABILITY response parser.
package imap

import (
	"strings"

	"github.com/sabouaram/netproxy/errors"
)

// Capability tracks the protocol-version and extension flags a CAPABILITY
// response advertises, so later command handling can branch on them instead
// of re-scanning the raw token list.
type Capability struct {
	IMAP4rev1        bool
	IMAP4rev2        bool
	HasNonSyncLiteral bool // LITERAL+ or LITERAL-
	LoginDisabled    bool

	literalToggled bool
}

// unsupported names the capability tokens this proxy strips because it
// cannot safely preserve their semantics across an intercepted session:
// COMPRESS would desync the inspector's own byte accounting, CATENATE and
// URL-PARTIAL reference message parts by URL the proxy does not resolve,
// and UNAUTHENTICATE would let a client downgrade out of TLS after STARTTLS.
var unsupported = map[string]bool{
	"COMPRESS=DEFLATE": true,
	"CATENATE":         true,
	"URL-PARTIAL":      true,
	"UNAUTHENTICATE":   true,
}

// checkSupported classifies one capability token, updating cap's flags and
// reporting whether the token should be forwarded to the client as-is.
func (c *Capability) checkSupported(token string) bool {
	upper := strings.ToUpper(token)

	switch upper {
	case "IMAP4REV1":
		c.IMAP4rev1 = true
		return true
	case "IMAP4REV2":
		c.IMAP4rev2 = true
		return true
	case "LOGINDISABLED":
		c.LoginDisabled = true
		return true
	case "LITERAL+", "LITERAL-":
		if c.literalToggled {
			return false
		}
		c.literalToggled = true
		c.HasNonSyncLiteral = true
		return true
	}

	if unsupported[upper] {
		return false
	}
	return true
}

// FilterCapabilityLine parses a "* CAPABILITY ..." response line and
// returns the same line with unsupported tokens removed, along with the
// Capability flags observed.
func FilterCapabilityLine(line []byte) ([]byte, Capability, errors.Error) {
	s := string(line)
	fields := strings.Fields(s)
	if len(fields) < 2 || fields[0] != "*" || strings.ToUpper(fields[1]) != "CAPABILITY" {
		return nil, Capability{}, ErrorNotCapabilityLine.Error(nil)
	}

	var capa Capability
	kept := make([]string, 0, len(fields))
	kept = append(kept, fields[0], fields[1])

	for _, tok := range fields[2:] {
		if capa.checkSupported(tok) {
			kept = append(kept, tok)
		}
	}

	return []byte(strings.Join(kept, " ")), capa, nil
}
