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

// Package certagent is the cert-agent client: a
// content-addressed, single-flight-protected cache of fake certificates
// fetched over UDP from an external generator.
package certagent

import "fmt"

// Service names the protocol a fake certificate is minted for.
type Service uint8

const (
	ServiceHTTP Service = iota
	ServiceSMTP
	ServiceIMAP
	ServicePOP3
)

func (s Service) String() string {
	switch s {
	case ServiceHTTP:
		return "http"
	case ServiceSMTP:
		return "smtp"
	case ServiceIMAP:
		return "imap"
	case ServicePOP3:
		return "pop3"
	default:
		return "unknown"
	}
}

// Usage names which TLS role/algorithm the certificate must support.
type Usage uint8

const (
	UsageTLSServer Usage = iota
	UsageTLCPSign
	UsageTLCPEnc
	UsageTLSServerAlt
)

func (u Usage) String() string {
	switch u {
	case UsageTLSServer:
		return "tls-server"
	case UsageTLCPSign:
		return "tlcp-sign"
	case UsageTLCPEnc:
		return "tlcp-enc"
	case UsageTLSServerAlt:
		return "tls-server-alt"
	default:
		return "unknown"
	}
}

// FingerprintKey identifies one fake certificate request: total
// ordering is lexicographic over (Service, Usage, Domain), used both as the
// cache key and, via String, as the single-flight coalescing key.
type FingerprintKey struct {
	Service Service
	Usage   Usage
	Domain  string
}

func (k FingerprintKey) String() string {
	return fmt.Sprintf("%s|%s|%s", k.Service, k.Usage, k.Domain)
}

// Less implements the lexicographic ordering over (Service, Usage, Domain).
func (k FingerprintKey) Less(other FingerprintKey) bool {
	if k.Service != other.Service {
		return k.Service < other.Service
	}
	if k.Usage != other.Usage {
		return k.Usage < other.Usage
	}
	return k.Domain < other.Domain
}
