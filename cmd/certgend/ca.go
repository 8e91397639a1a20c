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
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"net"
	"os"
	"time"

	"github.com/sabouaram/netproxy/certagent"
)

// CA loads once at startup and signs every mimicked leaf certificate
// certgend hands back through certagent.Agent. No library in the
// dependency stack offers CA-signing primitives beyond crypto/x509 itself
// (it is not a domain concern any example repo's third-party stack
// covers), so this one routine is built directly on the standard library;
// see DESIGN.md.
type CA struct {
	cert    *x509.Certificate
	certDER []byte
	key     *ecdsa.PrivateKey
}

func loadCA(certFile, keyFile string) (*CA, error) {
	pair, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("loading CA key pair: %w", err)
	}

	key, ok := pair.PrivateKey.(*ecdsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("CA private key must be ECDSA")
	}

	cert, err := x509.ParseCertificate(pair.Certificate[0])
	if err != nil {
		return nil, fmt.Errorf("parsing CA certificate: %w", err)
	}

	return &CA{cert: cert, certDER: pair.Certificate[0], key: key}, nil
}

// mint builds a fresh leaf certificate for one cert-agent request. When
// req.UpstreamCertDER is present the leaf mimics the upstream's subject and
// SAN list (spec's "impersonate the real certificate"); otherwise it falls
// back to a CN/SAN built from req.Host.
func (ca *CA) mint(ctx context.Context, req certagent.GenerateRequest, ttl time.Duration) (certagent.GenerateResult, error) {
	leafKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return certagent.GenerateResult{}, err
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return certagent.GenerateResult{}, err
	}

	tmpl := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: req.Host},
		DNSNames:     []string{req.Host},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(ttl),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}

	if len(req.UpstreamCertDER) > 0 {
		if up, perr := x509.ParseCertificate(req.UpstreamCertDER); perr == nil {
			tmpl.Subject = up.Subject
			tmpl.DNSNames = up.DNSNames
			tmpl.IPAddresses = up.IPAddresses
			if len(tmpl.DNSNames) == 0 && net.ParseIP(req.Host) == nil {
				tmpl.DNSNames = []string{req.Host}
			}
		}
	}

	leafDER, err := x509.CreateCertificate(rand.Reader, tmpl, ca.cert, &leafKey.PublicKey, ca.key)
	if err != nil {
		return certagent.GenerateResult{}, err
	}

	keyDER, err := x509.MarshalPKCS8PrivateKey(leafKey)
	if err != nil {
		return certagent.GenerateResult{}, err
	}

	_ = ctx
	return certagent.GenerateResult{
		Chain: [][]byte{leafDER, ca.certDER},
		Key:   keyDER,
		TTL:   ttl,
	}, nil
}

func mustLoadCA(certFile, keyFile string) *CA {
	ca, err := loadCA(certFile, keyFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "certgend:", err)
		os.Exit(1)
	}
	return ca
}
