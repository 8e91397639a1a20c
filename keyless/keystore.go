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

package keyless

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"sync"
)

// KeyStore maps a certificate digest to the private key the keyless
// server should use on its behalf. It is safe for concurrent use.
type KeyStore struct {
	mu   sync.RWMutex
	keys map[Digest]crypto.Signer
}

func NewKeyStore() *KeyStore {
	return &KeyStore{keys: make(map[Digest]crypto.Signer)}
}

// DigestOf hashes a DER-encoded certificate (or SubjectPublicKeyInfo) to
// the Digest used as this store's key, and as the tagDigest item of a
// request targeting it.
func DigestOf(der []byte) Digest {
	return sha256.Sum256(der)
}

// DigestOfCert is a convenience wrapper hashing an *x509.Certificate's
// raw DER bytes.
func DigestOfCert(cert *x509.Certificate) Digest {
	return DigestOf(cert.Raw)
}

// Register associates digest with key. Both *rsa.PrivateKey and
// *ecdsa.PrivateKey implement crypto.Signer.
func (s *KeyStore) Register(digest Digest, key crypto.Signer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[digest] = key
}

// Lookup returns the key registered for digest, or nil if none.
func (s *KeyStore) Lookup(digest Digest) crypto.Signer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.keys[digest]
}

// rsaKey asserts key is an RSA private key, for the raw-decrypt and
// PKCS#1v1.5-decrypt opcodes that Signer alone cannot serve (Decrypt is
// not part of crypto.Signer).
func rsaKey(key crypto.Signer) (*rsa.PrivateKey, bool) {
	k, ok := key.(*rsa.PrivateKey)
	return k, ok
}

func ecdsaKey(key crypto.Signer) (*ecdsa.PrivateKey, bool) {
	k, ok := key.(*ecdsa.PrivateKey)
	return k, ok
}
