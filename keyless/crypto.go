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
	"crypto/rand"
	"crypto/rsa"
	"math/big"

	liberr "github.com/sabouaram/netproxy/errors"
)

// signHash maps a signing opcode to the crypto.Hash identifying the
// digest algorithm the caller already applied to payload; both
// rsa.PrivateKey.Sign and ecdsa.PrivateKey.Sign accept it directly as
// SignerOpts for a PKCS#1v1.5 / ASN.1 DER signature.
func signHash(op OpCode) (crypto.Hash, liberr.Error) {
	switch op {
	case OpRsaSignMd5Sha1, OpEcdsaSignMd5Sha1:
		return crypto.MD5SHA1, nil
	case OpRsaSignSha1, OpEcdsaSignSha1:
		return crypto.SHA1, nil
	case OpRsaSignSha224, OpEcdsaSignSha224:
		return crypto.SHA224, nil
	case OpRsaSignSha256, OpEcdsaSignSha256:
		return crypto.SHA256, nil
	case OpRsaSignSha384, OpEcdsaSignSha384:
		return crypto.SHA384, nil
	case OpRsaSignSha512, OpEcdsaSignSha512:
		return crypto.SHA512, nil
	default:
		return 0, ErrorUnsupportedAction.Error(nil)
	}
}

// Execute performs op against key using payload as its input (a
// pre-hashed digest for sign opcodes, ciphertext for decrypt opcodes),
// returning the raw result bytes to place in a response's PAYLOAD item.
func Execute(op OpCode, key crypto.Signer, payload []byte) ([]byte, liberr.Error) {
	switch op {
	case OpRsaDecrypt:
		rk, ok := rsaKey(key)
		if !ok {
			return nil, ErrorUnsupportedAction.Error(nil)
		}
		out, err := rsa.DecryptPKCS1v15(rand.Reader, rk, payload)
		if err != nil {
			return nil, ErrorUnsupportedAction.Error(err)
		}
		return out, nil

	case OpRsaRawDecrypt:
		rk, ok := rsaKey(key)
		if !ok {
			return nil, ErrorUnsupportedAction.Error(nil)
		}
		return rsaRawDecrypt(rk, payload)

	default:
		if op.IsSign() {
			return sign(op, key, payload)
		}
		return nil, ErrorUnsupportedAction.Error(nil)
	}
}

func sign(op OpCode, key crypto.Signer, payload []byte) ([]byte, liberr.Error) {
	if op.IsRSA() {
		if _, ok := rsaKey(key); !ok {
			return nil, ErrorUnsupportedAction.Error(nil)
		}
	} else if op.IsECDSA() {
		if _, ok := ecdsaKey(key); !ok {
			return nil, ErrorUnsupportedAction.Error(nil)
		}
	}

	hash, herr := signHash(op)
	if herr != nil {
		return nil, herr
	}

	sig, err := key.Sign(rand.Reader, payload, hash)
	if err != nil {
		return nil, ErrorUnsupportedAction.Error(err)
	}
	return sig, nil
}

// rsaRawDecrypt computes c^D mod N directly, the unpadded "raw" RSA
// decrypt opcode expects: the caller strips PKCS#1 padding itself.
func rsaRawDecrypt(key *rsa.PrivateKey, ciphertext []byte) ([]byte, liberr.Error) {
	c := new(big.Int).SetBytes(ciphertext)
	n := key.PublicKey.N
	if c.Cmp(n) >= 0 {
		return nil, ErrorUnsupportedAction.Error(nil)
	}

	m := new(big.Int).Exp(c, key.D, n)

	out := make([]byte, (n.BitLen()+7)/8)
	mb := m.Bytes()
	copy(out[len(out)-len(mb):], mb)
	return out, nil
}
