// Copyright 2022 Piprate Limited
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package microledger

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"math/big"

	"github.com/btcsuite/btcd/btcec/v2"
	btcecdsa "github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/multiformats/go-multibase"
	"github.com/webplus-id/core/werrors"
)

func hashForES256K(payload []byte) []byte {
	sum := sha256.Sum256(payload)
	return sum[:]
}

// Algorithm is one of the signing algorithms the core supports, fixed to
// the corresponding JOSE alg token.
type Algorithm string

const (
	AlgEdDSA    Algorithm = "EdDSA"  // Ed25519
	AlgES256K   Algorithm = "ES256K" // secp256k1
	AlgES256    Algorithm = "ES256"  // P-256
	AlgES384    Algorithm = "ES384"  // P-384
	AlgES512    Algorithm = "ES512"  // P-521, not implemented in this build
	AlgEdDSA448 Algorithm = "Ed448"  // Ed448, not implemented in this build
)

// multicodec prefixes for multibase public-key encoding (varint-prefixed
// type tag ahead of the raw key bytes), matching the did:key convention
// used across the retrieval pack's DID implementations.
const (
	codecEd25519Pub   = 0xed
	codecSecp256k1Pub = 0xe7
	codecP256Pub      = 0x1200
	codecP384Pub      = 0x1201
)

// ecdsaCurveFor returns the NIST curve backing alg, or nil if alg isn't an
// ecdsa-family algorithm implemented here.
func ecdsaCurveFor(alg Algorithm) elliptic.Curve {
	switch alg {
	case AlgES256:
		return elliptic.P256()
	case AlgES384:
		return elliptic.P384()
	default:
		return nil
	}
}

// ecdsaDigest hashes payload with the digest algorithm JOSE pairs with alg:
// SHA-256 for ES256, SHA-384 for ES384.
func ecdsaDigest(alg Algorithm, payload []byte) []byte {
	if alg == AlgES384 {
		sum := sha512.Sum384(payload)
		return sum[:]
	}
	sum := sha256.Sum256(payload)
	return sum[:]
}

// ecdsaSignatureSize is the fixed byte width of one of r or s for curve; the
// concatenated r||s signature JOSE's ES256/ES384 serialization uses is twice
// this length.
func ecdsaSignatureSize(curve elliptic.Curve) int {
	return (curve.Params().BitSize + 7) / 8
}

// KeyPair is a signing key pair usable by the microledger and wallet. Only
// the public half and the algorithm are ever persisted outside the wallet's
// private-key store.
type KeyPair struct {
	Algorithm  Algorithm
	PublicKey  []byte // raw, algorithm-specific encoding
	PrivateKey []byte // raw, algorithm-specific encoding; zeroed on disposal
}

// GenerateKeyPair creates a fresh key pair for alg.
func GenerateKeyPair(alg Algorithm) (*KeyPair, error) {
	switch alg {
	case AlgEdDSA:
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, werrors.Wrap(werrors.InternalError, "ed25519 key generation failed", err)
		}
		return &KeyPair{Algorithm: alg, PublicKey: []byte(pub), PrivateKey: []byte(priv)}, nil
	case AlgES256K:
		priv, err := btcec.NewPrivateKey()
		if err != nil {
			return nil, werrors.Wrap(werrors.InternalError, "secp256k1 key generation failed", err)
		}
		return &KeyPair{
			Algorithm:  alg,
			PublicKey:  priv.PubKey().SerializeCompressed(),
			PrivateKey: priv.Serialize(),
		}, nil
	case AlgES256, AlgES384:
		curve := ecdsaCurveFor(alg)
		priv, err := ecdsa.GenerateKey(curve, rand.Reader)
		if err != nil {
			return nil, werrors.Wrap(werrors.InternalError, "ecdsa key generation failed", err)
		}
		return &KeyPair{
			Algorithm:  alg,
			PublicKey:  elliptic.MarshalCompressed(curve, priv.X, priv.Y),
			PrivateKey: priv.D.FillBytes(make([]byte, ecdsaSignatureSize(curve))),
		}, nil
	default:
		return nil, werrors.New(werrors.Unsupported, "unsupported signing algorithm: "+string(alg))
	}
}

// Sign produces a raw algorithm-specific signature over payload.
func (kp *KeyPair) Sign(payload []byte) ([]byte, error) {
	switch kp.Algorithm {
	case AlgEdDSA:
		return ed25519.Sign(ed25519.PrivateKey(kp.PrivateKey), payload), nil
	case AlgES256K:
		priv, _ := btcec.PrivKeyFromBytes(kp.PrivateKey)
		sig := btcecdsa.SignCompact(priv, hashForES256K(payload), false)
		return sig, nil
	case AlgES256, AlgES384:
		curve := ecdsaCurveFor(kp.Algorithm)
		priv := new(ecdsa.PrivateKey)
		priv.Curve = curve
		priv.D = new(big.Int).SetBytes(kp.PrivateKey)
		priv.X, priv.Y = curve.ScalarBaseMult(kp.PrivateKey)

		r, s, err := ecdsa.Sign(rand.Reader, priv, ecdsaDigest(kp.Algorithm, payload))
		if err != nil {
			return nil, werrors.Wrap(werrors.InternalError, "ecdsa signing failed", err)
		}
		size := ecdsaSignatureSize(curve)
		sig := make([]byte, 2*size)
		r.FillBytes(sig[:size])
		s.FillBytes(sig[size:])
		return sig, nil
	default:
		return nil, werrors.New(werrors.Unsupported, "unsupported signing algorithm: "+string(kp.Algorithm))
	}
}

// PublicKeyMultibase renders the public key as a self-describing multibase
// string suitable for a did:key identifier or a verification method's
// publicKeyMultibase field.
func (kp *KeyPair) PublicKeyMultibase() (string, error) {
	return EncodePublicKeyMultibase(kp.Algorithm, kp.PublicKey)
}

// EncodePublicKeyMultibase renders a raw public key as a self-describing
// multibase string.
func EncodePublicKeyMultibase(alg Algorithm, raw []byte) (string, error) {
	code, err := multicodecFor(alg)
	if err != nil {
		return "", err
	}
	tagged := appendVarint(code, raw)
	return multibase.Encode(multibase.Base58BTC, tagged)
}

// DecodePublicKeyMultibase parses a multibase-encoded public key, returning
// its algorithm and raw bytes.
func DecodePublicKeyMultibase(s string) (Algorithm, []byte, error) {
	_, tagged, err := multibase.Decode(s)
	if err != nil {
		return "", nil, werrors.Wrap(werrors.Malformed, "malformed multibase public key", err)
	}
	code, n := readVarint(tagged)
	if n == 0 {
		return "", nil, werrors.New(werrors.Malformed, "malformed public-key multicodec tag")
	}
	alg, err := algorithmForMulticodec(code)
	if err != nil {
		return "", nil, err
	}
	return alg, tagged[n:], nil
}

// Verify checks a raw signature against payload under the given algorithm
// and raw public key.
func Verify(alg Algorithm, pub, payload, signature []byte) error {
	switch alg {
	case AlgEdDSA:
		if len(pub) != ed25519.PublicKeySize {
			return werrors.New(werrors.Malformed, "malformed ed25519 public key")
		}
		if !ed25519.Verify(ed25519.PublicKey(pub), payload, signature) {
			return werrors.New(werrors.InvalidSignature, "ed25519 signature verification failed")
		}
		return nil
	case AlgES256K:
		pk, err := btcec.ParsePubKey(pub)
		if err != nil {
			return werrors.Wrap(werrors.Malformed, "malformed secp256k1 public key", err)
		}
		recovered, _, err := btcecdsa.RecoverCompact(signature, hashForES256K(payload))
		if err != nil || !recovered.IsEqual(pk) {
			return werrors.New(werrors.InvalidSignature, "secp256k1 signature verification failed")
		}
		return nil
	case AlgES256, AlgES384:
		curve := ecdsaCurveFor(alg)
		size := ecdsaSignatureSize(curve)
		if len(signature) != 2*size {
			return werrors.New(werrors.Malformed, "malformed ecdsa signature")
		}
		x, y := elliptic.UnmarshalCompressed(curve, pub)
		if x == nil {
			return werrors.New(werrors.Malformed, "malformed ecdsa public key")
		}
		pk := &ecdsa.PublicKey{Curve: curve, X: x, Y: y}
		r := new(big.Int).SetBytes(signature[:size])
		s := new(big.Int).SetBytes(signature[size:])
		if !ecdsa.Verify(pk, ecdsaDigest(alg, payload), r, s) {
			return werrors.New(werrors.InvalidSignature, "ecdsa signature verification failed")
		}
		return nil
	default:
		return werrors.New(werrors.Unsupported, "unsupported signing algorithm: "+string(alg))
	}
}

func multicodecFor(alg Algorithm) (uint64, error) {
	switch alg {
	case AlgEdDSA:
		return codecEd25519Pub, nil
	case AlgES256K:
		return codecSecp256k1Pub, nil
	case AlgES256:
		return codecP256Pub, nil
	case AlgES384:
		return codecP384Pub, nil
	default:
		return 0, werrors.New(werrors.Unsupported, "unsupported signing algorithm: "+string(alg))
	}
}

func algorithmForMulticodec(code uint64) (Algorithm, error) {
	switch code {
	case codecEd25519Pub:
		return AlgEdDSA, nil
	case codecSecp256k1Pub:
		return AlgES256K, nil
	case codecP256Pub:
		return AlgES256, nil
	case codecP384Pub:
		return AlgES384, nil
	default:
		return "", werrors.New(werrors.Unsupported, "unknown public-key multicodec tag")
	}
}

func appendVarint(code uint64, rest []byte) []byte {
	buf := make([]byte, 0, 10+len(rest))
	for code >= 0x80 {
		buf = append(buf, byte(code)|0x80)
		code >>= 7
	}
	buf = append(buf, byte(code))
	return append(buf, rest...)
}

func readVarint(b []byte) (uint64, int) {
	var x uint64
	var s uint
	for i := 0; i < len(b); i++ {
		if b[i] < 0x80 {
			return x | uint64(b[i])<<s, i + 1
		}
		x |= uint64(b[i]&0x7f) << s
		s += 7
	}
	return 0, 0
}
