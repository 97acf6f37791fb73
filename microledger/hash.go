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

// Package microledger implements the hash-chained, append-only sequence of
// signed DID documents that makes up one did:webplus identity, and the
// primitives (self-hash, JCS, detached JWS) it is built from.
package microledger

import (
	"crypto/sha256"
	"crypto/sha512"

	"github.com/multiformats/go-multibase"
	mh "github.com/multiformats/go-multihash"
	"github.com/webplus-id/core/werrors"
)

// HashFunction names a supported digest algorithm, grounded on the same
// multihash name table used by utils/fingerprint.GetMultihashFingerprint.
type HashFunction string

const (
	HashSHA256           HashFunction = "sha2-256"
	HashSHA512           HashFunction = "sha2-512"
	DefaultHashFunction               = HashSHA256
)

func hashFunctionCode(fn HashFunction) (uint64, int, error) {
	switch fn {
	case HashSHA256:
		return mh.SHA2_256, sha256.Size, nil
	case HashSHA512:
		return mh.SHA2_512, sha512.Size, nil
	default:
		return 0, 0, werrors.New(werrors.Unsupported, "unknown hash function: "+string(fn))
	}
}

func digest(fn HashFunction, data []byte) ([]byte, error) {
	switch fn {
	case HashSHA256:
		sum := sha256.Sum256(data)
		return sum[:], nil
	case HashSHA512:
		sum := sha512.Sum512(data)
		return sum[:], nil
	default:
		return nil, werrors.New(werrors.Unsupported, "unknown hash function: "+string(fn))
	}
}

// EncodeSelfHash computes the digest of data under fn and renders it as a
// self-describing, multibase-encoded multihash string — the text form
// stored in selfHash slots and embedded in self-hash URLs.
func EncodeSelfHash(fn HashFunction, data []byte) (string, error) {
	d, err := digest(fn, data)
	if err != nil {
		return "", err
	}
	return encodeMultihash(fn, d)
}

func encodeMultihash(fn HashFunction, d []byte) (string, error) {
	code, _, err := hashFunctionCode(fn)
	if err != nil {
		return "", err
	}
	mhBytes, err := mh.Encode(d, code)
	if err != nil {
		return "", werrors.Wrap(werrors.InternalError, "multihash encoding failed", err)
	}
	s, err := multibase.Encode(multibase.Base58BTC, mhBytes)
	if err != nil {
		return "", werrors.Wrap(werrors.InternalError, "multibase encoding failed", err)
	}
	return s, nil
}

// DecodeSelfHash parses a self-hash string back into its hash function and
// raw digest bytes.
func DecodeSelfHash(s string) (HashFunction, []byte, error) {
	_, mhBytes, err := multibase.Decode(s)
	if err != nil {
		return "", nil, werrors.Wrap(werrors.Malformed, "malformed self-hash encoding", err)
	}
	dmh, err := mh.Decode(mhBytes)
	if err != nil {
		return "", nil, werrors.Wrap(werrors.Malformed, "malformed multihash", err)
	}
	fn, err := hashFunctionFromCode(dmh.Code)
	if err != nil {
		return "", nil, err
	}
	return fn, dmh.Digest, nil
}

func hashFunctionFromCode(code uint64) (HashFunction, error) {
	switch code {
	case mh.SHA2_256:
		return HashSHA256, nil
	case mh.SHA2_512:
		return HashSHA512, nil
	default:
		return "", werrors.New(werrors.Unsupported, "unknown multihash code")
	}
}

// Placeholder returns the placeholder value for fn: a self-hash string
// carrying fn's algorithm tag over an all-zero digest of fn's length. It is
// substituted into every self-hash slot before the digest used to validate
// that slot is computed.
func Placeholder(fn HashFunction) (string, error) {
	_, length, err := hashFunctionCode(fn)
	if err != nil {
		return "", err
	}
	return encodeMultihash(fn, make([]byte, length))
}

// VerifyDigest recomputes the digest of data under the algorithm named by
// claimed and compares it against claimed. Used by both DID document and
// VJSON self-hash verification.
func VerifyDigest(claimed string, data []byte) error {
	fn, wantDigest, err := DecodeSelfHash(claimed)
	if err != nil {
		return err
	}
	gotDigest, err := digest(fn, data)
	if err != nil {
		return err
	}
	if !bytesEqual(gotDigest, wantDigest) {
		return werrors.New(werrors.MalformedSelfHash, "self-hash does not match recomputed digest")
	}
	return nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
