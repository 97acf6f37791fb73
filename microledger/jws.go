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
	"strings"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/webplus-id/core/werrors"
)

func joseAlgorithm(alg Algorithm) jose.SignatureAlgorithm {
	switch alg {
	case AlgEdDSA:
		return jose.EdDSA
	case AlgES256K:
		return jose.SignatureAlgorithm("ES256K")
	case AlgES256:
		return jose.ES256
	case AlgES384:
		return jose.ES384
	case AlgES512:
		return jose.ES512
	default:
		return jose.SignatureAlgorithm(string(alg))
	}
}

// opaqueSigner lets a non-EdDSA microledger.KeyPair (ES256K, ES256, ES384)
// sign through go-jose's generic Signer interface; go-jose has no built-in
// support for ES256K.
type opaqueSigner struct {
	kp *KeyPair
}

func (s opaqueSigner) Public() *jose.JSONWebKey { return nil }

func (s opaqueSigner) Algs() []jose.SignatureAlgorithm {
	return []jose.SignatureAlgorithm{joseAlgorithm(s.kp.Algorithm)}
}

func (s opaqueSigner) SignPayload(payload []byte, _ jose.SignatureAlgorithm) ([]byte, error) {
	return s.kp.Sign(payload)
}

// opaqueVerifier verifies a non-EdDSA (ES256K, ES256, ES384) signature
// through go-jose's generic OpaqueVerifier extension point.
type opaqueVerifier struct {
	alg Algorithm
	pub []byte
}

func (v opaqueVerifier) VerifyPayload(payload, signature []byte, _ jose.SignatureAlgorithm) error {
	return Verify(v.alg, v.pub, payload, signature)
}

// SignDetachedJWS signs payload with kp, returning a detached compact JWS:
// the standard three-segment compact serialization with the middle
// (payload) segment blanked out, per RFC 7515 §7.2.2. kid is the
// fully-qualified DID resource string naming the verification method.
func SignDetachedJWS(kp *KeyPair, kid string, payload []byte) (string, error) {
	var signingKey jose.SigningKey
	if kp.Algorithm == AlgEdDSA {
		signingKey = jose.SigningKey{Algorithm: jose.EdDSA, Key: ed25519PrivateKey(kp.PrivateKey)}
	} else {
		signingKey = jose.SigningKey{Algorithm: joseAlgorithm(kp.Algorithm), Key: opaqueSigner{kp: kp}}
	}

	signer, err := jose.NewSigner(signingKey, &jose.SignerOptions{
		ExtraHeaders: map[jose.HeaderKey]any{"kid": kid},
	})
	if err != nil {
		return "", werrors.Wrap(werrors.InternalError, "failed to create JWS signer", err)
	}

	obj, err := signer.Sign(payload)
	if err != nil {
		return "", werrors.Wrap(werrors.InternalError, "failed to sign JWS", err)
	}

	compact, err := obj.CompactSerialize()
	if err != nil {
		return "", werrors.Wrap(werrors.InternalError, "failed to serialize JWS", err)
	}

	return detach(compact), nil
}

// VerifyDetachedJWS reattaches payload to a detached compact JWS and
// verifies it against pub under alg.
func VerifyDetachedJWS(detachedCompact string, alg Algorithm, pub, payload []byte) error {
	full, err := reattach(detachedCompact, payload)
	if err != nil {
		return err
	}

	obj, err := jose.ParseSigned(full, []jose.SignatureAlgorithm{joseAlgorithm(alg)})
	if err != nil {
		return werrors.Wrap(werrors.Malformed, "malformed JWS", err)
	}

	var verifyErr error
	if alg == AlgEdDSA {
		_, verifyErr = obj.Verify(ed25519PublicKey(pub))
	} else {
		_, verifyErr = obj.Verify(opaqueVerifier{alg: alg, pub: pub})
	}
	if verifyErr != nil {
		return werrors.Wrap(werrors.InvalidSignature, "JWS verification failed", verifyErr)
	}
	return nil
}

// JWSKid extracts the kid header from a detached compact JWS without
// verifying it, so callers can resolve the verifier before calling
// VerifyDetachedJWS.
func JWSKid(detachedCompact string) (string, error) {
	full, err := reattach(detachedCompact, []byte{})
	if err != nil {
		return "", err
	}
	obj, err := jose.ParseSigned(full, []jose.SignatureAlgorithm{
		jose.EdDSA, jose.SignatureAlgorithm("ES256K"), jose.ES256, jose.ES384, jose.ES512,
	})
	if err != nil {
		return "", werrors.Wrap(werrors.Malformed, "malformed JWS", err)
	}
	if len(obj.Signatures) == 0 {
		return "", werrors.New(werrors.Malformed, "JWS has no signatures")
	}
	kid, _ := obj.Signatures[0].Header.ExtraHeaders["kid"].(string)
	if kid == "" {
		kid = obj.Signatures[0].Header.KeyID
	}
	if kid == "" {
		return "", werrors.New(werrors.Malformed, "JWS has no kid header")
	}
	return kid, nil
}

func detach(compact string) string {
	parts := strings.SplitN(compact, ".", 3)
	if len(parts) != 3 {
		return compact
	}
	return parts[0] + ".." + parts[2]
}

func reattach(detached string, payload []byte) (string, error) {
	parts := strings.SplitN(detached, ".", 3)
	if len(parts) != 3 {
		return "", werrors.New(werrors.Malformed, "malformed detached JWS")
	}
	return parts[0] + "." + base64URLEncode(payload) + "." + parts[2], nil
}
