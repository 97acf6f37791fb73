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

package vjson

import (
	"github.com/webplus-id/core/diduri"
	"github.com/webplus-id/core/microledger"
	"github.com/webplus-id/core/werrors"
)

const proofsField = "proofs"

// KeyResolver resolves the kid header of a VJSON proof to the verification
// key it names: did:key directly, did:webplus by delegating to whatever
// backs the implementation (a resolver.Resolver in production, a wallet's
// local replica in tests).
type KeyResolver interface {
	ResolveVerificationMethod(kid string) (microledger.Algorithm, []byte, error)
}

// KeyKeyResolver resolves only did:key kids, by decoding the key material
// directly out of the identifier. It never needs network access and is
// always safe to compose into a larger KeyResolver.
type KeyKeyResolver struct{}

func (KeyKeyResolver) ResolveVerificationMethod(kid string) (microledger.Algorithm, []byte, error) {
	d, err := diduri.Parse(kid)
	if err != nil {
		return "", nil, err
	}
	if !d.IsKey() {
		return "", nil, werrors.New(werrors.Unsupported, "not a did:key kid: "+kid)
	}
	return microledger.DecodePublicKeyMultibase(d.RootSelfHash)
}

func getProofs(value map[string]any) []string {
	raw, ok := value[proofsField].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		if s, ok := p.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func setProofs(value map[string]any, proofs []string) {
	if len(proofs) == 0 {
		delete(value, proofsField)
		return
	}
	out := make([]any, len(proofs))
	for i, p := range proofs {
		out[i] = p
	}
	value[proofsField] = out
}

// detachedPayload re-serializes value in the form a proof signs over: proofs
// removed, every self-hash and self-hash-URL slot set to the placeholder.
func detachedPayload(schema *Schema, value map[string]any, isSelfSchema bool) ([]byte, error) {
	selfHashPaths, selfHashURLPaths := schema.effectivePaths(isSelfSchema)

	cloned, ok := cloneTree(value).(map[string]any)
	if !ok {
		return nil, werrors.New(werrors.InternalError, "clone of VJSON value is not an object")
	}
	delete(cloned, proofsField)

	fn, _, err := currentHashFunction(schema, cloned, selfHashPaths, selfHashURLPaths)
	if err != nil {
		return nil, err
	}
	placeholder, err := microledger.Placeholder(fn)
	if err != nil {
		return nil, err
	}
	if err := setAllPlaceholder(cloned, selfHashPaths, placeholder); err != nil {
		return nil, err
	}
	if err := setAllURLPlaceholder(cloned, selfHashURLPaths, placeholder); err != nil {
		return nil, err
	}

	return microledger.CanonicalJSON(cloned)
}

func currentHashFunction(schema *Schema, value map[string]any, selfHashPaths, selfHashURLPaths []string) (microledger.HashFunction, string, error) {
	for _, p := range selfHashPaths {
		vs, err := getSlots(value, p)
		if err == nil && len(vs) > 0 {
			fn, _, err := microledger.DecodeSelfHash(vs[0])
			if err == nil {
				return fn, vs[0], nil
			}
		}
	}
	for _, p := range selfHashURLPaths {
		if h, err := getURLSlotHash(value, p); err == nil {
			fn, _, err := microledger.DecodeSelfHash(h)
			if err == nil {
				return fn, h, nil
			}
		}
	}
	return microledger.DefaultHashFunction, "", nil
}

// Sign appends a new detached-JWS proof to value under schema, signed by
// signer using kid as the fully-qualified verification-method reference,
// then recomputes the VJSON self-hash so it covers the new proof set.
func Sign(schema *Schema, value map[string]any, fn microledger.HashFunction, isSelfSchema bool, signer *microledger.KeyPair, kid string) error {
	existing := getProofs(value)
	setProofs(value, nil)

	payload, err := detachedPayloadFixed(schema, value, fn, isSelfSchema)
	if err != nil {
		return err
	}

	proof, err := microledger.SignDetachedJWS(signer, kid, payload)
	if err != nil {
		return err
	}

	setProofs(value, append(existing, proof))

	return Compute(schema, value, fn, isSelfSchema)
}

// detachedPayloadFixed is detachedPayload with the hash function pinned to
// fn rather than discovered from existing slots, for use while signing a
// value whose slots are still placeholders.
func detachedPayloadFixed(schema *Schema, value map[string]any, fn microledger.HashFunction, isSelfSchema bool) ([]byte, error) {
	selfHashPaths, selfHashURLPaths := schema.effectivePaths(isSelfSchema)

	cloned, ok := cloneTree(value).(map[string]any)
	if !ok {
		return nil, werrors.New(werrors.InternalError, "clone of VJSON value is not an object")
	}
	delete(cloned, proofsField)

	placeholder, err := microledger.Placeholder(fn)
	if err != nil {
		return nil, err
	}
	if err := setAllPlaceholder(cloned, selfHashPaths, placeholder); err != nil {
		return nil, err
	}
	if err := setAllURLPlaceholder(cloned, selfHashURLPaths, placeholder); err != nil {
		return nil, err
	}

	return microledger.CanonicalJSON(cloned)
}

// VerifyProofs checks every element of value's proofs array against the
// detached payload, resolving each kid through resolver. It returns the
// number of proofs that verified.
func VerifyProofs(schema *Schema, value map[string]any, isSelfSchema bool, resolver KeyResolver) (int, error) {
	proofs := getProofs(value)
	if len(proofs) == 0 {
		return 0, nil
	}

	payload, err := detachedPayload(schema, value, isSelfSchema)
	if err != nil {
		return 0, err
	}

	valid := 0
	for _, p := range proofs {
		kid, err := microledger.JWSKid(p)
		if err != nil {
			continue
		}
		alg, pub, err := resolver.ResolveVerificationMethod(kid)
		if err != nil {
			continue
		}
		if microledger.VerifyDetachedJWS(p, alg, pub, payload) == nil {
			valid++
		}
	}
	return valid, nil
}
