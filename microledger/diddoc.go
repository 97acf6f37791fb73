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
	"bytes"
	"time"

	"github.com/bytedance/sonic/decoder"
	"github.com/webplus-id/core/diduri"
	"github.com/webplus-id/core/utils/jsonw"
	"github.com/webplus-id/core/werrors"
)

// ParseDIDDocument decodes raw JCS bytes into a DIDDocument, rejecting any
// key not named in §3 — a malformed or tampered document should fail
// decoding, not silently drop fields.
func ParseDIDDocument(raw []byte) (*DIDDocument, error) {
	var d DIDDocument
	dec := decoder.NewStreamDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&d); err != nil {
		return nil, werrors.Wrap(werrors.Malformed, "failed to parse DID document", err)
	}
	return &d, nil
}

// MarshalJCS renders d to canonical JCS bytes, as stored and hashed.
func (d *DIDDocument) MarshalJCS() ([]byte, error) {
	raw, err := jsonw.Marshal(d)
	if err != nil {
		return nil, werrors.Wrap(werrors.Malformed, "failed to marshal DID document", err)
	}
	return CanonicalizeJSONBytes(raw)
}

// VerificationMethod is a single entry in publicKeyMaterial: a public key
// plus the controller that must equal the owning document's id.
type VerificationMethod struct {
	ID                 string `json:"id"`
	Type               string `json:"type"`
	Controller         string `json:"controller"`
	PublicKeyMultibase string `json:"publicKeyMultibase"`
}

// PublicKeyMaterial is the verification-method set and the five
// purpose-keyed reference lists into it.
type PublicKeyMaterial struct {
	VerificationMethod   []VerificationMethod `json:"verificationMethod"`
	Authentication       []string             `json:"authentication,omitempty"`
	AssertionMethod      []string             `json:"assertionMethod,omitempty"`
	KeyAgreement         []string             `json:"keyAgreement,omitempty"`
	CapabilityInvocation []string             `json:"capabilityInvocation,omitempty"`
	CapabilityDelegation []string             `json:"capabilityDelegation,omitempty"`
}

func (pkm *PublicKeyMaterial) byID(id string) (*VerificationMethod, bool) {
	for i := range pkm.VerificationMethod {
		if pkm.VerificationMethod[i].ID == id {
			return &pkm.VerificationMethod[i], true
		}
	}
	return nil, false
}

// UpdateRule authorizes the next update to a DID document. It is a tree so
// that threshold/multi-key rules can be introduced later; this build
// supports the single-key leaf form and the distinguished
// UpdatesDisallowed form required for deactivation.
type UpdateRule struct {
	Kind string `json:"kind"`
	Key  string `json:"key,omitempty"`
}

const (
	UpdateRuleKindKey              = "key"
	UpdateRuleKindUpdatesDisallowed = "updatesDisallowed"
)

func SingleKeyUpdateRule(verificationMethodID string) UpdateRule {
	return UpdateRule{Kind: UpdateRuleKindKey, Key: verificationMethodID}
}

func UpdatesDisallowed() UpdateRule {
	return UpdateRule{Kind: UpdateRuleKindUpdatesDisallowed}
}

func (r UpdateRule) DisallowsUpdates() bool {
	return r.Kind == UpdateRuleKindUpdatesDisallowed
}

// DIDDocument is one version of a did:webplus microledger.
type DIDDocument struct {
	ID                      string            `json:"id"`
	SelfHash                string            `json:"selfHash"`
	PrevDIDDocumentSelfHash string            `json:"prevDIDDocumentSelfHash,omitempty"`
	VersionID               uint64            `json:"versionId"`
	ValidFrom               time.Time         `json:"validFrom"`
	PublicKeyMaterial       PublicKeyMaterial `json:"publicKeyMaterial"`
	UpdateRules             UpdateRule        `json:"updateRules"`
	Proofs                  []string          `json:"proofs,omitempty"`
}

func (d *DIDDocument) IsRoot() bool { return d.VersionID == 0 }

// Clone returns a deep-enough copy of d for in-place mutation during
// self-hash computation.
func (d *DIDDocument) Clone() *DIDDocument {
	cpy := *d
	cpy.PublicKeyMaterial.VerificationMethod = append([]VerificationMethod{}, d.PublicKeyMaterial.VerificationMethod...)
	cpy.PublicKeyMaterial.Authentication = append([]string{}, d.PublicKeyMaterial.Authentication...)
	cpy.PublicKeyMaterial.AssertionMethod = append([]string{}, d.PublicKeyMaterial.AssertionMethod...)
	cpy.PublicKeyMaterial.KeyAgreement = append([]string{}, d.PublicKeyMaterial.KeyAgreement...)
	cpy.PublicKeyMaterial.CapabilityInvocation = append([]string{}, d.PublicKeyMaterial.CapabilityInvocation...)
	cpy.PublicKeyMaterial.CapabilityDelegation = append([]string{}, d.PublicKeyMaterial.CapabilityDelegation...)
	cpy.Proofs = append([]string{}, d.Proofs...)
	return &cpy
}

// canonicalBytes renders d to JCS bytes, with selfHash forced to the
// placeholder for fn and, if dropProofs, with proofs omitted entirely —
// the "detached payload" signed and, later, hashed.
//
// For a root document only, the root-self-hash segment of d.id is itself
// the slot this computation solves for (the id names the document that
// self-hashes to it, a fixed point that can't be known in advance), so it
// is placeholder-patched the same way as selfHash. A non-root document's
// id is copied verbatim from its predecessor and already holds that fixed
// point's final value, so it is hashed literally.
func canonicalBytes(d *DIDDocument, fn HashFunction, dropProofs bool) ([]byte, error) {
	placeholder, err := Placeholder(fn)
	if err != nil {
		return nil, err
	}

	cpy := d.Clone()
	cpy.SelfHash = placeholder
	if dropProofs {
		cpy.Proofs = nil
	}
	if cpy.IsRoot() {
		cpy.ID, err = placeholderID(cpy.ID, placeholder)
		if err != nil {
			return nil, err
		}
	}

	raw, err := jsonw.Marshal(cpy)
	if err != nil {
		return nil, werrors.Wrap(werrors.Malformed, "failed to marshal DID document", err)
	}
	return CanonicalizeJSONBytes(raw)
}

// placeholderID returns id with its root-self-hash segment replaced by
// placeholder.
func placeholderID(id, placeholder string) (string, error) {
	d, err := diduri.Parse(id)
	if err != nil {
		return "", werrors.Wrap(werrors.Malformed, "malformed DID document id", err)
	}
	d.RootSelfHash = placeholder
	return d.String(), nil
}

// patchID writes the computed root-self-hash back into id's terminal
// segment.
func patchID(id, selfHash string) (string, error) {
	d, err := diduri.Parse(id)
	if err != nil {
		return "", werrors.Wrap(werrors.Malformed, "malformed DID document id", err)
	}
	d.RootSelfHash = selfHash
	return d.String(), nil
}

// BuildRoot finalizes an unsigned root document: root.SelfHash is computed
// over the JCS bytes with the self-hash slot set to the placeholder, per
// §4.3 root construction. Roots carry no load-bearing proof; Invariant 1 is
// the only requirement for root authentication.
func BuildRoot(root *DIDDocument, fn HashFunction) (*DIDDocument, error) {
	if root.VersionID != 0 {
		return nil, werrors.New(werrors.FailedConstraint, "root document must have versionId 0")
	}
	payload, err := canonicalBytes(root, fn, false)
	if err != nil {
		return nil, err
	}
	selfHash, err := EncodeSelfHash(fn, payload)
	if err != nil {
		return nil, err
	}
	out := root.Clone()
	out.SelfHash = selfHash
	out.ID, err = patchID(out.ID, selfHash)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// BuildNonRoot constructs and signs the next version after prev, following
// §4.3 non-root construction: the new document is signed by signer (an
// update key authorized by prev.UpdateRules) over its placeholder-patched,
// proofs-less payload, and its final self-hash covers the attached proof.
func BuildNonRoot(prev *DIDDocument, next *DIDDocument, fn HashFunction, signer *KeyPair, signerKid string) (*DIDDocument, error) {
	if prev.UpdateRules.DisallowsUpdates() {
		return nil, werrors.New(werrors.Deactivated, "DID has been deactivated; no successor is valid")
	}

	out := next.Clone()
	out.ID = prev.ID
	out.PrevDIDDocumentSelfHash = prev.SelfHash
	out.VersionID = prev.VersionID + 1
	if !out.ValidFrom.After(prev.ValidFrom) {
		return nil, werrors.New(werrors.FailedConstraint, "validFrom must be strictly after the previous document's validFrom")
	}

	detachedPayload, err := canonicalBytes(out, fn, true)
	if err != nil {
		return nil, err
	}

	proof, err := SignDetachedJWS(signer, signerKid, detachedPayload)
	if err != nil {
		return nil, err
	}
	out.Proofs = append(out.Proofs, proof)

	finalPayload, err := canonicalBytes(out, fn, false)
	if err != nil {
		return nil, err
	}
	selfHash, err := EncodeSelfHash(fn, finalPayload)
	if err != nil {
		return nil, err
	}
	out.SelfHash = selfHash

	return out, nil
}

// VerifySelfHash checks invariant 1: recomputing d's self-hash with the
// slot replaced by the placeholder reproduces d.SelfHash.
func VerifySelfHash(d *DIDDocument) error {
	fn, _, err := DecodeSelfHash(d.SelfHash)
	if err != nil {
		return err
	}
	payload, err := canonicalBytes(d, fn, false)
	if err != nil {
		return err
	}
	return VerifyDigest(d.SelfHash, payload)
}

// VerifyNonrecursive validates a single link: d against its predecessor
// prev (nil for the root), per §4.3 "Nonrecursive verification".
func VerifyNonrecursive(d *DIDDocument, prev *DIDDocument) error {
	if err := VerifySelfHash(d); err != nil {
		return err
	}

	if prev != nil {
		if d.ID != prev.ID {
			return werrors.New(werrors.FailedConstraint, "DID document id does not match predecessor")
		}
		if d.PrevDIDDocumentSelfHash != prev.SelfHash {
			return werrors.New(werrors.FailedConstraint, "prevDIDDocumentSelfHash does not match predecessor's selfHash")
		}
		if d.VersionID != prev.VersionID+1 {
			return werrors.New(werrors.FailedConstraint, "versionId is not prev.versionId + 1")
		}
		if !d.ValidFrom.After(prev.ValidFrom) {
			return werrors.New(werrors.FailedConstraint, "validFrom is not strictly after predecessor's validFrom")
		}
		if prev.UpdateRules.DisallowsUpdates() {
			return werrors.New(werrors.Deactivated, "predecessor document disallows further updates")
		}

		fn, _, err := DecodeSelfHash(d.SelfHash)
		if err != nil {
			return err
		}
		detachedPayload, err := canonicalBytes(d, fn, true)
		if err != nil {
			return err
		}

		if err := verifyAnyProof(d.Proofs, prev.UpdateRules, &prev.PublicKeyMaterial, detachedPayload); err != nil {
			return err
		}
	}

	return verifyPublicKeyMaterial(d)
}

func verifyAnyProof(proofs []string, rule UpdateRule, pkm *PublicKeyMaterial, detachedPayload []byte) error {
	if rule.Kind != UpdateRuleKindKey {
		return werrors.New(werrors.Unsupported, "only the single-key updateRules form is supported")
	}
	vm, ok := pkm.byID(rule.Key)
	if !ok {
		return werrors.New(werrors.FailedConstraint, "updateRules key does not resolve to a verification method")
	}
	alg, pub, err := DecodePublicKeyMultibase(vm.PublicKeyMultibase)
	if err != nil {
		return err
	}

	if len(proofs) == 0 {
		return werrors.New(werrors.InvalidSignature, "document has no proofs")
	}
	var lastErr error
	for _, p := range proofs {
		if err := VerifyDetachedJWS(p, alg, pub, detachedPayload); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}
	return werrors.Wrap(werrors.InvalidSignature, "no proof verified under the authorized update key", lastErr)
}

func verifyPublicKeyMaterial(d *DIDDocument) error {
	seen := make(map[string]bool, len(d.PublicKeyMaterial.VerificationMethod))
	for _, vm := range d.PublicKeyMaterial.VerificationMethod {
		if seen[vm.ID] {
			return werrors.New(werrors.FailedConstraint, "duplicate verification method id: "+vm.ID)
		}
		seen[vm.ID] = true
		if vm.Controller != d.ID {
			return werrors.New(werrors.FailedConstraint, "verification method controller does not match document id")
		}
	}

	check := func(refs []string) error {
		for _, ref := range refs {
			if _, ok := d.PublicKeyMaterial.byID(ref); !ok {
				return werrors.New(werrors.FailedConstraint, "key-purpose reference does not resolve: "+ref)
			}
		}
		return nil
	}

	for _, refs := range [][]string{
		d.PublicKeyMaterial.Authentication,
		d.PublicKeyMaterial.AssertionMethod,
		d.PublicKeyMaterial.KeyAgreement,
		d.PublicKeyMaterial.CapabilityInvocation,
		d.PublicKeyMaterial.CapabilityDelegation,
	} {
		if err := check(refs); err != nil {
			return err
		}
	}

	return nil
}
