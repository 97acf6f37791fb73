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

package wallet

import (
	"context"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/webplus-id/core/diduri"
	"github.com/webplus-id/core/microledger"
	"github.com/webplus-id/core/model"
	"github.com/webplus-id/core/resolver"
	"github.com/webplus-id/core/sdk/httpsecure"
	"github.com/webplus-id/core/storage"
	_ "github.com/webplus-id/core/storage/boltstore"
	"github.com/webplus-id/core/vjson"
	"github.com/webplus-id/core/werrors"
)

const userAgent = "webplus-wallet/1"

// Wallet manages the DIDs it controls: their private keys, a locally
// verified replica of each controlled DID's microledger, and the VDR
// connection it publishes new versions through. Updates to a single DID
// are serialized; updates to distinct DIDs proceed concurrently.
type Wallet struct {
	keys     *keyStore
	replica  storage.DIDBackend
	resolver *resolver.FullResolver
	vdr      *httpsecure.Client

	mu       sync.Mutex
	didLocks map[string]*sync.Mutex
}

// Open opens (creating if necessary) a wallet rooted at storeDir, publishing
// to and resolving through the VDR at vdrEndpoint. masterKey seals private
// key material at rest.
func Open(storeDir, vdrEndpoint string, masterKey *model.AESKey, scheme *diduri.SchemeOverride) (*Wallet, error) {
	ks, err := openKeyStore(filepath.Join(storeDir, "keys.bolt"), masterKey)
	if err != nil {
		return nil, err
	}

	replica, err := storage.CreateDIDBackend(&storage.DIDBackendConfig{
		Type:   "bolt",
		Params: storage.Parameters{"file": filepath.Join(storeDir, "replica.bolt")},
	})
	if err != nil {
		_ = ks.Close()
		return nil, err
	}

	vdr, err := httpsecure.NewHTTPClient(vdrEndpoint, userAgent, 30*time.Second, nil)
	if err != nil {
		_ = ks.Close()
		_ = replica.Close()
		return nil, err
	}

	return &Wallet{
		keys:     ks,
		replica:  replica,
		resolver: resolver.NewFullResolver(replica, scheme, 8),
		vdr:      vdr,
		didLocks: make(map[string]*sync.Mutex),
	}, nil
}

func (w *Wallet) Close() error {
	err := w.keys.Close()
	if rerr := w.replica.Close(); err == nil {
		err = rerr
	}
	return err
}

func (w *Wallet) lockFor(did string) *sync.Mutex {
	w.mu.Lock()
	defer w.mu.Unlock()
	l, ok := w.didLocks[did]
	if !ok {
		l = &sync.Mutex{}
		w.didLocks[did] = l
	}
	return l
}

// CreateDID generates an update key and an authentication key, constructs
// and self-hashes a root document at host/pathSegments, publishes it to the
// VDR, replicates and persists it locally, and records both keys. It
// returns the resulting fully-qualified DID.
func (w *Wallet) CreateDID(ctx context.Context, host string, pathSegments []string, alg microledger.Algorithm) (string, error) {
	updateKP, err := microledger.GenerateKeyPair(alg)
	if err != nil {
		return "", err
	}
	authKP, err := microledger.GenerateKeyPair(alg)
	if err != nil {
		return "", err
	}

	updateMultibase, err := updateKP.PublicKeyMultibase()
	if err != nil {
		return "", err
	}
	authMultibase, err := authKP.PublicKeyMultibase()
	if err != nil {
		return "", err
	}

	// The root-self-hash segment is a placeholder until BuildRoot solves
	// for the fixed point; any syntactically valid value works here.
	draftID := (&diduri.DID{
		Method:       diduri.MethodWebPlus,
		Host:         host,
		PathSegments: pathSegments,
		RootSelfHash: "root",
	}).String()

	updateVMID := draftID + "#update-key"
	authVMID := draftID + "#auth-key"

	root := &microledger.DIDDocument{
		ID:        draftID,
		VersionID: 0,
		ValidFrom: time.Now().UTC(),
		PublicKeyMaterial: microledger.PublicKeyMaterial{
			VerificationMethod: []microledger.VerificationMethod{
				{ID: updateVMID, Type: verificationMethodType(alg), Controller: draftID, PublicKeyMultibase: updateMultibase},
				{ID: authVMID, Type: verificationMethodType(alg), Controller: draftID, PublicKeyMultibase: authMultibase},
			},
			Authentication: []string{authVMID},
			AssertionMethod: []string{authVMID},
		},
		UpdateRules: microledger.SingleKeyUpdateRule(updateVMID),
	}

	built, err := microledger.BuildRoot(root, microledger.DefaultHashFunction)
	if err != nil {
		return "", err
	}

	if err := w.publish(ctx, built.ID, built, true); err != nil {
		return "", err
	}

	did := built.ID
	finalUpdateVMID := did + "#update-key"
	finalAuthVMID := did + "#auth-key"

	if err := w.keys.putKey(&KeyRecord{
		DID: did, VerificationMethodID: finalUpdateVMID, Algorithm: string(alg),
		PublicKeyMultibase: updateMultibase, Purposes: []string{PurposeUpdate}, CreatedAt: time.Now().UTC(),
	}, updateKP.PrivateKey); err != nil {
		return "", err
	}
	if err := w.keys.putKey(&KeyRecord{
		DID: did, VerificationMethodID: finalAuthVMID, Algorithm: string(alg),
		PublicKeyMultibase: authMultibase, Purposes: []string{PurposeAuthentication, PurposeAssertionMethod}, CreatedAt: time.Now().UTC(),
	}, authKP.PrivateKey); err != nil {
		return "", err
	}
	if err := w.keys.addControlledDID(did); err != nil {
		return "", err
	}

	return did, nil
}

func verificationMethodType(alg microledger.Algorithm) string {
	switch alg {
	case microledger.AlgEdDSA:
		return "Ed25519VerificationKey2020"
	case microledger.AlgES256K:
		return "EcdsaSecp256k1VerificationKey2019"
	default:
		return "Multikey"
	}
}

// UpdateDID builds, signs and publishes the next version of did, built by
// mutate from a copy of the current tail (prevDIDDocumentSelfHash, id,
// versionId and validFrom are overwritten regardless of what mutate sets).
func (w *Wallet) UpdateDID(ctx context.Context, did string, mutate func(next *microledger.DIDDocument)) error {
	lock := w.lockFor(did)
	lock.Lock()
	defer lock.Unlock()

	_, _, err := w.resolver.ResolveDIDDocument(ctx, did, microledger.RequestedMetadata{})
	if err != nil {
		return err
	}

	log, err := w.replica.GetDIDLog(ctx, did, 0)
	if err != nil {
		return err
	}
	tail := log[len(log)-1]
	if tail.UpdateRules.DisallowsUpdates() {
		return werrors.New(werrors.Deactivated, "DID has been deactivated; no successor is valid")
	}

	next := tail.Clone()
	next.Proofs = nil
	next.ValidFrom = time.Now().UTC()
	mutate(next)

	updateKey, err := w.resolveUpdateKey(tail)
	if err != nil {
		return err
	}

	built, err := microledger.BuildNonRoot(tail, next, microledger.DefaultHashFunction, updateKey.kp, updateKey.kid)
	if err != nil {
		return err
	}

	return w.publish(ctx, did, built, false)
}

// DeactivateDID publishes a final version of did whose updateRules
// disallows any further update.
func (w *Wallet) DeactivateDID(ctx context.Context, did string) error {
	return w.UpdateDID(ctx, did, func(next *microledger.DIDDocument) {
		next.UpdateRules = microledger.UpdatesDisallowed()
	})
}

type resolvedUpdateKey struct {
	kp  *microledger.KeyPair
	kid string
}

func (w *Wallet) resolveUpdateKey(tail *microledger.DIDDocument) (*resolvedUpdateKey, error) {
	if tail.UpdateRules.Kind != microledger.UpdateRuleKindKey {
		return nil, werrors.New(werrors.Unsupported, "only the single-key updateRules form is supported")
	}
	rec, raw, err := w.keys.getKey(tail.UpdateRules.Key)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, werrors.New(werrors.NotFound, "update key is not held by this wallet: "+tail.UpdateRules.Key)
	}
	kp := &microledger.KeyPair{Algorithm: microledger.Algorithm(rec.Algorithm), PrivateKey: raw}
	_, pub, decErr := microledger.DecodePublicKeyMultibase(rec.PublicKeyMultibase)
	if decErr == nil {
		kp.PublicKey = pub
	}
	if err := w.bumpUsage(rec); err != nil {
		return nil, err
	}
	return &resolvedUpdateKey{kp: kp, kid: rec.VerificationMethodID}, nil
}

func (w *Wallet) bumpUsage(rec *KeyRecord) error {
	if !rec.Available() {
		return werrors.New(werrors.FailedConstraint, "update key has exhausted its usage ceiling: "+rec.VerificationMethodID)
	}
	_, raw, err := w.keys.getKey(rec.VerificationMethodID)
	if err != nil {
		return err
	}
	rec.UsageCount++
	return w.keys.putKey(rec, raw)
}

// publish pushes doc to the VDR at its did.json resource (POST to create
// the root, PUT to append a successor), then replicates it into the local
// verified copy.
func (w *Wallet) publish(ctx context.Context, did string, doc *microledger.DIDDocument, root bool) error {
	path, err := vdrDocumentPath(did)
	if err != nil {
		return err
	}
	method := http.MethodPost
	if !root {
		method = http.MethodPut
	}

	res, err := w.vdr.SendRequest(ctx, method, path, httpsecure.WithJSONBody(doc), httpsecure.SkipAuthentication())
	if err != nil {
		return werrors.Wrap(werrors.InternalError, "failed to reach VDR", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode/100 != 2 {
		return werrors.New(werrors.InternalError, "VDR rejected DID document: "+res.Status)
	}

	if root {
		return w.replica.CreateDIDLog(ctx, did, doc)
	}
	return w.replica.AppendDIDDocument(ctx, did, doc)
}

// vdrDocumentPath renders the VDR-relative path for did's did.json
// resource: its path segments followed by its root-self-hash.
func vdrDocumentPath(did string) (string, error) {
	d, err := diduri.Parse(did)
	if err != nil {
		return "", err
	}
	segs := append(append([]string{}, d.PathSegments...), d.RootSelfHash)
	return "/" + strings.Join(segs, "/") + "/did.json", nil
}

// SignJWS signs payload with the first controlled, available key of did
// matching purpose, returning a detached compact JWS.
func (w *Wallet) SignJWS(did, purpose string, payload []byte) (string, error) {
	rec, kp, err := w.findSigningKey(did, purpose)
	if err != nil {
		return "", err
	}
	proof, err := microledger.SignDetachedJWS(kp, rec.VerificationMethodID, payload)
	if err != nil {
		return "", err
	}
	return proof, w.bumpUsage(rec)
}

// SignVJSON attaches a proof to value under schema using the wallet's first
// controlled, available key of did matching purpose.
func (w *Wallet) SignVJSON(did, purpose string, schema *vjson.Schema, value map[string]any, isSelfSchema bool) error {
	rec, kp, err := w.findSigningKey(did, purpose)
	if err != nil {
		return err
	}
	if err := vjson.Sign(schema, value, microledger.DefaultHashFunction, isSelfSchema, kp, rec.VerificationMethodID); err != nil {
		return err
	}
	return w.bumpUsage(rec)
}

func (w *Wallet) findSigningKey(did, purpose string) (*KeyRecord, *microledger.KeyPair, error) {
	recs, err := w.keys.listKeysForDID(did)
	if err != nil {
		return nil, nil, err
	}
	for _, rec := range recs {
		if !rec.HasPurpose(purpose) || !rec.Available() {
			continue
		}
		_, raw, err := w.keys.getKey(rec.VerificationMethodID)
		if err != nil {
			return nil, nil, err
		}
		if raw == nil {
			continue
		}
		kp := &microledger.KeyPair{Algorithm: microledger.Algorithm(rec.Algorithm), PrivateKey: raw}
		if _, pub, err := microledger.DecodePublicKeyMultibase(rec.PublicKeyMultibase); err == nil {
			kp.PublicKey = pub
		}
		return rec, kp, nil
	}
	return nil, nil, werrors.New(werrors.NotFound, "no available key for did "+did+" with purpose "+purpose)
}

// GetControlledDIDs returns every DID this wallet controls.
func (w *Wallet) GetControlledDIDs() ([]string, error) {
	return w.keys.listControlledDIDs()
}

// GetLocallyControlledVerificationMethod returns the key records held for
// did that satisfy purpose.
func (w *Wallet) GetLocallyControlledVerificationMethod(did, purpose string) ([]*KeyRecord, error) {
	recs, err := w.keys.listKeysForDID(did)
	if err != nil {
		return nil, err
	}
	var out []*KeyRecord
	for _, rec := range recs {
		if rec.HasPurpose(purpose) {
			out = append(out, rec)
		}
	}
	return out, nil
}
