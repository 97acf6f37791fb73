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
	"time"

	"github.com/webplus-id/core/diduri"
	"github.com/webplus-id/core/werrors"
)

// Microledger is the in-memory, ordered, hash-chained sequence of DID
// documents for a single DID, plus the indices the spec requires: by
// selfHash, by versionId, ordered by validFrom.
type Microledger struct {
	docs      []*DIDDocument
	byVersion map[uint64]*DIDDocument
	bySelf    map[string]*DIDDocument
}

// Create validates root and initializes a new Microledger from it.
func Create(root *DIDDocument) (*Microledger, error) {
	if !root.IsRoot() {
		return nil, werrors.New(werrors.FailedConstraint, "first document of a microledger must have versionId 0")
	}
	if err := VerifyNonrecursive(root, nil); err != nil {
		return nil, err
	}

	did, err := diduri.Parse(root.ID)
	if err != nil {
		return nil, err
	}
	if did.RootSelfHash != root.SelfHash {
		return nil, werrors.New(werrors.FailedConstraint, "root document selfHash does not match the DID's root-self-hash component")
	}

	m := &Microledger{
		byVersion: make(map[uint64]*DIDDocument),
		bySelf:    make(map[string]*DIDDocument),
	}
	m.index(root)
	return m, nil
}

func (m *Microledger) index(d *DIDDocument) {
	m.docs = append(m.docs, d)
	m.byVersion[d.VersionID] = d
	m.bySelf[d.SelfHash] = d
}

// Tail returns the most recently appended document.
func (m *Microledger) Tail() *DIDDocument {
	if len(m.docs) == 0 {
		return nil
	}
	return m.docs[len(m.docs)-1]
}

// Root returns the first document.
func (m *Microledger) Root() *DIDDocument {
	if len(m.docs) == 0 {
		return nil
	}
	return m.docs[0]
}

// Append validates doc against the current tail and, on success, extends
// the microledger. On any failure the microledger is left unchanged.
func (m *Microledger) Append(doc *DIDDocument) error {
	tail := m.Tail()
	if tail == nil {
		return werrors.New(werrors.InternalError, "microledger has no root")
	}

	if existing, ok := m.byVersion[doc.VersionID]; ok {
		if existing.SelfHash != doc.SelfHash {
			return werrors.New(werrors.FailedConstraint, "forked DID: two distinct documents share versionId")
		}
		return werrors.New(werrors.AlreadyExists, "DID document version already known")
	}

	if err := VerifyNonrecursive(doc, tail); err != nil {
		return err
	}

	m.index(doc)
	return nil
}

// GetByVersionID returns the document at versionID, or NotFound.
func (m *Microledger) GetByVersionID(versionID uint64) (*DIDDocument, error) {
	if d, ok := m.byVersion[versionID]; ok {
		return d, nil
	}
	return nil, werrors.New(werrors.NotFound, "no document with that versionId")
}

// GetBySelfHash returns the document with the given self-hash, or NotFound.
func (m *Microledger) GetBySelfHash(selfHash string) (*DIDDocument, error) {
	if d, ok := m.bySelf[selfHash]; ok {
		return d, nil
	}
	return nil, werrors.New(werrors.NotFound, "no document with that selfHash")
}

// ValidAt returns the unique document whose [validFrom, next.validFrom)
// interval contains t.
func (m *Microledger) ValidAt(t time.Time) (*DIDDocument, error) {
	var result *DIDDocument
	for _, d := range m.docs {
		if d.ValidFrom.After(t) {
			break
		}
		result = d
	}
	if result == nil {
		return nil, werrors.New(werrors.NotFound, "no document was valid at the given time")
	}
	return result, nil
}

// RequestedMetadata selects which derived metadata fields Resolve computes.
type RequestedMetadata struct {
	Created             bool
	NextUpdate           bool
	NextVersionID        bool
	MostRecentUpdate     bool
	MostRecentVersionID  bool
	Deactivated          bool
}

// Metadata holds the derived (never stored) document metadata fields.
type Metadata struct {
	Created             time.Time  `json:"created,omitempty"`
	NextUpdate           *time.Time `json:"nextUpdate,omitempty"`
	NextVersionID        *uint64    `json:"nextVersionId,omitempty"`
	MostRecentUpdate     time.Time  `json:"mostRecentUpdate,omitempty"`
	MostRecentVersionID  uint64     `json:"mostRecentVersionId,omitempty"`
	Deactivated          bool       `json:"deactivated,omitempty"`
}

func (m *Microledger) metadata(target *DIDDocument, req RequestedMetadata) Metadata {
	var md Metadata
	root := m.Root()
	tail := m.Tail()

	if req.Created {
		md.Created = root.ValidFrom
	}
	if req.MostRecentUpdate {
		md.MostRecentUpdate = tail.ValidFrom
	}
	if req.MostRecentVersionID {
		md.MostRecentVersionID = tail.VersionID
	}
	if req.Deactivated {
		md.Deactivated = tail.UpdateRules.DisallowsUpdates()
	}
	if req.NextUpdate || req.NextVersionID {
		if next, ok := m.byVersion[target.VersionID+1]; ok {
			if req.NextUpdate {
				t := next.ValidFrom
				md.NextUpdate = &t
			}
			if req.NextVersionID {
				v := next.VersionID
				md.NextVersionID = &v
			}
		}
	}

	return md
}

// Resolve implements §4.4 resolve: at most one of versionID/selfHash
// selects the document; if both are given they must agree, else
// FailedConstraint.
func (m *Microledger) Resolve(versionID *uint64, selfHash *string, req RequestedMetadata) (*DIDDocument, Metadata, error) {
	var byVersion, bySelf *DIDDocument
	var err error

	if versionID != nil {
		byVersion, err = m.GetByVersionID(*versionID)
		if err != nil {
			return nil, Metadata{}, err
		}
	}
	if selfHash != nil {
		bySelf, err = m.GetBySelfHash(*selfHash)
		if err != nil {
			return nil, Metadata{}, err
		}
	}

	var target *DIDDocument
	switch {
	case byVersion != nil && bySelf != nil:
		if byVersion.SelfHash != bySelf.SelfHash {
			return nil, Metadata{}, werrors.New(werrors.FailedConstraint, "selfHash and versionId disagree")
		}
		target = byVersion
	case byVersion != nil:
		target = byVersion
	case bySelf != nil:
		target = bySelf
	default:
		target = m.Tail()
	}

	return target, m.metadata(target, req), nil
}

// Documents returns the full, ordered document sequence (root first).
func (m *Microledger) Documents() []*DIDDocument {
	return append([]*DIDDocument{}, m.docs...)
}

// FragmentKid builds a fully-qualified DID resource string for the given
// document version and verification-method fragment, used as a JWS kid.
func FragmentKid(did string, selfHash string, versionID uint64, fragment string) string {
	base := did
	if i := strings.IndexByte(base, '?'); i >= 0 {
		base = base[:i]
	}
	return base + "?selfHash=" + selfHash + "&versionId=" + uitoa(versionID) + "#" + fragment
}

func uitoa(v uint64) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}
