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

// Package wallet manages controlled DIDs and their private keys, signs on
// their behalf, and keeps a locally-verified replica of each controlled
// DID's microledger.
package wallet

import "time"

// Key purposes mirror the five reference lists of a DID document's public
// key material.
const (
	PurposeAuthentication       = "authentication"
	PurposeAssertionMethod      = "assertionMethod"
	PurposeKeyAgreement         = "keyAgreement"
	PurposeCapabilityInvocation = "capabilityInvocation"
	PurposeCapabilityDelegation = "capabilityDelegation"
	PurposeUpdate               = "update" // not a publicKeyMaterial list; authorizes updateRules
)

// KeyRecord is the wallet's private-key-record shape: opaque to the core,
// carrying everything the wallet itself needs to enforce usage limits and
// select keys by purpose.
type KeyRecord struct {
	DID                   string    `json:"did"`
	VerificationMethodID  string    `json:"verificationMethodId"`
	Algorithm             string    `json:"algorithm"`
	PublicKeyMultibase    string    `json:"publicKeyMultibase"`
	Purposes              []string  `json:"purposes"`
	UsageCount            uint64    `json:"usageCount"`
	UsageCeiling          uint64    `json:"usageCeiling"` // 0 = unlimited
	CreatedAt             time.Time `json:"createdAt"`
	DeletedAt             *time.Time `json:"deletedAt,omitempty"`
	EncryptedPrivateKey   []byte    `json:"encryptedPrivateKey,omitempty"` // absent after deletion
}

func (k *KeyRecord) HasPurpose(p string) bool {
	for _, q := range k.Purposes {
		if q == p {
			return true
		}
	}
	return false
}

func (k *KeyRecord) Available() bool {
	if k.DeletedAt != nil {
		return false
	}
	if k.UsageCeiling == 0 {
		return true
	}
	return k.UsageCount < k.UsageCeiling
}
