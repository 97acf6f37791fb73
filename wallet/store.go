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
	"go.etcd.io/bbolt"

	"github.com/webplus-id/core/model"
	"github.com/webplus-id/core/utils"
	"github.com/webplus-id/core/utils/jsonw"
	"github.com/webplus-id/core/werrors"
)

const (
	controlledDIDsBucket = "controlled_dids"
	keysBucket           = "keys"
)

// keyStore persists KeyRecords and the set of controlled DIDs, encrypting
// private-key bytes at rest under the wallet's master key.
type keyStore struct {
	bc        *utils.BoltClient
	masterKey *model.AESKey
}

func openKeyStore(path string, masterKey *model.AESKey) (*keyStore, error) {
	bc, err := utils.NewBoltClient(path, func(bc *utils.BoltClient) error {
		return bc.DB.Update(func(tx *bbolt.Tx) error {
			if _, err := tx.CreateBucketIfNotExists([]byte(controlledDIDsBucket)); err != nil {
				return err
			}
			_, err := tx.CreateBucketIfNotExists([]byte(keysBucket))
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return &keyStore{bc: bc, masterKey: masterKey}, nil
}

func (s *keyStore) Close() error { return s.bc.Close() }

func (s *keyStore) addControlledDID(did string) error {
	return s.bc.DB.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(controlledDIDsBucket)).Put([]byte(did), []byte{1})
	})
}

func (s *keyStore) listControlledDIDs() ([]string, error) {
	var out []string
	err := s.bc.DB.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(controlledDIDsBucket)).ForEach(func(k, _ []byte) error {
			out = append(out, string(k))
			return nil
		})
	})
	return out, err
}

// keyRecordOnDisk mirrors KeyRecord but carries the AES-GCM-sealed private
// key in place of the raw bytes.
type keyRecordOnDisk struct {
	KeyRecord
	SealedPrivateKey []byte `json:"sealedPrivateKey,omitempty"`
}

func (s *keyStore) putKey(rec *KeyRecord, rawPrivateKey []byte) error {
	onDisk := keyRecordOnDisk{KeyRecord: *rec}
	onDisk.EncryptedPrivateKey = nil

	if rawPrivateKey != nil {
		sealed, err := model.EncryptAESCGM(rawPrivateKey, s.masterKey)
		if err != nil {
			return werrors.Wrap(werrors.InternalError, "failed to seal private key", err)
		}
		onDisk.SealedPrivateKey = sealed
	}

	raw, err := jsonw.Marshal(onDisk)
	if err != nil {
		return werrors.Wrap(werrors.InternalError, "failed to marshal key record", err)
	}

	return s.bc.Update(keysBucket, rec.VerificationMethodID, raw)
}

func (s *keyStore) getKey(verificationMethodID string) (*KeyRecord, []byte, error) {
	raw, err := s.bc.FetchBytes(keysBucket, verificationMethodID)
	if err != nil {
		return nil, nil, err
	}
	if raw == nil {
		return nil, nil, werrors.New(werrors.NotFound, "no key record: "+verificationMethodID)
	}

	var onDisk keyRecordOnDisk
	if err := jsonw.Unmarshal(raw, &onDisk); err != nil {
		return nil, nil, werrors.Wrap(werrors.InternalError, "failed to parse key record", err)
	}

	var rawPrivateKey []byte
	if len(onDisk.SealedPrivateKey) > 0 {
		rawPrivateKey, err = model.DecryptAESCGM(onDisk.SealedPrivateKey, s.masterKey)
		if err != nil {
			return nil, nil, werrors.Wrap(werrors.InternalError, "failed to unseal private key", err)
		}
	}

	rec := onDisk.KeyRecord
	return &rec, rawPrivateKey, nil
}

func (s *keyStore) listKeysForDID(did string) ([]*KeyRecord, error) {
	var out []*KeyRecord
	err := s.bc.DB.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(keysBucket)).ForEach(func(_, v []byte) error {
			var onDisk keyRecordOnDisk
			if err := jsonw.Unmarshal(v, &onDisk); err != nil {
				return err
			}
			if onDisk.DID == did {
				rec := onDisk.KeyRecord
				out = append(out, &rec)
			}
			return nil
		})
	})
	return out, err
}
