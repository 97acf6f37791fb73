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

package microledger_test

import (
	"testing"

	. "github.com/webplus-id/core/microledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignVerifyRoundTripAllMandatoryAlgorithms(t *testing.T) {
	for _, alg := range []Algorithm{AlgEdDSA, AlgES256K, AlgES256, AlgES384} {
		t.Run(string(alg), func(t *testing.T) {
			kp, err := GenerateKeyPair(alg)
			require.NoError(t, err)

			payload := []byte("did:webplus test payload")
			sig, err := kp.Sign(payload)
			require.NoError(t, err)

			require.NoError(t, Verify(alg, kp.PublicKey, payload, sig))

			require.Error(t, Verify(alg, kp.PublicKey, []byte("tampered payload"), sig))
		})
	}
}

func TestPublicKeyMultibaseRoundTripAllMandatoryAlgorithms(t *testing.T) {
	for _, alg := range []Algorithm{AlgEdDSA, AlgES256K, AlgES256, AlgES384} {
		t.Run(string(alg), func(t *testing.T) {
			kp, err := GenerateKeyPair(alg)
			require.NoError(t, err)

			encoded, err := kp.PublicKeyMultibase()
			require.NoError(t, err)

			decodedAlg, decodedPub, err := DecodePublicKeyMultibase(encoded)
			require.NoError(t, err)
			assert.Equal(t, alg, decodedAlg)
			assert.Equal(t, kp.PublicKey, decodedPub)
		})
	}
}

func TestSignDetachedJWSRoundTripP256AndP384(t *testing.T) {
	for _, alg := range []Algorithm{AlgES256, AlgES384} {
		t.Run(string(alg), func(t *testing.T) {
			kp, err := GenerateKeyPair(alg)
			require.NoError(t, err)

			payload := []byte(`{"hello":"world"}`)
			detached, err := SignDetachedJWS(kp, "did:webplus:example.com:abc#update-key", payload)
			require.NoError(t, err)

			require.NoError(t, VerifyDetachedJWS(detached, alg, kp.PublicKey, payload))
			require.Error(t, VerifyDetachedJWS(detached, alg, kp.PublicKey, []byte("different payload")))
		})
	}
}

func TestGenerateKeyPairRejectsUnsupportedAlgorithm(t *testing.T) {
	_, err := GenerateKeyPair(AlgES512)
	assert.Error(t, err)

	_, err = GenerateKeyPair(AlgEdDSA448)
	assert.Error(t, err)
}
