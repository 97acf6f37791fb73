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
	"crypto/ed25519"
	"encoding/base64"
)

func base64URLEncode(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

func ed25519PrivateKey(raw []byte) ed25519.PrivateKey {
	return ed25519.PrivateKey(raw)
}

func ed25519PublicKey(raw []byte) ed25519.PublicKey {
	return ed25519.PublicKey(raw)
}
