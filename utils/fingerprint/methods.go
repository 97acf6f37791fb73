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

package fingerprint

import "io"

// METHODS maps a fingerprint algorithm name to the function that computes
// it, so GetFingerprint can dispatch on a string configured outside this
// package (e.g. a VJSON store's content-logging setting).
var METHODS = map[string]func(io.Reader) ([]byte, error){
	AlgoSha256:      GetSha256Fingerprint,
	AlgoMultihash256: GetMultihashFingerprint,
}
