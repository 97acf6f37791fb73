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

package resolver

import (
	"context"
	"strings"

	"github.com/webplus-id/core/diduri"
	"github.com/webplus-id/core/microledger"
	"github.com/webplus-id/core/vjson"
	"github.com/webplus-id/core/werrors"
)

// KeyResolver satisfies vjson.KeyResolver (and, via its did:webplus case,
// DID-document proof verification) by resolving a kid's DID through r and
// extracting the named verification method, falling back to did:key's
// self-contained decoding for did:key kids.
type KeyResolver struct {
	r Resolver
}

func NewKeyResolver(r Resolver) *KeyResolver {
	return &KeyResolver{r: r}
}

var _ vjson.KeyResolver = (*KeyResolver)(nil)

func (k *KeyResolver) ResolveVerificationMethod(kid string) (microledger.Algorithm, []byte, error) {
	d, err := diduri.Parse(kid)
	if err != nil {
		return "", nil, err
	}
	if d.IsKey() {
		return vjson.KeyKeyResolver{}.ResolveVerificationMethod(kid)
	}
	if !d.IsWebPlus() {
		return "", nil, werrors.New(werrors.Unsupported, "unsupported DID method in kid: "+kid)
	}
	if d.Fragment == "" {
		return "", nil, werrors.New(werrors.Malformed, "kid has no verification-method fragment: "+kid)
	}

	docQuery := *d
	docQuery.Fragment = ""

	doc, _, err := k.r.ResolveDIDDocument(context.Background(), docQuery.String(), microledger.RequestedMetadata{})
	if err != nil {
		return "", nil, err
	}

	for _, vm := range doc.PublicKeyMaterial.VerificationMethod {
		if strings.HasSuffix(vm.ID, "#"+d.Fragment) {
			return microledger.DecodePublicKeyMultibase(vm.PublicKeyMultibase)
		}
	}
	return "", nil, werrors.New(werrors.FailedConstraint, "verification method not found: "+kid)
}
