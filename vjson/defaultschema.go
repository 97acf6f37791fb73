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
	"github.com/webplus-id/core/microledger"
	"github.com/webplus-id/core/werrors"
)

// BuildDefaultSchema closes the Default schema's self-reference: it builds
// the schema body whose own $schema field names itself, computes its
// self-hash (with $.$schema treated as one of its own self-hash-URL slots,
// per effectivePaths(isSelfSchema=true)), writes the resulting hash into
// both $.selfHash and the $schema URL's terminal token, and returns the
// closed value alongside its JCS bytes — what a vjsonstore seeds itself
// with at construction.
func BuildDefaultSchema(selfURLTemplate string) (map[string]any, []byte, error) {
	body := NewDefaultSchemaBody(selfURLTemplate)

	decl := SchemaDecl{
		SelfHashPaths:    []string{"$.selfHash"},
		SelfHashURLPaths: nil,
		MustBeSigned:     false,
	}
	schema := &Schema{SchemaDecl: decl, SelfHashURL: selfURLTemplate, Raw: nil}

	if err := Compute(schema, body, microledger.DefaultHashFunction, true); err != nil {
		return nil, nil, werrors.Wrap(werrors.InternalError, "failed to close the default schema self-reference", err)
	}

	raw, err := microledger.CanonicalJSON(body)
	if err != nil {
		return nil, nil, err
	}

	return body, raw, nil
}
