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
	"github.com/webplus-id/core/utils/jsonw"
	"github.com/webplus-id/core/werrors"
	"github.com/xeipuuv/gojsonschema"
)

// SchemaDecl is the VJSON-specific part of a schema document: the slot and
// dependency declarations layered on top of an ordinary JSON Schema body.
type SchemaDecl struct {
	SelfHashPaths      []string `json:"selfHashPaths,omitempty"`
	SelfHashURLPaths   []string `json:"selfHashURLPaths,omitempty"`
	DirectDependencies []string `json:"directDependencies,omitempty"`
	MustBeSigned       bool     `json:"mustBeSigned,omitempty"`
}

// Schema is a resolved VJSON schema: its declarations plus the raw JSON
// Schema body used for structural validation.
type Schema struct {
	SchemaDecl
	SelfHashURL string // the URL this schema was fetched/addressed by
	Raw         map[string]any
}

// DefaultSchemaName is the distinguished schema that supplies minimal
// defaults when a value carries no $schema: it is its own $schema target.
const DefaultSchemaName = "default"

// ParseSchema decodes a VJSON schema document (itself a VJSON value) from
// JCS bytes.
func ParseSchema(raw []byte, selfHashURL string) (*Schema, error) {
	var tree map[string]any
	if err := jsonw.Unmarshal(raw, &tree); err != nil {
		return nil, werrors.Wrap(werrors.Malformed, "failed to parse VJSON schema", err)
	}

	var decl SchemaDecl
	if err := jsonw.Unmarshal(raw, &decl); err != nil {
		return nil, werrors.Wrap(werrors.Malformed, "failed to parse VJSON schema declarations", err)
	}

	return &Schema{SchemaDecl: decl, SelfHashURL: selfHashURL, Raw: tree}, nil
}

// validate structurally checks value against the schema's raw JSON Schema
// body using gojsonschema.
func (s *Schema) validate(value map[string]any) error {
	if s.Raw == nil {
		return nil
	}
	schemaLoader := gojsonschema.NewGoLoader(s.Raw)
	docLoader := gojsonschema.NewGoLoader(value)

	result, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		return werrors.Wrap(werrors.Malformed, "schema validation failed to run", err)
	}
	if !result.Valid() {
		msg := "value does not conform to its schema"
		if len(result.Errors()) > 0 {
			msg = result.Errors()[0].String()
		}
		return werrors.New(werrors.Malformed, msg)
	}
	return nil
}

// effectivePaths derives the slot path sets for a value, adding $.$schema
// to the URL-path set when the value is the schema's own self-schema (so
// the default schema's own $schema URL is one of its own slots).
func (s *Schema) effectivePaths(isSelfSchema bool) (selfHashPaths, selfHashURLPaths []string) {
	selfHashPaths = append([]string{}, s.SelfHashPaths...)
	selfHashURLPaths = append([]string{}, s.SelfHashURLPaths...)
	if isSelfSchema {
		selfHashURLPaths = append(selfHashURLPaths, "$.$schema")
	}
	return
}

// NewDefaultSchemaBody builds the JSON body of the Default schema, whose
// $schema field is set to the placeholder self-hash URL token pending
// BuildDefaultSchema's self-hash computation.
func NewDefaultSchemaBody(selfURLTemplate string) map[string]any {
	return map[string]any{
		"$schema":            selfURLTemplate,
		"$id":                DefaultSchemaName,
		"selfHash":           mustPlaceholder(),
		"selfHashPaths":      []any{"$.selfHash"},
		"selfHashURLPaths":   []any{},
		"directDependencies": []any{},
		"mustBeSigned":       false,
		"type":               "object",
	}
}

func mustPlaceholder() string {
	p, err := microledger.Placeholder(microledger.DefaultHashFunction)
	if err != nil {
		panic(err)
	}
	return p
}
