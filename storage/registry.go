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

package storage

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/webplus-id/core/utils"
)

type Parameters map[string]any

// As decodes p into dest (a pointer to a backend-specific config struct),
// the same marshal-then-unmarshal idiom the rest of the stack uses to turn
// a generic map into a typed value.
func (p Parameters) As(dest any) error {
	return utils.MarshalToType(p, dest, true)
}

type DIDBackendConfig struct {
	Type   string     `json:"type"`
	Params Parameters `json:"params"`
}

type VJSONBackendConfig struct {
	Type   string     `json:"type"`
	Params Parameters `json:"params"`
}

type (
	DIDBackendConstructor   func(params Parameters) (DIDBackend, error)
	VJSONBackendConstructor func(params Parameters) (VJSONBackend, error)
)

var (
	didBackendConstructors   = make(map[string]DIDBackendConstructor)
	vjsonBackendConstructors = make(map[string]VJSONBackendConstructor)
)

func RegisterDIDBackend(backendType string, ctor DIDBackendConstructor) {
	if _, ok := didBackendConstructors[backendType]; ok {
		panic("DID backend constructor already registered for type: " + backendType)
	}
	didBackendConstructors[backendType] = ctor
}

func RegisterVJSONBackend(backendType string, ctor VJSONBackendConstructor) {
	if _, ok := vjsonBackendConstructors[backendType]; ok {
		panic("VJSON backend constructor already registered for type: " + backendType)
	}
	vjsonBackendConstructors[backendType] = ctor
}

func CreateDIDBackend(cfg *DIDBackendConfig) (DIDBackend, error) {
	log.Info().Str("type", cfg.Type).Msg("Creating DID backend")

	ctor, ok := didBackendConstructors[cfg.Type]
	if !ok {
		return nil, fmt.Errorf("DID backend %s not known or loaded", cfg.Type)
	}

	return ctor(cfg.Params)
}

func CreateVJSONBackend(cfg *VJSONBackendConfig) (VJSONBackend, error) {
	log.Info().Str("type", cfg.Type).Msg("Creating VJSON backend")

	ctor, ok := vjsonBackendConstructors[cfg.Type]
	if !ok {
		return nil, fmt.Errorf("VJSON backend %s not known or loaded", cfg.Type)
	}

	return ctor(cfg.Params)
}
