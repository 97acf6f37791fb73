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

package utils

import (
	"github.com/webplus-id/core/utils/jsonw"
)

// MarshalToType re-encodes val as dest via JSON, the same marshal-then-
// unmarshal idiom used for decoding a generic config map (storage.Parameters)
// into a typed struct. With allowUnknownFields false, dest must account for
// every field val carries.
func MarshalToType(val any, dest any, allowUnknownFields bool) error {
	if allowUnknownFields {
		b, err := jsonw.Marshal(val)
		if err != nil {
			return err
		}
		err = jsonw.Unmarshal(b, dest)
		if err != nil {
			return err
		}
		return nil
	} else {
		return jsonw.MarshalToTypeWithFieldValidation(val, dest)
	}
}
