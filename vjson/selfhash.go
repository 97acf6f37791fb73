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
	"github.com/webplus-id/core/diduri"
	"github.com/webplus-id/core/microledger"
	"github.com/webplus-id/core/werrors"
)

// Compute fills every self-hash and self-hash-URL slot of value according
// to schema: slots are set to the placeholder, the JCS bytes are hashed,
// and the digest is written back into every self-hash slot and into the
// terminal token of every self-hash-URL slot.
func Compute(schema *Schema, value map[string]any, fn microledger.HashFunction, isSelfSchema bool) error {
	selfHashPaths, selfHashURLPaths := schema.effectivePaths(isSelfSchema)

	placeholder, err := microledger.Placeholder(fn)
	if err != nil {
		return err
	}

	if err := setAllPlaceholder(value, selfHashPaths, placeholder); err != nil {
		return err
	}
	if err := setAllURLPlaceholder(value, selfHashURLPaths, placeholder); err != nil {
		return err
	}

	payload, err := microledger.CanonicalJSON(value)
	if err != nil {
		return err
	}
	hash, err := microledger.EncodeSelfHash(fn, payload)
	if err != nil {
		return err
	}

	for _, p := range selfHashPaths {
		if err := setSlots(value, p, hash); err != nil {
			return err
		}
	}
	for _, p := range selfHashURLPaths {
		if err := setURLSlot(value, p, hash); err != nil {
			return err
		}
	}

	return nil
}

// Verify checks invariant 3 for a VJSON value: every self-hash slot holds
// the same digest, and substituting the placeholder for all slots and
// rehashing reproduces it.
func Verify(schema *Schema, value map[string]any, isSelfSchema bool) error {
	selfHashPaths, selfHashURLPaths := schema.effectivePaths(isSelfSchema)

	var claimed string
	for i, p := range selfHashPaths {
		vs, err := getSlots(value, p)
		if err != nil {
			return err
		}
		for _, v := range vs {
			if i == 0 && claimed == "" {
				claimed = v
			} else if v != claimed {
				return werrors.New(werrors.MalformedSelfHash, "self-hash slots disagree")
			}
		}
	}
	for _, p := range selfHashURLPaths {
		v, err := getURLSlotHash(value, p)
		if err != nil {
			return err
		}
		if claimed == "" {
			claimed = v
		} else if v != claimed {
			return werrors.New(werrors.MalformedSelfHash, "self-hash URL slot disagrees with self-hash slots")
		}
	}
	if claimed == "" {
		return werrors.New(werrors.Malformed, "value has no self-hash slots")
	}

	fn, _, err := microledger.DecodeSelfHash(claimed)
	if err != nil {
		return err
	}
	placeholder, err := microledger.Placeholder(fn)
	if err != nil {
		return err
	}

	cloned := cloneTree(value)
	if err := setAllPlaceholder(cloned, selfHashPaths, placeholder); err != nil {
		return err
	}
	if err := setAllURLPlaceholder(cloned, selfHashURLPaths, placeholder); err != nil {
		return err
	}

	payload, err := microledger.CanonicalJSON(cloned)
	if err != nil {
		return err
	}

	return microledger.VerifyDigest(claimed, payload)
}

func setAllPlaceholder(value map[string]any, paths []string, placeholder string) error {
	for _, p := range paths {
		if err := setSlots(value, p, placeholder); err != nil {
			return err
		}
	}
	return nil
}

func setAllURLPlaceholder(value map[string]any, paths []string, placeholder string) error {
	for _, p := range paths {
		if err := setURLSlot(value, p, placeholder); err != nil {
			return err
		}
	}
	return nil
}

func setURLSlot(value map[string]any, path string, hash string) error {
	current, err := getSlots(value, path)
	if err != nil {
		return err
	}
	for _, url := range current {
		newURL, err := diduri.ReplaceSelfHashURLToken(url, hash)
		if err != nil {
			return err
		}
		if err := replaceOneURLSlot(value, path, url, newURL); err != nil {
			return err
		}
	}
	return nil
}

// replaceOneURLSlot re-sets the slot(s) at path, rewriting only matches of
// oldURL to newURL (paths may resolve to several URLs when wildcarded).
func replaceOneURLSlot(value map[string]any, path, oldURL, newURL string) error {
	steps, err := parsePath(path)
	if err != nil {
		return err
	}
	refs, err := resolveSlots(value, steps)
	if err != nil {
		return err
	}
	for _, r := range refs {
		if s, ok := r.get().(string); ok && s == oldURL {
			r.set(newURL)
		}
	}
	return nil
}

func getURLSlotHash(value map[string]any, path string) (string, error) {
	vs, err := getSlots(value, path)
	if err != nil {
		return "", err
	}
	if len(vs) == 0 {
		return "", werrors.New(werrors.FailedConstraint, "self-hash URL slot not present: "+path)
	}
	return diduri.SelfHashURLToken(vs[0])
}

func cloneTree(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = cloneTree(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = cloneTree(val)
		}
		return out
	default:
		return v
	}
}
