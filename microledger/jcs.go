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
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode/utf16"

	"github.com/webplus-id/core/werrors"
)

// CanonicalJSON renders val (after json.Marshal; raw JSON bytes go through
// CanonicalizeJSONBytes instead) as RFC 8785 JSON
// Canonicalization Scheme bytes: object keys sorted by UTF-16 code unit,
// numbers formatted per ECMA-262, no insignificant whitespace.
//
// No library in the retrieval pack implements JCS; this is the one
// component of the core built directly on encoding/json, decoding into
// json.Number-preserving generic trees and re-serializing by hand.
func CanonicalJSON(val any) ([]byte, error) {
	raw, err := json.Marshal(val)
	if err != nil {
		return nil, werrors.Wrap(werrors.Malformed, "failed to marshal value", err)
	}
	return CanonicalizeJSONBytes(raw)
}

// CanonicalizeJSONBytes re-serializes arbitrary JSON bytes in canonical
// form.
func CanonicalizeJSONBytes(raw []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var tree any
	if err := dec.Decode(&tree); err != nil {
		return nil, werrors.Wrap(werrors.Malformed, "invalid JSON", err)
	}

	var buf bytes.Buffer
	if err := writeCanonical(&buf, tree); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeCanonical(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case json.Number:
		s, err := canonicalNumber(val)
		if err != nil {
			return err
		}
		buf.WriteString(s)
	case string:
		writeCanonicalString(buf, val)
	case []any:
		buf.WriteByte('[')
		for i, e := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, e); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sortByUTF16(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeCanonicalString(buf, k)
			buf.WriteByte(':')
			if err := writeCanonical(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return werrors.New(werrors.InternalError, fmt.Sprintf("unsupported JSON value type %T", v))
	}
	return nil
}

// sortByUTF16 sorts keys lexicographically by UTF-16 code unit, as RFC 8785
// requires (not by raw UTF-8 byte order, which disagrees for characters
// outside the Basic Multilingual Plane).
func sortByUTF16(keys []string) {
	sort.Slice(keys, func(i, j int) bool {
		a := utf16.Encode([]rune(keys[i]))
		b := utf16.Encode([]rune(keys[j]))
		for k := 0; k < len(a) && k < len(b); k++ {
			if a[k] != b[k] {
				return a[k] < b[k]
			}
		}
		return len(a) < len(b)
	})
}

func writeCanonicalString(buf *bytes.Buffer, s string) {
	buf.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\b':
			buf.WriteString(`\b`)
		case '\f':
			buf.WriteString(`\f`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		default:
			if r < 0x20 {
				fmt.Fprintf(buf, `\u%04x`, r)
			} else {
				buf.WriteRune(r)
			}
		}
	}
	buf.WriteByte('"')
}

// canonicalNumber formats n per the ECMA-262 Number::toString algorithm:
// integers within the int64 range render without a decimal point or
// exponent; everything else uses Go's shortest round-tripping digits, in
// plain decimal notation when the value is at least 1e-6 and below 1e21 in
// magnitude and in exponential notation otherwise, with no leading zero in
// the exponent.
func canonicalNumber(n json.Number) (string, error) {
	f, err := n.Float64()
	if err != nil {
		return "", werrors.Wrap(werrors.Malformed, "invalid JSON number", err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", werrors.New(werrors.Malformed, "JSON numbers must be finite")
	}

	if f == math.Trunc(f) && math.Abs(f) < 1e21 {
		i := int64(f)
		if float64(i) == f {
			return strconv.FormatInt(i, 10), nil
		}
	}

	s := strconv.FormatFloat(f, 'e', -1, 64)
	if exp, _ := strconv.Atoi(s[strings.IndexByte(s, 'e')+1:]); exp >= -6 && exp < 21 {
		return strconv.FormatFloat(f, 'f', -1, 64), nil
	}
	return strings.Replace(s, "e-0", "e-", 1), nil
}
