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

// Package werrors defines the error kinds shared by diduri, microledger,
// vjson, resolver, wallet, vdr and vdg, and their mapping to HTTP status
// codes at the service boundary.
package werrors

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	_ Kind = iota
	Malformed
	MalformedSelfHash
	InvalidSignature
	FailedConstraint
	NotFound
	AlreadyExists
	Deactivated
	Unsupported
	StorageError
	NetworkError
	InternalError
)

func (k Kind) String() string {
	switch k {
	case Malformed:
		return "Malformed"
	case MalformedSelfHash:
		return "MalformedSelfHash"
	case InvalidSignature:
		return "InvalidSignature"
	case FailedConstraint:
		return "FailedConstraint"
	case NotFound:
		return "NotFound"
	case AlreadyExists:
		return "AlreadyExists"
	case Deactivated:
		return "Deactivated"
	case Unsupported:
		return "Unsupported"
	case StorageError:
		return "StorageError"
	case NetworkError:
		return "NetworkError"
	case InternalError:
		return "InternalError"
	default:
		return "Unknown"
	}
}

// Error wraps an underlying cause with a typed kind, so callers can branch
// on the kind (via As/Is) without parsing message strings.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Is reports whether err (or something it wraps) is a *Error of kind k.
func Is(err error, k Kind) bool {
	var we *Error
	if errors.As(err, &we) {
		return we.Kind == k
	}
	return false
}

// KindOf extracts the Kind from err, defaulting to InternalError when err is
// not a *Error.
func KindOf(err error) Kind {
	var we *Error
	if errors.As(err, &we) {
		return we.Kind
	}
	return InternalError
}

// Retriable reports whether the operation that produced err may succeed if
// retried unchanged.
func Retriable(err error) bool {
	switch KindOf(err) {
	case StorageError, NetworkError:
		return true
	default:
		return false
	}
}

// HTTPStatus maps a Kind to the status code used at the VDR/VDG boundary.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case Malformed, MalformedSelfHash, InvalidSignature:
		return http.StatusBadRequest
	case FailedConstraint:
		return http.StatusUnprocessableEntity
	case NotFound:
		return http.StatusNotFound
	case AlreadyExists:
		return http.StatusConflict
	case Deactivated:
		return http.StatusGone
	case Unsupported:
		return http.StatusBadRequest
	case NetworkError:
		return http.StatusBadGateway
	case StorageError, InternalError:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
