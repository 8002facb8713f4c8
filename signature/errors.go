// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package signature

import "fmt"

// ErrorKind categorizes signature contract violations.
type ErrorKind uint8

const (
	// ErrTooManySignatures indicates more than MaxSignatures signatures.
	ErrTooManySignatures ErrorKind = iota

	// ErrDuplicateBindingIndex indicates two signatures share a binding index.
	ErrDuplicateBindingIndex

	// ErrBindingIndexOutOfRange indicates a binding index >= MaxSignatures.
	ErrBindingIndexOutOfRange

	// ErrDuplicateResourceName indicates two resources in one signature share a name.
	ErrDuplicateResourceName

	// ErrInvalidResource indicates a malformed resource descriptor.
	ErrInvalidResource

	// ErrInvalidName indicates an empty signature name.
	ErrInvalidName

	// ErrNilSignature indicates a nil signature pointer in an
	// allocation request.
	ErrNilSignature
)

// String returns a human-readable error kind name.
func (k ErrorKind) String() string {
	switch k {
	case ErrTooManySignatures:
		return "TooManySignatures"
	case ErrDuplicateBindingIndex:
		return "DuplicateBindingIndex"
	case ErrBindingIndexOutOfRange:
		return "BindingIndexOutOfRange"
	case ErrDuplicateResourceName:
		return "DuplicateResourceName"
	case ErrInvalidResource:
		return "InvalidResource"
	case ErrInvalidName:
		return "InvalidName"
	case ErrNilSignature:
		return "NilSignature"
	default:
		return "Unknown"
	}
}

// Error represents a signature contract violation. All kinds are caller
// misuse: they are detected eagerly and never retried.
type Error struct {
	// Kind categorizes the violation.
	Kind ErrorKind

	// Message provides details about the violation.
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("signature %s: %s", e.Kind, e.Message)
}

// NewError creates a new signature error.
func NewError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
	}
}
