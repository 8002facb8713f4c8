// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package backend

import "fmt"

// ErrorKind categorizes patch failures.
type ErrorKind uint8

const (
	// ErrRemapFailed indicates the symbolic resource remap produced no
	// usable output. Fatal to the current shader only.
	ErrRemapFailed ErrorKind = iota

	// ErrIOFailure indicates a filesystem or external-process failure.
	// The wrapped error carries the OS-level description.
	ErrIOFailure

	// ErrEmptyArtifact indicates the external compiler reported
	// success but produced no bytes. Treated like an I/O failure.
	ErrEmptyArtifact

	// ErrContractViolation indicates caller misuse (nil shader,
	// missing workspace, resource not found in any signature).
	ErrContractViolation
)

// String returns a human-readable error kind name.
func (k ErrorKind) String() string {
	switch k {
	case ErrRemapFailed:
		return "RemapFailed"
	case ErrIOFailure:
		return "IOFailure"
	case ErrEmptyArtifact:
		return "EmptyArtifact"
	case ErrContractViolation:
		return "ContractViolation"
	default:
		return "Unknown"
	}
}

// Error is a patch or query failure, carrying enough context to name
// the offending shader and backend. Errors abort the current shader's
// patch and propagate; they are never swallowed.
type Error struct {
	// Kind categorizes the failure.
	Kind ErrorKind

	// Target is the backend the failure occurred on.
	Target Target

	// Shader is the shader name, when the failure concerns one.
	Shader string

	// Message provides details.
	Message string

	// Err is the underlying OS or process error, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s %s", e.Target, e.Kind)
	if e.Shader != "" {
		msg += fmt.Sprintf(" (shader %q)", e.Shader)
	}
	msg += ": " + e.Message
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error { return e.Err }

// NewError creates a patch error without an underlying cause.
func NewError(kind ErrorKind, target Target, shader, format string, args ...any) *Error {
	return &Error{
		Kind:    kind,
		Target:  target,
		Shader:  shader,
		Message: fmt.Sprintf(format, args...),
	}
}

// WrapError creates a patch error around an underlying OS or process
// error.
func WrapError(kind ErrorKind, target Target, shader string, err error, format string, args ...any) *Error {
	return &Error{
		Kind:    kind,
		Target:  target,
		Shader:  shader,
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}
