// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpures

import (
	"errors"
	"fmt"
	"strings"
)

// Kind categorizes an error raised by this package.
type Kind string

const (
	// KindConfiguration marks an invalid descriptor. Caller bug, never retried.
	KindConfiguration Kind = "configuration"
	// KindCapability marks a view type, usage flag or shared-handle access
	// that is not enabled on the object.
	KindCapability Kind = "capability"
	// KindRange marks an offset, size or subresource range outside the
	// live bounds of a resource.
	KindRange Kind = "range"
	// KindTimeout marks a fence wait that exceeded its timeout.
	KindTimeout Kind = "timeout"
	// KindBackend marks a failed native call.
	KindBackend Kind = "backend"
	// KindBudget marks a memory heap budget that cannot fit a new page.
	KindBudget Kind = "budget"
	// KindDestroyed marks an operation on a destroyed object.
	KindDestroyed Kind = "destroyed"
)

// Sentinel errors, one per Kind. Every *Error matches the sentinel of its
// Kind through errors.Is.
var (
	// ErrConfiguration is matched by all configuration errors.
	ErrConfiguration = errors.New("gpures: invalid configuration")

	// ErrCapability is matched by all capability errors.
	ErrCapability = errors.New("gpures: capability not enabled")

	// ErrRange is matched by all range errors.
	ErrRange = errors.New("gpures: range out of bounds")

	// ErrTimeout is matched by fence wait timeouts.
	ErrTimeout = errors.New("gpures: timeout")

	// ErrBackend is matched by all backend failures.
	ErrBackend = errors.New("gpures: backend failure")

	// ErrBudget is matched when a memory heap budget is exhausted.
	ErrBudget = errors.New("gpures: memory budget exceeded")

	// ErrDestroyed is matched when operating on a destroyed object.
	ErrDestroyed = errors.New("gpures: object has been destroyed")
)

// ErrSharedFenceUnsupported is wrapped by backends that cannot create or
// export shared fences. The core reports it as a capability error.
var ErrSharedFenceUnsupported = errors.New("gpures: shared fences are not supported")

var kindSentinels = map[Kind]error{
	KindConfiguration: ErrConfiguration,
	KindCapability:    ErrCapability,
	KindRange:         ErrRange,
	KindTimeout:       ErrTimeout,
	KindBackend:       ErrBackend,
	KindBudget:        ErrBudget,
	KindDestroyed:     ErrDestroyed,
}

// Error is the structured error type returned by this package.
type Error struct {
	Kind   Kind
	Op     string
	Detail string
	Cause  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("gpures: ")
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(string(e.Kind))
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is the sentinel of e's Kind.
func (e *Error) Is(target error) bool {
	s, ok := kindSentinels[e.Kind]
	return ok && s == target
}

func newError(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Detail: fmt.Sprintf(format, args...)}
}

func configErr(op, format string, args ...any) error {
	return newError(KindConfiguration, op, format, args...)
}

func capabilityErr(op, format string, args ...any) error {
	return newError(KindCapability, op, format, args...)
}

func rangeErr(op, format string, args ...any) error {
	return newError(KindRange, op, format, args...)
}

func destroyedErr(op string) error {
	return &Error{Kind: KindDestroyed, Op: op}
}

// backendErr wraps a native failure. A nil cause yields nil.
func backendErr(op string, cause error) error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: KindBackend, Op: op, Cause: cause}
}

// sharedFenceErr maps a backend refusal to share a fence to a capability
// error and wraps every other failure as a backend error.
func sharedFenceErr(op string, cause error) error {
	if errors.Is(cause, ErrSharedFenceUnsupported) {
		return &Error{Kind: KindCapability, Op: op, Detail: "shared fence", Cause: cause}
	}
	return backendErr(op, cause)
}

// IsKind reports whether err is, or wraps, an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// UnsupportedStatesError reports every state a format cannot be used in.
// It is returned (wrapped as a capability error) when a texture's requested
// usage is not supported by its format.
type UnsupportedStatesError struct {
	Format Format
	States []ResourceState
}

func (e *UnsupportedStatesError) Error() string {
	names := make([]string, len(e.States))
	for i, s := range e.States {
		names[i] = s.String()
	}
	return fmt.Sprintf("format %s does not support states [%s]", e.Format, strings.Join(names, ", "))
}
