package types

import (
	"errors"
	"fmt"
)

// Sentinel errors classifying every failure the core can produce.
// Callers branch with errors.Is; the wrapper below carries detail.
var (
	// ErrFormat marks a malformed annotation block (missing or misordered
	// ==UserScript== markers).
	ErrFormat = errors.New("malformed annotation block")

	// ErrValidation marks a definition that is missing a required directive
	// or exposes neither a run nor a check capability.
	ErrValidation = errors.New("invalid task definition")

	// ErrNotFound marks an operation referencing an unknown task identity.
	ErrNotFound = errors.New("task not found")

	// ErrCapability marks a failure thrown by the task's own run/check
	// capability.
	ErrCapability = errors.New("capability failed")

	// ErrKeyNotFound is returned by storage backends for absent keys.
	ErrKeyNotFound = errors.New("key not found")
)

// TaskError wraps one of the sentinel kinds with the task identity and a
// human-readable detail message.
type TaskError struct {
	Kind     error
	Identity string
	Detail   string
}

func (e *TaskError) Error() string {
	if e == nil {
		return ""
	}
	switch {
	case e.Identity != "" && e.Detail != "":
		return fmt.Sprintf("%s: %s: %s", e.Kind.Error(), e.Identity, e.Detail)
	case e.Detail != "":
		return fmt.Sprintf("%s: %s", e.Kind.Error(), e.Detail)
	case e.Identity != "":
		return fmt.Sprintf("%s: %s", e.Kind.Error(), e.Identity)
	}
	return e.Kind.Error()
}

func (e *TaskError) Unwrap() error { return e.Kind }

// FormatErrorf builds an ErrFormat with a formatted detail message.
func FormatErrorf(format string, args ...any) error {
	return &TaskError{Kind: ErrFormat, Detail: fmt.Sprintf(format, args...)}
}

// ValidationErrorf builds an ErrValidation with a formatted detail message.
func ValidationErrorf(format string, args ...any) error {
	return &TaskError{Kind: ErrValidation, Detail: fmt.Sprintf(format, args...)}
}

// NotFoundError builds an ErrNotFound for the given identity.
func NotFoundError(identity string) error {
	return &TaskError{Kind: ErrNotFound, Identity: identity}
}

// CapabilityError wraps an error thrown by a task's own capability.
func CapabilityError(identity string, err error) error {
	detail := ""
	if err != nil {
		detail = err.Error()
	}
	return &TaskError{Kind: ErrCapability, Identity: identity, Detail: detail}
}
