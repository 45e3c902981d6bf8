package db

import (
	"errors"
	"fmt"
)

// Kind classifies the cause of an [*Error] so callers can branch on it
// without parsing messages.
type Kind int

const (
	// KindBadArgs covers missing/malformed inputs, an unknown model, an
	// incomplete sort key outside find/remove, an enum violation, or a
	// type-mapping failure.
	KindBadArgs Kind = iota + 1

	// KindNotFound is returned by update without upsert against a missing item.
	KindNotFound

	// KindExists is returned by create against a key that already exists
	// without upsert.
	KindExists

	// KindNotReady is returned by setField against a missing item without upsert.
	KindNotReady

	// KindCantRead covers read failures against the schema, snapshot, or journal.
	KindCantRead

	// KindCantOpen covers open failures against the schema, snapshot, or journal.
	KindCantOpen

	// KindCantWrite covers write failures against the snapshot or journal.
	KindCantWrite

	// KindBadFormat covers a corrupt snapshot/journal record or a version mismatch.
	KindBadFormat

	// KindBadState covers a DB used in a way its current state forbids
	// (e.g. a mutation or Save on a store opened read-only).
	KindBadState

	// KindMemory covers allocation failure.
	KindMemory

	// KindWontFit is returned when an item or key exceeds the fixed size bound.
	KindWontFit
)

// String renders the Kind the way [*Error.Error] embeds it.
func (k Kind) String() string {
	switch k {
	case KindBadArgs:
		return "bad_args"
	case KindNotFound:
		return "not_found"
	case KindExists:
		return "exists"
	case KindNotReady:
		return "not_ready"
	case KindCantRead:
		return "cant_read"
	case KindCantOpen:
		return "cant_open"
	case KindCantWrite:
		return "cant_write"
	case KindBadFormat:
		return "bad_format"
	case KindBadState:
		return "bad_state"
	case KindMemory:
		return "memory"
	case KindWontFit:
		return "wont_fit"
	default:
		return "unknown"
	}
}

// Error is the uniform error type returned by all public db APIs.
//
// It carries structured context (model name, item key) in addition to the
// underlying cause, so the message reads as:
//
//	bad_args: field "role": value wizard not in enum (model=User)
//
// Use [errors.As] to recover the structured fields:
//
//	var dbErr *db.Error
//	if errors.As(err, &dbErr) {
//	    fmt.Println(dbErr.Kind, dbErr.Model, dbErr.Key)
//	}
type Error struct {
	// Kind classifies the failure. See the Kind* constants.
	Kind Kind

	// Model is the model name involved, when known.
	Model string

	// Key is the item's sort-key, when known.
	Key string

	// Err is the underlying cause, or nil if Kind alone is the whole story.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}

	cause := e.cause()
	suffix := e.suffix()

	head := e.Kind.String()
	if cause != "" {
		head = head + ": " + cause
	}

	if suffix == "" {
		return head
	}

	return head + " " + suffix
}

// Unwrap returns the underlying cause for [errors.Is]/[errors.As].
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.Err
}

func (e *Error) cause() string {
	if e.Err == nil {
		return ""
	}

	return e.Err.Error()
}

func (e *Error) suffix() string {
	if e.Model == "" && e.Key == "" {
		return ""
	}

	switch {
	case e.Model != "" && e.Key != "":
		return fmt.Sprintf("(model=%s key=%s)", e.Model, e.Key)
	case e.Model != "":
		return fmt.Sprintf("(model=%s)", e.Model)
	default:
		return fmt.Sprintf("(key=%s)", e.Key)
	}
}

// errOpt configures an [*Error] during construction via [wrap].
type errOpt func(*Error)

// withModel attaches the model name involved in the failing operation.
func withModel(model string) errOpt {
	return func(e *Error) { e.Model = model }
}

// withKey attaches the item key involved in the failing operation.
func withKey(key string) errOpt {
	return func(e *Error) { e.Key = key }
}

// wrap attaches context to err, producing an [*Error] of kind.
//
// If err is already a direct *Error, its Kind is preserved unless kind is
// non-zero here and differs, and its Model/Key are inherited unless
// overridden by opts. This mirrors the "don't double-wrap, do inherit
// context" discipline used throughout this package.
func wrap(kind Kind, err error, opts ...errOpt) *Error {
	if err == nil {
		return nil
	}

	existing := &Error{}
	if errors.As(err, &existing) {
		e := &Error{Kind: existing.Kind, Model: existing.Model, Key: existing.Key, Err: existing.Err}
		if kind != 0 {
			e.Kind = kind
		}

		for _, opt := range opts {
			opt(e)
		}

		return e
	}

	e := &Error{Kind: kind, Err: err}
	for _, opt := range opts {
		opt(e)
	}

	return e
}

// IsKind reports whether err is a *db.Error of the given kind, letting
// callers do errors.Is(err, db.KindNotFound) style checks through it instead
// (Kind is a plain int, not an error, so it can't implement error itself).
func IsKind(err error, kind Kind) bool {
	var dbErr *Error
	if !errors.As(err, &dbErr) {
		return false
	}

	return dbErr.Kind == kind
}
