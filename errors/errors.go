// Copyright 2024 The sealcore Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package errors defines the error handling used across sealcore.
package errors

import (
	"bytes"
	"fmt"
	"runtime"
	"strings"

	"sealcore.io/log"
)

// Error is the type that implements the error interface for sealcore.
// It contains a number of fields, each of different type. An Error value
// may leave some values unset.
type Error struct {
	// Component is the subsystem that raised the error, e.g. "datasealer",
	// "keystrategy" or "ddf".
	Component string
	// Op is the operation being performed, usually the name of the method
	// being invoked (Wrap, Unwrap, DefaultKey, and so on).
	Op Op
	// Kind is the class of error, such as DataExpired, or Other if its
	// class is unknown or irrelevant.
	Kind Kind
	// The underlying error that triggered this one, if any.
	Err error
}

// Op describes an operation, usually as the package and method,
// such as "datasealer.Wrap".
type Op string

var (
	_       error  = (*Error)(nil)
	zeroErr Error
)

// Separator is the string used to separate nested errors. By default,
// nested errors are indented on a new line. A server may instead choose to
// keep each error on a single line by modifying the separator string,
// perhaps to ":: ".
var Separator = ":\n\t"

// Kind defines the kind of error this is, a coarse-grained category of
// failure drawn from the taxonomy described in the design document.
type Kind uint8

// Kinds of errors.
const (
	// Other is an unclassified error. This value is not printed in the
	// error message.
	Other Kind = iota

	// DataSealerFailure covers any wrap/unwrap failure other than
	// DataExpired: I/O, malformed input, cryptographic tag mismatch.
	DataSealerFailure

	// DataExpired means the blob's expiration timestamp has elapsed, or
	// its key label is no longer known to the strategy that produced it.
	DataExpired

	// KeyNotFound means a KeyStrategy has no key under the requested label.
	KeyNotFound

	// KeyUnavailable means a KeyStrategy cannot currently serve any key,
	// e.g. because its backing keystore is locked or unreachable.
	KeyUnavailable

	// ComponentInitError means configuration was missing or a startup
	// self-test failed, preventing the INITIALIZED transition.
	ComponentInitError

	// ConstraintViolation is a programmer-visible precondition failure,
	// such as a nil argument or empty data.
	ConstraintViolation

	// Reload means a background reload attempt failed. Readers are
	// unaffected; the cause is recorded for diagnostics only.
	Reload
)

func (k Kind) String() string {
	switch k {
	case Other:
		return "other error"
	case DataSealerFailure:
		return "data sealer failure"
	case DataExpired:
		return "data expired"
	case KeyNotFound:
		return "key not found"
	case KeyUnavailable:
		return "key unavailable"
	case ComponentInitError:
		return "component init error"
	case ConstraintViolation:
		return "constraint violation"
	case Reload:
		return "reload failure"
	}
	return "unknown error kind"
}

// E builds an error value from its arguments. The type of each argument
// determines its meaning. If more than one argument of a given type is
// presented, only the last one is recorded.
//
// The types are:
//	string
//		The component that raised the error.
//	errors.Op
//		The operation being performed.
//	errors.Kind
//		The class of error.
//	error
//		The underlying error that triggered this one.
//
// If Kind is not specified or Other, it is set to the Kind of the
// underlying error, if any.
func E(args ...interface{}) error {
	if len(args) == 0 {
		return nil
	}
	e := &Error{}
	for _, arg := range args {
		switch arg := arg.(type) {
		case string:
			e.Component = arg
		case Op:
			e.Op = arg
		case Kind:
			e.Kind = arg
		case *Error:
			errCopy := *arg
			e.Err = &errCopy
		case error:
			e.Err = arg
		default:
			_, file, line, _ := runtime.Caller(1)
			log.Printf("errors.E: bad call from %s:%d: %v", file, line, args)
			return Errorf("unknown type %T, value %v in error call", arg, arg)
		}
	}

	prev, ok := e.Err.(*Error)
	if !ok {
		return e
	}

	// The previous error was also one of ours. Suppress duplication so
	// the message doesn't repeat the same component or kind twice.
	if prev.Component == e.Component {
		prev.Component = ""
	}
	if prev.Kind == e.Kind {
		prev.Kind = Other
	}
	if e.Kind == Other {
		e.Kind = prev.Kind
		prev.Kind = Other
	}
	return e
}

func pad(b *bytes.Buffer, str string) {
	if b.Len() == 0 {
		return
	}
	b.WriteString(str)
}

func (e *Error) Error() string {
	b := new(bytes.Buffer)
	if e.Component != "" {
		b.WriteString(e.Component)
	}
	if e.Op != "" {
		pad(b, ": ")
		b.WriteString(string(e.Op))
	}
	if e.Kind != Other {
		pad(b, ": ")
		b.WriteString(e.Kind.String())
	}
	if e.Err != nil {
		if prevErr, ok := e.Err.(*Error); ok {
			if *prevErr != zeroErr {
				pad(b, Separator)
				b.WriteString(e.Err.Error())
			}
		} else {
			pad(b, ": ")
			b.WriteString(e.Err.Error())
		}
	}
	if b.Len() == 0 {
		return "no error"
	}
	return b.String()
}

// Is reports whether err is an *Error of the given Kind, unwrapping nested
// *Error values until one sets an explicit Kind or the chain ends.
func Is(kind Kind, err error) bool {
	e, ok := err.(*Error)
	if !ok {
		return false
	}
	if e.Kind != Other {
		return e.Kind == kind
	}
	if e.Err != nil {
		return Is(kind, e.Err)
	}
	return false
}

// Match compares its two error arguments. It can be used to check
// expected errors in tests, by constructing a reference error with only
// the fields that are expected to be compared set, and using it to match
// against an error returned by the function under test.
//
// It only checks the fields that exist in err1: if err1 lacks a Component,
// say, the match does not examine it even if err2 has it set. It is an
// error for err1 to be anything other than *Error or nil. If err1 is nil,
// Match returns true only if err2 is also nil.
func Match(err1, err2 error) bool {
	if err1 == nil || err2 == nil {
		return err1 == err2
	}
	e1, ok := err1.(*Error)
	if !ok {
		return false
	}
	e2, ok := err2.(*Error)
	if !ok {
		return false
	}
	if e1.Component != "" && e2.Component != e1.Component {
		return false
	}
	if e1.Op != "" && e2.Op != e1.Op {
		return false
	}
	if e1.Kind != Other && e2.Kind != e1.Kind {
		return false
	}
	if e1.Err != nil {
		if _, ok := e1.Err.(*Error); ok {
			return Match(e1.Err, e2.Err)
		}
		if e2.Err == nil || e1.Err.Error() != e2.Err.Error() {
			return false
		}
	}
	return true
}

// Str returns an error that formats as the given text. It is intended to
// be used as the error-typed argument to the E function.
func Str(text string) error {
	return &errorString{text}
}

type errorString struct {
	s string
}

func (e *errorString) Error() string {
	return e.s
}

// Errorf is equivalent to fmt.Errorf, but allows clients to import only
// this package for all error handling.
func Errorf(format string, args ...interface{}) error {
	return &errorString{fmt.Sprintf(format, args...)}
}

// Separatorless reports the given error string with each Separator replaced
// by "; ", useful when logging to systems that mangle newlines.
func Separatorless(err error) string {
	if err == nil {
		return ""
	}
	return strings.ReplaceAll(err.Error(), Separator, "; ")
}
