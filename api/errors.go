// Package api
// Author: momentics <momentics@gmail.com>
//
// Common error types and error handling utilities for loofah.

package api

import (
	"errors"
	"fmt"
)

// Common errors used across the library.
var (
	ErrEngineClosed       = errors.New("engine is closed")
	ErrNotInLoop          = errors.New("not called from the engine loop goroutine")
	ErrAlreadyRegistered  = errors.New("handler already registered")
	ErrNotRegistered      = errors.New("handler not registered")
	ErrNotSupported       = errors.New("operation not supported")
	ErrChannelClosing     = errors.New("channel is closing")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrOperationCancelled = errors.New("operation cancelled")
)

// ErrorKind is the closed taxonomy platform errors are mapped to.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindInvalidFd
	KindWouldBlock
	KindNotConnected
	KindConnRefused
	KindConnectionReset
	KindConnectionAborted
	KindBrokenPipe
	KindPackageOversize
	KindTimeout
)

var kindNames = [...]string{
	KindUnknown:           "unknown",
	KindInvalidFd:         "invalid fd",
	KindWouldBlock:        "would block",
	KindNotConnected:      "not connected",
	KindConnRefused:       "connection refused",
	KindConnectionReset:   "connection reset",
	KindConnectionAborted: "connection aborted",
	KindBrokenPipe:        "broken pipe",
	KindPackageOversize:   "package oversize",
	KindTimeout:           "timeout",
}

func (k ErrorKind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// Error implements error so a bare kind can be used as an errors.Is target.
func (k ErrorKind) Error() string { return k.String() }

// Error is a classified I/O error.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

// NewError builds an Error of the given kind.
func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// WrapErrno classifies err with FromErrno.
func WrapErrno(op string, err error) *Error {
	return &Error{Kind: FromErrno(err), Op: op, Err: err}
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error or ErrorKind by kind.
func (e *Error) Is(target error) bool {
	switch t := target.(type) {
	case ErrorKind:
		return e.Kind == t
	case *Error:
		return e.Kind == t.Kind
	}
	return false
}

// KindOf extracts the ErrorKind of err, classifying raw errors on the way.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	var k ErrorKind
	if errors.As(err, &k) {
		return k
	}
	return FromErrno(err)
}
