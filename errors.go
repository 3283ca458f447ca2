// Copyright 2020 The NATS Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package gows

import (
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// ErrorKind classifies a failure the way spec §7 requires the engine
// to: the kind, not the message, decides how the connection recovers.
type ErrorKind int

const (
	// KindInternal covers bugs and invariant violations inside the engine.
	KindInternal ErrorKind = iota
	// KindCapacity is returned when a buffer cannot grow to hold pending data.
	KindCapacity
	// KindProtocol is returned when the peer violates RFC 6455.
	KindProtocol
	// KindEncoding is returned for payloads that fail a required encoding check (UTF-8).
	KindEncoding
	// KindParse is returned for a malformed HTTP handshake; only meaningful in Connecting.
	KindParse
	// KindIo wraps an underlying Stream read/write failure.
	KindIo
	// KindSsl wraps a TLS-layer failure surfaced by the Stream.
	KindSsl
	// KindCustom is reserved for handler callbacks to report their own failures.
	KindCustom
)

func (k ErrorKind) String() string {
	switch k {
	case KindInternal:
		return "internal"
	case KindCapacity:
		return "capacity"
	case KindProtocol:
		return "protocol"
	case KindEncoding:
		return "encoding"
	case KindParse:
		return "parse"
	case KindIo:
		return "io"
	case KindSsl:
		return "ssl"
	case KindCustom:
		return "custom"
	default:
		return "unknown"
	}
}

// EndpointError is the error type every fallible engine operation
// returns and every Handler.OnError callback receives. The Kind
// decides the propagation policy in connection.go; the wrapped cause
// (if any) is preserved via github.com/pkg/errors so the stack at the
// point of classification survives into the handler.
type EndpointError struct {
	Kind ErrorKind
	msg  string
	err  error
}

func (e *EndpointError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("gows: %s: %s: %v", e.Kind, e.msg, e.err)
	}
	return fmt.Sprintf("gows: %s: %s", e.Kind, e.msg)
}

// Unwrap lets errors.Is/errors.As see through to the underlying cause.
func (e *EndpointError) Unwrap() error { return e.err }

// newError builds an EndpointError whose cause is a pkg/errors error
// carrying msg and the stack at the call site.
func newError(kind ErrorKind, msg string) *EndpointError {
	return &EndpointError{Kind: kind, msg: msg, err: pkgerrors.New(msg)}
}

// wrapError classifies an existing error (typically from a Stream or
// handler callback) into the given kind, preserving it as the cause.
func wrapError(kind ErrorKind, msg string, cause error) *EndpointError {
	if cause == nil {
		return newError(kind, msg)
	}
	return &EndpointError{Kind: kind, msg: msg, err: pkgerrors.Wrap(cause, msg)}
}

// asEndpointError normalizes any error into an EndpointError, treating
// an unclassified error as Internal — this is the seam described in
// spec §7: every failure that reaches the connection's error path must
// carry a Kind before propagation policy can apply to it.
func asEndpointError(err error) *EndpointError {
	if err == nil {
		return nil
	}
	if ee, ok := err.(*EndpointError); ok {
		return ee
	}
	return wrapError(KindInternal, "unclassified error", err)
}
