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
	"testing"

	"github.com/stretchr/testify/require"
)

// TestMalformedUTF8ClosesWithInvalid exercises the "bad UTF-8" scenario:
// a Text message whose payload is not valid UTF-8 must classify as
// KindEncoding and trigger an automatic Close(Invalid, ...) reply.
func TestMalformedUTF8ClosesWithInvalid(t *testing.T) {
	conn, stream, handler := newOpenServerConnection(t)
	stream.written = nil

	key := [4]byte{7, 7, 7, 7}
	f := message([]byte{0xff, 0xfe, 0xfd}, Text, true) // not valid UTF-8
	f.Mask = &key
	stream.toRead = format(nil, f)

	err := conn.Read()
	require.Error(t, err)
	require.Equal(t, KindEncoding, asEndpointError(err).Kind)
	require.Len(t, handler.errors, 1)
	require.True(t, conn.IsClosing())
	require.NoError(t, conn.Write()) // flush the buffered Close reply

	got, _, ok, parseErr := parse(stream.written)
	require.NoError(t, parseErr)
	require.True(t, ok)
	require.Equal(t, Close, got.OpCode)
	require.Equal(t, uint16(Invalid), be16(got.Payload))
}

// TestOversizeOutputClosesWithSize exercises the "output exceeds
// capacity" scenario: an outbound frame that does not fit in a
// non-growing outBuf must classify as KindCapacity and trigger an
// automatic Close(Size, ...) reply, surfaced through the inbound path
// that provoked the write (here, an auto-replied Pong).
func TestOversizeOutputClosesWithSize(t *testing.T) {
	stream := &fakeStream{toRead: clientOpeningRequest("dGhlIHNhbXBsZSBub25jZQ==")}
	handler := &spyHandler{}
	conn := NewServerConnection(nil, stream, handler, DefaultSettings())
	require.NoError(t, conn.Read())
	require.NoError(t, conn.Write())
	require.True(t, conn.IsOpen())
	stream.written = nil

	// The handshake response buffer is sized by the same output settings,
	// so the non-growing 8-byte outBuf is put in place once Open.
	conn.outBuf = newCursor(8, false)

	// The encoded Pong reply (102 bytes) does not fit in the 8-byte outBuf.
	bigPing := make([]byte, 100)
	for i := range bigPing {
		bigPing[i] = byte(i)
	}
	key := [4]byte{3, 3, 3, 3}
	f := ping(bigPing)
	f.Mask = &key
	stream.toRead = format(nil, f)

	err := conn.Read()
	require.Error(t, err)
	require.Equal(t, KindCapacity, asEndpointError(err).Kind)
	require.True(t, conn.IsClosing())
}

// negotiatingStream wraps fakeStream with a settable IsNegotiating flag,
// modeling a TLS stream mid-renegotiation: a write that actually needs
// to read (or vice versa) reports negotiating so Connection.Read/Write
// swap which direction they drive, per spec §4.4.
type negotiatingStream struct {
	fakeStream
	negotiating bool
}

func (s *negotiatingStream) IsNegotiating() bool { return s.negotiating }
func (s *negotiatingStream) ClearNegotiating()   { s.negotiating = false }

// TestTLSRenegotiationSwapsReadAndWrite exercises the renegotiation
// scenario: a Write() issued while the stream is negotiating must defer
// to Read() (and vice versa) instead of attempting the original
// direction, per spec §4.4's "negotiating" contract.
func TestTLSRenegotiationSwapsReadAndWrite(t *testing.T) {
	stream := &negotiatingStream{fakeStream: fakeStream{toRead: clientOpeningRequest("dGhlIHNhbXBsZSBub25jZQ==")}}
	handler := &spyHandler{}
	conn := NewServerConnection(nil, stream, handler, DefaultSettings())
	require.NoError(t, conn.Read())
	require.NoError(t, conn.Write())
	require.True(t, conn.IsOpen())
	stream.written = nil

	key := [4]byte{5, 5, 5, 5}
	f := ping([]byte("hello"))
	f.Mask = &key
	stream.toRead = format(nil, f)
	stream.negotiating = true

	// Write readiness arrives first, but the stream is still
	// renegotiating, so Write must actually drive a Read.
	require.NoError(t, conn.Write())
	require.False(t, stream.negotiating, "renegotiation flag must be cleared")
	require.NoError(t, conn.Write()) // flush the Pong the deferred Read buffered

	got, _, ok, err := parse(stream.written)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, Pong, got.OpCode, "the deferred Read should have answered the Ping")

	// Symmetric case: a Read readiness arriving mid-renegotiation must
	// drive a Write instead.
	stream.negotiating = true
	require.NoError(t, conn.SendPing([]byte("again")))
	require.NoError(t, conn.Read())
	require.False(t, stream.negotiating)
}
