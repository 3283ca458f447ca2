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
	"encoding/binary"
	"math/rand"
)

// maxControlPayload is the largest payload a control frame (Close,
// Ping, Pong) may carry. Per RFC 6455 §5.5, control frames must never
// be fragmented, which bounds their payload to a single frame's
// single-byte length field's "needs no extension" range.
const maxControlPayload = 125

// Frame is a single RFC 6455 frame. It is a plain value: codec and
// connection code pass it by value or as a short-lived pointer, never
// retain a back-reference to where it came from.
type Frame struct {
	Finished         bool
	Rsv1, Rsv2, Rsv3 bool
	OpCode           OpCode
	Mask             *[4]byte // non-nil iff Payload is currently masked
	Payload          []byte
}

// message builds an unmasked data frame (Text, Binary or Continue).
func message(payload []byte, op OpCode, finished bool) Frame {
	return Frame{Finished: finished, OpCode: op, Payload: payload}
}

// ping builds an unmasked Ping control frame.
func ping(data []byte) Frame {
	return Frame{Finished: true, OpCode: Ping, Payload: data}
}

// pong builds an unmasked Pong control frame.
func pong(data []byte) Frame {
	return Frame{Finished: true, OpCode: Pong, Payload: data}
}

// closeFrame builds a Close control frame. An Empty code produces a
// frame with no payload at all, per spec §4.2; any other code is
// encoded as a big-endian uint16 followed by the raw reason bytes.
func closeFrame(code CloseCode, reason string) Frame {
	if code == Empty {
		return Frame{Finished: true, OpCode: Close}
	}
	payload := make([]byte, 2+len(reason))
	binary.BigEndian.PutUint16(payload, uint16(code))
	copy(payload[2:], reason)
	return Frame{Finished: true, OpCode: Close, Payload: payload}
}

// IsValid reports whether the frame satisfies the structural invariants
// from spec §3: control opcodes carry at most 125 bytes of payload and
// are never fragmented; Bad is never valid.
func (f Frame) IsValid() bool {
	if f.OpCode == Bad {
		return false
	}
	if f.OpCode.IsControl() && (len(f.Payload) > maxControlPayload || !f.Finished) {
		return false
	}
	return true
}

// applyMask XORs buf in place with key, cycling the 4-byte key. It is
// its own inverse: applyMask(applyMask(buf, key), key) == buf.
func applyMask(buf []byte, key [4]byte) {
	for i := range buf {
		buf[i] ^= key[i%4]
	}
}

// removeMask clears f.Mask after unmasking the payload in place.
// Calling it on an already-unmasked frame is a logic error and panics,
// so callers must check Mask themselves first (mirroring spec §4.2's
// "calling twice is a logic error").
func (f *Frame) removeMask() {
	if f.Mask == nil {
		panic("gows: removeMask called on an already-unmasked frame")
	}
	applyMask(f.Payload, *f.Mask)
	f.Mask = nil
}

// newMaskKey draws a uniformly random 4-byte mask key. math/rand's
// top-level Source has been auto-seeded and safe for concurrent use
// since Go 1.20, which matters because distinct Connection values
// (each single-threaded on its own reactor goroutine) may draw from it
// at the same time.
func newMaskKey() [4]byte {
	var key [4]byte
	binary.BigEndian.PutUint32(key[:], rand.Uint32())
	return key
}

// encodedLen returns the wire length of f once formatted: 2 header
// bytes, the extended length field (0, 2 or 8 bytes), the mask (0 or 4
// bytes) and the payload.
func (f Frame) encodedLen() int {
	n := 2 + len(f.Payload)
	switch {
	case len(f.Payload) > 65535:
		n += 8
	case len(f.Payload) > 125:
		n += 2
	}
	if f.Mask != nil {
		n += 4
	}
	return n
}

// format appends the wire encoding of f to dst and returns the result.
// If f carries a Mask, the payload is XORed in place with that key
// before being appended (masking, like the teacher's wsRead, mutates
// the frame's own backing array rather than copying).
func format(dst []byte, f Frame) []byte {
	var b0 byte
	if f.Finished {
		b0 |= 0x80
	}
	if f.Rsv1 {
		b0 |= 0x40
	}
	if f.Rsv2 {
		b0 |= 0x20
	}
	if f.Rsv3 {
		b0 |= 0x10
	}
	b0 |= byte(opCodeWire(f.OpCode))
	dst = append(dst, b0)

	n := len(f.Payload)
	var b1 byte
	if f.Mask != nil {
		b1 |= 0x80
	}
	switch {
	case n <= 125:
		b1 |= byte(n)
		dst = append(dst, b1)
	case n <= 65535:
		b1 |= 126
		dst = append(dst, b1)
		var ext [2]byte
		binary.BigEndian.PutUint16(ext[:], uint16(n))
		dst = append(dst, ext[:]...)
	default:
		b1 |= 127
		dst = append(dst, b1)
		var ext [8]byte
		binary.BigEndian.PutUint64(ext[:], uint64(n))
		dst = append(dst, ext[:]...)
	}

	if f.Mask != nil {
		applyMask(f.Payload, *f.Mask)
		dst = append(dst, f.Mask[:]...)
	}
	return append(dst, f.Payload...)
}

// opCodeWire maps an OpCode back to its RFC 6455 wire nibble.
func opCodeWire(op OpCode) byte {
	switch op {
	case Continue:
		return 0x0
	case Text:
		return 0x1
	case Binary:
		return 0x2
	case Close:
		return 0x8
	case Ping:
		return 0x9
	case Pong:
		return 0xa
	default:
		// Bad frames are never formatted; format is only reached for
		// frames this package itself constructed.
		panic("gows: cannot format a Bad-opcode frame")
	}
}

// parse decodes a single frame from the start of buf. On success it returns the frame, the number of bytes
// consumed, and true. If buf does not yet hold a complete frame, it
// returns zero values and false, leaving the caller's position
// untouched — per spec §4.2, a short read must never consume bytes.
func parse(buf []byte) (Frame, int, bool, error) {
	if len(buf) < 2 {
		return Frame{}, 0, false, nil
	}
	b0, b1 := buf[0], buf[1]
	var f Frame
	f.Finished = b0&0x80 != 0
	f.Rsv1 = b0&0x40 != 0
	f.Rsv2 = b0&0x20 != 0
	f.Rsv3 = b0&0x10 != 0
	f.OpCode = opCodeFromByte(b0)

	masked := b1&0x80 != 0
	length := uint64(b1 & 0x7f)
	pos := 2

	switch length {
	case 126:
		if len(buf) < pos+2 {
			return Frame{}, 0, false, nil
		}
		length = uint64(binary.BigEndian.Uint16(buf[pos : pos+2]))
		pos += 2
	case 127:
		if len(buf) < pos+8 {
			return Frame{}, 0, false, nil
		}
		length = binary.BigEndian.Uint64(buf[pos : pos+8])
		pos += 8
	}

	if f.OpCode.IsControl() && length > maxControlPayload {
		return Frame{}, 0, false, newError(KindProtocol, "control frame payload exceeds 125 bytes")
	}

	var key [4]byte
	if masked {
		if len(buf) < pos+4 {
			return Frame{}, 0, false, nil
		}
		copy(key[:], buf[pos:pos+4])
		pos += 4
	}

	if uint64(len(buf)-pos) < length {
		return Frame{}, 0, false, nil
	}

	f.Payload = make([]byte, length)
	copy(f.Payload, buf[pos:pos+int(length)])
	pos += int(length)
	if masked {
		f.Mask = &key
	}

	if f.OpCode == Bad {
		return Frame{}, 0, false, newError(KindProtocol, "frame has an unassigned opcode")
	}
	return f, pos, true, nil
}
