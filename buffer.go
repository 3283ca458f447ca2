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
	"github.com/gobwas/pool/pbytes"
)

// bufPool buckets byte slices the way gobwas/ws's own wsutil layer
// recommends pairing with its frame codec, instead of calling
// make([]byte, n) on every buffer grow.
var bufPool = pbytes.New(64, 1<<20)

// cursor is a growable byte buffer with a read position distinct from
// its length, per spec §3: bytes before pos have already been
// consumed by the codec but are kept around until the buffer is
// compacted, so in-flight slices into it stay valid.
type cursor struct {
	buf      []byte
	pos      int
	capacity int
	grow     bool
}

func newCursor(capacity int, grow bool) *cursor {
	b := bufPool.Get(0, capacity)
	return &cursor{buf: b[:0], capacity: capacity, grow: grow}
}

// unread returns the portion of buf from pos onward: bytes received or
// enqueued but not yet consumed.
func (c *cursor) unread() []byte { return c.buf[c.pos:] }

// len is the number of unread bytes.
func (c *cursor) len() int { return len(c.buf) - c.pos }

// advance marks n more bytes as consumed.
func (c *cursor) advance(n int) { c.pos += n }

// reset drops all buffered bytes and rewinds the position, used by
// Connection.reset for client reconnection.
func (c *cursor) reset() {
	c.buf = c.buf[:0]
	c.pos = 0
}

// append adds p to the end of the buffer, growing or compacting first
// if there isn't room. It returns a Capacity error if the buffer is
// full, grow is disabled, and compaction alone didn't free enough
// room — matching spec §4.5's buffer_in/check_buffer_out policy.
func (c *cursor) append(p []byte) error {
	// The pool may hand back a backing array larger than c.capacity
	// (it buckets by size), but the fast path must still honor the
	// configured capacity exactly, or a small Settings value would be
	// silently widened by whatever bucket the pool happened to use.
	if n := len(c.buf) + len(p); n <= cap(c.buf) && n <= c.capacity {
		c.buf = append(c.buf, p...)
		return nil
	}
	// Compact: copy the unread tail into a fresh buffer.
	tail := c.unread()
	needed := len(tail) + len(p)
	newCap := c.capacity
	for newCap < needed {
		if !c.grow {
			return newError(KindCapacity, "buffer is full and grow is disabled")
		}
		newCap *= 2
	}
	fresh := bufPool.Get(0, newCap)
	fresh = fresh[:0]
	fresh = append(fresh, tail...)
	fresh = append(fresh, p...)
	if newCap > c.capacity {
		c.capacity = newCap
	}
	if c.buf != nil {
		bufPool.Put(c.buf[:cap(c.buf)])
	}
	c.buf = fresh
	c.pos = 0
	return nil
}

// release returns buf's backing array to bufPool. Called once a
// Connection tears down its cursors for good; the cursor must not be
// used again afterward.
func (c *cursor) release() {
	if c.buf == nil {
		return
	}
	bufPool.Put(c.buf[:cap(c.buf)])
	c.buf = nil
}

// compact drops already-consumed bytes from the front, so repeated
// small appends don't grow the buffer unnecessarily.
func (c *cursor) compact() {
	if c.pos == 0 {
		return
	}
	n := copy(c.buf, c.buf[c.pos:])
	c.buf = c.buf[:n]
	c.pos = 0
}

func (c *cursor) empty() bool { return c.len() == 0 }
