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
	"crypto/tls"
	"errors"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// Stream is the uniform nonblocking byte-stream interface the
// Connection engine drives, per spec §4.4. Implementations wrap
// either a plain TCP socket or a TLS socket; the core never branches
// on which.
type Stream interface {
	// TryReadBuf attempts to read more of dst; it returns the number
	// of bytes read and true on progress, or (0, false) if the
	// operation would block.
	TryReadBuf(dst []byte) (int, bool, error)
	// TryWriteBuf attempts to write src; it returns the number of
	// bytes written and true on progress, or (0, false) if the
	// operation would block.
	TryWriteBuf(src []byte) (int, bool, error)
	PeerAddr() net.Addr
	LocalAddr() net.Addr
	// IsNegotiating reports whether the most recent operation needed
	// the opposite readiness from what the caller requested (TLS
	// renegotiation inverting read<->write), per spec §4.4.
	IsNegotiating() bool
	ClearNegotiating()
	IsTLS() bool
	Close() error
}

// TCPStream wraps a nonblocking plain TCP net.Conn.
type TCPStream struct {
	conn net.Conn
	raw  syscall.RawConn
}

// NewTCPStream wraps c, which must already be a *net.TCPConn (or any
// net.Conn backed by a *os.File descriptor reachable via
// syscall.Conn), for nonblocking use by a Connection.
func NewTCPStream(c net.Conn) (*TCPStream, error) {
	sc, ok := c.(syscall.Conn)
	if !ok {
		return nil, newError(KindInternal, "stream does not support SyscallConn")
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return nil, wrapError(KindIo, "obtaining raw connection", err)
	}
	return &TCPStream{conn: c, raw: raw}, nil
}

func (s *TCPStream) TryReadBuf(dst []byte) (int, bool, error) {
	var n int
	var opErr error
	err := s.raw.Read(func(fd uintptr) bool {
		n, opErr = syscall.Read(int(fd), dst)
		if opErr == unix.EAGAIN || opErr == unix.EWOULDBLOCK {
			n, opErr = 0, nil
			return false
		}
		return true
	})
	if err != nil {
		return 0, false, wrapError(KindIo, "reading from stream", err)
	}
	if opErr != nil {
		return 0, false, wrapError(KindIo, "reading from stream", opErr)
	}
	if n == 0 {
		return 0, false, nil
	}
	return n, true, nil
}

func (s *TCPStream) TryWriteBuf(src []byte) (int, bool, error) {
	var n int
	var opErr error
	err := s.raw.Write(func(fd uintptr) bool {
		n, opErr = syscall.Write(int(fd), src)
		if opErr == unix.EAGAIN || opErr == unix.EWOULDBLOCK {
			n, opErr = 0, nil
			return false
		}
		return true
	})
	if err != nil {
		return 0, false, wrapError(KindIo, "writing to stream", err)
	}
	if opErr != nil {
		return 0, false, wrapError(KindIo, "writing to stream", opErr)
	}
	if n == 0 && len(src) > 0 {
		return 0, false, nil
	}
	return n, true, nil
}

func (s *TCPStream) PeerAddr() net.Addr      { return s.conn.RemoteAddr() }
func (s *TCPStream) LocalAddr() net.Addr     { return s.conn.LocalAddr() }
func (s *TCPStream) IsNegotiating() bool     { return false }
func (s *TCPStream) ClearNegotiating()       {}
func (s *TCPStream) IsTLS() bool             { return false }
func (s *TCPStream) Close() error            { return s.conn.Close() }

// TLSStream wraps a *tls.Conn. TLS record framing and handshake
// mechanics are out of scope for this module (spec §1); this type
// only classifies "would block" and tracks the readiness inversion a
// TLS renegotiation causes, by inspecting the error the stdlib TLS
// stack surfaces.
type TLSStream struct {
	conn        *tls.Conn
	negotiating bool
	wantWrite   bool // true if the negotiation that set negotiating needs writable
}

// NewTLSStream wraps an already-handshaking or established *tls.Conn.
// Setting the connection nonblocking is the caller's (Stream adapter
// construction's) responsibility, mirroring how the TCP variant
// expects a pre-dialed net.Conn.
func NewTLSStream(c *tls.Conn) *TLSStream {
	return &TLSStream{conn: c}
}

func (s *TLSStream) TryReadBuf(dst []byte) (int, bool, error) {
	n, err := s.conn.Read(dst)
	if err == nil {
		s.negotiating = false
		return n, true, nil
	}
	if isWouldBlock(err) {
		s.negotiating = false
		return 0, false, nil
	}
	if needsOppositeReadiness(err) {
		s.negotiating = true
		s.wantWrite = true
		return 0, false, nil
	}
	return 0, false, wrapError(KindSsl, "reading from TLS stream", err)
}

func (s *TLSStream) TryWriteBuf(src []byte) (int, bool, error) {
	n, err := s.conn.Write(src)
	if err == nil {
		s.negotiating = false
		return n, true, nil
	}
	if isWouldBlock(err) {
		s.negotiating = false
		return 0, false, nil
	}
	if needsOppositeReadiness(err) {
		s.negotiating = true
		s.wantWrite = false
		return 0, false, nil
	}
	return 0, false, wrapError(KindSsl, "writing to TLS stream", err)
}

func (s *TLSStream) PeerAddr() net.Addr  { return s.conn.RemoteAddr() }
func (s *TLSStream) LocalAddr() net.Addr { return s.conn.LocalAddr() }
func (s *TLSStream) IsNegotiating() bool { return s.negotiating }
func (s *TLSStream) ClearNegotiating()   { s.negotiating = false }
func (s *TLSStream) IsTLS() bool         { return true }
func (s *TLSStream) Close() error        { return s.conn.Close() }

func isWouldBlock(err error) bool {
	var errno syscall.Errno
	return errors.As(err, &errno) && (errno == unix.EAGAIN || errno == unix.EWOULDBLOCK)
}

// needsOppositeReadiness reports whether err is the stdlib's signal
// that a TLS record needed the opposite direction's readiness to make
// progress (handshake renegotiation). net.Conn deadlines aside, this
// surfaces as a net.Error whose Temporary()/Timeout() framing the
// crypto/tls package uses internally; here it is just any net.Error
// that isn't a plain would-block errno.
func needsOppositeReadiness(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && !isWouldBlock(err)
}
