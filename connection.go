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
	"net"
	"unicode/utf8"
)

// Endpoint distinguishes which side of the handshake a Connection
// plays: a Client masks outbound frames and expects unmasked inbound
// ones; a Server is the mirror image.
type Endpoint int

const (
	Server Endpoint = iota
	Client
)

// stateKind is the Connection's place in the Connecting -> Open ->
// Closing -> terminated lifecycle from spec §3.
type stateKind int

const (
	stateConnecting stateKind = iota
	stateOpen
	stateClosing
)

// Events is the readiness set a Connection currently wants from its
// reactor. A Connection signals termination by going Empty.
type Events struct {
	Readable bool
	Writable bool
	Hup      bool
}

// Empty reports whether no readiness is wanted — the reactor's signal
// to deregister and drop the connection.
func (e Events) Empty() bool { return !e.Readable && !e.Writable && !e.Hup }

// Connection is the per-peer protocol engine described in spec §3/§4.5.
// Exactly one goroutine (the owning reactor) may call into a given
// Connection at a time; there is no internal locking, by design (§5).
type Connection struct {
	Token    interface{}
	stream   Stream
	state    stateKind
	endpoint Endpoint
	events   Events
	handler  Handler
	settings Settings

	fragments []Frame

	inBuf  *cursor
	outBuf *cursor

	// Connecting-only state.
	requestBuf  *cursor
	responseBuf *cursor
	request     Request  // client: built eagerly; server: parsed from requestBuf
	response    Response // server: built by handler.OnRequest
	redirectTo  *Response

	closeSent    bool
	shutdownSent bool
	closed       bool

	// scratch is a per-Connection read buffer, reused across TryReadBuf
	// calls so a busy connection doesn't reallocate on every readiness
	// notification. It must not be shared across Connections.
	scratch []byte

	// Client-only reconnection state (spec §4.5 reset()).
	addresses []net.Addr
	dial      func(net.Addr) (Stream, error)
}

// readScratch returns a reusable buffer of at least capacity bytes,
// growing it as needed.
func (c *Connection) readScratch(capacity int) []byte {
	if cap(c.scratch) < capacity {
		c.scratch = make([]byte, capacity)
	}
	return c.scratch[:capacity]
}

// NewServerConnection creates a Connection that will read a client's
// Upgrade request off stream and, once the handler answers it,
// transition to Open.
func NewServerConnection(token interface{}, stream Stream, handler Handler, settings Settings) *Connection {
	c := &Connection{
		Token: token, stream: stream, endpoint: Server,
		handler: handler, settings: settings, state: stateConnecting,
	}
	c.requestBuf = newCursor(settings.InBufferCapacity, settings.InBufferGrow)
	c.responseBuf = newCursor(settings.OutBufferCapacity, settings.OutBufferGrow)
	c.inBuf = newCursor(settings.InBufferCapacity, settings.InBufferGrow)
	c.outBuf = newCursor(settings.OutBufferCapacity, settings.OutBufferGrow)
	c.events = Events{Readable: true}
	return c
}

// NewClientConnection creates a Connection that will build and send an
// Upgrade request over stream, then parse the server's response.
// addresses holds any remaining candidate addresses (beyond the one
// stream is already connected to) and dial is how Reset opens a
// Stream to the next one; both may be nil/empty if the caller never
// intends to call Reset.
func NewClientConnection(token interface{}, stream Stream, handler Handler, settings Settings, u *URL, addresses []net.Addr, dial func(net.Addr) (Stream, error)) (*Connection, error) {
	req, err := handler.BuildRequest(u)
	if err != nil {
		return nil, wrapError(KindInternal, "building client request", err)
	}
	c := &Connection{
		Token: token, stream: stream, endpoint: Client,
		handler: handler, settings: settings, state: stateConnecting,
		request: req, addresses: addresses, dial: dial,
	}
	c.requestBuf = newCursor(settings.OutBufferCapacity, settings.OutBufferGrow)
	c.responseBuf = newCursor(settings.InBufferCapacity, settings.InBufferGrow)
	c.inBuf = newCursor(settings.InBufferCapacity, settings.InBufferGrow)
	c.outBuf = newCursor(settings.OutBufferCapacity, settings.OutBufferGrow)
	if err := c.requestBuf.append(formatRequest(u.Host, req.Path, req.Header("Sec-WebSocket-Key"))); err != nil {
		return nil, err
	}
	c.events = Events{Writable: true}
	return c, nil
}

// Events returns the readiness set the Connection currently wants.
func (c *Connection) Events() Events { return c.events }

// terminate sets Events to Empty, the reactor's signal to deregister
// and drop the Connection, and releases its buffers back to bufPool.
func (c *Connection) terminate() {
	c.events = Events{}
	c.Close()
}

// Close releases the Connection's buffers back to bufPool. It is safe
// to call more than once. It does not close the underlying Stream;
// the reactor owns that lifecycle.
func (c *Connection) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.inBuf.release()
	c.outBuf.release()
	if c.requestBuf != nil {
		c.requestBuf.release()
	}
	if c.responseBuf != nil {
		c.responseBuf.release()
	}
	return nil
}

// Read is called by the reactor on read readiness.
func (c *Connection) Read() error {
	if c.stream.IsNegotiating() {
		c.stream.ClearNegotiating()
		return c.Write()
	}
	var err error
	switch c.state {
	case stateConnecting:
		err = c.readHandshake()
	default:
		err = c.readOpen()
	}
	if err != nil {
		c.handleError(err)
		return err
	}
	if c.stream.IsNegotiating() {
		c.events = Events{Writable: true}
	}
	return nil
}

// Write is called by the reactor on write readiness.
func (c *Connection) Write() error {
	if c.stream.IsNegotiating() {
		c.stream.ClearNegotiating()
		return c.Read()
	}
	var err error
	switch c.state {
	case stateConnecting:
		err = c.writeHandshake()
	default:
		err = c.writeOpen()
	}
	if err != nil {
		c.handleError(err)
		return err
	}
	if c.stream.IsNegotiating() {
		c.events = Events{Readable: true}
	}
	return nil
}

// --- Handshake state machine (spec §4.5) -----------------------------

func (c *Connection) readHandshake() error {
	if c.endpoint == Server {
		return c.serverReadHandshake()
	}
	return c.clientReadHandshake()
}

func (c *Connection) writeHandshake() error {
	if c.endpoint == Server {
		return c.serverWriteHandshake()
	}
	return c.clientWriteHandshake()
}

func (c *Connection) serverReadHandshake() error {
	n, ok, err := c.stream.TryReadBuf(c.readScratch(c.settings.InBufferCapacity))
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if err := c.requestBuf.append(c.scratch[:n]); err != nil {
		return err
	}

	req, consumed, complete, err := parseRequest(c.requestBuf.unread())
	if err != nil {
		return err
	}
	if !complete {
		return nil
	}
	c.requestBuf.advance(consumed)
	c.request = req

	resp, err := c.handler.OnRequest(req)
	if err != nil {
		return wrapError(KindCustom, "handler.OnRequest failed", err)
	}
	c.response = resp
	c.responseBuf.reset()
	if err := c.responseBuf.append(encodeResponse(resp)); err != nil {
		return err
	}
	c.events = Events{Writable: true}
	return nil
}

func (c *Connection) serverWriteHandshake() error {
	for !c.responseBuf.empty() {
		n, ok, err := c.stream.TryWriteBuf(c.responseBuf.unread())
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		c.responseBuf.advance(n)
	}
	if c.response.Status != 101 {
		c.terminate()
		return nil
	}
	return c.completeOpen(c.response)
}

func (c *Connection) clientWriteHandshake() error {
	for !c.requestBuf.empty() {
		n, ok, err := c.stream.TryWriteBuf(c.requestBuf.unread())
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		c.requestBuf.advance(n)
	}
	c.events = Events{Readable: true}
	return nil
}

func (c *Connection) clientReadHandshake() error {
	n, ok, err := c.stream.TryReadBuf(c.readScratch(c.settings.InBufferCapacity))
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if err := c.responseBuf.append(c.scratch[:n]); err != nil {
		return err
	}

	resp, consumed, complete, err := parseResponse(c.responseBuf.unread())
	if err != nil {
		return err
	}
	if !complete {
		return nil
	}
	early := append([]byte(nil), c.responseBuf.unread()[consumed:]...)
	c.responseBuf.advance(consumed)

	switch {
	case resp.Status == 101:
		if c.settings.KeyStrict {
			expect := acceptKey(c.request.Header("Sec-WebSocket-Key"))
			if resp.Header("Sec-WebSocket-Accept") != expect {
				return newError(KindProtocol, "Sec-WebSocket-Accept mismatch")
			}
		}
		if err := c.handler.OnResponse(resp); err != nil {
			return wrapError(KindCustom, "handler.OnResponse failed", err)
		}
		if err := c.completeOpen(resp); err != nil {
			return err
		}
		if len(early) > 0 {
			if err := c.inBuf.append(early); err != nil {
				return err
			}
			return c.readFrames()
		}
		return nil
	case resp.Status == 301 || resp.Status == 302:
		if err := c.handler.OnResponse(resp); err != nil {
			return wrapError(KindCustom, "handler.OnResponse failed", err)
		}
		c.redirectTo = &resp
		c.terminate()
		return nil
	default:
		return newError(KindProtocol, "unexpected handshake status")
	}
}

// completeOpen transitions Connecting -> Open and notifies the handler.
func (c *Connection) completeOpen(resp Response) error {
	c.state = stateOpen
	c.response = resp
	hs := Handshake{
		Request:   c.request,
		Response:  resp,
		PeerAddr:  c.stream.PeerAddr(),
		LocalAddr: c.stream.LocalAddr(),
	}
	if err := c.handler.OnOpen(hs); err != nil {
		return wrapError(KindCustom, "handler.OnOpen failed", err)
	}
	c.checkEvents()
	return nil
}

// --- Open / Closing I/O (spec §4.5) ----------------------------------

func (c *Connection) readOpen() error {
	n, err := c.bufferIn()
	if err != nil {
		return err
	}
	if n == 0 {
		return nil
	}
	return c.readFrames()
}

// bufferIn repeatedly appends from the socket into inBuf, returning
// the total bytes appended (0 if nothing was readable).
func (c *Connection) bufferIn() (int, error) {
	total := 0
	scratch := c.readScratch(c.settings.InBufferCapacity)
	for {
		n, ok, err := c.stream.TryReadBuf(scratch)
		if err != nil {
			return total, err
		}
		if !ok {
			return total, nil
		}
		if err := c.inBuf.append(c.scratch[:n]); err != nil {
			return total, err
		}
		total += n
		if n < len(scratch) {
			return total, nil
		}
	}
}

func (c *Connection) writeOpen() error {
	for !c.outBuf.empty() {
		n, ok, err := c.stream.TryWriteBuf(c.outBuf.unread())
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		c.outBuf.advance(n)
	}
	c.outBuf.compact()
	if c.state == stateClosing && c.endpoint == Server && c.outBuf.empty() {
		c.terminate()
		return nil
	}
	c.checkEvents()
	return nil
}

// checkEvents implements spec §4.5 check_events: while not Connecting,
// always stay readable; add writable iff outBuf has pending bytes.
func (c *Connection) checkEvents() {
	c.events = Events{Readable: true, Writable: !c.outBuf.empty()}
}

// --- Frame reception (spec §4.5 read_frames) --------------------------

func (c *Connection) readFrames() error {
	for {
		f, n, ok, err := parse(c.inBuf.unread())
		if err != nil {
			return err
		}
		if !ok {
			c.inBuf.compact()
			return nil
		}
		c.inBuf.advance(n)
		if err := c.dispatchFrame(f); err != nil {
			return err
		}
	}
}

func (c *Connection) dispatchFrame(f Frame) error {
	if c.settings.MaskingStrict {
		masked := f.Mask != nil
		if c.endpoint == Client && masked {
			return newError(KindProtocol, "client received a masked frame")
		}
		if c.endpoint == Server && !masked {
			return newError(KindProtocol, "server received an unmasked frame")
		}
	}
	if f.Mask != nil {
		f.removeMask()
	}

	rewritten, err := c.handler.OnFrame(f)
	if err != nil {
		return wrapError(KindCustom, "handler.OnFrame failed", err)
	}
	if rewritten == nil {
		return nil
	}
	if rewritten.OpCode != f.OpCode {
		panic("gows: handler.OnFrame must not change a frame's opcode")
	}
	f = *rewritten

	if f.OpCode.IsControl() {
		if len(f.Payload) > maxControlPayload {
			return newError(KindProtocol, "control frame payload exceeds 125 bytes")
		}
		if !f.Finished {
			return newError(KindProtocol, "control frame must not be fragmented")
		}
		return c.dispatchControl(f)
	}
	return c.dispatchData(f)
}

func (c *Connection) dispatchControl(f Frame) error {
	switch f.OpCode {
	case Close:
		return c.handleReceivedClose(f)
	case Ping:
		return c.SendPong(f.Payload)
	case Pong:
		return nil // forwarded to nothing further; no action per spec.
	default:
		return newError(KindProtocol, "unexpected control opcode")
	}
}

func (c *Connection) handleReceivedClose(f Frame) error {
	if c.state == stateClosing {
		return nil
	}
	if len(f.Payload) < 2 {
		if err := c.handler.OnClose(Status, ""); err != nil {
			return wrapError(KindCustom, "handler.OnClose failed", err)
		}
		return c.SendClose(Empty, "")
	}
	code := CloseCode(be16(f.Payload))
	if err := validateReceivedCloseCode(code); err != nil {
		return err
	}
	reason := string(f.Payload[2:])
	if len(f.Payload) > 2 && !utf8.ValidString(reason) {
		if err := c.handler.OnClose(code, ""); err != nil {
			return wrapError(KindCustom, "handler.OnClose failed", err)
		}
		return c.SendClose(Invalid, "")
	}
	if err := c.handler.OnClose(code, reason); err != nil {
		return wrapError(KindCustom, "handler.OnClose failed", err)
	}
	return c.SendClose(code, "")
}

func (c *Connection) dispatchData(f Frame) error {
	if !f.Finished {
		if f.OpCode == Continue && len(c.fragments) == 0 {
			return newError(KindProtocol, "continuation frame without a preceding data frame")
		}
		if f.OpCode != Continue && len(c.fragments) != 0 {
			return newError(KindProtocol, "new data frame received before the previous fragmented message finished")
		}
		if c.settings.FragmentsCapacity > 0 && len(c.fragments) >= c.settings.FragmentsCapacity {
			return newError(KindCapacity, "too many fragments buffered for one message")
		}
		c.fragments = append(c.fragments, f)
		return nil
	}

	switch f.OpCode {
	case Text, Binary:
		if len(c.fragments) != 0 {
			return newError(KindProtocol, "unfragmented message received mid-fragmentation")
		}
		return c.deliverMessage(f.OpCode, f.Payload)
	case Continue:
		if len(c.fragments) == 0 {
			return newError(KindProtocol, "continuation frame without a preceding data frame")
		}
		first := c.fragments[0]
		payload := append([]byte(nil), first.Payload...)
		for _, frag := range c.fragments[1:] {
			payload = append(payload, frag.Payload...)
		}
		payload = append(payload, f.Payload...)
		c.fragments = c.fragments[:0]
		return c.deliverMessage(first.OpCode, payload)
	default:
		return newError(KindProtocol, "unexpected data opcode")
	}
}

func (c *Connection) deliverMessage(op OpCode, payload []byte) error {
	var msg Message
	switch op {
	case Text:
		if !utf8.Valid(payload) {
			return newError(KindEncoding, "text message is not valid UTF-8")
		}
		msg = TextMessage(string(payload))
	case Binary:
		msg = BinaryMessage(payload)
	default:
		return newError(KindInternal, "deliverMessage called with a non-data opcode")
	}
	if err := c.handler.OnMessage(msg); err != nil {
		return wrapError(KindCustom, "handler.OnMessage failed", err)
	}
	return nil
}

func be16(b []byte) uint16 { return uint16(b[0])<<8 | uint16(b[1]) }

// IsOpen reports whether the handshake has completed and the
// Connection is exchanging data frames.
func (c *Connection) IsOpen() bool { return c.state == stateOpen }

// IsClosing reports whether a Close frame has been sent or received.
func (c *Connection) IsClosing() bool { return c.state == stateClosing }

// RedirectTo returns the 3xx response a client received during the
// handshake, or nil if none was.
func (c *Connection) RedirectTo() *Response { return c.redirectTo }

// --- Outbound framing (spec §4.5 send_*, buffer_frame) ----------------

// SendMessage fragments payload by settings.FragmentSize and enqueues
// the resulting frames, per spec §4.5/§8.
func (c *Connection) SendMessage(m Message) error {
	op := Binary
	var payload []byte
	if t, ok := m.Text(); ok {
		op = Text
		payload = []byte(t)
	} else {
		payload, _ = m.Binary()
	}

	limit := c.settings.FragmentSize
	if limit <= 0 || len(payload) <= limit {
		return c.bufferFrame(message(payload, op, true))
	}

	for start := 0; start < len(payload); start += limit {
		end := start + limit
		if end > len(payload) {
			end = len(payload)
		}
		finished := end == len(payload)
		frameOp := Continue
		if start == 0 {
			frameOp = op
		}
		if err := c.bufferFrame(message(payload[start:end], frameOp, finished)); err != nil {
			return err
		}
	}
	return nil
}

// SendPing enqueues a Ping control frame.
func (c *Connection) SendPing(data []byte) error {
	return c.bufferFrame(ping(data))
}

// SendPong enqueues a Pong control frame; a no-op while Closing.
func (c *Connection) SendPong(data []byte) error {
	if c.state == stateClosing {
		return nil
	}
	return c.bufferFrame(pong(data))
}

// SendClose enqueues a Close frame and transitions to Closing. Safe to
// call more than once; subsequent calls still enqueue a frame.
func (c *Connection) SendClose(code CloseCode, reason string) error {
	c.state = stateClosing
	c.closeSent = true
	return c.bufferFrame(closeFrame(code, reason))
}

// Shutdown notifies the handler and issues a graceful Close(Away, ...).
func (c *Connection) Shutdown() error {
	c.shutdownSent = true
	if err := c.handler.OnShutdown(); err != nil {
		return wrapError(KindCustom, "handler.OnShutdown failed", err)
	}
	return c.SendClose(Away, "Shutting down.")
}

// Reset rewinds a client Connection that never reached Open and dials
// the next candidate address, per spec §4.5. It fails when no
// candidates remain.
func (c *Connection) Reset() error {
	if c.endpoint != Client || c.state != stateConnecting {
		return newError(KindInternal, "Reset is only valid for a client Connection still Connecting")
	}
	if len(c.addresses) == 0 {
		return newError(KindInternal, "no candidate addresses remain")
	}
	addr := c.addresses[0]
	c.addresses = c.addresses[1:]
	if c.stream != nil {
		_ = c.stream.Close()
	}
	stream, err := c.dial(addr)
	if err != nil {
		return wrapError(KindIo, "dialing next candidate address", err)
	}
	c.stream = stream
	c.requestBuf.pos = 0 // replay the opening request on the new stream
	c.responseBuf.reset()
	c.events = Events{Writable: true}
	return nil
}

// bufferFrame runs f through handler.OnSendFrame, then appends its
// encoding to outBuf, growing or failing per settings, per spec §4.5.
func (c *Connection) bufferFrame(f Frame) error {
	rewritten, err := c.handler.OnSendFrame(f)
	if err != nil {
		return wrapError(KindCustom, "handler.OnSendFrame failed", err)
	}
	if rewritten == nil {
		return nil
	}
	f = *rewritten

	if c.endpoint == Client {
		key := newMaskKey()
		payload := make([]byte, len(f.Payload))
		copy(payload, f.Payload)
		f.Payload = payload
		f.Mask = &key
	}

	encoded := format(nil, f)
	if err := c.outBuf.append(encoded); err != nil {
		return err
	}
	if c.state != stateConnecting {
		c.checkEvents()
	}
	return nil
}

func (c *Connection) handleError(err error) {
	ee := asEndpointError(err)
	if c.settings.shouldPanic(ee.Kind) {
		panic(ee)
	}
	switch c.state {
	case stateConnecting:
		c.handler.OnError(ee)
		switch {
		case ee.Kind == KindIo || ee.Kind == KindSsl:
			c.terminate()
		case c.endpoint == Server:
			c.responseBuf.reset()
			if ee.Kind == KindProtocol {
				_ = c.responseBuf.append(formatBadRequest(ee.Error()))
			} else {
				_ = c.responseBuf.append(formatServerError(ee.Error()))
			}
			c.events = Events{Writable: true}
		default:
			c.terminate()
		}
	default:
		c.handler.OnError(ee)
		if c.closeSent {
			return
		}
		switch ee.Kind {
		case KindCustom:
			// Notify only; no close/terminate side effect.
		case KindCapacity:
			_ = c.SendClose(Size, ee.Error())
		case KindProtocol:
			_ = c.SendClose(Protocol, ee.Error())
		case KindEncoding:
			_ = c.SendClose(Invalid, ee.Error())
		case KindInternal:
			_ = c.SendClose(Error, ee.Error())
		default: // Io, Ssl, Parse and anything else: terminate.
			c.terminate()
		}
	}
}
