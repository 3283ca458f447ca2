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
	"crypto/rand"
	"crypto/tls"
	"encoding/base64"
)

// Handler is the capability set user code implements to participate
// in a Connection's lifecycle, per spec §4.6. Every callback may fail;
// a non-nil error is classified and fed to OnError. All callbacks are
// invoked from the single reactor goroutine that owns the Connection.
type Handler interface {
	// OnOpen is called exactly once, when the handshake completes.
	OnOpen(h Handshake) error
	// OnMessage is called once per fully reassembled message.
	OnMessage(m Message) error
	// OnFrame is a hook before a received frame is dispatched. It may
	// return (nil, nil) to suppress the frame, or the frame
	// (unmodified or with only non-opcode fields changed) to let
	// dispatch continue.
	OnFrame(f Frame) (*Frame, error)
	// OnSendFrame is a hook before an outbound frame is buffered,
	// with the same suppress-or-rewrite contract as OnFrame.
	OnSendFrame(f Frame) (*Frame, error)
	// OnRequest is called server-side once a request has parsed; it
	// returns the response to send back.
	OnRequest(r Request) (Response, error)
	// OnResponse is a client-side peek at the parsed response, called
	// whether or not the handshake actually opens (e.g. on a redirect).
	OnResponse(r Response) error
	// OnClose is called when a Close frame is received; sending a Close
	// does not invoke it.
	OnClose(code CloseCode, reason string) error
	// OnError is called for every classified failure.
	OnError(err *EndpointError)
	// OnShutdown is called once, from Connection.Shutdown, before the
	// Close frame it triggers is enqueued.
	OnShutdown() error
	// BuildRequest constructs the client-side request for the given
	// dialed URL.
	BuildRequest(u *URL) (Request, error)
	// BuildSSL returns the tls.Config a TLSStream should use for the
	// given URL, or (nil, nil) to use the stream's own defaults. TLS
	// handshake primitives themselves remain out of scope (spec §1);
	// this only lets a handler supply e.g. a RootCAs pool or ServerName.
	BuildSSL(u *URL) (*tls.Config, error)
}

// BaseHandler implements every Handler method as a no-op, so embedding
// it lets a handler override only the callbacks it cares about —
// exactly the pattern the teacher's own default server/client
// synthesis is used for (spec §4.6 "Defaults").
type BaseHandler struct{}

func (BaseHandler) OnOpen(Handshake) error              { return nil }
func (BaseHandler) OnMessage(Message) error             { return nil }
func (BaseHandler) OnFrame(f Frame) (*Frame, error)     { return &f, nil }
func (BaseHandler) OnSendFrame(f Frame) (*Frame, error) { return &f, nil }
func (BaseHandler) OnResponse(Response) error           { return nil }
func (BaseHandler) OnClose(CloseCode, string) error     { return nil }
func (BaseHandler) OnError(*EndpointError)              {}
func (BaseHandler) OnShutdown() error                   { return nil }
func (BaseHandler) BuildSSL(*URL) (*tls.Config, error)  { return nil, nil }

// ServerHandler embeds BaseHandler and supplies the conforming-server
// defaults from spec §4.6: echo Sec-WebSocket-Accept and return 101.
// Embedding applications override OnMessage/OnOpen/etc. as needed.
type ServerHandler struct{ BaseHandler }

func (ServerHandler) OnRequest(r Request) (Response, error) {
	return Response{
		Status: 101,
		Headers: map[string][]string{
			"upgrade":              {"websocket"},
			"connection":           {"Upgrade"},
			"sec-websocket-accept": {acceptKey(r.Header("Sec-WebSocket-Key"))},
		},
	}, nil
}

func (ServerHandler) BuildRequest(*URL) (Request, error) {
	return Request{}, newError(KindInternal, "ServerHandler cannot build a client request")
}

// ClientHandler embeds BaseHandler and supplies the conforming-client
// default from spec §4.6: a randomized 16-byte nonce, base64-encoded,
// as the Sec-WebSocket-Key.
type ClientHandler struct{ BaseHandler }

func (ClientHandler) OnRequest(Request) (Response, error) {
	return Response{}, newError(KindInternal, "ClientHandler cannot answer a server request")
}

func (ClientHandler) BuildRequest(u *URL) (Request, error) {
	nonce, err := randomKey()
	if err != nil {
		return Request{}, wrapError(KindInternal, "generating Sec-WebSocket-Key", err)
	}
	return Request{
		Method: "GET",
		Path:   u.Path,
		Headers: map[string][]string{
			"host":                  {u.Host},
			"upgrade":               {"websocket"},
			"connection":            {"Upgrade"},
			"sec-websocket-key":     {nonce},
			"sec-websocket-version": {"13"},
		},
	}, nil
}

// randomKey draws the 16-byte, base64-encoded nonce RFC 6455 requires
// for Sec-WebSocket-Key.
func randomKey() (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b[:]), nil
}
