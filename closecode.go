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

import "fmt"

// CloseCode is the two-byte status code carried by a Close frame, per
// https://tools.ietf.org/html/rfc6455#section-7.4.
type CloseCode uint16

// Named close codes defined by RFC 6455. Empty is not a wire value; it
// signals "no code", i.e. a Close frame with no payload at all.
const (
	Empty       CloseCode = 0
	Normal      CloseCode = 1000
	Away        CloseCode = 1001
	Protocol    CloseCode = 1002
	Unsupported CloseCode = 1003
	Status      CloseCode = 1005
	Abnormal    CloseCode = 1006
	Invalid     CloseCode = 1007
	Policy      CloseCode = 1008
	Size        CloseCode = 1009
	Extension   CloseCode = 1010
	Error       CloseCode = 1011
	Restart     CloseCode = 1012
	Again       CloseCode = 1013
	Tls         CloseCode = 1015
)

// named holds the CloseCode values with an RFC 6455 name, so Other can
// tell a named code apart from a genuine catch-all application code.
var named = map[CloseCode]string{
	Normal: "normal", Away: "away", Protocol: "protocol",
	Unsupported: "unsupported", Status: "status", Abnormal: "abnormal",
	Invalid: "invalid", Policy: "policy", Size: "size",
	Extension: "extension", Error: "error", Restart: "restart",
	Again: "again", Tls: "tls",
}

func (c CloseCode) String() string {
	if s, ok := named[c]; ok {
		return s
	}
	if c == Empty {
		return "empty"
	}
	return fmt.Sprintf("other(%d)", uint16(c))
}

// alwaysProtocolErrorOnWire lists codes that, per spec, the core treats
// as a protocol error whenever they actually arrive in a Close frame's
// payload, regardless of whether RFC 6455 otherwise "defines" them.
var alwaysProtocolErrorOnWire = map[CloseCode]bool{
	Abnormal: true,
	Status:   true,
	Restart:  true,
	Again:    true,
	Tls:      true,
}

// disallowedOther lists Other(code) values that are reserved or
// otherwise disallowed for endpoint use even though they don't fall
// into the generic out-of-range buckets.
var disallowedOther = map[uint16]bool{
	1004: true, 1014: true, 1016: true, 1100: true, 2000: true, 2999: true,
}

// validateReceivedCloseCode implements the validity rules from spec §4.1:
// a code is rejected as a protocol error if it is out of the usable
// range, explicitly disallowed, or one of the codes that must never
// appear on the wire.
func validateReceivedCloseCode(c CloseCode) error {
	if alwaysProtocolErrorOnWire[c] {
		return newError(KindProtocol, fmt.Sprintf("close code %d must never appear on the wire", uint16(c)))
	}
	if _, ok := named[c]; ok {
		return nil
	}
	code := uint16(c)
	if code < 1000 || code >= 5000 || disallowedOther[code] {
		return newError(KindProtocol, fmt.Sprintf("close code %d is reserved or out of range", code))
	}
	return nil
}
