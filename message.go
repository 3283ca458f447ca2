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

// Message is a logical WebSocket message assembled from one or more
// data frames sharing the first frame's opcode, per spec §3/GLOSSARY.
// Exactly one of Text/Binary is meaningful, selected by IsText.
type Message struct {
	IsText bool
	text   string
	binary []byte
}

// TextMessage builds a Message carrying a UTF-8 text payload.
func TextMessage(s string) Message { return Message{IsText: true, text: s} }

// BinaryMessage builds a Message carrying an opaque binary payload.
func BinaryMessage(b []byte) Message { return Message{IsText: false, binary: b} }

// Text returns the message's text payload and true, or ("", false) if
// this is a binary message.
func (m Message) Text() (string, bool) {
	if m.IsText {
		return m.text, true
	}
	return "", false
}

// Binary returns the message's binary payload and true, or (nil, false)
// if this is a text message.
func (m Message) Binary() ([]byte, bool) {
	if !m.IsText {
		return m.binary, true
	}
	return nil, false
}
