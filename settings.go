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

// Settings configures the buffering, strictness, and failure policy of
// a Connection. Zero value is not a valid Settings; use
// DefaultSettings and override fields as needed.
type Settings struct {
	InBufferCapacity  int
	InBufferGrow      bool
	OutBufferCapacity int
	OutBufferGrow     bool

	FragmentsCapacity int
	FragmentSize      int

	MaskingStrict bool
	KeyStrict     bool

	PanicOnInternal      bool
	PanicOnCapacity      bool
	PanicOnProtocol      bool
	PanicOnEncoding      bool
	PanicOnIo            bool
	PanicOnNewConnection bool
}

// DefaultSettings returns the settings a conforming endpoint should
// start from: strict masking and key verification on, generous but
// bounded buffers, and no panics (every failure reaches OnError; all
// kinds except KindCustom then lead to a Close or termination per
// spec §7).
func DefaultSettings() Settings {
	return Settings{
		InBufferCapacity:  4096,
		InBufferGrow:      true,
		OutBufferCapacity: 4096,
		OutBufferGrow:     true,
		FragmentsCapacity: 4,
		FragmentSize:      16 * 1024,
		MaskingStrict:     true,
		KeyStrict:         true,
	}
}

// shouldPanic reports whether the given kind is configured to panic
// rather than be reported to the handler, per spec §7.
func (s Settings) shouldPanic(kind ErrorKind) bool {
	switch kind {
	case KindInternal:
		return s.PanicOnInternal
	case KindCapacity:
		return s.PanicOnCapacity
	case KindProtocol:
		return s.PanicOnProtocol
	case KindEncoding:
		return s.PanicOnEncoding
	case KindIo, KindSsl:
		return s.PanicOnIo
	default:
		return false
	}
}
