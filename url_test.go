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

func TestParseURLDefaultsPortAndPath(t *testing.T) {
	u, err := ParseURL("ws://example.com")
	require.NoError(t, err)
	require.False(t, u.Secure)
	require.Equal(t, "example.com:80", u.Host)
	require.Equal(t, "/", u.Path)
}

func TestParseURLSecureDefaultsPort443(t *testing.T) {
	u, err := ParseURL("wss://example.com/chat")
	require.NoError(t, err)
	require.True(t, u.Secure)
	require.Equal(t, "example.com:443", u.Host)
	require.Equal(t, "/chat", u.Path)
}

func TestParseURLPreservesExplicitPort(t *testing.T) {
	u, err := ParseURL("ws://example.com:9000/chat")
	require.NoError(t, err)
	require.Equal(t, "example.com:9000", u.Host)
}

func TestParseURLRejectsOtherSchemes(t *testing.T) {
	_, err := ParseURL("http://example.com")
	require.Error(t, err)
	require.Equal(t, KindParse, asEndpointError(err).Kind)
}
