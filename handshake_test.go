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

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestAcceptKeyRFC6455Example(t *testing.T) {
	// The exact example from https://tools.ietf.org/html/rfc6455#section-1.3.
	got := acceptKey("dGhlIHNhbXBsZSBub25jZQ==")
	require.Equal(t, "s3pPLMBiTxaQ9kYGzzhZRbK+xOo=", got)
}

func TestHeaderHasToken(t *testing.T) {
	require.True(t, headerHasToken("Upgrade", "upgrade"))
	require.True(t, headerHasToken("keep-alive, Upgrade", "Upgrade"))
	require.False(t, headerHasToken("keep-alive", "Upgrade"))
}

func TestParseRequestRoundTrip(t *testing.T) {
	raw := "GET /chat HTTP/1.1\r\n" +
		"Host: example.com\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\n" +
		"Sec-WebSocket-Version: 13\r\n\r\n"

	req, n, ok, err := parseRequest([]byte(raw))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, len(raw), n)
	require.Equal(t, "GET", req.Method)
	require.Equal(t, "/chat", req.Path)
	require.Equal(t, "dGhlIHNhbXBsZSBub25jZQ==", req.Header("Sec-WebSocket-Key"))
}

func TestParseRequestIncomplete(t *testing.T) {
	raw := "GET /chat HTTP/1.1\r\nHost: example.com\r\n"
	req, n, ok, err := parseRequest([]byte(raw))
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, 0, n)
	require.Equal(t, Request{}, req)
}

func TestParseRequestRejectsMissingUpgrade(t *testing.T) {
	raw := "GET /chat HTTP/1.1\r\n" +
		"Host: example.com\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\n" +
		"Sec-WebSocket-Version: 13\r\n\r\n"
	_, _, _, err := parseRequest([]byte(raw))
	require.Error(t, err)
	require.Equal(t, KindParse, asEndpointError(err).Kind)
}

func TestParseResponseAccept(t *testing.T) {
	raw := "HTTP/1.1 101 Switching Protocols\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Accept: s3pPLMBiTxaQ9kYGzzhZRbK+xOo=\r\n\r\n"
	resp, n, ok, err := parseResponse([]byte(raw))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, len(raw), n)
	require.Equal(t, 101, resp.Status)
}

func TestParseResponseRedirect(t *testing.T) {
	raw := "HTTP/1.1 302 Found\r\nLocation: wss://example.com/chat\r\n\r\n"
	resp, _, ok, err := parseResponse([]byte(raw))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 302, resp.Status)
}

func TestFormatRequestIncludesRequiredHeaders(t *testing.T) {
	out := string(formatRequest("example.com", "/chat", "thekey=="))
	require.Contains(t, out, "GET /chat HTTP/1.1\r\n")
	require.Contains(t, out, "Host: example.com\r\n")
	require.Contains(t, out, "Sec-WebSocket-Key: thekey==\r\n")
	require.Contains(t, out, "Sec-WebSocket-Version: 13\r\n")
}

func TestParseRequestStructuralEquality(t *testing.T) {
	raw := "GET /chat HTTP/1.1\r\n" +
		"Host: example.com\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\n" +
		"Sec-WebSocket-Version: 13\r\n\r\n"

	req, _, ok, err := parseRequest([]byte(raw))
	require.NoError(t, err)
	require.True(t, ok)

	want := Request{
		Method: "GET",
		Path:   "/chat",
		Headers: map[string][]string{
			"host":                  {"example.com"},
			"upgrade":               {"websocket"},
			"connection":            {"Upgrade"},
			"sec-websocket-key":     {"dGhlIHNhbXBsZSBub25jZQ=="},
			"sec-websocket-version": {"13"},
		},
	}
	if diff := cmp.Diff(want, req); diff != "" {
		t.Errorf("parseRequest result mismatch (-want +got):\n%s", diff)
	}
}

func TestEncodeResponseRoundTripsThroughParse(t *testing.T) {
	resp := Response{
		Status: 101,
		Headers: map[string][]string{
			"upgrade":              {"websocket"},
			"connection":           {"Upgrade"},
			"sec-websocket-accept": {acceptKey("dGhlIHNhbXBsZSBub25jZQ==")},
		},
	}
	encoded := encodeResponse(resp)
	parsed, n, ok, err := parseResponse(encoded)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, len(encoded), n)
	require.Equal(t, 101, parsed.Status)
	require.Equal(t, resp.Header("sec-websocket-accept"), parsed.Header("Sec-WebSocket-Accept"))
}
