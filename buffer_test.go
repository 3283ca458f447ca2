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

func TestCursorAppendAndAdvance(t *testing.T) {
	c := newCursor(16, true)
	require.NoError(t, c.append([]byte("hello")))
	require.Equal(t, []byte("hello"), c.unread())
	c.advance(2)
	require.Equal(t, []byte("llo"), c.unread())
	require.Equal(t, 3, c.len())
}

func TestCursorCompactDropsConsumedBytes(t *testing.T) {
	c := newCursor(16, true)
	require.NoError(t, c.append([]byte("0123456789")))
	c.advance(7)
	c.compact()
	require.Equal(t, 0, c.pos)
	require.Equal(t, []byte("789"), c.unread())
}

func TestCursorGrowsWhenAllowed(t *testing.T) {
	c := newCursor(4, true)
	require.NoError(t, c.append([]byte("12345678")))
	require.Equal(t, []byte("12345678"), c.unread())
}

func TestCursorReportsCapacityErrorWhenGrowDisabled(t *testing.T) {
	c := newCursor(4, false)
	err := c.append([]byte("12345678"))
	require.Error(t, err)
	require.Equal(t, KindCapacity, asEndpointError(err).Kind)
}

func TestCursorResetClearsBuffer(t *testing.T) {
	c := newCursor(16, true)
	require.NoError(t, c.append([]byte("data")))
	c.advance(2)
	c.reset()
	require.True(t, c.empty())
	require.Equal(t, 0, c.pos)
}
