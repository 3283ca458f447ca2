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
	"net/url"
	"strings"
)

// URL is a parsed ws:// or wss:// endpoint, per spec §6: default ports
// 80/443, default path "/".
type URL struct {
	Secure bool
	Host   string // host[:port], always carrying an explicit port
	Path   string
}

// ParseURL parses raw as a ws:// or wss:// URL.
func ParseURL(raw string) (*URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, wrapError(KindParse, "parsing WebSocket URL", err)
	}
	var secure bool
	switch u.Scheme {
	case "ws":
		secure = false
	case "wss":
		secure = true
	default:
		return nil, newError(KindParse, "URL scheme must be ws or wss")
	}
	host := u.Host
	if !strings.Contains(host, ":") {
		if secure {
			host += ":443"
		} else {
			host += ":80"
		}
	}
	path := u.Path
	if path == "" {
		path = "/"
	}
	return &URL{Secure: secure, Host: host, Path: path}, nil
}
