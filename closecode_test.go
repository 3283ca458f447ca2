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

import "testing"

func TestValidateReceivedCloseCode(t *testing.T) {
	cases := []struct {
		name    string
		code    CloseCode
		wantErr bool
	}{
		{"normal", Normal, false},
		{"away", Away, false},
		{"policy", Policy, false},
		{"error", Error, false},
		{"application range", CloseCode(3000), false},
		{"private range", CloseCode(4999), false},
		{"abnormal never on wire", Abnormal, true},
		{"status never on wire", Status, true},
		{"restart never on wire", Restart, true},
		{"again never on wire", Again, true},
		{"tls never on wire", Tls, true},
		{"below 1000", CloseCode(999), true},
		{"unassigned 1004", CloseCode(1004), true},
		{"unassigned 1014", CloseCode(1014), true},
		{"unassigned 1016", CloseCode(1016), true},
		{"at or above 5000", CloseCode(5000), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := validateReceivedCloseCode(tc.code)
			if (err != nil) != tc.wantErr {
				t.Errorf("validateReceivedCloseCode(%d) error = %v, wantErr %v", uint16(tc.code), err, tc.wantErr)
			}
			if err != nil {
				if ee := asEndpointError(err); ee.Kind != KindProtocol {
					t.Errorf("error kind = %v, want KindProtocol", ee.Kind)
				}
			}
		})
	}
}

func TestCloseCodeString(t *testing.T) {
	if Normal.String() != "normal" {
		t.Errorf("Normal.String() = %q, want %q", Normal.String(), "normal")
	}
	if Empty.String() != "empty" {
		t.Errorf("Empty.String() = %q, want %q", Empty.String(), "empty")
	}
	if got := CloseCode(4000).String(); got != "other(4000)" {
		t.Errorf("CloseCode(4000).String() = %q, want %q", got, "other(4000)")
	}
}
