// Copyright 2024 The Helix Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package netiface

import (
	"net"
	"testing"
)

func TestSelectInterface(t *testing.T) {
	ifaces := []Interface{
		{Name: "eth0", IP: net.IPv4(192, 168, 0, 2)},
		{Name: "wlan0", IP: net.IPv4(10, 0, 0, 2)},
	}

	got, ok := SelectInterface(ifaces, "wlan0")
	if !ok || got.Name != "wlan0" {
		t.Errorf("SelectInterface(wlan0) = %v, %v", got, ok)
	}

	// Unknown preference falls back to the first interface.
	got, ok = SelectInterface(ifaces, "tun9")
	if !ok || got.Name != "eth0" {
		t.Errorf("SelectInterface(tun9) = %v, %v", got, ok)
	}

	got, ok = SelectInterface(ifaces, "")
	if !ok || got.Name != "eth0" {
		t.Errorf("SelectInterface() = %v, %v", got, ok)
	}

	if _, ok := SelectInterface(nil, "eth0"); ok {
		t.Error("SelectInterface on empty list reported success")
	}
}
