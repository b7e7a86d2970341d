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

// Package netiface enumerates host network interfaces suitable for
// guest networking: up, non-loopback, with an IPv4 address.
package netiface

import "net"

// Interface is one usable host interface.
type Interface struct {
	Name      string
	IP        net.IP
	Netmask   net.IP
	Broadcast net.IP
}

// SelectInterface picks the interface named preferred, or the first one
// when preferred is empty or absent.
func SelectInterface(ifaces []Interface, preferred string) (Interface, bool) {
	if len(ifaces) == 0 {
		return Interface{}, false
	}
	if preferred != "" {
		for _, i := range ifaces {
			if i.Name == preferred {
				return i, true
			}
		}
	}
	return ifaces[0], true
}
