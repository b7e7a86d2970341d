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

	"github.com/pkg/errors"
	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"
)

// List enumerates host interfaces via netlink: every link that is up,
// not loopback, and carries at least one IPv4 address.
func List() ([]Interface, error) {
	links, err := netlink.LinkList()
	if err != nil {
		return nil, errors.Wrap(err, "listing links")
	}
	var out []Interface
	for _, link := range links {
		attrs := link.Attrs()
		if attrs.Flags&net.FlagUp == 0 || attrs.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := netlink.AddrList(link, unix.AF_INET)
		if err != nil {
			return nil, errors.Wrapf(err, "listing addresses of %s", attrs.Name)
		}
		if len(addrs) == 0 {
			continue
		}
		primary := addrs[0]
		iface := Interface{
			Name:    attrs.Name,
			IP:      primary.IP.To4(),
			Netmask: net.IP(primary.Mask).To4(),
		}
		if primary.Broadcast != nil {
			iface.Broadcast = primary.Broadcast.To4()
		}
		out = append(out, iface)
	}
	return out, nil
}
