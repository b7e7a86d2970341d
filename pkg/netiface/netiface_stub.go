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

//go:build !linux

package netiface

import (
	"net"

	"github.com/pkg/errors"
)

// List enumerates host interfaces with the portable net package.
func List() ([]Interface, error) {
	sys, err := net.Interfaces()
	if err != nil {
		return nil, errors.Wrap(err, "listing interfaces")
	}
	var out []Interface
	for _, si := range sys {
		if si.Flags&net.FlagUp == 0 || si.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := si.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipnet, ok := a.(*net.IPNet)
			if !ok || ipnet.IP.To4() == nil {
				continue
			}
			out = append(out, Interface{
				Name:    si.Name,
				IP:      ipnet.IP.To4(),
				Netmask: net.IP(ipnet.Mask).To4(),
			})
			break
		}
	}
	return out, nil
}
