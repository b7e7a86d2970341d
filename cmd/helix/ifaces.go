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

package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"

	"github.com/helix-emu/helix/pkg/netiface"
)

// ifacesCmd lists the host interfaces usable for guest networking.
type ifacesCmd struct {
	preferred string
}

// Name implements subcommands.Command.Name.
func (*ifacesCmd) Name() string {
	return "ifaces"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*ifacesCmd) Synopsis() string {
	return "list host network interfaces usable by the guest"
}

// Usage implements subcommands.Command.Usage.
func (*ifacesCmd) Usage() string {
	return "ifaces [-preferred name] - list usable host network interfaces\n"
}

// SetFlags implements subcommands.Command.SetFlags.
func (c *ifacesCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.preferred, "preferred", "", "interface to mark selected")
}

// Execute implements subcommands.Command.Execute.
func (c *ifacesCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	ifaces, err := netiface.List()
	if err != nil {
		logrus.WithError(err).Error("listing interfaces")
		return subcommands.ExitFailure
	}
	selected, _ := netiface.SelectInterface(ifaces, c.preferred)
	for _, i := range ifaces {
		marker := " "
		if i.Name == selected.Name {
			marker = "*"
		}
		fmt.Printf("%s %-12s ip=%-15s mask=%-15s bcast=%s\n", marker, i.Name, i.IP, i.Netmask, i.Broadcast)
	}
	return subcommands.ExitSuccess
}
