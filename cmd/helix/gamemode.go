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

	"github.com/helix-emu/helix/pkg/gamemode"
)

// gamemodeCmd probes the host GameMode daemon by registering and
// immediately unregistering this process.
type gamemodeCmd struct{}

// Name implements subcommands.Command.Name.
func (*gamemodeCmd) Name() string {
	return "gamemode"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*gamemodeCmd) Synopsis() string {
	return "probe the host GameMode daemon"
}

// Usage implements subcommands.Command.Usage.
func (*gamemodeCmd) Usage() string {
	return "gamemode - probe the host GameMode daemon\n"
}

// SetFlags implements subcommands.Command.SetFlags.
func (*gamemodeCmd) SetFlags(*flag.FlagSet) {}

// Execute implements subcommands.Command.Execute.
func (*gamemodeCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	s := gamemode.NewSession()
	s.Start()
	defer s.Stop()

	if !s.Active() {
		fmt.Println("gamemode: unavailable")
		return subcommands.ExitFailure
	}
	fmt.Println("gamemode: available")
	return subcommands.ExitSuccess
}
