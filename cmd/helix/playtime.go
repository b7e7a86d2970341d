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
	"sort"

	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"

	"github.com/helix-emu/helix/pkg/playtime"
	"github.com/helix-emu/helix/pkg/settings"
)

// playtimeCmd prints the accumulated play time per title.
type playtimeCmd struct{}

// Name implements subcommands.Command.Name.
func (*playtimeCmd) Name() string {
	return "playtime"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*playtimeCmd) Synopsis() string {
	return "print accumulated play time per title"
}

// Usage implements subcommands.Command.Usage.
func (*playtimeCmd) Usage() string {
	return "playtime - print accumulated play time per title\n"
}

// SetFlags implements subcommands.Command.SetFlags.
func (*playtimeCmd) SetFlags(*flag.FlagSet) {}

// Execute implements subcommands.Command.Execute.
func (*playtimeCmd) Execute(_ context.Context, _ *flag.FlagSet, args ...any) subcommands.ExitStatus {
	cfg := args[0].(*settings.Config)

	mgr, err := playtime.NewManager(cfg.Paths.PlayTimeDir)
	if err != nil {
		logrus.WithError(err).Error("opening play time database")
		return subcommands.ExitFailure
	}

	snap := mgr.Snapshot()
	ids := make([]uint64, 0, len(snap))
	for id := range snap {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		fmt.Printf("%016x %s\n", id, snap[id])
	}
	return subcommands.ExitSuccess
}
