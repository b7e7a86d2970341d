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
	"sync"

	"github.com/google/subcommands"

	"github.com/helix-emu/helix/pkg/contentdex"
	"github.com/helix-emu/helix/pkg/settings"
)

// indexCmd rescans the external content directories and prints the
// resulting index.
type indexCmd struct{}

// Name implements subcommands.Command.Name.
func (*indexCmd) Name() string {
	return "index"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*indexCmd) Synopsis() string {
	return "rebuild and print the external content index"
}

// Usage implements subcommands.Command.Usage.
func (*indexCmd) Usage() string {
	return "index - rebuild and print the external content index\n"
}

// SetFlags implements subcommands.Command.SetFlags.
func (*indexCmd) SetFlags(*flag.FlagSet) {}

// Execute implements subcommands.Command.Execute.
func (*indexCmd) Execute(_ context.Context, _ *flag.FlagSet, args ...any) subcommands.ExitStatus {
	cfg := args[0].(*settings.Config)

	var sink entrySink
	contentdex.NewIndexer(&sink).Rebuild(cfg.Paths.UpdateDirs, cfg.Paths.DLCDirs)

	for _, e := range sink.entries {
		kind := "update"
		if e.Kind == contentdex.KindDLC {
			kind = "dlc"
		}
		fmt.Printf("%016x v%-6d %-6s %s\n", e.TitleID, e.Version, kind, e.Path)
	}
	return subcommands.ExitSuccess
}

// entrySink collects committed entries for printing.
type entrySink struct {
	mu      sync.Mutex
	entries []contentdex.Entry
}

// ClearAllEntries implements contentdex.Provider.
func (s *entrySink) ClearAllEntries() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
}

// AddEntry implements contentdex.Provider.
func (s *entrySink) AddEntry(e contentdex.Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
}
