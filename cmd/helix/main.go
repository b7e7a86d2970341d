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

// Binary helix is the host-side control tool: it inspects the content
// index, play time database, and host network interfaces the emulator
// core uses.
package main

import (
	"context"
	"flag"
	"os"
	"path/filepath"

	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"

	"github.com/helix-emu/helix/pkg/settings"
)

var (
	configPath = flag.String("config", defaultConfigPath(), "configuration file")
	debugLog   = flag.Bool("debug", false, "enable debug logging")
)

func defaultConfigPath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "helix", "config.toml")
	}
	return "config.toml"
}

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(new(indexCmd), "content")
	subcommands.Register(new(playtimeCmd), "content")
	subcommands.Register(new(ifacesCmd), "host")
	subcommands.Register(new(gamemodeCmd), "host")

	flag.Parse()

	logrus.SetFormatter(&logrus.TextFormatter{DisableTimestamp: false})
	if *debugLog {
		logrus.SetLevel(logrus.DebugLevel)
	}

	cfg, err := settings.Load(*configPath)
	if err != nil {
		logrus.WithError(err).Fatal("loading configuration")
	}

	ctx := context.Background()
	os.Exit(int(subcommands.Execute(ctx, &cfg)))
}
