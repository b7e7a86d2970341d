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

// Package settings loads the emulator configuration.
package settings

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

// CPU accuracy levels.
const (
	AccuracyAuto     = "auto"
	AccuracyAccurate = "accurate"
	AccuracyUnsafe   = "unsafe"
)

// Execution backends.
const (
	BackendNCE    = "nce"
	BackendInterp = "interp"
)

// CPU holds the execution core knobs.
type CPU struct {
	// Accuracy selects the fault-handling policy; see StrictFaults.
	Accuracy string `toml:"accuracy"`

	// Backend selects the transfer strategy.
	Backend string `toml:"backend"`
}

// StrictFaults reports whether unresolvable guest data aborts should
// halt the thread. "accurate" halts; "auto" and "unsafe" keep the
// lenient skip, which more titles survive.
func (c CPU) StrictFaults() bool {
	return c.Accuracy == AccuracyAccurate
}

// Paths holds the collateral content locations.
type Paths struct {
	UpdateDirs  []string `toml:"update_dirs"`
	DLCDirs     []string `toml:"dlc_dirs"`
	PlayTimeDir string   `toml:"play_time_dir"`
}

// Config is the root of the configuration file.
type Config struct {
	CPU   CPU   `toml:"cpu"`
	Paths Paths `toml:"paths"`
}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		CPU: CPU{
			Accuracy: AccuracyAuto,
			Backend:  BackendNCE,
		},
		Paths: Paths{
			PlayTimeDir: filepath.Join(userDataDir(), "play_time"),
		},
	}
}

// Load reads the TOML configuration at path, filling unset fields with
// defaults. A missing file is not an error; it yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, errors.Wrapf(err, "decoding %s", path)
	}
	if err := cfg.validate(); err != nil {
		return cfg, errors.Wrapf(err, "validating %s", path)
	}
	return cfg, nil
}

// Save writes the configuration to path.
func (c Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "creating config directory")
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "creating config file")
	}
	defer f.Close()
	return errors.Wrap(toml.NewEncoder(f).Encode(c), "encoding config")
}

func (c Config) validate() error {
	switch c.CPU.Accuracy {
	case AccuracyAuto, AccuracyAccurate, AccuracyUnsafe:
	default:
		return errors.Errorf("unknown cpu accuracy %q", c.CPU.Accuracy)
	}
	switch c.CPU.Backend {
	case BackendNCE, BackendInterp:
	default:
		return errors.Errorf("unknown cpu backend %q", c.CPU.Backend)
	}
	return nil
}

func userDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "helix")
	}
	return ".helix"
}
