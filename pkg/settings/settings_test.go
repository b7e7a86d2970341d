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

package settings

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nonexistent.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	want := Config{
		CPU: CPU{
			Accuracy: AccuracyUnsafe,
			Backend:  BackendInterp,
		},
		Paths: Paths{
			UpdateDirs:  []string{"/data/updates"},
			DLCDirs:     []string{"/data/dlc", "/more/dlc"},
			PlayTimeDir: "/data/playtime",
		},
	}
	if err := want.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[cpu]\naccuracy = \"accurate\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.CPU.Accuracy != AccuracyAccurate {
		t.Errorf("accuracy = %q, want %q", cfg.CPU.Accuracy, AccuracyAccurate)
	}
	if cfg.CPU.Backend != BackendNCE {
		t.Errorf("backend = %q, want default %q", cfg.CPU.Backend, BackendNCE)
	}
}

func TestStrictFaults(t *testing.T) {
	for accuracy, want := range map[string]bool{
		AccuracyAuto:     false,
		AccuracyUnsafe:   false,
		AccuracyAccurate: true,
	} {
		if got := (CPU{Accuracy: accuracy}).StrictFaults(); got != want {
			t.Errorf("StrictFaults(%q) = %v, want %v", accuracy, got, want)
		}
	}
}

func TestLoadRejectsUnknownValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[cpu]\nbackend = \"jit\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Load accepted an unknown backend")
	}
}
