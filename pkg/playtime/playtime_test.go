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

package playtime

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()

	m, err := NewManager(dir)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	m.mu.Lock()
	m.db[0x0100000000010000] = 3600
	m.db[0x0100000000020000] = 42
	m.mu.Unlock()
	if err := m.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	m2, err := NewManager(dir)
	if err != nil {
		t.Fatalf("NewManager (reload): %v", err)
	}
	if got := m2.PlayTime(0x0100000000010000); got != time.Hour {
		t.Errorf("play time = %v, want 1h", got)
	}
	if got := m2.PlayTime(0x0100000000020000); got != 42*time.Second {
		t.Errorf("play time = %v, want 42s", got)
	}
	if got := m2.PlayTime(0xdead); got != 0 {
		t.Errorf("play time of unknown title = %v, want 0", got)
	}
}

func TestCorruptDatabaseResets(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, fileName), []byte{1, 2, 3}, 0o644); err != nil {
		t.Fatal(err)
	}

	m, err := NewManager(dir)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if snap := m.Snapshot(); len(snap) != 0 {
		t.Errorf("snapshot = %v, want empty after reset", snap)
	}
}

func TestAccounting(t *testing.T) {
	m, err := NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	m.SetProgramID(0x0100000000010000)

	// Drive the tick directly rather than waiting on the wall clock.
	m.mu.Lock()
	for i := 0; i < 5; i++ {
		m.db[m.programID]++
	}
	m.mu.Unlock()

	if got := m.PlayTime(0x0100000000010000); got != 5*time.Second {
		t.Errorf("play time = %v, want 5s", got)
	}

	// Zero program id means nothing accrues.
	m.SetProgramID(0)
	before := m.Snapshot()
	m.mu.Lock()
	if m.programID != 0 {
		t.Error("program id not cleared")
	}
	m.mu.Unlock()
	if got := m.Snapshot(); len(got) != len(before) {
		t.Errorf("snapshot changed with no title selected: %v", got)
	}
}

func TestStartStop(t *testing.T) {
	m, err := NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	m.Start()
	m.Stop()

	// Stop is idempotent.
	m.Stop()

	// The final save must have produced a database file.
	if _, err := os.Stat(m.path); err != nil {
		t.Errorf("database not written on Stop: %v", err)
	}
}
