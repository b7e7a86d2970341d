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

// Package playtime accumulates per-title play time in a fixed-record
// binary database. Multiple emulator instances may share the file; a
// file lock serializes writers.
package playtime

import (
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/gofrs/flock"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// record is one database element: title id and accumulated seconds.
type record struct {
	ProgramID uint64
	Seconds   uint64
}

const (
	fileName     = "playtime.bin"
	saveInterval = 30 * time.Second
	tickInterval = time.Second
)

// Manager tracks the running title and persists accumulated time.
type Manager struct {
	path string
	lock *flock.Flock
	log  *logrus.Entry

	mu        sync.Mutex
	db        map[uint64]uint64 // Seconds by program id.
	programID uint64

	stop chan struct{}
	done chan struct{}
}

// NewManager loads (or creates) the database under dir.
func NewManager(dir string) (*Manager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "creating play time directory")
	}
	path := filepath.Join(dir, fileName)
	m := &Manager{
		path: path,
		lock: flock.New(path + ".lock"),
		log:  logrus.WithField("subsystem", "playtime"),
		db:   make(map[uint64]uint64),
	}
	if err := m.load(); err != nil {
		// A corrupt database resets rather than blocking startup.
		m.log.WithError(err).Error("failed to read play time database, resetting")
		m.db = make(map[uint64]uint64)
	}
	return m, nil
}

// SetProgramID selects the title being accounted. Zero disables
// accounting.
func (m *Manager) SetProgramID(programID uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.programID = programID
}

// PlayTime returns the accumulated time for a title.
func (m *Manager) PlayTime(programID uint64) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return time.Duration(m.db[programID]) * time.Second
}

// Snapshot returns a copy of the whole database.
func (m *Manager) Snapshot() map[uint64]time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[uint64]time.Duration, len(m.db))
	for id, s := range m.db {
		out[id] = time.Duration(s) * time.Second
	}
	return out
}

// Start launches the accounting loop.
func (m *Manager) Start() {
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	go m.run()
}

// Stop ends the accounting loop and saves.
func (m *Manager) Stop() {
	if m.stop == nil {
		return
	}
	close(m.stop)
	<-m.done
	m.stop = nil
	if err := m.Save(); err != nil {
		m.log.WithError(err).Error("final save failed")
	}
}

func (m *Manager) run() {
	defer close(m.done)
	tick := time.NewTicker(tickInterval)
	defer tick.Stop()
	save := time.NewTicker(saveInterval)
	defer save.Stop()
	for {
		select {
		case <-tick.C:
			m.mu.Lock()
			if m.programID != 0 {
				m.db[m.programID]++
			}
			m.mu.Unlock()
		case <-save.C:
			if err := m.Save(); err != nil {
				m.log.WithError(err).Warn("periodic save failed")
			}
		case <-m.stop:
			return
		}
	}
}

// Save writes the database under the file lock. Lock acquisition
// retries briefly; another instance holding it mid-save is expected.
func (m *Manager) Save() error {
	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5)
	err := backoff.Retry(func() error {
		ok, err := m.lock.TryLock()
		if err != nil {
			return backoff.Permanent(err)
		}
		if !ok {
			return errors.New("database is locked")
		}
		return nil
	}, policy)
	if err != nil {
		return errors.Wrap(err, "locking database")
	}
	defer m.lock.Unlock()

	m.mu.Lock()
	records := make([]record, 0, len(m.db))
	for id, s := range m.db {
		if id != 0 {
			records = append(records, record{ProgramID: id, Seconds: s})
		}
	}
	m.mu.Unlock()

	tmp := m.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return errors.Wrap(err, "creating database")
	}
	if err := binary.Write(f, binary.LittleEndian, records); err != nil {
		f.Close()
		return errors.Wrap(err, "writing database")
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(err, "closing database")
	}
	return errors.Wrap(os.Rename(tmp, m.path), "replacing database")
}

func (m *Manager) load() error {
	f, err := os.Open(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrap(err, "opening database")
	}
	defer f.Close()
	for {
		var r record
		if err := binary.Read(f, binary.LittleEndian, &r); err != nil {
			if err == io.EOF {
				return nil
			}
			return errors.Wrap(err, "reading record")
		}
		if r.ProgramID != 0 {
			m.db[r.ProgramID] = r.Seconds
		}
	}
}
