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

// Package gamemode registers the emulator with the Feral GameMode
// daemon over the session bus, asking the host for a performance
// governor while a title runs. A missing daemon is normal; every entry
// point degrades to a log line.
package gamemode

import (
	"os"

	"github.com/godbus/dbus/v5"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	busName    = "com.feralinteractive.GameMode"
	objectPath = "/com/feralinteractive/GameMode"
	ifaceName  = "com.feralinteractive.GameMode"
)

// Session talks to the GameMode daemon for one emulator process.
type Session struct {
	log *logrus.Entry

	conn   *dbus.Conn
	active bool
}

// NewSession returns an inactive session.
func NewSession() *Session {
	return &Session{log: logrus.WithField("subsystem", "gamemode")}
}

// Start registers this process with the daemon. Failure is logged, not
// returned; the emulator runs fine without the daemon.
func (s *Session) Start() {
	if s.active {
		return
	}
	if err := s.register(); err != nil {
		s.log.WithError(err).Info("gamemode unavailable")
		return
	}
	s.active = true
	s.log.Info("gamemode engaged")
}

// Stop unregisters if Start succeeded.
func (s *Session) Stop() {
	if !s.active {
		return
	}
	s.active = false
	if err := s.unregister(); err != nil {
		s.log.WithError(err).Warn("gamemode unregister failed")
	}
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
}

// Active reports whether the daemon accepted the registration.
func (s *Session) Active() bool {
	return s.active
}

func (s *Session) object() (dbus.BusObject, error) {
	if s.conn == nil {
		conn, err := dbus.SessionBus()
		if err != nil {
			return nil, errors.Wrap(err, "connecting to session bus")
		}
		s.conn = conn
	}
	return s.conn.Object(busName, objectPath), nil
}

func (s *Session) register() error {
	obj, err := s.object()
	if err != nil {
		return err
	}
	var status int32
	call := obj.Call(ifaceName+".RegisterGame", 0, int32(os.Getpid()))
	if call.Err != nil {
		return errors.Wrap(call.Err, "RegisterGame")
	}
	if err := call.Store(&status); err != nil {
		return errors.Wrap(err, "RegisterGame reply")
	}
	if status < 0 {
		return errors.Errorf("daemon rejected registration: %d", status)
	}
	return nil
}

func (s *Session) unregister() error {
	obj, err := s.object()
	if err != nil {
		return err
	}
	var status int32
	call := obj.Call(ifaceName+".UnregisterGame", 0, int32(os.Getpid()))
	if call.Err != nil {
		return errors.Wrap(call.Err, "UnregisterGame")
	}
	if err := call.Store(&status); err != nil {
		return errors.Wrap(err, "UnregisterGame reply")
	}
	if status < 0 {
		return errors.Errorf("daemon rejected unregistration: %d", status)
	}
	return nil
}
