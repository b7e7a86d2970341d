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

package nce

import (
	"runtime"
	"sync/atomic"
)

// paramLock coordinates a thread entering or leaving guest mode with a
// thread delivering an interrupt. It is a spinlock with an owner tag
// rather than a mutex: it is taken and released across signal handler
// boundaries, where only atomics are safe.
//
// States:
//
//	lockUnlocked:      nobody holds the lock.
//	lockRunning:       held by the thread that runs (or is about to stop
//	                   running) guest code.
//	lockInterrupting:  held by a thread delivering SignalInterrupt.
//
// Transitions:
//
//   - Unlocked -> Running / Interrupting: CAS by whichever party reads
//     Unlocked first.
//   - Running is also entered by force (plain store) from the fault
//     router when the running thread is about to leave guest mode; see
//     forceLock.
//   - Every exit-to-host path leaves the lock held (by the interrupter
//     that signaled, or by the force-lock in the fault router), and the
//     driver's teardown performs the single unlock. An interrupter that
//     finds the thread running therefore never unlocks.
type paramLock struct {
	state atomic.Uint32
}

const (
	lockUnlocked     uint32 = 0
	lockRunning      uint32 = 1
	lockInterrupting uint32 = 2
)

// lockAs spins until the lock is acquired in the given state. The
// critical sections it guards are a handful of stores, so contention is
// expected to be short.
func (l *paramLock) lockAs(state uint32) {
	for !l.state.CompareAndSwap(lockUnlocked, state) {
		runtime.Gosched()
	}
}

// tryLockAs attempts a single acquisition without spinning.
func (l *paramLock) tryLockAs(state uint32) bool {
	return l.state.CompareAndSwap(lockUnlocked, state)
}

// forceLock marks the lock as held by the running thread regardless of
// its current state. Called only from the fault router on the thread
// that is leaving guest mode:
//
//   - If an interrupter already holds the lock, this store is redundant
//     with its hold and the interrupter's signal lands after we have
//     left guest mode, where it is ignored.
//   - If we win the race, a later interrupter spins until the driver's
//     teardown unlock instead of signaling a thread that is unwinding.
//
//go:nosplit
func (l *paramLock) forceLock() {
	l.state.Store(lockRunning)
}

// unlock releases the lock.
func (l *paramLock) unlock() {
	l.state.Store(lockUnlocked)
}

// held reports whether the lock is currently held, for tests.
func (l *paramLock) held() bool {
	return l.state.Load() != lockUnlocked
}
