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

// Package kernel carries the thread and process objects the execution
// core runs against. The scheduler proper lives above this repository;
// these types hold exactly the state the core's interfaces demand.
package kernel

import (
	"sync"

	"github.com/helix-emu/helix/pkg/nce"
)

// Thread is a guest kernel thread. It embeds the native execution
// parameter block the core synchronizes through; the block lives and
// dies with the thread.
type Thread struct {
	params nce.NativeExecutionParameters

	owner *Process

	// hostTID is the host OS thread currently hosting this thread, set
	// by the scheduler when the thread is picked up.
	hostTID int32
}

// NewThread returns a thread owned by process.
func NewThread(owner *Process) *Thread {
	return &Thread{owner: owner}
}

// NativeExecutionParameters implements nce.Thread.NativeExecutionParameters.
func (t *Thread) NativeExecutionParameters() *nce.NativeExecutionParameters {
	return &t.params
}

// OwnerProcess implements nce.Thread.OwnerProcess.
func (t *Thread) OwnerProcess() nce.Process {
	return t.owner
}

// HostThreadID implements nce.Thread.HostThreadID.
func (t *Thread) HostThreadID() int32 {
	return t.hostTID
}

// SetHostThreadID records the host thread picking this thread up.
func (t *Thread) SetHostThreadID(tid int32) {
	t.hostTID = tid
}

// Process is a guest process: a post-handler registry keyed by guest
// return address, for dynamically loaded module returns.
type Process struct {
	mu           sync.RWMutex
	postHandlers map[uint64]uintptr
}

// NewProcess returns an empty process.
func NewProcess() *Process {
	return &Process{postHandlers: make(map[uint64]uintptr)}
}

// PostHandler implements nce.Process.PostHandler.
func (p *Process) PostHandler(pc uint64) (uintptr, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	h, ok := p.postHandlers[pc]
	return h, ok
}

// RegisterPostHandler maps a guest return address to its trampoline.
// Callers invalidate the instruction cache over any patched code
// themselves.
func (p *Process) RegisterPostHandler(pc uint64, handler uintptr) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.postHandlers[pc] = handler
}
