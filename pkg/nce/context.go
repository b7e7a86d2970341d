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
	"sync/atomic"

	"github.com/helix-emu/helix/pkg/memory"
)

// HostContext is the host state stashed by RestoreGuestContext so that
// SaveGuestContext can bounce execution back into the driver's native
// call frame. Callee-saved registers only; everything else is dead across
// the transfer by the host ABI.
type HostContext struct {
	// hostSavedRegs holds x19-x30. Index 11 (x30) doubles as the
	// driver's resumption address.
	hostSavedRegs [12]uint64

	// hostSavedVregs holds q8-q15, two words each.
	hostSavedVregs [16]uint64

	// hostSp is the host stack pointer at transfer time.
	hostSp uint64

	// hostTpidrEl0 is the host thread pointer, restored on exit so the
	// runtime's TLS is intact when the driver resumes.
	hostTpidrEl0 uint64
}

// GuestContext is the complete guest-visible machine state for one
// execution core. It is constructed once per core and never reallocated;
// exactly one host thread runs it at a time. The only field touched
// concurrently is haltReason.
type GuestContext struct {
	// cpuRegisters holds x0-x30.
	cpuRegisters [31]uint64

	// vectorRegisters holds q0-q31, two words each.
	vectorRegisters [64]uint64

	fpsr uint32
	fpcr uint32

	pc     uint64
	sp     uint64
	pstate uint32

	// tpidrEl0 is the guest's read-write thread pointer; tpidrroEl0 is
	// the read-only one, set by the kernel layer.
	tpidrEl0   uint64
	tpidrroEl0 uint64

	// haltReason accumulates HaltReason bits. Written by the fault
	// router on the running thread and by SignalInterrupt from any
	// thread; consumed by RunThread with an exchange so no bit is ever
	// lost to a race.
	haltReason atomic.Uint64

	// svc is the pending supervisor call number.
	svc uint32

	// dataAbortSkips counts instructions skipped by the lenient
	// data-abort policy since the last drain; logged by the driver.
	dataAbortSkips atomic.Uint64

	hostCtx HostContext

	// parent is the owning core. Lookup only; the core owns the
	// context, not the reverse.
	parent *Core

	// faultAddr and faultAlignment record the pending guest fault for
	// serviceGuestFault. Written in signal handler context by
	// handleGuestFault, read by the driver after the transfer returns;
	// the halt exchange orders the two.
	faultAddr      uint64
	faultAlignment bool
}

// ThreadContext is the register file as exchanged with the layers above
// for thread creation and debugging.
type ThreadContext struct {
	R      [29]uint64
	Fp     uint64
	Lr     uint64
	Sp     uint64
	Pc     uint64
	Pstate uint32
	V      [64]uint64
	Fpcr   uint32
	Fpsr   uint32
	Tpidr  uint64
}

// tlsMagic tags a NativeExecutionParameters block. While a thread runs
// guest code its thread pointer register aliases the block, and signal
// handlers use the tag to tell guest mode from host mode.
const tlsMagic = 0x11c0de // "nce code"

// NativeExecutionParameters lives inside each kernel thread object and is
// the single point of synchronization between the thread running guest
// code and any thread trying to interrupt it. See the lock protocol in
// lock.go.
//
// The field layout is part of the contract with the assembly entry path
// (x9 points here during the exception level change); keep nativeContext,
// lock and magic at their current offsets.
type NativeExecutionParameters struct {
	// nativeContext points at the active GuestContext, non-nil exactly
	// while this thread executes on a core.
	nativeContext *GuestContext

	lock paramLock

	// isRunning is set, with release ordering, after the context is
	// fully installed. An interrupter observing it true is guaranteed
	// to see nativeContext.
	isRunning atomic.Bool

	magic uint32

	// tpidrEl0 and tpidrroEl0 cache the guest thread pointers so guest
	// code can reach them through the block while the real register
	// holds the block's address.
	tpidrEl0   uint64
	tpidrroEl0 uint64
}

// Thread is the kernel thread object consumed by the core. The scheduler
// above owns these.
type Thread interface {
	// NativeExecutionParameters returns the thread's parameter block.
	// The returned pointer must stay valid for the thread's lifetime.
	NativeExecutionParameters() *NativeExecutionParameters

	// OwnerProcess returns the owning process.
	OwnerProcess() Process

	// HostThreadID returns the host OS thread id currently hosting the
	// thread, for signal delivery.
	HostThreadID() int32
}

// Process is the kernel process object consumed by the core.
type Process interface {
	// PostHandler looks up a registered trampoline for a guest return
	// address, used for dynamically loaded module returns.
	PostHandler(pc uint64) (uintptr, bool)
}

// Interpreter decodes and executes exactly one guest instruction against
// the current machine state, as a fallback for accesses the hardware
// refuses. It returns the next pc on success and ok=false if the
// instruction is not one it can emulate.
type Interpreter interface {
	MatchAndExecuteOne(mem memory.Memory, frame *SignalContext64) (nextPC uint64, ok bool)
}
