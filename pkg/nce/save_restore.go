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

// Guest context save/restore. These two operations are the entire
// boundary between host mode and guest mode: when a handler returns after
// RestoreGuestContext the kernel's sigreturn resumes the thread as guest
// code, and after SaveGuestContext it resumes the driver exactly where
// the transfer call left off. Every register must be translated; a
// missed one is silent guest state corruption.
//
// Both run in raw signal handler context on the native path, where the
// goroutine register holds guest state: everything here must stay
// nosplit and touch nothing but the frame and the context.

// stageFrame writes the guest register file into a signal frame. It does
// not touch the host stash or the halt accumulator.
//
//go:nosplit
func (g *GuestContext) stageFrame(frame *SignalContext64) {
	frame.Pc = g.pc
	frame.Sp = g.sp
	frame.Pstate = uint64(g.pstate)
	frame.Fpsimd.Fpcr = g.fpcr
	frame.Fpsimd.Fpsr = g.fpsr
	copy(frame.Regs[:], g.cpuRegisters[:])
	copy(frame.Fpsimd.Vregs[:], g.vectorRegisters[:])
}

// absorbFrame is the inverse of stageFrame: it captures the guest
// register file out of a signal frame.
//
//go:nosplit
func (g *GuestContext) absorbFrame(frame *SignalContext64) {
	copy(g.cpuRegisters[:], frame.Regs[:])
	copy(g.vectorRegisters[:], frame.Fpsimd.Vregs[:])
	g.fpsr = frame.Fpsimd.Fpsr
	g.fpcr = frame.Fpsimd.Fpcr
	g.pc = frame.Pc
	g.sp = frame.Sp
	g.pstate = uint32(frame.Pstate)
}

// RestoreGuestContext writes the guest machine state into the trapped
// signal frame. The host's callee-saved vector registers and stack
// pointer are stashed first so SaveGuestContext can undo the transfer.
// The callee-saved general-purpose registers were already stashed by the
// transfer entry path, which runs before the trap is raised.
//
// Everything is restored except tpidr_el0: the entry stub points it at
// the thread's parameter block instead, so guest thread-local state and
// host bookkeeping coexist across the level change. The guest's values
// are reachable through the block.
//
//go:nosplit
func (g *GuestContext) RestoreGuestContext(frame *SignalContext64) {
	// Stash host q8-q15.
	copy(g.hostCtx.hostSavedVregs[:], frame.Fpsimd.Vregs[16:32])
	g.hostCtx.hostSp = frame.Sp

	g.stageFrame(frame)
}

// SaveGuestContext is the inverse: it captures the guest register values
// out of the frame, restores the stashed host state, points the frame's
// pc at the driver's resumption address and delivers the pending halt
// reason through the frame's x0. The halt accumulator reads back zero
// afterwards.
//
//go:nosplit
func (g *GuestContext) SaveGuestContext(frame *SignalContext64) {
	g.absorbFrame(frame)

	frame.Sp = g.hostCtx.hostSp
	copy(frame.Regs[19:31], g.hostCtx.hostSavedRegs[:])
	copy(frame.Fpsimd.Vregs[16:32], g.hostCtx.hostSavedVregs[:])

	// Resume at the saved x30: returning from the transfer call.
	frame.Pc = g.hostCtx.hostSavedRegs[11]

	// The halt reason rides back in x0.
	frame.Regs[0] = g.haltReason.Swap(0)
}