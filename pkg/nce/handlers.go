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

import "github.com/helix-emu/helix/pkg/hostarch"

// Fault routing. The in-handler half runs in raw signal context on the
// native path, where the interrupted registers are guest state: no
// allocation, no interface calls into splittable code, nothing but the
// frame, the context, and atomics. It records what faulted and bounces
// back to the driver; the driver half (serviceGuestFault) runs the
// interpreter and memory-manager fast paths in ordinary host context and
// re-enters guest mode when the fault was fixed up, so a resolved fault
// is invisible to the caller.

// handleGuestFault records a guest memory fault and leaves guest mode.
// Runs in signal handler context.
//
//go:nosplit
func (g *GuestContext) handleGuestFault(isAlignment bool, info *SignalInfo, frame *SignalContext64, params *NativeExecutionParameters) {
	g.faultAddr = info.Addr
	g.faultAlignment = isAlignment
	g.haltReason.Or(uint64(haltGuestFault))

	// Forcibly mark the context as locked; we are still running. If an
	// interrupter beat us to the lock its signal arrives after we have
	// left guest mode and is ignored there. If we beat it, it spins
	// until the driver's teardown unlock instead of signaling us
	// mid-unwind.
	params.lock.forceLock()

	g.SaveGuestContext(frame)
}

// handleBreak services the forced-interrupt signal. The BreakLoop bit
// was already accumulated by SignalInterrupt before the signal was sent;
// all that is left is to hand control back to the driver.
//
//go:nosplit
func (g *GuestContext) handleBreak(frame *SignalContext64) {
	g.SaveGuestContext(frame)
}

// serviceGuestFault runs the fault fast paths in host context, after the
// handler bounced out of guest mode. It mutates the saved guest state in
// place; the driver re-enters guest mode when it returns with no halt
// bits pending.
//
// The two fast paths (single-instruction emulation, lazy page
// resolution) are tried before the terminal policy: the extra guest
// round trip is far cheaper than halting a title on a misaligned access
// or a demand-paged read.
func (c *Core) serviceGuestFault() {
	g := &c.guestCtx

	if g.faultAlignment {
		// The interpreter emulates the one faulting instruction against
		// guest memory; if it declines, the fault is treated like any
		// other failed access.
		var frame SignalContext64
		g.stageFrame(&frame)
		if nextPC, ok := c.interp.MatchAndExecuteOne(c.mem, &frame); ok {
			frame.Pc = nextPC
			g.absorbFrame(&frame)
			return
		}
	} else {
		// The memory manager is asked to resolve the faulting page; on
		// success the access is retried at the same pc.
		//
		// TODO: handle accesses which split a page.
		addr := uint64(hostarch.Addr(g.faultAddr).PageRoundDown())
		if c.mem.InvalidateNCE(addr, hostarch.PageSize) {
			return
		}
	}

	// pc == faulting address means the fetch itself failed.
	if g.pc == g.faultAddr {
		g.haltReason.Or(uint64(HaltPrefetchAbort))
		return
	}

	// Data abort. The strict policy halts and reports; the default
	// lenient policy skips the instruction and keeps going, because many
	// titles survive a skipped store where a halt would end them.
	if c.strictAborts {
		g.haltReason.Or(uint64(HaltDataAbort))
		return
	}
	g.pc += hostarch.InstructionSize
	g.dataAbortSkips.Add(1)
}