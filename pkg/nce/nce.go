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

// Package nce executes guest aarch64 code natively on the host processor.
//
// Guest instruction streams run directly on host silicon; host hardware
// exceptions, routed through raw signal handlers, trap guest memory
// faults, system calls and forced interrupts. The handlers translate the
// host machine state at the trap site back into guest semantics and
// either fix the fault up transparently or hand a halt reason back to
// the driver for the kernel layer above to act on.
package nce

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/helix-emu/helix/pkg/memory"
)

// signalStackSize is the size of the per-thread alternate signal stack.
// Fault handlers run while the guest stack pointer is live.
const signalStackSize = 128 << 10

// Transfer is the capability of moving a host thread into guest mode and
// back. The native strategy lowers the host execution level through a
// signal round trip; hosts without that capability substitute the
// interpreted strategy.
type Transfer interface {
	// Prepare performs setup for the calling host thread. It must be
	// called on every thread that will run guest code, before the
	// first TransferToGuest.
	Prepare(c *Core) error

	// TransferToGuest suspends the host frame and resumes execution as
	// guest code described by params' native context, returning the
	// halt reason once the guest traps back. If trampoline is non-zero
	// control enters through the registered post-handler instead of
	// the exception level change.
	TransferToGuest(thread Thread, params *NativeExecutionParameters, trampoline uintptr) HaltReason
}

// Core is one guest execution core, bound to one host OS thread at a
// time. It owns its GuestContext exclusively; multiple cores run as
// independent host threads.
type Core struct {
	guestCtx GuestContext

	// runningThread is the kernel thread currently installed, nil
	// otherwise.
	runningThread Thread

	mem      memory.Memory
	interp   Interpreter
	transfer Transfer

	// threadID is the host TID bound by Prepare; interrupt signals are
	// addressed to it.
	threadID int32

	coreIndex int

	// sendBreak delivers the forced-interrupt signal to a host thread.
	// A strategy hook so the protocol is testable without signals.
	sendBreak func(tid int32) error

	// strictAborts halts on unresolvable data aborts instead of
	// skipping the faulting instruction.
	strictAborts bool

	// skipLog rate-limits the lenient data-abort policy warning.
	skipLog *rate.Limiter
	log     *logrus.Entry

	initOnce sync.Once
	stack    []byte
}

// NewCore returns a core executing against mem, with interp as the
// unaligned-access fallback. transfer selects the guest entry strategy;
// nil picks the platform default (the signal-based exception level
// change where supported, the interpreted fallback elsewhere).
func NewCore(coreIndex int, mem memory.Memory, interp Interpreter, transfer Transfer) *Core {
	c := &Core{
		mem:       mem,
		interp:    interp,
		transfer:  transfer,
		coreIndex: coreIndex,
		threadID:  -1,
		skipLog:   rate.NewLimiter(rate.Every(time.Second), 4),
		log:       logrus.WithField("core", coreIndex),
	}
	if c.transfer == nil {
		c.transfer = defaultTransfer()
	}
	c.sendBreak = platformSendBreak
	c.guestCtx.parent = c
	return c
}

// Initialize binds the core to the calling host thread: signal stack,
// thread id, and process-wide handler installation (once).
func (c *Core) Initialize() error {
	var err error
	c.initOnce.Do(func() {
		c.stack = make([]byte, signalStackSize)
		err = c.transfer.Prepare(c)
	})
	return err
}

// SetStrictDataAborts selects the data-abort policy: when strict, an
// unresolvable data abort halts with HaltDataAbort instead of skipping
// the faulting instruction. Call before the thread starts running.
func (c *Core) SetStrictDataAborts(strict bool) {
	c.strictAborts = strict
}

// RunThread transfers control to thread's guest code and returns the
// reason execution stopped.
//
// Guest memory faults come back as an internal service request: the
// signal handler cannot run the interpreter or the memory manager, so
// it exits guest mode and the fast paths run here, in host context. A
// fault that the service pass resolves is invisible to the caller; the
// thread simply re-enters guest mode.
func (c *Core) RunThread(thread Thread) HaltReason {
	for {
		hr := c.runOnce(thread)
		if hr&haltGuestFault == 0 {
			return hr
		}
		hr &^= haltGuestFault
		c.serviceGuestFault()

		// The service pass may have added a terminal bit, and an
		// interrupter may have accumulated one while we serviced.
		hr |= HaltReason(c.guestCtx.haltReason.Swap(0))
		if hr != 0 {
			return hr
		}
	}
}

// runOnce performs one guest entry round trip.
//
// The install/teardown around the transfer is the critical section an
// interrupter synchronizes against: the parameter lock covers the
// install, and isRunning (set after the install with release ordering)
// tells SignalInterrupt whether a signal is needed at all.
func (c *Core) runOnce(thread Thread) HaltReason {
	// If we were interrupted between runs the reason is already
	// pending; consume it without a context switch.
	if hr := HaltReason(c.guestCtx.haltReason.Swap(0)); hr != 0 {
		return hr
	}

	params := thread.NativeExecutionParameters()
	process := thread.OwnerProcess()

	// Cache the thread pointers outside the locked section.
	tpidrEl0 := c.guestCtx.tpidrEl0
	tpidrroEl0 := c.guestCtx.tpidrroEl0

	// An interrupter may hold the lock; once we get it, its BreakLoop
	// bit is visible and we bail without entering guest mode.
	params.lock.lockAs(lockRunning)
	if hr := HaltReason(c.guestCtx.haltReason.Swap(0)); hr != 0 {
		params.lock.unlock()
		return hr
	}

	c.runningThread = thread
	params.nativeContext = &c.guestCtx
	params.tpidrEl0 = tpidrEl0
	params.tpidrroEl0 = tpidrroEl0
	params.magic = tlsMagic
	params.isRunning.Store(true) // Release: install is visible first.
	params.lock.unlock()

	// TODO: post-handler lookup needs a lock once modules load
	// dynamically while cores run.
	var trampoline uintptr
	if h, ok := process.PostHandler(c.guestCtx.pc); ok {
		trampoline = h
	}
	hr := c.transfer.TransferToGuest(thread, params, trampoline)

	// Acquire: every halt-reason bit written by the fault router or an
	// interrupter is visible from here on.
	finalTpidrEl0 := params.tpidrEl0
	params.isRunning.Store(false)
	params.nativeContext = nil
	c.runningThread = nil

	// Exit paths leave the lock held (fault router force-lock, or the
	// interrupter that signaled us); the single release happens here.
	params.lock.unlock()

	// Non-critical, after releasing the thread.
	c.guestCtx.tpidrEl0 = finalTpidrEl0
	c.drainSkips()

	return hr
}

// StepThread reports a single step without executing. Stepping is not
// implemented at this layer; interpreter-assisted stepping lives above.
func (c *Core) StepThread(thread Thread) HaltReason {
	return HaltStepThread
}

// SignalInterrupt forces thread out of guest mode. Callable from any
// thread.
//
// The BreakLoop bit is accumulated before any lock interaction, so the
// interrupt is never lost: either the running thread's save path reports
// it now, or the next RunThread's fast path returns it.
func (c *Core) SignalInterrupt(thread Thread) {
	c.guestCtx.haltReason.Or(uint64(HaltBreakLoop))

	params := thread.NativeExecutionParameters()
	params.lock.lockAs(lockInterrupting)

	if params.isRunning.Load() {
		// The running thread unlocks when it leaves guest mode; the
		// lock stays held until then so nobody else signals it twice.
		if err := c.sendBreak(thread.HostThreadID()); err != nil {
			c.log.WithError(err).Error("break signal delivery failed")
			params.lock.unlock()
		}
	} else {
		// Already back in host mode (or never left); nobody else will
		// release the lock for us.
		params.lock.unlock()
	}
}

// LockThread acquires thread's execution parameter lock on behalf of the
// kernel layer, e.g. around context switches.
func (c *Core) LockThread(thread Thread) {
	thread.NativeExecutionParameters().lock.lockAs(lockRunning)
}

// UnlockThread detaches the core's context from thread and releases the
// lock.
func (c *Core) UnlockThread(thread Thread) {
	params := thread.NativeExecutionParameters()
	c.guestCtx.tpidrEl0 = params.tpidrEl0
	c.guestCtx.tpidrroEl0 = params.tpidrroEl0
	params.nativeContext = nil
	params.lock.unlock()
}

// SvcNumber returns the pending supervisor call number.
func (c *Core) SvcNumber() uint32 {
	return c.guestCtx.svc
}

// SvcArguments returns x0-x7 for the halt-handling layer.
func (c *Core) SvcArguments() (args [8]uint64) {
	copy(args[:], c.guestCtx.cpuRegisters[:8])
	return args
}

// SetSvcArguments writes x0-x7 with the supervisor call results.
func (c *Core) SetSvcArguments(args [8]uint64) {
	copy(c.guestCtx.cpuRegisters[:8], args[:])
}

// InvalidateGuestCacheRange flushes guest code in [addr, addr+size)
// from the instruction side after its backing memory changed, e.g. a
// guest code-patching write. Guest and host share the address space
// under native execution, so the guest address is the host address.
func (c *Core) InvalidateGuestCacheRange(addr, size uint64) {
	InvalidateCacheRange(addr, size)
}

// SetTpidrroEl0 sets the guest's read-only thread pointer.
func (c *Core) SetTpidrroEl0(value uint64) {
	c.guestCtx.tpidrroEl0 = value
}

// GetContext reads the full guest register file, for debugging and
// thread creation.
func (c *Core) GetContext(ctx *ThreadContext) {
	copy(ctx.R[:], c.guestCtx.cpuRegisters[:29])
	ctx.Fp = c.guestCtx.cpuRegisters[29]
	ctx.Lr = c.guestCtx.cpuRegisters[30]
	ctx.Sp = c.guestCtx.sp
	ctx.Pc = c.guestCtx.pc
	ctx.Pstate = c.guestCtx.pstate
	ctx.V = c.guestCtx.vectorRegisters
	ctx.Fpcr = c.guestCtx.fpcr
	ctx.Fpsr = c.guestCtx.fpsr
	ctx.Tpidr = c.guestCtx.tpidrEl0
}

// SetContext writes the full guest register file.
func (c *Core) SetContext(ctx *ThreadContext) {
	copy(c.guestCtx.cpuRegisters[:29], ctx.R[:])
	c.guestCtx.cpuRegisters[29] = ctx.Fp
	c.guestCtx.cpuRegisters[30] = ctx.Lr
	c.guestCtx.sp = ctx.Sp
	c.guestCtx.pc = ctx.Pc
	c.guestCtx.pstate = ctx.Pstate
	c.guestCtx.vectorRegisters = ctx.V
	c.guestCtx.fpcr = ctx.Fpcr
	c.guestCtx.fpsr = ctx.Fpsr
	c.guestCtx.tpidrEl0 = ctx.Tpidr
}

// drainSkips reports instructions skipped by the lenient data-abort
// policy. Counted in the handler, logged here: handlers cannot log.
func (c *Core) drainSkips() {
	if n := c.guestCtx.dataAbortSkips.Swap(0); n != 0 && c.skipLog.Allow() {
		c.log.WithFields(logrus.Fields{
			"skipped": n,
			"pc":      c.guestCtx.pc,
		}).Warn("skipped faulting data accesses; guest may misbehave")
	}
}
