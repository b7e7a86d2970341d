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
	"fmt"
	"reflect"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/helix-emu/helix/pkg/sighandling"
)

// Signal assignments for the native strategy.
//
//	SIGUSR2: exception level change into guest mode (raised at self).
//	SIGURG:  forced break out of guest mode (raised by an interrupter).
//	SIGBUS:  guest alignment fault.
//	SIGSEGV: guest access fault.
//
// SIGURG doubles as the Go runtime's async preemption signal and SIGSEGV
// as its fault signal; the entry stubs discriminate on the thread
// pointer tag and forward anything host-originated to the previously
// installed handler, so the runtime keeps working underneath us.
const (
	returnToGuestSignal  = unix.SIGUSR2
	breakFromGuestSignal = unix.SIGURG
	alignmentFaultSignal = unix.SIGBUS
	accessFaultSignal    = unix.SIGSEGV
)

// Entry stubs, implemented in sigstubs_linux_arm64.s. They check the
// thread pointer tag and either call into the Go routers below or branch
// to the saved handlers.
func returnToGuestSigstub()
func breakFromGuestSigstub()
func alignmentFaultSigstub()
func accessFaultSigstub()

// Saved previous handlers, read by the stubs when forwarding
// host-originated signals. Installed once, never torn down: signal
// handlers are process-global and the core never uninstalls.
var (
	savedBreakHandler     uintptr
	savedAlignmentHandler uintptr
	savedAccessHandler    uintptr
	savedReturnHandler    uintptr
)

var installOnce sync.Once

// installSignalHandlers replaces the process fault handlers with the NCE
// router. Each handler masks all four NCE signals: in particular a break
// raised during the level change stays pending until the thread is
// actually in guest mode, where it can be serviced.
func installSignalHandlers() error {
	var err error
	installOnce.Do(func() {
		mask := []unix.Signal{
			returnToGuestSignal,
			breakFromGuestSignal,
			alignmentFaultSignal,
			accessFaultSignal,
		}
		type install struct {
			sig     unix.Signal
			stub    func()
			saved   *uintptr
			restart bool
		}
		for _, in := range []install{
			{returnToGuestSignal, returnToGuestSigstub, &savedReturnHandler, false},
			{breakFromGuestSignal, breakFromGuestSigstub, &savedBreakHandler, false},
			{alignmentFaultSignal, alignmentFaultSigstub, &savedAlignmentHandler, false},
			{accessFaultSignal, accessFaultSigstub, &savedAccessHandler, true},
		} {
			if e := sighandling.ReplaceSignalHandler(in.sig, reflect.ValueOf(in.stub).Pointer(), in.saved, sighandling.Options{
				Restart: in.restart,
				Mask:    mask,
			}); e != nil {
				err = fmt.Errorf("installing %v handler: %w", in.sig, e)
				return
			}
		}
	})
	return err
}

// getTpidrEl0 and setTpidrEl0 access the architecture thread pointer,
// implemented in tls_linux_arm64.s.
func getTpidrEl0() uintptr
func setTpidrEl0(v uintptr)

// currentParams returns the parameter block the thread pointer aliases
// while in guest mode. Only meaningful after the stub verified the tag.
//
//go:nosplit
func currentParams() *NativeExecutionParameters {
	return (*NativeExecutionParameters)(unsafe.Pointer(getTpidrEl0()))
}

// sigContext extracts the machine state record from a raw ucontext.
//
//go:nosplit
func sigContext(ctx unsafe.Pointer) *SignalContext64 {
	return &(*UContext64)(ctx).MContext
}

// exitGuestMode restores the host thread pointer after the save path has
// rewritten the frame; when the handler returns, the driver resumes.
//
//go:nosplit
func exitGuestMode(g *GuestContext) {
	setTpidrEl0(uintptr(g.hostCtx.hostTpidrEl0))
}

// returnToGuestHandler runs on SIGUSR2 raised by the transfer entry. x9
// carries the parameter block through the trap. After the restore, the
// thread pointer aliases the block so the guest's thread-local registers
// and the host bookkeeping coexist through the level change.
//
//go:nosplit
func returnToGuestHandler(ctx unsafe.Pointer) {
	frame := sigContext(ctx)
	params := (*NativeExecutionParameters)(unsafe.Pointer(uintptr(frame.Regs[9])))
	g := params.nativeContext
	g.hostCtx.hostTpidrEl0 = uint64(getTpidrEl0())
	g.RestoreGuestContext(frame)
	setTpidrEl0(uintptr(unsafe.Pointer(params)))
}

// breakFromGuestHandler runs on SIGURG sent by SignalInterrupt to a
// thread in guest mode. The BreakLoop bit is already in the accumulator;
// saving the context is all that is left.
//
//go:nosplit
func breakFromGuestHandler(ctx unsafe.Pointer) {
	frame := sigContext(ctx)
	g := currentParams().nativeContext
	g.handleBreak(frame)
	exitGuestMode(g)
}

// alignmentFaultHandler runs on SIGBUS from guest code. The fault is
// recorded and serviced by the driver in host context; nothing that can
// grow the stack may run here.
//
//go:nosplit
func alignmentFaultHandler(info, ctx unsafe.Pointer) {
	frame := sigContext(ctx)
	params := currentParams()
	g := params.nativeContext
	g.handleGuestFault(true, (*SignalInfo)(info), frame, params)
	exitGuestMode(g)
}

// accessFaultHandler runs on SIGSEGV from guest code.
//
//go:nosplit
func accessFaultHandler(info, ctx unsafe.Pointer) {
	frame := sigContext(ctx)
	params := currentParams()
	g := params.nativeContext
	g.handleGuestFault(false, (*SignalInfo)(info), frame, params)
	exitGuestMode(g)
}

// Assembly offsets, mirrored in the .s files. Verified at startup.
const (
	paramsNativeContextOffset = 0
	paramsMagicOffset         = 16
	ctxHostSavedRegsOffset    = 832
	ctxHostSpOffset           = 1056
	ctxHostTpidrEl0Offset     = 1064
)

func init() {
	var p NativeExecutionParameters
	var g GuestContext
	if o := unsafe.Offsetof(p.nativeContext); o != paramsNativeContextOffset {
		panic(fmt.Sprintf("nativeContext offset is %d", o))
	}
	if o := unsafe.Offsetof(p.magic); o != paramsMagicOffset {
		panic(fmt.Sprintf("magic offset is %d", o))
	}
	if o := unsafe.Offsetof(g.hostCtx) + unsafe.Offsetof(g.hostCtx.hostSavedRegs); o != ctxHostSavedRegsOffset {
		panic(fmt.Sprintf("hostSavedRegs offset is %d", o))
	}
	if o := unsafe.Offsetof(g.hostCtx) + unsafe.Offsetof(g.hostCtx.hostSp); o != ctxHostSpOffset {
		panic(fmt.Sprintf("hostSp offset is %d", o))
	}
	if o := unsafe.Offsetof(g.hostCtx) + unsafe.Offsetof(g.hostCtx.hostTpidrEl0); o != ctxHostTpidrEl0Offset {
		panic(fmt.Sprintf("hostTpidrEl0 offset is %d", o))
	}
}
