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
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/helix-emu/helix/pkg/sighandling"
)

// signalTransfer is the native Transfer strategy: the host's execution
// level is lowered through a signal round trip, after which the thread
// executes guest instructions directly until the next trap.
type signalTransfer struct{}

// NewSignalTransfer returns the native signal-based Transfer strategy.
func NewSignalTransfer() Transfer {
	return signalTransfer{}
}

// defaultTransfer selects the native strategy on this platform.
func defaultTransfer() Transfer {
	return signalTransfer{}
}

// Prepare implements Transfer.Prepare: alternate signal stack for the
// calling thread, its TID for self-delivery, and the process-wide
// handler installation.
func (signalTransfer) Prepare(c *Core) error {
	if err := sighandling.SetAltStack(c.stack); err != nil {
		return err
	}
	c.threadID = int32(unix.Gettid())
	return installSignalHandlers()
}

// TransferToGuest implements Transfer.TransferToGuest.
func (signalTransfer) TransferToGuest(thread Thread, params *NativeExecutionParameters, trampoline uintptr) HaltReason {
	if trampoline != 0 {
		return HaltReason(returnToRunCodeByTrampoline(
			unsafe.Pointer(params), unsafe.Pointer(params.nativeContext), trampoline))
	}
	return HaltReason(returnToRunCodeByExceptionLevelChange(
		int32(unix.Gettid()), unsafe.Pointer(params)))
}

// Entry paths, implemented in entry_linux_arm64.s.
func returnToRunCodeByExceptionLevelChange(tid int32, params unsafe.Pointer) uint64
func returnToRunCodeByTrampoline(params, ctx unsafe.Pointer, tramp uintptr) uint64

// platformSendBreak delivers the forced-interrupt signal to a host
// thread; its guest-mode handler saves the context and returns to the
// driver. Host-mode deliveries forward to the Go runtime's own SIGURG
// handler and are harmless.
func platformSendBreak(tid int32) error {
	return unix.Tgkill(unix.Getpid(), int(tid), breakFromGuestSignal)
}
