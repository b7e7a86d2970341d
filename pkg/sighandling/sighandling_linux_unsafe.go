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

//go:build linux

// Package sighandling installs raw process-level signal handlers.
//
// Handlers installed here bypass the Go runtime's signal machinery
// entirely: they are function pointers handed to rt_sigaction, so they may
// only point at assembly stubs or at code that is careful not to grow the
// stack. Signal handlers are process-global state; once a handler is
// installed for a signal it stays installed for the lifetime of the
// process. There is deliberately no removal operation.
package sighandling

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// sigAction mirrors struct kernel_sigaction for rt_sigaction(2).
type sigAction struct {
	Handler  uint64
	Flags    uint64
	Restorer uint64
	Mask     uint64
}

const (
	saSiginfo  = 0x4
	saOnStack  = 0x08000000
	saRestart  = 0x10000000
	saRestorer = 0x04000000

	// sigsetSize is the kernel sigset size (_NSIG / 8).
	sigsetSize = 8
)

// Options configures an installed handler.
type Options struct {
	// Restart sets SA_RESTART, resuming interrupted syscalls.
	Restart bool

	// Mask is the set of signals blocked during handler execution.
	Mask []unix.Signal
}

// ReplaceSignalHandler installs the function pointer at handler for sig,
// bypassing the Go runtime. The previously installed handler is written
// to previous so the caller can chain to it; previous is zero if the
// signal had no handler (SIG_DFL or SIG_IGN).
//
// All handlers are installed with SA_SIGINFO|SA_ONSTACK.
func ReplaceSignalHandler(sig unix.Signal, handler uintptr, previous *uintptr, opts Options) error {
	var old sigAction
	if _, _, e := unix.RawSyscall6(unix.SYS_RT_SIGACTION, uintptr(sig), 0, uintptr(unsafe.Pointer(&old)), sigsetSize, 0, 0); e != 0 {
		return fmt.Errorf("sigaction(%v) read: %w", sig, e)
	}
	*previous = uintptr(old.Handler)

	var mask uint64
	for _, s := range opts.Mask {
		mask |= 1 << (uint64(s) - 1)
	}
	sa := sigAction{
		Handler: uint64(handler),
		Flags:   saSiginfo | saOnStack,
		Mask:    mask,
	}
	if opts.Restart {
		sa.Flags |= saRestart
	}
	if _, _, e := unix.RawSyscall6(unix.SYS_RT_SIGACTION, uintptr(sig), uintptr(unsafe.Pointer(&sa)), 0, sigsetSize, 0, 0); e != 0 {
		return fmt.Errorf("sigaction(%v) install: %w", sig, e)
	}
	return nil
}

// stackT mirrors the kernel stack_t for sigaltstack(2).
type stackT struct {
	Sp    uintptr
	Flags int32
	_     int32
	Size  uint64
}

// SetAltStack points the current thread's signal stack at the provided
// buffer. Fault handlers run while the guest stack pointer is live, so
// every thread that executes guest code must call this first.
func SetAltStack(stack []byte) error {
	ss := stackT{
		Sp:   uintptr(unsafe.Pointer(&stack[0])),
		Size: uint64(len(stack)),
	}
	if _, _, e := unix.RawSyscall(unix.SYS_SIGALTSTACK, uintptr(unsafe.Pointer(&ss)), 0, 0); e != 0 {
		return fmt.Errorf("sigaltstack: %w", e)
	}
	return nil
}
