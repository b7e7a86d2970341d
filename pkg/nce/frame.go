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

// This file describes the host signal frame for the aarch64 Linux ABI.
// The structures alias raw kernel memory when a handler runs; everything
// else in the core manipulates them only through the accessors below, so
// the unsafe aliasing stays confined to the signal entry stubs.

// SignalContext64 is equivalent to struct sigcontext on arm64, the
// machine state record embedded in the ucontext passed to handlers
// installed with SA_SIGINFO.
type SignalContext64 struct {
	FaultAddr uint64
	Regs      [31]uint64
	Sp        uint64
	Pc        uint64
	Pstate    uint64
	_pad      [8]byte       // __attribute__((__aligned__(16)))
	Fpsimd    FpsimdContext // size = 528
	Reserved  [3568]uint8
}

type aarch64Ctx struct {
	Magic uint32
	Size  uint32
}

// FpsimdContext is equivalent to struct fpsimd_context, the first record
// in sigcontext's reserved area on every aarch64 kernel.
type FpsimdContext struct {
	Head  aarch64Ctx
	Fpsr  uint32
	Fpcr  uint32
	Vregs [64]uint64 // 32 Q registers, two words each.
}

// UContext64 is equivalent to ucontext on arm64
// (arch/arm64/include/uapi/asm/ucontext.h).
type UContext64 struct {
	Flags  uint64
	Link   uint64
	Stack  SignalStack
	Sigset uint64
	// glibc uses a 1024-bit sigset_t
	_pad [(1024 - 64) / 8]byte
	// sigcontext must be aligned to 16-byte
	_pad2 [8]byte
	// last for future expansion
	MContext SignalContext64
}

// SignalStack is equivalent to stack_t.
type SignalStack struct {
	Addr  uint64
	Flags uint32
	_     uint32
	Size  uint64
}

// SignalInfo is the head of siginfo_t; only the fields the fault router
// reads are declared.
type SignalInfo struct {
	Signo int32
	Errno int32
	Code  int32
	_     uint32
	Addr  uint64
}

// Q returns the low and high words of vector register i.
func (c *SignalContext64) Q(i int) (lo, hi uint64) {
	return c.Fpsimd.Vregs[2*i], c.Fpsimd.Vregs[2*i+1]
}

// SetQ sets vector register i.
func (c *SignalContext64) SetQ(i int, lo, hi uint64) {
	c.Fpsimd.Vregs[2*i] = lo
	c.Fpsimd.Vregs[2*i+1] = hi
}

// X returns general-purpose register i.
func (c *SignalContext64) X(i int) uint64 {
	return c.Regs[i]
}

// SetX sets general-purpose register i.
func (c *SignalContext64) SetX(i int, v uint64) {
	c.Regs[i] = v
}
