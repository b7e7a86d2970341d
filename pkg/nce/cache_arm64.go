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

// Instruction cache maintenance. Guest and host share an instruction
// set, so after a trampoline install or a guest code-patching write the
// modified lines must be cleaned to the point of unification and the
// instruction side invalidated, with barriers, before native execution
// may reach them. Skipping this executes stale bytes; it is a
// correctness requirement, not a tuning knob.

// ClearInstructionCache flushes the pages around the caller's return
// address, for use right after installing a trampoline in adjacent code.
func ClearInstructionCache() {
	start := callerPC() &^ hostarch.PageMask
	invalidateCacheRange(start, start+2*hostarch.PageSize)
}

// InvalidateCacheRange flushes a guest memory region whose backing host
// mapping changed.
func InvalidateCacheRange(addr uint64, size uint64) {
	if size == 0 {
		return
	}
	begin := uintptr(hostarch.Addr(addr).CacheLineRoundDown())
	end := uintptr(addr) + uintptr(size)
	invalidateCacheRange(begin, end)
}

// invalidateCacheRange cleans [begin, end) line by line and invalidates
// the instruction side, implemented in cache_arm64.s.
func invalidateCacheRange(begin, end uintptr)

// callerPC returns the caller's return address.
func callerPC() uintptr
