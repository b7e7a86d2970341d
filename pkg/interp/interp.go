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

// Package interp decodes and executes single aarch64 instructions
// against guest memory, as the fallback for accesses the host hardware
// faults on. It recognizes the scalar load/store forms that can legally
// be unaligned; anything else is declined and the fault router falls
// through to its terminal path.
package interp

import (
	"encoding/binary"

	"github.com/helix-emu/helix/pkg/memory"
	"github.com/helix-emu/helix/pkg/nce"
)

// Visitor implements nce.Interpreter.
type Visitor struct{}

// MatchAndExecuteOne implements nce.Interpreter.MatchAndExecuteOne: it
// decodes the instruction at the frame's pc using current guest memory
// and either fully applies its effect, returning the next pc, or
// declines.
func (Visitor) MatchAndExecuteOne(mem memory.Memory, frame *nce.SignalContext64) (uint64, bool) {
	return MatchAndExecuteOneInstruction(mem, frame)
}

// MatchAndExecuteOneInstruction is the function form of Visitor.
func MatchAndExecuteOneInstruction(mem memory.Memory, frame *nce.SignalContext64) (uint64, bool) {
	var raw [4]byte
	if !mem.Read(frame.Pc, raw[:]) {
		return 0, false
	}
	insn := binary.LittleEndian.Uint32(raw[:])

	switch {
	case insn&0x3f000000 == 0x39000000:
		// LDR/STR (immediate, unsigned offset), integer.
		return executeUnsignedOffset(mem, frame, insn)
	case insn&0x3f200c00 == 0x38000000:
		// LDUR/STUR (unscaled immediate), integer.
		return executeUnscaled(mem, frame, insn)
	case insn&0x7fc00000 == 0x29000000 || insn&0x7fc00000 == 0x29400000:
		// LDP/STP (signed offset), integer.
		return executePair(mem, frame, insn)
	default:
		return 0, false
	}
}

// baseReg reads register n as a load/store base, where 31 encodes SP.
func baseReg(frame *nce.SignalContext64, n int) uint64 {
	if n == 31 {
		return frame.Sp
	}
	return frame.Regs[n]
}

// dataReg reads register t as transfer data, where 31 encodes XZR.
func dataReg(frame *nce.SignalContext64, t int) uint64 {
	if t == 31 {
		return 0
	}
	return frame.Regs[t]
}

// setDataReg writes register t, discarding writes to XZR.
func setDataReg(frame *nce.SignalContext64, t int, v uint64) {
	if t != 31 {
		frame.Regs[t] = v
	}
}

func load(mem memory.Memory, addr uint64, size int) (uint64, bool) {
	var buf [8]byte
	if !mem.Read(addr, buf[:size]) {
		return 0, false
	}
	return binary.LittleEndian.Uint64(buf[:]), true
}

func store(mem memory.Memory, addr uint64, size int, v uint64) bool {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	return mem.Write(addr, buf[:size])
}

func executeUnsignedOffset(mem memory.Memory, frame *nce.SignalContext64, insn uint32) (uint64, bool) {
	size := int(insn >> 30)
	opc := (insn >> 22) & 3
	imm12 := uint64((insn >> 10) & 0xfff)
	rn := int((insn >> 5) & 31)
	rt := int(insn & 31)

	// Sign-extending loads and byte accesses are not alignment-fault
	// material; decline rather than guess.
	if opc > 1 || size == 0 {
		return 0, false
	}
	addr := baseReg(frame, rn) + (imm12 << size)
	return transfer(mem, frame, addr, 1<<size, opc == 1, rt)
}

func executeUnscaled(mem memory.Memory, frame *nce.SignalContext64, insn uint32) (uint64, bool) {
	size := int(insn >> 30)
	opc := (insn >> 22) & 3
	imm9 := int64(int32(insn<<11) >> 23) // Sign-extend bits [20:12].
	rn := int((insn >> 5) & 31)
	rt := int(insn & 31)

	if opc > 1 || size == 0 {
		return 0, false
	}
	addr := baseReg(frame, rn) + uint64(imm9)
	return transfer(mem, frame, addr, 1<<size, opc == 1, rt)
}

func transfer(mem memory.Memory, frame *nce.SignalContext64, addr uint64, size int, isLoad bool, rt int) (uint64, bool) {
	if isLoad {
		v, ok := load(mem, addr, size)
		if !ok {
			return 0, false
		}
		setDataReg(frame, rt, v)
	} else {
		if !store(mem, addr, size, dataReg(frame, rt)) {
			return 0, false
		}
	}
	return frame.Pc + 4, true
}

func executePair(mem memory.Memory, frame *nce.SignalContext64, insn uint32) (uint64, bool) {
	is64 := insn>>31 == 1
	isLoad := (insn>>22)&1 == 1
	imm7 := int64(int32(insn<<10) >> 25) // Sign-extend bits [21:15].
	rt2 := int((insn >> 10) & 31)
	rn := int((insn >> 5) & 31)
	rt := int(insn & 31)

	size := 4
	if is64 {
		size = 8
	}
	addr := baseReg(frame, rn) + uint64(imm7*int64(size))

	if isLoad {
		v1, ok := load(mem, addr, size)
		if !ok {
			return 0, false
		}
		v2, ok := load(mem, addr+uint64(size), size)
		if !ok {
			return 0, false
		}
		setDataReg(frame, rt, v1)
		setDataReg(frame, rt2, v2)
	} else {
		if !store(mem, addr, size, dataReg(frame, rt)) {
			return 0, false
		}
		if !store(mem, addr+uint64(size), size, dataReg(frame, rt2)) {
			return 0, false
		}
	}
	return frame.Pc + 4, true
}
