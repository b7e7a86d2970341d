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

package memory

// Flat is a trivial Memory backed by a single contiguous buffer mapped at
// a fixed guest base address. It backs the interpreted execution fallback
// and tests; the real memory manager replaces it in production use.
type Flat struct {
	Base uint64
	Data []byte
}

// NewFlat returns a Flat memory of the given size mapped at base.
func NewFlat(base uint64, size int) *Flat {
	return &Flat{Base: base, Data: make([]byte, size)}
}

func (f *Flat) contains(addr, size uint64) bool {
	if addr < f.Base {
		return false
	}
	off := addr - f.Base
	return off+size >= off && off+size <= uint64(len(f.Data))
}

// InvalidateNCE implements Memory.InvalidateNCE. A flat buffer has no
// lazy mappings, so only in-range accesses are resolvable.
func (f *Flat) InvalidateNCE(addr, size uint64) bool {
	return f.contains(addr, size)
}

// Read implements Memory.Read.
func (f *Flat) Read(addr uint64, p []byte) bool {
	if !f.contains(addr, uint64(len(p))) {
		return false
	}
	copy(p, f.Data[addr-f.Base:])
	return true
}

// Write implements Memory.Write.
func (f *Flat) Write(addr uint64, p []byte) bool {
	if !f.contains(addr, uint64(len(p))) {
		return false
	}
	copy(f.Data[addr-f.Base:], p)
	return true
}
