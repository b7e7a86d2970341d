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

// Package hostarch describes the geometry shared by guest and host: page
// size, instruction width and cache line size. The guest architecture is
// aarch64 with 4K pages; native execution requires the host to match.
package hostarch

const (
	// PageShift is the binary log of the page size.
	PageShift = 12

	// PageSize is the system page size.
	PageSize = 1 << PageShift

	// PageMask masks the offset within a page.
	PageMask = PageSize - 1

	// InstructionSize is the fixed aarch64 instruction width.
	InstructionSize = 4

	// CacheLineSize is the line granule used for cache maintenance.
	CacheLineSize = 64
)

// Addr represents a guest address.
type Addr uint64

// PageRoundDown returns the address of the page containing addr.
func (a Addr) PageRoundDown() Addr {
	return a &^ PageMask
}

// PageRoundUp returns the smallest page-aligned address >= addr. The
// second return value is false on overflow.
func (a Addr) PageRoundUp() (Addr, bool) {
	r := (a + PageMask) &^ Addr(PageMask)
	return r, r >= a
}

// PageOffset returns the offset of addr within its page.
func (a Addr) PageOffset() uint64 {
	return uint64(a & PageMask)
}

// IsPageAligned returns true if addr is page-aligned.
func (a Addr) IsPageAligned() bool {
	return a.PageOffset() == 0
}

// CacheLineRoundDown returns the address of the cache line containing
// addr.
func (a Addr) CacheLineRoundDown() Addr {
	return a &^ (CacheLineSize - 1)
}
