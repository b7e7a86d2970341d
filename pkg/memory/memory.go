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

// Package memory defines the guest memory surface the execution core
// depends on. The actual memory manager, which owns the guest page tables
// and host mappings, lives above this package and implements Memory.
package memory

// Memory is the view of guest memory consumed by the execution core and
// the fallback interpreter.
type Memory interface {
	// InvalidateNCE attempts to resolve a faulting access to the given
	// guest region, for example by materializing a lazily mapped page.
	// It returns true if the access is now expected to succeed.
	InvalidateNCE(addr, size uint64) bool

	// Read copies len(p) bytes at addr into p. It returns false if any
	// part of the range is unmapped.
	Read(addr uint64, p []byte) bool

	// Write copies p into guest memory at addr. It returns false if any
	// part of the range is unmapped.
	Write(addr uint64, p []byte) bool
}
