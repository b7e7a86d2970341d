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

//go:build !arm64

package nce

// Without native execution nothing fetches guest bytes through the host
// instruction cache, so maintenance is a no-op.

// ClearInstructionCache flushes the pages around the caller on hosts
// that execute guest code natively.
func ClearInstructionCache() {}

// InvalidateCacheRange flushes a guest memory region on hosts that
// execute guest code natively.
func InvalidateCacheRange(addr uint64, size uint64) {}
