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

//go:build !(linux && arm64)

package nce

// Hosts that cannot lower their execution level fall back to interpreted
// execution.
func defaultTransfer() Transfer {
	return interpretedTransfer{}
}

// platformSendBreak is a no-op here: the interpreted loop polls the halt
// accumulator between instructions, so the BreakLoop bit alone stops it.
func platformSendBreak(tid int32) error {
	return nil
}
