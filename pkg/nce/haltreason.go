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

import "strings"

// HaltReason is a bitmask describing why guest execution returned to the
// driver. Bits accumulate: a fault and an interrupt landing in the same
// window both appear in the mask, and the first writer of a bit wins
// nothing over the second. Consumption via GuestContext is destructive
// (exchange with zero).
type HaltReason uint64

const (
	// HaltStepThread is reported by StepThread; no instruction executed.
	HaltStepThread HaltReason = 1 << 0

	// HaltDataAbort is reserved for data aborts the router chooses not
	// to skip. The default policy skips them, so this bit is normally
	// only set by layers above.
	HaltDataAbort HaltReason = 1 << 1

	// HaltBreakLoop indicates a forced interrupt from another thread.
	HaltBreakLoop HaltReason = 1 << 2

	// HaltSupervisorCall indicates the guest issued a system call; the
	// number and arguments are available through the SVC bridge.
	HaltSupervisorCall HaltReason = 1 << 3

	// HaltInstructionBreakpoint indicates the guest hit a breakpoint.
	HaltInstructionBreakpoint HaltReason = 1 << 4

	// HaltPrefetchAbort indicates an unresolvable instruction fetch
	// fault (faulting address == pc).
	HaltPrefetchAbort HaltReason = 1 << 5

	// haltGuestFault marks a guest memory fault that still needs its
	// host-context service pass. Internal to the run loop; it never
	// reaches callers.
	haltGuestFault HaltReason = 1 << 63
)

var haltReasonNames = []struct {
	bit  HaltReason
	name string
}{
	{HaltStepThread, "StepThread"},
	{HaltDataAbort, "DataAbort"},
	{HaltBreakLoop, "BreakLoop"},
	{HaltSupervisorCall, "SupervisorCall"},
	{HaltInstructionBreakpoint, "InstructionBreakpoint"},
	{HaltPrefetchAbort, "PrefetchAbort"},
}

// String implements fmt.Stringer.String.
func (hr HaltReason) String() string {
	if hr == 0 {
		return "None"
	}
	var parts []string
	for _, n := range haltReasonNames {
		if hr&n.bit != 0 {
			parts = append(parts, n.name)
			hr &^= n.bit
		}
	}
	if hr != 0 {
		parts = append(parts, "Unknown")
	}
	return strings.Join(parts, "|")
}
