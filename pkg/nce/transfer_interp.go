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

// interpretedTransfer is the degraded Transfer strategy for hosts that
// cannot lower their execution level: the guest never runs natively,
// every instruction goes through the fallback interpreter. It is only as
// capable as the interpreter; the first instruction the interpreter
// declines halts with HaltPrefetchAbort, mirroring an unresolvable
// fetch.
//
// Interrupts need no signal here: the loop polls the halt accumulator
// between instructions.
type interpretedTransfer struct{}

// NewInterpretedTransfer returns the interpreter-driven Transfer
// strategy.
func NewInterpretedTransfer() Transfer {
	return interpretedTransfer{}
}

// Prepare implements Transfer.Prepare. Nothing to set up: no signals, no
// alternate stack.
func (interpretedTransfer) Prepare(c *Core) error {
	return nil
}

// TransferToGuest implements Transfer.TransferToGuest. Trampolines are
// meaningless without native execution and are ignored.
func (interpretedTransfer) TransferToGuest(thread Thread, params *NativeExecutionParameters, trampoline uintptr) HaltReason {
	g := params.nativeContext

	// Stage the guest state in a synthetic frame so the interpreter
	// sees the same machine record a real trap would carry. The host
	// stash written by the restore is unused on this path.
	var frame SignalContext64
	g.RestoreGuestContext(&frame)

	for {
		if g.haltReason.Load() != 0 {
			break
		}
		nextPC, ok := g.parent.interp.MatchAndExecuteOne(g.parent.mem, &frame)
		if !ok {
			g.haltReason.Or(uint64(HaltPrefetchAbort))
			break
		}
		frame.Pc = nextPC
	}

	// The save path folds the frame back into the context and swaps
	// the accumulated halt reason into x0, same as the native exit.
	g.SaveGuestContext(&frame)
	return HaltReason(frame.Regs[0])
}
