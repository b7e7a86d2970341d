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

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/helix-emu/helix/pkg/memory"
)

// fakeProcess is a minimal Process with a static post-handler table.
type fakeProcess struct {
	handlers map[uint64]uintptr
}

func (p *fakeProcess) PostHandler(pc uint64) (uintptr, bool) {
	h, ok := p.handlers[pc]
	return h, ok
}

// fakeThread is a minimal Thread carrying its own parameter block.
type fakeThread struct {
	params  NativeExecutionParameters
	process fakeProcess
	hostTID int32
}

func (t *fakeThread) NativeExecutionParameters() *NativeExecutionParameters {
	return &t.params
}

func (t *fakeThread) OwnerProcess() Process {
	return &t.process
}

func (t *fakeThread) HostThreadID() int32 {
	return t.hostTID
}

// fakeInterp delegates to a function.
type fakeInterp struct {
	fn func(mem memory.Memory, frame *SignalContext64) (uint64, bool)
}

func (i fakeInterp) MatchAndExecuteOne(mem memory.Memory, frame *SignalContext64) (uint64, bool) {
	return i.fn(mem, frame)
}

// stepInterp advances pc by 4 for up to n instructions, then declines.
func stepInterp(n int) fakeInterp {
	return fakeInterp{fn: func(_ memory.Memory, frame *SignalContext64) (uint64, bool) {
		if n == 0 {
			return 0, false
		}
		n--
		return frame.Pc + 4, true
	}}
}

func newTestCore(interp Interpreter) *Core {
	mem := memory.NewFlat(0x10000, 0x1000)
	return NewCore(0, mem, interp, NewInterpretedTransfer())
}

func TestRunThreadConsumesPendingHalt(t *testing.T) {
	c := newTestCore(stepInterp(0))
	thread := &fakeThread{}

	c.guestCtx.haltReason.Or(uint64(HaltBreakLoop))
	if hr := c.RunThread(thread); hr != HaltBreakLoop {
		t.Errorf("RunThread = %v, want %v", hr, HaltBreakLoop)
	}
	if hr := c.guestCtx.haltReason.Load(); hr != 0 {
		t.Errorf("halt accumulator = %#x after consumption, want 0", hr)
	}
	if thread.params.isRunning.Load() {
		t.Error("thread marked running after fast-path return")
	}
}

func TestRunThreadHaltsWhenInterpreterDeclines(t *testing.T) {
	c := newTestCore(stepInterp(3))
	thread := &fakeThread{}

	ctx := ThreadContext{Pc: 0x10000, Sp: 0x10800}
	c.SetContext(&ctx)

	hr := c.RunThread(thread)
	if hr != HaltPrefetchAbort {
		t.Fatalf("RunThread = %v, want %v", hr, HaltPrefetchAbort)
	}

	var got ThreadContext
	c.GetContext(&got)
	if want := uint64(0x10000 + 3*4); got.Pc != want {
		t.Errorf("pc = %#x after 3 steps, want %#x", got.Pc, want)
	}
	if thread.params.lock.held() {
		t.Error("parameter lock held after RunThread teardown")
	}
	if thread.params.isRunning.Load() {
		t.Error("thread still marked running after halt")
	}
	if thread.params.nativeContext != nil {
		t.Error("nativeContext still installed after halt")
	}
}

func TestRunThreadReentersAfterHalt(t *testing.T) {
	c := newTestCore(stepInterp(1))
	thread := &fakeThread{}
	c.SetContext(&ThreadContext{Pc: 0x10000})

	if hr := c.RunThread(thread); hr != HaltPrefetchAbort {
		t.Fatalf("first RunThread = %v, want %v", hr, HaltPrefetchAbort)
	}
	// The interpreter is exhausted; the second run declines immediately.
	if hr := c.RunThread(thread); hr != HaltPrefetchAbort {
		t.Fatalf("second RunThread = %v, want %v", hr, HaltPrefetchAbort)
	}
	if thread.params.lock.held() {
		t.Error("parameter lock held after RunThread returned")
	}
}

func TestStepThread(t *testing.T) {
	c := newTestCore(stepInterp(0))
	if hr := c.StepThread(&fakeThread{}); hr != HaltStepThread {
		t.Errorf("StepThread = %v, want %v", hr, HaltStepThread)
	}
}

func TestSignalInterruptIdleThread(t *testing.T) {
	c := newTestCore(stepInterp(0))
	thread := &fakeThread{hostTID: 1234}

	sent := false
	c.sendBreak = func(tid int32) error {
		sent = true
		return nil
	}

	c.SignalInterrupt(thread)
	if sent {
		t.Error("break signal sent to a thread that is not running")
	}
	if thread.params.lock.held() {
		t.Error("parameter lock held after interrupting an idle thread")
	}
	if hr := c.RunThread(thread); hr != HaltBreakLoop {
		t.Errorf("RunThread after interrupt = %v, want %v", hr, HaltBreakLoop)
	}
}

// blockingTransfer parks TransferToGuest until released, standing in for
// a thread that is in guest mode.
type blockingTransfer struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingTransfer) Prepare(*Core) error {
	return nil
}

func (b *blockingTransfer) TransferToGuest(thread Thread, params *NativeExecutionParameters, trampoline uintptr) HaltReason {
	close(b.entered)
	<-b.release
	return HaltReason(params.nativeContext.haltReason.Swap(0))
}

func TestSignalInterruptRunningThread(t *testing.T) {
	bt := &blockingTransfer{
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	c := NewCore(0, memory.NewFlat(0, 0x1000), stepInterp(0), bt)
	thread := &fakeThread{hostTID: 4321}

	sentTo := make(chan int32, 1)
	c.sendBreak = func(tid int32) error {
		sentTo <- tid
		return nil
	}

	done := make(chan HaltReason, 1)
	go func() {
		done <- c.RunThread(thread)
	}()

	<-bt.entered
	c.SignalInterrupt(thread)

	if tid := <-sentTo; tid != 4321 {
		t.Errorf("break sent to tid %d, want 4321", tid)
	}
	// The interrupter's hold survives until the runner tears down.
	if !thread.params.lock.held() {
		t.Error("parameter lock released while target still in guest mode")
	}

	close(bt.release)
	if hr := <-done; hr != HaltBreakLoop {
		t.Errorf("RunThread = %v, want %v", hr, HaltBreakLoop)
	}
	if thread.params.lock.held() {
		t.Error("parameter lock held after RunThread teardown")
	}
}

func TestConcurrentSignalInterruptRunningThread(t *testing.T) {
	bt := &blockingTransfer{
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	c := NewCore(0, memory.NewFlat(0, 0x1000), stepInterp(0), bt)
	thread := &fakeThread{hostTID: 77}

	var sent atomic.Int32
	c.sendBreak = func(tid int32) error {
		sent.Add(1)
		return nil
	}

	done := make(chan HaltReason, 1)
	go func() {
		done <- c.RunThread(thread)
	}()

	// The first interrupter signals the running thread and keeps the
	// lock; the second spins on the lock through the runner's teardown
	// and must find the thread already stopped.
	<-bt.entered
	c.SignalInterrupt(thread)
	if n := sent.Load(); n != 1 {
		t.Fatalf("%d break signals after first interrupt, want 1", n)
	}

	second := make(chan struct{})
	go func() {
		defer close(second)
		c.SignalInterrupt(thread)
	}()

	close(bt.release)
	if hr := <-done; hr != HaltBreakLoop {
		t.Errorf("RunThread = %v, want %v", hr, HaltBreakLoop)
	}
	<-second

	if n := sent.Load(); n != 1 {
		t.Errorf("%d break signals total, want exactly 1", n)
	}
	if thread.params.lock.held() {
		t.Error("lock held after both interrupters settled")
	}
	// The second interrupter's bit either rode out with the first run's
	// report or is still pending; nothing else may be in the
	// accumulator.
	if hr := HaltReason(c.guestCtx.haltReason.Swap(0)); hr != 0 && hr != HaltBreakLoop {
		t.Errorf("residual halt = %v, want none or %v", hr, HaltBreakLoop)
	}
}

func TestConcurrentSignalInterrupt(t *testing.T) {
	c := newTestCore(stepInterp(0))
	thread := &fakeThread{hostTID: 99}

	var sent atomic.Int32
	c.sendBreak = func(tid int32) error {
		sent.Add(1)
		return nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.SignalInterrupt(thread)
		}()
	}
	wg.Wait()

	// The thread never ran: no signal, lock released, one pending bit.
	if n := sent.Load(); n != 0 {
		t.Errorf("%d break signals sent to a stopped thread, want 0", n)
	}
	if thread.params.lock.held() {
		t.Error("lock held after concurrent interrupts settled")
	}
	if hr := c.RunThread(thread); hr != HaltBreakLoop {
		t.Errorf("RunThread = %v, want %v", hr, HaltBreakLoop)
	}
}

// faultingTransfer mimics the native exit protocol for a run that traps
// on a guest memory fault: the fault is recorded, the lock force-taken
// and the internal service request reported, exactly as the fault
// handler does before bouncing back to the driver. Subsequent entries
// report halts from the script.
type faultingTransfer struct {
	faultAddr      uint64
	faultAlignment bool

	// then is reported on the entry after the fault.
	then HaltReason

	entries int
}

func (f *faultingTransfer) Prepare(*Core) error {
	return nil
}

func (f *faultingTransfer) TransferToGuest(thread Thread, params *NativeExecutionParameters, trampoline uintptr) HaltReason {
	f.entries++
	g := params.nativeContext
	if f.entries == 1 {
		g.faultAddr = f.faultAddr
		g.faultAlignment = f.faultAlignment
		g.haltReason.Or(uint64(haltGuestFault))
	} else {
		g.haltReason.Or(uint64(f.then))
	}
	params.lock.forceLock()
	return HaltReason(g.haltReason.Swap(0))
}

func TestRunThreadServicesAlignmentFaultTransparently(t *testing.T) {
	ft := &faultingTransfer{
		faultAddr:      0x10205,
		faultAlignment: true,
		then:           HaltSupervisorCall,
	}
	c := NewCore(0, memory.NewFlat(0x10000, 0x1000), stepInterp(1), ft)
	thread := &fakeThread{}
	c.SetContext(&ThreadContext{Pc: 0x10100})

	hr := c.RunThread(thread)
	if hr != HaltSupervisorCall {
		t.Fatalf("RunThread = %v, want %v", hr, HaltSupervisorCall)
	}
	if ft.entries != 2 {
		t.Errorf("guest entered %d times, want 2 (fault serviced, run resumed)", ft.entries)
	}

	var got ThreadContext
	c.GetContext(&got)
	if got.Pc != 0x10104 {
		t.Errorf("pc = %#x after emulated access, want 0x10104", got.Pc)
	}
	if thread.params.lock.held() {
		t.Error("lock held after RunThread returned")
	}
}

func TestRunThreadStrictDataAbortHalts(t *testing.T) {
	ft := &faultingTransfer{faultAddr: 0x20000}
	c := NewCore(0, memory.NewFlat(0x10000, 0x1000), stepInterp(0), ft)
	c.SetStrictDataAborts(true)
	thread := &fakeThread{}
	c.SetContext(&ThreadContext{Pc: 0x10100})

	hr := c.RunThread(thread)
	if hr != HaltDataAbort {
		t.Fatalf("RunThread = %v, want %v", hr, HaltDataAbort)
	}
	if ft.entries != 1 {
		t.Errorf("guest entered %d times, want 1 (no resume after strict abort)", ft.entries)
	}

	var got ThreadContext
	c.GetContext(&got)
	if got.Pc != 0x10100 {
		t.Errorf("pc = %#x, want unchanged 0x10100", got.Pc)
	}
	if thread.params.lock.held() {
		t.Error("lock held after RunThread returned")
	}
}

func TestSvcArgumentsRoundTrip(t *testing.T) {
	c := newTestCore(stepInterp(0))
	want := [8]uint64{1, 2, 3, 4, 5, 6, 7, 8}
	c.SetSvcArguments(want)
	if got := c.SvcArguments(); got != want {
		t.Errorf("SvcArguments = %v, want %v", got, want)
	}
	// x8 and above are not svc argument material.
	if c.guestCtx.cpuRegisters[8] != 0 {
		t.Errorf("x8 = %#x, want untouched 0", c.guestCtx.cpuRegisters[8])
	}
}

func TestContextRoundTrip(t *testing.T) {
	c := newTestCore(stepInterp(0))

	want := ThreadContext{
		Sp:     0x7000,
		Pc:     0x8000,
		Pstate: 0x60000000,
		Fpcr:   0x07000000,
		Fpsr:   0x08000000,
		Tpidr:  0xdeadbeef,
	}
	for i := range want.R {
		want.R[i] = uint64(i + 1)
	}
	want.Fp = 0x2900
	want.Lr = 0x3000
	for i := range want.V {
		want.V[i] = uint64(i) * 0x1111
	}

	c.SetContext(&want)
	var got ThreadContext
	c.GetContext(&got)

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("context round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestSetTpidrroEl0(t *testing.T) {
	c := newTestCore(stepInterp(0))
	c.SetTpidrroEl0(0x1234)
	if c.guestCtx.tpidrroEl0 != 0x1234 {
		t.Errorf("tpidrroEl0 = %#x, want 0x1234", c.guestCtx.tpidrroEl0)
	}
}

func TestLockUnlockThread(t *testing.T) {
	c := newTestCore(stepInterp(0))
	thread := &fakeThread{}
	thread.params.tpidrEl0 = 0x1111
	thread.params.tpidrroEl0 = 0x2222

	c.LockThread(thread)
	if !thread.params.lock.held() {
		t.Fatal("lock not held after LockThread")
	}
	c.UnlockThread(thread)
	if thread.params.lock.held() {
		t.Fatal("lock held after UnlockThread")
	}
	if c.guestCtx.tpidrEl0 != 0x1111 || c.guestCtx.tpidrroEl0 != 0x2222 {
		t.Errorf("thread pointers = %#x/%#x, want 0x1111/0x2222",
			c.guestCtx.tpidrEl0, c.guestCtx.tpidrroEl0)
	}
}
