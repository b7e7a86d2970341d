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

package kernel

import (
	"testing"

	"github.com/helix-emu/helix/pkg/nce"
)

func TestThreadImplementsCoreInterface(t *testing.T) {
	var _ nce.Thread = NewThread(NewProcess())
}

func TestThreadIdentity(t *testing.T) {
	p := NewProcess()
	th := NewThread(p)

	if th.OwnerProcess() != nce.Process(p) {
		t.Error("OwnerProcess does not return the constructing process")
	}
	if th.NativeExecutionParameters() != th.NativeExecutionParameters() {
		t.Error("parameter block is not stable across calls")
	}

	th.SetHostThreadID(777)
	if th.HostThreadID() != 777 {
		t.Errorf("HostThreadID = %d, want 777", th.HostThreadID())
	}
}

func TestPostHandlerRegistry(t *testing.T) {
	p := NewProcess()

	if _, ok := p.PostHandler(0x1000); ok {
		t.Error("empty registry returned a handler")
	}

	p.RegisterPostHandler(0x1000, 0xdead)
	h, ok := p.PostHandler(0x1000)
	if !ok || h != 0xdead {
		t.Errorf("PostHandler(0x1000) = %#x, %v, want 0xdead, true", h, ok)
	}

	// Registration replaces.
	p.RegisterPostHandler(0x1000, 0xbeef)
	if h, _ := p.PostHandler(0x1000); h != 0xbeef {
		t.Errorf("PostHandler after replace = %#x, want 0xbeef", h)
	}
}
