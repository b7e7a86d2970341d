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

//go:build linux

package sighandling

import (
	"testing"
	"unsafe"
)

// The structs handed to rt_sigaction and sigaltstack are raw kernel ABI
// mirrors; a stray field or padding change corrupts the syscall
// arguments silently.

func TestSigActionLayout(t *testing.T) {
	var sa sigAction
	if s := unsafe.Sizeof(sa); s != 32 {
		t.Errorf("sigAction size = %d, want 32", s)
	}
	if o := unsafe.Offsetof(sa.Flags); o != 8 {
		t.Errorf("Flags offset = %d, want 8", o)
	}
	if o := unsafe.Offsetof(sa.Mask); o != 24 {
		t.Errorf("Mask offset = %d, want 24", o)
	}
}

func TestStackTLayout(t *testing.T) {
	var ss stackT
	if s := unsafe.Sizeof(ss); s != 24 {
		t.Errorf("stack_t size = %d, want 24", s)
	}
	if o := unsafe.Offsetof(ss.Flags); o != 8 {
		t.Errorf("Flags offset = %d, want 8", o)
	}
	if o := unsafe.Offsetof(ss.Size); o != 16 {
		t.Errorf("Size offset = %d, want 16", o)
	}
}
