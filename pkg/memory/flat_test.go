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

import (
	"bytes"
	"testing"
)

func TestFlatReadWrite(t *testing.T) {
	f := NewFlat(0x1000, 0x100)

	if !f.Write(0x1010, []byte{1, 2, 3, 4}) {
		t.Fatal("in-range write failed")
	}
	got := make([]byte, 4)
	if !f.Read(0x1010, got) {
		t.Fatal("in-range read failed")
	}
	if !bytes.Equal(got, []byte{1, 2, 3, 4}) {
		t.Errorf("read back %v, want [1 2 3 4]", got)
	}
}

func TestFlatBounds(t *testing.T) {
	f := NewFlat(0x1000, 0x100)
	buf := make([]byte, 8)

	if f.Read(0xff8, buf) {
		t.Error("read below base succeeded")
	}
	if f.Read(0x10fc, buf) {
		t.Error("read straddling the end succeeded")
	}
	if f.Write(0x1100, buf) {
		t.Error("write past the end succeeded")
	}
	// Wraparound: addr+size overflows.
	if f.Read(^uint64(0)-3, buf) {
		t.Error("wrapping read succeeded")
	}
}

func TestFlatInvalidateNCE(t *testing.T) {
	f := NewFlat(0x1000, 0x2000)
	if !f.InvalidateNCE(0x1000, 0x1000) {
		t.Error("in-range invalidate reported unresolvable")
	}
	if f.InvalidateNCE(0x4000, 0x1000) {
		t.Error("out-of-range invalidate reported resolvable")
	}
}
