// Copyright (c) 2024 The Falcon Contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.
package codegen

import (
	"bytes"
	"testing"
)

// TestMovRRKnownEncoding pins `mov rax, rcx` (48 89 c8) and `mov r8, r9`
// (4d 89 c8), the latter exercising both REX.R and REX.B extension bits.
func TestMovRRKnownEncoding(t *testing.T) {
	e := NewEncoder()
	e.MovRR(Reg(RAX, 8), Reg(RCX, 8))
	want := []byte{0x48, 0x89, 0xC8}
	if !bytes.Equal(e.Buf, want) {
		t.Fatalf("mov rax, rcx: got % x, want % x", e.Buf, want)
	}

	e2 := NewEncoder()
	e2.MovRR(Reg(R8, 8), Reg(R9, 8))
	want2 := []byte{0x4D, 0x89, 0xC8}
	if !bytes.Equal(e2.Buf, want2) {
		t.Fatalf("mov r8, r9: got % x, want % x", e2.Buf, want2)
	}
}

// TestMovRIEmitsMovabs pins `mov rax, 1` as a 10-byte movabs form.
func TestMovRIEmitsMovabs(t *testing.T) {
	e := NewEncoder()
	e.MovRI(Reg(RAX, 8), 1)
	if len(e.Buf) != 10 {
		t.Fatalf("expected a 10-byte movabs encoding, got %d bytes: % x", len(e.Buf), e.Buf)
	}
	if e.Buf[0] != 0x48 || e.Buf[1] != 0xB8 {
		t.Fatalf("expected REX.W + 0xB8 opcode, got % x", e.Buf[:2])
	}
}

// TestArithRRKnownEncoding pins `add rax, rbx` (48 01 d8).
func TestArithRRKnownEncoding(t *testing.T) {
	e := NewEncoder()
	e.ArithRR("add", Reg(RAX, 8), Reg(RBX, 8))
	want := []byte{0x48, 0x01, 0xD8}
	if !bytes.Equal(e.Buf, want) {
		t.Fatalf("add rax, rbx: got % x, want % x", e.Buf, want)
	}
}

// TestLoadMemWithSIBByte verifies that a base register whose low 3 bits
// equal RSP's encoding (RSP itself, or R12) forces a SIB byte, since
// ModRM.rm==100 is the SIB escape rather than a plain base register.
func TestLoadMemWithSIBByte(t *testing.T) {
	e := NewEncoder()
	e.LoadMem(Reg(RAX, 8), RSP, 16)
	// REX.W, 0x8B, ModRM(mod=10,reg=rax,rm=100), SIB(0x24), disp32.
	if len(e.Buf) != 3+1+4 {
		t.Fatalf("expected a SIB byte to be emitted for RSP base, got % x", e.Buf)
	}
	if e.Buf[3] != 0x24 {
		t.Fatalf("expected SIB byte 0x24 at offset 3, got %#x", e.Buf[3])
	}
}

// TestJccRel32PatchedForward exercises the deferred relocation pattern used
// throughout internal/codegen/emit.go: emit a placeholder, keep going, then
// patch the displacement once the target offset is known.
func TestJccRel32PatchedForward(t *testing.T) {
	e := NewEncoder()
	site := e.JccRel32(CondEQ)
	e.Push(RAX) // one filler instruction between the jump and its target
	target := e.Len()
	e.PatchRel32(site, target)

	rel := int32(e.Buf[site]) | int32(e.Buf[site+1])<<8 | int32(e.Buf[site+2])<<16 | int32(e.Buf[site+3])<<24
	if int(rel) != target-(site+4) {
		t.Fatalf("expected displacement %d, got %d", target-(site+4), rel)
	}
}

// TestSSEArithRRSelectsPrecisionPrefix checks that double vs single
// precision select F2 vs F3, the only byte that distinguishes addsd from
// addss at this call site.
func TestSSEArithRRSelectsPrecisionPrefix(t *testing.T) {
	d := NewEncoder()
	d.SSEArithRR("fadd", true, XMM0, XMM1)
	if d.Buf[0] != 0xF2 {
		t.Fatalf("expected F2 prefix for addsd, got %#x", d.Buf[0])
	}

	s := NewEncoder()
	s.SSEArithRR("fadd", false, XMM0, XMM1)
	if s.Buf[0] != 0xF3 {
		t.Fatalf("expected F3 prefix for addss, got %#x", s.Buf[0])
	}
}

// TestSetCCNeedsRexForExtendedReg confirms setcc on al takes no REX prefix
// while setcc on r8b takes a REX.B prefix.
func TestSetCCNeedsRexForExtendedReg(t *testing.T) {
	low := NewEncoder()
	low.SetCC(CondEQ, Reg(RAX, 1))
	if len(low.Buf) != 3 {
		t.Fatalf("expected no REX prefix for setcc al, got % x", low.Buf)
	}

	high := NewEncoder()
	high.SetCC(CondEQ, Reg(R8, 1))
	if len(high.Buf) != 4 || high.Buf[0] != rex(false, false, false, true) {
		t.Fatalf("expected a REX.B prefix for setcc r8b, got % x", high.Buf)
	}
}
