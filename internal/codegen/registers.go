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

// Package codegen implements spec.md §4.6-§4.8: register allocation,
// frame layout, machine-code emission and relocation. Register naming
// and ABI shape are grounded on the teacher's compile/codegen/arch_x86.go
// (Register/ArgReg/CallerSaveRegs/CalleeSaveRegs), generalized from
// per-size-class named registers to a flat integer-indexed register file
// since this back-end's values always occupy a full machine slot (8, 4,
// 2 or 1 bytes of the same physical register, selected at encode time
// rather than allocation time).
package codegen

// Reference:
// https://web.stanford.edu/class/cs107/resources/x86-64-reference.pdf
// https://www.cs.cmu.edu/afs/cs/academic/class/15213-s20/www/recitations/x86-cheat-sheet.pdf

// Integer register indices, matching the x86-64 ModRM/SIB encoding order.
const (
	RAX = 0
	RCX = 1
	RDX = 2
	RBX = 3
	RSP = 4
	RBP = 5
	RSI = 6
	RDI = 7
	R8  = 8
	R9  = 9
	R10 = 10
	R11 = 11
	R12 = 12
	R13 = 13
	R14 = 14
	R15 = 15
)

var IntRegNames = [16]string{
	"rax", "rcx", "rdx", "rbx", "rsp", "rbp", "rsi", "rdi",
	"r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15",
}

// Float (XMM) register indices.
const (
	XMM0 = 0
	XMM1 = 1
	XMM2 = 2
	XMM3 = 3
	XMM4 = 4
	XMM5 = 5
	XMM6 = 6
	XMM7 = 7
	XMM8 = 8
	XMM9 = 9
	XMM10 = 10
	XMM11 = 11
	XMM12 = 12
	XMM13 = 13
	XMM14 = 14
	XMM15 = 15
)

// Permanently reserved registers, per spec.md §4.6: the stack pointer,
// base pointer, integer scratch, and float scratch are never allocated.
const (
	IntScratch   = R11
	FloatScratch = XMM5
)

func IsReservedInt(r int) bool {
	return r == RSP || r == RBP || r == IntScratch
}

func IsReservedFloat(r int) bool {
	return r == FloatScratch
}

// AllocatableIntRegs and AllocatableFloatRegs list the registers the
// allocator is free to assign, in a caller-saved-first preference order
// (spec.md §4.6's "preferring caller-saved registers when the function
// makes no calls itself").
var AllocatableIntRegs = []int{RAX, RCX, RDX, RSI, RDI, R8, R9, R10, RBX, R12, R13, R14, R15}
var AllocatableFloatRegs = []int{XMM0, XMM1, XMM2, XMM3, XMM4, XMM6, XMM7, XMM8, XMM9, XMM10, XMM11, XMM12, XMM13, XMM14, XMM15}

func CalleeSavedInt() []int { return []int{RBX, R12, R13, R14, R15, RBP} }

func CallerSavedInt() []int { return []int{RAX, RCX, RDX, RSI, RDI, R8, R9, R10, R11} }

func CallerSavedFloat() []int {
	return []int{XMM0, XMM1, XMM2, XMM3, XMM4, XMM5, XMM6, XMM7, XMM8, XMM9, XMM10, XMM11, XMM12, XMM13, XMM14, XMM15}
}
