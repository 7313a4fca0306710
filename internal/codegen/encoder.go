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

import "github.com/wareya/bbae/internal/utils"

// Encoder is the direct x86-64 byte encoder of spec.md §4.7. The teacher's
// Assembler (compile/codegen/asm_x86.go) builds an AT&T-syntax string
// buffer it later hands to gcc/as; this encoder keeps the same "accept a
// mnemonic plus typed operands, dispatch on operand shape" structure but
// appends machine bytes to a growable buffer directly, since this
// back-end JITs rather than shelling out to an external assembler.
type Encoder struct {
	Buf []byte
}

func NewEncoder() *Encoder { return &Encoder{} }

func (e *Encoder) Len() int { return len(e.Buf) }

func (e *Encoder) emit(b ...byte) { e.Buf = append(e.Buf, b...) }

func (e *Encoder) emit32(v int32) {
	e.emit(byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

func (e *Encoder) emit64(v int64) {
	e.emit32(int32(v))
	e.emit32(int32(v >> 32))
}

// rex builds a REX prefix: w sets 64-bit operand size, r/x/b extend the
// reg/index/rm fields into registers 8-15.
func rex(w, r, x, b bool) byte {
	v := byte(0x40)
	if w {
		v |= 0x08
	}
	if r {
		v |= 0x04
	}
	if x {
		v |= 0x02
	}
	if b {
		v |= 0x01
	}
	return v
}

func needsRexByte(reg int) bool { return reg >= 8 }

func modrm(mod, reg, rm int) byte {
	return byte(mod<<6) | byte((reg&7)<<3) | byte(rm&7)
}

// Size in {1,2,4,8} bytes.
type Operand struct {
	IsReg   bool
	IsMem   bool
	IsImm   bool
	Reg     int
	Base    int // memory: base register (RBP typically)
	Disp    int32
	Imm     int64
	Size    int
	IsFloat bool
}

func Reg(id, size int) Operand     { return Operand{IsReg: true, Reg: id, Size: size} }
func FReg(id int) Operand          { return Operand{IsReg: true, Reg: id, Size: 8, IsFloat: true} }
func Mem(base int, disp int32, size int) Operand {
	return Operand{IsMem: true, Base: base, Disp: disp, Size: size}
}
func Imm(v int64, size int) Operand { return Operand{IsImm: true, Imm: v, Size: size} }

// emitModRM emits a ModRM (+SIB +disp) byte sequence for `reg` paired
// with `rm`, which may be a register or a [base+disp32] memory operand on
// any base register (no index register and no RIP-relative form).
func (e *Encoder) emitModRM(reg int, rm Operand) {
	if rm.IsReg {
		e.emit(modrm(3, reg, rm.Reg))
		return
	}
	// [base+disp32]; always use disp32 form for simplicity (legalized
	// stack offsets can exceed disp8 range once spills pile up).
	e.emit(modrm(2, reg, rm.Base&7))
	if rm.Base&7 == 4 { // RSP/R12 need a SIB byte
		e.emit(0x24)
	}
	e.emit32(rm.Disp)
}

func opSizePrefix(size int) []byte {
	if size == 2 {
		return []byte{0x66}
	}
	return nil
}

// MovRR emits `mov dst, src` for integer registers of matching size.
func (e *Encoder) MovRR(dst, src Operand) {
	e.emit(opSizePrefix(dst.Size)...)
	w := dst.Size == 8
	e.emit(rex(w, needsRexByte(src.Reg), false, needsRexByte(dst.Reg)))
	op := byte(0x89)
	if dst.Size == 1 {
		op = 0x88
	}
	e.emit(op)
	e.emitModRM(src.Reg, dst)
}

// MovRI emits `mov dst, imm`, picking the immediate-move opcode that
// matches dst's width: 0xB8+reg with a 64-bit immediate for r64, the same
// opcode 0x66-prefixed with a 16-bit immediate for r16, 0xB0+reg with an
// 8-bit immediate for r8, and plain 0xB8+reg with a 32-bit immediate for
// r32.
func (e *Encoder) MovRI(dst Operand, imm int64) {
	switch dst.Size {
	case 8:
		e.emit(rex(true, false, false, needsRexByte(dst.Reg)))
		e.emit(0xB8 + byte(dst.Reg&7))
		e.emit64(imm)
	case 2:
		e.emit(0x66)
		if needsRexByte(dst.Reg) {
			e.emit(rex(false, false, false, true))
		}
		e.emit(0xB8 + byte(dst.Reg&7))
		e.emit(byte(imm), byte(imm>>8))
	case 1:
		// Registers 4-7 (SP/BP/SI/DI) need a REX prefix even with no bits
		// set, or the 8-bit encoding addresses AH/CH/DH/BH instead.
		if dst.Reg >= 4 {
			e.emit(rex(false, false, false, needsRexByte(dst.Reg)))
		}
		e.emit(0xB0 + byte(dst.Reg&7))
		e.emit(byte(imm))
	default:
		if needsRexByte(dst.Reg) {
			e.emit(rex(false, false, false, true))
		}
		e.emit(0xB8 + byte(dst.Reg&7))
		e.emit32(int32(imm))
	}
}

// LoadMem emits `mov dst, [base+disp]`.
func (e *Encoder) LoadMem(dst Operand, base int, disp int32) {
	e.emit(opSizePrefix(dst.Size)...)
	w := dst.Size == 8
	e.emit(rex(w, needsRexByte(dst.Reg), false, needsRexByte(base)))
	op := byte(0x8B)
	if dst.Size == 1 {
		op = 0x8A
	}
	e.emit(op)
	e.emitModRM(dst.Reg, Mem(base, disp, dst.Size))
}

// StoreMem emits `mov [base+disp], src`.
func (e *Encoder) StoreMem(base int, disp int32, src Operand) {
	e.emit(opSizePrefix(src.Size)...)
	w := src.Size == 8
	e.emit(rex(w, needsRexByte(src.Reg), false, needsRexByte(base)))
	op := byte(0x89)
	if src.Size == 1 {
		op = 0x88
	}
	e.emit(op)
	e.emitModRM(src.Reg, Mem(base, disp, src.Size))
}

// Lea emits `lea dst, [base+disp]`.
func (e *Encoder) Lea(dst Operand, base int, disp int32) {
	e.emit(rex(true, needsRexByte(dst.Reg), false, needsRexByte(base)))
	e.emit(0x8D)
	e.emitModRM(dst.Reg, Mem(base, disp, 8))
}

// arithRR and arithDigit map the spec.md §4.7 2-operand mnemonics to their
// rr opcode and to their /digit extension (for the imm32 group-1 form).
var arithRR = map[string]byte{"add": 0x01, "or": 0x09, "and": 0x21, "sub": 0x29, "xor": 0x31, "cmp": 0x39}
var arithDigit = map[string]int{"add": 0, "or": 1, "and": 4, "sub": 5, "xor": 6, "cmp": 7}

// ArithRR emits `op dst, src` (dst/src both general-purpose registers).
func (e *Encoder) ArithRR(mnemonic string, dst, src Operand) {
	opcode, ok := arithRR[mnemonic]
	utils.Assert(ok, "unknown rr arithmetic mnemonic %q", mnemonic)
	e.emit(opSizePrefix(dst.Size)...)
	e.emit(rex(dst.Size == 8, needsRexByte(src.Reg), false, needsRexByte(dst.Reg)))
	e.emit(opcode)
	e.emitModRM(src.Reg, dst)
}

// ArithRI emits `op dst, imm32` using the group-1 encoding.
func (e *Encoder) ArithRI(mnemonic string, dst Operand, imm int32) {
	digit, ok := arithDigit[mnemonic]
	utils.Assert(ok, "unknown ri arithmetic mnemonic %q", mnemonic)
	e.emit(opSizePrefix(dst.Size)...)
	e.emit(rex(dst.Size == 8, false, false, needsRexByte(dst.Reg)))
	e.emit(0x81)
	e.emitModRM(digit, dst)
	e.emit32(imm)
}

// IMulRR emits `imul dst, src`.
func (e *Encoder) IMulRR(dst, src Operand) {
	e.emit(rex(dst.Size == 8, needsRexByte(dst.Reg), false, needsRexByte(src.Reg)))
	e.emit(0x0F, 0xAF)
	e.emitModRM(dst.Reg, src)
}

// IDiv emits `idiv src` (RAX:RDX / src -> RAX quot, RDX rem).
// The byte form (AX / src -> AL quot, AH rem) uses opcode F6; the 16-bit
// form takes the 0x66 prefix.
func (e *Encoder) IDiv(src Operand) {
	e.emit(opSizePrefix(src.Size)...)
	e.emit(rex(src.Size == 8, false, false, needsRexByte(src.Reg)))
	op := byte(0xF7)
	if src.Size == 1 {
		op = 0xF6
	}
	e.emit(op)
	e.emitModRM(7, src)
}

func (e *Encoder) Div(src Operand) {
	e.emit(opSizePrefix(src.Size)...)
	e.emit(rex(src.Size == 8, false, false, needsRexByte(src.Reg)))
	op := byte(0xF7)
	if src.Size == 1 {
		op = 0xF6
	}
	e.emit(op)
	e.emitModRM(6, src)
}

// Cbw/Cwd/Cdq/Cqo sign-extend the accumulator ahead of a signed division;
// which one a division needs depends on its operand width, since each
// widens a different register pair (AL->AX, AX->DX:AX, EAX->EDX:EAX,
// RAX->RDX:RAX) and using the wrong one leaves the upper half wrong
// instead of sign-extended.
func (e *Encoder) Cbw() { e.emit(0x66, 0x98) }
func (e *Encoder) Cwd() { e.emit(0x66, 0x99) }
func (e *Encoder) Cdq() { e.emit(0x99) }
func (e *Encoder) Cqo() { e.emit(rex(true, false, false, false), 0x99) }

// ShiftCL emits `op dst, cl` for shl/shr/sar.
func (e *Encoder) ShiftCL(mnemonic string, dst Operand) {
	digit := map[string]int{"shl": 4, "shr": 5, "sar": 7}[mnemonic]
	e.emit(rex(dst.Size == 8, false, false, needsRexByte(dst.Reg)))
	e.emit(0xD3)
	e.emitModRM(digit, dst)
}

// ShiftImm emits `op dst, imm8`.
func (e *Encoder) ShiftImm(mnemonic string, dst Operand, amount byte) {
	digit := map[string]int{"shl": 4, "shr": 5, "sar": 7}[mnemonic]
	e.emit(rex(dst.Size == 8, false, false, needsRexByte(dst.Reg)))
	e.emit(0xC1)
	e.emitModRM(digit, dst)
	e.emit(amount)
}

// Not/Neg: group-3 /2 and /3.
func (e *Encoder) Not(dst Operand) {
	e.emit(rex(dst.Size == 8, false, false, needsRexByte(dst.Reg)))
	e.emit(0xF7)
	e.emitModRM(2, dst)
}
func (e *Encoder) Neg(dst Operand) {
	e.emit(rex(dst.Size == 8, false, false, needsRexByte(dst.Reg)))
	e.emit(0xF7)
	e.emitModRM(3, dst)
}

// Test emits `test a, a` (used to materialize condition codes from a
// boolean value ahead of a conditional branch or ternary select).
func (e *Encoder) Test(a Operand) {
	e.emit(opSizePrefix(a.Size)...)
	e.emit(rex(a.Size == 8, needsRexByte(a.Reg), false, needsRexByte(a.Reg)))
	op := byte(0x85)
	if a.Size == 1 {
		op = 0x84
	}
	e.emit(op)
	e.emitModRM(a.Reg, a)
}

// Cond is a condition-code selector for Jcc/SetCC.
type Cond byte

const (
	CondLT Cond = 0xC
	CondGE Cond = 0xD
	CondLE Cond = 0xE
	CondGT Cond = 0xF
	CondEQ Cond = 0x4
	CondNE Cond = 0x5
)

// SetCC emits `setCC dst8`. As in MovRI, registers 4-7 need a REX prefix
// too, or the encoding addresses AH/CH/DH/BH.
func (e *Encoder) SetCC(cond Cond, dst Operand) {
	if dst.Reg >= 4 {
		e.emit(rex(false, false, false, needsRexByte(dst.Reg)))
	}
	e.emit(0x0F, 0x90+byte(cond))
	e.emitModRM(0, dst)
}

// JmpRel32 emits a near jmp with a placeholder rel32, returning the
// offset of that rel32 field for later relocation patching.
func (e *Encoder) JmpRel32() int {
	e.emit(0xE9)
	at := e.Len()
	e.emit32(0)
	return at
}

// JccRel32 emits a near conditional jump.
func (e *Encoder) JccRel32(cond Cond) int {
	e.emit(0x0F, 0x80+byte(cond))
	at := e.Len()
	e.emit32(0)
	return at
}

// CallRel32 emits a near call.
func (e *Encoder) CallRel32() int {
	e.emit(0xE8)
	at := e.Len()
	e.emit32(0)
	return at
}

// PatchRel32 fills in a previously emitted rel32 field, computing the
// displacement from the end of that field to target.
func (e *Encoder) PatchRel32(fieldOffset, target int) {
	rel := int32(target - (fieldOffset + 4))
	e.Buf[fieldOffset] = byte(rel)
	e.Buf[fieldOffset+1] = byte(rel >> 8)
	e.Buf[fieldOffset+2] = byte(rel >> 16)
	e.Buf[fieldOffset+3] = byte(rel >> 24)
}

func (e *Encoder) Push(reg int) {
	if needsRexByte(reg) {
		e.emit(rex(false, false, false, true))
	}
	e.emit(0x50 + byte(reg&7))
}

func (e *Encoder) Pop(reg int) {
	if needsRexByte(reg) {
		e.emit(rex(false, false, false, true))
	}
	e.emit(0x58 + byte(reg&7))
}

func (e *Encoder) Ret()   { e.emit(0xC3) }
func (e *Encoder) Leave() { e.emit(0xC9) }

// MovapsRR copies one xmm register to another (spec.md §4.7's "float
// moves use MOVAPS").
func (e *Encoder) MovapsRR(dst, src int) {
	if needsRexByte(dst) || needsRexByte(src) {
		e.emit(rex(false, needsRexByte(dst), false, needsRexByte(src)))
	}
	e.emit(0x0F, 0x28)
	e.emit(modrm(3, dst&7, src&7))
}

// MovsdMem/MovssMem move between an xmm register and a [base+disp]
// memory location: a load when store is false, a store when it is true.
func (e *Encoder) MovsdMem(dst int, base int, disp int32, store bool) {
	e.emit(0xF2)
	if needsRexByte(dst) || needsRexByte(base) {
		e.emit(rex(false, needsRexByte(dst), false, needsRexByte(base)))
	}
	e.emit(0x0F)
	if store {
		e.emit(0x11)
	} else {
		e.emit(0x10)
	}
	e.emitModRM(dst, Mem(base, disp, 8))
}

func (e *Encoder) MovssMem(dst int, base int, disp int32, store bool) {
	e.emit(0xF3)
	if needsRexByte(dst) || needsRexByte(base) {
		e.emit(rex(false, needsRexByte(dst), false, needsRexByte(base)))
	}
	e.emit(0x0F)
	if store {
		e.emit(0x11)
	} else {
		e.emit(0x10)
	}
	e.emitModRM(dst, Mem(base, disp, 4))
}

// SSE arithmetic: addsd/subsd/mulsd/divsd and their single-precision ss
// counterparts, all reg-reg.
var sseOp = map[string]byte{"fadd": 0x58, "fsub": 0x5C, "fmul": 0x59, "fdiv": 0x5E}

func (e *Encoder) SSEArithRR(mnemonic string, double bool, dst, src int) {
	if double {
		e.emit(0xF2)
	} else {
		e.emit(0xF3)
	}
	if needsRexByte(dst) || needsRexByte(src) {
		e.emit(rex(false, needsRexByte(dst), false, needsRexByte(src)))
	}
	e.emit(0x0F)
	e.emit(sseOp[mnemonic])
	e.emit(modrm(3, dst&7, src&7))
}

// Comisd/Comiss set RFLAGS from a float comparison (spec.md §4.7's
// cmp_* lowering for float operands: comi + setcc, mirroring the integer
// cmp + setcc pair).
func (e *Encoder) ComisRR(double bool, a, b int) {
	if double {
		e.emit(0x66)
	}
	if needsRexByte(a) || needsRexByte(b) {
		e.emit(rex(false, needsRexByte(a), false, needsRexByte(b)))
	}
	e.emit(0x0F, 0x2F)
	e.emit(modrm(3, a&7, b&7))
}

// CvtIntToFloat emits cvtsi2sd/cvtsi2ss, converting a signed integer
// register into a float register.
func (e *Encoder) CvtIntToFloat(double bool, intSize int, dst, src int) {
	if double {
		e.emit(0xF2)
	} else {
		e.emit(0xF3)
	}
	e.emit(rex(intSize == 8, needsRexByte(dst), false, needsRexByte(src)))
	e.emit(0x0F, 0x2A)
	e.emit(modrm(3, dst&7, src&7))
}

// CvtFloatToInt emits cvttsd2si/cvttss2si (truncating), converting a float
// register into a signed integer register.
func (e *Encoder) CvtFloatToInt(double bool, intSize int, dst, src int) {
	if double {
		e.emit(0xF2)
	} else {
		e.emit(0xF3)
	}
	e.emit(rex(intSize == 8, needsRexByte(dst), false, needsRexByte(src)))
	e.emit(0x0F, 0x2C)
	e.emit(modrm(3, dst&7, src&7))
}

// CvtFloatToFloat emits cvtsd2ss/cvtss2sd, widening or narrowing between
// the two SSE float widths.
func (e *Encoder) CvtFloatToFloat(toDouble bool, dst, src int) {
	if toDouble {
		e.emit(0xF3) // cvtss2sd
	} else {
		e.emit(0xF2) // cvtsd2ss
	}
	if needsRexByte(dst) || needsRexByte(src) {
		e.emit(rex(false, needsRexByte(dst), false, needsRexByte(src)))
	}
	e.emit(0x0F, 0x5A)
	e.emit(modrm(3, dst&7, src&7))
}

// MovGPRtoXMM/MovXMMtoGPR emit movq/movd between a general-purpose
// register and an xmm register, used for bitcast (spec.md §4.7: a bitcast
// between an int and a float type of equal width is a bit-pattern copy,
// not a numeric conversion).
func (e *Encoder) MovGPRtoXMM(size int, dst, src int) {
	e.emit(0x66)
	e.emit(rex(size == 8, needsRexByte(dst), false, needsRexByte(src)))
	e.emit(0x0F, 0x6E)
	e.emit(modrm(3, dst&7, src&7))
}

func (e *Encoder) MovXMMtoGPR(size int, dst, src int) {
	e.emit(0x66)
	e.emit(rex(size == 8, needsRexByte(src), false, needsRexByte(dst)))
	e.emit(0x0F, 0x7E)
	e.emitModRM(src, Reg(dst, size))
}
