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
package ir

import "github.com/wareya/bbae/internal/utils"

// Op is the closed enum spec.md §9 asks for: the parser maps opcode text to
// one of these once, and every later pass switches on the enum rather than
// comparing strings (the teacher's `compile/ssa/hir.go` Op enum is the
// model this generalizes).
type Op int

const (
	OpInvalid Op = iota

	// V family: one value operand.
	OpMov
	OpNot
	OpNeg
	OpFreeze

	// T V family: one type operand, one value operand.
	OpLoad
	OpUintToFloat
	OpIntToFloat
	OpFloatToUint
	OpFloatToInt
	OpBitcast

	// V V family: two value operands.
	OpAdd
	OpSub
	OpMul
	OpIMul
	OpDiv
	OpIDiv
	OpRem
	OpIRem
	OpAnd
	OpOr
	OpXor
	OpShl
	OpShr
	OpSar
	OpFAdd
	OpFSub
	OpFMul
	OpFDiv
	OpCmpLE
	OpCmpLT
	OpCmpGE
	OpCmpGT
	OpCmpEQ
	OpCmpNE
	OpStore
	OpPtrAlias

	// V V V family.
	OpTernary
	OpInject

	// Calls: TEXT(name) followed by VALUE args.
	OpCall     // no output
	OpCallEval // produces output

	// Terminators.
	OpReturn
	OpGoto
	OpIf
)

type OperandFamily int

const (
	FamNone OperandFamily = iota
	FamV                  // one value
	FamTV                 // type, value
	FamVV                 // value, value
	FamVVV                // value, value, value
	FamCall               // text, value...
	FamTerm                // terminator-specific
)

// OpInfo is the per-opcode metadata consulted by the parser (operand
// family, spec.md §4.1), the legalizer (immediate legality, spec.md §4.5),
// and later passes (commutativity, for register reuse in spec.md §4.6).
type OpInfo struct {
	Name        string
	Family      OperandFamily
	HasOutput   bool
	Commutative bool
	// ImmAllowed[i] reports whether operand position i (0-based, first 8
	// positions only) may hold a CONST value without the legalizer
	// inserting a materializing mov (spec.md §4.5).
	ImmAllowed [8]bool
}

var opTable = map[Op]*OpInfo{}
var nameTable = map[string]Op{}

func reg(op Op, name string, fam OperandFamily, hasOut, commutative bool, immAllowed ...int) {
	info := &OpInfo{Name: name, Family: fam, HasOutput: hasOut, Commutative: commutative}
	for _, p := range immAllowed {
		info.ImmAllowed[p] = true
	}
	opTable[op] = info
	nameTable[name] = op
}

func init() {
	// Unary (V). `mov` is exempted from the arithmetic immediate-ban below:
	// it legally takes an immediate everywhere, since its whole job may be
	// to materialize one.
	reg(OpMov, "mov", FamV, true, false, 0, 1)
	reg(OpNot, "not", FamV, true, false)
	reg(OpNeg, "neg", FamV, true, false)
	reg(OpFreeze, "freeze", FamV, true, false, 1)

	// T V
	reg(OpLoad, "load", FamTV, true, false, 1)
	reg(OpUintToFloat, "uint_to_float", FamTV, true, false)
	reg(OpIntToFloat, "int_to_float", FamTV, true, false)
	reg(OpFloatToUint, "float_to_uint", FamTV, true, false)
	reg(OpFloatToInt, "float_to_int", FamTV, true, false)
	reg(OpBitcast, "bitcast", FamTV, true, false, 1)

	// V V arithmetic: position 0 (the destination/left-input dual role on
	// x86) forbids immediates; position 1 allows them unless SSE (handled
	// per-opcode below).
	reg(OpAdd, "add", FamVV, true, true, 1)
	reg(OpSub, "sub", FamVV, true, false, 1)
	reg(OpMul, "mul", FamVV, true, true, 1)
	reg(OpIMul, "imul", FamVV, true, true, 1)
	reg(OpDiv, "div", FamVV, true, false)
	reg(OpIDiv, "idiv", FamVV, true, false)
	reg(OpRem, "rem", FamVV, true, false)
	reg(OpIRem, "irem", FamVV, true, false)
	reg(OpAnd, "and", FamVV, true, true, 1)
	reg(OpOr, "or", FamVV, true, true, 1)
	reg(OpXor, "xor", FamVV, true, true, 1)
	reg(OpShl, "shl", FamVV, true, false, 1)
	reg(OpShr, "shr", FamVV, true, false, 1)
	reg(OpSar, "sar", FamVV, true, false, 1)
	// SSE forbids immediates entirely (spec.md §4.5).
	reg(OpFAdd, "fadd", FamVV, true, true)
	reg(OpFSub, "fsub", FamVV, true, false)
	reg(OpFMul, "fmul", FamVV, true, true)
	reg(OpFDiv, "fdiv", FamVV, true, false)
	reg(OpCmpLE, "cmp_le", FamVV, true, false, 1)
	reg(OpCmpLT, "cmp_lt", FamVV, true, false, 1)
	reg(OpCmpGE, "cmp_ge", FamVV, true, false, 1)
	reg(OpCmpGT, "cmp_gt", FamVV, true, false, 1)
	reg(OpCmpEQ, "cmp_eq", FamVV, true, true, 1)
	reg(OpCmpNE, "cmp_ne", FamVV, true, true, 1)
	reg(OpStore, "store", FamVV, false, false, 0, 1)
	reg(OpPtrAlias, "ptralias", FamVV, true, false, 1)

	reg(OpTernary, "ternary", FamVVV, true, false, 1, 2)
	reg(OpInject, "inject", FamVVV, true, false, 2)

	reg(OpCall, "call", FamCall, false, false)
	reg(OpCallEval, "call_eval", FamCall, true, false)

	reg(OpReturn, "return", FamTerm, false, false, 0)
	reg(OpGoto, "goto", FamTerm, false, false)
	reg(OpIf, "if", FamTerm, false, false, 0)
}

func (op Op) Info() *OpInfo {
	info, ok := opTable[op]
	utils.Assert(ok, "unregistered opcode %d", int(op))
	return info
}

func (op Op) String() string {
	if info, ok := opTable[op]; ok {
		return info.Name
	}
	return "<invalid-op>"
}

func (op Op) IsTerminator() bool {
	return op == OpReturn || op == OpGoto || op == OpIf
}

// LookupOp maps opcode text to its Op, per spec.md §4.1's "unknown opcode
// -> fatal" rule.
func LookupOp(name string) (Op, bool) {
	op, ok := nameTable[name]
	return op, ok
}
