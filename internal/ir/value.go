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

import "fmt"

// ValueKind is the Value variant of spec.md §3.
type ValueKind int

const (
	VInvalid ValueKind = iota
	VConst
	VSSA
	VArg
	VStackAddr
)

// Value is a typed SSA value (spec.md §3). Its Kind is fixed at creation;
// its Type is fixed; its Uses list grows and shrinks as the IR is mutated.
type Value struct {
	ID   int
	Kind ValueKind
	Type *Type

	// VConst: Bits holds the immediate payload. For scalar types it's the
	// raw bit pattern (as returned by math.Float64bits etc for floats,
	// sign/zero-extended for ints); for aggregates it indexes into the
	// owning Program's constant pool.
	Bits uint64

	// VSSA: the statement that produces this value. Its Output must equal
	// this Value (spec.md §8 SSA invariant).
	Producer *Statement

	// VArg: the parameter name.
	ArgName string

	// VStackAddr: the slot whose address this value names. Always IPtr.
	Slot *StackSlot

	// Uses is the list of statements that read this value as an operand,
	// spec.md §3's "use edges". Edge correctness (spec.md §8) requires
	// exactly one entry here per VALUE-operand occurrence.
	Uses []*Statement

	// UseBlocks records blocks whose `if` terminator reads this value as
	// its condition — a second edge kind alongside Uses, mirroring the
	// teacher's Value.UseBlock.
	UseBlocks []*Block
}

func (v *Value) String() string {
	switch v.Kind {
	case VConst:
		return fmt.Sprintf("%d%s", int64(v.Bits), v.Type)
	case VSSA:
		return fmt.Sprintf("%%%d", v.ID)
	case VArg:
		return fmt.Sprintf("%%%s", v.ArgName)
	case VStackAddr:
		return fmt.Sprintf("&%s", v.Slot.Name)
	default:
		return "<invalid-value>"
	}
}

// AddUse records that stmt reads v as an operand.
func (v *Value) AddUse(stmt *Statement) {
	v.Uses = append(v.Uses, stmt)
}

// RemoveUse removes one occurrence of stmt from v's use list.
func (v *Value) RemoveUse(stmt *Statement) {
	for i, u := range v.Uses {
		if u == stmt {
			v.Uses = append(v.Uses[:i], v.Uses[i+1:]...)
			return
		}
	}
}

func (v *Value) AddUseBlock(b *Block) {
	v.UseBlocks = append(v.UseBlocks, b)
}

func (v *Value) RemoveUseBlock(b *Block) {
	for i, u := range v.UseBlocks {
		if u == b {
			v.UseBlocks = append(v.UseBlocks[:i], v.UseBlocks[i+1:]...)
			return
		}
	}
}

// NumUses is the total edge count (ordinary uses + conditional-branch
// uses), consulted by the register allocator to detect last-use points
// (spec.md §4.6).
func (v *Value) NumUses() int {
	return len(v.Uses) + len(v.UseBlocks)
}

// ReplaceAllUses rewrites every use of v to instead reference other,
// leaving v with no uses. Used by the optimizer (empty-block removal,
// mem2reg's store-shadowing) and the inliner.
func (v *Value) ReplaceAllUses(other *Value) {
	for _, use := range v.Uses {
		for i, op := range use.Operands {
			if op.Kind == OperandValue && op.Value == v {
				use.Operands[i].Value = other
				other.AddUse(use)
			}
		}
	}
	v.Uses = nil
	for _, b := range v.UseBlocks {
		b.Ctrl = other
		other.AddUseBlock(b)
	}
	v.UseBlocks = nil
}

func IsConst(v *Value) bool { return v != nil && v.Kind == VConst }
