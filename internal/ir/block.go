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

import (
	"fmt"
	"strings"
)

// Block is a straight-line sequence of Statements ending in a terminator
// (return/goto/if), spec.md §3. Args are its SSA block-arguments (the
// phi-less control-flow mechanism spec.md §2 describes); Preds/Succs are
// wired by the edge connector (spec.md §4.3).
type Block struct {
	ID     int
	Name   string
	Func   *Function
	Args   []*Value
	Stmts  []*Statement

	// Term is the terminator opcode (OpReturn/OpGoto/OpIf); TermOperands
	// holds its VALUE operands (return value, or branch target args) and
	// Targets holds the target blocks in source order (1 for goto, 2 for
	// if: true-target, false-target).
	Term         Op
	TermOperands []*Value
	Targets      []*Block
	// TargetArgs[i] is the list of argument values passed to Targets[i].
	TargetArgs [][]*Value
	// Ctrl is the `if` condition value, tracked separately so its use-edge
	// can be a UseBlock edge rather than an ordinary statement use.
	Ctrl *Value

	Preds []*Block
	Succs []*Block
}

func (b *Block) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s(", b.Name)
	for i, a := range b.Args {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%s %s", a.Type, a)
	}
	sb.WriteString("):\n")
	for _, s := range b.Stmts {
		fmt.Fprintf(&sb, "    %s\n", s)
	}
	fmt.Fprintf(&sb, "    %s\n", b.TermString())
	return sb.String()
}

func (b *Block) TermString() string {
	switch b.Term {
	case OpReturn:
		if len(b.TermOperands) == 0 {
			return "return"
		}
		return fmt.Sprintf("return %s", b.TermOperands[0])
	case OpGoto:
		return fmt.Sprintf("goto %s", targetString(b.Targets[0], b.TargetArgs[0]))
	case OpIf:
		return fmt.Sprintf("if %s goto %s else %s", b.Ctrl,
			targetString(b.Targets[0], b.TargetArgs[0]),
			targetString(b.Targets[1], b.TargetArgs[1]))
	default:
		return "<no-terminator>"
	}
}

func targetString(b *Block, args []*Value) string {
	if len(args) == 0 {
		return b.Name
	}
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = a.String()
	}
	return fmt.Sprintf("%s(%s)", b.Name, strings.Join(parts, ", "))
}

// AddStmt appends s to the block's statement list, wiring it to b.
func (b *Block) AddStmt(s *Statement) {
	s.Block = b
	b.Stmts = append(b.Stmts, s)
}

// RemoveStmt unlinks s and clears its operand use-edges, per spec.md §8's
// use-edge correctness invariant.
func (b *Block) RemoveStmt(s *Statement) {
	for i, op := range s.Operands {
		if op.Kind == OperandValue && op.Value != nil {
			op.Value.RemoveUse(s)
		}
		_ = i
	}
	for i, st := range b.Stmts {
		if st == s {
			b.Stmts = append(b.Stmts[:i], b.Stmts[i+1:]...)
			return
		}
	}
}

// SetGoto sets this block's terminator to an unconditional branch to
// target with the given argument values, wiring use edges.
func (b *Block) SetGoto(target *Block, args []*Value) {
	b.Term = OpGoto
	b.Targets = []*Block{target}
	b.TargetArgs = [][]*Value{args}
}

// SetIf sets this block's terminator to a conditional branch.
func (b *Block) SetIf(cond *Value, trueTarget, falseTarget *Block, trueArgs, falseArgs []*Value) {
	b.Term = OpIf
	b.Ctrl = cond
	cond.AddUseBlock(b)
	b.Targets = []*Block{trueTarget, falseTarget}
	b.TargetArgs = [][]*Value{trueArgs, falseArgs}
}

// SetReturn sets this block's terminator to a return, with an optional
// return value (nil for a none-typed function).
func (b *Block) SetReturn(v *Value) {
	b.Term = OpReturn
	if v != nil {
		b.TermOperands = []*Value{v}
	} else {
		b.TermOperands = nil
	}
}

// ConnectTo wires b -> target as a CFG edge (spec.md §4.3), idempotently.
func (b *Block) ConnectTo(target *Block) {
	for _, s := range b.Succs {
		if s == target {
			return
		}
	}
	b.Succs = append(b.Succs, target)
	target.Preds = append(target.Preds, b)
}
