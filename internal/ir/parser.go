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
	"math"
	"strconv"
	"strings"
)

// parserState is the line-oriented state machine of spec.md §4.1.
type parserState int

const (
	stRoot parserState = iota
	stFuncArgs
	stFuncSlots
	stBlockArgs
	stBlock
)

// Parser turns a textual IR buffer into a fully populated Program, per
// spec.md §4.1. Generalized from the teacher's ast.Parser (one-token
// lookahead, hand-rolled recursive descent) to a line-oriented grammar.
type Parser struct {
	prog  *Program
	lines []string
	line  int // 1-based index of the line currently being parsed

	state parserState

	curFunc  *Function
	curBlock *Block

	names map[string]interface{} // per-function name table, redefinition check
}

// ParseProgram is the entry point of spec.md §4.1.
func ParseProgram(text string) (*Program, error) {
	p := &Parser{prog: NewProgram()}
	p.lines = strings.Split(text, "\n")
	for p.line = 0; p.line < len(p.lines); p.line++ {
		raw := p.lines[p.line]
		line := stripComment(raw)
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if err := p.parseLine(fields); err != nil {
			return nil, err
		}
	}
	return p.prog, nil
}

func stripComment(s string) string {
	if i := strings.Index(s, "//"); i >= 0 {
		s = s[:i]
	}
	if i := strings.Index(s, "#"); i >= 0 {
		s = s[:i]
	}
	return s
}

func (p *Parser) lineNo() int { return p.line + 1 }

func (p *Parser) parseLine(fields []string) error {
	switch p.state {
	case stRoot:
		return p.parseRoot(fields)
	case stFuncArgs:
		return p.parseFuncArgsOrSlots(fields)
	case stFuncSlots:
		return p.parseFuncSlotsOrBlock(fields)
	case stBlock, stBlockArgs:
		return p.parseBlockLine(fields)
	default:
		return NewError(ErrIRInvariant, p.lineNo(), "unreachable parser state")
	}
}

func (p *Parser) parseRoot(fields []string) error {
	if fields[0] != "func" {
		return NewError(ErrParseSyntax, p.lineNo(), "expected 'func', got %q", fields[0])
	}
	name := fields[1]
	retType := None
	if len(fields) > 2 {
		if fields[2] != "returns" || len(fields) < 4 {
			return NewError(ErrParseSyntax, p.lineNo(), "malformed func header")
		}
		t, ok := ParseTypeName(fields[3])
		if !ok {
			return NewError(ErrParseSyntax, p.lineNo(), "unknown return type %q", fields[3])
		}
		retType = t
	}
	if p.prog.FindFunction(name) != nil {
		return NewError(ErrParseRedefinition, p.lineNo(), "function %q redefined", name)
	}
	f := p.prog.NewFunction(name, retType)
	p.curFunc = f
	p.names = map[string]interface{}{}
	entry := f.NewBlock("entry")
	p.curBlock = entry
	p.prog.CurBlock = entry
	for i := p.line + 1; i < len(p.lines); i++ { // create blocks up front so goto/if may name later ones
		ls := strings.Fields(stripComment(p.lines[i]))
		if len(ls) > 0 && ls[0] == "endfunc" {
			break
		} else if len(ls) >= 2 && ls[0] == "block" {
			if f.FindBlock(ls[1]) != nil {
				return NewError(ErrParseRedefinition, i+1, "block %q redefined", ls[1])
			}
			f.NewBlock(ls[1])
		}
	}
	p.state = stFuncArgs
	return nil
}

func (p *Parser) parseFuncArgsOrSlots(fields []string) error {
	if fields[0] == "arg" {
		return p.declareArg(fields)
	}
	p.state = stFuncSlots
	return p.parseFuncSlotsOrBlock(fields)
}

func (p *Parser) declareArg(fields []string) error {
	if len(fields) != 3 {
		return NewError(ErrParseSyntax, p.lineNo(), "malformed arg line")
	}
	name, typeName := fields[1], fields[2]
	if _, dup := p.names[name]; dup {
		return NewError(ErrParseRedefinition, p.lineNo(), "%q redefined", name)
	}
	t, ok := ParseTypeName(typeName)
	if !ok {
		return NewError(ErrParseSyntax, p.lineNo(), "unknown type %q", typeName)
	}
	v := &Value{ID: len(p.curFunc.Args), Kind: VArg, Type: t, ArgName: name}
	p.curFunc.Args = append(p.curFunc.Args, v)
	p.names[name] = v
	return nil
}

func (p *Parser) parseFuncSlotsOrBlock(fields []string) error {
	if fields[0] == "stack_slot" {
		return p.declareSlot(fields)
	}
	p.state = stBlock
	return p.parseBlockLine(fields)
}

func (p *Parser) declareSlot(fields []string) error {
	if len(fields) != 3 {
		return NewError(ErrParseSyntax, p.lineNo(), "malformed stack_slot line")
	}
	name, typeName := fields[1], fields[2]
	if _, dup := p.names[name]; dup {
		return NewError(ErrParseRedefinition, p.lineNo(), "%q redefined", name)
	}
	t, ok := ParseTypeName(typeName)
	if !ok {
		return NewError(ErrParseSyntax, p.lineNo(), "unknown type %q", typeName)
	}
	slot := p.curFunc.NewSlot(name, t)
	p.names[name] = slot
	return nil
}

func (p *Parser) parseBlockLine(fields []string) error {
	if p.curBlock.Term != OpInvalid && fields[0] != "block" && fields[0] != "endfunc" {
		return NewError(ErrParseSyntax, p.lineNo(), "line after the terminator of block %q", p.curBlock.Name)
	}
	switch fields[0] {
	case "endfunc":
		p.curFunc = nil
		p.curBlock = nil
		p.state = stRoot
		return nil
	case "block":
		name := fields[1]
		b := p.curFunc.FindBlock(name)
		p.curBlock = b
		p.prog.CurBlock = b
		return nil
	case "return":
		return p.parseReturn(fields)
	case "goto":
		return p.parseGoto(fields)
	case "if":
		return p.parseIf(fields)
	default:
		return p.parseStatement(fields)
	}
}

func (p *Parser) parseReturn(fields []string) error {
	if len(fields) == 1 {
		p.curBlock.SetReturn(nil)
		return nil
	}
	v, err := p.resolveOperand(fields[1])
	if err != nil {
		return err
	}
	p.curBlock.SetReturn(v)
	return nil
}

func (p *Parser) parseGoto(fields []string) error {
	label, args, rest, err := p.parseLabelAndArgs(fields[1:])
	if err != nil {
		return err
	}
	if len(rest) != 0 {
		return NewError(ErrParseSyntax, p.lineNo(), "trailing tokens after goto target")
	}
	target := p.curFunc.FindBlock(label)
	if target == nil {
		return NewError(ErrParseUndefinedReference, p.lineNo(), "undefined block %q", label)
	}
	p.curBlock.SetGoto(target, args)
	return nil
}

func (p *Parser) parseIf(fields []string) error {
	cond, err := p.resolveOperand(fields[1])
	if err != nil {
		return err
	}
	if fields[2] != "goto" {
		return NewError(ErrParseSyntax, p.lineNo(), "expected 'goto' after if condition")
	}
	trueLabel, trueArgs, rest, err := p.parseLabelAndArgs(fields[3:])
	if err != nil {
		return err
	}
	if len(rest) == 0 || rest[0] != "else" {
		return NewError(ErrParseSyntax, p.lineNo(), "expected 'else' in if")
	}
	falseLabel, falseArgs, rest2, err := p.parseLabelAndArgs(rest[1:])
	if err != nil {
		return err
	}
	if len(rest2) != 0 {
		return NewError(ErrParseSyntax, p.lineNo(), "trailing tokens after if")
	}
	tb := p.curFunc.FindBlock(trueLabel)
	fb := p.curFunc.FindBlock(falseLabel)
	if tb == nil || fb == nil {
		return NewError(ErrParseUndefinedReference, p.lineNo(), "undefined block in if")
	}
	p.curBlock.SetIf(cond, tb, fb, trueArgs, falseArgs)
	return nil
}

// parseLabelAndArgs parses `LABEL [v1, v2, ...]` and returns the label, the
// resolved argument values, and the remaining unconsumed tokens.
func (p *Parser) parseLabelAndArgs(fields []string) (string, []*Value, []string, error) {
	if len(fields) == 0 {
		return "", nil, nil, NewError(ErrParseSyntax, p.lineNo(), "expected block label")
	}
	label := strings.TrimSuffix(fields[0], ",")
	var args []*Value
	rest := fields[1:]
	for len(rest) > 0 {
		tok := rest[0]
		if tok == "else" {
			break
		}
		trimmed := strings.TrimSuffix(tok, ",")
		v, err := p.resolveOperand(trimmed)
		if err != nil {
			return "", nil, nil, err
		}
		args = append(args, v)
		rest = rest[1:]
	}
	return label, args, rest, nil
}

// parseStatement parses `[NAME =] OP args...` non-terminator lines.
func (p *Parser) parseStatement(fields []string) error {
	var outName string
	rest := fields
	if len(fields) >= 2 && fields[1] == "=" {
		outName = fields[0]
		rest = fields[2:]
	}
	if len(rest) == 0 {
		return NewError(ErrParseSyntax, p.lineNo(), "empty statement")
	}
	opName := rest[0]
	op, ok := LookupOp(opName)
	if !ok {
		return NewError(ErrParseSyntax, p.lineNo(), "unknown opcode %q", opName)
	}
	if op.IsTerminator() {
		return NewError(ErrParseSyntax, p.lineNo(), "terminator %q used as statement", opName)
	}
	if outName != "" {
		if _, dup := p.names[outName]; dup {
			return NewError(ErrParseRedefinition, p.lineNo(), "%q redefined", outName)
		}
	}
	operands, err := p.parseOperands(op, rest[1:])
	if err != nil {
		return err
	}
	outType, err := p.inferOutputType(op, operands)
	if err != nil {
		return err
	}
	stmt := p.prog.NewStatement(op, outType, operands...)
	stmt.Block = p.curBlock
	if outName != "" && stmt.Output != nil {
		stmt.Output.ArgName = outName
		p.names[outName] = stmt.Output
	}
	return nil
}

// parseOperands consumes tokens per opcode family (spec.md §4.1), call
// opcodes being the variable-arity exception (TEXT name followed by VALUE
// args).
func (p *Parser) parseOperands(op Op, toks []string) ([]Operand, error) {
	info := op.Info()
	switch info.Family {
	case FamCall:
		if len(toks) == 0 {
			return nil, NewError(ErrParseSyntax, p.lineNo(), "call missing callee name")
		}
		ops := []Operand{TextOperand(strings.TrimSuffix(toks[0], ","))}
		for _, t := range toks[1:] {
			v, err := p.resolveOperand(strings.TrimSuffix(t, ","))
			if err != nil {
				return nil, err
			}
			ops = append(ops, ValueOperand(v))
		}
		return ops, nil
	case FamV:
		if len(toks) != 1 {
			return nil, NewError(ErrParseSyntax, p.lineNo(), "expected one operand")
		}
		v, err := p.resolveOperand(toks[0])
		if err != nil {
			return nil, err
		}
		return []Operand{ValueOperand(v)}, nil
	case FamTV:
		if len(toks) != 2 {
			return nil, NewError(ErrParseSyntax, p.lineNo(), "expected type and value operand")
		}
		t, ok := ParseTypeName(strings.TrimSuffix(toks[0], ","))
		if !ok {
			return nil, NewError(ErrParseSyntax, p.lineNo(), "unknown type %q", toks[0])
		}
		v, err := p.resolveOperand(toks[1])
		if err != nil {
			return nil, err
		}
		return []Operand{TypeOperand(t), ValueOperand(v)}, nil
	case FamVV:
		if len(toks) != 2 {
			return nil, NewError(ErrParseSyntax, p.lineNo(), "expected two operands")
		}
		a, err := p.resolveOperand(strings.TrimSuffix(toks[0], ","))
		if err != nil {
			return nil, err
		}
		b, err := p.resolveOperand(toks[1])
		if err != nil {
			return nil, err
		}
		return []Operand{ValueOperand(a), ValueOperand(b)}, nil
	case FamVVV:
		if len(toks) != 3 {
			return nil, NewError(ErrParseSyntax, p.lineNo(), "expected three operands")
		}
		var ops []Operand
		for _, t := range toks {
			v, err := p.resolveOperand(strings.TrimSuffix(t, ","))
			if err != nil {
				return nil, err
			}
			ops = append(ops, ValueOperand(v))
		}
		return ops, nil
	default:
		return nil, NewError(ErrIRInvariant, p.lineNo(), "opcode %s has no parseable operand family", info.Name)
	}
}

// resolveOperand parses a token into a Value: a numeric literal (CONST), a
// `&name` stack-address reference, or a named reference to an arg/stmt
// output.
func (p *Parser) resolveOperand(tok string) (*Value, error) {
	tok = strings.TrimSuffix(tok, ",")
	if strings.HasPrefix(tok, "&") {
		name := tok[1:]
		slot := p.curFunc.FindSlot(name)
		if slot == nil {
			return nil, NewError(ErrParseUndefinedReference, p.lineNo(), "undefined stack slot %q", name)
		}
		return &Value{ID: p.prog.nextStmtID(), Kind: VStackAddr, Type: IPtr, Slot: slot}, nil
	}
	if isLiteral(tok) {
		return p.parseLiteral(tok)
	}
	entry, ok := p.names[tok]
	if !ok {
		return nil, NewError(ErrParseUndefinedReference, p.lineNo(), "undefined name %q", tok)
	}
	v, ok := entry.(*Value)
	if !ok {
		return nil, NewError(ErrParseSyntax, p.lineNo(), "%q is not a value", tok)
	}
	return v, nil
}

func isLiteral(tok string) bool {
	if tok == "" {
		return false
	}
	c := tok[0]
	return c == '-' || (c >= '0' && c <= '9')
}

// parseLiteral parses a type-suffixed numeric literal: `32i64`, `-1.5f64`,
// `0xffi32`, per spec.md §4.1.
func (p *Parser) parseLiteral(tok string) (*Value, error) {
	for _, suf := range []string{"i8", "i16", "i32", "i64", "iptr", "f32", "f64"} {
		if strings.HasSuffix(tok, suf) {
			numText := strings.TrimSuffix(tok, suf)
			t, _ := ParseTypeName(suf)
			if t.IsFloat() {
				f, err := strconv.ParseFloat(numText, 64)
				if err != nil {
					return nil, NewError(ErrParseSyntax, p.lineNo(), "bad float literal %q", tok)
				}
				return p.prog.NewConst(t, floatBits(t, f)), nil
			}
			base := 10
			if strings.HasPrefix(numText, "0x") || strings.HasPrefix(numText, "-0x") {
				base = 16
				numText = strings.Replace(numText, "0x", "", 1)
			}
			n, err := strconv.ParseInt(numText, base, 64)
			if err != nil {
				return nil, NewError(ErrParseSyntax, p.lineNo(), "bad integer literal %q", tok)
			}
			return p.prog.NewConst(t, uint64(n)), nil
		}
	}
	return nil, NewError(ErrParseSyntax, p.lineNo(), "literal %q has no recognized type suffix", tok)
}

func floatBits(t *Type, f float64) uint64 {
	if t.Kind == TF32 {
		return uint64(math.Float32bits(float32(f)))
	}
	return math.Float64bits(f)
}

// inferOutputType implements spec.md §4.1's output-type-inference table.
func (p *Parser) inferOutputType(op Op, operands []Operand) (*Type, error) {
	if !op.Info().HasOutput {
		return None, nil
	}
	switch op {
	case OpCmpLE, OpCmpLT, OpCmpGE, OpCmpGT, OpCmpEQ, OpCmpNE:
		return I8, nil
	case OpLoad, OpUintToFloat, OpIntToFloat, OpFloatToUint, OpFloatToInt, OpBitcast:
		return operands[0].Type, nil
	case OpCallEval:
		// Output type of a call is the callee's declared return type.
		name := operands[0].Text
		callee := p.prog.FindFunction(name)
		if callee == nil {
			return nil, NewError(ErrParseUndefinedReference, p.lineNo(), "call to undefined function %q", name)
		}
		return callee.RetType, nil
	default:
		// Arithmetic/unary/ternary/inject: inherit the first value operand's type.
		for _, o := range operands {
			if o.Kind == OperandValue {
				return o.Value.Type, nil
			}
		}
		return Bad, NewError(ErrIRInvariant, p.lineNo(), "opcode %s has no value operand to infer type from", op)
	}
}
