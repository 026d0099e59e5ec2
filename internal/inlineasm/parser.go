// Completion: 95% - Inline assembly parser complete, with error recovery
package inlineasm

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/samber/lo"
	"github.com/xyproto/x64c/internal/asm"
	"github.com/xyproto/x64c/internal/diag"
	"github.com/xyproto/x64c/internal/engine"
)

// Parser builds a Block from inline assembly text. Errors are collected
// and parsing resumes at the next ';' or '}'.
type Parser struct {
	lexer   *Lexer
	current Token
	peek    Token
	name    string
	errors  *diag.Collector
	failed  bool

	decls    []*Alloc
	live     map[string]*Alloc
	freed    map[string]bool
	returned bool
}

// Parse parses a block. name is used in diagnostics. The returned block
// is usable only when ok is true.
func Parse(name, src string, errs *diag.Collector) (block *Block, ok bool) {
	p := &Parser{
		lexer:  NewLexer(src),
		name:   name,
		errors: errs,
		live:   make(map[string]*Alloc),
		freed:  make(map[string]bool),
	}
	p.nextToken()
	p.nextToken()
	block = p.parseBlock()
	return block, !p.failed
}

func (p *Parser) nextToken() {
	p.current = p.peek
	p.peek = p.lexer.NextToken()
}

func (p *Parser) location(t Token) diag.SourceLocation {
	return diag.SourceLocation{File: p.name, Line: t.Line, Column: t.Column, Length: max(len(t.Value), 1)}
}

// errorAt collects a syntax error at the given token
func (p *Parser) errorAt(t Token, suggestion, format string, args ...any) {
	p.failed = true
	e := diag.SyntaxError(fmt.Sprintf(format, args...), p.location(t))
	e.Context.Suggestion = suggestion
	p.errors.Add(e)
}

func (p *Parser) error(format string, args ...any) {
	p.errorAt(p.current, "", format, args...)
}

// synchronize skips to the end of the current statement
func (p *Parser) synchronize() {
	for p.current.Type != TOKEN_EOF {
		switch p.current.Type {
		case TOKEN_SEMICOLON:
			p.nextToken()
			return
		case TOKEN_RBRACE:
			return
		}
		p.nextToken()
	}
}

func (p *Parser) expect(t TokenType) bool {
	if p.current.Type != t {
		p.errorAt(p.current, "", "expected %s, got %s", t, p.current)
		return false
	}
	p.nextToken()
	return true
}

func (p *Parser) pos() Pos {
	return Pos{Line: p.current.Line, Column: p.current.Column}
}

func (p *Parser) parseBlock() *Block {
	b := &Block{Name: p.name}
	if !p.expect(TOKEN_LBRACE) {
		return b
	}
	for p.current.Type != TOKEN_RBRACE && p.current.Type != TOKEN_EOF {
		stmt := p.parseStatement()
		if stmt == nil {
			p.synchronize()
			continue
		}
		if p.current.Type != TOKEN_SEMICOLON {
			p.errorAt(p.current, "", "expected ';' after statement, got %s", p.current)
			p.synchronize()
		} else {
			p.nextToken()
		}
		b.Stmts = append(b.Stmts, stmt)
	}
	p.expect(TOKEN_RBRACE)
	if p.current.Type != TOKEN_EOF {
		p.error("unexpected %s after end of block", p.current)
	}

	// Every name that was never freed is released at the end, in declaration order
	unfreed := lo.Filter(p.decls, func(a *Alloc, _ int) bool { return !p.freed[a.Name] })
	for _, a := range unfreed {
		b.Stmts = append(b.Stmts, &Free{Pos: a.Pos, Name: a.Name, Implicit: true})
	}
	b.Decls = p.decls
	return b
}

func (p *Parser) parseStatement() Stmt {
	pos := p.pos()
	ret := false
	if p.current.Type == TOKEN_IDENT && p.current.Value == "return" {
		ret = true
		p.nextToken()
		if p.returned {
			p.error("block already returns a value")
			return nil
		}
		p.returned = true
	}
	if p.current.Type != TOKEN_IDENT && !ret {
		p.error("expected an instruction, got %s", p.current)
		return nil
	}
	if p.current.Type == TOKEN_IDENT {
		switch word := p.current.Value; {
		case word == "alloc" || word == "free":
			if ret {
				p.error("cannot return '%s'", word)
				return nil
			}
			if word == "alloc" {
				return p.parseAlloc(pos)
			}
			return p.parseFree(pos)
		case isMnemonic(word):
			return p.parseInstr(pos, ret)
		case !ret:
			p.errorAt(p.current, engine.DidYouMean(strings.ToLower(word), Mnemonics()), "unsupported instruction '%s'", word)
			return nil
		}
	}
	op := p.parseOperand()
	if op == nil {
		return nil
	}
	return &Value{Pos: pos, Operand: op}
}

func isMnemonic(word string) bool {
	_, ok := Lookup(strings.ToLower(word))
	return ok
}

func (p *Parser) parseAlloc(pos Pos) Stmt {
	p.nextToken() // alloc
	if p.current.Type != TOKEN_IDENT {
		p.error("expected a register name after 'alloc', got %s", p.current)
		return nil
	}
	nameTok := p.current
	a := &Alloc{Pos: pos, Name: nameTok.Value, Size: asm.S64}
	p.nextToken()

	if _, exists := p.live[a.Name]; exists {
		p.errorAt(nameTok, "", "'%s' is already allocated", a.Name)
		return nil
	}
	if isMnemonic(a.Name) || a.Name == "alloc" || a.Name == "free" || a.Name == "return" {
		p.errorAt(nameTok, "", "'%s' is a reserved word and cannot name a register", a.Name)
		return nil
	}
	if phys, size, ok := asm.LookupPhys(a.Name); ok {
		a.Phys, a.Size = phys, size
	}

	switch p.current.Type {
	case TOKEN_IDENT:
		hw := p.current
		phys, size, ok := asm.LookupPhys(hw.Value)
		if !ok {
			p.errorAt(hw, engine.DidYouMean(hw.Value, asm.PhysNames()), "unknown register '%s'", hw.Value)
			return nil
		}
		if a.Phys != asm.NoPhys && a.Phys != phys {
			p.errorAt(hw, "", "'%s' is itself a register and cannot be bound to %s", a.Name, hw.Value)
			return nil
		}
		a.Phys, a.Size = phys, size
		p.nextToken()
	case TOKEN_COLON:
		if !p.parseSuffix(&a.Type, &a.Size) {
			return nil
		}
	}
	if a.Phys == asm.RSP || a.Phys == asm.RBP {
		p.errorAt(nameTok, "", "%s cannot be allocated", a.Phys)
		return nil
	}
	if a.Size == asm.S8High && !a.Phys.HasHigh8() {
		p.errorAt(nameTok, "", "%s has no upper-8 alias", a.Phys)
		return nil
	}

	p.live[a.Name] = a
	p.decls = append(p.decls, a)
	return a
}

// parseSuffix parses ':' type (':' size)? or ':' size
func (p *Parser) parseSuffix(typ *string, size *asm.Size) bool {
	for p.current.Type == TOKEN_COLON {
		p.nextToken()
		switch p.current.Type {
		case TOKEN_IDENT:
			if *typ != "" {
				p.error("type given twice")
				return false
			}
			*typ = p.current.Value
		case TOKEN_NUMBER:
			n, err := strconv.Atoi(p.current.Value)
			s, ok := asm.SizeOf(n)
			if err != nil || !ok {
				p.error("invalid register size '%s' (expected 1, 2, 4 or 8)", p.current.Value)
				return false
			}
			*size = s
		default:
			p.error("expected a type or a size after ':', got %s", p.current)
			return false
		}
		p.nextToken()
	}
	return true
}

func (p *Parser) parseFree(pos Pos) Stmt {
	p.nextToken() // free
	if p.current.Type != TOKEN_IDENT {
		p.error("expected a register name after 'free', got %s", p.current)
		return nil
	}
	nameTok := p.current
	p.nextToken()
	if _, ok := p.live[nameTok.Value]; !ok {
		msg := "free of unknown register '%s'"
		if p.freed[nameTok.Value] {
			msg = "register '%s' is already freed"
		}
		p.errorAt(nameTok, engine.DidYouMean(nameTok.Value, lo.Keys(p.live)), msg, nameTok.Value)
		return nil
	}
	delete(p.live, nameTok.Value)
	p.freed[nameTok.Value] = true
	return &Free{Pos: pos, Name: nameTok.Value}
}

func (p *Parser) parseInstr(pos Pos, ret bool) Stmt {
	mnemonicTok := p.current
	mnemonic := strings.ToLower(mnemonicTok.Value)
	spec, _ := Lookup(mnemonic)
	p.nextToken()

	ins := &Instr{Pos: pos, Mnemonic: mnemonic, Spec: spec, Return: ret}
	for p.current.Type != TOKEN_SEMICOLON && p.current.Type != TOKEN_RBRACE && p.current.Type != TOKEN_EOF {
		if len(ins.Operands) > 0 && !p.expect(TOKEN_COMMA) {
			return nil
		}
		opTok := p.current
		op := p.parseOperand()
		if op == nil {
			return nil
		}
		i := len(ins.Operands)
		if i < spec.Arity() && !p.checkOperand(opTok, mnemonic, i, spec.Operands[i], op) {
			return nil
		}
		ins.Operands = append(ins.Operands, op)
	}
	if len(ins.Operands) != spec.Arity() {
		p.errorAt(mnemonicTok, "", "'%s' takes %d operand(s), got %d", mnemonic, spec.Arity(), len(ins.Operands))
		return nil
	}
	if ret && spec.Arity() == 0 {
		p.errorAt(mnemonicTok, "", "'%s' has no destination to return", mnemonic)
		return nil
	}
	if spec.Arity() == 2 {
		_, m0 := ins.Operands[0].(*MemRef)
		_, m1 := ins.Operands[1].(*MemRef)
		if m0 && m1 {
			p.errorAt(mnemonicTok, "", "'%s' cannot take two memory operands", mnemonic)
			return nil
		}
	}
	return ins
}

// checkOperand validates an operand against its dispatch table position
func (p *Parser) checkOperand(t Token, mnemonic string, i int, spec OperandSpec, op Operand) bool {
	var kind Kinds
	switch op.(type) {
	case *VarRef:
		if spec.Mode != Variable {
			p.errorAt(t, "", "operand %d of '%s' cannot be a variable", i+1, mnemonic)
			return false
		}
		return true
	case *RegRef:
		kind = KindReg
	case *MemRef:
		kind = KindMem
	case *Lit:
		kind = KindImm
	}
	if !spec.Accepts(kind) {
		what := map[Kinds]string{KindReg: "a register", KindMem: "a memory operand", KindImm: "an immediate"}[kind]
		p.errorAt(t, "", "operand %d of '%s' cannot be %s", i+1, mnemonic, what)
		return false
	}
	return true
}

func sizeKeyword(word string) (asm.Size, bool) {
	switch strings.ToLower(word) {
	case "byte":
		return asm.S8, true
	case "word":
		return asm.S16, true
	case "dword":
		return asm.S32, true
	case "qword":
		return asm.S64, true
	}
	return asm.SizeNone, false
}

func (p *Parser) parseOperand() Operand {
	pos := p.pos()
	switch p.current.Type {
	case TOKEN_DOLLAR:
		p.nextToken()
		if p.current.Type != TOKEN_IDENT {
			p.error("expected a variable name after '$', got %s", p.current)
			return nil
		}
		v := &VarRef{Pos: pos, Name: p.current.Value}
		p.nextToken()
		return v
	case TOKEN_LBRACKET:
		return p.parseMemory(pos, asm.SizeNone)
	case TOKEN_NUMBER, TOKEN_MINUS:
		return p.parseLiteral(pos)
	case TOKEN_IDENT:
		word := p.current.Value
		if size, ok := sizeKeyword(word); ok && (p.peek.Type == TOKEN_LBRACKET || strings.EqualFold(p.peek.Value, "ptr")) {
			p.nextToken()
			if strings.EqualFold(p.current.Value, "ptr") {
				p.nextToken()
			}
			return p.parseMemory(pos, size)
		}
		if word == "true" || word == "false" {
			p.nextToken()
			return &Lit{Pos: pos, Value: asm.Bool(word == "true")}
		}
		return p.parseRegister(pos)
	}
	p.error("malformed operand %s", p.current)
	return nil
}

func (p *Parser) parseRegister(pos Pos) Operand {
	tok := p.current
	r := &RegRef{Pos: pos, Name: tok.Value}
	if a, ok := p.live[tok.Value]; ok {
		r.Named, r.Phys, r.Type = true, a.Phys, a.Type
	} else if phys, size, ok := asm.LookupPhys(tok.Value); ok {
		r.Phys, r.Size = phys, size
	} else {
		candidates := append(lo.Keys(p.live), asm.PhysNames()...)
		msg := "unknown register or name '%s'"
		if p.freed[tok.Value] {
			msg = "register '%s' is used after it was freed"
		}
		p.errorAt(tok, engine.DidYouMean(tok.Value, candidates), msg, tok.Value)
		return nil
	}
	p.nextToken()
	if p.current.Type == TOKEN_COLON {
		typ := r.Type
		if !p.parseSuffix(&typ, &r.Size) {
			return nil
		}
		r.Type = typ
	}
	return r
}

func (p *Parser) parseMemory(pos Pos, size asm.Size) Operand {
	if !p.expect(TOKEN_LBRACKET) {
		return nil
	}
	m := &MemRef{Pos: pos, Size: size}
	switch p.current.Type {
	case TOKEN_DOLLAR:
		m.Base = p.parseOperand()
	case TOKEN_IDENT:
		m.Base = p.parseRegister(p.pos())
	default:
		p.error("expected a base register or variable, got %s", p.current)
		return nil
	}
	if m.Base == nil {
		return nil
	}
	if p.current.Type == TOKEN_PLUS || p.current.Type == TOKEN_MINUS {
		negative := p.current.Type == TOKEN_MINUS
		p.nextToken()
		if p.current.Type != TOKEN_NUMBER {
			p.error("expected a displacement, got %s", p.current)
			return nil
		}
		text := p.current.Value
		v, err := strconv.ParseInt(strings.ReplaceAll(text, "_", ""), 0, 64)
		if negative {
			v = -v
		}
		if err != nil || v < math.MinInt32 || v > math.MaxInt32 {
			p.error("displacement %s%s does not fit in 32 bits", lo.Ternary(negative, "-", "+"), text)
			return nil
		}
		m.Disp = int32(v)
		p.nextToken()
	}
	if !p.expect(TOKEN_RBRACKET) {
		return nil
	}
	return m
}

func (p *Parser) parseLiteral(pos Pos) Operand {
	negative := false
	if p.current.Type == TOKEN_MINUS {
		negative = true
		p.nextToken()
		if p.current.Type != TOKEN_NUMBER {
			p.error("expected a number after '-', got %s", p.current)
			return nil
		}
	}
	text := strings.ReplaceAll(p.current.Value, "_", "")
	sign := lo.Ternary(negative, "-", "")
	var lit asm.Literal
	lower := strings.ToLower(text)
	switch {
	case strings.HasPrefix(lower, "0x"):
		lit = asm.Literal{Kind: asm.LitHex, Text: sign + text}
	case strings.HasPrefix(lower, "0b"):
		lit = asm.Literal{Kind: asm.LitBinary, Text: sign + text}
	default:
		lit = asm.Literal{Kind: asm.LitInt, Text: sign + text}
	}
	if _, err := lit.Bits(); err != nil {
		p.error("invalid number '%s%s'", sign, text)
		return nil
	}
	p.nextToken()
	return &Lit{Pos: pos, Value: lit}
}
