package compiler

import (
	"strconv"

	"github.com/clarete/golox/internal/chunk"
	"github.com/clarete/golox/internal/token"
	"github.com/clarete/golox/internal/value"
)

// Precedence levels, low to high.
type precedence int

const (
	precNone precedence = iota
	precAssignment
	precOr
	precAnd
	precEquality
	precComparison
	precTerm
	precFactor
	precUnary
	precCall
	precPrimary
)

type parseFn func(c *Compiler, canAssign bool)

type rule struct {
	prefix     parseFn
	infix      parseFn
	precedence precedence
}

var rules map[token.Kind]rule

func init() {
	rules = map[token.Kind]rule{
		token.LeftParen:    {grouping, call, precCall},
		token.Dot:          {nil, dot, precCall},
		token.Minus:        {unary, binary, precTerm},
		token.Plus:         {nil, binary, precTerm},
		token.Slash:        {nil, binary, precFactor},
		token.Star:         {nil, binary, precFactor},
		token.Bang:         {unary, nil, precNone},
		token.BangEqual:    {nil, binary, precEquality},
		token.EqualEqual:   {nil, binary, precEquality},
		token.Greater:      {nil, binary, precComparison},
		token.GreaterEqual: {nil, binary, precComparison},
		token.Less:         {nil, binary, precComparison},
		token.LessEqual:    {nil, binary, precComparison},
		token.Identifier:   {variable, nil, precNone},
		token.String:       {stringLiteral, nil, precNone},
		token.Number:       {number, nil, precNone},
		token.And:          {nil, and_, precAnd},
		token.False:        {literal, nil, precNone},
		token.Nil:          {literal, nil, precNone},
		token.Or:           {nil, or_, precOr},
		token.Super:        {super_, nil, precNone},
		token.This:         {this_, nil, precNone},
		token.True:         {literal, nil, precNone},
	}
}

func getRule(k token.Kind) rule {
	if r, ok := rules[k]; ok {
		return r
	}
	return rule{precedence: precNone}
}

func (c *Compiler) parsePrecedence(p precedence) {
	c.ps.advance()
	prefixRule := getRule(c.ps.prevTok.Kind).prefix
	if prefixRule == nil {
		c.ps.errorAtPrevious("Expect expression.")
		return
	}

	canAssign := p <= precAssignment
	prefixRule(c, canAssign)

	for p <= getRule(c.ps.curTok.Kind).precedence {
		c.ps.advance()
		infixRule := getRule(c.ps.prevTok.Kind).infix
		infixRule(c, canAssign)
	}

	if canAssign && c.ps.match(token.Equal) {
		c.ps.errorAtPrevious("Invalid assignment target.")
	}
}

func (c *Compiler) expression() {
	c.parsePrecedence(precAssignment)
}

func number(c *Compiler, _ bool) {
	n, _ := strconv.ParseFloat(c.ps.prevTok.Lexeme, 64)
	c.emitConstant(value.Number(n))
}

func stringLiteral(c *Compiler, _ bool) {
	lex := c.ps.prevTok.Lexeme
	s := c.ps.heap.InternCopy([]byte(lex[1 : len(lex)-1]))
	c.emitConstant(value.Obj(s))
}

func literal(c *Compiler, _ bool) {
	switch c.ps.prevTok.Kind {
	case token.False:
		c.emitOp(chunk.OpFalse)
	case token.True:
		c.emitOp(chunk.OpTrue)
	case token.Nil:
		c.emitOp(chunk.OpNil)
	}
}

func grouping(c *Compiler, _ bool) {
	c.expression()
	c.ps.consume(token.RightParen, "Expect ')' after expression.")
}

func unary(c *Compiler, _ bool) {
	opKind := c.ps.prevTok.Kind
	c.parsePrecedence(precUnary)
	switch opKind {
	case token.Bang:
		c.emitOp(chunk.OpNot)
	case token.Minus:
		c.emitOp(chunk.OpNegate)
	}
}

func binary(c *Compiler, _ bool) {
	opKind := c.ps.prevTok.Kind
	r := getRule(opKind)
	c.parsePrecedence(r.precedence + 1)

	switch opKind {
	case token.BangEqual:
		c.emitOp(chunk.OpEqual)
		c.emitOp(chunk.OpNot)
	case token.EqualEqual:
		c.emitOp(chunk.OpEqual)
	case token.Greater:
		c.emitOp(chunk.OpGreater)
	case token.GreaterEqual:
		c.emitOp(chunk.OpLess)
		c.emitOp(chunk.OpNot)
	case token.Less:
		c.emitOp(chunk.OpLess)
	case token.LessEqual:
		c.emitOp(chunk.OpGreater)
		c.emitOp(chunk.OpNot)
	case token.Plus:
		c.emitOp(chunk.OpAdd)
	case token.Minus:
		c.emitOp(chunk.OpSubtract)
	case token.Star:
		c.emitOp(chunk.OpMultiply)
	case token.Slash:
		c.emitOp(chunk.OpDivide)
	}
}

func and_(c *Compiler, _ bool) {
	endJump := c.emitJump(chunk.OpJumpIfFalse)
	c.emitOp(chunk.OpPop)
	c.parsePrecedence(precAnd)
	c.patchJump(endJump)
}

func or_(c *Compiler, _ bool) {
	elseJump := c.emitJump(chunk.OpJumpIfFalse)
	endJump := c.emitJump(chunk.OpJump)
	c.patchJump(elseJump)
	c.emitOp(chunk.OpPop)
	c.parsePrecedence(precOr)
	c.patchJump(endJump)
}

func call(c *Compiler, _ bool) {
	argCount := c.argumentList()
	c.emitOpByte(chunk.OpCall, argCount)
}

func dot(c *Compiler, canAssign bool) {
	c.ps.consume(token.Identifier, "Expect property name after '.'.")
	name := c.identifierConstant(c.ps.prevTok)

	switch {
	case canAssign && c.ps.match(token.Equal):
		c.expression()
		c.emitOpByte(chunk.OpSetProperty, name)
	case c.ps.match(token.LeftParen):
		argCount := c.argumentList()
		c.emitOpByte(chunk.OpInvoke, name)
		c.emitByte(argCount)
	default:
		c.emitOpByte(chunk.OpGetProperty, name)
	}
}

func namedVariable(c *Compiler, name token.Token, canAssign bool) {
	var getOp, setOp chunk.OpCode
	arg := c.resolveLocal(name)
	if arg != -1 {
		getOp, setOp = chunk.OpGetLocal, chunk.OpSetLocal
	} else if up := c.resolveUpvalue(name); up != -1 {
		arg = up
		getOp, setOp = chunk.OpGetUpvalue, chunk.OpSetUpvalue
	} else {
		arg = int(c.identifierConstant(name))
		getOp, setOp = chunk.OpGetGlobal, chunk.OpSetGlobal
	}

	if canAssign && c.ps.match(token.Equal) {
		c.expression()
		c.emitOpByte(setOp, byte(arg))
	} else {
		c.emitOpByte(getOp, byte(arg))
	}
}

func variable(c *Compiler, canAssign bool) {
	namedVariable(c, c.ps.prevTok, canAssign)
}

func this_(c *Compiler, _ bool) {
	if c.ps.currentClass == nil {
		c.ps.errorAtPrevious("Can't use 'this' outside of a class.")
		return
	}
	namedVariable(c, c.ps.prevTok, false)
}

func super_(c *Compiler, _ bool) {
	switch {
	case c.ps.currentClass == nil:
		c.ps.errorAtPrevious("Can't use 'super' outside of a class.")
	case !c.ps.currentClass.hasSuperclass:
		c.ps.errorAtPrevious("Can't use 'super' in a class with no superclass.")
	}

	c.ps.consume(token.Dot, "Expect '.' after 'super'.")
	c.ps.consume(token.Identifier, "Expect superclass method name.")
	name := c.identifierConstant(c.ps.prevTok)

	namedVariable(c, syntheticToken("this"), false)
	if c.ps.match(token.LeftParen) {
		argCount := c.argumentList()
		namedVariable(c, syntheticToken("super"), false)
		c.emitOpByte(chunk.OpSuperInvoke, name)
		c.emitByte(argCount)
	} else {
		namedVariable(c, syntheticToken("super"), false)
		c.emitOpByte(chunk.OpGetSuper, name)
	}
}
