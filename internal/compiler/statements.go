package compiler

import (
	"github.com/clarete/golox/internal/chunk"
	"github.com/clarete/golox/internal/token"
	"github.com/clarete/golox/internal/value"
)

func block(c *Compiler) {
	for !c.ps.check(token.RightBrace) && !c.ps.check(token.EOF) {
		declaration(c)
	}
	c.ps.consume(token.RightBrace, "Expect '}' after block.")
}

// function compiles a function body (parameters plus block) into a
// brand new Compiler nested under c, emitting the resulting Function
// as a constant and wrapping it in a CLOSURE instruction back in c.
func function(c *Compiler, ft funcType) {
	fc := newCompiler(c.ps, c, ft, c.ps.prevTok.Lexeme)
	fc.beginScope()

	c.ps.consume(token.LeftParen, "Expect '(' after function name.")
	if !c.ps.check(token.RightParen) {
		for {
			fc.function.Arity++
			if fc.function.Arity > 255 {
				c.ps.errorAtCurrent("Can't have more than 255 parameters.")
			}
			constant := fc.parseVariable("Expect parameter name.")
			fc.defineVariable(constant)
			if !c.ps.match(token.Comma) {
				break
			}
		}
	}
	c.ps.consume(token.RightParen, "Expect ')' after parameters.")
	c.ps.consume(token.LeftBrace, "Expect '{' before function body.")
	block(fc)

	fn := fc.endCompiler()
	c.emitOpByte(chunk.OpClosure, c.makeConstant(value.Obj(fn)))

	for _, uv := range fc.upvalues {
		c.emitByte(boolByte(uv.isLocal))
		c.emitByte(uv.index)
	}
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

func method(c *Compiler) {
	c.ps.consume(token.Identifier, "Expect method name.")
	name := c.identifierConstant(c.ps.prevTok)

	ft := typeMethod
	if c.ps.prevTok.Lexeme == "init" {
		ft = typeInitializer
	}
	function(c, ft)
	c.emitOpByte(chunk.OpMethod, name)
}

func classDeclaration(c *Compiler) {
	c.ps.consume(token.Identifier, "Expect class name.")
	nameTok := c.ps.prevTok
	nameConstant := c.identifierConstant(nameTok)
	c.declareVariable()

	c.emitOpByte(chunk.OpClass, nameConstant)
	c.defineVariable(nameConstant)

	cc := &classCompiler{enclosing: c.ps.currentClass}
	c.ps.currentClass = cc

	if c.ps.match(token.Less) {
		c.ps.consume(token.Identifier, "Expect superclass name.")
		variable(c, false)
		if nameTok.Lexeme == c.ps.prevTok.Lexeme {
			c.ps.errorAtPrevious("A class can't inherit from itself.")
		}

		c.beginScope()
		c.addLocal(syntheticToken("super"))
		c.defineVariable(0)

		namedVariable(c, nameTok, false)
		c.emitOp(chunk.OpInherit)
		cc.hasSuperclass = true
	}

	namedVariable(c, nameTok, false)
	c.ps.consume(token.LeftBrace, "Expect '{' before class body.")
	for !c.ps.check(token.RightBrace) && !c.ps.check(token.EOF) {
		method(c)
	}
	c.ps.consume(token.RightBrace, "Expect '}' after class body.")
	c.emitOp(chunk.OpPop)

	if cc.hasSuperclass {
		c.endScope()
	}
	c.ps.currentClass = cc.enclosing
}

func funDeclaration(c *Compiler) {
	global := c.parseVariable("Expect function name.")
	c.markInitialized()
	function(c, typeFunction)
	c.defineVariable(global)
}

func varDeclaration(c *Compiler) {
	global := c.parseVariable("Expect variable name.")

	if c.ps.match(token.Equal) {
		c.expression()
	} else {
		c.emitOp(chunk.OpNil)
	}
	c.ps.consume(token.Semicolon, "Expect ';' after variable declaration.")
	c.defineVariable(global)
}

func expressionStatement(c *Compiler) {
	c.expression()
	c.ps.consume(token.Semicolon, "Expect ';' after expression.")
	c.emitOp(chunk.OpPop)
}

func printStatement(c *Compiler) {
	c.expression()
	c.ps.consume(token.Semicolon, "Expect ';' after value.")
	c.emitOp(chunk.OpPrint)
}

func returnStatement(c *Compiler) {
	if c.funcType == typeScript {
		c.ps.errorAtPrevious("Can't return from top-level code.")
	}

	if c.ps.match(token.Semicolon) {
		c.emitReturn()
		return
	}

	if c.funcType == typeInitializer {
		c.ps.errorAtPrevious("Can't return a value from an initializer.")
	}
	c.expression()
	c.ps.consume(token.Semicolon, "Expect ';' after return value.")
	c.emitOp(chunk.OpReturn)
}

func ifStatement(c *Compiler) {
	c.ps.consume(token.LeftParen, "Expect '(' after 'if'.")
	c.expression()
	c.ps.consume(token.RightParen, "Expect ')' after condition.")

	thenJump := c.emitJump(chunk.OpJumpIfFalse)
	c.emitOp(chunk.OpPop)
	statement(c)

	elseJump := c.emitJump(chunk.OpJump)
	c.patchJump(thenJump)
	c.emitOp(chunk.OpPop)

	if c.ps.match(token.Else) {
		statement(c)
	}
	c.patchJump(elseJump)
}

func whileStatement(c *Compiler) {
	loopStart := len(c.chunk().Code)
	c.ps.consume(token.LeftParen, "Expect '(' after 'while'.")
	c.expression()
	c.ps.consume(token.RightParen, "Expect ')' after condition.")

	exitJump := c.emitJump(chunk.OpJumpIfFalse)
	c.emitOp(chunk.OpPop)
	statement(c)
	c.emitLoop(loopStart)

	c.patchJump(exitJump)
	c.emitOp(chunk.OpPop)
}

func forStatement(c *Compiler) {
	c.beginScope()
	c.ps.consume(token.LeftParen, "Expect '(' after 'for'.")

	switch {
	case c.ps.match(token.Semicolon):
		// no initializer
	case c.ps.match(token.Var):
		varDeclaration(c)
	default:
		expressionStatement(c)
	}

	loopStart := len(c.chunk().Code)
	exitJump := -1
	if !c.ps.match(token.Semicolon) {
		c.expression()
		c.ps.consume(token.Semicolon, "Expect ';' after loop condition.")
		exitJump = c.emitJump(chunk.OpJumpIfFalse)
		c.emitOp(chunk.OpPop)
	}

	if !c.ps.match(token.RightParen) {
		bodyJump := c.emitJump(chunk.OpJump)
		incrementStart := len(c.chunk().Code)
		c.expression()
		c.emitOp(chunk.OpPop)
		c.ps.consume(token.RightParen, "Expect ')' after for clauses.")

		c.emitLoop(loopStart)
		loopStart = incrementStart
		c.patchJump(bodyJump)
	}

	statement(c)
	c.emitLoop(loopStart)

	if exitJump != -1 {
		c.patchJump(exitJump)
		c.emitOp(chunk.OpPop)
	}
	c.endScope()
}

func statement(c *Compiler) {
	switch {
	case c.ps.match(token.Print):
		printStatement(c)
	case c.ps.match(token.For):
		forStatement(c)
	case c.ps.match(token.If):
		ifStatement(c)
	case c.ps.match(token.Return):
		returnStatement(c)
	case c.ps.match(token.While):
		whileStatement(c)
	case c.ps.match(token.LeftBrace):
		c.beginScope()
		block(c)
		c.endScope()
	default:
		expressionStatement(c)
	}
}

func declaration(c *Compiler) {
	switch {
	case c.ps.match(token.Class):
		classDeclaration(c)
	case c.ps.match(token.Fun):
		funDeclaration(c)
	case c.ps.match(token.Var):
		varDeclaration(c)
	default:
		statement(c)
	}

	if c.ps.panicMode {
		c.ps.synchronize()
	}
}
