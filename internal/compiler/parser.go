package compiler

import (
	"fmt"

	"github.com/clarete/golox/internal/heap"
	"github.com/clarete/golox/internal/loxerr"
	"github.com/clarete/golox/internal/loxlog"
	"github.com/clarete/golox/internal/scanner"
	"github.com/clarete/golox/internal/token"
	"github.com/clarete/golox/internal/value"
)

// state is the single-pass parser's shared state: the token stream,
// the panic/error flags, and the class-compiler stack. It is threaded
// through every nested Compiler via the ps field rather than kept in
// a package-level global, so that the package supports (in principle)
// more than one concurrent compilation.
type state struct {
	scanner *scanner.Scanner

	curTok, prevTok token.Token

	hadError  bool
	panicMode bool
	firstErr  *loxerr.CompileError

	heap   *heap.Heap
	logger *loxlog.Logger

	activeCompiler *Compiler
	currentClass   *classCompiler
}

// MarkRoots implements heap.RootMarker: while compilation is in
// progress, every Function still under construction -- the active
// compiler and everything it encloses -- must survive any collection
// triggered mid-compile by string interning or constant-pool growth.
func (ps *state) MarkRoots(mark func(value.Value)) {
	for c := ps.activeCompiler; c != nil; c = c.enclosing {
		if c.function != nil {
			mark(value.Obj(c.function))
		}
	}
}

func (ps *state) advance() {
	ps.prevTok = ps.curTok
	for {
		ps.curTok = ps.scanner.Next()
		if ps.curTok.Kind != token.Error {
			break
		}
		ps.errorAt(ps.curTok, ps.curTok.Lexeme)
	}
}

func (ps *state) consume(kind token.Kind, message string) {
	if ps.curTok.Kind == kind {
		ps.advance()
		return
	}
	ps.errorAt(ps.curTok, message)
}

func (ps *state) check(kind token.Kind) bool {
	return ps.curTok.Kind == kind
}

func (ps *state) match(kind token.Kind) bool {
	if !ps.check(kind) {
		return false
	}
	ps.advance()
	return true
}

// errorAt reports message at tok, suppressing every subsequent call
// until synchronize() clears panic mode -- only the first error in a
// run is surfaced as the compile's returned error, later ones are
// only logged at debug level rather than dropped outright.
func (ps *state) errorAt(tok token.Token, message string) {
	if ps.panicMode {
		return
	}
	ps.panicMode = true
	ps.hadError = true

	var where string
	switch {
	case tok.Kind == token.EOF:
		where = "at end"
	case tok.Kind == token.Error:
		where = ""
	default:
		where = fmt.Sprintf("at '%s'", tok.Lexeme)
	}

	ce := &loxerr.CompileError{Line: tok.Line, Where: where, Message: message}
	if ps.firstErr == nil {
		ps.firstErr = ce
	} else if ps.logger != nil {
		ps.logger.Debugf("suppressed: %s", ce.Error())
	}
}

func (ps *state) errorAtCurrent(message string)  { ps.errorAt(ps.curTok, message) }
func (ps *state) errorAtPrevious(message string) { ps.errorAt(ps.prevTok, message) }

// synchronize discards tokens until it passes a semicolon or finds a
// statement-starter keyword current, then clears panic mode so
// subsequent errors are surfaced again.
func (ps *state) synchronize() {
	ps.panicMode = false

	for ps.curTok.Kind != token.EOF {
		if ps.prevTok.Kind == token.Semicolon {
			return
		}
		switch ps.curTok.Kind {
		case token.Class, token.Fun, token.Var, token.For, token.If, token.While, token.Print, token.Return:
			return
		}
		ps.advance()
	}
}

// syntheticToken builds an identifier token not backed by any source
// position, used to emit implicit "this"/"super" lookups.
func syntheticToken(lexeme string) token.Token {
	return token.Token{Kind: token.Identifier, Lexeme: lexeme, Line: -1}
}
