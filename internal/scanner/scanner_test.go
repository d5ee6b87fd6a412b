package scanner_test

import (
	"testing"

	"github.com/clarete/golox/internal/scanner"
	"github.com/clarete/golox/internal/token"
	"github.com/stretchr/testify/assert"
)

func scanAll(source string) []token.Token {
	s := scanner.New(source)
	var toks []token.Token
	for {
		tok := s.Next()
		toks = append(toks, tok)
		if tok.Kind == token.EOF {
			return toks
		}
	}
}

func TestScanSimpleExpression(t *testing.T) {
	toks := scanAll("1 + 2")
	kinds := []token.Kind{}
	for _, tok := range toks {
		kinds = append(kinds, tok.Kind)
	}
	assert.Equal(t, []token.Kind{token.Number, token.Plus, token.Number, token.EOF}, kinds)
}

func TestScanKeywordsAndIdentifiers(t *testing.T) {
	toks := scanAll("var x = this")
	assert.Equal(t, token.Var, toks[0].Kind)
	assert.Equal(t, token.Identifier, toks[1].Kind)
	assert.Equal(t, "x", toks[1].Lexeme)
	assert.Equal(t, token.Equal, toks[2].Kind)
	assert.Equal(t, token.This, toks[3].Kind)
}

func TestScanString(t *testing.T) {
	toks := scanAll(`"hello world"`)
	assert.Equal(t, token.String, toks[0].Kind)
	assert.Equal(t, `"hello world"`, toks[0].Lexeme)
}

func TestScanUnterminatedString(t *testing.T) {
	toks := scanAll(`"hello`)
	assert.Equal(t, token.Error, toks[0].Kind)
	assert.Equal(t, "Unterminated string.", toks[0].Lexeme)
}

func TestScanCommentsAndWhitespace(t *testing.T) {
	toks := scanAll("// a comment\n123")
	assert.Equal(t, token.Number, toks[0].Kind)
	assert.Equal(t, 2, toks[0].Line)
}

func TestScanTwoCharOperators(t *testing.T) {
	toks := scanAll("!= == <= >=")
	kinds := []token.Kind{}
	for _, tok := range toks {
		kinds = append(kinds, tok.Kind)
	}
	assert.Equal(t, []token.Kind{
		token.BangEqual, token.EqualEqual, token.LessEqual, token.GreaterEqual, token.EOF,
	}, kinds)
}

func TestScanUnexpectedCharacter(t *testing.T) {
	toks := scanAll("@")
	assert.Equal(t, token.Error, toks[0].Kind)
	assert.Equal(t, "Unexpected character.", toks[0].Lexeme)
}
