// Package token defines the lexeme kinds produced by the scanner and
// consumed by the compiler.
package token

// Kind identifies the lexical category of a Token.
type Kind int

const (
	// single-character tokens
	LeftParen Kind = iota
	RightParen
	LeftBrace
	RightBrace
	Comma
	Dot
	Minus
	Plus
	Semicolon
	Slash
	Star

	// one or two character tokens
	Bang
	BangEqual
	Equal
	EqualEqual
	Greater
	GreaterEqual
	Less
	LessEqual

	// literals
	Identifier
	String
	Number

	// keywords
	And
	Class
	Else
	False
	For
	Fun
	If
	Nil
	Or
	Print
	Return
	Super
	This
	True
	Var
	While

	Error
	EOF
)

var names = map[Kind]string{
	LeftParen: "(", RightParen: ")", LeftBrace: "{", RightBrace: "}",
	Comma: ",", Dot: ".", Minus: "-", Plus: "+", Semicolon: ";", Slash: "/", Star: "*",
	Bang: "!", BangEqual: "!=", Equal: "=", EqualEqual: "==",
	Greater: ">", GreaterEqual: ">=", Less: "<", LessEqual: "<=",
	Identifier: "IDENTIFIER", String: "STRING", Number: "NUMBER",
	And: "and", Class: "class", Else: "else", False: "false", For: "for",
	Fun: "fun", If: "if", Nil: "nil", Or: "or", Print: "print", Return: "return",
	Super: "super", This: "this", True: "true", Var: "var", While: "while",
	Error: "ERROR", EOF: "EOF",
}

func (k Kind) String() string {
	if s, ok := names[k]; ok {
		return s
	}
	return "UNKNOWN"
}

// Keywords maps every reserved word to its token kind. Any identifier
// run not present here is a plain IDENTIFIER.
var Keywords = map[string]Kind{
	"and": And, "class": Class, "else": Else, "false": False, "for": For,
	"fun": Fun, "if": If, "nil": Nil, "or": Or, "print": Print, "return": Return,
	"super": Super, "this": This, "true": True, "var": Var, "while": While,
}

// Token is a lexeme: its kind, the slice of source text it spans, and
// the 1-based source line the scanner was on when the lexeme ended (for
// a string spanning newlines, its last line). Lexeme aliases the source
// string -- Go string headers are already (pointer, length) views, so
// no copy happens on slicing.
type Token struct {
	Kind   Kind
	Lexeme string
	Line   int
}
