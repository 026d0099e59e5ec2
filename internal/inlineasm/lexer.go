// Completion: 100% - Inline assembly lexer complete
package inlineasm

import (
	"fmt"
)

// TokenType is the kind of an inline assembly token
type TokenType int

const (
	TOKEN_EOF TokenType = iota
	TOKEN_IDENT
	TOKEN_NUMBER
	TOKEN_DOLLAR    // $
	TOKEN_COLON     // :
	TOKEN_COMMA     // ,
	TOKEN_SEMICOLON // ;
	TOKEN_LBRACKET  // [
	TOKEN_RBRACKET  // ]
	TOKEN_LBRACE    // {
	TOKEN_RBRACE    // }
	TOKEN_PLUS      // +
	TOKEN_MINUS     // -
	TOKEN_ILLEGAL
)

var tokenNames = map[TokenType]string{
	TOKEN_EOF:       "end of input",
	TOKEN_IDENT:     "identifier",
	TOKEN_NUMBER:    "number",
	TOKEN_DOLLAR:    "'$'",
	TOKEN_COLON:     "':'",
	TOKEN_COMMA:     "','",
	TOKEN_SEMICOLON: "';'",
	TOKEN_LBRACKET:  "'['",
	TOKEN_RBRACKET:  "']'",
	TOKEN_LBRACE:    "'{'",
	TOKEN_RBRACE:    "'}'",
	TOKEN_PLUS:      "'+'",
	TOKEN_MINUS:     "'-'",
	TOKEN_ILLEGAL:   "illegal character",
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("token(%d)", int(t))
}

// Token is a lexeme with its position (1-indexed)
type Token struct {
	Type   TokenType
	Value  string
	Line   int
	Column int
}

func (t Token) String() string {
	switch t.Type {
	case TOKEN_IDENT, TOKEN_NUMBER, TOKEN_ILLEGAL:
		return fmt.Sprintf("'%s'", t.Value)
	}
	return t.Type.String()
}

// Lexer splits an inline assembly block into tokens
type Lexer struct {
	input     string
	pos       int
	line      int
	lineStart int
}

// NewLexer creates a lexer for the given block text
func NewLexer(input string) *Lexer {
	return &Lexer{input: input, line: 1}
}

func isIdentStart(ch byte) bool {
	return ch == '_' || ch == '.' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func isIdentChar(ch byte) bool {
	return isIdentStart(ch) || (ch >= '0' && ch <= '9')
}

func isNumberChar(ch byte) bool {
	return ch == '_' || (ch >= '0' && ch <= '9') || (ch >= 'a' && ch <= 'f') || (ch >= 'A' && ch <= 'F') || ch == 'x' || ch == 'X'
}

// skipSpace skips whitespace, newlines and comments (# or //)
func (l *Lexer) skipSpace() {
	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		switch {
		case ch == '\n':
			l.pos++
			l.line++
			l.lineStart = l.pos
		case ch == ' ' || ch == '\t' || ch == '\r':
			l.pos++
		case ch == '#' || (ch == '/' && l.pos+1 < len(l.input) && l.input[l.pos+1] == '/'):
			for l.pos < len(l.input) && l.input[l.pos] != '\n' {
				l.pos++
			}
		default:
			return
		}
	}
}

// NextToken returns the next token, TOKEN_EOF at the end of input
func (l *Lexer) NextToken() Token {
	l.skipSpace()
	tok := Token{Line: l.line, Column: l.pos - l.lineStart + 1}
	if l.pos >= len(l.input) {
		tok.Type = TOKEN_EOF
		return tok
	}
	ch := l.input[l.pos]

	switch {
	case isIdentStart(ch):
		start := l.pos
		for l.pos < len(l.input) && isIdentChar(l.input[l.pos]) {
			l.pos++
		}
		tok.Type, tok.Value = TOKEN_IDENT, l.input[start:l.pos]
		return tok
	case ch >= '0' && ch <= '9':
		start := l.pos
		for l.pos < len(l.input) && isNumberChar(l.input[l.pos]) {
			l.pos++
		}
		tok.Type, tok.Value = TOKEN_NUMBER, l.input[start:l.pos]
		return tok
	}

	l.pos++
	tok.Value = string(ch)
	switch ch {
	case '$':
		tok.Type = TOKEN_DOLLAR
	case ':':
		tok.Type = TOKEN_COLON
	case ',':
		tok.Type = TOKEN_COMMA
	case ';':
		tok.Type = TOKEN_SEMICOLON
	case '[':
		tok.Type = TOKEN_LBRACKET
	case ']':
		tok.Type = TOKEN_RBRACKET
	case '{':
		tok.Type = TOKEN_LBRACE
	case '}':
		tok.Type = TOKEN_RBRACE
	case '+':
		tok.Type = TOKEN_PLUS
	case '-':
		tok.Type = TOKEN_MINUS
	default:
		tok.Type = TOKEN_ILLEGAL
	}
	return tok
}
