package expr

import (
	"fmt"
	"strconv"
	"strings"
)

type TokenType int

const (
	TokenEOF TokenType = iota
	TokenNumber
	TokenString
	TokenIdentifier
	TokenTrue
	TokenFalse
	TokenNull
	TokenUndefined
	TokenOperator
	TokenDot
	TokenComma
	TokenColon
	TokenLeftParen
	TokenRightParen
	TokenLeftBracket
	TokenRightBracket
	TokenLeftBrace
	TokenRightBrace
)

func (t TokenType) String() string {
	switch t {
	case TokenEOF:
		return "end of expression"
	case TokenNumber:
		return "number"
	case TokenString:
		return "string"
	case TokenIdentifier:
		return "identifier"
	case TokenOperator:
		return "operator"
	default:
		return "punctuation"
	}
}

type Token struct {
	Type    TokenType
	Value   string
	Pos     int
	Literal any
}

var keywords = map[string]TokenType{
	"true":      TokenTrue,
	"false":     TokenFalse,
	"null":      TokenNull,
	"undefined": TokenUndefined,
}

var punctuation = map[byte]TokenType{
	'.': TokenDot, ',': TokenComma, ':': TokenColon,
	'(': TokenLeftParen, ')': TokenRightParen,
	'[': TokenLeftBracket, ']': TokenRightBracket,
	'{': TokenLeftBrace, '}': TokenRightBrace,
}

// Operators ordered longest first so that "===" wins over "==".
var operators = []string{
	"===", "!==", "==", "!=", "<=", ">=", "&&", "||",
	"<", ">", "!", "+", "-", "*", "/", "%",
}

type Lexer struct {
	input   string
	pos     int
	readPos int
	ch      byte
}

func NewLexer(input string) *Lexer {
	l := &Lexer{input: input}
	l.readChar()
	return l
}

func (l *Lexer) readChar() {
	if l.readPos >= len(l.input) {
		l.ch = 0
	} else {
		l.ch = l.input[l.readPos]
	}
	l.pos = l.readPos
	l.readPos++
}

func (l *Lexer) skipWhitespace() {
	for l.ch == ' ' || l.ch == '\t' || l.ch == '\n' || l.ch == '\r' {
		l.readChar()
	}
}

// Tokenize consumes the whole input. The final token is always TokenEOF.
func (l *Lexer) Tokenize() ([]Token, error) {
	var tokens []Token
	for {
		tok, err := l.NextToken()
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
		if tok.Type == TokenEOF {
			return tokens, nil
		}
	}
}

func (l *Lexer) NextToken() (Token, error) {
	l.skipWhitespace()
	start := l.pos

	switch {
	case l.ch == 0 && l.pos >= len(l.input):
		return Token{Type: TokenEOF, Pos: start}, nil
	case l.ch == '\'' || l.ch == '"':
		return l.readString()
	case isDigit(l.ch) || (l.ch == '.' && isDigit(l.peekChar())):
		return l.readNumber()
	case isIdentStart(l.ch):
		for isIdentPart(l.ch) {
			l.readChar()
		}
		word := l.input[start:l.pos]
		if kw, ok := keywords[word]; ok {
			return Token{Type: kw, Value: word, Pos: start}, nil
		}
		return Token{Type: TokenIdentifier, Value: word, Pos: start}, nil
	}

	if tt, ok := punctuation[l.ch]; ok {
		tok := Token{Type: tt, Value: string(l.ch), Pos: start}
		l.readChar()
		return tok, nil
	}

	rest := l.input[l.pos:]
	for _, op := range operators {
		if strings.HasPrefix(rest, op) {
			for range op {
				l.readChar()
			}
			return Token{Type: TokenOperator, Value: op, Pos: start}, nil
		}
	}

	return Token{}, fmt.Errorf("unexpected character %q at position %d", l.ch, start)
}

func (l *Lexer) peekChar() byte {
	if l.readPos >= len(l.input) {
		return 0
	}
	return l.input[l.readPos]
}

func (l *Lexer) readString() (Token, error) {
	start := l.pos
	quote := l.ch
	l.readChar()

	var sb strings.Builder
	for {
		switch {
		case l.pos >= len(l.input):
			return Token{}, fmt.Errorf("unterminated string starting at position %d", start)
		case l.ch == quote:
			l.readChar()
			s := sb.String()
			return Token{Type: TokenString, Value: s, Pos: start, Literal: s}, nil
		case l.ch == '\\':
			l.readChar()
			switch l.ch {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case 'r':
				sb.WriteByte('\r')
			default:
				sb.WriteByte(l.ch)
			}
			l.readChar()
		default:
			sb.WriteByte(l.ch)
			l.readChar()
		}
	}
}

func (l *Lexer) readNumber() (Token, error) {
	start := l.pos
	for isDigit(l.ch) || l.ch == '.' {
		l.readChar()
	}
	if l.ch == 'e' || l.ch == 'E' {
		l.readChar()
		if l.ch == '+' || l.ch == '-' {
			l.readChar()
		}
		for isDigit(l.ch) {
			l.readChar()
		}
	}
	text := l.input[start:l.pos]
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return Token{}, fmt.Errorf("invalid number %q at position %d", text, start)
	}
	return Token{Type: TokenNumber, Value: text, Pos: start, Literal: f}, nil
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func isIdentStart(ch byte) bool {
	return ch == '_' || ch == '$' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func isIdentPart(ch byte) bool {
	return isIdentStart(ch) || isDigit(ch)
}
