package expr

import (
	"fmt"
	"strconv"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokIdent
	tokPlus
	tokMinus
	tokStar
	tokSlash
	tokPercent
	tokLParen
	tokRParen
	tokLBracket
	tokRBracket
	tokComma
	tokQuestion
	tokColon
	tokLT
	tokGT
	tokLE
	tokGE
	tokEQ
	tokNE
	tokAnd
	tokOr
	tokNot
)

type token struct {
	kind  tokenKind
	text  string
	value float64 // set for tokNumber
	pos   int
}

// lexer tokenizes a substituted expression. The character whitelist has
// already run, so any rune reaching here is from the allowed set.
type lexer struct {
	input string
	pos   int
}

func (l *lexer) next() (token, error) {
	l.skipSpace()

	if l.pos >= len(l.input) {
		return token{kind: tokEOF, pos: l.pos}, nil
	}

	start := l.pos
	c := l.input[l.pos]

	switch {
	case c >= '0' && c <= '9' || c == '.':
		return l.lexNumber(start)
	case isLetter(c):
		return l.lexIdent(start)
	}

	l.pos++
	switch c {
	case '+':
		return token{kind: tokPlus, text: "+", pos: start}, nil
	case '-':
		return token{kind: tokMinus, text: "-", pos: start}, nil
	case '*':
		return token{kind: tokStar, text: "*", pos: start}, nil
	case '/':
		return token{kind: tokSlash, text: "/", pos: start}, nil
	case '%':
		return token{kind: tokPercent, text: "%", pos: start}, nil
	case '(':
		return token{kind: tokLParen, text: "(", pos: start}, nil
	case ')':
		return token{kind: tokRParen, text: ")", pos: start}, nil
	case '[':
		return token{kind: tokLBracket, text: "[", pos: start}, nil
	case ']':
		return token{kind: tokRBracket, text: "]", pos: start}, nil
	case ',':
		return token{kind: tokComma, text: ",", pos: start}, nil
	case '?':
		return token{kind: tokQuestion, text: "?", pos: start}, nil
	case ':':
		return token{kind: tokColon, text: ":", pos: start}, nil
	case '<':
		if l.peek() == '=' {
			l.pos++
			return token{kind: tokLE, text: "<=", pos: start}, nil
		}
		return token{kind: tokLT, text: "<", pos: start}, nil
	case '>':
		if l.peek() == '=' {
			l.pos++
			return token{kind: tokGE, text: ">=", pos: start}, nil
		}
		return token{kind: tokGT, text: ">", pos: start}, nil
	case '=':
		if l.peek() == '=' {
			l.pos++
			return token{kind: tokEQ, text: "==", pos: start}, nil
		}
		return token{}, fmt.Errorf("%w: assignment is not supported (offset %d)", ErrInvalidExpression, start)
	case '!':
		if l.peek() == '=' {
			l.pos++
			return token{kind: tokNE, text: "!=", pos: start}, nil
		}
		return token{kind: tokNot, text: "!", pos: start}, nil
	case '&':
		if l.peek() == '&' {
			l.pos++
			return token{kind: tokAnd, text: "&&", pos: start}, nil
		}
		return token{}, fmt.Errorf("%w: bitwise operators are not supported (offset %d)", ErrInvalidExpression, start)
	case '|':
		if l.peek() == '|' {
			l.pos++
			return token{kind: tokOr, text: "||", pos: start}, nil
		}
		return token{}, fmt.Errorf("%w: bitwise operators are not supported (offset %d)", ErrInvalidExpression, start)
	}

	return token{}, fmt.Errorf("%w: unexpected character %q at offset %d", ErrInvalidExpression, c, start)
}

func (l *lexer) lexNumber(start int) (token, error) {
	sawDigit := false
	sawDot := false
	for l.pos < len(l.input) {
		c := l.input[l.pos]
		if c >= '0' && c <= '9' {
			sawDigit = true
			l.pos++
			continue
		}
		if c == '.' {
			if sawDot {
				return token{}, fmt.Errorf("%w: malformed number at offset %d", ErrInvalidExpression, start)
			}
			sawDot = true
			l.pos++
			continue
		}
		break
	}

	text := l.input[start:l.pos]
	if !sawDigit {
		return token{}, fmt.Errorf("%w: malformed number %q at offset %d", ErrInvalidExpression, text, start)
	}

	value, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return token{}, fmt.Errorf("%w: malformed number %q at offset %d", ErrInvalidExpression, text, start)
	}

	return token{kind: tokNumber, text: text, value: value, pos: start}, nil
}

func (l *lexer) lexIdent(start int) (token, error) {
	for l.pos < len(l.input) && isLetter(l.input[l.pos]) {
		l.pos++
	}
	return token{kind: tokIdent, text: l.input[start:l.pos], pos: start}, nil
}

func (l *lexer) skipSpace() {
	for l.pos < len(l.input) {
		switch l.input[l.pos] {
		case ' ', '\t', '\n', '\r':
			l.pos++
		default:
			return
		}
	}
}

func (l *lexer) peek() byte {
	if l.pos < len(l.input) {
		return l.input[l.pos]
	}
	return 0
}

func isLetter(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}
