package expr

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
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
	tokCaret
	tokLParen
	tokRParen
	tokComma
)

type token struct {
	kind  tokenKind
	text  string
	value float64 // numbers only
}

type lexer struct {
	src string
	pos int
}

func newLexer(src string) *lexer {
	return &lexer{src: src}
}

// Engineering suffixes understood in numeric literals. "meg" must be
// matched before the single-letter "m".
var suffixes = []struct {
	text   string
	factor float64
}{
	{"meg", 1e6},
	{"t", 1e12},
	{"g", 1e9},
	{"k", 1e3},
	{"m", 1e-3},
	{"u", 1e-6},
	{"n", 1e-9},
	{"p", 1e-12},
	{"f", 1e-15},
}

func (l *lexer) scan() (token, error) {
	for l.pos < len(l.src) && isSpace(l.src[l.pos]) {
		l.pos++
	}
	if l.pos >= len(l.src) {
		return token{kind: tokEOF, text: "end of expression"}, nil
	}

	c := l.src[l.pos]
	switch c {
	case '+':
		l.pos++
		return token{kind: tokPlus, text: "+"}, nil
	case '-':
		l.pos++
		return token{kind: tokMinus, text: "-"}, nil
	case '*':
		l.pos++
		return token{kind: tokStar, text: "*"}, nil
	case '/':
		l.pos++
		return token{kind: tokSlash, text: "/"}, nil
	case '^':
		l.pos++
		return token{kind: tokCaret, text: "^"}, nil
	case '(':
		l.pos++
		return token{kind: tokLParen, text: "("}, nil
	case ')':
		l.pos++
		return token{kind: tokRParen, text: ")"}, nil
	case ',':
		l.pos++
		return token{kind: tokComma, text: ","}, nil
	}

	if isDigit(c) || c == '.' {
		return l.scanNumber()
	}
	if isIdentStart(c) {
		return l.scanIdent(), nil
	}
	return token{}, errors.Errorf("unexpected character %q", string(c))
}

func (l *lexer) scanNumber() (token, error) {
	start := l.pos
	seenDot := false
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		if isDigit(c) {
			l.pos++
			continue
		}
		if c == '.' && !seenDot {
			seenDot = true
			l.pos++
			continue
		}
		break
	}

	// Exponent part.
	if l.pos < len(l.src) && (l.src[l.pos] == 'e' || l.src[l.pos] == 'E') {
		save := l.pos
		l.pos++
		if l.pos < len(l.src) && (l.src[l.pos] == '+' || l.src[l.pos] == '-') {
			l.pos++
		}
		if l.pos < len(l.src) && isDigit(l.src[l.pos]) {
			for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
				l.pos++
			}
		} else {
			l.pos = save // "e" belongs to a suffix or trailing unit, not an exponent
		}
	}

	mantissa := l.src[start:l.pos]
	value, err := strconv.ParseFloat(mantissa, 64)
	if err != nil {
		return token{}, errors.Wrapf(err, "bad number %q", mantissa)
	}

	// Engineering suffix plus any trailing unit letters, e.g. "100nS".
	tailStart := l.pos
	for l.pos < len(l.src) && isIdentChar(l.src[l.pos]) {
		l.pos++
	}
	tail := strings.ToLower(l.src[tailStart:l.pos])
	for _, s := range suffixes {
		if strings.HasPrefix(tail, s.text) {
			value *= s.factor
			break
		}
	}

	return token{kind: tokNumber, text: l.src[start:l.pos], value: value}, nil
}

func (l *lexer) scanIdent() token {
	start := l.pos
	for l.pos < len(l.src) && isIdentChar(l.src[l.pos]) {
		l.pos++
	}
	return token{kind: tokIdent, text: l.src[start:l.pos]}
}

func isSpace(c byte) bool { return c == ' ' || c == '\t' }

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isIdentStart(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_'
}

func isIdentChar(c byte) bool {
	return isIdentStart(c) || isDigit(c) || c == '.'
}
