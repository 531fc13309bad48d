package xlog

import (
	"fmt"
	"strconv"
	"strings"
)

type LiteralKind int

const (
	LiteralInt LiteralKind = iota
	LiteralTuple
	LiteralList
	LiteralSet
)

// Literal is a parsed flag or set field. Only integers and (possibly nested)
// tuples, lists and sets of integers are accepted.
type Literal struct {
	Kind  LiteralKind
	Int   int64
	Items []Literal
}

// Value folds the literal to a single integer: an integer is itself, a
// container is the bitwise OR of its items.
func (l Literal) Value() int64 {
	if l.Kind == LiteralInt {
		return l.Int
	}
	var v int64
	for _, item := range l.Items {
		v |= item.Value()
	}
	return v
}

func (l Literal) String() string {
	if l.Kind == LiteralInt {
		return strconv.FormatInt(l.Int, 10)
	}
	parts := make([]string, len(l.Items))
	for i, item := range l.Items {
		parts[i] = item.String()
	}
	body := strings.Join(parts, ", ")
	switch l.Kind {
	case LiteralList:
		return "[" + body + "]"
	case LiteralSet:
		return "{" + body + "}"
	}
	if len(l.Items) == 1 {
		body += ","
	}
	return "(" + body + ")"
}

// ParseLiteral parses s without evaluating anything
func ParseLiteral(s string) (Literal, error) {
	p := &literalParser{src: s}
	p.skipSpace()
	lit, err := p.parseValue(0)
	if err != nil {
		return Literal{}, err
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return Literal{}, fmt.Errorf("unexpected %q at offset %d", p.src[p.pos:], p.pos)
	}
	return lit, nil
}

const maxLiteralDepth = 16

type literalParser struct {
	src string
	pos int
}

func (p *literalParser) skipSpace() {
	for p.pos < len(p.src) && (p.src[p.pos] == ' ' || p.src[p.pos] == '\t') {
		p.pos++
	}
}

func (p *literalParser) parseValue(depth int) (Literal, error) {
	if depth > maxLiteralDepth {
		return Literal{}, fmt.Errorf("literal nested too deeply")
	}
	if p.pos >= len(p.src) {
		return Literal{}, fmt.Errorf("unexpected end of literal")
	}
	switch p.src[p.pos] {
	case '(':
		return p.parseContainer(LiteralTuple, ')', depth)
	case '[':
		return p.parseContainer(LiteralList, ']', depth)
	case '{':
		return p.parseContainer(LiteralSet, '}', depth)
	}
	return p.parseInt()
}

func (p *literalParser) parseContainer(kind LiteralKind, closer byte, depth int) (Literal, error) {
	p.pos++ // opener
	lit := Literal{Kind: kind, Items: []Literal{}}
	trailingComma := false
	for {
		p.skipSpace()
		if p.pos >= len(p.src) {
			return Literal{}, fmt.Errorf("unterminated literal")
		}
		if p.src[p.pos] == closer {
			p.pos++
			break
		}
		item, err := p.parseValue(depth + 1)
		if err != nil {
			return Literal{}, err
		}
		lit.Items = append(lit.Items, item)
		trailingComma = false

		p.skipSpace()
		if p.pos < len(p.src) && p.src[p.pos] == ',' {
			p.pos++
			trailingComma = true
			continue
		}
		if p.pos < len(p.src) && p.src[p.pos] == closer {
			p.pos++
			break
		}
		return Literal{}, fmt.Errorf("expected ',' or %q at offset %d", closer, p.pos)
	}

	switch {
	case kind == LiteralSet && len(lit.Items) == 0:
		// {} is an empty mapping, not a set
		return Literal{}, fmt.Errorf("empty braces are not a set")
	case kind == LiteralTuple && len(lit.Items) == 1 && !trailingComma:
		// (x) is just a parenthesised x
		return lit.Items[0], nil
	}
	return lit, nil
}

func (p *literalParser) parseInt() (Literal, error) {
	start := p.pos
	if p.pos < len(p.src) && (p.src[p.pos] == '-' || p.src[p.pos] == '+') {
		p.pos++
	}
	for p.pos < len(p.src) && isIntByte(p.src[p.pos]) {
		p.pos++
	}
	tok := p.src[start:p.pos]
	n, err := ParseInt(tok)
	if err != nil {
		return Literal{}, err
	}
	return Literal{Kind: LiteralInt, Int: n}, nil
}

func isIntByte(b byte) bool {
	return b >= '0' && b <= '9' || b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b == '_'
}

// ParseInt accepts decimal and 0x/0o/0b prefixed integers with an optional
// sign. A decimal with a leading zero ("010") is read as decimal.
func ParseInt(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty integer")
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	body := strings.TrimLeft(s, "+-")
	if len(body) < 2 || body[0] != '0' || !strings.ContainsRune("xXoObB", rune(body[1])) {
		return 0, fmt.Errorf("invalid integer %q", s)
	}
	return strconv.ParseInt(s, 0, 64)
}
