// Copyright © 2024 Crestflow <dev@crestflow.io>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package filter

import (
	"fmt"
	"strconv"
	"strings"
)

type tokenKind uint8

const (
	tokEOF tokenKind = iota
	tokIdent
	tokString
	tokInt
	tokFloat
	tokOp
	tokKeyword
	tokLParen
	tokRParen
	tokComma
	tokDot
)

type token struct {
	kind tokenKind
	text string // identifier (downcased), keyword (uppercased), operator or literal text
	ival int64
	fval float64
	col  int // 1-based position in the filter string
}

var keywords = map[string]bool{
	"AND": true, "OR": true, "IN": true, "NOT": true, "LIKE": true,
	"TRUE": true, "FALSE": true,
}

func lexError(raw string, col int, msg string) *Error {
	return newError(raw, "", fmt.Sprintf("Invalid SQL at column %d (%s): %q", col, msg, raw))
}

func lex(raw string) ([]token, *Error) {
	var toks []token
	i := 0
	for i < len(raw) {
		start := i
		c := raw[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '(':
			toks = append(toks, token{kind: tokLParen, text: "(", col: start + 1})
			i++
		case c == ')':
			toks = append(toks, token{kind: tokRParen, text: ")", col: start + 1})
			i++
		case c == ',':
			toks = append(toks, token{kind: tokComma, text: ",", col: start + 1})
			i++
		case c == '.':
			toks = append(toks, token{kind: tokDot, text: ".", col: start + 1})
			i++
		case c == '\'':
			text, next, ok := scanQuoted(raw, i, '\'')
			if !ok {
				return nil, lexError(raw, start+1, "unterminated string literal")
			}
			toks = append(toks, token{kind: tokString, text: text, col: start + 1})
			i = next
		case c == '"':
			text, next, ok := scanQuoted(raw, i, '"')
			if !ok {
				return nil, lexError(raw, start+1, "unterminated quoted identifier")
			}
			toks = append(toks, token{kind: tokIdent, text: text, col: start + 1})
			i = next
		case c == '=' || c == '!' || c == '<' || c == '>':
			op := string(c)
			if i+1 < len(raw) && (raw[i+1] == '=' || (c == '<' && raw[i+1] == '>')) {
				op += string(raw[i+1])
			}
			if op == "!" {
				return nil, lexError(raw, start+1, "expected != ")
			}
			toks = append(toks, token{kind: tokOp, text: op, col: start + 1})
			i += len(op)
		case c >= '0' && c <= '9' || (c == '-' && i+1 < len(raw) && raw[i+1] >= '0' && raw[i+1] <= '9'):
			tok, next, err := scanNumber(raw, i)
			if err != nil {
				return nil, err
			}
			toks = append(toks, tok)
			i = next
		case c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z':
			j := i + 1
			for j < len(raw) && (raw[j] == '_' || raw[j] >= 'a' && raw[j] <= 'z' || raw[j] >= 'A' && raw[j] <= 'Z' || raw[j] >= '0' && raw[j] <= '9') {
				j++
			}
			word := raw[i:j]
			upper := strings.ToUpper(word)
			if keywords[upper] {
				toks = append(toks, token{kind: tokKeyword, text: upper, col: start + 1})
			} else {
				toks = append(toks, token{kind: tokIdent, text: strings.ToLower(word), col: start + 1})
			}
			i = j
		default:
			return nil, lexError(raw, start+1, fmt.Sprintf("unexpected character %q", string(c)))
		}
	}
	toks = append(toks, token{kind: tokEOF, col: len(raw) + 1})
	return toks, nil
}

// scanQuoted reads a quote-delimited token starting at raw[i]; a doubled
// quote is an escaped quote.
func scanQuoted(raw string, i int, quote byte) (text string, next int, ok bool) {
	var sb strings.Builder
	j := i + 1
	for j < len(raw) {
		if raw[j] == quote {
			if j+1 < len(raw) && raw[j+1] == quote {
				sb.WriteByte(quote)
				j += 2
				continue
			}
			return sb.String(), j + 1, true
		}
		sb.WriteByte(raw[j])
		j++
	}
	return "", 0, false
}

func scanNumber(raw string, i int) (token, int, *Error) {
	j := i
	if raw[j] == '-' {
		j++
	}
	isFloat := false
	for j < len(raw) {
		c := raw[j]
		if c >= '0' && c <= '9' {
			j++
		} else if c == '.' || c == 'e' || c == 'E' {
			isFloat = true
			j++
			if j < len(raw) && (raw[j] == '+' || raw[j] == '-') && (raw[j-1] == 'e' || raw[j-1] == 'E') {
				j++
			}
		} else {
			break
		}
	}
	text := raw[i:j]
	if isFloat {
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return token{}, 0, lexError(raw, i+1, fmt.Sprintf("bad number %q", text))
		}
		return token{kind: tokFloat, text: text, fval: f, col: i + 1}, j, nil
	}
	n, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return token{}, 0, lexError(raw, i+1, fmt.Sprintf("bad number %q", text))
	}
	return token{kind: tokInt, text: text, ival: n, col: i + 1}, j, nil
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

type parser struct {
	raw  string
	toks []token
	pos  int
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

// Parse turns a filter string into a Filter. An empty string, and a filter
// that is just a bare column name, both mean "no restriction" and return nil.
func Parse(raw string) (*Filter, error) {
	toks, lerr := lex(raw)
	if lerr != nil {
		return nil, lerr
	}
	if toks[0].kind == tokEOF {
		return nil, nil
	}
	if toks[0].kind == tokIdent && toks[1].kind == tokEOF {
		return nil, nil
	}

	p := &parser{raw: raw, toks: toks}
	f := &Filter{Raw: raw}
	for {
		cond, err := p.parseCondition()
		if err != nil {
			return nil, err
		}
		f.Conds = append(f.Conds, cond)

		t := p.next()
		if t.kind == tokEOF {
			return f, nil
		}
		if t.kind == tokKeyword && t.text == "AND" {
			f.Joins = append(f.Joins, EJoin.And())
			continue
		}
		if t.kind == tokKeyword && t.text == "OR" {
			f.Joins = append(f.Joins, EJoin.Or())
			continue
		}
		return nil, newError(raw, fmt.Sprintf("Unknown operator: %s", t.text), "")
	}
}

func (p *parser) parseCondition() (Condition, error) {
	left := p.next()
	switch left.kind {
	case tokIdent:
		// fall through to operator
	case tokEOF:
		return Condition{}, newError(p.raw, "", "unexpected end of filter, expected a condition")
	default:
		return Condition{}, newError(p.raw, "Left comparators must be columns",
			fmt.Sprintf("got %q at column %d", left.text, left.col))
	}
	if p.peek().kind == tokDot {
		// Filters see a single entity; cross-table paths have nowhere to join to.
		return Condition{}, newError(p.raw, fmt.Sprintf("Unknown table: %s", left.text), "")
	}

	op, err := p.parseOp()
	if err != nil {
		return Condition{}, err
	}

	var value interface{}
	if op.TakesList() {
		value, err = p.parseList()
	} else {
		value, err = p.parseLiteral()
	}
	if err != nil {
		return Condition{}, err
	}
	return Condition{Column: left.text, Op: op, Value: value}, nil
}

func (p *parser) parseOp() (Op, error) {
	t := p.next()
	switch t.kind {
	case tokOp:
		switch t.text {
		case "==":
			return EOp.Eq(), nil
		case "!=":
			return EOp.Ne(), nil
		case ">":
			return EOp.Gt(), nil
		case ">=":
			return EOp.Ge(), nil
		case "<":
			return EOp.Lt(), nil
		case "<=":
			return EOp.Le(), nil
		}
		// "=" and "<>" lex fine but are not part of the accepted dialect
		return 0, newError(p.raw, fmt.Sprintf("Unknown comparator: %s", t.text), "")
	case tokKeyword:
		switch t.text {
		case "IN":
			return EOp.In(), nil
		case "LIKE":
			return EOp.Like(), nil
		case "NOT":
			n := p.next()
			if n.kind == tokKeyword && n.text == "IN" {
				return EOp.NotIn(), nil
			}
			if n.kind == tokKeyword && n.text == "LIKE" {
				return EOp.NotLike(), nil
			}
			return 0, newError(p.raw, fmt.Sprintf("Unknown comparator: NOT %s", n.text), "")
		}
	}
	return 0, newError(p.raw, fmt.Sprintf("Unknown comparator: %s", t.text), "")
}

func (p *parser) parseList() (interface{}, error) {
	if t := p.next(); t.kind != tokLParen {
		return nil, newError(p.raw, "", fmt.Sprintf("expected ( at column %d", t.col))
	}
	var vals []interface{}
	for {
		v, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		vals = append(vals, v)
		t := p.next()
		if t.kind == tokComma {
			continue
		}
		if t.kind == tokRParen {
			return vals, nil
		}
		return nil, newError(p.raw, "", fmt.Sprintf("expected , or ) at column %d", t.col))
	}
}

func (p *parser) parseLiteral() (interface{}, error) {
	t := p.next()
	switch t.kind {
	case tokString:
		return t.text, nil
	case tokInt:
		return t.ival, nil
	case tokFloat:
		return t.fval, nil
	case tokKeyword:
		if t.text == "TRUE" {
			return int64(1), nil
		}
		if t.text == "FALSE" {
			return int64(0), nil
		}
	case tokIdent:
		return nil, newError(p.raw, "unknown right comparison",
			fmt.Sprintf("got a column %q for right comparison", t.text))
	}
	return nil, newError(p.raw, "", fmt.Sprintf("expected a literal value at column %d", t.col))
}
