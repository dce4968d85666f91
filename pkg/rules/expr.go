// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package rules implements routing rule conditions and the first-match
// routing engine.
//
// Conditions are boolean expressions over message fields:
//
//	{MSH-9.1} = "ADT" AND ({PID-3.4} IN ("MRN", "EID") OR NOT {PV1-2} StartsWith "I")
//
// Field references in braces resolve through the HL7 path grammar.
// Comparison operators are =, !=, <, >, <=, >=; ordering compares
// numerically when both operands parse as numbers and as strings
// otherwise. String operators Contains, StartsWith, and EndsWith are
// case sensitive. OR binds loosest, then AND, then NOT. Parsed
// expressions are cached by source text.
package rules

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"github.com/teradata-labs/li/pkg/lierr"
)

// FieldResolver supplies field values to condition evaluation.
type FieldResolver interface {
	GetField(path, def string) string
}

// Expr is a compiled condition.
type Expr interface {
	Eval(r FieldResolver) (bool, error)
}

var (
	exprCacheMu sync.RWMutex
	exprCache   = map[string]Expr{}
)

// Compile parses a condition, returning a cached expression when the
// exact source text was compiled before. An empty condition always
// evaluates true.
func Compile(condition string) (Expr, error) {
	if strings.TrimSpace(condition) == "" {
		return literalExpr(true), nil
	}

	exprCacheMu.RLock()
	cached, ok := exprCache[condition]
	exprCacheMu.RUnlock()
	if ok {
		return cached, nil
	}

	toks, err := tokenize(condition)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	e, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if !p.eof() {
		return nil, lierr.Configf("condition: unexpected %q", p.peek().text)
	}

	exprCacheMu.Lock()
	exprCache[condition] = e
	exprCacheMu.Unlock()
	return e, nil
}

type literalExpr bool

func (l literalExpr) Eval(FieldResolver) (bool, error) { return bool(l), nil }

type orExpr struct{ left, right Expr }

func (e orExpr) Eval(r FieldResolver) (bool, error) {
	ok, err := e.left.Eval(r)
	if err != nil || ok {
		return ok, err
	}
	return e.right.Eval(r)
}

type andExpr struct{ left, right Expr }

func (e andExpr) Eval(r FieldResolver) (bool, error) {
	ok, err := e.left.Eval(r)
	if err != nil || !ok {
		return ok, err
	}
	return e.right.Eval(r)
}

type notExpr struct{ inner Expr }

func (e notExpr) Eval(r FieldResolver) (bool, error) {
	ok, err := e.inner.Eval(r)
	return !ok, err
}

// operand is a field reference or a literal.
type operand struct {
	field   string // HL7 path, set for {SEG-F} references
	literal string
}

func (o operand) value(r FieldResolver) string {
	if o.field != "" {
		return r.GetField(o.field, "")
	}
	return o.literal
}

type compareExpr struct {
	left  operand
	op    string
	right operand
}

func (e compareExpr) Eval(r FieldResolver) (bool, error) {
	l, rv := e.left.value(r), e.right.value(r)
	switch e.op {
	case "=":
		return l == rv, nil
	case "!=":
		return l != rv, nil
	case "<", ">", "<=", ">=":
		return ordered(l, rv, e.op), nil
	case "Contains":
		return strings.Contains(l, rv), nil
	case "StartsWith":
		return strings.HasPrefix(l, rv), nil
	case "EndsWith":
		return strings.HasSuffix(l, rv), nil
	}
	return false, lierr.Configf("condition: unknown operator %q", e.op)
}

// ordered compares numerically when both sides parse as numbers,
// lexicographically otherwise.
func ordered(l, r, op string) bool {
	lf, lerr := strconv.ParseFloat(l, 64)
	rf, rerr := strconv.ParseFloat(r, 64)
	var cmp int
	if lerr == nil && rerr == nil {
		switch {
		case lf < rf:
			cmp = -1
		case lf > rf:
			cmp = 1
		}
	} else {
		cmp = strings.Compare(l, r)
	}
	switch op {
	case "<":
		return cmp < 0
	case ">":
		return cmp > 0
	case "<=":
		return cmp <= 0
	default:
		return cmp >= 0
	}
}

type inExpr struct {
	left   operand
	values []operand
}

func (e inExpr) Eval(r FieldResolver) (bool, error) {
	l := e.left.value(r)
	for _, v := range e.values {
		if l == v.value(r) {
			return true, nil
		}
	}
	return false, nil
}

// Tokens.

type tokenKind int

const (
	tokField tokenKind = iota
	tokString
	tokNumber
	tokIdent
	tokOp
	tokLParen
	tokRParen
	tokComma
)

type token struct {
	kind tokenKind
	text string
}

func tokenize(s string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(s) {
		c := s[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '{':
			end := strings.IndexByte(s[i:], '}')
			if end < 0 {
				return nil, lierr.Configf("condition: unterminated field reference at %q", s[i:])
			}
			toks = append(toks, token{tokField, s[i+1 : i+end]})
			i += end + 1
		case c == '"' || c == '\'':
			end := strings.IndexByte(s[i+1:], c)
			if end < 0 {
				return nil, lierr.Configf("condition: unterminated string at %q", s[i:])
			}
			toks = append(toks, token{tokString, s[i+1 : i+1+end]})
			i += end + 2
		case c == '(':
			toks = append(toks, token{tokLParen, "("})
			i++
		case c == ')':
			toks = append(toks, token{tokRParen, ")"})
			i++
		case c == ',':
			toks = append(toks, token{tokComma, ","})
			i++
		case c == '=':
			toks = append(toks, token{tokOp, "="})
			i++
		case c == '!':
			if i+1 >= len(s) || s[i+1] != '=' {
				return nil, lierr.Configf("condition: unexpected '!' at %q", s[i:])
			}
			toks = append(toks, token{tokOp, "!="})
			i += 2
		case c == '<' || c == '>':
			op := string(c)
			i++
			if i < len(s) && s[i] == '=' {
				op += "="
				i++
			}
			toks = append(toks, token{tokOp, op})
		case c == '-' || c == '.' || unicode.IsDigit(rune(c)):
			start := i
			if s[i] == '-' {
				i++
			}
			if i < len(s) && s[i] == '.' {
				i++
			}
			// A sign or dot alone is not a number.
			if i >= len(s) || !unicode.IsDigit(rune(s[i])) {
				return nil, lierr.Configf("condition: malformed number at %q", s[start:])
			}
			for i < len(s) && (unicode.IsDigit(rune(s[i])) || s[i] == '.') {
				i++
			}
			toks = append(toks, token{tokNumber, s[start:i]})
		case unicode.IsLetter(rune(c)):
			start := i
			for i < len(s) && (unicode.IsLetter(rune(s[i])) || unicode.IsDigit(rune(s[i]))) {
				i++
			}
			toks = append(toks, token{tokIdent, s[start:i]})
		default:
			return nil, lierr.Configf("condition: unexpected character %q", string(c))
		}
	}
	return toks, nil
}

// Parser. OR is loosest, then AND, then NOT, then comparisons.

type parser struct {
	toks []token
	pos  int
}

func (p *parser) eof() bool   { return p.pos >= len(p.toks) }
func (p *parser) peek() token { return p.toks[p.pos] }
func (p *parser) next() token { t := p.toks[p.pos]; p.pos++; return t }

func (p *parser) accept(kind tokenKind, text string) bool {
	if p.eof() {
		return false
	}
	t := p.peek()
	if t.kind == kind && t.text == text {
		p.pos++
		return true
	}
	return false
}

func (p *parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.accept(tokIdent, "OR") {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = orExpr{left, right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.accept(tokIdent, "AND") {
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = andExpr{left, right}
	}
	return left, nil
}

func (p *parser) parseUnary() (Expr, error) {
	if p.accept(tokIdent, "NOT") {
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return notExpr{inner}, nil
	}
	if p.accept(tokLParen, "(") {
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if !p.accept(tokRParen, ")") {
			return nil, lierr.Configf("condition: missing ')'")
		}
		return inner, nil
	}
	return p.parseComparison()
}

func (p *parser) parseComparison() (Expr, error) {
	left, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	if p.eof() {
		return nil, lierr.Configf("condition: expected operator after operand")
	}

	t := p.next()
	switch {
	case t.kind == tokOp:
		right, err := p.parseOperand()
		if err != nil {
			return nil, err
		}
		return compareExpr{left, t.text, right}, nil

	case t.kind == tokIdent && (t.text == "Contains" || t.text == "StartsWith" || t.text == "EndsWith"):
		right, err := p.parseOperand()
		if err != nil {
			return nil, err
		}
		return compareExpr{left, t.text, right}, nil

	case t.kind == tokIdent && t.text == "IN":
		if !p.accept(tokLParen, "(") {
			return nil, lierr.Configf("condition: IN requires a parenthesised value list")
		}
		var values []operand
		for {
			v, err := p.parseOperand()
			if err != nil {
				return nil, err
			}
			values = append(values, v)
			if p.accept(tokComma, ",") {
				continue
			}
			break
		}
		if !p.accept(tokRParen, ")") {
			return nil, lierr.Configf("condition: IN list missing ')'")
		}
		return inExpr{left, values}, nil
	}
	return nil, fmt.Errorf("%w: condition: unexpected %q", lierr.ErrConfiguration, t.text)
}

func (p *parser) parseOperand() (operand, error) {
	if p.eof() {
		return operand{}, lierr.Configf("condition: expected operand")
	}
	t := p.next()
	switch t.kind {
	case tokField:
		return operand{field: t.text}, nil
	case tokString, tokNumber:
		return operand{literal: t.text}, nil
	}
	return operand{}, fmt.Errorf("%w: condition: expected field, string, or number, got %q", lierr.ErrConfiguration, t.text)
}
