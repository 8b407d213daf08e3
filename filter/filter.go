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

// Package filter parses the WHERE-style strings accepted by listing commands
// into typed conditions, and compiles them to SQL against a caller-supplied
// column whitelist. Only flat chains of comparisons joined by AND/OR are
// accepted; joins, functions and sub-selects are not.
package filter

import (
	"fmt"
	"reflect"

	"github.com/JeffreyRichter/enum/enum"
)

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

var EOp = Op(0)

// Op is a comparison operator of one condition.
type Op uint8

func (Op) Eq() Op      { return Op(0) }
func (Op) Ne() Op      { return Op(1) }
func (Op) Gt() Op      { return Op(2) }
func (Op) Ge() Op      { return Op(3) }
func (Op) Lt() Op      { return Op(4) }
func (Op) Le() Op      { return Op(5) }
func (Op) In() Op      { return Op(6) }
func (Op) NotIn() Op   { return Op(7) }
func (Op) Like() Op    { return Op(8) }
func (Op) NotLike() Op { return Op(9) }

func (o Op) String() string {
	return enum.StringInt(o, reflect.TypeOf(o))
}

// TakesList reports whether the operator compares against a value list.
func (o Op) TakesList() bool {
	return o == EOp.In() || o == EOp.NotIn()
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

var EJoin = Join(0)

// Join connects two adjacent conditions. Chains associate left to right:
// "a OR b AND c" means "(a OR b) AND c".
type Join uint8

func (Join) And() Join { return Join(0) }
func (Join) Or() Join  { return Join(1) }

func (j Join) String() string {
	return enum.StringInt(j, reflect.TypeOf(j))
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

// Condition is one "column op value" leaf. Value is a string, int64, float64
// or, for IN / NOT IN, a []interface{} of those.
type Condition struct {
	Column string
	Op     Op
	Value  interface{}
}

// Filter is a parsed filter string. A nil Filter matches everything.
type Filter struct {
	Raw   string
	Conds []Condition
	Joins []Join // one fewer than Conds
}

// Where builds a single-condition filter programmatically, for callers that
// know their condition at compile time instead of parsing user text.
func Where(column string, op Op, value interface{}) *Filter {
	return &Filter{Conds: []Condition{{Column: column, Op: op, Value: value}}}
}

// And extends the filter with another AND-joined condition and returns it.
func (f *Filter) And(column string, op Op, value interface{}) *Filter {
	f.Conds = append(f.Conds, Condition{Column: column, Op: op, Value: value})
	f.Joins = append(f.Joins, EJoin.And())
	return f
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

// Error reports a filter string that could not be used. User carries the
// message meant for command output; Detail is for logs.
type Error struct {
	FilterString string
	User         string
	Detail       string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %q", e.User, e.FilterString)
}

func newError(raw, user, detail string) *Error {
	if user == "" {
		user = "Could not be read"
	}
	return &Error{FilterString: raw, User: user, Detail: detail}
}
