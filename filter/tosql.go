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
	"strings"
)

// Columns is the whitelist of filterable names for one table, mapping each
// public name to the SQL column it compiles to.
type Columns map[string]string

func (o Op) sql() string {
	switch o {
	case EOp.Eq():
		return "="
	case EOp.Ne():
		return "!="
	case EOp.Gt():
		return ">"
	case EOp.Ge():
		return ">="
	case EOp.Lt():
		return "<"
	case EOp.Le():
		return "<="
	case EOp.In():
		return "IN"
	case EOp.NotIn():
		return "NOT IN"
	case EOp.Like():
		return "LIKE"
	case EOp.NotLike():
		return "NOT LIKE"
	}
	return ""
}

func (j Join) sql() string {
	if j == EJoin.Or() {
		return "OR"
	}
	return "AND"
}

// ToSQL renders the filter as a parameterized boolean expression plus its
// argument list. Conditions chain left to right, so earlier conditions are
// parenthesized as a group before each join. A nil filter compiles to the
// empty clause.
func (f *Filter) ToSQL(cols Columns) (string, []interface{}, error) {
	if f == nil || len(f.Conds) == 0 {
		return "", nil, nil
	}
	var clause string
	var args []interface{}
	for i, cond := range f.Conds {
		col, ok := cols[cond.Column]
		if !ok {
			return "", nil, newError(f.Raw,
				fmt.Sprintf("Unknown column: %s", cond.Column),
				fmt.Sprintf("column %q is not filterable on this table", cond.Column))
		}
		var frag string
		if cond.Op.TakesList() {
			vals, ok := cond.Value.([]interface{})
			if !ok || len(vals) == 0 {
				return "", nil, newError(f.Raw, "",
					fmt.Sprintf("operator %s requires a non-empty value list", cond.Op.sql()))
			}
			frag = col + " " + cond.Op.sql() + " (?" + strings.Repeat(", ?", len(vals)-1) + ")"
			args = append(args, vals...)
		} else {
			frag = col + " " + cond.Op.sql() + " ?"
			args = append(args, cond.Value)
		}
		if i == 0 {
			clause = frag
		} else {
			clause = "(" + clause + ") " + f.Joins[i-1].sql() + " " + frag
		}
	}
	return clause, args, nil
}
