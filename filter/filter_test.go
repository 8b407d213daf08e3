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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEmptyAndBareColumnMeanEverything(t *testing.T) {
	a := assert.New(t)

	for _, raw := range []string{"", "   ", "label"} {
		f, err := Parse(raw)
		a.NoError(err, raw)
		a.Nil(f, raw)
	}
}

func TestParseSingleComparisons(t *testing.T) {
	a := assert.New(t)

	cases := []struct {
		raw   string
		op    Op
		value interface{}
	}{
		{`label == 'alpha'`, EOp.Eq(), "alpha"},
		{`label != 'alpha'`, EOp.Ne(), "alpha"},
		{`pk > 5`, EOp.Gt(), int64(5)},
		{`pk >= 5`, EOp.Ge(), int64(5)},
		{`pk < -2`, EOp.Lt(), int64(-2)},
		{`pk <= 5`, EOp.Le(), int64(5)},
		{`cutoff >= 12.5`, EOp.Ge(), 12.5},
		{`label LIKE 'al%'`, EOp.Like(), "al%"},
		{`label NOT LIKE 'al%'`, EOp.NotLike(), "al%"},
		{`archived == TRUE`, EOp.Eq(), int64(1)},
		{`archived == FALSE`, EOp.Eq(), int64(0)},
	}
	for _, tc := range cases {
		f, err := Parse(tc.raw)
		require.NoError(t, err, tc.raw)
		require.Len(t, f.Conds, 1, tc.raw)
		a.Equal(tc.op, f.Conds[0].Op, tc.raw)
		a.Equal(tc.value, f.Conds[0].Value, tc.raw)
	}
}

func TestParseChainsRecordJoins(t *testing.T) {
	a := assert.New(t)

	f, err := Parse(`state != 'playing' OR pk < 3 AND label LIKE 'a%'`)
	require.NoError(t, err)
	require.Len(t, f.Conds, 3)
	a.Equal([]Join{EJoin.Or(), EJoin.And()}, f.Joins)
	a.Equal("state", f.Conds[0].Column)
	a.Equal("pk", f.Conds[1].Column)
	a.Equal("label", f.Conds[2].Column)
}

func TestParseInLists(t *testing.T) {
	a := assert.New(t)

	f, err := Parse(`pk IN (1, 2, 3)`)
	require.NoError(t, err)
	a.Equal(EOp.In(), f.Conds[0].Op)
	a.Equal([]interface{}{int64(1), int64(2), int64(3)}, f.Conds[0].Value)

	f, err = Parse(`label NOT IN ('a', 'b')`)
	require.NoError(t, err)
	a.Equal(EOp.NotIn(), f.Conds[0].Op)
	a.Equal([]interface{}{"a", "b"}, f.Conds[0].Value)
}

func TestParseQuotingAndCase(t *testing.T) {
	a := assert.New(t)

	// doubled quotes escape, bare identifiers fold to lower case, quoted
	// identifiers keep their spelling, keywords fold to upper
	f, err := Parse(`"label" == 'it''s' and PK > 1`)
	require.NoError(t, err)
	require.Len(t, f.Conds, 2)
	a.Equal("label", f.Conds[0].Column)
	a.Equal("it's", f.Conds[0].Value)
	a.Equal("pk", f.Conds[1].Column)
	a.Equal([]Join{EJoin.And()}, f.Joins)
}

func TestParseErrors(t *testing.T) {
	a := assert.New(t)

	cases := []struct {
		raw  string
		user string // expected prefix of the user-facing message
	}{
		{`label = 'a'`, "Unknown comparator: ="},
		{`label <> 'a'`, "Unknown comparator: <>"},
		{`label HAS 'a'`, "Unknown comparator: has"},
		{`label NOT BETWEEN 'a'`, "Unknown comparator: NOT between"},
		{`process.label == 'a'`, "Unknown table: process"},
		{`5 == 5`, "Left comparators must be columns"},
		{`label == pk`, "unknown right comparison"},
		{`label == 'a' 'b'`, "Unknown operator: b"},
		{`label == 'a`, "Could not be read"},
		{`label ==`, "Could not be read"},
		{`pk IN ()`, "Could not be read"},
	}
	for _, tc := range cases {
		f, err := Parse(tc.raw)
		require.Error(t, err, tc.raw)
		a.Nil(f, tc.raw)
		ferr, ok := err.(*Error)
		require.True(t, ok, tc.raw)
		a.Equal(tc.user, ferr.User, tc.raw)
		a.Equal(tc.raw, ferr.FilterString, tc.raw)
	}
}

func TestToSQLParameterizesAndGroupsLeftToRight(t *testing.T) {
	a := assert.New(t)
	cols := Columns{"label": "label", "pk": "pk", "state": "state"}

	f, err := Parse(`state == 'playing' OR pk > 3 AND label LIKE 'a%'`)
	require.NoError(t, err)

	clause, args, err := f.ToSQL(cols)
	a.NoError(err)
	a.Equal("((state = ?) OR pk > ?) AND label LIKE ?", clause)
	a.Equal([]interface{}{"playing", int64(3), "a%"}, args)
}

func TestToSQLExpandsLists(t *testing.T) {
	a := assert.New(t)
	cols := Columns{"pk": "pk"}

	f, err := Parse(`pk IN (1, 2, 3)`)
	require.NoError(t, err)

	clause, args, err := f.ToSQL(cols)
	a.NoError(err)
	a.Equal("pk IN (?, ?, ?)", clause)
	a.Equal([]interface{}{int64(1), int64(2), int64(3)}, args)
}

func TestToSQLMapsPublicNamesToColumns(t *testing.T) {
	a := assert.New(t)

	clause, args, err := Where("id", EOp.Eq(), int64(7)).ToSQL(Columns{"id": "pk"})
	a.NoError(err)
	a.Equal("pk = ?", clause)
	a.Equal([]interface{}{int64(7)}, args)
}

func TestToSQLRejectsUnknownColumns(t *testing.T) {
	a := assert.New(t)

	f, err := Parse(`nope == 1`)
	require.NoError(t, err)

	_, _, err = f.ToSQL(Columns{"pk": "pk"})
	require.Error(t, err)
	ferr, ok := err.(*Error)
	require.True(t, ok)
	a.Equal("Unknown column: nope", ferr.User)
}

func TestToSQLNilFilterIsEmptyClause(t *testing.T) {
	a := assert.New(t)

	var f *Filter
	clause, args, err := f.ToSQL(Columns{"pk": "pk"})
	a.NoError(err)
	a.Empty(clause)
	a.Nil(args)
}

func TestWhereAndBuilders(t *testing.T) {
	a := assert.New(t)

	f := Where("state", EOp.Eq(), "playing").And("pk", EOp.Gt(), int64(10))
	clause, args, err := f.ToSQL(Columns{"state": "state", "pk": "pk"})
	a.NoError(err)
	a.Equal("(state = ?) AND pk > ?", clause)
	a.Equal([]interface{}{"playing", int64(10)}, args)
}
