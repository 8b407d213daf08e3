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

package store

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrNotFound is returned when a pk does not resolve to a row. Callers should
// test with errors.Is; the wrapped message names the table and pk.
var ErrNotFound = errors.New("row not found")

// ErrAlreadySaved is returned by SaveRow for rows that already carry a pk.
var ErrAlreadySaved = errors.New("row already saved")

// ErrFrozen is returned when a frozen snapshot is passed to SaveRow or
// UpdateRow. Clone the row first.
var ErrFrozen = errors.New("row is frozen")

// ValidationError reports input the store refuses to persist: bad shapes,
// dangling label references, keys missing from the object store. It is a user
// error, not a bug.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func validationf(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// UndeletableError is returned by DeleteRow when foreign keys still point at
// the row. The row is left untouched.
type UndeletableError struct {
	Table string
	Pk    int64
}

func (e *UndeletableError) Error() string {
	return fmt.Sprintf("%s(%d) is likely a dependency for other rows", e.Table, e.Pk)
}
