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

package wfe

import (
	"github.com/crestflow/crestflow/fcrest"
	"github.com/pkg/errors"
)

// kinder is implemented by errors that want a specific kind prefix in a
// process's exception field. Anything else maps to RuntimeError, except
// facade status errors which read as HTTPError.
type kinder interface {
	exceptionKind() string
}

type timeoutError struct {
	msg string
}

func (e *timeoutError) Error() string         { return e.msg }
func (e *timeoutError) exceptionKind() string { return "RuntimeError" }

// integrityError reports a downloaded object whose content hash does not
// match the checksum the remote advertised for it.
type integrityError struct {
	msg string
}

func (e *integrityError) Error() string         { return e.msg }
func (e *integrityError) exceptionKind() string { return "IntegrityError" }

// templateError reports a script placeholder that cannot be resolved.
type templateError struct {
	msg string
}

func (e *templateError) Error() string         { return e.msg }
func (e *templateError) exceptionKind() string { return "KeyError" }

func exceptionKind(err error) string {
	var k kinder
	if errors.As(err, &k) {
		return k.exceptionKind()
	}
	var se *fcrest.StatusError
	if errors.As(err, &se) {
		return "HTTPError"
	}
	return "RuntimeError"
}

// exceptionString renders err the way it is persisted on an excepted
// process: "<Kind>: <message>".
func exceptionString(err error) string {
	return exceptionKind(err) + ": " + err.Error()
}
