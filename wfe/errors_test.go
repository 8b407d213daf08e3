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
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/crestflow/crestflow/fcrest"
)

func TestExceptionStringClassifiesByKind(t *testing.T) {
	a := assert.New(t)

	a.Equal("RuntimeError: timeout waiting for calcjob to finish",
		exceptionString(&timeoutError{msg: "timeout waiting for calcjob to finish"}))

	a.Equal("IntegrityError: checksum mismatch",
		exceptionString(&integrityError{msg: "checksum mismatch"}))

	a.Equal("KeyError: no parameter \"x\"",
		exceptionString(&templateError{msg: `no parameter "x"`}))

	a.Equal("RuntimeError: something broke",
		exceptionString(errors.New("something broke")))
}

func TestExceptionStringSeesThroughWrapping(t *testing.T) {
	a := assert.New(t)

	status := &fcrest.StatusError{Endpoint: "/compute/jobs/path", Status: 500, Message: "scheduler down"}
	wrapped := errors.Wrap(status, "submit run1")
	a.Equal("HTTPError", exceptionKind(wrapped))
	a.Equal("HTTPError: submit run1: /compute/jobs/path answered HTTP 500: scheduler down",
		exceptionString(wrapped))

	timeout := errors.Wrap(&timeoutError{msg: "timeout waiting for object transfer"}, "upload in.bin")
	a.Equal("RuntimeError", exceptionKind(timeout))
}
