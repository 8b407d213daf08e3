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

package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStepRendersLowercase(t *testing.T) {
	a := assert.New(t)

	a.Equal("created", EStep.Created().String())
	a.Equal("finalised", EStep.Finalised().String())

	val, err := EStep.Retrieving().Value()
	a.NoError(err)
	a.Equal("retrieving", val)
}

func TestStepScanRoundTrip(t *testing.T) {
	a := assert.New(t)

	var s Step
	a.NoError(s.Scan("submitting"))
	a.Equal(EStep.Submitting(), s)

	a.NoError(s.Scan([]byte("running")))
	a.Equal(EStep.Running(), s)

	a.Error(s.Scan("launching"))
}

func TestStateParseIsCaseInsensitive(t *testing.T) {
	a := assert.New(t)

	var st State
	a.NoError(st.Parse("Excepted"))
	a.Equal(EState.Excepted(), st)
	a.Equal("excepted", st.String())

	a.Error(st.Parse("exploded"))
}

func TestStepJSONUsesNames(t *testing.T) {
	a := assert.New(t)

	b, err := EStep.Uploading().MarshalJSON()
	a.NoError(err)
	a.Equal(`"uploading"`, string(b))

	var s Step
	a.NoError(s.UnmarshalJSON([]byte(`"finalised"`)))
	a.Equal(EStep.Finalised(), s)
}

func TestLogLevelOrdering(t *testing.T) {
	a := assert.New(t)

	a.True(ELogLevel.Error() < ELogLevel.Warning())
	a.True(ELogLevel.Report() < ELogLevel.Info())
	a.Equal("REPORT", ELogLevel.Report().String())

	var ll LogLevel
	a.NoError(ll.Parse("debug"))
	a.Equal(ELogLevel.Debug(), ll)
}

func TestExitCodes(t *testing.T) {
	a := assert.New(t)

	a.EqualValues(0, EExitCode.Success())
	a.EqualValues(1, EExitCode.UserError())
	a.EqualValues(2, EExitCode.RemoteError())
	a.EqualValues(3, EExitCode.StorageError())
}
