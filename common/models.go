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
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/JeffreyRichter/enum/enum"
)

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

var EStep = Step(0)

// Step is the durable progress marker of a Process. It records the last
// transition that was persisted, so a restarted runner can pick a job up
// exactly where the previous run left off.
type Step uint8

func (Step) Created() Step    { return Step(0) }
func (Step) Uploading() Step  { return Step(1) }
func (Step) Submitting() Step { return Step(2) }
func (Step) Running() Step    { return Step(3) }
func (Step) Retrieving() Step { return Step(4) }
func (Step) Finalised() Step  { return Step(5) }

func (s Step) String() string {
	return strings.ToLower(enum.StringInt(s, reflect.TypeOf(s)))
}

func (s *Step) Parse(str string) error {
	val, err := enum.Parse(reflect.TypeOf(s), str, true)
	if err == nil {
		*s = val.(Step)
	}
	return err
}

// Value implements driver.Valuer so a Step is stored as its lowercase name.
func (s Step) Value() (driver.Value, error) {
	return s.String(), nil
}

// Scan implements sql.Scanner.
func (s *Step) Scan(src interface{}) error {
	str, ok := src.(string)
	if !ok {
		if b, isBytes := src.([]byte); isBytes {
			str = string(b)
		} else {
			return fmt.Errorf("cannot scan %T into Step", src)
		}
	}
	return s.Parse(str)
}

func (s Step) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Step) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return err
	}
	return s.Parse(str)
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

var EState = State(0)

// State is the lifecycle flag of a Process, orthogonal to Step: whether the
// job is eligible to advance (playing), parked (paused), done (finished) or
// stopped on a recorded error (excepted).
type State uint8

func (State) Playing() State  { return State(0) }
func (State) Paused() State   { return State(1) }
func (State) Finished() State { return State(2) }
func (State) Excepted() State { return State(3) }

func (st State) String() string {
	return strings.ToLower(enum.StringInt(st, reflect.TypeOf(st)))
}

func (st *State) Parse(s string) error {
	val, err := enum.Parse(reflect.TypeOf(st), s, true)
	if err == nil {
		*st = val.(State)
	}
	return err
}

func (st State) Value() (driver.Value, error) {
	return st.String(), nil
}

func (st *State) Scan(src interface{}) error {
	str, ok := src.(string)
	if !ok {
		if b, isBytes := src.([]byte); isBytes {
			str = string(b)
		} else {
			return fmt.Errorf("cannot scan %T into State", src)
		}
	}
	return st.Parse(str)
}

func (st State) MarshalJSON() ([]byte, error) {
	return json.Marshal(st.String())
}

func (st *State) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	return st.Parse(s)
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

var EFilesystem = Filesystem(0)

// Filesystem selects the path flavour of a remote machine.
type Filesystem uint8

func (Filesystem) Posix() Filesystem   { return Filesystem(0) }
func (Filesystem) Windows() Filesystem { return Filesystem(1) }

func (f Filesystem) String() string {
	return strings.ToLower(enum.StringInt(f, reflect.TypeOf(f)))
}

func (f *Filesystem) Parse(s string) error {
	val, err := enum.Parse(reflect.TypeOf(f), s, true)
	if err == nil {
		*f = val.(Filesystem)
	}
	return err
}

func (f Filesystem) Value() (driver.Value, error) {
	return f.String(), nil
}

func (f *Filesystem) Scan(src interface{}) error {
	str, ok := src.(string)
	if !ok {
		if b, isBytes := src.([]byte); isBytes {
			str = string(b)
		} else {
			return fmt.Errorf("cannot scan %T into Filesystem", src)
		}
	}
	return f.Parse(str)
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

var EExitCode = ExitCode(0)

// ExitCode is what the process exits with, so scripts can tell a bad
// invocation from a flaky cluster from a corrupted local store.
type ExitCode uint32

func (ExitCode) Success() ExitCode      { return ExitCode(0) }
func (ExitCode) UserError() ExitCode    { return ExitCode(1) } // validation failures, unknown rows, bad filter strings
func (ExitCode) RemoteError() ExitCode  { return ExitCode(2) } // transport or remote-scheduler failures
func (ExitCode) StorageError() ExitCode { return ExitCode(3) } // local storage integrity failures

func (ec ExitCode) String() string {
	return enum.StringInt(ec, reflect.TypeOf(ec))
}
