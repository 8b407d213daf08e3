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
	"os"
	"strconv"
)

type EnvironmentVariable struct {
	Name         string
	DefaultValue string
	Description  string
}

// This array needs to be updated when a new public environment variable is added
var VisibleEnvironmentVariables = []EnvironmentVariable{
	EEnvironmentVariable.LogLocation(),
	EEnvironmentVariable.PollInterval(),
	EEnvironmentVariable.LocalTesting(),
}

var EEnvironmentVariable = EnvironmentVariable{}

func (EnvironmentVariable) LogLocation() EnvironmentVariable {
	return EnvironmentVariable{
		Name:        "CRESTFLOW_LOG_LOCATION",
		Description: "Overrides where run log files are stored, to avoid filling up a disk.",
	}
}

func (EnvironmentVariable) PollInterval() EnvironmentVariable {
	return EnvironmentVariable{
		Name:         "CRESTFLOW_POLL_INTERVAL",
		DefaultValue: "1s",
		Description:  "Overrides how often the scheduler and transfer tasks are polled. Accepts a Go duration string.",
	}
}

func (EnvironmentVariable) LocalTesting() EnvironmentVariable {
	return EnvironmentVariable{
		Name:        "CRESTFLOW_LOCAL_TESTING",
		Description: "If set to a truthy value, signed object-storage URLs handed out by the demo cluster are rewritten to localhost.",
	}
}

// GetEnvironmentVariable returns the value of the environment variable, or its
// default if unset.
func GetEnvironmentVariable(env EnvironmentVariable) string {
	value := os.Getenv(env.Name)
	if value == "" {
		return env.DefaultValue
	}
	return value
}

// GetEnvironmentVariableAsBool parses the variable as a boolean, treating an
// unset or unparsable value as false.
func GetEnvironmentVariableAsBool(env EnvironmentVariable) bool {
	b, err := strconv.ParseBool(GetEnvironmentVariable(env))
	return err == nil && b
}
