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
	"fmt"
	"strconv"
	"strings"

	"github.com/crestflow/crestflow/common"
	"github.com/pkg/errors"
)

// renderScript substitutes every {{root.name}} placeholder in a code's script
// before it is uploaded. Three roots exist: calc (label, uuid, then the
// calcjob's parameters), code (label) and client (label, machine_name,
// work_dir). Whitespace inside the braces is ignored. Unresolvable
// placeholders fail the render; rendering happens before any remote call so
// a bad script never leaves a half-built job directory behind.
func renderScript(script string, client *common.Client, code *common.Code, calc *common.CalcJob) (string, error) {
	var out strings.Builder
	rest := script
	for {
		i := strings.Index(rest, "{{")
		if i < 0 {
			out.WriteString(rest)
			return out.String(), nil
		}
		out.WriteString(rest[:i])
		rest = rest[i+2:]
		j := strings.Index(rest, "}}")
		if j < 0 {
			return "", errors.New("script has an unterminated {{ placeholder")
		}
		token := strings.TrimSpace(rest[:j])
		rest = rest[j+2:]
		value, err := resolveToken(token, client, code, calc)
		if err != nil {
			return "", err
		}
		out.WriteString(value)
	}
}

func resolveToken(token string, client *common.Client, code *common.Code, calc *common.CalcJob) (string, error) {
	root, name, ok := strings.Cut(token, ".")
	if !ok {
		return "", &templateError{msg: fmt.Sprintf("placeholder %q must look like root.name", token)}
	}
	switch root {
	case "calc":
		switch name {
		case "label":
			return calc.Label, nil
		case "uuid":
			return calc.UUID, nil
		}
		value, ok := calc.Parameters[name]
		if !ok {
			return "", &templateError{msg: fmt.Sprintf("calcjob %q has no parameter %q", calc.Label, name)}
		}
		return scalarString(name, value)
	case "code":
		if name == "label" {
			return code.Label, nil
		}
		return "", &templateError{msg: fmt.Sprintf("code exposes no field %q", name)}
	case "client":
		switch name {
		case "label":
			return client.Label, nil
		case "machine_name":
			return client.MachineName, nil
		case "work_dir":
			return client.WorkDir, nil
		}
		return "", &templateError{msg: fmt.Sprintf("client exposes no field %q", name)}
	default:
		return "", &templateError{msg: fmt.Sprintf("unknown placeholder root %q", root)}
	}
}

// scalarString renders a parameter value. Parameters come out of the store as
// decoded JSON, so numbers arrive as float64; integral floats must not grow a
// trailing ".0" on their way into a shell script.
func scalarString(name string, value interface{}) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case bool:
		return strconv.FormatBool(v), nil
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64), nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	default:
		return "", &templateError{msg: fmt.Sprintf("parameter %q is %T, not a renderable scalar", name, value)}
	}
}
