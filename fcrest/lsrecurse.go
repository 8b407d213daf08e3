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

package fcrest

import (
	"context"
	"path"

	"github.com/pkg/errors"
)

// ErrTooManyCalls aborts a recursive listing that would exceed its API call
// budget. Each directory visited costs one call.
var ErrTooManyCalls = errors.New("too many API calls, aborting")

// LsRecurseOptions bounds a recursive listing. Zero values mean unbounded,
// except MaxCalls which defaults to 100 so a runaway tree cannot hammer the
// facade by accident.
type LsRecurseOptions struct {
	ShowHidden bool
	MaxCalls   int
	MaxDepth   int
}

// LsRecurseRecord is one entry of a recursive listing: the plain ls record
// plus where it sits. Depth 1 means a direct child of the listed root.
type LsRecurseRecord struct {
	LsRecord
	Path  string
	Depth int
}

// LsRecurse walks a remote directory tree depth-first with plain ls calls.
// The budget is checked before every call, so a hit on MaxCalls returns
// ErrTooManyCalls with whatever was collected discarded. Symlinked
// directories are recorded but not followed.
func (c *Client) LsRecurse(ctx context.Context, root string, opts LsRecurseOptions) ([]LsRecurseRecord, error) {
	if opts.MaxCalls == 0 {
		opts.MaxCalls = 100
	}

	type frame struct {
		path  string
		depth int
	}
	var records []LsRecurseRecord
	calls := 0
	stack := []frame{{root, 1}}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if calls >= opts.MaxCalls {
			return nil, ErrTooManyCalls
		}
		calls++
		entries, err := c.ListFiles(ctx, top.path, opts.ShowHidden)
		if err != nil {
			return nil, err
		}
		for _, entry := range entries {
			rec := LsRecurseRecord{
				LsRecord: entry,
				Path:     path.Join(top.path, entry.Name),
				Depth:    top.depth,
			}
			records = append(records, rec)
			deeper := opts.MaxDepth == 0 || top.depth < opts.MaxDepth
			if entry.Type == "d" && deeper {
				stack = append(stack, frame{rec.Path, top.depth + 1})
			}
		}
	}
	return records, nil
}
