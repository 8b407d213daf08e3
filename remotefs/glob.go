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

package remotefs

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/crestflow/crestflow/common"
)

// Glob matches a relative pattern against the tree under root and returns
// the matches sorted by path. Plain segments use path.Match syntax; a `**`
// segment matches zero or more intermediate segments and, unlike some
// globbers, matches files as well as directories. Directory listings are
// cached for the duration of the walk, symlinks are reported when they match
// but never descended into, and the root itself is a legal match for
// patterns like `**`.
func Glob(ctx context.Context, root *Path, pattern string) ([]*Path, error) {
	segments, err := splitPattern(pattern)
	if err != nil {
		return nil, err
	}

	type state struct {
		p   *Path
		seg int
	}
	listings := map[string][]*Path{}
	listDir := func(p *Path) ([]*Path, error) {
		if children, ok := listings[p.String()]; ok {
			return children, nil
		}
		children, err := p.IterDir(ctx)
		if err != nil {
			return nil, err
		}
		listings[p.String()] = children
		return children, nil
	}
	// The root was handed to us as a directory; children learned their type
	// from the listing that found them.
	canDescend := func(p *Path) bool {
		return p == root || p.ftype == common.EFileType.Directory()
	}

	visited := map[string]bool{}
	matched := map[string]bool{}
	var matches []*Path
	stack := []state{{root, 0}}
	for len(stack) > 0 {
		s := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		key := fmt.Sprintf("%s\x00%d", s.p.String(), s.seg)
		if visited[key] {
			continue
		}
		visited[key] = true

		if s.seg == len(segments) {
			if !matched[s.p.String()] {
				matched[s.p.String()] = true
				matches = append(matches, s.p)
			}
			continue
		}

		seg := segments[s.seg]
		if seg == "**" {
			// Zero segments consumed: the current path may already satisfy
			// the rest of the pattern.
			stack = append(stack, state{s.p, s.seg + 1})
			if !canDescend(s.p) {
				continue
			}
			children, err := listDir(s.p)
			if err != nil {
				return nil, err
			}
			for _, c := range children {
				stack = append(stack, state{c, s.seg})
			}
			continue
		}

		if !canDescend(s.p) {
			continue
		}
		children, err := listDir(s.p)
		if err != nil {
			return nil, err
		}
		for _, c := range children {
			ok, err := path.Match(seg, c.Name())
			if err != nil {
				return nil, errors.Wrapf(err, "bad glob pattern %q", pattern)
			}
			if ok {
				stack = append(stack, state{c, s.seg + 1})
			}
		}
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].String() < matches[j].String() })
	return matches, nil
}

func splitPattern(pattern string) ([]string, error) {
	if pattern == "" {
		return nil, errors.New("empty glob pattern")
	}
	if strings.HasPrefix(pattern, "/") {
		return nil, errors.Errorf("glob pattern %q must be relative", pattern)
	}
	segments := strings.Split(pattern, "/")
	for _, seg := range segments {
		switch seg {
		case "":
			return nil, errors.Errorf("glob pattern %q has an empty segment", pattern)
		case ".", "..":
			return nil, errors.Errorf("glob pattern %q may not navigate with %s", pattern, seg)
		}
	}
	return segments, nil
}
