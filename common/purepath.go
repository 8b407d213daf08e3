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
	"fmt"
	"strings"
)

// PurePath is a path on a machine we never touch directly, so it must not go
// through the local filepath package. It renders with the separator of the
// machine's filesystem flavour and is never cleaned against a local cwd.
type PurePath struct {
	style    Filesystem
	volume   string // drive prefix such as "C:" on windows paths, "" otherwise
	absolute bool
	segments []string
}

// NewPurePath parses raw in the given flavour. Windows paths accept both
// separators; posix paths treat backslash as an ordinary character.
func NewPurePath(style Filesystem, raw string) PurePath {
	p := PurePath{style: style}
	if style == EFilesystem.Windows() {
		raw = strings.ReplaceAll(raw, "/", `\`)
		if len(raw) >= 2 && raw[1] == ':' {
			p.volume = raw[:2]
			raw = raw[2:]
		}
	}
	sep := p.separator()
	if strings.HasPrefix(raw, sep) {
		p.absolute = true
	}
	for _, seg := range strings.Split(raw, sep) {
		if seg != "" {
			p.segments = append(p.segments, seg)
		}
	}
	return p
}

func (p PurePath) separator() string {
	if p.style == EFilesystem.Windows() {
		return `\`
	}
	return "/"
}

func (p PurePath) Style() Filesystem { return p.style }

func (p PurePath) IsZero() bool {
	return p.volume == "" && !p.absolute && len(p.segments) == 0
}

// Join appends parts to the path. Parts may themselves contain forward
// slashes (relative posix form); they are split and re-joined in the path's
// own flavour.
func (p PurePath) Join(parts ...string) PurePath {
	out := p
	out.segments = append([]string(nil), p.segments...)
	for _, part := range parts {
		part = strings.ReplaceAll(part, `\`, "/")
		for _, seg := range strings.Split(part, "/") {
			if seg != "" {
				out.segments = append(out.segments, seg)
			}
		}
	}
	return out
}

// Parent drops the final segment. The parent of a root is the root itself.
func (p PurePath) Parent() PurePath {
	if len(p.segments) == 0 {
		return p
	}
	out := p
	out.segments = append([]string(nil), p.segments[:len(p.segments)-1]...)
	return out
}

// Name is the final segment, or "" for a root.
func (p PurePath) Name() string {
	if len(p.segments) == 0 {
		return ""
	}
	return p.segments[len(p.segments)-1]
}

// RelativeTo returns the posix-form relative path from base to p. Keys of
// upload and retrieval maps are exchanged in this form no matter the remote
// flavour.
func (p PurePath) RelativeTo(base PurePath) (string, error) {
	if p.volume != base.volume || p.absolute != base.absolute || len(p.segments) < len(base.segments) {
		return "", fmt.Errorf("%s is not below %s", p, base)
	}
	for i, seg := range base.segments {
		if p.segments[i] != seg {
			return "", fmt.Errorf("%s is not below %s", p, base)
		}
	}
	return strings.Join(p.segments[len(base.segments):], "/"), nil
}

func (p PurePath) String() string {
	sep := p.separator()
	out := p.volume
	if p.absolute {
		out += sep
	}
	return out + strings.Join(p.segments, sep)
}
