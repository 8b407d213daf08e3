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
	"path"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/crestflow/crestflow/common"
	"github.com/crestflow/crestflow/fcrest"
)

type fakeNode struct {
	typ  string
	size int64
}

// fakeLister serves a canned tree and counts every facade round-trip.
type fakeLister struct {
	nodes     map[string]fakeNode
	statCalls map[string]int
	lsCalls   map[string]int
}

func newFakeLister() *fakeLister {
	return &fakeLister{
		nodes:     map[string]fakeNode{"/": {typ: "d"}},
		statCalls: map[string]int{},
		lsCalls:   map[string]int{},
	}
}

func (f *fakeLister) add(p, typ string, size int64) {
	p = path.Clean(p)
	for dir := path.Dir(p); dir != "/"; dir = path.Dir(dir) {
		if _, ok := f.nodes[dir]; !ok {
			f.nodes[dir] = fakeNode{typ: "d"}
		}
	}
	f.nodes[p] = fakeNode{typ: typ, size: size}
}

func (f *fakeLister) Stat(_ context.Context, p string) (fcrest.StatRecord, error) {
	p = path.Clean(p)
	f.statCalls[p]++
	n, ok := f.nodes[p]
	if !ok {
		return fcrest.StatRecord{}, &fcrest.StatusError{
			Endpoint: "/utilities/stat", Status: 400, Message: "no such path", NotFound: true,
		}
	}
	return fcrest.StatRecord{Size: n.size, Mode: 644}, nil
}

func (f *fakeLister) ListFiles(_ context.Context, p string, _ bool) ([]fcrest.LsRecord, error) {
	p = path.Clean(p)
	f.lsCalls[p]++
	n, ok := f.nodes[p]
	if !ok || n.typ != "d" {
		return nil, &fcrest.StatusError{
			Endpoint: "/utilities/ls", Status: 400, Message: "no such directory", NotFound: true,
		}
	}
	var records []fcrest.LsRecord
	for q, node := range f.nodes {
		if q != p && path.Dir(q) == p {
			records = append(records, fcrest.LsRecord{
				Name: path.Base(q),
				Type: node.typ,
				Size: node.size,
			})
		}
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Name < records[j].Name })
	return records, nil
}

func TestStatIsLazyAndCachedEitherWay(t *testing.T) {
	a := assert.New(t)
	fake := newFakeLister()
	fake.add("/wf/out.txt", "-", 11)
	ctx := context.Background()

	present := NewPath(fake, "/wf/out.txt")
	a.Zero(fake.statCalls["/wf/out.txt"]) // nothing fetched at construction

	size, err := present.Size(ctx)
	a.NoError(err)
	a.Equal(int64(11), size)
	exists, err := present.Exists(ctx)
	a.NoError(err)
	a.True(exists)
	_, _ = present.Size(ctx)
	a.Equal(1, fake.statCalls["/wf/out.txt"])

	missing := NewPath(fake, "/wf/ghost")
	exists, err = missing.Exists(ctx)
	a.NoError(err)
	a.False(exists)
	_, err = missing.Size(ctx)
	a.Error(err)
	a.True(fcrest.IsNotFound(err))
	exists, err = missing.Exists(ctx)
	a.NoError(err)
	a.False(exists)
	a.Equal(1, fake.statCalls["/wf/ghost"])
}

func TestHandBuiltPathCannotLearnItsType(t *testing.T) {
	a := assert.New(t)
	fake := newFakeLister()
	fake.add("/wf/sub", "d", 0)
	ctx := context.Background()

	p := NewPath(fake, "/wf/sub")
	_, err := p.IsDir(ctx)
	a.Error(err)
	a.Contains(err.Error(), "list the parent directory")

	isDir, err := NewPath(fake, "/wf/nope").IsDir(ctx)
	a.NoError(err) // absent resolves cleanly to "not a directory"
	a.False(isDir)
}

func TestIterDirDiscoversTypesWithoutExtraCalls(t *testing.T) {
	a := assert.New(t)
	fake := newFakeLister()
	fake.add("/wf/out.txt", "-", 7)
	fake.add("/wf/sub", "d", 0)
	fake.add("/wf/link", "l", 0)
	ctx := context.Background()

	children, err := NewPath(fake, "/wf").IterDir(ctx)
	a.NoError(err)
	a.Len(children, 3)

	byName := map[string]*Path{}
	for _, c := range children {
		byName[c.Name()] = c
	}

	isFile, err := byName["out.txt"].IsFile(ctx)
	a.NoError(err)
	a.True(isFile)
	size, err := byName["out.txt"].Size(ctx)
	a.NoError(err)
	a.Equal(int64(7), size)

	isDir, err := byName["sub"].IsDir(ctx)
	a.NoError(err)
	a.True(isDir)

	isLink, err := byName["link"].IsSymlink(ctx)
	a.NoError(err)
	a.True(isLink)
	isDir, err = byName["link"].IsDir(ctx)
	a.NoError(err)
	a.False(isDir) // links are never followed
	isFile, err = byName["link"].IsFile(ctx)
	a.NoError(err)
	a.False(isFile)

	a.Equal(1, fake.lsCalls["/wf"])
	a.Empty(fake.statCalls) // everything came from the listing
}

func TestJoinStartsWithCleanMetadata(t *testing.T) {
	a := assert.New(t)
	fake := newFakeLister()
	fake.add("/wf/sub/c.dat", "-", 3)

	p := NewPath(fake, "/wf").Join("sub", "c.dat")
	a.Equal("/wf/sub/c.dat", p.String())
	a.Equal("c.dat", p.Name())
	a.Equal(common.EFileType.Unknown(), p.ftype)
}
