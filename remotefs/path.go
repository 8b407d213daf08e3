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

// Package remotefs gives remote paths behind the facade a filesystem feel.
// A Path fetches its metadata lazily and remembers what it learned; every
// facade round-trip costs real latency, so nothing is fetched twice. The
// facade's stat deliberately reports no file type, which shapes the whole
// package: types are only ever discovered by listing the parent directory,
// and a Path that was built by hand rather than found through IterDir can
// answer Exists and Size but not IsDir.
package remotefs

import (
	"context"
	"path"

	"github.com/pkg/errors"

	"github.com/crestflow/crestflow/common"
	"github.com/crestflow/crestflow/fcrest"
)

// Lister is the slice of the facade client this package needs. *fcrest.Client
// satisfies it; tests substitute a canned tree.
type Lister interface {
	Stat(ctx context.Context, path string) (fcrest.StatRecord, error)
	ListFiles(ctx context.Context, path string, showHidden bool) ([]fcrest.LsRecord, error)
}

// Path is one absolute path on a remote machine with lazily discovered
// metadata. Not safe for concurrent use; each goroutine works its own paths.
type Path struct {
	lister Lister
	path   string

	ftype     common.FileType
	size      int64
	hasSize   bool
	absentErr error // the not-found stat error, replayed on later calls
}

// NewPath wraps an absolute remote path with no metadata attached.
func NewPath(lister Lister, p string) *Path {
	return &Path{lister: lister, path: path.Clean(p)}
}

func (p *Path) String() string { return p.path }

// Name is the final path component.
func (p *Path) Name() string { return path.Base(p.path) }

// Join derives a descendant path. The child starts with no metadata even if
// the parent has some.
func (p *Path) Join(elem ...string) *Path {
	return NewPath(p.lister, path.Join(append([]string{p.path}, elem...)...))
}

// stat fetches size and existence once. The facade flags missing paths with
// a header on an HTTP 400, which is cached here like any other answer.
func (p *Path) stat(ctx context.Context) error {
	if p.absentErr != nil {
		return p.absentErr
	}
	if p.hasSize {
		return nil
	}
	record, err := p.lister.Stat(ctx, p.path)
	if err != nil {
		if fcrest.IsNotFound(err) {
			p.ftype = common.EFileType.Absent()
			p.absentErr = err
		}
		return err
	}
	p.size = record.Size
	p.hasSize = true
	return nil
}

// Exists reports whether the path is present on the remote machine.
func (p *Path) Exists(ctx context.Context) (bool, error) {
	if p.ftype != common.EFileType.Unknown() {
		return p.ftype != common.EFileType.Absent(), nil
	}
	if p.hasSize {
		return true, nil
	}
	if err := p.stat(ctx); err != nil {
		if fcrest.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Size returns the path's size in bytes, fetching a stat on first use.
func (p *Path) Size(ctx context.Context) (int64, error) {
	if err := p.stat(ctx); err != nil {
		return 0, err
	}
	return p.size, nil
}

// fileType resolves what kind of entry the path is. Paths never seen in a
// directory listing can only resolve to Absent; an existing path of unknown
// kind is an error rather than a guess.
func (p *Path) fileType(ctx context.Context) (common.FileType, error) {
	if p.ftype != common.EFileType.Unknown() {
		return p.ftype, nil
	}
	exists, err := p.Exists(ctx)
	if err != nil {
		return common.EFileType.Unknown(), err
	}
	if !exists {
		return common.EFileType.Absent(), nil
	}
	return common.EFileType.Unknown(),
		errors.Errorf("%s exists but its type is undiscovered: stat reports no file type, list the parent directory instead", p.path)
}

// IsDir reports whether the path is a directory. Symlinks are never
// followed, so a link pointing at a directory answers false.
func (p *Path) IsDir(ctx context.Context) (bool, error) {
	t, err := p.fileType(ctx)
	return t == common.EFileType.Directory(), err
}

// IsFile reports whether the path is a regular file. As with IsDir, a
// symlink to a file answers false.
func (p *Path) IsFile(ctx context.Context) (bool, error) {
	t, err := p.fileType(ctx)
	return t == common.EFileType.Regular(), err
}

// IsSymlink reports whether the path is a symlink, whatever it points at.
func (p *Path) IsSymlink(ctx context.Context) (bool, error) {
	t, err := p.fileType(ctx)
	return t == common.EFileType.Symlink(), err
}

// IterDir lists the directory's entries, hidden ones included. Children come
// back with their type and size already known, which is the only way a Path
// ever learns a type.
func (p *Path) IterDir(ctx context.Context) ([]*Path, error) {
	records, err := p.lister.ListFiles(ctx, p.path, true)
	if err != nil {
		return nil, err
	}
	children := make([]*Path, 0, len(records))
	for _, rec := range records {
		children = append(children, &Path{
			lister:  p.lister,
			path:    path.Join(p.path, rec.Name),
			ftype:   common.FileTypeFromCode(rec.Type),
			size:    rec.Size,
			hasSize: true,
		})
	}
	return children, nil
}
