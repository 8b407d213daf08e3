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

package objstore

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// FileStore keeps each object as root/<key>. Writes stream into a temp file
// in the same directory and are renamed into place, so a key either names a
// complete object or nothing.
type FileStore struct {
	root string
}

// NewFileStore opens an existing store directory. A missing directory is an
// error: silently recreating one would hide that the project's objects are
// gone while its database still references them.
func NewFileStore(root string) (*FileStore, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, errors.Wrap(err, "object store directory")
	}
	if !info.IsDir() {
		return nil, errors.Errorf("object store path %s is not a directory", root)
	}
	return &FileStore{root: root}, nil
}

// InitFileStore creates the directory if needed and opens it.
func InitFileStore(root string) (*FileStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, errors.Wrap(err, "object store directory")
	}
	return NewFileStore(root)
}

func (fs *FileStore) Root() string { return fs.root }

func (fs *FileStore) keyPath(key string) (string, error) {
	if !ValidKey(key) {
		return "", errors.Wrapf(ErrNotFound, "malformed key %q", key)
	}
	return filepath.Join(fs.root, key), nil
}

func (fs *FileStore) Count() (int, error) {
	keys, err := fs.Keys()
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

func (fs *FileStore) Keys() ([]string, error) {
	entries, err := os.ReadDir(fs.root)
	if err != nil {
		return nil, errors.Wrap(err, "object store directory")
	}
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() || !ValidKey(e.Name()) {
			continue // in-flight temp files and strays
		}
		keys = append(keys, e.Name())
	}
	sort.Strings(keys)
	return keys, nil
}

func (fs *FileStore) Contains(key string) (bool, error) {
	p, err := fs.keyPath(key)
	if err != nil {
		return false, nil
	}
	if _, err := os.Stat(p); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (fs *FileStore) Size(key string) (int64, error) {
	p, err := fs.keyPath(key)
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(p)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, errors.Wrapf(ErrNotFound, "object %s", key)
		}
		return 0, err
	}
	return info.Size(), nil
}

func (fs *FileStore) Open(key string) (io.ReadCloser, error) {
	p, err := fs.keyPath(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(ErrNotFound, "object %s", key)
		}
		return nil, err
	}
	return f, nil
}

func (fs *FileStore) AddFromBytes(data []byte) (string, error) {
	return fs.AddFromReader(bytes.NewReader(data))
}

func (fs *FileStore) AddFromReader(src io.Reader) (string, error) {
	tmp, err := os.CreateTemp(fs.root, ".incoming-*")
	if err != nil {
		return "", errors.Wrap(err, "object store write")
	}
	tmpName := tmp.Name()
	discard := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}

	hasher := sha256.New()
	if _, err := io.Copy(io.MultiWriter(tmp, hasher), src); err != nil {
		discard()
		return "", errors.Wrap(err, "object store write")
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", errors.Wrap(err, "object store write")
	}

	key := hex.EncodeToString(hasher.Sum(nil))
	dest := filepath.Join(fs.root, key)
	if _, err := os.Stat(dest); err == nil {
		_ = os.Remove(tmpName) // someone beat us to it; their copy is identical
		return key, nil
	}
	if err := os.Rename(tmpName, dest); err != nil {
		if _, statErr := os.Stat(dest); statErr == nil {
			_ = os.Remove(tmpName)
			return key, nil
		}
		_ = os.Remove(tmpName)
		return "", errors.Wrapf(err, "object store commit %s", key)
	}
	return key, nil
}

func (fs *FileStore) AddFromFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", errors.Wrap(err, "object store read source")
	}
	defer f.Close()
	return fs.AddFromReader(f)
}

// AddFromGlob stores every regular file under dir matching the pattern and
// returns slash-form relative path -> key. Patterns follow filepath.Glob.
func (fs *FileStore) AddFromGlob(dir string, pattern string) (map[string]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, errors.Wrapf(err, "bad glob %q", pattern)
	}
	out := make(map[string]string)
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil {
			return nil, err
		}
		if !info.Mode().IsRegular() {
			continue
		}
		key, err := fs.AddFromFile(m)
		if err != nil {
			return nil, err
		}
		rel, err := filepath.Rel(dir, m)
		if err != nil {
			return nil, err
		}
		out[strings.ReplaceAll(rel, string(filepath.Separator), "/")] = key
	}
	return out, nil
}
