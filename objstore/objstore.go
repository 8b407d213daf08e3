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

// Package objstore is the content-addressed blob store backing codes and
// calcjobs. Objects are keyed by the lowercase hex sha256 of their content,
// so identical payloads occupy one slot and writers never conflict.
package objstore

import (
	"crypto/sha256"
	"encoding/hex"
	"io"

	"github.com/pkg/errors"
)

// ErrNotFound is returned for lookups of keys the store does not hold.
var ErrNotFound = errors.New("object not found")

// ObjectStore is implemented by the on-disk store used in projects and the
// in-memory one used in tests. All implementations must tolerate concurrent
// writers; adding existing content is a no-op that returns the same key.
type ObjectStore interface {
	// Count returns the number of stored objects.
	Count() (int, error)
	// Keys returns all keys in lexical order.
	Keys() ([]string, error)
	// Contains reports whether key is present.
	Contains(key string) (bool, error)
	// Size returns the byte size of the object, or ErrNotFound.
	Size(key string) (int64, error)
	// Open returns a reader over the object's content, or ErrNotFound.
	Open(key string) (io.ReadCloser, error)

	// AddFromBytes stores data and returns its key.
	AddFromBytes(data []byte) (string, error)
	// AddFromReader streams src into the store and returns the key. The
	// content is hashed while it is written, so src is read exactly once.
	AddFromReader(src io.Reader) (string, error)
	// AddFromFile stores the content of the local file at path.
	AddFromFile(path string) (string, error)
}

// KeyOfBytes computes the key data would be stored under.
func KeyOfBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

const keyLength = sha256.Size * 2

// ValidKey reports whether key has the shape of a store key: 64 lowercase hex
// characters. It says nothing about the key being present.
func ValidKey(key string) bool {
	if len(key) != keyLength {
		return false
	}
	for _, c := range key {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
