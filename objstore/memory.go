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
	"io"
	"os"
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// MemoryStore holds objects in a map. It exists for tests and scratch use.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte)}
}

func (ms *MemoryStore) Count() (int, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return len(ms.objects), nil
}

func (ms *MemoryStore) Keys() ([]string, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	keys := make([]string, 0, len(ms.objects))
	for k := range ms.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (ms *MemoryStore) Contains(key string) (bool, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	_, ok := ms.objects[key]
	return ok, nil
}

func (ms *MemoryStore) Size(key string) (int64, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	data, ok := ms.objects[key]
	if !ok {
		return 0, errors.Wrapf(ErrNotFound, "object %s", key)
	}
	return int64(len(data)), nil
}

func (ms *MemoryStore) Open(key string) (io.ReadCloser, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	data, ok := ms.objects[key]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "object %s", key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (ms *MemoryStore) AddFromBytes(data []byte) (string, error) {
	key := KeyOfBytes(data)
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if _, ok := ms.objects[key]; !ok {
		ms.objects[key] = append([]byte(nil), data...)
	}
	return key, nil
}

func (ms *MemoryStore) AddFromReader(src io.Reader) (string, error) {
	data, err := io.ReadAll(src)
	if err != nil {
		return "", errors.Wrap(err, "object store write")
	}
	return ms.AddFromBytes(data)
}

func (ms *MemoryStore) AddFromFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Wrap(err, "object store read source")
	}
	return ms.AddFromBytes(data)
}
