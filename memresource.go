package httpcache

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
)

// memResourceFactory is the default ResourceFactory: an in-process map of
// id to byte slice. It is the right choice for tests and for a
// single-process cache; storage/* backends pair with resource/blobresource
// or resource/memresource (the exported counterparts of this type) for
// anything that must survive a process restart or be shared across
// processes.
type memResourceFactory struct {
	mu      sync.Mutex
	entries map[string][]byte
	counter int64
}

func newMemResourceFactory() *memResourceFactory {
	return &memResourceFactory{entries: map[string][]byte{}}
}

func (f *memResourceFactory) Create(ctx context.Context, r io.Reader) (string, ResourceHandle, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", nil, err
	}
	id := fmt.Sprintf("mem-%d", atomic.AddInt64(&f.counter, 1))

	f.mu.Lock()
	f.entries[id] = data
	f.mu.Unlock()

	// No onFree: the map entry is the resource's storage, and it is
	// removed only by an explicit Remove call (when the referencing
	// Storage entry is itself overwritten or evicted), not when a given
	// reader's refcount happens to hit zero.
	return id, newMemoryResource(data, nil), nil
}

func (f *memResourceFactory) Open(ctx context.Context, id string) (ResourceHandle, error) {
	f.mu.Lock()
	data, ok := f.entries[id]
	f.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	return newMemoryResource(data, nil), nil
}

func (f *memResourceFactory) Remove(ctx context.Context, id string) error {
	f.mu.Lock()
	delete(f.entries, id)
	f.mu.Unlock()
	return nil
}
