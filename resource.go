package httpcache

import (
	"bytes"
	"context"
	"io"
)

// ResourceFactory creates ResourceHandle bodies for response bytes a
// Storage-keyed entry's Body refers to, letting large bodies live outside
// the key-value Storage itself (spec.md Section 2's ResourceFactory row).
type ResourceFactory interface {
	// Create persists body's content under a factory-chosen identifier
	// and returns a ResourceHandle over it. The returned id is opaque
	// and is what gets embedded in the entry's encoded form (see
	// codec.go) so a later Open call can retrieve it.
	Create(ctx context.Context, r io.Reader) (id string, handle ResourceHandle, err error)

	// Open retrieves a previously created resource by id.
	Open(ctx context.Context, id string) (ResourceHandle, error)

	// Remove deletes a previously created resource. Removing an absent
	// id is not an error.
	Remove(ctx context.Context, id string) error
}

// memoryResource is a ResourceHandle backed by an in-process byte slice,
// used by resource/memresource and by tests.
type memoryResource struct {
	data []byte
	ref  *refCount
}

func newMemoryResource(data []byte, onFree func()) *memoryResource {
	return &memoryResource{data: data, ref: newRefCount(onFree)}
}

func (m *memoryResource) Open() (ReadCloser, error) {
	return &memoryReadCloser{r: bytes.NewReader(m.data)}, nil
}

func (m *memoryResource) Len() int64 { return int64(len(m.data)) }

func (m *memoryResource) Acquire() { m.ref.Acquire() }

func (m *memoryResource) Release() { m.ref.Release() }

type memoryReadCloser struct {
	r io.Reader
}

func (m *memoryReadCloser) Read(p []byte) (int, error) { return m.r.Read(p) }

func (m *memoryReadCloser) Close() error { return nil }
