package resources

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/spaghettifunk/retina/engine/core"
	"github.com/spaghettifunk/retina/engine/renderer/metadata"
)

// Buffer is a ref-counted GPU buffer. Host visible buffers keep a mirror of
// their contents that Write and Read operate on.
type Buffer struct {
	core.RefCount

	name     string
	handle   uint64
	size     uint64
	address  uint64
	usage    metadata.BufferUsage
	location metadata.MemoryLocation

	mutex     sync.Mutex
	data      []byte
	onDestroy func(*Buffer)
}

// BufferDesc carries what a Device reports about a buffer it created.
type BufferDesc struct {
	Info    metadata.BufferCreateInfo
	Handle  uint64
	Address uint64
	// Mapped is the host mirror of the buffer. nil for device local memory.
	Mapped    []byte
	OnDestroy func(*Buffer)
}

func NewBuffer(desc BufferDesc) *Buffer {
	return &Buffer{
		name:      desc.Info.Name,
		handle:    desc.Handle,
		size:      desc.Info.Size,
		address:   desc.Address,
		usage:     desc.Info.Usage,
		location:  desc.Info.Location,
		data:      desc.Mapped,
		onDestroy: desc.OnDestroy,
	}
}

func (b *Buffer) Name() string {
	return b.name
}

func (b *Buffer) Handle() uint64 {
	return b.handle
}

func (b *Buffer) Size() uint64 {
	return b.size
}

// DeviceAddress is the address shaders dereference the buffer through.
func (b *Buffer) DeviceAddress() uint64 {
	return b.address
}

func (b *Buffer) Descriptor() metadata.BufferDescriptor {
	return metadata.BufferDescriptor{Handle: b.handle, Offset: 0, Size: b.size}
}

func (b *Buffer) IsMapped() bool {
	return b.data != nil
}

// Write copies data into the buffer at offset.
func (b *Buffer) Write(offset uint64, data []byte) error {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if b.data == nil {
		return fmt.Errorf("buffer %s is not host visible", b.name)
	}
	if !fits(offset, uint64(len(data)), b.size) {
		return fmt.Errorf("write of %d bytes at %d overflows buffer %s (%d bytes)", len(data), offset, b.name, b.size)
	}
	copy(b.data[offset:], data)
	return nil
}

// Read returns a copy of size bytes starting at offset.
func (b *Buffer) Read(offset, size uint64) ([]byte, error) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if b.data == nil {
		return nil, fmt.Errorf("buffer %s is not host visible", b.name)
	}
	if !fits(offset, size, b.size) {
		return nil, fmt.Errorf("read of %d bytes at %d overflows buffer %s (%d bytes)", size, offset, b.name, b.size)
	}
	out := make([]byte, size)
	copy(out, b.data[offset:offset+size])
	return out, nil
}

// fits reports whether [offset, offset+length) lies inside [0, size) without
// overflowing.
func fits(offset, length, size uint64) bool {
	return offset <= size && length <= size-offset
}

func (b *Buffer) Destroy() {
	if b.onDestroy != nil {
		b.onDestroy(b)
	}
	b.mutex.Lock()
	b.data = nil
	b.mutex.Unlock()
}

// TypedBuffer is a view of a Buffer as an array of T. T must have a fixed
// binary size.
type TypedBuffer[T any] struct {
	buffer *Buffer
	count  uint64
	stride uint64
}

// ElementSize returns the binary size of T, or an error for types without a
// fixed size.
func ElementSize[T any]() (uint64, error) {
	var zero T
	size := binary.Size(zero)
	if size <= 0 {
		return 0, fmt.Errorf("type %T has no fixed binary size", zero)
	}
	return uint64(size), nil
}

// NewTypedBuffer wraps buffer, which must hold at least count elements.
func NewTypedBuffer[T any](buffer *Buffer, count uint64) (*TypedBuffer[T], error) {
	if buffer == nil {
		return nil, core.ErrNilResource
	}
	stride, err := ElementSize[T]()
	if err != nil {
		return nil, err
	}
	if count > buffer.Size()/stride {
		return nil, fmt.Errorf("buffer %s holds %d bytes, %d elements of %d bytes do not fit", buffer.Name(), buffer.Size(), count, stride)
	}
	return &TypedBuffer[T]{buffer: buffer, count: count, stride: stride}, nil
}

func (tb *TypedBuffer[T]) Buffer() *Buffer {
	return tb.buffer
}

func (tb *TypedBuffer[T]) Len() uint64 {
	return tb.count
}

func (tb *TypedBuffer[T]) Stride() uint64 {
	return tb.stride
}

func (tb *TypedBuffer[T]) DeviceAddress() uint64 {
	return tb.buffer.DeviceAddress()
}

// Write stores values starting at element index.
func (tb *TypedBuffer[T]) Write(index uint64, values ...T) error {
	if !fits(index, uint64(len(values)), tb.count) {
		return fmt.Errorf("write of %d elements at %d overflows %s (%d elements)", len(values), index, tb.buffer.Name(), tb.count)
	}
	data, err := binary.Append(nil, binary.LittleEndian, values)
	if err != nil {
		return err
	}
	return tb.buffer.Write(index*tb.stride, data)
}

// Read decodes count elements starting at element index.
func (tb *TypedBuffer[T]) Read(index, count uint64) ([]T, error) {
	if !fits(index, count, tb.count) {
		return nil, fmt.Errorf("read of %d elements at %d overflows %s (%d elements)", count, index, tb.buffer.Name(), tb.count)
	}
	data, err := tb.buffer.Read(index*tb.stride, count*tb.stride)
	if err != nil {
		return nil, err
	}
	out := make([]T, count)
	if _, err := binary.Decode(data, binary.LittleEndian, out); err != nil {
		return nil, err
	}
	return out, nil
}
