package resources

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/retina/engine/renderer/metadata"
)

func TestBufferBoundsDoNotWrap(t *testing.T) {
	device := NewHeadlessDevice(HeadlessDeviceConfig{Name: t.Name()})
	buffer, err := device.CreateBuffer(metadata.BufferCreateInfo{Name: "bounds", Size: 64})
	require.NoError(t, err)
	defer buffer.Destroy()

	require.NoError(t, buffer.Write(60, []byte{1, 2, 3, 4}))
	assert.Error(t, buffer.Write(61, []byte{1, 2, 3, 4}))
	assert.Error(t, buffer.Write(math.MaxUint64, []byte{1}))
	assert.Error(t, buffer.Write(math.MaxUint64-2, []byte{1, 2, 3, 4}))

	_, err = buffer.Read(math.MaxUint64, 2)
	assert.Error(t, err)
	_, err = buffer.Read(1, math.MaxUint64)
	assert.Error(t, err)
	data, err := buffer.Read(60, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, data)
}

func TestTypedBufferBoundsDoNotWrap(t *testing.T) {
	device := NewHeadlessDevice(HeadlessDeviceConfig{Name: t.Name()})
	buffer, err := device.CreateBuffer(metadata.BufferCreateInfo{Name: "typed", Size: 16})
	require.NoError(t, err)
	defer buffer.Destroy()

	_, err = NewTypedBuffer[uint32](buffer, math.MaxUint64/2+1)
	assert.Error(t, err)

	typed, err := NewTypedBuffer[uint32](buffer, 4)
	require.NoError(t, err)
	require.NoError(t, typed.Write(3, 7))
	assert.Error(t, typed.Write(math.MaxUint64, 1, 2))

	_, err = typed.Read(math.MaxUint64, 2)
	assert.Error(t, err)
	values, err := typed.Read(3, 1)
	require.NoError(t, err)
	assert.Equal(t, []uint32{7}, values)
}
