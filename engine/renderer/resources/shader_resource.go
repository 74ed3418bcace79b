package resources

import (
	"math"

	"github.com/google/uuid"
	"github.com/spaghettifunk/retina/engine/containers"
	"github.com/spaghettifunk/retina/engine/renderer/metadata"
)

// InvalidHandle marks a ShaderResource that does not refer to a slot.
const InvalidHandle uint32 = math.MaxUint32

// ResourceRef identifies a slot of one table in one generation. It is what
// shaders receive, minus the generation and table.
type ResourceRef struct {
	Table  uuid.UUID
	Kind   metadata.DescriptorType
	Handle containers.Handle[uint32]
}

// ShaderResource is a non-owning handle to a resource living in a
// ShaderResourceTable slot. The table holds the only reference the handle
// relies on; copies are free.
type ShaderResource[R any] struct {
	resource R
	ref      ResourceRef
	table    *ShaderResourceTable
}

type (
	SamplerResource               = ShaderResource[*Sampler]
	SampledImageResource          = ShaderResource[*ImageView]
	StorageImageResource          = ShaderResource[*ImageView]
	AccelerationStructureResource = ShaderResource[*AccelerationStructure]
)

func newShaderResource[R any](table *ShaderResourceTable, kind metadata.DescriptorType, resource R, handle containers.Handle[uint32]) ShaderResource[R] {
	return ShaderResource[R]{
		resource: resource,
		ref:      ResourceRef{Table: table.id, Kind: kind, Handle: handle},
		table:    table,
	}
}

// IsValid reports whether the handle was issued by a table and not destroyed
// through this copy.
func (sr ShaderResource[R]) IsValid() bool {
	return sr.table != nil && sr.ref.Handle.Slot != InvalidHandle
}

func (sr ShaderResource[R]) Resource() R {
	return sr.resource
}

// Handle returns the bindless slot, InvalidHandle for invalid resources.
func (sr ShaderResource[R]) Handle() uint32 {
	if sr.table == nil {
		return InvalidHandle
	}
	return sr.ref.Handle.Slot
}

func (sr ShaderResource[R]) Generation() uint32 {
	return sr.ref.Handle.Generation
}

func (sr ShaderResource[R]) Kind() metadata.DescriptorType {
	return sr.ref.Kind
}

func (sr ShaderResource[R]) Ref() ResourceRef {
	return sr.ref
}

func (sr ShaderResource[R]) Table() *ShaderResourceTable {
	return sr.table
}

// Validate fails with core.ErrStaleHandle once the slot was freed, even when
// it has been reused since.
func (sr ShaderResource[R]) Validate() error {
	if !sr.IsValid() {
		return errInvalidShaderResource
	}
	return sr.table.Validate(sr.ref)
}

// Destroy frees the slot now. The handle is invalid afterwards.
func (sr *ShaderResource[R]) Destroy() error {
	if !sr.IsValid() {
		return errInvalidShaderResource
	}
	err := sr.table.Free(sr.ref)
	sr.invalidate()
	return err
}

// DestroyAt frees the slot once the device timeline reaches retireAt. The
// handle is invalid immediately.
func (sr *ShaderResource[R]) DestroyAt(queue *DeletionQueue, retireAt uint64) error {
	if !sr.IsValid() {
		return errInvalidShaderResource
	}
	sr.table.FreeDeferred(queue, sr.ref, retireAt)
	sr.invalidate()
	return nil
}

func (sr *ShaderResource[R]) invalidate() {
	var zero R
	sr.resource = zero
	sr.ref.Handle.Slot = InvalidHandle
}
