package core

import (
	"errors"
)

var (
	ErrSurfaceRecreated = errors.New("surface resized or recreated, booting")
	ErrUnknown          = errors.New("unknown")

	ErrInvalidCapacity  = errors.New("invalid capacity")
	ErrSlotExhausted    = errors.New("no free slots remaining")
	ErrSlotOutOfRange   = errors.New("slot out of range")
	ErrSlotNotAllocated = errors.New("slot is not allocated")
	ErrStaleHandle      = errors.New("handle refers to a slot that has been reused")
	ErrForeignHandle    = errors.New("handle was issued by a different table")
	ErrNilResource      = errors.New("resource is nil")
	ErrSharedRelease    = errors.New("release of a reference that is still shared")
	ErrTimelineTimeout  = errors.New("timeline wait timed out")
)
