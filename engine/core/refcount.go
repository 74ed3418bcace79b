package core

import "sync/atomic"

// RefCount is the intrusive reference counter embedded by every shared engine
// object. The zero value starts at 0: the first Arc built around the object
// performs the first Grab.
//
// The counter orders Grab and Drop against each other only. It does not
// publish writes to the rest of the object.
type RefCount struct {
	count atomic.Uint64
}

// Grab increments the counter and returns the new value.
func (rc *RefCount) Grab() uint64 {
	return rc.count.Add(1)
}

// Drop decrements the counter and returns the new value.
func (rc *RefCount) Drop() uint64 {
	return rc.count.Add(^uint64(0))
}

// Count returns the current number of owners.
func (rc *RefCount) Count() uint64 {
	return rc.count.Load()
}

// tryRelease moves the counter from 1 to 0 if and only if the caller is the
// last owner.
func (rc *RefCount) tryRelease() bool {
	return rc.count.CompareAndSwap(1, 0)
}

// Counted is satisfied by pointers to types embedding RefCount.
type Counted interface {
	comparable
	Grab() uint64
	Drop() uint64
	Count() uint64
}

type releaser interface {
	tryRelease() bool
}

// Destroyer is implemented by objects that own something outside the Go heap.
// Destroy is called once, when the last Arc referencing the object lets go.
type Destroyer interface {
	Destroy()
}
