package core

import (
	"cmp"
	"reflect"
)

// Arc is an owning handle to an intrusively reference-counted object. Copying
// an Arc by plain assignment does NOT share ownership: use Clone to share and
// Move to transfer.
type Arc[T Counted] struct {
	ptr T
}

// NewArc wraps ptr and takes one reference to it. A nil ptr yields an empty Arc.
func NewArc[T Counted](ptr T) Arc[T] {
	var zero T
	if ptr != zero {
		ptr.Grab()
	}
	return Arc[T]{ptr: ptr}
}

// ToArc is an alias of NewArc that reads better at call sites that hand out a
// reference to an object they already own, e.g. `return core.ToArc(t)`.
func ToArc[T Counted](ptr T) Arc[T] {
	return NewArc(ptr)
}

// Get returns the referenced object without touching the counter. The result
// must not outlive the Arc it came from.
func (a Arc[T]) Get() T {
	return a.ptr
}

// IsNil reports whether the handle is empty.
func (a Arc[T]) IsNil() bool {
	var zero T
	return a.ptr == zero
}

// Clone shares ownership of the referenced object.
func (a Arc[T]) Clone() Arc[T] {
	return NewArc(a.ptr)
}

// Move transfers ownership out of a, leaving it empty. The counter is untouched.
func (a *Arc[T]) Move() Arc[T] {
	var zero T
	out := Arc[T]{ptr: a.ptr}
	a.ptr = zero
	return out
}

// Assign makes a share other's referent, dropping whatever a held before.
func (a *Arc[T]) Assign(other *Arc[T]) {
	if a == other {
		return
	}
	next := other.Clone()
	a.Reset()
	a.ptr = next.ptr
}

// AssignMove moves other's referent into a, dropping whatever a held before.
func (a *Arc[T]) AssignMove(other *Arc[T]) {
	if a == other {
		return
	}
	next := other.Move()
	a.Reset()
	a.ptr = next.ptr
}

// Reset drops the reference. The object is destroyed when this was the last one.
// Resetting an empty Arc is a no-op.
func (a *Arc[T]) Reset() {
	var zero T
	if a.ptr != zero {
		if a.ptr.Drop() == 0 {
			if d, ok := any(a.ptr).(Destroyer); ok {
				d.Destroy()
			}
		}
	}
	a.ptr = zero
}

// Release hands the object back without destroying it. It only succeeds for
// the last owner; a shared object is left untouched and ErrSharedRelease is
// returned.
func (a *Arc[T]) Release() (T, error) {
	var zero T
	if a.ptr == zero {
		return zero, nil
	}
	if r, ok := any(a.ptr).(releaser); ok {
		if !r.tryRelease() {
			return zero, ErrSharedRelease
		}
	} else if a.ptr.Count() != 1 || a.ptr.Drop() != 0 {
		return zero, ErrSharedRelease
	}
	out := a.ptr
	a.ptr = zero
	return out, nil
}

// Equal reports pointer identity.
func (a Arc[T]) Equal(other Arc[T]) bool {
	return a.ptr == other.ptr
}

// Compare orders two handles by the address of their referents.
func (a Arc[T]) Compare(other Arc[T]) int {
	return cmp.Compare(address(a.ptr), address(other.ptr))
}

// AsConst returns a read-only share of the referent.
func (a Arc[T]) AsConst() ConstArc[T] {
	return ConstArc[T]{arc: a.Clone()}
}

// ArcAs shares a's referent as a U. Conversions between unrelated types fail
// with ok == false and leave the counter untouched.
func ArcAs[U Counted, T Counted](a Arc[T]) (Arc[U], bool) {
	if a.IsNil() {
		return Arc[U]{}, true
	}
	u, ok := any(a.ptr).(U)
	if !ok {
		return Arc[U]{}, false
	}
	return NewArc(u), true
}

// ConstArc is a shared owning handle that cannot give raw ownership back.
type ConstArc[T Counted] struct {
	arc Arc[T]
}

func (c ConstArc[T]) Get() T {
	return c.arc.Get()
}

func (c ConstArc[T]) IsNil() bool {
	return c.arc.IsNil()
}

func (c ConstArc[T]) Clone() ConstArc[T] {
	return ConstArc[T]{arc: c.arc.Clone()}
}

func (c *ConstArc[T]) Move() ConstArc[T] {
	return ConstArc[T]{arc: c.arc.Move()}
}

func (c *ConstArc[T]) Reset() {
	c.arc.Reset()
}

func (c ConstArc[T]) Equal(other ConstArc[T]) bool {
	return c.arc.Equal(other.arc)
}

func address(v any) uintptr {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.UnsafePointer:
		return rv.Pointer()
	default:
		return 0
	}
}
