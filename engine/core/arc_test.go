package core

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tracked struct {
	RefCount
	name      string
	destroyed atomic.Int32
}

func (p *tracked) Destroy() {
	p.destroyed.Add(1)
}

func (p *tracked) Name() string {
	return p.name
}

type named interface {
	Grab() uint64
	Drop() uint64
	Count() uint64
	Name() string
}

type unrelated struct {
	RefCount
}

func TestRefCountStartsAtZero(t *testing.T) {
	p := &tracked{}
	require.Equal(t, uint64(0), p.Count())
	require.Equal(t, uint64(1), p.Grab())
	require.Equal(t, uint64(2), p.Grab())
	require.Equal(t, uint64(1), p.Drop())
}

func TestArcCopyIncrementsAndResetDecrements(t *testing.T) {
	p := &tracked{}
	a := NewArc(p)
	require.Equal(t, uint64(1), p.Count())

	b := a.Clone()
	require.Equal(t, uint64(2), p.Count())

	b.Reset()
	require.True(t, b.IsNil())
	require.Equal(t, uint64(1), p.Count())
	require.Equal(t, int32(0), p.destroyed.Load())

	a.Reset()
	require.Equal(t, int32(1), p.destroyed.Load())

	// resetting an empty handle is a no-op
	a.Reset()
	require.Equal(t, int32(1), p.destroyed.Load())
}

func TestArcMoveKeepsCount(t *testing.T) {
	p := &tracked{}
	a := NewArc(p)
	b := a.Move()

	assert.True(t, a.IsNil())
	assert.Same(t, p, b.Get())
	assert.Equal(t, uint64(1), p.Count())

	b.Reset()
	assert.Equal(t, int32(1), p.destroyed.Load())
}

func TestArcNilIsEmpty(t *testing.T) {
	a := NewArc[*tracked](nil)
	require.True(t, a.IsNil())
	c := a.Clone()
	require.True(t, c.IsNil())
	c.Reset()
}

func TestArcAssign(t *testing.T) {
	first, second := &tracked{}, &tracked{}
	a := NewArc(first)
	b := NewArc(second)

	a.Assign(&a)
	require.Equal(t, uint64(1), first.Count())

	a.Assign(&b)
	require.Equal(t, int32(1), first.destroyed.Load())
	require.Equal(t, uint64(2), second.Count())
	require.True(t, a.Equal(b))

	c := NewArc(&tracked{})
	c.AssignMove(&b)
	require.True(t, b.IsNil())
	require.Equal(t, uint64(2), second.Count())

	a.Reset()
	c.Reset()
	require.Equal(t, int32(1), second.destroyed.Load())
}

func TestArcRelease(t *testing.T) {
	p := &tracked{}
	a := NewArc(p)
	b := a.Clone()

	_, err := a.Release()
	require.ErrorIs(t, err, ErrSharedRelease)
	require.Equal(t, uint64(2), p.Count())
	require.False(t, a.IsNil())

	b.Reset()
	raw, err := a.Release()
	require.NoError(t, err)
	require.Same(t, p, raw)
	require.True(t, a.IsNil())
	require.Equal(t, uint64(0), p.Count())
	require.Equal(t, int32(0), p.destroyed.Load())
}

func TestArcAs(t *testing.T) {
	p := &tracked{name: "tracked"}
	a := NewArc(p)

	n, ok := ArcAs[named](a)
	require.True(t, ok)
	require.Equal(t, "tracked", n.Get().Name())
	require.Equal(t, uint64(2), p.Count())

	_, ok = ArcAs[*unrelated](a)
	require.False(t, ok)
	require.Equal(t, uint64(2), p.Count())

	n.Reset()
	a.Reset()
	require.Equal(t, int32(1), p.destroyed.Load())
}

func TestArcAsConstShares(t *testing.T) {
	p := &tracked{}
	a := NewArc(p)
	c := a.AsConst()
	require.Equal(t, uint64(2), p.Count())
	require.Same(t, p, c.Get())

	a.Reset()
	require.Equal(t, int32(0), p.destroyed.Load())
	c.Reset()
	require.Equal(t, int32(1), p.destroyed.Load())
}

func TestArcCompare(t *testing.T) {
	a := NewArc(&tracked{})
	b := NewArc(&tracked{})
	defer a.Reset()
	defer b.Reset()

	require.Equal(t, 0, a.Compare(a))
	require.Equal(t, -b.Compare(a), a.Compare(b))
	require.NotEqual(t, 0, a.Compare(b))
	require.False(t, a.Equal(b))
}

func TestArcConcurrentSharing(t *testing.T) {
	p := &tracked{}
	root := NewArc(p)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				c := root.Clone()
				c.Reset()
			}
		}()
	}
	wg.Wait()

	require.Equal(t, uint64(1), p.Count())
	require.Equal(t, int32(0), p.destroyed.Load())
	root.Reset()
	require.Equal(t, int32(1), p.destroyed.Load())
}
