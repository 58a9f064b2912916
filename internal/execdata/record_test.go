package execdata

import (
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recordWith(mode Mode, n int, hits ...int) *Record {
	r := NewRecord(7, "org/example/A", n, mode)
	for _, h := range hits {
		r.Hit(h)
	}
	return r
}

func TestRecord_Hit(t *testing.T) {
	t.Run("should be idempotent in boolean mode", func(t *testing.T) {
		r := recordWith(ModeBoolean, 3, 1, 1, 1)
		assert.Equal(t, []uint32{0, 1, 0}, r.Counts())
		assert.Equal(t, []bool{false, true, false}, r.Probes())
		assert.Equal(t, 1, r.Covered())
	})

	t.Run("should count in count mode", func(t *testing.T) {
		r := recordWith(ModeCount, 3, 0, 2, 2, 2)
		assert.Equal(t, []uint32{1, 0, 3}, r.Counts())
		assert.True(t, r.Executed(2))
		assert.False(t, r.Executed(1))
	})

	t.Run("should ignore out of range ids", func(t *testing.T) {
		r := recordWith(ModeBoolean, 2, -1, 2, 100)
		assert.Equal(t, 0, r.Covered())
		assert.False(t, r.Executed(100))
	})

	t.Run("should saturate", func(t *testing.T) {
		r := recordWith(ModeCount, 1)
		r.probes[0].Store(math.MaxUint32 - 1)
		r.Hit(0)
		r.Hit(0)
		assert.Equal(t, uint32(math.MaxUint32), r.Counts()[0])
	})

	t.Run("should be safe for concurrent use", func(t *testing.T) {
		r := recordWith(ModeCount, 4)
		var wg sync.WaitGroup
		for g := 0; g < 8; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < 1000; i++ {
					r.Hit(i % 4)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, []uint32{2000, 2000, 2000, 2000}, r.Counts())
	})
}

func TestRecord_Merge(t *testing.T) {
	t.Run("should OR in boolean mode", func(t *testing.T) {
		a := recordWith(ModeBoolean, 4, 0, 1)
		b := recordWith(ModeBoolean, 4, 1, 3)
		require.NoError(t, a.Merge(b))
		assert.Equal(t, []bool{true, true, false, true}, a.Probes())
		assert.Equal(t, []uint32{1, 1, 0, 1}, a.Counts())
	})

	t.Run("should add in count mode", func(t *testing.T) {
		a := recordWith(ModeCount, 3, 0, 0, 1)
		b := recordWith(ModeCount, 3, 0, 2)
		require.NoError(t, a.Merge(b))
		assert.Equal(t, []uint32{3, 1, 1}, a.Counts())
	})

	t.Run("should be commutative and associative", func(t *testing.T) {
		for _, mode := range []Mode{ModeBoolean, ModeCount} {
			x := func() *Record { return recordWith(mode, 5, 0, 0, 3) }
			y := func() *Record { return recordWith(mode, 5, 1, 3) }
			z := func() *Record { return recordWith(mode, 5, 4, 4, 4) }

			xy := x()
			require.NoError(t, xy.Merge(y()))
			yx := y()
			require.NoError(t, yx.Merge(x()))
			assert.Equal(t, xy.Counts(), yx.Counts(), "commutative in %s mode", mode)

			left := x()
			require.NoError(t, left.Merge(y()))
			require.NoError(t, left.Merge(z()))
			yz := y()
			require.NoError(t, yz.Merge(z()))
			right := x()
			require.NoError(t, right.Merge(yz))
			assert.Equal(t, left.Counts(), right.Counts(), "associative in %s mode", mode)
		}
	})

	t.Run("should reject different layouts", func(t *testing.T) {
		a := recordWith(ModeBoolean, 4)
		err := a.Merge(recordWith(ModeBoolean, 5))
		assert.True(t, errors.Is(err, ErrVersionMismatch))

		other := NewRecord(7, "org/example/B", 4, ModeBoolean)
		assert.True(t, errors.Is(a.Merge(other), ErrVersionMismatch))
	})
}

func TestRecord_CloneAndReset(t *testing.T) {
	r := recordWith(ModeCount, 2, 0, 1, 1)
	c := r.Clone()
	r.Reset()
	assert.Equal(t, []uint32{0, 0}, r.Counts())
	assert.Equal(t, []uint32{1, 2}, c.Counts())
	assert.Equal(t, r.ID(), c.ID())
	assert.Equal(t, r.Name(), c.Name())
	assert.Equal(t, ModeCount, c.Mode())
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("COUNT")
	require.NoError(t, err)
	assert.Equal(t, ModeCount, m)
	m, err = ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeBoolean, m)
	_, err = ParseMode("weird")
	assert.Error(t, err)
}
