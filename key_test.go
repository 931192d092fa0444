package multex

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexOutOfBoundsRejected(t *testing.T) {
	_, err := Index[int](8, 1, 8)
	require.Error(t, err)
	var idxErr *IndexError
	require.ErrorAs(t, err, &idxErr)
	assert.Equal(t, OutOfBounds, idxErr.Kind)
}

// TestDuplicateIndexRejected is spec §8 scenario S4.
func TestDuplicateIndexRejected(t *testing.T) {
	_, err := Indices[uint8](8, 1, 0, 1, 0)
	require.Error(t, err)
	var idxErr *IndexError
	require.ErrorAs(t, err, &idxErr)
	assert.Equal(t, Duplicate, idxErr.Kind)
	assert.Equal(t, 0, idxErr.Index)
}

func TestPairKeyRejectsOverlap(t *testing.T) {
	k1, err := Index[int](8, 1, 0)
	require.NoError(t, err)
	k2, err := Index[int](8, 1, 0)
	require.NoError(t, err)

	_, err = PairKey[[]int](k1, k2)
	require.Error(t, err)
	var idxErr *IndexError
	require.ErrorAs(t, err, &idxErr)
	assert.Equal(t, Duplicate, idxErr.Kind)
}

func TestIndicesOutOfPayloadRangeProjectsNil(t *testing.T) {
	key, err := Indices[int](8, 1, 0, 1)
	require.NoError(t, err)

	value := []int{42}
	filter := once(key.mask)
	result := key.project(&value, filter)
	require.Len(t, result, 2)
	assert.NotNil(t, result[0])
	assert.Equal(t, 42, *result[0])
	assert.Nil(t, result[1], "index 1 is within the mask's domain but outside the slice's length")
}

func TestOnceFilterConsumesEachBitAtMostOnce(t *testing.T) {
	owned := maskWith(8, 1, 2)
	filter := once(owned)

	assert.True(t, filter(2))
	assert.False(t, filter(2), "a bit already consumed must not be reported owned again")
	assert.False(t, filter(3), "a bit never owned is never reported owned")
}

type pairValue struct {
	A uint8
	B uint16
}

func TestFieldProjection(t *testing.T) {
	key, err := Field[pairValue, uint16](8, 1, 1, func(v *pairValue) *uint16 { return &v.B })
	require.NoError(t, err)

	value := pairValue{A: 1, B: 2}
	ptr := key.project(&value, once(key.mask))
	require.NotNil(t, ptr)
	*ptr = 5
	assert.Equal(t, uint16(5), value.B)
}

func TestGroupAggregatesInOrder(t *testing.T) {
	k0, err := Index[int](8, 1, 0)
	require.NoError(t, err)
	k1, err := Index[int](8, 1, 1)
	require.NoError(t, err)

	group, err := Group(k0, k1)
	require.NoError(t, err)

	value := []int{10, 20}
	result := group.project(&value, once(group.mask))
	require.Len(t, result, 2)
	require.NotNil(t, result[0])
	require.NotNil(t, result[1])
	assert.Equal(t, 10, *result[0])
	assert.Equal(t, 20, *result[1])
}
