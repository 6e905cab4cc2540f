package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/segdag/model"
)

func TestMaxIdHeap(t *testing.T) {
	q := NewMaxIdHeap(3, 11, 7)
	q.PushID(5)
	q.PushID(20)

	require.Equal(t, 5, q.Len())

	var got []model.Id
	for q.Len() > 0 {
		id, ok := q.PopID()
		require.True(t, ok)
		got = append(got, id)
	}

	assert.Equal(t, []model.Id{20, 11, 7, 5, 3}, got)

	_, ok := q.PopID()
	assert.False(t, ok)
}

func TestMaxIdHeapEmpty(t *testing.T) {
	q := NewMaxIdHeap()
	assert.Equal(t, 0, q.Len())

	_, ok := q.PopID()
	assert.False(t, ok)
}
