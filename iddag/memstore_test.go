package iddag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/segdag/idset"
	"github.com/hupe1980/segdag/model"
)

func newTestStore(t *testing.T) *MemStore {
	t.Helper()
	s := NewMemStore()
	nm := nonMasterMin
	for _, seg := range []model.Segment{
		{Level: 0, Low: 0, High: 4, Flags: model.SegmentHasRoot},
		{Level: 0, Low: 5, High: 7, Parents: []model.Id{2}},
		{Level: 0, Low: 8, High: 9, Parents: []model.Id{7, 4}},
		{Level: 1, Low: 0, High: 7, Flags: model.SegmentHasRoot},
		{Level: 0, Low: nm, High: nm + 3, Parents: []model.Id{9}},
	} {
		require.NoError(t, s.Insert(seg))
	}
	return s
}

func TestMemStoreInsert(t *testing.T) {
	s := NewMemStore()

	err := s.Insert(model.Segment{Level: 0, Low: 5, High: 3})
	assert.ErrorIs(t, err, ErrProgramming)

	err = s.Insert(model.Segment{
		Level: 0,
		Low:   model.GroupMaster.MaxID(),
		High:  nonMasterMin,
	})
	assert.ErrorIs(t, err, ErrProgramming)
}

func TestMemStoreNextFreeID(t *testing.T) {
	s := NewMemStore()
	assert.Equal(t, model.Id(0), s.NextFreeID(0, model.GroupMaster))
	assert.Equal(t, nonMasterMin, s.NextFreeID(0, model.GroupNonMaster))

	s = newTestStore(t)
	assert.Equal(t, model.Id(10), s.NextFreeID(0, model.GroupMaster))
	assert.Equal(t, model.Id(8), s.NextFreeID(1, model.GroupMaster))
	assert.Equal(t, nonMasterMin+4, s.NextFreeID(0, model.GroupNonMaster))
	assert.Equal(t, nonMasterMin, s.NextFreeID(1, model.GroupNonMaster))
}

func TestMemStoreMaxLevel(t *testing.T) {
	assert.Equal(t, 0, NewMemStore().MaxLevel())
	assert.Equal(t, 1, newTestStore(t).MaxLevel())
}

func TestMemStoreFindSegmentByHead(t *testing.T) {
	s := newTestStore(t)

	seg, ok := s.FindSegmentByHead(7, 0)
	require.True(t, ok)
	assert.Equal(t, model.Id(5), seg.Low)

	seg, ok = s.FindSegmentByHead(7, 1)
	require.True(t, ok)
	assert.Equal(t, model.Id(0), seg.Low)

	_, ok = s.FindSegmentByHead(6, 0)
	assert.False(t, ok)
	_, ok = s.FindSegmentByHead(20, 0)
	assert.False(t, ok)
}

func TestMemStoreFindFlatSegmentIncluding(t *testing.T) {
	s := newTestStore(t)

	for id, wantLow := range map[model.Id]model.Id{
		0: 0, 4: 0, 5: 5, 6: 5, 9: 8, nonMasterMin + 1: nonMasterMin,
	} {
		seg, ok := s.FindFlatSegmentIncluding(id)
		require.True(t, ok, "id %s", id)
		assert.Equal(t, wantLow, seg.Low, "id %s", id)
	}

	_, ok := s.FindFlatSegmentIncluding(10)
	assert.False(t, ok)
}

func TestMemStoreNextSegments(t *testing.T) {
	s := newTestStore(t)

	segs := s.NextSegments(0, 0)
	require.Len(t, segs, 3)
	assert.Equal(t, model.Id(0), segs[0].Low)
	assert.Equal(t, model.Id(8), segs[2].Low)

	segs = s.NextSegments(5, 0)
	require.Len(t, segs, 2)
	assert.Equal(t, model.Id(5), segs[0].Low)

	// Master queries never leak into the draft group.
	segs = s.NextSegments(nonMasterMin, 0)
	require.Len(t, segs, 1)
	assert.Equal(t, nonMasterMin, segs[0].Low)

	assert.Empty(t, s.NextSegments(nonMasterMin, 1))
}

func TestMemStoreIterSegments(t *testing.T) {
	s := newTestStore(t)

	t.Run("descending", func(t *testing.T) {
		var lows []model.Id
		err := s.IterSegmentsDescending(9, 0, func(seg model.Segment) (bool, error) {
			lows = append(lows, seg.Low)
			return true, nil
		})
		require.NoError(t, err)
		assert.Equal(t, []model.Id{8, 5, 0}, lows)
	})

	t.Run("descending stop", func(t *testing.T) {
		var lows []model.Id
		err := s.IterSegmentsDescending(9, 0, func(seg model.Segment) (bool, error) {
			lows = append(lows, seg.Low)
			return false, nil
		})
		require.NoError(t, err)
		assert.Equal(t, []model.Id{8}, lows)
	})

	t.Run("ascending", func(t *testing.T) {
		var lows []model.Id
		err := s.IterSegmentsAscending(6, 0, func(seg model.Segment) (bool, error) {
			lows = append(lows, seg.Low)
			return true, nil
		})
		require.NoError(t, err)
		assert.Equal(t, []model.Id{5, 8, nonMasterMin}, lows)
	})
}

func TestMemStoreParentIndex(t *testing.T) {
	s := newTestStore(t)

	t.Run("master only", func(t *testing.T) {
		var got []model.Id
		err := s.IterMasterFlatSegmentsWithParentSpan(idset.SpanOf(0, 9), func(parent model.Id, seg model.Segment) (bool, error) {
			got = append(got, parent, seg.Low)
			return true, nil
		})
		require.NoError(t, err)
		// Parent 9's child is a draft segment and is skipped.
		assert.Equal(t, []model.Id{2, 5, 4, 8, 7, 8}, got)
	})

	t.Run("span bounds", func(t *testing.T) {
		var got []model.Id
		err := s.IterMasterFlatSegmentsWithParentSpan(idset.SpanOf(3, 4), func(parent model.Id, seg model.Segment) (bool, error) {
			got = append(got, parent)
			return true, nil
		})
		require.NoError(t, err)
		assert.Equal(t, []model.Id{4}, got)
	})

	t.Run("any group", func(t *testing.T) {
		var lows []model.Id
		err := s.IterFlatSegmentsWithParent(9, func(seg model.Segment) (bool, error) {
			lows = append(lows, seg.Low)
			return true, nil
		})
		require.NoError(t, err)
		assert.Equal(t, []model.Id{nonMasterMin}, lows)
	})
}

func TestMemStoreAllIDsInGroups(t *testing.T) {
	s := newTestStore(t)
	assert.Equal(t, "{0..9}", s.AllIDsInGroups(model.GroupMaster).String())
	assert.Equal(t, "{N0..N3}", s.AllIDsInGroups(model.GroupNonMaster).String())
	assert.Equal(t, "{N0..N3, 0..9}", s.AllIDsInGroups(model.AllGroups[:]...).String())
}

func TestMemStoreRemoveNonMasterIDs(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.RemoveNonMasterIDs())

	assert.Equal(t, nonMasterMin, s.NextFreeID(0, model.GroupNonMaster))
	assert.Equal(t, model.Id(10), s.NextFreeID(0, model.GroupMaster))

	// The parent entry 9 -> N0 went away with the draft segment.
	err := s.IterFlatSegmentsWithParent(9, func(seg model.Segment) (bool, error) {
		t.Fatalf("unexpected segment %s", seg)
		return false, nil
	})
	require.NoError(t, err)

	// Master entries survive.
	var lows []model.Id
	err = s.IterFlatSegmentsWithParent(2, func(seg model.Segment) (bool, error) {
		lows = append(lows, seg.Low)
		return true, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []model.Id{5}, lows)
}

func TestMemStoreCloneReadOnly(t *testing.T) {
	s := newTestStore(t)
	clone := s.CloneReadOnly()

	require.NoError(t, s.Insert(model.Segment{Level: 0, Low: 10, High: 12, Parents: []model.Id{9}}))

	_, ok := s.FindFlatSegmentIncluding(11)
	assert.True(t, ok)
	_, ok = clone.FindFlatSegmentIncluding(11)
	assert.False(t, ok)
	assert.Equal(t, model.Id(10), clone.NextFreeID(0, model.GroupMaster))
}
