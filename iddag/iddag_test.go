package iddag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/segdag/idset"
	"github.com/hupe1980/segdag/model"
)

var nonMasterMin = model.GroupNonMaster.MinID()

func parentsFromMap(parents map[model.Id][]model.Id) ParentsFunc {
	return func(id model.Id) ([]model.Id, error) {
		return parents[id], nil
	}
}

// buildGraph1 covers two roots and one merge with the default segment
// size, producing three flat segments and no high levels:
//
//	0--1--2
//	       \
//	3--4----5--6--7--8--9--10
func buildGraph1(t *testing.T) *IdDag {
	t.Helper()
	d := New()
	count, err := d.BuildSegments(10, parentsFromMap(map[model.Id][]model.Id{
		1: {0}, 2: {1}, 4: {3}, 5: {4, 2},
		6: {5}, 7: {6}, 8: {7}, 9: {8}, 10: {9},
	}))
	require.NoError(t, err)
	require.Equal(t, 3, count)
	return d
}

// buildGraph2 is a chain of diamonds. With segment size 2 it produces
// nine flat segments and two high levels:
//
//	      2     5     8     11
//	     / \   / \   / \   /  \
//	0--1    4     7     10     13
//	     \ /   \ /   \ /   \  /
//	      3     6     9     12
func buildGraph2(t *testing.T) *IdDag {
	t.Helper()
	d := New(func(o *Options) {
		o.SegmentSize = 2
	})
	count, err := d.BuildSegments(13, parentsFromMap(map[model.Id][]model.Id{
		1: {0}, 2: {1}, 3: {1}, 4: {2, 3},
		5: {4}, 6: {4}, 7: {5, 6},
		8: {7}, 9: {7}, 10: {8, 9},
		11: {10}, 12: {10}, 13: {11, 12},
	}))
	require.NoError(t, err)
	require.Equal(t, 14, count)
	return d
}

// buildGraph3 has two master branches that never merge, plus a draft
// chain on top of both. Built with segment size 2.
//
//	0--1--2--6--7            master
//	3--4--5--8--9            master
//	N0--N1--N2               draft; N0's parent is 7, N2 merges 9 and N1
func buildGraph3(t *testing.T) *IdDag {
	t.Helper()
	d := New(func(o *Options) {
		o.SegmentSize = 2
	})
	count, err := d.BuildSegments(9, parentsFromMap(map[model.Id][]model.Id{
		1: {0}, 2: {1}, 6: {2}, 7: {6},
		4: {3}, 5: {4}, 8: {5}, 9: {8},
	}))
	require.NoError(t, err)
	require.Equal(t, 4, count)

	nm := nonMasterMin
	count, err = d.BuildSegments(nm+2, parentsFromMap(map[model.Id][]model.Id{
		nm:     {7},
		nm + 1: {nm},
		nm + 2: {9, nm + 1},
	}))
	require.NoError(t, err)
	require.Equal(t, 5, count)
	return d
}

func TestBuildSegmentsFlat(t *testing.T) {
	d := buildGraph1(t)

	segments, err := d.FlatSegments(model.GroupMaster)
	require.NoError(t, err)
	require.Equal(t, []model.FlatSegment{
		{Low: 0, High: 2},
		{Low: 3, High: 4},
		{Low: 5, High: 10, Parents: []model.Id{4, 2}},
	}, segments)

	// No level got enough segments to be worth building.
	assert.Equal(t, 0, d.store.MaxLevel())
}

func TestBuildSegmentsFlags(t *testing.T) {
	d := buildGraph1(t)

	seg, ok := d.store.FindSegmentByHead(2, 0)
	require.True(t, ok)
	assert.True(t, seg.HasRoot())
	assert.True(t, seg.OnlyHead())

	seg, ok = d.store.FindSegmentByHead(4, 0)
	require.True(t, ok)
	assert.True(t, seg.HasRoot())
	assert.False(t, seg.OnlyHead())

	seg, ok = d.store.FindSegmentByHead(10, 0)
	require.True(t, ok)
	assert.False(t, seg.HasRoot())
	assert.True(t, seg.OnlyHead())
}

func TestBuildSegmentsHighLevels(t *testing.T) {
	d := buildGraph2(t)
	require.Equal(t, 2, d.store.MaxLevel())

	assert.Equal(t, []model.Segment{
		{Level: 1, Low: 0, High: 2, Flags: model.SegmentHasRoot},
		{Level: 1, Low: 3, High: 5, Parents: []model.Id{1, 2}},
		{Level: 1, Low: 6, High: 8, Parents: []model.Id{4, 5}},
		{Level: 1, Low: 9, High: 11, Parents: []model.Id{7, 8}},
	}, d.store.NextSegments(0, 1))

	assert.Equal(t, []model.Segment{
		{Level: 2, Low: 0, High: 5, Flags: model.SegmentHasRoot},
	}, d.store.NextSegments(0, 2))
}

func TestBuildSegmentsTwoGroups(t *testing.T) {
	d := buildGraph3(t)

	master, err := d.FlatSegments(model.GroupMaster)
	require.NoError(t, err)
	require.Equal(t, []model.FlatSegment{
		{Low: 0, High: 2},
		{Low: 3, High: 5},
		{Low: 6, High: 7, Parents: []model.Id{2}},
		{Low: 8, High: 9, Parents: []model.Id{5}},
	}, master)

	nm := nonMasterMin
	draft, err := d.FlatSegments(model.GroupNonMaster)
	require.NoError(t, err)
	require.Equal(t, []model.FlatSegment{
		{Low: nm, High: nm + 1, Parents: []model.Id{7}},
		{Low: nm + 2, High: nm + 2, Parents: []model.Id{9, nm + 1}},
	}, draft)

	// Draft segments never get the only-head fast path flag.
	for _, seg := range d.store.NextSegments(nm, 0) {
		assert.False(t, seg.OnlyHead())
	}

	require.Equal(t, 1, d.store.MaxLevel())
	assert.Equal(t, []model.Segment{
		{Level: 1, Low: 0, High: 2, Flags: model.SegmentHasRoot},
		{Level: 1, Low: 3, High: 5, Flags: model.SegmentHasRoot},
		{Level: 1, Low: 6, High: 7, Parents: []model.Id{2}},
	}, d.store.NextSegments(0, 1))
}

func TestBuildSegmentsIdempotent(t *testing.T) {
	d := buildGraph1(t)
	count, err := d.BuildSegments(10, parentsFromMap(nil))
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestBuildSegmentsOnTop(t *testing.T) {
	d := buildGraph1(t)
	count, err := d.BuildSegments(12, parentsFromMap(map[model.Id][]model.Id{
		11: {10}, 12: {11},
	}))
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	assert.True(t, d.ContainsID(12))
	assert.Equal(t, model.Id(13), d.NextFreeID(model.GroupMaster))

	// The trailing segment descends from the previous single head, so
	// the fast path flag carries over.
	seg, ok := d.store.FindSegmentByHead(12, 0)
	require.True(t, ok)
	assert.True(t, seg.OnlyHead())

	ancestors, err := d.Ancestors(idset.FromSingle(12))
	require.NoError(t, err)
	assert.Equal(t, "{0..12}", ancestors.String())
}

func TestBuildSegmentsFromPrepared(t *testing.T) {
	d := New()
	count, err := d.BuildSegmentsFromPrepared([]model.FlatSegment{
		{Low: 0, High: 2},
		{Low: 3, High: 4},
		{Low: 5, High: 10, Parents: []model.Id{4, 2}},
	})
	require.NoError(t, err)
	require.Equal(t, 3, count)

	// The rebuilt dag matches a locally built one, flags included.
	seg, ok := d.store.FindSegmentByHead(2, 0)
	require.True(t, ok)
	assert.True(t, seg.HasRoot())
	assert.True(t, seg.OnlyHead())
	seg, ok = d.store.FindSegmentByHead(10, 0)
	require.True(t, ok)
	assert.True(t, seg.OnlyHead())

	ancestors, err := d.Ancestors(idset.FromSingle(10))
	require.NoError(t, err)
	assert.Equal(t, "{0..10}", ancestors.String())

	t.Run("on top", func(t *testing.T) {
		count, err := d.BuildSegmentsFromPrepared([]model.FlatSegment{
			{Low: 11, High: 12, Parents: []model.Id{10}},
		})
		require.NoError(t, err)
		assert.Equal(t, 1, count)
		assert.True(t, d.ContainsID(12))

		seg, ok := d.store.FindSegmentByHead(12, 0)
		require.True(t, ok)
		assert.True(t, seg.OnlyHead())
	})

	t.Run("gap", func(t *testing.T) {
		d := New()
		_, err := d.BuildSegmentsFromPrepared([]model.FlatSegment{
			{Low: 5, High: 9},
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrProgramming)
	})
}

func TestVersion(t *testing.T) {
	d := New()
	v0 := d.Version()

	_, err := d.BuildSegments(3, parentsFromMap(map[model.Id][]model.Id{
		1: {0}, 2: {1}, 3: {2},
	}))
	require.NoError(t, err)

	v1 := d.Version()
	assert.NotEqual(t, v0, v1)
	assert.True(t, v0.SameLineage(v1))

	require.NoError(t, d.RemoveNonMaster())
	v2 := d.Version()
	assert.False(t, v1.SameLineage(v2))
}

func TestCloneReadOnly(t *testing.T) {
	d := buildGraph1(t)
	clone := d.CloneReadOnly()
	assert.Equal(t, d.Version(), clone.Version())

	_, err := d.BuildSegments(12, parentsFromMap(map[model.Id][]model.Id{
		11: {10}, 12: {11},
	}))
	require.NoError(t, err)

	assert.True(t, d.ContainsID(12))
	assert.False(t, clone.ContainsID(12))
	assert.NotEqual(t, d.Version(), clone.Version())
	assert.True(t, d.Version().SameLineage(clone.Version()))

	ancestors, err := clone.Ancestors(idset.FromSingle(10))
	require.NoError(t, err)
	assert.Equal(t, "{0..10}", ancestors.String())
}

func TestRemoveNonMaster(t *testing.T) {
	d := buildGraph3(t)
	nm := nonMasterMin

	require.True(t, d.ContainsID(nm+2))
	saved := d.NonMasterParentIDs()
	require.Equal(t, map[model.Id][]model.Id{
		nm:     {7},
		nm + 1: {nm},
		nm + 2: {9, nm + 1},
	}, saved)

	require.NoError(t, d.RemoveNonMaster())
	assert.False(t, d.ContainsID(nm))
	assert.Equal(t, "{0..9}", d.All().String())

	// Child lookups against removed drafts go away with them.
	children, err := d.ChildrenID(7)
	require.NoError(t, err)
	assert.True(t, children.IsEmpty())
	children, err = d.ChildrenID(2)
	require.NoError(t, err)
	assert.Equal(t, "{6}", children.String())

	// The saved parent map is enough to rebuild the draft group.
	_, err = d.BuildSegments(nm+2, parentsFromMap(saved))
	require.NoError(t, err)
	assert.True(t, d.ContainsID(nm+2))

	ancestors, err := d.Ancestors(idset.FromSingle(nm + 2))
	require.NoError(t, err)
	assert.Equal(t, "{N0..N2, 0..9}", ancestors.String())
}

func TestIDSetToFlatSegments(t *testing.T) {
	d := buildGraph1(t)

	t.Run("whole dag", func(t *testing.T) {
		segments, err := d.IDSetToFlatSegments(d.All())
		require.NoError(t, err)
		assert.Equal(t, []model.FlatSegment{
			{Low: 0, High: 2},
			{Low: 3, High: 4},
			{Low: 5, High: 10, Parents: []model.Id{4, 2}},
		}, segments)
	})

	t.Run("cut segments", func(t *testing.T) {
		set := idset.FromSpans(idset.SpanOf(5, 7), idset.SpanOf(1, 2))
		segments, err := d.IDSetToFlatSegments(set)
		require.NoError(t, err)
		assert.Equal(t, []model.FlatSegment{
			{Low: 1, High: 2, Parents: []model.Id{0}},
			{Low: 5, High: 7, Parents: []model.Id{4, 2}},
		}, segments)
	})

	t.Run("empty", func(t *testing.T) {
		segments, err := d.IDSetToFlatSegments(idset.Empty())
		require.NoError(t, err)
		assert.Empty(t, segments)
	})
}

func TestUniversalIDs(t *testing.T) {
	t.Run("merge parents and head", func(t *testing.T) {
		d := buildGraph1(t)
		universal, err := d.UniversalIDs()
		require.NoError(t, err)
		assert.Equal(t, "{10, 4, 2}", universal.String())
	})

	t.Run("two heads", func(t *testing.T) {
		d := buildGraph3(t)
		universal, err := d.UniversalIDs()
		require.NoError(t, err)
		assert.Equal(t, "{9, 7}", universal.String())
	})
}

func TestContainsID(t *testing.T) {
	d := buildGraph1(t)
	assert.True(t, d.ContainsID(0))
	assert.True(t, d.ContainsID(10))
	assert.False(t, d.ContainsID(11))
	assert.False(t, d.ContainsID(nonMasterMin))
	assert.Equal(t, model.Id(11), d.NextFreeID(model.GroupMaster))
	assert.Equal(t, nonMasterMin, d.NextFreeID(model.GroupNonMaster))
}

func TestVerifyIntegrityBuilt(t *testing.T) {
	for name, build := range map[string]func(*testing.T) *IdDag{
		"graph1": buildGraph1,
		"graph2": buildGraph2,
		"graph3": buildGraph3,
	} {
		t.Run(name, func(t *testing.T) {
			d := build(t)
			assert.Empty(t, d.VerifyIntegrity())
		})
	}
}
