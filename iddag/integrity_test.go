package iddag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/segdag/model"
)

func dagWithStore(t *testing.T, segments ...model.Segment) *IdDag {
	t.Helper()
	store := NewMemStore()
	for _, seg := range segments {
		require.NoError(t, store.Insert(seg))
	}
	return New(func(o *Options) {
		o.Store = store
	})
}

func TestVerifyIntegrityGap(t *testing.T) {
	d := dagWithStore(t,
		model.Segment{Level: 0, Low: 0, High: 2, Flags: model.SegmentHasRoot},
		model.Segment{Level: 0, Low: 5, High: 7, Flags: model.SegmentHasRoot},
	)
	problems := d.VerifyIntegrity()
	require.Len(t, problems, 1)
	assert.Contains(t, problems[0], "leave gaps")
}

func TestVerifyIntegrityOverlap(t *testing.T) {
	d := dagWithStore(t,
		model.Segment{Level: 0, Low: 0, High: 5, Flags: model.SegmentHasRoot},
		model.Segment{Level: 0, Low: 3, High: 8, Parents: []model.Id{2}},
	)
	problems := d.VerifyIntegrity()
	require.Len(t, problems, 1)
	assert.Contains(t, problems[0], "overlaps")
}

func TestVerifyIntegrityBadParents(t *testing.T) {
	nm := nonMasterMin
	d := dagWithStore(t,
		model.Segment{Level: 0, Low: 0, High: 2, Flags: model.SegmentHasRoot},
		// Parent not below the segment's own low id.
		model.Segment{Level: 0, Low: 3, High: 5, Parents: []model.Id{4}},
		// Parent id that no segment covers.
		model.Segment{Level: 0, Low: nm, High: nm + 1, Parents: []model.Id{20}},
	)
	problems := d.VerifyIntegrity()
	require.Len(t, problems, 2)
	assert.Contains(t, problems[0], "not below its low")
	assert.Contains(t, problems[1], "unassigned parent")
}

func TestVerifyIntegrityHighLevel(t *testing.T) {
	t.Run("misaligned head", func(t *testing.T) {
		d := dagWithStore(t,
			model.Segment{Level: 0, Low: 0, High: 2, Flags: model.SegmentHasRoot},
			model.Segment{Level: 0, Low: 3, High: 5, Parents: []model.Id{2}},
			model.Segment{Level: 1, Low: 0, High: 4, Flags: model.SegmentHasRoot},
		)
		problems := d.VerifyIntegrity()
		require.Len(t, problems, 1)
		assert.Contains(t, problems[0], "does not end at a level 0 boundary")
	})

	t.Run("uncovered ids", func(t *testing.T) {
		d := dagWithStore(t,
			model.Segment{Level: 0, Low: 0, High: 2, Flags: model.SegmentHasRoot},
			model.Segment{Level: 1, Low: 0, High: 9, Flags: model.SegmentHasRoot},
		)
		problems := d.VerifyIntegrity()
		require.Len(t, problems, 2)
		assert.Contains(t, problems[0], "covers unassigned ids")
		assert.Contains(t, problems[1], "does not end at a level 0 boundary")
	})
}
