package segdag_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	segdag "github.com/hupe1980/segdag"
	"github.com/hupe1980/segdag/model"
	"github.com/hupe1980/segdag/testutil"
)

func TestFlush(t *testing.T) {
	ctx := context.Background()

	t.Run("promotes heads to master", func(t *testing.T) {
		d := segdag.NewMemDag()
		g := testutil.DrawDag(`
			A-B-C
			A-D
		`)
		require.NoError(t, d.AddHeads(ctx, g, testutil.V("C"), testutil.V("D")))

		require.NoError(t, d.Flush(ctx, testutil.V("C")))

		// C and its ancestry got dense master ids from zero.
		for i, name := range []string{"A", "B", "C"} {
			id, err := d.VertexID(ctx, testutil.V(name))
			require.NoError(t, err)
			assert.Equal(t, model.Id(i), id, name)
			assert.Equal(t, model.GroupMaster, id.Group())
		}

		// D survived the flush but stays non-master.
		id, err := d.VertexID(ctx, testutil.V("D"))
		require.NoError(t, err)
		assert.Equal(t, model.GroupNonMaster, id.Group())

		assert.Equal(t, uint64(3), d.MasterGroup().Count())
		assert.Equal(t, uint64(4), d.All().Count())
		assert.Empty(t, d.VerifyIntegrity())
	})

	t.Run("second flush extends the master group", func(t *testing.T) {
		d := segdag.NewMemDag()
		g := testutil.DrawDag(`
			A-B-C
			A-D
		`)
		require.NoError(t, d.AddHeads(ctx, g, testutil.V("C"), testutil.V("D")))
		require.NoError(t, d.Flush(ctx, testutil.V("C")))

		require.NoError(t, d.Flush(ctx, testutil.V("D")))

		// Earlier master ids are stable across flushes.
		c, err := d.VertexID(ctx, testutil.V("C"))
		require.NoError(t, err)
		assert.Equal(t, model.Id(2), c)

		id, err := d.VertexID(ctx, testutil.V("D"))
		require.NoError(t, err)
		assert.Equal(t, model.GroupMaster, id.Group())
		assert.Equal(t, uint64(4), d.MasterGroup().Count())
	})

	t.Run("queries agree before and after", func(t *testing.T) {
		d := segdag.NewMemDag()
		g := testutil.DrawDag(`
			A-B-C
			A-D
			E: C D
		`)
		require.NoError(t, d.AddHeads(ctx, g, testutil.V("E")))

		before, err := d.Ancestors(ctx, set(t, d, "E"))
		require.NoError(t, err)
		beforeNames := names(t, before)

		require.NoError(t, d.Flush(ctx, testutil.V("E")))

		after, err := d.Ancestors(ctx, set(t, d, "E"))
		require.NoError(t, err)
		assert.ElementsMatch(t, beforeNames, names(t, after))

		// The merge shape survived the id reassignment.
		parents, err := d.ParentNames(ctx, testutil.V("E"))
		require.NoError(t, err)
		assert.Equal(t, testutil.Vs("C", "D"), parents)
	})

	t.Run("add heads and flush", func(t *testing.T) {
		d := segdag.NewMemDag()
		require.NoError(t, d.AddHeadsAndFlush(ctx, testutil.DrawDag("A-B"), testutil.V("B")))

		id, err := d.VertexID(ctx, testutil.V("B"))
		require.NoError(t, err)
		assert.Equal(t, model.GroupMaster, id.Group())
	})

	t.Run("flush starts a new lineage", func(t *testing.T) {
		d := segdag.NewMemDag()
		require.NoError(t, d.AddHeads(ctx, testutil.DrawDag("A-B"), testutil.V("B")))

		v0 := d.Version()
		require.NoError(t, d.Flush(ctx, testutil.V("B")))
		assert.False(t, v0.SameLineage(d.Version()))
	})
}

func TestOpenFlushReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	d, err := segdag.Open(dir)
	require.NoError(t, err)

	g := testutil.DrawDag(`
		A-B-C
		A-D
	`)
	require.NoError(t, d.AddHeads(ctx, g, testutil.V("C"), testutil.V("D")))
	require.NoError(t, d.Flush(ctx, testutil.V("C")))

	version := d.Version()
	require.NoError(t, d.Close())

	// The master state survives; the non-master head D was transient.
	d, err = segdag.Open(dir)
	require.NoError(t, err)
	defer d.Close()

	assert.Equal(t, version, d.Version())
	assert.Equal(t, uint64(3), d.All().Count())
	assert.Empty(t, d.VerifyIntegrity())

	for i, name := range []string{"A", "B", "C"} {
		id, err := d.VertexID(ctx, testutil.V(name))
		require.NoError(t, err)
		assert.Equal(t, model.Id(i), id, name)
	}

	ok, err := d.ContainsVertexName(ctx, testutil.V("D"))
	require.NoError(t, err)
	assert.False(t, ok)

	// The reopened graph keeps working.
	require.NoError(t, d.AddHeadsAndFlush(ctx, testutil.DrawDag("A-B-C-E"), testutil.V("E")))
	id, err := d.VertexID(ctx, testutil.V("E"))
	require.NoError(t, err)
	assert.Equal(t, model.Id(3), id)
}

func TestOpenUnflushedChangesRollBack(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	d, err := segdag.Open(dir)
	require.NoError(t, err)
	require.NoError(t, d.AddHeadsAndFlush(ctx, testutil.DrawDag("A-B"), testutil.V("B")))

	// Added but never flushed: gone after reopen.
	require.NoError(t, d.AddHeads(ctx, testutil.DrawDag("A-B-C"), testutil.V("C")))
	require.NoError(t, d.Close())

	d, err = segdag.Open(dir)
	require.NoError(t, err)
	defer d.Close()

	assert.Equal(t, uint64(2), d.All().Count())

	ok, err := d.ContainsVertexName(ctx, testutil.V("C"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOpenWithCompression(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	d, err := segdag.Open(dir, segdag.WithCompression(3))
	require.NoError(t, err)
	require.NoError(t, d.AddHeadsAndFlush(ctx, testutil.DrawDag("A-B-C"), testutil.V("C")))
	require.NoError(t, d.Close())

	d, err = segdag.Open(dir, segdag.WithCompression(3))
	require.NoError(t, err)
	defer d.Close()

	assert.Equal(t, uint64(3), d.All().Count())
}
