// Package testutil provides helpers shared by the graph tests: an
// ASCII graph notation, deterministic hashed vertex names, and a
// counting remote service wrapper for asserting round trip budgets.
//
// # Graph Notation
//
//	g := testutil.DrawDag(`
//	  A-B-C-E
//	  B-D
//	  E: C D
//	`)
//
// Chains read parent to child left to right; a "child: parents" line
// sets an explicit parent order, which matters for first-parent walks.
//
// # Counting Remotes
//
//	remote := testutil.NewCountingRemote(inner)
//	... exercise the lazy graph ...
//	require.Equal(t, 1, remote.PathCalls())
package testutil
