// Package model defines the core types shared across the graph index.
//
// # Identity Types
//
//   - Vertex: Opaque vertex name, typically a commit hash ([]byte)
//   - Id: Dense integer assigned to a vertex on insertion (uint64)
//   - Group: Id namespace, MASTER (low, persisted) or NON_MASTER (high,
//     rebuilt on flush)
//   - VerLink: Graph version lineage token (base uuid + sequence)
//
// # Graph Types
//
//   - FlatSegment: Level-0 run of ids [Low, High] with parent ids
//   - Segment: Stored segment at any level, with flags and parents
//
// An id encodes its group in the high bits, so a single comparison
// answers which namespace a vertex lives in:
//
//	if id.Group() == model.GroupMaster {
//	    // persisted, universally known binding
//	}
package model
