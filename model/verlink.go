package model

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// VerLink is a cheap version token. Two VerLinks compare equal exactly
// when they describe the same logical graph state, so cached derived
// results (snapshots, overlays) can be validated with a single
// comparison instead of re-reading storage.
type VerLink struct {
	base uuid.UUID
	seq  uint64
}

// NewVerLink creates a version token with a fresh random base.
func NewVerLink() VerLink {
	return VerLink{base: uuid.New()}
}

// IsZero reports whether the token is the zero value, meaning it was
// never initialized through NewVerLink or decoding.
func (v VerLink) IsZero() bool {
	return v == VerLink{}
}

// Bump returns the next version in the same lineage.
func (v VerLink) Bump() VerLink {
	return VerLink{base: v.base, seq: v.seq + 1}
}

// SameLineage reports whether two tokens share a base, meaning one is
// an ancestor version of the other.
func (v VerLink) SameLineage(other VerLink) bool {
	return v.base == other.base
}

// String returns a short representation for logs.
func (v VerLink) String() string {
	short := v.base.String()
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("%s+%d", short, v.seq)
}

type verLinkJSON struct {
	Base string `json:"base"`
	Seq  uint64 `json:"seq"`
}

// MarshalJSON implements json.Marshaler so the token can be persisted
// and a reopened graph continues the same lineage.
func (v VerLink) MarshalJSON() ([]byte, error) {
	return json.Marshal(verLinkJSON{Base: v.base.String(), Seq: v.seq})
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *VerLink) UnmarshalJSON(data []byte) error {
	var aux verLinkJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	base, err := uuid.Parse(aux.Base)
	if err != nil {
		return fmt.Errorf("failed to parse version base: %w", err)
	}

	*v = VerLink{base: base, seq: aux.Seq}
	return nil
}
