package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroupRanges(t *testing.T) {
	assert.Equal(t, Id(0), GroupMaster.MinID())
	assert.Equal(t, Id(1)<<56, GroupNonMaster.MinID())
	assert.Equal(t, GroupNonMaster.MinID()-1, GroupMaster.MaxID())

	assert.Equal(t, GroupMaster, Id(0).Group())
	assert.Equal(t, GroupMaster, GroupMaster.MaxID().Group())
	assert.Equal(t, GroupNonMaster, GroupNonMaster.MinID().Group())
	assert.Equal(t, GroupNonMaster, (GroupNonMaster.MinID() + 42).Group())
}

func TestIdString(t *testing.T) {
	assert.Equal(t, "12", Id(12).String())
	assert.Equal(t, "N3", (GroupNonMaster.MinID() + 3).String())
}

func TestVertexString(t *testing.T) {
	assert.Equal(t, "A", VertexFromString("A").String())
	assert.Equal(t, "00ff", Vertex([]byte{0x00, 0xff}).String())
	assert.True(t, VertexFromString("abc").Equal(Vertex("abc")))
	assert.False(t, VertexFromString("abc").Equal(Vertex("abd")))
}

func TestSegmentFlagsAndString(t *testing.T) {
	s := Segment{
		Level:   1,
		Low:     0,
		High:    5,
		Parents: nil,
		Flags:   SegmentHasRoot | SegmentOnlyHead,
	}
	assert.True(t, s.HasRoot())
	assert.True(t, s.OnlyHead())
	assert.Equal(t, "RH0-5[]", s.String())

	m := Segment{Level: 0, Low: 6, High: 7, Parents: []Id{3, 5}}
	assert.False(t, m.HasRoot())
	assert.Equal(t, "6-7[3, 5]", m.String())
	assert.True(t, m.Contains(6))
	assert.True(t, m.Contains(7))
	assert.False(t, m.Contains(8))
}

func TestVerLink(t *testing.T) {
	a := NewVerLink()
	b := a.Bump()
	require.NotEqual(t, a, b)
	assert.True(t, a.SameLineage(b))
	assert.Equal(t, a, a)

	c := NewVerLink()
	assert.False(t, a.SameLineage(c))
	assert.NotEqual(t, a, c)
}

func TestVerLinkJSON(t *testing.T) {
	a := NewVerLink().Bump().Bump()

	data, err := json.Marshal(a)
	require.NoError(t, err)

	var b VerLink
	require.NoError(t, json.Unmarshal(data, &b))
	assert.Equal(t, a, b)
	assert.True(t, a.SameLineage(b))

	require.Error(t, json.Unmarshal([]byte(`{"base":"not-a-uuid","seq":1}`), &b))
}
