package idset

import (
	"github.com/hupe1980/segdag/model"
)

// Iter walks the ids of a Set in descending order.
type Iter struct {
	spans []Span
	// index of the current span; cur is the next id to emit.
	i     int
	cur   model.Id
	done  bool
	fresh bool
}

// Iter returns a descending iterator over the set.
func (s Set) Iter() *Iter {
	it := &Iter{spans: s.spans, fresh: true}
	if len(s.spans) == 0 {
		it.done = true
	}
	return it
}

// Next returns the next id in descending order.
func (it *Iter) Next() (model.Id, bool) {
	if it.done {
		return 0, false
	}
	if it.fresh {
		it.fresh = false
		it.cur = it.spans[0].High
		return it.cur, true
	}
	sp := it.spans[it.i]
	if it.cur > sp.Low {
		it.cur--
		return it.cur, true
	}
	it.i++
	if it.i >= len(it.spans) {
		it.done = true
		return 0, false
	}
	it.cur = it.spans[it.i].High
	return it.cur, true
}

// IDsDesc materializes the set as a descending slice of ids. Intended
// for small sets and tests.
func (s Set) IDsDesc() []model.Id {
	out := make([]model.Id, 0, s.Count())
	for _, sp := range s.spans {
		for id := sp.High; ; id-- {
			out = append(out, id)
			if id == sp.Low {
				break
			}
		}
	}
	return out
}
