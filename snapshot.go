package segdag

// TrySnapshot returns a read-only view of the graph at its current
// version. Snapshots share the underlying store data copy-free, carry
// their own lock, and never see later mutations, so they can serve
// queries concurrently with writes on the live instance.
//
// Repeated calls between mutations return the same snapshot.
func (d *Dag) TrySnapshot() (*Dag, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, ErrClosed
	}

	version := d.dag.Version()
	if d.snapCache != nil && d.snapVersion == version {
		return d.snapCache, nil
	}

	snap := &Dag{
		opts:     d.opts,
		names:    d.names.CloneReadOnly(),
		dag:      d.dag.CloneReadOnly(),
		readonly: true,
	}
	// Remote resolution stays available; the snapshot builds its own
	// overlay since the live one may change under it.
	if d.overlay != nil {
		ov := newOverlay(d.overlay.base)
		for id, name := range d.overlay.idToName {
			ov.insert(id, name)
		}
		snap.overlay = ov
	}

	d.snapCache = snap
	d.snapVersion = version
	return snap, nil
}
