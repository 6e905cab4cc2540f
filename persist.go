package segdag

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/hupe1980/segdag/iddag"
	"github.com/hupe1980/segdag/idmap"
	"github.com/hupe1980/segdag/internal/flock"
	"github.com/hupe1980/segdag/manifest"
	"github.com/hupe1980/segdag/wal"
)

// On-disk layout of one graph instance. Each store is independently
// lockable; lock acquisition always nests manifest -> idmap ->
// segments so combined stores cannot deadlock.
const (
	manifestDirName = "manifest"
	idmapDirName    = "idmap"
	segmentsDirName = "segments"

	lockFileName    = "LOCK"
	namesLogName    = "names.log"
	segmentsLogName = "segments.log"
)

// diskState holds the open handles of a durable graph directory.
type diskState struct {
	dir       string
	manifests *manifest.Store
	current   *manifest.Manifest
	names     *idmap.FileIdMap
	store     *iddag.FileStore
}

func (s *diskState) close() error {
	var errs []error
	if s.names != nil {
		errs = append(errs, s.names.Close())
		s.names = nil
	}
	if s.store != nil {
		errs = append(errs, s.store.Close())
		s.store = nil
	}
	return errors.Join(errs...)
}

// graphLocks is the held physical locks of one graph directory.
type graphLocks struct {
	locks []*flock.Lock
}

// lockGraphDir acquires the physical locks of dir in nesting order.
// It blocks until every lock is held.
func lockGraphDir(dir string) (*graphLocks, error) {
	g := &graphLocks{}
	for _, sub := range []string{manifestDirName, idmapDirName, segmentsDirName} {
		l, err := flock.Acquire(filepath.Join(dir, sub, lockFileName))
		if err != nil {
			g.release()
			return nil, fmt.Errorf("failed to lock %s store: %w", sub, err)
		}
		g.locks = append(g.locks, l)
	}
	return g, nil
}

// release drops the locks in reverse acquisition order.
func (g *graphLocks) release() {
	for i := len(g.locks) - 1; i >= 0; i-- {
		_ = g.locks[i].Release()
	}
	g.locks = nil
}

// Open opens or creates a durable graph in dir. The directory holds
// three stores (manifest, idmap, segments); the manifest is the commit
// point and records the log sizes of the other two, so a crash between
// flushes rolls back to the last complete flush on open.
func Open(dir string, optFns ...Option) (*Dag, error) {
	opts := applyOptions(optFns)

	locks, err := lockGraphDir(dir)
	if err != nil {
		return nil, err
	}
	defer locks.release()

	disk, dag, err := openDiskStores(dir, opts)
	if err != nil {
		return nil, err
	}

	return &Dag{
		opts:  opts,
		names: disk.names,
		dag:   dag,
		disk:  disk,
	}, nil
}

// openDiskStores loads the manifest and opens the two logs at their
// recorded flush sizes. Callers hold the directory locks.
func openDiskStores(dir string, opts options) (*diskState, *iddag.IdDag, error) {
	manifests := manifest.NewStore(filepath.Join(dir, manifestDirName))
	man, err := manifests.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load manifest: %w", err)
	}

	// A manifest id of zero means no flush ever completed. The logs are
	// accepted as found so journaled imports survive until their first
	// flush records a commit point.
	namesSize, segmentsSize := man.NamesLogSize, man.SegmentsLogSize
	if man.ID == 0 {
		namesSize, segmentsSize = wal.SizeUnknown, wal.SizeUnknown
	}

	names, err := idmap.NewFileIdMap(func(o *idmap.FileIdMapOptions) {
		o.Path = filepath.Join(dir, idmapDirName, namesLogName)
		o.Size = namesSize
		o.Compress = opts.compress
		o.CompressionLevel = opts.compressionLevel
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open name log: %w", err)
	}

	store, err := iddag.NewFileStore(func(o *iddag.FileStoreOptions) {
		o.Path = filepath.Join(dir, segmentsDirName, segmentsLogName)
		o.Size = segmentsSize
		o.Compress = opts.compress
		o.CompressionLevel = opts.compressionLevel
	})
	if err != nil {
		_ = names.Close()
		return nil, nil, fmt.Errorf("failed to open segment log: %w", err)
	}

	dag := iddag.New(func(o *iddag.Options) {
		o.Store = store
		o.SegmentSize = opts.segmentSize
		o.Version = man.GraphVersion
	})

	return &diskState{
		dir:       dir,
		manifests: manifests,
		current:   man,
		names:     names,
		store:     store,
	}, dag, nil
}
