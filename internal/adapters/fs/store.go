package fs

import (
	"errors"
	"io/fs"
	"os"
	"sync"
	"time"

	"go.trai.ch/builder/internal/core/domain"
	"go.trai.ch/builder/internal/core/ports"
	"go.trai.ch/zerr"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const (
	// LocalBackend is the backend name LocalStore is registered under.
	LocalBackend = domain.DefaultBackend
	// GlobBackend is the backend name GlobStore is registered under.
	GlobBackend = "glob"
)

// DefaultParallelism bounds the number of concurrent stat calls of a bulk lookup.
const DefaultParallelism = 16

var (
	_ ports.TargetStore = (*LocalStore)(nil)
	_ ports.TargetStore = (*GlobStore)(nil)
)

// LocalStore resolves targets as paths on the local file system.
// A directory's mtime is the newest mtime of the files below it.
type LocalStore struct {
	resolver *Resolver
	walker   *Walker
}

// NewLocalStore creates a LocalStore resolving target ids relative to root.
func NewLocalStore(root string, walker *Walker) *LocalStore {
	return &LocalStore{resolver: NewResolver(root), walker: walker}
}

// Mtime implements ports.TargetStore.
func (s *LocalStore) Mtime(ref domain.TargetRef) (time.Time, bool, error) {
	path := s.resolver.Path(ref.ID)
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, zerr.With(zerr.Wrap(err, "failed to stat target"), "path", path)
	}
	if info.IsDir() {
		return s.walker.NewestMtime(path, info.ModTime()), true, nil
	}
	return info.ModTime(), true, nil
}

// BulkMtime implements ports.TargetStore.
func (s *LocalStore) BulkMtime(refs []domain.TargetRef) (map[string]domain.TargetStat, error) {
	return bulk(refs, s.Mtime)
}

// GlobStore resolves targets whose ids are glob patterns. A pattern exists
// when it matches at least one path; its mtime is the newest match.
type GlobStore struct {
	resolver *Resolver
	group    singleflight.Group
}

// NewGlobStore creates a GlobStore resolving patterns relative to root.
func NewGlobStore(root string) *GlobStore {
	return &GlobStore{resolver: NewResolver(root)}
}

type globStat struct {
	mtime  time.Time
	exists bool
}

// Mtime implements ports.TargetStore.
func (s *GlobStore) Mtime(ref domain.TargetRef) (time.Time, bool, error) {
	v, err, _ := s.group.Do(ref.ID, func() (any, error) {
		matches, err := s.resolver.Matches(ref.ID)
		if err != nil {
			return nil, err
		}
		var stat globStat
		for _, path := range matches {
			info, err := os.Stat(path)
			if err != nil {
				continue
			}
			if !stat.exists || info.ModTime().After(stat.mtime) {
				stat.mtime = info.ModTime()
				stat.exists = true
			}
		}
		return stat, nil
	})
	if err != nil {
		return time.Time{}, false, zerr.With(err, "target_id", ref.ID)
	}
	stat := v.(globStat)
	return stat.mtime, stat.exists, nil
}

// BulkMtime implements ports.TargetStore.
func (s *GlobStore) BulkMtime(refs []domain.TargetRef) (map[string]domain.TargetStat, error) {
	return bulk(refs, s.Mtime)
}

// bulk resolves refs concurrently. Missing targets are left out of the result.
func bulk(refs []domain.TargetRef, mtime func(domain.TargetRef) (time.Time, bool, error)) (map[string]domain.TargetStat, error) {
	var (
		mu  sync.Mutex
		out = make(map[string]domain.TargetStat, len(refs))
		g   errgroup.Group
	)
	g.SetLimit(DefaultParallelism)
	for _, ref := range refs {
		g.Go(func() error {
			t, ok, err := mtime(ref)
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
			mu.Lock()
			out[ref.ID] = domain.TargetStat{Exists: true, Mtime: t}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return out, err
	}
	return out, nil
}
