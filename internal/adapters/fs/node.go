package fs

import (
	"context"

	"github.com/grindlemire/graft"
)

const (
	// WalkerNodeID is the unique identifier for the walker Graft node.
	WalkerNodeID graft.ID = "adapter.fs.walker"
	// LocalStoreNodeID is the unique identifier for the local store Graft node.
	LocalStoreNodeID graft.ID = "adapter.fs.local"
	// GlobStoreNodeID is the unique identifier for the glob store Graft node.
	GlobStoreNodeID graft.ID = "adapter.fs.glob"
)

// Stores resolve target ids relative to the working directory.
const root = "."

func init() {
	graft.Register(graft.Node[*Walker]{
		ID:        WalkerNodeID,
		Cacheable: true,
		Run: func(_ context.Context) (*Walker, error) {
			return NewWalker(), nil
		},
	})

	graft.Register(graft.Node[*LocalStore]{
		ID:        LocalStoreNodeID,
		Cacheable: true,
		DependsOn: []graft.ID{WalkerNodeID},
		Run: func(ctx context.Context) (*LocalStore, error) {
			walker, err := graft.Dep[*Walker](ctx)
			if err != nil {
				return nil, err
			}
			return NewLocalStore(root, walker), nil
		},
	})

	graft.Register(graft.Node[*GlobStore]{
		ID:        GlobStoreNodeID,
		Cacheable: true,
		Run: func(_ context.Context) (*GlobStore, error) {
			return NewGlobStore(root), nil
		},
	})
}
