package app

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/builder/internal/adapters/config"             //nolint:depguard // Wired in app layer
	"go.trai.ch/builder/internal/adapters/fs"                 //nolint:depguard // Wired in app layer
	"go.trai.ch/builder/internal/adapters/logger"             //nolint:depguard // Wired in app layer
	"go.trai.ch/builder/internal/adapters/shell"              //nolint:depguard // Wired in app layer
	"go.trai.ch/builder/internal/adapters/telemetry/progrock" //nolint:depguard // Wired in app layer
	"go.trai.ch/builder/internal/adapters/watcher"            //nolint:depguard // Wired in app layer
	"go.trai.ch/builder/internal/core/ports"
)

const (
	// AppNodeID is the unique identifier for the main App Graft node.
	AppNodeID graft.ID = "app.main"
	// ComponentsNodeID is the unique identifier for the App components Graft node.
	ComponentsNodeID graft.ID = "app.components"
)

func init() {
	graft.Register(graft.Node[*App]{
		ID:        AppNodeID,
		Cacheable: true,
		DependsOn: []graft.ID{
			config.NodeID,
			logger.NodeID,
			shell.NodeID,
			progrock.NodeID,
			fs.LocalStoreNodeID,
			fs.GlobStoreNodeID,
			watcher.NodeID,
		},
		Run: runAppNode,
	})

	graft.Register(graft.Node[*Components]{
		ID:        ComponentsNodeID,
		Cacheable: true,
		DependsOn: []graft.ID{
			AppNodeID,
			logger.NodeID,
		},
		Run: func(ctx context.Context) (*Components, error) {
			app, err := graft.Dep[*App](ctx)
			if err != nil {
				return nil, err
			}
			log, err := graft.Dep[ports.Logger](ctx)
			if err != nil {
				return nil, err
			}
			return NewComponents(app, log), nil
		},
	})
}

func runAppNode(ctx context.Context) (*App, error) {
	loader, err := graft.Dep[ports.ConfigLoader](ctx)
	if err != nil {
		return nil, err
	}

	log, err := graft.Dep[ports.Logger](ctx)
	if err != nil {
		return nil, err
	}

	executor, err := graft.Dep[*shell.Executor](ctx)
	if err != nil {
		return nil, err
	}

	recorder, err := graft.Dep[*progrock.Recorder](ctx)
	if err != nil {
		return nil, err
	}

	local, err := graft.Dep[*fs.LocalStore](ctx)
	if err != nil {
		return nil, err
	}

	glob, err := graft.Dep[*fs.GlobStore](ctx)
	if err != nil {
		return nil, err
	}

	w, err := graft.Dep[*watcher.Watcher](ctx)
	if err != nil {
		return nil, err
	}

	return New(loader, log, executor, recorder, local, glob).WithWatcher(w), nil
}
