// Package wiring registers all Graft nodes for the application.
package wiring

import (
	// Register adapter nodes.
	_ "go.trai.ch/builder/internal/adapters/config"
	_ "go.trai.ch/builder/internal/adapters/fs"
	_ "go.trai.ch/builder/internal/adapters/logger"
	_ "go.trai.ch/builder/internal/adapters/shell"
	_ "go.trai.ch/builder/internal/adapters/telemetry/progrock"
	_ "go.trai.ch/builder/internal/adapters/watcher"
	// Register app nodes.
	_ "go.trai.ch/builder/internal/app"
)
