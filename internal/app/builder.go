package app

import "go.trai.ch/builder/internal/core/ports"

// Components contains all the initialized application components.
// This struct provides controlled access to components needed by the CLI layer.
type Components struct {
	App    *App
	Logger ports.Logger
}

// NewComponents creates a new Components struct from dependencies.
func NewComponents(app *App, logger ports.Logger) *Components {
	return &Components{
		App:    app,
		Logger: logger,
	}
}

// Verbose switches debug logging on when the logger supports it.
func (c *Components) Verbose(on bool) {
	if l, ok := c.Logger.(interface{ SetVerbose(bool) }); ok {
		l.SetVerbose(on)
	}
}
