package ports

import "go.trai.ch/builder/internal/core/domain"

// ConfigLoader defines the interface for loading the rules file.
//
//go:generate go run go.uber.org/mock/mockgen -source=config_loader.go -destination=mocks/mock_config_loader.go -package=mocks
type ConfigLoader interface {
	// Load reads the rules file at path and returns the job definitions, metas and settings.
	Load(path string) (*domain.Rules, error)
}
