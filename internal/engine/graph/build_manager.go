package graph

import (
	"github.com/jonboulle/clockwork"
	"go.trai.ch/builder/internal/core/domain"
	"go.trai.ch/builder/internal/core/ports"
)

// BuildManager holds the rule graph and hands out a fresh BuildGraph per session.
type BuildManager struct {
	rules  *RuleGraph
	stores StoreRegistry
	clock  clockwork.Clock
	logger ports.Logger
}

// Option configures a BuildManager.
type Option func(*BuildManager)

// WithClock sets the clock used for cache time and curfew decisions.
func WithClock(clock clockwork.Clock) Option {
	return func(m *BuildManager) {
		m.clock = clock
	}
}

// WithLogger sets the logger handed to every BuildGraph.
func WithLogger(logger ports.Logger) Option {
	return func(m *BuildManager) {
		m.logger = logger
	}
}

// NewBuildManager builds the rule graph from the enabled jobs and metas.
func NewBuildManager(jobs []domain.JobDefinition, metas []domain.MetaTarget, stores StoreRegistry, opts ...Option) *BuildManager {
	m := &BuildManager{
		rules:  NewRuleGraph(jobs, metas),
		stores: stores,
		clock:  clockwork.NewRealClock(),
		logger: discard{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Rules returns the rule graph.
func (m *BuildManager) Rules() *RuleGraph { return m.rules }

// MakeBuild returns an empty BuildGraph over the rule graph.
func (m *BuildManager) MakeBuild() *BuildGraph {
	return newBuildGraph(m.rules, m.stores, m.clock, m.logger)
}

type discard struct{}

func (discard) Debug(string) {}
func (discard) Info(string) {}
func (discard) Warn(string) {}
func (discard) Error(error) {}
