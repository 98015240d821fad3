// Package ports defines the core interfaces for the application.
package ports

import (
	"context"

	"go.trai.ch/builder/internal/core/domain"
)

// Executor runs job instances.
//
//go:generate go run go.uber.org/mock/mockgen -source=executor.go -destination=mocks/mock_executor.go -package=mocks
type Executor interface {
	// Initialize performs one-time setup before the first job is executed.
	Initialize(ctx context.Context) error

	// Execute runs the given invocation.
	//
	// A synchronous executor returns the final result. An asynchronous executor
	// returns a result with Async set and delivers the final result on Done.
	// A non-nil error is treated as a failed run.
	Execute(ctx context.Context, inv domain.Invocation) (domain.ExecutionResult, error)
}
