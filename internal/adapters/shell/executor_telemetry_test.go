package shell_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.trai.ch/builder/internal/adapters/shell"
	"go.trai.ch/builder/internal/core/ports"
	"go.trai.ch/builder/internal/core/ports/mocks"
	"go.uber.org/mock/gomock"
)

func TestExecutor_Execute_WithVertex(t *testing.T) {
	ctrl := gomock.NewController(t)

	mockLogger := mocks.NewMockLogger(ctrl)
	// Logger shouldn't be used when a vertex is present
	mockLogger.EXPECT().Info(gomock.Any()).Times(0)
	mockLogger.EXPECT().Warn(gomock.Any()).Times(0)

	mockVertex := mocks.NewMockVertex(ctrl)
	var stdoutBuf, stderrBuf bytes.Buffer
	mockVertex.EXPECT().Stdout().Return(&stdoutBuf).AnyTimes()
	mockVertex.EXPECT().Stderr().Return(&stderrBuf).AnyTimes()

	executor := shell.NewExecutor(mockLogger, shell.WithDir(t.TempDir()))
	ctx := ports.ContextWithVertex(context.Background(), mockVertex)

	res, err := executor.Execute(ctx, invocation("echo hello to stdout; echo hello to stderr >&2"))
	require.NoError(t, err)
	require.True(t, res.Status)

	require.Contains(t, stdoutBuf.String(), "hello to stdout")
	require.Contains(t, stderrBuf.String(), "hello to stderr")
}
