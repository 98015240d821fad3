package shell_test

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/builder/internal/adapters/ledger"
	"go.trai.ch/builder/internal/adapters/shell"
	"go.trai.ch/builder/internal/core/domain"
	"go.trai.ch/builder/internal/core/ports/mocks"
	"go.uber.org/mock/gomock"
)

func invocation(command string) domain.Invocation {
	return domain.Invocation{JobID: "job", TemplateID: "job", Command: command}
}

func TestExecutor_Initialize(t *testing.T) {
	ctrl := gomock.NewController(t)
	executor := shell.NewExecutor(mocks.NewMockLogger(ctrl))
	require.NoError(t, executor.Initialize(context.Background()))

	missing := executor.With(shell.WithShell("nonexistent-shell-xyz123"))
	require.Error(t, missing.Initialize(context.Background()))
}

func TestExecutor_Execute_MultiLineOutput(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockLogger := mocks.NewMockLogger(ctrl)
	gomock.InOrder(
		mockLogger.EXPECT().Info("line1"),
		mockLogger.EXPECT().Info("line2"),
	)

	executor := shell.NewExecutor(mockLogger, shell.WithDir(t.TempDir()))
	res, err := executor.Execute(context.Background(), invocation("echo line1; echo line2"))
	require.NoError(t, err)

	assert.True(t, res.Status)
	assert.Equal(t, "line1\nline2\n", res.Stdout)
}

func TestExecutor_Execute_FragmentedOutput(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockLogger := mocks.NewMockLogger(ctrl)
	mockLogger.EXPECT().Info("part1part2").Times(1)

	executor := shell.NewExecutor(mockLogger)
	res, err := executor.Execute(context.Background(), invocation("printf part1; sleep 0.1; echo part2"))
	require.NoError(t, err)
	assert.True(t, res.Status)
}

func TestExecutor_Execute_TrailingPartialLine(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockLogger := mocks.NewMockLogger(ctrl)
	mockLogger.EXPECT().Info("no newline").Times(1)

	executor := shell.NewExecutor(mockLogger)
	_, err := executor.Execute(context.Background(), invocation("printf 'no newline'"))
	require.NoError(t, err)
}

func TestExecutor_Execute_EnvironmentVariables(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockLogger := mocks.NewMockLogger(ctrl)
	mockLogger.EXPECT().Info("test-value-123 job_2015 2015-01-01T00:00:00Z").Times(1)

	executor := shell.NewExecutor(mockLogger)
	inv := invocation("echo $MY_TEST_VAR $BUILDER_JOB_ID $BUILDER_START_TIME")
	inv.JobID = "job_2015"
	inv.Env = map[string]string{"MY_TEST_VAR": "test-value-123"}
	inv.Context = domain.BuildContext{StartTime: time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC)}

	_, err := executor.Execute(context.Background(), inv)
	require.NoError(t, err)
}

func TestExecutor_Execute_CommandFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockLogger := mocks.NewMockLogger(ctrl)
	mockLogger.EXPECT().Warn("oops").Times(1)

	executor := shell.NewExecutor(mockLogger)
	res, err := executor.Execute(context.Background(), invocation("echo oops >&2; exit 42"))
	require.NoError(t, err)

	assert.False(t, res.Status)
	assert.Contains(t, res.Stderr, "oops")
	assert.Contains(t, res.Stderr, "command failed")
}

func TestExecutor_Execute_EmptyCommand(t *testing.T) {
	ctrl := gomock.NewController(t)
	executor := shell.NewExecutor(mocks.NewMockLogger(ctrl))

	res, err := executor.Execute(context.Background(), invocation("  "))
	require.NoError(t, err)
	assert.True(t, res.Status)
}

func TestExecutor_Execute_Cancelled(t *testing.T) {
	ctrl := gomock.NewController(t)
	executor := shell.NewExecutor(mocks.NewMockLogger(ctrl))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := executor.Execute(ctx, invocation("sleep 5"))
	require.NoError(t, err)
	assert.False(t, res.Status)
}

func TestExecutor_Execute_RecordsTargets(t *testing.T) {
	ctrl := gomock.NewController(t)
	recorder := ledger.NewMemoryStore()
	clock := clockwork.NewFakeClockAt(time.Date(2015, 1, 1, 12, 0, 0, 0, time.UTC))
	executor := shell.NewExecutor(mocks.NewMockLogger(ctrl),
		shell.WithRecorder(ledger.Backend, recorder),
		shell.WithClock(clock),
	)

	inv := invocation("true")
	inv.Produces = []domain.TargetRef{
		{ID: "marker", Backend: ledger.Backend},
		{ID: "file.txt", Backend: domain.DefaultBackend},
	}
	res, err := executor.Execute(context.Background(), inv)
	require.NoError(t, err)
	require.True(t, res.Status)

	assert.Equal(t, []string{"marker"}, recorder.IDs())
	mtime, ok, err := recorder.Mtime(inv.Produces[0])
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, mtime.Equal(clock.Now()))
}

func TestExecutor_Execute_FailureRecordsNothing(t *testing.T) {
	ctrl := gomock.NewController(t)
	recorder := ledger.NewMemoryStore()
	executor := shell.NewExecutor(mocks.NewMockLogger(ctrl), shell.WithRecorder(ledger.Backend, recorder))

	inv := invocation("exit 1")
	inv.Produces = []domain.TargetRef{{ID: "marker", Backend: ledger.Backend}}
	res, err := executor.Execute(context.Background(), inv)
	require.NoError(t, err)
	assert.False(t, res.Status)
	assert.Empty(t, recorder.IDs())
}

func TestExecutor_Execute_Async(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockLogger := mocks.NewMockLogger(ctrl)
	mockLogger.EXPECT().Info("async").Times(1)

	executor := shell.NewExecutor(mockLogger, shell.WithAsync(2))
	res, err := executor.Execute(context.Background(), invocation("echo async"))
	require.NoError(t, err)
	require.True(t, res.Async)

	final := <-res.Done
	assert.True(t, final.Status)
	assert.Equal(t, "async\n", final.Stdout)
}
