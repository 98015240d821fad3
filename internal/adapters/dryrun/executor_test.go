package dryrun_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/builder/internal/adapters/dryrun"
	"go.trai.ch/builder/internal/adapters/ledger"
	"go.trai.ch/builder/internal/core/domain"
	"go.trai.ch/builder/internal/core/ports"
	"go.trai.ch/builder/internal/core/ports/mocks"
	"go.uber.org/mock/gomock"
)

var epoch = time.Date(2015, 1, 1, 12, 0, 0, 0, time.UTC)

func TestExecutor_SimulatesAndRecords(t *testing.T) {
	ctrl := gomock.NewController(t)
	log := mocks.NewMockLogger(ctrl)
	log.EXPECT().Info("dry run: commands are printed, not executed")
	log.EXPECT().Info("Simulation: make report")

	recorder := ledger.NewMemoryStore()
	executor := dryrun.NewExecutor(log, recorder, clockwork.NewFakeClockAt(epoch))
	require.NoError(t, executor.Initialize(context.Background()))

	res, err := executor.Execute(context.Background(), domain.Invocation{
		JobID:    "report",
		Command:  "make report",
		Produces: []domain.TargetRef{{ID: "report.csv", Backend: domain.DefaultBackend}},
	})
	require.NoError(t, err)
	assert.True(t, res.Status)
	assert.Equal(t, "Simulation: make report", res.Stdout)

	mtime, ok, err := recorder.Mtime(domain.TargetRef{ID: "report.csv"})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, mtime.Equal(epoch))
}

func TestExecutor_WritesToVertex(t *testing.T) {
	ctrl := gomock.NewController(t)
	vertex := mocks.NewMockVertex(ctrl)
	var out bytes.Buffer
	vertex.EXPECT().Stdout().Return(&out)

	executor := dryrun.NewExecutor(mocks.NewMockLogger(ctrl), ledger.NewMemoryStore(), nil)
	ctx := ports.ContextWithVertex(context.Background(), vertex)
	_, err := executor.Execute(ctx, domain.Invocation{JobID: "a", Command: "echo a"})
	require.NoError(t, err)
	assert.Equal(t, "Simulation: echo a\n", out.String())
}

func TestExecutor_RecorderFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	log := mocks.NewMockLogger(ctrl)
	log.EXPECT().Info(gomock.Any())
	recorder := mocks.NewMockTargetRecorder(ctrl)
	recorder.EXPECT().Touch(gomock.Any(), gomock.Any()).Return(errors.New("disk full"))

	executor := dryrun.NewExecutor(log, recorder, nil)
	_, err := executor.Execute(context.Background(), domain.Invocation{
		JobID:    "a",
		Produces: []domain.TargetRef{{ID: "x"}},
	})
	require.Error(t, err)
	assert.ErrorContains(t, err, "disk full")
}
