package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sipsa-io/sipsa/internal/ingestion"
)

type recordingExecutor struct {
	requests []ingestion.Request
	failOn   string
}

func (e *recordingExecutor) Execute(_ context.Context, req ingestion.Request) error {
	e.requests = append(e.requests, req)

	if req.MethodName == e.failOn {
		return errors.New("boom")
	}

	return nil
}

func testScheduler(t *testing.T, executor Executor) *Scheduler {
	t.Helper()

	scheduler, err := New(&Config{
		DailyCron:       defaultDailyCron,
		MonthlyMesCron:  defaultMonthlyMesCron,
		MonthlyAbasCron: defaultMonthlyAbasCron,
		Location:        time.UTC,
	}, executor)
	require.NoError(t, err)

	return scheduler
}

func TestDailyWindowFiresThreeMethodsInOrder(t *testing.T) {
	executor := &recordingExecutor{}
	scheduler := testScheduler(t, executor)

	scheduler.runDailyWindow()

	require.Len(t, executor.requests, 3)
	assert.Equal(t, ingestion.MethodCiudad, executor.requests[0].MethodName)
	assert.Equal(t, ingestion.MethodParcial, executor.requests[1].MethodName)
	assert.Equal(t, ingestion.MethodSemana, executor.requests[2].MethodName)

	for _, req := range executor.requests {
		assert.Equal(t, "SCHEDULED", string(req.Source))
		assert.False(t, req.Force)
		assert.NotEmpty(t, req.RequestID)
	}

	// Each method gets its own correlation id.
	assert.NotEqual(t, executor.requests[0].RequestID, executor.requests[1].RequestID)
}

func TestDailyWindowContinuesAfterFailure(t *testing.T) {
	executor := &recordingExecutor{failOn: ingestion.MethodCiudad}
	scheduler := testScheduler(t, executor)

	scheduler.runDailyWindow()

	require.Len(t, executor.requests, 3, "a failing method must not stop the batch")
}

func TestMonthlyTriggersFireSingleMethods(t *testing.T) {
	executor := &recordingExecutor{}
	scheduler := testScheduler(t, executor)

	scheduler.runMonthlyMes()
	scheduler.runMonthlyAbas()

	require.Len(t, executor.requests, 2)
	assert.Equal(t, ingestion.MethodMes, executor.requests[0].MethodName)
	assert.Equal(t, ingestion.MethodAbas, executor.requests[1].MethodName)
}

func TestNewRejectsInvalidCron(t *testing.T) {
	_, err := New(&Config{
		DailyCron:       "not a cron",
		MonthlyMesCron:  defaultMonthlyMesCron,
		MonthlyAbasCron: defaultMonthlyAbasCron,
		Location:        time.UTC,
	}, &recordingExecutor{})
	assert.Error(t, err)
}
