package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentineld/sentineld/pkg/types"
)

func TestCreateAndExecuteTaskDirectPath(t *testing.T) {
	o := New(nil, nil, nil)
	task := o.CreateTask(types.TaskHealthCheck, types.PriorityMedium, "check", "", nil)

	result, err := o.ExecuteTask(context.Background(), task.ID)
	require.NoError(t, err)
	assert.True(t, result.Success)

	stored, ok := o.Get(task.ID)
	require.True(t, ok)
	assert.NotNil(t, stored.CompletedAt)
}

func TestUnknownTaskTypeRoutesToOrchestratorRole(t *testing.T) {
	router := DefaultRouter()
	assert.Equal(t, types.RoleOrchestrator, router(types.TaskType("unheard-of")))
}

func TestHandlerPanicBecomesFailingResult(t *testing.T) {
	roles := map[types.AgentRole]RoleDescriptor{
		types.RoleSentinel: {
			Role: types.RoleSentinel,
			Handler: HandlerFunc(func(ctx context.Context, task types.Task, allowed []string) types.TaskResult {
				panic("boom")
			}),
		},
	}
	o := New(roles, nil, nil)
	task := o.CreateTask(types.TaskHealthCheck, types.PriorityHigh, "", "", nil)

	result, err := o.ExecuteTask(context.Background(), task.ID)
	require.NoError(t, err)
	assert.False(t, result.Success)
	require.Len(t, result.Errors, 1)
}

func TestCancelMarksTaskButDiscardsLateResult(t *testing.T) {
	started := make(chan struct{})
	proceed := make(chan struct{})
	roles := map[types.AgentRole]RoleDescriptor{
		types.RoleSentinel: {
			Role: types.RoleSentinel,
			Handler: HandlerFunc(func(ctx context.Context, task types.Task, allowed []string) types.TaskResult {
				close(started)
				<-proceed
				return types.TaskResult{Success: true}
			}),
		},
	}
	o := New(roles, nil, nil)
	task := o.CreateTask(types.TaskHealthCheck, types.PriorityHigh, "", "", nil)

	done := make(chan types.TaskResult)
	go func() {
		r, _ := o.ExecuteTask(context.Background(), task.ID)
		done <- r
	}()

	<-started
	o.Cancel(task.ID)
	close(proceed)
	result := <-done

	assert.False(t, result.Success)
}

func TestAbandonedTasksReportStartedWithoutCompleted(t *testing.T) {
	o := New(nil, nil, nil)
	task := o.CreateTask(types.TaskHealthCheck, types.PriorityLow, "", "", nil)
	o.mu.Lock()
	started := task.CreatedAt
	o.tasks[task.ID].StartedAt = &started
	o.mu.Unlock()

	abandoned := o.Abandoned()
	require.Len(t, abandoned, 1)
	assert.Equal(t, task.ID, abandoned[0].ID)
}
