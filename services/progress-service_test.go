package services

import (
	"context"
	"sync"
	"testing"

	"taskbot-project/taskbot-service/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createBroadcast(t *testing.T, svc *TaskService, targets ...string) *models.Task {
	t.Helper()
	task, err := svc.CreateTask(context.Background(), CreateTaskParams{
		TeamID:      "T1",
		Description: "please acknowledge",
		RequesterID: "REQ",
		CreatedByID: "REQ",
		AssigneeIDs: targets,
	})
	require.NoError(t, err)
	require.Equal(t, models.TypeBroadcast, task.TaskType)
	return task
}

func TestBroadcastProgression(t *testing.T) {
	store := newFakeStore()
	svc, notifier, _, _ := newTestTaskService(store)
	task := createBroadcast(t, svc, "A", "B", "C")

	// 2 of 3 done: in progress.
	_, err := svc.CompleteTask(context.Background(), "T1", task.ID.Hex(), "A")
	require.NoError(t, err)
	current, err := svc.CompleteTask(context.Background(), "T1", task.ID.Hex(), "B")
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, current.Status)
	require.NotNil(t, current.CompletedCount)
	assert.Equal(t, 2, *current.CompletedCount)
	assert.Nil(t, current.NotifiedAt)
	assert.Empty(t, notifier.callsOfKind(models.KindWaitingForConfirm))

	// Last target flips the task to waiting and notifies the requester
	// exactly once.
	current, err = svc.CompleteTask(context.Background(), "T1", task.ID.Hex(), "C")
	require.NoError(t, err)
	assert.Equal(t, models.StatusWaiting, current.Status)
	assert.Equal(t, 3, *current.CompletedCount)
	require.NotNil(t, current.NotifiedAt)

	waiting := notifier.callsOfKind(models.KindWaitingForConfirm)
	require.Len(t, waiting, 1)
	assert.Equal(t, []string{"REQ"}, waiting[0].userIDs)
}

func TestDoubleCompletionIsIdempotent(t *testing.T) {
	store := newFakeStore()
	svc, notifier, _, _ := newTestTaskService(store)
	task := createBroadcast(t, svc, "A", "B")

	_, err := svc.CompleteTask(context.Background(), "T1", task.ID.Hex(), "A")
	require.NoError(t, err)
	current, err := svc.CompleteTask(context.Background(), "T1", task.ID.Hex(), "A")
	require.NoError(t, err)

	n, err := store.CountCompletions(context.Background(), "T1", task.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, models.StatusInProgress, current.Status)
	assert.Empty(t, notifier.callsOfKind(models.KindWaitingForConfirm))
}

func TestAllDoneNotificationFiresOnce(t *testing.T) {
	store := newFakeStore()
	svc, notifier, _, _ := newTestTaskService(store)
	task := createBroadcast(t, svc, "A", "B")

	_, err := svc.CompleteTask(context.Background(), "T1", task.ID.Hex(), "A")
	require.NoError(t, err)
	_, err = svc.CompleteTask(context.Background(), "T1", task.ID.Hex(), "B")
	require.NoError(t, err)

	// A late duplicate of the final completion must not re-fire.
	_, err = svc.CompleteTask(context.Background(), "T1", task.ID.Hex(), "B")
	require.NoError(t, err)

	assert.Len(t, notifier.callsOfKind(models.KindWaitingForConfirm), 1)
}

func TestConcurrentFinalCompletions(t *testing.T) {
	store := newFakeStore()
	svc, notifier, _, _ := newTestTaskService(store)

	targets := []string{"U1", "U2", "U3", "U4", "U5", "U6", "U7", "U8"}
	task := createBroadcast(t, svc, targets...)

	var wg sync.WaitGroup
	for _, userID := range targets {
		wg.Add(1)
		go func(u string) {
			defer wg.Done()
			_, err := svc.CompleteTask(context.Background(), "T1", task.ID.Hex(), u)
			assert.NoError(t, err)
		}(userID)
	}
	wg.Wait()

	n, err := store.CountCompletions(context.Background(), "T1", task.ID)
	require.NoError(t, err)
	assert.Equal(t, len(targets), n)

	current, err := svc.GetTask(context.Background(), "T1", task.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, models.StatusWaiting, current.Status)
	require.NotNil(t, current.NotifiedAt)

	// Exactly one of the racing finishers wins the notify guard.
	assert.Len(t, notifier.callsOfKind(models.KindWaitingForConfirm), 1)
}

func TestCompletedCountNeverDrifts(t *testing.T) {
	store := newFakeStore()
	svc, _, _, _ := newTestTaskService(store)
	task := createBroadcast(t, svc, "A", "B", "C")

	for _, u := range []string{"A", "A", "B", "A"} {
		_, err := svc.CompleteTask(context.Background(), "T1", task.ID.Hex(), u)
		require.NoError(t, err)
	}

	current, err := svc.GetTask(context.Background(), "T1", task.ID.Hex())
	require.NoError(t, err)
	rows, err := store.CountCompletions(context.Background(), "T1", task.ID)
	require.NoError(t, err)

	require.NotNil(t, current.CompletedCount)
	assert.Equal(t, rows, *current.CompletedCount)
	assert.Equal(t, 2, rows)
}

func TestTerminalStatusOverridesCounts(t *testing.T) {
	store := newFakeStore()
	notifier := &fakeNotifier{}
	progress := NewProgressService(store, notifier)
	svc, _, _, _ := newTestTaskService(store)
	task := createBroadcast(t, svc, "A", "B")

	_, err := svc.CompleteTask(context.Background(), "T1", task.ID.Hex(), "A")
	require.NoError(t, err)
	cancelled, err := svc.CancelTask(context.Background(), "T1", task.ID.Hex(), "REQ")
	require.NoError(t, err)

	// A recalculation against a terminal task leaves its status alone.
	result, err := progress.Recalculate(context.Background(), cancelled)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, result.Status)
	assert.Empty(t, notifier.callsOfKind(models.KindWaitingForConfirm))
}
