package services

import (
	"context"

	"taskbot-project/taskbot-service/logging"
	"taskbot-project/taskbot-service/models"
)

// ProgressService derives a broadcast task's status from the completion
// rows and owns the one-time "everyone is done" handoff to the requester.
type ProgressService struct {
	store    TaskStore
	notifier Notifier
}

func NewProgressService(store TaskStore, notifier Notifier) *ProgressService {
	return &ProgressService{store: store, notifier: notifier}
}

// Recalculate re-derives a broadcast task's status after a completion.
// The completion rows are re-counted every time; a caller-supplied count
// is never trusted, so the cache cannot drift under concurrent
// completions. Terminal statuses are left untouched.
func (s *ProgressService) Recalculate(ctx context.Context, task *models.Task) (*models.Task, error) {
	if task.TaskType != models.TypeBroadcast {
		return task, nil
	}

	completions, err := s.store.CountCompletions(ctx, task.TeamID, task.ID)
	if err != nil {
		return nil, err
	}
	if err := s.store.SetCompletedCount(ctx, task.TeamID, task.ID, completions); err != nil {
		return nil, err
	}

	total := 0
	if task.TotalCount != nil {
		total = *task.TotalCount
	}

	if task.Status.Terminal() {
		// Status is the source of truth once terminal; counts are only
		// consulted before that.
		return s.store.GetTask(ctx, task.TeamID, task.ID)
	}

	// Guarded writes only ever advance the derived status, so a slow
	// recount cannot regress a task a racing finisher already moved to
	// waiting, and terminal statuses are never touched.
	switch {
	case completions == 0:
		if _, err := s.store.UpdateStatusGuarded(ctx, task.TeamID, task.ID, []models.TaskStatus{models.StatusInProgress}, models.StatusOpen); err != nil {
			return nil, err
		}
	case completions < total:
		if _, err := s.store.UpdateStatusGuarded(ctx, task.TeamID, task.ID, []models.TaskStatus{models.StatusOpen}, models.StatusInProgress); err != nil {
			return nil, err
		}
	case completions >= total && total > 0:
		// Idempotent; two racing finishers may both attempt waiting.
		from := []models.TaskStatus{models.StatusOpen, models.StatusInProgress}
		if _, err := s.store.UpdateStatusGuarded(ctx, task.TeamID, task.ID, from, models.StatusWaiting); err != nil {
			return nil, err
		}
		won, err := s.store.SetNotifiedAt(ctx, task.TeamID, task.ID)
		if err != nil {
			return nil, err
		}
		if won {
			logging.Logger.Infof("Event ID: BROADCAST_ALL_DONE, Description: All %d targets completed task %s, notifying requester %s", total, task.ID.Hex(), task.RequesterID)
			s.notifier.NotifyUsers(ctx, []string{task.RequesterID}, task, models.KindWaitingForConfirm)
		}
	}

	return s.store.GetTask(ctx, task.TeamID, task.ID)
}
