package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"taskbot-project/taskbot-service/logging"
	"taskbot-project/taskbot-service/models"
	"taskbot-project/taskbot-service/repositories"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// TaskService is the lifecycle controller. Every mutation re-fetches the
// current record, validates the transition and the actor against it, and
// only then writes (read-validate-write). Store failures are surfaced
// before any side effect; card/notification/home failures after a
// successful write are not rolled back - the stored task is the source
// of truth and the card self-corrects on the next refresh.
type TaskService struct {
	store      TaskStore
	cards      CardRefresher
	progress   *ProgressService
	notifier   Notifier
	home       HomePublisher
	messenger  Messenger
	permalinks PermalinkResolver
	groups     GroupExpander
}

func NewTaskService(store TaskStore, cards CardRefresher, progress *ProgressService, notifier Notifier, home HomePublisher, messenger Messenger, permalinks PermalinkResolver, groups GroupExpander) *TaskService {
	return &TaskService{
		store:      store,
		cards:      cards,
		progress:   progress,
		notifier:   notifier,
		home:       home,
		messenger:  messenger,
		permalinks: permalinks,
		groups:     groups,
	}
}

type CreateTaskParams struct {
	TeamID          string
	ChannelID       string
	SourceMessageTS string
	SourceThreadTS  string
	Description     string
	RequesterID     string
	CreatedByID     string
	AssigneeIDs     []string
	GroupID         string
	GroupLabel      string
	DueDate         *time.Time
}

// CreateTask validates, classifies and persists a new task, posts its
// thread card and notifies the addressed users. The returned task is
// non-nil whenever the store write succeeded, even if the card refresh
// failed afterwards.
func (s *TaskService) CreateTask(ctx context.Context, params CreateTaskParams) (*models.Task, error) {
	if params.TeamID == "" || params.RequesterID == "" || params.CreatedByID == "" {
		return nil, fmt.Errorf("team, requester and creator are required: %w", models.ErrInvalidInput)
	}
	if strings.TrimSpace(params.Description) == "" {
		return nil, fmt.Errorf("task description must not be empty: %w", models.ErrInvalidInput)
	}

	targets := uniqueUserIDs(params.AssigneeIDs)
	if params.GroupID != "" {
		groupUsers, err := s.groups.UsergroupUsers(params.GroupID)
		if err != nil {
			logging.Logger.Errorf("Event ID: GROUP_EXPAND_FAILED, Description: Failed to expand usergroup %s: %v", params.GroupID, err)
			return nil, fmt.Errorf("could not expand the selected group: %w", models.ErrUpstream)
		}
		targets = uniqueUserIDs(append(targets, groupUsers...))
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("at least one assignee is required: %w", models.ErrInvalidInput)
	}

	// Personal iff exactly one individual and no group was selected.
	personal := len(targets) == 1 && params.GroupID == ""

	task := &models.Task{
		TeamID:          params.TeamID,
		ChannelID:       params.ChannelID,
		SourceMessageTS: params.SourceMessageTS,
		SourceThreadTS:  params.SourceThreadTS,
		Title:           deriveTitle(params.Description),
		Description:     params.Description,
		RequesterID:     params.RequesterID,
		CreatedByID:     params.CreatedByID,
		Status:          models.StatusOpen,
		DueDate:         params.DueDate,
	}
	if personal {
		task.TaskType = models.TypePersonal
		task.AssigneeID = targets[0]
	} else {
		task.TaskType = models.TypeBroadcast
		total := len(targets)
		zero := 0
		task.TotalCount = &total
		task.CompletedCount = &zero
		task.AssigneeLabel = params.GroupLabel
	}

	// Best effort; a failed lookup never blocks creation.
	if params.ChannelID != "" && params.SourceMessageTS != "" {
		if permalink, err := s.permalinks.GetPermalink(params.ChannelID, params.SourceMessageTS); err == nil {
			task.Permalink = permalink
		}
	}

	created, err := s.store.CreateTask(ctx, task)
	if err != nil {
		return nil, err
	}

	if created.TaskType == models.TypeBroadcast {
		if err := s.store.InsertTargets(ctx, created.TeamID, created.ID, targets); err != nil {
			return nil, err
		}
	}

	logging.Logger.Infof("Event ID: TASK_CREATED, Description: Created %s task %s for team %s with %d target(s)", created.TaskType, created.ID.Hex(), created.TeamID, len(targets))

	s.notifier.NotifyUsers(ctx, targets, created, models.KindTaskAssigned)
	s.publishHomes(ctx, created, targets)

	if err := s.cards.RefreshCard(ctx, created); err != nil {
		return created, err
	}
	return created, nil
}

// ChangeStatus applies a user-requested status transition. Broadcast
// statuses are derived from completions and cannot be set directly.
func (s *TaskService) ChangeStatus(ctx context.Context, teamID, taskID, actorUserID string, next models.TaskStatus) (*models.Task, error) {
	task, err := s.fetch(ctx, teamID, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status.Terminal() {
		return nil, fmt.Errorf("task is already %s: %w", task.Status, models.ErrConflict)
	}
	if task.TaskType == models.TypeBroadcast {
		return nil, fmt.Errorf("broadcast status is derived from completions: %w", models.ErrPermissionDenied)
	}
	if actorUserID != task.RequesterID && actorUserID != task.AssigneeID {
		return nil, fmt.Errorf("only the requester or assignee may change status: %w", models.ErrPermissionDenied)
	}
	switch next {
	case models.StatusOpen, models.StatusInProgress, models.StatusWaiting, models.StatusDone:
	default:
		return nil, fmt.Errorf("status %q cannot be set directly: %w", next, models.ErrInvalidInput)
	}

	updated, err := s.store.UpdateStatus(ctx, teamID, task.ID, next)
	if err != nil {
		return nil, err
	}

	if next == models.StatusDone {
		s.notifier.NotifyUsers(ctx, []string{updated.RequesterID}, updated, models.KindTaskCompleted)
	}
	s.publishHomes(ctx, updated, nil)

	if err := s.cards.RefreshCard(ctx, updated); err != nil {
		return updated, err
	}
	return updated, nil
}

// CompleteTask records the actor's own completion. Personal tasks go
// straight to done; broadcast tasks record the target's portion and let
// the progress tracker re-derive the aggregate status.
func (s *TaskService) CompleteTask(ctx context.Context, teamID, taskID, actorUserID string) (*models.Task, error) {
	task, err := s.fetch(ctx, teamID, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status.Terminal() {
		return nil, fmt.Errorf("task is already %s: %w", task.Status, models.ErrConflict)
	}

	if task.TaskType == models.TypePersonal {
		if actorUserID != task.RequesterID && actorUserID != task.AssigneeID {
			return nil, fmt.Errorf("only the requester or assignee may complete this task: %w", models.ErrPermissionDenied)
		}
		updated, err := s.store.UpdateStatus(ctx, teamID, task.ID, models.StatusDone)
		if err != nil {
			return nil, err
		}
		s.notifier.NotifyUsers(ctx, []string{updated.RequesterID}, updated, models.KindTaskCompleted)
		s.publishHomes(ctx, updated, nil)
		if err := s.cards.RefreshCard(ctx, updated); err != nil {
			return updated, err
		}
		return updated, nil
	}

	isTarget, err := s.store.IsTarget(ctx, teamID, task.ID, actorUserID)
	if err != nil {
		return nil, err
	}
	if !isTarget {
		return nil, fmt.Errorf("only addressed users may complete their portion: %w", models.ErrPermissionDenied)
	}

	if err := s.store.RecordCompletion(ctx, teamID, task.ID, actorUserID); err != nil {
		return nil, err
	}
	updated, err := s.progress.Recalculate(ctx, task)
	if err != nil {
		return nil, err
	}

	s.publishHomes(ctx, updated, []string{actorUserID})

	if err := s.cards.RefreshCard(ctx, updated); err != nil {
		return updated, err
	}
	return updated, nil
}

// ConfirmBroadcastDone force-completes a broadcast task. Deliberately not
// gated to the requester: anyone may confirm, prioritizing operability
// over symmetry with the requester-only cancel rule.
func (s *TaskService) ConfirmBroadcastDone(ctx context.Context, teamID, taskID, actorUserID string) (*models.Task, error) {
	task, err := s.fetch(ctx, teamID, taskID)
	if err != nil {
		return nil, err
	}
	if task.TaskType != models.TypeBroadcast {
		return nil, fmt.Errorf("only broadcast tasks are confirmed this way: %w", models.ErrInvalidInput)
	}
	if task.Status.Terminal() {
		return nil, fmt.Errorf("task is already %s: %w", task.Status, models.ErrConflict)
	}

	updated, err := s.store.UpdateStatus(ctx, teamID, task.ID, models.StatusDone)
	if err != nil {
		return nil, err
	}

	logging.Logger.Infof("Event ID: BROADCAST_CONFIRMED, Description: Task %s confirmed done by %s", updated.ID.Hex(), actorUserID)

	targets, err := s.store.ListTargets(ctx, teamID, task.ID)
	if err != nil {
		logging.Logger.Errorf("Event ID: TARGET_LIST_FAILED, Description: Failed to list targets for task %s: %v", updated.ID.Hex(), err)
	} else {
		s.notifier.NotifyUsers(ctx, targets, updated, models.KindTaskCompleted)
		s.publishHomes(ctx, updated, targets)
	}

	if err := s.cards.RefreshCard(ctx, updated); err != nil {
		return updated, err
	}
	return updated, nil
}

// EditTask applies a partial content edit. The diff against the prior
// record is computed first; a no-change edit writes nothing and posts no
// change log.
func (s *TaskService) EditTask(ctx context.Context, teamID, taskID, actorUserID string, patch repositories.ContentPatch) (*models.Task, []FieldChange, error) {
	task, err := s.fetch(ctx, teamID, taskID)
	if err != nil {
		return nil, nil, err
	}
	if task.Status.Terminal() {
		return nil, nil, fmt.Errorf("task is already %s: %w", task.Status, models.ErrConflict)
	}
	if task.TaskType == models.TypeBroadcast {
		if actorUserID != task.RequesterID {
			return nil, nil, fmt.Errorf("only the requester may edit a broadcast task: %w", models.ErrPermissionDenied)
		}
		if patch.AssigneeID != nil {
			return nil, nil, fmt.Errorf("broadcast targets are fixed at creation: %w", models.ErrPermissionDenied)
		}
	} else if actorUserID != task.RequesterID && actorUserID != task.AssigneeID {
		return nil, nil, fmt.Errorf("only the requester or assignee may edit this task: %w", models.ErrPermissionDenied)
	}

	changes := diffTask(task, patch)
	if len(changes) == 0 {
		return task, nil, nil
	}

	updated, err := s.store.UpdateContent(ctx, teamID, task.ID, patch)
	if err != nil {
		return nil, nil, err
	}

	if updated.ChannelID != "" && updated.SourceMessageTS != "" && !strings.HasPrefix(updated.ChannelID, "D") {
		if _, err := s.messenger.PostMessage(updated.ChannelID, updated.SourceMessageTS, renderChangeLog(actorUserID, changes)); err != nil {
			logging.Logger.Errorf("Event ID: CHANGELOG_POST_FAILED, Description: Failed to post change log for task %s: %v", updated.ID.Hex(), err)
		}
	}

	involved := s.notifyListFor(ctx, updated)
	s.notifier.NotifyUsers(ctx, involved, updated, models.KindTaskEdited)
	s.publishHomes(ctx, updated, involved)

	if err := s.cards.RefreshCard(ctx, updated); err != nil {
		return updated, changes, err
	}
	return updated, changes, nil
}

// CancelTask terminates a task. Requester only, for both task types.
func (s *TaskService) CancelTask(ctx context.Context, teamID, taskID, actorUserID string) (*models.Task, error) {
	task, err := s.fetch(ctx, teamID, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status.Terminal() {
		return nil, fmt.Errorf("task is already %s: %w", task.Status, models.ErrConflict)
	}
	if actorUserID != task.RequesterID {
		return nil, fmt.Errorf("only the requester may cancel a task: %w", models.ErrPermissionDenied)
	}

	cancelled, err := s.store.CancelTask(ctx, teamID, task.ID, actorUserID)
	if err != nil {
		return nil, err
	}

	involved := s.notifyListFor(ctx, cancelled)
	s.notifier.NotifyUsers(ctx, involved, cancelled, models.KindTaskCancelled)
	s.publishHomes(ctx, cancelled, involved)

	if err := s.cards.RefreshCard(ctx, cancelled); err != nil {
		return cancelled, err
	}
	return cancelled, nil
}

func (s *TaskService) GetTask(ctx context.Context, teamID, taskID string) (*models.Task, error) {
	return s.fetch(ctx, teamID, taskID)
}

func (s *TaskService) ListTasksForUser(ctx context.Context, teamID, userID string) ([]*models.Task, error) {
	return s.store.ListTasksForUser(ctx, teamID, userID)
}

func (s *TaskService) fetch(ctx context.Context, teamID, taskID string) (*models.Task, error) {
	objectID, err := primitive.ObjectIDFromHex(taskID)
	if err != nil {
		return nil, fmt.Errorf("invalid task id format: %w", models.ErrInvalidInput)
	}
	return s.store.GetTask(ctx, teamID, objectID)
}

// notifyListFor returns who should hear about a change to the task: the
// assignee for personal tasks, the snapshotted targets for broadcasts.
func (s *TaskService) notifyListFor(ctx context.Context, task *models.Task) []string {
	if task.TaskType == models.TypePersonal {
		return []string{task.AssigneeID}
	}
	targets, err := s.store.ListTargets(ctx, task.TeamID, task.ID)
	if err != nil {
		logging.Logger.Errorf("Event ID: TARGET_LIST_FAILED, Description: Failed to list targets for task %s: %v", task.ID.Hex(), err)
		return nil
	}
	return targets
}

// publishHomes refreshes the dashboards of everyone involved. Best
// effort; failures are logged and never affect the mutation result.
func (s *TaskService) publishHomes(ctx context.Context, task *models.Task, extra []string) {
	users := map[string]bool{task.RequesterID: true}
	if task.AssigneeID != "" {
		users[task.AssigneeID] = true
	}
	for _, u := range extra {
		users[u] = true
	}
	for userID := range users {
		if userID == "" {
			continue
		}
		if err := s.home.RenderAndPublish(ctx, task.TeamID, userID); err != nil {
			logging.Logger.Errorf("Event ID: HOME_PUBLISH_FAILED, Description: Failed to publish home for %s: %v", userID, err)
		}
	}
}

func uniqueUserIDs(userIDs []string) []string {
	seen := make(map[string]bool, len(userIDs))
	unique := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		unique = append(unique, id)
	}
	return unique
}

func deriveTitle(description string) string {
	title := strings.TrimSpace(description)
	if i := strings.IndexByte(title, '\n'); i >= 0 {
		title = title[:i]
	}
	runes := []rune(title)
	if len(runes) > 50 {
		title = string(runes[:50]) + "..."
	}
	return title
}
