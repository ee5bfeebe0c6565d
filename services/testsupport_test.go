package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"taskbot-project/taskbot-service/models"
	"taskbot-project/taskbot-service/repositories"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// fakeStore is an in-memory TaskStore with the same idempotency and
// conditional-update semantics as the Mongo repository.
type fakeStore struct {
	mu             sync.Mutex
	tasks          map[primitive.ObjectID]*models.Task
	targets        map[primitive.ObjectID]map[string]bool
	completions    map[primitive.ObjectID]map[string]bool
	listTargetsErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		tasks:       make(map[primitive.ObjectID]*models.Task),
		targets:     make(map[primitive.ObjectID]map[string]bool),
		completions: make(map[primitive.ObjectID]map[string]bool),
	}
}

func (f *fakeStore) find(teamID string, taskID primitive.ObjectID) (*models.Task, error) {
	task, ok := f.tasks[taskID]
	if !ok || task.TeamID != teamID {
		return nil, fmt.Errorf("task %s: %w", taskID.Hex(), models.ErrNotFound)
	}
	return task, nil
}

func cloneTask(task *models.Task) *models.Task {
	clone := *task
	return &clone
}

func (f *fakeStore) CreateTask(ctx context.Context, task *models.Task) (*models.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	task.ID = primitive.NewObjectID()
	now := time.Now()
	task.CreatedAt = now
	task.UpdatedAt = now
	if task.Status == "" {
		task.Status = models.StatusOpen
	}
	f.tasks[task.ID] = cloneTask(task)
	return cloneTask(task), nil
}

func (f *fakeStore) GetTask(ctx context.Context, teamID string, taskID primitive.ObjectID) (*models.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	task, err := f.find(teamID, taskID)
	if err != nil {
		return nil, err
	}
	return cloneTask(task), nil
}

func (f *fakeStore) UpdateStatus(ctx context.Context, teamID string, taskID primitive.ObjectID, next models.TaskStatus) (*models.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	task, err := f.find(teamID, taskID)
	if err != nil {
		return nil, err
	}
	task.Status = next
	task.UpdatedAt = time.Now()
	if next == models.StatusDone {
		now := time.Now()
		task.CompletedAt = &now
	}
	return cloneTask(task), nil
}

func (f *fakeStore) UpdateStatusGuarded(ctx context.Context, teamID string, taskID primitive.ObjectID, from []models.TaskStatus, next models.TaskStatus) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	task, err := f.find(teamID, taskID)
	if err != nil {
		return false, err
	}
	matched := false
	for _, s := range from {
		if task.Status == s {
			matched = true
			break
		}
	}
	if !matched {
		return false, nil
	}
	task.Status = next
	task.UpdatedAt = time.Now()
	if next == models.StatusDone {
		now := time.Now()
		task.CompletedAt = &now
	}
	return true, nil
}

func (f *fakeStore) UpdateContent(ctx context.Context, teamID string, taskID primitive.ObjectID, patch repositories.ContentPatch) (*models.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	task, err := f.find(teamID, taskID)
	if err != nil {
		return nil, err
	}
	if patch.AssigneeID != nil {
		task.AssigneeID = *patch.AssigneeID
	}
	if patch.Description != nil {
		task.Description = *patch.Description
	}
	if patch.DueDateSet {
		task.DueDate = patch.DueDate
	}
	task.UpdatedAt = time.Now()
	return cloneTask(task), nil
}

func (f *fakeStore) CancelTask(ctx context.Context, teamID string, taskID primitive.ObjectID, actorUserID string) (*models.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	task, err := f.find(teamID, taskID)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	task.Status = models.StatusCancelled
	task.CancelledAt = &now
	task.CancelledByID = actorUserID
	task.UpdatedAt = now
	return cloneTask(task), nil
}

func (f *fakeStore) InsertTargets(ctx context.Context, teamID string, taskID primitive.ObjectID, userIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.targets[taskID] == nil {
		f.targets[taskID] = make(map[string]bool)
	}
	for _, u := range userIDs {
		f.targets[taskID][u] = true
	}
	return nil
}

func (f *fakeStore) RecordCompletion(ctx context.Context, teamID string, taskID primitive.ObjectID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.completions[taskID] == nil {
		f.completions[taskID] = make(map[string]bool)
	}
	f.completions[taskID][userID] = true
	return nil
}

func (f *fakeStore) ListTargets(ctx context.Context, teamID string, taskID primitive.ObjectID) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listTargetsErr != nil {
		return nil, f.listTargetsErr
	}
	var users []string
	for u := range f.targets[taskID] {
		users = append(users, u)
	}
	return users, nil
}

func (f *fakeStore) CountTargets(ctx context.Context, teamID string, taskID primitive.ObjectID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.targets[taskID]), nil
}

func (f *fakeStore) CountCompletions(ctx context.Context, teamID string, taskID primitive.ObjectID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.completions[taskID]), nil
}

func (f *fakeStore) IsTarget(ctx context.Context, teamID string, taskID primitive.ObjectID, userID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.targets[taskID][userID], nil
}

func (f *fakeStore) HasCompleted(ctx context.Context, teamID string, taskID primitive.ObjectID, userID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.completions[taskID][userID], nil
}

func (f *fakeStore) SetCompletedCount(ctx context.Context, teamID string, taskID primitive.ObjectID, completed int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	task, err := f.find(teamID, taskID)
	if err != nil {
		return err
	}
	task.CompletedCount = &completed
	return nil
}

func (f *fakeStore) SetNotifiedAt(ctx context.Context, teamID string, taskID primitive.ObjectID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	task, err := f.find(teamID, taskID)
	if err != nil {
		return false, err
	}
	if task.NotifiedAt != nil {
		return false, nil
	}
	now := time.Now()
	task.NotifiedAt = &now
	return true, nil
}

func (f *fakeStore) ListTasksForUser(ctx context.Context, teamID, userID string) ([]*models.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []*models.Task
	for id, task := range f.tasks {
		if task.TeamID != teamID {
			continue
		}
		if task.RequesterID == userID || task.AssigneeID == userID || f.targets[id][userID] {
			result = append(result, cloneTask(task))
		}
	}
	return result, nil
}

type notifyCall struct {
	userIDs []string
	kind    models.NotificationKind
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls []notifyCall
}

func (f *fakeNotifier) NotifyUsers(ctx context.Context, userIDs []string, task *models.Task, kind models.NotificationKind) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, notifyCall{userIDs: userIDs, kind: kind})
}

func (f *fakeNotifier) callsOfKind(kind models.NotificationKind) []notifyCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var matched []notifyCall
	for _, c := range f.calls {
		if c.kind == kind {
			matched = append(matched, c)
		}
	}
	return matched
}

type fakeRefresher struct {
	mu        sync.Mutex
	refreshed int
	err       error
}

func (f *fakeRefresher) RefreshCard(ctx context.Context, task *models.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshed++
	return f.err
}

type fakeHome struct {
	mu        sync.Mutex
	published []string
}

func (f *fakeHome) RenderAndPublish(ctx context.Context, teamID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, userID)
	return nil
}

type fakePermalinks struct {
	link string
	err  error
}

func (f *fakePermalinks) GetPermalink(channelID, messageTS string) (string, error) {
	return f.link, f.err
}

type fakeGroups struct {
	members map[string][]string
	err     error
}

func (f *fakeGroups) UsergroupUsers(usergroupID string) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.members[usergroupID], nil
}

// fakeMessenger scripts post/update results for the card protocol tests.
type fakeMessenger struct {
	mu          sync.Mutex
	posts       []string
	postThreads []string
	updates     []string
	postErr     error
	updateErr   error
	nextTS      int
}

func (f *fakeMessenger) PostMessage(channelID, threadTS, text string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.postErr != nil {
		return "", f.postErr
	}
	f.nextTS++
	ts := fmt.Sprintf("1700000000.%06d", f.nextTS)
	f.posts = append(f.posts, ts)
	f.postThreads = append(f.postThreads, threadTS)
	return ts, nil
}

func (f *fakeMessenger) UpdateMessage(channelID, messageTS, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updates = append(f.updates, messageTS)
	return nil
}

// fakeCardStore is an in-memory CardStore keyed like the Mongo one.
type fakeCardStore struct {
	mu    sync.Mutex
	cards map[string]string
}

func newFakeCardStore() *fakeCardStore {
	return &fakeCardStore{cards: make(map[string]string)}
}

func cardKey(teamID, channelID, sourceMessageTS string) string {
	return teamID + "/" + channelID + "/" + sourceMessageTS
}

func (f *fakeCardStore) GetCard(ctx context.Context, teamID, channelID, sourceMessageTS string) (*models.ThreadCard, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ts, ok := f.cards[cardKey(teamID, channelID, sourceMessageTS)]
	if !ok {
		return nil, nil
	}
	return &models.ThreadCard{
		TeamID:          teamID,
		ChannelID:       channelID,
		SourceMessageTS: sourceMessageTS,
		CardMessageTS:   ts,
	}, nil
}

func (f *fakeCardStore) SaveCard(ctx context.Context, teamID, channelID, sourceMessageTS, cardMessageTS string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cards[cardKey(teamID, channelID, sourceMessageTS)] = cardMessageTS
	return nil
}

// newTestTaskService wires a TaskService over the fakes.
func newTestTaskService(store *fakeStore) (*TaskService, *fakeNotifier, *fakeRefresher, *fakeHome) {
	notifier := &fakeNotifier{}
	refresher := &fakeRefresher{}
	home := &fakeHome{}
	messenger := &fakeMessenger{}
	progress := NewProgressService(store, notifier)
	svc := NewTaskService(store, refresher, progress, notifier, home, messenger, &fakePermalinks{}, &fakeGroups{})
	return svc, notifier, refresher, home
}
