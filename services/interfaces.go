package services

import (
	"context"

	"taskbot-project/taskbot-service/models"
	"taskbot-project/taskbot-service/repositories"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// TaskStore is the durable task/target/completion store the lifecycle
// services operate on. Implemented by repositories.TaskRepository.
type TaskStore interface {
	CreateTask(ctx context.Context, task *models.Task) (*models.Task, error)
	GetTask(ctx context.Context, teamID string, taskID primitive.ObjectID) (*models.Task, error)
	UpdateStatus(ctx context.Context, teamID string, taskID primitive.ObjectID, next models.TaskStatus) (*models.Task, error)
	UpdateStatusGuarded(ctx context.Context, teamID string, taskID primitive.ObjectID, from []models.TaskStatus, next models.TaskStatus) (bool, error)
	UpdateContent(ctx context.Context, teamID string, taskID primitive.ObjectID, patch repositories.ContentPatch) (*models.Task, error)
	CancelTask(ctx context.Context, teamID string, taskID primitive.ObjectID, actorUserID string) (*models.Task, error)
	InsertTargets(ctx context.Context, teamID string, taskID primitive.ObjectID, userIDs []string) error
	RecordCompletion(ctx context.Context, teamID string, taskID primitive.ObjectID, userID string) error
	ListTargets(ctx context.Context, teamID string, taskID primitive.ObjectID) ([]string, error)
	CountTargets(ctx context.Context, teamID string, taskID primitive.ObjectID) (int, error)
	CountCompletions(ctx context.Context, teamID string, taskID primitive.ObjectID) (int, error)
	IsTarget(ctx context.Context, teamID string, taskID primitive.ObjectID, userID string) (bool, error)
	HasCompleted(ctx context.Context, teamID string, taskID primitive.ObjectID, userID string) (bool, error)
	SetCompletedCount(ctx context.Context, teamID string, taskID primitive.ObjectID, completed int) error
	SetNotifiedAt(ctx context.Context, teamID string, taskID primitive.ObjectID) (bool, error)
	ListTasksForUser(ctx context.Context, teamID, userID string) ([]*models.Task, error)
}

// CardStore tracks the at-most-one card message per originating message.
// Implemented by repositories.ThreadCardRepository.
type CardStore interface {
	GetCard(ctx context.Context, teamID, channelID, sourceMessageTS string) (*models.ThreadCard, error)
	SaveCard(ctx context.Context, teamID, channelID, sourceMessageTS, cardMessageTS string) error
}

// Messenger posts and edits channel messages. Implemented by the Slack
// client.
type Messenger interface {
	PostMessage(channelID, threadTS, text string) (string, error)
	UpdateMessage(channelID, messageTS, text string) error
}

// DirectMessenger delivers direct messages.
type DirectMessenger interface {
	OpenDM(userID string) (string, error)
	PostMessage(channelID, threadTS, text string) (string, error)
}

// PermalinkResolver looks up a message permalink, best effort.
type PermalinkResolver interface {
	GetPermalink(channelID, messageTS string) (string, error)
}

// GroupExpander expands a usergroup reference into member user ids. It is
// called exactly once, at task creation, to snapshot broadcast targets.
type GroupExpander interface {
	UsergroupUsers(usergroupID string) ([]string, error)
}

// HomeViewPublisher pushes a rendered Home view to a user.
type HomeViewPublisher interface {
	PublishHomeView(userID string, view map[string]any) error
}

// Notifier delivers kind-keyed direct messages. The caller supplies only
// the kind and the task, never rendered text.
type Notifier interface {
	NotifyUsers(ctx context.Context, userIDs []string, task *models.Task, kind models.NotificationKind)
}

// HomePublisher recomputes and pushes a user's dashboard view.
type HomePublisher interface {
	RenderAndPublish(ctx context.Context, teamID, userID string) error
}

// CardRefresher re-renders the thread card pinned to a task's origin.
type CardRefresher interface {
	RefreshCard(ctx context.Context, task *models.Task) error
}

// DepartmentResolver is the external org lookup. Display concern only; a
// failed lookup degrades to an empty key.
type DepartmentResolver interface {
	ResolveDepartment(ctx context.Context, userID string) (string, error)
}
