package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type TaskType string

const (
	TypePersonal  TaskType = "personal"
	TypeBroadcast TaskType = "broadcast"
)

type TaskStatus string

const (
	StatusOpen       TaskStatus = "open"
	StatusInProgress TaskStatus = "in_progress"
	StatusWaiting    TaskStatus = "waiting"
	StatusDone       TaskStatus = "done"
	StatusCancelled  TaskStatus = "cancelled"
)

// Terminal reports whether no further transitions are accepted from s.
func (s TaskStatus) Terminal() bool {
	return s == StatusDone || s == StatusCancelled
}

type Task struct {
	ID              primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	TeamID          string             `json:"teamId" bson:"teamId"`
	ChannelID       string             `json:"channelId,omitempty" bson:"channelId,omitempty"`
	SourceMessageTS string             `json:"sourceMessageTs,omitempty" bson:"sourceMessageTs,omitempty"`
	SourceThreadTS  string             `json:"sourceThreadTs,omitempty" bson:"sourceThreadTs,omitempty"`
	Title           string             `json:"title" bson:"title"`
	Description     string             `json:"description" bson:"description"`
	RequesterID     string             `json:"requesterId" bson:"requesterId"`
	CreatedByID     string             `json:"createdById" bson:"createdById"`
	TaskType        TaskType           `json:"taskType" bson:"taskType"`
	AssigneeID      string             `json:"assigneeId,omitempty" bson:"assigneeId,omitempty"`
	AssigneeLabel   string             `json:"assigneeLabel,omitempty" bson:"assigneeLabel,omitempty"`
	Status          TaskStatus         `json:"status" bson:"status"`
	DueDate         *time.Time         `json:"dueDate,omitempty" bson:"dueDate,omitempty"`
	TotalCount      *int               `json:"totalCount,omitempty" bson:"totalCount,omitempty"`
	CompletedCount  *int               `json:"completedCount,omitempty" bson:"completedCount,omitempty"`
	Permalink       string             `json:"permalink,omitempty" bson:"permalink,omitempty"`
	NotifiedAt      *time.Time         `json:"notifiedAt,omitempty" bson:"notifiedAt,omitempty"`
	CreatedAt       time.Time          `json:"createdAt" bson:"createdAt"`
	UpdatedAt       time.Time          `json:"updatedAt" bson:"updatedAt"`
	CompletedAt     *time.Time         `json:"completedAt,omitempty" bson:"completedAt,omitempty"`
	CancelledAt     *time.Time         `json:"cancelledAt,omitempty" bson:"cancelledAt,omitempty"`
	CancelledByID   string             `json:"cancelledById,omitempty" bson:"cancelledById,omitempty"`
}

// TaskTarget is one addressed user of a broadcast task, snapshotted at
// creation time. The target set never changes after creation.
type TaskTarget struct {
	ID        primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	TeamID    string             `json:"teamId" bson:"teamId"`
	TaskID    primitive.ObjectID `json:"taskId" bson:"taskId"`
	UserID    string             `json:"userId" bson:"userId"`
	CreatedAt time.Time          `json:"createdAt" bson:"createdAt"`
}

// TaskCompletion marks that one target has finished their portion of a
// broadcast task. At most one row per (taskId, userId).
type TaskCompletion struct {
	ID          primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	TeamID      string             `json:"teamId" bson:"teamId"`
	TaskID      primitive.ObjectID `json:"taskId" bson:"taskId"`
	UserID      string             `json:"userId" bson:"userId"`
	CompletedAt time.Time          `json:"completedAt" bson:"completedAt"`
}
