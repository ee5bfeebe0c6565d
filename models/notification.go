package models

import "time"

// NotificationKind keys the direct-message texts sent by the
// notification service.
type NotificationKind string

const (
	KindTaskAssigned       NotificationKind = "task-assigned"
	KindTaskCompleted      NotificationKind = "task-completed"
	KindWaitingForConfirm  NotificationKind = "waiting-for-confirmation"
	KindTaskEdited         NotificationKind = "task-edited"
	KindTaskCancelled      NotificationKind = "task-cancelled"
)

type Notification struct {
	ID        string           `cassandra:"id" json:"id"`
	TeamID    string           `cassandra:"team_id" json:"teamId"`
	UserID    string           `cassandra:"user_id" json:"userId"`
	TaskID    string           `cassandra:"task_id" json:"taskId"`
	Kind      NotificationKind `cassandra:"kind" json:"kind"`
	Message   string           `cassandra:"message" json:"message"`
	CreatedAt time.Time        `cassandra:"created_at" json:"createdAt"`
	IsRead    bool             `cassandra:"is_read" json:"isRead"`
}
