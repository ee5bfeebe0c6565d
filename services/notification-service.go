package services

import (
	"context"
	"fmt"
	"time"

	"taskbot-project/taskbot-service/logging"
	"taskbot-project/taskbot-service/models"
	"taskbot-project/taskbot-service/repositories"
)

// NotificationService delivers kind-keyed direct messages and records an
// audit row per delivery in Cassandra.
type NotificationService struct {
	repo *repositories.NotificationRepo
	dm   DirectMessenger
}

func NewNotificationService(repo *repositories.NotificationRepo, dm DirectMessenger) *NotificationService {
	return &NotificationService{repo: repo, dm: dm}
}

// NotifyUsers sends one DM per user. Per-user failures are logged and
// skipped; a notification must never fail the triggering operation.
func (ns *NotificationService) NotifyUsers(ctx context.Context, userIDs []string, task *models.Task, kind models.NotificationKind) {
	message := messageForKind(kind, task)

	for _, userID := range userIDs {
		if userID == "" {
			continue
		}

		channelID, err := ns.dm.OpenDM(userID)
		if err != nil {
			logging.Logger.Errorf("Event ID: DM_OPEN_FAILED, Description: Failed to open DM with %s: %v", userID, err)
			continue
		}
		if _, err := ns.dm.PostMessage(channelID, "", message); err != nil {
			logging.Logger.Errorf("Event ID: DM_SEND_FAILED, Description: Failed to DM %s about task %s: %v", userID, task.ID.Hex(), err)
			continue
		}

		notification := &models.Notification{
			TeamID:    task.TeamID,
			UserID:    userID,
			TaskID:    task.ID.Hex(),
			Kind:      kind,
			Message:   message,
			CreatedAt: time.Now(),
			IsRead:    false,
		}
		if err := ns.repo.CreateNotification(notification); err != nil {
			logging.Logger.Errorf("Event ID: NOTIFICATION_AUDIT_FAILED, Description: Failed to record notification for %s: %v", userID, err)
		}
	}
}

func (ns *NotificationService) GetNotificationsForUser(userID string) ([]models.Notification, error) {
	return ns.repo.GetNotificationsByUser(userID)
}

func (ns *NotificationService) MarkNotificationAsRead(userID, notificationID, createdAt string) error {
	return ns.repo.MarkNotificationAsRead(userID, notificationID, createdAt)
}

func messageForKind(kind models.NotificationKind, task *models.Task) string {
	link := task.Title
	if task.Permalink != "" {
		link = fmt.Sprintf("<%s|%s>", task.Permalink, task.Title)
	}

	switch kind {
	case models.KindTaskAssigned:
		return fmt.Sprintf("You have been assigned a task: %s (requested by <@%s>)", link, task.RequesterID)
	case models.KindTaskCompleted:
		return fmt.Sprintf("Task completed: %s", link)
	case models.KindWaitingForConfirm:
		return fmt.Sprintf("Everyone has finished %s. Please confirm to close it.", link)
	case models.KindTaskEdited:
		return fmt.Sprintf("Task updated: %s", link)
	case models.KindTaskCancelled:
		return fmt.Sprintf("Task cancelled: %s", link)
	}
	return link
}
