package services

import (
	"context"
	"fmt"

	"taskbot-project/taskbot-service/logging"
)

// HomeService renders and publishes a user's dashboard view. The
// lifecycle controller only ever sees the HomePublisher interface.
type HomeService struct {
	store      TaskStore
	publisher  HomeViewPublisher
	department DepartmentResolver
}

func NewHomeService(store TaskStore, publisher HomeViewPublisher, department DepartmentResolver) *HomeService {
	return &HomeService{store: store, publisher: publisher, department: department}
}

// RenderAndPublish recomputes the user's task list and pushes it to their
// Home tab.
func (s *HomeService) RenderAndPublish(ctx context.Context, teamID, userID string) error {
	tasks, err := s.store.ListTasksForUser(ctx, teamID, userID)
	if err != nil {
		return err
	}

	header := "Your tasks"
	if dept, err := s.department.ResolveDepartment(ctx, userID); err == nil && dept != "" {
		header = fmt.Sprintf("Your tasks (%s)", dept)
	}

	blocks := []map[string]any{
		{
			"type": "header",
			"text": map[string]any{"type": "plain_text", "text": header},
		},
	}

	open := 0
	for _, task := range tasks {
		if task.Status.Terminal() {
			continue
		}
		open++
		line := fmt.Sprintf("*%s*  [%s]", task.Title, statusLabel(task.Status))
		if task.DueDate != nil {
			line += fmt.Sprintf("  due %s", formatDueDate(task.DueDate))
		}
		blocks = append(blocks, map[string]any{
			"type": "section",
			"text": map[string]any{"type": "mrkdwn", "text": line},
		})
	}
	if open == 0 {
		blocks = append(blocks, map[string]any{
			"type": "section",
			"text": map[string]any{"type": "mrkdwn", "text": "No open tasks."},
		})
	}

	view := map[string]any{
		"type":   "home",
		"blocks": blocks,
	}

	if err := s.publisher.PublishHomeView(userID, view); err != nil {
		logging.Logger.Errorf("Event ID: HOME_VIEW_FAILED, Description: Failed to publish home view for %s: %v", userID, err)
		return err
	}
	return nil
}
