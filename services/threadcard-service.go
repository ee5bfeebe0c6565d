package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"taskbot-project/taskbot-service/clients/slack"
	"taskbot-project/taskbot-service/logging"
	"taskbot-project/taskbot-service/models"
)

// ThreadCardService keeps exactly one rendered card message pinned to
// each originating message, editing it in place on every refresh.
type ThreadCardService struct {
	cards     CardStore
	messenger Messenger
}

func NewThreadCardService(cards CardStore, messenger Messenger) *ThreadCardService {
	return &ThreadCardService{cards: cards, messenger: messenger}
}

// RefreshCard upserts the card for a task's originating message. Tasks
// without a source message, and tasks originating in a DM, have no card.
func (s *ThreadCardService) RefreshCard(ctx context.Context, task *models.Task) error {
	if task.ChannelID == "" || task.SourceMessageTS == "" {
		return nil
	}
	// DM threads do not carry the card affordance reliably.
	if strings.HasPrefix(task.ChannelID, "D") {
		return nil
	}

	text := renderCardText(task)

	card, err := s.cards.GetCard(ctx, task.TeamID, task.ChannelID, task.SourceMessageTS)
	if err != nil {
		return err
	}

	if card != nil && card.CardMessageTS != "" {
		if err := s.messenger.UpdateMessage(task.ChannelID, card.CardMessageTS, text); err != nil {
			// The recorded card may have been deleted out of band.
			// Re-posting would break the at-most-one invariant, so the
			// failure is surfaced instead.
			logging.Logger.Errorf("Event ID: CARD_UPDATE_FAILED, Description: Failed to update card %s in %s: %v", card.CardMessageTS, task.ChannelID, err)
			return fmt.Errorf("could not update the task card: %w", models.ErrUpstream)
		}
		return nil
	}

	// The card threads under the conversation root. When the origin is
	// itself a reply, that root differs from the card key.
	threadTS := task.SourceThreadTS
	if threadTS == "" {
		threadTS = task.SourceMessageTS
	}
	cardTS, err := s.messenger.PostMessage(task.ChannelID, threadTS, text)
	if err != nil {
		var apiErr *slack.APIError
		if errors.As(err, &apiErr) && (apiErr.Code == "not_in_channel" || apiErr.Code == "channel_not_found") {
			return fmt.Errorf("the bot is not in this channel, please invite it first: %w", models.ErrUpstream)
		}
		logging.Logger.Errorf("Event ID: CARD_POST_FAILED, Description: Failed to post card in %s: %v", task.ChannelID, err)
		return fmt.Errorf("could not post the task card: %w", models.ErrUpstream)
	}

	if err := s.cards.SaveCard(ctx, task.TeamID, task.ChannelID, task.SourceMessageTS, cardTS); err != nil {
		return err
	}
	return nil
}

func statusLabel(status models.TaskStatus) string {
	switch status {
	case models.StatusOpen:
		return "Open"
	case models.StatusInProgress:
		return "In progress"
	case models.StatusWaiting:
		return "Waiting for confirmation"
	case models.StatusDone:
		return "Done"
	case models.StatusCancelled:
		return "Cancelled"
	}
	return string(status)
}

func renderCardText(task *models.Task) string {
	lines := []string{fmt.Sprintf("*%s*  [%s]", task.Title, statusLabel(task.Status))}

	if task.TaskType == models.TypePersonal {
		lines = append(lines, fmt.Sprintf("Assignee: <@%s>", task.AssigneeID))
	} else {
		total := 0
		completed := 0
		if task.TotalCount != nil {
			total = *task.TotalCount
		}
		if task.CompletedCount != nil {
			completed = *task.CompletedCount
		}
		label := task.AssigneeLabel
		if label == "" {
			label = fmt.Sprintf("%d people", total)
		}
		lines = append(lines, fmt.Sprintf("Assignees: %s (%d/%d done)", label, completed, total))
	}

	if task.DueDate != nil {
		lines = append(lines, fmt.Sprintf("Due: %s", formatDueDate(task.DueDate)))
	}
	lines = append(lines, fmt.Sprintf("Requested by <@%s>", task.RequesterID))

	return strings.Join(lines, "\n")
}
