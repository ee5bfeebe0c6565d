package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"taskbot-project/taskbot-service/clients/slack"
	"taskbot-project/taskbot-service/logging"
	"taskbot-project/taskbot-service/models"
	"taskbot-project/taskbot-service/repositories"
	"taskbot-project/taskbot-service/services"
)

// SlackHandler is the thin adapter from Slack triggers to the closed set
// of lifecycle operations. No business rule lives here.
type SlackHandler struct {
	tasks        *services.TaskService
	client       *slack.Client
	triggerEmoji string
}

func NewSlackHandler(tasks *services.TaskService, client *slack.Client, triggerEmoji string) *SlackHandler {
	if triggerEmoji == "" {
		triggerEmoji = "bookmark"
	}
	return &SlackHandler{tasks: tasks, client: client, triggerEmoji: triggerEmoji}
}

type eventEnvelope struct {
	Type      string `json:"type"`
	Challenge string `json:"challenge"`
	TeamID    string `json:"team_id"`
	Event     struct {
		Type     string `json:"type"`
		Reaction string `json:"reaction"`
		User     string `json:"user"`
		Item     struct {
			Channel string `json:"channel"`
			TS      string `json:"ts"`
		} `json:"item"`
	} `json:"event"`
}

// HandleEvents serves the Slack Events API endpoint: the URL handshake
// plus reaction-triggered task creation.
func (h *SlackHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	var envelope eventEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		http.Error(w, "invalid event payload", http.StatusBadRequest)
		return
	}

	if envelope.Type == "url_verification" {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte(envelope.Challenge))
		return
	}

	if envelope.Type == "event_callback" && envelope.Event.Type == "reaction_added" && envelope.Event.Reaction == h.triggerEmoji {
		h.createFromReaction(r, envelope)
	}

	w.WriteHeader(http.StatusOK)
}

// createFromReaction turns the reacted-to message into a personal task
// assigned to the reacting user. The message author is the requester;
// the reactor only operated the creation flow.
func (h *SlackHandler) createFromReaction(r *http.Request, envelope eventEnvelope) {
	authorID, text, threadTS, err := h.client.GetMessage(envelope.Event.Item.Channel, envelope.Event.Item.TS)
	if err != nil {
		logging.Logger.Errorf("Event ID: REACTION_FETCH_FAILED, Description: Failed to fetch reacted message: %v", err)
		return
	}
	if authorID == "" {
		authorID = envelope.Event.User
	}

	_, err = h.tasks.CreateTask(r.Context(), services.CreateTaskParams{
		TeamID:          envelope.TeamID,
		ChannelID:       envelope.Event.Item.Channel,
		SourceMessageTS: envelope.Event.Item.TS,
		SourceThreadTS:  threadTS,
		Description:     text,
		RequesterID:     authorID,
		CreatedByID:     envelope.Event.User,
		AssigneeIDs:     []string{envelope.Event.User},
	})
	if err != nil {
		logging.Logger.Errorf("Event ID: REACTION_CREATE_FAILED, Description: %v", err)
		h.tellUser(envelope.Event.Item.Channel, envelope.Event.User, userMessageFor(err))
	}
}

type interactionPayload struct {
	Type       string `json:"type"`
	TriggerID  string `json:"trigger_id"`
	CallbackID string `json:"callback_id"`
	Team       struct {
		ID string `json:"id"`
	} `json:"team"`
	User struct {
		ID string `json:"id"`
	} `json:"user"`
	Channel struct {
		ID string `json:"id"`
	} `json:"channel"`
	Message struct {
		TS       string `json:"ts"`
		ThreadTS string `json:"thread_ts"`
		Text     string `json:"text"`
		User     string `json:"user"`
	} `json:"message"`
	Actions []struct {
		ActionID string `json:"action_id"`
		Value    string `json:"value"`
	} `json:"actions"`
	View struct {
		CallbackID      string `json:"callback_id"`
		PrivateMetadata string `json:"private_metadata"`
		State           struct {
			Values map[string]map[string]viewValue `json:"values"`
		} `json:"state"`
	} `json:"view"`
}

type viewValue struct {
	Type          string   `json:"type"`
	Value         string   `json:"value"`
	SelectedDate  string   `json:"selected_date"`
	SelectedUsers []string `json:"selected_users"`
}

// modalMetadata travels in the modal's private_metadata between open and
// submit.
type modalMetadata struct {
	TeamID          string `json:"teamId"`
	ChannelID       string `json:"channelId"`
	SourceMessageTS string `json:"sourceMessageTs"`
	SourceThreadTS  string `json:"sourceThreadTs,omitempty"`
	RequesterID     string `json:"requesterId"`
	TaskID          string `json:"taskId,omitempty"`
}

// HandleInteractions serves the Slack interactivity endpoint: message
// shortcuts, modal submissions and card button clicks.
func (h *SlackHandler) HandleInteractions(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form payload", http.StatusBadRequest)
		return
	}

	var payload interactionPayload
	if err := json.Unmarshal([]byte(r.FormValue("payload")), &payload); err != nil {
		http.Error(w, "invalid interaction payload", http.StatusBadRequest)
		return
	}

	switch payload.Type {
	case "message_action":
		h.handleMessageAction(w, r, payload)
	case "view_submission":
		h.handleViewSubmission(w, r, payload)
	case "block_actions":
		h.handleBlockActions(w, r, payload)
	default:
		w.WriteHeader(http.StatusOK)
	}
}

func (h *SlackHandler) handleMessageAction(w http.ResponseWriter, r *http.Request, payload interactionPayload) {
	if payload.CallbackID != "create_task" {
		w.WriteHeader(http.StatusOK)
		return
	}

	threadTS := payload.Message.ThreadTS
	if threadTS == payload.Message.TS {
		threadTS = ""
	}
	metadata, _ := json.Marshal(modalMetadata{
		TeamID:          payload.Team.ID,
		ChannelID:       payload.Channel.ID,
		SourceMessageTS: payload.Message.TS,
		SourceThreadTS:  threadTS,
		RequesterID:     payload.Message.User,
	})

	view := buildCreateModal(string(metadata), payload.Message.Text)
	if err := h.client.OpenView(payload.TriggerID, view); err != nil {
		logging.Logger.Errorf("Event ID: MODAL_OPEN_FAILED, Description: %v", err)
	}
	w.WriteHeader(http.StatusOK)
}

func (h *SlackHandler) handleViewSubmission(w http.ResponseWriter, r *http.Request, payload interactionPayload) {
	var metadata modalMetadata
	if err := json.Unmarshal([]byte(payload.View.PrivateMetadata), &metadata); err != nil {
		http.Error(w, "invalid modal metadata", http.StatusBadRequest)
		return
	}

	values := payload.View.State.Values

	switch payload.View.CallbackID {
	case "task_create_modal":
		dueDate, err := services.ParseDueDate(stateValue(values, "due", "due_select").SelectedDate)
		if err != nil {
			writeModalError(w, "due", "Invalid due date")
			return
		}

		requesterID := metadata.RequesterID
		if requesterID == "" {
			requesterID = payload.User.ID
		}

		task, err := h.tasks.CreateTask(r.Context(), services.CreateTaskParams{
			TeamID:          payload.Team.ID,
			ChannelID:       metadata.ChannelID,
			SourceMessageTS: metadata.SourceMessageTS,
			SourceThreadTS:  metadata.SourceThreadTS,
			Description:     stateValue(values, "description", "description_input").Value,
			RequesterID:     requesterID,
			CreatedByID:     payload.User.ID,
			AssigneeIDs:     stateValue(values, "assignees", "assignees_select").SelectedUsers,
			GroupID:         stateValue(values, "group", "group_input").Value,
			GroupLabel:      stateValue(values, "group_label", "group_label_input").Value,
			DueDate:         dueDate,
		})
		if err != nil && task == nil {
			writeModalError(w, createErrorBlock(err), userMessageFor(err))
			return
		}
		if err != nil {
			// Task stored; only the card failed. Tell the user out of band.
			h.tellUser(metadata.ChannelID, payload.User.ID, userMessageFor(err))
		}

	case "task_edit_modal":
		dueDate, err := services.ParseDueDate(stateValue(values, "due", "due_select").SelectedDate)
		if err != nil {
			writeModalError(w, "due", "Invalid due date")
			return
		}

		patch := repositories.ContentPatch{
			DueDate:    dueDate,
			DueDateSet: true, // the edit modal always carries the field; empty means clear
		}
		if v := stateValue(values, "assignee", "assignee_select").SelectedUsers; len(v) == 1 {
			patch.AssigneeID = &v[0]
		}
		if v := stateValue(values, "description", "description_input").Value; v != "" {
			patch.Description = &v
		}

		_, _, err = h.tasks.EditTask(r.Context(), metadata.TeamID, metadata.TaskID, payload.User.ID, patch)
		if err != nil && !errors.Is(err, models.ErrUpstream) {
			writeModalError(w, "description", userMessageFor(err))
			return
		}
		if err != nil {
			h.tellUser(metadata.ChannelID, payload.User.ID, userMessageFor(err))
		}
	}

	w.WriteHeader(http.StatusOK)
}

func (h *SlackHandler) handleBlockActions(w http.ResponseWriter, r *http.Request, payload interactionPayload) {
	if len(payload.Actions) == 0 {
		w.WriteHeader(http.StatusOK)
		return
	}
	action := payload.Actions[0]
	teamID := payload.Team.ID
	actorID := payload.User.ID
	taskID := action.Value

	var err error
	switch action.ActionID {
	case "task_complete":
		_, err = h.tasks.CompleteTask(r.Context(), teamID, taskID, actorID)
	case "task_set_in_progress":
		_, err = h.tasks.ChangeStatus(r.Context(), teamID, taskID, actorID, models.StatusInProgress)
	case "task_set_waiting":
		_, err = h.tasks.ChangeStatus(r.Context(), teamID, taskID, actorID, models.StatusWaiting)
	case "task_set_done":
		_, err = h.tasks.ChangeStatus(r.Context(), teamID, taskID, actorID, models.StatusDone)
	case "task_confirm_done":
		_, err = h.tasks.ConfirmBroadcastDone(r.Context(), teamID, taskID, actorID)
	case "task_cancel":
		_, err = h.tasks.CancelTask(r.Context(), teamID, taskID, actorID)
	case "task_edit":
		h.openEditModal(r, payload, taskID)
	default:
		logging.Logger.Infof("Event ID: UNKNOWN_ACTION, Description: Ignoring action %s", action.ActionID)
	}

	if err != nil {
		h.tellUser(payload.Channel.ID, actorID, userMessageFor(err))
	}
	w.WriteHeader(http.StatusOK)
}

func (h *SlackHandler) openEditModal(r *http.Request, payload interactionPayload, taskID string) {
	task, err := h.tasks.GetTask(r.Context(), payload.Team.ID, taskID)
	if err != nil {
		h.tellUser(payload.Channel.ID, payload.User.ID, userMessageFor(err))
		return
	}

	metadata, _ := json.Marshal(modalMetadata{
		TeamID:    task.TeamID,
		ChannelID: task.ChannelID,
		TaskID:    task.ID.Hex(),
	})

	view := buildEditModal(string(metadata), task)
	if err := h.client.OpenView(payload.TriggerID, view); err != nil {
		logging.Logger.Errorf("Event ID: MODAL_OPEN_FAILED, Description: %v", err)
	}
}

// tellUser delivers a user-visible error: ephemerally in the channel when
// there is one, otherwise by DM.
func (h *SlackHandler) tellUser(channelID, userID, text string) {
	if channelID != "" {
		if err := h.client.PostEphemeral(channelID, userID, text); err == nil {
			return
		}
	}
	dm, err := h.client.OpenDM(userID)
	if err != nil {
		logging.Logger.Errorf("Event ID: USER_MESSAGE_FAILED, Description: Could not reach user %s: %v", userID, err)
		return
	}
	if _, err := h.client.PostMessage(dm, "", text); err != nil {
		logging.Logger.Errorf("Event ID: USER_MESSAGE_FAILED, Description: Could not DM user %s: %v", userID, err)
	}
}

func stateValue(values map[string]map[string]viewValue, blockID, actionID string) viewValue {
	if block, ok := values[blockID]; ok {
		return block[actionID]
	}
	return viewValue{}
}

// writeModalError responds to a view_submission with an inline error on
// the named block, keeping the modal open.
func writeModalError(w http.ResponseWriter, blockID, message string) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"response_action": "errors",
		"errors":          map[string]string{blockID: message},
	})
}

// createErrorBlock picks the create-modal block a validation failure
// belongs to, so the inline error lands next to the offending input.
func createErrorBlock(err error) string {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "description"):
		return "description"
	case strings.Contains(msg, "group"):
		return "group"
	default:
		return "assignees"
	}
}

// userMessageFor maps the error taxonomy onto short user-facing texts.
func userMessageFor(err error) string {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return "That task could not be found."
	case errors.Is(err, models.ErrPermissionDenied):
		return "You are not allowed to do that on this task."
	case errors.Is(err, models.ErrConflict):
		return "This task is already closed."
	case errors.Is(err, models.ErrUpstream):
		// The wrapped message carries the recovery instruction.
		return firstErrorLine(err)
	case errors.Is(err, models.ErrInvalidInput):
		return firstErrorLine(err)
	}
	return "Something went wrong, please try again."
}

func firstErrorLine(err error) string {
	msg := err.Error()
	// Strip the sentinel suffix ("...: upstream unavailable").
	if i := strings.Index(msg, ":"); i >= 0 {
		return msg[:i]
	}
	return msg
}

func buildCreateModal(privateMetadata, initialDescription string) map[string]any {
	return map[string]any{
		"type":             "modal",
		"callback_id":      "task_create_modal",
		"private_metadata": privateMetadata,
		"title":            plainText("Create task"),
		"submit":           plainText("Create"),
		"close":            plainText("Cancel"),
		"blocks": []map[string]any{
			{
				"type":     "input",
				"block_id": "assignees",
				"label":    plainText("Assignees"),
				"optional": true,
				"element": map[string]any{
					"type":      "multi_users_select",
					"action_id": "assignees_select",
				},
			},
			{
				"type":     "input",
				"block_id": "group",
				"label":    plainText("User group ID (optional)"),
				"optional": true,
				"element": map[string]any{
					"type":      "plain_text_input",
					"action_id": "group_input",
				},
			},
			{
				"type":     "input",
				"block_id": "group_label",
				"label":    plainText("Group display name (optional)"),
				"optional": true,
				"element": map[string]any{
					"type":      "plain_text_input",
					"action_id": "group_label_input",
				},
			},
			{
				"type":     "input",
				"block_id": "due",
				"label":    plainText("Due date"),
				"optional": true,
				"element": map[string]any{
					"type":      "datepicker",
					"action_id": "due_select",
				},
			},
			{
				"type":     "input",
				"block_id": "description",
				"label":    plainText("Task"),
				"element": map[string]any{
					"type":          "plain_text_input",
					"action_id":     "description_input",
					"multiline":     true,
					"initial_value": initialDescription,
				},
			},
		},
	}
}

func buildEditModal(privateMetadata string, task *models.Task) map[string]any {
	blocks := []map[string]any{}

	if task.TaskType == models.TypePersonal {
		element := map[string]any{
			"type":      "multi_users_select",
			"action_id": "assignee_select",
			"max_selected_items": 1,
		}
		if task.AssigneeID != "" {
			element["initial_users"] = []string{task.AssigneeID}
		}
		blocks = append(blocks, map[string]any{
			"type":     "input",
			"block_id": "assignee",
			"label":    plainText("Assignee"),
			"optional": true,
			"element":  element,
		})
	}

	dueElement := map[string]any{
		"type":      "datepicker",
		"action_id": "due_select",
	}
	if task.DueDate != nil {
		dueElement["initial_date"] = task.DueDate.UTC().Format("2006-01-02")
	}
	blocks = append(blocks,
		map[string]any{
			"type":     "input",
			"block_id": "due",
			"label":    plainText("Due date"),
			"optional": true,
			"element":  dueElement,
		},
		map[string]any{
			"type":     "input",
			"block_id": "description",
			"label":    plainText("Task"),
			"element": map[string]any{
				"type":          "plain_text_input",
				"action_id":     "description_input",
				"multiline":     true,
				"initial_value": task.Description,
			},
		},
	)

	return map[string]any{
		"type":             "modal",
		"callback_id":      "task_edit_modal",
		"private_metadata": privateMetadata,
		"title":            plainText("Edit task"),
		"submit":           plainText("Save"),
		"close":            plainText("Cancel"),
		"blocks":           blocks,
	}
}

func plainText(text string) map[string]any {
	return map[string]any{"type": "plain_text", "text": text}
}
