package handlers

import (
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"

	"taskbot-project/taskbot-service/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleEventsURLVerification(t *testing.T) {
	handler := NewSlackHandler(nil, nil, "")

	body := `{"type":"url_verification","challenge":"3eZbrw1aBm2rZgRNFdxV2595E9CY3gmdALWMmHkvFXO7tYXAYM8P"}`
	request := httptest.NewRequest("POST", "/api/slack/events", strings.NewReader(body))
	recorder := httptest.NewRecorder()

	handler.HandleEvents(recorder, request)

	assert.Equal(t, 200, recorder.Code)
	assert.Equal(t, "3eZbrw1aBm2rZgRNFdxV2595E9CY3gmdALWMmHkvFXO7tYXAYM8P", recorder.Body.String())
}

func TestHandleEventsRejectsBadPayload(t *testing.T) {
	handler := NewSlackHandler(nil, nil, "")

	request := httptest.NewRequest("POST", "/api/slack/events", strings.NewReader("{not json"))
	recorder := httptest.NewRecorder()

	handler.HandleEvents(recorder, request)
	assert.Equal(t, 400, recorder.Code)
}

func TestUserMessageFor(t *testing.T) {
	require.Equal(t, "That task could not be found.",
		userMessageFor(fmt.Errorf("task x: %w", models.ErrNotFound)))
	require.Equal(t, "You are not allowed to do that on this task.",
		userMessageFor(fmt.Errorf("only the requester may cancel a task: %w", models.ErrPermissionDenied)))
	require.Equal(t, "This task is already closed.",
		userMessageFor(fmt.Errorf("task is already done: %w", models.ErrConflict)))
	require.Equal(t, "the bot is not in this channel, please invite it first",
		userMessageFor(fmt.Errorf("the bot is not in this channel, please invite it first: %w", models.ErrUpstream)))
}

func TestCreateErrorBlockRouting(t *testing.T) {
	assert.Equal(t, "description",
		createErrorBlock(fmt.Errorf("task description must not be empty: %w", models.ErrInvalidInput)))
	assert.Equal(t, "group",
		createErrorBlock(fmt.Errorf("could not expand the selected group: %w", models.ErrUpstream)))
	assert.Equal(t, "assignees",
		createErrorBlock(fmt.Errorf("at least one assignee is required: %w", models.ErrInvalidInput)))
}

func TestStateValueMissingBlock(t *testing.T) {
	values := map[string]map[string]viewValue{
		"due": {"due_select": {SelectedDate: "2026-04-30"}},
	}

	assert.Equal(t, "2026-04-30", stateValue(values, "due", "due_select").SelectedDate)
	assert.Empty(t, stateValue(values, "missing", "nope").Value)
}
