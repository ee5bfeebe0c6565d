package slack

import "fmt"

// APIError carries the machine-readable error code Slack returns when
// ok=false, e.g. "not_in_channel" or "message_not_found".
type APIError struct {
	Code string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("slack API error: %s", e.Code)
}

type apiResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

type postMessageRequest struct {
	Channel  string `json:"channel"`
	ThreadTS string `json:"thread_ts,omitempty"`
	Text     string `json:"text"`
}

type postMessageResponse struct {
	apiResponse
	TS      string `json:"ts"`
	Channel string `json:"channel"`
}

type updateMessageRequest struct {
	Channel string `json:"channel"`
	TS      string `json:"ts"`
	Text    string `json:"text"`
}

type postEphemeralRequest struct {
	Channel string `json:"channel"`
	User    string `json:"user"`
	Text    string `json:"text"`
}

type openConversationRequest struct {
	Users string `json:"users"`
}

type openConversationResponse struct {
	apiResponse
	Channel struct {
		ID string `json:"id"`
	} `json:"channel"`
}

type permalinkResponse struct {
	apiResponse
	Permalink string `json:"permalink"`
}

type usergroupUsersResponse struct {
	apiResponse
	Users []string `json:"users"`
}

type repliesResponse struct {
	apiResponse
	Messages []struct {
		User     string `json:"user"`
		Text     string `json:"text"`
		TS       string `json:"ts"`
		ThreadTS string `json:"thread_ts"`
	} `json:"messages"`
}

type openViewRequest struct {
	TriggerID string         `json:"trigger_id"`
	View      map[string]any `json:"view"`
}

type publishViewRequest struct {
	UserID string         `json:"user_id"`
	View   map[string]any `json:"view"`
}
