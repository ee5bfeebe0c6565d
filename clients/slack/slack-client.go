package slack

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/sony/gobreaker"
)

type Client struct {
	baseUrl    string
	token      string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
}

func NewClient(token string, httpClient *http.Client, breaker *gobreaker.CircuitBreaker) *Client {
	return &Client{
		baseUrl:    "https://slack.com/api",
		token:      token,
		httpClient: httpClient,
		breaker:    breaker,
	}
}

func (c *Client) callJSON(method string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request (slack): %w", err)
	}

	_, err = c.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequest("POST", c.baseUrl+"/"+method, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("build request (slack): %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Content-Type", "application/json; charset=utf-8")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("call %s (slack): %w", method, err)
		}
		defer resp.Body.Close()

		return nil, decodeResponse(method, resp, out)
	})
	return err
}

func (c *Client) callGet(method string, query url.Values, out any) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequest("GET", c.baseUrl+"/"+method+"?"+query.Encode(), nil)
		if err != nil {
			return nil, fmt.Errorf("build request (slack): %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.token)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("call %s (slack): %w", method, err)
		}
		defer resp.Body.Close()

		return nil, decodeResponse(method, resp, out)
	})
	return err
}

func decodeResponse(method string, resp *http.Response, out any) error {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body (slack): %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("error status %d on %s (slack)", resp.StatusCode, method)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("parse %s response (slack): %w", method, err)
	}

	// All envelope types embed apiResponse; re-decode just the envelope
	// to check ok/error.
	var envelope apiResponse
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("parse %s envelope (slack): %w", method, err)
	}
	if !envelope.OK {
		return &APIError{Code: envelope.Error}
	}
	return nil
}

// PostMessage posts a message, threaded under threadTS when it is
// non-empty, and returns the new message's ts.
func (c *Client) PostMessage(channelID, threadTS, text string) (string, error) {
	var resp postMessageResponse
	err := c.callJSON("chat.postMessage", postMessageRequest{
		Channel:  channelID,
		ThreadTS: threadTS,
		Text:     text,
	}, &resp)
	if err != nil {
		return "", err
	}
	return resp.TS, nil
}

func (c *Client) UpdateMessage(channelID, messageTS, text string) error {
	var resp apiResponse
	return c.callJSON("chat.update", updateMessageRequest{
		Channel: channelID,
		TS:      messageTS,
		Text:    text,
	}, &resp)
}

func (c *Client) PostEphemeral(channelID, userID, text string) error {
	var resp apiResponse
	return c.callJSON("chat.postEphemeral", postEphemeralRequest{
		Channel: channelID,
		User:    userID,
		Text:    text,
	}, &resp)
}

// OpenDM opens (or reuses) the direct-message conversation with a user
// and returns its channel id.
func (c *Client) OpenDM(userID string) (string, error) {
	var resp openConversationResponse
	err := c.callJSON("conversations.open", openConversationRequest{Users: userID}, &resp)
	if err != nil {
		return "", err
	}
	return resp.Channel.ID, nil
}

func (c *Client) GetPermalink(channelID, messageTS string) (string, error) {
	query := url.Values{}
	query.Set("channel", channelID)
	query.Set("message_ts", messageTS)

	var resp permalinkResponse
	if err := c.callGet("chat.getPermalink", query, &resp); err != nil {
		return "", err
	}
	return resp.Permalink, nil
}

// UsergroupUsers expands a Slack usergroup into its member user ids.
func (c *Client) UsergroupUsers(usergroupID string) ([]string, error) {
	query := url.Values{}
	query.Set("usergroup", usergroupID)

	var resp usergroupUsersResponse
	if err := c.callGet("usergroups.users.list", query, &resp); err != nil {
		return nil, err
	}
	return resp.Users, nil
}

// GetMessage fetches a single message by channel and ts. Thread replies
// never appear in conversations.history, so the lookup goes through
// conversations.replies, which resolves roots and replies alike. The
// returned threadTS is the thread root's ts when the message is a
// reply, empty for root-level messages.
func (c *Client) GetMessage(channelID, messageTS string) (authorID, text, threadTS string, err error) {
	query := url.Values{}
	query.Set("channel", channelID)
	query.Set("ts", messageTS)
	query.Set("limit", "1")

	var resp repliesResponse
	if err := c.callGet("conversations.replies", query, &resp); err != nil {
		return "", "", "", err
	}
	for _, msg := range resp.Messages {
		if msg.TS != messageTS {
			continue
		}
		threadTS = msg.ThreadTS
		if threadTS == msg.TS {
			threadTS = ""
		}
		return msg.User, msg.Text, threadTS, nil
	}
	return "", "", "", &APIError{Code: "message_not_found"}
}

func (c *Client) OpenView(triggerID string, view map[string]any) error {
	var resp apiResponse
	return c.callJSON("views.open", openViewRequest{TriggerID: triggerID, View: view}, &resp)
}

func (c *Client) PublishHomeView(userID string, view map[string]any) error {
	var resp apiResponse
	return c.callJSON("views.publish", publishViewRequest{UserID: userID, View: view}, &resp)
}
