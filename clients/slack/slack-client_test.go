package slack

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := NewClient("xoxb-test", server.Client(), gobreaker.NewCircuitBreaker(gobreaker.Settings{Name: "test"}))
	client.baseUrl = server.URL
	return client
}

func TestGetMessageResolvesThreadReply(t *testing.T) {
	var gotPath, gotTS string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotTS = r.URL.Query().Get("ts")
		fmt.Fprint(w, `{"ok":true,"messages":[{"user":"UAUTHOR","text":"please review","ts":"1700000000.000200","thread_ts":"1700000000.000100"}]}`)
	})

	author, text, threadTS, err := client.GetMessage("C1", "1700000000.000200")
	require.NoError(t, err)

	// conversations.replies resolves replies; conversations.history
	// only ever returns root-level messages.
	assert.Equal(t, "/conversations.replies", gotPath)
	assert.Equal(t, "1700000000.000200", gotTS)
	assert.Equal(t, "UAUTHOR", author)
	assert.Equal(t, "please review", text)
	assert.Equal(t, "1700000000.000100", threadTS)
}

func TestGetMessageRootHasNoThread(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"ok":true,"messages":[{"user":"UAUTHOR","text":"kickoff","ts":"1700000000.000100","thread_ts":"1700000000.000100"}]}`)
	})

	author, _, threadTS, err := client.GetMessage("C1", "1700000000.000100")
	require.NoError(t, err)
	assert.Equal(t, "UAUTHOR", author)
	assert.Empty(t, threadTS)
}

func TestGetMessageRejectsWrongTS(t *testing.T) {
	// A lookup that comes back with some other message must not be
	// mistaken for the requested one.
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"ok":true,"messages":[{"user":"USOMEONE","text":"unrelated","ts":"1699999999.000001"}]}`)
	})

	_, _, _, err := client.GetMessage("C1", "1700000000.000200")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "message_not_found", apiErr.Code)
}
