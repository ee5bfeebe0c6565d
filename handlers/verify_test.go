package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "8f742231b10e8888abcd99yyyzzz85a5"

func signBody(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "v0:%s:", timestamp)
	mac.Write(body)
	return "v0=" + hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySlackSignature(t *testing.T) {
	now := time.Unix(1700000000, 0)
	timestamp := strconv.FormatInt(now.Unix(), 10)
	body := []byte("payload=%7B%22type%22%3A%22block_actions%22%7D")

	valid := signBody(testSecret, timestamp, body)

	assert.True(t, VerifySlackSignature(testSecret, timestamp, valid, body, now))
	assert.False(t, VerifySlackSignature(testSecret, timestamp, "v0=deadbeef", body, now))
	assert.False(t, VerifySlackSignature("wrong-secret", timestamp, valid, body, now))
	assert.False(t, VerifySlackSignature(testSecret, "not-a-number", valid, body, now))

	// Replays outside the window are rejected.
	assert.False(t, VerifySlackSignature(testSecret, timestamp, valid, body, now.Add(6*time.Minute)))
	assert.True(t, VerifySlackSignature(testSecret, timestamp, valid, body, now.Add(4*time.Minute)))

	// Tampered body.
	assert.False(t, VerifySlackSignature(testSecret, timestamp, valid, []byte("payload=other"), now))
}

func TestSlackVerifierMiddleware(t *testing.T) {
	var sawBody string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		sawBody = string(body)
		w.WriteHeader(http.StatusOK)
	})
	handler := NewSlackVerifier(testSecret)(inner)

	body := "token=abc&command=%2Ftasks"
	timestamp := strconv.FormatInt(time.Now().Unix(), 10)

	request := httptest.NewRequest("POST", "/api/slack/interactions", strings.NewReader(body))
	request.Header.Set("X-Slack-Request-Timestamp", timestamp)
	request.Header.Set("X-Slack-Signature", signBody(testSecret, timestamp, []byte(body)))
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)

	assert.Equal(t, http.StatusOK, recorder.Code)
	// The body is restored for the downstream handler.
	assert.Equal(t, body, sawBody)

	// Unsigned requests never reach the handler.
	request = httptest.NewRequest("POST", "/api/slack/interactions", strings.NewReader(body))
	request.Header.Set("X-Slack-Request-Timestamp", timestamp)
	request.Header.Set("X-Slack-Signature", "v0=junk")
	recorder = httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)

	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
}
