package utils

import (
	"net/http"
	"time"
)

// NewHTTPClient returns the shared outbound HTTP client used by API
// clients. One instance is created in main and passed down.
func NewHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 10 * time.Second,
	}
}
