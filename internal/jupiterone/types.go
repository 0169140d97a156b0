package jupiterone

import (
	"encoding/json"
	"net/http"
	"strings"
	"unicode/utf8"
)

// AccountHeader carries the account identifier on every request.
const AccountHeader = "JupiterOne-Account"

// maxMessageLen caps how much of an error body is echoed back.
const maxMessageLen = 512

// QueryRequest is the body posted to the query endpoint. Cursor and
// Parameters are opaque and passed through unmodified.
type QueryRequest struct {
	Query      string         `json:"query"`
	Cursor     string         `json:"cursor,omitempty"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// remoteMessage extracts the platform's error message from a failed
// response, falling back to the raw body and then the status text.
func remoteMessage(resp *http.Response, body []byte) string {
	var shaped struct {
		Error   any    `json:"error"`
		Message string `json:"message"`
		Errors  []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(body, &shaped); err == nil {
		switch {
		case shaped.Message != "":
			return truncate(shaped.Message)
		case len(shaped.Errors) > 0 && shaped.Errors[0].Message != "":
			return truncate(shaped.Errors[0].Message)
		}
		if s, ok := shaped.Error.(string); ok && s != "" {
			return truncate(s)
		}
	}

	if s := strings.TrimSpace(string(body)); s != "" {
		return truncate(s)
	}
	if text := http.StatusText(resp.StatusCode); text != "" {
		return text
	}
	return resp.Status
}

func truncate(s string) string {
	if len(s) <= maxMessageLen {
		return s
	}
	n := maxMessageLen
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
