// Package feedback requests a critique of a pitch transcript.
package feedback

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"strings"
	"unicode/utf8"
)

// NoResultPlaceholder is shown when the service answers without a critique.
const NoResultPlaceholder = "No result in response."

// ErrUnparseable is returned for bodies that are not text, and for JSON
// objects whose result is not a string.
var ErrUnparseable = errors.New("unparseable feedback response")

// Result is a normalized feedback response.
type Result struct {
	Text        string
	Placeholder bool
}

// Client defines a pluggable feedback backend.
type Client interface {
	Critique(ctx context.Context, transcript string) (Result, error)
}

// NewResult applies the placeholder rule to a raw critique.
func NewResult(text string) Result {
	if strings.TrimSpace(text) == "" {
		return Result{Text: NoResultPlaceholder, Placeholder: true}
	}
	return Result{Text: text}
}

// ParseResponse extracts the critique from a response body. A JSON object's
// result field is tried first, then a bare JSON string, then the raw body.
// Servers that label plain text as JSON still get their text through.
func ParseResponse(contentType string, body []byte) (string, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return "", nil
	}
	if !utf8.Valid(trimmed) {
		return "", fmt.Errorf("%w: body is not valid UTF-8", ErrUnparseable)
	}

	declaredJSON := isJSONContentType(contentType)
	switch trimmed[0] {
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return string(trimmed), nil
		}
		raw, ok := obj["result"]
		if !ok || string(raw) == "null" {
			return "", nil
		}
		var result string
		if err := json.Unmarshal(raw, &result); err != nil {
			return "", fmt.Errorf("%w: result is not a string", ErrUnparseable)
		}
		return result, nil
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			return s, nil
		}
	}
	// Valid JSON of any other shape carries no critique.
	if declaredJSON && json.Valid(trimmed) {
		return "", nil
	}
	return string(trimmed), nil
}

func isJSONContentType(contentType string) bool {
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}
