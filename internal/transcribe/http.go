package transcribe

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"github.com/loqalabs/loqa-pitch/internal/media"
)

const maxResponseBytes = 4 << 20

type httpTranscriber struct {
	endpoint   string
	fieldName  string
	httpClient *http.Client
}

// NewHTTPTranscriber uploads audio as multipart form data under fieldName.
func NewHTTPTranscriber(endpoint, fieldName string, client *http.Client) Transcriber {
	if fieldName == "" {
		fieldName = "audio"
	}
	if client == nil {
		client = &http.Client{}
	}
	return &httpTranscriber{endpoint: endpoint, fieldName: fieldName, httpClient: client}
}

func (t *httpTranscriber) Transcribe(ctx context.Context, blob media.Blob) (string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		escapeQuotes(t.fieldName), escapeQuotes(blob.FileName)))
	contentType := blob.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header.Set("Content-Type", contentType)

	part, err := writer.CreatePart(header)
	if err != nil {
		return "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(blob.Data); err != nil {
		return "", fmt.Errorf("failed to write audio: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, body)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("transcription service error: %s - %s", resp.Status, strings.TrimSpace(string(respBody)))
	}
	return ParseResponse(respBody)
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
