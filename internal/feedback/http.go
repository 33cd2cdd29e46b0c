package feedback

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const maxResponseBytes = 4 << 20

type httpClient struct {
	endpoint   string
	httpClient *http.Client
}

type generateRequest struct {
	Text string `json:"text"`
}

// NewHTTPClient posts {"text": transcript} to a feedback endpoint.
func NewHTTPClient(endpoint string, client *http.Client) Client {
	if client == nil {
		client = &http.Client{}
	}
	return &httpClient{endpoint: endpoint, httpClient: client}
}

func (c *httpClient) Critique(ctx context.Context, transcript string) (Result, error) {
	body, err := json.Marshal(generateRequest{Text: transcript})
	if err != nil {
		return Result{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Result{}, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{}, fmt.Errorf("feedback service error: %s - %s", resp.Status, strings.TrimSpace(string(respBody)))
	}

	text, err := ParseResponse(resp.Header.Get("Content-Type"), respBody)
	if err != nil {
		return Result{}, err
	}
	return NewResult(text), nil
}
