package feedback

import (
	"context"
	"strings"
	"time"
)

type mockClient struct{}

func NewMockClient() Client { return &mockClient{} }

func (m *mockClient) Critique(ctx context.Context, transcript string) (Result, error) {
	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case <-time.After(20 * time.Millisecond):
	}
	return NewResult("**[mock feedback for " + strings.TrimSpace(transcript) + "]**"), nil
}
