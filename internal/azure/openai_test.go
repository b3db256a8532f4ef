package azure

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestNewOpenAIClient(t *testing.T) {
	logger := zap.NewNop()

	tests := []struct {
		name       string
		endpoint   string
		apiKey     string
		deployment string
		wantErr    bool
	}{
		{
			name:       "valid configuration",
			endpoint:   "https://example.openai.azure.com",
			apiKey:     "test-key",
			deployment: "gpt-4o",
			wantErr:    false,
		},
		{
			name:       "missing endpoint",
			endpoint:   "",
			apiKey:     "test-key",
			deployment: "gpt-4o",
			wantErr:    true,
		},
		{
			name:       "missing api key",
			endpoint:   "https://example.openai.azure.com",
			apiKey:     "",
			deployment: "gpt-4o",
			wantErr:    true,
		},
		{
			name:       "missing deployment",
			endpoint:   "https://example.openai.azure.com",
			apiKey:     "test-key",
			deployment: "",
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewOpenAIClient(tt.endpoint, tt.apiKey, tt.deployment, logger)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewOpenAIClient() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr {
				return
			}
			if client == nil {
				t.Fatal("NewOpenAIClient() returned nil client")
			}
			if client.maxRetries != 3 {
				t.Errorf("maxRetries = %d, want 3", client.maxRetries)
			}
			if client.baseDelay != time.Second {
				t.Errorf("baseDelay = %v, want 1s", client.baseDelay)
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		ctx  context.Context
		err  error
		want bool
	}{
		{
			name: "nil error",
			ctx:  ctx,
			err:  nil,
			want: false,
		},
		{
			name: "authentication error",
			ctx:  ctx,
			err:  errors.New("authentication failed"),
			want: false,
		},
		{
			name: "unauthorized error",
			ctx:  ctx,
			err:  errors.New("Unauthorized: invalid credentials"),
			want: false,
		},
		{
			name: "401 status",
			ctx:  ctx,
			err:  errors.New("request failed with status 401"),
			want: false,
		},
		{
			name: "invalid request",
			ctx:  ctx,
			err:  errors.New("invalid request: missing model"),
			want: false,
		},
		{
			name: "bad request",
			ctx:  ctx,
			err:  errors.New("bad request"),
			want: false,
		},
		{
			name: "rate limit",
			ctx:  ctx,
			err:  errors.New("rate limit exceeded, status 429"),
			want: true,
		},
		{
			name: "transient network error",
			ctx:  ctx,
			err:  errors.New("connection reset by peer"),
			want: true,
		},
		{
			name: "server error",
			ctx:  ctx,
			err:  errors.New("internal server error, status 500"),
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isRetryable(tt.ctx, tt.err); got != tt.want {
				t.Errorf("isRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestIsRetryable_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// A retryable-looking error must not retry once the caller gave up
	if isRetryable(ctx, errors.New("rate limit exceeded")) {
		t.Error("isRetryable() must be false for a canceled context")
	}
}
