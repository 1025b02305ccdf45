package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"
)

// RemoteConfig configures the remote agent adapter.
type RemoteConfig struct {
	// APIKey authenticates against the Anthropic API.
	APIKey string

	// Model selects the model, e.g. "claude-sonnet-4-5".
	Model string

	// MaxTokens caps the response size (default: 4096).
	MaxTokens int64

	// SystemPrompt is prepended to every request.
	SystemPrompt string

	// Logger for structured logging. Defaults to zap.NewNop().
	Logger *zap.Logger
}

// RemoteAdapter drives a remote AI agent over the Anthropic messages API.
type RemoteAdapter struct {
	client anthropic.Client
	cfg    RemoteConfig
	logger *zap.Logger
}

// NewRemoteAdapter creates an adapter backed by the Anthropic API.
func NewRemoteAdapter(cfg RemoteConfig) (*RemoteAdapter, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("remote adapter: api key is required")
	}
	if cfg.Model == "" {
		return nil, errors.New("remote adapter: model is required")
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 4096
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RemoteAdapter{
		client: anthropic.NewClient(option.WithAPIKey(cfg.APIKey)),
		cfg:    cfg,
		logger: logger,
	}, nil
}

// Execute implements Adapter.
func (a *RemoteAdapter) Execute(ctx context.Context, payload Payload) (*Outcome, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.cfg.Model),
		MaxTokens: a.cfg.MaxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(payload.Prompt)),
		},
	}
	if a.cfg.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: a.cfg.SystemPrompt}}
	}

	start := time.Now()
	msg, err := a.client.Messages.New(ctx, params)
	elapsed := time.Since(start)

	if err != nil {
		return nil, a.classify(err, payload.TaskID)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}

	return &Outcome{
		Output:   sb.String(),
		Duration: elapsed,
		Metadata: map[string]string{
			"adapter": "remote",
			"model":   a.cfg.Model,
		},
	}, nil
}

// classify maps API errors onto the transient/terminal taxonomy.
// 408/429/5xx are transient; the rest of the 4xx range is terminal.
func (a *RemoteAdapter) classify(err error, taskID string) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		status := apiErr.StatusCode
		a.logger.Warn("remote agent call failed",
			zap.String("task_id", taskID),
			zap.Int("status", status),
			zap.Error(err))
		if status == 408 || status == 429 || status >= 500 {
			return Transient(fmt.Errorf("remote agent: %w", err))
		}
		return Terminal(fmt.Errorf("remote agent: %w", err))
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return Transient(fmt.Errorf("remote agent: %w", err))
	}

	// Connection-level failures come through unwrapped.
	return Transient(fmt.Errorf("remote agent: %w", err))
}
