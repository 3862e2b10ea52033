// Package llm wraps the chat-completion provider used for contextual
// summaries, code summaries, source summaries, entity extraction, and
// reranking. The provider speaks the OpenAI chat API; any compatible
// endpoint works.
package llm

import (
	"context"

	openai "github.com/sashabaranov/go-openai"

	"github.com/ragmill/ragmill/internal/config"
	ragerr "github.com/ragmill/ragmill/internal/errors"
)

// Client is the chat capability the pipelines consume.
type Client interface {
	// Chat sends one system+user exchange and returns the reply text.
	Chat(ctx context.Context, system, user string) (string, error)
}

// OpenAI is the production Client backed by an OpenAI-compatible endpoint.
type OpenAI struct {
	client *openai.Client
	model  string
	retry  ragerr.RetryConfig
}

// New creates a chat client from config.
func New(cfg config.LLMConfig) *OpenAI {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	return &OpenAI{
		client: openai.NewClientWithConfig(oc),
		model:  cfg.Model,
		retry:  ragerr.DefaultRetryConfig(),
	}
}

// Chat implements Client with backoff on transient provider failures.
func (o *OpenAI) Chat(ctx context.Context, system, user string) (string, error) {
	return ragerr.RetryWithResult(ctx, o.retry, func() (string, error) {
		resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: o.model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: system},
				{Role: openai.ChatMessageRoleUser, Content: user},
			},
		})
		if err != nil {
			return "", ragerr.Wrap(ragerr.ErrCodeLLMFailed, err)
		}
		if len(resp.Choices) == 0 {
			return "", ragerr.New(ragerr.ErrCodeLLMFailed, "empty completion response", nil)
		}
		return resp.Choices[0].Message.Content, nil
	})
}
