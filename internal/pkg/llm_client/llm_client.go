package llm_client

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	log "github.com/sirupsen/logrus"

	"lightbot/internal/pkg/models"
)

var (
	ErrMissingEndpoint = errors.New("model endpoint base URL is not set")
	ErrMissingModel    = errors.New("model name is not set")
	ErrEmptyResponse   = errors.New("empty response from model")
)

// placeholder key for local endpoints that do not check credentials
const dummyAPIKey = "dummy-key"

// LLM is the model-calling capability consumed by the engine.
type LLM interface {
	// Complete runs a single prompt and returns the full text.
	Complete(ctx context.Context, prompt string) (string, error)
	// Chat sends a conversation and returns the assistant reply.
	Chat(ctx context.Context, messages []models.Message) (string, error)
	// StreamChat sends a conversation and yields reply fragments as they
	// arrive. A non-nil error ends the sequence.
	StreamChat(ctx context.Context, messages []models.Message) iter.Seq2[string, error]
}

// Config describes one OpenAI-compatible endpoint.
type Config struct {
	Name       string
	Model      string
	BaseURL    string
	APIKey     string
	Timeout    time.Duration // applies to non-streaming calls only
	MaxRetries int
}

// Client talks to an OpenAI-compatible chat-completions endpoint.
type Client struct {
	cfg    Config
	client openai.Client
}

// New validates cfg and creates a client. It never dials the endpoint.
func New(cfg Config) (*Client, error) {
	cfg.BaseURL = strings.TrimSpace(cfg.BaseURL)
	cfg.Model = strings.TrimSpace(cfg.Model)
	if cfg.BaseURL == "" {
		return nil, ErrMissingEndpoint
	}
	if cfg.Model == "" {
		return nil, ErrMissingModel
	}
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = dummyAPIKey
	}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithBaseURL(cfg.BaseURL),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	log.Infof("LLMClient: initialized model '%s' (%s) at %s", cfg.Model, cfg.Name, cfg.BaseURL)
	return &Client{cfg: cfg, client: openai.NewClient(opts...)}, nil
}

// Model returns the model identifier sent with every request.
func (c *Client) Model() string {
	return c.cfg.Model
}

func (c *Client) params(messages []models.Message) openai.ChatCompletionNewParams {
	return openai.ChatCompletionNewParams{
		Model:    c.cfg.Model,
		Messages: toParams(messages),
	}
}

func (c *Client) callOptions() []option.RequestOption {
	if c.cfg.Timeout <= 0 {
		return nil
	}
	return []option.RequestOption{option.WithRequestTimeout(c.cfg.Timeout)}
}

// Complete sends prompt as a single user message.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	startTime := time.Now()
	defer func() {
		log.Debugf("LLMClient.Complete (%s) took %s", c.cfg.Model, time.Since(startTime))
	}()
	return c.Chat(ctx, []models.Message{models.UserMessage(prompt)})
}

// Chat sends the conversation and returns the first choice's content.
func (c *Client) Chat(ctx context.Context, messages []models.Message) (string, error) {
	startTime := time.Now()
	defer func() {
		log.Debugf("LLMClient.Chat (%s, %d messages) took %s", c.cfg.Model, len(messages), time.Since(startTime))
	}()
	resp, err := c.client.Chat.Completions.New(ctx, c.params(messages), c.callOptions()...)
	if err != nil {
		log.Errorf("LLMClient.Chat request to %s failed: %v", c.cfg.BaseURL, err)
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}

// StreamChat streams the reply. Breaking out of the loop closes the stream.
func (c *Client) StreamChat(ctx context.Context, messages []models.Message) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		startTime := time.Now()
		fragments := 0
		defer func() {
			log.Debugf("LLMClient.StreamChat (%s) produced %d fragments in %s", c.cfg.Model, fragments, time.Since(startTime))
		}()

		stream := c.client.Chat.Completions.NewStreaming(ctx, c.params(messages))
		defer stream.Close()

		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			delta := chunk.Choices[0].Delta.Content
			if delta == "" {
				continue
			}
			fragments++
			if !yield(delta, nil) {
				return
			}
		}
		if err := stream.Err(); err != nil {
			log.Errorf("LLMClient.StreamChat from %s failed after %d fragments: %v", c.cfg.BaseURL, fragments, err)
			yield("", fmt.Errorf("chat completion stream: %w", err))
		}
	}
}

func toParams(messages []models.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case models.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case models.RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}
