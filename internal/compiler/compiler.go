// Package compiler turns natural language skill descriptions into structured
// blueprints via the Anthropic Messages API.
package compiler

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	maxInputLen = 500

	defaultMaxTokens   = 1000
	defaultTemperature = 0.3
)

var (
	ErrEmptyInput   = errors.New("skill description is required")
	ErrInputTooLong = fmt.Errorf("skill description exceeds %d characters", maxInputLen)
	ErrEmptyReply   = errors.New("model returned no text")
)

type Config struct {
	APIKey      string
	Model       string
	BaseURL     string
	MaxTokens   int64
	Temperature float64
}

type Client struct {
	client      anthropic.Client
	model       string
	maxTokens   int64
	temperature float64
}

func New(cfg Config) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("compiler: api key is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		return nil, errors.New("compiler: model is required")
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = defaultTemperature
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL := strings.TrimSpace(cfg.BaseURL); baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	return &Client{
		client:      anthropic.NewClient(opts...),
		model:       model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
	}, nil
}

// Draft is one compiled blueprint. Blueprint is the full schema document with
// the seed already stamped; Name is lifted from intent.name for convenience.
type Draft struct {
	Name      string          `json:"name"`
	Seed      int64           `json:"seed"`
	Blueprint json.RawMessage `json:"blueprint"`
}

// Compile sends the description through the skill compiler prompt and parses
// the reply. The seed is derived from the input, not the model, so the same
// description always compiles to the same seed.
func (c *Client) Compile(ctx context.Context, userInput string) (Draft, error) {
	userInput = strings.TrimSpace(userInput)
	if userInput == "" {
		return Draft{}, ErrEmptyInput
	}
	if len(userInput) > maxInputLen {
		return Draft{}, ErrInputTooLong
	}

	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   c.maxTokens,
		Temperature: anthropic.Float(c.temperature),
		System: []anthropic.TextBlockParam{{
			Text: skillCompilerSystem,
		}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userInput)),
		},
	})
	if err != nil {
		return Draft{}, fmt.Errorf("compiler: %w", err)
	}

	var reply strings.Builder
	for _, block := range msg.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			reply.WriteString(text.Text)
		}
	}

	return finalize(reply.String(), seedFor(userInput))
}

// seedFor hashes the description to a stable 32-bit seed.
func seedFor(userInput string) int64 {
	sum := md5.Sum([]byte(userInput))
	n, _ := strconv.ParseInt(hex.EncodeToString(sum[:])[:8], 16, 64)
	return n
}

// finalize parses the model reply into a Draft, overriding whatever seed the
// model guessed with the deterministic one.
func finalize(reply string, seed int64) (Draft, error) {
	reply = stripFences(reply)
	if reply == "" {
		return Draft{}, ErrEmptyReply
	}

	var doc map[string]any
	if err := json.Unmarshal([]byte(reply), &doc); err != nil {
		return Draft{}, fmt.Errorf("compiler: reply is not valid JSON: %w", err)
	}
	doc["seed"] = seed

	blueprint, err := json.Marshal(doc)
	if err != nil {
		return Draft{}, err
	}
	return Draft{
		Name:      intentName(doc),
		Seed:      seed,
		Blueprint: blueprint,
	}, nil
}

// stripFences removes a surrounding markdown code fence if the model added
// one despite the prompt.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func intentName(doc map[string]any) string {
	intent, ok := doc["intent"].(map[string]any)
	if !ok {
		return ""
	}
	name, _ := intent["name"].(string)
	return strings.TrimSpace(name)
}
