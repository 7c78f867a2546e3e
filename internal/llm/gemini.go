package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"
)

// GeminiClient is a client for the Google Gemini API via the genai SDK.
type GeminiClient struct {
	client *genai.Client
	model  string // default model, used by Ping
	logger *slog.Logger
}

// NewGeminiClient creates a new Gemini client. The model argument is the
// default model used for reachability checks.
func NewGeminiClient(ctx context.Context, apiKey, model string, logger *slog.Logger) (*GeminiClient, error) {
	if logger == nil {
		logger = slog.Default()
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	return &GeminiClient{
		client: client,
		model:  model,
		logger: logger.With("provider", "gemini"),
	}, nil
}

// Name identifies the provider in logs and usage records.
func (c *GeminiClient) Name() string { return "gemini" }

// Chat sends a chat completion request to Gemini.
func (c *GeminiClient) Chat(ctx context.Context, messages []Message, opts ChatOptions) (*ChatResponse, error) {
	contents := toGeminiContents(messages)
	config := c.generateConfig(opts)

	resp, err := c.client.Models.GenerateContent(ctx, opts.Model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("generate content: %w", err)
	}

	content, err := responseText(resp.Candidates)
	if err != nil {
		return nil, err
	}
	c.logger.Log(ctx, LevelTrace, "response content", "content", content)

	result := &ChatResponse{
		Model:     opts.Model,
		Provider:  "gemini",
		CreatedAt: time.Now(),
		Content:   content,
	}
	if resp.UsageMetadata != nil {
		result.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
		result.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	return result, nil
}

// ChatStream sends a streaming chat request to Gemini.
// If callback is non-nil, tokens are streamed to it as they arrive.
func (c *GeminiClient) ChatStream(ctx context.Context, messages []Message, opts ChatOptions, callback StreamCallback) (*ChatResponse, error) {
	if callback == nil {
		return c.Chat(ctx, messages, opts)
	}

	contents := toGeminiContents(messages)
	config := c.generateConfig(opts)

	result := &ChatResponse{
		Model:     opts.Model,
		Provider:  "gemini",
		CreatedAt: time.Now(),
	}
	var content strings.Builder

	for resp, err := range c.client.Models.GenerateContentStream(ctx, opts.Model, contents, config) {
		if err != nil {
			return nil, fmt.Errorf("generate content stream: %w", err)
		}
		if resp == nil {
			continue
		}
		for _, candidate := range resp.Candidates {
			if candidate.Content == nil {
				continue
			}
			for _, part := range candidate.Content.Parts {
				if part.Text == "" {
					continue
				}
				content.WriteString(part.Text)
				callback(part.Text)
			}
		}
		// Usage arrives on the final chunk.
		if resp.UsageMetadata != nil {
			result.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
			result.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
		}
	}

	result.Content = content.String()
	c.logger.Log(ctx, LevelTrace, "stream final content", "content", result.Content)
	return result, nil
}

// generateConfig maps provider-neutral ChatOptions onto the SDK config.
func (c *GeminiClient) generateConfig(opts ChatOptions) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{}

	if opts.System != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: opts.System}},
		}
	}
	if opts.Temperature > 0 {
		temp := float32(opts.Temperature)
		config.Temperature = &temp
	}
	if opts.MaxTokens > 0 {
		config.MaxOutputTokens = int32(opts.MaxTokens)
	}
	if opts.JSONMode {
		// Server-side JSON enforcement; no prompt tricks needed.
		config.ResponseMIMEType = "application/json"
		if opts.JSONSchema != nil {
			config.ResponseSchema = toGeminiSchema(opts.JSONSchema)
		}
	}

	return config
}

// toGeminiSchema converts a JSON Schema subset (type, properties,
// required, enum, items, description) to the SDK schema type.
func toGeminiSchema(params map[string]any) *genai.Schema {
	schema := &genai.Schema{}

	if typeStr, ok := params["type"].(string); ok {
		switch typeStr {
		case "object":
			schema.Type = genai.TypeObject
		case "array":
			schema.Type = genai.TypeArray
		case "string":
			schema.Type = genai.TypeString
		case "number":
			schema.Type = genai.TypeNumber
		case "integer":
			schema.Type = genai.TypeInteger
		case "boolean":
			schema.Type = genai.TypeBoolean
		}
	}

	if props, ok := params["properties"].(map[string]any); ok {
		schema.Properties = make(map[string]*genai.Schema, len(props))
		for name, prop := range props {
			if propMap, ok := prop.(map[string]any); ok {
				schema.Properties[name] = toGeminiSchema(propMap)
			}
		}
	}

	if items, ok := params["items"].(map[string]any); ok {
		schema.Items = toGeminiSchema(items)
	}

	switch required := params["required"].(type) {
	case []string:
		schema.Required = required
	case []any:
		for _, r := range required {
			if rs, ok := r.(string); ok {
				schema.Required = append(schema.Required, rs)
			}
		}
	}

	if enum, ok := params["enum"].([]any); ok {
		for _, e := range enum {
			if es, ok := e.(string); ok {
				schema.Enum = append(schema.Enum, es)
			}
		}
	}

	if desc, ok := params["description"].(string); ok {
		schema.Description = desc
	}

	return schema
}

// responseText concatenates the text parts of all candidates. An empty
// candidate list (or candidates without content, as with safety
// blocks) is an error.
func responseText(candidates []*genai.Candidate) (string, error) {
	var content strings.Builder
	for _, candidate := range candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			content.WriteString(part.Text)
		}
	}
	if content.Len() == 0 {
		return "", fmt.Errorf("no completion returned")
	}
	return content.String(), nil
}

// Ping checks if the Gemini API is reachable with the configured key.
func (c *GeminiClient) Ping(ctx context.Context) error {
	if _, err := c.client.Models.Get(ctx, c.model, nil); err != nil {
		return fmt.Errorf("gemini unreachable: %w", err)
	}
	return nil
}

// toGeminiContents converts chat messages to the SDK content format.
// System messages are skipped — they travel via SystemInstruction.
func toGeminiContents(messages []Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(messages))
	for _, msg := range messages {
		role := "user"
		switch msg.Role {
		case "system":
			continue
		case "assistant":
			role = "model"
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: msg.Content}},
		})
	}
	return contents
}
