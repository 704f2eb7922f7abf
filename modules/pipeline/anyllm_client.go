package pipeline

import (
	"context"
	"fmt"
	"strings"

	anyllm "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmopenai "github.com/mozilla-ai/any-llm-go/providers/openai"
)

// AnyLLMClient implements LLMClient (job U, §4.I) against any-llm-go, a
// single Go interface over OpenAI/Anthropic/Gemini/Ollama/DeepSeek/
// Mistral/Groq. Which backend is used is a deploy-time choice (provider
// name + model + API key all come from configuration); the client
// itself only ever issues plain, non-streaming completions.
type AnyLLMClient struct {
	backend anyllm.Provider
	model   string
}

// NewAnyLLMClient builds a client against providerName ("openai",
// "anthropic", "gemini", or "ollama" — the subset any-llm-go supports
// that this adapter wires up) using model and an optional apiKey.
func NewAnyLLMClient(providerName, model, apiKey string) (*AnyLLMClient, error) {
	var opts []anyllm.Option
	if apiKey != "" {
		opts = append(opts, anyllm.WithAPIKey(apiKey))
	}

	var backend anyllm.Provider
	var err error
	switch strings.ToLower(providerName) {
	case "openai":
		backend, err = anyllmopenai.New(opts...)
	case "anthropic":
		backend, err = anthropic.New(opts...)
	case "gemini":
		backend, err = gemini.New(opts...)
	case "ollama":
		backend, err = ollama.New(opts...)
	default:
		return nil, fmt.Errorf("any-llm client: unsupported provider %q", providerName)
	}
	if err != nil {
		return nil, fmt.Errorf("any-llm client: create %q backend: %w", providerName, err)
	}

	return &AnyLLMClient{backend: backend, model: model}, nil
}

func (c *AnyLLMClient) ShortTitle(ctx context.Context, transcript string) (string, error) {
	return c.complete(ctx, "Write a short, specific title (under 8 words) for this conversation. Respond with the title only, no quotes or punctuation at the end.", transcript)
}

func (c *AnyLLMClient) ShortSummary(ctx context.Context, transcript string) (string, error) {
	return c.complete(ctx, "Summarize this conversation in one or two sentences.", transcript)
}

func (c *AnyLLMClient) DetailedSummary(ctx context.Context, transcript string) (string, error) {
	return c.complete(ctx, "Write a detailed summary of this conversation, covering every topic discussed and any decisions or action items.", transcript)
}

// ExtractFacts asks the model to pull atomic, standalone facts out of a
// transcript, one per line, used by PgvectorMemoryProvider to build Facts for
// job M.
func (c *AnyLLMClient) ExtractFacts(ctx context.Context, transcript string) ([]string, error) {
	content, err := c.complete(ctx, "Extract the atomic facts worth remembering about the speakers from this conversation (preferences, plans, relationships, commitments). Respond with one fact per line and nothing else. If there are none, respond with an empty line.", transcript)
	if err != nil {
		return nil, err
	}
	var facts []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "-"))
		if line != "" {
			facts = append(facts, line)
		}
	}
	return facts, nil
}

func (c *AnyLLMClient) complete(ctx context.Context, systemPrompt, transcript string) (string, error) {
	if c == nil {
		return "", fmt.Errorf("no LLM client configured")
	}
	resp, err := c.backend.Completion(ctx, anyllm.CompletionParams{
		Model: c.model,
		Messages: []anyllm.Message{
			{Role: anyllm.RoleSystem, Content: systemPrompt},
			{Role: "user", Content: transcript},
		},
	})
	if err != nil {
		return "", fmt.Errorf("any-llm completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("any-llm completion: empty response")
	}
	return strings.TrimSpace(resp.Choices[0].Message.ContentString()), nil
}
