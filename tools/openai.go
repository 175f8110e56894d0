package tools

import (
	"context"
	"fmt"
	"os"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// ChatMessage is one turn of conversation context passed to the model.
type ChatMessage struct {
	Role    string // "user" | "assistant"
	Content string
}

// AIClient generates replies with the OpenAI chat completions API.
type AIClient struct {
	client *openai.Client
	model  string
	system string
}

func NewAIClient() (*AIClient, error) {
	apiKey := strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}

	model := strings.TrimSpace(os.Getenv("OPENAI_MODEL"))
	if model == "" {
		model = openai.GPT4oMini
	}

	system := strings.TrimSpace(os.Getenv("OPENAI_SYSTEM_PROMPT"))
	if system == "" {
		system = "You are a helpful, polite and direct customer support assistant."
	}

	return &AIClient{
		client: openai.NewClient(apiKey),
		model:  model,
		system: system,
	}, nil
}

// GenerateReply produces the assistant answer for the given history. The last
// history entry is expected to be the user's latest (possibly coalesced) text.
func (c *AIClient) GenerateReply(ctx context.Context, history []ChatMessage) (string, error) {
	msgs := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	msgs = append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: c.system,
	})
	for _, m := range history {
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: msgs,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty choices from model")
	}

	out := strings.TrimSpace(resp.Choices[0].Message.Content)
	if out == "" {
		return "", fmt.Errorf("empty response from model")
	}
	return out, nil
}
