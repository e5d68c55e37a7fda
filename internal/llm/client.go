// Package llm talks to an OpenAI-compatible chat completion endpoint. It
// backs both conversation collaborators: the intent classifier and the
// open-conversation chatter.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rencie-dev/rencie/internal/model"
)

const defaultEndpoint = "https://api.groq.com/openai/v1/chat/completions"

const classifySystem = `You are the routing layer of Rencie, a banking assistant.
Classify the user's latest message into exactly one intent:
"transfer", "check_balance", "bank_statement", or "smalltalks".

Respond with ONLY a JSON object of the form:
{"intent": "<intent>", "data": {}}

For a transfer, data must carry the details the user gave:
{"intent": "transfer", "data": {"receiverAccountNumber": "<10 digit string>", "amount": <integer, smallest currency unit>}}
Omit a data field when the user did not provide it. Never invent values.`

const chatSystem = `You are Rencie, a warm and concise banking assistant.
Answer general questions and make small talk. You cannot move money,
check balances, or produce statements in this mode; if asked, tell the
user to state the request plainly so it can be routed properly.`

// Client is a chat-completion client for one configured model.
type Client struct {
	httpClient *http.Client
	endpoint   string
	apiKey     string
	model      string
}

func NewClient(endpoint, apiKey, modelName string) *Client {
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		endpoint:   endpoint,
		apiKey:     apiKey,
		model:      modelName,
	}
}

// Classify implements conversation.Classifier. The returned text is the raw
// model output; the caller owns JSON recovery.
func (c *Client) Classify(ctx context.Context, history []model.Message) (string, error) {
	return c.complete(ctx, classifySystem, history)
}

// Reply implements conversation.Chatter.
func (c *Client) Reply(ctx context.Context, history []model.Message) (string, error) {
	return c.complete(ctx, chatSystem, history)
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type completionResponse struct {
	Choices []struct {
		Message wireMessage `json:"message"`
	} `json:"choices"`
}

func (c *Client) complete(ctx context.Context, system string, history []model.Message) (string, error) {
	msgs := make([]wireMessage, 0, len(history)+1)
	msgs = append(msgs, wireMessage{Role: "system", Content: system})
	for _, m := range history {
		msgs = append(msgs, wireMessage{Role: string(m.Role), Content: m.Text})
	}

	payload, err := json.Marshal(completionRequest{Model: c.model, Messages: msgs})
	if err != nil {
		return "", fmt.Errorf("marshaling completion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("building completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling completion endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("completion endpoint returned %d: %s", resp.StatusCode, excerpt)
	}

	var out completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding completion response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("completion response carried no choices")
	}
	return out.Choices[0].Message.Content, nil
}
