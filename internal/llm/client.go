package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config carries connection parameters for the chat completion service.
type Config struct {
	Endpoint     string
	APIKey       string
	Model        string
	SystemPrompt string

	// HTTPClient may be supplied for tests; a default client with no
	// overall timeout is used otherwise, since streams can run long.
	HTTPClient *http.Client
}

// Client streams chat completions from an OpenAI-compatible endpoint.
type Client struct {
	cfg  Config
	http *http.Client
	log  zerolog.Logger
}

// NewClient creates a streaming chat client.
func NewClient(cfg Config, log zerolog.Logger) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{cfg: cfg, http: httpClient, log: log}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type chatChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// StreamChat sends userText to the model and invokes onDelta for each
// streamed content delta, in order, until the stream completes or ctx is
// canceled.
func (c *Client) StreamChat(ctx context.Context, userText string, onDelta func(string)) error {
	messages := make([]chatMessage, 0, 2)
	if c.cfg.SystemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: c.cfg.SystemPrompt})
	}
	messages = append(messages, chatMessage{Role: "user", Content: userText})

	body, err := json.Marshal(chatRequest{
		Model:    c.cfg.Model,
		Messages: messages,
		Stream:   true,
	})
	if err != nil {
		return fmt.Errorf("failed to encode chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("chat request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("chat request rejected (status %d): %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	deltas := 0
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			break
		}

		var chunk chatChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			c.log.Debug().Err(err).Msg("skipping unparseable stream chunk")
			continue
		}
		for _, choice := range chunk.Choices {
			if choice.Delta.Content != "" {
				deltas++
				onDelta(choice.Delta.Content)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("chat stream read failed: %w", err)
	}

	c.log.Debug().
		Int("deltas", deltas).
		Dur("elapsed", time.Since(start)).
		Msg("chat stream complete")
	return nil
}
