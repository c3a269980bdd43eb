// Package llm provides a client for interacting with Large Language Models.
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

	"doc-insight-go/internal/apperr"
	"doc-insight-go/internal/config"

	"github.com/gorilla/websocket"
)

// ModelSelector 选择补全请求使用的模型。
type ModelSelector int

const (
	// ModelPrimary 是主模型，用于主回答与事实抽取。
	ModelPrimary ModelSelector = iota
	// ModelVerification 是次级（更小更快）模型，用于批判与校验。
	ModelVerification
)

// CompletionOptions 控制一次补全请求的生成行为。
type CompletionOptions struct {
	Model       ModelSelector
	MaxTokens   int
	Temperature float64
}

// MessageWriter defines an interface for writing WebSocket messages.
// This allows both a standard websocket.Conn and our interceptor to be used.
type MessageWriter interface {
	WriteMessage(messageType int, data []byte) error
}

// Client defines the interface for an LLM client.
type Client interface {
	// Complete 发起一次单轮补全请求，返回完整文本；失败返回 ProviderError。
	Complete(ctx context.Context, prompt string, opts CompletionOptions) (string, error)
	// StreamChatMessages 以 role-based 消息调用聊天接口，并将流式分块写入 writer。
	StreamChatMessages(ctx context.Context, messages []Message, writer MessageWriter) error
}

type openAICompatibleClient struct {
	cfg    config.LLMConfig
	client *http.Client
}

// NewClient creates a new LLM client based on the provider in the config.
func NewClient(cfg config.LLMConfig) Client {
	return &openAICompatibleClient{
		cfg:    cfg,
		client: &http.Client{},
	}
}

// Message 表示一条角色消息
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Stream      bool      `json:"stream"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type chatStreamResponse struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// modelName 把选择器解析为配置中的具体模型名。
func (c *openAICompatibleClient) modelName(sel ModelSelector) string {
	if sel == ModelVerification && c.cfg.VerificationModel != "" {
		return c.cfg.VerificationModel
	}
	return c.cfg.Model
}

// Complete 调用 /chat/completions 接口执行一次非流式补全。
func (c *openAICompatibleClient) Complete(ctx context.Context, prompt string, opts CompletionOptions) (string, error) {
	reqBody := chatRequest{
		Model:    c.modelName(opts.Model),
		Messages: []Message{{Role: "user", Content: prompt}},
		Stream:   false,
	}
	// 温度恒定下发：0.0 是确定性抽取的有效取值，省略会落到服务端默认值。
	t := opts.Temperature
	reqBody.Temperature = &t
	if opts.MaxTokens > 0 {
		m := opts.MaxTokens
		reqBody.MaxTokens = &m
	}

	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal chat request: %w", err)
	}

	// 每次调用独立超时；是否致命由调用方按所处阶段决定。
	ctx, cancel := context.WithTimeout(ctx, time.Duration(c.cfg.TimeoutSeconds)*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "POST", c.cfg.BaseURL+"/chat/completions", bytes.NewReader(reqBytes))
	if err != nil {
		return "", fmt.Errorf("failed to create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", apperr.NewProviderError("llm", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return "", apperr.NewProviderError("llm",
			fmt.Errorf("non-200 status: %s, body: %s", resp.Status, string(bodyBytes)))
	}

	var completion chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return "", apperr.NewProviderError("llm", fmt.Errorf("decode response: %w", err))
	}
	if len(completion.Choices) == 0 {
		return "", apperr.NewProviderError("llm", fmt.Errorf("empty choices in response"))
	}
	return completion.Choices[0].Message.Content, nil
}

// StreamChatMessages calls the chat completions API and streams the response.
func (c *openAICompatibleClient) StreamChatMessages(ctx context.Context, messages []Message, writer MessageWriter) error {
	reqBody := chatRequest{
		Model:    c.cfg.Model,
		Messages: messages,
		Stream:   true,
	}

	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("failed to marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.cfg.BaseURL+"/chat/completions", bytes.NewReader(reqBytes))
	if err != nil {
		return fmt.Errorf("failed to create chat request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.client.Do(req)
	if err != nil {
		return apperr.NewProviderError("llm", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return apperr.NewProviderError("llm",
			fmt.Errorf("non-200 status: %s, body: %s", resp.Status, string(bodyBytes)))
	}

	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				break
			}
			return fmt.Errorf("failed to read from stream: %w", err)
		}

		if strings.HasPrefix(line, "data: ") {
			data := strings.TrimPrefix(line, "data: ")
			if strings.TrimSpace(data) == "[DONE]" {
				break
			}

			var chunk chatStreamResponse
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				continue
			}

			if len(chunk.Choices) > 0 {
				content := chunk.Choices[0].Delta.Content
				if err := writer.WriteMessage(websocket.TextMessage, []byte(content)); err != nil {
					return fmt.Errorf("failed to write message to websocket: %w", err)
				}
			}
		}
	}
	return nil
}
