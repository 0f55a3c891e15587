package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// ErrGenerationUnavailable 生成服务不可用（未运行 / 超时 / 响应不可解析）。
// 调用方据此降级为纯启发式推荐，绝不因此阻断持久化路径。
var ErrGenerationUnavailable = errors.New("生成服务不可用")

// OllamaClient Ollama API 客户端（本地 LLM）
type OllamaClient struct {
	baseURL string
	model   string
	client  *http.Client
}

// OllamaConfig 配置
type OllamaConfig struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

// NewOllamaClient 创建客户端
func NewOllamaClient(cfg *OllamaConfig) *OllamaClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	if cfg.Model == "" {
		cfg.Model = "llama3.2:3b"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	return &OllamaClient{
		baseURL: cfg.BaseURL,
		model:   cfg.Model,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// generateRequest /api/generate 请求体
type generateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	System  string         `json:"system,omitempty"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

// generateResponse /api/generate 响应体
type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Generate 发送一次生成请求，返回原始文本。
// 任何失败统一映射为 ErrGenerationUnavailable，细节进日志。
func (c *OllamaClient) Generate(ctx context.Context, prompt, system string) (string, error) {
	req := generateRequest{
		Model:  c.model,
		Prompt: prompt,
		System: system,
		Stream: false,
		Options: map[string]any{
			"temperature": 0.7,
			"top_p":       0.9,
		},
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("序列化请求失败: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("创建请求失败: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		slog.Warn("Ollama 请求失败", "error", err)
		return "", fmt.Errorf("%w: %v", ErrGenerationUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: 读取响应失败: %v", ErrGenerationUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		slog.Warn("Ollama API 错误", "status", resp.StatusCode, "body", truncate(string(respBody), 200))
		return "", fmt.Errorf("%w: API 状态 %s", ErrGenerationUnavailable, resp.Status)
	}

	var genResp generateResponse
	if err := json.Unmarshal(respBody, &genResp); err != nil {
		return "", fmt.Errorf("%w: 解析响应失败: %v", ErrGenerationUnavailable, err)
	}

	slog.Debug("Ollama 生成成功", "model", c.model, "chars", len(genResp.Response))
	return genResp.Response, nil
}

// IsAvailable 探测 Ollama 是否在运行（/api/tags，短超时）
func (c *OllamaClient) IsAvailable(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, "GET", c.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Model 返回当前模型名
func (c *OllamaClient) Model() string {
	return c.model
}

// cleanJSONResponse 清理响应（移除可能的 markdown 代码块）
func cleanJSONResponse(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(s, "```")
		s = strings.TrimSpace(s)
	}
	return s
}

// truncate 截断字符串
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
