package script

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/iabetor/manzai-stage/internal/logger"
)

// OllamaGenerator 通过 Ollama 的 /api/generate 接口生成漫才台本。
type OllamaGenerator struct {
	baseURL    string
	model      string
	prompts    *PromptStore
	httpClient *http.Client
}

// NewOllamaGenerator 创建 Ollama 台本生成器。
func NewOllamaGenerator(baseURL, model string, prompts *PromptStore) *OllamaGenerator {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "llama3"
	}
	return &OllamaGenerator{
		baseURL: baseURL,
		model:   model,
		prompts: prompts,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

// generateRequest 是发送到 /api/generate 的 JSON 请求体。
type generateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

// generateResponse 对应 /api/generate 的非流式响应。
type generateResponse struct {
	Response string `json:"response"`
	Error    string `json:"error"`
}

// Generate 根据话题生成一份台本。
// 请求模型输出 JSON 并从响应中提取 JSON 块，校验后返回台词行。
func (g *OllamaGenerator) Generate(ctx context.Context, topic string) ([]Line, error) {
	if topic == "" {
		return nil, fmt.Errorf("话题不能为空")
	}

	prompt, err := g.prompts.Load("manzai", map[string]string{"topic": topic})
	if err != nil {
		return nil, err
	}

	logger.Infof("[script] 正在生成台本：话题=%s 模型=%s", topic, g.model)

	raw, err := g.generateText(ctx, prompt)
	if err != nil {
		return nil, err
	}

	block, err := extractJSONBlock(raw)
	if err != nil {
		return nil, err
	}

	var payload scriptPayload
	if err := json.Unmarshal([]byte(block), &payload); err != nil {
		return nil, fmt.Errorf("[script] 解析台本 JSON 失败: %w", err)
	}

	lines, err := validate(payload)
	if err != nil {
		return nil, fmt.Errorf("[script] 台本校验失败: %w", err)
	}

	logger.Infof("[script] 台本生成完成，共 %d 行", len(lines))
	return lines, nil
}

// generateText 调用 /api/generate 并返回生成的文本。
// options 中的 format=json 约束模型输出 JSON。
func (g *OllamaGenerator) generateText(ctx context.Context, prompt string) (string, error) {
	reqBody := generateRequest{
		Model:  g.model,
		Prompt: prompt,
		Stream: false,
		Options: map[string]any{
			"temperature": 0.7,
			"top_p":       0.9,
			"format":      "json",
		},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("[script] 序列化请求体失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		g.baseURL+"/api/generate", bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("[script] 创建请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("[script] 请求 Ollama 失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("[script] Ollama 返回状态码 %d: %s", resp.StatusCode, string(body))
	}

	var gr generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return "", fmt.Errorf("[script] 解析 Ollama 响应失败: %w", err)
	}
	if gr.Error != "" {
		return "", fmt.Errorf("[script] Ollama API 错误: %s", gr.Error)
	}
	return gr.Response, nil
}

// extractJSONBlock 从模型输出中提取 JSON 块。
// 依次尝试：```json 围栏块、最外层大括号、整段文本。
func extractJSONBlock(text string) (string, error) {
	if idx := strings.Index(text, "```json"); idx >= 0 {
		rest := text[idx+len("```json"):]
		if end := strings.Index(rest, "```"); end >= 0 {
			return strings.TrimSpace(rest[:end]), nil
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && start < end {
		return text[start : end+1], nil
	}

	if json.Valid([]byte(text)) {
		return text, nil
	}
	return "", fmt.Errorf("[script] 响应中未找到 JSON 块")
}

// Model 描述一个可用的 Ollama 模型。
type Model struct {
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modified_at"`
}

// ListModels 获取可用模型列表（/api/tags）。
func (g *OllamaGenerator) ListModels(ctx context.Context) ([]Model, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("[script] 创建请求失败: %w", err)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("[script] 请求 Ollama 失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("[script] Ollama 返回状态码 %d", resp.StatusCode)
	}

	var payload struct {
		Models []Model `json:"models"`
		Error  string  `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("[script] 解析模型列表失败: %w", err)
	}
	if payload.Error != "" {
		return nil, fmt.Errorf("[script] Ollama API 错误: %s", payload.Error)
	}
	return payload.Models, nil
}
