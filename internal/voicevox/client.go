// Package voicevox 封装 VOICEVOX 引擎的 HTTP 接口：
// audio_query 提供 mora 时间数据，synthesis 提供 WAV 音频。
package voicevox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/iabetor/manzai-stage/internal/timing"
)

// Client 是 VOICEVOX 引擎的 HTTP 客户端。
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient 创建 VOICEVOX 客户端。
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:50021"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Query 调用 /audio_query，返回原始合成查询 JSON。
// 该 JSON 同时是 Timing 的数据源和 /synthesis 的请求体。
func (c *Client) Query(ctx context.Context, text string, speakerID int) (json.RawMessage, error) {
	if text == "" {
		return nil, fmt.Errorf("text 不能为空")
	}
	if speakerID < 1 {
		return nil, fmt.Errorf("非法的话者 ID: %d", speakerID)
	}

	u := fmt.Sprintf("%s/audio_query?text=%s&speaker=%d",
		c.baseURL, url.QueryEscape(text), speakerID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, nil)
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("audio_query 请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("audio_query 返回错误状态码: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应失败: %w", err)
	}
	return body, nil
}

// Timing 获取一条台词的 mora 时间数据。
// 网络错误会返回 err；响应形状不符退化为空数据（不报错）。
func (c *Client) Timing(ctx context.Context, text string, speakerID int) (timing.Data, error) {
	raw, err := c.Query(ctx, text, speakerID)
	if err != nil {
		return timing.Data{}, err
	}
	return timing.Decode(raw), nil
}

// SynthesizeRaw 用给定的合成查询调用 /synthesis，返回 WAV 数据。
func (c *Client) SynthesizeRaw(ctx context.Context, query json.RawMessage, speakerID int) ([]byte, error) {
	u := fmt.Sprintf("%s/synthesis?speaker=%d", c.baseURL, speakerID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(query))
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("synthesis 请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("synthesis 返回错误状态码: %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// Synthesize 合成一条台词：一次 audio_query 同时得到时间数据和合成请求体。
// 返回 WAV 数据和时间数据。
func (c *Client) Synthesize(ctx context.Context, text string, speakerID int) ([]byte, timing.Data, error) {
	query, err := c.Query(ctx, text, speakerID)
	if err != nil {
		return nil, timing.Data{}, err
	}

	wav, err := c.SynthesizeRaw(ctx, query, speakerID)
	if err != nil {
		return nil, timing.Data{}, err
	}
	return wav, timing.Decode(query), nil
}

// Speaker 是展平后的话者条目（每个 style 一条）。
type Speaker struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	StyleName string `json:"style_name"`
}

// speakerEntry 对应 /speakers 的原始响应条目。
type speakerEntry struct {
	Name   string `json:"name"`
	Styles []struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	} `json:"styles"`
}

// Speakers 获取可用话者列表，按 style 展平。
func (c *Client) Speakers(ctx context.Context) ([]Speaker, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/speakers", nil)
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("speakers 请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("speakers 返回错误状态码: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应失败: %w", err)
	}

	var entries []speakerEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("解析话者列表失败: %w", err)
	}

	var speakers []Speaker
	for _, e := range entries {
		for _, s := range e.Styles {
			if s.ID > 0 {
				speakers = append(speakers, Speaker{
					ID:        s.ID,
					Name:      e.Name,
					StyleName: s.Name,
				})
			}
		}
	}
	return speakers, nil
}

// Version 返回引擎版本字符串。
func (c *Client) Version(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/version", nil)
	if err != nil {
		return "", fmt.Errorf("创建请求失败: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("version 请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("version 返回错误状态码: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("读取响应失败: %w", err)
	}
	// /version 返回带引号的 JSON 字符串
	if s, err := strconv.Unquote(string(bytes.TrimSpace(body))); err == nil {
		return s, nil
	}
	return string(body), nil
}

// Status 描述引擎可用性检查结果。
type Status struct {
	Available      bool
	Version        string
	SpeakerCount   int
	ResponseTimeMs int64
	Err            string
}

// CheckAvailability 探测引擎可用性：版本 + 话者数量 + 响应耗时。
// 探测失败不返回 error，失败原因记录在 Status.Err 中。
func (c *Client) CheckAvailability(ctx context.Context) Status {
	var st Status
	start := time.Now()

	version, err := c.Version(ctx)
	if err != nil {
		st.Err = err.Error()
		return st
	}
	st.Version = version

	speakers, err := c.Speakers(ctx)
	if err != nil {
		st.Err = err.Error()
		return st
	}

	st.Available = true
	st.SpeakerCount = len(speakers)
	st.ResponseTimeMs = time.Since(start).Milliseconds()
	return st
}
