// Package script 负责漫才台本的生成与校验：
// 台本是 boke（装傻）与 tsukkomi（吐槽）两个角色的对话行列表。
package script

import (
	"context"
	"fmt"
	"strings"
)

// Role 表示台本行的角色。
type Role string

const (
	// RoleTsukkomi 吐槽役，负责接梗和推进话题
	RoleTsukkomi Role = "tsukkomi"
	// RoleBoke 装傻役，负责抛出错误或好笑的内容
	RoleBoke Role = "boke"
)

// Line 是台本中的一行台词。
type Line struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// Generator 定义台本生成后端接口。
type Generator interface {
	// Generate 根据话题生成一份台本。
	Generate(ctx context.Context, topic string) ([]Line, error)
}

// normalizeRole 将模型输出的各种角色写法归一到标准值。
// 无法识别的写法原样保留（转小写）。
func normalizeRole(raw string) Role {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "boke", "ボケ":
		return RoleBoke
	case "tsukkomi", "ツッコミ", "つっこみ":
		return RoleTsukkomi
	default:
		return Role(strings.ToLower(strings.TrimSpace(raw)))
	}
}

// scriptPayload 对应模型输出的 JSON 结构。
type scriptPayload struct {
	Script []struct {
		Role string `json:"role"`
		Text string `json:"text"`
	} `json:"script"`
}

// validate 校验并归一一份解析后的台本。
func validate(p scriptPayload) ([]Line, error) {
	if len(p.Script) == 0 {
		return nil, fmt.Errorf("生成的台本为空")
	}

	lines := make([]Line, 0, len(p.Script))
	for i, l := range p.Script {
		if l.Role == "" || l.Text == "" {
			return nil, fmt.Errorf("台本第 %d 行缺少 role 或 text", i)
		}
		lines = append(lines, Line{
			Role: normalizeRole(l.Role),
			Text: l.Text,
		})
	}
	return lines, nil
}
