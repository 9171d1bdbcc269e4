package script

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// defaultManzaiPrompt 是内置的漫才提示词模板，
// 模板目录中没有同名文件时使用。
const defaultManzaiPrompt = `日本の漫才の台本を作成してください。トピックは「{topic}」です。
台本は「ボケ」と「ツッコミ」の2人の会話で構成してください。
以下のJSON形式で出力してください：

` + "```json" + `
{
  "script": [
    {"role": "boke", "text": "ボケのセリフ"},
    {"role": "tsukkomi", "text": "ツッコミのセリフ"}
  ]
}
` + "```" + `

・ボケ役は面白いことや間違ったことを言います。
・ツッコミ役はボケに対して突っ込みを入れたり、話を進行します。
・最低10往復以上の会話を作成してください。
・日本語で作成してください。
・必ず指定されたJSON形式で出力してください。`

// PromptStore 从模板目录加载提示词并缓存，
// 模板中的 {name} 占位符由调用方传入的变量替换。
type PromptStore struct {
	dir string

	mu    sync.Mutex
	cache map[string]string
}

// NewPromptStore 创建提示词加载器。dir 为空时只用内置模板。
func NewPromptStore(dir string) *PromptStore {
	return &PromptStore{
		dir:   dir,
		cache: make(map[string]string),
	}
}

// Load 加载名为 name 的模板并替换变量。
// 文件不存在时回退到内置模板（目前只有 manzai）。
func (p *PromptStore) Load(name string, vars map[string]string) (string, error) {
	tmpl, err := p.template(name)
	if err != nil {
		return "", err
	}

	for k, v := range vars {
		tmpl = strings.ReplaceAll(tmpl, "{"+k+"}", v)
	}
	return tmpl, nil
}

func (p *PromptStore) template(name string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if t, ok := p.cache[name]; ok {
		return t, nil
	}

	if p.dir != "" {
		data, err := os.ReadFile(filepath.Join(p.dir, name+".txt"))
		if err == nil {
			t := string(data)
			p.cache[name] = t
			return t, nil
		}
		if !os.IsNotExist(err) {
			return "", fmt.Errorf("[script] 读取提示词模板 %s 失败: %w", name, err)
		}
	}

	if name == "manzai" {
		p.cache[name] = defaultManzaiPrompt
		return defaultManzaiPrompt, nil
	}
	return "", fmt.Errorf("[script] 提示词模板不存在: %s", name)
}
