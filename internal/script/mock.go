package script

import "context"

// mockScript 是内置的演示台本，用于 Ollama 不可用或离线演示。
var mockScript = []Line{
	{Role: RoleTsukkomi, Text: "今日のテーマは何だっけ？"},
	{Role: RoleBoke, Text: "今日のテーマは「旅行」だよ！最近どこか行った？"},
	{Role: RoleTsukkomi, Text: "いや、行ってないよ。"},
	{Role: RoleBoke, Text: "僕はこの前、海外旅行に行ってきたよ！"},
	{Role: RoleTsukkomi, Text: "へー、どこに行ったの？"},
	{Role: RoleBoke, Text: "グーグルアースで世界一周！"},
	{Role: RoleTsukkomi, Text: "それ旅行じゃないから！"},
	{Role: RoleBoke, Text: "でもね、飛行機代も宿泊費もかからないよ！"},
	{Role: RoleTsukkomi, Text: "だからそれは旅行じゃなくて、ただの検索だって！"},
	{Role: RoleBoke, Text: "じゃあ、君はどんな旅行がしたいの？"},
	{Role: RoleTsukkomi, Text: "そうだな、やっぱり温泉とかいいよな。"},
	{Role: RoleBoke, Text: "もちろん！家のお風呂に入浴剤入れたよ！"},
	{Role: RoleTsukkomi, Text: "だからそれは温泉じゃないって！"},
}

// MockGenerator 返回固定台本，不访问任何外部服务。
type MockGenerator struct{}

// NewMockGenerator 创建演示用台本生成器。
func NewMockGenerator() *MockGenerator {
	return &MockGenerator{}
}

// Generate 返回内置台本的副本。topic 被忽略。
func (m *MockGenerator) Generate(ctx context.Context, topic string) ([]Line, error) {
	lines := make([]Line, len(mockScript))
	copy(lines, mockScript)
	return lines, nil
}
