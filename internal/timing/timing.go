package timing

import "encoding/json"

// Mora 是口形时间轴上最小的可寻址单位。
// 时间为该段音频内的毫秒偏移，区间为 [StartMs, EndMs)。
type Mora struct {
	Text    string  // 假名文本，如 "コ"、"ン"
	StartMs float64 // 起始时间（毫秒）
	EndMs   float64 // 结束时间（毫秒）
}

// AccentPhrase 是一组连续的 mora。
// 仅用于遍历；短句之间可能存在停顿造成的时间间隙。
type AccentPhrase struct {
	Moras []Mora
}

// Data 是一段合成语音的完整发音时间数据。
// 零值表示"无数据"，所有消费方都必须能容忍零值。
type Data struct {
	Phrases []AccentPhrase
}

// Empty 报告是否没有任何 mora。
func (d Data) Empty() bool {
	for _, p := range d.Phrases {
		if len(p.Moras) > 0 {
			return false
		}
	}
	return true
}

// DurationMs 返回最后一个 mora 的结束时间（毫秒）。
// 无数据时返回 0。
func (d Data) DurationMs() float64 {
	var end float64
	for _, p := range d.Phrases {
		for _, m := range p.Moras {
			if m.EndMs > end {
				end = m.EndMs
			}
		}
	}
	return end
}

// queryMora 对应 VOICEVOX audio_query 返回的 mora 条目。
// 长度单位为秒，consonant_length 可能为 null。
type queryMora struct {
	Text            string   `json:"text"`
	ConsonantLength *float64 `json:"consonant_length"`
	VowelLength     float64  `json:"vowel_length"`
}

// queryPhrase 对应 audio_query 的 accent_phrases 条目。
type queryPhrase struct {
	Moras     []queryMora `json:"moras"`
	PauseMora *queryMora  `json:"pause_mora"`
}

// audioQuery 只解析构建时间轴所需的字段。
type audioQuery struct {
	AccentPhrases []queryPhrase `json:"accent_phrases"`
	SpeedScale    float64       `json:"speedScale"`
}

func (m queryMora) durationSec() float64 {
	d := m.VowelLength
	if m.ConsonantLength != nil {
		d += *m.ConsonantLength
	}
	return d
}

// Decode 从 audio_query 的 JSON 响应构建时间数据。
// 各 mora 的 consonant_length + vowel_length 沿时间轴累加，
// pause_mora 只推进游标、不产生 mora，从而在短句之间留下间隙。
// 任何形状不符（缺字段、非数组、非法 JSON）都退化为空数据，绝不报错。
func Decode(raw []byte) Data {
	var q audioQuery
	if err := json.Unmarshal(raw, &q); err != nil {
		return Data{}
	}

	// speedScale 拉伸整条时间轴
	scale := 1.0
	if q.SpeedScale > 0 {
		scale = 1.0 / q.SpeedScale
	}

	var d Data
	cursor := 0.0
	for _, qp := range q.AccentPhrases {
		var phrase AccentPhrase
		for _, qm := range qp.Moras {
			dur := qm.durationSec() * scale
			if dur < 0 {
				dur = 0
			}
			phrase.Moras = append(phrase.Moras, Mora{
				Text:    qm.Text,
				StartMs: cursor * 1000,
				EndMs:   (cursor + dur) * 1000,
			})
			cursor += dur
		}
		if qp.PauseMora != nil {
			cursor += qp.PauseMora.durationSec() * scale
		}
		if len(phrase.Moras) > 0 {
			d.Phrases = append(d.Phrases, phrase)
		}
	}
	return d
}

// Marshal 将时间数据序列化为 JSON（用于缓存落盘）。
func Marshal(d Data) ([]byte, error) {
	return json.Marshal(d)
}

// Unmarshal 从 Marshal 的输出恢复时间数据，失败时返回空数据。
func Unmarshal(raw []byte) Data {
	var d Data
	if err := json.Unmarshal(raw, &d); err != nil {
		return Data{}
	}
	return d
}
