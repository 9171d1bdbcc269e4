// Package lipsync 根据 mora 时间数据计算口部开合度。
//
// 开合度是 [0,1] 的标量：每个 mora 按其假名划入一个发音类别，
// 得到一个基准开合度；mora 窗口内部用正弦包络起伏，窗口之间
// 线性插值，时间轴之外恒为 0。
package lipsync

import (
	"math"

	"github.com/iabetor/manzai-stage/internal/timing"
)

// 元音基准开合度：あ 全开，い/う 窄，え/お 中等。
const (
	openWide   = 1.0
	openNarrow = 0.3
	openMid    = 0.7
)

// 特殊 mora 的固定开合度。
const (
	openNasalMora = 0.1 // ん
	openGeminate  = 0.1 // っ
	openLongVowel = 0.3 // ー
)

// 辅音系对元音基准的衰减系数，范围 [0.4, 0.7]。
const (
	factorPlosive   = 0.7  // か・た・ぱ・が・だ・ば 行
	factorSibilant  = 0.5  // さ・ざ 行（含 し・ち・つ 的塞擦音）
	factorFricative = 0.5  // は 行
	factorNasalCons = 0.4  // な・ま 行
	factorLiquid    = 0.6  // ら 行
	factorGlide     = 0.65 // や・わ 行
)

// vowelBase 是五个元音的基准开合度。
var vowelBase = map[rune]float64{
	'a': openWide,
	'i': openNarrow,
	'u': openNarrow,
	'e': openMid,
	'o': openMid,
}

// kanaClass 描述一个假名的辅音系数与元音。
type kanaClass struct {
	factor float64
	vowel  rune
}

func cv(factor float64, vowel rune) kanaClass { return kanaClass{factor, vowel} }

// kanaTable 覆盖五十音（平假名形式，片假名先归一化再查表）。
var kanaTable = map[rune]kanaClass{
	// 清元音行
	'あ': cv(1, 'a'), 'い': cv(1, 'i'), 'う': cv(1, 'u'), 'え': cv(1, 'e'), 'お': cv(1, 'o'),
	// か行・が行
	'か': cv(factorPlosive, 'a'), 'き': cv(factorPlosive, 'i'), 'く': cv(factorPlosive, 'u'),
	'け': cv(factorPlosive, 'e'), 'こ': cv(factorPlosive, 'o'),
	'が': cv(factorPlosive, 'a'), 'ぎ': cv(factorPlosive, 'i'), 'ぐ': cv(factorPlosive, 'u'),
	'げ': cv(factorPlosive, 'e'), 'ご': cv(factorPlosive, 'o'),
	// さ行・ざ行
	'さ': cv(factorSibilant, 'a'), 'し': cv(factorSibilant, 'i'), 'す': cv(factorSibilant, 'u'),
	'せ': cv(factorSibilant, 'e'), 'そ': cv(factorSibilant, 'o'),
	'ざ': cv(factorSibilant, 'a'), 'じ': cv(factorSibilant, 'i'), 'ず': cv(factorSibilant, 'u'),
	'ぜ': cv(factorSibilant, 'e'), 'ぞ': cv(factorSibilant, 'o'),
	// た行・だ行（ち・つ 为塞擦音，归入さ行系数）
	'た': cv(factorPlosive, 'a'), 'ち': cv(factorSibilant, 'i'), 'つ': cv(factorSibilant, 'u'),
	'て': cv(factorPlosive, 'e'), 'と': cv(factorPlosive, 'o'),
	'だ': cv(factorPlosive, 'a'), 'ぢ': cv(factorSibilant, 'i'), 'づ': cv(factorSibilant, 'u'),
	'で': cv(factorPlosive, 'e'), 'ど': cv(factorPlosive, 'o'),
	// な行
	'な': cv(factorNasalCons, 'a'), 'に': cv(factorNasalCons, 'i'), 'ぬ': cv(factorNasalCons, 'u'),
	'ね': cv(factorNasalCons, 'e'), 'の': cv(factorNasalCons, 'o'),
	// は行・ば行・ぱ行
	'は': cv(factorFricative, 'a'), 'ひ': cv(factorFricative, 'i'), 'ふ': cv(factorFricative, 'u'),
	'へ': cv(factorFricative, 'e'), 'ほ': cv(factorFricative, 'o'),
	'ば': cv(factorPlosive, 'a'), 'び': cv(factorPlosive, 'i'), 'ぶ': cv(factorPlosive, 'u'),
	'べ': cv(factorPlosive, 'e'), 'ぼ': cv(factorPlosive, 'o'),
	'ぱ': cv(factorPlosive, 'a'), 'ぴ': cv(factorPlosive, 'i'), 'ぷ': cv(factorPlosive, 'u'),
	'ぺ': cv(factorPlosive, 'e'), 'ぽ': cv(factorPlosive, 'o'),
	// ま行
	'ま': cv(factorNasalCons, 'a'), 'み': cv(factorNasalCons, 'i'), 'む': cv(factorNasalCons, 'u'),
	'め': cv(factorNasalCons, 'e'), 'も': cv(factorNasalCons, 'o'),
	// や行
	'や': cv(factorGlide, 'a'), 'ゆ': cv(factorGlide, 'u'), 'よ': cv(factorGlide, 'o'),
	// ら行
	'ら': cv(factorLiquid, 'a'), 'り': cv(factorLiquid, 'i'), 'る': cv(factorLiquid, 'u'),
	'れ': cv(factorLiquid, 'e'), 'ろ': cv(factorLiquid, 'o'),
	// わ行
	'わ': cv(factorGlide, 'a'), 'を': cv(factorGlide, 'o'),
	// ヴ
	'ゔ': cv(factorFricative, 'u'),
}

// smallVowel 拗音小假名覆盖元音：キャ 的元音取 ゃ 的 a。
var smallVowel = map[rune]rune{
	'ゃ': 'a', 'ゅ': 'u', 'ょ': 'o',
	'ぁ': 'a', 'ぃ': 'i', 'ぅ': 'u', 'ぇ': 'e', 'ぉ': 'o',
}

// normalizeKana 将片假名归一化为平假名（ー 保持原样）。
func normalizeKana(r rune) rune {
	if r >= 'ァ' && r <= 'ヶ' {
		return r - ('ァ' - 'ぁ')
	}
	return r
}

// BaseOpenness 返回单个 mora 假名的基准开合度。
// 未识别的字形划入全开元音类（开合度 1.0）。
func BaseOpenness(text string) float64 {
	runes := []rune(text)
	if len(runes) == 0 {
		return openWide
	}

	first := normalizeKana(runes[0])
	switch first {
	case 'ん':
		return openNasalMora
	case 'っ':
		return openGeminate
	case 'ー':
		return openLongVowel
	}

	k, ok := kanaTable[first]
	if !ok {
		return openWide
	}

	// 拗音（キャ 等）：元音被第二个小假名覆盖
	if len(runes) > 1 {
		if v, ok := smallVowel[normalizeKana(runes[1])]; ok {
			k.vowel = v
		}
	}
	return vowelBase[k.vowel] * k.factor
}

// Openness 对时间数据在 tMs 处采样口部开合度。纯函数，绝不 panic。
//
//	mora 内部: base * sin(phase·π)，窗口两端为 0、中点达到峰值
//	mora 间隙: 相邻两个基准开合度按间隙比例线性插值
//	其余情况: 0（首个 mora 之前、末尾之后、无数据）
func Openness(d timing.Data, tMs float64) float64 {
	var prev *timing.Mora
	var prevBase float64

	for pi := range d.Phrases {
		moras := d.Phrases[pi].Moras
		for mi := range moras {
			m := &moras[mi]
			if m.EndMs <= m.StartMs {
				// 零长或乱序窗口不参与采样
				continue
			}
			if tMs >= m.StartMs && tMs < m.EndMs {
				phase := (tMs - m.StartMs) / (m.EndMs - m.StartMs)
				return clamp01(BaseOpenness(m.Text) * math.Sin(phase*math.Pi))
			}
			if tMs < m.StartMs {
				// 落在 prev 与当前 mora 之间的间隙
				if prev == nil {
					return 0
				}
				frac := (tMs - prev.EndMs) / (m.StartMs - prev.EndMs)
				next := BaseOpenness(m.Text)
				return clamp01(prevBase + (next-prevBase)*frac)
			}
			prev = m
			prevBase = BaseOpenness(m.Text)
		}
	}
	// 无数据、首个 mora 之前或末尾之后
	return 0
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
