package economy

import (
	"strings"
	"unicode/utf8"
)

var impactKeywords = []string{
	"達成", "突破", "合格", "完成", "成功", "記録", "更新", "獲得",
	"優勝", "受賞", "昇進", "起業", "上場", "契約", "売上", "利益",
}

// sector multipliers in tenths
var sectorMultipliers = map[string]int64{
	"ビジネス": 15,
	"自己研鑽": 13,
	"フィジカル": 12,
	"その他":  10,
}

// CalculateMarketImpact estimates the market-cap impact of an IR release.
func CalculateMarketImpact(content, sector string, hasEvidence bool) int64 {
	length := int64(utf8.RuneCountInString(content))
	total := length * 100
	for _, kw := range impactKeywords {
		if strings.Contains(content, kw) {
			total += 50_000
		}
	}
	if length > 200 {
		total += (length - 200) * 200
	}
	mult, ok := sectorMultipliers[sector]
	if !ok {
		mult = 10
	}
	total = total * mult / 10
	if hasEvidence {
		total = total * 3 / 2
	}
	return total
}

type ImpactRank struct {
	Rank  string `json:"rank"`
	Label string `json:"label"`
}

func RankImpact(amount int64) ImpactRank {
	switch {
	case amount >= 500_000:
		return ImpactRank{Rank: "S", Label: "HIGH IMPACT"}
	case amount >= 100_000:
		return ImpactRank{Rank: "A", Label: "GROWTH"}
	default:
		return ImpactRank{Rank: "B", Label: "STANDARD"}
	}
}
