package service

import "github.com/yuqie6/TagPilot/internal/schema"

// 置信分档的判定与数据不变式一起放在 schema.HashtagStat 上，
// 这里只补充打分侧的策略：每个档位对应的可靠性权重。

// ClassifyConfidence 按样本数分档（代理到 schema，保证与存储层同一套边界）
func ClassifyConfidence(sampleCount int64) schema.ConfidenceTier {
	return schema.ClassifyTier(sampleCount)
}

// ReliabilityWeight 档位对应的可靠性权重 (0,1]。
// 打分时用它混合历史统计与冷启动启发式，避免早期个别异常样本支配推荐。
func ReliabilityWeight(tier schema.ConfidenceTier) float64 {
	switch tier {
	case schema.TierHigh:
		return 0.95
	case schema.TierMedium:
		return 0.75
	default:
		return 0.30
	}
}
