package schema

import "time"

// ConfidenceTier 历史数据置信档位
type ConfidenceTier string

const (
	TierBuilding ConfidenceTier = "building" // 0-9 个样本
	TierMedium   ConfidenceTier = "medium"   // 10-49 个样本
	TierHigh     ConfidenceTier = "high"     // >= 50 个样本
)

// ClassifyTier 按样本数分档。边界为左闭右开：9 是 building，10 是 medium，50 是 high。
func ClassifyTier(sampleCount int64) ConfidenceTier {
	switch {
	case sampleCount >= 50:
		return TierHigh
	case sampleCount >= 10:
		return TierMedium
	default:
		return TierBuilding
	}
}

// HashtagStat 标签在某平台上的聚合统计
// 主键为 (hashtag, platform)；数据量级：千级
//
// 不变式：AvgEngagement / SuccessRate / ConfidenceTier 永远由权威计数列
// (TotalUses / CumulativeEngagement / SuccessCount) 经 Recompute 推导，
// 不允许单独修改，重放推导必须精确还原存储值。
type HashtagStat struct {
	Hashtag              string         `gorm:"primaryKey;size:100" json:"hashtag"`
	Platform             string         `gorm:"primaryKey;size:20" json:"platform"`
	TotalUses            int64          `gorm:"not null;default:0" json:"total_uses"`
	CumulativeEngagement float64        `gorm:"not null;default:0" json:"cumulative_engagement"`
	AvgEngagement        float64        `gorm:"not null;default:0" json:"avg_engagement"`
	SuccessCount         int64          `gorm:"not null;default:0" json:"success_count"`
	SuccessRate          float64        `gorm:"not null;default:0" json:"success_rate"`
	ConfidenceTier       ConfidenceTier `gorm:"size:20" json:"confidence_tier"`
	LastUsed             time.Time      `json:"last_used"`
	CreatedAt            time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName 指定表名
func (HashtagStat) TableName() string {
	return "hashtag_stats"
}

// ApplyOutcome 记入一次互动结果并重新推导派生列。
// rate 为小数形式互动率；达到 successThreshold 的结果计入成功。
func (s *HashtagStat) ApplyOutcome(rate, successThreshold float64, usedAt time.Time) {
	s.TotalUses++
	s.CumulativeEngagement += rate
	if rate >= successThreshold {
		s.SuccessCount++
	}
	s.LastUsed = usedAt
	s.Recompute()
}

// RemoveOutcome 撤销一次已记入的结果（显式修正用），与 ApplyOutcome 互逆。
func (s *HashtagStat) RemoveOutcome(rate, successThreshold float64) {
	if s.TotalUses == 0 {
		return
	}
	s.TotalUses--
	s.CumulativeEngagement -= rate
	if rate >= successThreshold && s.SuccessCount > 0 {
		s.SuccessCount--
	}
	if s.TotalUses == 0 {
		s.CumulativeEngagement = 0
	}
	s.Recompute()
}

// Recompute 从权威计数列重新推导 AvgEngagement / SuccessRate / ConfidenceTier
func (s *HashtagStat) Recompute() {
	if s.TotalUses > 0 {
		s.AvgEngagement = s.CumulativeEngagement / float64(s.TotalUses)
		s.SuccessRate = float64(s.SuccessCount) / float64(s.TotalUses)
	} else {
		s.AvgEngagement = 0
		s.SuccessRate = 0
	}
	s.ConfidenceTier = ClassifyTier(s.TotalUses)
}
