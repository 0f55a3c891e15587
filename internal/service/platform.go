package service

import (
	"fmt"
	"time"
)

// Platform 目标平台（封闭枚举）
// 入口处用 ParsePlatform 校验，内部不再出现裸字符串分支。
type Platform string

const (
	PlatformTwitter   Platform = "Twitter"
	PlatformInstagram Platform = "Instagram"
)

// ParsePlatform 解析平台名。大小写敏感："twitter" 不是合法值，
// 宁可在边界拒绝也不做静默默认。
func ParsePlatform(s string) (Platform, error) {
	switch Platform(s) {
	case PlatformTwitter:
		return PlatformTwitter, nil
	case PlatformInstagram:
		return PlatformInstagram, nil
	default:
		return "", fmt.Errorf("%w: %q（合法值: Twitter, Instagram）", ErrInvalidPlatform, s)
	}
}

// String 返回枚举值
func (p Platform) String() string {
	return string(p)
}

// Platforms 返回全部合法平台
func Platforms() []Platform {
	return []Platform{PlatformTwitter, PlatformInstagram}
}

// PlatformRule 平台静态规则表
type PlatformRule struct {
	OptimalMinLen int // 内容最佳长度区间（字符数）
	OptimalMaxLen int
	HashtagMin    int // 推荐标签数量区间
	HashtagMax    int
	HashtagTarget int // 推荐器输出的目标数量
	// SuccessThreshold 互动率「成功」判定线（小数形式）。
	// 达到该值的追踪结果计入标签的 success_count。
	SuccessThreshold float64
	// TimingByWeekday 周日(0)~周六(6) 的发帖时机基础分
	TimingByWeekday [7]int
}

var platformRules = map[Platform]PlatformRule{
	PlatformTwitter: {
		OptimalMinLen:    100,
		OptimalMaxLen:    280,
		HashtagMin:       1,
		HashtagMax:       3,
		HashtagTarget:    3,
		SuccessThreshold: 0.015,
		TimingByWeekday:  [7]int{55, 65, 75, 75, 75, 65, 55},
	},
	PlatformInstagram: {
		OptimalMinLen:    138,
		OptimalMaxLen:    2200,
		HashtagMin:       8,
		HashtagMax:       15,
		HashtagTarget:    12,
		SuccessThreshold: 0.030,
		TimingByWeekday:  [7]int{70, 60, 65, 65, 70, 70, 75},
	},
}

// Rule 返回平台规则。调用前提是 p 已经过 ParsePlatform 校验。
func (p Platform) Rule() PlatformRule {
	return platformRules[p]
}

// TimingScore 返回某一天的发帖时机基础分
func (r PlatformRule) TimingScore(day time.Weekday) int {
	return r.TimingByWeekday[int(day)]
}
