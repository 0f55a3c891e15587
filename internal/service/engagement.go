package service

import "fmt"

// ComputeEngagementRate 计算互动率：(likes + comments + shares) / impressions。
// 返回小数形式（0.026 = 2.6%），由展示层负责格式化为百分比。
// 纯函数，无副作用。
func ComputeEngagementRate(likes, comments, shares, impressions int64) (float64, error) {
	if impressions <= 0 {
		return 0, fmt.Errorf("%w: impressions 必须大于 0，当前为 %d", ErrInvalidMetrics, impressions)
	}
	if likes < 0 || comments < 0 || shares < 0 {
		return 0, fmt.Errorf("%w: likes/comments/shares 不能为负 (%d/%d/%d)",
			ErrInvalidMetrics, likes, comments, shares)
	}
	return float64(likes+comments+shares) / float64(impressions), nil
}
