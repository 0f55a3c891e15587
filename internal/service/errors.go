package service

import "errors"

// 核心错误分类：全部是可恢复的校验错误，调用方用 errors.Is 判断后
// 可携带修正后的输入重试，任何一个都不应导致进程退出。
var (
	// ErrInvalidMetrics 指标非法：impressions <= 0 或任一指标为负
	ErrInvalidMetrics = errors.New("指标非法")

	// ErrUnknownPost post_id 不存在
	ErrUnknownPost = errors.New("帖子不存在")

	// ErrAlreadyTracked 帖子已有表现记录，重复追踪被幂等拒绝
	ErrAlreadyTracked = errors.New("帖子已追踪过")

	// ErrNotTracked 帖子还没有表现记录，无法执行替换修正
	ErrNotTracked = errors.New("帖子尚未追踪")

	// ErrInvalidPlatform 平台不在封闭枚举内（大小写敏感）
	ErrInvalidPlatform = errors.New("平台不支持")

	// ErrEmptyContent 内容为空白
	ErrEmptyContent = errors.New("内容为空")
)
