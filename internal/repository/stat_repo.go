package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/yuqie6/TagPilot/internal/schema"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StatRepository 标签统计仓储（hashtag_stats）
//
// 并发约定：RecordOutcome 的读-改-写必须发生在调用方的事务内，
// SQLite 单写者 + WAL 保证同键更新串行化，不会丢增量。
type StatRepository struct {
	db *gorm.DB
}

// NewStatRepository 创建仓储
func NewStatRepository(db *gorm.DB) *StatRepository {
	return &StatRepository{db: db}
}

// StatOutcome 一条历史互动结果（批量导入用）
type StatOutcome struct {
	Hashtag          string
	Platform         string
	EngagementRate   float64
	SuccessThreshold float64
	UsedAt           time.Time
}

// Get 获取单个标签统计。未知标签返回冷启动空默认值（building 档，全零），
// 永不报「不存在」——新标签就是这样无惩罚起步的。
func (r *StatRepository) Get(ctx context.Context, hashtag, platform string) (*schema.HashtagStat, error) {
	var stat schema.HashtagStat
	err := r.db.WithContext(ctx).
		Where("hashtag = ? AND platform = ?", hashtag, platform).
		First(&stat).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return coldStart(hashtag, platform), nil
		}
		return nil, fmt.Errorf("查询标签统计失败: %w", err)
	}
	return &stat, nil
}

// GetBatch 批量获取候选标签的统计，返回 hashtag -> stat。
// 没有历史记录的候选不在结果里，调用方按冷启动处理。
func (r *StatRepository) GetBatch(ctx context.Context, hashtags []string, platform string) (map[string]schema.HashtagStat, error) {
	result := make(map[string]schema.HashtagStat, len(hashtags))
	if len(hashtags) == 0 {
		return result, nil
	}

	var stats []schema.HashtagStat
	err := r.db.WithContext(ctx).
		Where("hashtag IN ? AND platform = ?", hashtags, platform).
		Find(&stats).Error
	if err != nil {
		return nil, fmt.Errorf("批量查询标签统计失败: %w", err)
	}

	for _, s := range stats {
		result[s.Hashtag] = s
	}
	return result, nil
}

// RecordOutcome 在调用方事务内记入一次互动结果：
// 读取当前计数 → ApplyOutcome 推导派生列 → 按复合主键 upsert。
// 同一帖子对同一标签最多调用一次由上层（学习服务）保证。
func (r *StatRepository) RecordOutcome(tx *gorm.DB, hashtag, platform string, rate, successThreshold float64, usedAt time.Time) error {
	var stat schema.HashtagStat
	err := tx.Where("hashtag = ? AND platform = ?", hashtag, platform).First(&stat).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("读取标签统计失败: %w", err)
		}
		stat = *coldStart(hashtag, platform)
	}

	stat.ApplyOutcome(rate, successThreshold, usedAt)

	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "hashtag"}, {Name: "platform"}},
		UpdateAll: true,
	}).Create(&stat).Error; err != nil {
		return fmt.Errorf("更新标签统计失败: %w", err)
	}
	return nil
}

// ReverseOutcome 在调用方事务内撤销一次已记入的结果（显式修正用）
func (r *StatRepository) ReverseOutcome(tx *gorm.DB, hashtag, platform string, rate, successThreshold float64) error {
	var stat schema.HashtagStat
	err := tx.Where("hashtag = ? AND platform = ?", hashtag, platform).First(&stat).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil // 没有记录就没有可撤销的
		}
		return fmt.Errorf("读取标签统计失败: %w", err)
	}

	stat.RemoveOutcome(rate, successThreshold)

	if err := tx.Save(&stat).Error; err != nil {
		return fmt.Errorf("回滚标签统计失败: %w", err)
	}
	return nil
}

// ImportOutcomes 批量追加导入历史互动结果（增量合并）。
// 每个三元组走一次 RecordOutcome 的同一条更新规则，绝不绕过派生列重算；
// 整批在一个事务内完成。
func (r *StatRepository) ImportOutcomes(ctx context.Context, outcomes []StatOutcome) error {
	if len(outcomes) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, o := range outcomes {
			if err := r.RecordOutcome(tx, o.Hashtag, o.Platform, o.EngagementRate, o.SuccessThreshold, o.UsedAt); err != nil {
				return err
			}
		}
		return nil
	})
}

// ExportAll 导出全部统计行（备份/离线分析用）
func (r *StatRepository) ExportAll(ctx context.Context) ([]schema.HashtagStat, error) {
	var stats []schema.HashtagStat
	err := r.db.WithContext(ctx).
		Order("platform, avg_engagement DESC").
		Find(&stats).Error
	if err != nil {
		return nil, fmt.Errorf("导出标签统计失败: %w", err)
	}
	return stats, nil
}

// RestoreExact 用导出的统计行精确覆盖当前表（备份恢复用，非合并）。
// 与 ImportOutcomes 的增量语义相对：这里原样还原计数器。
func (r *StatRepository) RestoreExact(ctx context.Context, stats []schema.HashtagStat) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&schema.HashtagStat{}).Error; err != nil {
			return fmt.Errorf("清空标签统计失败: %w", err)
		}
		if len(stats) == 0 {
			return nil
		}
		if err := tx.Create(&stats).Error; err != nil {
			return fmt.Errorf("恢复标签统计失败: %w", err)
		}
		return nil
	})
}

// TopByPlatform 按平均互动率取历史表现最好的标签（至少 minUses 次使用）
func (r *StatRepository) TopByPlatform(ctx context.Context, platform string, minUses int64, limit int) ([]schema.HashtagStat, error) {
	var stats []schema.HashtagStat
	err := r.db.WithContext(ctx).
		Where("platform = ? AND total_uses >= ?", platform, minUses).
		Order("avg_engagement DESC").
		Limit(limit).
		Find(&stats).Error
	if err != nil {
		return nil, fmt.Errorf("查询热门标签失败: %w", err)
	}
	return stats, nil
}

// coldStart 冷启动默认值
func coldStart(hashtag, platform string) *schema.HashtagStat {
	return &schema.HashtagStat{
		Hashtag:        hashtag,
		Platform:       platform,
		ConfidenceTier: schema.TierBuilding,
	}
}
