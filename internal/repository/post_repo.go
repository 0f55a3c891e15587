package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/yuqie6/TagPilot/internal/schema"
	"gorm.io/gorm"
)

// PostRepository 帖子仓储：posts / hashtag_recommendations / performance_records
type PostRepository struct {
	db *gorm.DB
}

// NewPostRepository 创建仓储
func NewPostRepository(db *gorm.DB) *PostRepository {
	return &PostRepository{db: db}
}

// CreateWithRecommendations 在一个事务内创建帖子及其全部推荐标签
func (r *PostRepository) CreateWithRecommendations(ctx context.Context, post *schema.Post, recs []schema.HashtagRecommendation) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return r.CreateTx(tx, post, recs)
	})
}

// CreateTx 在调用方事务内创建帖子及其推荐标签
func (r *PostRepository) CreateTx(tx *gorm.DB, post *schema.Post, recs []schema.HashtagRecommendation) error {
	if err := tx.Create(post).Error; err != nil {
		return fmt.Errorf("创建帖子失败: %w", err)
	}
	for i := range recs {
		recs[i].PostID = post.ID
	}
	if len(recs) > 0 {
		if err := tx.Create(&recs).Error; err != nil {
			return fmt.Errorf("创建推荐标签失败: %w", err)
		}
	}
	post.Recommendations = recs
	return nil
}

// CreatePerformanceTx 在调用方事务内创建表现记录。
// post_id 的唯一索引会拒绝并发的重复追踪。
func (r *PostRepository) CreatePerformanceTx(tx *gorm.DB, rec *schema.PerformanceRecord) error {
	if err := tx.Create(rec).Error; err != nil {
		return fmt.Errorf("创建表现记录失败: %w", err)
	}
	return nil
}

// DeletePerformanceTx 在调用方事务内删除表现记录（显式修正用）
func (r *PostRepository) DeletePerformanceTx(tx *gorm.DB, postID int64) error {
	if err := tx.Where("post_id = ?", postID).Delete(&schema.PerformanceRecord{}).Error; err != nil {
		return fmt.Errorf("删除表现记录失败: %w", err)
	}
	return nil
}

// GetByID 按 ID 获取帖子（不存在返回 nil）
func (r *PostRepository) GetByID(ctx context.Context, id int64) (*schema.Post, error) {
	var post schema.Post
	err := r.db.WithContext(ctx).First(&post, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("查询帖子失败: %w", err)
	}
	return &post, nil
}

// GetRecommendations 获取帖子的全部推荐标签（保持创建顺序）
func (r *PostRepository) GetRecommendations(ctx context.Context, postID int64) ([]schema.HashtagRecommendation, error) {
	var recs []schema.HashtagRecommendation
	err := r.db.WithContext(ctx).
		Where("post_id = ?", postID).
		Order("id ASC").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("查询推荐标签失败: %w", err)
	}
	return recs, nil
}

// GetPerformance 获取帖子的表现记录（不存在返回 nil）
func (r *PostRepository) GetPerformance(ctx context.Context, postID int64) (*schema.PerformanceRecord, error) {
	var rec schema.PerformanceRecord
	err := r.db.WithContext(ctx).Where("post_id = ?", postID).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("查询表现记录失败: %w", err)
	}
	return &rec, nil
}

// CountByPlatform 统计某平台的帖子总数
func (r *PostRepository) CountByPlatform(ctx context.Context, platform string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&schema.Post{}).
		Where("platform = ?", platform).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("统计帖子失败: %w", err)
	}
	return count, nil
}

// CountTracked 统计某平台已追踪（有表现记录）的帖子数
func (r *PostRepository) CountTracked(ctx context.Context, platform string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&schema.PerformanceRecord{}).
		Joins("JOIN posts ON posts.id = performance_records.post_id").
		Where("posts.platform = ?", platform).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("统计已追踪帖子失败: %w", err)
	}
	return count, nil
}

// AvgEngagement 某平台全部表现记录的平均互动率（无数据返回 0）
func (r *PostRepository) AvgEngagement(ctx context.Context, platform string) (float64, error) {
	var avg *float64
	err := r.db.WithContext(ctx).Model(&schema.PerformanceRecord{}).
		Joins("JOIN posts ON posts.id = performance_records.post_id").
		Where("posts.platform = ?", platform).
		Select("AVG(performance_records.engagement_rate)").
		Scan(&avg).Error
	if err != nil {
		return 0, fmt.Errorf("计算平均互动率失败: %w", err)
	}
	if avg == nil {
		return 0, nil
	}
	return *avg, nil
}

// Transaction 在事务中执行操作（追踪表现的复合写入用）
func (r *PostRepository) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}
