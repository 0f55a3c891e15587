package service

import (
	"context"
	"time"

	"github.com/yuqie6/TagPilot/internal/ai"
	"github.com/yuqie6/TagPilot/internal/schema"
	"gorm.io/gorm"
)

// PostRepo 帖子仓储接口（repository.PostRepository 实现）
type PostRepo interface {
	CreateWithRecommendations(ctx context.Context, post *schema.Post, recs []schema.HashtagRecommendation) error
	CreateTx(tx *gorm.DB, post *schema.Post, recs []schema.HashtagRecommendation) error
	CreatePerformanceTx(tx *gorm.DB, rec *schema.PerformanceRecord) error
	DeletePerformanceTx(tx *gorm.DB, postID int64) error
	GetByID(ctx context.Context, id int64) (*schema.Post, error)
	GetRecommendations(ctx context.Context, postID int64) ([]schema.HashtagRecommendation, error)
	GetPerformance(ctx context.Context, postID int64) (*schema.PerformanceRecord, error)
	CountByPlatform(ctx context.Context, platform string) (int64, error)
	CountTracked(ctx context.Context, platform string) (int64, error)
	AvgEngagement(ctx context.Context, platform string) (float64, error)
	Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// StatRepo 标签统计仓储接口（repository.StatRepository 实现）
type StatRepo interface {
	Get(ctx context.Context, hashtag, platform string) (*schema.HashtagStat, error)
	GetBatch(ctx context.Context, hashtags []string, platform string) (map[string]schema.HashtagStat, error)
	RecordOutcome(tx *gorm.DB, hashtag, platform string, rate, successThreshold float64, usedAt time.Time) error
	ReverseOutcome(tx *gorm.DB, hashtag, platform string, rate, successThreshold float64) error
	TopByPlatform(ctx context.Context, platform string, minUses int64, limit int) ([]schema.HashtagStat, error)
}

// CandidateGenerator 候选标签生成器接口（ai.Recommender 实现）
type CandidateGenerator interface {
	Suggest(ctx context.Context, req *ai.SuggestRequest) ([]ai.Candidate, error)
}

// SimilarFinder 相似帖子检索接口（SimilarService 实现，可选装配）
type SimilarFinder interface {
	IndexPost(ctx context.Context, postID int64, platform, content string, rate float64, hashtags []string) error
	FindSimilar(ctx context.Context, content, platform string, k int) ([]SimilarHit, error)
}

// SimilarHit 一条相似帖子检索结果
type SimilarHit struct {
	PostID         string
	Content        string
	EngagementRate float64
	Hashtags       string
	Similarity     float32
}
