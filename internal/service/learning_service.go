package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/yuqie6/TagPilot/internal/ai"
	"github.com/yuqie6/TagPilot/internal/schema"
	"gorm.io/gorm"
)

// importRelevance 历史导入的推荐标签没有生成时的相关性，统一记固定值
const importRelevance = 0.85

// LearningService 学习闭环：提交帖子 -> 追踪真实表现 -> 更新标签统计。
// 帖子状态由存储形态保证：post 行天然带预测分和推荐标签，
// 唯一的 PerformanceRecord 即「已追踪」终态。
type LearningService struct {
	posts   PostRepo
	stats   StatRepo
	scorer  *ScoringEngine
	similar SimilarFinder

	// 建议的最短追踪等待。提前追踪只警告不拒绝，
	// 发布后数据尚未稳定是用户自己的选择。
	minTrackWait time.Duration
	now          func() time.Time
}

// NewLearningService 创建学习服务。similar 可为 nil。
func NewLearningService(posts PostRepo, stats StatRepo, scorer *ScoringEngine, similar SimilarFinder) *LearningService {
	return &LearningService{
		posts:        posts,
		stats:        stats,
		scorer:       scorer,
		similar:      similar,
		minTrackWait: 24 * time.Hour,
		now:          time.Now,
	}
}

// SubmitResult 提交结果
type SubmitResult struct {
	Post  *schema.Post
	Score *ScoreResult
}

// SubmitPost 分析并持久化一篇帖子：打分只读统计，
// 帖子和推荐标签在同一事务内落库。
func (s *LearningService) SubmitPost(ctx context.Context, platformName, content string) (*SubmitResult, error) {
	score, err := s.scorer.Score(ctx, platformName, content)
	if err != nil {
		return nil, err
	}

	total := score.Total
	post := &schema.Post{
		Platform:       platformName,
		Content:        content,
		ContentLength:  score.Features.Length,
		HasQuestion:    score.Features.HasQuestion,
		HasEmoji:       score.Features.HasEmoji,
		PredictedScore: &total,
	}

	recs := make([]schema.HashtagRecommendation, 0, len(score.Hashtags))
	for _, h := range score.Hashtags {
		recs = append(recs, schema.HashtagRecommendation{
			Hashtag:            h.Tag,
			PredictedRelevance: h.Relevance,
		})
	}

	if err := s.posts.CreateWithRecommendations(ctx, post, recs); err != nil {
		return nil, err
	}

	slog.Info("帖子已提交", "post_id", post.ID, "platform", platformName, "score", total, "degraded", score.Degraded)
	return &SubmitResult{Post: post, Score: score}, nil
}

// TrackPerformance 记录帖子的真实表现并把结果学进标签统计。
// 每个帖子只能追踪一次；修正用 ReplacePerformance。
// 表现记录和全部标签统计更新在同一事务内提交。
func (s *LearningService) TrackPerformance(ctx context.Context, postID, likes, comments, shares, impressions int64) (*schema.PerformanceRecord, error) {
	rate, err := ComputeEngagementRate(likes, comments, shares, impressions)
	if err != nil {
		return nil, err
	}

	post, err := s.posts.GetByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post == nil {
		return nil, fmt.Errorf("%w: id=%d", ErrUnknownPost, postID)
	}

	existing, err := s.posts.GetPerformance(ctx, postID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: post %d", ErrAlreadyTracked, postID)
	}

	platform, err := ParsePlatform(post.Platform)
	if err != nil {
		// 库里只会有合法平台，走到这里说明库被外部改过
		return nil, err
	}
	threshold := platform.Rule().SuccessThreshold

	trackedAt := s.now()
	if wait := trackedAt.Sub(post.CreatedAt); wait < s.minTrackWait {
		slog.Warn("发布后不足 24 小时就追踪，数据可能尚未稳定",
			"post_id", postID, "elapsed", wait.Round(time.Minute))
	}

	tags, err := s.recommendedTags(ctx, postID)
	if err != nil {
		return nil, err
	}

	rec := &schema.PerformanceRecord{
		PostID:         postID,
		Likes:          likes,
		Comments:       comments,
		Shares:         shares,
		Impressions:    impressions,
		EngagementRate: rate,
		TrackedAt:      trackedAt,
	}

	err = s.posts.Transaction(ctx, func(tx *gorm.DB) error {
		if err := s.posts.CreatePerformanceTx(tx, rec); err != nil {
			return err
		}
		for _, tag := range tags {
			if err := s.stats.RecordOutcome(tx, tag, post.Platform, rate, threshold, trackedAt); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		// 并发的重复追踪会撞 post_id 唯一索引
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: post %d", ErrAlreadyTracked, postID)
		}
		return nil, err
	}

	slog.Info("表现已追踪", "post_id", postID, "rate", rate, "hashtags", len(tags))
	s.indexIfSuccessful(ctx, post, rate, threshold, tags)
	return rec, nil
}

// ReplacePerformance 显式修正已追踪的表现：删除旧记录、撤销其统计贡献、
// 按新指标重新记入，全部在一个事务内。
func (s *LearningService) ReplacePerformance(ctx context.Context, postID, likes, comments, shares, impressions int64) (*schema.PerformanceRecord, error) {
	rate, err := ComputeEngagementRate(likes, comments, shares, impressions)
	if err != nil {
		return nil, err
	}

	post, err := s.posts.GetByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post == nil {
		return nil, fmt.Errorf("%w: id=%d", ErrUnknownPost, postID)
	}

	old, err := s.posts.GetPerformance(ctx, postID)
	if err != nil {
		return nil, err
	}
	if old == nil {
		return nil, fmt.Errorf("%w: post %d", ErrNotTracked, postID)
	}

	platform, err := ParsePlatform(post.Platform)
	if err != nil {
		return nil, err
	}
	threshold := platform.Rule().SuccessThreshold

	tags, err := s.recommendedTags(ctx, postID)
	if err != nil {
		return nil, err
	}

	trackedAt := s.now()
	rec := &schema.PerformanceRecord{
		PostID:         postID,
		Likes:          likes,
		Comments:       comments,
		Shares:         shares,
		Impressions:    impressions,
		EngagementRate: rate,
		TrackedAt:      trackedAt,
	}

	err = s.posts.Transaction(ctx, func(tx *gorm.DB) error {
		if err := s.posts.DeletePerformanceTx(tx, postID); err != nil {
			return err
		}
		if err := s.posts.CreatePerformanceTx(tx, rec); err != nil {
			return err
		}
		for _, tag := range tags {
			if err := s.stats.ReverseOutcome(tx, tag, post.Platform, old.EngagementRate, threshold); err != nil {
				return err
			}
			if err := s.stats.RecordOutcome(tx, tag, post.Platform, rate, threshold, trackedAt); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("表现已修正", "post_id", postID, "old_rate", old.EngagementRate, "new_rate", rate)
	s.indexIfSuccessful(ctx, post, rate, threshold, tags)
	return rec, nil
}

// HistoricalRecord 一行待导入的历史帖子
type HistoricalRecord struct {
	Platform    string
	Content     string
	Likes       int64
	Comments    int64
	Shares      int64
	Impressions int64
	Hashtags    []string
	PostedAt    time.Time
}

// RowError 单行导入失败的原因
type RowError struct {
	Row    int // 1 起始的数据行号
	Reason string
}

// ImportSummary 导入结果汇总
type ImportSummary struct {
	Accepted int
	Rejected int
	Errors   []RowError
}

// ImportHistorical 批量导入历史帖子。逐行独立：合法行照常入库学习，
// 非法行带原因记入汇总，互不影响。历史帖子没有预测分（score 为 NULL）。
func (s *LearningService) ImportHistorical(ctx context.Context, rows []HistoricalRecord) (*ImportSummary, error) {
	summary := &ImportSummary{}

	for i, row := range rows {
		rowNum := i + 1
		if err := s.ImportRow(ctx, &row); err != nil {
			summary.Rejected++
			summary.Errors = append(summary.Errors, RowError{Row: rowNum, Reason: err.Error()})
			slog.Warn("导入行被拒绝", "row", rowNum, "reason", err)
			continue
		}
		summary.Accepted++
	}

	slog.Info("历史导入完成", "accepted", summary.Accepted, "rejected", summary.Rejected)
	return summary, nil
}

// ImportRow 导入单行：帖子 + 推荐标签 + 表现记录 + 统计更新在同一事务内。
// CSV 导入器逐行调用以保留原始行号。
func (s *LearningService) ImportRow(ctx context.Context, row *HistoricalRecord) error {
	platform, err := ParsePlatform(row.Platform)
	if err != nil {
		return err
	}
	if strings.TrimSpace(row.Content) == "" {
		return ErrEmptyContent
	}
	rate, err := ComputeEngagementRate(row.Likes, row.Comments, row.Shares, row.Impressions)
	if err != nil {
		return err
	}
	threshold := platform.Rule().SuccessThreshold

	tags := dedupeTags(row.Hashtags)
	postedAt := row.PostedAt
	if postedAt.IsZero() {
		postedAt = s.now()
	}

	features := DetectFeatures(row.Content)
	post := &schema.Post{
		Platform:      row.Platform,
		Content:       row.Content,
		ContentLength: features.Length,
		HasQuestion:   features.HasQuestion,
		HasEmoji:      features.HasEmoji,
		CreatedAt:     postedAt,
	}
	recs := make([]schema.HashtagRecommendation, 0, len(tags))
	for _, tag := range tags {
		recs = append(recs, schema.HashtagRecommendation{
			Hashtag:            tag,
			PredictedRelevance: importRelevance,
		})
	}
	rec := &schema.PerformanceRecord{
		Likes:          row.Likes,
		Comments:       row.Comments,
		Shares:         row.Shares,
		Impressions:    row.Impressions,
		EngagementRate: rate,
		TrackedAt:      postedAt,
	}

	err = s.posts.Transaction(ctx, func(tx *gorm.DB) error {
		if err := s.posts.CreateTx(tx, post, recs); err != nil {
			return err
		}
		rec.PostID = post.ID
		if err := s.posts.CreatePerformanceTx(tx, rec); err != nil {
			return err
		}
		for _, tag := range tags {
			if err := s.stats.RecordOutcome(tx, tag, row.Platform, rate, threshold, postedAt); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.indexIfSuccessful(ctx, post, rate, threshold, tags)
	return nil
}

// recommendedTags 取帖子的推荐标签并去重（防御历史数据里的重复行）
func (s *LearningService) recommendedTags(ctx context.Context, postID int64) ([]string, error) {
	recs, err := s.posts.GetRecommendations(ctx, postID)
	if err != nil {
		return nil, err
	}
	tags := make([]string, 0, len(recs))
	for _, r := range recs {
		tags = append(tags, r.Hashtag)
	}
	return dedupeTags(tags), nil
}

// indexIfSuccessful 达到平台成功线的帖子在事务提交后进相似库。
// 索引失败只记日志，学习结果已落库，不回滚。
func (s *LearningService) indexIfSuccessful(ctx context.Context, post *schema.Post, rate, threshold float64, tags []string) {
	if s.similar == nil || rate < threshold {
		return
	}
	if err := s.similar.IndexPost(ctx, post.ID, post.Platform, post.Content, rate, tags); err != nil {
		slog.Warn("索引相似帖子失败", "post_id", post.ID, "error", err)
	}
}

// dedupeTags 规范化并去重，保持出现顺序
func dedupeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		tag := ai.NormalizeHashtag(t)
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
	}
	return out
}

// isUniqueViolation 识别唯一约束冲突（并发重复追踪）
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
