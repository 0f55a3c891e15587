package service

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/yuqie6/TagPilot/internal/repository"
	"github.com/yuqie6/TagPilot/internal/schema"
	"github.com/yuqie6/TagPilot/internal/testutil"
)

func newTestLearning(t *testing.T) (*LearningService, *repository.PostRepository, *repository.StatRepository) {
	t.Helper()
	db := testutil.OpenTestDB(t)
	posts := repository.NewPostRepository(db)
	stats := repository.NewStatRepository(db)

	gen := &fakeGenerator{candidates: twitterCandidates()}
	scorer := NewScoringEngine(gen, stats, nil)
	return NewLearningService(posts, stats, scorer, nil), posts, stats
}

func seedPost(t *testing.T, posts *repository.PostRepository, tags ...string) *schema.Post {
	t.Helper()
	post := &schema.Post{Platform: "Twitter", Content: "seed post", ContentLength: 9}
	recs := make([]schema.HashtagRecommendation, 0, len(tags))
	for _, tag := range tags {
		recs = append(recs, schema.HashtagRecommendation{Hashtag: tag, PredictedRelevance: 0.9})
	}
	if err := posts.CreateWithRecommendations(context.Background(), post, recs); err != nil {
		t.Fatalf("seed post: %v", err)
	}
	return post
}

func TestSubmitPostPersistsScoreAndRecommendations(t *testing.T) {
	learning, posts, _ := newTestLearning(t)
	ctx := context.Background()

	result, err := learning.SubmitPost(ctx, "Twitter", "Shipping a Go library today! What do you think? 🚀")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result.Post.ID == 0 {
		t.Fatalf("post not persisted")
	}
	if result.Post.PredictedScore == nil || *result.Post.PredictedScore != result.Score.Total {
		t.Fatalf("predicted score not stored: %v", result.Post.PredictedScore)
	}

	recs, err := posts.GetRecommendations(ctx, result.Post.ID)
	if err != nil {
		t.Fatalf("get recs: %v", err)
	}
	if len(recs) != len(result.Score.Hashtags) {
		t.Fatalf("recs = %d, want %d", len(recs), len(result.Score.Hashtags))
	}
}

func TestTrackPerformanceUpdatesStats(t *testing.T) {
	learning, posts, stats := newTestLearning(t)
	ctx := context.Background()
	post := seedPost(t, posts, "golang", "coding")

	rec, err := learning.TrackPerformance(ctx, post.ID, 42, 7, 16, 2500)
	if err != nil {
		t.Fatalf("track: %v", err)
	}
	if math.Abs(rec.EngagementRate-0.026) > 1e-9 {
		t.Fatalf("rate = %v, want 0.026", rec.EngagementRate)
	}

	// 每个推荐标签记入一次，2.6% 超过 Twitter 1.5% 成功线
	for _, tag := range []string{"golang", "coding"} {
		stat, err := stats.Get(ctx, tag, "Twitter")
		if err != nil {
			t.Fatalf("get stat: %v", err)
		}
		if stat.TotalUses != 1 || stat.SuccessCount != 1 {
			t.Fatalf("%s: uses=%d success=%d, want 1/1", tag, stat.TotalUses, stat.SuccessCount)
		}
		if math.Abs(stat.AvgEngagement-0.026) > 1e-9 {
			t.Fatalf("%s: avg = %v, want 0.026", tag, stat.AvgEngagement)
		}
	}
}

func TestTrackPerformanceErrors(t *testing.T) {
	learning, posts, _ := newTestLearning(t)
	ctx := context.Background()
	post := seedPost(t, posts, "golang")

	if _, err := learning.TrackPerformance(ctx, 9999, 1, 1, 1, 100); !errors.Is(err, ErrUnknownPost) {
		t.Fatalf("err = %v, want ErrUnknownPost", err)
	}
	if _, err := learning.TrackPerformance(ctx, post.ID, 1, 1, 1, 0); !errors.Is(err, ErrInvalidMetrics) {
		t.Fatalf("err = %v, want ErrInvalidMetrics", err)
	}
}

func TestTrackPerformanceRejectsDoubleTrack(t *testing.T) {
	learning, posts, stats := newTestLearning(t)
	ctx := context.Background()
	post := seedPost(t, posts, "golang")

	if _, err := learning.TrackPerformance(ctx, post.ID, 42, 7, 16, 2500); err != nil {
		t.Fatalf("first track: %v", err)
	}
	if _, err := learning.TrackPerformance(ctx, post.ID, 100, 20, 30, 2500); !errors.Is(err, ErrAlreadyTracked) {
		t.Fatalf("err = %v, want ErrAlreadyTracked", err)
	}

	// 被拒绝的第二次追踪不能改动计数器
	stat, _ := stats.Get(ctx, "golang", "Twitter")
	if stat.TotalUses != 1 {
		t.Fatalf("TotalUses = %d, want 1 after rejected retrack", stat.TotalUses)
	}
}

func TestReplacePerformanceRewritesCounters(t *testing.T) {
	learning, posts, stats := newTestLearning(t)
	ctx := context.Background()
	post := seedPost(t, posts, "golang")

	// 首次：2.6%，达标
	if _, err := learning.TrackPerformance(ctx, post.ID, 42, 7, 16, 2500); err != nil {
		t.Fatalf("track: %v", err)
	}
	// 修正：10/1000 = 1.0%，不达标
	rec, err := learning.ReplacePerformance(ctx, post.ID, 8, 1, 1, 1000)
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if math.Abs(rec.EngagementRate-0.01) > 1e-9 {
		t.Fatalf("rate = %v, want 0.01", rec.EngagementRate)
	}

	// 计数器等同于「只报过新指标」
	stat, _ := stats.Get(ctx, "golang", "Twitter")
	if stat.TotalUses != 1 || stat.SuccessCount != 0 {
		t.Fatalf("uses=%d success=%d, want 1/0", stat.TotalUses, stat.SuccessCount)
	}
	if math.Abs(stat.AvgEngagement-0.01) > 1e-9 {
		t.Fatalf("avg = %v, want 0.01", stat.AvgEngagement)
	}

	perf, _ := posts.GetPerformance(ctx, post.ID)
	if perf == nil || perf.Likes != 8 {
		t.Fatalf("performance record not replaced: %+v", perf)
	}
}

func TestReplacePerformanceRequiresExistingRecord(t *testing.T) {
	learning, posts, _ := newTestLearning(t)
	post := seedPost(t, posts, "golang")

	if _, err := learning.ReplacePerformance(context.Background(), post.ID, 1, 1, 1, 100); !errors.Is(err, ErrNotTracked) {
		t.Fatalf("err = %v, want ErrNotTracked", err)
	}
}

func TestImportHistoricalPartialSuccess(t *testing.T) {
	learning, posts, stats := newTestLearning(t)
	ctx := context.Background()

	rows := []HistoricalRecord{
		{Platform: "Twitter", Content: "good row #golang", Likes: 42, Comments: 7, Shares: 16, Impressions: 2500,
			Hashtags: []string{"golang"}, PostedAt: time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)},
		{Platform: "twitter", Content: "bad platform", Likes: 1, Comments: 0, Shares: 0, Impressions: 100},
		{Platform: "Instagram", Content: "bad metrics", Likes: 1, Comments: 0, Shares: 0, Impressions: 0},
	}

	summary, err := learning.ImportHistorical(ctx, rows)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if summary.Accepted != 1 || summary.Rejected != 2 {
		t.Fatalf("accepted=%d rejected=%d, want 1/2", summary.Accepted, summary.Rejected)
	}
	if len(summary.Errors) != 2 || summary.Errors[0].Row != 2 || summary.Errors[1].Row != 3 {
		t.Fatalf("row errors = %+v", summary.Errors)
	}

	// 导入的帖子没有预测分，推荐标签带固定相关性
	count, _ := posts.CountByPlatform(ctx, "Twitter")
	if count != 1 {
		t.Fatalf("posts = %d, want 1", count)
	}
	post, _ := posts.GetByID(ctx, 1)
	if post.PredictedScore != nil {
		t.Fatalf("imported post must have null predicted score")
	}
	recs, _ := posts.GetRecommendations(ctx, post.ID)
	if len(recs) != 1 || recs[0].PredictedRelevance != importRelevance {
		t.Fatalf("recs = %+v", recs)
	}

	stat, _ := stats.Get(ctx, "golang", "Twitter")
	if stat.TotalUses != 1 {
		t.Fatalf("stat not learned from import: %+v", stat)
	}
}
