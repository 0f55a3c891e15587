package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/yuqie6/TagPilot/internal/ai"
	"github.com/yuqie6/TagPilot/internal/schema"
	"gorm.io/gorm"
)

// fakeGenerator 可编程的候选生成器
type fakeGenerator struct {
	candidates []ai.Candidate
	err        error
	calls      int
}

func (f *fakeGenerator) Suggest(_ context.Context, req *ai.SuggestRequest) ([]ai.Candidate, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.candidates, nil
}

// fakeStatRepo 内存标签统计
type fakeStatRepo struct {
	stats      map[string]schema.HashtagStat // key: hashtag|platform
	topMinUses int64                         // 最近一次 TopByPlatform 收到的 minUses
}

func newFakeStatRepo() *fakeStatRepo {
	return &fakeStatRepo{stats: make(map[string]schema.HashtagStat)}
}

func (f *fakeStatRepo) put(s schema.HashtagStat) {
	s.Recompute()
	f.stats[s.Hashtag+"|"+s.Platform] = s
}

func (f *fakeStatRepo) Get(_ context.Context, hashtag, platform string) (*schema.HashtagStat, error) {
	if s, ok := f.stats[hashtag+"|"+platform]; ok {
		return &s, nil
	}
	return &schema.HashtagStat{Hashtag: hashtag, Platform: platform, ConfidenceTier: schema.TierBuilding}, nil
}

func (f *fakeStatRepo) GetBatch(_ context.Context, hashtags []string, platform string) (map[string]schema.HashtagStat, error) {
	result := make(map[string]schema.HashtagStat)
	for _, h := range hashtags {
		if s, ok := f.stats[h+"|"+platform]; ok {
			result[h] = s
		}
	}
	return result, nil
}

func (f *fakeStatRepo) RecordOutcome(_ *gorm.DB, hashtag, platform string, rate, successThreshold float64, usedAt time.Time) error {
	s, ok := f.stats[hashtag+"|"+platform]
	if !ok {
		s = schema.HashtagStat{Hashtag: hashtag, Platform: platform, ConfidenceTier: schema.TierBuilding}
	}
	s.ApplyOutcome(rate, successThreshold, usedAt)
	f.stats[hashtag+"|"+platform] = s
	return nil
}

func (f *fakeStatRepo) ReverseOutcome(_ *gorm.DB, hashtag, platform string, rate, successThreshold float64) error {
	s, ok := f.stats[hashtag+"|"+platform]
	if !ok {
		return nil
	}
	s.RemoveOutcome(rate, successThreshold)
	f.stats[hashtag+"|"+platform] = s
	return nil
}

func (f *fakeStatRepo) TopByPlatform(_ context.Context, platform string, minUses int64, limit int) ([]schema.HashtagStat, error) {
	f.topMinUses = minUses
	var out []schema.HashtagStat
	for _, s := range f.stats {
		if s.Platform == platform && s.TotalUses >= minUses {
			out = append(out, s)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func twitterCandidates() []ai.Candidate {
	return []ai.Candidate{
		{Tag: "golang", Relevance: 0.95, Popularity: "High", Reason: "core"},
		{Tag: "coding", Relevance: 0.80, Popularity: "Medium", Reason: "related"},
		{Tag: "dev", Relevance: 0.70, Popularity: "Medium", Reason: "broad"},
	}
}

func TestScoreColdStart(t *testing.T) {
	gen := &fakeGenerator{candidates: twitterCandidates()}
	engine := NewScoringEngine(gen, newFakeStatRepo(), nil)

	result, err := engine.Score(context.Background(), "Twitter", "Shipping a Go library today! What do you think? 🚀")
	if err != nil {
		t.Fatalf("cold start must not fail: %v", err)
	}
	if result.Degraded {
		t.Fatalf("should not be degraded")
	}
	if result.Total <= 0 || result.Total > 100 {
		t.Fatalf("total = %d, want (0,100]", result.Total)
	}
	if len(result.Hashtags) != 3 {
		t.Fatalf("hashtags = %d, want 3", len(result.Hashtags))
	}
	for _, h := range result.Hashtags {
		if h.ConfidenceTier != schema.TierBuilding && h.ConfidenceTier != "" {
			t.Fatalf("cold start tier = %s", h.ConfidenceTier)
		}
	}
}

func TestScoreValidatesInput(t *testing.T) {
	engine := NewScoringEngine(&fakeGenerator{}, newFakeStatRepo(), nil)

	if _, err := engine.Score(context.Background(), "Twitter", "   "); !errors.Is(err, ErrEmptyContent) {
		t.Fatalf("err = %v, want ErrEmptyContent", err)
	}
	if _, err := engine.Score(context.Background(), "twitter", "hello world"); !errors.Is(err, ErrInvalidPlatform) {
		t.Fatalf("err = %v, want ErrInvalidPlatform", err)
	}
}

func TestScoreDegradesWhenGeneratorDown(t *testing.T) {
	gen := &fakeGenerator{err: ai.ErrGenerationUnavailable}
	engine := NewScoringEngine(gen, newFakeStatRepo(), nil)

	result, err := engine.Score(context.Background(), "Instagram", "Behind the scenes of our latest photography shoot")
	if err != nil {
		t.Fatalf("degraded path must not fail: %v", err)
	}
	if !result.Degraded {
		t.Fatalf("Degraded not set")
	}
	// Instagram 目标 12 个，降级也要凑满
	if len(result.Hashtags) != 12 {
		t.Fatalf("hashtags = %d, want 12", len(result.Hashtags))
	}
}

func TestScoreRankingUsesHistory(t *testing.T) {
	gen := &fakeGenerator{candidates: []ai.Candidate{
		{Tag: "fresh", Relevance: 0.80},
		{Tag: "proven", Relevance: 0.78},
	}}
	stats := newFakeStatRepo()
	// proven: 60 次使用，平均互动率 3%（阈值的 2 倍），成功率 80%
	stats.put(schema.HashtagStat{
		Hashtag:              "proven",
		Platform:             "Twitter",
		TotalUses:            60,
		CumulativeEngagement: 1.8,
		SuccessCount:         48,
	})
	engine := NewScoringEngine(gen, stats, nil)

	result, err := engine.Score(context.Background(), "Twitter", "A decent post about engineering practices")
	if err != nil {
		t.Fatalf("score error: %v", err)
	}

	// 高置信的历史表现应压过 0.02 的相关性差距
	if result.Hashtags[0].Tag != "proven" {
		t.Fatalf("first = %q, want proven", result.Hashtags[0].Tag)
	}
	if result.Hashtags[0].ConfidenceTier != schema.TierHigh {
		t.Fatalf("tier = %s, want high", result.Hashtags[0].ConfidenceTier)
	}
	if result.Hashtags[0].Rank <= result.Hashtags[1].Rank {
		t.Fatalf("ranks not ordered: %v <= %v", result.Hashtags[0].Rank, result.Hashtags[1].Rank)
	}
}

func TestBlendTotalUsesReliabilityWeight(t *testing.T) {
	engine := NewScoringEngine(&fakeGenerator{}, newFakeStatRepo(), nil)
	c := ComponentScores{ContentQuality: 100, HashtagStrategy: 100, TimingRelevance: 0}

	// informed = 75，baseline = 57.5；10 个样本落 medium 档 w=0.75
	// 0.75·75 + 0.25·57.5 = 70.625 → 71
	if got := engine.blendTotal(c, 50, 10); got != 71 {
		t.Fatalf("blend with 10 samples = %d, want 71", got)
	}
	// ≥50 个样本进 high 档 w=0.95：0.95·75 + 0.05·57.5 = 74.125 → 74
	if got := engine.blendTotal(c, 50, 60); got != 74 {
		t.Fatalf("blend with 60 samples = %d, want 74", got)
	}
	// 冷启动时 informed == baseline，权重不产生影响
	if got := engine.blendTotal(c, 100, 0); got != 75 {
		t.Fatalf("cold start blend = %d, want 75", got)
	}
}

func TestScoreExposesDataConfidence(t *testing.T) {
	gen := &fakeGenerator{candidates: twitterCandidates()}
	stats := newFakeStatRepo()
	engine := NewScoringEngine(gen, stats, nil)

	// 冷启动：building 档 w=0.30 → 30
	cold, err := engine.Score(context.Background(), "Twitter", "A post with no tracked history yet")
	if err != nil {
		t.Fatalf("score error: %v", err)
	}
	if cold.Components.DataConfidence != 30 {
		t.Fatalf("cold data confidence = %d, want 30", cold.Components.DataConfidence)
	}

	// golang 有 60 个样本：high 档 w=0.95 → 95
	stats.put(schema.HashtagStat{
		Hashtag:              "golang",
		Platform:             "Twitter",
		TotalUses:            60,
		CumulativeEngagement: 1.8,
		SuccessCount:         48,
	})
	warm, err := engine.Score(context.Background(), "Twitter", "A post backed by plenty of tracked history")
	if err != nil {
		t.Fatalf("score error: %v", err)
	}
	if warm.Components.DataConfidence != 95 {
		t.Fatalf("warm data confidence = %d, want 95", warm.Components.DataConfidence)
	}
}

func TestLoadTopTagsMinUses(t *testing.T) {
	gen := &fakeGenerator{candidates: twitterCandidates()}
	stats := newFakeStatRepo()
	engine := NewScoringEngine(gen, stats, nil)

	if _, err := engine.Score(context.Background(), "Twitter", "Checking the prompt context query"); err != nil {
		t.Fatalf("score error: %v", err)
	}
	// 两次使用即可进入提示词上下文
	if stats.topMinUses != 2 {
		t.Fatalf("TopByPlatform minUses = %d, want 2", stats.topMinUses)
	}
}

func TestScoreBlendColdStartEqualsBaseline(t *testing.T) {
	gen := &fakeGenerator{candidates: twitterCandidates()}
	engine := NewScoringEngine(gen, newFakeStatRepo(), nil)
	engine.now = func() time.Time { return time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC) } // 周三固定

	r1, err := engine.Score(context.Background(), "Twitter", "Same content scored twice for determinism")
	if err != nil {
		t.Fatalf("score error: %v", err)
	}
	r2, err := engine.Score(context.Background(), "Twitter", "Same content scored twice for determinism")
	if err != nil {
		t.Fatalf("score error: %v", err)
	}
	// 无历史数据时打分是纯函数
	if r1.Total != r2.Total {
		t.Fatalf("cold start score not deterministic: %d vs %d", r1.Total, r2.Total)
	}
}
