package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/yuqie6/TagPilot/internal/ai"
	"github.com/yuqie6/TagPilot/internal/schema"
)

// ScoreWeights 三个分量的加权系数，和为 1
type ScoreWeights struct {
	ContentQuality  float64
	HashtagStrategy float64
	TimingRelevance float64
}

// DefaultScoreWeights 默认权重
func DefaultScoreWeights() ScoreWeights {
	return ScoreWeights{
		ContentQuality:  0.40,
		HashtagStrategy: 0.35,
		TimingRelevance: 0.25,
	}
}

// ComponentScores 各分量得分（0-100）。
// DataConfidence 是历史数据可信度（可靠性权重 ×100），只做展示，
// 不参与三分量加权——它决定的是总分里 informed 与 baseline 的混合比例。
type ComponentScores struct {
	ContentQuality  int `json:"content_quality"`
	HashtagStrategy int `json:"hashtag_strategy"`
	TimingRelevance int `json:"timing_relevance"`
	DataConfidence  int `json:"data_confidence"`
}

// RankedHashtag 排序后的推荐标签
type RankedHashtag struct {
	Tag            string                `json:"tag"`
	Relevance      float64               `json:"relevance"` // 0-1
	Rank           float64               `json:"rank"`      // 排序依据：相关性 + 历史加成
	ConfidenceTier schema.ConfidenceTier `json:"confidence_tier"`
	AvgEngagement  float64               `json:"avg_engagement"`
	TotalUses      int64                 `json:"total_uses"`
	Reason         string                `json:"reason,omitempty"`
}

// ScoreResult 一次分析的完整输出
type ScoreResult struct {
	Platform   Platform        `json:"platform"`
	Total      int             `json:"total"` // 预测得分 0-100
	Components ComponentScores `json:"components"`
	Hashtags   []RankedHashtag `json:"hashtags"`
	Features   ContentFeatures `json:"features"`
	Degraded   bool            `json:"degraded"` // true = LLM 不可用，走了启发式降级
	Insights   []string        `json:"insights,omitempty"`
}

// ScoringEngine 打分引擎：候选生成 + 历史数据加权排序 + 三分量预测得分。
// similar 可为 nil（未配置向量检索时）。
type ScoringEngine struct {
	generator CandidateGenerator
	stats     StatRepo
	similar   SimilarFinder
	weights   ScoreWeights
	now       func() time.Time
}

// NewScoringEngine 创建打分引擎
func NewScoringEngine(generator CandidateGenerator, stats StatRepo, similar SimilarFinder) *ScoringEngine {
	return &ScoringEngine{
		generator: generator,
		stats:     stats,
		similar:   similar,
		weights:   DefaultScoreWeights(),
		now:       time.Now,
	}
}

// Score 分析一篇待发布的帖子：生成候选标签、按历史数据排序、给出预测得分。
// LLM 不可用时降级到启发式候选，Degraded 置 true，调用永不因此失败。
func (e *ScoringEngine) Score(ctx context.Context, platformName, content string) (*ScoreResult, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyContent
	}
	platform, err := ParsePlatform(platformName)
	if err != nil {
		return nil, err
	}
	rule := platform.Rule()

	// 历史高表现标签与相似帖子作为生成上下文
	topTags := e.loadTopTags(ctx, platform)
	similarPosts := e.loadSimilarPosts(ctx, content, platform)

	req := &ai.SuggestRequest{
		Platform:     platform.String(),
		Content:      content,
		Target:       rule.HashtagTarget,
		TopTags:      topTags,
		SimilarPosts: similarPosts,
	}

	degraded := false
	candidates, err := e.generator.Suggest(ctx, req)
	if err != nil {
		if !errors.Is(err, ai.ErrGenerationUnavailable) {
			return nil, fmt.Errorf("生成候选标签失败: %w", err)
		}
		slog.Info("生成服务不可用，使用启发式候选", "platform", platform)
		candidates = ai.FallbackCandidates(content, topTags, rule.HashtagTarget)
		degraded = true
	}

	ranked, dataUses, err := e.rankCandidates(ctx, candidates, platform)
	if err != nil {
		return nil, err
	}

	features := DetectFeatures(content)
	components := ComponentScores{
		ContentQuality:  e.scoreContentQuality(features, rule),
		HashtagStrategy: e.scoreHashtagStrategy(ranked, rule, true),
		TimingRelevance: e.scoreTiming(features, rule),
		DataConfidence:  int(ReliabilityWeight(ClassifyConfidence(dataUses))*100 + 0.5),
	}
	baselineStrategy := e.scoreHashtagStrategy(ranked, rule, false)
	total := e.blendTotal(components, baselineStrategy, dataUses)

	result := &ScoreResult{
		Platform:   platform,
		Total:      total,
		Components: components,
		Hashtags:   ranked,
		Features:   features,
		Degraded:   degraded,
		Insights:   e.buildInsights(features, ranked, rule, degraded),
	}
	return result, nil
}

// loadTopTags 加载平台历史高表现标签（无数据时为空，不报错）
func (e *ScoringEngine) loadTopTags(ctx context.Context, platform Platform) []ai.TopTag {
	stats, err := e.stats.TopByPlatform(ctx, platform.String(), 2, 5)
	if err != nil {
		slog.Warn("加载历史标签失败", "platform", platform, "error", err)
		return nil
	}
	tags := make([]ai.TopTag, 0, len(stats))
	for _, s := range stats {
		tags = append(tags, ai.TopTag{Tag: s.Hashtag, AvgEngagement: s.AvgEngagement})
	}
	return tags
}

// loadSimilarPosts 检索相似高表现帖子（未配置向量检索时为空）
func (e *ScoringEngine) loadSimilarPosts(ctx context.Context, content string, platform Platform) []ai.SimilarPost {
	if e.similar == nil {
		return nil
	}
	hits, err := e.similar.FindSimilar(ctx, content, platform.String(), 3)
	if err != nil {
		slog.Warn("相似帖子检索失败", "error", err)
		return nil
	}
	posts := make([]ai.SimilarPost, 0, len(hits))
	for _, h := range hits {
		posts = append(posts, ai.SimilarPost{
			Content:        h.Content,
			EngagementRate: h.EngagementRate,
			Hashtags:       h.Hashtags,
		})
	}
	return posts
}

// rankCandidates 按「相关性 + 置信度加权的历史加成」排序候选。
// 返回排序结果和命中的历史样本总数（用于总分置信融合）。
//
// rank = relevance + w(tier) * (min(avg/threshold, 2)*0.25 + successRate*0.25)
// building 档的 w=0.30 保证少量早期数据只能轻微扰动排序。
func (e *ScoringEngine) rankCandidates(ctx context.Context, candidates []ai.Candidate, platform Platform) ([]RankedHashtag, int64, error) {
	rule := platform.Rule()

	tags := make([]string, 0, len(candidates))
	for _, c := range candidates {
		tags = append(tags, c.Tag)
	}
	statMap, err := e.stats.GetBatch(ctx, tags, platform.String())
	if err != nil {
		return nil, 0, fmt.Errorf("批量查询标签统计失败: %w", err)
	}

	var dataUses int64
	ranked := make([]RankedHashtag, 0, len(candidates))
	for _, c := range candidates {
		stat, ok := statMap[c.Tag]
		if !ok {
			stat = schema.HashtagStat{Hashtag: c.Tag, Platform: platform.String(), ConfidenceTier: schema.TierBuilding}
		}
		w := ReliabilityWeight(stat.ConfidenceTier)

		bonus := 0.0
		if stat.TotalUses > 0 {
			perf := stat.AvgEngagement / rule.SuccessThreshold
			if perf > 2 {
				perf = 2
			}
			bonus = w * (perf*0.25 + stat.SuccessRate*0.25)
			dataUses += stat.TotalUses
		}

		ranked = append(ranked, RankedHashtag{
			Tag:            c.Tag,
			Relevance:      c.Relevance,
			Rank:           c.Relevance + bonus,
			ConfidenceTier: stat.ConfidenceTier,
			AvgEngagement:  stat.AvgEngagement,
			TotalUses:      stat.TotalUses,
			Reason:         c.Reason,
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Rank > ranked[j].Rank
	})
	return ranked, dataUses, nil
}

// scoreContentQuality 内容质量分：长度、问句、emoji、首字母大写、句子节奏
func (e *ScoringEngine) scoreContentQuality(f ContentFeatures, rule PlatformRule) int {
	score := 50
	if f.Length >= rule.OptimalMinLen && f.Length <= rule.OptimalMaxLen {
		score += 20
	}
	if f.HasQuestion {
		score += 10
	}
	if f.HasEmoji {
		score += 10
	}
	if f.StartsUpper {
		score += 5
	}
	if f.Sentences >= 2 && f.Sentences <= 5 {
		score += 5
	}
	return clampScore(score)
}

// scoreHashtagStrategy 标签策略分：数量是否落在平台区间 + 候选平均相关性 + 历史加成。
// withHistory=false 时不计历史加成，得到纯启发式基线分。
func (e *ScoringEngine) scoreHashtagStrategy(ranked []RankedHashtag, rule PlatformRule, withHistory bool) int {
	score := 50

	n := len(ranked)
	switch {
	case n >= rule.HashtagMin && n <= rule.HashtagMax:
		score += 25
	case n == rule.HashtagMin-1 || n == rule.HashtagMax+1:
		score += 15
	default:
		score -= 15
	}

	if n > 0 {
		var sumRel float64
		for _, h := range ranked {
			sumRel += h.Relevance
		}
		meanRel := sumRel / float64(n)
		score += int((meanRel*100 - 50) / 2)
	}

	// 历史数据加成：有真实表现数据的标签按置信度小幅加分，上限 15
	if withHistory {
		bonus := 0.0
		for _, h := range ranked {
			if h.TotalUses > 0 {
				bonus += 5 * ReliabilityWeight(h.ConfidenceTier)
			}
		}
		if bonus > 15 {
			bonus = 15
		}
		score += int(bonus)
	}

	return clampScore(score)
}

// scoreTiming 发帖时机分：按星期查平台时机表，时效性内容加 10
func (e *ScoringEngine) scoreTiming(f ContentFeatures, rule PlatformRule) int {
	score := rule.TimingScore(e.now().Weekday())
	if f.Timely {
		score += 10
	}
	return clampScore(score)
}

// blendTotal 把三分量融合成总分。
//
// informed 是含历史加成的加权分，baseline 是把历史加成归零后的纯启发式分；
// 命中的历史样本总数走与标签排序同一套分档取可靠性权重 w，
// total = w·informed + (1−w)·baseline。
// 冷启动（dataUses=0）时两者相等，总分即不打折的启发式分。
func (e *ScoringEngine) blendTotal(c ComponentScores, baselineStrategy int, dataUses int64) int {
	informed := float64(c.ContentQuality)*e.weights.ContentQuality +
		float64(c.HashtagStrategy)*e.weights.HashtagStrategy +
		float64(c.TimingRelevance)*e.weights.TimingRelevance
	baseline := float64(c.ContentQuality)*e.weights.ContentQuality +
		float64(baselineStrategy)*e.weights.HashtagStrategy +
		float64(c.TimingRelevance)*e.weights.TimingRelevance

	w := ReliabilityWeight(ClassifyConfidence(dataUses))
	total := w*informed + (1-w)*baseline
	return clampScore(int(total + 0.5))
}

// buildInsights 生成给用户看的可读建议
func (e *ScoringEngine) buildInsights(f ContentFeatures, ranked []RankedHashtag, rule PlatformRule, degraded bool) []string {
	var insights []string

	if f.Length < rule.OptimalMinLen {
		insights = append(insights, fmt.Sprintf("内容偏短（%d 字符），建议扩充到 %d-%d", f.Length, rule.OptimalMinLen, rule.OptimalMaxLen))
	} else if f.Length > rule.OptimalMaxLen {
		insights = append(insights, fmt.Sprintf("内容超长（%d 字符），平台上限 %d", f.Length, rule.OptimalMaxLen))
	}
	if !f.HasQuestion {
		insights = append(insights, "加一个问句能提升互动")
	}
	if !f.HasEmoji {
		insights = append(insights, "适当使用 emoji 能提升表现")
	}

	proven := 0
	for _, h := range ranked {
		if h.ConfidenceTier == schema.TierMedium || h.ConfidenceTier == schema.TierHigh {
			proven++
		}
	}
	if proven > 0 {
		insights = append(insights, fmt.Sprintf("%d 个推荐标签有经过验证的历史表现数据", proven))
	}
	if degraded {
		insights = append(insights, "本次推荐基于启发式规则（生成服务不可用）")
	}
	return insights
}

func clampScore(s int) int {
	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}
