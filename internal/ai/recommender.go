package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
)

// Candidate 候选标签
type Candidate struct {
	Tag        string  // 规范化：小写、无前导 '#'
	Relevance  float64 // 0-1
	Popularity string  // High / Medium / Low（LLM 给出，仅展示用）
	Reason     string
}

// TopTag 历史表现上下文（注入提示词）
type TopTag struct {
	Tag           string
	AvgEngagement float64 // 小数形式
}

// SimilarPost 相似高表现帖子上下文（注入提示词）
type SimilarPost struct {
	Content        string
	EngagementRate float64
	Hashtags       string
}

// SuggestRequest 候选标签生成请求
type SuggestRequest struct {
	Platform     string // Twitter / Instagram
	Content      string
	Target       int // 期望候选数量
	TopTags      []TopTag
	SimilarPosts []SimilarPost
}

// Recommender 标签推荐器：把 LLM 的自由文本变成结构化候选列表
type Recommender struct {
	client *OllamaClient
}

// NewRecommender 创建推荐器
func NewRecommender(client *OllamaClient) *Recommender {
	return &Recommender{client: client}
}

// llmCandidate LLM 返回的原始候选（relevance 为 0-100）
type llmCandidate struct {
	Tag        string  `json:"tag"`
	Relevance  float64 `json:"relevance"`
	Popularity string  `json:"popularity"`
	Reason     string  `json:"reason"`
}

// Suggest 生成候选标签。生成失败或解析失败统一返回
// ErrGenerationUnavailable，调用方降级到 FallbackCandidates。
func (r *Recommender) Suggest(ctx context.Context, req *SuggestRequest) ([]Candidate, error) {
	system := r.buildSystemPrompt(req)
	prompt := r.buildPrompt(req)

	response, err := r.client.Generate(ctx, prompt, system)
	if err != nil {
		return nil, err
	}

	candidates, err := parseCandidates(response, req.Target)
	if err != nil {
		slog.Warn("解析 LLM 候选失败，将降级", "error", err, "response", truncate(response, 200))
		return nil, fmt.Errorf("%w: %v", ErrGenerationUnavailable, err)
	}

	return candidates, nil
}

// buildSystemPrompt 系统提示词：平台习惯 + 已学到的真实表现数据
func (r *Recommender) buildSystemPrompt(req *SuggestRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a social media expert specializing in %s.\n", req.Platform)

	if req.Platform == "Twitter" {
		b.WriteString("Twitter posts perform best with 1-3 highly relevant hashtags.\n")
	} else {
		b.WriteString("Instagram posts can use 8-15 hashtags effectively.\n")
	}

	if len(req.TopTags) > 0 {
		b.WriteString("\nTOP PERFORMING HASHTAGS (real data from previous posts):\n")
		for i, t := range req.TopTags {
			if i >= 5 {
				break
			}
			fmt.Fprintf(&b, "#%s (avg engagement: %.1f%%)\n", t.Tag, t.AvgEngagement*100)
		}
	}

	if len(req.SimilarPosts) > 0 {
		b.WriteString("\nSIMILAR SUCCESSFUL POSTS:\n")
		for i, p := range req.SimilarPosts {
			if i >= 3 {
				break
			}
			fmt.Fprintf(&b, "- %q (%.1f%%) used: %s\n", truncate(p.Content, 100), p.EngagementRate*100, p.Hashtags)
		}
	}

	b.WriteString("\nPrioritize hashtags that have historically performed well.")
	return b.String()
}

// buildPrompt 用户提示词：强制纯 JSON 数组输出
func (r *Recommender) buildPrompt(req *SuggestRequest) string {
	return fmt.Sprintf(`Analyze this %s post and suggest hashtags:

Post: %q

Provide EXACTLY %d hashtags. Return ONLY a JSON array, no markdown, no prose:
[
  {"tag": "example", "relevance": 95, "popularity": "High", "reason": "why this works"}
]`, req.Platform, req.Content, req.Target)
}

var jsonArrayPattern = regexp.MustCompile(`(?s)\[\s*\{.*\}\s*\]`)

// parseCandidates 从响应文本提取 JSON 数组并规范化。
// 数量不足 target 视为失败（与生成失败同样走降级）。
func parseCandidates(response string, target int) ([]Candidate, error) {
	cleaned := cleanJSONResponse(response)

	match := jsonArrayPattern.FindString(cleaned)
	if match == "" {
		return nil, fmt.Errorf("响应中没有 JSON 数组")
	}

	var raw []llmCandidate
	if err := json.Unmarshal([]byte(match), &raw); err != nil {
		return nil, fmt.Errorf("JSON 解析失败: %v", err)
	}

	seen := make(map[string]bool, len(raw))
	candidates := make([]Candidate, 0, len(raw))
	for _, c := range raw {
		tag := NormalizeHashtag(c.Tag)
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true

		rel := c.Relevance / 100
		if rel < 0 {
			rel = 0
		}
		if rel > 1 {
			rel = 1
		}

		candidates = append(candidates, Candidate{
			Tag:        tag,
			Relevance:  rel,
			Popularity: c.Popularity,
			Reason:     c.Reason,
		})
	}

	if len(candidates) < target {
		return nil, fmt.Errorf("候选数量不足: %d < %d", len(candidates), target)
	}
	return candidates[:target], nil
}

// ---- 降级策略 ----

// 内容关键词里剔除的常见词
var stopWords = map[string]bool{
	"this": true, "that": true, "with": true, "from": true, "have": true,
	"been": true, "were": true, "their": true, "would": true, "about": true,
	"when": true, "just": true, "like": true, "some": true, "what": true,
	"your": true, "will": true, "they": true, "them": true, "into": true,
	"than": true, "more": true, "very": true, "can": true, "the": true,
	"and": true, "for": true, "you": true, "are": true, "not": true,
}

// 兜底通用标签
var genericTags = []string{
	"content", "socialmedia", "marketing", "community", "growth",
	"tips", "inspiration", "motivation", "business", "success",
	"trending", "viral", "engage", "share", "follow",
}

var wordPattern = regexp.MustCompile(`[a-zA-Z]{3,}`)

// FallbackCandidates 生成服务不可用时的纯启发式候选，三级策略：
// 1. 内容关键词 2. 历史高表现标签 3. 通用兜底标签。
// 永远恰好返回 target 个。
func FallbackCandidates(content string, topTags []TopTag, target int) []Candidate {
	candidates := make([]Candidate, 0, target)
	seen := make(map[string]bool)

	add := func(c Candidate) bool {
		if len(candidates) >= target || c.Tag == "" || seen[c.Tag] {
			return len(candidates) < target
		}
		seen[c.Tag] = true
		candidates = append(candidates, c)
		return len(candidates) < target
	}

	// 策略 1：内容关键词
	i := 0
	for _, w := range wordPattern.FindAllString(strings.ToLower(content), -1) {
		if stopWords[w] {
			continue
		}
		rel := 0.85 - float64(i)*0.05
		if rel < 0.50 {
			rel = 0.50
		}
		if !add(Candidate{Tag: w, Relevance: rel, Popularity: "Medium", Reason: "内容关键词"}) {
			return candidates
		}
		i++
	}

	// 策略 2：历史高表现标签
	for _, t := range topTags {
		reason := fmt.Sprintf("历史数据: 平均互动率 %.1f%%", t.AvgEngagement*100)
		if !add(Candidate{Tag: NormalizeHashtag(t.Tag), Relevance: 0.90, Popularity: "High", Reason: reason}) {
			return candidates
		}
	}

	// 策略 3：通用兜底
	for _, g := range genericTags {
		if !add(Candidate{Tag: g, Relevance: 0.70, Popularity: "Medium", Reason: "通用互动标签"}) {
			return candidates
		}
	}

	return candidates
}

// ---- 标签规范化 ----

var hashtagPattern = regexp.MustCompile(`#(\w+)`)

// NormalizeHashtag 规范化标签：去空白、去前导 '#'、转小写
func NormalizeHashtag(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "#")
	return strings.ToLower(s)
}

// ExtractHashtags 从正文提取全部标签（已规范化、去重、保持出现顺序）
func ExtractHashtags(content string) []string {
	matches := hashtagPattern.FindAllStringSubmatch(content, -1)
	seen := make(map[string]bool, len(matches))
	tags := make([]string, 0, len(matches))
	for _, m := range matches {
		tag := NormalizeHashtag(m[1])
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		tags = append(tags, tag)
	}
	return tags
}
