package ai

import (
	"strings"
	"testing"
)

func TestParseCandidates(t *testing.T) {
	response := "```json\n" + `[
  {"tag": "#GoLang", "relevance": 95, "popularity": "High", "reason": "core topic"},
  {"tag": "golang", "relevance": 80, "popularity": "High", "reason": "dup"},
  {"tag": "coding", "relevance": 70, "popularity": "Medium", "reason": "related"},
  {"tag": "dev", "relevance": 60, "popularity": "Medium", "reason": "broad"}
]` + "\n```"

	candidates, err := parseCandidates(response, 3)
	if err != nil {
		t.Fatalf("parseCandidates error: %v", err)
	}
	if len(candidates) != 3 {
		t.Fatalf("len = %d, want 3", len(candidates))
	}
	// 规范化 + 去重："#GoLang" 和 "golang" 合并为一个
	if candidates[0].Tag != "golang" {
		t.Fatalf("tag = %q, want golang", candidates[0].Tag)
	}
	if candidates[0].Relevance != 0.95 {
		t.Fatalf("relevance = %v, want 0.95", candidates[0].Relevance)
	}
	if candidates[1].Tag != "coding" {
		t.Fatalf("tag = %q, want coding (dup dropped)", candidates[1].Tag)
	}
}

func TestParseCandidatesRejectsShortList(t *testing.T) {
	response := `[{"tag": "golang", "relevance": 95, "popularity": "High", "reason": "r"}]`
	if _, err := parseCandidates(response, 3); err == nil {
		t.Fatalf("expected error for insufficient candidates")
	}
}

func TestParseCandidatesRejectsProse(t *testing.T) {
	if _, err := parseCandidates("I suggest using #golang and #coding!", 2); err == nil {
		t.Fatalf("expected error for missing JSON array")
	}
}

func TestParseCandidatesClampsRelevance(t *testing.T) {
	response := `[
  {"tag": "a", "relevance": 150, "popularity": "High", "reason": "r"},
  {"tag": "b", "relevance": -10, "popularity": "Low", "reason": "r"}
]`
	candidates, err := parseCandidates(response, 2)
	if err != nil {
		t.Fatalf("parseCandidates error: %v", err)
	}
	if candidates[0].Relevance != 1 || candidates[1].Relevance != 0 {
		t.Fatalf("relevance not clamped: %v %v", candidates[0].Relevance, candidates[1].Relevance)
	}
}

func TestFallbackCandidatesExactCount(t *testing.T) {
	// 内容很短，关键词不够，必须靠历史标签和通用标签补齐
	for _, target := range []int{3, 12} {
		candidates := FallbackCandidates("hi", nil, target)
		if len(candidates) != target {
			t.Fatalf("target %d: len = %d", target, len(candidates))
		}
		seen := make(map[string]bool)
		for _, c := range candidates {
			if seen[c.Tag] {
				t.Fatalf("duplicate tag %q", c.Tag)
			}
			seen[c.Tag] = true
			if c.Relevance <= 0 || c.Relevance > 1 {
				t.Fatalf("relevance out of range: %v", c.Relevance)
			}
		}
	}
}

func TestFallbackCandidatesPreferContentKeywords(t *testing.T) {
	content := "launching our photography studio workshop this weekend"
	candidates := FallbackCandidates(content, []TopTag{{Tag: "proven", AvgEngagement: 0.05}}, 3)

	if len(candidates) != 3 {
		t.Fatalf("len = %d, want 3", len(candidates))
	}
	// 关键词策略优先于历史标签
	if !strings.Contains(content, candidates[0].Tag) {
		t.Fatalf("first candidate %q not from content", candidates[0].Tag)
	}
}

func TestNormalizeHashtag(t *testing.T) {
	cases := map[string]string{
		"  #GoLang ": "golang",
		"#coding":    "coding",
		"Photo":      "photo",
		"#":          "",
	}
	for in, want := range cases {
		if got := NormalizeHashtag(in); got != want {
			t.Fatalf("NormalizeHashtag(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestExtractHashtags(t *testing.T) {
	tags := ExtractHashtags("Loving #GoLang today! #coding #golang #100DaysOfCode")

	want := []string{"golang", "coding", "100daysofcode"}
	if len(tags) != len(want) {
		t.Fatalf("tags = %v, want %v", tags, want)
	}
	for i := range want {
		if tags[i] != want[i] {
			t.Fatalf("tags[%d] = %q, want %q", i, tags[i], want[i])
		}
	}
}
