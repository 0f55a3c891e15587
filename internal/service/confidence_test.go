package service

import (
	"testing"

	"github.com/yuqie6/TagPilot/internal/schema"
)

func TestClassifyConfidenceBoundaries(t *testing.T) {
	cases := []struct {
		count int64
		want  schema.ConfidenceTier
	}{
		{0, schema.TierBuilding},
		{9, schema.TierBuilding},
		{10, schema.TierMedium},
		{49, schema.TierMedium},
		{50, schema.TierHigh},
	}
	for _, c := range cases {
		if got := ClassifyConfidence(c.count); got != c.want {
			t.Fatalf("ClassifyConfidence(%d) = %s, want %s", c.count, got, c.want)
		}
	}
}

func TestReliabilityWeightOrdering(t *testing.T) {
	b := ReliabilityWeight(schema.TierBuilding)
	m := ReliabilityWeight(schema.TierMedium)
	h := ReliabilityWeight(schema.TierHigh)

	if !(b < m && m < h) {
		t.Fatalf("weights not increasing: %v %v %v", b, m, h)
	}
	if b <= 0 || h > 1 {
		t.Fatalf("weights out of (0,1]: %v %v", b, h)
	}
}
