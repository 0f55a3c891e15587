package importer

import (
	"context"
	"strings"
	"testing"

	"github.com/yuqie6/TagPilot/internal/repository"
	"github.com/yuqie6/TagPilot/internal/service"
	"github.com/yuqie6/TagPilot/internal/testutil"
)

func newTestImporter(t *testing.T) (*Importer, *repository.PostRepository, *repository.StatRepository) {
	t.Helper()
	db := testutil.OpenTestDB(t)
	posts := repository.NewPostRepository(db)
	stats := repository.NewStatRepository(db)
	learning := service.NewLearningService(posts, stats, nil, nil)
	return NewImporter(learning), posts, stats
}

func TestImportReaderAcceptsValidRows(t *testing.T) {
	im, posts, stats := newTestImporter(t)
	ctx := context.Background()

	csv := `platform,content,likes,comments,shares,impressions,hashtags,date
Twitter,"Shipping today #golang",42,7,16,2500,"coding",2026-08-01
Instagram,"Studio day ✨",320,45,28,9800,"photography,bts",2026-08-02
`
	summary, err := im.ImportReader(ctx, strings.NewReader(csv))
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if summary.Accepted != 2 || summary.Rejected != 0 {
		t.Fatalf("accepted=%d rejected=%d, want 2/0", summary.Accepted, summary.Rejected)
	}

	// 标签 = 正文 #tag + hashtags 列
	recs, err := posts.GetRecommendations(ctx, 1)
	if err != nil {
		t.Fatalf("recs: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("recs = %+v, want golang+coding", recs)
	}

	stat, _ := stats.Get(ctx, "golang", "Twitter")
	if stat.TotalUses != 1 {
		t.Fatalf("stat not learned: %+v", stat)
	}
	if stat, _ := stats.Get(ctx, "photography", "Instagram"); stat.TotalUses != 1 {
		t.Fatalf("instagram stat not learned: %+v", stat)
	}
}

func TestImportReaderRejectsBadRowsIndividually(t *testing.T) {
	im, posts, _ := newTestImporter(t)
	ctx := context.Background()

	// 第 1 行平台小写，第 2 行曝光为 0，第 3 行列数不对，第 4 行合法
	csv := `twitter,"lowercase platform",1,1,1,100,"",2026-08-01
Twitter,"zero impressions",1,1,1,0,"",2026-08-01
Twitter,"too few columns",1,1,1
Twitter,"good row #ok",42,7,16,2500,"",2026-08-01
`
	summary, err := im.ImportReader(ctx, strings.NewReader(csv))
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if summary.Accepted != 1 || summary.Rejected != 3 {
		t.Fatalf("accepted=%d rejected=%d, want 1/3", summary.Accepted, summary.Rejected)
	}
	for i, wantRow := range []int{1, 2, 3} {
		if summary.Errors[i].Row != wantRow {
			t.Fatalf("error %d row = %d, want %d", i, summary.Errors[i].Row, wantRow)
		}
	}

	if n, _ := posts.CountByPlatform(ctx, "Twitter"); n != 1 {
		t.Fatalf("posts = %d, want 1", n)
	}
}

func TestParseRowRejectsBadDate(t *testing.T) {
	record := []string{"Twitter", "content", "1", "2", "3", "100", "", "01/08/2026"}
	if _, err := parseRow(record); err == nil {
		t.Fatalf("expected date format error")
	}
}

func TestParseRowAcceptsEmptyDate(t *testing.T) {
	record := []string{"Twitter", "content", "1", "2", "3", "100", "", ""}
	row, err := parseRow(record)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !row.PostedAt.IsZero() {
		t.Fatalf("empty date should stay zero, got %v", row.PostedAt)
	}
}

func TestIsHeader(t *testing.T) {
	if !isHeader([]string{"platform", "content"}) {
		t.Fatalf("header not detected")
	}
	if isHeader([]string{"Twitter", "content"}) {
		t.Fatalf("data row treated as header")
	}
}
