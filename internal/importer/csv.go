package importer

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/yuqie6/TagPilot/internal/ai"
	"github.com/yuqie6/TagPilot/internal/service"
)

// 列顺序固定：platform, content, likes, comments, shares, impressions, hashtags, date
const expectedColumns = 8

// Importer CSV 历史数据导入器。逐行导入：坏行带原因记入汇总，
// 好行照常入库学习，一行错误不影响整个文件。
type Importer struct {
	learning *service.LearningService
}

// NewImporter 创建导入器
func NewImporter(learning *service.LearningService) *Importer {
	return &Importer{learning: learning}
}

// ImportFile 导入一个 CSV 文件
func (im *Importer) ImportFile(ctx context.Context, path string) (*service.ImportSummary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开 CSV 文件失败: %w", err)
	}
	defer f.Close()

	summary, err := im.ImportReader(ctx, f)
	if err != nil {
		return nil, err
	}
	slog.Info("CSV 导入完成", "file", path, "accepted", summary.Accepted, "rejected", summary.Rejected)
	return summary, nil
}

// ImportReader 从 reader 导入。首行若是表头（首列为 "platform"）则跳过。
func (im *Importer) ImportReader(ctx context.Context, r io.Reader) (*service.ImportSummary, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1 // 列数自己校验，给出带行号的原因

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("解析 CSV 失败: %w", err)
	}

	if len(records) > 0 && isHeader(records[0]) {
		records = records[1:]
	}

	summary := &service.ImportSummary{}
	for i, record := range records {
		rowNum := i + 1

		row, err := parseRow(record)
		if err == nil {
			err = im.learning.ImportRow(ctx, row)
		}
		if err != nil {
			summary.Rejected++
			summary.Errors = append(summary.Errors, service.RowError{Row: rowNum, Reason: err.Error()})
			slog.Warn("CSV 行被拒绝", "row", rowNum, "reason", err)
			continue
		}
		summary.Accepted++
	}
	return summary, nil
}

// isHeader 判断首行是否为表头
func isHeader(record []string) bool {
	return len(record) > 0 && strings.EqualFold(strings.TrimSpace(record[0]), "platform")
}

// parseRow 解析单行为历史记录。平台大小写在 service 层校验，
// 这里只做结构层面的解析（列数、整数、日期）。
func parseRow(record []string) (*service.HistoricalRecord, error) {
	if len(record) != expectedColumns {
		return nil, fmt.Errorf("列数不对: 需要 %d 列，得到 %d 列", expectedColumns, len(record))
	}

	likes, err := parseCount("likes", record[2])
	if err != nil {
		return nil, err
	}
	comments, err := parseCount("comments", record[3])
	if err != nil {
		return nil, err
	}
	shares, err := parseCount("shares", record[4])
	if err != nil {
		return nil, err
	}
	impressions, err := parseCount("impressions", record[5])
	if err != nil {
		return nil, err
	}

	postedAt, err := parseDate(record[7])
	if err != nil {
		return nil, err
	}

	content := record[1]

	// 标签 = 正文里的 #tag + hashtags 列（逗号分隔），service 层去重
	tags := ai.ExtractHashtags(content)
	for _, t := range strings.Split(record[6], ",") {
		if tag := ai.NormalizeHashtag(t); tag != "" {
			tags = append(tags, tag)
		}
	}

	return &service.HistoricalRecord{
		Platform:    strings.TrimSpace(record[0]),
		Content:     content,
		Likes:       likes,
		Comments:    comments,
		Shares:      shares,
		Impressions: impressions,
		Hashtags:    tags,
		PostedAt:    postedAt,
	}, nil
}

func parseCount(name, s string) (int64, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s 不是整数: %q", name, s)
	}
	return v, nil
}

// parseDate 接受 2006-01-02 或 RFC3339；为空表示未知，由 service 层取当前时间
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("日期格式不对: %q（支持 2006-01-02 或 RFC3339）", s)
}

// SampleCSV 示例文件内容（`sample` 子命令写出）
const SampleCSV = `platform,content,likes,comments,shares,impressions,hashtags,date
Twitter,"Just shipped a new feature! What do you think? #golang",42,7,16,2500,"golang,shipit",2026-08-01
Instagram,"Behind the scenes of our latest shoot ✨ #photography #bts",320,45,28,9800,"photography,bts,studio",2026-08-02
`
