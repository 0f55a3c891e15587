package importer

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/yuqie6/TagPilot/internal/ai"
	"github.com/yuqie6/TagPilot/internal/repository"
	"github.com/yuqie6/TagPilot/internal/schema"
	"github.com/yuqie6/TagPilot/internal/service"
)

// 标签统计导出文件的列顺序，读写两边必须一致
var statsHeader = []string{
	"hashtag", "platform", "total_uses", "cumulative_engagement",
	"avg_engagement", "success_count", "success_rate", "confidence_tier", "last_used",
}

// WriteStatsCSV 把标签统计写成 CSV（`export` 子命令用，
// 也是 `restore --stats` 接受的格式）。
func WriteStatsCSV(w io.Writer, stats []schema.HashtagStat) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	if err := cw.Write(statsHeader); err != nil {
		return err
	}
	for _, s := range stats {
		record := []string{
			s.Hashtag,
			s.Platform,
			strconv.FormatInt(s.TotalUses, 10),
			strconv.FormatFloat(s.CumulativeEngagement, 'f', -1, 64),
			strconv.FormatFloat(s.AvgEngagement, 'f', -1, 64),
			strconv.FormatInt(s.SuccessCount, 10),
			strconv.FormatFloat(s.SuccessRate, 'f', -1, 64),
			string(s.ConfidenceTier),
			s.LastUsed.Format(time.RFC3339),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	return cw.Error()
}

// ReadStatsCSV 解析导出格式的标签统计，计数器逐位还原。
// 供 `restore --stats` 做精确覆盖恢复，任何坏行都中止整个解析。
func ReadStatsCSV(r io.Reader) ([]schema.HashtagStat, error) {
	records, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("解析统计 CSV 失败: %w", err)
	}
	if len(records) > 0 && isStatsHeader(records[0]) {
		records = records[1:]
	}

	stats := make([]schema.HashtagStat, 0, len(records))
	for i, record := range records {
		if len(record) != len(statsHeader) {
			return nil, fmt.Errorf("第 %d 行列数不对: 需要 %d 列，得到 %d 列", i+1, len(statsHeader), len(record))
		}

		totalUses, err := parseCount("total_uses", record[2])
		if err != nil {
			return nil, fmt.Errorf("第 %d 行: %w", i+1, err)
		}
		cumulative, err := parseFloat("cumulative_engagement", record[3])
		if err != nil {
			return nil, fmt.Errorf("第 %d 行: %w", i+1, err)
		}
		avg, err := parseFloat("avg_engagement", record[4])
		if err != nil {
			return nil, fmt.Errorf("第 %d 行: %w", i+1, err)
		}
		successCount, err := parseCount("success_count", record[5])
		if err != nil {
			return nil, fmt.Errorf("第 %d 行: %w", i+1, err)
		}
		successRate, err := parseFloat("success_rate", record[6])
		if err != nil {
			return nil, fmt.Errorf("第 %d 行: %w", i+1, err)
		}
		lastUsed, err := parseDate(record[8])
		if err != nil {
			return nil, fmt.Errorf("第 %d 行: %w", i+1, err)
		}

		stats = append(stats, schema.HashtagStat{
			Hashtag:              strings.TrimSpace(record[0]),
			Platform:             strings.TrimSpace(record[1]),
			TotalUses:            totalUses,
			CumulativeEngagement: cumulative,
			AvgEngagement:        avg,
			SuccessCount:         successCount,
			SuccessRate:          successRate,
			ConfidenceTier:       schema.ConfidenceTier(strings.TrimSpace(record[7])),
			LastUsed:             lastUsed,
		})
	}
	return stats, nil
}

func isStatsHeader(record []string) bool {
	return len(record) > 0 && strings.EqualFold(strings.TrimSpace(record[0]), "hashtag")
}

// ReadSeedCSV 解析冷启动种子文件：hashtag,platform,engagement_rate[,date]。
// 每行是一次历史互动结果，成功阈值按平台推导；日期留空取当前时间。
// 种子是管理操作，坏行直接报错而不是跳过。
func ReadSeedCSV(r io.Reader) ([]repository.StatOutcome, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("解析种子 CSV 失败: %w", err)
	}
	if len(records) > 0 && isStatsHeader(records[0]) {
		records = records[1:]
	}

	outcomes := make([]repository.StatOutcome, 0, len(records))
	for i, record := range records {
		if len(record) != 3 && len(record) != 4 {
			return nil, fmt.Errorf("第 %d 行列数不对: 需要 3-4 列，得到 %d 列", i+1, len(record))
		}

		platform, err := service.ParsePlatform(strings.TrimSpace(record[1]))
		if err != nil {
			return nil, fmt.Errorf("第 %d 行: %w", i+1, err)
		}
		rate, err := parseFloat("engagement_rate", record[2])
		if err != nil {
			return nil, fmt.Errorf("第 %d 行: %w", i+1, err)
		}

		usedAt := time.Now()
		if len(record) == 4 {
			parsed, err := parseDate(record[3])
			if err != nil {
				return nil, fmt.Errorf("第 %d 行: %w", i+1, err)
			}
			if !parsed.IsZero() {
				usedAt = parsed
			}
		}

		tag := ai.NormalizeHashtag(record[0])
		if tag == "" {
			return nil, fmt.Errorf("第 %d 行: hashtag 为空", i+1)
		}

		outcomes = append(outcomes, repository.StatOutcome{
			Hashtag:          tag,
			Platform:         platform.String(),
			EngagementRate:   rate,
			SuccessThreshold: platform.Rule().SuccessThreshold,
			UsedAt:           usedAt,
		})
	}
	return outcomes, nil
}

func parseFloat(name, s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("%s 不是数字: %q", name, s)
	}
	return v, nil
}
