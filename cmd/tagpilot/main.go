package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/yuqie6/TagPilot/internal/ai"
	"github.com/yuqie6/TagPilot/internal/importer"
	"github.com/yuqie6/TagPilot/internal/pkg/buildinfo"
	"github.com/yuqie6/TagPilot/internal/pkg/config"
	"github.com/yuqie6/TagPilot/internal/repository"
	"github.com/yuqie6/TagPilot/internal/schema"
	"github.com/yuqie6/TagPilot/internal/service"
)

var (
	cfgFile string
	cfg     *config.Config
	db      *repository.Database
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "tagpilot",
		Short: "TagPilot - 会学习的标签推荐引擎",
		Long:  `TagPilot 根据历史表现数据为社交媒体帖子推荐标签并预测表现，追踪的真实数据会持续改进后续推荐。`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// 加载配置
			var err error
			cfg, err = config.Load(cfgFile)
			if err != nil {
				slog.Error("加载配置失败", "error", err)
				os.Exit(1)
			}
			config.SetupLogger(cfg.App.LogLevel)

			// 初始化数据库
			db, err = repository.NewDatabase(cfg.Storage.DBPath)
			if err != nil {
				slog.Error("初始化数据库失败", "error", err)
				os.Exit(1)
			}
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if db != nil {
				db.Close()
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "配置文件路径")

	// 添加子命令
	rootCmd.AddCommand(analyzeCmd())
	rootCmd.AddCommand(trackCmd())
	rootCmd.AddCommand(retrackCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(watchCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(backupCmd())
	rootCmd.AddCommand(restoreCmd())
	rootCmd.AddCommand(vacuumCmd())
	rootCmd.AddCommand(sampleCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// services CLI 装配好的服务集合
type services struct {
	posts    *repository.PostRepository
	stats    *repository.StatRepository
	scorer   *service.ScoringEngine
	learning *service.LearningService
	similar  *service.SimilarService
	ollama   *ai.OllamaClient
}

// buildServices 装配服务。向量库初始化失败只降级不中断。
func buildServices() *services {
	postRepo := repository.NewPostRepository(db.DB)
	statRepo := repository.NewStatRepository(db.DB)

	ollama := ai.NewOllamaClient(&ai.OllamaConfig{
		BaseURL: cfg.Ollama.BaseURL,
		Model:   cfg.Ollama.Model,
		Timeout: time.Duration(cfg.Ollama.TimeoutSec) * time.Second,
	})
	recommender := ai.NewRecommender(ollama)

	var similarSvc *service.SimilarService
	var similar service.SimilarFinder
	if cfg.Similar.Enabled {
		s, err := service.NewSimilarService(cfg.Similar.StoragePath)
		if err != nil {
			slog.Warn("相似帖子向量库不可用", "error", err)
		} else {
			similarSvc = s
			similar = s
		}
	}

	scorer := service.NewScoringEngine(recommender, statRepo, similar)
	learning := service.NewLearningService(postRepo, statRepo, scorer, similar)

	return &services{
		posts:    postRepo,
		stats:    statRepo,
		scorer:   scorer,
		learning: learning,
		similar:  similarSvc,
		ollama:   ollama,
	}
}

// analyzeCmd 分析帖子并入库
func analyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze <平台> <内容>",
		Short: "分析帖子：推荐标签 + 预测得分，并保存待追踪",
		Long:  "平台为 Twitter 或 Instagram（大小写敏感）。内容可以是多个参数，会用空格连接。",
		Args:  cobra.MinimumNArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()
			platform := args[0]
			content := strings.Join(args[1:], " ")

			svc := buildServices()

			if !svc.ollama.IsAvailable(ctx) {
				fmt.Println("⚠️  Ollama 未运行，将使用启发式推荐")
				fmt.Printf("   启动方式: ollama run %s\n\n", svc.ollama.Model())
			}

			fmt.Println("🔍 正在分析帖子...")

			result, err := svc.learning.SubmitPost(ctx, platform, content)
			if err != nil {
				fmt.Printf("❌ 分析失败: %v\n", err)
				os.Exit(1)
			}

			printScoreResult(result)
		},
	}
	return cmd
}

// printScoreResult 打印分析结果
func printScoreResult(result *service.SubmitResult) {
	score := result.Score

	fmt.Printf("\n📊 预测得分: %d/100 %s\n", score.Total, scoreBar(score.Total))
	fmt.Println("═══════════════════════════════════════")

	fmt.Printf("\n📈 分量\n")
	fmt.Printf("  • 内容质量: %d %s\n", score.Components.ContentQuality, scoreBar(score.Components.ContentQuality))
	fmt.Printf("  • 标签策略: %d %s\n", score.Components.HashtagStrategy, scoreBar(score.Components.HashtagStrategy))
	fmt.Printf("  • 发帖时机: %d %s\n", score.Components.TimingRelevance, scoreBar(score.Components.TimingRelevance))
	fmt.Printf("  • 数据置信: %d %s\n", score.Components.DataConfidence, scoreBar(score.Components.DataConfidence))

	fmt.Printf("\n🏷️  推荐标签\n")
	for i, h := range score.Hashtags {
		line := fmt.Sprintf("  %d. #%s %s (相关性 %.0f%%)", i+1, h.Tag, tierIcon(h.ConfidenceTier), h.Relevance*100)
		if h.TotalUses > 0 {
			line += fmt.Sprintf(" — 已用 %d 次, 平均互动 %.1f%%", h.TotalUses, h.AvgEngagement*100)
		}
		fmt.Println(line)
	}

	if len(score.Insights) > 0 {
		fmt.Printf("\n💡 建议\n")
		for _, ins := range score.Insights {
			fmt.Printf("  • %s\n", ins)
		}
	}

	fmt.Println("\n═══════════════════════════════════════")
	fmt.Printf("✅ 帖子已保存 (id=%d)\n", result.Post.ID)
	fmt.Printf("   发布 24 小时后追踪表现: tagpilot track %d --likes N --comments N --shares N --impressions N\n", result.Post.ID)
}

// trackCmd 追踪真实表现
func trackCmd() *cobra.Command {
	var likes, comments, shares, impressions int64

	cmd := &cobra.Command{
		Use:   "track <post-id>",
		Short: "记录帖子的真实表现数据，喂给学习引擎",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()

			postID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				fmt.Printf("❌ post-id 不是整数: %q\n", args[0])
				os.Exit(1)
			}

			svc := buildServices()

			rec, err := svc.learning.TrackPerformance(ctx, postID, likes, comments, shares, impressions)
			if err != nil {
				fmt.Printf("❌ 追踪失败: %v\n", err)
				os.Exit(1)
			}

			fmt.Printf("✅ 表现已记录\n")
			fmt.Printf("   互动率: %.2f%% (%d 互动 / %d 曝光)\n",
				rec.EngagementRate*100, likes+comments+shares, impressions)
			fmt.Println("   相关标签的统计已更新，后续推荐会参考这次结果")
		},
	}

	cmd.Flags().Int64Var(&likes, "likes", 0, "点赞数")
	cmd.Flags().Int64Var(&comments, "comments", 0, "评论数")
	cmd.Flags().Int64Var(&shares, "shares", 0, "转发/分享数")
	cmd.Flags().Int64Var(&impressions, "impressions", 0, "曝光数 (必填, >0)")
	_ = cmd.MarkFlagRequired("impressions")

	return cmd
}

// retrackCmd 显式修正已追踪的表现
func retrackCmd() *cobra.Command {
	var likes, comments, shares, impressions int64

	cmd := &cobra.Command{
		Use:   "retrack <post-id>",
		Short: "替换已记录的表现数据（先撤销旧数据的统计贡献再记入新数据）",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()

			postID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				fmt.Printf("❌ post-id 不是整数: %q\n", args[0])
				os.Exit(1)
			}

			svc := buildServices()

			rec, err := svc.learning.ReplacePerformance(ctx, postID, likes, comments, shares, impressions)
			if err != nil {
				fmt.Printf("❌ 修正失败: %v\n", err)
				os.Exit(1)
			}

			fmt.Printf("✅ 表现已修正，新互动率: %.2f%%\n", rec.EngagementRate*100)
		},
	}

	cmd.Flags().Int64Var(&likes, "likes", 0, "点赞数")
	cmd.Flags().Int64Var(&comments, "comments", 0, "评论数")
	cmd.Flags().Int64Var(&shares, "shares", 0, "转发/分享数")
	cmd.Flags().Int64Var(&impressions, "impressions", 0, "曝光数 (必填, >0)")
	_ = cmd.MarkFlagRequired("impressions")

	return cmd
}

// importCmd 导入历史数据 CSV
func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file.csv>",
		Short: "导入历史帖子数据（格式见 tagpilot sample）",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()
			svc := buildServices()

			fmt.Printf("📥 正在导入 %s ...\n", args[0])

			summary, err := importer.NewImporter(svc.learning).ImportFile(ctx, args[0])
			if err != nil {
				fmt.Printf("❌ 导入失败: %v\n", err)
				os.Exit(1)
			}

			printImportSummary(summary)
		},
	}
	return cmd
}

// printImportSummary 打印导入汇总
func printImportSummary(summary *service.ImportSummary) {
	fmt.Printf("✅ 接受 %d 行，拒绝 %d 行\n", summary.Accepted, summary.Rejected)
	for _, e := range summary.Errors {
		fmt.Printf("   ⚠️  第 %d 行: %s\n", e.Row, e.Reason)
	}
}

// watchCmd 后台监控投放目录
func watchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "监控投放目录，自动导入放入的 CSV 文件",
		Run: func(cmd *cobra.Command, args []string) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			svc := buildServices()

			w, err := importer.NewWatcher(importer.NewImporter(svc.learning), &importer.WatcherConfig{
				Dir:       cfg.Import.WatchDir,
				SettleSec: cfg.Import.SettleSec,
			})
			if err != nil {
				fmt.Printf("❌ 创建监控器失败: %v\n", err)
				os.Exit(1)
			}

			if err := w.Start(ctx); err != nil {
				fmt.Printf("❌ 启动监控失败: %v\n", err)
				os.Exit(1)
			}
			defer w.Stop()

			fmt.Printf("👀 正在监控 %s，放入 *.csv 即自动导入 (Ctrl+C 退出)\n", cfg.Import.WatchDir)

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt)
			<-sigChan
			fmt.Println("\n👋 已停止")
		},
	}
	return cmd
}

// statsCmd 学习数据总览
func statsCmd() *cobra.Command {
	var top int

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "查看学习数据总览",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()
			svc := buildServices()

			fmt.Println("📊 学习数据总览")
			fmt.Println("═══════════════════════════════════════")

			for _, platform := range service.Platforms() {
				total, _ := svc.posts.CountByPlatform(ctx, platform.String())
				tracked, _ := svc.posts.CountTracked(ctx, platform.String())
				avg, _ := svc.posts.AvgEngagement(ctx, platform.String())

				fmt.Printf("\n📱 %s\n", platform)
				fmt.Printf("  • 帖子: %d 篇，已追踪 %d 篇\n", total, tracked)
				if tracked > 0 {
					fmt.Printf("  • 平均互动率: %.2f%%\n", avg*100)
				}

				tags, err := svc.stats.TopByPlatform(ctx, platform.String(), 1, top)
				if err != nil || len(tags) == 0 {
					fmt.Println("  • 还没有标签表现数据")
					continue
				}

				fmt.Printf("  • 表现最好的标签:\n")
				for _, t := range tags {
					fmt.Printf("    %s #%s: 平均 %.2f%%，%d 次使用，成功率 %.0f%%\n",
						tierIcon(t.ConfidenceTier), t.Hashtag, t.AvgEngagement*100, t.TotalUses, t.SuccessRate*100)
				}
			}

			fmt.Println("\n═══════════════════════════════════════")
		},
	}

	cmd.Flags().IntVarP(&top, "top", "n", 5, "每个平台显示前 N 个标签")

	return cmd
}

// exportCmd 导出标签统计
func exportCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "导出全部标签统计为 CSV",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()
			svc := buildServices()

			stats, err := svc.stats.ExportAll(ctx)
			if err != nil {
				fmt.Printf("❌ 导出失败: %v\n", err)
				os.Exit(1)
			}

			f, err := os.Create(out)
			if err != nil {
				fmt.Printf("❌ 创建文件失败: %v\n", err)
				os.Exit(1)
			}
			defer f.Close()

			if err := importer.WriteStatsCSV(f, stats); err != nil {
				fmt.Printf("❌ 写入失败: %v\n", err)
				os.Exit(1)
			}

			fmt.Printf("✅ 已导出 %d 条标签统计到 %s\n", len(stats), out)
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "tagpilot_stats.csv", "输出文件")

	return cmd
}

// backupCmd 备份数据库
func backupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "备份数据库到备份目录",
		Run: func(cmd *cobra.Command, args []string) {
			path, err := db.Backup(cfg.Storage.BackupDir)
			if err != nil {
				fmt.Printf("❌ 备份失败: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("✅ 备份完成: %s\n", path)
		},
	}
	return cmd
}

// restoreCmd 从备份恢复数据库，或用导出文件精确恢复统计表
func restoreCmd() *cobra.Command {
	var statsFile string

	cmd := &cobra.Command{
		Use:   "restore [backup-file]",
		Short: "从备份文件恢复数据库（当前库先存为 .pre-restore），或 --stats 精确恢复标签统计",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			if statsFile != "" {
				restoreStats(statsFile)
				return
			}
			if len(args) != 1 {
				fmt.Println("❌ 需要备份文件参数，或用 --stats <export.csv>")
				os.Exit(1)
			}

			// 先断开当前连接再替换文件
			if err := db.Close(); err != nil {
				fmt.Printf("❌ 关闭数据库失败: %v\n", err)
				os.Exit(1)
			}
			dbPath := db.Path
			db = nil

			if err := repository.RestoreFile(dbPath, args[0]); err != nil {
				fmt.Printf("❌ 恢复失败: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("✅ 已从 %s 恢复\n", args[0])
		},
	}

	cmd.Flags().StringVar(&statsFile, "stats", "", "用 export 导出的统计 CSV 逐位覆盖 hashtag_stats 表")

	return cmd
}

// restoreStats 用导出文件精确覆盖统计表（替换而非合并）
func restoreStats(path string) {
	f, err := os.Open(path)
	if err != nil {
		fmt.Printf("❌ 打开文件失败: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	stats, err := importer.ReadStatsCSV(f)
	if err != nil {
		fmt.Printf("❌ 解析失败: %v\n", err)
		os.Exit(1)
	}

	if err := repository.NewStatRepository(db.DB).RestoreExact(context.Background(), stats); err != nil {
		fmt.Printf("❌ 恢复失败: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✅ 已恢复 %d 条标签统计\n", len(stats))
}

// seedCmd 冷启动种子数据
func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed <file.csv>",
		Short: "导入标签种子数据（hashtag,platform,engagement_rate[,date]），增量合并进统计",
		Long:  "给新装环境预热学习数据：每行一次历史互动结果，按与追踪相同的规则合并进 hashtag_stats。",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			f, err := os.Open(args[0])
			if err != nil {
				fmt.Printf("❌ 打开文件失败: %v\n", err)
				os.Exit(1)
			}
			defer f.Close()

			outcomes, err := importer.ReadSeedCSV(f)
			if err != nil {
				fmt.Printf("❌ 解析失败: %v\n", err)
				os.Exit(1)
			}

			if err := repository.NewStatRepository(db.DB).ImportOutcomes(context.Background(), outcomes); err != nil {
				fmt.Printf("❌ 导入失败: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("✅ 已合并 %d 条种子互动结果\n", len(outcomes))
		},
	}
	return cmd
}

// vacuumCmd 整理数据库
func vacuumCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vacuum",
		Short: "整理数据库文件，回收删除后的空间",
		Run: func(cmd *cobra.Command, args []string) {
			if err := db.Vacuum(); err != nil {
				fmt.Printf("❌ 整理失败: %v\n", err)
				os.Exit(1)
			}
			fmt.Println("✅ 数据库整理完成")
		},
	}
	return cmd
}

// sampleCmd 生成示例 CSV
func sampleCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "sample",
		Short: "生成一个导入格式示例 CSV",
		Run: func(cmd *cobra.Command, args []string) {
			if err := os.WriteFile(out, []byte(importer.SampleCSV), 0o644); err != nil {
				fmt.Printf("❌ 写入失败: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("✅ 示例文件已写入 %s\n", out)
			fmt.Println("   列顺序: platform,content,likes,comments,shares,impressions,hashtags,date")
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "sample.csv", "输出文件")

	return cmd
}

// configCmd 配置管理
func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "配置管理",
	}

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "写出当前生效的配置到配置文件",
		Run: func(cmd *cobra.Command, args []string) {
			path := cfgFile
			if path == "" {
				var err error
				path, err = config.DefaultConfigPath()
				if err != nil {
					fmt.Printf("❌ 确定配置路径失败: %v\n", err)
					os.Exit(1)
				}
			}

			if err := config.WriteFile(path, cfg); err != nil {
				fmt.Printf("❌ 写入配置失败: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("✅ 配置已写入 %s\n", path)
		},
	}

	cmd.AddCommand(initCmd)
	return cmd
}

// versionCmd 版本信息
func versionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "显示版本信息",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("tagpilot %s (%s)\n", buildinfo.Version, buildinfo.Commit)
		},
	}
	return cmd
}

// scoreBar 0-100 的进度条
func scoreBar(score int) string {
	const width = 20
	filled := score * width / 100
	var b strings.Builder
	for i := 0; i < width; i++ {
		if i < filled {
			b.WriteString("█")
		} else {
			b.WriteString("░")
		}
	}
	return b.String()
}

// tierIcon 置信档位图标
func tierIcon(tier schema.ConfidenceTier) string {
	switch tier {
	case schema.TierHigh:
		return "🟢"
	case schema.TierMedium:
		return "🟡"
	default:
		return "⚪"
	}
}
