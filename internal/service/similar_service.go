package service

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"math"
	"os"
	"regexp"
	"strconv"
	"strings"

	chromem "github.com/philippgille/chromem-go"
)

// embeddingDim 本地词袋嵌入维度
const embeddingDim = 256

// SimilarService 相似帖子检索：把高表现帖子索引进向量库，
// 分析新内容时找回相似的成功案例作为生成上下文。
//
// 嵌入用本地确定性词袋哈希，不依赖任何外部嵌入服务，
// 同一文本永远得到同一向量。
type SimilarService struct {
	db         *chromem.DB
	collection *chromem.Collection
}

// NewSimilarService 创建检索服务。persistPath 为空时使用内存库（测试用）。
func NewSimilarService(persistPath string) (*SimilarService, error) {
	var db *chromem.DB
	var err error

	if persistPath == "" {
		db = chromem.NewDB()
	} else {
		if err := os.MkdirAll(persistPath, 0755); err != nil {
			return nil, fmt.Errorf("创建向量库目录失败: %w", err)
		}
		db, err = chromem.NewPersistentDB(persistPath, false)
		if err != nil {
			return nil, fmt.Errorf("创建向量数据库失败: %w", err)
		}
	}

	collection, err := db.GetOrCreateCollection("successful_posts", nil, localEmbedding)
	if err != nil {
		return nil, fmt.Errorf("创建 collection 失败: %w", err)
	}

	return &SimilarService{db: db, collection: collection}, nil
}

// IndexPost 索引一篇高表现帖子。重复索引同一 postID 会覆盖旧文档。
func (s *SimilarService) IndexPost(ctx context.Context, postID int64, platform, content string, rate float64, hashtags []string) error {
	doc := chromem.Document{
		ID:      fmt.Sprintf("post_%d", postID),
		Content: content,
		Metadata: map[string]string{
			"platform": platform,
			"rate":     strconv.FormatFloat(rate, 'f', -1, 64),
			"hashtags": strings.Join(hashtags, " "),
		},
	}
	if err := s.collection.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("索引帖子失败: %w", err)
	}
	slog.Debug("已索引高表现帖子", "post_id", postID, "platform", platform)
	return nil
}

// FindSimilar 按内容检索同平台相似帖子，最多 k 条
func (s *SimilarService) FindSimilar(ctx context.Context, content, platform string, k int) ([]SimilarHit, error) {
	count := s.collection.Count()
	if count == 0 {
		return nil, nil
	}
	if k > count {
		k = count
	}

	results, err := s.collection.Query(ctx, content, k, map[string]string{"platform": platform}, nil)
	if err != nil {
		return nil, fmt.Errorf("相似检索失败: %w", err)
	}

	hits := make([]SimilarHit, 0, len(results))
	for _, r := range results {
		rate, _ := strconv.ParseFloat(r.Metadata["rate"], 64)
		hits = append(hits, SimilarHit{
			PostID:         r.ID,
			Content:        r.Content,
			EngagementRate: rate,
			Hashtags:       r.Metadata["hashtags"],
			Similarity:     r.Similarity,
		})
	}
	return hits, nil
}

var embedTokenPattern = regexp.MustCompile(`[a-zA-Z0-9]{2,}`)

// localEmbedding 确定性词袋嵌入：分词 -> FNV 哈希到固定维度 -> L2 归一化。
// 质量不及真正的语义嵌入，但零依赖且可复现，对「同平台找相近话题」够用。
func localEmbedding(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, embeddingDim)
	for _, token := range embedTokenPattern.FindAllString(strings.ToLower(text), -1) {
		h := fnv.New32a()
		h.Write([]byte(token))
		vec[h.Sum32()%embeddingDim]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		// 空文本给一个固定的单位向量，避免零向量破坏余弦相似度
		vec[0] = 1
		return vec, nil
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec, nil
}
