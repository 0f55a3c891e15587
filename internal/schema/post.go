package schema

import "time"

// Post 一次分析过的帖子（预测记录）
// 数据量级：千级/年
type Post struct {
	ID             int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Platform       string    `gorm:"size:20;index;not null" json:"platform"` // Twitter / Instagram（封闭枚举，入口校验）
	Content        string    `gorm:"type:text;not null" json:"content"`
	ContentLength  int       `gorm:"not null" json:"content_length"` // 冗余特征列，便于离线分析
	HasQuestion    bool      `json:"has_question"`
	HasEmoji       bool      `json:"has_emoji"`
	PredictedScore *int      `json:"predicted_score"` // 0-100；历史导入没有实时打分，为 NULL
	CreatedAt      time.Time `gorm:"autoCreateTime;index" json:"created_at"`

	Recommendations []HashtagRecommendation `gorm:"foreignKey:PostID" json:"recommendations,omitempty"`
}

// TableName 指定表名
func (Post) TableName() string {
	return "posts"
}

// HashtagRecommendation 帖子的一条推荐标签
// 与 Post 同事务创建，创建后不可变
type HashtagRecommendation struct {
	ID                 int64   `gorm:"primaryKey;autoIncrement" json:"id"`
	PostID             int64   `gorm:"index;not null" json:"post_id"`
	Hashtag            string  `gorm:"size:100;not null" json:"hashtag"` // 规范化：小写、去掉前导 '#'
	PredictedRelevance float64 `json:"predicted_relevance"`              // 0-1
}

// TableName 指定表名
func (HashtagRecommendation) TableName() string {
	return "hashtag_recommendations"
}

// PerformanceRecord 帖子的真实表现回报
// 每个帖子至多一条（uniqueIndex 保证重复追踪在数据库层被拒绝）；
// 创建后不可变，修正只能走显式的 Replace 操作。
type PerformanceRecord struct {
	ID             int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	PostID         int64     `gorm:"uniqueIndex;not null" json:"post_id"`
	Likes          int64     `gorm:"not null" json:"likes"`
	Comments       int64     `gorm:"not null" json:"comments"`
	Shares         int64     `gorm:"not null" json:"shares"`
	Impressions    int64     `gorm:"not null" json:"impressions"`
	EngagementRate float64   `gorm:"not null" json:"engagement_rate"` // 派生值，留底审计；小数形式（0.026 = 2.6%）
	TrackedAt      time.Time `gorm:"autoCreateTime" json:"tracked_at"`
}

// TableName 指定表名
func (PerformanceRecord) TableName() string {
	return "performance_records"
}
