package schema

import "time"

// SchemaMeta 记录标签库当前的 schema 版本，表内只有一行（ID=1）。
// 统计表里的派生计数器经不起 AutoMigrate 盲目改列，升级以版本号做门闸，
// 版本不符时宁可进安全模式也不动数据。
type SchemaMeta struct {
	ID            int       `gorm:"primaryKey"`
	SchemaVersion int       `gorm:"not null"`
	CreatedAt     time.Time `gorm:"autoCreateTime"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime"`
}

func (SchemaMeta) TableName() string {
	return "schema_meta"
}
