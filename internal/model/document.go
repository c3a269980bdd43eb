// Package model 定义了与数据库表对应的 Go 结构体。
package model

import "time"

// 文档入库状态。
const (
	DocStatusPending   = 0 // 已上传，等待流水线处理
	DocStatusCompleted = 1 // 分块向量化完成
	DocStatusFailed    = 2 // 处理失败
)

// Document 定义了 documents 表的 ORM 模型。
// 它记录了每个上传文档的元数据和入库状态，FileMD5 是文档内容的指纹。
type Document struct {
	ID         uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	FileMD5    string     `gorm:"type:varchar(32);not null;index" json:"fileMd5"`
	FileName   string     `gorm:"type:varchar(255);not null" json:"fileName"`
	Domain     string     `gorm:"type:varchar(50);not null;default:'general'" json:"domain"`
	TotalSize  int64      `gorm:"not null" json:"totalSize"`
	Status     int        `gorm:"type:tinyint;not null;default:0" json:"status"`
	ChunkCount int        `gorm:"not null;default:0" json:"chunkCount"`
	UserID     uint       `gorm:"index" json:"userId"` // 0 表示全局共享文档
	CreatedAt  time.Time  `gorm:"autoCreateTime" json:"createdAt"`
	IngestedAt *time.Time `gorm:"default:null" json:"ingestedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Document) TableName() string {
	return "documents"
}
