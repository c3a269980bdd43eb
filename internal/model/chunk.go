package model

// DocumentChunk 对应于数据库中的 document_chunks 表。
// 入库流水线先把分块文本落库，再逐块向量化并写入向量库。
type DocumentChunk struct {
	ID          uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	FileMD5     string `gorm:"type:varchar(32);not null;index;column:file_md5" json:"fileMd5"`
	ChunkIndex  int    `gorm:"not null;column:chunk_index" json:"chunkIndex"`
	Fingerprint string `gorm:"type:varchar(8);not null;column:fingerprint" json:"fingerprint"`
	TextContent string `gorm:"type:text;column:text_content" json:"textContent"`
	WordCount   int    `gorm:"not null;default:0;column:word_count" json:"wordCount"`
	Domain      string `gorm:"type:varchar(50);column:domain" json:"domain"`
	UserID      uint   `gorm:"column:user_id" json:"userId"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (DocumentChunk) TableName() string {
	return "document_chunks"
}
