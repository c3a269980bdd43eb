package repository

import (
	"doc-insight-go/internal/model"

	"gorm.io/gorm"
)

// ChunkRepository 定义了对 document_chunks 表的数据操作接口。
type ChunkRepository interface {
	BatchCreate(chunks []model.DocumentChunk) error
	FindByFileMD5(fileMD5 string) ([]model.DocumentChunk, error)
	DeleteByFileMD5(fileMD5 string) error
	CountByFileMD5(fileMD5 string) (int64, error)
}

type chunkRepository struct {
	db *gorm.DB
}

// NewChunkRepository 创建一个新的 ChunkRepository 实例。
func NewChunkRepository(db *gorm.DB) ChunkRepository {
	return &chunkRepository{db: db}
}

// BatchCreate 批量写入分块记录，每批 100 条。
func (r *chunkRepository) BatchCreate(chunks []model.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	return r.db.CreateInBatches(chunks, 100).Error
}

// FindByFileMD5 按分块顺序返回某个文件的全部分块。
func (r *chunkRepository) FindByFileMD5(fileMD5 string) ([]model.DocumentChunk, error) {
	var chunks []model.DocumentChunk
	err := r.db.Where("file_md5 = ?", fileMD5).Order("chunk_index ASC").Find(&chunks).Error
	return chunks, err
}

// DeleteByFileMD5 删除某个文件的全部分块，重复入库前调用以保证幂等。
func (r *chunkRepository) DeleteByFileMD5(fileMD5 string) error {
	return r.db.Where("file_md5 = ?", fileMD5).Delete(&model.DocumentChunk{}).Error
}

// CountByFileMD5 统计某个文件的分块数量。
func (r *chunkRepository) CountByFileMD5(fileMD5 string) (int64, error) {
	var count int64
	err := r.db.Model(&model.DocumentChunk{}).Where("file_md5 = ?", fileMD5).Count(&count).Error
	return count, err
}
