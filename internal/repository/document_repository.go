// Package repository 提供了数据访问层的实现。
package repository

import (
	"time"

	"doc-insight-go/internal/model"

	"gorm.io/gorm"
)

// DocumentRepository 定义了对 documents 表的数据操作接口。
type DocumentRepository interface {
	Create(doc *model.Document) error
	FindByFileMD5(fileMD5 string) (*model.Document, error)
	FindByUserID(userID uint) ([]model.Document, error)
	UpdateStatus(fileMD5 string, status int, chunkCount int) error
	DeleteByFileMD5(fileMD5 string) error
	ListDomains() ([]string, error)
}

type documentRepository struct {
	db *gorm.DB
}

// NewDocumentRepository 创建一个新的 DocumentRepository 实例。
func NewDocumentRepository(db *gorm.DB) DocumentRepository {
	return &documentRepository{db: db}
}

// Create 新增一条文档记录。
func (r *documentRepository) Create(doc *model.Document) error {
	return r.db.Create(doc).Error
}

// FindByFileMD5 根据文件 MD5 查找文档记录。
func (r *documentRepository) FindByFileMD5(fileMD5 string) (*model.Document, error) {
	var doc model.Document
	err := r.db.Where("file_md5 = ?", fileMD5).First(&doc).Error
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// FindByUserID 查找某个用户上传的全部文档。
func (r *documentRepository) FindByUserID(userID uint) ([]model.Document, error) {
	var docs []model.Document
	err := r.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&docs).Error
	return docs, err
}

// UpdateStatus 更新文档的入库状态与分块数；完成时同时写入入库时间。
func (r *documentRepository) UpdateStatus(fileMD5 string, status int, chunkCount int) error {
	updates := map[string]interface{}{
		"status":      status,
		"chunk_count": chunkCount,
	}
	if status == model.DocStatusCompleted {
		now := time.Now()
		updates["ingested_at"] = &now
	}
	return r.db.Model(&model.Document{}).Where("file_md5 = ?", fileMD5).Updates(updates).Error
}

// DeleteByFileMD5 删除文档记录。
func (r *documentRepository) DeleteByFileMD5(fileMD5 string) error {
	return r.db.Where("file_md5 = ?", fileMD5).Delete(&model.Document{}).Error
}

// ListDomains 返回库中出现过的全部领域标签。
func (r *documentRepository) ListDomains() ([]string, error) {
	var domains []string
	err := r.db.Model(&model.Document{}).Distinct("domain").Pluck("domain", &domains).Error
	return domains, err
}
