package service

import (
	"bytes"
	"context"
	"crypto/md5"
	"errors"
	"fmt"
	"net/url"
	"time"

	"doc-insight-go/internal/config"
	"doc-insight-go/internal/model"
	"doc-insight-go/internal/repository"
	"doc-insight-go/pkg/kafka"
	"doc-insight-go/pkg/log"
	"doc-insight-go/pkg/storage"
	"doc-insight-go/pkg/tasks"
	"doc-insight-go/pkg/tika"
	"doc-insight-go/pkg/vector"

	"github.com/minio/minio-go/v7"
	"gorm.io/gorm"
)

// UploadResultDTO 封装了单个文件的上传受理结果。
type UploadResultDTO struct {
	FileMD5  string `json:"fileMd5"`
	FileName string `json:"fileName"`
	Status   string `json:"status"`
	Message  string `json:"message,omitempty"`
}

// DownloadInfoDTO 封装了文件下载链接所需的信息。
type DownloadInfoDTO struct {
	FileName    string `json:"fileName"`
	DownloadURL string `json:"downloadUrl"`
	FileSize    int64  `json:"fileSize"`
}

// DocumentService 接口定义了文档管理相关的业务操作。
type DocumentService interface {
	// Upload 受理一个文档：存入对象存储并投递异步入库任务。
	Upload(ctx context.Context, fileName string, content []byte, domain string, userID uint) (*UploadResultDTO, error)
	ListMine(userID uint) ([]model.DocumentSummaryDTO, error)
	GetByFileMD5(fileMD5 string, user *model.User) (*model.Document, error)
	DeleteDocument(ctx context.Context, fileMD5 string, user *model.User) error
	GenerateDownloadURL(ctx context.Context, fileMD5 string, user *model.User) (*DownloadInfoDTO, error)
	Stats(ctx context.Context) (model.VectorStatsDTO, error)
	ListDomains() ([]string, error)
}

type documentService struct {
	documentRepo repository.DocumentRepository
	chunkRepo    repository.ChunkRepository
	vectorStore  *vector.Store
	minioCfg     config.MinIOConfig
}

// NewDocumentService 创建一个新的 DocumentService 实例。
func NewDocumentService(
	documentRepo repository.DocumentRepository,
	chunkRepo repository.ChunkRepository,
	vectorStore *vector.Store,
	minioCfg config.MinIOConfig,
) DocumentService {
	return &documentService{
		documentRepo: documentRepo,
		chunkRepo:    chunkRepo,
		vectorStore:  vectorStore,
		minioCfg:     minioCfg,
	}
}

// Upload 受理文档上传。入库是异步的：这里只做格式检查、对象存储写入和任务投递。
func (s *documentService) Upload(ctx context.Context, fileName string, content []byte, domain string, userID uint) (*UploadResultDTO, error) {
	if len(content) == 0 {
		return nil, errors.New("文件内容为空")
	}
	if !tika.IsSupported(fileName) {
		return nil, tika.ErrUnsupportedFormat
	}
	if domain == "" {
		domain = "general"
	}

	fileMD5 := fmt.Sprintf("%x", md5.Sum(content))
	log.Infof("[Document] 步骤1: 受理上传, FileName: %s, FileMD5: %s, Domain: %s, UserID: %d", fileName, fileMD5, domain, userID)

	// 同一文件重复上传直接复用已完成的入库结果
	if existing, err := s.documentRepo.FindByFileMD5(fileMD5); err == nil {
		if existing.Status == model.DocStatusCompleted {
			log.Infof("[Document] 文件已入库, 跳过重复处理, FileMD5: %s", fileMD5)
			return &UploadResultDTO{FileMD5: fileMD5, FileName: fileName, Status: "completed", Message: "文件已入库"}, nil
		}
	}

	// 2. 写入对象存储
	objectName := fmt.Sprintf("documents/%d/%s", userID, fileName)
	log.Infof("[Document] 步骤2: 写入对象存储, Bucket: %s, Object: %s", s.minioCfg.BucketName, objectName)
	_, err := storage.MinioClient.PutObject(ctx, s.minioCfg.BucketName, objectName,
		bytes.NewReader(content), int64(len(content)), minio.PutObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("写入对象存储失败: %w", err)
	}

	// 3. 登记文档记录
	doc := &model.Document{
		FileMD5:   fileMD5,
		FileName:  fileName,
		Domain:    domain,
		TotalSize: int64(len(content)),
		Status:    model.DocStatusPending,
		UserID:    userID,
	}
	if err := s.documentRepo.Create(doc); err != nil {
		// 已存在的记录重置为待处理并重新入库
		if updateErr := s.documentRepo.UpdateStatus(fileMD5, model.DocStatusPending, 0); updateErr != nil {
			return nil, fmt.Errorf("登记文档记录失败: %w", err)
		}
	}

	// 4. 投递异步入库任务
	log.Info("[Document] 步骤3: 投递异步入库任务")
	task := tasks.DocumentIngestTask{
		FileMD5:    fileMD5,
		FileName:   fileName,
		ObjectName: objectName,
		Domain:     domain,
		UserID:     userID,
		Namespace:  vector.NamespaceDefault,
	}
	if err := kafka.ProduceIngestTask(task); err != nil {
		return nil, fmt.Errorf("投递入库任务失败: %w", err)
	}

	return &UploadResultDTO{FileMD5: fileMD5, FileName: fileName, Status: "pending"}, nil
}

// ListMine 获取用户自己上传的文档列表。
func (s *documentService) ListMine(userID uint) ([]model.DocumentSummaryDTO, error) {
	docs, err := s.documentRepo.FindByUserID(userID)
	if err != nil {
		return nil, err
	}
	dtos := make([]model.DocumentSummaryDTO, len(docs))
	for i, doc := range docs {
		dtos[i] = model.DocumentSummaryDTO{
			FileMD5:    doc.FileMD5,
			FileName:   doc.FileName,
			Domain:     doc.Domain,
			Status:     doc.Status,
			ChunkCount: doc.ChunkCount,
			CreatedAt:  doc.CreatedAt.Format(time.DateTime),
		}
	}
	return dtos, nil
}

// GetByFileMD5 获取单个文档记录，并检查访问权限。
func (s *documentService) GetByFileMD5(fileMD5 string, user *model.User) (*model.Document, error) {
	doc, err := s.documentRepo.FindByFileMD5(fileMD5)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("文件不存在")
		}
		return nil, err
	}
	if doc.UserID != 0 && doc.UserID != user.ID && user.Role != "ADMIN" {
		return nil, errors.New("没有权限访问此文件")
	}
	return doc, nil
}

// DeleteDocument 删除一个文档及其全部衍生数据：向量、分块、对象与记录。
func (s *documentService) DeleteDocument(ctx context.Context, fileMD5 string, user *model.User) error {
	doc, err := s.GetByFileMD5(fileMD5, user)
	if err != nil {
		return err
	}
	if doc.UserID != user.ID && user.Role != "ADMIN" {
		return errors.New("没有权限删除此文件")
	}

	log.Infof("[Document] 删除文档及衍生数据, FileMD5: %s", fileMD5)
	if err := s.vectorStore.DeleteByFileMD5(ctx, vector.NamespaceDefault, fileMD5); err != nil {
		log.Warnf("[Document] 删除向量失败 (file_md5=%s): %v", fileMD5, err)
	}
	if err := s.chunkRepo.DeleteByFileMD5(fileMD5); err != nil {
		log.Warnf("[Document] 删除分块记录失败 (file_md5=%s): %v", fileMD5, err)
	}

	objectName := fmt.Sprintf("documents/%d/%s", doc.UserID, doc.FileName)
	if err := storage.MinioClient.RemoveObject(ctx, s.minioCfg.BucketName, objectName, minio.RemoveObjectOptions{}); err != nil {
		log.Warnf("[Document] 删除对象失败 (object=%s): %v", objectName, err)
	}

	return s.documentRepo.DeleteByFileMD5(fileMD5)
}

// GenerateDownloadURL 生成文件的临时下载链接，有效期为1小时。
func (s *documentService) GenerateDownloadURL(ctx context.Context, fileMD5 string, user *model.User) (*DownloadInfoDTO, error) {
	doc, err := s.GetByFileMD5(fileMD5, user)
	if err != nil {
		return nil, err
	}

	objectName := fmt.Sprintf("documents/%d/%s", doc.UserID, doc.FileName)
	presignedURL, err := storage.MinioClient.PresignedGetObject(ctx, s.minioCfg.BucketName, objectName, time.Hour, url.Values{})
	if err != nil {
		return nil, err
	}

	return &DownloadInfoDTO{
		FileName:    doc.FileName,
		DownloadURL: presignedURL.String(),
		FileSize:    doc.TotalSize,
	}, nil
}

// Stats 返回向量库统计信息。
func (s *documentService) Stats(ctx context.Context) (model.VectorStatsDTO, error) {
	return s.vectorStore.Stats(ctx)
}

// ListDomains 返回可用的领域列表，数据库中已有的领域与预置领域取并集。
func (s *documentService) ListDomains() ([]string, error) {
	preset := []string{"travel", "real_estate", "market_research", "general"}
	stored, err := s.documentRepo.ListDomains()
	if err != nil {
		return preset, nil
	}
	seen := make(map[string]bool, len(preset))
	for _, d := range preset {
		seen[d] = true
	}
	result := append([]string{}, preset...)
	for _, d := range stored {
		if d != "" && !seen[d] {
			seen[d] = true
			result = append(result, d)
		}
	}
	return result, nil
}
