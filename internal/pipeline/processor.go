// Package pipeline 定义了文档入库处理的核心流程。
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"doc-insight-go/internal/chunker"
	"doc-insight-go/internal/config"
	"doc-insight-go/internal/model"
	"doc-insight-go/internal/repository"
	"doc-insight-go/pkg/embedding"
	"doc-insight-go/pkg/log"
	"doc-insight-go/pkg/storage"
	"doc-insight-go/pkg/tasks"
	"doc-insight-go/pkg/vector"

	"github.com/minio/minio-go/v7"
)

// TextExtractor 是处理器对文本提取服务的依赖，*tika.Client 实现了它。
type TextExtractor interface {
	ExtractText(r io.Reader, fileName string) (string, error)
}

// VectorIndexer 是处理器对向量库的依赖，*vector.Store 实现了它。
type VectorIndexer interface {
	Upsert(ctx context.Context, namespace string, docs []model.VectorDocument) error
	DeleteByFileMD5(ctx context.Context, namespace, fileMD5 string) error
}

// Processor 封装了文档入库处理的所有依赖和逻辑。
type Processor struct {
	tikaClient      TextExtractor
	embeddingClient embedding.Client
	vectorStore     VectorIndexer
	minioCfg        config.MinIOConfig
	embeddingCfg    config.EmbeddingConfig
	ragCfg          config.RAGConfig
	documentRepo    repository.DocumentRepository
	chunkRepo       repository.ChunkRepository
	fetchObject     func(ctx context.Context, objectName string) (io.ReadCloser, error)
}

// NewProcessor 创建一个新的 Processor 实例。
func NewProcessor(
	tikaClient TextExtractor,
	embeddingClient embedding.Client,
	vectorStore VectorIndexer,
	minioCfg config.MinIOConfig,
	embeddingCfg config.EmbeddingConfig,
	ragCfg config.RAGConfig,
	documentRepo repository.DocumentRepository,
	chunkRepo repository.ChunkRepository,
) *Processor {
	return &Processor{
		tikaClient:      tikaClient,
		embeddingClient: embeddingClient,
		vectorStore:     vectorStore,
		minioCfg:        minioCfg,
		embeddingCfg:    embeddingCfg,
		ragCfg:          ragCfg,
		documentRepo:    documentRepo,
		chunkRepo:       chunkRepo,
		fetchObject: func(ctx context.Context, objectName string) (io.ReadCloser, error) {
			return storage.MinioClient.GetObject(ctx, minioCfg.BucketName, objectName, minio.GetObjectOptions{})
		},
	}
}

// Process 是单个文档入库任务的主函数。
func (p *Processor) Process(ctx context.Context, task tasks.DocumentIngestTask) error {
	log.Infof("[Processor] 开始处理文档, FileMD5: %s, FileName: %s, UserID: %d", task.FileMD5, task.FileName, task.UserID)

	// 1. 从 MinIO 下载文件
	log.Infof("[Processor] 步骤1: 从MinIO下载文件, Bucket: %s, Object: %s", p.minioCfg.BucketName, task.ObjectName)
	object, err := p.fetchObject(ctx, task.ObjectName)
	if err != nil {
		p.markFailed(task.FileMD5)
		log.Errorf("[Processor] 从MinIO下载文件失败, Object: %s, Error: %v", task.ObjectName, err)
		return fmt.Errorf("从 MinIO 下载文件失败: %w", err)
	}
	defer object.Close()

	buf := new(bytes.Buffer)
	size, err := buf.ReadFrom(object)
	if err != nil {
		p.markFailed(task.FileMD5)
		log.Errorf("[Processor] 从MinIO对象流中读取内容失败, Error: %v", err)
		return fmt.Errorf("读取MinIO对象流失败: %w", err)
	}
	log.Infof("[Processor] 步骤1: 文件下载成功, 大小: %d字节", size)
	if size == 0 {
		p.markFailed(task.FileMD5)
		log.Warnf("[Processor] 文件 '%s' 内容为空, 处理中止", task.FileName)
		return errors.New("文件内容为空")
	}

	// 2. 使用 Tika 提取文本
	log.Info("[Processor] 步骤2: 使用Tika提取文本内容")
	textContent, err := p.tikaClient.ExtractText(bytes.NewReader(buf.Bytes()), task.FileName)
	if err != nil {
		p.markFailed(task.FileMD5)
		log.Errorf("[Processor] 使用Tika提取文本失败, FileName: %s, Error: %v", task.FileName, err)
		return fmt.Errorf("使用 Tika 提取文本失败: %w", err)
	}
	if textContent == "" {
		p.markFailed(task.FileMD5)
		log.Warnf("[Processor] Tika提取的文本内容为空, 处理中止, FileName: %s", task.FileName)
		return errors.New("提取的文本内容为空")
	}
	log.Infof("[Processor] 步骤2: 文本提取成功, 内容长度: %d 字符", utf8.RuneCountInString(textContent))

	// 3. 按句子边界分块
	log.Infof("[Processor] 步骤3: 进行文本分块, chunkSize: %d词, chunkOverlap: %d词", p.ragCfg.ChunkSize, p.ragCfg.ChunkOverlap)
	chunks := chunker.Split(textContent, p.ragCfg.ChunkSize, p.ragCfg.ChunkOverlap)
	log.Infof("[Processor] 步骤3: 文本分块完成, 共生成 %d 个分块", len(chunks))
	if len(chunks) == 0 {
		p.markFailed(task.FileMD5)
		log.Warnf("[Processor] 未生成任何文本分块, 处理中止, FileName: %s", task.FileName)
		return errors.New("未生成任何文本分块")
	}

	// 阶段一：清理旧记录并将分块存入数据库（幂等，支持重新入库）
	log.Info("[Processor] 阶段一: 开始将分块文本存入数据库")
	if err := p.chunkRepo.DeleteByFileMD5(task.FileMD5); err != nil {
		log.Warnf("[Processor] 清理 document_chunks 旧记录失败 (file_md5=%s): %v", task.FileMD5, err)
	}
	if err := p.vectorStore.DeleteByFileMD5(ctx, task.Namespace, task.FileMD5); err != nil {
		log.Warnf("[Processor] 清理向量库旧记录失败 (file_md5=%s): %v", task.FileMD5, err)
	}
	dbChunks := make([]model.DocumentChunk, 0, len(chunks))
	for _, chunk := range chunks {
		dbChunks = append(dbChunks, model.DocumentChunk{
			FileMD5:     task.FileMD5,
			ChunkIndex:  chunk.SequenceIndex,
			Fingerprint: chunk.ID,
			TextContent: chunk.Text,
			WordCount:   chunk.WordCount,
			Domain:      task.Domain,
			UserID:      task.UserID,
		})
	}
	if err := p.chunkRepo.BatchCreate(dbChunks); err != nil {
		p.markFailed(task.FileMD5)
		log.Errorf("[Processor] 阶段一: 批量保存文本分块到数据库失败, Error: %v", err)
		return fmt.Errorf("批量保存文本分块失败: %w", err)
	}
	log.Infof("[Processor] 阶段一: 成功将 %d 个分块存入数据库", len(dbChunks))

	// 阶段二：逐块向量化并索引到向量库
	log.Info("[Processor] 阶段二: 开始遍历分块并进行向量化与索引")
	docType := "document"
	if task.Namespace == vector.NamespaceReports {
		docType = "report"
	}
	for i, chunk := range chunks {
		vec, err := p.embeddingClient.CreateEmbedding(ctx, chunk.Text)
		if err != nil {
			p.markFailed(task.FileMD5)
			log.Errorf("[Processor] 分块 %d 向量化失败, Error: %v", chunk.SequenceIndex, err)
			return fmt.Errorf("块 %d 向量化失败: %w", chunk.SequenceIndex, err)
		}

		vectorDoc := model.VectorDocument{
			VectorID:     fmt.Sprintf("%s_%d", task.FileMD5, chunk.SequenceIndex),
			FileMD5:      task.FileMD5,
			Fingerprint:  chunk.ID,
			Source:       task.FileName,
			Domain:       task.Domain,
			ChunkIndex:   chunk.SequenceIndex,
			TotalChunks:  chunk.TotalChunks,
			TextContent:  chunk.Text,
			Vector:       vec,
			ModelVersion: p.embeddingCfg.Model,
			UserID:       task.UserID,
			Type:         docType,
		}
		if err := p.vectorStore.Upsert(ctx, task.Namespace, []model.VectorDocument{vectorDoc}); err != nil {
			p.markFailed(task.FileMD5)
			log.Errorf("[Processor] 索引分块 %d 到向量库失败, Error: %v", chunk.SequenceIndex, err)
			return fmt.Errorf("索引块 %d 到向量库失败: %w", chunk.SequenceIndex, err)
		}
		log.Infof("[Processor] 分块 %d/%d 向量化并索引成功", i+1, len(chunks))
	}
	log.Info("[Processor] 阶段二: 所有分块处理完毕")

	// 4. 更新文档状态
	if err := p.documentRepo.UpdateStatus(task.FileMD5, model.DocStatusCompleted, len(chunks)); err != nil {
		log.Errorf("[Processor] 更新文档状态失败, FileMD5: %s, Error: %v", task.FileMD5, err)
		return fmt.Errorf("更新文档状态失败: %w", err)
	}

	log.Infof("[Processor] 文档处理成功完成, FileMD5: %s, 分块数: %d", task.FileMD5, len(chunks))
	return nil
}

func (p *Processor) markFailed(fileMD5 string) {
	if err := p.documentRepo.UpdateStatus(fileMD5, model.DocStatusFailed, 0); err != nil {
		log.Warnf("[Processor] 标记文档失败状态时出错, FileMD5: %s, Error: %v", fileMD5, err)
	}
}
