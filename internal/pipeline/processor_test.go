package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"testing"

	"doc-insight-go/internal/config"
	"doc-insight-go/internal/model"
	"doc-insight-go/pkg/log"
	"doc-insight-go/pkg/tasks"
	"doc-insight-go/pkg/vector"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	log.Init("error", "console", "")
	os.Exit(m.Run())
}

type fakeExtractor struct {
	text string
	err  error
}

func (f *fakeExtractor) ExtractText(io.Reader, string) (string, error) {
	return f.text, f.err
}

type fakeEmbedder struct {
	err   error
	calls int
}

func (f *fakeEmbedder) CreateEmbedding(context.Context, string) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2}, nil
}

type fakeIndexer struct {
	upserted   []model.VectorDocument
	deletedFor []string
	upsertErr  error
}

func (f *fakeIndexer) Upsert(_ context.Context, _ string, docs []model.VectorDocument) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserted = append(f.upserted, docs...)
	return nil
}

func (f *fakeIndexer) DeleteByFileMD5(_ context.Context, _, fileMD5 string) error {
	f.deletedFor = append(f.deletedFor, fileMD5)
	return nil
}

type fakeDocumentRepo struct {
	statuses    map[string]int
	chunkCounts map[string]int
}

func newFakeDocumentRepo() *fakeDocumentRepo {
	return &fakeDocumentRepo{statuses: make(map[string]int), chunkCounts: make(map[string]int)}
}

func (f *fakeDocumentRepo) Create(*model.Document) error                  { return nil }
func (f *fakeDocumentRepo) FindByFileMD5(string) (*model.Document, error) { return nil, nil }
func (f *fakeDocumentRepo) FindByUserID(uint) ([]model.Document, error)   { return nil, nil }
func (f *fakeDocumentRepo) DeleteByFileMD5(string) error                  { return nil }
func (f *fakeDocumentRepo) ListDomains() ([]string, error)                { return nil, nil }

func (f *fakeDocumentRepo) UpdateStatus(fileMD5 string, status, chunkCount int) error {
	f.statuses[fileMD5] = status
	f.chunkCounts[fileMD5] = chunkCount
	return nil
}

type fakeChunkRepo struct {
	created    []model.DocumentChunk
	deletedFor []string
	createErr  error
}

func (f *fakeChunkRepo) BatchCreate(chunks []model.DocumentChunk) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, chunks...)
	return nil
}

func (f *fakeChunkRepo) FindByFileMD5(string) ([]model.DocumentChunk, error) { return nil, nil }
func (f *fakeChunkRepo) CountByFileMD5(string) (int64, error)                { return 0, nil }

func (f *fakeChunkRepo) DeleteByFileMD5(fileMD5 string) error {
	f.deletedFor = append(f.deletedFor, fileMD5)
	return nil
}

func ingestDocumentText() string {
	var sb strings.Builder
	for i := 0; i < 30; i++ {
		sb.WriteString(fmt.Sprintf("Ingestion flow sentence number %d belongs in the corpus. ", i))
	}
	return sb.String()
}

func newTestProcessor(extractor *fakeExtractor, embedder *fakeEmbedder, indexer *fakeIndexer, docRepo *fakeDocumentRepo, chunkRepo *fakeChunkRepo) *Processor {
	return &Processor{
		tikaClient:      extractor,
		embeddingClient: embedder,
		vectorStore:     indexer,
		ragCfg:          config.RAGConfig{ChunkSize: 40, ChunkOverlap: 10},
		embeddingCfg:    config.EmbeddingConfig{Model: "test-embedder"},
		documentRepo:    docRepo,
		chunkRepo:       chunkRepo,
		fetchObject: func(context.Context, string) (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader("raw file bytes")), nil
		},
	}
}

func defaultTask() tasks.DocumentIngestTask {
	return tasks.DocumentIngestTask{
		FileMD5:    "abc123",
		FileName:   "report.pdf",
		ObjectName: "documents/7/abc123",
		Domain:     "travel",
		UserID:     7,
	}
}

func TestProcessIngestsDocument(t *testing.T) {
	extractor := &fakeExtractor{text: ingestDocumentText()}
	embedder := &fakeEmbedder{}
	indexer := &fakeIndexer{}
	docRepo := newFakeDocumentRepo()
	chunkRepo := &fakeChunkRepo{}
	p := newTestProcessor(extractor, embedder, indexer, docRepo, chunkRepo)

	err := p.Process(context.Background(), defaultTask())
	require.NoError(t, err)

	// 旧记录先被清理, 支持重新入库
	assert.Equal(t, []string{"abc123"}, chunkRepo.deletedFor)
	assert.Equal(t, []string{"abc123"}, indexer.deletedFor)

	require.NotEmpty(t, chunkRepo.created)
	require.Equal(t, len(chunkRepo.created), len(indexer.upserted))
	assert.Equal(t, len(chunkRepo.created), embedder.calls)

	for i, doc := range indexer.upserted {
		assert.Equal(t, fmt.Sprintf("abc123_%d", i), doc.VectorID)
		assert.Equal(t, i, doc.ChunkIndex)
		assert.Equal(t, len(indexer.upserted), doc.TotalChunks)
		assert.Equal(t, "report.pdf", doc.Source)
		assert.Equal(t, "travel", doc.Domain)
		assert.Equal(t, uint(7), doc.UserID)
		assert.Equal(t, "document", doc.Type)
		assert.Equal(t, "test-embedder", doc.ModelVersion)
	}
	for i, row := range chunkRepo.created {
		assert.Equal(t, "abc123", row.FileMD5)
		assert.Equal(t, i, row.ChunkIndex)
		assert.NotEmpty(t, row.Fingerprint)
	}

	assert.Equal(t, model.DocStatusCompleted, docRepo.statuses["abc123"])
	assert.Equal(t, len(chunkRepo.created), docRepo.chunkCounts["abc123"])
}

func TestProcessReportsNamespaceTypesVectors(t *testing.T) {
	extractor := &fakeExtractor{text: ingestDocumentText()}
	indexer := &fakeIndexer{}
	p := newTestProcessor(extractor, &fakeEmbedder{}, indexer, newFakeDocumentRepo(), &fakeChunkRepo{})

	task := defaultTask()
	task.Namespace = vector.NamespaceReports
	task.UserID = 0

	require.NoError(t, p.Process(context.Background(), task))
	require.NotEmpty(t, indexer.upserted)
	for _, doc := range indexer.upserted {
		assert.Equal(t, "report", doc.Type)
	}
}

func TestProcessFetchFailureMarksFailed(t *testing.T) {
	docRepo := newFakeDocumentRepo()
	p := newTestProcessor(&fakeExtractor{}, &fakeEmbedder{}, &fakeIndexer{}, docRepo, &fakeChunkRepo{})
	p.fetchObject = func(context.Context, string) (io.ReadCloser, error) {
		return nil, errors.New("object missing")
	}

	err := p.Process(context.Background(), defaultTask())
	require.Error(t, err)
	assert.Equal(t, model.DocStatusFailed, docRepo.statuses["abc123"])
}

func TestProcessExtractionFailureMarksFailed(t *testing.T) {
	docRepo := newFakeDocumentRepo()
	p := newTestProcessor(&fakeExtractor{err: errors.New("tika down")}, &fakeEmbedder{}, &fakeIndexer{}, docRepo, &fakeChunkRepo{})

	err := p.Process(context.Background(), defaultTask())
	require.Error(t, err)
	assert.Equal(t, model.DocStatusFailed, docRepo.statuses["abc123"])
}

func TestProcessEmptyTextMarksFailed(t *testing.T) {
	docRepo := newFakeDocumentRepo()
	p := newTestProcessor(&fakeExtractor{text: ""}, &fakeEmbedder{}, &fakeIndexer{}, docRepo, &fakeChunkRepo{})

	err := p.Process(context.Background(), defaultTask())
	require.Error(t, err)
	assert.Equal(t, model.DocStatusFailed, docRepo.statuses["abc123"])
}

func TestProcessEmbeddingFailureMarksFailed(t *testing.T) {
	docRepo := newFakeDocumentRepo()
	chunkRepo := &fakeChunkRepo{}
	p := newTestProcessor(&fakeExtractor{text: ingestDocumentText()}, &fakeEmbedder{err: errors.New("embed down")}, &fakeIndexer{}, docRepo, chunkRepo)

	err := p.Process(context.Background(), defaultTask())
	require.Error(t, err)
	assert.Equal(t, model.DocStatusFailed, docRepo.statuses["abc123"])
	assert.NotEmpty(t, chunkRepo.created, "分块文本已落库, 失败发生在向量化阶段")
}

func TestProcessBatchCreateFailureMarksFailed(t *testing.T) {
	docRepo := newFakeDocumentRepo()
	chunkRepo := &fakeChunkRepo{createErr: errors.New("mysql down")}
	indexer := &fakeIndexer{}
	p := newTestProcessor(&fakeExtractor{text: ingestDocumentText()}, &fakeEmbedder{}, indexer, docRepo, chunkRepo)

	err := p.Process(context.Background(), defaultTask())
	require.Error(t, err)
	assert.Equal(t, model.DocStatusFailed, docRepo.statuses["abc123"])
	assert.Empty(t, indexer.upserted, "落库失败后不应再写向量库")
}
