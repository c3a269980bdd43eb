package model

// VectorDocument 代表存储在向量库（Elasticsearch）中的文档结构。
// VectorID 在单个命名空间内唯一，由 fileMd5 + chunkIndex 派生，保证重复入库幂等。
type VectorDocument struct {
	VectorID     string            `json:"vector_id"`
	FileMD5      string            `json:"file_md5"`
	Fingerprint  string            `json:"fingerprint"` // 分块文本的内容指纹
	Source       string            `json:"source"`      // 来源文档（文件名或逻辑名称）
	Domain       string            `json:"domain"`
	ChunkIndex   int               `json:"chunk_index"`
	TotalChunks  int               `json:"total_chunks"`
	TextContent  string            `json:"text_content"`
	Vector       []float32         `json:"vector"`
	ModelVersion string            `json:"model_version"`
	UserID       uint              `json:"user_id"`
	Type         string            `json:"type"` // "document" 或 "report"
	Extra        map[string]string `json:"extra,omitempty"`
}

// RetrievalMatch 是一次相似度查询的结果，按请求构造，不持久化。
type RetrievalMatch struct {
	Text           string  `json:"text"`
	SourceDocument string  `json:"source"`
	Domain         string  `json:"domain"`
	Score          float64 `json:"score"`
	UserID         uint    `json:"userId,omitempty"`
	Type           string  `json:"type"`
}
