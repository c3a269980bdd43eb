package model

// QueryRequest 定义了 /query 与 /query/dual 的请求体。
type QueryRequest struct {
	Query          string `json:"query" binding:"required"`
	Domain         string `json:"domain"`
	TopK           int    `json:"topK"`
	DetectDomain   bool   `json:"detectDomain"`
	DetectIntent   bool   `json:"detectIntent"`
	IncludeReports *bool  `json:"includeReports"`
	IncludeWeb     bool   `json:"includeWeb"`
}

// QueryResponse 定义了 /query 的响应体。
type QueryResponse struct {
	Answer         string           `json:"answer"`
	Domain         string           `json:"domain,omitempty"`
	Intent         string           `json:"intent,omitempty"`
	Sources        []RetrievalMatch `json:"sources"`
	WebResults     []WebResult      `json:"webResults,omitempty"`
	ProcessingTime float64          `json:"processingTime"`
}

// DualQueryResponse 定义了 /query/dual 的响应体：文档答案 + 通识答案。
type DualQueryResponse struct {
	Query              string           `json:"query"`
	Domain             string           `json:"domain,omitempty"`
	Intent             string           `json:"intent,omitempty"`
	DocumentAnswer     string           `json:"documentAnswer"`
	GeneralAnswer      string           `json:"generalAnswer"`
	UserDocumentsFound int              `json:"userDocumentsFound"`
	GeneralSourcesFound int             `json:"generalSourcesFound"`
	UserSources        []RetrievalMatch `json:"userSources"`
	GeneralSources     []RetrievalMatch `json:"generalSources"`
	WebResults         []WebResult      `json:"webResults,omitempty"`
	HasUserDocuments   bool             `json:"hasUserDocuments"`
	ProcessingTime     float64          `json:"processingTime"`
}

// AnalyzeRequest 定义了 /analyze 的请求体：对给定文档与问题执行完整的防幻觉流水线。
type AnalyzeRequest struct {
	Document string `json:"document" binding:"required"`
	Query    string `json:"query" binding:"required"`
	Passes   int    `json:"passes"`
}

// ValidateRequest 定义了 /analyze/validate 的请求体。
type ValidateRequest struct {
	Document string `json:"document" binding:"required"`
	Query    string `json:"query" binding:"required"`
	Answer   string `json:"answer" binding:"required"`
}

// ExtractRequest 定义了 /analyze/extract 的请求体。
type ExtractRequest struct {
	Document string                 `json:"document" binding:"required"`
	Schema   map[string]interface{} `json:"schema" binding:"required"`
}

// DocumentSummaryDTO 汇总一个用户文档的入库情况。
type DocumentSummaryDTO struct {
	FileMD5    string `json:"fileMd5"`
	FileName   string `json:"fileName"`
	Domain     string `json:"domain"`
	Status     int    `json:"status"`
	ChunkCount int    `json:"chunkCount"`
	CreatedAt  string `json:"createdAt"`
}

// VectorStatsDTO 汇总向量库的统计信息。
type VectorStatsDTO struct {
	TotalVectors int64 `json:"totalVectors"`
	Dimension    int   `json:"dimension"`
}
