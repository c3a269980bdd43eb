package model

// EnsembleResult 是多路抽取聚合后的结果。
// Confidence = 已验证共识断言 / 共识断言总数；AgreementScore = 共识断言 / 全部断言。
type EnsembleResult struct {
	ConsensusAnswer string   `json:"consensusAnswer"`
	Confidence      float64  `json:"confidence"`
	AgreementScore  float64  `json:"agreementScore"`
	AllResponses    []string `json:"allResponses"`
	VerifiedClaims  []string `json:"verifiedClaims"`
}

// FactValidation 是两段式“先抽取事实再作答”校验的结果。
type FactValidation struct {
	ExtractedFacts  string  `json:"extractedFacts"`
	Answer          string  `json:"answer"`
	ValidationScore float64 `json:"validationScore"`
	Reliable        bool    `json:"reliable"`
}

// ValidationResult 是对抗式校验的结果。
// ReliabilityScore = max(0, 1 - 0.2 * ProblemCount)，IsReliable 当且仅当问题数 < 2。
type ValidationResult struct {
	ProblemsFound    string  `json:"problemsFound"`
	ProblemCount     int     `json:"problemCount"`
	ReliabilityScore float64 `json:"reliabilityScore"`
	IsReliable       bool    `json:"isReliable"`
}

// AnalysisResult 是编排器最终对外返回的结果。
// IsReliable 取对抗校验与事实校验的合取：任一检测器报告问题即标记不可靠。
type AnalysisResult struct {
	Answer           string           `json:"answer"`
	Confidence       float64          `json:"confidence"`
	ReliabilityScore float64          `json:"reliabilityScore"`
	IsReliable       bool             `json:"isReliable"`
	Ensemble         EnsembleResult   `json:"ensemble"`
	FactValidation   FactValidation   `json:"factValidation"`
	Validation       ValidationResult `json:"validation"`
}

// ExtractionResult 是结构化 JSON 抽取的结果，Validated 逐字段标记是否被原文支持。
type ExtractionResult struct {
	Data      map[string]interface{} `json:"data"`
	Validated map[string]interface{} `json:"validated"`
	Valid     bool                   `json:"valid"`
	Error     string                 `json:"error,omitempty"`
}

// WebResult 是一条网页搜索结果。
type WebResult struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	URL     string `json:"url"`
}
