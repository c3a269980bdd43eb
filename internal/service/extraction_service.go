package service

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"doc-insight-go/internal/apperr"
	"doc-insight-go/internal/model"
	"doc-insight-go/pkg/llm"
	"doc-insight-go/pkg/log"
)

const structuredExtractionPrompt = `Extract information from the document in STRICT JSON format.
Only include information explicitly stated in the document.
For any field not found, use null.

Required JSON Schema:
%s

Document:
%s

Return ONLY valid JSON, nothing else:`

// jsonObjectPattern 从模型输出中定位首个 JSON 对象，容忍对象前后的额外文本。
var jsonObjectPattern = regexp.MustCompile(`(?s)\{.*\}`)

// ExtractionService 按给定 schema 从文档中抽取结构化数据，并逐字段回查原文。
type ExtractionService interface {
	ExtractStructured(ctx context.Context, document string, schema map[string]interface{}) model.ExtractionResult
}

type extractionService struct {
	llmClient llm.Client
}

// NewExtractionService 创建一个新的 ExtractionService 实例。
func NewExtractionService(llmClient llm.Client) ExtractionService {
	return &extractionService{llmClient: llmClient}
}

// ExtractStructured 发起零温度抽取请求并校验输出。
// 模型输出不是合法 JSON 时返回 Valid=false 的结果，原始文本保留在错误信息里。
func (s *extractionService) ExtractStructured(ctx context.Context, document string, schema map[string]interface{}) model.ExtractionResult {
	schemaBytes, err := json.Marshal(schema)
	if err != nil {
		return model.ExtractionResult{Valid: false, Error: fmt.Sprintf("Error processing response: %s", err.Error())}
	}

	log.Info("[Extraction] 开始结构化抽取")
	responseText, err := s.llmClient.Complete(ctx,
		fmt.Sprintf(structuredExtractionPrompt, string(schemaBytes), document),
		llm.CompletionOptions{Model: llm.ModelPrimary, MaxTokens: 800, Temperature: 0.0})
	if err != nil {
		return model.ExtractionResult{Valid: false, Error: fmt.Sprintf("Error processing response: %s", err.Error())}
	}

	responseText = strings.TrimSpace(responseText)
	if match := jsonObjectPattern.FindString(responseText); match != "" {
		responseText = match
	}

	var data map[string]interface{}
	if err := json.Unmarshal([]byte(responseText), &data); err != nil {
		parseErr := apperr.NewParseError(responseText, err)
		log.Warnf("[Extraction] 模型输出不是合法 JSON: %v", parseErr)
		return model.ExtractionResult{Valid: false, Error: fmt.Sprintf("Invalid JSON generated: %s", err.Error())}
	}

	validated := validateAgainstDocument(data, document)
	log.Infof("[Extraction] 结构化抽取完成, 字段数: %d", len(data))
	return model.ExtractionResult{
		Data:      data,
		Validated: validated,
		Valid:     true,
	}
}

// validateAgainstDocument 逐字段检查抽取值是否在原文中出现，嵌套对象递归校验。
func validateAgainstDocument(data map[string]interface{}, document string) map[string]interface{} {
	docLower := strings.ToLower(document)
	results := make(map[string]interface{}, len(data))
	for key, value := range data {
		if nested, ok := value.(map[string]interface{}); ok {
			results[key] = validateAgainstDocument(nested, document)
			continue
		}
		results[key] = validateValue(value, document, docLower)
	}
	return results
}

func validateValue(value interface{}, document, docLower string) bool {
	switch v := value.(type) {
	case nil:
		return true
	case float64:
		return strings.Contains(document, formatJSONNumber(v))
	case string:
		return strings.Contains(docLower, strings.ToLower(v))
	default:
		return false
	}
}

// formatJSONNumber 还原 JSON 数字的原始书写形式，整数不带小数点。
func formatJSONNumber(v float64) string {
	if v == float64(int64(v)) {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
