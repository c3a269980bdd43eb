package service

import (
	"context"

	"doc-insight-go/internal/apperr"
	"doc-insight-go/internal/model"
	"doc-insight-go/internal/repository"
	"doc-insight-go/pkg/log"
)

// 输入上限，超限的请求在调用任何外部服务之前被拒绝。
const (
	maxDocumentChars = 200000
	maxQueryChars    = 1000
)

// AnalysisService 编排完整的抗幻觉分析流程：
// 多轮共识提问、两段式事实校验、批判式校验，最后对三路结果做裁决。
type AnalysisService interface {
	Analyze(ctx context.Context, document, query string, passes int) (*model.AnalysisResult, error)
}

type analysisService struct {
	ensembleService   EnsembleService
	validationService ValidationService
	cacheRepo         repository.AnswerCacheRepository
}

// NewAnalysisService 创建一个新的 AnalysisService 实例。
func NewAnalysisService(
	ensembleService EnsembleService,
	validationService ValidationService,
	cacheRepo repository.AnswerCacheRepository,
) AnalysisService {
	return &analysisService{
		ensembleService:   ensembleService,
		validationService: validationService,
		cacheRepo:         cacheRepo,
	}
}

// Analyze 执行完整分析流程。输入校验失败返回 InputError，不触发任何模型调用。
func (s *analysisService) Analyze(ctx context.Context, document, query string, passes int) (*model.AnalysisResult, error) {
	// 0. 输入校验
	if document == "" || query == "" {
		return nil, apperr.NewInputError("Document and query required")
	}
	if len(document) > maxDocumentChars {
		return nil, apperr.NewInputError("Document too large (max 200,000 characters)")
	}
	if len(query) > maxQueryChars {
		return nil, apperr.NewInputError("Query too long (max 1,000 characters)")
	}
	if passes <= 0 {
		passes = 3
	}

	// 命中缓存直接返回，不再触发模型调用
	if cached, ok := s.cacheRepo.Get(ctx, document, query, passes); ok {
		log.Info("[Analysis] 命中结果缓存")
		return cached, nil
	}

	// 1. 多轮共识提问
	log.Infof("[Analysis] 步骤1: 多轮共识提问, 轮数: %d", passes)
	ensembleResult := s.ensembleService.Extract(ctx, document, query, passes)

	// 2. 两段式事实校验
	log.Info("[Analysis] 步骤2: 两段式事实校验")
	factResult := s.validationService.FactValidate(ctx, document, query)

	// 3. 对共识答案做批判式校验
	log.Info("[Analysis] 步骤3: 批判式校验共识答案")
	validation, err := s.validationService.AdversarialValidate(ctx, document, query, ensembleResult.ConsensusAnswer)
	if err != nil {
		return nil, err
	}

	// 4. 裁决：批判式校验不通过时回退到更保守的事实校验答案
	finalAnswer := ensembleResult.ConsensusAnswer
	if !validation.IsReliable {
		log.Warnf("[Analysis] 共识答案未通过批判式校验 (问题数: %d), 回退到事实校验答案", validation.ProblemCount)
		finalAnswer = factResult.Answer
	}

	result := &model.AnalysisResult{
		Answer:           finalAnswer,
		Confidence:       ensembleResult.Confidence,
		ReliabilityScore: validation.ReliabilityScore,
		IsReliable:       validation.IsReliable && factResult.Reliable,
		Ensemble:         ensembleResult,
		FactValidation:   factResult,
		Validation:       validation,
	}

	if err := s.cacheRepo.Set(ctx, document, query, passes, result); err != nil {
		log.Warnf("[Analysis] 写入结果缓存失败: %v", err)
	}
	log.Infof("[Analysis] 分析完成, 可靠性: %v, 置信度: %.2f", result.IsReliable, result.Confidence)
	return result, nil
}
