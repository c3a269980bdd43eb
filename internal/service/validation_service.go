package service

import (
	"context"
	"fmt"
	"strings"

	"doc-insight-go/internal/model"
	"doc-insight-go/internal/textmatch"
	"doc-insight-go/pkg/llm"
	"doc-insight-go/pkg/log"
)

const (
	factExtractionPrompt = `Extract ONLY the facts from this document that relate to the question.
List each fact as a separate bullet point with the exact quote.

Document:
%s

Question: %s

Extracted Facts (with quotes):`

	factAnswerPrompt = `Using ONLY these extracted facts, answer the question.
Do not add any information not in the facts below.

Extracted Facts:
%s

Question: %s

Answer (reference fact numbers):`

	adversarialPrompt = `You are a critical fact-checker. Your job is to find ANY errors, hallucinations, or unsupported claims in this answer.

Document:
%s

Question: %s

Answer to check:
%s

List EVERY problem you find:
- Incorrect facts
- Information not in document
- Misinterpretations
- Unsupported claims

Problems found:`
)

// 交叉校验：答案句子对照原文的支持率超过该阈值才视为可靠。
const crossValidationThreshold = 0.7

// 批判式校验：每发现一个问题扣 0.2 分，问题数达到 2 即判定不可靠。
const adversarialPenalty = 0.2

// ValidationService 提供两段式事实校验与批判式校验。
type ValidationService interface {
	// FactValidate 先抽取事实再基于事实作答，最后把答案对照原文交叉校验。
	FactValidate(ctx context.Context, document, query string) model.FactValidation
	// AdversarialValidate 让校验模型以挑错者的姿态审查答案。
	AdversarialValidate(ctx context.Context, document, query, answer string) (model.ValidationResult, error)
}

type validationService struct {
	llmClient llm.Client
}

// NewValidationService 创建一个新的 ValidationService 实例。
func NewValidationService(llmClient llm.Client) ValidationService {
	return &validationService{llmClient: llmClient}
}

// FactValidate 执行两段式事实校验。
// 任一阶段失败都返回保守的不可靠结果，而不是向上抛错。
func (s *validationService) FactValidate(ctx context.Context, document, query string) model.FactValidation {
	// 阶段一：从原文抽取相关事实
	log.Info("[FactValidate] 阶段一: 抽取相关事实")
	extractedFacts, err := s.llmClient.Complete(ctx,
		fmt.Sprintf(factExtractionPrompt, document, query),
		llm.CompletionOptions{Model: llm.ModelPrimary, MaxTokens: 500, Temperature: 0.05})
	if err != nil {
		log.Warnf("[FactValidate] 事实抽取失败: %v", err)
		return model.FactValidation{
			ExtractedFacts:  fmt.Sprintf("Error extracting facts: %s", err.Error()),
			Answer:          "Unable to process request",
			ValidationScore: 0.0,
			Reliable:        false,
		}
	}

	// 阶段二：仅基于抽取出的事实作答
	log.Info("[FactValidate] 阶段二: 基于抽取事实作答")
	answer, err := s.llmClient.Complete(ctx,
		fmt.Sprintf(factAnswerPrompt, extractedFacts, query),
		llm.CompletionOptions{Model: llm.ModelPrimary, MaxTokens: 400, Temperature: 0.1})
	if err != nil {
		log.Warnf("[FactValidate] 基于事实作答失败: %v", err)
		return model.FactValidation{
			ExtractedFacts:  extractedFacts,
			Answer:          fmt.Sprintf("Error generating answer: %s", err.Error()),
			ValidationScore: 0.0,
			Reliable:        false,
		}
	}

	// 阶段三：答案对照原始文档（而非抽取的事实）交叉校验
	score := crossValidate(answer, document)
	log.Infof("[FactValidate] 阶段三: 交叉校验得分 %.2f", score)

	return model.FactValidation{
		ExtractedFacts:  extractedFacts,
		Answer:          answer,
		ValidationScore: score,
		Reliable:        score > crossValidationThreshold,
	}
}

// crossValidate 计算答案中有多大比例的句子能在原文中找到支持。
func crossValidate(answer, document string) float64 {
	sentences := splitOnTerminators(answer)
	supported := 0
	total := 0
	for _, sentence := range sentences {
		if len(strings.TrimSpace(sentence)) <= 10 {
			continue
		}
		total++
		if textmatch.Supported(sentence, document) {
			supported++
		}
	}
	if total == 0 {
		total = 1
	}
	return float64(supported) / float64(total)
}

// AdversarialValidate 让校验模型审查答案并统计发现的问题数。
func (s *validationService) AdversarialValidate(ctx context.Context, document, query, answer string) (model.ValidationResult, error) {
	log.Info("[Adversarial] 开始批判式校验")
	problems, err := s.llmClient.Complete(ctx,
		fmt.Sprintf(adversarialPrompt, document, query, answer),
		llm.CompletionOptions{Model: llm.ModelVerification, MaxTokens: 400, Temperature: 0.2})
	if err != nil {
		return model.ValidationResult{}, err
	}

	// 以 "none" 开头的行表示未发现问题，不计数
	problemCount := 0
	for _, line := range strings.Split(problems, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(strings.ToLower(line), "none") {
			continue
		}
		problemCount++
	}
	log.Infof("[Adversarial] 校验完成, 发现问题数: %d", problemCount)

	score := 1.0 - float64(problemCount)*adversarialPenalty
	if score < 0 {
		score = 0
	}
	return model.ValidationResult{
		ProblemsFound:    problems,
		ProblemCount:     problemCount,
		ReliabilityScore: score,
		IsReliable:       problemCount < 2,
	}, nil
}
