package service

import (
	"context"
	"strings"
	"sync"

	"doc-insight-go/internal/model"
	"doc-insight-go/internal/textmatch"
	"doc-insight-go/pkg/llm"
	"doc-insight-go/pkg/log"
)

// 三个措辞各异的提示词模板：严格引用、分步推理、否定指令。
// 多样化的提问角度降低了所有轮次犯同一个错误的概率。
var ensembleTemplates = []string{
	`You are a precise document analyzer. Extract information following these STRICT rules:

1. Quote EXACTLY from the document - no paraphrasing
2. If unsure, state "Uncertain" and explain why
3. Never infer beyond what's explicitly written

Document:
{document}

Question: {query}

Provide:
- Direct Answer: [answer with exact quotes in brackets]
- Evidence Quotes: [list all relevant quotes]
- Certainty: [Certain/Likely/Uncertain]`,

	`Analyze this document step-by-step:

Document:
{document}

Question: {query}

Think through this:
1. What facts in the document relate to this question?
2. What do these facts directly state?
3. What is my answer based ONLY on these facts?

Answer:`,

	`Answer the question using the document. CRITICAL RULES:

DO NOT add information not in the document
DO NOT make assumptions
DO NOT paraphrase - use exact quotes
DO cite specific text
DO express uncertainty when appropriate

Document:
{document}

Question: {query}

Response:`,
}

// 每轮使用不同的采样温度以增加多样性。
var ensembleTemperatures = []float64{0.05, 0.25, 0.15}

const ensembleMaxTokens = 600

// EnsembleService 通过多轮独立提问和共识投票生成抗幻觉的回答。
type EnsembleService interface {
	Extract(ctx context.Context, document, query string, numPasses int) model.EnsembleResult
}

type ensembleService struct {
	llmClient llm.Client
}

// NewEnsembleService 创建一个新的 EnsembleService 实例。
func NewEnsembleService(llmClient llm.Client) EnsembleService {
	return &ensembleService{llmClient: llmClient}
}

// Extract 并发执行 numPasses 轮提问并聚合结果。
// 单轮失败不中断其余轮次；全部失败时返回保守的兜底结果。
func (s *ensembleService) Extract(ctx context.Context, document, query string, numPasses int) model.EnsembleResult {
	if numPasses <= 0 || numPasses > len(ensembleTemplates) {
		numPasses = len(ensembleTemplates)
	}

	log.Infof("[Ensemble] 步骤1: 开始 %d 轮独立提问", numPasses)
	outcomes := make([]string, numPasses)
	failed := make([]bool, numPasses)
	var wg sync.WaitGroup
	for i := 0; i < numPasses; i++ {
		wg.Add(1)
		go func(pass int) {
			defer wg.Done()
			prompt := strings.NewReplacer(
				"{document}", document,
				"{query}", query,
			).Replace(ensembleTemplates[pass])

			// 第一轮使用主模型，其余轮次使用校验模型
			sel := llm.ModelPrimary
			if pass > 0 {
				sel = llm.ModelVerification
			}
			text, err := s.llmClient.Complete(ctx, prompt, llm.CompletionOptions{
				Model:       sel,
				MaxTokens:   ensembleMaxTokens,
				Temperature: ensembleTemperatures[pass],
			})
			if err != nil {
				log.Warnf("[Ensemble] 第 %d 轮提问失败: %v", pass, err)
				failed[pass] = true
				return
			}
			outcomes[pass] = text
		}(i)
	}
	wg.Wait()

	// 保持轮次顺序收集成功的响应
	var responses []string
	for i := 0; i < numPasses; i++ {
		if !failed[i] {
			responses = append(responses, outcomes[i])
		}
	}
	log.Infof("[Ensemble] 步骤1: %d/%d 轮提问成功", len(responses), numPasses)

	return s.aggregate(responses, document)
}

// aggregate 通过声明投票与文档校验聚合多轮响应。
func (s *ensembleService) aggregate(responses []string, document string) model.EnsembleResult {
	if len(responses) == 0 {
		return model.EnsembleResult{
			ConsensusAnswer: "Unable to generate response",
			Confidence:      0.0,
			AgreementScore:  0.0,
			AllResponses:    []string{},
			VerifiedClaims:  []string{},
		}
	}

	// 2. 从每轮响应中抽取事实性声明
	var allClaims []string
	for _, resp := range responses {
		allClaims = append(allClaims, extractClaims(resp)...)
	}
	log.Infof("[Ensemble] 步骤2: 共抽取 %d 条声明", len(allClaims))

	// 3. 共识投票：出现在至少两轮中的声明
	claimCounts := make(map[string]int)
	var claimOrder []string
	for _, claim := range allClaims {
		if claimCounts[claim] == 0 {
			claimOrder = append(claimOrder, claim)
		}
		claimCounts[claim]++
	}
	var consensusClaims []string
	for _, claim := range claimOrder {
		if claimCounts[claim] >= 2 {
			consensusClaims = append(consensusClaims, claim)
		}
	}
	log.Infof("[Ensemble] 步骤3: %d 条声明达成共识", len(consensusClaims))

	// 4. 逐条对照原文校验共识声明
	verifiedClaims := []string{}
	for _, claim := range consensusClaims {
		if textmatch.Supported(claim, document) {
			verifiedClaims = append(verifiedClaims, claim)
		}
	}
	log.Infof("[Ensemble] 步骤4: %d 条共识声明通过原文校验", len(verifiedClaims))

	consensusAnswer := responses[0]
	if len(verifiedClaims) > 0 {
		consensusAnswer = strings.Join(verifiedClaims, " ")
	}

	confidence := 0.5
	if len(consensusClaims) > 0 {
		confidence = float64(len(verifiedClaims)) / float64(max(len(consensusClaims), 1))
	}
	agreement := 0.0
	if len(allClaims) > 0 {
		agreement = float64(len(consensusClaims)) / float64(max(len(allClaims), 1))
	}

	return model.EnsembleResult{
		ConsensusAnswer: consensusAnswer,
		Confidence:      confidence,
		AgreementScore:  agreement,
		AllResponses:    responses,
		VerifiedClaims:  verifiedClaims,
	}
}

// extractClaims 按句子边界切分文本并过滤掉元话语，保留实质性声明。
func extractClaims(text string) []string {
	sentences := splitOnTerminators(text)
	var claims []string
	for _, s := range sentences {
		s = strings.TrimSpace(s)
		if len(s) <= 20 {
			continue
		}
		lower := strings.ToLower(s)
		if strings.HasPrefix(lower, "answer:") ||
			strings.HasPrefix(lower, "response:") ||
			strings.HasPrefix(lower, "note:") ||
			strings.HasPrefix(lower, "certainty:") ||
			strings.HasPrefix(lower, "evidence:") {
			continue
		}
		if lower == "certain" || lower == "likely" || lower == "uncertain" {
			continue
		}
		claims = append(claims, s)
	}
	return claims
}

// splitOnTerminators 在 .!? 处切分文本，连续标点视为一个分隔符。
func splitOnTerminators(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?'
	})
}
