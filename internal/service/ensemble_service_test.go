package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"doc-insight-go/pkg/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsembleAllPassesFailReturnsFallback(t *testing.T) {
	client := &fakeLLM{respond: func(string, llm.CompletionOptions) (string, error) {
		return "", errors.New("provider down")
	}}
	svc := NewEnsembleService(client)

	result := svc.Extract(context.Background(), "some document", "some query", 3)

	assert.Equal(t, "Unable to generate response", result.ConsensusAnswer)
	assert.Equal(t, 0.0, result.Confidence)
	assert.Equal(t, 0.0, result.AgreementScore)
	assert.Empty(t, result.AllResponses)
	assert.Empty(t, result.VerifiedClaims)
	assert.Equal(t, 3, client.callCount())
}

func TestEnsembleConsensusClaimVerifiedAgainstDocument(t *testing.T) {
	document := "The eiffel tower was completed in 1889 in central paris. It attracts millions of visitors."
	shared := "The eiffel tower was completed in 1889 in central paris"

	// 前两轮都给出同一条声明，第三轮完全不同：只有共享声明能达成共识。
	client := &fakeLLM{respond: func(prompt string, _ llm.CompletionOptions) (string, error) {
		switch {
		case strings.Contains(prompt, "STRICT rules"):
			return shared + ". The first pass adds this extra unique sentence here.", nil
		case strings.Contains(prompt, "step-by-step"):
			return shared + ". The second pass adds a different unique sentence here.", nil
		default:
			return "The third pass talks about something else entirely instead.", nil
		}
	}}
	svc := NewEnsembleService(client)

	result := svc.Extract(context.Background(), document, "when was it completed", 3)

	require.Len(t, result.AllResponses, 3)
	require.Len(t, result.VerifiedClaims, 1)
	assert.Equal(t, shared, result.VerifiedClaims[0])
	assert.Equal(t, shared, result.ConsensusAnswer)
	// 1 条共识声明, 1 条通过校验; 5 条声明中 1 条达成共识。
	assert.Equal(t, 1.0, result.Confidence)
	assert.InDelta(t, 0.2, result.AgreementScore, 1e-9)
}

func TestEnsembleConsensusUnsupportedByDocument(t *testing.T) {
	document := "The report only discusses quarterly revenue figures for the retail segment."
	claim := "The moon is made of green cheese according to nobody"

	client := &fakeLLM{respond: func(string, llm.CompletionOptions) (string, error) {
		return claim + ".", nil
	}}
	svc := NewEnsembleService(client)

	result := svc.Extract(context.Background(), document, "q", 3)

	// 声明达成了共识但没通过原文校验：回退到第一轮响应，置信度归零。
	assert.Empty(t, result.VerifiedClaims)
	assert.Equal(t, result.AllResponses[0], result.ConsensusAnswer)
	assert.Equal(t, 0.0, result.Confidence)
}

func TestEnsembleNoConsensusFallsBackToFirstResponse(t *testing.T) {
	client := &fakeLLM{respond: func(prompt string, _ llm.CompletionOptions) (string, error) {
		switch {
		case strings.Contains(prompt, "STRICT rules"):
			return "This sentence only appears in the very first pass.", nil
		case strings.Contains(prompt, "step-by-step"):
			return "A completely different observation from the second pass.", nil
		default:
			return "Yet another unrelated statement from the final pass.", nil
		}
	}}
	svc := NewEnsembleService(client)

	result := svc.Extract(context.Background(), "doc", "q", 3)

	assert.Equal(t, "This sentence only appears in the very first pass.", result.ConsensusAnswer)
	assert.Equal(t, 0.5, result.Confidence, "没有共识时置信度固定为 0.5")
	assert.Equal(t, 0.0, result.AgreementScore)
}

func TestEnsembleSingleFailureDoesNotAbort(t *testing.T) {
	client := &fakeLLM{respond: func(prompt string, _ llm.CompletionOptions) (string, error) {
		if strings.Contains(prompt, "step-by-step") {
			return "", errors.New("timeout")
		}
		return "A perfectly fine response from one of the surviving passes.", nil
	}}
	svc := NewEnsembleService(client)

	result := svc.Extract(context.Background(), "doc", "q", 3)

	assert.Len(t, result.AllResponses, 2)
	assert.Equal(t, 3, client.callCount())
}

func TestEnsembleModelRoutingAndTemperatures(t *testing.T) {
	client := &fakeLLM{respond: func(string, llm.CompletionOptions) (string, error) {
		return "ok", nil
	}}
	svc := NewEnsembleService(client)

	svc.Extract(context.Background(), "doc", "q", 3)

	require.Equal(t, 3, client.callCount())
	// 各轮并发执行, 按温度识别轮次: 第一轮走主模型, 其余走校验模型。
	byTemp := make(map[float64]llm.ModelSelector)
	for _, opts := range client.options {
		byTemp[opts.Temperature] = opts.Model
		assert.Equal(t, 600, opts.MaxTokens)
	}
	assert.Equal(t, llm.ModelPrimary, byTemp[0.05])
	assert.Equal(t, llm.ModelVerification, byTemp[0.25])
	assert.Equal(t, llm.ModelVerification, byTemp[0.15])
}

func TestEnsemblePassCountClamped(t *testing.T) {
	client := &fakeLLM{respond: func(string, llm.CompletionOptions) (string, error) {
		return "ok", nil
	}}
	svc := NewEnsembleService(client)

	svc.Extract(context.Background(), "doc", "q", 99)
	assert.Equal(t, 3, client.callCount(), "轮数超过模板数时收敛到模板数")
}

func TestExtractClaimsFiltersMetaDiscourse(t *testing.T) {
	text := "Answer: the headline answer goes here with enough words. " +
		"Certainty: Certain. " +
		"Certain. " +
		"Short one. " +
		"The revenue grew by twelve percent during the final quarter."
	claims := extractClaims(text)

	require.Len(t, claims, 1)
	assert.Equal(t, "The revenue grew by twelve percent during the final quarter", claims[0])
}

func TestExtractClaimsSplitsOnAllTerminators(t *testing.T) {
	text := "The first substantial claim sentence lives right here! Does the second substantial claim survive a question mark? The third substantial claim ends with a period."
	claims := extractClaims(text)
	assert.Len(t, claims, 3)
}
