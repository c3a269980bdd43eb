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

func TestFactValidateStageOneFailure(t *testing.T) {
	client := &fakeLLM{respond: func(string, llm.CompletionOptions) (string, error) {
		return "", errors.New("boom")
	}}
	svc := NewValidationService(client)

	result := svc.FactValidate(context.Background(), "doc", "query")

	assert.Equal(t, "Error extracting facts: boom", result.ExtractedFacts)
	assert.Equal(t, "Unable to process request", result.Answer)
	assert.Equal(t, 0.0, result.ValidationScore)
	assert.False(t, result.Reliable)
	assert.Equal(t, 1, client.callCount(), "阶段一失败后不应再发起阶段二调用")
}

func TestFactValidateStageTwoFailure(t *testing.T) {
	client := &fakeLLM{respond: func(prompt string, _ llm.CompletionOptions) (string, error) {
		if strings.Contains(prompt, "Extract ONLY the facts") {
			return "- The tower opened in 1889", nil
		}
		return "", errors.New("boom")
	}}
	svc := NewValidationService(client)

	result := svc.FactValidate(context.Background(), "doc", "query")

	assert.Equal(t, "- The tower opened in 1889", result.ExtractedFacts)
	assert.Equal(t, "Error generating answer: boom", result.Answer)
	assert.Equal(t, 0.0, result.ValidationScore)
	assert.False(t, result.Reliable)
}

func TestFactValidateCrossValidatesAgainstOriginalDocument(t *testing.T) {
	document := "The quarterly revenue grew by twelve percent in the retail segment. Margins stayed flat."
	supportedAnswer := "The quarterly revenue grew by twelve percent in the retail segment."

	client := &fakeLLM{respond: func(prompt string, _ llm.CompletionOptions) (string, error) {
		if strings.Contains(prompt, "Extract ONLY the facts") {
			return "- revenue grew twelve percent", nil
		}
		return supportedAnswer, nil
	}}
	svc := NewValidationService(client)

	result := svc.FactValidate(context.Background(), document, "how did revenue develop")

	assert.Equal(t, 1.0, result.ValidationScore)
	assert.True(t, result.Reliable)
}

func TestFactValidateUnsupportedAnswerIsUnreliable(t *testing.T) {
	document := "The quarterly revenue grew by twelve percent in the retail segment."

	client := &fakeLLM{respond: func(prompt string, _ llm.CompletionOptions) (string, error) {
		if strings.Contains(prompt, "Extract ONLY the facts") {
			return "- some fact", nil
		}
		return "Wheat exports to the antarctic collapsed dramatically last winter.", nil
	}}
	svc := NewValidationService(client)

	result := svc.FactValidate(context.Background(), document, "q")

	assert.Equal(t, 0.0, result.ValidationScore)
	assert.False(t, result.Reliable)
}

func TestFactValidateStageOptions(t *testing.T) {
	client := &fakeLLM{respond: func(string, llm.CompletionOptions) (string, error) {
		return "text", nil
	}}
	svc := NewValidationService(client)

	svc.FactValidate(context.Background(), "doc", "q")

	require.Equal(t, 2, client.callCount())
	stage1, stage2 := client.options[0], client.options[1]
	assert.Equal(t, llm.ModelPrimary, stage1.Model)
	assert.Equal(t, 500, stage1.MaxTokens)
	assert.Equal(t, 0.05, stage1.Temperature)
	assert.Equal(t, llm.ModelPrimary, stage2.Model)
	assert.Equal(t, 400, stage2.MaxTokens)
	assert.Equal(t, 0.1, stage2.Temperature)
}

func TestCrossValidateIgnoresShortFragments(t *testing.T) {
	// 没有一个句子超过 10 个字符, 得分为 0 而不是除零。
	assert.Equal(t, 0.0, crossValidate("Ok. Yes. Fine.", "some document text"))
}

func TestAdversarialValidateScoring(t *testing.T) {
	cases := []struct {
		name         string
		response     string
		wantCount    int
		wantScore    float64
		wantReliable bool
	}{
		{"no problems", "None", 0, 1.0, true},
		{"none with trailing text", "none found\n\nNone.", 0, 1.0, true},
		{"single problem", "- the answer invents a date", 1, 0.8, true},
		{"two problems", "- wrong year\n- unsupported claim", 2, 0.6, false},
		{"score floors at zero", "- a\n- b\n- c\n- d\n- e\n- f", 6, 0.0, false},
		{"blank lines skipped", "- wrong year\n\n\n- unsupported claim\n", 2, 0.6, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := &fakeLLM{respond: func(string, llm.CompletionOptions) (string, error) {
				return tc.response, nil
			}}
			svc := NewValidationService(client)

			result, err := svc.AdversarialValidate(context.Background(), "doc", "q", "answer")
			require.NoError(t, err)
			assert.Equal(t, tc.wantCount, result.ProblemCount)
			assert.InDelta(t, tc.wantScore, result.ReliabilityScore, 1e-9)
			assert.Equal(t, tc.wantReliable, result.IsReliable)
			assert.Equal(t, tc.response, result.ProblemsFound)
		})
	}
}

func TestAdversarialValidateUsesVerificationModel(t *testing.T) {
	client := &fakeLLM{respond: func(string, llm.CompletionOptions) (string, error) {
		return "None", nil
	}}
	svc := NewValidationService(client)

	_, err := svc.AdversarialValidate(context.Background(), "doc", "q", "answer")
	require.NoError(t, err)

	require.Equal(t, 1, client.callCount())
	opts := client.options[0]
	assert.Equal(t, llm.ModelVerification, opts.Model)
	assert.Equal(t, 400, opts.MaxTokens)
	assert.Equal(t, 0.2, opts.Temperature)
}

func TestAdversarialValidatePropagatesError(t *testing.T) {
	client := &fakeLLM{respond: func(string, llm.CompletionOptions) (string, error) {
		return "", errors.New("provider down")
	}}
	svc := NewValidationService(client)

	_, err := svc.AdversarialValidate(context.Background(), "doc", "q", "answer")
	assert.Error(t, err)
}
