package service

import (
	"context"
	"errors"
	"testing"

	"doc-insight-go/pkg/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractStructuredParsesWrappedJSON(t *testing.T) {
	document := "The property at Baker Street sold for 450000 in march."
	client := &fakeLLM{respond: func(string, llm.CompletionOptions) (string, error) {
		return "Here is the extracted data:\n{\"street\": \"Baker Street\", \"price\": 450000}\nLet me know if you need more.", nil
	}}
	svc := NewExtractionService(client)

	result := svc.ExtractStructured(context.Background(), document, map[string]interface{}{
		"street": "string", "price": "number",
	})

	require.True(t, result.Valid)
	assert.Equal(t, "Baker Street", result.Data["street"])
	assert.Equal(t, float64(450000), result.Data["price"])
	assert.Equal(t, true, result.Validated["street"])
	assert.Equal(t, true, result.Validated["price"])
}

func TestExtractStructuredFlagsUnsupportedValues(t *testing.T) {
	document := "The property at Baker Street sold in march."
	client := &fakeLLM{respond: func(string, llm.CompletionOptions) (string, error) {
		return "{\"street\": \"Baker Street\", \"price\": 999999, \"agent\": null}", nil
	}}
	svc := NewExtractionService(client)

	result := svc.ExtractStructured(context.Background(), document, map[string]interface{}{})

	require.True(t, result.Valid)
	assert.Equal(t, true, result.Validated["street"])
	assert.Equal(t, false, result.Validated["price"], "原文中不存在的数字标记为不支持")
	assert.Equal(t, true, result.Validated["agent"], "null 表示未找到, 视为有效")
}

func TestExtractStructuredValidatesNestedObjects(t *testing.T) {
	document := "Contact Alice Smith by phone."
	client := &fakeLLM{respond: func(string, llm.CompletionOptions) (string, error) {
		return "{\"contact\": {\"name\": \"Alice Smith\", \"email\": \"alice@example.com\"}}", nil
	}}
	svc := NewExtractionService(client)

	result := svc.ExtractStructured(context.Background(), document, map[string]interface{}{})

	require.True(t, result.Valid)
	nested, ok := result.Validated["contact"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, true, nested["name"])
	assert.Equal(t, false, nested["email"])
}

func TestExtractStructuredInvalidJSON(t *testing.T) {
	client := &fakeLLM{respond: func(string, llm.CompletionOptions) (string, error) {
		return "I could not produce structured output for this document.", nil
	}}
	svc := NewExtractionService(client)

	result := svc.ExtractStructured(context.Background(), "doc", map[string]interface{}{})

	assert.False(t, result.Valid)
	assert.Contains(t, result.Error, "Invalid JSON generated:")
}

func TestExtractStructuredProviderFailure(t *testing.T) {
	client := &fakeLLM{respond: func(string, llm.CompletionOptions) (string, error) {
		return "", errors.New("provider down")
	}}
	svc := NewExtractionService(client)

	result := svc.ExtractStructured(context.Background(), "doc", map[string]interface{}{})

	assert.False(t, result.Valid)
	assert.Contains(t, result.Error, "Error processing response:")
}

func TestExtractStructuredRequestOptions(t *testing.T) {
	client := &fakeLLM{respond: func(string, llm.CompletionOptions) (string, error) {
		return "{}", nil
	}}
	svc := NewExtractionService(client)

	svc.ExtractStructured(context.Background(), "doc", map[string]interface{}{"a": "string"})

	require.Equal(t, 1, client.callCount())
	opts := client.options[0]
	assert.Equal(t, llm.ModelPrimary, opts.Model)
	assert.Equal(t, 800, opts.MaxTokens)
	assert.Equal(t, 0.0, opts.Temperature)
	assert.Contains(t, client.prompts[0], "\"a\":\"string\"")
}

func TestFormatJSONNumber(t *testing.T) {
	assert.Equal(t, "450000", formatJSONNumber(450000))
	assert.Equal(t, "3.5", formatJSONNumber(3.5))
	assert.Equal(t, "0", formatJSONNumber(0))
}
