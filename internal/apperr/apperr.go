// Package apperr 定义了核心流水线的错误分类。
//
// InputError 在任何外部调用之前拒绝非法输入；ProviderError 表示外部协作方
// （Embedding/LLM/向量库/搜索）调用失败；ParseError 表示模型响应无法解析为
// 预期的结构化形态，原始文本随错误一并携带，便于诊断。
package apperr

import (
	"errors"
	"fmt"
)

// ErrInput 是所有输入校验错误的哨兵，用 errors.Is 判定。
var ErrInput = errors.New("invalid input")

// NewInputError 构造一个带说明的输入错误。
func NewInputError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInput, fmt.Sprintf(format, args...))
}

// ProviderError 表示一次外部协作方调用失败（超时、非 2xx、响应畸形）。
type ProviderError struct {
	Provider string // 协作方名称，如 "llm"、"embedding"、"vector"
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s provider call failed: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// NewProviderError 包装一次外部调用失败。
func NewProviderError(provider string, err error) error {
	return &ProviderError{Provider: provider, Err: err}
}

// IsProviderError 判断 err 链上是否存在 ProviderError。
func IsProviderError(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}

// ParseError 表示模型输出未能解析为预期结构，Raw 保留原始文本。
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse model response: %v (raw: %.200s)", e.Err, e.Raw)
}

func (e *ParseError) Unwrap() error { return e.Err }

// NewParseError 构造一个携带原始文本的解析错误。
func NewParseError(raw string, err error) error {
	return &ParseError{Raw: raw, Err: err}
}
