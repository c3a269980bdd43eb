package service

import (
	"context"
	"os"
	"sync"
	"testing"

	"doc-insight-go/internal/model"
	"doc-insight-go/pkg/llm"
	"doc-insight-go/pkg/log"
	"doc-insight-go/pkg/vector"
)

func TestMain(m *testing.M) {
	log.Init("error", "console", "")
	os.Exit(m.Run())
}

// fakeLLM 按注入的 respond 函数应答，并记录每次调用的提示词与选项。
type fakeLLM struct {
	mu      sync.Mutex
	respond func(prompt string, opts llm.CompletionOptions) (string, error)
	prompts []string
	options []llm.CompletionOptions
}

func (f *fakeLLM) Complete(_ context.Context, prompt string, opts llm.CompletionOptions) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.options = append(f.options, opts)
	respond := f.respond
	f.mu.Unlock()
	if respond == nil {
		return "", nil
	}
	return respond(prompt, opts)
}

func (f *fakeLLM) StreamChatMessages(context.Context, []llm.Message, llm.MessageWriter) error {
	return nil
}

func (f *fakeLLM) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

// fakeEmbedding 返回固定向量或固定错误。
type fakeEmbedding struct {
	vec []float32
	err error
}

func (f *fakeEmbedding) CreateEmbedding(context.Context, string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vec, nil
}

// fakeQuerier 实现 VectorQuerier，按命名空间返回预置结果并记录调用参数。
type queryCall struct {
	namespace string
	topK      int
	filter    vector.Filter
}

type fakeQuerier struct {
	byNamespace map[string][]model.RetrievalMatch
	err         error
	calls       []queryCall
}

func (f *fakeQuerier) Query(_ context.Context, namespace string, _ []float32, topK int, filter *vector.Filter) ([]model.RetrievalMatch, error) {
	call := queryCall{namespace: namespace, topK: topK}
	if filter != nil {
		call.filter = *filter
	}
	f.calls = append(f.calls, call)
	if f.err != nil {
		return nil, f.err
	}
	return f.byNamespace[namespace], nil
}

// fakeRetrieval 实现 RetrievalService，按注入函数应答并记录每次的检索范围。
type fakeRetrieval struct {
	mu      sync.Mutex
	respond func(opts RetrieveOptions) []model.RetrievalMatch
	calls   []RetrieveOptions
}

func (f *fakeRetrieval) Retrieve(_ context.Context, _ string, opts RetrieveOptions) []model.RetrievalMatch {
	f.mu.Lock()
	f.calls = append(f.calls, opts)
	respond := f.respond
	f.mu.Unlock()
	if respond == nil {
		return nil
	}
	return respond(opts)
}

func (f *fakeRetrieval) callOpts() []RetrieveOptions {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]RetrieveOptions, len(f.calls))
	copy(out, f.calls)
	return out
}

// fakeWebSearch 返回预置的搜索结果并记录是否被调用。
type fakeWebSearch struct {
	results []model.WebResult
	called  bool
}

func (f *fakeWebSearch) Search(context.Context, string, []model.RetrievalMatch) []model.WebResult {
	f.called = true
	return f.results
}

// fakeAnswerCache 是 AnswerCacheRepository 的内存实现。
type fakeAnswerCache struct {
	mu      sync.Mutex
	entries map[string]*model.AnalysisResult
}

func newFakeAnswerCache() *fakeAnswerCache {
	return &fakeAnswerCache{entries: make(map[string]*model.AnalysisResult)}
}

func (f *fakeAnswerCache) key(document, query string, passes int) string {
	return document + "|" + query + "|" + string(rune('0'+passes))
}

func (f *fakeAnswerCache) Get(_ context.Context, document, query string, passes int) (*model.AnalysisResult, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	result, ok := f.entries[f.key(document, query, passes)]
	return result, ok
}

func (f *fakeAnswerCache) Set(_ context.Context, document, query string, passes int, result *model.AnalysisResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[f.key(document, query, passes)] = result
	return nil
}
