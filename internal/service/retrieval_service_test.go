package service

import (
	"context"
	"errors"
	"testing"

	"doc-insight-go/internal/model"
	"doc-insight-go/pkg/vector"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func match(source string, score float64) model.RetrievalMatch {
	return model.RetrievalMatch{Text: "chunk of " + source, SourceDocument: source, Score: score}
}

func TestRetrieveBalancesSources(t *testing.T) {
	// report_a 的得分全面压过 report_b，均衡分配后两个来源仍各占一半。
	store := &fakeQuerier{byNamespace: map[string][]model.RetrievalMatch{
		vector.NamespaceDefault: {
			match("report_a", 0.95), match("report_a", 0.94), match("report_a", 0.93),
			match("report_a", 0.92), match("report_b", 0.80), match("report_b", 0.79),
		},
	}}
	svc := NewRetrievalService(&fakeEmbedding{vec: []float32{0.1}}, store)

	result := svc.Retrieve(context.Background(), "housing demand", RetrieveOptions{TopK: 4})

	require.Len(t, result, 4)
	counts := make(map[string]int)
	for _, m := range result {
		counts[m.SourceDocument]++
	}
	assert.Equal(t, 2, counts["report_a"])
	assert.Equal(t, 2, counts["report_b"])
}

func TestRetrieveLeftoverFilledByScore(t *testing.T) {
	// 三个来源、topK=2：基础配额为 0，全部名额按全局得分补齐。
	store := &fakeQuerier{byNamespace: map[string][]model.RetrievalMatch{
		vector.NamespaceDefault: {
			match("a", 0.9), match("b", 0.8), match("c", 0.7),
		},
	}}
	svc := NewRetrievalService(&fakeEmbedding{vec: []float32{0.1}}, store)

	result := svc.Retrieve(context.Background(), "q", RetrieveOptions{TopK: 2})

	require.Len(t, result, 2)
	assert.Equal(t, "a", result[0].SourceDocument)
	assert.Equal(t, "b", result[1].SourceDocument)
}

func TestRetrieveResultsSortedByScore(t *testing.T) {
	store := &fakeQuerier{byNamespace: map[string][]model.RetrievalMatch{
		vector.NamespaceDefault: {
			match("a", 0.5), match("b", 0.9), match("c", 0.7),
		},
	}}
	svc := NewRetrievalService(&fakeEmbedding{vec: []float32{0.1}}, store)

	result := svc.Retrieve(context.Background(), "q", RetrieveOptions{TopK: 3})

	require.Len(t, result, 3)
	for i := 1; i < len(result); i++ {
		assert.GreaterOrEqual(t, result[i-1].Score, result[i].Score)
	}
}

func TestRetrieveEmbeddingFailureReturnsEmpty(t *testing.T) {
	store := &fakeQuerier{byNamespace: map[string][]model.RetrievalMatch{
		vector.NamespaceDefault: {match("a", 0.9)},
	}}
	svc := NewRetrievalService(&fakeEmbedding{err: errors.New("embedding down")}, store)

	result := svc.Retrieve(context.Background(), "q", RetrieveOptions{TopK: 3})

	assert.Empty(t, result)
	assert.Empty(t, store.calls, "embedding 失败后不应再查询向量库")
}

func TestRetrieveStoreFailureReturnsEmpty(t *testing.T) {
	store := &fakeQuerier{err: errors.New("es unavailable")}
	svc := NewRetrievalService(&fakeEmbedding{vec: []float32{0.1}}, store)

	result := svc.Retrieve(context.Background(), "q", RetrieveOptions{TopK: 3})

	assert.Empty(t, result)
}

func TestRetrieveQueriesBothNamespaces(t *testing.T) {
	store := &fakeQuerier{byNamespace: map[string][]model.RetrievalMatch{
		vector.NamespaceDefault: {match("mine", 0.6)},
		vector.NamespaceReports: {match("shared_report", 0.8)},
	}}
	svc := NewRetrievalService(&fakeEmbedding{vec: []float32{0.1}}, store)

	result := svc.Retrieve(context.Background(), "q", RetrieveOptions{
		Domain:         "travel",
		OwnerID:        42,
		TopK:           5,
		IncludeReports: true,
	})

	require.Len(t, store.calls, 2)
	primary := store.calls[0]
	assert.Equal(t, vector.NamespaceDefault, primary.namespace)
	assert.Equal(t, 10, primary.topK, "主命名空间应超额召回 2*topK")
	assert.Equal(t, "travel", primary.filter.Domain)
	assert.Equal(t, uint(42), primary.filter.UserID)

	reports := store.calls[1]
	assert.Equal(t, vector.NamespaceReports, reports.namespace)
	assert.Equal(t, 5, reports.topK)
	assert.Equal(t, "travel", reports.filter.Domain)
	assert.Zero(t, reports.filter.UserID, "报告为共享资源, 不做归属过滤")

	require.Len(t, result, 2)
	assert.Equal(t, "shared_report", result[0].SourceDocument)
	assert.Equal(t, "mine", result[1].SourceDocument)
}

func TestRetrieveLargeTopKSkipsOverfetch(t *testing.T) {
	store := &fakeQuerier{byNamespace: map[string][]model.RetrievalMatch{}}
	svc := NewRetrievalService(&fakeEmbedding{vec: []float32{0.1}}, store)

	svc.Retrieve(context.Background(), "q", RetrieveOptions{TopK: 20})

	require.Len(t, store.calls, 1)
	assert.Equal(t, 20, store.calls[0].topK)
}

func TestRetrieveReportsFailureIsNonFatal(t *testing.T) {
	// 报告命名空间失败只影响该来源，主命名空间结果照常返回。
	store := &reportFailingQuerier{primary: []model.RetrievalMatch{match("mine", 0.6)}}
	svc := NewRetrievalService(&fakeEmbedding{vec: []float32{0.1}}, store)

	result := svc.Retrieve(context.Background(), "q", RetrieveOptions{TopK: 3, IncludeReports: true})

	require.Len(t, result, 1)
	assert.Equal(t, "mine", result[0].SourceDocument)
}

type reportFailingQuerier struct {
	primary []model.RetrievalMatch
}

func (f *reportFailingQuerier) Query(_ context.Context, namespace string, _ []float32, _ int, _ *vector.Filter) ([]model.RetrievalMatch, error) {
	if namespace == vector.NamespaceReports {
		return nil, errors.New("reports index missing")
	}
	return f.primary, nil
}
