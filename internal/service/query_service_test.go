package service

import (
	"context"
	"testing"

	"doc-insight-go/internal/model"
	"doc-insight-go/pkg/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectDomain(t *testing.T) {
	cases := []struct {
		query string
		want  string
	}{
		{"what is the average rent for an apartment with a mortgage", "real_estate"},
		{"best flight and hotel deals for a vacation in rome", "travel"},
		{"hello there", "travel"},
		{"property prices near the main tourist destination", "travel"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, DetectDomain(tc.query), "query: %s", tc.query)
	}
}

func TestDetectDomainTieFallsBackToTravel(t *testing.T) {
	// 每边各命中一个关键词, 平局回退到 travel。
	assert.Equal(t, "travel", DetectDomain("land visa"))
}

func TestDetectIntent(t *testing.T) {
	cases := []struct {
		query string
		want  string
	}{
		{"what are the visa requirements for japan", "visa_info"},
		{"find me a good hotel in rome", "hotel_search"},
		{"book a flight to tokyo", "flight_search"},
		{"how is the weather in bali in june", "weather"},
		{"build me an itinerary for next week", "itinerary"},
		{"any safety advice for solo travelers", "travel_tips"},
		{"best attractions in the city", "destination_info"},
		{"tell me something interesting", "general"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, DetectIntent(tc.query), "query: %s", tc.query)
	}
}

func TestDetectIntentRuleOrder(t *testing.T) {
	// 同时命中 visa_info 与 hotel_search 时, 排在前面的规则胜出。
	assert.Equal(t, "visa_info", DetectIntent("visa rules for my hotel stay"))
}

func newQueryFixture(retrieval *fakeRetrieval, web *fakeWebSearch, answer string) QueryService {
	client := &fakeLLM{respond: func(string, llm.CompletionOptions) (string, error) {
		return answer, nil
	}}
	return NewQueryService(retrieval, client, web, 5)
}

func TestQueryDetectsDomainAndIntent(t *testing.T) {
	retrieval := &fakeRetrieval{respond: func(RetrieveOptions) []model.RetrievalMatch {
		return []model.RetrievalMatch{match("guide", 0.9)}
	}}
	svc := newQueryFixture(retrieval, &fakeWebSearch{}, "the answer")

	resp, err := svc.Query(context.Background(), 7, &model.QueryRequest{
		Query:        "what are the visa requirements for japan",
		DetectDomain: true,
		DetectIntent: true,
	})

	require.NoError(t, err)
	assert.Equal(t, "travel", resp.Domain)
	assert.Equal(t, "visa_info", resp.Intent)
	assert.Equal(t, "the answer", resp.Answer)
	require.Len(t, resp.Sources, 1)

	calls := retrieval.callOpts()
	require.Len(t, calls, 1)
	assert.Equal(t, "travel", calls[0].Domain)
	assert.Equal(t, uint(7), calls[0].OwnerID)
	assert.Equal(t, 5, calls[0].TopK, "未指定 topK 时使用默认值")
	assert.True(t, calls[0].IncludeReports, "默认检索共享报告")
}

func TestQueryExplicitDomainSkipsDetection(t *testing.T) {
	retrieval := &fakeRetrieval{}
	svc := newQueryFixture(retrieval, &fakeWebSearch{}, "a")

	resp, err := svc.Query(context.Background(), 1, &model.QueryRequest{
		Query:        "what are the visa requirements",
		Domain:       "real_estate",
		DetectDomain: true,
	})

	require.NoError(t, err)
	assert.Equal(t, "real_estate", resp.Domain)
	assert.Empty(t, resp.Intent)
}

func TestQueryIncludeReportsOverride(t *testing.T) {
	retrieval := &fakeRetrieval{}
	svc := newQueryFixture(retrieval, &fakeWebSearch{}, "a")

	exclude := false
	_, err := svc.Query(context.Background(), 1, &model.QueryRequest{
		Query:          "anything",
		IncludeReports: &exclude,
	})

	require.NoError(t, err)
	calls := retrieval.callOpts()
	require.Len(t, calls, 1)
	assert.False(t, calls[0].IncludeReports)
}

func TestQueryFreshnessTriggersWebSearch(t *testing.T) {
	web := &fakeWebSearch{results: []model.WebResult{{Title: "t", Snippet: "s"}}}
	svc := newQueryFixture(&fakeRetrieval{}, web, "a")

	resp, err := svc.Query(context.Background(), 1, &model.QueryRequest{
		Query: "latest visa rules",
	})

	require.NoError(t, err)
	assert.True(t, web.called, "包含时效性关键词的问题应触发联网搜索")
	assert.Len(t, resp.WebResults, 1)
}

func TestQueryWithoutFreshnessSkipsWebSearch(t *testing.T) {
	web := &fakeWebSearch{}
	svc := newQueryFixture(&fakeRetrieval{}, web, "a")

	_, err := svc.Query(context.Background(), 1, &model.QueryRequest{
		Query: "visa rules for japan",
	})

	require.NoError(t, err)
	assert.False(t, web.called)
}

func TestDualQueryRetrievalScopes(t *testing.T) {
	retrieval := &fakeRetrieval{respond: func(opts RetrieveOptions) []model.RetrievalMatch {
		if opts.OwnerID != 0 {
			return []model.RetrievalMatch{match("my_notes", 0.9)}
		}
		return []model.RetrievalMatch{match("shared_report", 0.8)}
	}}
	svc := newQueryFixture(retrieval, &fakeWebSearch{}, "generated answer")

	resp, err := svc.DualQuery(context.Background(), 7, &model.QueryRequest{
		Query: "visa rules for japan",
	})

	require.NoError(t, err)
	assert.True(t, resp.HasUserDocuments)
	assert.Equal(t, 1, resp.UserDocumentsFound)
	assert.Equal(t, 1, resp.GeneralSourcesFound)
	assert.Equal(t, "generated answer", resp.DocumentAnswer)
	assert.Equal(t, "generated answer", resp.GeneralAnswer)
	assert.Equal(t, "travel", resp.Domain)
	assert.Equal(t, "visa_info", resp.Intent)

	calls := retrieval.callOpts()
	require.Len(t, calls, 2)
	for _, c := range calls {
		if c.OwnerID != 0 {
			assert.Equal(t, uint(7), c.OwnerID)
			assert.False(t, c.IncludeReports, "个人文档检索不含共享报告")
		} else {
			assert.True(t, c.IncludeReports, "共享知识库检索含报告且不做归属过滤")
		}
	}
}

func TestDualQueryNoUserDocuments(t *testing.T) {
	retrieval := &fakeRetrieval{respond: func(opts RetrieveOptions) []model.RetrievalMatch {
		if opts.OwnerID != 0 {
			return nil
		}
		return []model.RetrievalMatch{match("shared_report", 0.8)}
	}}
	svc := newQueryFixture(retrieval, &fakeWebSearch{}, "general answer")

	resp, err := svc.DualQuery(context.Background(), 7, &model.QueryRequest{Query: "visa rules"})

	require.NoError(t, err)
	assert.False(t, resp.HasUserDocuments)
	assert.Equal(t, "No relevant information found in your uploaded documents.", resp.DocumentAnswer)
	assert.Equal(t, "general answer", resp.GeneralAnswer)
}

func TestDualQueryAnonymousSkipsUserRetrieval(t *testing.T) {
	retrieval := &fakeRetrieval{}
	svc := newQueryFixture(retrieval, &fakeWebSearch{}, "a")

	resp, err := svc.DualQuery(context.Background(), 0, &model.QueryRequest{Query: "visa rules"})

	require.NoError(t, err)
	calls := retrieval.callOpts()
	require.Len(t, calls, 1, "匿名请求只检索共享知识库")
	assert.True(t, calls[0].IncludeReports)
	assert.False(t, resp.HasUserDocuments)
}

func TestGenerateAnswerPicksAnalyticalPrompt(t *testing.T) {
	client := &fakeLLM{respond: func(string, llm.CompletionOptions) (string, error) {
		return "a", nil
	}}
	retrieval := &fakeRetrieval{respond: func(RetrieveOptions) []model.RetrievalMatch {
		return []model.RetrievalMatch{match("report_one.pdf", 0.9), match("report_two.pdf", 0.8)}
	}}
	svc := NewQueryService(retrieval, client, &fakeWebSearch{}, 5)

	_, err := svc.Query(context.Background(), 1, &model.QueryRequest{
		Query: "compare the housing themes across these reports",
	})

	require.NoError(t, err)
	require.Equal(t, 1, client.callCount())
	prompt := client.prompts[0]
	assert.Contains(t, prompt, "SOURCE DOCUMENT 1: Report One")
	assert.Contains(t, prompt, "SOURCE DOCUMENT 2: Report Two")
	assert.Contains(t, prompt, "NEVER use generic references")
}

func TestGenerateAnswerOptions(t *testing.T) {
	client := &fakeLLM{respond: func(string, llm.CompletionOptions) (string, error) {
		return "a", nil
	}}
	svc := NewQueryService(&fakeRetrieval{}, client, &fakeWebSearch{}, 5)

	_, err := svc.Query(context.Background(), 1, &model.QueryRequest{Query: "visa rules"})

	require.NoError(t, err)
	require.Equal(t, 1, client.callCount())
	opts := client.options[0]
	assert.Equal(t, llm.ModelPrimary, opts.Model)
	assert.Equal(t, 3072, opts.MaxTokens)
	assert.Equal(t, 0.7, opts.Temperature)
}

func TestReadableSourceName(t *testing.T) {
	assert.Equal(t, "Market Research 2024", readableSourceName("market_research_2024.pdf"))
	assert.Equal(t, "Travel Guide", readableSourceName("travel_guide.docx"))
	assert.Equal(t, "Notes", readableSourceName("notes.txt"))
	// 首字符为多字节 rune 的文件名不能按字节切首字母。
	assert.Equal(t, "Étude De Marché", readableSourceName("étude_de_marché.pdf"))
}

func TestSourceOrderOfDeduplicatesInOrder(t *testing.T) {
	order := sourceOrderOf([]model.RetrievalMatch{
		match("b", 0.9), match("a", 0.8), match("b", 0.7), match("c", 0.6),
	})
	assert.Equal(t, []string{"b", "a", "c"}, order)
}
