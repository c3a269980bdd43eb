package service

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"doc-insight-go/internal/model"
	"doc-insight-go/pkg/llm"
	"doc-insight-go/pkg/log"
	"doc-insight-go/pkg/websearch"

	"golang.org/x/sync/errgroup"
)

// 领域检测关键词表，按命中数多者胜出，平局回退到 travel。
var (
	realEstateKeywords = []string{
		"property", "real estate", "housing", "rental", "rent", "apartment", "condo",
		"mortgage", "home price", "house price", "property market", "residential",
		"commercial property", "investment property", "real estate market",
		"housing demand", "housing supply", "property value", "property investment",
		"real estate trend", "property price", "housing market", "realty",
		"land", "plot", "villa", "penthouse", "square feet", "sqft",
		"builder", "developer", "construction", "emi", "down payment",
	}
	travelKeywords = []string{
		"travel", "trip", "vacation", "holiday", "tour", "flight", "hotel",
		"visa", "passport", "destination", "tourism", "tourist", "itinerary",
		"booking", "airline", "airport", "train", "rail", "bus", "road trip",
		"backpack", "cruise", "resort", "accommodation", "sightseeing",
		"adventure", "explore", "visit", "journey", "cultural", "festival",
		"weather", "season", "budget travel", "luxury travel", "solo travel",
		"family vacation", "honeymoon", "weekend getaway", "pilgrimage",
	}
)

// 意图检测规则，按优先级依次匹配。
var intentRules = []struct {
	intent   string
	keywords []string
}{
	{"visa_info", []string{"visa", "passport", "document", "requirement", "application"}},
	{"hotel_search", []string{"hotel", "accommodation", "stay", "lodge", "resort"}},
	{"flight_search", []string{"flight", "airline", "fly", "ticket", "booking"}},
	{"weather", []string{"weather", "temperature", "climate", "season", "rain"}},
	{"itinerary", []string{"itinerary", "plan", "schedule", "trip plan", "day by day"}},
	{"travel_tips", []string{"tip", "advice", "guide", "safety", "custom", "culture"}},
	{"destination_info", []string{"attraction", "place", "visit", "destination", "city", "country"}},
}

// 分析型问题的标志词：命中即采用综合对比式提示词。
var analyticalKeywords = []string{
	"similarity", "similar", "compare", "difference", "common", "theme",
	"pattern", "trend", "analyze", "analysis", "relationship", "connection",
}

// QueryService 提供基于知识库检索的问答：单答案模式与双答案模式。
type QueryService interface {
	Query(ctx context.Context, userID uint, req *model.QueryRequest) (*model.QueryResponse, error)
	// DualQuery 并发生成两个答案：仅基于用户个人文档的答案和融合共享知识库的答案。
	DualQuery(ctx context.Context, userID uint, req *model.QueryRequest) (*model.DualQueryResponse, error)
}

type queryService struct {
	retrievalService RetrievalService
	llmClient        llm.Client
	webSearchClient  websearch.Client
	defaultTopK      int
}

// NewQueryService 创建一个新的 QueryService 实例。
func NewQueryService(
	retrievalService RetrievalService,
	llmClient llm.Client,
	webSearchClient websearch.Client,
	defaultTopK int,
) QueryService {
	return &queryService{
		retrievalService: retrievalService,
		llmClient:        llmClient,
		webSearchClient:  webSearchClient,
		defaultTopK:      defaultTopK,
	}
}

// DetectDomain 根据关键词命中数判断问题所属领域。
func DetectDomain(query string) string {
	queryLower := strings.ToLower(query)
	realEstateScore := 0
	for _, kw := range realEstateKeywords {
		if strings.Contains(queryLower, kw) {
			realEstateScore++
		}
	}
	travelScore := 0
	for _, kw := range travelKeywords {
		if strings.Contains(queryLower, kw) {
			travelScore++
		}
	}
	if realEstateScore > travelScore {
		return "real_estate"
	}
	return "travel"
}

// DetectIntent 根据规则表识别问题意图，无命中时返回 general。
func DetectIntent(query string) string {
	queryLower := strings.ToLower(query)
	for _, rule := range intentRules {
		for _, kw := range rule.keywords {
			if strings.Contains(queryLower, kw) {
				return rule.intent
			}
		}
	}
	return "general"
}

// Query 执行单答案问答流程。
func (s *queryService) Query(ctx context.Context, userID uint, req *model.QueryRequest) (*model.QueryResponse, error) {
	// 1. 领域与意图识别
	domain := req.Domain
	if req.DetectDomain && domain == "" {
		domain = DetectDomain(req.Query)
		log.Infof("[Query] 步骤1: 自动识别领域: %s", domain)
	}
	var intent string
	if req.DetectIntent {
		intent = DetectIntent(req.Query)
		log.Infof("[Query] 步骤1: 识别意图: %s", intent)
	}

	topK := req.TopK
	if topK <= 0 {
		topK = s.defaultTopK
	}
	includeReports := true
	if req.IncludeReports != nil {
		includeReports = *req.IncludeReports
	}

	// 2. 多来源均衡检索
	log.Infof("[Query] 步骤2: 检索知识库, domain: %s, topK: %d, includeReports: %v", domain, topK, includeReports)
	docResults := s.retrievalService.Retrieve(ctx, req.Query, RetrieveOptions{
		Domain:         domain,
		OwnerID:        userID,
		TopK:           topK,
		IncludeReports: includeReports,
	})

	// 3. 时效性问题触发联网搜索
	var webResults []model.WebResult
	if req.IncludeWeb || websearch.NeedsFreshData(req.Query) {
		log.Info("[Query] 步骤3: 触发上下文增强的联网搜索")
		webResults = s.webSearchClient.Search(ctx, req.Query, docResults)
	}

	// 4. 生成答案
	log.Info("[Query] 步骤4: 生成答案")
	answer, err := s.generateAnswer(ctx, req.Query, docResults, webResults)
	if err != nil {
		return nil, err
	}

	return &model.QueryResponse{
		Answer:     answer,
		Domain:     domain,
		Intent:     intent,
		Sources:    docResults,
		WebResults: webResults,
	}, nil
}

// DualQuery 并发执行两路检索并分别生成答案。
func (s *queryService) DualQuery(ctx context.Context, userID uint, req *model.QueryRequest) (*model.DualQueryResponse, error) {
	domain := req.Domain
	if domain == "" {
		domain = DetectDomain(req.Query)
	}
	intent := DetectIntent(req.Query)

	topK := req.TopK
	if topK <= 0 {
		topK = s.defaultTopK
	}

	// 两路检索并发执行：个人文档不含报告，共享知识库含报告且不做归属过滤
	log.Infof("[DualQuery] 步骤1: 并发执行两路检索, domain: %s, topK: %d", domain, topK)
	var userDocs, generalDocs []model.RetrievalMatch
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if userID != 0 {
			userDocs = s.retrievalService.Retrieve(gctx, req.Query, RetrieveOptions{
				Domain: domain, OwnerID: userID, TopK: topK, IncludeReports: false,
			})
		}
		return nil
	})
	g.Go(func() error {
		generalDocs = s.retrievalService.Retrieve(gctx, req.Query, RetrieveOptions{
			Domain: domain, TopK: topK, IncludeReports: true,
		})
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var webResults []model.WebResult
	if req.IncludeWeb || websearch.NeedsFreshData(req.Query) {
		log.Info("[DualQuery] 步骤2: 触发联网搜索")
		webResults = s.webSearchClient.Search(ctx, req.Query, generalDocs)
	}

	// 两个答案独立生成：个人文档答案严格受限于文档内容，综合答案融合全部来源
	log.Info("[DualQuery] 步骤3: 并发生成双答案")
	var docAnswer, generalAnswer string
	g2, g2ctx := errgroup.WithContext(ctx)
	g2.Go(func() error {
		var err error
		docAnswer, err = s.generateDocumentAnswer(g2ctx, req.Query, userDocs)
		return err
	})
	g2.Go(func() error {
		var err error
		generalAnswer, err = s.generateGeneralAnswer(g2ctx, req.Query, generalDocs, webResults)
		return err
	})
	if err := g2.Wait(); err != nil {
		return nil, err
	}

	return &model.DualQueryResponse{
		Query:               req.Query,
		Domain:              domain,
		Intent:              intent,
		DocumentAnswer:      docAnswer,
		GeneralAnswer:       generalAnswer,
		UserDocumentsFound:  len(userDocs),
		GeneralSourcesFound: len(generalDocs),
		UserSources:         userDocs,
		GeneralSources:      generalDocs,
		WebResults:          webResults,
		HasUserDocuments:    len(userDocs) > 0,
	}, nil
}

// generateAnswer 按问题类型构建提示词并调用模型生成答案。
func (s *queryService) generateAnswer(ctx context.Context, query string, docResults []model.RetrievalMatch, webResults []model.WebResult) (string, error) {
	isAnalytical := false
	queryLower := strings.ToLower(query)
	for _, kw := range analyticalKeywords {
		if strings.Contains(queryLower, kw) {
			isAnalytical = true
			break
		}
	}

	var prompt string
	if isAnalytical && len(docResults) > 0 {
		prompt = buildAnalyticalPrompt(query, docResults, webResults)
	} else {
		prompt = buildGeneralPrompt(query, docResults, webResults)
	}

	return s.llmClient.Complete(ctx, prompt, llm.CompletionOptions{
		Model:       llm.ModelPrimary,
		MaxTokens:   3072,
		Temperature: 0.7,
	})
}

// generateDocumentAnswer 仅基于用户个人文档生成答案。
func (s *queryService) generateDocumentAnswer(ctx context.Context, query string, docResults []model.RetrievalMatch) (string, error) {
	if len(docResults) == 0 {
		return "No relevant information found in your uploaded documents.", nil
	}

	var b strings.Builder
	b.WriteString("You are analyzing the user's PERSONAL UPLOADED DOCUMENTS.\n\n")
	b.WriteString("INSTRUCTIONS:\n")
	b.WriteString("- Answer ONLY based on what is explicitly stated in these documents\n")
	b.WriteString("- If information is not in the documents, say 'Not mentioned in your documents'\n")
	b.WriteString("- Quote specific parts when relevant\n")
	b.WriteString("- Be precise and document-focused\n")
	b.WriteString("- Use phrases like 'According to your documents...', 'Your files mention...'\n\n")
	b.WriteString("USER'S UPLOADED DOCUMENTS:\n\n")

	separator := strings.Repeat("=", 60)
	for idx, src := range sourceOrderOf(docResults) {
		fmt.Fprintf(&b, "\n%s\nDocument %d: %s\n%s\n\n", separator, idx+1, src, separator)
		for _, m := range docResults {
			if m.SourceDocument == src {
				b.WriteString(m.Text)
				b.WriteString("\n\n")
			}
		}
	}
	fmt.Fprintf(&b, "\nQUESTION: %s\n\nANSWER (based ONLY on the uploaded documents above):", query)

	return s.llmClient.Complete(ctx, b.String(), llm.CompletionOptions{
		Model:       llm.ModelPrimary,
		MaxTokens:   3072,
		Temperature: 0.7,
	})
}

// generateGeneralAnswer 融合共享知识库与联网结果生成综合答案。
func (s *queryService) generateGeneralAnswer(ctx context.Context, query string, docResults []model.RetrievalMatch, webResults []model.WebResult) (string, error) {
	var b strings.Builder
	b.WriteString("You are an EXPERT CONSULTANT providing comprehensive, detailed answers.\n\n")
	b.WriteString("INSTRUCTIONS:\n")
	b.WriteString("- Use your FULL KNOWLEDGE BASE to answer comprehensively\n")
	b.WriteString("- Provide context, background, and expert insights\n")
	b.WriteString("- Include industry trends, best practices, and recommendations\n")
	b.WriteString("- Structure your answer with clear sections and headings\n")
	b.WriteString("- Be detailed and thorough - aim for 300-500 words\n")
	b.WriteString("- Add examples, statistics, and actionable insights\n")
	b.WriteString("- Make it valuable and informative\n\n")

	if len(docResults) > 0 {
		b.WriteString("REFERENCE INFORMATION (use as foundation, but enhance with your expertise):\n\n")
		limit := len(docResults)
		if limit > 5 {
			limit = 5
		}
		for i := 0; i < limit; i++ {
			fmt.Fprintf(&b, "Reference %d:\n%s\n\n", i+1, docResults[i].Text)
		}
	}
	if len(webResults) > 0 {
		b.WriteString("\nCURRENT WEB INFORMATION:\n")
		for i, r := range webResults {
			fmt.Fprintf(&b, "[%d] %s: %s\n\n", i+1, r.Title, r.Snippet)
		}
	}
	fmt.Fprintf(&b, "\nQUESTION: %s\n\nCOMPREHENSIVE EXPERT ANSWER (use all your knowledge + references above):", query)

	return s.llmClient.Complete(ctx, b.String(), llm.CompletionOptions{
		Model:       llm.ModelPrimary,
		MaxTokens:   3072,
		Temperature: 0.7,
	})
}

// buildAnalyticalPrompt 为对比分析类问题构建按来源分组的提示词。
func buildAnalyticalPrompt(query string, docResults []model.RetrievalMatch, webResults []model.WebResult) string {
	sources := sourceOrderOf(docResults)
	separator := strings.Repeat("=", 80)

	var b strings.Builder
	b.WriteString("You are an expert analyst. Your task is to ANALYZE, SYNTHESIZE, and COMPARE the content across multiple documents. ")
	b.WriteString("Do NOT just describe what's in each document. Instead:\n")
	b.WriteString("1. Identify common themes, patterns, and insights across ALL documents\n")
	b.WriteString("2. Compare and contrast different perspectives\n")
	b.WriteString("3. Synthesize information into coherent findings\n")
	b.WriteString("4. Provide structured, analytical responses with clear categories\n")
	b.WriteString("5. Use your expertise to draw meaningful conclusions\n\n")

	b.WriteString(separator + "\n")
	fmt.Fprintf(&b, "YOU HAVE %d DIFFERENT SOURCE DOCUMENTS TO ANALYZE:\n", len(sources))
	fmt.Fprintf(&b, "\nIMPORTANT: These are %d SEPARATE, DISTINCT documents (not the same document repeated):\n\n", len(sources))
	for idx, src := range sources {
		count := 0
		for _, m := range docResults {
			if m.SourceDocument == src {
				count++
			}
		}
		fmt.Fprintf(&b, "%d. **%s** (%d chunk(s) from this document)\n", idx+1, readableSourceName(src), count)
	}
	b.WriteString("\n" + separator + "\n\n")
	b.WriteString("CRITICAL INSTRUCTIONS:\n")
	b.WriteString("- These are DIFFERENT documents with DIFFERENT content\n")
	b.WriteString("- DO NOT say they are 'identical' or 'the same' unless the content is truly identical\n")
	b.WriteString("- Analyze what is UNIQUE to each document and what is COMMON across them\n")
	b.WriteString("- Use the actual document names listed above, NOT 'Document 1, Document 2, Document 3'\n\n")
	b.WriteString("DOCUMENT CONTENT (grouped by source):\n\n")

	for idx, src := range sources {
		readable := readableSourceName(src)
		fmt.Fprintf(&b, "\n%s\nSOURCE DOCUMENT %d: %s\n%s\n\n", separator, idx+1, readable, separator)
		chunkIdx := 0
		for _, m := range docResults {
			if m.SourceDocument == src {
				chunkIdx++
				fmt.Fprintf(&b, "[Excerpt %d from %s]:\n%s\n\n", chunkIdx, readable, m.Text)
			}
		}
		fmt.Fprintf(&b, "\n%s\n\n", separator)
	}

	if len(webResults) > 0 {
		b.WriteString("\nADDITIONAL WEB INFORMATION:\n")
		for i, r := range webResults {
			fmt.Fprintf(&b, "[W%d] %s: %s\n\n", i+1, r.Title, r.Snippet)
		}
	}

	readableNames := make([]string, len(sources))
	for i, src := range sources {
		readableNames[i] = "'" + readableSourceName(src) + "'"
	}
	fmt.Fprintf(&b, "\nQUESTION: %s\n\n", query)
	b.WriteString("CRITICAL INSTRUCTIONS FOR YOUR ANALYSIS:\n")
	fmt.Fprintf(&b, "- You have %d SEPARATE, DISTINCT source documents: %s\n", len(sources), strings.Join(readableNames, ", "))
	fmt.Fprintf(&b, "- These are NOT the same document - they are %d different documents\n", len(sources))
	b.WriteString("- DO NOT say 'the documents are identical' unless you verify the content is truly the same\n")
	b.WriteString("- First, identify what is UNIQUE to each specific document\n")
	b.WriteString("- Then, identify what is COMMON or similar across the different documents\n")
	b.WriteString("- Compare and contrast perspectives from EACH named source\n")
	b.WriteString("- Structure your response with clear themes/categories\n")
	b.WriteString("- IMPORTANT: Use the ACTUAL DOCUMENT NAMES listed above\n")
	b.WriteString("- NEVER use generic references like 'Document 1', 'Document 2', 'Document 3'\n")
	b.WriteString("- For each theme, explicitly state which named sources discuss it\n")
	b.WriteString("- If documents have different content, highlight the differences\n")
	b.WriteString("- If documents have similar content, explain what is similar and what differs\n")
	b.WriteString("- Use bullet points, tables, or structured format for clarity\n")
	b.WriteString("- Be analytical and insightful, not just descriptive\n\nANSWER:")

	return b.String()
}

// buildGeneralPrompt 为普通问题构建带参考文档的提示词。
func buildGeneralPrompt(query string, docResults []model.RetrievalMatch, webResults []model.WebResult) string {
	separator := strings.Repeat("=", 80)

	var b strings.Builder
	b.WriteString("You are an expert AI assistant with deep knowledge across multiple domains. ")
	b.WriteString("Your goal is to provide COMPREHENSIVE, DETAILED, and INSIGHTFUL answers that go far beyond simple extraction.\n\n")
	b.WriteString("INSTRUCTIONS FOR ANSWERING:\n")
	b.WriteString("1. **Use Your Expertise**: Draw from your extensive knowledge to provide context, background, and broader understanding\n")
	b.WriteString("2. **Enhance Document Content**: Don't just repeat what's in the documents - explain, elaborate, and add valuable insights\n")
	b.WriteString("3. **Provide Context**: Explain WHY things matter, HOW they work, and WHAT the implications are\n")
	b.WriteString("4. **Add Examples**: Include relevant examples, use cases, or scenarios to illustrate points\n")
	b.WriteString("5. **Structure Clearly**: Use headings, bullet points, and organized sections for readability\n")
	b.WriteString("6. **Be Comprehensive**: Cover multiple angles - definitions, benefits, challenges, trends, best practices\n")
	b.WriteString("7. **Make it Actionable**: Include practical takeaways, recommendations, or next steps\n")
	b.WriteString("8. **Connect Ideas**: Show relationships between concepts and broader industry trends\n\n")
	b.WriteString("RESPONSE STYLE:\n")
	b.WriteString("- Start with a clear overview or definition\n")
	b.WriteString("- Provide detailed explanations with depth\n")
	b.WriteString("- Use professional yet accessible language\n")
	b.WriteString("- Include relevant statistics or data points when applicable\n")
	b.WriteString("- End with key takeaways or actionable insights\n\n")

	if len(docResults) > 0 {
		b.WriteString("REFERENCE DOCUMENTS (Use these as foundation, but enhance with your knowledge):\n\n")
		for i, m := range docResults {
			fmt.Fprintf(&b, "Document %d (Source: %s):\n%s\n\n%s\n\n", i+1, m.SourceDocument, m.Text, separator)
		}
	} else {
		b.WriteString("NOTE: No specific documents were provided. Use your comprehensive knowledge to answer this query.\n")
		b.WriteString("Provide the same level of detail and expertise as if you were consulting on this topic.\n\n")
	}

	if len(webResults) > 0 {
		b.WriteString("\nADDITIONAL WEB INFORMATION:\n")
		for i, r := range webResults {
			fmt.Fprintf(&b, "[W%d] %s: %s\n\n", i+1, r.Title, r.Snippet)
		}
	}

	fmt.Fprintf(&b, "\nQUESTION: %s\n\n", query)
	b.WriteString("CRITICAL INSTRUCTIONS FOR YOUR RESPONSE:\n")
	b.WriteString("- **Go Beyond the Documents**: Don't just extract or summarize - add context, explanations, and insights\n")
	b.WriteString("- **Provide Depth**: Explain concepts thoroughly with background information and implications\n")
	b.WriteString("- **Add Value**: Include industry context, trends, best practices, and real-world applications\n")
	b.WriteString("- **Structure Professionally**: Use clear headings (##, ###), bullet points, and logical flow\n")
	b.WriteString("- **Be Comprehensive**: Cover definition, importance, benefits, challenges, examples, and recommendations\n")
	b.WriteString("- **Make it Actionable**: Include practical takeaways and next steps\n")
	b.WriteString("- **Use Examples**: Illustrate points with relevant scenarios or use cases\n")
	b.WriteString("- **Connect to Broader Context**: Show how this relates to industry trends and future directions\n\n")
	b.WriteString("Remember: You're an expert consultant, not just a document reader. Provide the kind of detailed, ")
	b.WriteString("insightful response that would come from a subject matter expert.\n\nANSWER:")

	return b.String()
}

// sourceOrderOf 按首次出现顺序返回去重后的来源文档列表。
func sourceOrderOf(matches []model.RetrievalMatch) []string {
	seen := make(map[string]bool)
	var order []string
	for _, m := range matches {
		if !seen[m.SourceDocument] {
			seen[m.SourceDocument] = true
			order = append(order, m.SourceDocument)
		}
	}
	return order
}

// readableSourceName 把文件名转成可读的文档名。
func readableSourceName(src string) string {
	name := src
	for _, ext := range []string{".pdf", ".docx", ".txt"} {
		name = strings.TrimSuffix(name, ext)
	}
	name = strings.ReplaceAll(name, "_", " ")
	words := strings.Fields(name)
	for i, w := range words {
		// 首字符按 rune 处理，文件名里的非 ASCII 字符不能按字节切。
		runes := []rune(w)
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}
