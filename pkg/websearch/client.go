// Package websearch 提供了一个 Serper 网页搜索客户端，用于为查询补充实时信息。
//
// 搜索是可选增强：未配置 API Key 或调用失败时一律返回空结果，绝不让查询流程失败。
package websearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"doc-insight-go/internal/config"
	"doc-insight-go/internal/model"
	"doc-insight-go/pkg/log"
)

const serperEndpoint = "https://google.serper.dev/search"

// Client defines the interface for a web search client.
type Client interface {
	Search(ctx context.Context, query string, docContext []model.RetrievalMatch) []model.WebResult
}

type serperClient struct {
	cfg    config.WebSearchConfig
	client *http.Client
}

// NewClient 创建一个新的网页搜索客户端实例。
func NewClient(cfg config.WebSearchConfig) Client {
	return &serperClient{
		cfg:    cfg,
		client: &http.Client{},
	}
}

type serperRequest struct {
	Q   string `json:"q"`
	Num int    `json:"num"`
}

type serperResponse struct {
	Organic []struct {
		Title   string `json:"title"`
		Snippet string `json:"snippet"`
		Link    string `json:"link"`
	} `json:"organic"`
}

// Search 使用文档上下文增强后的查询搜索网页，返回最多 3 条结果。
func (c *serperClient) Search(ctx context.Context, query string, docContext []model.RetrievalMatch) []model.WebResult {
	if c.cfg.APIKey == "" {
		log.Warnf("[WebSearch] 未配置 Serper API Key, 跳过网页搜索")
		return nil
	}

	searchQuery := EnhanceQuery(query, docContext)

	reqBytes, err := json.Marshal(serperRequest{Q: searchQuery, Num: 5})
	if err != nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(c.cfg.TimeoutSeconds)*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "POST", serperEndpoint, bytes.NewReader(reqBytes))
	if err != nil {
		return nil
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-KEY", c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		log.Errorf("[WebSearch] 网页搜索调用失败: %v", err)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Warnf("[WebSearch] Serper 返回非 200 状态码: %s", resp.Status)
		return nil
	}

	var serperResp serperResponse
	if err := json.NewDecoder(resp.Body).Decode(&serperResp); err != nil {
		log.Errorf("[WebSearch] 解析搜索响应失败: %v", err)
		return nil
	}

	results := make([]model.WebResult, 0, 3)
	for i, r := range serperResp.Organic {
		if i >= 3 {
			break
		}
		results = append(results, model.WebResult{
			Title:   r.Title,
			Snippet: r.Snippet,
			URL:     r.Link,
		})
	}
	return results
}

// EnhanceQuery 用检索到的前两个文档片段增强原始查询，帮助搜索命中文档语境。
func EnhanceQuery(query string, docContext []model.RetrievalMatch) string {
	if len(docContext) == 0 {
		return query
	}

	var snippets []string
	for i, doc := range docContext {
		if i >= 2 {
			break
		}
		text := doc.Text
		if len(text) > 200 {
			text = text[:200]
		}
		if text != "" {
			snippets = append(snippets, text)
		}
	}
	if len(snippets) == 0 {
		return query
	}

	contextText := strings.Join(snippets, " ")
	if len(contextText) > 150 {
		contextText = contextText[:150]
	}
	return fmt.Sprintf("%s %s", query, contextText)
}

// NeedsFreshData 判断查询是否需要实时信息。
func NeedsFreshData(query string) bool {
	freshKeywords := []string{"latest", "current", "recent", "today", "now", "new", "2025", "2024"}
	lower := strings.ToLower(query)
	for _, kw := range freshKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
