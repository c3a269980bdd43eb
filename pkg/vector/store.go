// Package vector 提供了基于 Elasticsearch 的向量库客户端。
//
// 命名空间把数据划分为彼此隔离的检索空间，每个命名空间映射为一个独立索引：
// 默认命名空间存用户文档，"reports" 命名空间存研究报告。
package vector

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"doc-insight-go/internal/config"
	"doc-insight-go/internal/model"
	"doc-insight-go/pkg/log"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// 预定义的命名空间。
const (
	NamespaceDefault = ""
	NamespaceReports = "reports"
)

// Filter 是对索引元数据字段的等值约束合取，零值字段不参与过滤。
type Filter struct {
	Domain string
	UserID uint
	Type   string
}

// Store 封装了对向量索引的写入与查询。
type Store struct {
	client *elasticsearch.Client
	cfg    config.VectorConfig
}

// NewStore 创建向量库客户端，并确保所有命名空间对应的索引存在。
func NewStore(cfg config.VectorConfig) (*Store, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{cfg.Addresses},
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	})
	if err != nil {
		return nil, err
	}
	s := &Store{client: client, cfg: cfg}
	for _, ns := range []string{NamespaceDefault, NamespaceReports} {
		if err := s.createIndexIfNotExists(s.indexName(ns)); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// indexName 把命名空间映射为索引名。
func (s *Store) indexName(namespace string) string {
	if namespace == NamespaceDefault {
		return s.cfg.IndexPrefix
	}
	return fmt.Sprintf("%s_%s", s.cfg.IndexPrefix, namespace)
}

// createIndexIfNotExists 检查索引是否存在，如果不存在则创建它。
func (s *Store) createIndexIfNotExists(indexName string) error {
	res, err := s.client.Indices.Exists([]string{indexName})
	if err != nil {
		log.Errorf("检查索引是否存在时出错: %v", err)
		return err
	}
	if !res.IsError() && res.StatusCode == http.StatusOK {
		log.Infof("索引 '%s' 已存在", indexName)
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		log.Errorf("检查索引 '%s' 是否存在时收到意外的状态码: %d", indexName, res.StatusCode)
		return fmt.Errorf("检查索引是否存在时收到意外的状态码: %d", res.StatusCode)
	}

	// 向量维度由 Embedding 模型约定决定，所有存储向量与查询向量必须一致。
	mapping := fmt.Sprintf(`{
		"mappings": {
			"properties": {
				"vector_id": { "type": "keyword" },
				"file_md5": { "type": "keyword" },
				"fingerprint": { "type": "keyword" },
				"source": { "type": "keyword" },
				"domain": { "type": "keyword" },
				"chunk_index": { "type": "integer" },
				"total_chunks": { "type": "integer" },
				"text_content": { "type": "text" },
				"vector": {
					"type": "dense_vector",
					"dims": %d,
					"index": true,
					"similarity": "cosine"
				},
				"model_version": { "type": "keyword" },
				"user_id": { "type": "long" },
				"type": { "type": "keyword" }
			}
		}
	}`, s.cfg.Dimensions)

	res, err = s.client.Indices.Create(
		indexName,
		s.client.Indices.Create.WithBody(strings.NewReader(mapping)),
	)
	if err != nil {
		log.Errorf("创建索引 '%s' 失败: %v", indexName, err)
		return err
	}
	if res.IsError() {
		log.Errorf("创建索引 '%s' 时 Elasticsearch 返回错误: %s", indexName, res.String())
		return errors.New("创建索引时 Elasticsearch 返回错误")
	}
	log.Infof("索引 '%s' 创建成功", indexName)
	return nil
}

// Upsert 将一批向量文档写入指定命名空间，以 VectorID 作为文档 ID，重复写入覆盖旧值。
func (s *Store) Upsert(ctx context.Context, namespace string, docs []model.VectorDocument) error {
	indexName := s.indexName(namespace)
	for _, doc := range docs {
		docBytes, err := json.Marshal(doc)
		if err != nil {
			return err
		}
		req := esapi.IndexRequest{
			Index:      indexName,
			DocumentID: doc.VectorID,
			Body:       bytes.NewReader(docBytes),
			Refresh:    "true",
		}
		res, err := req.Do(ctx, s.client)
		if err != nil {
			return fmt.Errorf("索引向量文档失败: %w", err)
		}
		if res.IsError() {
			res.Body.Close()
			return fmt.Errorf("索引向量文档时 Elasticsearch 返回错误: %s", res.Status())
		}
		res.Body.Close()
	}
	return nil
}

// Query 在指定命名空间内执行 kNN 相似度查询，返回按得分降序的匹配结果。
func (s *Store) Query(ctx context.Context, namespace string, vec []float32, topK int, filter *Filter) ([]model.RetrievalMatch, error) {
	knn := map[string]interface{}{
		"field":          "vector",
		"query_vector":   vec,
		"k":              topK,
		"num_candidates": topK * 10,
	}
	if terms := buildFilterTerms(filter); len(terms) > 0 {
		knn["filter"] = map[string]interface{}{
			"bool": map[string]interface{}{"must": terms},
		}
	}
	esQuery := map[string]interface{}{
		"knn":  knn,
		"size": topK,
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(esQuery); err != nil {
		return nil, fmt.Errorf("序列化向量查询失败: %w", err)
	}

	res, err := s.client.Search(
		s.client.Search.WithContext(ctx),
		s.client.Search.WithIndex(s.indexName(namespace)),
		s.client.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("向量查询失败: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("向量查询时 Elasticsearch 返回错误: %s", res.String())
	}

	var esResponse struct {
		Hits struct {
			Hits []struct {
				Source model.VectorDocument `json:"_source"`
				Score  float64              `json:"_score"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&esResponse); err != nil {
		return nil, fmt.Errorf("解析向量查询响应失败: %w", err)
	}

	matches := make([]model.RetrievalMatch, 0, len(esResponse.Hits.Hits))
	for _, hit := range esResponse.Hits.Hits {
		matches = append(matches, model.RetrievalMatch{
			Text:           hit.Source.TextContent,
			SourceDocument: hit.Source.Source,
			Domain:         hit.Source.Domain,
			Score:          hit.Score,
			UserID:         hit.Source.UserID,
			Type:           hit.Source.Type,
		})
	}
	return matches, nil
}

// DeleteByFileMD5 删除指定命名空间内某个文档的全部向量，入库重试前调用以保证幂等。
func (s *Store) DeleteByFileMD5(ctx context.Context, namespace, fileMD5 string) error {
	query := fmt.Sprintf(`{"query":{"term":{"file_md5":"%s"}}}`, fileMD5)
	res, err := s.client.DeleteByQuery(
		[]string{s.indexName(namespace)},
		strings.NewReader(query),
		s.client.DeleteByQuery.WithContext(ctx),
		s.client.DeleteByQuery.WithRefresh(true),
	)
	if err != nil {
		return fmt.Errorf("按文件删除向量失败: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("按文件删除向量时 Elasticsearch 返回错误: %s", res.Status())
	}
	return nil
}

// Stats 返回向量库的统计信息：全部命名空间的向量总数与向量维度。
func (s *Store) Stats(ctx context.Context) (model.VectorStatsDTO, error) {
	stats := model.VectorStatsDTO{Dimension: s.cfg.Dimensions}
	for _, ns := range []string{NamespaceDefault, NamespaceReports} {
		res, err := s.client.Count(
			s.client.Count.WithContext(ctx),
			s.client.Count.WithIndex(s.indexName(ns)),
		)
		if err != nil {
			return stats, fmt.Errorf("统计向量数量失败: %w", err)
		}
		var countResp struct {
			Count int64 `json:"count"`
		}
		decodeErr := json.NewDecoder(res.Body).Decode(&countResp)
		res.Body.Close()
		if decodeErr != nil {
			return stats, fmt.Errorf("解析统计响应失败: %w", decodeErr)
		}
		stats.TotalVectors += countResp.Count
	}
	return stats, nil
}

// buildFilterTerms 把 Filter 转换为 ES term 子句列表。
func buildFilterTerms(filter *Filter) []map[string]interface{} {
	if filter == nil {
		return nil
	}
	var terms []map[string]interface{}
	if filter.Domain != "" {
		terms = append(terms, map[string]interface{}{
			"term": map[string]interface{}{"domain": filter.Domain},
		})
	}
	if filter.UserID != 0 {
		terms = append(terms, map[string]interface{}{
			"term": map[string]interface{}{"user_id": filter.UserID},
		})
	}
	if filter.Type != "" {
		terms = append(terms, map[string]interface{}{
			"term": map[string]interface{}{"type": filter.Type},
		})
	}
	return terms
}
