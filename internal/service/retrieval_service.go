// Package service 实现了核心业务逻辑。
package service

import (
	"context"
	"sort"

	"doc-insight-go/internal/model"
	"doc-insight-go/pkg/embedding"
	"doc-insight-go/pkg/log"
	"doc-insight-go/pkg/vector"
)

// VectorQuerier 是检索服务对向量库的依赖，*vector.Store 实现了它。
type VectorQuerier interface {
	Query(ctx context.Context, namespace string, vec []float32, topK int, filter *vector.Filter) ([]model.RetrievalMatch, error)
}

// RetrieveOptions 控制一次检索的范围。
type RetrieveOptions struct {
	Domain         string // 领域过滤，空值不过滤
	OwnerID        uint   // 归属用户过滤，0 不过滤
	TopK           int
	IncludeReports bool // 是否同时检索研究报告命名空间
}

// RetrievalService 提供多来源均衡的向量检索。
//
// 检索分两层：先超额召回（主命名空间按 2*topK 召回，给来源均衡留出余量），
// 再按来源分配配额，保证最终结果不被单一文档垄断。
type RetrievalService interface {
	Retrieve(ctx context.Context, query string, opts RetrieveOptions) []model.RetrievalMatch
}

type retrievalService struct {
	embeddingClient embedding.Client
	store           VectorQuerier
}

// NewRetrievalService 创建一个新的 RetrievalService 实例。
func NewRetrievalService(embeddingClient embedding.Client, store VectorQuerier) RetrievalService {
	return &retrievalService{
		embeddingClient: embeddingClient,
		store:           store,
	}
}

// Retrieve 执行多来源均衡检索。检索是尽力而为的：任何外部失败都返回空结果而非报错，
// 上层流程在没有检索结果时依然可以继续。
func (s *retrievalService) Retrieve(ctx context.Context, query string, opts RetrieveOptions) []model.RetrievalMatch {
	if opts.TopK <= 0 {
		opts.TopK = 5
	}

	// 1. 查询向量化
	queryVector, err := s.embeddingClient.CreateEmbedding(ctx, query)
	if err != nil {
		log.Warnf("[Retrieval] 查询向量化失败, 返回空结果: %v", err)
		return []model.RetrievalMatch{}
	}

	// 2. 主命名空间超额召回，topK 较大时不再翻倍
	retrievalK := opts.TopK * 2
	if opts.TopK >= 20 {
		retrievalK = opts.TopK
	}
	primaryFilter := &vector.Filter{Domain: opts.Domain, UserID: opts.OwnerID}
	matches, err := s.store.Query(ctx, vector.NamespaceDefault, queryVector, retrievalK, primaryFilter)
	if err != nil {
		log.Warnf("[Retrieval] 主命名空间查询失败, 返回空结果: %v", err)
		return []model.RetrievalMatch{}
	}
	log.Infof("[Retrieval] 主命名空间召回 %d 条, topK: %d", len(matches), opts.TopK)

	// 3. 可选：检索研究报告命名空间（报告为共享资源，不做归属过滤）
	if opts.IncludeReports {
		reportFilter := &vector.Filter{Domain: opts.Domain}
		reportMatches, err := s.store.Query(ctx, vector.NamespaceReports, queryVector, opts.TopK, reportFilter)
		if err != nil {
			log.Warnf("[Retrieval] 报告命名空间查询失败, 忽略该来源: %v", err)
		} else {
			log.Infof("[Retrieval] 报告命名空间召回 %d 条", len(reportMatches))
			matches = append(matches, reportMatches...)
		}
	}

	if len(matches) == 0 {
		return []model.RetrievalMatch{}
	}

	// 4. 合并排序并截断候选池
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if len(matches) > opts.TopK*2 {
		matches = matches[:opts.TopK*2]
	}

	// 5. 按来源均衡分配
	result := diversifyBySource(matches, opts.TopK)
	log.Infof("[Retrieval] 均衡后返回 %d 条结果", len(result))
	return result
}

// diversifyBySource 把候选结果按来源文档分组后做两轮分配：
// 第一轮给每个来源相同的基础配额，第二轮用剩余名额从全局候选池按得分补齐。
func diversifyBySource(matches []model.RetrievalMatch, topK int) []model.RetrievalMatch {
	bySource := make(map[string][]model.RetrievalMatch)
	var sourceOrder []string
	for _, m := range matches {
		if _, ok := bySource[m.SourceDocument]; !ok {
			sourceOrder = append(sourceOrder, m.SourceDocument)
		}
		bySource[m.SourceDocument] = append(bySource[m.SourceDocument], m)
	}

	perSource := topK / len(sourceOrder)
	selected := make([]model.RetrievalMatch, 0, topK)
	var leftover []model.RetrievalMatch
	for _, src := range sourceOrder {
		group := bySource[src]
		take := perSource
		if take > len(group) {
			take = len(group)
		}
		selected = append(selected, group[:take]...)
		leftover = append(leftover, group[take:]...)
	}

	// 第二轮：按全局得分补齐剩余名额
	sort.SliceStable(leftover, func(i, j int) bool {
		return leftover[i].Score > leftover[j].Score
	})
	for _, m := range leftover {
		if len(selected) >= topK {
			break
		}
		selected = append(selected, m)
	}

	sort.SliceStable(selected, func(i, j int) bool {
		return selected[i].Score > selected[j].Score
	})
	if len(selected) > topK {
		selected = selected[:topK]
	}
	return selected
}
