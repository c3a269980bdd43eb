package repository

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"time"

	"doc-insight-go/internal/model"

	"github.com/go-redis/redis/v8"
)

// AnswerCacheRepository 缓存完整分析流程的结果，避免重复调用模型。
type AnswerCacheRepository interface {
	Get(ctx context.Context, document, query string, passes int) (*model.AnalysisResult, bool)
	Set(ctx context.Context, document, query string, passes int, result *model.AnalysisResult) error
}

type redisAnswerCacheRepository struct {
	redisClient *redis.Client
	ttl         time.Duration
}

// NewAnswerCacheRepository 创建一个新的 AnswerCacheRepository 实例。
func NewAnswerCacheRepository(redisClient *redis.Client, ttl time.Duration) AnswerCacheRepository {
	return &redisAnswerCacheRepository{redisClient: redisClient, ttl: ttl}
}

// cacheKey 由文档、问题和校验轮数共同决定，任一变化都视为新请求。
func cacheKey(document, query string, passes int) string {
	sum := md5.Sum([]byte(fmt.Sprintf("%s|%s|%d", document, query, passes)))
	return fmt.Sprintf("analysis:cache:%x", sum)
}

// Get 查询缓存，未命中或解析失败时返回 false。
func (r *redisAnswerCacheRepository) Get(ctx context.Context, document, query string, passes int) (*model.AnalysisResult, bool) {
	jsonData, err := r.redisClient.Get(ctx, cacheKey(document, query, passes)).Result()
	if err != nil {
		return nil, false
	}
	var result model.AnalysisResult
	if err := json.Unmarshal([]byte(jsonData), &result); err != nil {
		return nil, false
	}
	return &result, true
}

// Set 将分析结果写入缓存。
func (r *redisAnswerCacheRepository) Set(ctx context.Context, document, query string, passes int, result *model.AnalysisResult) error {
	jsonData, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal analysis result: %w", err)
	}
	if err := r.redisClient.Set(ctx, cacheKey(document, query, passes), jsonData, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set analysis cache: %w", err)
	}
	return nil
}
