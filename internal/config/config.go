// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// 全局配置变量，存储从配置文件加载的所有设置。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Log       LogConfig       `mapstructure:"log"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Tika      TikaConfig      `mapstructure:"tika"`
	Vector    VectorConfig    `mapstructure:"vector"`
	MinIO     MinIOConfig     `mapstructure:"minio"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	LLM       LLMConfig       `mapstructure:"llm"`
	WebSearch WebSearchConfig `mapstructure:"web_search"`
	RAG       RAGConfig       `mapstructure:"rag"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	MySQL MySQLConfig `mapstructure:"mysql"`
	Redis RedisConfig `mapstructure:"redis"`
}

// MySQLConfig 存储 MySQL 数据库的配置。
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig 存储 Redis 的配置。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// JWTConfig 存储 JWT 相关的配置。
type JWTConfig struct {
	Secret                 string `mapstructure:"secret"`
	AccessTokenExpireHours int    `mapstructure:"access_token_expire_hours"`
	RefreshTokenExpireDays int    `mapstructure:"refresh_token_expire_days"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// KafkaConfig 存储 Kafka 相关的配置。
type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
}

// TikaConfig 存储 Tika 服务器相关的配置。
type TikaConfig struct {
	ServerURL string `mapstructure:"server_url"`
}

// VectorConfig 存储向量库（Elasticsearch）相关的配置。
// IndexPrefix 是默认命名空间的索引名，报告命名空间的索引为 IndexPrefix + "_reports"。
type VectorConfig struct {
	Addresses   string `mapstructure:"addresses"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	IndexPrefix string `mapstructure:"index_prefix"`
	Dimensions  int    `mapstructure:"dimensions"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

// EmbeddingConfig 存储 Embedding 模型相关的配置。
type EmbeddingConfig struct {
	APIKey         string `mapstructure:"api_key"`
	BaseURL        string `mapstructure:"base_url"`
	Model          string `mapstructure:"model"`
	Dimensions     int    `mapstructure:"dimensions"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// LLMConfig 存储大语言模型相关的配置。
// Model 为主模型，VerificationModel 为用于校验/批判的次级（更小更快）模型。
type LLMConfig struct {
	APIKey            string `mapstructure:"api_key"`
	BaseURL           string `mapstructure:"base_url"`
	Model             string `mapstructure:"model"`
	VerificationModel string `mapstructure:"verification_model"`
	TimeoutSeconds    int    `mapstructure:"timeout_seconds"`
}

// WebSearchConfig 存储 Serper 网页搜索相关的配置，APIKey 为空时搜索功能自动禁用。
type WebSearchConfig struct {
	APIKey         string `mapstructure:"api_key"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// RAGConfig 存储检索与分析流水线的参数。
type RAGConfig struct {
	ChunkSize       int `mapstructure:"chunk_size"`        // 分块的最大词数
	ChunkOverlap    int `mapstructure:"chunk_overlap"`     // 相邻分块之间的重叠词数
	DefaultTopK     int `mapstructure:"default_top_k"`     // 检索默认返回的分块数
	CacheTTLMinutes int `mapstructure:"cache_ttl_minutes"` // 分析结果缓存的过期时间
}

// Init 初始化配置加载，从指定的路径读取 YAML 文件并解析到 Conf 变量中。
func Init(configPath string) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		panic(fmt.Errorf("读取配置文件失败: %w", err))
	}

	if err := viper.Unmarshal(&Conf); err != nil {
		panic(fmt.Errorf("无法将配置解析到结构体中: %w", err))
	}

	applyDefaults()
}

// applyDefaults 为未配置的流水线参数填入默认值。
func applyDefaults() {
	if Conf.RAG.ChunkSize <= 0 {
		Conf.RAG.ChunkSize = 800
	}
	if Conf.RAG.ChunkOverlap < 0 || Conf.RAG.ChunkOverlap >= Conf.RAG.ChunkSize {
		Conf.RAG.ChunkOverlap = 100
	}
	if Conf.RAG.DefaultTopK <= 0 {
		Conf.RAG.DefaultTopK = 5
	}
	if Conf.RAG.CacheTTLMinutes <= 0 {
		Conf.RAG.CacheTTLMinutes = 60
	}
	if Conf.LLM.TimeoutSeconds <= 0 {
		Conf.LLM.TimeoutSeconds = 60
	}
	if Conf.Embedding.TimeoutSeconds <= 0 {
		Conf.Embedding.TimeoutSeconds = 30
	}
	if Conf.WebSearch.TimeoutSeconds <= 0 {
		Conf.WebSearch.TimeoutSeconds = 10
	}
}
