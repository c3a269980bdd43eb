// Package main 是应用程序的入口点。
package main

import (
	"bytes"
	"context"
	"crypto/md5"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"doc-insight-go/internal/config"
	"doc-insight-go/internal/handler"
	"doc-insight-go/internal/middleware"
	"doc-insight-go/internal/model"
	"doc-insight-go/internal/pipeline"
	"doc-insight-go/internal/repository"
	"doc-insight-go/internal/service"
	"doc-insight-go/pkg/database"
	"doc-insight-go/pkg/embedding"
	"doc-insight-go/pkg/kafka"
	"doc-insight-go/pkg/llm"
	"doc-insight-go/pkg/log"
	"doc-insight-go/pkg/storage"
	"doc-insight-go/pkg/tasks"
	"doc-insight-go/pkg/tika"
	"doc-insight-go/pkg/token"
	"doc-insight-go/pkg/vector"
	"doc-insight-go/pkg/websearch"

	"github.com/gin-gonic/gin"
	"github.com/minio/minio-go/v7"
)

func main() {
	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync()
	log.Info("日志记录器初始化成功")

	// 3. 初始化数据库、Redis、对象存储、向量库和 Kafka
	database.InitMySQL(cfg.Database.MySQL.DSN)
	database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	storage.InitMinIO(cfg.MinIO)
	vectorStore, err := vector.NewStore(cfg.Vector)
	if err != nil {
		log.Fatalf("向量库初始化失败: %s", err)
	}
	kafka.InitProducer(cfg.Kafka)

	// 4. 初始化 Repository
	userRepository := repository.NewUserRepository(database.DB)
	documentRepo := repository.NewDocumentRepository(database.DB)
	chunkRepo := repository.NewChunkRepository(database.DB)
	conversationRepo := repository.NewConversationRepository(database.RDB)
	answerCacheRepo := repository.NewAnswerCacheRepository(database.RDB, time.Duration(cfg.RAG.CacheTTLMinutes)*time.Minute)

	// 5. 初始化 Service (依赖注入)
	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours, cfg.JWT.RefreshTokenExpireDays)
	tikaClient := tika.NewClient(cfg.Tika)
	embeddingClient := embedding.NewClient(cfg.Embedding)
	llmClient := llm.NewClient(cfg.LLM)
	webSearchClient := websearch.NewClient(cfg.WebSearch)

	userService := service.NewUserService(userRepository, jwtManager)
	documentService := service.NewDocumentService(documentRepo, chunkRepo, vectorStore, cfg.MinIO)
	retrievalService := service.NewRetrievalService(embeddingClient, vectorStore)
	queryService := service.NewQueryService(retrievalService, llmClient, webSearchClient, cfg.RAG.DefaultTopK)
	ensembleService := service.NewEnsembleService(llmClient)
	validationService := service.NewValidationService(llmClient)
	extractionService := service.NewExtractionService(llmClient)
	analysisService := service.NewAnalysisService(ensembleService, validationService, answerCacheRepo)
	conversationService := service.NewConversationService(conversationRepo)
	chatService := service.NewChatService(retrievalService, llmClient, conversationRepo)

	// 6. 初始化文档入库管道 (Processor)
	processor := pipeline.NewProcessor(
		tikaClient,
		embeddingClient,
		vectorStore,
		cfg.MinIO,
		cfg.Embedding,
		cfg.RAG,
		documentRepo,
		chunkRepo,
	)

	// 7. 启动后台 Kafka 消费者
	go kafka.StartConsumer(cfg.Kafka, processor)

	// 7.1 初始化导入 seedreports 目录下的共享研究报告（幂等，已导入则跳过）
	seedCtx, cancelSeed := context.WithCancel(context.Background())
	defer cancelSeed()
	go initSeedReports(seedCtx, "seedreports", &cfg, documentRepo)

	// 8. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(middleware.RequestLogger(), gin.Recovery())

	// 9. 注册路由
	apiV1 := r.Group("/api/v1")
	{
		// Auth 路由组
		auth := apiV1.Group("/auth")
		{
			auth.POST("/refreshToken", handler.NewAuthHandler(userService).RefreshToken)
		}

		users := apiV1.Group("/users")
		{
			// 无需认证的路由 (公开访问)
			users.POST("/register", handler.NewUserHandler(userService).Register)
			users.POST("/login", handler.NewUserHandler(userService).Login)

			// 需要认证的路由 (仅限登录用户访问)
			authed := users.Group("/")
			authed.Use(middleware.AuthMiddleware(jwtManager, userService))
			{
				authed.GET("/me", handler.NewUserHandler(userService).GetProfile)
				authed.POST("/logout", handler.NewUserHandler(userService).Logout)
			}
		}

		// Document 路由组，需要认证
		documentHandler := handler.NewDocumentHandler(documentService, userService)
		documents := apiV1.Group("/documents")
		documents.Use(middleware.AuthMiddleware(jwtManager, userService))
		{
			documents.POST("/upload", documentHandler.Upload)
			documents.POST("/batch-upload", documentHandler.BatchUpload)
			documents.GET("/mine", documentHandler.ListMine)
			documents.GET("/stats", documentHandler.Stats)
			documents.GET("/domains", documentHandler.ListDomains)
			documents.GET("/download", documentHandler.GenerateDownloadURL)
			documents.GET("/:fileMd5", documentHandler.GetDocument)
			documents.DELETE("/:fileMd5", documentHandler.DeleteDocument)
		}

		// Query 路由组：知识库问答
		queryHandler := handler.NewQueryHandler(queryService, userService)
		query := apiV1.Group("/query")
		query.Use(middleware.AuthMiddleware(jwtManager, userService))
		{
			query.POST("", queryHandler.Query)
			query.POST("/dual", queryHandler.DualQuery)
		}

		// Analyze 路由组：防幻觉分析与校验
		analyzeHandler := handler.NewAnalyzeHandler(analysisService, validationService, extractionService)
		analyze := apiV1.Group("/analyze")
		analyze.Use(middleware.AuthMiddleware(jwtManager, userService))
		{
			analyze.POST("", analyzeHandler.Analyze)
			analyze.POST("/validate", analyzeHandler.Validate)
			analyze.POST("/extract", analyzeHandler.Extract)
		}

		// Conversation 路由组
		conversation := apiV1.Group("/users/conversation")
		conversation.Use(middleware.AuthMiddleware(jwtManager, userService))
		{
			conversation.GET("", handler.NewConversationHandler(conversationService).GetConversations)
		}

		// Chat 路由 (WebSocket)
		chatHandler := handler.NewChatHandler(chatService, userService, jwtManager)
		chatGroup := apiV1.Group("/chat")
		{
			chatGroup.GET("/websocket-token", chatHandler.GetWebsocketStopToken)
		}
		r.GET("/chat/:token", chatHandler.Handle)
	}

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("HTTP 服务器关闭失败: %v", err)
	}

	// Kafka 消费者是一个循环，会在程序退出时自然结束。
	log.Info("服务已优雅关闭")
}

// initSeedReports 扫描目录下的研究报告并导入 reports 命名空间（幂等）。
// 目录结构为 seedreports/<domain>/<file>，domain 子目录名即领域标签。
func initSeedReports(ctx context.Context, dir string, cfg *config.Config, documentRepo repository.DocumentRepository) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		log.Infof("initSeedReports: 目录 '%s' 不存在或不可用，跳过初始化导入", dir)
		return
	}

	walkErr := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			log.Warnf("initSeedReports: 读取文件失败: %s, err=%v", path, err)
			return nil
		}
		if len(content) == 0 {
			return nil
		}
		fileMD5 := fmt.Sprintf("%x", md5.Sum(content))
		fileName := info.Name()

		// 领域取自一级子目录名
		domain := "general"
		if rel, relErr := filepath.Rel(dir, path); relErr == nil {
			if d := filepath.Dir(rel); d != "." {
				domain = filepath.ToSlash(d)
			}
		}

		// 幂等检查：已完成入库则跳过
		if existing, findErr := documentRepo.FindByFileMD5(fileMD5); findErr == nil && existing.Status == model.DocStatusCompleted {
			log.Infof("initSeedReports: 已存在，跳过: %s (md5=%s)", fileName, fileMD5)
			return nil
		}

		objectName := fmt.Sprintf("reports/%s", fileName)
		if _, putErr := storage.MinioClient.PutObject(ctx, cfg.MinIO.BucketName, objectName,
			bytes.NewReader(content), int64(len(content)), minio.PutObjectOptions{}); putErr != nil {
			log.Warnf("initSeedReports: 写入对象存储失败: %s, err=%v", fileName, putErr)
			return nil
		}

		doc := &model.Document{
			FileMD5:   fileMD5,
			FileName:  fileName,
			Domain:    domain,
			TotalSize: int64(len(content)),
			Status:    model.DocStatusPending,
			UserID:    0, // 共享资源，不归属任何用户
		}
		if createErr := documentRepo.Create(doc); createErr != nil {
			if updateErr := documentRepo.UpdateStatus(fileMD5, model.DocStatusPending, 0); updateErr != nil {
				log.Warnf("initSeedReports: 登记文档记录失败: %s, err=%v", fileName, createErr)
				return nil
			}
		}

		task := tasks.DocumentIngestTask{
			FileMD5:    fileMD5,
			FileName:   fileName,
			ObjectName: objectName,
			Domain:     domain,
			UserID:     0,
			Namespace:  vector.NamespaceReports,
		}
		if prodErr := kafka.ProduceIngestTask(task); prodErr != nil {
			log.Warnf("initSeedReports: 投递入库任务失败: %s, err=%v", fileName, prodErr)
			return nil
		}
		log.Infof("initSeedReports: 已触发报告入库: %s (domain=%s)", fileName, domain)
		return nil
	})
	if walkErr != nil {
		log.Warnf("initSeedReports: 遍历目录发生错误: %v", walkErr)
	}
}
