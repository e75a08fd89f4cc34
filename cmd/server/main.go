// Package main 是应用程序的入口点。
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"studymate-go/internal/chunker"
	"studymate-go/internal/config"
	"studymate-go/internal/handler"
	"studymate-go/internal/middleware"
	"studymate-go/internal/pipeline"
	"studymate-go/internal/repository"
	"studymate-go/internal/service"
	"studymate-go/internal/session"
	"studymate-go/pkg/database"
	"studymate-go/pkg/embedding"
	"studymate-go/pkg/events"
	"studymate-go/pkg/extract"
	"studymate-go/pkg/llm"
	"studymate-go/pkg/log"
	"studymate-go/pkg/storage"
	"studymate-go/pkg/token"
	"studymate-go/pkg/vectorstore"
)

func main() {
	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 3. 初始化可选的旁路组件（未配置的组件直接跳过，核心问答不依赖它们）
	if cfg.Database.MySQL.DSN != "" {
		database.InitMySQL(cfg.Database.MySQL.DSN)
	}
	if cfg.Database.Redis.Addr != "" {
		database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	}
	if cfg.MinIO.Endpoint != "" {
		storage.InitMinIO(cfg.MinIO)
	}
	if cfg.Kafka.Brokers != "" {
		events.InitProducer(cfg.Kafka)
		defer events.Close()
	}

	// 4. 选择向量索引后端
	var factory vectorstore.Factory
	switch cfg.VectorStore.Backend {
	case "elasticsearch":
		var err error
		factory, err = vectorstore.NewESFactory(cfg.Elasticsearch, cfg.Embedding.Dimensions)
		if err != nil {
			log.Fatalf("Elasticsearch 初始化失败: %v", err)
		}
		log.Info("向量索引后端: elasticsearch")
	default:
		factory = vectorstore.NewMemoryFactory()
		log.Info("向量索引后端: memory")
	}

	// 5. 初始化 Repository 与各客户端
	uploadRepo := repository.NewUploadRepository()
	conversationRepo := repository.NewConversationRepository()

	jwtManager := token.NewJWTManager(cfg.Session.JWTSecret, cfg.Session.TokenExpireHour)
	extractClient := extract.NewClient(cfg.Tika)
	embeddingClient := embedding.NewClient(cfg.Embedding)
	llmClient := llm.NewClient(cfg.LLM)

	// 6. 初始化 Service (依赖注入)
	sessions := session.NewStore(factory)
	processor := pipeline.NewProcessor(
		cfg.Upload,
		extractClient,
		embeddingClient,
		chunker.New(cfg.Chunking),
		uploadRepo,
	)
	retriever := service.NewRetrieverService(cfg.Retrieval, embeddingClient)
	generator := service.NewGeneratorService(cfg.LLM, llmClient)
	assistant := service.NewAssistantService(sessions, processor, retriever, generator, llmClient, conversationRepo)

	// 7. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	// 添加我们自定义的日志中间件和 Gin 的 Recovery 中间件
	r.Use(middleware.RequestLogger(), gin.Recovery())

	// 8. 注册路由
	assistantHandler := handler.NewAssistantHandler(assistant, jwtManager)
	chatHandler := handler.NewChatHandler(assistant, generator, llmClient, jwtManager)

	apiV1 := r.Group("/api/v1")
	{
		// 会话创建是唯一无需令牌的接口
		apiV1.POST("/session", assistantHandler.CreateSession)

		// 问答助手路由组，需要会话令牌
		assistantGroup := apiV1.Group("/assistant")
		assistantGroup.Use(middleware.SessionAuth(jwtManager))
		{
			assistantGroup.POST("/upload", assistantHandler.Upload)
			assistantGroup.POST("/ask", assistantHandler.Ask)
			assistantGroup.GET("/status", assistantHandler.Status)
			assistantGroup.POST("/clear", assistantHandler.Clear)
			assistantGroup.GET("/conversation", assistantHandler.Conversation)
		}
	}
	// Chat 路由 (WebSocket)，令牌通过路径参数传递
	r.GET("/chat/:token", chatHandler.Handle)

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

	// 设置一个5秒的超时上下文
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// 关闭 HTTP 服务器
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("HTTP 服务器关闭失败: %v", err)
	}

	log.Info("服务已优雅关闭")
}
