// Package main 是应用程序的入口点。
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"pdf-faq-go/internal/config"
	"pdf-faq-go/internal/handler"
	"pdf-faq-go/internal/pipeline"
	"pdf-faq-go/internal/repository"
	"pdf-faq-go/internal/service"
	"pdf-faq-go/internal/vectorindex"
	"pdf-faq-go/pkg/database"
	"pdf-faq-go/pkg/embedding"
	"pdf-faq-go/pkg/es"
	"pdf-faq-go/pkg/kafka"
	"pdf-faq-go/pkg/llm"
	"pdf-faq-go/pkg/log"
	"pdf-faq-go/pkg/storage"
	"pdf-faq-go/pkg/tika"
	"pdf-faq-go/pkg/token"

	"github.com/gin-gonic/gin"
)

// 逐词推送答案的间隔
const chatWordDelay = 50 * time.Millisecond

func main() {
	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 3. 初始化记录存储和 Redis
	store, userRepository := initRecordStore(cfg)
	historyRepo := repository.NewMemoryHistoryRepository()
	if cfg.Database.Redis.Addr != "" {
		if err := database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB); err != nil {
			log.Warnf("Redis 不可用，问答历史保存在内存中: %v", err)
		} else {
			historyRepo = repository.NewHistoryRepository(database.RDB)
		}
	}

	// 4. 初始化对象存储和索引存储
	objects := initObjectStore(cfg)
	artifacts := initArtifactStore(cfg)

	// 5. 加载 embedding 模型，失败时无法提供服务
	embeddingClient, err := embedding.Load(context.Background(), cfg.Embedding)
	if err != nil {
		log.Fatal("加载 embedding 模型失败", err)
	}
	indexes := vectorindex.NewManager(vectorindex.NewRepository(artifacts), store, embeddingClient.Dimension())

	// 6. 可选的 Elasticsearch 段落镜像
	var mirror pipeline.PassageMirror
	var remover service.PassageRemover
	var searcher service.PassageSearcher
	if cfg.Elasticsearch.Addresses != "" {
		passageIndex, err := es.InitES(cfg.Elasticsearch)
		if err != nil {
			log.Errorf("es 初始化失败，段落检索不可用: %s", err)
		} else {
			mirror, remover, searcher = passageIndex, passageIndex, passageIndex
		}
	}

	// 7. 初始化文件处理管道 (Processor)
	tikaClient := tika.NewClient(cfg.Tika)
	processor := pipeline.NewProcessor(
		objects,
		pipeline.NewExtractor(tikaClient),
		pipeline.NewChunker(cfg.Chunking.MaxSize, cfg.Chunking.Overlap),
		embeddingClient,
		store,
		indexes,
		mirror,
	)

	// 8. 任务队列：配置了 Kafka 时使用消费者组，否则在进程内处理
	consumerCtx, stopConsumers := context.WithCancel(context.Background())
	defer stopConsumers()
	var consumersDone sync.WaitGroup
	var queue service.IngestQueue
	var closeQueue func()
	if strings.TrimSpace(cfg.Kafka.Brokers) != "" {
		if database.RDB == nil {
			log.Fatalf("Kafka 模式需要 Redis 记录任务重试次数")
		}
		producer := kafka.NewProducer(cfg.Kafka)
		queue = producer
		closeQueue = func() {
			if err := producer.Close(); err != nil {
				log.Errorf("关闭 Kafka 生产者失败: %v", err)
			}
		}
		consumersDone.Add(1)
		go func() {
			defer consumersDone.Done()
			kafka.StartConsumers(consumerCtx, cfg.Kafka, processor, kafka.NewRedisAttemptCounter(database.RDB))
		}()
	} else {
		inline := pipeline.NewInlineQueue(processor, cfg.Kafka.Workers)
		queue = inline
		closeQueue = inline.Close
	}

	// 9. 初始化 Service (依赖注入)
	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours)
	var llmClient llm.Client
	if cfg.LLM.RemoteEnabled() {
		llmClient = llm.NewClient(cfg.LLM)
	}
	generator := service.NewAnswerGenerator(cfg.LLM, llmClient, store)
	retrievalService := service.NewRetrievalService(embeddingClient, indexes, store)

	// 10. 设置 Gin 模式并注册路由
	gin.SetMode(cfg.Server.Mode)
	router := handler.SetupRouter(handler.RouterDeps{
		UserService:     service.NewUserService(userRepository, jwtManager),
		DocumentService: service.NewDocumentService(store, objects, queue, indexes, remover, tikaClient.Enabled()),
		QAService:       service.NewQAService(store, retrievalService, generator, historyRepo, cfg.QA.TopK),
		SearchService:   service.NewSearchService(searcher),
		JWTManager:      jwtManager,
		WordDelay:       chatWordDelay,
	})

	// 11. 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
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
		log.Errorf("HTTP 服务器关闭失败: %v", err)
	}

	// 先停止接收任务，再等待正在处理的文档完成
	stopConsumers()
	closeQueue()
	consumersDone.Wait()
	log.Info("服务已优雅关闭")
}

// initRecordStore 根据 store.driver 选择 MySQL 或内存存储。
func initRecordStore(cfg config.Config) (repository.RecordStore, repository.UserRepository) {
	switch cfg.Store.Driver {
	case "memory":
		log.Warnf("使用内存存储，重启后数据会丢失")
		return repository.NewMemoryRecordStore(), repository.NewMemoryUserRepository()
	case "", "mysql":
		if err := database.InitMySQL(cfg.Database.MySQL.DSN); err != nil {
			log.Fatal("MySQL 初始化失败", err)
		}
		if err := repository.AutoMigrate(database.DB); err != nil {
			log.Fatal("数据库迁移失败", err)
		}
		return repository.NewGormRecordStore(database.DB), repository.NewUserRepository(database.DB)
	default:
		log.Fatalf("未知的存储驱动: %s", cfg.Store.Driver)
		return nil, nil
	}
}

// initObjectStore 配置了 MinIO 时使用 MinIO，否则使用本地目录。
func initObjectStore(cfg config.Config) storage.ObjectStore {
	if cfg.MinIO.Endpoint != "" {
		if err := storage.InitMinIO(cfg.MinIO); err != nil {
			log.Fatal("MinIO 初始化失败", err)
		}
		return storage.NewObjectStore(storage.MinioClient, cfg.MinIO.BucketName)
	}
	objects, err := storage.NewLocalObjectStore(cfg.Store.UploadDir)
	if err != nil {
		log.Fatal("初始化本地文件存储失败", err)
	}
	log.Infof("上传文件保存在本地目录 %s", cfg.Store.UploadDir)
	return objects
}

// initArtifactStore 选择索引文件的持久化位置。
func initArtifactStore(cfg config.Config) vectorindex.ArtifactStore {
	if cfg.Index.Backend == "minio" {
		if storage.MinioClient == nil {
			log.Fatalf("index.backend=minio 需要配置 minio.endpoint")
		}
		bucket := cfg.Index.Bucket
		if bucket == "" {
			bucket = cfg.MinIO.BucketName
		}
		if err := storage.EnsureBucket(context.Background(), storage.MinioClient, bucket); err != nil {
			log.Fatal("索引存储桶初始化失败", err)
		}
		return storage.NewMinioArtifactStore(storage.MinioClient, bucket, cfg.Index.Dir)
	}
	files, err := vectorindex.NewFileStore(cfg.Index.Dir)
	if err != nil {
		log.Fatal("初始化索引目录失败", err)
	}
	return files
}
