package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/ibtisamdev/reva-sub001/internal/audit"
	"github.com/ibtisamdev/reva-sub001/internal/chat"
	revaconfig "github.com/ibtisamdev/reva-sub001/internal/config"
	"github.com/ibtisamdev/reva-sub001/internal/knowledge"
	"github.com/ibtisamdev/reva-sub001/internal/mcpclient"
	"github.com/ibtisamdev/reva-sub001/internal/mcpspoke"
	"github.com/ibtisamdev/reva-sub001/internal/tools"
	"github.com/ibtisamdev/reva-sub001/pkg/cache"
	"github.com/ibtisamdev/reva-sub001/pkg/config"
	"github.com/ibtisamdev/reva-sub001/pkg/database"
	"github.com/ibtisamdev/reva-sub001/pkg/kafka"
	"github.com/ibtisamdev/reva-sub001/pkg/llm"
	"github.com/ibtisamdev/reva-sub001/pkg/logging"
	"github.com/ibtisamdev/reva-sub001/pkg/middleware"
	"github.com/ibtisamdev/reva-sub001/pkg/monitoring"
	"github.com/ibtisamdev/reva-sub001/pkg/redis"
	"github.com/ibtisamdev/reva-sub001/pkg/server"
	"github.com/ibtisamdev/reva-sub001/pkg/version"
)

const serviceName = "reva"

func main() {
	logger := logging.NewLoggerWithService(serviceName)
	config.LoadEnv(logger)

	logger.WithField("version", version.Version).WithField("commit", version.GetShortCommit()).Info("Starting Reva (shopping assistant API)")

	cfg := revaconfig.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("Invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	healthChecker := monitoring.NewHealthChecker(serviceName, version.Version)
	metricsCollector := monitoring.NewMetricsCollector(serviceName, version.Version, version.GitCommit, nil)
	healthChecker.AddCheck("config", monitoring.ConfigurationHealthCheck(map[string]string{
		"PORT":      cfg.Port,
		"LLM_MODEL": cfg.LLM.Model,
	}))

	// Knowledge index: pgvector store behind an in-process cache, shared
	// through Redis when configured.
	var index knowledge.Index
	if cfg.KnowledgeEnabled() {
		dbConfig := database.DefaultConfig()
		dbConfig.URL = cfg.DatabaseURL
		db, err := database.Connect(ctx, dbConfig, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to database")
		}
		defer func() { _ = db.Close() }()
		if err := database.ApplySchema(ctx, db); err != nil {
			logger.WithError(err).Fatal("Failed to apply knowledge schema")
		}

		store := knowledge.NewStore(db)
		healthChecker.AddCheck("database", monitoring.PingHealthCheck("database", store.Ping, false))

		embedder, err := llm.NewEmbeddingClient(cfg.Embedding)
		if err != nil {
			logger.WithError(err).Fatal("Failed to initialize embedding client")
		}
		vectorIndex, err := knowledge.NewVectorIndex(embedder, store)
		if err != nil {
			logger.WithError(err).Fatal("Failed to initialize knowledge index")
		}

		var remote cache.Remote
		if len(cfg.RedisAddrs) > 0 {
			client, err := redis.NewUniversalClient(ctx, redis.Config{
				Addrs:    cfg.RedisAddrs,
				Password: cfg.RedisPassword,
				DB:       cfg.RedisDB,
			})
			if err != nil {
				logger.WithError(err).Warn("Redis unavailable - retrieval cache is process-local")
			} else {
				defer func() { _ = client.Close() }()
				remote = redis.NewKV(client, "reva:retrieval:")
				healthChecker.AddCheck("redis", monitoring.PingHealthCheck("redis", func(ctx context.Context) error {
					return client.Ping(ctx).Err()
				}, true))
			}
		}
		index = knowledge.NewCachedIndex(vectorIndex, knowledge.CacheConfig{
			TTL:    cfg.KnowledgeCacheTTL,
			Remote: remote,
		})
	} else {
		logger.Warn("DATABASE_URL not set - turns run without knowledge context")
	}

	// Commerce tools over MCP, wrapped with retries and breakers.
	var invoker tools.Invoker
	if cfg.CommerceMCPURL != "" {
		commerce, err := mcpclient.New(ctx, mcpclient.Config{
			URL:           cfg.CommerceMCPURL,
			ServiceToken:  cfg.CommerceServiceToken,
			ToolAllowlist: cfg.ToolAllowlist,
			Logger:        logger,
		})
		if err != nil {
			logger.WithError(err).Warn("Commerce MCP unavailable - product and order tools disabled")
		} else {
			defer func() { _ = commerce.Close() }()
			logger.WithField("tools", strings.Join(commerce.Tools(), ",")).Info("Connected to commerce MCP")
			healthChecker.AddCheck("commerce_mcp", monitoring.PingHealthCheck("commerce_mcp", commerce.Ping, true))
			invoker = tools.NewResilient(commerce, tools.ResilienceConfig{
				MaxRetries: cfg.ToolMaxRetries,
				Timeout:    cfg.ToolTimeout,
				Logger:     logger,
			})
		}
	} else {
		logger.Warn("COMMERCE_MCP_URL not set - handlers answer from knowledge context only")
	}

	var capability chat.ClassifierCapability = chat.KeywordClassifier{}
	if cfg.ClassifierEnabled() {
		provider, err := llm.NewProvider(cfg.Classifier)
		if err != nil {
			logger.WithError(err).Warn("Failed to initialize classifier LLM - using keyword classifier")
		} else {
			capability = chat.NewLLMClassifier(provider)
		}
	}

	var responder chat.Responder
	if cfg.ResponderEnabled() {
		provider, err := llm.NewProvider(cfg.LLM)
		if err != nil {
			logger.WithError(err).Warn("Failed to initialize LLM provider - using template replies")
		} else {
			responder = chat.NewLLMResponder(provider)
			if cfg.LLM.APIURL != "" {
				healthChecker.AddCheck("llm", monitoring.HTTPServiceHealthCheck("llm", strings.TrimRight(cfg.LLM.APIURL, "/")+"/models", true))
			}
		}
	}

	executor, err := chat.NewExecutor(chat.ExecutorConfig{
		Classifier: chat.NewIntentClassifier(chat.ClassifierConfig{
			Capability: capability,
			Timeout:    cfg.ClassifierTimeout,
			MaxHistory: cfg.MaxHistory,
			Logger:     logger,
		}),
		Index:           index,
		Tools:           invoker,
		Responder:       responder,
		TopK:            cfg.KnowledgeTopK,
		MaxParallelTool: cfg.ToolMaxParallel,
		MaxHistory:      cfg.MaxHistory,
		Logger:          logger,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to build turn executor")
	}

	var observer chat.TurnObserver
	if len(cfg.KafkaBrokers) > 0 {
		producer, err := kafka.NewProducer(cfg.KafkaBrokers, serviceName, logger)
		if err != nil {
			logger.WithError(err).Warn("Failed to create Kafka producer - turn audit disabled")
		} else {
			defer func() { _ = producer.Close() }()
			healthChecker.AddCheck("kafka", monitoring.PingHealthCheck("kafka", producer.Ping, true))
			observer = audit.NewPublisher(producer, cfg.AuditTopic, logger)
		}
	} else {
		logger.Warn("KAFKA_BROKERS not set - turn audit disabled")
	}

	router := server.SetupServiceRouter(logger, serviceName, healthChecker, metricsCollector)
	apiGroup := router.Group("/api/assistant")
	apiGroup.Use(middleware.ServiceAuthMiddleware(cfg.ServiceToken))
	chat.RegisterRoutes(apiGroup, chat.NewTurnHandler(executor, observer, logger, cfg.TurnTimeout))

	spoke := mcpspoke.NewHandler(mcpspoke.Config{
		Runner:      executor,
		Index:       index,
		Logger:      logger,
		SearchLimit: cfg.KnowledgeTopK,
		TurnTimeout: cfg.TurnTimeout,
	})
	router.Any("/mcp/*path", middleware.ServiceAuthMiddleware(cfg.ServiceToken), gin.WrapH(spoke))

	serverConfig := server.DefaultConfig(serviceName, cfg.Port)
	if err := server.Start(ctx, serverConfig, router, logger); err != nil {
		logger.WithError(err).Fatal("Server startup failed")
	}
}
