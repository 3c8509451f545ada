package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/fraud-sentinel-prototype/internal/anomaly"
	"github.com/xela07ax/fraud-sentinel-prototype/internal/arbiter"
	"github.com/xela07ax/fraud-sentinel-prototype/internal/audit"
	"github.com/xela07ax/fraud-sentinel-prototype/internal/debate"
	"github.com/xela07ax/fraud-sentinel-prototype/internal/evidence"
	"github.com/xela07ax/fraud-sentinel-prototype/internal/explain"
	"github.com/xela07ax/fraud-sentinel-prototype/internal/infra"
	"github.com/xela07ax/fraud-sentinel-prototype/internal/infra/auth"
	"github.com/xela07ax/fraud-sentinel-prototype/internal/metrics"
	"github.com/xela07ax/fraud-sentinel-prototype/internal/providers"
	"github.com/xela07ax/fraud-sentinel-prototype/internal/queue"
	"github.com/xela07ax/fraud-sentinel-prototype/internal/reasoning"
	"github.com/xela07ax/fraud-sentinel-prototype/internal/repository/postgres"
	"github.com/xela07ax/fraud-sentinel-prototype/internal/server"
	"github.com/xela07ax/fraud-sentinel-prototype/internal/server/handler"
	"github.com/xela07ax/fraud-sentinel-prototype/internal/service"
	"github.com/xela07ax/fraud-sentinel-prototype/internal/workflow"
)

func main() {
	// 1. Конфигурация (файл + ENV)
	cfg, err := infra.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	// 2. Инфраструктура и ресурсы
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	sentinelRepo := postgres.NewSentinelRepo(cfg.Database.URL)
	auditRepo := postgres.NewAuditRepo(cfg.Database.URL)
	// Проверяем соединение с таймаутом
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := sentinelRepo.Ping(pingCtx); err != nil {
		log.Fatalf("Database unreachable: %v", err)
	}
	cancel()

	// Журнал аудита: события летят в базу пачками
	recorder := audit.NewRecorder(auditRepo, logger)
	recorder.Start()

	// 3. Внешние коллабораторы
	llm := reasoning.NewClient(reasoning.ClientConfig{
		BaseURL:     cfg.Reasoning.BaseURL,
		APIKey:      cfg.Reasoning.APIKey,
		Model:       cfg.Reasoning.Model,
		Timeout:     cfg.Reasoning.Timeout,
		MaxAttempts: cfg.Reasoning.MaxAttempts,
		RateLimit:   cfg.Reasoning.RateLimit,
		RateBurst:   cfg.Reasoning.RateBurst,
	}, logger)

	embedder := providers.NewEmbeddingClient(providers.EmbeddingConfig{
		BaseURL: cfg.Reasoning.BaseURL,
		APIKey:  cfg.Reasoning.APIKey,
		Model:   cfg.Reasoning.EmbeddingModel,
	})

	// Метрики
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)

	breakerGauge := func(name string, open bool) {
		state := 0.0
		if open {
			state = 1.0
		}
		m.CircuitBreakerState.WithLabelValues(name).Set(state)
	}

	policySearch := providers.NewQdrant(providers.QdrantConfig{
		BaseURL:         cfg.PolicySearch.BaseURL,
		Collection:      cfg.PolicySearch.Collection,
		TopK:            cfg.PolicySearch.TopK,
		Timeout:         cfg.PolicySearch.Timeout,
		OnBreakerChange: breakerGauge,
	}, embedder, logger)

	threatFeed := providers.NewThreatFeed(providers.ThreatFeedConfig{
		BaseURL:         cfg.ThreatFeed.BaseURL,
		APIKey:          cfg.ThreatFeed.APIKey,
		Model:           cfg.ThreatFeed.Model,
		Timeout:         cfg.ThreatFeed.Timeout,
		OnBreakerChange: breakerGauge,
	}, logger)

	// 4. Core (сборка пайплайна)
	stageTimeout := cfg.Workflow.StageTimeout
	pipeline := workflow.NewEngine(
		workflow.NewScoreStage(anomaly.NewEngine()),
		evidence.NewBehavioralStage(llm, stageTimeout, logger),
		evidence.NewPolicyStage(policySearch, stageTimeout, logger),
		evidence.NewThreatStage(threatFeed, stageTimeout, logger),
		debate.NewStage(llm, stageTimeout, logger),
		arbiter.NewStage(llm, stageTimeout, logger),
		explain.NewStage(llm, stageTimeout, logger),
		workflow.Config{
			DebateRiskThreshold: cfg.Workflow.DebateRiskThreshold,
			ConfidenceFloor:     cfg.Workflow.ConfidenceFloor,
		},
		m,
		logger,
	)

	// 5. Инициализация слоев (Dependency Injection)
	escalations := queue.NewRedis(rdb, logger)
	analysisService := service.NewAnalysisService(pipeline, sentinelRepo, sentinelRepo, escalations, recorder, m, logger)
	reviewService := service.NewReviewService(escalations, sentinelRepo, recorder, m, logger)

	// Контур RS256: сервис подписывает закрытым ключом, middleware проверяет открытым
	privateKey, err := auth.ParseRSAPrivateKey(cfg.Auth.PrivateKey)
	if err != nil {
		log.Fatalf("failed to parse private key: %v", err)
	}
	publicKey, err := auth.ParseRSAPublicKey(cfg.Auth.PublicKey)
	if err != nil {
		log.Fatalf("failed to parse public key: %v", err)
	}
	authService := service.NewAuthService(sentinelRepo, privateKey, cfg.Auth.TokenTTL)
	validator := auth.NewBaseValidator(publicKey)

	api := server.NewServer(
		cfg,
		logger,
		validator,
		handler.NewAuthHandler(authService),
		handler.NewAnalysisHandler(analysisService, service.ValidateTransaction),
		handler.NewHITLHandler(reviewService),
		reg,
	)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      api,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 6. Graceful Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("Fraud Sentinel API started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	<-stop // Ждем сигнал
	logger.Info("Fraud Sentinel stopping...")

	// Даем 5 секунд на завершение запросов
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}

	// Дожимаем буфер аудита в базу перед выходом
	recorder.Stop()
	sentinelRepo.Close()
	auditRepo.Close()
	logger.Info("Fraud Sentinel exited properly")
}
