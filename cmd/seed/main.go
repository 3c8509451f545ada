package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/xela07ax/fraud-sentinel-prototype/internal/domain"
	"github.com/xela07ax/fraud-sentinel-prototype/internal/infra"
	"github.com/xela07ax/fraud-sentinel-prototype/internal/providers"
	"github.com/xela07ax/fraud-sentinel-prototype/internal/repository/postgres"

	"go.uber.org/zap"
)

/*
Сидер начального состояния для локального стенда:
  - корпус внутренних политик -> Qdrant (коллекция пересоздается);
  - поведенческие профили тестовых клиентов -> Postgres;
  - учетка ревьюера для HITL-консоли -> Postgres.

Запуск: go run ./cmd/seed -reviewer-password <пароль>
*/

// Корпус правил. Версионирование позволяет арбитру ссылаться
// на конкретную редакцию политики в rationale.
var policyCorpus = []providers.PolicyRecord{
	{PolicyID: "FP-01", Version: "2.3", Rule: "Amount greater than 3x the customer's usual average combined with an off-hours timestamp: CHALLENGE the transaction."},
	{PolicyID: "FP-02", Version: "1.7", Rule: "International transaction from an unrecognized device: ESCALATE_TO_HUMAN regardless of amount."},
	{PolicyID: "FP-03", Version: "3.1", Rule: "Transaction country outside the customer's usual set with amount above 1000: BLOCK unless the customer recently traveled."},
	{PolicyID: "FP-04", Version: "1.2", Rule: "First transaction on a new device within the customer's usual country and below the usual average: APPROVE with monitoring."},
	{PolicyID: "FP-05", Version: "2.0", Rule: "Velocity pattern: more than three card-not-present transactions within one hour: CHALLENGE and request step-up authentication."},
	{PolicyID: "FP-06", Version: "1.4", Rule: "ATM withdrawal at night outside usual hours for an amount above 2x average: ESCALATE_TO_HUMAN."},
}

var behaviorProfiles = []domain.BehaviorProfile{
	{CustomerID: "cust-1001", UsualAmountAvg: 120.50, UsualHours: "08-20", UsualCountries: []string{"PE", "CL"}, UsualDevices: []string{"dev-ios-77", "dev-web-12"}},
	{CustomerID: "cust-1002", UsualAmountAvg: 2400.00, UsualHours: "09-18", UsualCountries: []string{"US"}, UsualDevices: []string{"dev-and-41"}},
	{CustomerID: "cust-1003", UsualAmountAvg: 45.00, UsualHours: "10-22", UsualCountries: []string{"PE"}, UsualDevices: []string{"dev-pos-03", "dev-web-55", "dev-ios-09"}},
}

func main() {
	reviewerPassword := flag.String("reviewer-password", "", "password for the seeded HITL reviewer account")
	flag.Parse()
	if *reviewerPassword == "" {
		log.Fatal("-reviewer-password is required")
	}

	cfg, err := infra.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	// 1. Postgres: профили и учетка ревьюера
	repo := postgres.NewSentinelRepo(cfg.Database.URL)
	defer repo.Close()
	if err := repo.Ping(ctx); err != nil {
		log.Fatalf("Database unreachable: %v", err)
	}

	for i := range behaviorProfiles {
		if err := repo.UpsertBehaviorProfile(ctx, &behaviorProfiles[i]); err != nil {
			log.Fatalf("failed to seed behavior profile %s: %v", behaviorProfiles[i].CustomerID, err)
		}
	}
	logger.Info("behavior profiles seeded", zap.Int("count", len(behaviorProfiles)))

	hash, err := bcrypt.GenerateFromPassword([]byte(*reviewerPassword), cfg.Auth.BcryptCost)
	if err != nil {
		log.Fatalf("failed to hash reviewer password: %v", err)
	}
	reviewer := &domain.Reviewer{
		ID:           uuid.New().String(),
		Email:        "analyst@sentinel.local",
		Username:     "analyst",
		PasswordHash: string(hash),
		Scopes: map[string]bool{
			domain.ScopeHITLReview:       true,
			domain.ScopeTransactionsRead: true,
		},
	}
	if err := repo.CreateReviewer(ctx, reviewer); err != nil {
		log.Fatalf("failed to seed reviewer: %v", err)
	}
	logger.Info("reviewer seeded", zap.String("username", reviewer.Username))

	// 2. Qdrant: корпус политик
	embedder := providers.NewEmbeddingClient(providers.EmbeddingConfig{
		BaseURL: cfg.Reasoning.BaseURL,
		APIKey:  cfg.Reasoning.APIKey,
		Model:   cfg.Reasoning.EmbeddingModel,
	})
	qdrant := providers.NewQdrant(providers.QdrantConfig{
		BaseURL:    cfg.PolicySearch.BaseURL,
		Collection: cfg.PolicySearch.Collection,
		TopK:       cfg.PolicySearch.TopK,
		Timeout:    cfg.PolicySearch.Timeout,
	}, embedder, logger)

	// Размерность коллекции определяем по первому вектору
	vectors := make([][]float32, len(policyCorpus))
	for i, rec := range policyCorpus {
		v, err := embedder.Embed(ctx, rec.Rule)
		if err != nil {
			log.Fatalf("failed to embed policy %s: %v", rec.PolicyID, err)
		}
		vectors[i] = v
	}

	if err := qdrant.EnsureCollection(ctx, len(vectors[0])); err != nil {
		log.Fatalf("failed to create collection: %v", err)
	}
	for i, rec := range policyCorpus {
		if err := qdrant.Upsert(ctx, i+1, rec, vectors[i]); err != nil {
			log.Fatalf("failed to upsert policy %s: %v", rec.PolicyID, err)
		}
	}
	logger.Info("policy corpus seeded",
		zap.String("collection", cfg.PolicySearch.Collection),
		zap.Int("count", len(policyCorpus)))
}
