package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/xela07ax/fraud-sentinel-prototype/internal/domain"
)

/*
Клиент векторного поиска Qdrant (REST API) для корпуса внутренних политик.

Поиск двухфазный: текст запроса -> эмбеддинг -> query_points по коллекции.
Вызовы обернуты предохранителем: если Qdrant деградировал, быстрые отказы
уходят в best-effort стадию policy_evidence вместо таймаутов на каждом
запросе пайплайна.
*/

// DefaultPolicyTopK — число правил на запрос.
const DefaultPolicyTopK = 2

type QdrantConfig struct {
	BaseURL    string
	Collection string
	TopK       int
	Timeout    time.Duration

	// OnBreakerChange получает переходы предохранителя (для метрик). Допускается nil.
	OnBreakerChange func(name string, open bool)
}

// Qdrant реализует evidence.PolicySearcher.
type Qdrant struct {
	cfg      QdrantConfig
	embedder Embedder
	http     *http.Client
	cb       *gobreaker.CircuitBreaker
	logger   *zap.Logger
	now      func() time.Time
}

func NewQdrant(cfg QdrantConfig, embedder Embedder, logger *zap.Logger) *Qdrant {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultPolicyTopK
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	// Настройка предохранителя
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "qdrant-policy-search",
		MaxRequests: 3,
		Interval:    5 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		OnStateChange: func(name string, _, to gobreaker.State) {
			if cfg.OnBreakerChange != nil {
				cfg.OnBreakerChange(name, to == gobreaker.StateOpen)
			}
		},
	})

	return &Qdrant{
		cfg:      cfg,
		embedder: embedder,
		http:     &http.Client{Timeout: cfg.Timeout},
		cb:       cb,
		logger:   logger.Named("qdrant"),
		now:      time.Now,
	}
}

type qdrantQueryRequest struct {
	Query       []float32 `json:"query"`
	Limit       int       `json:"limit"`
	WithPayload bool      `json:"with_payload"`
}

type qdrantQueryResponse struct {
	Result struct {
		Points []struct {
			Score   float64 `json:"score"`
			Payload struct {
				PolicyID string `json:"policy_id"`
				Rule     string `json:"rule"`
				Version  string `json:"version"`
			} `json:"payload"`
		} `json:"points"`
	} `json:"result"`
}

// Search возвращает top-k правил, ранжированных по близости к запросу.
func (q *Qdrant) Search(ctx context.Context, query string) ([]domain.PolicyEvidence, error) {
	result, err := q.cb.Execute(func() (interface{}, error) {
		vector, err := q.embedder.Embed(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("embed query: %w", err)
		}
		return q.queryPoints(ctx, vector)
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.PolicyEvidence), nil
}

func (q *Qdrant) queryPoints(ctx context.Context, vector []float32) ([]domain.PolicyEvidence, error) {
	body, err := json.Marshal(qdrantQueryRequest{
		Query:       vector,
		Limit:       q.cfg.TopK,
		WithPayload: true,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal qdrant query: %w", err)
	}

	url := fmt.Sprintf("%s/collections/%s/points/query", q.cfg.BaseURL, q.cfg.Collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := q.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("qdrant call: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read qdrant response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("qdrant API error (%d)", resp.StatusCode)
	}

	var parsed qdrantQueryResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("decode qdrant response: %w", err)
	}

	retrievedAt := q.now().UTC()
	out := make([]domain.PolicyEvidence, 0, len(parsed.Result.Points))
	for i, p := range parsed.Result.Points {
		out = append(out, domain.PolicyEvidence{
			Rank:        i + 1,
			PolicyID:    p.Payload.PolicyID,
			Rule:        p.Payload.Rule,
			Version:     p.Payload.Version,
			Similarity:  p.Score,
			RetrievedAt: retrievedAt,
		})
	}
	return out, nil
}

// PolicyRecord — единица корпуса политик для начальной загрузки.
type PolicyRecord struct {
	PolicyID string `json:"policy_id"`
	Rule     string `json:"rule"`
	Version  string `json:"version"`
}

// EnsureCollection пересоздает коллекцию под размерность эмбеддера.
func (q *Qdrant) EnsureCollection(ctx context.Context, vectorSize int) error {
	url := fmt.Sprintf("%s/collections/%s", q.cfg.BaseURL, q.cfg.Collection)
	body, err := json.Marshal(map[string]interface{}{
		"vectors": map[string]interface{}{"size": vectorSize, "distance": "Cosine"},
	})
	if err != nil {
		return err
	}
	return q.doSimple(ctx, http.MethodPut, url, body)
}

// Upsert заливает правило в коллекцию. Используется сидером корпуса.
func (q *Qdrant) Upsert(ctx context.Context, id int, rec PolicyRecord, vector []float32) error {
	url := fmt.Sprintf("%s/collections/%s/points?wait=true", q.cfg.BaseURL, q.cfg.Collection)
	body, err := json.Marshal(map[string]interface{}{
		"points": []map[string]interface{}{
			{"id": id, "vector": vector, "payload": rec},
		},
	})
	if err != nil {
		return err
	}
	return q.doSimple(ctx, http.MethodPut, url, body)
}

func (q *Qdrant) doSimple(ctx context.Context, method, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := q.http.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant call: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("qdrant API error (%d) on %s", resp.StatusCode, url)
	}
	return nil
}
