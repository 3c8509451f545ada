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
	"github.com/xela07ax/fraud-sentinel-prototype/internal/reasoning"
)

/*
Клиент threat intelligence: поисковый LLM-сервис с доступом в веб
(Perplexity-совместимый chat/completions). Сервис просят вернуть
строгий JSON со списком свежих фрод-кейсов; нечитаемый ответ — ошибка,
стадия threat_evidence превратит ее в пустой список.
*/

const threatPrompt = `Search for recent information about financial fraud related to: %s
Identify up to 3 most relevant recent cases.

ALWAYS respond with JSON of the form:
{"threats": [{"url": "<source url>", "summary": "<100-150 chars>", "fraud_type": "<category>"}]}`

type ThreatFeedConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration

	// OnBreakerChange получает переходы предохранителя (для метрик). Допускается nil.
	OnBreakerChange func(name string, open bool)
}

// ThreatFeed реализует evidence.ThreatSearcher.
type ThreatFeed struct {
	cfg    ThreatFeedConfig
	http   *http.Client
	cb     *gobreaker.CircuitBreaker
	logger *zap.Logger
	now    func() time.Time
}

func NewThreatFeed(cfg ThreatFeedConfig, logger *zap.Logger) *ThreatFeed {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "threat-feed",
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

	return &ThreatFeed{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		cb:     cb,
		logger: logger.Named("threat-feed"),
		now:    time.Now,
	}
}

type threatChatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

type threatChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type threatList struct {
	Threats []struct {
		URL       string `json:"url"`
		Summary   string `json:"summary"`
		FraudType string `json:"fraud_type"`
	} `json:"threats"`
}

func (t *ThreatFeed) Search(ctx context.Context, query string) ([]domain.ThreatEvidence, error) {
	result, err := t.cb.Execute(func() (interface{}, error) {
		return t.search(ctx, query)
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.ThreatEvidence), nil
}

func (t *ThreatFeed) search(ctx context.Context, query string) ([]domain.ThreatEvidence, error) {
	reqBody := threatChatRequest{Model: t.cfg.Model}
	reqBody.Messages = append(reqBody.Messages, struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}{Role: "user", Content: fmt.Sprintf(threatPrompt, query)})

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal threat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+t.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("threat feed call: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read threat feed response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("threat feed API error (%d)", resp.StatusCode)
	}

	var parsed threatChatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("decode threat feed envelope: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("empty threat feed response")
	}

	var list threatList
	if err := reasoning.DecodeJudgment(parsed.Choices[0].Message.Content, &list); err != nil {
		return nil, fmt.Errorf("threat feed returned unreadable content: %w", err)
	}

	retrievedAt := t.now().UTC()
	out := make([]domain.ThreatEvidence, 0, len(list.Threats))
	for _, th := range list.Threats {
		out = append(out, domain.ThreatEvidence{
			Source:      th.URL,
			Summary:     th.Summary,
			Category:    th.FraudType,
			RetrievedAt: retrievedAt,
		})
	}
	return out, nil
}
