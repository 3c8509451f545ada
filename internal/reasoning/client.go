package reasoning

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/avast/retry-go/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

/*
Файл client.go — HTTP-клиент reasoning-сервиса (OpenAI-совместимый
chat/completions API).

Надежность на транспортном уровне:
  - rate.Limiter сглаживает нагрузку на провайдера;
  - retry-go с экспоненциальным бэкоффом на 429/5xx и сетевые сбои;
  - 4xx (кроме 429) не ретраим — это ошибка запроса, повтор бессмысленен.

Ретраи на СМЫСЛОВОМ уровне (нечитаемый JSON в теле ответа) — не здесь:
это per-stage политика стадий (behavioral — до 3 попыток и фолбэк,
арбитр — fail closed).
*/

type ClientConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Timeout     time.Duration
	MaxAttempts int     // попытки транспортного уровня
	RateLimit   float64 // запросов в секунду
	RateBurst   int
}

// Client реализует Judge поверх chat/completions.
type Client struct {
	cfg     ClientConfig
	http    *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

func NewClient(cfg ClientConfig, logger *zap.Logger) *Client {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 5
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 5
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
		logger:  logger.Named("reasoning"),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// retryableError помечает сбои, по которым имеет смысл повторять запрос.
type retryableError struct{ err error }

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

// Judge отправляет system+user промпт и возвращает текст первого choice.
func (c *Client) Judge(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("reasoning rate limit: %w", err)
	}

	body, err := json.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: 0.2,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	var content string

	r := retry.New(
		retry.Context(ctx),
		retry.Attempts(uint(c.cfg.MaxAttempts)),
		retry.RetryIf(func(err error) bool {
			var rErr *retryableError
			return errors.As(err, &rErr)
		}),
	)

	retryErr := r.Do(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return &retryableError{err: err}
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return &retryableError{err: fmt.Errorf("read response: %w", err)}
		}

		if resp.StatusCode != http.StatusOK {
			apiErr := fmt.Errorf("reasoning API error (%d): %s", resp.StatusCode, truncate(string(respBody), 200))
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				return &retryableError{err: apiErr}
			}
			return apiErr
		}

		var parsed chatResponse
		if err := json.Unmarshal(respBody, &parsed); err != nil {
			return fmt.Errorf("decode response envelope: %w", err)
		}
		if len(parsed.Choices) == 0 {
			return fmt.Errorf("empty response content")
		}

		content = parsed.Choices[0].Message.Content
		return nil
	})

	if retryErr != nil {
		c.logger.Warn("judge call failed", zap.Error(retryErr))
		return "", retryErr
	}
	return content, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
