package reasoning

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xela07ax/fraud-sentinel-prototype/internal/domain"
)

// Judge — абстракция reasoning-сервиса. Ядро не знает ничего про конкретного
// провайдера: на вход структурированный промпт, на выход сырой текст,
// который стадия разбирает по своей схеме.
type Judge interface {
	Judge(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// DecodeJudgment разбирает ответ reasoning-сервиса в типизированную схему.
// Markdown-ограждения (```json ... ```) срезаются, дальше — строгий decode,
// без сканирования строк по скобкам. Нечитаемый ответ — ErrMalformedJudgment.
func DecodeJudgment(text string, v interface{}) error {
	cleaned := strings.TrimSpace(text)

	if strings.HasPrefix(cleaned, "```") {
		// Срезаем открывающее ограждение (с опциональным языковым тегом)
		if idx := strings.Index(cleaned, "\n"); idx >= 0 {
			cleaned = cleaned[idx+1:]
		}
		if idx := strings.LastIndex(cleaned, "```"); idx >= 0 {
			cleaned = cleaned[:idx]
		}
		cleaned = strings.TrimSpace(cleaned)
	}

	if err := json.Unmarshal([]byte(cleaned), v); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMalformedJudgment, err)
	}
	return nil
}
