package auth

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/xela07ax/fraud-sentinel-prototype/internal/domain"
)

// TokenValidator — контракт проверки токена для защищенного периметра
type TokenValidator interface {
	VerifyToken(tokenStr string) (*domain.CustomClaims, error)
}

type ctxKey string

const (
	ctxKeyScopes     ctxKey = "reviewer_scopes"
	ctxKeyReviewerID ctxKey = "reviewer_id"
)

func NewMiddleware(v TokenValidator, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := v.VerifyToken(authHeader)
			if err != nil {
				logger.Warn("auth failure", zap.Error(err))
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			// Прокидываем данные в контекст
			ctx := context.WithValue(r.Context(), ctxKeyScopes, claims.Scopes)
			ctx = context.WithValue(ctx, ctxKeyReviewerID, claims.ReviewerID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireScope отклоняет запросы без нужного scope в токене.
func RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scopes, _ := r.Context().Value(ctxKeyScopes).(map[string]bool)
			if !scopes[scope] {
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ReviewerIDFromContext возвращает идентификатор аутентифицированного ревьюера.
func ReviewerIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyReviewerID).(string)
	return id
}
