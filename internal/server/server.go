package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/xela07ax/fraud-sentinel-prototype/internal/domain"
	"github.com/xela07ax/fraud-sentinel-prototype/internal/infra"
	"github.com/xela07ax/fraud-sentinel-prototype/internal/infra/auth"
	"github.com/xela07ax/fraud-sentinel-prototype/internal/server/handler"
)

type Server struct {
	router *chi.Mux
	logger *zap.Logger
	cfg    *infra.Config

	// Проверка токенов (RS256)
	authValidator auth.TokenValidator

	// Обработчики бизнес-доменов
	authHandler     *handler.AuthHandler     // /auth/token
	analysisHandler *handler.AnalysisHandler // /v1/transactions
	hitlHandler     *handler.HITLHandler     // /v1/hitl (HITL)

	metricsRegistry *prometheus.Registry
}

// NewServer инициализирует HTTP-сервер со всеми зависимостями
func NewServer(
	cfg *infra.Config,
	logger *zap.Logger,
	validator auth.TokenValidator,
	authH *handler.AuthHandler,
	analysisH *handler.AnalysisHandler,
	hitlH *handler.HITLHandler,
	reg *prometheus.Registry,
) *Server {
	s := &Server{
		router:          chi.NewRouter(),
		logger:          logger.Named("sentinel-api"),
		cfg:             cfg,
		authValidator:   validator,
		authHandler:     authH,
		analysisHandler: analysisH,
		hitlHandler:     hitlH,
		metricsRegistry: reg,
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router

	// --- 1. Глобальные инфраструктурные Middleware (для всех) ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// --- 2. ПУБЛИЧНЫЕ РОУТЫ (Открыты для всех) ---
	r.Group(func(r chi.Router) {
		// Логин должен быть доступен без токена
		r.Post("/auth/token", s.authHandler.Login)

		// Healthcheck для мониторинга
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})

		if s.metricsRegistry != nil {
			r.Handle("/metrics", promhttp.HandlerFor(s.metricsRegistry, promhttp.HandlerOpts{}))
		}

		// Точка приема транзакций: вызывается платежным шлюзом по
		// внутренней сети, человеческая авторизация здесь не нужна
		r.Post("/v1/transactions/analyze", s.analysisHandler.Analyze)
	})

	// --- 3. ЗАЩИЩЕННЫЙ ПЕРИМЕТР (Требуют RS256 токен) ---
	r.Group(func(r chi.Router) {
		r.Use(auth.NewMiddleware(s.authValidator, s.logger))

		// Сохраненные итоги анализа
		r.Route("/v1/transactions", func(r chi.Router) {
			r.Use(auth.RequireScope(domain.ScopeTransactionsRead))
			r.Get("/", s.analysisHandler.List)
			r.Get("/{id}", s.analysisHandler.Get)
		})

		// Human-in-the-loop: очередь эскалаций
		r.Route("/v1/hitl", func(r chi.Router) {
			r.Use(auth.RequireScope(domain.ScopeHITLReview))
			r.Get("/", s.hitlHandler.List) // Очередь на разбор
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.hitlHandler.GetDetails)
				r.Post("/resolve", s.hitlHandler.Resolve) // APPROVE/BLOCK + Redis Publish
			})
		})
	})
}

// ServeHTTP позволяет использовать Server как стандартный http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
