package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/xela07ax/demonlist-history/internal/console/handler"
	"github.com/xela07ax/demonlist-history/internal/engine"
	"github.com/xela07ax/demonlist-history/internal/infra/auth"
)

type HistoryServer struct {
	router  *chi.Mux
	logger  *zap.Logger
	metrics *engine.Metrics

	// Проверка RS256 токенов для служебных роутов; nil — роуты не регистрируются
	authValidator auth.TokenValidator
	requiredScope string

	historyHandler *handler.HistoryHandler // /api/v1/demons
}

// NewHistoryServer собирает HTTP API истории позиций.
func NewHistoryServer(
	logger *zap.Logger,
	metrics *engine.Metrics,
	validator auth.TokenValidator,
	requiredScope string,
	historyH *handler.HistoryHandler,
) *HistoryServer {
	if metrics == nil {
		metrics = engine.NewMetrics(nil)
	}
	s := &HistoryServer{
		router:         chi.NewRouter(),
		logger:         logger.Named("history-api"),
		metrics:        metrics,
		authValidator:  validator,
		requiredScope:  requiredScope,
		historyHandler: historyH,
	}

	s.routes()
	return s
}

func (s *HistoryServer) routes() {
	r := s.router

	// --- 1. Глобальные инфраструктурные Middleware (для всех) ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(engine.TracingMiddleware)
	r.Use(engine.InstrumentMiddleware(s.metrics))
	r.Use(middleware.Recoverer)

	// --- 2. ПУБЛИЧНЫЕ РОУТЫ ---
	r.Group(func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})

		r.Get("/api/v1/list_information", s.historyHandler.ListInformation)
		r.Get("/api/v1/demons/{id}/history", s.historyHandler.GetHistory)
		r.Get("/api/v1/demons/{id}/history/chart", s.historyHandler.GetChart)
	})

	// --- 3. ЗАЩИЩЕННЫЙ ПЕРИМЕТР (RS256 токен со scope) ---
	if s.authValidator == nil {
		s.logger.Warn("auth public key not configured, refresh endpoint disabled")
		return
	}
	r.Group(func(r chi.Router) {
		r.Use(auth.NewMiddleware(s.authValidator, s.requiredScope, s.logger))
		r.Post("/api/v1/demons/{id}/refresh", s.historyHandler.Refresh)
	})
}

// ServeHTTP позволяет использовать HistoryServer как стандартный http.Handler
func (s *HistoryServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
