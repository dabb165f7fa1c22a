package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/xela07ax/devit-dispatch-prototype/internal/api/handler"
	"github.com/xela07ax/devit-dispatch-prototype/internal/domain"
	"github.com/xela07ax/devit-dispatch-prototype/internal/infra"
	"github.com/xela07ax/devit-dispatch-prototype/internal/infra/auth"
	"go.uber.org/zap"
)

type DispatchServer struct {
	router *chi.Mux
	logger *zap.Logger
	cfg    *infra.Config

	// Интерфейс для проверки токенов (RS256); nil — auth отключен
	authValidator auth.TokenValidator

	// Обработчики бизнес-доменов
	taskHandler  *handler.TaskHandler  // /v1/tasks, /v1/queue
	agentHandler *handler.AgentHandler // /v1/agents
	statsHandler *handler.StatsHandler // /v1/stats
}

// NewDispatchServer инициализирует API диспетчера со всеми зависимостями
func NewDispatchServer(
	cfg *infra.Config,
	logger *zap.Logger,
	validator auth.TokenValidator,
	taskH *handler.TaskHandler,
	agentH *handler.AgentHandler,
	statsH *handler.StatsHandler,
) *DispatchServer {
	s := &DispatchServer{
		router:        chi.NewRouter(),
		logger:        logger.Named("dispatch-api"),
		cfg:           cfg,
		authValidator: validator,
		taskHandler:   taskH,
		agentHandler:  agentH,
		statsHandler:  statsH,
	}

	s.routes()
	return s
}

func (s *DispatchServer) routes() {
	r := s.router

	// --- 1. Глобальные инфраструктурные Middleware (для всех) ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// --- 2. ПУБЛИЧНЫЕ РОУТЫ ---
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	// --- 3. ЗАЩИЩЕННЫЙ ПЕРИМЕТР (Требуют RS256 токен) ---
	r.Group(func(r chi.Router) {
		if s.authValidator != nil {
			r.Use(auth.NewMiddleware(s.authValidator, s.logger))
		}

		// Прием и очередь задач
		r.Group(func(r chi.Router) {
			s.requireScope(r, domain.ScopeTasksSubmit)
			r.Post("/v1/tasks", s.taskHandler.Submit)
			r.Delete("/v1/queue/{taskID}", s.taskHandler.Cancel)
		})

		// Наблюдение: очередь, агенты, агрегаты
		r.Group(func(r chi.Router) {
			s.requireScope(r, domain.ScopeTasksRead)
			r.Get("/v1/queue", s.taskHandler.QueueStatus)
			r.Get("/v1/agents", s.agentHandler.List)
			r.Get("/v1/agents/{agentType}", s.agentHandler.Get)
			r.Get("/v1/stats", s.statsHandler.GetStats)
		})

		// Операторское управление агентами
		r.Group(func(r chi.Router) {
			s.requireScope(r, domain.ScopeAgentsManage)
			r.Post("/v1/agents/{agentType}/restart", s.agentHandler.Restart)
			r.Post("/v1/agents/{agentType}/suspend", s.agentHandler.Suspend)
			r.Post("/v1/agents/{agentType}/resume", s.agentHandler.Resume)
		})
	})
}

// requireScope навешивает проверку scope, только если auth включен.
func (s *DispatchServer) requireScope(r chi.Router, scope string) {
	if s.authValidator != nil {
		r.Use(auth.RequireScope(scope))
	}
}

// ServeHTTP позволяет использовать DispatchServer как стандартный http.Handler
func (s *DispatchServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
