package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"confluence-engine/config"
	"confluence-engine/internal/database"
	"confluence-engine/internal/engine"
	"confluence-engine/internal/events"
	"confluence-engine/internal/gate"
	"confluence-engine/internal/logging"
	"confluence-engine/internal/risk"
	"confluence-engine/internal/scheduler"
)

// AnalysisSource is the part of the scheduler the API reads from
type AnalysisSource interface {
	Latest(symbol string) (*engine.Breakdown, bool)
	LatestAll() map[string]*engine.Breakdown
	LastTick() *scheduler.TickResult
	Symbols() []string
}

// Journal stores signals and closed trades
type Journal interface {
	GetRecentSignals(ctx context.Context, symbol string, limit int) ([]*database.SignalRecord, error)
	RecordOutcome(ctx context.Context, o gate.Outcome) (*database.OutcomeRecord, error)
	GetRecentOutcomes(ctx context.Context, limit int) ([]*database.OutcomeRecord, error)
}

// HealthCheck pings one backing service
type HealthCheck func(ctx context.Context) error

// Deps are the collaborators the handlers use. Journal, Trailing, Gatherer
// and Bus may be nil.
type Deps struct {
	Analysis AnalysisSource
	Gate     *gate.Gatekeeper
	Trailing *risk.TrailingStopManager
	Journal  Journal
	Bus      *events.EventBus
	Gatherer prometheus.Gatherer
	Checks   map[string]HealthCheck
}

// clientLimiter hands out one token bucket per client IP
type clientLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func newClientLimiter(perSecond float64, burst int) *clientLimiter {
	return &clientLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(perSecond),
		burst:    burst,
	}
}

// Allow checks if a request is allowed for the given key
func (l *clientLimiter) Allow(key string) bool {
	l.mu.Lock()
	lim, ok := l.limiters[key]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[key] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}

// Server represents the HTTP API server
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	config     config.ServerConfig
	deps       Deps
	hub        *WSHub
	limiter    *clientLimiter
	logger     zerolog.Logger
}

// NewServer creates a new API server and starts its websocket hub
func NewServer(cfg config.ServerConfig, deps Deps, logger zerolog.Logger) *Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(logging.GinMiddleware(logger))
	router.Use(cors.New(corsConfig(cfg.AllowedOrigins)))
	router.Use(gatekeeperMiddleware(deps.Gate))

	s := &Server{
		router: router,
		config: cfg,
		deps:   deps,
		hub:    NewWSHub(logger),
		logger: logger.With().Str("component", "api").Logger(),
	}
	if cfg.RateLimit > 0 {
		s.limiter = newClientLimiter(cfg.RateLimit, cfg.RateBurst)
		router.Use(s.rateLimitMiddleware())
	}

	go s.hub.Run()
	s.hub.Follow(deps.Bus)

	s.setupRoutes()
	return s
}

func corsConfig(allowed string) cors.Config {
	c := cors.DefaultConfig()
	c.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	c.AllowHeaders = []string{"Origin", "Content-Type"}
	c.ExposeHeaders = []string{"Content-Length", "X-Trace-ID"}

	var origins []string
	for _, o := range strings.Split(allowed, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		c.AllowAllOrigins = true
		return c
	}
	c.AllowOrigins = origins
	return c
}

func gatekeeperMiddleware(gk *gate.Gatekeeper) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request = c.Request.WithContext(gate.NewContext(c.Request.Context(), gk))
		c.Next()
	}
}

func (s *Server) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limiter.Allow(c.ClientIP()) {
			c.Header("Retry-After", "1")
			errorResponse(c, http.StatusTooManyRequests, "rate limit exceeded")
			c.Abort()
			return
		}
		c.Next()
	}
}

func (s *Server) setupRoutes() {
	s.router.GET("/ws", s.handleWebSocket)
	if s.deps.Gatherer != nil {
		s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{})))
	}

	api := s.router.Group("/api")
	{
		api.GET("/health", s.handleHealth)

		api.GET("/analysis", s.handleGetAnalyses)
		api.GET("/analysis/:symbol", s.handleGetAnalysis)
		api.GET("/ticks/last", s.handleGetLastTick)
		api.GET("/signals", s.handleGetSignals)

		api.GET("/gate", s.handleGetGateState)
		api.POST("/gate/evaluate", s.handleEvaluateGate)
		api.POST("/gate/reset", s.handleResetFilter)

		api.GET("/outcomes", s.handleGetOutcomes)
		api.POST("/outcomes", s.handleRecordOutcome)

		api.GET("/risk/config", s.handleGetRiskConfig)
		api.PUT("/risk/config", s.handleUpdateRiskConfig)

		positions := api.Group("/positions")
		{
			positions.GET("", s.handleGetPositions)
			positions.POST("", s.handleTrackPosition)
			positions.POST("/:symbol/price", s.handleUpdatePrice)
			positions.DELETE("/:symbol", s.handleClosePosition)
		}
	}
}

// Handler exposes the router for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

// Hub returns the websocket hub
func (s *Server) Hub() *WSHub {
	return s.hub
}

// Start listens until Shutdown is called
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
	}

	s.logger.Info().Str("addr", addr).Msg("Starting API server")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server and disconnects websocket clients
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	code := http.StatusOK
	services := make(map[string]string, len(s.deps.Checks))
	for name, check := range s.deps.Checks {
		if err := check(ctx); err != nil {
			services[name] = err.Error()
			status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		services[name] = "ok"
	}

	resp := gin.H{
		"status":     status,
		"services":   services,
		"ws_clients": s.hub.GetClientCount(),
		"time":       time.Now().UTC(),
	}
	if s.deps.Analysis != nil {
		resp["symbols"] = s.deps.Analysis.Symbols()
		if tick := s.deps.Analysis.LastTick(); tick != nil {
			resp["last_tick"] = tick.StartedAt
		}
	}
	c.JSON(code, resp)
}

// errorResponse sends an error response
func errorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"error":   true,
		"message": message,
	})
}

// successResponse sends a success response
func successResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}
