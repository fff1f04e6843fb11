package api

import (
	"errors"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"confluence-engine/internal/engine"
	"confluence-engine/internal/gate"
	"confluence-engine/internal/logging"
	"confluence-engine/internal/risk"
	"confluence-engine/internal/signal"
)

const defaultListLimit = 50

func queryLimit(c *gin.Context) int {
	limit, err := strconv.Atoi(c.Query("limit"))
	if err != nil || limit <= 0 {
		return defaultListLimit
	}
	return limit
}

// requestLogger returns the logger GinMiddleware stored, tagged with the trace id
func requestLogger(c *gin.Context) *zerolog.Logger {
	l := logging.FromContext(c.Request.Context())
	return &l
}

// gatekeeper returns the Gatekeeper gatekeeperMiddleware put in the request context
func gatekeeper(c *gin.Context) *gate.Gatekeeper {
	return gate.FromContext(c.Request.Context())
}

func symbolParam(c *gin.Context) string {
	return strings.ToUpper(strings.TrimSpace(c.Param("symbol")))
}

// GET /api/analysis
func (s *Server) handleGetAnalyses(c *gin.Context) {
	latest := s.deps.Analysis.LatestAll()
	out := make([]*engine.Breakdown, 0, len(latest))
	for _, bd := range latest {
		out = append(out, bd)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	successResponse(c, out)
}

// GET /api/analysis/:symbol
func (s *Server) handleGetAnalysis(c *gin.Context) {
	bd, ok := s.deps.Analysis.Latest(symbolParam(c))
	if !ok {
		errorResponse(c, http.StatusNotFound, "no analysis for symbol")
		return
	}
	successResponse(c, bd)
}

// GET /api/ticks/last
func (s *Server) handleGetLastTick(c *gin.Context) {
	tick := s.deps.Analysis.LastTick()
	if tick == nil {
		errorResponse(c, http.StatusNotFound, "no tick has completed yet")
		return
	}
	successResponse(c, tick)
}

// GET /api/signals reads the journal when one is configured, otherwise the
// signals of the latest analyses
func (s *Server) handleGetSignals(c *gin.Context) {
	symbol := strings.ToUpper(c.Query("symbol"))
	limit := queryLimit(c)

	if s.deps.Journal != nil {
		records, err := s.deps.Journal.GetRecentSignals(c.Request.Context(), symbol, limit)
		if err != nil {
			requestLogger(c).Error().Err(err).Msg("Failed to load signals")
			errorResponse(c, http.StatusInternalServerError, "failed to load signals")
			return
		}
		successResponse(c, records)
		return
	}

	sigs := make([]*signal.TradingSignal, 0)
	for sym, bd := range s.deps.Analysis.LatestAll() {
		if !bd.HasSignal() || (symbol != "" && sym != symbol) {
			continue
		}
		sigs = append(sigs, bd.Signal)
	}
	sort.Slice(sigs, func(i, j int) bool { return sigs[i].Timestamp.After(sigs[j].Timestamp) })
	if len(sigs) > limit {
		sigs = sigs[:limit]
	}
	successResponse(c, sigs)
}

// GET /api/gate
func (s *Server) handleGetGateState(c *gin.Context) {
	gk := gatekeeper(c)
	rc := gk.Risk()
	successResponse(c, gin.H{
		"state":        gk.Snapshot(),
		"filter":       gk.Filter().CanOpenTrade(),
		"risk_config":  rc.Config(),
		"risk_metrics": rc.Metrics(),
	})
}

// POST /api/gate/evaluate. Positions tracked by the trailing stop manager
// count towards the exposure even if the caller under-reports them, and the
// oldest of them feeds the duration check.
func (s *Server) handleEvaluateGate(c *gin.Context) {
	var exp gate.Exposure
	if err := c.ShouldBindJSON(&exp); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	exp.Symbol = strings.ToUpper(strings.TrimSpace(exp.Symbol))
	if exp.Symbol == "" {
		errorResponse(c, http.StatusBadRequest, "symbol is required")
		return
	}

	if s.deps.Trailing != nil {
		total, forSymbol := s.deps.Trailing.Count(exp.Symbol)
		exp.OpenTotal = max(exp.OpenTotal, total)
		exp.OpenForSymbol = max(exp.OpenForSymbol, forSymbol)
		if oldest := s.deps.Trailing.OldestOpenedAt(); !oldest.IsZero() &&
			(exp.OldestOpenedAt.IsZero() || oldest.Before(exp.OldestOpenedAt)) {
			exp.OldestOpenedAt = oldest
		}
	}

	successResponse(c, gatekeeper(c).Evaluate(c.Request.Context(), exp))
}

// POST /api/gate/reset clears a tripped emotional filter
func (s *Server) handleResetFilter(c *gin.Context) {
	snap := gatekeeper(c).ResetFilter(c.Request.Context())
	requestLogger(c).Warn().Msg("Emotional filter reset via API")
	successResponse(c, snap)
}

// POST /api/outcomes
func (s *Server) handleRecordOutcome(c *gin.Context) {
	var o gate.Outcome
	if err := c.ShouldBindJSON(&o); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	o.Symbol = strings.ToUpper(strings.TrimSpace(o.Symbol))

	ctx := c.Request.Context()
	snap, err := gatekeeper(c).RecordOutcome(ctx, o)
	if errors.Is(err, gate.ErrInvalidOutcome) {
		errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to record outcome")
		return
	}

	if s.deps.Trailing != nil {
		s.deps.Trailing.RemovePosition(o.Symbol)
	}

	resp := gin.H{"state": snap, "persisted": false}
	if s.deps.Journal != nil {
		rec, err := s.deps.Journal.RecordOutcome(ctx, o)
		if err != nil {
			requestLogger(c).Error().Err(err).Str("symbol", o.Symbol).Msg("Failed to journal outcome")
		} else {
			resp["persisted"] = true
			resp["record"] = rec
		}
	}
	successResponse(c, resp)
}

// GET /api/outcomes
func (s *Server) handleGetOutcomes(c *gin.Context) {
	if s.deps.Journal == nil {
		errorResponse(c, http.StatusServiceUnavailable, "trade journal is not configured")
		return
	}
	records, err := s.deps.Journal.GetRecentOutcomes(c.Request.Context(), queryLimit(c))
	if err != nil {
		requestLogger(c).Error().Err(err).Msg("Failed to load outcomes")
		errorResponse(c, http.StatusInternalServerError, "failed to load outcomes")
		return
	}
	successResponse(c, records)
}

// GET /api/risk/config
func (s *Server) handleGetRiskConfig(c *gin.Context) {
	successResponse(c, gatekeeper(c).Risk().Config())
}

// PUT /api/risk/config
func (s *Server) handleUpdateRiskConfig(c *gin.Context) {
	var cfg risk.Config
	if err := c.ShouldBindJSON(&cfg); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	if err := gatekeeper(c).Risk().UpdateConfig(cfg); err != nil {
		errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	requestLogger(c).Info().Interface("config", cfg).Msg("Risk config updated")
	successResponse(c, gatekeeper(c).Risk().Config())
}

func (s *Server) trailingEnabled(c *gin.Context) bool {
	if s.deps.Trailing == nil {
		errorResponse(c, http.StatusServiceUnavailable, "trailing stops are not enabled")
		return false
	}
	return true
}

// GET /api/positions
func (s *Server) handleGetPositions(c *gin.Context) {
	if !s.trailingEnabled(c) {
		return
	}
	positions := s.deps.Trailing.GetAllPositions()
	sort.Slice(positions, func(i, j int) bool { return positions[i].Symbol < positions[j].Symbol })
	successResponse(c, positions)
}

// POST /api/positions starts trailing a signal that was executed and counts
// it against the daily trade limit
func (s *Server) handleTrackPosition(c *gin.Context) {
	if !s.trailingEnabled(c) {
		return
	}
	var sig signal.TradingSignal
	if err := c.ShouldBindJSON(&sig); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	sig.Symbol = strings.ToUpper(strings.TrimSpace(sig.Symbol))
	if sig.Symbol == "" || !sig.Direction.IsDirectional() || sig.EntryPrice <= 0 || sig.StopLoss <= 0 {
		errorResponse(c, http.StatusBadRequest, "symbol, direction, entry_price and stop_loss are required")
		return
	}

	s.deps.Trailing.Track(&sig)
	snap := gatekeeper(c).RecordOpen(c.Request.Context(), sig.Symbol)
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data": gin.H{
			"position":     s.deps.Trailing.GetPosition(sig.Symbol),
			"daily_trades": snap.DailyTrades,
		},
	})
}

type priceUpdateRequest struct {
	Price float64 `json:"price" binding:"required,gt=0"`
}

// POST /api/positions/:symbol/price
func (s *Server) handleUpdatePrice(c *gin.Context) {
	if !s.trailingEnabled(c) {
		return
	}
	symbol := symbolParam(c)
	if s.deps.Trailing.GetPosition(symbol) == nil {
		errorResponse(c, http.StatusNotFound, "position not tracked")
		return
	}
	var req priceUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}

	update := s.deps.Trailing.UpdatePrice(symbol, req.Price)
	pos := s.deps.Trailing.GetPosition(symbol)
	successResponse(c, gin.H{
		"update":   update,
		"position": pos,
		"duration": gatekeeper(c).Risk().CheckPositionDuration(pos.OpenedAt),
	})
}

// DELETE /api/positions/:symbol
func (s *Server) handleClosePosition(c *gin.Context) {
	if !s.trailingEnabled(c) {
		return
	}
	symbol := symbolParam(c)
	if s.deps.Trailing.GetPosition(symbol) == nil {
		errorResponse(c, http.StatusNotFound, "position not tracked")
		return
	}
	s.deps.Trailing.RemovePosition(symbol)
	successResponse(c, gin.H{"symbol": symbol, "removed": true})
}
