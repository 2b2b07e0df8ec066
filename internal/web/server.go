package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"runtime"
	"strconv"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/gorilla/mux"
	"golang.org/x/time/rate"

	"github.com/elys-network/tfmm/internal/logger"
	"github.com/elys-network/tfmm/internal/runner"
	"github.com/elys-network/tfmm/internal/types"
)

var webLogger = logger.GetForComponent("web_server")

// Service is the runner surface the API serves.
type Service interface {
	Now() int64
	Pools(ctx context.Context) ([]types.Address, error)
	PoolRule(ctx context.Context, pool types.Address) (types.PoolRegistration, error)
	Weights(ctx context.Context, pool types.Address) (types.WeightState, error)
	EffectiveWeights(ctx context.Context, pool types.Address, t int64) ([]sdkmath.LegacyDec, error)
	History(ctx context.Context, pool types.Address, limit int) ([]types.UpdateRecord, error)
	GetData(ctx context.Context, pool types.Address) (*runner.PoolData, error)
	PerformUpdate(ctx context.Context, pool types.Address) (*runner.UpdateResult, error)
	ApprovedOracles() []string
}

// Pinger reports store connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configures a WebServer.
type Options struct {
	Port string
	// UpdateRPS limits POST /api/pools/{pool}/update across all callers. Zero disables the limit.
	UpdateRPS float64
	Metrics   http.Handler
}

// WebServer serves the read and trigger API of the runner
type WebServer struct {
	router  *mux.Router
	port    string
	service Service
	store   Pinger
	limiter *rate.Limiter
	metrics http.Handler
	server  *http.Server
}

// NewWebServer creates a new web server instance
func NewWebServer(service Service, store Pinger, opts Options) *WebServer {
	port := opts.Port
	if port == "" {
		port = "8080"
	}
	limit := rate.Inf
	burst := 1
	if opts.UpdateRPS > 0 {
		limit = rate.Limit(opts.UpdateRPS)
		burst = int(opts.UpdateRPS)
		if burst < 1 {
			burst = 1
		}
	}

	server := &WebServer{
		router:  mux.NewRouter(),
		port:    port,
		service: service,
		store:   store,
		limiter: rate.NewLimiter(limit, burst),
		metrics: opts.Metrics,
	}

	server.setupRoutes()
	return server
}

// setupRoutes configures all HTTP routes
func (ws *WebServer) setupRoutes() {
	ws.router.HandleFunc("/health", ws.handleHealth).Methods("GET")
	if ws.metrics != nil {
		ws.router.Handle("/metrics", ws.metrics).Methods("GET")
	}

	api := ws.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", ws.handleHealth).Methods("GET")
	api.HandleFunc("/oracles", ws.handleGetOracles).Methods("GET")
	api.HandleFunc("/pools", ws.handleGetPools).Methods("GET")
	api.HandleFunc("/pools/{pool}", ws.handleGetPool).Methods("GET")
	api.HandleFunc("/pools/{pool}/weights", ws.handleGetWeights).Methods("GET")
	api.HandleFunc("/pools/{pool}/effective", ws.handleGetEffectiveWeights).Methods("GET")
	api.HandleFunc("/pools/{pool}/history", ws.handleGetHistory).Methods("GET")
	api.HandleFunc("/pools/{pool}/data", ws.handleGetData).Methods("GET")
	api.HandleFunc("/pools/{pool}/update", ws.handlePerformUpdate).Methods("POST")

	ws.router.Use(ws.corsMiddleware)
	ws.router.Use(ws.loggingMiddleware)
}

// Handler exposes the router.
func (ws *WebServer) Handler() http.Handler {
	return ws.router
}

// Start starts the web server and blocks until it stops.
func (ws *WebServer) Start() error {
	webLogger.Info().Str("port", ws.port).Msg("Starting web server")

	ws.server = &http.Server{
		Addr:         ":" + ws.port,
		Handler:      ws.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	if err := ws.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (ws *WebServer) Shutdown(ctx context.Context) error {
	if ws.server == nil {
		return nil
	}
	return ws.server.Shutdown(ctx)
}

// handleHealth reports store connectivity and runtime stats
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	dbHealthy := true
	if err := ws.store.Ping(r.Context()); err != nil {
		webLogger.Warn().Err(err).Msg("Store ping failed")
		dbHealthy = false
	}

	pools, err := ws.service.Pools(r.Context())
	poolCount := len(pools)
	if err != nil {
		poolCount = -1
	}

	overallStatus := "OK"
	statusCode := http.StatusOK
	if !dbHealthy {
		overallStatus = "DEGRADED"
		statusCode = http.StatusServiceUnavailable
	}

	response := map[string]interface{}{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"system": map[string]interface{}{
			"version":          runtime.Version(),
			"goroutines_count": runtime.NumGoroutine(),
			"alloc_bytes":      memStats.Alloc,
			"sys_bytes":        memStats.Sys,
			"gc_cycles":        memStats.NumGC,
		},
		"runner": map[string]interface{}{
			"database_healthy": dbHealthy,
			"pools":            poolCount,
			"oracles":          len(ws.service.ApprovedOracles()),
			"now":              ws.service.Now(),
		},
	}

	ws.writeJSONResponse(w, statusCode, response)
}

func (ws *WebServer) handleGetOracles(w http.ResponseWriter, r *http.Request) {
	oracles := ws.service.ApprovedOracles()
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"oracles": oracles,
		"count":   len(oracles),
	})
}

func (ws *WebServer) handleGetPools(w http.ResponseWriter, r *http.Request) {
	pools, err := ws.service.Pools(r.Context())
	if err != nil {
		ws.writeServiceError(w, err, "Failed to list pools")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"pools": pools,
		"count": len(pools),
	})
}

func (ws *WebServer) handleGetPool(w http.ResponseWriter, r *http.Request) {
	pool, ok := ws.poolFromPath(w, r)
	if !ok {
		return
	}
	reg, err := ws.service.PoolRule(r.Context(), pool)
	if err != nil {
		ws.writeServiceError(w, err, "Failed to get pool")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, reg)
}

func (ws *WebServer) handleGetWeights(w http.ResponseWriter, r *http.Request) {
	pool, ok := ws.poolFromPath(w, r)
	if !ok {
		return
	}
	state, err := ws.service.Weights(r.Context(), pool)
	if err != nil {
		ws.writeServiceError(w, err, "Failed to get weights")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, state)
}

// handleGetEffectiveWeights evaluates the interpolation at ?t= (unix seconds), default now
func (ws *WebServer) handleGetEffectiveWeights(w http.ResponseWriter, r *http.Request) {
	pool, ok := ws.poolFromPath(w, r)
	if !ok {
		return
	}
	t := ws.service.Now()
	if tStr := r.URL.Query().Get("t"); tStr != "" {
		parsed, err := strconv.ParseInt(tStr, 10, 64)
		if err != nil || parsed < 0 {
			ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid time")
			return
		}
		t = parsed
	}

	weights, err := ws.service.EffectiveWeights(r.Context(), pool, t)
	if err != nil {
		ws.writeServiceError(w, err, "Failed to evaluate weights")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"pool":    pool,
		"time":    t,
		"weights": weights,
	})
}

func (ws *WebServer) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	pool, ok := ws.poolFromPath(w, r)
	if !ok {
		return
	}
	limit := 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 && parsedLimit <= 100 {
			limit = parsedLimit
		}
	}

	records, err := ws.service.History(r.Context(), pool, limit)
	if err != nil {
		ws.writeServiceError(w, err, "Failed to get history")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"updates": records,
		"count":   len(records),
		"limit":   limit,
	})
}

func (ws *WebServer) handleGetData(w http.ResponseWriter, r *http.Request) {
	pool, ok := ws.poolFromPath(w, r)
	if !ok {
		return
	}
	data, err := ws.service.GetData(r.Context(), pool)
	if err != nil {
		ws.writeServiceError(w, err, "Failed to read oracles")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, data)
}

// handlePerformUpdate is the permissionless trigger. The interval gate in the runner decides
// whether it does anything; the limiter only protects the oracles.
func (ws *WebServer) handlePerformUpdate(w http.ResponseWriter, r *http.Request) {
	if !ws.limiter.Allow() {
		ws.writeErrorResponse(w, http.StatusTooManyRequests, "Rate limit exceeded")
		return
	}
	pool, ok := ws.poolFromPath(w, r)
	if !ok {
		return
	}
	res, err := ws.service.PerformUpdate(r.Context(), pool)
	if err != nil {
		ws.writeServiceError(w, err, "Update failed")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, res)
}

func (ws *WebServer) poolFromPath(w http.ResponseWriter, r *http.Request) (types.Address, bool) {
	pool, err := types.ParseAddress(mux.Vars(r)["pool"])
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid pool address")
		return "", false
	}
	return pool, true
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, runner.ErrPoolNotRegistered):
		return http.StatusNotFound
	case errors.Is(err, types.ErrTiming):
		return http.StatusConflict
	case errors.Is(err, types.ErrAuthorization):
		return http.StatusForbidden
	case errors.Is(err, types.ErrDataUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, types.ErrConfiguration):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (ws *WebServer) writeServiceError(w http.ResponseWriter, err error, message string) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		webLogger.Error().Err(err).Msg(message)
		ws.writeErrorResponse(w, status, message)
		return
	}
	ws.writeErrorResponse(w, status, message+": "+err.Error())
}

// writeJSONResponse writes a JSON response
func (ws *WebServer) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		webLogger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error response
func (ws *WebServer) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	response := map[string]interface{}{
		"error":     true,
		"message":   message,
		"timestamp": time.Now().UTC(),
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// corsMiddleware adds CORS headers
func (ws *WebServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (ws *WebServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapper := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		webLogger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Int("status", wrapper.statusCode).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

// responseWriterWrapper wraps http.ResponseWriter to capture status code
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
