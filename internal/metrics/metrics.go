package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the game server.
type Metrics struct {
	ActiveSessions *prometheus.GaugeVec // labels: variant, subvariant

	ActionsTotal   *prometheus.CounterVec // labels: variant, outcome (applied|rejected|warning)
	ActionDur      prometheus.Histogram   // dispatcher per-action processing latency
	SessionLaneLen prometheus.Gauge       // current number of live per-session dispatcher lanes

	MatchmakingQueueDepth *prometheus.GaugeVec // labels: variant, subvariant
	MatchesFormedTotal    *prometheus.CounterVec
	MatchmakerSweepDur    prometheus.Histogram

	TournamentActive          prometheus.Gauge
	TournamentMatchesTotal    prometheus.Counter
	TournamentCrossPoolTotal  prometheus.Counter

	// Variant-specific timer events.
	DropTimerExpiredTotal  prometheus.Counter
	DecayFreezeTotal       prometheus.Counter
	TimeoutPenaltiesTotal  prometheus.Counter
	MainClockTimeoutsTotal *prometheus.CounterVec // labels: variant

	// Storage layer.
	RedisWriteDur            prometheus.Histogram
	SQLiteCommitDur          prometheus.Histogram
	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter
	RedisBufferedWrites      prometheus.Counter

	// Gateway.
	WSConnectionsActive prometheus.Gauge
	WSMessagesSent      prometheus.Counter
	WSBroadcastDropped  *prometheus.CounterVec // labels: reason
}

// NewMetrics registers and returns all Prometheus metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		ActiveSessions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gameserver_active_sessions",
			Help: "Currently active game sessions",
		}, []string{"variant", "subvariant"}),

		ActionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gameserver_actions_total",
			Help: "Actions processed by the dispatcher, by variant and outcome",
		}, []string{"variant", "outcome"}),
		ActionDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gameserver_action_duration_seconds",
			Help:    "Dispatcher per-action processing latency",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		}),
		SessionLaneLen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gameserver_dispatcher_lanes",
			Help: "Live per-session dispatcher goroutine lanes",
		}),

		MatchmakingQueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gameserver_matchmaking_queue_depth",
			Help: "Players currently waiting in the matchmaking queue",
		}, []string{"variant", "subvariant"}),
		MatchesFormedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gameserver_matches_formed_total",
			Help: "Matches formed by the matchmaker",
		}, []string{"variant", "subvariant"}),
		MatchmakerSweepDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gameserver_matchmaker_sweep_duration_seconds",
			Help:    "Matchmaker queue-sweep pass latency",
			Buckets: prometheus.DefBuckets,
		}),

		TournamentActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gameserver_tournaments_active",
			Help: "Currently running tournaments",
		}),
		TournamentMatchesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gameserver_tournament_matches_total",
			Help: "Matches created from within a tournament queue",
		}),
		TournamentCrossPoolTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gameserver_tournament_cross_pool_matches_total",
			Help: "Matches formed by cross-pool matching with tournament waiters",
		}),

		DropTimerExpiredTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gameserver_drop_timer_expired_total",
			Help: "Crazyhouse withTimer head-of-pocket expirations",
		}),
		DecayFreezeTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gameserver_decay_freeze_total",
			Help: "Decay timers that reached zero and froze their piece",
		}),
		TimeoutPenaltiesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gameserver_six_pointer_timeout_penalties_total",
			Help: "Six-Pointer per-move clock timeout penalties applied",
		}),
		MainClockTimeoutsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gameserver_main_clock_timeouts_total",
			Help: "Games ended by main clock exhaustion, by variant",
		}, []string{"variant"}),

		RedisWriteDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gameserver_redis_write_duration_seconds",
			Help:    "Session Store Redis commit latency",
			Buckets: prometheus.DefBuckets,
		}),
		SQLiteCommitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gameserver_sqlite_commit_duration_seconds",
			Help:    "Durable archive SQLite commit latency",
			Buckets: prometheus.DefBuckets,
		}),
		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gameserver_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gameserver_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),
		RedisBufferedWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gameserver_redis_buffered_writes_total",
			Help: "Session commits buffered locally while the Redis circuit breaker is open",
		}),

		WSConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gameserver_ws_connections_active",
			Help: "Currently open gateway WebSocket connections",
		}),
		WSMessagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gameserver_ws_messages_sent_total",
			Help: "Messages broadcast to gateway clients",
		}),
		WSBroadcastDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gameserver_ws_broadcast_dropped_total",
			Help: "Broadcast messages dropped, by reason",
		}, []string{"reason"}),
	}

	prometheus.MustRegister(
		m.ActiveSessions,
		m.ActionsTotal,
		m.ActionDur,
		m.SessionLaneLen,
		m.MatchmakingQueueDepth,
		m.MatchesFormedTotal,
		m.MatchmakerSweepDur,
		m.TournamentActive,
		m.TournamentMatchesTotal,
		m.TournamentCrossPoolTotal,
		m.DropTimerExpiredTotal,
		m.DecayFreezeTotal,
		m.TimeoutPenaltiesTotal,
		m.MainClockTimeoutsTotal,
		m.RedisWriteDur,
		m.SQLiteCommitDur,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
		m.RedisBufferedWrites,
		m.WSConnectionsActive,
		m.WSMessagesSent,
		m.WSBroadcastDropped,
	)

	return m
}

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	RedisConnected   bool      `json:"redis_connected"`
	SQLiteOK         bool      `json:"sqlite_ok"`
	DispatcherOK     bool      `json:"dispatcher_ok"`
	LastActionTime   time.Time `json:"last_action_time"`

	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt:    time.Now(),
		DispatcherOK: true,
	}
}

func (h *HealthStatus) SetRedisConnected(v bool) {
	h.mu.Lock()
	h.RedisConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetSQLiteOK(v bool) {
	h.mu.Lock()
	h.SQLiteOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetDispatcherOK(v bool) {
	h.mu.Lock()
	h.DispatcherOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastActionTime(t time.Time) {
	h.mu.Lock()
	h.LastActionTime = t
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite runs a trivial query and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK

	if !h.RedisConnected || !h.SQLiteOK || !h.DispatcherOK {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}
	if !h.RedisConnected && !h.SQLiteOK {
		overallStatus = "unhealthy"
	}

	actionAge := ""
	if !h.LastActionTime.IsZero() {
		actionAge = time.Since(h.LastActionTime).Round(time.Millisecond).String()
	}

	status := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		SQLiteOK        bool    `json:"sqlite_ok"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
		DispatcherOK    bool    `json:"dispatcher_ok"`
		LastActionAge   string  `json:"last_action_age"`
		LastCheckAt     string  `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		DispatcherOK:    h.DispatcherOK,
		LastActionAge:   actionAge,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
