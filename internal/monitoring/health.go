package monitoring

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/23skdu/contextwatch/internal/inference"
	"github.com/23skdu/contextwatch/internal/logger"
	"github.com/23skdu/contextwatch/internal/monitor"
)

// Version is reported by /status. Overridden by the CLI at build time.
var Version = "dev"

const maxAlerts = 100

// HealthStatus represents the health status of the process
type HealthStatus struct {
	Status    string     `json:"status"`
	Timestamp time.Time  `json:"timestamp"`
	Version   string     `json:"version"`
	Uptime    string     `json:"uptime"`
	System    SystemInfo `json:"system"`
	Runs      RunStats   `json:"runs"`
	LastRun   *RunStatus `json:"last_run,omitempty"`
	Alerts    []Alert    `json:"alerts"`
}

type SystemInfo struct {
	GoVersion  string  `json:"go_version"`
	OS         string  `json:"os"`
	Arch       string  `json:"arch"`
	NumCPU     int     `json:"num_cpu"`
	RSSMB      float64 `json:"rss_mb"`
	HeapUsedMB float64 `json:"heap_used_mb"`
}

type RunStats struct {
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// RunStatus is the condensed summary of the latest completed run.
type RunStatus struct {
	RunID               string    `json:"run_id"`
	StopReason          string    `json:"stop_reason"`
	PromptTokens        int       `json:"prompt_tokens"`
	GeneratedTokens     int       `json:"generated_tokens"`
	MaxContext          int       `json:"max_context"`
	ContextUsedPct      float64   `json:"context_used_pct"`
	ContextWarning      bool      `json:"context_warning"`
	TTFTMs              *float64  `json:"ttft_ms"`
	RollingAvgMs        *float64  `json:"rolling_avg_ms"`
	TrendMsPer100Tokens *float64  `json:"trend_ms_per_100_tokens"`
	PeakMemoryMB        float64   `json:"peak_memory_mb"`
	MemoryGrowthMB      float64   `json:"memory_growth_total_mb"`
	FinishedAt          time.Time `json:"finished_at"`
}

// Alert represents a system alert
type Alert struct {
	Level     string    `json:"level"`     // info, warning, error, critical
	Component string    `json:"component"` // context, latency, memory, generation
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthMonitor serves health, status and prometheus endpoints for the
// runs executed by this process.
type HealthMonitor struct {
	startTime time.Time
	sampler   monitor.Sampler
	server    *http.Server

	mu      sync.RWMutex
	alerts  []Alert
	lastRun *RunStatus
	stats   RunStats
}

// NewHealthMonitor uses a process RSS sampler when s is nil.
func NewHealthMonitor(s monitor.Sampler) *HealthMonitor {
	if s == nil {
		s = monitor.NewProcessSampler()
	}
	return &HealthMonitor{
		startTime: time.Now(),
		sampler:   s,
		alerts:    make([]Alert, 0),
	}
}

func (hm *HealthMonitor) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", hm.handleHealth)
	mux.HandleFunc("/healthz", hm.handleHealth) // Kubernetes compatibility
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/status", hm.handleDetailedStatus)
	mux.HandleFunc("/admin/alerts", hm.handleAlerts)
	mux.HandleFunc("/admin/clear-alerts", hm.handleClearAlerts)
	return mux
}

// Start serves until Stop is called, then returns http.ErrServerClosed.
func (hm *HealthMonitor) Start(addr string) error {
	hm.mu.Lock()
	hm.server = &http.Server{
		Addr:         addr,
		Handler:      hm.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	srv := hm.server
	hm.mu.Unlock()

	logger.Log.Info("Health monitor starting", "addr", addr)
	return srv.ListenAndServe()
}

func (hm *HealthMonitor) Stop(ctx context.Context) error {
	hm.mu.RLock()
	srv := hm.server
	hm.mu.RUnlock()
	if srv != nil {
		return srv.Shutdown(ctx)
	}
	return nil
}

// RecordRun stores the summary of a completed run and raises alerts for a
// crossed context threshold or rising latency.
func (hm *HealthMonitor) RecordRun(res *inference.Result) {
	status := &RunStatus{
		RunID:               res.RunID,
		StopReason:          string(res.StopReason),
		PromptTokens:        res.PromptTokenCount,
		GeneratedTokens:     res.GeneratedTokenCount,
		MaxContext:          res.Context.MaxContext,
		ContextUsedPct:      res.Context.UsedPct,
		ContextWarning:      res.Context.WarningIssued,
		TTFTMs:              res.Latency.TTFTMs,
		RollingAvgMs:        res.Latency.RollingAvgMs,
		TrendMsPer100Tokens: res.Latency.TrendMsPer100Tokens,
		PeakMemoryMB:        res.Memory.PeakMB,
		MemoryGrowthMB:      res.Memory.GrowthTotalMB,
		FinishedAt:          time.Now(),
	}

	hm.mu.Lock()
	hm.lastRun = status
	hm.stats.Completed++
	hm.mu.Unlock()

	if status.ContextWarning {
		hm.AddAlert("warning", "context",
			fmt.Sprintf("Run %s used %.1f%% of a %d token context", status.RunID, status.ContextUsedPct*100, status.MaxContext))
	}
	if t := status.TrendMsPer100Tokens; t != nil && status.RollingAvgMs != nil && *t > *status.RollingAvgMs {
		hm.AddAlert("warning", "latency",
			fmt.Sprintf("Run %s latency rising %.2f ms per 100 tokens", status.RunID, *t))
	}
}

// RecordFailure counts a failed run and marks the monitor degraded.
func (hm *HealthMonitor) RecordFailure(err error) {
	hm.mu.Lock()
	hm.stats.Failed++
	hm.mu.Unlock()
	hm.AddAlert("error", "generation", err.Error())
}

func (hm *HealthMonitor) AddAlert(level, component, message string) {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	hm.alerts = append(hm.alerts, Alert{
		Level:     level,
		Component: component,
		Message:   message,
		Timestamp: time.Now(),
	})
	if len(hm.alerts) > maxAlerts {
		hm.alerts = hm.alerts[1:]
	}

	logger.Log.Warn("Alert raised", "level", level, "component", component, "message", message)
}

// HTTP Handlers

func (hm *HealthMonitor) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := hm.getHealthStatus()

	w.Header().Set("Content-Type", "application/json")
	if status.Status == "healthy" {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":    status.Status,
		"timestamp": status.Timestamp.Format(time.RFC3339),
	})
}

func (hm *HealthMonitor) handleDetailedStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(hm.getHealthStatus())
}

func (hm *HealthMonitor) handleAlerts(w http.ResponseWriter, r *http.Request) {
	hm.mu.RLock()
	alerts := make([]Alert, len(hm.alerts))
	copy(alerts, hm.alerts)
	hm.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(alerts)
}

func (hm *HealthMonitor) handleClearAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	hm.mu.Lock()
	hm.alerts = hm.alerts[:0]
	hm.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"message": "alerts cleared"})
}

func (hm *HealthMonitor) getHealthStatus() HealthStatus {
	sys := hm.getSystemInfo()

	hm.mu.RLock()
	defer hm.mu.RUnlock()

	status := "healthy"
	for _, alert := range hm.alerts {
		if alert.Level == "critical" {
			status = "critical"
			break
		}
		if alert.Level == "error" {
			status = "degraded"
		}
	}

	alerts := make([]Alert, len(hm.alerts))
	copy(alerts, hm.alerts)

	var last *RunStatus
	if hm.lastRun != nil {
		cp := *hm.lastRun
		last = &cp
	}

	return HealthStatus{
		Status:    status,
		Timestamp: time.Now(),
		Version:   Version,
		Uptime:    time.Since(hm.startTime).Round(time.Second).String(),
		System:    sys,
		Runs:      hm.stats,
		LastRun:   last,
		Alerts:    alerts,
	}
}

func (hm *HealthMonitor) getSystemInfo() SystemInfo {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return SystemInfo{
		GoVersion:  runtime.Version(),
		OS:         runtime.GOOS,
		Arch:       runtime.GOARCH,
		NumCPU:     runtime.NumCPU(),
		RSSMB:      float64(hm.sampler.ResidentBytes()) / (1024 * 1024),
		HeapUsedMB: float64(m.HeapAlloc) / (1024 * 1024),
	}
}
