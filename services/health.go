package services

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

const (
	HealthOK       = "ok"
	HealthDegraded = "degraded"
	HealthCritical = "critical"

	depUp       = "up"
	depDown     = "down"
	depDisabled = "disabled"

	defaultHealthTimeout = 1500 * time.Millisecond
)

// ClientCounter reports how many realtime sessions are open.
type ClientCounter interface {
	ClientCount() int
}

// HealthService probes the database and Redis and reports runtime state.
type HealthService struct {
	db          *gorm.DB
	redis       *redis.Client
	hub         ClientCounter
	lineEnabled bool
	environment string
	startTime   time.Time
	timeout     time.Duration
}

type HealthReport struct {
	Status        string             `json:"status"`
	Environment   string             `json:"environment"`
	Time          time.Time          `json:"time"`
	UptimeSeconds float64            `json:"uptime_seconds"`
	UptimeHuman   string             `json:"uptime_human"`
	Dependencies  []DependencyStatus `json:"dependencies"`
	Goroutines    int                `json:"goroutines"`
	HeapAllocMB   float64            `json:"heap_alloc_mb"`
	WSClients     int                `json:"ws_clients"`
	LineEnabled   bool               `json:"line_enabled"`
	GoVersion     string             `json:"go_version"`
}

type DependencyStatus struct {
	Name      string                 `json:"name"`
	Status    string                 `json:"status"`
	LatencyMs int64                  `json:"latency_ms"`
	Error     string                 `json:"error,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

func NewHealthService(db *gorm.DB, rdb *redis.Client, hub ClientCounter, lineEnabled bool, environment string) *HealthService {
	if strings.TrimSpace(environment) == "" {
		environment = "unknown"
	}
	return &HealthService{
		db:          db,
		redis:       rdb,
		hub:         hub,
		lineEnabled: lineEnabled,
		environment: environment,
		startTime:   time.Now(),
		timeout:     defaultHealthTimeout,
	}
}

// Report collects the current health information.
func (s *HealthService) Report() HealthReport {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	uptime := time.Since(s.startTime)
	r := HealthReport{
		Status:        HealthOK,
		Environment:   s.environment,
		Time:          time.Now().UTC(),
		UptimeSeconds: uptime.Seconds(),
		UptimeHuman:   humanizeDuration(uptime),
		LineEnabled:   s.lineEnabled,
		GoVersion:     runtime.Version(),
		Goroutines:    runtime.NumGoroutine(),
	}

	db := s.checkDatabase(ctx)
	if db.Status == depDown {
		r.Status = HealthCritical
	}
	rd := s.checkRedis(ctx)
	if rd.Status == depDown && r.Status == HealthOK {
		r.Status = HealthDegraded
	}
	r.Dependencies = []DependencyStatus{db, rd}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	r.HeapAllocMB = float64(mem.HeapAlloc) / (1 << 20)
	if s.hub != nil {
		r.WSClients = s.hub.ClientCount()
	}
	return r
}

// HTTPStatus maps an overall status to an HTTP status code.
func (s *HealthService) HTTPStatus(status string) int {
	if status == HealthCritical {
		return 503
	}
	return 200
}

func (s *HealthService) checkDatabase(ctx context.Context) DependencyStatus {
	dep := DependencyStatus{Name: "database"}
	if s.db == nil {
		dep.Status, dep.Error = depDown, "database connection not initialised"
		return dep
	}
	dep.Details = map[string]interface{}{"dialect": s.db.Dialector.Name()}
	sqlDB, err := s.db.DB()
	if err != nil {
		dep.Status, dep.Error = depDown, fmt.Sprintf("sql DB handle error: %v", err)
		return dep
	}

	start := time.Now()
	err = sqlDB.PingContext(ctx)
	dep.LatencyMs = time.Since(start).Milliseconds()
	if err != nil {
		dep.Status, dep.Error = depDown, err.Error()
		return dep
	}
	dep.Status = depUp
	stats := sqlDB.Stats()
	dep.Details["open_connections"] = stats.OpenConnections
	dep.Details["in_use"] = stats.InUse
	dep.Details["max_open_connections"] = stats.MaxOpenConnections
	return dep
}

func (s *HealthService) checkRedis(ctx context.Context) DependencyStatus {
	dep := DependencyStatus{Name: "redis"}
	if s.redis == nil {
		dep.Status = depDisabled
		return dep
	}
	start := time.Now()
	err := s.redis.Ping(ctx).Err()
	dep.LatencyMs = time.Since(start).Milliseconds()
	if err != nil {
		dep.Status, dep.Error = depDown, err.Error()
		return dep
	}
	dep.Status = depUp
	dep.Details = map[string]interface{}{"address": s.redis.Options().Addr}
	return dep
}

func humanizeDuration(d time.Duration) string {
	if d <= 0 {
		return "0s"
	}

	d = d.Round(time.Second)
	days := d / (24 * time.Hour)
	d %= 24 * time.Hour
	hours := d / time.Hour
	d %= time.Hour
	minutes := d / time.Minute
	seconds := (d % time.Minute) / time.Second

	var parts []string
	if days > 0 {
		parts = append(parts, fmt.Sprintf("%dd", days))
	}
	if hours > 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}
	if minutes > 0 {
		parts = append(parts, fmt.Sprintf("%dm", minutes))
	}
	if seconds > 0 || len(parts) == 0 {
		parts = append(parts, fmt.Sprintf("%ds", seconds))
	}
	return strings.Join(parts, " ")
}
