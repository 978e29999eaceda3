package services

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	"campusdesk_go/config"
	"campusdesk_go/database"
)

const (
	overallStatusOK       = "ok"
	overallStatusDegraded = "degraded"
	overallStatusCritical = "critical"

	dependencyStatusUp       = "up"
	dependencyStatusDown     = "down"
	dependencyStatusDisabled = "disabled"

	defaultServiceName = "CampusDesk API"
	defaultVersion     = "1.0.0"
	defaultTimeout     = 1500 * time.Millisecond
)

// Probe checks one dependency. Severity is the overall status to report when it is down.
type Probe struct {
	Name     string
	Severity string
	Check    func(ctx context.Context) (details map[string]interface{}, status string, err error)
}

// HealthService aggregates dependency probes and runtime stats.
type HealthService struct {
	serviceName string
	version     string
	startTime   time.Time
	timeout     time.Duration
	probes      []Probe
}

// HealthReport is the body of GET /health.
type HealthReport struct {
	Status        string             `json:"status"`
	Service       string             `json:"service"`
	Version       string             `json:"version"`
	Environment   string             `json:"environment"`
	Time          time.Time          `json:"time"`
	UptimeSeconds float64            `json:"uptime_seconds"`
	UptimeHuman   string             `json:"uptime_human"`
	Dependencies  []DependencyStatus `json:"dependencies"`
	Metrics       HealthMetrics      `json:"metrics"`
	Flags         HealthFlags        `json:"flags"`
}

// DependencyStatus is the result of one probe.
type DependencyStatus struct {
	Name      string                 `json:"name"`
	Status    string                 `json:"status"`
	LatencyMs int64                  `json:"latency_ms"`
	Error     string                 `json:"error,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

type HealthMetrics struct {
	Goroutines     int    `json:"goroutines"`
	HeapAllocBytes uint64 `json:"heap_alloc_bytes"`
	SysBytes       uint64 `json:"sys_bytes"`
	GoVersion      string `json:"go_version"`
}

// HealthFlags exposes the toggles that change runtime behaviour.
type HealthFlags struct {
	SkipMigrate           bool   `json:"skip_migrate"`
	UseRedisNotifications bool   `json:"use_redis_notifications"`
	StorageDriver         string `json:"storage_driver"`
	PushFCM               bool   `json:"push_fcm"`
	PushWebPush           bool   `json:"push_webpush"`
	Midtrans              bool   `json:"midtrans"`
}

// NewHealthService creates a HealthService probing MySQL, Redis and MongoDB.
func NewHealthService(serviceName, version string) *HealthService {
	if strings.TrimSpace(serviceName) == "" {
		serviceName = defaultServiceName
	}
	if strings.TrimSpace(version) == "" {
		version = defaultVersion
	}
	return &HealthService{
		serviceName: serviceName,
		version:     version,
		startTime:   time.Now(),
		timeout:     defaultTimeout,
		probes:      []Probe{mysqlProbe(), redisProbe(), mongoProbe()},
	}
}

// SetProbes replaces the dependency probes.
func (s *HealthService) SetProbes(probes ...Probe) {
	s.probes = probes
}

// GetHealthReport runs every probe and collects runtime stats.
func (s *HealthService) GetHealthReport(ctx context.Context) HealthReport {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	uptime := time.Since(s.startTime)
	report := HealthReport{
		Status:        overallStatusOK,
		Service:       s.serviceName,
		Version:       s.version,
		Environment:   currentEnvironment(),
		Time:          time.Now().UTC(),
		UptimeSeconds: uptime.Seconds(),
		UptimeHuman:   humanizeDuration(uptime),
		Dependencies:  make([]DependencyStatus, 0, len(s.probes)),
		Metrics:       collectSystemMetrics(),
		Flags:         collectFlags(),
	}

	for _, p := range s.probes {
		start := time.Now()
		details, status, err := p.Check(ctx)
		dep := DependencyStatus{
			Name:      p.Name,
			Status:    status,
			LatencyMs: time.Since(start).Milliseconds(),
			Details:   details,
		}
		if err != nil {
			dep.Status = dependencyStatusDown
			dep.Error = err.Error()
			report.Status = combineStatus(report.Status, p.Severity)
		}
		report.Dependencies = append(report.Dependencies, dep)
	}
	return report
}

// HTTPStatusForOverall maps a health status to an HTTP status code.
func (s *HealthService) HTTPStatusForOverall(status string) int {
	if status == overallStatusCritical {
		return 503
	}
	return 200
}

func mysqlProbe() Probe {
	return Probe{Name: "mysql", Severity: overallStatusCritical, Check: func(ctx context.Context) (map[string]interface{}, string, error) {
		if database.DB == nil {
			return nil, "", fmt.Errorf("database connection not initialised")
		}
		sqlDB, err := database.DB.DB()
		if err != nil {
			return nil, "", err
		}
		if err := sqlDB.PingContext(ctx); err != nil {
			return nil, "", err
		}
		stats := sqlDB.Stats()
		return map[string]interface{}{
			"open_connections": stats.OpenConnections,
			"in_use":           stats.InUse,
			"idle":             stats.Idle,
			"wait_count":       stats.WaitCount,
		}, dependencyStatusUp, nil
	}}
}

func redisProbe() Probe {
	severity := overallStatusOK
	if config.AppConfig != nil && config.AppConfig.UseRedisNotifications {
		severity = overallStatusDegraded
	}
	return Probe{Name: "redis", Severity: severity, Check: func(ctx context.Context) (map[string]interface{}, string, error) {
		client := database.GetRedisClient()
		if client == nil {
			if severity == overallStatusOK {
				return nil, dependencyStatusDisabled, nil
			}
			return nil, "", fmt.Errorf("redis client not initialised")
		}
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, "", err
		}
		return map[string]interface{}{"address": client.Options().Addr}, dependencyStatusUp, nil
	}}
}

func mongoProbe() Probe {
	return Probe{Name: "mongodb", Severity: overallStatusDegraded, Check: func(ctx context.Context) (map[string]interface{}, string, error) {
		db := database.GetMongo()
		if db == nil {
			return nil, dependencyStatusDisabled, nil
		}
		if err := db.Client().Ping(ctx, nil); err != nil {
			return nil, "", err
		}
		return map[string]interface{}{"database": db.Name()}, dependencyStatusUp, nil
	}}
}

func collectSystemMetrics() HealthMetrics {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	return HealthMetrics{
		Goroutines:     runtime.NumGoroutine(),
		HeapAllocBytes: mem.HeapAlloc,
		SysBytes:       mem.Sys,
		GoVersion:      runtime.Version(),
	}
}

func collectFlags() HealthFlags {
	cfg := config.AppConfig
	if cfg == nil {
		return HealthFlags{}
	}
	return HealthFlags{
		SkipMigrate:           cfg.SkipMigrate,
		UseRedisNotifications: cfg.UseRedisNotifications,
		StorageDriver:         cfg.StorageDriver,
		PushFCM:               cfg.FirebaseCredentialsFile != "",
		PushWebPush:           cfg.VAPIDPublicKey != "" && cfg.VAPIDPrivateKey != "",
		Midtrans:              cfg.MidtransServerKey != "",
	}
}

func currentEnvironment() string {
	if config.AppConfig == nil || strings.TrimSpace(config.AppConfig.AppEnv) == "" {
		return "unknown"
	}
	return strings.TrimSpace(config.AppConfig.AppEnv)
}

// statusRank orders overall statuses from best to worst.
var statusRank = []string{overallStatusOK, overallStatusDegraded, overallStatusCritical}

func rankOf(status string) int {
	for i, s := range statusRank {
		if s == status {
			return i
		}
	}
	return -1
}

// combineStatus keeps whichever of the two statuses is worse. Unknown values count as ok.
func combineStatus(current, candidate string) string {
	cur := rankOf(current)
	if cur < 0 {
		cur = 0
	}
	if cand := rankOf(candidate); cand > cur {
		cur = cand
	}
	return statusRank[cur]
}

var uptimeUnits = []struct {
	size   time.Duration
	suffix string
}{
	{24 * time.Hour, "d"},
	{time.Hour, "h"},
	{time.Minute, "m"},
	{time.Second, "s"},
}

// humanizeDuration renders d as "2d 3h 4m 5s", dropping zero units.
func humanizeDuration(d time.Duration) string {
	d = d.Round(time.Second)
	if d <= 0 {
		return "0s"
	}
	var parts []string
	for _, u := range uptimeUnits {
		if n := d / u.size; n > 0 {
			parts = append(parts, fmt.Sprintf("%d%s", n, u.suffix))
			d -= n * u.size
		}
	}
	return strings.Join(parts, " ")
}
