// Package config defines the YAML-backed configuration schema for both
// daemons (§3.1, §6.2) and the load/validate pipeline of §4.7: deep-merge
// defaults with the YAML document, validate (type + bounds via struct
// tags, plus cross-field rules no tag can express), and raise with every
// violation at once rather than failing on the first one.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// envOverrides binds WANCTL_* environment variables so deployment-specific
// values (router reachability, credentials, the health port) can be set
// without editing the YAML file, the same override path the teacher bound
// with viper.SetEnvPrefix/AutomaticEnv in its own loadConfig.
var envOverrides = newEnvOverrides()

func newEnvOverrides() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("WANCTL")
	v.AutomaticEnv()
	return v
}

func applyRouterEnvOverrides(r *RouterConfig) {
	if v := envOverrides.GetString("ROUTER_HOST"); v != "" {
		r.Host = v
	}
	if v := envOverrides.GetString("ROUTER_USER"); v != "" {
		r.User = v
	}
	if v := envOverrides.GetString("ROUTER_PASSWORD"); v != "" {
		r.Password = v
	}
}

func applyHealthEnvOverrides(h *HealthConfig) {
	if p := envOverrides.GetInt("HEALTH_PORT"); p != 0 {
		h.Port = p
	}
}

// Transport selects the router backend implementation.
type Transport string

const (
	TransportREST Transport = "rest"
	TransportSSH  Transport = "ssh"
)

// FallbackMode selects behavior when all ICMP probes fail (§3.1, §4.1 step 1).
type FallbackMode string

const (
	FallbackFreeze              FallbackMode = "freeze"
	FallbackGracefulDegradation FallbackMode = "graceful_degradation"
	FallbackUseLastRTT          FallbackMode = "use_last_rtt"
)

// RouterConfig describes how to reach the router's management API.
type RouterConfig struct {
	Transport      Transport `yaml:"transport" validate:"required,oneof=rest ssh"`
	Host           string    `yaml:"host" validate:"required"`
	User           string    `yaml:"user" validate:"required"`
	Password       string    `yaml:"password" validate:"-"`
	PasswordEnv    string    `yaml:"password_env"`
	SSHKeyPath     string    `yaml:"ssh_key"`
	TimeoutSeconds int       `yaml:"timeout_seconds" validate:"gte=1,lte=60"`
}

// ResolvedPassword returns the REST backend's basic-auth password, reading
// PasswordEnv when Password itself is empty.
func (r RouterConfig) ResolvedPassword() string {
	if r.Password != "" {
		return r.Password
	}
	if r.PasswordEnv != "" {
		return os.Getenv(r.PasswordEnv)
	}
	return ""
}

// DirectionFloors holds the per-congestion-state rate floor, bits/sec.
type DirectionFloors struct {
	Green   int64 `yaml:"green" validate:"gt=0"`
	Yellow  int64 `yaml:"yellow" validate:"gt=0"`
	SoftRed int64 `yaml:"soft_red"` // upload has no soft_red; left zero
	Red     int64 `yaml:"red" validate:"gt=0"`
}

// DirectionConfig is the per-direction (download/upload) capacity and floor configuration.
type DirectionConfig struct {
	MaxCapacityBps int64           `yaml:"max_capacity_bps" validate:"gt=0"`
	MinCapacityBps int64           `yaml:"min_capacity_bps" validate:"gt=0"`
	Floors         DirectionFloors `yaml:"floors_bps"`
}

// ThresholdsConfig holds the RTT-delta thresholds and hysteresis sample
// counts for the download (4-state) and upload (3-state) machines.
type ThresholdsConfig struct {
	YellowMs             float64 `yaml:"yellow_ms" validate:"gt=0"`
	SoftRedMs            float64 `yaml:"soft_red_ms" validate:"gt=0"`
	RedMs                float64 `yaml:"red_ms" validate:"gt=0"`
	UploadYellowMs       float64 `yaml:"upload_yellow_ms" validate:"gt=0"`
	UploadRedMs          float64 `yaml:"upload_red_ms" validate:"gt=0"`
	UpSamplesRequired    int     `yaml:"up_samples_required" validate:"gte=1"`
	DownSamplesRequired  int     `yaml:"down_samples_required" validate:"gte=1"`
}

// EWMAConfig holds the baseline/load smoothing parameters (§3.1, §4.1).
type EWMAConfig struct {
	AlphaBaseline            float64 `yaml:"alpha_baseline" validate:"gt=0,lte=1"`
	AlphaLoad                float64 `yaml:"alpha_load" validate:"gt=0,lte=1"`
	BaselineUpdateThresholdMs float64 `yaml:"baseline_update_threshold_ms" validate:"gt=0"`
}

// PingConfig describes the RTT measurement probe set (§3.1, §4.4).
type PingConfig struct {
	Hosts                       []string `yaml:"hosts" validate:"required,min=1,dive,required"`
	Count                       int      `yaml:"count" validate:"gte=1,lte=10"`
	MedianOf                    int      `yaml:"median_of" validate:"gte=1"`
	TimeoutSeconds              int      `yaml:"timeout_seconds" validate:"gte=1,lte=10"`
	AdaptiveConcurrencyEnabled  bool     `yaml:"adaptive_concurrency_enabled"`
	MaxConcurrentProbes         int      `yaml:"max_concurrent_probes" validate:"gte=1"`
}

// FallbackConfig configures behavior under total ICMP failure.
type FallbackConfig struct {
	Mode                  FallbackMode `yaml:"mode" validate:"required,oneof=freeze graceful_degradation use_last_rtt"`
	MaxConsecutiveFailures int         `yaml:"max_consecutive_failures" validate:"gte=1"`
}

// HealthConfig configures the per-daemon HTTP health/history surface (§4.5).
type HealthConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port" validate:"gte=1,lte=65535"`
}

// MetricsConfig toggles metric recording and static labels.
type MetricsConfig struct {
	Enabled bool              `yaml:"enabled"`
	Labels  map[string]string `yaml:"labels"`
}

// StorageConfig points at the metrics database and its retention window.
type StorageConfig struct {
	DBPath        string `yaml:"db_path" validate:"required"`
	RetentionDays int    `yaml:"retention_days" validate:"gte=1"`
}

// Queues names the download/upload queue-tree identifiers the router
// backend resolves to internal IDs.
type Queues struct {
	Download string `yaml:"download" validate:"required"`
	Upload   string `yaml:"upload" validate:"required"`
}

// AutorateConfig is the per-WAN autorate controller configuration (§3.1).
type AutorateConfig struct {
	WANName            string           `yaml:"wan_name" validate:"required"`
	Queues             Queues           `yaml:"queues"`
	Download           DirectionConfig  `yaml:"download"`
	Upload             DirectionConfig  `yaml:"upload"`
	Thresholds         ThresholdsConfig `yaml:"thresholds"`
	EWMA               EWMAConfig       `yaml:"ewma"`
	Ping               PingConfig       `yaml:"ping"`
	Fallback           FallbackConfig   `yaml:"fallback"`
	CycleIntervalMs    int              `yaml:"cycle_interval_ms" validate:"gte=10"`
	StateFile          string           `yaml:"state_file" validate:"required"`
	LockFile           string           `yaml:"lock_file" validate:"required"`
	LogFile            string           `yaml:"log_file"`
	Router             RouterConfig     `yaml:"router"`
	Health             HealthConfig     `yaml:"health"`
	Metrics            MetricsConfig    `yaml:"metrics"`
	Storage            StorageConfig    `yaml:"storage"`
	RateLimitMaxWrites int              `yaml:"rate_limit_max_writes" validate:"gte=1"`
	RateLimitWindowSec int              `yaml:"rate_limit_window_seconds" validate:"gte=1"`
}

// AssessmentConfig holds the steering daemon's degradation thresholds (§6.2).
type AssessmentConfig struct {
	RTTThresholdMs          float64 `yaml:"rtt_threshold_ms" validate:"gt=0"`
	CakeDropsThreshold      float64 `yaml:"cake_drops_threshold" validate:"gte=0"`
	CakeQueueDepthThreshold float64 `yaml:"cake_queue_depth_threshold" validate:"gte=0"`
}

// CakeStateSources points at the primary autorate daemon's state file.
type CakeStateSources struct {
	Primary string `yaml:"primary" validate:"required"`
}

// ConfidenceConfig toggles the shadow-deployment confidence classifier (§4.2 step 7).
type ConfidenceConfig struct {
	Enabled bool `yaml:"enabled"`
	DryRun  bool `yaml:"dry_run"`
}

// SteerConfig is the steering daemon configuration (§6.2).
type SteerConfig struct {
	IntervalMs           int              `yaml:"interval_ms" validate:"gte=10"`
	Assessment           AssessmentConfig `yaml:"assessment"`
	CakeStateSources     CakeStateSources `yaml:"cake_state_sources"`
	CakeAwareEnabled     bool             `yaml:"cake_aware_enabled"`
	RedSamplesRequired   int              `yaml:"red_samples_required" validate:"gte=1"`
	GreenSamplesRequired int              `yaml:"green_samples_required" validate:"gte=1"`
	HistorySize          int              `yaml:"history_size" validate:"gte=1"`
	Confidence           ConfidenceConfig `yaml:"confidence"`
	Router               RouterConfig     `yaml:"router"`
	Health               HealthConfig     `yaml:"health"`
	Metrics              MetricsConfig    `yaml:"metrics"`
	Storage              StorageConfig    `yaml:"storage"`
	StateFile            string           `yaml:"state_file" validate:"required"`
	LockFile             string           `yaml:"lock_file" validate:"required"`
	MangleComment        string           `yaml:"mangle_comment" validate:"required"`
}

// Interval returns IntervalMs as a time.Duration.
func (c SteerConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMs) * time.Millisecond
}

// Interval returns CycleIntervalMs as a time.Duration.
func (c AutorateConfig) Interval() time.Duration {
	return time.Duration(c.CycleIntervalMs) * time.Millisecond
}

var validate = validator.New()

// ValidationError collects every violation found in one pass so the
// caller can report them all at once (§4.7, §7: "emit all violations at
// once").
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed:\n  - %s", strings.Join(e.Violations, "\n  - "))
}

// LoadAutorate reads, deep-merges over defaults, and validates a per-WAN
// autorate config file.
func LoadAutorate(path string) (*AutorateConfig, error) {
	cfg := DefaultAutorateConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	applyRouterEnvOverrides(&cfg.Router)
	applyHealthEnvOverrides(&cfg.Health)
	if err := validateAutorate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadSteer reads, deep-merges over defaults, and validates the steering
// daemon config file.
func LoadSteer(path string) (*SteerConfig, error) {
	cfg := DefaultSteerConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	applyRouterEnvOverrides(&cfg.Router)
	applyHealthEnvOverrides(&cfg.Health)
	if err := validateSteer(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validateAutorate(cfg *AutorateConfig) error {
	var violations []string
	if err := validate.Struct(cfg); err != nil {
		violations = append(violations, fieldErrors(err)...)
	}

	dl := cfg.Download
	if !(dl.MinCapacityBps <= dl.Floors.Red && dl.Floors.Red <= dl.Floors.SoftRed &&
		dl.Floors.SoftRed <= dl.Floors.Yellow && dl.Floors.Yellow <= dl.Floors.Green &&
		dl.Floors.Green <= dl.MaxCapacityBps) {
		violations = append(violations, "download floors must be monotonic: min <= red <= soft_red <= yellow <= green <= max")
	}
	ul := cfg.Upload
	if !(ul.MinCapacityBps <= ul.Floors.Red && ul.Floors.Red <= ul.Floors.Yellow &&
		ul.Floors.Yellow <= ul.Floors.Green && ul.Floors.Green <= ul.MaxCapacityBps) {
		violations = append(violations, "upload floors must be monotonic: min <= red <= yellow <= green <= max")
	}

	th := cfg.Thresholds
	if !(th.YellowMs < th.SoftRedMs && th.SoftRedMs < th.RedMs) {
		violations = append(violations, "thresholds must satisfy yellow_ms < soft_red_ms < red_ms")
	}
	if !(th.UploadYellowMs < th.UploadRedMs) {
		violations = append(violations, "thresholds must satisfy upload_yellow_ms < upload_red_ms")
	}
	if th.UpSamplesRequired >= th.DownSamplesRequired {
		violations = append(violations, "up_samples_required must be smaller than down_samples_required (asymmetric hysteresis: upgrades fire faster than recoveries)")
	}

	if len(cfg.Ping.Hosts) >= 3 {
		// median aggregation path; no extra constraint beyond count itself.
	}

	if len(violations) > 0 {
		return &ValidationError{Violations: violations}
	}
	return nil
}

func validateSteer(cfg *SteerConfig) error {
	var violations []string
	if err := validate.Struct(cfg); err != nil {
		violations = append(violations, fieldErrors(err)...)
	}
	if cfg.RedSamplesRequired >= cfg.GreenSamplesRequired {
		violations = append(violations, "red_samples_required must be smaller than green_samples_required (recovery is intentionally slower than activation, to prevent flap)")
	}
	if len(violations) > 0 {
		return &ValidationError{Violations: violations}
	}
	return nil
}

func fieldErrors(err error) []string {
	var out []string
	if verrs, ok := err.(validator.ValidationErrors); ok {
		for _, fe := range verrs {
			out = append(out, fmt.Sprintf("%s failed validation: %s", fe.Namespace(), fe.Tag()))
		}
		return out
	}
	return []string{err.Error()}
}
