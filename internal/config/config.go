package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the relationship engine.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Scoring    ScoringConfig    `yaml:"scoring"`
	Lead       LeadConfig       `yaml:"lead"`
	Dedup      DedupConfig      `yaml:"dedup"`
	Alerts     AlertsConfig     `yaml:"alerts"`
	Snapshots  SnapshotConfig   `yaml:"snapshots"`
	Enrichment EnrichmentConfig `yaml:"enrichment"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Addr returns the host:port listen address.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig holds the optional Postgres backing store settings.
// When URL is empty the engine runs on the in-memory store only.
type DatabaseConfig struct {
	URL             string `yaml:"url"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime_minutes"`
}

// RedisConfig holds the optional Redis settings used for sweep locking.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// ScoringConfig holds the health scorer tunables. The defaults match the
// visible product thresholds (14-day half-life, VIP floor 20, trend band 5).
type ScoringConfig struct {
	DecayHalfLifeDays  float64 `yaml:"decay_half_life_days"`
	FrequencyBonusMax  float64 `yaml:"frequency_bonus_max"`
	FrequencyPerWeek   float64 `yaml:"frequency_bonus_per_weekly"`
	ReciprocityBonus   float64 `yaml:"reciprocity_bonus"`
	OneSidedPenalty    float64 `yaml:"one_sided_penalty"`
	VIPFloor           int     `yaml:"vip_floor"`
	TrendBand          int     `yaml:"trend_band"`
}

// LeadConfig holds the lead scorer tunables.
type LeadConfig struct {
	MinInteractions   int     `yaml:"min_interactions"`
	HealthWeight      float64 `yaml:"health_weight"`
	SignalWeight      float64 `yaml:"signal_weight"`
	RecencyWeight     float64 `yaml:"recency_weight"`
	SignalConfidence  float64 `yaml:"signal_confidence_threshold"`
	WarmingThreshold  int     `yaml:"warming_threshold"`
	WarmThreshold     int     `yaml:"warm_threshold"`
	HotThreshold      int     `yaml:"hot_threshold"`
	ChurnInactiveDays int     `yaml:"churn_inactive_days"`
}

// DedupConfig holds duplicate detection settings.
type DedupConfig struct {
	NameOverlapThreshold float64 `yaml:"name_overlap_threshold"`
	ScanIntervalMinutes  int     `yaml:"scan_interval_minutes"`
}

// AlertsConfig holds alert sweep settings.
type AlertsConfig struct {
	SweepIntervalSeconds int     `yaml:"sweep_interval_seconds"`
	ScoreDecayThreshold  int     `yaml:"score_decay_threshold"`
	FollowUpOverdueDays  int     `yaml:"follow_up_overdue_days"`
	VIPSilentDays        int     `yaml:"vip_silent_days"`
	UpcomingDateDays     int     `yaml:"upcoming_date_days"`
	ChurnRiskThreshold   float64 `yaml:"churn_risk_threshold"`
}

// SnapshotConfig holds optional S3 state snapshot settings.
type SnapshotConfig struct {
	Enabled         bool   `yaml:"enabled"`
	S3Bucket        string `yaml:"s3_bucket"`
	S3Prefix        string `yaml:"s3_prefix"`
	Region          string `yaml:"region"`
	IntervalMinutes int    `yaml:"interval_minutes"`
}

// EnrichmentConfig holds the optional Bedrock enrichment settings.
type EnrichmentConfig struct {
	Enabled bool   `yaml:"enabled"`
	Region  string `yaml:"region"`
	ModelID string `yaml:"model_id"`
}

// SweepInterval returns the alert sweep cadence as a duration.
func (c AlertsConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}

// ScanInterval returns the duplicate scan cadence as a duration.
func (c DedupConfig) ScanInterval() time.Duration {
	return time.Duration(c.ScanIntervalMinutes) * time.Minute
}

// Load reads a YAML config file and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns a config with all defaults applied and no file input.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.Host == "" {
		c.Server.Host = "localhost"
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 25
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 5
	}
	if c.Database.ConnMaxLifetime == 0 {
		c.Database.ConnMaxLifetime = 30
	}

	if c.Scoring.DecayHalfLifeDays == 0 {
		c.Scoring.DecayHalfLifeDays = 14
	}
	if c.Scoring.FrequencyBonusMax == 0 {
		c.Scoring.FrequencyBonusMax = 25
	}
	if c.Scoring.FrequencyPerWeek == 0 {
		c.Scoring.FrequencyPerWeek = 5
	}
	if c.Scoring.ReciprocityBonus == 0 {
		c.Scoring.ReciprocityBonus = 15
	}
	if c.Scoring.OneSidedPenalty == 0 {
		c.Scoring.OneSidedPenalty = 10
	}
	if c.Scoring.VIPFloor == 0 {
		c.Scoring.VIPFloor = 20
	}
	if c.Scoring.TrendBand == 0 {
		c.Scoring.TrendBand = 5
	}

	if c.Lead.MinInteractions == 0 {
		c.Lead.MinInteractions = 3
	}
	if c.Lead.HealthWeight == 0 {
		c.Lead.HealthWeight = 0.30
	}
	if c.Lead.SignalWeight == 0 {
		c.Lead.SignalWeight = 0.40
	}
	if c.Lead.RecencyWeight == 0 {
		c.Lead.RecencyWeight = 0.30
	}
	if c.Lead.SignalConfidence == 0 {
		c.Lead.SignalConfidence = 0.5
	}
	if c.Lead.WarmingThreshold == 0 {
		c.Lead.WarmingThreshold = 40
	}
	if c.Lead.WarmThreshold == 0 {
		c.Lead.WarmThreshold = 60
	}
	if c.Lead.HotThreshold == 0 {
		c.Lead.HotThreshold = 80
	}
	if c.Lead.ChurnInactiveDays == 0 {
		c.Lead.ChurnInactiveDays = 180
	}

	if c.Dedup.NameOverlapThreshold == 0 {
		c.Dedup.NameOverlapThreshold = 0.8
	}
	if c.Dedup.ScanIntervalMinutes == 0 {
		c.Dedup.ScanIntervalMinutes = 60
	}

	if c.Alerts.SweepIntervalSeconds == 0 {
		c.Alerts.SweepIntervalSeconds = 300
	}
	if c.Alerts.ScoreDecayThreshold == 0 {
		c.Alerts.ScoreDecayThreshold = 40
	}
	if c.Alerts.FollowUpOverdueDays == 0 {
		c.Alerts.FollowUpOverdueDays = 7
	}
	if c.Alerts.VIPSilentDays == 0 {
		c.Alerts.VIPSilentDays = 14
	}
	if c.Alerts.UpcomingDateDays == 0 {
		c.Alerts.UpcomingDateDays = 7
	}
	if c.Alerts.ChurnRiskThreshold == 0 {
		c.Alerts.ChurnRiskThreshold = 0.7
	}

	if c.Snapshots.S3Prefix == "" {
		c.Snapshots.S3Prefix = "relationship-engine"
	}
	if c.Snapshots.IntervalMinutes == 0 {
		c.Snapshots.IntervalMinutes = 60
	}
	if c.Snapshots.Region == "" {
		c.Snapshots.Region = "us-west-2"
	}

	if c.Enrichment.Region == "" {
		c.Enrichment.Region = "us-west-2"
	}
	if c.Enrichment.ModelID == "" {
		c.Enrichment.ModelID = "anthropic.claude-3-haiku-20240307-v1:0"
	}
}

// LoadFromEnv loads config from the YAML file, then overrides with
// environment variables (loading a .env file first if one exists).
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = p
		}
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("SNAPSHOT_S3_BUCKET"); v != "" {
		cfg.Snapshots.S3Bucket = v
		cfg.Snapshots.Enabled = true
	}
	if v := os.Getenv("ENRICHMENT_MODEL_ID"); v != "" {
		cfg.Enrichment.ModelID = v
	}

	return cfg, nil
}
