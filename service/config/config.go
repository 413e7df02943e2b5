/*
 * @module service/config/config
 * @description Application configuration: server, storage, messaging, mining defaults and record source
 * @architecture Infrastructure layer - typed configuration tree
 * @stateFlow Defaults -> YAML file -> ARM_* environment -> Validate
 * @rules Every section has a usable default; Validate rejects out-of-range values before startup
 * @dependencies github.com/knadh/koanf/v2
 * @refs loader.go
 */

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hanamichi-me/DW-traffic/service/association"
)

// Config is the root configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Redis     RedisConfig     `koanf:"redis"`
	Kafka     KafkaConfig     `koanf:"kafka"`
	MQTT      MQTTConfig      `koanf:"mqtt"`
	Mining    MiningConfig    `koanf:"mining"`
	Records   RecordsConfig   `koanf:"records"`
	Scheduler SchedulerConfig `koanf:"scheduler"`
	Retention RetentionConfig `koanf:"retention"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port        int    `koanf:"port"`
	BaseContext string `koanf:"base_context"`
}

// DatabaseConfig configures the run store.
type DatabaseConfig struct {
	Driver   string `koanf:"driver"` // postgres, sqlite
	DSN      string `koanf:"dsn"`    // overrides the discrete fields when set
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`
	Name     string `koanf:"name"`
	SSLMode  string `koanf:"sslmode"`
	Schema   string `koanf:"schema"`
}

// ConnString returns the driver DSN.
func (d DatabaseConfig) ConnString() string {
	if d.DSN != "" {
		return d.DSN
	}
	if d.Driver == "sqlite" {
		return "file:" + d.Name + "?cache=shared"
	}
	s := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
	if d.Schema != "" {
		s += " search_path=" + d.Schema
	}
	return s
}

// RedisConfig configures the result cache and the sweep lock.
type RedisConfig struct {
	Enabled   bool          `koanf:"enabled"`
	Host      string        `koanf:"host"`
	Port      int           `koanf:"port"`
	Password  string        `koanf:"password"`
	DB        int           `koanf:"db"`
	ResultTTL time.Duration `koanf:"result_ttl"`
}

// Addr returns host:port.
func (r RedisConfig) Addr() string { return fmt.Sprintf("%s:%d", r.Host, r.Port) }

// KafkaConfig configures run-completed events on Kafka.
type KafkaConfig struct {
	Enabled bool   `koanf:"enabled"`
	Brokers string `koanf:"brokers"` // comma separated
	Topic   string `koanf:"topic"`
}

// BrokerList splits Brokers.
func (k KafkaConfig) BrokerList() []string {
	var out []string
	for _, b := range strings.Split(k.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// MQTTConfig configures run-completed events on MQTT.
type MQTTConfig struct {
	Enabled  bool   `koanf:"enabled"`
	Broker   string `koanf:"broker"`
	Topic    string `koanf:"topic"`
	ClientID string `koanf:"client_id"`
	QoS      int    `koanf:"qos"`
}

// MiningConfig holds defaults applied to requests that omit a parameter.
type MiningConfig struct {
	MinSupport     float64       `koanf:"min_support"`
	MinConfidence  float64       `koanf:"min_confidence"`
	MinLift        float64       `koanf:"min_lift"`
	TopK           int           `koanf:"top_k"`
	MaxItemsetSize int           `koanf:"max_itemset_size"`
	MaxCandidates  int           `koanf:"max_candidates"`
	Workers        int           `koanf:"workers"`
	Parallelism    int           `koanf:"parallelism"`
	TargetPrefix   string        `koanf:"target_prefix"`
	ScriptTimeout  time.Duration `koanf:"script_timeout"` // per consequent_script call
}

// RecordsConfig selects the record provider.
type RecordsConfig struct {
	Source     string `koanf:"source"` // postgres, csv
	Schema     string `koanf:"schema"` // warehouse schema for the postgres source
	CSVDir     string `koanf:"csv_dir"`
	CSVCharset string `koanf:"csv_charset"`
	Cleanse    bool   `koanf:"cleanse"`
}

// SchedulerConfig configures scheduled sweeps.
type SchedulerConfig struct {
	Enabled bool          `koanf:"enabled"`
	LockTTL time.Duration `koanf:"lock_ttl"`
}

// RetentionConfig configures the periodic removal of old finished runs.
type RetentionConfig struct {
	Enabled bool   `koanf:"enabled"`
	Days    int    `koanf:"days"`
	Cron    string `koanf:"cron"` // with seconds
}

// RateLimitConfig limits mining submissions. A zero limit disables that rule.
type RateLimitConfig struct {
	Enabled   bool          `koanf:"enabled"`
	Window    time.Duration `koanf:"window"`
	PerClient int           `koanf:"per_client"`
	Global    int           `koanf:"global"`
}

// Defaults returns the configuration used when nothing overrides it.
func Defaults() Config {
	engine := association.DefaultConfig()
	return Config{
		Server: ServerConfig{Port: 8080, BaseContext: ""},
		Database: DatabaseConfig{
			Driver:  "postgres",
			Host:    "localhost",
			Port:    5432,
			User:    "postgres",
			Name:    "traffic_dw",
			SSLMode: "disable",
		},
		Redis: RedisConfig{Host: "localhost", Port: 6379, ResultTTL: 24 * time.Hour},
		Kafka: KafkaConfig{Brokers: "localhost:9092", Topic: "mining.runs"},
		MQTT:  MQTTConfig{Broker: "tcp://localhost:1883", Topic: "traffic/mining/runs", ClientID: "arm-service", QoS: 1},
		Mining: MiningConfig{
			MinSupport:    engine.MinSupport,
			MinConfidence: engine.MinConfidence,
			MinLift:       engine.MinLift,
			TopK:          engine.TopK,
			MaxCandidates: engine.MaxCandidates,
			Workers:       1,
			Parallelism:   4,
			TargetPrefix:  "road_user=",
			ScriptTimeout: 250 * time.Millisecond,
		},
		Records:   RecordsConfig{Source: "postgres", CSVDir: "DB_files_export", CSVCharset: "utf-8", Cleanse: true},
		Scheduler: SchedulerConfig{Enabled: true, LockTTL: 30 * time.Minute},
		Retention: RetentionConfig{Enabled: true, Days: 90, Cron: "0 30 3 * * *"},
		RateLimit: RateLimitConfig{Enabled: true, Window: time.Minute, PerClient: 10, Global: 60},
	}
}

// EngineConfig converts the mining defaults into an engine configuration.
func (m MiningConfig) EngineConfig() association.Config {
	cfg := association.Config{
		MinSupport:     m.MinSupport,
		MinConfidence:  m.MinConfidence,
		MinLift:        m.MinLift,
		TopK:           m.TopK,
		MaxItemsetSize: m.MaxItemsetSize,
		MaxCandidates:  m.MaxCandidates,
		Workers:        m.Workers,
		Shape:          association.SingleItemWithPrefix(m.TargetPrefix),
	}
	if m.TargetPrefix == "" {
		cfg.Shape = association.ConsequentShape{ExactlyOne: true}
	}
	return cfg
}

// Validate checks every section.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("database.driver %q must be postgres or sqlite", c.Database.Driver))
	}
	if c.Kafka.Enabled && (len(c.Kafka.BrokerList()) == 0 || c.Kafka.Topic == "") {
		errs = append(errs, errors.New("kafka.brokers and kafka.topic are required when kafka is enabled"))
	}
	if c.MQTT.Enabled && (c.MQTT.Broker == "" || c.MQTT.Topic == "") {
		errs = append(errs, errors.New("mqtt.broker and mqtt.topic are required when mqtt is enabled"))
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, fmt.Errorf("mqtt.qos %d must be 0, 1 or 2", c.MQTT.QoS))
	}
	if err := c.Mining.EngineConfig().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("mining: %w", err))
	}
	if c.Mining.Parallelism < 0 {
		errs = append(errs, fmt.Errorf("mining.parallelism %d must be >= 0", c.Mining.Parallelism))
	}
	if c.Mining.ScriptTimeout <= 0 {
		errs = append(errs, fmt.Errorf("mining.script_timeout %s must be positive", c.Mining.ScriptTimeout))
	}
	switch c.Records.Source {
	case "postgres":
	case "csv":
		if c.Records.CSVDir == "" {
			errs = append(errs, errors.New("records.csv_dir is required for the csv source"))
		}
	default:
		errs = append(errs, fmt.Errorf("records.source %q must be postgres or csv", c.Records.Source))
	}
	if c.Retention.Enabled && (c.Retention.Days < 1 || c.Retention.Cron == "") {
		errs = append(errs, errors.New("retention.days must be >= 1 and retention.cron set when retention is enabled"))
	}
	if c.RateLimit.Enabled && c.RateLimit.Window <= 0 {
		errs = append(errs, errors.New("rate_limit.window must be positive"))
	}
	if c.RateLimit.PerClient < 0 || c.RateLimit.Global < 0 {
		errs = append(errs, errors.New("rate_limit limits must be >= 0"))
	}
	return errors.Join(errs...)
}
