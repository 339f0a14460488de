// Package config loads investigate service configuration from defaults, an
// optional YAML file and INVESTIGATE_* environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the investigate service.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	OpenSearch  OpenSearchConfig  `mapstructure:"opensearch"`
	NATS        NATSConfig        `mapstructure:"nats"`
	Neo4j       Neo4jConfig       `mapstructure:"neo4j"`
	GeoIP       GeoIPConfig       `mapstructure:"geoip"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Correlation CorrelationConfig `mapstructure:"correlation"`
	Timeline    TimelineConfig    `mapstructure:"timeline"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	Database       string `mapstructure:"database"`
	SSLMode        string `mapstructure:"sslmode"`
	MigrationsPath string `mapstructure:"migrations_path"`
}

// ConnString renders a postgres:// URL usable by both pgxpool and migrate.
func (p PostgresConfig) ConnString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.Database, p.SSLMode)
}

// RedisConfig backs the Geo-IP lookup cache.
type RedisConfig struct {
	URL      string        `mapstructure:"url"`
	Enabled  bool          `mapstructure:"enabled"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// OpenSearchConfig points at the access-log index.
type OpenSearchConfig struct {
	URL      string `mapstructure:"url"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Insecure bool   `mapstructure:"insecure"`
	Index    string `mapstructure:"index"`
	Enabled  bool   `mapstructure:"enabled"`
}

type NATSConfig struct {
	URL           string        `mapstructure:"url"`
	Enabled       bool          `mapstructure:"enabled"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
}

// Neo4jConfig controls the optional connection-graph projection.
type Neo4jConfig struct {
	URI      string `mapstructure:"uri"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	Enabled  bool   `mapstructure:"enabled"`
}

type GeoIPConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// AuthConfig configures bearer token validation and audit trail sealing.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Required  bool   `mapstructure:"required"`
	AuditKey  string `mapstructure:"audit_key"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// CorrelationConfig carries the linking and scoring heuristics. The values
// are empirically tuned, not domain law.
type CorrelationConfig struct {
	SameInvestigationRadiusKm float64       `mapstructure:"same_investigation_radius_km"`
	GeoProximityRadiusKm      float64       `mapstructure:"geo_proximity_radius_km"`
	TemporalWindow            time.Duration `mapstructure:"temporal_window"`
	MinStrength               float64       `mapstructure:"min_strength"`
	EvidenceLinkStrength      float64       `mapstructure:"evidence_link_strength"`
	BehavioralValueWeight     float64       `mapstructure:"behavioral_value_weight"`
	BehavioralFrequencyWeight float64       `mapstructure:"behavioral_frequency_weight"`
	BehavioralThreshold       float64       `mapstructure:"behavioral_threshold"`
	CandidateLimit            int           `mapstructure:"candidate_limit"`
	MaxEntities               int           `mapstructure:"max_entities"`
	RiskEntityWeight          float64       `mapstructure:"risk_entity_weight"`
	RiskEntityCap             float64       `mapstructure:"risk_entity_cap"`
	RiskConnectionWeight      float64       `mapstructure:"risk_connection_weight"`
	RiskTemporalWeight        float64       `mapstructure:"risk_temporal_weight"`
	RiskGeoWeight             float64       `mapstructure:"risk_geo_weight"`
}

type TimelineConfig struct {
	CrossEntityWindow time.Duration `mapstructure:"cross_entity_window"`
	AccessLogLimit    int           `mapstructure:"access_log_limit"`
	MaxLinkedEntities int           `mapstructure:"max_linked_entities"`
	IPTraceOffset     time.Duration `mapstructure:"ip_trace_offset"`
}

// Load reads configuration from configPath (or ./config.yaml,
// /etc/telhawk/investigate/config.yaml) and the environment.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/telhawk/investigate")
	}

	// INVESTIGATE_SERVER_PORT, INVESTIGATE_CORRELATION_MAX_ENTITIES, ...
	v.SetEnvPrefix("INVESTIGATE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if configPath != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings that would make the engines misbehave.
func (c *Config) Validate() error {
	cc := c.Correlation
	switch {
	case cc.TemporalWindow <= 0:
		return fmt.Errorf("correlation.temporal_window must be positive")
	case cc.GeoProximityRadiusKm <= 0 || cc.SameInvestigationRadiusKm <= 0:
		return fmt.Errorf("correlation radii must be positive")
	case cc.MaxEntities <= 0:
		return fmt.Errorf("correlation.max_entities must be positive")
	case cc.MinStrength < 0 || cc.MinStrength > 1:
		return fmt.Errorf("correlation.min_strength must be within [0,1]")
	case c.Timeline.CrossEntityWindow <= 0:
		return fmt.Errorf("timeline.cross_entity_window must be positive")
	case c.Timeline.MaxLinkedEntities <= 0:
		return fmt.Errorf("timeline.max_linked_entities must be positive")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8090)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "30s")

	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "telhawk")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.postgres.database", "telhawk_investigate")
	v.SetDefault("database.postgres.sslmode", "disable")
	v.SetDefault("database.postgres.migrations_path", "file://migrations")

	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.cache_ttl", "24h")

	v.SetDefault("opensearch.url", "https://localhost:9200")
	v.SetDefault("opensearch.username", "admin")
	v.SetDefault("opensearch.password", "")
	v.SetDefault("opensearch.insecure", true)
	v.SetDefault("opensearch.index", "access-logs-*")
	v.SetDefault("opensearch.enabled", true)

	v.SetDefault("nats.url", "nats://nats:4222")
	v.SetDefault("nats.enabled", true)
	v.SetDefault("nats.max_reconnects", -1)
	v.SetDefault("nats.reconnect_wait", "2s")

	v.SetDefault("neo4j.uri", "neo4j://localhost:7687")
	v.SetDefault("neo4j.username", "neo4j")
	v.SetDefault("neo4j.password", "")
	v.SetDefault("neo4j.database", "neo4j")
	v.SetDefault("neo4j.enabled", false)

	v.SetDefault("geoip.base_url", "http://ip-api.com/json")
	v.SetDefault("geoip.timeout", "3s")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.required", false)
	v.SetDefault("auth.audit_key", "change-me")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("correlation.same_investigation_radius_km", 200.0)
	v.SetDefault("correlation.geo_proximity_radius_km", 100.0)
	v.SetDefault("correlation.temporal_window", "1h")
	v.SetDefault("correlation.min_strength", 0.1)
	v.SetDefault("correlation.evidence_link_strength", 0.8)
	v.SetDefault("correlation.behavioral_value_weight", 0.6)
	v.SetDefault("correlation.behavioral_frequency_weight", 0.4)
	v.SetDefault("correlation.behavioral_threshold", 0.7)
	v.SetDefault("correlation.candidate_limit", 5)
	v.SetDefault("correlation.max_entities", 200)
	v.SetDefault("correlation.risk_entity_weight", 0.1)
	v.SetDefault("correlation.risk_entity_cap", 0.5)
	v.SetDefault("correlation.risk_connection_weight", 0.3)
	v.SetDefault("correlation.risk_temporal_weight", 0.1)
	v.SetDefault("correlation.risk_geo_weight", 0.05)

	v.SetDefault("timeline.cross_entity_window", "5m")
	v.SetDefault("timeline.access_log_limit", 50)
	v.SetDefault("timeline.max_linked_entities", 50)
	v.SetDefault("timeline.ip_trace_offset", "1s")
}
