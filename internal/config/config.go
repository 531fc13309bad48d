package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	// ConfigName is the base name of the config file looked up on the search path
	ConfigName = "Croesus"

	SourceXlogfile = "xlogfile"
	SourceLivelog  = "livelog"

	defaultPollInterval    = 3 * time.Second
	defaultQueryTimeout    = 5 * time.Second
	defaultSummaryInterval = 5 * time.Minute
	defaultIdentityCheck   = 30 * time.Second
	defaultChunkSize       = 200
	defaultGraceDays       = 5
	defaultHTTPPort        = 8080
)

// Config represents the entire application configuration
type Config struct {
	Node       NodeConfig       `mapstructure:"node"`
	Chat       ChatConfig       `mapstructure:"chat"`
	Tournament TournamentConfig `mapstructure:"tournament"`
	Sources    []SourceConfig   `mapstructure:"sources"`
	Dumps      DumpsConfig      `mapstructure:"dumps"`
	Timing     TimingConfig     `mapstructure:"timing"`
	RabbitMQ   RabbitMQConfig   `mapstructure:"rabbitmq"`
	Redis      RedisConfig      `mapstructure:"redis"`
	MongoDB    MongoDBConfig    `mapstructure:"mongodb"`
	S3         S3Config         `mapstructure:"s3"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	Logging    LoggingConfig    `mapstructure:"logging"`

	ConfigPath string `mapstructure:"-"`
}

// NodeConfig identifies this instance and the instances it cooperates with.
// Peers are the nodes a master fans queries out to (a master lists itself).
// Masters are the nodes this instance accepts queries from and forwards
// announcements to.
type NodeConfig struct {
	ID        string   `mapstructure:"id"`
	ServerTag string   `mapstructure:"server_tag"`
	Master    bool     `mapstructure:"master"`
	Peers     []string `mapstructure:"peers"`
	Masters   []string `mapstructure:"masters"`
	Admins    []string `mapstructure:"admins"`
	Test      bool     `mapstructure:"test"`
}

type ChatConfig struct {
	Channels     []string `mapstructure:"channels"`
	SpamChannels []string `mapstructure:"spam_channels"`
	// BridgeBots relay messages for other networks as "<nick> text"
	BridgeBots []string `mapstructure:"bridge_bots"`
}

type TournamentConfig struct {
	Start     time.Time `mapstructure:"start"`
	End       time.Time `mapstructure:"end"`
	GraceDays int       `mapstructure:"grace_days"`
}

// SourceConfig describes one game log file
type SourceConfig struct {
	Path       string `mapstructure:"path"`
	Kind       string `mapstructure:"kind"`
	Delimiter  string `mapstructure:"delimiter"`
	DumpFormat string `mapstructure:"dump_format"`
	Spam       bool   `mapstructure:"spam"`
}

type DumpsConfig struct {
	URLPrefix      string   `mapstructure:"url_prefix"`
	FilePrefix     string   `mapstructure:"file_prefix"`
	InProgressDirs []string `mapstructure:"inprogress_dirs"`
	WhereIsDirs    []string `mapstructure:"whereis_dirs"`
}

type TimingConfig struct {
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	QueryTimeout    time.Duration `mapstructure:"query_timeout"`
	SummaryInterval time.Duration `mapstructure:"summary_interval"`
	IdentityCheck   time.Duration `mapstructure:"identity_check"`
	ChunkSize       int           `mapstructure:"chunk_size"`
}

type RabbitMQConfig struct {
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	Username      string `mapstructure:"username"`
	Password      string `mapstructure:"password"`
	VHost         string `mapstructure:"vhost"`
	ExchangeName  string `mapstructure:"exchange_name"`
	QueuePrefix   string `mapstructure:"queue_prefix"`
	PrefetchCount int    `mapstructure:"prefetch_count"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// MongoDBConfig contains MongoDB connection details
type MongoDBConfig struct {
	URI      string `mapstructure:"uri"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	DB       string `mapstructure:"db"`
}

type S3Config struct {
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

type HTTPConfig struct {
	Enabled bool       `mapstructure:"enabled"`
	Port    int        `mapstructure:"port"`
	CORS    CORSConfig `mapstructure:"cors"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings
type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

// LoggingConfig contains logging-related configurations
type LoggingConfig struct {
	Level     string `mapstructure:"level"`
	Format    string `mapstructure:"format"`
	Directory string `mapstructure:"directory"`
}

// SearchPath returns the directories checked for Croesus.toml, in order
func SearchPath() []string {
	dirs := []string{"."}
	if exe, err := os.Executable(); err == nil {
		dirs = append(dirs, filepath.Dir(exe))
	}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, ".config"))
	}
	return append(dirs, "/opt/tnnt/config")
}

// LoadConfig reads configuration from configPath, or from the search path when
// configPath is empty. A missing file is not an error; defaults and CROESUS_*
// environment variables still apply.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CROESUS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	year := time.Now().UTC().Year()
	v.SetDefault("node.id", "Croesus")
	v.SetDefault("tournament.start", time.Date(year, time.November, 1, 0, 0, 0, 0, time.UTC))
	v.SetDefault("tournament.end", time.Date(year, time.December, 1, 0, 0, 0, 0, time.UTC))
	v.SetDefault("tournament.grace_days", defaultGraceDays)
	v.SetDefault("timing.poll_interval", defaultPollInterval)
	v.SetDefault("timing.query_timeout", defaultQueryTimeout)
	v.SetDefault("timing.summary_interval", defaultSummaryInterval)
	v.SetDefault("timing.identity_check", defaultIdentityCheck)
	v.SetDefault("timing.chunk_size", defaultChunkSize)
	v.SetDefault("rabbitmq.port", 5672)
	v.SetDefault("rabbitmq.vhost", "")
	v.SetDefault("rabbitmq.exchange_name", "croesus")
	v.SetDefault("rabbitmq.queue_prefix", "croesus")
	v.SetDefault("rabbitmq.prefetch_count", 50)
	v.SetDefault("redis.prefix", "croesus")
	v.SetDefault("mongodb.db", "croesus")
	v.SetDefault("http.port", defaultHTTPPort)
	v.SetDefault("http.cors.allowed_methods", []string{"GET"})
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName(ConfigName)
		v.SetConfigType("toml")
		for _, dir := range SearchPath() {
			v.AddConfigPath(dir)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	hooks := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeHookFunc(time.RFC3339),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hooks); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}
	cfg.ConfigPath = v.ConfigFileUsed()

	for i := range cfg.Sources {
		if cfg.Sources[i].Delimiter == "" {
			cfg.Sources[i].Delimiter = "\t"
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the relay cannot run with
func (c *Config) Validate() error {
	if c.Node.ID == "" {
		return fmt.Errorf("node.id must not be empty")
	}
	if c.Timing.PollInterval <= 0 {
		return fmt.Errorf("timing.poll_interval must be positive")
	}
	if c.Timing.QueryTimeout <= 0 {
		return fmt.Errorf("timing.query_timeout must be positive")
	}
	if c.Timing.ChunkSize <= 0 {
		return fmt.Errorf("timing.chunk_size must be positive")
	}
	if !c.Tournament.End.After(c.Tournament.Start) {
		return fmt.Errorf("tournament.end must be after tournament.start")
	}
	for _, src := range c.Sources {
		if src.Path == "" {
			return fmt.Errorf("source with empty path")
		}
		if src.Kind != SourceXlogfile && src.Kind != SourceLivelog {
			return fmt.Errorf("source %s: unknown kind %q", src.Path, src.Kind)
		}
	}
	return nil
}

// IsMaster reports whether id is an authorised master for this node
func (n NodeConfig) IsMaster(id string) bool {
	for _, m := range n.Masters {
		if m == id {
			return true
		}
	}
	return false
}
