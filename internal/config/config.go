// Package config loads and validates harvester configuration via Viper.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config captures all harvester configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Site    SiteConfig    `mapstructure:"site"`
	Harvest HarvestConfig `mapstructure:"harvest"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Segment SegmentConfig `mapstructure:"segment"`
	DB      DBConfig      `mapstructure:"db"`
	Archive ArchiveConfig `mapstructure:"archive"`
	PubSub  PubSubConfig  `mapstructure:"pubsub"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig controls the observability HTTP server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// SiteConfig names the catalog site and its structural selectors.
type SiteConfig struct {
	RootURL          string `mapstructure:"root_url"`
	ListAPIURL       string `mapstructure:"list_api_url"`
	MenuContainer    string `mapstructure:"menu_container"`
	MenuItemClass    string `mapstructure:"menu_item_class"`
	ListKeyParam     string `mapstructure:"list_key_param"`
	ArticleContainer string `mapstructure:"article_container"`
	SectionSelector  string `mapstructure:"section_selector"`
}

// HarvestConfig governs the worker pool and the queue feeding it.
type HarvestConfig struct {
	Concurrency  int     `mapstructure:"concurrency"`
	QueueDepth   int     `mapstructure:"queue_depth"`
	RequestsPerS float64 `mapstructure:"requests_per_second"`
	Burst        int     `mapstructure:"burst"`
	EventTopic   string  `mapstructure:"event_topic"`
}

// HTTPConfig configures fetch timeout and retry behavior.
type HTTPConfig struct {
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	MaxRetries     int    `mapstructure:"max_retries"`
	UserAgent      string `mapstructure:"user_agent"`
}

// SegmentConfig bounds article segmentation and keyword extraction.
type SegmentConfig struct {
	MaxSegmentBytes int `mapstructure:"max_segment_bytes"`
	MaxKeywords     int `mapstructure:"max_keywords"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN            string `mapstructure:"dsn"`
	MaxConns       int    `mapstructure:"max_conns"`
	MinConns       int    `mapstructure:"min_conns"`
	PreloadContent bool   `mapstructure:"preload_content"`
}

// ArchiveConfig selects where raw fetched pages go. Mode is "off", "local",
// or "gcs".
type ArchiveConfig struct {
	Mode      string `mapstructure:"mode"`
	LocalDir  string `mapstructure:"local_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// PubSubConfig holds metadata for harvest completion events.
type PubSubConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
}

// LoggingConfig tunes the harvester's zap logger.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
	// Level is the minimum emitted level. Empty means debug in development
	// and info otherwise.
	Level string `mapstructure:"level"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("HARVEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("site.root_url", "https://www.terveyskirjasto.fi/terveyskirjasto/tk.koti")
	v.SetDefault("site.list_api_url", "https://www.terveyskirjasto.fi/terveyskirjasto/tk.koti?p_teos=%s&p_funktio=json")
	v.SetDefault("site.menu_container", "#vakionavi")
	v.SetDefault("site.menu_item_class", "main-menu-item")
	v.SetDefault("site.list_key_param", "teos")
	v.SetDefault("site.article_container", "#duo-article")
	v.SetDefault("site.section_selector", ".section")
	v.SetDefault("harvest.concurrency", 4)
	v.SetDefault("harvest.queue_depth", 256)
	v.SetDefault("harvest.requests_per_second", 2.0)
	v.SetDefault("harvest.burst", 1)
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("http.max_retries", 3)
	v.SetDefault("http.user_agent", "kirjasto-harvester/1.0")
	v.SetDefault("segment.max_segment_bytes", 2048)
	v.SetDefault("segment.max_keywords", 10)
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("db.preload_content", true)
	v.SetDefault("archive.mode", "off")
	v.SetDefault("archive.prefix", "pages")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Site.RootURL == "" {
		return fmt.Errorf("site.root_url is required")
	}
	if c.Site.ListAPIURL == "" {
		return fmt.Errorf("site.list_api_url is required")
	}
	if !strings.Contains(c.Site.ListAPIURL, "%s") {
		return fmt.Errorf("site.list_api_url must contain a %%s list-key placeholder")
	}
	if c.Harvest.Concurrency <= 0 {
		return fmt.Errorf("harvest.concurrency must be > 0")
	}
	if c.Harvest.QueueDepth <= 0 {
		return fmt.Errorf("harvest.queue_depth must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.MaxRetries < 0 {
		return fmt.Errorf("http.max_retries must be >= 0")
	}
	if c.Segment.MaxSegmentBytes <= 0 {
		return fmt.Errorf("segment.max_segment_bytes must be > 0")
	}
	if c.DB.DSN == "" {
		return fmt.Errorf("db.dsn is required")
	}
	switch c.Archive.Mode {
	case "", "off":
	case "local":
		if c.Archive.LocalDir == "" {
			return fmt.Errorf("archive.local_dir is required in local mode")
		}
	case "gcs":
		if c.Archive.GCSBucket == "" {
			return fmt.Errorf("archive.gcs_bucket is required in gcs mode")
		}
	default:
		return fmt.Errorf("archive.mode must be off, local, or gcs")
	}
	if c.PubSub.Enabled {
		if c.PubSub.ProjectID == "" {
			return fmt.Errorf("pubsub.project_id is required when pubsub is enabled")
		}
		if c.Harvest.EventTopic == "" {
			return fmt.Errorf("harvest.event_topic is required when pubsub is enabled")
		}
	}
	return nil
}
