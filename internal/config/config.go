package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/seckatie/linkshelf/internal/core/browser"
	"github.com/seckatie/linkshelf/internal/core/linkedin"
	"github.com/seckatie/linkshelf/internal/core/screenshot"
)

// Config holds the full application configuration.
type Config struct {
	DB         string           `yaml:"db" mapstructure:"db"`
	DataDir    string           `yaml:"data_dir" mapstructure:"data_dir"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Enrich     EnrichConfig     `yaml:"enrich" mapstructure:"enrich"`
	Screenshot ScreenshotConfig `yaml:"screenshot" mapstructure:"screenshot"`
	Browser    BrowserConfig    `yaml:"browser" mapstructure:"browser"`
	LinkedIn   LinkedInConfig   `yaml:"linkedin" mapstructure:"linkedin"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Host string `yaml:"host" mapstructure:"host"`
	Port int    `yaml:"port" mapstructure:"port"`
}

// EnrichConfig configures the enrichment worker pool.
type EnrichConfig struct {
	Workers   int `yaml:"workers" mapstructure:"workers"`
	QueueSize int `yaml:"queue_size" mapstructure:"queue_size"`
}

// ScreenshotConfig bounds page rendering.
type ScreenshotConfig struct {
	Timeout     time.Duration `yaml:"timeout" mapstructure:"timeout"`
	IdleTimeout time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
	Settle      time.Duration `yaml:"settle" mapstructure:"settle"`
}

// BrowserConfig selects and configures Chrome.
type BrowserConfig struct {
	ChromePath string `yaml:"chrome_path" mapstructure:"chrome_path"`
	Headless   bool   `yaml:"headless" mapstructure:"headless"`
}

// LinkedInConfig holds the LinkedIn credentials and scraping limits.
type LinkedInConfig struct {
	Email             string        `yaml:"email" mapstructure:"email"`
	Password          string        `yaml:"password" mapstructure:"password"`
	SessionTTL        time.Duration `yaml:"session_ttl" mapstructure:"session_ttl"`
	NavigationTimeout time.Duration `yaml:"navigation_timeout" mapstructure:"navigation_timeout"`
	LoginTimeout      time.Duration `yaml:"login_timeout" mapstructure:"login_timeout"`
	MaxImages         int           `yaml:"max_images" mapstructure:"max_images"`
	ImageRate         float64       `yaml:"image_rate" mapstructure:"image_rate"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"config":      "config",
	"db":          "db",
	"data-dir":    "data_dir",
	"host":        "server.host",
	"port":        "server.port",
	"workers":     "enrich.workers",
	"chrome-path": "browser.chrome_path",
	"headless":    "browser.headless",
	"log-level":   "log.level",
	"log-format":  "log.format",
}

// Load reads configuration from defaults, an optional linkshelf.yaml, a .env
// file, the environment (LINKSHELF_ prefix) and flags, in increasing order of
// precedence. flags may be nil.
func Load(flags *pflag.FlagSet) (*Config, error) {
	// Existing environment variables win over .env entries.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, eris.Wrap(err, "config: load .env")
	}

	v := viper.New()

	// Config file
	v.SetConfigName("linkshelf")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "linkshelf"))
	}

	// Environment
	v.SetEnvPrefix("LINKSHELF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("linkedin.email", "LINKSHELF_LINKEDIN_EMAIL", "LINKEDIN_EMAIL")
	_ = v.BindEnv("linkedin.password", "LINKSHELF_LINKEDIN_PASSWORD", "LINKEDIN_PASSWORD")

	// Defaults
	v.SetDefault("db", "linkshelf.db")
	v.SetDefault("data_dir", "data")
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("enrich.workers", 2)
	v.SetDefault("enrich.queue_size", 0)
	v.SetDefault("screenshot.timeout", screenshot.DefaultTimeout)
	v.SetDefault("screenshot.idle_timeout", screenshot.DefaultIdleTimeout)
	v.SetDefault("screenshot.settle", screenshot.DefaultSettleDelay)
	v.SetDefault("browser.chrome_path", "")
	v.SetDefault("browser.headless", true)
	v.SetDefault("linkedin.email", "")
	v.SetDefault("linkedin.password", "")
	v.SetDefault("linkedin.session_ttl", linkedin.DefaultSessionTTL)
	v.SetDefault("linkedin.navigation_timeout", linkedin.DefaultNavigationTimeout)
	v.SetDefault("linkedin.login_timeout", linkedin.DefaultLoginTimeout)
	v.SetDefault("linkedin.max_images", linkedin.DefaultMaxImages)
	v.SetDefault("linkedin.image_rate", float64(linkedin.DefaultImageRate))
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, eris.Wrapf(err, "config: bind flag %s", name)
				}
			}
		}
	}

	if file := v.GetString("config"); file != "" {
		v.SetConfigFile(file)
	}

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	if cfg.Enrich.QueueSize <= 0 {
		cfg.Enrich.QueueSize = cfg.Enrich.Workers * 10
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that would otherwise fail later at startup.
func (c *Config) Validate() error {
	if c.DB == "" {
		return eris.New("config: db path is required")
	}
	if c.DataDir == "" {
		return eris.New("config: data_dir is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return eris.Errorf("config: server.port %d out of range", c.Server.Port)
	}
	if c.Enrich.Workers < 1 {
		return eris.Errorf("config: enrich.workers must be at least 1, got %d", c.Enrich.Workers)
	}
	if c.LinkedIn.MaxImages < 0 {
		return eris.Errorf("config: linkedin.max_images must not be negative, got %d", c.LinkedIn.MaxImages)
	}
	if c.LinkedIn.ImageRate <= 0 {
		return eris.Errorf("config: linkedin.image_rate must be positive, got %v", c.LinkedIn.ImageRate)
	}
	return nil
}

// Addr is the host:port the HTTP server listens on.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// BrowserOptions returns the shared Chrome launch options.
func (c *Config) BrowserOptions() browser.Options {
	opts := browser.DefaultOptions()
	opts.ChromePath = c.Browser.ChromePath
	if opts.ChromePath == "" {
		opts.ChromePath = browser.DefaultChromePath(runtime.GOOS)
	}
	opts.Headless = c.Browser.Headless
	return opts
}

// ScreenshotOptions returns the screenshot capturer options.
func (c *Config) ScreenshotOptions() screenshot.Options {
	return screenshot.Options{
		Browser:     c.BrowserOptions(),
		Timeout:     c.Screenshot.Timeout,
		IdleTimeout: c.Screenshot.IdleTimeout,
		Settle:      c.Screenshot.Settle,
	}
}

// ScraperOptions returns the LinkedIn scraper options.
func (c *Config) ScraperOptions() linkedin.ScraperOptions {
	opts := linkedin.DefaultScraperOptions()
	opts.Browser = c.BrowserOptions()
	opts.NavigationTimeout = c.LinkedIn.NavigationTimeout
	opts.MaxImages = c.LinkedIn.MaxImages
	opts.ImageRate = c.LinkedIn.ImageRate
	return opts
}

// Credentials returns the configured LinkedIn credentials.
func (c *Config) Credentials() linkedin.StaticCredentials {
	return linkedin.StaticCredentials{Email: c.LinkedIn.Email, Password: c.LinkedIn.Password}
}

// Redacted returns a copy of c that is safe to print.
func (c *Config) Redacted() Config {
	out := *c
	if out.LinkedIn.Password != "" {
		out.LinkedIn.Password = "[redacted]"
	}
	return out
}

// WriteYAML writes the redacted configuration in linkshelf.yaml format.
func (c *Config) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c.Redacted()); err != nil {
		return eris.Wrap(err, "config: encode yaml")
	}
	if err := enc.Close(); err != nil {
		return eris.Wrap(err, "config: flush yaml")
	}
	return nil
}

// InitLogger builds a zap logger from cfg and installs it as the global logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
