// Package config provides configuration management for the options collector.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	yaml "gopkg.in/yaml.v3"
)

// Defaults applied when optional keys are unset
const (
	defaultSymbol      = "SPY"
	defaultAPIEndpoint = "https://sandbox.tradier.com/v1"
	// defaultHorizonDays is how far ahead expirations are collected
	defaultHorizonDays = 14
	defaultSMTPHost    = "smtp.gmail.com"
	defaultSMTPPort    = 465
	defaultLogLevel    = "info"
)

// EnvConfigPath names the environment variable that overrides the config file location.
const EnvConfigPath = "SDC_CONFIG"

var defaultWeekdays = []string{"monday", "wednesday", "friday"}

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// Config represents the complete collector configuration.
// The four credential keys keep the flat layout of a legacy config.json.
type Config struct {
	DBFilepath  string `yaml:"db_filepath"`
	AccessToken string `yaml:"access_token"`
	Email       string `yaml:"email"`
	Password    string `yaml:"password"`

	Symbol             string   `yaml:"symbol"`
	APIEndpoint        string   `yaml:"api_endpoint"`
	HorizonDays        int      `yaml:"horizon_days"`
	ExpirationWeekdays []string `yaml:"expiration_weekdays"`
	SMTPHost           string   `yaml:"smtp_host"`
	SMTPPort           int      `yaml:"smtp_port"`
	LogLevel           string   `yaml:"log_level"` // debug | info | warn | error
}

// Load reads and parses the configuration file from the specified path.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- configPath is a user-provided config file path
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnv(string(data))

	var config Config
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&config); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// envRef matches the braced ${VAR} form only
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnv substitutes ${VAR} references. Any other "$" is literal.
func expandEnv(s string) string {
	return envRef.ReplaceAllStringFunc(s, func(ref string) string {
		return os.Getenv(ref[2 : len(ref)-1])
	})
}

// LoadDotEnv loads KEY=VALUE pairs from the given files (default ".env") into the
// process environment. Missing files are ignored; variables already set win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("loading %s: %w", p, err)
		}
	}
	return nil
}

// ResolvePath picks the config file: $SDC_CONFIG, then config.yaml, then config.json.
func ResolvePath() string {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p
	}
	for _, candidate := range []string{"config.yaml", "config.json"} {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return "config.yaml"
}

// Validate checks that required keys are present and optional ones are sane.
// Defaults are filled in before the optional checks run.
func (c *Config) Validate() error {
	if c.DBFilepath == "" {
		return fmt.Errorf("db_filepath is required")
	}
	if c.AccessToken == "" {
		return fmt.Errorf("access_token is required")
	}
	if c.Email == "" {
		return fmt.Errorf("email is required")
	}
	if c.Password == "" {
		return fmt.Errorf("password is required")
	}

	c.normalize()

	if c.HorizonDays <= 0 {
		return fmt.Errorf("horizon_days must be > 0")
	}
	if c.SMTPPort <= 0 || c.SMTPPort > 65535 {
		return fmt.Errorf("smtp_port must be between 1 and 65535")
	}
	if _, err := c.parseWeekdays(); err != nil {
		return err
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be one of debug, info, warn, error")
	}

	return nil
}

// Weekdays returns the configured expiration weekdays.
func (c *Config) Weekdays() []time.Weekday {
	days, err := c.parseWeekdays()
	if err != nil {
		// Validate rejects bad names, so only an unvalidated config lands here
		days, _ = (&Config{ExpirationWeekdays: defaultWeekdays}).parseWeekdays()
	}
	return days
}

// SMTPAddress returns host:port of the mail submission service.
func (c *Config) SMTPAddress() string {
	return fmt.Sprintf("%s:%d", c.SMTPHost, c.SMTPPort)
}

func (c *Config) parseWeekdays() ([]time.Weekday, error) {
	names := c.ExpirationWeekdays
	if len(names) == 0 {
		names = defaultWeekdays
	}
	days := make([]time.Weekday, 0, len(names))
	for _, name := range names {
		d, ok := weekdayNames[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return nil, fmt.Errorf("expiration_weekdays: unknown weekday %q", name)
		}
		days = append(days, d)
	}
	return days, nil
}

// normalize sets default values for optional keys
func (c *Config) normalize() {
	if c.Symbol == "" {
		c.Symbol = defaultSymbol
	}
	c.Symbol = strings.ToUpper(strings.TrimSpace(c.Symbol))
	if c.APIEndpoint == "" {
		c.APIEndpoint = defaultAPIEndpoint
	}
	if c.HorizonDays == 0 {
		c.HorizonDays = defaultHorizonDays
	}
	if len(c.ExpirationWeekdays) == 0 {
		c.ExpirationWeekdays = append([]string(nil), defaultWeekdays...)
	}
	if c.SMTPHost == "" {
		c.SMTPHost = defaultSMTPHost
	}
	if c.SMTPPort == 0 {
		c.SMTPPort = defaultSMTPPort
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	c.LogLevel = strings.ToLower(c.LogLevel)
}
