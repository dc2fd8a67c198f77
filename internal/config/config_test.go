package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_ExampleFile(t *testing.T) {
	t.Setenv("TRADIER_ACCESS_TOKEN", "token")
	t.Setenv("SDC_EMAIL", "collector@example.com")
	t.Setenv("SDC_EMAIL_PASSWORD", "app-password")

	configPath := filepath.Join("..", "..", "config.yaml.example")
	cfg, err := Load(configPath)
	require.NoError(t, err, "Expected config to load successfully from example file")
	assert.Equal(t, "token", cfg.AccessToken)
	assert.Equal(t, "collector@example.com", cfg.Email)
}

func TestLoad_InvalidPath(t *testing.T) {
	_, err := Load("nonexistent.yaml")
	if err == nil {
		t.Error("Expected error when loading nonexistent config file, got nil")
	}
}

func TestLoad_OriginalJSONLayout(t *testing.T) {
	path := writeConfig(t, "config.json", `{
		"db_filepath": "./options_data.db",
		"access_token": "abc123",
		"email": "me@example.com",
		"password": "secret"
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "./options_data.db", cfg.DBFilepath)
	assert.Equal(t, "abc123", cfg.AccessToken)
	assert.Equal(t, "me@example.com", cfg.Email)
	assert.Equal(t, "secret", cfg.Password)

	// Defaults
	assert.Equal(t, "SPY", cfg.Symbol)
	assert.Equal(t, "https://sandbox.tradier.com/v1", cfg.APIEndpoint)
	assert.Equal(t, 14, cfg.HorizonDays)
	assert.Equal(t, []time.Weekday{time.Monday, time.Wednesday, time.Friday}, cfg.Weekdays())
	assert.Equal(t, "smtp.gmail.com:465", cfg.SMTPAddress())
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoad_MissingRequiredKey(t *testing.T) {
	base := map[string]string{
		"db_filepath":  "./options.db",
		"access_token": "abc",
		"email":        "me@example.com",
		"password":     "pw",
	}

	for key := range base {
		t.Run(key, func(t *testing.T) {
			var b strings.Builder
			for k, v := range base {
				if k == key {
					continue
				}
				b.WriteString(k + ": " + v + "\n")
			}
			_, err := Load(writeConfig(t, "config.yaml", b.String()))
			require.Error(t, err)
			assert.Contains(t, err.Error(), key+" is required")
		})
	}
}

func TestLoad_UnknownKeyRejected(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
db_filepath: ./options.db
access_token: abc
email: me@example.com
password: pw
acess_token: typo
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config")
}

func TestLoad_MalformedFile(t *testing.T) {
	_, err := Load(writeConfig(t, "config.json", `{"db_filepath": `))
	require.Error(t, err)
}

func TestLoad_ExpandsEnvironment(t *testing.T) {
	t.Setenv("TEST_SDC_TOKEN", "from-env")
	path := writeConfig(t, "config.yaml", `
db_filepath: ./options.db
access_token: ${TEST_SDC_TOKEN}
email: me@example.com
password: pw
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.AccessToken)
}

func TestLoad_DollarSignsKeptVerbatim(t *testing.T) {
	t.Setenv("cd", "expanded")
	path := writeConfig(t, "config.json", `{
		"db_filepath": "./options_data.db",
		"access_token": "tok$en",
		"email": "me@example.com",
		"password": "ab$cd$$ef"
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "ab$cd$$ef", cfg.Password)
	assert.Equal(t, "tok$en", cfg.AccessToken)
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("TEST_SDC_VALUE", "v")
	tests := []struct {
		in   string
		want string
	}{
		{"${TEST_SDC_VALUE}", "v"},
		{"a${TEST_SDC_VALUE}b", "avb"},
		{"$TEST_SDC_VALUE", "$TEST_SDC_VALUE"},
		{"${TEST_SDC_UNSET_VALUE}", ""},
		{"$$", "$$"},
		{"${", "${"},
		{"${1bad}", "${1bad}"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, expandEnv(tt.in))
		})
	}
}

func TestValidate_OptionalSettings(t *testing.T) {
	valid := func() *Config {
		return &Config{
			DBFilepath:  "./options.db",
			AccessToken: "abc",
			Email:       "me@example.com",
			Password:    "pw",
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"defaults only", func(c *Config) {}, ""},
		{"lowercase symbol normalized", func(c *Config) { c.Symbol = " qqq " }, ""},
		{"negative horizon", func(c *Config) { c.HorizonDays = -1 }, "horizon_days"},
		{"bad port", func(c *Config) { c.SMTPPort = 70000 }, "smtp_port"},
		{"unknown weekday", func(c *Config) { c.ExpirationWeekdays = []string{"funday"} }, "unknown weekday"},
		{"bad log level", func(c *Config) { c.LogLevel = "verbose" }, "log_level"},
		{"uppercase log level", func(c *Config) { c.LogLevel = "DEBUG" }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_NormalizesSymbol(t *testing.T) {
	c := &Config{DBFilepath: "x", AccessToken: "a", Email: "e", Password: "p", Symbol: " qqq "}
	require.NoError(t, c.Validate())
	assert.Equal(t, "QQQ", c.Symbol)
}

func TestWeekdays_Custom(t *testing.T) {
	c := &Config{ExpirationWeekdays: []string{"Tuesday", " THURSDAY "}}
	assert.Equal(t, []time.Weekday{time.Tuesday, time.Thursday}, c.Weekdays())
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("TEST_SDC_DOTENV=loaded\n"), 0o600))

	t.Setenv("TEST_SDC_DOTENV", "")
	require.NoError(t, os.Unsetenv("TEST_SDC_DOTENV"))

	require.NoError(t, LoadDotEnv(envPath, filepath.Join(dir, "missing.env")))
	assert.Equal(t, "loaded", os.Getenv("TEST_SDC_DOTENV"))
}

func TestResolvePath(t *testing.T) {
	t.Setenv(EnvConfigPath, "/etc/sdc/config.yaml")
	assert.Equal(t, "/etc/sdc/config.yaml", ResolvePath())

	t.Setenv(EnvConfigPath, "")
	dir := t.TempDir()
	chdir(t, dir)
	assert.Equal(t, "config.yaml", ResolvePath())

	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"), []byte("{}"), 0o600))
	assert.Equal(t, "config.json", ResolvePath())
}

// chdir changes the working directory for the duration of the test
// (equivalent to testing.T.Chdir, which needs Go 1.24+).
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(old); err != nil {
			t.Fatal(err)
		}
	})
}
