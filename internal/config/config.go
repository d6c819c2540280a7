// Package config assembles the process configuration from defaults, a .env
// file, an optional YAML or HCL file and the environment. The result is an
// explicit value handed to every component; nothing here is global.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"github.com/hashicorp/hcl/v2/hclsimple"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/wilhg/dify-rag-mcp/internal/version"
	"github.com/wilhg/dify-rag-mcp/pkg/errmodel"
	"github.com/wilhg/dify-rag-mcp/pkg/validate"
)

const (
	DefaultBaseURL    = "https://api.dify.ai/v1"
	DefaultConfigPath = "config/config.yaml"
	DefaultEnvFile    = ".env"

	TracingStdout = "stdout"
)

var (
	Transports = []any{"stdio", "http", "sse", "websocket"}
	LogLevels  = []any{"TRACE", "DEBUG", "INFO", "WARN", "ERROR"}
)

type Config struct {
	Dify    Dify
	Log     Log
	Server  Server
	Tracing Tracing
}

type Dify struct {
	APIKey     string        `json:"api_key"`
	BaseURL    string        `json:"base_url"`
	Timeout    time.Duration `json:"timeout"`
	MaxRetries int           `json:"max_retries"`
	RetryDelay time.Duration `json:"retry_delay"`
}

type Log struct {
	Level string `json:"level"`
	File  string `json:"file"`
	JSON  bool   `json:"json"`
	Debug bool   `json:"debug"`
}

type Server struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	Transport string `json:"transport"`
	Host      string `json:"host"`
	Port      int    `json:"port"`
}

type Tracing struct {
	Exporter string `json:"exporter"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Dify: Dify{
			BaseURL:    DefaultBaseURL,
			Timeout:    30 * time.Second,
			MaxRetries: 3,
			RetryDelay: time.Second,
		},
		Log: Log{Level: "INFO"},
		Server: Server{
			Name:      version.Product,
			Version:   version.Version,
			Transport: "stdio",
			Host:      "localhost",
			Port:      8000,
		},
	}
}

// Sources names the files Load reads. Empty fields fall back to the defaults.
type Sources struct {
	EnvFile string
	// Path is an explicit config file. A missing explicit file is an error.
	Path string
	// Lookup reads the process environment. Defaults to os.LookupEnv.
	Lookup func(string) (string, bool)
}

// Load layers defaults, the .env file, the config file and the environment,
// in that order. Flags are applied by the caller afterwards.
func Load(src Sources) (Config, error) {
	cfg := Default()

	if src.EnvFile == "" {
		src.EnvFile = DefaultEnvFile
	}
	if src.Lookup == nil {
		src.Lookup = os.LookupEnv
	}
	dotenv, err := godotenv.Read(src.EnvFile)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, errmodel.Wrap(errmodel.Configuration("env_file", fmt.Sprintf("Failed to read %s: %v", src.EnvFile, err)), err)
	}
	lookup := func(key string) (string, bool) {
		if v, ok := src.Lookup(key); ok && v != "" {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}

	path, explicit := src.Path, src.Path != ""
	if !explicit {
		if v, ok := lookup("CONFIG_PATH"); ok && v != "" {
			path, explicit = v, true
		} else {
			path = DefaultConfigPath
		}
	}
	if err := cfg.applyFile(path, explicit); err != nil {
		return cfg, err
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// fileConfig is the on-disk shape shared by YAML, HCL and JSON files.
type fileConfig struct {
	Dify    *fileDify   `hcl:"dify,block" yaml:"dify"`
	Log     *fileLog    `hcl:"log,block" yaml:"log"`
	Server  *fileServer `hcl:"server,block" yaml:"server"`
	Tracing string      `hcl:"tracing,optional" yaml:"tracing"`
}

type fileDify struct {
	APIKey     string `hcl:"api_key,optional" yaml:"api_key"`
	BaseURL    string `hcl:"base_url,optional" yaml:"base_url"`
	Timeout    string `hcl:"timeout,optional" yaml:"timeout"`
	MaxRetries *int   `hcl:"max_retries,optional" yaml:"max_retries"`
	RetryDelay string `hcl:"retry_delay,optional" yaml:"retry_delay"`
}

type fileLog struct {
	Level string `hcl:"level,optional" yaml:"level"`
	File  string `hcl:"file,optional" yaml:"file"`
	JSON  *bool  `hcl:"json,optional" yaml:"json"`
	Debug *bool  `hcl:"debug,optional" yaml:"debug"`
}

type fileServer struct {
	Name      string `hcl:"name,optional" yaml:"name"`
	Version   string `hcl:"version,optional" yaml:"version"`
	Transport string `hcl:"transport,optional" yaml:"transport"`
	Host      string `hcl:"host,optional" yaml:"host"`
	Port      int    `hcl:"port,optional" yaml:"port"`
}

func (c *Config) applyFile(path string, explicit bool) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !explicit {
			return nil
		}
		return errmodel.Wrap(errmodel.Configuration("config_path", fmt.Sprintf("Failed to read config file %s: %v", path, err)), err)
	}

	var fc fileConfig
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(raw, &fc)
	case ".hcl", ".json":
		err = hclsimple.Decode(path, raw, nil, &fc)
	default:
		return errmodel.Configuration("config_path", fmt.Sprintf("Unsupported config file extension %q", ext))
	}
	if err != nil {
		return errmodel.Wrap(errmodel.Configuration("config_path", fmt.Sprintf("Failed to parse config file %s: %v", path, err)), err)
	}
	return c.merge(fc)
}

func (c *Config) merge(fc fileConfig) error {
	var result *multierror.Error
	if d := fc.Dify; d != nil {
		setString(&c.Dify.APIKey, d.APIKey)
		setString(&c.Dify.BaseURL, d.BaseURL)
		if d.MaxRetries != nil {
			c.Dify.MaxRetries = *d.MaxRetries
		}
		if err := setDuration(&c.Dify.Timeout, "dify.timeout", d.Timeout); err != nil {
			result = multierror.Append(result, err)
		}
		if err := setDuration(&c.Dify.RetryDelay, "dify.retry_delay", d.RetryDelay); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if l := fc.Log; l != nil {
		setString(&c.Log.Level, l.Level)
		setString(&c.Log.File, l.File)
		if l.JSON != nil {
			c.Log.JSON = *l.JSON
		}
		if l.Debug != nil {
			c.Log.Debug = *l.Debug
		}
	}
	if s := fc.Server; s != nil {
		setString(&c.Server.Name, s.Name)
		setString(&c.Server.Version, s.Version)
		setString(&c.Server.Transport, s.Transport)
		setString(&c.Server.Host, s.Host)
		if s.Port != 0 {
			c.Server.Port = s.Port
		}
	}
	setString(&c.Tracing.Exporter, fc.Tracing)
	return first(result)
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	env := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	env("DIFY_API_KEY", &c.Dify.APIKey)
	env("DIFY_BASE_URL", &c.Dify.BaseURL)
	env("DIFY_LOG_LEVEL", &c.Log.Level)
	env("DIFY_LOG_FILE", &c.Log.File)
	env("DIFY_HOST", &c.Server.Host)
	env("MCP_SERVER_NAME", &c.Server.Name)
	env("MCP_SERVER_VERSION", &c.Server.Version)
	env("DIFY_TRACING", &c.Tracing.Exporter)

	var result *multierror.Error
	parse := func(key string, fn func(string) error) {
		if v, ok := lookup(key); ok && v != "" {
			if err := fn(v); err != nil {
				result = multierror.Append(result, errmodel.Configuration(key, fmt.Sprintf("Invalid %s %q: %v", key, v, err)))
			}
		}
	}
	parse("DIFY_TIMEOUT", func(v string) (err error) { c.Dify.Timeout, err = ParseDuration(v); return })
	parse("DIFY_RETRY_DELAY", func(v string) (err error) { c.Dify.RetryDelay, err = ParseDuration(v); return })
	parse("DIFY_MAX_RETRIES", func(v string) (err error) { c.Dify.MaxRetries, err = strconv.Atoi(v); return })
	parse("DIFY_PORT", func(v string) (err error) { c.Server.Port, err = strconv.Atoi(v); return })
	parse("DIFY_LOG_JSON", func(v string) (err error) { c.Log.JSON, err = strconv.ParseBool(v); return })
	parse("DIFY_DEBUG", func(v string) (err error) { c.Log.Debug, err = strconv.ParseBool(v); return })
	return first(result)
}

// ParseDuration accepts a Go duration ("1m30s") or a bare number of seconds ("30", "0.5").
func ParseDuration(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	return time.ParseDuration(v)
}

// Validate checks every section and reports the first offending key as a
// configuration error wrapping all of them.
func (c Config) Validate() error {
	c.Log.Level = strings.ToUpper(c.Log.Level)

	var result *multierror.Error
	sections := []struct {
		name string
		err  error
	}{
		{"dify", validation.ValidateStruct(&c.Dify,
			validation.Field(&c.Dify.APIKey, validation.Required),
			validation.Field(&c.Dify.BaseURL, validation.Required, is.URL, validation.By(httpURL)),
			validation.Field(&c.Dify.Timeout, validation.Required, validation.Min(time.Second)),
			validation.Field(&c.Dify.MaxRetries, validation.Min(0), validation.Max(10)),
			validation.Field(&c.Dify.RetryDelay, validation.Min(time.Duration(0))),
		)},
		{"log", validation.ValidateStruct(&c.Log,
			validation.Field(&c.Log.Level, validation.In(LogLevels...)),
		)},
		{"server", validation.ValidateStruct(&c.Server,
			validation.Field(&c.Server.Name, validation.Required),
			validation.Field(&c.Server.Transport, validation.Required, validation.In(Transports...)),
			validation.Field(&c.Server.Port, validation.Required, validation.Min(1), validation.Max(65535)),
		)},
		{"tracing", validation.ValidateStruct(&c.Tracing,
			validation.Field(&c.Tracing.Exporter, validation.In(any(TracingStdout))),
		)},
	}
	for _, s := range sections {
		var errs validation.Errors
		if !errors.As(s.err, &errs) {
			if s.err != nil {
				result = multierror.Append(result, s.err)
			}
			continue
		}
		keys := make([]string, 0, len(errs))
		for k := range errs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			key := s.name + "." + k
			result = multierror.Append(result, errmodel.Configuration(key, fmt.Sprintf("Invalid %s: %v", key, errs[k])))
		}
	}
	return first(result)
}

func httpURL(v any) error {
	s, _ := v.(string)
	if s == "" {
		return nil
	}
	if _, err := validate.URL(s, "base_url"); err != nil {
		return errors.New(errmodel.From(err).Message)
	}
	return nil
}

// WarnUnprefixedKey logs when the key lacks the prefix knowledge-base keys carry.
func (c Config) WarnUnprefixedKey(log hclog.Logger) {
	if prefixed, err := validate.APIKey(c.Dify.APIKey); err == nil && !prefixed {
		log.Warn("API key does not start with the expected prefix", "prefix", validate.APIKeyPrefix)
	}
}

// Addr is the listen address of the HTTP transport.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// LogLevel resolves the effective level; debug mode wins over the level string.
func (c Config) LogLevel() string {
	if c.Log.Debug {
		return "DEBUG"
	}
	return c.Log.Level
}

// first surfaces the first configuration error of result, wrapping the rest.
func first(result *multierror.Error) error {
	if result.ErrorOrNil() == nil {
		return nil
	}
	head := errmodel.From(result.Errors[0])
	if len(result.Errors) == 1 {
		return head
	}
	out := *head
	out.Message = fmt.Sprintf("%s (and %d more)", head.Message, len(result.Errors)-1)
	return errmodel.Wrap(&out, result)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key, v string) error {
	if v == "" {
		return nil
	}
	d, err := ParseDuration(v)
	if err != nil {
		return errmodel.Configuration(key, fmt.Sprintf("Invalid %s %q: %v", key, v, err))
	}
	*dst = d
	return nil
}
