// Package config resolves service configuration from defaults, credential
// files, a .env file and the environment.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variable names.
const (
	EnvAPIURL          = "LEADS_API_URL"
	EnvAuthHeaderName  = "LEADS_AUTH_HEADER_NAME"
	EnvAuthHeaderValue = "LEADS_AUTH_HEADER_VALUE"
	EnvAuthFile        = "LEADS_AUTH_FILE"
	EnvServersFile     = "LEADS_SERVERS_FILE"
	EnvRegion          = "LEADS_REGION"
	EnvPort            = "PORT"
	EnvCacheTTL        = "LEADS_CACHE_TTL"
	EnvMaxRecords      = "LEADS_MAX_RECORDS"
	EnvHTTPTimeout     = "LEADS_HTTP_TIMEOUT"
	EnvRetryAttempts   = "LEADS_RETRY_ATTEMPTS"
	EnvEmailDomain     = "LEADS_EMAIL_DOMAIN"
	EnvCORSOrigins     = "LEADS_CORS_ORIGINS"
)

// Defaults.
const (
	DefaultRegion        = "Pakistan"
	DefaultPort          = 8000
	DefaultCacheTTL      = 15 * time.Minute
	DefaultMaxRecords    = 5000
	DefaultHTTPTimeout   = 30 * time.Second
	DefaultRetryAttempts = 3
	DefaultEmailDomain   = "skyelectric.pk"
)

// Config is the resolved service configuration.
type Config struct {
	APIURL          string
	AuthHeaderName  string
	AuthHeaderValue string
	AuthFile        string
	ServersFile     string
	Region          string
	EmailDomain     string
	CORSOrigins     []string
	Port            int
	CacheTTL        time.Duration
	HTTPTimeout     time.Duration
	MaxRecords      int
	RetryAttempts   int
}

// Error reports a configuration problem with the offending field.
type Error struct {
	Err   error
	Field string
}

func (e *Error) Error() string {
	return fmt.Sprintf("config %s: %v", e.Field, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// LookupFunc returns the value of a configuration variable and whether it is set.
type LookupFunc func(key string) (string, bool)

// Default returns the built-in defaults. The API URL and auth header have no
// default and must come from files or the environment.
func Default() Config {
	return Config{
		Region:        DefaultRegion,
		Port:          DefaultPort,
		CacheTTL:      DefaultCacheTTL,
		MaxRecords:    DefaultMaxRecords,
		HTTPTimeout:   DefaultHTTPTimeout,
		RetryAttempts: DefaultRetryAttempts,
		EmailDomain:   DefaultEmailDomain,
		CORSOrigins:   []string{"*"},
	}
}

// Load resolves configuration from the process environment, falling back to
// variables from envFile. A missing envFile is ignored; an empty name skips it.
func Load(envFile string) (Config, error) {
	dotenv := map[string]string{}
	if envFile != "" {
		vars, err := godotenv.Read(envFile)
		switch {
		case err == nil:
			dotenv = vars
		case errors.Is(err, os.ErrNotExist):
		default:
			return Config{}, &Error{Field: "env file", Err: err}
		}
	}
	return FromLookup(chain(os.LookupEnv, mapLookup(dotenv)))
}

// FromLookup resolves configuration from lookup and validates it.
func FromLookup(lookup LookupFunc) (Config, error) {
	cfg := Default()

	if v, ok := lookup(EnvRegion); ok && v != "" {
		cfg.Region = v
	}
	if v, ok := lookup(EnvServersFile); ok && v != "" {
		cfg.ServersFile = v
		api, err := readServersFile(v, cfg.Region)
		if err != nil {
			return Config{}, err
		}
		cfg.APIURL = api
	}
	if v, ok := lookup(EnvAuthFile); ok && v != "" {
		cfg.AuthFile = v
		name, value, err := readAuthFile(v)
		if err != nil {
			return Config{}, err
		}
		cfg.AuthHeaderName, cfg.AuthHeaderValue = name, value
	}

	if err := cfg.applyEnv(lookup); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup LookupFunc) error {
	setString := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	setString(EnvAPIURL, &c.APIURL)
	setString(EnvAuthHeaderName, &c.AuthHeaderName)
	setString(EnvAuthHeaderValue, &c.AuthHeaderValue)
	setString(EnvEmailDomain, &c.EmailDomain)

	if v, ok := lookup(EnvCORSOrigins); ok && v != "" {
		c.CORSOrigins = SplitList(v)
	}

	ints := []struct {
		dst *int
		key string
	}{
		{&c.Port, EnvPort},
		{&c.MaxRecords, EnvMaxRecords},
		{&c.RetryAttempts, EnvRetryAttempts},
	}
	for _, f := range ints {
		v, ok := lookup(f.key)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return &Error{Field: f.key, Err: err}
		}
		*f.dst = n
	}

	durations := []struct {
		dst *time.Duration
		key string
	}{
		{&c.CacheTTL, EnvCacheTTL},
		{&c.HTTPTimeout, EnvHTTPTimeout},
	}
	for _, f := range durations {
		v, ok := lookup(f.key)
		if !ok || v == "" {
			continue
		}
		d, err := ParseDuration(v)
		if err != nil {
			return &Error{Field: f.key, Err: err}
		}
		*f.dst = d
	}
	return nil
}

// Validate checks that the configuration can run the service.
func (c *Config) Validate() error {
	if c.APIURL == "" {
		return &Error{Field: "api url", Err: errors.New("not set (use " + EnvAPIURL + " or " + EnvServersFile + ")")}
	}
	u, err := url.Parse(c.APIURL)
	if err != nil {
		return &Error{Field: "api url", Err: err}
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return &Error{Field: "api url", Err: fmt.Errorf("must be an absolute http(s) URL, got %q", c.APIURL)}
	}
	if c.AuthHeaderName == "" || c.AuthHeaderValue == "" {
		return &Error{Field: "auth header", Err: errors.New("name and value required (use " + EnvAuthFile + " or " + EnvAuthHeaderName + "/" + EnvAuthHeaderValue + ")")}
	}
	if c.Port < 1 || c.Port > 65535 {
		return &Error{Field: EnvPort, Err: fmt.Errorf("out of range: %d", c.Port)}
	}
	if c.CacheTTL <= 0 {
		return &Error{Field: EnvCacheTTL, Err: fmt.Errorf("must be positive, got %v", c.CacheTTL)}
	}
	if c.HTTPTimeout <= 0 {
		return &Error{Field: EnvHTTPTimeout, Err: fmt.Errorf("must be positive, got %v", c.HTTPTimeout)}
	}
	if c.MaxRecords < 1 {
		return &Error{Field: EnvMaxRecords, Err: fmt.Errorf("must be at least 1, got %d", c.MaxRecords)}
	}
	if c.RetryAttempts < 1 {
		return &Error{Field: EnvRetryAttempts, Err: fmt.Errorf("must be at least 1, got %d", c.RetryAttempts)}
	}
	return nil
}

// Addr returns the listen address for Port.
func (c *Config) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}

// ParseDuration accepts Go duration syntax or a bare number of seconds.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(s)
}

// SplitList splits a comma-separated list, dropping empty items.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

type serverEntry struct {
	API string `json:"api" yaml:"api"`
}

type authFile struct {
	HeaderName  string `json:"header_name"  yaml:"header_name"`
	HeaderValue string `json:"header_value" yaml:"header_value"`
}

func readServersFile(path, region string) (string, error) {
	var servers map[string]serverEntry
	if err := decodeFile(path, &servers); err != nil {
		return "", &Error{Field: "servers file", Err: err}
	}
	entry, ok := servers[region]
	if !ok {
		return "", &Error{Field: "region", Err: fmt.Errorf("%q not found in %s", region, path)}
	}
	if entry.API == "" {
		return "", &Error{Field: "region", Err: fmt.Errorf("%q has no api url in %s", region, path)}
	}
	return entry.API, nil
}

func readAuthFile(path string) (name, value string, err error) {
	var auth authFile
	if err := decodeFile(path, &auth); err != nil {
		return "", "", &Error{Field: "auth file", Err: err}
	}
	if auth.HeaderName == "" {
		return "", "", &Error{Field: "auth file", Err: fmt.Errorf("%s: header_name missing", path)}
	}
	return auth.HeaderName, auth.HeaderValue, nil
}

// decodeFile reads JSON for .json files and YAML otherwise.
func decodeFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		if err := json.Unmarshal(data, v); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		return nil
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func mapLookup(m map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

// chain returns the first lookup that has key set.
func chain(lookups ...LookupFunc) LookupFunc {
	return func(key string) (string, bool) {
		for _, l := range lookups {
			if v, ok := l(key); ok {
				return v, true
			}
		}
		return "", false
	}
}
