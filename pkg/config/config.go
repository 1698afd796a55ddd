package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/shaneisley/gymbook/pkg/executor"
)

// APIConfig holds the four booking API endpoints
type APIConfig struct {
	LoginURL    string `mapstructure:"login_url" yaml:"login_url"`
	ScheduleURL string `mapstructure:"schedule_url" yaml:"schedule_url"`
	BookingURL  string `mapstructure:"booking_url" yaml:"booking_url"`
	LogoutURL   string `mapstructure:"logout_url" yaml:"logout_url"`
}

// Config holds the configuration for a booking run
type Config struct {
	API APIConfig `mapstructure:"api" yaml:"api"`

	Email     string `mapstructure:"email" yaml:"email"`
	Password  string `mapstructure:"password" yaml:"password"`
	SessionID string `mapstructure:"session_id" yaml:"session_id"`

	SiteID      string            `mapstructure:"site_id" yaml:"site_id"`
	TargetTime  string            `mapstructure:"target_time" yaml:"target_time"`
	Strategy    string            `mapstructure:"strategy" yaml:"strategy"`
	ScheduleIDs map[string]string `mapstructure:"schedule_ids" yaml:"schedule_ids,omitempty"`
	Headers     map[string]string `mapstructure:"headers" yaml:"headers,omitempty"`

	// Request executor retries
	Attempts    int           `mapstructure:"attempts" yaml:"attempts"`
	Delay       time.Duration `mapstructure:"delay" yaml:"delay"`
	BackoffType string        `mapstructure:"backoff" yaml:"backoff"`
	Multiplier  float64       `mapstructure:"multiplier" yaml:"multiplier"`
	MaxDelay    time.Duration `mapstructure:"max_delay" yaml:"max_delay"`

	// Outer booking loop
	BookAttempts  int           `mapstructure:"book_attempts" yaml:"book_attempts"`
	BookDelay     time.Duration `mapstructure:"book_delay" yaml:"book_delay"`
	BookAheadDays int           `mapstructure:"book_ahead_days" yaml:"book_ahead_days"`

	ConnectTimeout time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`

	LogLevel  string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format"`
	LogFile   string `mapstructure:"log_file" yaml:"log_file"`
	HistoryDB string `mapstructure:"history_db" yaml:"history_db"`
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s value '%v': %s", e.Field, e.Value, e.Message)
}

// ValidationErrors is every problem found by Validate
type ValidationErrors []ValidationError

func (errs ValidationErrors) Error() string {
	messages := make([]string, 0, len(errs))
	for _, err := range errs {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation errors:\n  - %s", strings.Join(messages, "\n  - "))
}

// ConfigSource represents where a configuration value came from
type ConfigSource int

const (
	SourceDefault ConfigSource = iota
	SourceConfigFile
	SourceEnvironment
	SourceCLIFlag
)

func (s ConfigSource) String() string {
	switch s {
	case SourceDefault:
		return "default"
	case SourceConfigFile:
		return "config file"
	case SourceEnvironment:
		return "environment variable"
	case SourceCLIFlag:
		return "CLI flag"
	default:
		return "unknown"
	}
}

// ConfigDebugInfo holds debugging information about configuration resolution
type ConfigDebugInfo struct {
	File    string
	Sources map[string]ConfigSource
	Values  map[string]interface{}
}

// defaults are the values used when nothing else sets a key
var defaults = map[string]interface{}{
	"api.login_url":    "",
	"api.schedule_url": "",
	"api.booking_url":  "",
	"api.logout_url":   "",
	"email":            "",
	"password":         "",
	"session_id":       "",
	"site_id":          "5194",
	"target_time":      "07:00",
	"strategy":         "live",
	"attempts":         3,
	"delay":            300 * time.Second,
	"backoff":          "exponential",
	"multiplier":       2.0,
	"max_delay":        time.Duration(0),
	"book_attempts":    3,
	"book_delay":       300 * time.Second,
	"book_ahead_days":  4,
	"connect_timeout":  5 * time.Second,
	"read_timeout":     30 * time.Second,
	"log_level":        "info",
	"log_format":       "json",
	"log_file":         "",
	"history_db":       "",
}

// envBindings maps config keys to environment variables, highest priority first.
// The unprefixed names are those used by the original booking scripts.
var envBindings = map[string][]string{
	"api.login_url":    {"GYMBOOK_API_LOGIN_URL", "API_LOGIN_URL"},
	"api.schedule_url": {"GYMBOOK_API_SCHEDULE_URL"},
	"api.booking_url":  {"GYMBOOK_API_BOOKING_URL", "API_URL"},
	"api.logout_url":   {"GYMBOOK_API_LOGOUT_URL"},
	"email":            {"GYMBOOK_EMAIL", "API_EMAIL"},
	"password":         {"GYMBOOK_PASSWORD", "API_PASSWORD"},
	"session_id":       {"GYMBOOK_SESSION_ID"},
	"site_id":          {"GYMBOOK_SITE_ID"},
	"target_time":      {"GYMBOOK_TARGET_TIME"},
	"strategy":         {"GYMBOOK_STRATEGY"},
	"attempts":         {"GYMBOOK_ATTEMPTS"},
	"delay":            {"GYMBOOK_DELAY"},
	"backoff":          {"GYMBOOK_BACKOFF"},
	"multiplier":       {"GYMBOOK_MULTIPLIER"},
	"max_delay":        {"GYMBOOK_MAX_DELAY"},
	"book_attempts":    {"GYMBOOK_BOOK_ATTEMPTS"},
	"book_delay":       {"GYMBOOK_BOOK_DELAY"},
	"book_ahead_days":  {"GYMBOOK_BOOK_AHEAD_DAYS"},
	"connect_timeout":  {"GYMBOOK_CONNECT_TIMEOUT"},
	"read_timeout":     {"GYMBOOK_READ_TIMEOUT"},
	"log_level":        {"GYMBOOK_LOG_LEVEL", "LOG_LEVEL"},
	"log_format":       {"GYMBOOK_LOG_FORMAT"},
	"log_file":         {"GYMBOOK_LOG_FILE", "LOG_FILE"},
	"history_db":       {"GYMBOOK_HISTORY_DB"},
}

// flagFields copies a flag-settable field from src to dst
var flagFields = map[string]func(dst, src *Config) interface{}{
	"email":           func(d, s *Config) interface{} { d.Email = s.Email; return s.Email },
	"session_id":      func(d, s *Config) interface{} { d.SessionID = s.SessionID; return "****" },
	"site_id":         func(d, s *Config) interface{} { d.SiteID = s.SiteID; return s.SiteID },
	"target_time":     func(d, s *Config) interface{} { d.TargetTime = s.TargetTime; return s.TargetTime },
	"strategy":        func(d, s *Config) interface{} { d.Strategy = s.Strategy; return s.Strategy },
	"attempts":        func(d, s *Config) interface{} { d.Attempts = s.Attempts; return s.Attempts },
	"delay":           func(d, s *Config) interface{} { d.Delay = s.Delay; return s.Delay },
	"backoff":         func(d, s *Config) interface{} { d.BackoffType = s.BackoffType; return s.BackoffType },
	"multiplier":      func(d, s *Config) interface{} { d.Multiplier = s.Multiplier; return s.Multiplier },
	"max_delay":       func(d, s *Config) interface{} { d.MaxDelay = s.MaxDelay; return s.MaxDelay },
	"book_attempts":   func(d, s *Config) interface{} { d.BookAttempts = s.BookAttempts; return s.BookAttempts },
	"book_delay":      func(d, s *Config) interface{} { d.BookDelay = s.BookDelay; return s.BookDelay },
	"book_ahead_days": func(d, s *Config) interface{} { d.BookAheadDays = s.BookAheadDays; return s.BookAheadDays },
	"log_level":       func(d, s *Config) interface{} { d.LogLevel = s.LogLevel; return s.LogLevel },
	"log_format":      func(d, s *Config) interface{} { d.LogFormat = s.LogFormat; return s.LogFormat },
	"log_file":        func(d, s *Config) interface{} { d.LogFile = s.LogFile; return s.LogFile },
	"history_db":      func(d, s *Config) interface{} { d.HistoryDB = s.HistoryDB; return s.HistoryDB },
}

var secretKeys = map[string]bool{"password": true, "session_id": true}

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment.
// Variables already set are kept. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// LoadFromFile loads and validates configuration from a YAML file and the environment
func LoadFromFile(configFile string) (*Config, error) {
	cfg, _, err := LoadWithPrecedenceAndExplicitFlags(configFile, nil, nil, false)
	return cfg, err
}

// LoadWithPrecedenceAndExplicitFlags resolves configuration with precedence
// CLI flags > environment > config file > defaults and validates it. Only
// fields named in explicitFields are taken from flagConfig.
func LoadWithPrecedenceAndExplicitFlags(configFile string, flagConfig *Config, explicitFields map[string]bool, debug bool) (*Config, *ConfigDebugInfo, error) {
	config, debugInfo, err := Resolve(configFile, flagConfig, explicitFields, debug)
	if err != nil {
		return nil, debugInfo, err
	}

	if err := config.Validate(); err != nil {
		return nil, debugInfo, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, debugInfo, nil
}

// Resolve merges all configuration sources like LoadWithPrecedenceAndExplicitFlags
// without validating the result. Commands that do not talk to the API use it.
func Resolve(configFile string, flagConfig *Config, explicitFields map[string]bool, debug bool) (*Config, *ConfigDebugInfo, error) {
	var debugInfo *ConfigDebugInfo
	if debug {
		debugInfo = &ConfigDebugInfo{
			File:    configFile,
			Sources: make(map[string]ConfigSource),
			Values:  make(map[string]interface{}),
		}
	}

	v := viper.New()

	setDefaults(v)
	if debug {
		recordDefaults(debugInfo)
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, debugInfo, fmt.Errorf("failed to read config file: %w", err)
		}
		if debug {
			recordConfigFile(debugInfo, v)
		}
	}

	for key, envVars := range envBindings {
		if err := v.BindEnv(append([]string{key}, envVars...)...); err != nil {
			return nil, debugInfo, fmt.Errorf("failed to bind environment for %s: %w", key, err)
		}
	}
	if debug {
		recordEnvironment(debugInfo)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, debugInfo, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if flagConfig != nil && explicitFields != nil {
		config = *config.MergeWithExplicitFlags(flagConfig, explicitFields)
		if debug {
			recordExplicitFlags(debugInfo, flagConfig, explicitFields)
		}
	}

	return &config, debugInfo, nil
}

// LoadWithDefaults returns a configuration with default values
func LoadWithDefaults() *Config {
	v := viper.New()
	setDefaults(v)

	var config Config
	_ = v.Unmarshal(&config)
	return &config
}

func setDefaults(v *viper.Viper) {
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}

// MergeWithExplicitFlags merges configuration with explicitly set flag values
func (c *Config) MergeWithExplicitFlags(flags *Config, explicitFields map[string]bool) *Config {
	result := *c
	for field, set := range explicitFields {
		if apply, ok := flagFields[field]; ok && set {
			apply(&result, flags)
		}
	}
	return &result
}

// FindConfigFile searches dir for gymbook.yaml, .gymbook.yaml, config.yaml
// (and their .yml variants), in that order.
func FindConfigFile(dir string) string {
	configNames := []string{"gymbook.yaml", "gymbook.yml", ".gymbook.yaml", ".gymbook.yml", "config.yaml", "config.yml"}

	for _, name := range configNames {
		configPath := filepath.Join(dir, name)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
	}

	return ""
}

// UsesLogin reports whether the run authenticates with credentials.
// Without credentials a configured session_id is used as is.
func (c *Config) UsesLogin() bool {
	return c.Email != "" || c.Password != "" || c.SessionID == ""
}

// Redacted returns a copy safe to print
func (c *Config) Redacted() *Config {
	result := *c
	if result.Password != "" {
		result.Password = "****"
	}
	if result.SessionID != "" {
		result.SessionID = "****"
	}
	return &result
}

// Validate validates the configuration and returns detailed error messages
func (c *Config) Validate() error {
	var errs ValidationErrors
	add := func(field string, value interface{}, message string) {
		errs = append(errs, ValidationError{Field: field, Value: value, Message: message})
	}

	if c.UsesLogin() {
		if c.Email == "" {
			add("email", c.Email, "is required unless session_id is set")
		}
		if c.Password == "" {
			add("password", "", "is required unless session_id is set")
		}
		if c.API.LoginURL == "" {
			add("api.login_url", c.API.LoginURL, "is required when logging in")
		}
		if c.API.LogoutURL == "" {
			add("api.logout_url", c.API.LogoutURL, "is required when logging in")
		}
	}
	if c.API.BookingURL == "" {
		add("api.booking_url", c.API.BookingURL, "is required")
	}

	switch c.Strategy {
	case "live":
		if c.API.ScheduleURL == "" {
			add("api.schedule_url", c.API.ScheduleURL, "is required by the live strategy")
		}
	case "weekday":
		if len(c.ScheduleIDs) == 0 {
			add("schedule_ids", c.ScheduleIDs, "must map at least one weekday to a slot id")
		}
		for day := range c.ScheduleIDs {
			if !isWeekday(day) {
				add("schedule_ids", day, "is not an English weekday name")
			}
		}
	default:
		add("strategy", c.Strategy, "must be 'live' or 'weekday'")
	}

	if c.SiteID == "" {
		add("site_id", c.SiteID, "must not be empty")
	}
	if _, err := time.Parse("15:04", c.TargetTime); err != nil || len(c.TargetTime) != 5 {
		add("target_time", c.TargetTime, "must be HH:MM")
	}

	validateAttempts := func(field string, n int) {
		if n <= 0 {
			add(field, n, "must be greater than 0")
		}
		if n > executor.MaxAttemptsLimit {
			add(field, n, fmt.Sprintf("must be %d or less to prevent excessive resource usage", executor.MaxAttemptsLimit))
		}
	}
	validateAttempts("attempts", c.Attempts)
	validateAttempts("book_attempts", c.BookAttempts)

	validateDelay := func(field string, d time.Duration) {
		if d < 0 {
			add(field, d, "must be non-negative")
		}
		if d > 24*time.Hour {
			add(field, d, "must be 24 hours or less")
		}
	}
	validateDelay("delay", c.Delay)
	validateDelay("book_delay", c.BookDelay)
	validateDelay("max_delay", c.MaxDelay)
	if c.MaxDelay > 0 && c.Delay > 0 && c.MaxDelay < c.Delay {
		add("max_delay", c.MaxDelay, "must be greater than or equal to base delay")
	}

	if c.BackoffType != "fixed" && c.BackoffType != "exponential" && c.BackoffType != "jitter" {
		add("backoff", c.BackoffType, "must be 'fixed', 'exponential' or 'jitter'")
	}
	if c.Multiplier < 1.0 {
		add("multiplier", c.Multiplier, "must be 1.0 or greater")
	}
	if c.Multiplier > 10.0 {
		add("multiplier", c.Multiplier, "must be 10.0 or less to prevent excessive delays")
	}

	if c.BookAheadDays < 1 || c.BookAheadDays > 365 {
		add("book_ahead_days", c.BookAheadDays, "must be between 1 and 365")
	}
	if c.ConnectTimeout <= 0 {
		add("connect_timeout", c.ConnectTimeout, "must be greater than 0")
	}
	if c.ReadTimeout <= 0 {
		add("read_timeout", c.ReadTimeout, "must be greater than 0")
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		add("log_level", c.LogLevel, "must be debug, info, warn or error")
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		add("log_format", c.LogFormat, "must be 'json' or 'text'")
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func isWeekday(day string) bool {
	switch strings.ToLower(strings.TrimSpace(day)) {
	case "monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday":
		return true
	}
	return false
}

func recordDefaults(debug *ConfigDebugInfo) {
	for key, value := range defaults {
		debug.Sources[key] = SourceDefault
		debug.Values[key] = value
	}
}

func recordConfigFile(debug *ConfigDebugInfo, v *viper.Viper) {
	for key := range defaults {
		if v.InConfig(key) {
			debug.Sources[key] = SourceConfigFile
			debug.Values[key] = v.Get(key)
		}
	}
	for _, key := range []string{"schedule_ids", "headers"} {
		if v.InConfig(key) {
			debug.Sources[key] = SourceConfigFile
			debug.Values[key] = v.Get(key)
		}
	}
}

// recordEnvironment marks keys whose first set variable wins over the file
func recordEnvironment(debug *ConfigDebugInfo) {
	for key, envVars := range envBindings {
		for _, envVar := range envVars {
			if value, ok := os.LookupEnv(envVar); ok && value != "" {
				debug.Sources[key] = SourceEnvironment
				debug.Values[key] = value
				break
			}
		}
	}
}

func recordExplicitFlags(debug *ConfigDebugInfo, flags *Config, explicitFields map[string]bool) {
	var scratch Config
	for field, set := range explicitFields {
		if apply, ok := flagFields[field]; ok && set {
			debug.Sources[field] = SourceCLIFlag
			debug.Values[field] = apply(&scratch, flags)
		}
	}
}

// PrintDebugInfo writes configuration debug information to w
func (debug *ConfigDebugInfo) PrintDebugInfo(w io.Writer) {
	fmt.Fprintln(w, "Configuration Resolution Debug Info:")
	fmt.Fprintln(w, "===================================")
	if debug.File != "" {
		fmt.Fprintf(w, "%-20s: %s\n", "config file", debug.File)
	}

	keys := make([]string, 0, len(debug.Sources))
	for key := range debug.Sources {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := debug.Values[key]
		if secretKeys[key] && value != "" {
			value = "****"
		}
		fmt.Fprintf(w, "%-20s: %-15v (from %s)\n", key, value, debug.Sources[key])
	}
}
