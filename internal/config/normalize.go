package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	c.normalizeAPI()
	if err := c.normalizeStorage(); err != nil {
		return err
	}
	c.normalizePoller()
	c.normalizeOAuth()
	if err := c.normalizeLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) normalizeAPI() {
	c.API.BaseURL = strings.TrimSpace(c.API.BaseURL)
	if value, ok := os.LookupEnv("SCRIBE_API_URL"); ok && strings.TrimSpace(value) != "" {
		c.API.BaseURL = strings.TrimSpace(value)
	}
	if c.API.BaseURL == "" {
		c.API.BaseURL = defaultBaseURL
	}
	c.API.BaseURL = strings.TrimRight(c.API.BaseURL, "/")
	c.API.Language = strings.TrimSpace(c.API.Language)
	if c.API.Language == "" {
		c.API.Language = defaultLanguage
	}
	if c.API.TimeoutSeconds < 0 {
		c.API.TimeoutSeconds = 0
	}
}

func (c *Config) normalizeStorage() error {
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	if c.Storage.Backend == "" {
		c.Storage.Backend = defaultStorageBackend
	}
	if strings.TrimSpace(c.Storage.StateDir) == "" {
		c.Storage.StateDir = defaultStateDir
	}
	var err error
	if c.Storage.StateDir, err = expandPath(c.Storage.StateDir); err != nil {
		return fmt.Errorf("storage.state_dir: %w", err)
	}
	c.Storage.RedisURL = strings.TrimSpace(c.Storage.RedisURL)
	if c.Storage.RedisURL == "" {
		if value, ok := os.LookupEnv("SCRIBE_REDIS_URL"); ok {
			c.Storage.RedisURL = strings.TrimSpace(value)
		}
	}
	return nil
}

func (c *Config) normalizePoller() {
	if c.Poller.IntervalSeconds == 0 {
		c.Poller.IntervalSeconds = defaultPollIntervalSeconds
	}
}

func (c *Config) normalizeOAuth() {
	c.OAuth.CallbackBind = strings.TrimSpace(c.OAuth.CallbackBind)
	if c.OAuth.CallbackBind == "" {
		c.OAuth.CallbackBind = defaultCallbackBind
	}
	c.OAuth.CallbackPath = strings.TrimSpace(c.OAuth.CallbackPath)
	if c.OAuth.CallbackPath == "" {
		c.OAuth.CallbackPath = defaultCallbackPath
	}
	if !strings.HasPrefix(c.OAuth.CallbackPath, "/") {
		c.OAuth.CallbackPath = "/" + c.OAuth.CallbackPath
	}
	if c.OAuth.TimeoutSeconds == 0 {
		c.OAuth.TimeoutSeconds = defaultOAuthTimeoutSeconds
	}
}

func (c *Config) normalizeLogging() error {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		if value, ok := os.LookupEnv("SCRIBE_LOG_LEVEL"); ok {
			c.Logging.Level = strings.ToLower(strings.TrimSpace(value))
		}
	}
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if strings.TrimSpace(c.Logging.File) != "" {
		var err error
		if c.Logging.File, err = expandPath(strings.TrimSpace(c.Logging.File)); err != nil {
			return fmt.Errorf("logging.file: %w", err)
		}
	}
	return nil
}
