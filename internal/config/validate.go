package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
)

// ValidationIssue describes a problem with a config value.
type ValidationIssue struct {
	Path    string
	Message string
}

func (v ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

// Validate checks a Config for issues. Returns nil if valid.
func Validate(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue

	// API validation
	if cfg.API.BaseURL == "" {
		issues = append(issues, ValidationIssue{Path: "api.baseUrl", Message: "base URL is required"})
	} else if u, err := url.Parse(cfg.API.BaseURL); err != nil || u.Host == "" {
		issues = append(issues, ValidationIssue{
			Path:    "api.baseUrl",
			Message: fmt.Sprintf("must be an absolute URL, got %q", cfg.API.BaseURL),
		})
	} else if u.Scheme != "http" && u.Scheme != "https" {
		issues = append(issues, ValidationIssue{
			Path:    "api.baseUrl",
			Message: fmt.Sprintf("scheme must be http or https, got %q", u.Scheme),
		})
	}

	if cfg.API.SocketPath != "" && !strings.HasPrefix(cfg.API.SocketPath, "/") {
		issues = append(issues, ValidationIssue{
			Path:    "api.socketPath",
			Message: fmt.Sprintf("must start with '/', got %q", cfg.API.SocketPath),
		})
	}

	if cfg.API.TimeoutSeconds < 0 {
		issues = append(issues, ValidationIssue{
			Path:    "api.timeoutSeconds",
			Message: fmt.Sprintf("must be >= 0, got %d", cfg.API.TimeoutSeconds),
		})
	}

	if cfg.API.RequestsPerSecond < 0 {
		issues = append(issues, ValidationIssue{
			Path:    "api.requestsPerSecond",
			Message: fmt.Sprintf("must be >= 0, got %g", cfg.API.RequestsPerSecond),
		})
	}

	// Auth validation
	validStores := []string{"file", "sqlite", "memory"}
	if cfg.Auth.Store != "" && !slices.Contains(validStores, cfg.Auth.Store) {
		issues = append(issues, ValidationIssue{
			Path:    "auth.store",
			Message: fmt.Sprintf("must be one of %v, got %q", validStores, cfg.Auth.Store),
		})
	}

	// Chat validation
	validRenders := []string{"markdown", "plain"}
	if cfg.Chat.Render != "" && !slices.Contains(validRenders, cfg.Chat.Render) {
		issues = append(issues, ValidationIssue{
			Path:    "chat.render",
			Message: fmt.Sprintf("must be one of %v, got %q", validRenders, cfg.Chat.Render),
		})
	}

	// Logging validation
	validLogLevels := []string{"silent", "fatal", "error", "warn", "info", "debug", "trace"}
	if cfg.Logging.Level != "" && !slices.Contains(validLogLevels, cfg.Logging.Level) {
		issues = append(issues, ValidationIssue{
			Path:    "logging.level",
			Message: fmt.Sprintf("must be one of %v, got %q", validLogLevels, cfg.Logging.Level),
		})
	}

	validConsoleStyles := []string{"pretty", "compact", "json"}
	if cfg.Logging.ConsoleStyle != "" && !slices.Contains(validConsoleStyles, cfg.Logging.ConsoleStyle) {
		issues = append(issues, ValidationIssue{
			Path:    "logging.consoleStyle",
			Message: fmt.Sprintf("must be one of %v, got %q", validConsoleStyles, cfg.Logging.ConsoleStyle),
		})
	}

	// Hooks validation
	for event, entries := range cfg.Hooks.ByEvent() {
		for i, h := range entries {
			if strings.TrimSpace(h.Command) == "" {
				issues = append(issues, ValidationIssue{
					Path:    fmt.Sprintf("hooks.%s[%d].command", event, i),
					Message: "command is required",
				})
			}
			if h.Timeout < 0 {
				issues = append(issues, ValidationIssue{
					Path:    fmt.Sprintf("hooks.%s[%d].timeout", event, i),
					Message: fmt.Sprintf("must be >= 0, got %d", h.Timeout),
				})
			}
		}
	}

	slices.SortStableFunc(issues, func(a, b ValidationIssue) int { return strings.Compare(a.Path, b.Path) })
	return issues
}
