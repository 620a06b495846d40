package config

import "fmt"

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s", e.Message)
}

const (
	DefaultBaseURL    = "http://localhost:8000"
	DefaultSocketPath = "/ws/text"
)

// Defaults returns a Config with sensible defaults applied.
func Defaults() Config {
	return Config{
		API: APIConfig{
			BaseURL:           DefaultBaseURL,
			SocketPath:        DefaultSocketPath,
			TimeoutSeconds:    30,
			RequestsPerSecond: 10,
			Burst:             5,
		},
		Auth: AuthConfig{
			Store: "file",
		},
		Chat: ChatConfig{
			Render:                  "markdown",
			ShowMetrics:             true,
			HandshakeTimeoutSeconds: 10,
		},
		Logging: LoggingConfig{
			Level:        "warn",
			ConsoleStyle: "pretty",
		},
	}
}
