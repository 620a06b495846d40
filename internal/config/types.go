package config

// Config is the root configuration for agentdesk.
type Config struct {
	API     APIConfig     `yaml:"api,omitempty"`
	Auth    AuthConfig    `yaml:"auth,omitempty"`
	Chat    ChatConfig    `yaml:"chat,omitempty"`
	Logging LoggingConfig `yaml:"logging,omitempty"`
	Hooks   HooksConfig   `yaml:"hooks,omitempty"`
}

// APIConfig points the client at the agent platform backend.
type APIConfig struct {
	BaseURL           string  `yaml:"baseUrl,omitempty"`    // e.g. "http://localhost:8000"
	SocketPath        string  `yaml:"socketPath,omitempty"` // chat event channel path, e.g. "/ws/text"
	TimeoutSeconds    int     `yaml:"timeoutSeconds,omitempty"`
	RequestsPerSecond float64 `yaml:"requestsPerSecond,omitempty"` // client-side pacing; 0 disables
	Burst             int     `yaml:"burst,omitempty"`
}

// AuthConfig controls where the bearer token lives.
type AuthConfig struct {
	Store string `yaml:"store,omitempty"` // "file" | "sqlite" | "memory"
	Token string `yaml:"token,omitempty"` // optional fixed token, usually "${AGENTDESK_TOKEN}"
}

// ChatConfig tunes the chat view.
type ChatConfig struct {
	Render                  string `yaml:"render,omitempty"` // "markdown" | "plain"
	ShowMetrics             bool   `yaml:"showMetrics,omitempty"`
	HandshakeTimeoutSeconds int    `yaml:"handshakeTimeoutSeconds,omitempty"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level        string `yaml:"level,omitempty"` // "silent" | "fatal" | "error" | "warn" | "info" | "debug" | "trace"
	File         string `yaml:"file,omitempty"`
	ConsoleStyle string `yaml:"consoleStyle,omitempty"` // "pretty" | "compact" | "json"
}

// HooksConfig maps chat lifecycle events to shell commands.
type HooksConfig struct {
	SessionStart   []HookEntry `yaml:"sessionStart,omitempty"`
	MessageSending []HookEntry `yaml:"messageSending,omitempty"`
	ToolStart      []HookEntry `yaml:"toolStart,omitempty"`
	StreamEnd      []HookEntry `yaml:"streamEnd,omitempty"`
	ChannelError   []HookEntry `yaml:"channelError,omitempty"`
	SessionEnd     []HookEntry `yaml:"sessionEnd,omitempty"`
}

// HookEntry defines a single hook action.
type HookEntry struct {
	Command string `yaml:"command"`
	Timeout int    `yaml:"timeout,omitempty"` // milliseconds
}

// ByEvent returns the configured hooks keyed by their YAML field name.
func (h HooksConfig) ByEvent() map[string][]HookEntry {
	return map[string][]HookEntry{
		"sessionStart":   h.SessionStart,
		"messageSending": h.MessageSending,
		"toolStart":      h.ToolStart,
		"streamEnd":      h.StreamEnd,
		"channelError":   h.ChannelError,
		"sessionEnd":     h.SessionEnd,
	}
}
