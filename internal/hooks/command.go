package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/soyeahso/agentdesk/internal/config"
)

// DefaultCommandTimeout applies when a hook entry has no timeout.
const DefaultCommandTimeout = 10 * time.Second

// configKeys maps the YAML keys of config.HooksConfig to event names.
var configKeys = map[string]string{
	"sessionStart":   EventSessionStart,
	"messageSending": EventMessageSending,
	"toolStart":      EventToolStart,
	"streamEnd":      EventStreamEnd,
	"channelError":   EventChannelError,
	"sessionEnd":     EventSessionEnd,
}

// CommandHandler runs entry.Command through the shell with the payload as
// JSON on stdin. The event name is also exported as AGENTDESK_HOOK_EVENT.
func CommandHandler(entry config.HookEntry) Handler {
	timeout := DefaultCommandTimeout
	if entry.Timeout > 0 {
		timeout = time.Duration(entry.Timeout) * time.Millisecond
	}

	return func(ctx context.Context, p Payload) error {
		input, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("encoding payload: %w", err)
		}

		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		cmd := exec.CommandContext(ctx, "sh", "-c", entry.Command)
		cmd.Stdin = bytes.NewReader(input)
		cmd.Env = append(os.Environ(), "AGENTDESK_HOOK_EVENT="+p.Event)
		var stderr bytes.Buffer
		cmd.Stderr = &stderr
		cmd.WaitDelay = time.Second

		if err := cmd.Run(); err != nil {
			if ctx.Err() == context.DeadlineExceeded {
				return fmt.Errorf("hook %q timed out after %s", entry.Command, timeout)
			}
			msg := strings.TrimSpace(stderr.String())
			if msg != "" {
				return fmt.Errorf("hook %q: %w: %s", entry.Command, err, msg)
			}
			return fmt.Errorf("hook %q: %w", entry.Command, err)
		}
		return nil
	}
}

// RegisterConfigured adds a CommandHandler for every entry in cfg and
// returns how many were registered.
func RegisterConfigured(m *Manager, cfg config.HooksConfig) int {
	n := 0
	for key, entries := range cfg.ByEvent() {
		event, ok := configKeys[key]
		if !ok {
			continue
		}
		for i, entry := range entries {
			if strings.TrimSpace(entry.Command) == "" {
				continue
			}
			m.On(event, fmt.Sprintf("config:%s[%d]", key, i), CommandHandler(entry))
			n++
		}
	}
	return n
}
